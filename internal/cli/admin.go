package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/resdb/internal/address"
)

// NewTypeCommand creates the type command.
func NewTypeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "type <address>",
		Short: "Print the resource kind of an address",
		Long: `Print the resource kind of an address without touching the database.

Example:
  resdb type content://app/notes/7   # item-of-notes`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runType(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

type typeResult struct {
	Address string `json:"address"`
	Type    string `json:"type"`
}

func (r typeResult) String() string { return r.Type }

func runType(cmd *cobra.Command, opts *RootOptions, raw string) error {
	out := newFormatter(cmd, opts)

	a, err := address.Parse(raw)
	if err != nil {
		return out.Fail(err)
	}
	kind, err := address.ResourceKind(a)
	if err != nil {
		return out.Fail(err)
	}
	return out.Success(typeResult{Address: a.String(), Type: kind})
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every row of every table",
		Long: `Delete every row of every table in one transaction. Tables are kept.
No notifications are emitted.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(cmd, rootOpts)
		},
	}
	return cmd
}

type clearResult struct {
	Tables []string `json:"tables"`
}

func (r clearResult) String() string {
	return fmt.Sprintf("cleared %d tables", len(r.Tables))
}

func runClear(cmd *cobra.Command, opts *RootOptions) error {
	out := newFormatter(cmd, opts)

	e, err := openEnv(cmd, opts, out)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.provider.Clear(cmd.Context()); err != nil {
		return out.Fail(err)
	}
	tables, err := e.store.Tables(cmd.Context())
	if err != nil {
		return out.Fail(err)
	}
	return out.Success(clearResult{Tables: tables})
}

// SchemaOptions holds flags for the schema command.
type SchemaOptions struct {
	*RootOptions
	Apply bool
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the DDL of the configured schema",
		Long: `Print the CREATE TABLE statements generated from the configured CUE
schema. With --apply the database is opened and upgraded to the schema,
and its tables are listed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Apply, "apply", false, "apply the schema to the database")

	return cmd
}

type schemaResult struct {
	Version int      `json:"version"`
	DDL     string   `json:"ddl"`
	Tables  []string `json:"tables,omitempty"`
}

func (r schemaResult) String() string {
	if len(r.Tables) == 0 {
		return strings.TrimSuffix(r.DDL, "\n")
	}
	return fmt.Sprintf("%s\napplied version %d: %s",
		strings.TrimSuffix(r.DDL, "\n"), r.Version, strings.Join(r.Tables, ", "))
}

func runSchema(cmd *cobra.Command, opts *SchemaOptions) error {
	out := newFormatter(cmd, opts.RootOptions)

	def, code, err := loadDefinition(opts.RootOptions)
	if err != nil {
		return out.FailWith(code, err)
	}
	res := schemaResult{Version: def.Version, DDL: def.DDL()}

	if opts.Apply {
		e, err := openEnv(cmd, opts.RootOptions, out)
		if err != nil {
			return err
		}
		defer e.Close()

		// Tables acquires a handle, which ensures the schema.
		tables, err := e.store.Tables(cmd.Context())
		if err != nil {
			return out.Fail(err)
		}
		if v := e.cfg.Database.Version; v > 0 {
			res.Version = v
		}
		res.Tables = tables
	}
	return out.Success(res)
}
