package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/resdb/internal/address"
)

// MutateOptions holds flags for the insert, update and delete commands.
type MutateOptions struct {
	*RootOptions
	Values string
	Where  string
	Args   []string
}

// mutationResult is the output of insert, update and delete.
type mutationResult struct {
	Address string         `json:"address,omitempty"`
	Count   int64          `json:"count"`
	Changes []changeResult `json:"changes"`
}

func (r mutationResult) String() string {
	var b strings.Builder
	if r.Address != "" {
		fmt.Fprintf(&b, "%s\n", r.Address)
	}
	fmt.Fprintf(&b, "%d rows affected", r.Count)
	for _, c := range r.Changes {
		fmt.Fprintf(&b, "\nnotified %s (%d)", c.Address, c.Count)
	}
	return b.String()
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MutateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "insert <address>",
		Short: "Insert a row",
		Long: `Insert a row and print the address of the new item.

Inserting at an item address stores the row under that _id.

Example:
  resdb insert content://app/notes --values '{"title":"first"}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInsert(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Values, "values", "{}", "column values as a JSON object")

	return cmd
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MutateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <address>",
		Short: "Update rows",
		Long: `Update rows at an address and print the affected count.

At an item address --where is ignored and only that row is updated.

Example:
  resdb update content://app/notes --values '{"body":"x"}' --where 'title = ?' --arg first`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Values, "values", "{}", "column values as a JSON object")
	cmd.Flags().StringVar(&opts.Where, "where", "", "filter expression with ? placeholders")
	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "filter argument (repeatable)")

	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MutateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <address>",
		Short: "Delete rows",
		Long: `Delete rows at an address and print the affected count.

Without --where every row of a collection is deleted.

Example:
  resdb delete content://app/notes/7`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Where, "where", "", "filter expression with ? placeholders")
	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "filter argument (repeatable)")

	return cmd
}

func runInsert(cmd *cobra.Command, opts *MutateOptions, raw string) error {
	out := newFormatter(cmd, opts.RootOptions)

	a, err := address.Parse(raw)
	if err != nil {
		return out.Fail(err)
	}
	values, err := parseValues(opts.Values)
	if err != nil {
		return out.FailWith(ErrCodeInput, err)
	}

	e, err := openEnv(cmd, opts.RootOptions, out)
	if err != nil {
		return err
	}
	defer e.Close()
	e.watch(a)

	item, err := e.provider.Insert(cmd.Context(), a, values)
	if err != nil {
		return out.Fail(err)
	}
	return out.Success(mutationResult{Address: item.String(), Count: 1, Changes: e.Changes()})
}

func runUpdate(cmd *cobra.Command, opts *MutateOptions, raw string) error {
	out := newFormatter(cmd, opts.RootOptions)

	a, err := address.Parse(raw)
	if err != nil {
		return out.Fail(err)
	}
	values, err := parseValues(opts.Values)
	if err != nil {
		return out.FailWith(ErrCodeInput, err)
	}
	args, err := parseArgs(opts.Args)
	if err != nil {
		return out.FailWith(ErrCodeInput, err)
	}

	e, err := openEnv(cmd, opts.RootOptions, out)
	if err != nil {
		return err
	}
	defer e.Close()
	e.watch(a)

	n, err := e.provider.Update(cmd.Context(), a, values, opts.Where, args)
	if err != nil {
		return out.Fail(err)
	}
	return out.Success(mutationResult{Count: n, Changes: e.Changes()})
}

func runDelete(cmd *cobra.Command, opts *MutateOptions, raw string) error {
	out := newFormatter(cmd, opts.RootOptions)

	a, err := address.Parse(raw)
	if err != nil {
		return out.Fail(err)
	}
	args, err := parseArgs(opts.Args)
	if err != nil {
		return out.FailWith(ErrCodeInput, err)
	}

	e, err := openEnv(cmd, opts.RootOptions, out)
	if err != nil {
		return err
	}
	defer e.Close()
	e.watch(a)

	n, err := e.provider.Delete(cmd.Context(), a, opts.Where, args)
	if err != nil {
		return out.Fail(err)
	}
	return out.Success(mutationResult{Count: n, Changes: e.Changes()})
}
