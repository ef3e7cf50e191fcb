package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/resdb/internal/address"
	"github.com/roach88/resdb/internal/provider"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Columns []string
	Where   string
	Args    []string
	OrderBy string
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <address>",
		Short: "Read rows at an address",
		Long: `Read rows at an address.

Query parameters on the address carry the grouping and limit modifiers.

Example:
  resdb query content://app/notes --where 'title LIKE ?' --arg 'a%'
  resdb query 'content://app/notes?limit=10' --columns title --order-by title`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringSliceVar(&opts.Columns, "columns", nil, "columns to return (default all)")
	cmd.Flags().StringVar(&opts.Where, "where", "", "filter expression with ? placeholders")
	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "filter argument (repeatable)")
	cmd.Flags().StringVar(&opts.OrderBy, "order-by", "", "ORDER BY expression")

	return cmd
}

// queryResult is the output of the query command.
type queryResult struct {
	Address string         `json:"address"`
	Rows    []provider.Row `json:"rows"`
}

func (r queryResult) String() string {
	var b strings.Builder
	for i, row := range r.Rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		cols := make([]string, 0, len(row))
		for col := range row {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		for j, col := range cols {
			if j > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%s=%v", col, row[col])
		}
	}
	fmt.Fprintf(&b, "\n(%d rows)", len(r.Rows))
	return strings.TrimPrefix(b.String(), "\n")
}

func runQuery(cmd *cobra.Command, opts *QueryOptions, raw string) error {
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

	cur, err := e.provider.Query(cmd.Context(), a, opts.Columns, opts.Where, args, opts.OrderBy)
	if err != nil {
		return out.Fail(err)
	}
	rows, err := cur.ReadAll()
	if err != nil {
		return out.Fail(err)
	}
	out.VerboseLog("notification address: %s", cur.NotificationAddress())

	return out.Success(queryResult{Address: a.String(), Rows: rows})
}
