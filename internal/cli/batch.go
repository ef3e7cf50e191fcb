package cli

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/resdb/internal/address"
	"github.com/roach88/resdb/internal/provider"
)

// BulkInsertOptions holds flags for the bulk-insert command.
type BulkInsertOptions struct {
	*RootOptions
	File string
}

// NewBulkInsertCommand creates the bulk-insert command.
func NewBulkInsertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BulkInsertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bulk-insert <address>",
		Short: "Insert many rows in one transaction",
		Long: `Insert a JSON array of row objects into a collection in one
transaction. Either every row is inserted or none is.

Example:
  resdb bulk-insert content://app/notes --file rows.json
  echo '[{"title":"a"},{"title":"b"}]' | resdb bulk-insert content://app/notes --file -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBulkInsert(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "-", "JSON rows file (- for stdin)")

	return cmd
}

func runBulkInsert(cmd *cobra.Command, opts *BulkInsertOptions, raw string) error {
	out := newFormatter(cmd, opts.RootOptions)

	a, err := address.Parse(raw)
	if err != nil {
		return out.Fail(err)
	}
	data, err := readInput(cmd.InOrStdin(), opts.File)
	if err != nil {
		return out.FailWith(ErrCodeInput, err)
	}
	rows, err := parseRows(data)
	if err != nil {
		return out.FailWith(ErrCodeInput, err)
	}

	e, err := openEnv(cmd, opts.RootOptions, out)
	if err != nil {
		return err
	}
	defer e.Close()
	e.watch(a)

	n, err := e.provider.BulkInsert(cmd.Context(), a, rows)
	if err != nil {
		return out.Fail(err)
	}
	return out.Success(mutationResult{Count: n, Changes: e.Changes()})
}

// BatchOptions holds flags for the batch command.
type BatchOptions struct {
	*RootOptions
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Apply a YAML list of operations atomically",
		Long: `Apply a YAML list of operations in one transaction. The first failing
operation rolls the whole batch back.

Example file:
  - op: insert
    address: content://app/notes
    values: {title: first}
  - op: insert
    address: content://app/tags
    values: {label: pinned}
    value_refs: {note_id: 0}
  - op: assert
    address: content://app/tags
    where: note_id = ?
    arg_refs: {0: 0}
    expect_count: 1

Use - to read the file from stdin.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, opts, args[0])
		},
	}

	return cmd
}

// batchResult is the output of the batch command.
type batchResult struct {
	Results []resultEntry  `json:"results"`
	Changes []changeResult `json:"changes"`
}

type resultEntry struct {
	Address string `json:"address,omitempty"`
	Count   int64  `json:"count"`
	RowID   int64  `json:"row_id,omitempty"`
}

func (r batchResult) String() string {
	var b strings.Builder
	for i, res := range r.Results {
		fmt.Fprintf(&b, "%d: count=%d", i, res.Count)
		if res.Address != "" {
			fmt.Fprintf(&b, " address=%s", res.Address)
		}
		if res.RowID != 0 {
			fmt.Fprintf(&b, " row_id=%d", res.RowID)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "%d operations applied", len(r.Results))
	for _, c := range r.Changes {
		fmt.Fprintf(&b, "\nnotified %s (%d)", c.Address, c.Count)
	}
	return b.String()
}

func runBatch(cmd *cobra.Command, opts *BatchOptions, path string) error {
	out := newFormatter(cmd, opts.RootOptions)

	data, err := readInput(cmd.InOrStdin(), path)
	if err != nil {
		return out.FailWith(ErrCodeInput, err)
	}
	ops, err := provider.DecodeOperations(bytes.NewReader(data))
	if err != nil {
		if address.IsAddressError(err) {
			return out.Fail(err)
		}
		return out.FailWith(ErrCodeInput, err)
	}

	e, err := openEnv(cmd, opts.RootOptions, out)
	if err != nil {
		return err
	}
	defer e.Close()
	for _, op := range ops {
		e.watch(op.Address)
	}

	out.VerboseLog("applying %d operations", len(ops))
	results, err := e.provider.ApplyBatch(cmd.Context(), ops)
	if err != nil {
		return out.Fail(err)
	}

	entries := make([]resultEntry, len(results))
	for i, res := range results {
		entries[i] = resultEntry{Count: res.Count, RowID: res.RowID}
		if !res.Address.IsZero() {
			entries[i].Address = res.Address.String()
		}
	}
	return out.Success(batchResult{Results: entries, Changes: e.Changes()})
}
