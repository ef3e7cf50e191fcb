package schema

import (
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Load reads and compiles a CUE schema file.
func Load(path string) (*Definition, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return Parse(src, path)
}

// Parse compiles CUE source into a Definition. filename is used in error
// positions only.
func Parse(src []byte, filename string) (*Definition, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	return Compile(v)
}

// Compile converts a CUE value into a validated Definition.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
func Compile(v cue.Value) (*Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &Definition{}

	versionVal := v.LookupPath(cue.ParsePath("version"))
	if versionVal.Exists() {
		version, err := versionVal.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		def.Version = int(version)
	}

	tables, err := parseTables(v)
	if err != nil {
		return nil, err
	}
	def.Tables = tables

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// parseTables extracts table definitions, sorted by name.
func parseTables(v cue.Value) ([]Table, error) {
	var tables []Table

	tableVal := v.LookupPath(cue.ParsePath("table"))
	if !tableVal.Exists() {
		return tables, nil
	}

	iter, err := tableVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		table := Table{Name: iter.Label()}
		tv := iter.Value()

		columnsVal := tv.LookupPath(cue.ParsePath("columns"))
		if columnsVal.Exists() {
			colIter, err := columnsVal.Fields()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for colIter.Next() {
				col, err := parseColumn(colIter.Label(), colIter.Value())
				if err != nil {
					return nil, err
				}
				table.Columns = append(table.Columns, col)
			}
		}
		sort.Slice(table.Columns, func(i, j int) bool {
			return table.Columns[i].Name < table.Columns[j].Name
		})

		uniqueVal := tv.LookupPath(cue.ParsePath("unique"))
		if uniqueVal.Exists() {
			if err := uniqueVal.Decode(&table.Unique); err != nil {
				return nil, &CompileError{
					Field:   "table." + table.Name + ".unique",
					Message: "must be a list of column lists",
					Pos:     uniqueVal.Pos(),
				}
			}
		}

		tables = append(tables, table)
	}

	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return tables, nil
}

// parseColumn parses {type, notNull, default}.
func parseColumn(name string, v cue.Value) (Column, error) {
	col := Column{Name: name}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return col, &CompileError{
			Field:   "columns." + name + ".type",
			Message: "column type is required",
			Pos:     v.Pos(),
		}
	}
	typ, err := typeVal.String()
	if err != nil {
		return col, formatCUEError(err)
	}
	col.Type = typ

	notNullVal := v.LookupPath(cue.ParsePath("notNull"))
	if notNullVal.Exists() {
		notNull, err := notNullVal.Bool()
		if err != nil {
			return col, formatCUEError(err)
		}
		col.NotNull = notNull
	}

	defaultVal := v.LookupPath(cue.ParsePath("default"))
	if defaultVal.Exists() {
		def, err := extractDefault(defaultVal)
		if err != nil {
			return col, err
		}
		col.Default = def
	}

	return col, nil
}

// extractDefault converts a concrete CUE scalar into a Go default value.
func extractDefault(v cue.Value) (any, error) {
	switch v.Kind() {
	case cue.IntKind:
		return v.Int64()
	case cue.FloatKind, cue.NumberKind:
		return v.Float64()
	case cue.StringKind:
		return v.String()
	case cue.BoolKind:
		return v.Bool()
	case cue.NullKind:
		return nil, nil
	default:
		return nil, &CompileError{
			Field:   "default",
			Message: fmt.Sprintf("unsupported default kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a schema error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
