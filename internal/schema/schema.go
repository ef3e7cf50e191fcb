package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/resdb/internal/store"
)

// IDColumn is the implicit primary key of every table.
const IDColumn = store.IDColumn

// Column types accepted in schema files.
var columnTypes = map[string]string{
	"integer": "INTEGER",
	"text":    "TEXT",
	"real":    "REAL",
	"blob":    "BLOB",
	"numeric": "NUMERIC",
}

var identPattern = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_]*$`)

// Definition is a compiled schema.
type Definition struct {
	Version int
	Tables  []Table
}

// Table is one table definition. Columns are sorted by name.
type Table struct {
	Name    string
	Columns []Column
	Unique  [][]string
}

// Column is one column definition. Default is nil, an int64, a float64, a
// string or a bool.
type Column struct {
	Name    string
	Type    string
	NotNull bool
	Default any
}

// Table returns the named table definition.
func (d *Definition) Table(name string) (Table, bool) {
	for _, t := range d.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Validate checks identifiers, types and unique constraints.
func (d *Definition) Validate() error {
	if d.Version < 0 {
		return &CompileError{Field: "version", Message: "must not be negative"}
	}
	seen := make(map[string]bool)
	for _, t := range d.Tables {
		if err := validateIdent("table", t.Name); err != nil {
			return err
		}
		if seen[t.Name] {
			return &CompileError{Field: "table." + t.Name, Message: "duplicate table"}
		}
		seen[t.Name] = true

		cols := make(map[string]bool)
		for _, c := range t.Columns {
			field := fmt.Sprintf("table.%s.columns.%s", t.Name, c.Name)
			if err := validateIdent(field, c.Name); err != nil {
				return err
			}
			if c.Name == IDColumn {
				return &CompileError{Field: field, Message: "_id is implicit and cannot be declared"}
			}
			if _, ok := columnTypes[c.Type]; !ok {
				return &CompileError{Field: field, Message: fmt.Sprintf("unknown type %q", c.Type)}
			}
			cols[c.Name] = true
		}
		for _, group := range t.Unique {
			if len(group) == 0 {
				return &CompileError{Field: "table." + t.Name + ".unique", Message: "empty unique constraint"}
			}
			for _, name := range group {
				if !cols[name] && name != IDColumn {
					return &CompileError{
						Field:   "table." + t.Name + ".unique",
						Message: fmt.Sprintf("unknown column %q", name),
					}
				}
			}
		}
	}
	return nil
}

// validateIdent requires NFC-normalized letters, digits and underscores.
// Non-normalized names would create tables that look identical to, but
// are addressed differently from, their normalized twins.
func validateIdent(field, name string) error {
	if !norm.NFC.IsNormalString(name) {
		return &CompileError{Field: field, Message: fmt.Sprintf("identifier %q is not NFC-normalized", name)}
	}
	if !identPattern.MatchString(name) {
		return &CompileError{Field: field, Message: fmt.Sprintf("invalid identifier %q", name)}
	}
	return nil
}

// DDL renders CREATE TABLE statements for every table, in name order.
func (d *Definition) DDL() string {
	tables := append([]Table(nil), d.Tables...)
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })

	var b strings.Builder
	for i, t := range tables {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(t.createStatement())
		b.WriteString("\n")
	}
	return b.String()
}

func (t Table) createStatement() string {
	lines := []string{"\t" + store.QuoteIdent(IDColumn) + " INTEGER PRIMARY KEY AUTOINCREMENT"}
	for _, c := range t.Columns {
		lines = append(lines, "\t"+c.definition())
	}
	for _, group := range t.Unique {
		quoted := make([]string, len(group))
		for i, name := range group {
			quoted[i] = store.QuoteIdent(name)
		}
		lines = append(lines, "\tUNIQUE ("+strings.Join(quoted, ", ")+")")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n);",
		store.QuoteIdent(t.Name), strings.Join(lines, ",\n"))
}

// definition renders the column clause used by CREATE TABLE and
// ALTER TABLE ADD COLUMN.
func (c Column) definition() string {
	s := store.QuoteIdent(c.Name) + " " + columnTypes[c.Type]
	if c.NotNull {
		s += " NOT NULL"
	}
	if c.Default != nil {
		s += " DEFAULT " + literal(c.Default)
	}
	return s
}

func literal(v any) string {
	switch x := v.(type) {
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	default:
		return "NULL"
	}
}
