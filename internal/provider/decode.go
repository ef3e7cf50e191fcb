package provider

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/roach88/resdb/internal/address"
)

// operationDoc is the YAML form of an Operation:
//
//	- op: insert
//	  address: content://app/notes
//	  values: {title: first}
//	- op: update
//	  address: content://app/tags
//	  values: {label: pinned}
//	  where: note_id = ?
//	  args: [0]
//	  arg_refs: {0: 0}
//	- op: assert
//	  address: content://app/notes
//	  where: title = ?
//	  args: [first]
//	  expect_count: 1
type operationDoc struct {
	Op          string         `yaml:"op"`
	Address     string         `yaml:"address"`
	Values      map[string]any `yaml:"values,omitempty"`
	Where       string         `yaml:"where,omitempty"`
	Args        []any          `yaml:"args,omitempty"`
	ValueRefs   map[string]int `yaml:"value_refs,omitempty"`
	ArgRefs     map[int]int    `yaml:"arg_refs,omitempty"`
	ExpectCount *int64         `yaml:"expect_count,omitempty"`
}

// DecodeOperations reads a YAML list of operations.
func DecodeOperations(r io.Reader) ([]Operation, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read operations: %w", err)
	}

	var docs []operationDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&docs); err != nil {
		if errors.Is(err, io.EOF) {
			return []Operation{}, nil
		}
		return nil, fmt.Errorf("parse operations: %w", err)
	}

	ops := make([]Operation, 0, len(docs))
	for i, doc := range docs {
		op, err := doc.operation()
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (d operationDoc) operation() (Operation, error) {
	a, err := address.Parse(d.Address)
	if err != nil {
		return Operation{}, err
	}

	var op Operation
	switch d.Op {
	case "insert":
		op = NewInsert(a)
	case "update":
		op = NewUpdate(a)
	case "delete":
		op = NewDelete(a)
	case "assert":
		op = NewAssertQuery(a)
	default:
		return Operation{}, fmt.Errorf("unknown op %q", d.Op)
	}

	if len(d.Values) > 0 {
		op = op.WithValues(Values(d.Values))
	}
	if d.Where != "" || len(d.Args) > 0 {
		op = op.WithSelection(d.Where, d.Args...)
	}
	for col, ref := range d.ValueRefs {
		op = op.WithValueBackReference(col, ref)
	}
	for arg, ref := range d.ArgRefs {
		op = op.WithSelectionBackReference(arg, ref)
	}
	if d.ExpectCount != nil {
		op = op.WithExpectedCount(*d.ExpectCount)
	}
	return op, nil
}
