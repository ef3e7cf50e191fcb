package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/roach88/resdb/internal/provider"
)

// parseValues decodes a JSON object of column values. Numbers become
// int64 when integral and float64 otherwise; nested objects and arrays
// are rejected.
func parseValues(raw string) (provider.Values, error) {
	if strings.TrimSpace(raw) == "" {
		return provider.Values{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("invalid --values: %w", err)
	}
	return toValues(obj)
}

func toValues(obj map[string]any) (provider.Values, error) {
	values := make(provider.Values, len(obj))
	for col, v := range obj {
		scalar, err := toScalar(v)
		if err != nil {
			return nil, fmt.Errorf("value %s: %w", col, err)
		}
		values[col] = scalar
	}
	return values, nil
}

func toScalar(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool:
		return x, nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %s", x)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported value of type %T", v)
	}
}

// parseArgs converts --arg flags. Each is read as a JSON scalar when it
// parses as one and as a plain string otherwise, so 5 is an integer and
// '"5"' a string.
func parseArgs(raw []string) ([]any, error) {
	args := make([]any, len(raw))
	for i, s := range raw {
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil || dec.More() {
			args[i] = s
			continue
		}
		scalar, err := toScalar(v)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = scalar
	}
	return args, nil
}

// parseRows decodes a JSON array of row objects. Empty input is no rows.
func parseRows(data []byte) ([]provider.Values, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []provider.Values{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var objs []map[string]any
	if err := dec.Decode(&objs); err != nil {
		return nil, fmt.Errorf("invalid rows: %w", err)
	}
	rows := make([]provider.Values, len(objs))
	for i, obj := range objs {
		values, err := toValues(obj)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		rows[i] = values
	}
	return rows, nil
}

// readInput reads path, or stdin when path is "-".
func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
