package store

import "context"

// Schema creates and migrates tables. It is invoked once per Store, on the
// writable connection, before any handle is handed out.
type Schema interface {
	Ensure(ctx context.Context, ex Execer, name string, version int) error
}

// SchemaFunc adapts a function to the Schema interface.
type SchemaFunc func(ctx context.Context, ex Execer, name string, version int) error

// Ensure calls f.
func (f SchemaFunc) Ensure(ctx context.Context, ex Execer, name string, version int) error {
	return f(ctx, ex, name, version)
}
