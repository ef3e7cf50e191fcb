// Package store is the gateway to the embedded SQLite engine.
//
// The store exposes two kinds of handle:
//   - Readable handles run on the connection pool and never hold a
//     transaction.
//   - The writable handle (*Session) is a single dedicated connection. Only
//     one session exists at a time; concurrent writers block in Writable
//     until the current session is released.
//
// # Nested Transactions
//
// A session supports reentrant transactions. Only the outermost
// BeginNonExclusive issues BEGIN IMMEDIATE and only the matching outermost
// End issues COMMIT or ROLLBACK. A nested scope that ends without
// MarkSuccessful dooms the whole transaction. InTransaction reports whether
// any scope is open, which is how callers detect an enclosing transaction.
//
// Every BeginNonExclusive must be paired with a deferred End.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout: Wait for locks (default 5 seconds)
//   - foreign_keys=ON: Enforce referential integrity
//
// Pragmas are set through the DSN so that every pooled connection gets them.
//
// # Schema
//
// Table creation is delegated to a Schema collaborator, invoked once on the
// first handle acquisition.
package store
