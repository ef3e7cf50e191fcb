package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultBusyTimeout is how long a connection waits for a lock.
const DefaultBusyTimeout = 5 * time.Second

// Config configures Open.
type Config struct {
	// Path is the database file. Created if it does not exist.
	Path string

	// Name and Version are handed to the schema collaborator.
	Name    string
	Version int

	// BusyTimeout defaults to DefaultBusyTimeout.
	BusyTimeout time.Duration

	// MaxOpenConns bounds the pool. The writable session holds one
	// connection while it is acquired, so values below 2 are raised to 2.
	MaxOpenConns int
}

// Store provides access to the embedded database.
type Store struct {
	db     *sql.DB
	cfg    Config
	schema Schema

	// writer is a one-slot semaphore guarding the writable session.
	writer chan struct{}

	ensured atomic.Bool
}

// Open creates or opens a SQLite database at cfg.Path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - busy timeout for lock contention
//   - Foreign key enforcement
//
// The schema is not applied here; it runs lazily on first handle
// acquisition. A nil schema skips that step.
func Open(cfg Config, schema Schema) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("failed to open database: empty path")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = DefaultBusyTimeout
	}
	if cfg.MaxOpenConns < 2 {
		cfg.MaxOpenConns = 2
	}

	db, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)

	return &Store{
		db:     db,
		cfg:    cfg,
		schema: schema,
		writer: make(chan struct{}, 1),
	}, nil
}

// dsn builds the go-sqlite3 connection string with per-connection pragmas.
func dsn(cfg Config) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_synchronous", "NORMAL")
	params.Set("_busy_timeout", fmt.Sprintf("%d", cfg.BusyTimeout.Milliseconds()))
	params.Set("_foreign_keys", "on")
	return "file:" + cfg.Path + "?" + params.Encode()
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer handles when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Config returns the effective configuration.
func (s *Store) Config() Config {
	return s.cfg
}

// Readable returns a handle on the connection pool.
// The schema is ensured first, so a fresh database has its tables.
func (s *Store) Readable(ctx context.Context) (Handle, error) {
	if !s.ensured.Load() {
		sess, err := s.Writable(ctx)
		if err != nil {
			return nil, err
		}
		if err := sess.Release(); err != nil {
			return nil, err
		}
	}
	return &reader{ops{ex: s.db}}, nil
}

// Writable acquires the writable session, blocking while another caller
// holds it. The first acquisition runs the schema collaborator. The caller
// must Release the session.
func (s *Store) Writable(ctx context.Context) (*Session, error) {
	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, &EngineError{Op: "acquire writable", Err: ctx.Err()}
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		<-s.writer
		return nil, &EngineError{Op: "acquire writable", Err: err}
	}

	if err := s.ensureSchema(ctx, conn); err != nil {
		conn.Close()
		<-s.writer
		return nil, err
	}

	return &Session{ops: ops{ex: conn}, conn: conn, store: s}, nil
}

// ensureSchema runs the schema collaborator once. The caller holds the
// writer slot, so at most one Ensure runs at a time; a failed Ensure is
// retried by the next acquisition.
func (s *Store) ensureSchema(ctx context.Context, conn *sql.Conn) error {
	if s.ensured.Load() {
		return nil
	}
	if s.schema != nil {
		if err := s.schema.Ensure(ctx, conn, s.cfg.Name, s.cfg.Version); err != nil {
			return &EngineError{Op: "ensure schema", Err: err}
		}
	}
	s.ensured.Store(true)
	return nil
}

// Tables lists user tables in name order.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	h, err := s.Readable(ctx)
	if err != nil {
		return nil, err
	}
	return h.Tables(ctx)
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
