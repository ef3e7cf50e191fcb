package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hashicorp/go-multierror"
)

// ErrNoTransaction is returned by MarkSuccessful and End outside a
// transaction.
var ErrNoTransaction = errors.New("no transaction in progress")

// ErrSessionReleased is returned when a released session is reused.
var ErrSessionReleased = errors.New("session already released")

// ErrNestedScopeFailed is returned by the outermost End when it was marked
// successful but a nested scope was not, and the transaction rolled back.
var ErrNestedScopeFailed = errors.New("nested transaction scope failed")

// Session is the writable handle. It is not safe for concurrent use; the
// store hands it to one caller at a time.
type Session struct {
	ops
	conn  *sql.Conn
	store *Store

	frames   []frame
	released bool
}

// frame is one nesting level of a transaction.
type frame struct {
	successful  bool
	childFailed bool
}

// InTransaction reports whether a transaction scope is open.
func (s *Session) InTransaction() bool {
	return len(s.frames) > 0
}

// Depth returns the number of open transaction scopes.
func (s *Session) Depth() int {
	return len(s.frames)
}

// BeginNonExclusive opens a transaction scope. The outermost scope takes
// the write lock immediately (BEGIN IMMEDIATE) so readers keep going under
// WAL while writers queue on the busy timeout.
func (s *Session) BeginNonExclusive(ctx context.Context) error {
	if s.released {
		return &EngineError{Op: "begin", Err: ErrSessionReleased}
	}
	if len(s.frames) == 0 {
		if _, err := s.conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
			return &EngineError{Op: "begin", Err: err}
		}
	}
	s.frames = append(s.frames, frame{})
	return nil
}

// MarkSuccessful marks the innermost scope as successful. No statements may
// be issued between MarkSuccessful and End.
func (s *Session) MarkSuccessful() error {
	if len(s.frames) == 0 {
		return &EngineError{Op: "mark successful", Err: ErrNoTransaction}
	}
	s.frames[len(s.frames)-1].successful = true
	return nil
}

// End closes the innermost scope. The outermost End commits when every
// scope was marked successful and rolls back otherwise; a scope marked
// successful whose child failed reports ErrNestedScopeFailed. COMMIT and
// ROLLBACK run even when ctx is already cancelled.
func (s *Session) End(ctx context.Context) error {
	if len(s.frames) == 0 {
		return &EngineError{Op: "end", Err: ErrNoTransaction}
	}
	top := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	ok := top.successful && !top.childFailed

	if len(s.frames) > 0 {
		if !ok {
			s.frames[len(s.frames)-1].childFailed = true
		}
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	if ok {
		if _, err := s.conn.ExecContext(ctx, "COMMIT"); err != nil {
			var result error = &EngineError{Op: "commit", Err: err}
			if _, rbErr := s.conn.ExecContext(ctx, "ROLLBACK"); rbErr != nil {
				result = multierror.Append(result, &EngineError{Op: "rollback", Err: rbErr})
			}
			return result
		}
		return nil
	}
	if _, err := s.conn.ExecContext(ctx, "ROLLBACK"); err != nil {
		return &EngineError{Op: "rollback", Err: err}
	}
	if top.successful && top.childFailed {
		return &EngineError{Op: "commit", Err: ErrNestedScopeFailed}
	}
	return nil
}

// Release returns the session to the store. An unbalanced transaction is
// rolled back first. Release is idempotent.
func (s *Session) Release() error {
	if s.released {
		return nil
	}
	s.released = true

	var result error
	if len(s.frames) > 0 {
		s.frames = nil
		if _, err := s.conn.ExecContext(context.Background(), "ROLLBACK"); err != nil {
			result = multierror.Append(result, &EngineError{Op: "rollback", Err: err})
		}
	}
	if err := s.conn.Close(); err != nil {
		result = multierror.Append(result, &EngineError{Op: "release", Err: err})
	}
	<-s.store.writer
	return result
}
