package provider

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/roach88/resdb/internal/address"
	"github.com/roach88/resdb/internal/notify"
	"github.com/roach88/resdb/internal/store"
)

// Values maps column names to values for insert and update.
type Values = store.Values

// Gateway is the engine boundary. *store.Store implements it.
type Gateway interface {
	Readable(ctx context.Context) (store.Handle, error)
	Writable(ctx context.Context) (*store.Session, error)
}

// IDGenerator produces correlation ids for batches and bulk inserts.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 batch ids.
// Safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Provider exposes the database through resource addresses.
// It is safe for concurrent use, except for views returned by Bind,
// which belong to the goroutine holding the session.
type Provider struct {
	gw       Gateway
	notifier notify.Notifier
	cache    *address.Cache
	logger   *slog.Logger
	seq      notify.Sequencer
	ids      IDGenerator

	// session is set on views returned by Bind.
	session *store.Session
}

// Option configures a Provider.
type Option func(*Provider)

// WithCache memoizes address lookups in c.
func WithCache(c *address.Cache) Option {
	return func(p *Provider) { p.cache = c }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithSequencer sets the source of Change.Seq. Defaults to a fresh
// notify.Clock.
func WithSequencer(s notify.Sequencer) Option {
	return func(p *Provider) { p.seq = s }
}

// WithIDGenerator sets the batch id source. Defaults to UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(p *Provider) { p.ids = g }
}

// New creates a provider over gw. A nil notifier discards changes.
func New(gw Gateway, notifier notify.Notifier, opts ...Option) *Provider {
	if notifier == nil {
		notifier = notify.Discard
	}
	p := &Provider{
		gw:       gw,
		notifier: notifier,
		logger:   slog.Default(),
		seq:      notify.NewClock(),
		ids:      UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Bind returns a view of p whose operations run on sess instead of
// acquiring the writable session. Operations on the view observe sess's
// transaction state: while sess is in a transaction they neither begin
// their own nor notify.
func (p *Provider) Bind(sess *store.Session) *Provider {
	view := *p
	view.session = sess
	return &view
}

// resolve classifies a through the cache.
func (p *Provider) resolve(a address.Address) (address.Resolved, error) {
	return p.cache.Resolve(a)
}

// readable returns the bound session or a pooled read handle.
func (p *Provider) readable(ctx context.Context) (store.Handle, error) {
	if p.session != nil {
		return p.session, nil
	}
	return p.gw.Readable(ctx)
}

// writable returns the bound session, or acquires the writable session
// together with the function that releases it.
func (p *Provider) writable(ctx context.Context) (*store.Session, func(), error) {
	if p.session != nil {
		return p.session, func() {}, nil
	}
	sess, err := p.gw.Writable(ctx)
	if err != nil {
		return nil, nil, err
	}
	return sess, func() {
		if err := sess.Release(); err != nil {
			p.logger.Warn("release writable session", "error", err)
		}
	}, nil
}

// mutate runs fn on the writable session. owner reports whether the call
// owns the transaction context, that is whether the session was idle when
// fn started. Changes returned by an owning fn are emitted after the
// session is released; changes from a nested fn are discarded.
func (p *Provider) mutate(ctx context.Context, fn func(sess *store.Session, owner bool) ([]notify.Change, error)) error {
	sess, release, err := p.writable(ctx)
	if err != nil {
		return err
	}
	owner := !sess.InTransaction()
	changes, err := func() ([]notify.Change, error) {
		defer release()
		return fn(sess, owner)
	}()
	if err != nil {
		return err
	}
	if owner {
		p.emit(ctx, changes)
	}
	return nil
}

// emit stamps and delivers changes, skipping those without rows.
func (p *Provider) emit(ctx context.Context, changes []notify.Change) {
	for _, c := range changes {
		if c.Count <= 0 {
			continue
		}
		c.Seq = p.seq.Next()
		p.logger.DebugContext(ctx, "notify",
			"address", c.Address.String(),
			"count", c.Count,
			"seq", c.Seq)
		p.notifier.Notify(ctx, c)
	}
}

// transact runs fn in a transaction scope on sess. The scope is marked
// successful only if fn returns nil; a panicking fn ends the scope
// unmarked. An End failure is combined with fn's.
func (p *Provider) transact(ctx context.Context, sess *store.Session, fn func() error) (err error) {
	if err := sess.BeginNonExclusive(ctx); err != nil {
		return err
	}
	returned := false
	defer func() {
		if returned && err == nil {
			err = sess.MarkSuccessful()
		}
		failed := !returned || err != nil
		if endErr := sess.End(ctx); endErr != nil {
			if err == nil {
				err = endErr
			} else {
				err = multierror.Append(err, endErr)
			}
		}
		if failed && sess.Depth() == 0 {
			p.logger.WarnContext(ctx, "transaction rolled back", "error", err)
		}
	}()
	err = fn()
	returned = true
	return err
}

// target computes the filter and notification address for a mutation at
// a. Items ignore the caller's filter and match on _id; collections use
// it as given. Both notify at the base address, without id or query.
func (p *Provider) target(op string, a address.Address, r address.Resolved, where string, args []any) (string, []any, address.Address, error) {
	switch r.Kind {
	case address.Item:
		where, args = store.QuoteIdent(store.IDColumn)+" = ?", []any{r.ID}
	case address.Collection:
	default:
		return "", nil, address.Address{}, &RoutingError{Op: op, Address: a.String(), Reason: "unknown address kind"}
	}
	base, err := p.cache.Base(a)
	if err != nil {
		return "", nil, address.Address{}, err
	}
	return where, args, base, nil
}
