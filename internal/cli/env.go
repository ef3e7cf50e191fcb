package cli

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/roach88/resdb/internal/address"
	"github.com/roach88/resdb/internal/config"
	"github.com/roach88/resdb/internal/notify"
	"github.com/roach88/resdb/internal/provider"
	"github.com/roach88/resdb/internal/schema"
	"github.com/roach88/resdb/internal/store"
)

// env is what a data command runs against. Changes reach the command's
// output through registry subscriptions made by watch, and the log through
// the hub.
type env struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *store.Store
	provider *provider.Provider
	registry *notify.Registry
	hub      *notify.Hub

	mu      sync.Mutex
	changes []changeResult
	watched map[address.Address]bool
	unsubs  []func()
}

// changeResult is a delivered notification as reported in command output.
type changeResult struct {
	Address string `json:"address"`
	Count   int64  `json:"count"`
}

// loadConfig reads the config file named by --config, or the defaults,
// and applies the flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if opts.Database != "" {
		cfg.Database.Path = opts.Database
		cfg.Database.Name = ""
	}
	if opts.SchemaPath != "" {
		cfg.Schema.Path = opts.SchemaPath
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openEnv loads the configuration and schema and opens the store. Errors
// are reported through out.
func openEnv(cmd *cobra.Command, opts *RootOptions, out *OutputFormatter) (*env, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, out.FailWith(ErrCodeConfig, err)
	}
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, out.FailWith(ErrCodeConfig, err)
	}
	logger := NewLogger(cmd.ErrOrStderr(), level)

	def, err := LoadSchema(cfg.Schema.Path)
	if err != nil {
		return nil, out.FailWith(ErrCodeSchema, err)
	}
	// A nil *Definition must not become a non-nil store.Schema.
	var sch store.Schema
	if def != nil {
		sch = def
	}

	st, err := store.Open(cfg.Store(), sch)
	if err != nil {
		return nil, out.Fail(err)
	}

	e := &env{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		registry: notify.NewRegistry(logger),
		hub:      notify.NewHub(logger),
		watched:  make(map[address.Address]bool),
	}
	e.unsubs = append(e.unsubs, e.hub.SubscribeAll(e.log))
	e.provider = provider.New(st,
		notify.Multi{e.registry, e.hub},
		provider.WithCache(address.NewCache()),
		provider.WithLogger(logger),
	)
	logger.Debug("store opened", "path", cfg.Database.Path, "schema", cfg.Schema.Path)
	return e, nil
}

// watch records changes anywhere under a's scheme and authority.
func (e *env) watch(a address.Address) {
	root := address.New(a.Scheme(), a.Authority())
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.watched[root] {
		return
	}
	e.watched[root] = true
	e.unsubs = append(e.unsubs, e.registry.SubscribeDescendants(root, e.record))
}

func (e *env) record(c notify.Change) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changes = append(e.changes, changeResult{Address: c.Address.String(), Count: c.Count})
}

func (e *env) log(c notify.Change) {
	e.logger.Info("changed", "address", c.Address.String(), "count", c.Count, "seq", c.Seq)
}

// Changes returns the notifications delivered so far.
func (e *env) Changes() []changeResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]changeResult{}, e.changes...)
}

// Close waits for pending change logs, drops the subscriptions and closes
// the store.
func (e *env) Close() {
	e.hub.Drain()
	e.mu.Lock()
	unsubs := e.unsubs
	e.unsubs = nil
	e.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
	if err := e.store.Close(); err != nil {
		e.logger.Warn("close store", "error", err)
	}
}

// newFormatter builds the formatter for cmd's output streams.
func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// loadDefinition loads only the schema, for commands that never open the
// database.
func loadDefinition(opts *RootOptions) (*schema.Definition, string, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, ErrCodeConfig, err
	}
	def, err := LoadSchema(cfg.Schema.Path)
	if err != nil {
		return nil, ErrCodeSchema, err
	}
	if def == nil {
		return nil, ErrCodeSchema, fmt.Errorf("no schema configured: set schema.path or pass --schema")
	}
	return def, "", nil
}
