package schema

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Snapshotter produces schema snapshots. *Introspector implements it.
type Snapshotter interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Registry holds the process-wide catalog. Readers never block; Refresh
// builds a new catalog and swaps it in atomically.
type Registry struct {
	current atomic.Pointer[Catalog]

	mu       sync.Mutex // serializes refreshes
	source   Snapshotter
	now      func() time.Time
	logger   *slog.Logger
	onChange []func(*Snapshot, *Catalog)
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock sets the time source used to stamp catalogs.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// OnChange registers fn to run after a refresh installs a catalog with a new
// snapshot ID.
func OnChange(fn func(*Snapshot, *Catalog)) RegistryOption {
	return func(r *Registry) { r.onChange = append(r.onChange, fn) }
}

// NewRegistry creates an empty registry.
func NewRegistry(source Snapshotter, opts ...RegistryOption) *Registry {
	r := &Registry{
		source: source,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Current returns the installed catalog.
func (r *Registry) Current() (*Catalog, error) {
	c := r.current.Load()
	if c == nil {
		return nil, ErrNoCatalog
	}
	return c, nil
}

// Install replaces the current catalog, e.g. with one loaded from the store.
func (r *Registry) Install(c *Catalog) {
	r.current.Store(c)
}

// Refresh fetches a snapshot, builds a catalog and installs it. On error
// the previous catalog stays installed.
func (r *Registry) Refresh(ctx context.Context) (*Catalog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := r.source.Snapshot(ctx)
	if err != nil {
		r.logger.Error("schema refresh failed", "error", err)
		return nil, err
	}
	cat, err := Build(snap, r.now(), WithBuildLogger(r.logger))
	if err != nil {
		r.logger.Error("schema refresh failed", "error", err)
		return nil, err
	}

	prev := r.current.Swap(cat)
	if prev == nil || prev.SnapshotID != cat.SnapshotID {
		for _, fn := range r.onChange {
			fn(snap, cat)
		}
	}
	return cat, nil
}
