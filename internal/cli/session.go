package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/graphsql/internal/config"
	"github.com/roach88/graphsql/internal/connector"
	"github.com/roach88/graphsql/internal/executor"
	"github.com/roach88/graphsql/internal/queryaql"
	"github.com/roach88/graphsql/internal/schema"
	"github.com/roach88/graphsql/internal/store"
)

// session is the per-command wiring: config, logger, catalog store,
// connector pool and schema registry.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	out      *OutputFormatter
	store    *store.Store
	pool     *connector.Pool
	registry *schema.Registry

	// Set by the registry's change hook during refresh.
	changed bool
	saveErr error
}

func openSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, out.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Catalog.Path = opts.Database
	}
	if opts.Socket != "" {
		cfg.Connector.Socket = opts.Socket
	}
	if opts.Endpoint != "" {
		cfg.Connector.Endpoint = opts.Endpoint
	}

	level := cfg.LogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	logger.Debug("opening catalog store", "path", cfg.Catalog.Path)
	st, err := store.Open(cfg.Catalog.Path)
	if err != nil {
		return nil, out.Fail(ExitCommandError, ErrCodeStore, "failed to open catalog store", err)
	}

	s := &session{cfg: cfg, logger: logger, out: out, store: st}
	s.pool = connector.NewPool(cfg.Connector.PoolSize, func() (connector.Connector, error) {
		return s.dial(opts)
	})
	intro := schema.NewIntrospector(s.pool,
		schema.WithIntrospectorLogger(logger),
		schema.WithConcurrency(cfg.Schema.Concurrency))
	s.registry = schema.NewRegistry(intro,
		schema.WithRegistryLogger(logger),
		schema.OnChange(s.persist))
	return s, nil
}

func (s *session) dial(opts *RootOptions) (connector.Connector, error) {
	if opts.Dial != nil {
		return opts.Dial(s.cfg)
	}
	proxyOpts := []connector.ProxyOption{
		connector.WithTimeout(s.cfg.ConnectorTimeout()),
		connector.WithLogger(s.logger),
	}
	if s.cfg.Connector.Endpoint != "" {
		proxyOpts = append(proxyOpts, connector.WithEndpoint(s.cfg.Connector.Endpoint))
	}
	return connector.NewProxyClient(s.cfg.Connector.Socket, proxyOpts...), nil
}

// persist runs inside Registry.Refresh when the snapshot changed.
func (s *session) persist(snap *schema.Snapshot, cat *schema.Catalog) {
	s.changed = true
	created, err := s.store.SaveCatalog(context.Background(), snap, cat)
	if err != nil {
		s.saveErr = err
		return
	}
	s.logger.Info("catalog saved", "snapshot", cat.SnapshotID, "tables", len(cat.Tables()), "new", created)
}

func (s *session) Close() {
	s.pool.Close()
	if err := s.store.Close(); err != nil {
		s.logger.Warn("closing catalog store", "error", err)
	}
}

// refresh introspects the backend, persists a changed catalog and records
// the refresh. The stored catalog, if any, is installed first so an
// unchanged schema is not rewritten.
func (s *session) refresh(ctx context.Context) (*schema.Catalog, bool, error) {
	if _, err := s.registry.Current(); errors.Is(err, schema.ErrNoCatalog) {
		stored, err := s.store.LoadLatest(ctx)
		switch {
		case err == nil:
			s.registry.Install(stored)
		case !errors.Is(err, store.ErrNotFound):
			return nil, false, s.out.Fail(ExitCommandError, ErrCodeStore, "failed to load stored catalog", err)
		}
	}

	s.changed, s.saveErr = false, nil
	cat, err := s.registry.Refresh(ctx)
	if err != nil {
		if schema.IsConfigError(err) {
			return nil, false, s.out.Fail(ExitFailure, ErrCodeCatalog, "schema refresh rejected", err)
		}
		return nil, false, s.out.Fail(ExitFailure, ErrCodeConnection, "schema refresh failed", err)
	}
	if s.saveErr != nil {
		return nil, false, s.out.Fail(ExitCommandError, ErrCodeStore, "failed to save catalog", s.saveErr)
	}
	if err := s.store.RecordRefresh(ctx, cat.SnapshotID, cat.BuiltAt, s.changed); err != nil {
		return nil, false, s.out.Fail(ExitCommandError, ErrCodeStore, "failed to record refresh", err)
	}
	return cat, s.changed, nil
}

// catalog returns the stored catalog, refreshing from the backend when the
// store is empty.
func (s *session) catalog(ctx context.Context) (*schema.Catalog, error) {
	cat, err := s.store.LoadLatest(ctx)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Info("no stored catalog, refreshing from backend")
		cat, _, err = s.refresh(ctx)
		return cat, err
	}
	if err != nil {
		return nil, s.out.Fail(ExitCommandError, ErrCodeStore, "failed to load catalog", err)
	}
	s.registry.Install(cat)
	return cat, nil
}

// executor builds an Executor over the session pool. reg may be nil.
func (s *session) executor(reg prometheus.Registerer) *executor.Executor {
	compiler := queryaql.NewCompiler(
		queryaql.WithBatchSizes(s.cfg.Query.BatchSize, s.cfg.Query.BlobBatchSize),
		queryaql.WithLogger(s.logger))
	return executor.New(s.pool,
		executor.WithCompiler(compiler),
		executor.WithPopulationMaxAge(s.cfg.PopulationMaxAge()),
		executor.WithMetrics(executor.NewMetrics(reg)),
		executor.WithLogger(s.logger))
}

// lookup resolves a table name against cat, reporting unknown names as a
// command error.
func (s *session) lookup(cat *schema.Catalog, name string) error {
	if _, err := cat.Lookup(name); err != nil {
		return s.out.Fail(ExitCommandError, ErrCodeTable, "unknown table", err)
	}
	return nil
}
