package cmd

import (
	"context"
	"fmt"

	"github.com/wesm/vaultsearch/internal/metrics"
	"github.com/wesm/vaultsearch/internal/query"
	"github.com/wesm/vaultsearch/internal/searchview"
	"github.com/wesm/vaultsearch/internal/store"
)

// openStore opens the configured database and brings its schema up to date.
func openStore() (*store.Store, error) {
	dbPath := cfg.DatabasePath()
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := s.InitSchema(); err != nil {
		s.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// openEngine opens the store and a query engine over it. The caller closes
// the returned store.
func openEngine(ctx context.Context) (*store.Store, *query.SQLiteEngine, error) {
	s, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	engine := query.NewSQLiteEngine(s, logger)
	if _, err := engine.RefreshCoverage(ctx); err != nil {
		s.Close()
		return nil, nil, fmt.Errorf("load index coverage: %w", err)
	}
	return s, engine, nil
}

// viewOptions returns the search view options shared by every command that
// runs a view. m may be nil.
func viewOptions(ctx context.Context, engine query.Engine, confirmer searchview.Confirmer, m *metrics.Metrics) searchview.Options {
	return searchview.Options{
		Context:   ctx,
		Engine:    engine,
		Confirmer: confirmer,
		Tier:      searchview.StaticTier{Restricted: cfg.Account.Restricted},
		PageSize:  cfg.Search.PageSize,
		Logger:    logger,
		Metrics:   m,
	}
}

// startView runs a search view program in the background.
func startView(opts searchview.Options) (*searchview.Program, error) {
	model, err := searchview.New(opts)
	if err != nil {
		return nil, fmt.Errorf("create search view: %w", err)
	}
	prog := searchview.NewProgram(opts.Context, model)
	prog.Start()
	return prog, nil
}

// newPromptConfirmer returns a confirmer whose questions are answered by a
// remote client.
func newPromptConfirmer() (*searchview.PromptConfirmer, error) {
	timeout, err := cfg.PromptTimeout()
	if err != nil {
		return nil, err
	}
	return searchview.NewPromptConfirmer(timeout), nil
}
