package app

import (
	"context"
	"errors"
	"fmt"

	"relquery/internal/config"
	"relquery/internal/dbexec"
	"relquery/internal/engine"
	"relquery/internal/hydrate"
	"relquery/internal/planner"
)

// ErrNotInitialized is returned by request methods called before Init.
var ErrNotInitialized = errors.New("app is not initialized")

func (a *App) newEngine(exec dbexec.QueryExecutor) (*engine.Engine, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	if !a.initialized {
		return nil, ErrNotInitialized
	}
	return engine.New(a.schema, exec, engine.Options{
		Dialect: a.dialect,
		Hydrate: hydrate.Options{
			FanOut:      a.cfg.Engine.FanOut,
			MaxInClause: a.cfg.Engine.MaxInClause,
		},
		Logger:  a.logger,
		Metrics: a.hydrationMetrics,
	}), nil
}

// Compile parses a JSON request and returns its primary query without
// running it.
func (a *App) Compile(body []byte) (planner.CompiledQuery, error) {
	eng, err := a.newEngine(nil)
	if err != nil {
		return planner.CompiledQuery{}, err
	}
	req, err := engine.ParseRequest(eng.Schema(), body)
	if err != nil {
		return planner.CompiledQuery{}, err
	}
	return eng.Compile(req)
}

// Execute parses a JSON request and runs it, with every query of the request
// on one pinned connection.
func (a *App) Execute(ctx context.Context, body []byte) ([]hydrate.Entity, error) {
	a.stateMu.Lock()
	db := a.db
	a.stateMu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("no database connection: %w", ErrNotInitialized)
	}

	sessionCfg := dbexec.SessionConfig{DB: db}
	if a.cfg.Database.DriverName() == config.DriverMySQL {
		sessionCfg.DatabaseName = a.effectiveDatabase
	}
	session := dbexec.NewSessionExecutor(sessionCfg)
	defer func() {
		_ = session.Close()
	}()

	eng, err := a.newEngine(session)
	if err != nil {
		return nil, err
	}
	req, err := engine.ParseRequest(eng.Schema(), body)
	if err != nil {
		return nil, err
	}
	return eng.FindMany(ctx, req)
}
