// Package app wires configuration, observability, the store connection and
// the schema into a runnable relquery engine.
package app

import (
	"database/sql"
	"fmt"
	"sync"

	"relquery/internal/config"
	"relquery/internal/logging"
	"relquery/internal/observability"
	"relquery/internal/schema"
	"relquery/internal/sqlutil"
)

// Options controls which resources Init acquires.
type Options struct {
	// Offline skips the store connection when the schema comes from a file.
	// Execute is unavailable; Compile still works.
	Offline bool
}

// App owns runtime resources for one relquery process.
type App struct {
	cfg    *config.Config
	logger *logging.Logger
	opts   Options

	loggerProvider *observability.LoggerProvider

	effectiveDatabase string
	dialect           sqlutil.Dialect

	meterProvider     *observability.MeterProvider
	hydrationMetrics  *observability.HydrationMetrics
	schemaLoadMetrics *observability.SchemaLoadMetrics
	tracerProvider    *observability.TracerProvider

	db         *sql.DB
	dbStatsReg interface{ Unregister() error }
	schema     *schema.Schema

	cleanup cleanupStack

	stateMu     sync.Mutex
	initialized bool

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	effectiveDatabase, err := cfg.Database.EffectiveDatabaseName()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve effective database configuration: %w", err)
	}
	dialect, err := sqlutil.DialectByName(cfg.DialectName())
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:               cfg,
		logger:            logger,
		opts:              opts,
		effectiveDatabase: effectiveDatabase,
		dialect:           dialect,
	}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Schema returns the loaded schema, or nil before Init.
func (a *App) Schema() *schema.Schema {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.schema
}

// Dialect returns the SQL dialect requests compile to.
func (a *App) Dialect() sqlutil.Dialect {
	return a.dialect
}
