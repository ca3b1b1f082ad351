package app

import (
	"context"
	"fmt"
	"log/slog"
)

// Init initializes all runtime resources. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	meterProvider, hydrationMetrics, schemaLoadMetrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
		// Runs before the provider shuts down.
		path := a.cfg.Observability.MetricsFile
		cleanup.push("metrics textfile", func(_ context.Context) error {
			return meterProvider.WriteTextfile(path)
		})
	}

	tracerProvider, err := initTracing(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	needDB := !a.opts.Offline || a.cfg.Schema.Introspect
	if needDB {
		a.logger.Info("connecting to database",
			slog.String("driver", a.cfg.Database.DriverName()),
			slog.String("database_effective", a.effectiveDatabase),
			slog.Bool("dsn_present", a.cfg.Database.ConnectionString != ""),
		)

		db, dbStatsReg, err := connectDB(a.cfg, a.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		cleanup.push("database", func(_ context.Context) error {
			if dbStatsReg != nil {
				if err := dbStatsReg.Unregister(); err != nil {
					a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
				}
			}
			return db.Close()
		})

		if err := configureDatabase(ctx, a.cfg, a.logger, db, a.effectiveDatabase); err != nil {
			return fmt.Errorf("failed to verify database connection: %w", err)
		}

		a.stateMu.Lock()
		a.db = db
		a.dbStatsReg = dbStatsReg
		a.stateMu.Unlock()
	}

	s, err := loadSchema(ctx, a.cfg, a.logger, a.db, a.effectiveDatabase, schemaLoadMetrics)
	if err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.hydrationMetrics = hydrationMetrics
	a.schemaLoadMetrics = schemaLoadMetrics
	a.tracerProvider = tracerProvider
	a.schema = s
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
