package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	_ "modernc.org/sqlite"

	"relquery/internal/config"
	"relquery/internal/introspection"
	"relquery/internal/logging"
	"relquery/internal/naming"
	"relquery/internal/observability"
	"relquery/internal/schema"
)

// InitLogger builds the process logger and, when log export is enabled, the
// OTLP logger provider feeding it.
func InitLogger(ctx context.Context, cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(ctx, observabilityConfig(cfg, logsConfig))
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func observabilityConfig(cfg *config.Config, otlp config.OTLPConfig) observability.Config {
	return observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:          otlp.Endpoint,
			Protocol:          otlp.Protocol,
			Insecure:          otlp.Insecure,
			TLSCertFile:       otlp.TLSCertFile,
			TLSClientCertFile: otlp.TLSClientCertFile,
			TLSClientKeyFile:  otlp.TLSClientKeyFile,
			Headers:           otlp.Headers,
			Timeout:           otlp.Timeout,
			Compression:       otlp.Compression,
			RetryEnabled:      otlp.RetryEnabled,
			RetryMaxAttempts:  otlp.RetryMaxAttempts,
		},
	}
}

// metricsEnabled reports whether metrics are collected; they are only
// exported through the textfile written on shutdown.
func metricsEnabled(cfg *config.Config) bool {
	return cfg.Observability.MetricsFile != ""
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.HydrationMetrics, *observability.SchemaLoadMetrics, error) {
	if !metricsEnabled(cfg) {
		return nil, nil, nil, nil
	}

	logger.Debug("initializing OpenTelemetry metrics",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("metrics_file", cfg.Observability.MetricsFile),
	)

	meterProvider, err := observability.InitMeterProvider(observabilityConfig(cfg, config.OTLPConfig{}))
	if err != nil {
		return nil, nil, nil, err
	}

	hydrationMetrics, err := observability.InitMetrics(logger.Logger)
	if err != nil {
		return nil, nil, nil, err
	}

	schemaLoadMetrics, err := observability.InitSchemaLoadMetrics(logger.Logger)
	if err != nil {
		return nil, nil, nil, err
	}

	return meterProvider, hydrationMetrics, schemaLoadMetrics, nil
}

func initTracing(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.GetTracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Bool("insecure", tracesConfig.Insecure),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)

	return observability.InitTracerProvider(ctx, observabilityConfig(cfg, tracesConfig))
}

// dbSystem returns the semantic-convention db.system value for a driver.
func dbSystem(driver string) string {
	switch driver {
	case config.DriverPostgres:
		return "postgresql"
	default:
		return driver
	}
}

func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	driver := cfg.Database.DriverName()

	if driver == config.DriverMySQL {
		// Register custom TLS configuration if needed (for verify-ca/verify-full modes)
		if err := cfg.Database.RegisterTLS(); err != nil {
			return nil, nil, fmt.Errorf("failed to register database TLS config: %w", err)
		}
	}
	dsn := cfg.Database.DSN()

	if !metricsEnabled(cfg) && !cfg.Observability.TracingEnabled {
		db, err := sql.Open(driver, dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, nil, nil
	}

	system := semconv.DBSystemKey.String(dbSystem(driver))
	opts := []otelsql.Option{
		otelsql.WithAttributes(system),
	}
	if cfg.Observability.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{
			DisableErrSkip: true,
		}))
	}

	db, err := otelsql.Open(driver, dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var dbStatsReg interface{ Unregister() error }
	if metricsEnabled(cfg) {
		dbStatsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(system))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	}

	logger.Debug("database instrumentation enabled",
		slog.Bool("metrics", metricsEnabled(cfg)),
		slog.Bool("tracing", cfg.Observability.TracingEnabled),
	)
	return db, dbStatsReg, nil
}

func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB, effectiveDatabase string) error {
	db.SetMaxOpenConns(cfg.Database.Pool.MaxOpen)
	db.SetMaxIdleConns(cfg.Database.Pool.MaxIdle)
	db.SetConnMaxLifetime(cfg.Database.Pool.MaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return err
	}

	logger.Debug("connected to database",
		slog.String("database_effective", effectiveDatabase),
		slog.Int("pool_max_open", cfg.Database.Pool.MaxOpen),
		slog.Int("pool_max_idle", cfg.Database.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", cfg.Database.Pool.MaxLifetime),
	)
	return nil
}

// loadSchema reads the schema file, or introspects db when configured.
func loadSchema(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB, effectiveDatabase string, metrics *observability.SchemaLoadMetrics) (*schema.Schema, error) {
	start := time.Now()
	source := "file"

	var s *schema.Schema
	var err error
	if cfg.Schema.Introspect {
		source = "introspection"
		s, err = introspection.Introspect(ctx, db, introspection.Options{
			DatabaseName: effectiveDatabase,
			Namer:        naming.New(cfg.Naming, logger.Logger),
			UUIDColumns:  cfg.Schema.UUIDColumns,
			Filter: introspection.Filter{
				AllowTables:  cfg.Schema.AllowTables,
				DenyTables:   cfg.Schema.DenyTables,
				AllowColumns: cfg.Schema.AllowColumns,
				DenyColumns:  cfg.Schema.DenyColumns,
			},
			Logger: logger.Logger,
		})
	} else {
		s, err = schema.Load(cfg.Schema.File)
	}
	duration := time.Since(start)
	metrics.RecordLoad(ctx, duration, err == nil, source)
	if err != nil {
		return nil, err
	}

	logger.Info("schema loaded",
		slog.String("source", source),
		slog.Int("tables", len(s.Tables())),
		slog.Duration("duration", duration),
	)
	return s, nil
}
