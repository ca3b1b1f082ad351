// Package engine is the entry point for callers: it compiles find requests
// against a schema and executes them, hydrating selected relations.
package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"relquery/internal/dbexec"
	"relquery/internal/filter"
	"relquery/internal/hydrate"
	"relquery/internal/logging"
	"relquery/internal/observability"
	"relquery/internal/planner"
	"relquery/internal/schema"
	"relquery/internal/sqlutil"
)

// FindOptions describes one find request.
type FindOptions struct {
	Table string
	// Select lists the fields to return. Nil selects every scalar column and
	// no relations.
	Select  planner.Selection
	Where   filter.Node
	OrderBy []planner.OrderTerm
	Take    *int
	Skip    *int
}

// Options configures an Engine. The zero Dialect selects MySQL. Follow-ups
// log through the request-scoped logger unless Hydrate.Logger is set.
type Options struct {
	Dialect sqlutil.Dialect
	Hydrate hydrate.Options
	Logger  *logging.Logger
	Metrics *observability.HydrationMetrics
}

// Engine compiles and executes find requests. It is safe for concurrent use
// when the executor is.
type Engine struct {
	schema   *schema.Schema
	dialect  sqlutil.Dialect
	exec     dbexec.QueryExecutor
	hydrator *hydrate.Hydrator
	logger   *logging.Logger
	metrics  *observability.HydrationMetrics
}

// New creates an Engine over a resolved schema.
func New(s *schema.Schema, exec dbexec.QueryExecutor, opts Options) *Engine {
	if opts.Dialect.Name == "" {
		opts.Dialect = sqlutil.MySQL
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Hydrate.Metrics == nil {
		opts.Hydrate.Metrics = opts.Metrics
	}
	return &Engine{
		schema:   s,
		dialect:  opts.Dialect,
		exec:     exec,
		hydrator: hydrate.New(opts.Dialect, exec, opts.Hydrate),
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Schema returns the schema requests are resolved against.
func (e *Engine) Schema() *schema.Schema {
	return e.schema
}

// Compile builds the primary query for opts without executing anything.
// Nested relation selections are compiled too, so every compile error
// surfaces here rather than during hydration.
func (e *Engine) Compile(opts FindOptions) (planner.CompiledQuery, error) {
	table, err := e.schema.Table(opts.Table)
	if err != nil {
		return planner.CompiledQuery{}, err
	}
	return e.compile(table, opts)
}

func (e *Engine) compile(table *schema.Table, opts FindOptions) (planner.CompiledQuery, error) {
	q, err := planner.PlanFind(e.dialect, table, planner.Query{
		Select:  opts.Select,
		Where:   opts.Where,
		OrderBy: opts.OrderBy,
		Limit:   opts.Take,
		Offset:  opts.Skip,
	})
	if err != nil {
		return planner.CompiledQuery{}, err
	}
	if err := planner.CheckSelection(e.dialect, table, opts.Select); err != nil {
		return planner.CompiledQuery{}, err
	}
	return q, nil
}

// FindMany runs the primary query and hydrates the selected relations. The
// result is never nil.
func (e *Engine) FindMany(ctx context.Context, opts FindOptions) (rows []hydrate.Entity, err error) {
	start := time.Now()
	requestID := logging.GetRequestID(ctx)
	if requestID == "" {
		requestID = logging.NewRequestID()
		ctx = logging.WithRequestIDContext(ctx, requestID)
	}
	logger := e.logger.WithRequestID(requestID).WithFields(slog.String("table", opts.Table))
	ctx = logging.WithLogger(ctx, logger)

	ctx, span := observability.Tracer().Start(ctx, "engine.find_many", trace.WithAttributes(
		attribute.String("db.table", opts.Table),
		attribute.String("request.id", requestID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("find failed", slog.String("error", err.Error()))
		}
		e.metrics.RecordFind(ctx, opts.Table, time.Since(start), err == nil)
		span.End()
	}()

	table, err := e.schema.Table(opts.Table)
	if err != nil {
		return nil, err
	}
	q, err := e.compile(table, opts)
	if err != nil {
		return nil, err
	}

	logger.Debug("primary query", slog.String("sql", q.SQL), slog.Int("args", len(q.Args)))
	result, err := e.exec.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, &hydrate.ExecutionError{Table: table.Name, Err: err}
	}
	rows, err = dbexec.ScanRows(result, q.Columns)
	if err != nil {
		return nil, &hydrate.ExecutionError{Table: table.Name, Err: err}
	}
	if rows == nil {
		rows = []hydrate.Entity{}
	}

	if err := e.hydrator.HydrateSelection(ctx, table, rows, opts.Select); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("db.rows", len(rows)))
	logger.Debug("find completed",
		slog.Int("rows", len(rows)),
		slog.Duration("duration", time.Since(start)),
	)
	return rows, nil
}

// FindFirst is FindMany limited to one row. It returns nil when nothing
// matches.
func (e *Engine) FindFirst(ctx context.Context, opts FindOptions) (hydrate.Entity, error) {
	one := 1
	opts.Take = &one
	rows, err := e.FindMany(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}
