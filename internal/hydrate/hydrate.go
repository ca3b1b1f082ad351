// Package hydrate loads selected relations for already fetched rows and
// attaches them in memory. Each relation path costs one batched follow-up
// query per chunk of parent keys, however many parents there are.
package hydrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"relquery/internal/dbexec"
	"relquery/internal/logging"
	"relquery/internal/observability"
	"relquery/internal/planner"
	"relquery/internal/schema"
	"relquery/internal/sqlutil"
)

// Entity is one fetched row keyed by property name. The hydrator only adds
// relation properties to it.
type Entity = map[string]any

const (
	DefaultFanOut      = 4
	DefaultMaxInClause = 1000
)

// Options tunes a Hydrator. Zero values select the defaults.
type Options struct {
	// FanOut bounds how many sibling relations load concurrently.
	FanOut int
	// MaxInClause caps the parent keys bound into one follow-up query.
	MaxInClause int
	Logger      *logging.Logger
	Metrics     *observability.HydrationMetrics
	// OnCompositeFallback receives composite key diagnostics. It may be
	// called from several goroutines.
	OnCompositeFallback func(CompositeKeyFallback)
}

// Hydrator resolves relation selections against a store.
type Hydrator struct {
	dialect sqlutil.Dialect
	exec    dbexec.QueryExecutor
	opts    Options
}

// New creates a Hydrator issuing follow-ups through exec.
func New(d sqlutil.Dialect, exec dbexec.QueryExecutor, opts Options) *Hydrator {
	if opts.FanOut <= 0 {
		opts.FanOut = DefaultFanOut
	}
	if opts.MaxInClause <= 0 {
		opts.MaxInClause = DefaultMaxInClause
	}
	return &Hydrator{dialect: d, exec: exec, opts: opts}
}

// Hydrate loads one relation of table for rows and attaches it under the
// relation name. Rows must carry the relation's local key properties.
func (h *Hydrator) Hydrate(ctx context.Context, table *schema.Table, rows []Entity, relation string, spec planner.RelationSelect) error {
	rel := table.Relation(relation)
	if rel == nil {
		return schema.UnknownField(table.Name, relation)
	}
	if len(rows) == 0 {
		return nil
	}
	a, err := h.load(ctx, rel.Name, rel, spec, rows)
	if err != nil {
		return err
	}
	a.apply(rows)
	return nil
}

// HydrateSelection loads every relation named in sel, recursing into nested
// selections. Nothing is attached unless every follow-up succeeds.
func (h *Hydrator) HydrateSelection(ctx context.Context, table *schema.Table, rows []Entity, sel planner.Selection) error {
	return h.hydrateAt(ctx, "", table, rows, sel)
}

func (h *Hydrator) hydrateAt(ctx context.Context, prefix string, table *schema.Table, rows []Entity, sel planner.Selection) error {
	rels, specs, err := sel.Relations(table)
	if err != nil {
		return err
	}
	if len(rels) == 0 || len(rows) == 0 {
		return nil
	}

	attachments := make([]attachment, len(rels))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.opts.FanOut)
	for i, rel := range rels {
		g.Go(func() error {
			a, err := h.load(gctx, joinPath(prefix, rel.Name), rel, specs[i], rows)
			if err != nil {
				return err
			}
			attachments[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, a := range attachments {
		a.apply(rows)
	}
	return nil
}

// attachment holds the computed value of one relation property per row.
type attachment struct {
	field  string
	values []any
}

func (a attachment) apply(rows []Entity) {
	for i, row := range rows {
		row[a.field] = a.values[i]
	}
}

func (h *Hydrator) logger(ctx context.Context) *logging.Logger {
	if h.opts.Logger != nil {
		return h.opts.Logger
	}
	return logging.FromContext(ctx)
}

// load fetches rel for rows and computes, without mutating rows, the value
// each row receives.
func (h *Hydrator) load(ctx context.Context, path string, rel *schema.Relation, spec planner.RelationSelect, rows []Entity) (attachment, error) {
	ctx, span := observability.Tracer().Start(ctx, "hydrate.relation", trace.WithAttributes(
		attribute.String("relation.path", path),
		attribute.String("relation.kind", rel.Kind.String()),
		attribute.String("relation.target", rel.Target),
	))
	defer span.End()

	a, err := h.loadRelation(ctx, path, rel, spec, rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return a, err
}

func (h *Hydrator) loadRelation(ctx context.Context, path string, rel *schema.Relation, spec planner.RelationSelect, rows []Entity) (attachment, error) {
	localNames := schema.Names(rel.LocalColumns())
	rowKeys := make([][]any, len(rows))
	seen := make(map[string]bool)
	var distinct [][]any
	for i, row := range rows {
		key, ok, err := keyTuple(row, localNames)
		if err != nil {
			return attachment{}, fmt.Errorf("relation %s: %w", path, err)
		}
		if !ok {
			continue
		}
		rowKeys[i] = key
		if k := keyString(key); !seen[k] {
			seen[k] = true
			distinct = append(distinct, key)
		}
	}

	var fetched []Entity
	for _, chunk := range chunkKeys(distinct, h.opts.MaxInClause) {
		batch, err := h.fetch(ctx, path, rel, spec, chunk)
		if err != nil {
			return attachment{}, err
		}
		fetched = append(fetched, batch...)
	}

	if len(fetched) > 0 {
		if err := h.hydrateAt(ctx, path, rel.TargetTable(), fetched, spec.Select); err != nil {
			return attachment{}, err
		}
	}

	match := h.matcher(ctx, path, rel, len(localNames), len(distinct), fetched)
	values := make([]any, len(rows))
	for i, key := range rowKeys {
		var matches []Entity
		if key != nil {
			matches = match(key)
		}
		if rel.Kind.ToMany() {
			list := make([]Entity, 0, len(matches))
			values[i] = append(list, matches...)
			continue
		}
		if len(matches) > 0 {
			values[i] = matches[0]
		}
	}
	return attachment{field: rel.Name, values: values}, nil
}

// fetch runs one follow-up query for a chunk of parent keys.
func (h *Hydrator) fetch(ctx context.Context, path string, rel *schema.Relation, spec planner.RelationSelect, keys [][]any) ([]Entity, error) {
	q, err := planner.PlanRelationBatch(h.dialect, rel, spec, keys)
	if err != nil {
		return nil, err
	}
	if q.Empty() {
		return nil, nil
	}

	logger := h.logger(ctx)
	logger.Debug("relation follow-up",
		slog.String("path", path),
		slog.String("table", rel.Target),
		slog.Int("parent_keys", len(keys)),
		slog.String("sql", q.SQL),
	)

	start := time.Now()
	rows, err := h.exec.QueryContext(ctx, q.SQL, q.Args...)
	var scanned []Entity
	if err == nil {
		scanned, err = dbexec.ScanRows(rows, q.Columns)
	}
	h.opts.Metrics.RecordFollowup(ctx, rel.Kind.String(), time.Since(start), len(keys), len(scanned), err)
	if err != nil {
		return nil, wrapExecution(path, rel, err)
	}
	return scanned, nil
}

func wrapExecution(path string, rel *schema.Relation, err error) error {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return err
	}
	return &ExecutionError{Path: path, Relation: rel.Name, Table: rel.Target, Err: err}
}

// matcher indexes fetched rows by their correlation columns and strips
// those columns. Single-column keys use a map; wider keys a linear scan.
func (h *Hydrator) matcher(ctx context.Context, path string, rel *schema.Relation, width, parents int, fetched []Entity) func([]any) []Entity {
	aliases := planner.ParentAliases(width)
	keys := make([][]any, len(fetched))
	for i, row := range fetched {
		keys[i] = make([]any, width)
		for j, alias := range aliases {
			keys[i][j] = row[alias]
			delete(row, alias)
		}
	}

	if width == 1 {
		index := make(map[string][]Entity, len(fetched))
		for i, row := range fetched {
			k := keyString(keys[i])
			index[k] = append(index[k], row)
		}
		return func(key []any) []Entity {
			return index[keyString(key)]
		}
	}

	if parents > 0 {
		h.reportCompositeFallback(ctx, CompositeKeyFallback{
			Path:     path,
			Relation: rel.Name,
			Table:    rel.Target,
			Parents:  parents,
			Rows:     len(fetched),
		}, rel.Kind)
	}
	return func(key []any) []Entity {
		var out []Entity
		for i, candidate := range keys {
			if keysEqual(candidate, key) {
				out = append(out, fetched[i])
			}
		}
		return out
	}
}

func (h *Hydrator) reportCompositeFallback(ctx context.Context, diag CompositeKeyFallback, kind schema.RelationKind) {
	h.logger(ctx).Warn("composite key fallback: matching relation rows by linear scan",
		slog.String("path", diag.Path),
		slog.String("table", diag.Table),
		slog.Int("parents", diag.Parents),
		slog.Int("rows", diag.Rows),
	)
	h.opts.Metrics.RecordCompositeFallback(ctx, kind.String())
	if h.opts.OnCompositeFallback != nil {
		h.opts.OnCompositeFallback(diag)
	}
}

// keyTuple reads the key properties of row. ok is false when any part is
// null.
func keyTuple(row Entity, names []string) (key []any, ok bool, err error) {
	key = make([]any, len(names))
	for i, name := range names {
		v, present := row[name]
		if !present {
			return nil, false, fmt.Errorf("row has no value for key property %s", name)
		}
		if v == nil {
			return nil, false, nil
		}
		key[i] = v
	}
	return key, true, nil
}

// keyString renders a key so values read through different driver types
// (int vs int64) compare equal.
func keyString(key []any) string {
	var b strings.Builder
	for i, v := range key {
		if i > 0 {
			b.WriteByte(0)
		}
		fmt.Fprintf(&b, "%v", v)
	}
	return b.String()
}

func keysEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] == nil || b[i] == nil {
			return false
		}
		if fmt.Sprint(a[i]) != fmt.Sprint(b[i]) {
			return false
		}
	}
	return true
}

func chunkKeys(keys [][]any, size int) [][][]any {
	if len(keys) == 0 {
		return nil
	}
	chunks := make([][][]any, 0, (len(keys)+size-1)/size)
	for start := 0; start < len(keys); start += size {
		end := min(start+size, len(keys))
		chunks = append(chunks, keys[start:end])
	}
	return chunks
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
