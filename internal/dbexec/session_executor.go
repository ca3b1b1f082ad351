package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"relquery/internal/sqlutil"
)

// SessionExecutor runs every query of one request on a single pinned
// connection. Queries are serialized: a query waits until the previous Rows is
// closed, so concurrent callers share the session safely.
type SessionExecutor struct {
	db           *sql.DB
	databaseName string
	sem          chan struct{}
	conn         *sql.Conn
}

// SessionConfig controls session execution behavior.
type SessionConfig struct {
	DB *sql.DB
	// DatabaseName, when set, is selected with USE once the connection is pinned (MySQL/TiDB).
	DatabaseName string
}

// NewSessionExecutor creates an executor that pins a connection on first use.
// Close must be called to return the connection to the pool.
func NewSessionExecutor(cfg SessionConfig) *SessionExecutor {
	return &SessionExecutor{
		db:           cfg.DB,
		databaseName: cfg.DatabaseName,
		sem:          make(chan struct{}, 1),
	}
}

func (e *SessionExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	release := func() { <-e.sem }

	conn, err := e.pin(ctx)
	if err != nil {
		release()
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		release()
		return nil, NormalizeError(err)
	}
	return &sessionRows{Rows: rows, release: release}, nil
}

// Close returns the pinned connection to the pool. It waits for an open Rows.
func (e *SessionExecutor) Close() error {
	e.sem <- struct{}{}
	defer func() { <-e.sem }()
	if e.conn == nil {
		return nil
	}
	err := e.conn.Close()
	e.conn = nil
	return err
}

// pin must be called with the semaphore held.
func (e *SessionExecutor) pin(ctx context.Context) (*sql.Conn, error) {
	if e.conn != nil {
		return e.conn, nil
	}
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	if e.databaseName != "" {
		useSQL := fmt.Sprintf("USE %s", sqlutil.QuoteIdentifier(e.databaseName))
		if _, err := conn.ExecContext(ctx, useSQL); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to select database %s: %w", e.databaseName, err)
		}
	}
	e.conn = conn
	return conn, nil
}

type sessionRows struct {
	*sql.Rows
	once    sync.Once
	release func()
}

func (r *sessionRows) Close() error {
	defer r.once.Do(r.release)
	return r.Rows.Close()
}
