// Package mysqlstore implements the storage interfaces against a
// MySQL-protocol server.
//
// Capabilities:
//   - Era registrations persisted in a saga_era metadata table
//   - Identity-scoped target scans built from null-safe (<=>) selectors
//   - Transient-error retry around exec and query statements (the single-row
//     era lookup in GetEra is not retried)
//   - OTel spans and metrics on the SQL surface
package mysqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	// MySQL driver for database/sql.
	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/saga/internal/storage"
)

// Store implements storage.Store over a MySQL-protocol connection.
type Store struct {
	db     *sql.DB
	closed atomic.Bool
}

// Config holds connection configuration.
type Config struct {
	// DSN is a go-sql-driver DSN, e.g. "user:pass@tcp(127.0.0.1:3306)/db".
	DSN string

	// MaxOpenConns caps the pool (0 = driver default).
	MaxOpenConns int

	// PingTimeout bounds the liveness check on open.
	PingTimeout time.Duration
}

// Open connects and ensures the era metadata table exists.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	pingTimeout := cfg.PingTimeout
	if pingTimeout == 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	s := &Store{db: db}
	if err := s.ensureEraTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// sqlTracer is the OTel tracer for SQL-level spans.
// It uses the global provider, which is a no-op until the embedding process
// installs one.
var sqlTracer = otel.Tracer("github.com/steveyegge/saga/storage/mysqlstore")

// sqlMetrics holds OTel metric instruments for the backend. Instruments are
// registered against the global delegating provider at init time.
var sqlMetrics struct {
	retryCount metric.Int64Counter
}

func init() {
	m := otel.Meter("github.com/steveyegge/saga/storage/mysqlstore")
	sqlMetrics.retryCount, _ = m.Int64Counter("sg.db.retry_count",
		metric.WithDescription("SQL operations retried due to transient errors"),
		metric.WithUnit("{retry}"),
	)
}

// spanSQL truncates a SQL string to keep spans readable.
func spanSQL(q string) string {
	if len(q) > 300 {
		return q[:300] + "…"
	}
	return q
}

// endSpan records an error (if any) and ends the span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// isTransient reports whether an error is worth retrying: lock contention,
// deadlocks, and connection hiccups.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"deadlock",
		"lock wait timeout",
		"try restarting transaction",
		"connection refused",
		"invalid connection",
		"broken pipe",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// withRetry runs fn with bounded exponential backoff on transient errors.
func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if isTransient(err) {
			sqlMetrics.retryCount.Add(ctx, 1)
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

// execContext wraps db.ExecContext with retry and a client span.
func (s *Store) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, span := sqlTracer.Start(ctx, "mysql.exec",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "mysql"),
			attribute.String("db.operation", "exec"),
			attribute.String("db.statement", spanSQL(query)),
		),
	)
	var result sql.Result
	err := s.withRetry(ctx, func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	endSpan(span, err)
	return result, err
}

// queryContext wraps db.QueryContext with retry and a client span.
func (s *Store) queryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	ctx, span := sqlTracer.Start(ctx, "mysql.query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "mysql"),
			attribute.String("db.operation", "query"),
			attribute.String("db.statement", spanSQL(query)),
		),
	)
	var rows *sql.Rows
	err := s.withRetry(ctx, func() error {
		var queryErr error
		rows, queryErr = s.db.QueryContext(ctx, query, args...) // #nosec G201 -- identifiers quoted via quoteIdent
		return queryErr
	})
	endSpan(span, err)
	return rows, err
}

// quoteIdent backtick-quotes a SQL identifier.
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

var _ storage.Store = (*Store)(nil)
