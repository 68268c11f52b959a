// Package database owns the connection pool and the single function through
// which every statement reaches the store.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
)

// Kind is the statement class derived from the leading keyword.
type Kind string

const (
	KindRead   Kind = "read"
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

var (
	// ErrPoolExhausted means no pooled connection became free within the
	// acquire timeout.
	ErrPoolExhausted = errors.New("database: connection pool exhausted")
	// ErrClosed is returned once the executor has been torn down.
	ErrClosed = errors.New("database: executor closed")
	// ErrDuplicate tags unique-key violations.
	ErrDuplicate = errors.New("database: duplicate key")
)

// QueryError wraps every failure coming out of Execute.
type QueryError struct {
	Kind Kind
	Err  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("database: %s statement failed: %v", e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Row is one result row keyed by column name.  Driver []byte values are
// converted to string.
type Row map[string]any

// Result is the normalized outcome of Execute.  Only the field matching the
// statement kind the caller issued is meaningful: InsertedID for INSERT,
// Affected for UPDATE/DELETE, Rows for everything else.
type Result struct {
	Kind       Kind
	Rows       []Row
	Affected   *int64
	InsertedID *int64
}

// Classify looks at the first keyword of stmt only.
func Classify(stmt string) Kind {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return KindRead
	}
	switch strings.ToUpper(fields[0]) {
	case "INSERT":
		return KindInsert
	case "UPDATE":
		return KindUpdate
	case "DELETE":
		return KindDelete
	}
	return KindRead
}

// Executor runs parameterized statements against a bounded pool.  Callers
// pass every value through args; stmt is never built from request data.
type Executor struct {
	db             *sql.DB
	acquireTimeout time.Duration
	log            zerolog.Logger
	closed         atomic.Bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithAcquireTimeout bounds how long Execute waits for a free connection.
func WithAcquireTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.acquireTimeout = d
		}
	}
}

// WithLogger sets the fallback logger used when the request context carries none.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// NewExecutor wraps an opened pool.
func NewExecutor(db *sql.DB, opts ...Option) *Executor {
	e := &Executor{db: db, acquireTimeout: 5 * time.Second, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute borrows one connection, runs stmt with args, returns the connection
// and shapes the driver result by statement kind.  It never retries.
func (e *Executor) Execute(ctx context.Context, stmt string, args ...any) (Result, error) {
	kind := Classify(stmt)
	res := Result{Kind: kind}

	if e.closed.Load() {
		return res, e.fail(ctx, kind, ErrClosed)
	}
	conn, err := e.acquire(ctx)
	if err != nil {
		return res, e.fail(ctx, kind, err)
	}
	defer conn.Close()

	switch kind {
	case KindInsert:
		r, err := conn.ExecContext(ctx, stmt, args...)
		if err != nil {
			return res, e.fail(ctx, kind, err)
		}
		id, err := r.LastInsertId()
		if err != nil {
			return res, e.fail(ctx, kind, err)
		}
		res.InsertedID = &id
	case KindUpdate, KindDelete:
		r, err := conn.ExecContext(ctx, stmt, args...)
		if err != nil {
			return res, e.fail(ctx, kind, err)
		}
		n, err := r.RowsAffected()
		if err != nil {
			return res, e.fail(ctx, kind, err)
		}
		res.Affected = &n
	default:
		rows, err := queryRows(ctx, conn, stmt, args)
		if err != nil {
			return res, e.fail(ctx, kind, err)
		}
		res.Rows = rows
	}
	return res, nil
}

// Ping checks that a connection can be borrowed and reaches the store.
func (e *Executor) Ping(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	conn, err := e.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.PingContext(ctx)
}

// Stats exposes the pool counters.
func (e *Executor) Stats() sql.DBStats { return e.db.Stats() }

// Close stops new acquisitions and drains the pool.  sql.DB.Close waits for
// statements already running.
func (e *Executor) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	return e.db.Close()
}

func (e *Executor) acquire(ctx context.Context) (*sql.Conn, error) {
	actx, cancel := context.WithTimeout(ctx, e.acquireTimeout)
	defer cancel()
	conn, err := e.db.Conn(actx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrPoolExhausted
		}
		return nil, err
	}
	return conn, nil
}

func queryRows(ctx context.Context, conn *sql.Conn, stmt string, args []any) ([]Row, error) {
	rows, err := conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// fail logs the cause (never args) and wraps it into a QueryError.
func (e *Executor) fail(ctx context.Context, kind Kind, err error) error {
	if isDuplicate(err) {
		err = fmt.Errorf("%w: %w", ErrDuplicate, err)
	}
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		l = &e.log
	}
	l.Error().Err(err).Str("statement_kind", string(kind)).Msg("query failed")
	return &QueryError{Kind: kind, Err: err}
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
