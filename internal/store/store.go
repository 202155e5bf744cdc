// Package store persists workflows, cases, and case history against
// PostgreSQL. Case-level serialization is provided by a row lock
// (SELECT ... FOR UPDATE) for a single step, or a session-level
// pg_advisory_lock held across several sequential transactions when a
// caller needs each step to commit durably on its own, following the
// compozy-compozy engine/infra/postgres lock-inside-tx pattern.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of a pgx pool the Store needs; satisfied by *pgxpool.Pool
// and, in tests, by anything that can run queries and begin transactions.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is the durable persistence layer for 4.A.
type Store struct {
	db         DB
	Workflows  *WorkflowRepo
	Cases      *CaseRepo
	History    *HistoryRepo
}

// New wires the per-entity repositories against a shared connection pool.
func New(db DB) *Store {
	return &Store{
		db:        db,
		Workflows: &WorkflowRepo{db: db},
		Cases:     &CaseRepo{db: db},
		History:   &HistoryRepo{db: db},
	}
}

// Connect opens a pgx pool against databaseURL and pings it once, closing
// the pool if the ping fails; there is no retry. Mirrors the connect-then-ping
// idiom of cloudshipai-station/internal/db/db.go's New, adapted for pgx's
// pool type instead of database/sql.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// WithTx runs fn inside a transaction against the store's own connection,
// committing on success and rolling back on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return WithTx(ctx, s.db, fn)
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func WithTx(ctx context.Context, db DB, fn func(tx pgx.Tx) error) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()
	err = fn(tx)
	return err
}

// Conn is a single checked-out connection, capable of running several
// sequential transactions while the caller holds a session-level advisory
// lock across all of them — unlike a lock taken inside one transaction, it
// survives each transaction's own commit. Satisfied by *pgxpool.Conn.
type Conn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Release()
}

// AcquireConn checks a connection out of the pool for a caller that needs a
// session-level lock (pg_advisory_lock/pg_advisory_unlock) to span several
// sequential transactions, such as the Transition Controller's redirect
// chain, where each step must commit durably even if a later step fails.
func (s *Store) AcquireConn(ctx context.Context) (Conn, error) {
	acquirer, ok := s.db.(interface {
		Acquire(ctx context.Context) (*pgxpool.Conn, error)
	})
	if !ok {
		return nil, fmt.Errorf("store: underlying DB does not support connection acquisition")
	}
	return acquirer.Acquire(ctx)
}

// WithConnTx runs fn in a transaction against conn, committing on success
// and rolling back on error or panic — the per-step counterpart to WithTx
// for callers holding a session-level lock across several transactions.
func WithConnTx(ctx context.Context, conn Conn, fn func(tx pgx.Tx) error) (err error) {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()
	err = fn(tx)
	return err
}
