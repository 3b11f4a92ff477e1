package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"dyncron/pkg/retry"
)

// txKey carries the active transaction through context.Context.
type txKey struct{}

// Querier unifies query execution over the pooled connection and a transaction.
// Repositories depend on this interface and stay agnostic of whether they run
// inside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// TxRunner executes callbacks inside a transaction with guaranteed
// commit-or-rollback, retrying SQLITE_BUSY failures with backoff.
type TxRunner struct {
	DB          *sql.DB
	RetryConfig retry.Config
}

// NewTxRunner creates a TxRunner over the given database handle.
func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{
		DB: db,
		RetryConfig: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			Multiplier:   2.0,
		},
	}
}

// WithinTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise. Inside fn, GetQuerier(ctx) returns
// the transaction.
func (r *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.DoWithRetryable(ctx, r.RetryConfig, func(ctx context.Context) error {
		return r.runTx(ctx, fn)
	}, isBusyError)
}

// GetTxQuerier extracts the active transaction from the context, if any.
func GetTxQuerier(ctx context.Context) (Querier, bool) {
	if querier, ok := ctx.Value(txKey{}).(Querier); ok {
		return querier, true
	}
	return nil, false
}

// GetQuerier returns the active transaction from the context when present,
// otherwise the pooled database handle.
func (r *TxRunner) GetQuerier(ctx context.Context) Querier {
	if querier, ok := GetTxQuerier(ctx); ok {
		return querier
	}
	return r.DB
}

// runTx performs a single transaction attempt.
func (r *TxRunner) runTx(ctx context.Context, fn func(context.Context) error) error {
	if _, nested := GetTxQuerier(ctx); nested {
		return fmt.Errorf("nested transactions are not supported by SQLite")
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	ctx = context.WithValue(ctx, txKey{}, tx)

	if err := fn(ctx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// isBusyError reports whether err is a SQLITE_BUSY class failure worth retrying.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") ||
		strings.Contains(s, "SQLITE_BUSY") ||
		strings.Contains(s, "database table is locked")
}
