package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTxTest(t *testing.T) *TestDB {
	t.Helper()
	tdb := NewTestDBInMemory(t)
	tdb.Exec(t, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)")
	return tdb
}

func TestWithinTx_Commit(t *testing.T) {
	tdb := setupTxTest(t)
	ctx := context.Background()

	err := tdb.TxRunner.WithinTx(ctx, func(ctx context.Context) error {
		q := tdb.TxRunner.GetQuerier(ctx)
		_, err := q.ExecContext(ctx, "INSERT INTO items (name) VALUES (?)", "a")
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 1, tdb.CountRows(t, "items"))
}

func TestWithinTx_RollbackOnError(t *testing.T) {
	tdb := setupTxTest(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := tdb.TxRunner.WithinTx(ctx, func(ctx context.Context) error {
		q := tdb.TxRunner.GetQuerier(ctx)
		if _, err := q.ExecContext(ctx, "INSERT INTO items (name) VALUES (?)", "a"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 0, tdb.CountRows(t, "items"))
}

func TestWithinTx_NestedRejected(t *testing.T) {
	tdb := setupTxTest(t)
	ctx := context.Background()

	err := tdb.TxRunner.WithinTx(ctx, func(ctx context.Context) error {
		return tdb.TxRunner.WithinTx(ctx, func(ctx context.Context) error {
			return nil
		})
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nested transactions")
}

func TestGetQuerier_OutsideTxReturnsDB(t *testing.T) {
	tdb := setupTxTest(t)

	q := tdb.TxRunner.GetQuerier(context.Background())
	assert.Equal(t, Querier(tdb.DB), q)
}

func TestGetQuerier_InsideTxReturnsTx(t *testing.T) {
	tdb := setupTxTest(t)

	err := tdb.TxRunner.WithinTx(context.Background(), func(ctx context.Context) error {
		q := tdb.TxRunner.GetQuerier(ctx)
		assert.NotEqual(t, Querier(tdb.DB), q)

		_, found := GetTxQuerier(ctx)
		assert.True(t, found)
		return nil
	})
	require.NoError(t, err)
}

func TestIsBusyError(t *testing.T) {
	assert.True(t, isBusyError(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, isBusyError(errors.New("database table is locked")))
	assert.False(t, isBusyError(errors.New("syntax error")))
	assert.False(t, isBusyError(nil))
}
