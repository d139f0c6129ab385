package clean

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestCleanStopsAfterShortBatch(t *testing.T) {
	mock := newMockPool(t)

	// 26 excess rows with a batch cap of 10: two full batches, then a
	// short one ends the loop.
	mock.ExpectExec(sqlDeleteExcessContent).
		WithArgs(10, 10).
		WillReturnResult(pgxmock.NewResult("DELETE", 10))
	mock.ExpectExec(sqlDeleteExcessContent).
		WithArgs(10, 10).
		WillReturnResult(pgxmock.NewResult("DELETE", 10))
	mock.ExpectExec(sqlDeleteExcessContent).
		WithArgs(10, 10).
		WillReturnResult(pgxmock.NewResult("DELETE", 6))

	c := &Cleaner{DB: mock, RetentionLimit: 10, DeleteBatchLimit: 10, Log: zap.NewNop()}
	total, err := c.Clean(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 26, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanNothingToDelete(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectExec(sqlDeleteExcessContent).
		WithArgs(DefaultRetentionLimit, DefaultDeleteBatchLimit).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	c := &Cleaner{DB: mock, Log: zap.NewNop()}
	total, err := c.Clean(context.Background())
	require.NoError(t, err)
	require.Zero(t, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanReturnsPartialTotalOnError(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectExec(sqlDeleteExcessContent).
		WithArgs(10, 5).
		WillReturnResult(pgxmock.NewResult("DELETE", 5))
	mock.ExpectExec(sqlDeleteExcessContent).
		WithArgs(10, 5).
		WillReturnError(errors.New("connection reset"))

	c := &Cleaner{DB: mock, RetentionLimit: 10, DeleteBatchLimit: 5, Log: zap.NewNop()}
	total, err := c.Clean(context.Background())
	require.Error(t, err)
	require.EqualValues(t, 5, total)
	require.NoError(t, mock.ExpectationsWereMet())
}
