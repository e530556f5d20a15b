package repo

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"log/slog"

	pgxmockv3 "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmockv3.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmockv3.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &PostgresRepository{pool: mock, logger: logger}, mock
}

func TestClaimOrderProviderWinsOnSingleRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE orders").
		WithArgs("GO1", int64(555)).
		WillReturnResult(pgxmockv3.NewResult("UPDATE", 1))

	won, err := repo.ClaimOrderProvider(context.Background(), "GO1", 555)
	require.NoError(t, err)
	assert.True(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimOrderProviderLosesOnZeroRows(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE orders").
		WithArgs("GO1", int64(555)).
		WillReturnResult(pgxmockv3.NewResult("UPDATE", 0))

	won, err := repo.ClaimOrderProvider(context.Background(), "GO1", 555)
	require.NoError(t, err)
	assert.False(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmOrderQuoteCommitsAgreedPrice(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE orders").
		WithArgs("GO1", int64(555), int64(350)).
		WillReturnResult(pgxmockv3.NewResult("UPDATE", 1))

	won, err := repo.ConfirmOrderQuote(context.Background(), "GO1", 555, 350)
	require.NoError(t, err)
	assert.True(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceOrderStatusConditional(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE orders").
		WithArgs("GO1", StatusPending, StatusCancelled).
		WillReturnResult(pgxmockv3.NewResult("UPDATE", 0))

	moved, err := repo.AdvanceOrderStatus(context.Background(), "GO1", StatusPending, StatusCancelled)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetUserStateUnknownPhone(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE users").
		WithArgs("79990001122", "taxi_route", "{}").
		WillReturnResult(pgxmockv3.NewResult("UPDATE", 0))

	err := repo.SetUserState(context.Background(), "79990001122", StateTaxiRoute, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyLedgerEntryCommitsBothWrites(t *testing.T) {
	repo, mock := newMockRepo(t)
	orderID := "GO1"
	created := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO ledger").
		WithArgs(pgxmockv3.AnyArg(), int64(111), &orderID, LedgerCommission, int64(-10), "комиссия").
		WillReturnRows(pgxmockv3.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectExec("UPDATE providers").
		WithArgs(int64(111), int64(-10)).
		WillReturnResult(pgxmockv3.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	// pgx.BeginFunc always issues a deferred Rollback after Commit.
	mock.ExpectRollback()

	entry, err := repo.ApplyLedgerEntry(context.Background(), LedgerEntry{
		ProviderID: 111,
		OrderID:    &orderID,
		Action:     LedgerCommission,
		Amount:     -10,
		Details:    "комиссия",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, created, entry.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyLedgerEntryRollsBackOnMissingProvider(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO ledger").
		WithArgs(pgxmockv3.AnyArg(), int64(999), pgxmockv3.AnyArg(), LedgerTopup, int64(100), "").
		WillReturnRows(pgxmockv3.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec("UPDATE providers").
		WithArgs(pgxmockv3.AnyArg(), pgxmockv3.AnyArg()).
		WillReturnResult(pgxmockv3.NewResult("UPDATE", 0))
	mock.ExpectRollback()
	// pgx.BeginFunc rolls back explicitly on error and again via its deferred
	// rollback, so the error path sees two Rollback calls.
	mock.ExpectRollback()

	_, err := repo.ApplyLedgerEntry(context.Background(), LedgerEntry{
		ProviderID: 999,
		Action:     LedgerTopup,
		Amount:     100,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
