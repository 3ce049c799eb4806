package pricedb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gitlab.com/TitanInd/fleet-metrics/internal/lib"
	"gitlab.com/TitanInd/fleet-metrics/internal/repositories/dbutil"
)

// trackedConn records whether the store released the connection
type trackedConn struct {
	pgxmock.PgxPoolIface
	closed int
}

func (c *trackedConn) Close() {
	c.closed++
}

func newMockStore(t *testing.T) (*PriceStore, pgxmock.PgxPoolIface, *trackedConn) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, mock.ExpectationsWereMet()) })

	conn := &trackedConn{PgxPoolIface: mock}
	dial := func(ctx context.Context) (Conn, error) { return conn, nil }
	return NewPriceStore(dial, &lib.LoggerMock{}), mock, conn
}

var yesterday = time.Date(2026, 10, 15, 13, 45, 0, 0, time.UTC)

func TestPriceOn(t *testing.T) {
	store, mock, conn := newMockStore(t)

	mock.ExpectQuery(`FROM btc_prices`).
		WithArgs("2026-10-15").
		WillReturnRows(pgxmock.NewRows([]string{"price_usd"}).AddRow("60000.50"))

	quote, ok, err := store.PriceOn(context.Background(), yesterday)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, decimal.RequireFromString("60000.50").Equal(quote.BTCUSD))
	require.Equal(t, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), quote.Date)
	require.Equal(t, 1, conn.closed)
}

func TestPriceOnNoRow(t *testing.T) {
	store, mock, conn := newMockStore(t)

	mock.ExpectQuery(`FROM btc_prices`).WillReturnError(pgx.ErrNoRows)

	_, ok, err := store.PriceOn(context.Background(), yesterday)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, conn.closed)
}

func TestPriceOnMissingTableReleasesConnection(t *testing.T) {
	store, mock, conn := newMockStore(t)

	mock.ExpectQuery(`FROM btc_prices`).
		WillReturnError(&pgconn.PgError{Code: dbutil.UndefinedTableErrorCode})

	_, ok, err := store.PriceOn(context.Background(), yesterday)
	require.False(t, ok)
	require.True(t, dbutil.IsRelationMissing(err))
	require.Equal(t, 1, conn.closed)
}

func TestPriceOnInvalidValue(t *testing.T) {
	store, mock, conn := newMockStore(t)

	mock.ExpectQuery(`FROM btc_prices`).
		WillReturnRows(pgxmock.NewRows([]string{"price_usd"}).AddRow("n/a"))

	_, ok, err := store.PriceOn(context.Background(), yesterday)
	require.False(t, ok)
	require.ErrorIs(t, err, ErrInvalidPrice)
	require.Equal(t, 1, conn.closed)
}

func TestPriceOnDialError(t *testing.T) {
	dialErr := errors.New("connection refused")
	store := NewPriceStore(func(ctx context.Context) (Conn, error) { return nil, dialErr }, &lib.LoggerMock{})

	_, ok, err := store.PriceOn(context.Background(), yesterday)
	require.False(t, ok)
	require.ErrorIs(t, err, dialErr)
}

func TestPriceOnNotConfigured(t *testing.T) {
	store := NewPriceStore(nil, &lib.LoggerMock{})

	require.False(t, store.Configured())
	_, _, err := store.PriceOn(context.Background(), yesterday)
	require.ErrorIs(t, err, dbutil.ErrNotConfigured)
}
