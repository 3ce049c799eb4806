package pricedb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"gitlab.com/TitanInd/fleet-metrics/internal/interfaces"
	"gitlab.com/TitanInd/fleet-metrics/internal/repositories/dbutil"
)

const dateLayout = "2006-01-02"

const queryPriceOn = `
SELECT p.price_usd::text
FROM btc_prices p
WHERE p.date = $1::date
ORDER BY p.date DESC
LIMIT 1`

var ErrInvalidPrice = errors.New("invalid price value")

// PriceQuote is a single daily BTC/USD price point
type PriceQuote struct {
	Date   time.Time
	BTCUSD decimal.Decimal
}

// Conn is the subset of *pgxpool.Pool used by the store
type Conn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Dialer opens a connection for a single call, the store closes it
type Dialer func(ctx context.Context) (Conn, error)

// NewDialer returns a Dialer opening a pool capped at one connection
func NewDialer(dbURL string, connectTimeout time.Duration) Dialer {
	return func(ctx context.Context) (Conn, error) {
		cfg, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			return nil, fmt.Errorf("invalid price db url: %w", err)
		}
		cfg.MaxConns = 1
		cfg.MinConns = 0
		if connectTimeout > 0 {
			cfg.ConnConfig.ConnectTimeout = connectTimeout
		}

		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return pool, nil
	}
}

// PriceStore reads the price history database, which is separate from the metrics database
type PriceStore struct {
	dial Dialer
	log  interfaces.ILogger
}

// NewPriceStore creates a store, a nil dialer yields a store where every query fails
// with dbutil.ErrNotConfigured
func NewPriceStore(dial Dialer, log interfaces.ILogger) *PriceStore {
	return &PriceStore{
		dial: dial,
		log:  log,
	}
}

func (s *PriceStore) Configured() bool {
	return s.dial != nil
}

// PriceOn returns the quote of the given day, ok is false when there is no row for it.
// The connection is opened for this call only and released on every path.
func (s *PriceStore) PriceOn(ctx context.Context, date time.Time) (quote PriceQuote, ok bool, err error) {
	if s.dial == nil {
		return PriceQuote{}, false, dbutil.ErrNotConfigured
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return PriceQuote{}, false, fmt.Errorf("price db connect: %w", dbutil.WrapError(err))
	}
	defer conn.Close()

	day := date.Format(dateLayout)

	var raw string
	err = conn.QueryRow(ctx, queryPriceOn, day).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		s.log.Debugf("no btc price for %s", day)
		return PriceQuote{}, false, nil
	}
	if err != nil {
		err = dbutil.WrapError(err)
		if dbutil.IsRelationMissing(err) {
			s.log.Debugf("price table missing, defaulting to zero")
		}
		return PriceQuote{}, false, fmt.Errorf("price on %s: %w", day, err)
	}

	price, err := decimal.NewFromString(raw)
	if err != nil {
		return PriceQuote{}, false, fmt.Errorf("%w: %q", ErrInvalidPrice, raw)
	}
	if !price.IsPositive() {
		s.log.Debugf("non positive btc price %s for %s", price, day)
		return PriceQuote{}, false, nil
	}

	y, m, d := date.Date()
	return PriceQuote{
		Date:   time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		BTCUSD: price,
	}, true, nil
}
