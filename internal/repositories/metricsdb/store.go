package metricsdb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"gitlab.com/TitanInd/fleet-metrics/internal/interfaces"
	"gitlab.com/TitanInd/fleet-metrics/internal/repositories/dbutil"
)

// DB is the subset of *pgxpool.Pool used by the store
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// MetricsStore reads contract and earnings history. It is the secondary source of the
// fleet snapshot and never writes.
type MetricsStore struct {
	db  DB
	log interfaces.ILogger
}

// NewPool creates a lazily connecting pool, so the service starts even when the
// database is down
func NewPool(ctx context.Context, dbURL string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("invalid metrics db url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	cfg.MinConns = 0
	return pgxpool.NewWithConfig(ctx, cfg)
}

// NewMetricsStore wraps db, a nil db yields a store where every query fails with
// dbutil.ErrNotConfigured
func NewMetricsStore(db DB, log interfaces.ILogger) *MetricsStore {
	return &MetricsStore{
		db:  db,
		log: log,
	}
}

func (s *MetricsStore) Configured() bool {
	return s.db != nil
}

func (s *MetricsStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return dbutil.ErrNotConfigured
	}
	return dbutil.WrapError(s.db.Ping(ctx))
}

func (s *MetricsStore) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// ActiveContractsAggregate counts active bitcoin contracts and sums their nominal hashrate
// in PH/s and their machines
func (s *MetricsStore) ActiveContractsAggregate(ctx context.Context) (ContractAggregate, error) {
	if s.db == nil {
		return ContractAggregate{}, dbutil.ErrNotConfigured
	}

	var res ContractAggregate
	err := s.db.QueryRow(ctx, queryActiveContractsAggregate).Scan(&res.Count, &res.HashratePHs, &res.TotalMachines)
	if err != nil {
		return ContractAggregate{}, s.wrap("active contracts aggregate", err)
	}
	return res, nil
}

// BTCProduction sums earnings of active bitcoin contracts within the window
func (s *MetricsStore) BTCProduction(ctx context.Context, window Window) (float64, error) {
	if s.db == nil {
		return 0, dbutil.ErrNotConfigured
	}

	query, err := productionQuery(window)
	if err != nil {
		return 0, err
	}

	var btc float64
	err = s.db.QueryRow(ctx, query).Scan(&btc)
	if err != nil {
		return 0, s.wrap("btc production "+window.String(), err)
	}
	return btc, nil
}

// AccountsLast24h rebuilds per-customer accounts from the contracts table joined with
// the last 24h of earnings
func (s *MetricsStore) AccountsLast24h(ctx context.Context) ([]AccountRow, error) {
	if s.db == nil {
		return nil, dbutil.ErrNotConfigured
	}

	rows, err := s.db.Query(ctx, queryAccountsLast24h)
	if err != nil {
		return nil, s.wrap("accounts", err)
	}
	defer rows.Close()

	var res []AccountRow
	for rows.Next() {
		var row AccountRow
		err := rows.Scan(&row.CustomerID, &row.CustomerName, &row.Hashrate, &row.BTCLast24h, &row.Active)
		if err != nil {
			return nil, s.wrap("accounts scan", err)
		}
		res = append(res, row)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("accounts", err)
	}
	return res, nil
}

// EarningsByCustomer24h returns the last 24h of bitcoin earnings keyed by customer id
func (s *MetricsStore) EarningsByCustomer24h(ctx context.Context) (map[string]float64, error) {
	if s.db == nil {
		return nil, dbutil.ErrNotConfigured
	}

	rows, err := s.db.Query(ctx, queryEarningsByCustomer24h)
	if err != nil {
		return nil, s.wrap("earnings by customer", err)
	}
	defer rows.Close()

	res := make(map[string]float64)
	for rows.Next() {
		var (
			customerID string
			btc        float64
		)
		if err := rows.Scan(&customerID, &btc); err != nil {
			return nil, s.wrap("earnings by customer scan", err)
		}
		res[customerID] += btc
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("earnings by customer", err)
	}
	return res, nil
}

func (s *MetricsStore) wrap(query string, err error) error {
	err = dbutil.WrapError(err)
	if dbutil.IsRelationMissing(err) {
		s.log.Debugf("%s: relation missing, defaulting to zero", query)
	}
	return fmt.Errorf("%s: %w", query, err)
}
