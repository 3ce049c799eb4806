package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"gitlab.com/TitanInd/fleet-metrics/internal/interfaces"
	"gitlab.com/TitanInd/fleet-metrics/internal/metrics"
	"gitlab.com/TitanInd/fleet-metrics/internal/repositories/dbutil"
	"gitlab.com/TitanInd/fleet-metrics/internal/repositories/metricsdb"
	"gitlab.com/TitanInd/fleet-metrics/internal/repositories/pricedb"
	"gitlab.com/TitanInd/fleet-metrics/internal/repositories/upstream"
)

const (
	DefaultRequestTimeout = 20 * time.Second
	DefaultFanOutLimit    = 8
)

type UpstreamClient interface {
	Configured() bool
	ListCustomers(ctx context.Context) ([]upstream.Customer, error)
	// ListContracts and GetHashrateSnapshot always return a usable value, the error
	// only reports why it is empty or partial
	ListContracts(ctx context.Context, customerID string, currency string) ([]upstream.Contract, error)
	GetHashrateSnapshot(ctx context.Context, customerID string) (upstream.HashrateSnapshot, error)
}

type MetricsStore interface {
	ActiveContractsAggregate(ctx context.Context) (metricsdb.ContractAggregate, error)
	BTCProduction(ctx context.Context, window metricsdb.Window) (float64, error)
	AccountsLast24h(ctx context.Context) ([]metricsdb.AccountRow, error)
	EarningsByCustomer24h(ctx context.Context) (map[string]float64, error)
}

type PriceStore interface {
	PriceOn(ctx context.Context, date time.Time) (pricedb.PriceQuote, bool, error)
}

type EngineConfig struct {
	Currency       string
	RequestTimeout time.Duration
	FanOutLimit    int
}

// Engine builds fleet snapshots. It holds no state between calls, every snapshot
// is computed from fresh source reads.
type Engine struct {
	upstream UpstreamClient
	metrics  MetricsStore
	prices   PriceStore
	cfg      EngineConfig
	now      func() time.Time
	log      interfaces.ILogger
}

func NewEngine(client UpstreamClient, metricsStore MetricsStore, prices PriceStore, cfg EngineConfig, log interfaces.ILogger) *Engine {
	if cfg.Currency == "" {
		cfg.Currency = "BTC"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.FanOutLimit <= 0 {
		cfg.FanOutLimit = DefaultFanOutLimit
	}
	return &Engine{
		upstream: client,
		metrics:  metricsStore,
		prices:   prices,
		cfg:      cfg,
		now:      time.Now,
		log:      log,
	}
}

// SetClock replaces the clock used to pick the price date
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// snapshotRun is the per-call bookkeeping, it never outlives Snapshot
type snapshotRun struct {
	log      interfaces.ILogger
	failures []*SourceError
}

// Snapshot computes the fleet snapshot. It never fails: sources that could not be read
// leave their metrics at zero and are listed in the returned status.
func (e *Engine) Snapshot(ctx context.Context) (FleetSnapshot, Status) {
	start := time.Now()
	run := &snapshotRun{log: e.log.With("requestID", uuid.NewString())}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	var (
		partial    Partial
		prod24h    Result[float64]
		prodMonth  Result[float64]
		price      Result[decimal.Decimal]
		customers  Result[[]customerResult]
		storeReads errgroup.Group
	)

	// production and price never depend on the API, read them while the fan-out runs
	storeReads.Go(func() error {
		prod24h = e.production(ctx, metricsdb.Window24h)
		return nil
	})
	storeReads.Go(func() error {
		prodMonth = e.production(ctx, metricsdb.WindowMonth)
		return nil
	})
	storeReads.Go(func() error {
		price = e.yesterdayPrice(ctx)
		return nil
	})

	customers = e.fanOut(ctx, run)
	_ = storeReads.Wait()

	results := customers.Or(nil)
	for _, r := range results {
		run.partialFailure(r)
	}

	run.guard("global hashrate", func() {
		totals := sumHashrate(results)
		partial.GlobalHashratePHs = totals.GlobalHashratePHs
		partial.TotalMiners = totals.TotalMiners
	})

	run.guard("contracts", func() {
		totals := sumContracts(results, e.cfg.Currency)
		if totals.Seen == 0 {
			agg := Attempt(SourceMetricsDB, func() (metricsdb.ContractAggregate, error) {
				if e.metrics == nil {
					return metricsdb.ContractAggregate{}, dbutil.ErrNotConfigured
				}
				return e.metrics.ActiveContractsAggregate(ctx)
			})
			run.record("contracts aggregate", agg.Err)
			totals = contractTotalsFromAggregate(agg.Or(metricsdb.ContractAggregate{}))
		}
		partial.TheoreticalHashratePHs = totals.TheoreticalHashratePHs
		partial.ActiveContracts = totals.ActiveContracts
		partial.TotalMachines = totals.TotalMachines
	})

	run.guard("production", func() {
		run.record("production 24h", prod24h.Err)
		run.record("production monthly", prodMonth.Err)
		partial.BTCProduction24h = prod24h.Or(0)
		partial.BTCProductionMonthly = prodMonth.Or(0)
	})

	run.guard("price", func() {
		run.record("btc price", price.Err)
		p := price.Or(decimal.Zero)
		partial.BTCProduction24hUSD = toUSD(partial.BTCProduction24h, p)
		partial.BTCProductionMonthlyUSD = toUSD(partial.BTCProductionMonthly, p)
	})

	run.guard("accounts", func() {
		partial.Accounts = e.accounts(ctx, run, results, price)
	})

	status := run.status()
	metrics.RecordSnapshot(time.Since(start), status.Degraded)
	run.log.Debugw("snapshot computed",
		"duration", time.Since(start),
		"customers", len(results),
		"degradedSources", status.DegradedSources,
	)

	return Assemble(partial), status
}

// fanOut lists customers and reads contracts and hashrate for each of them. A failed or
// empty listing makes the whole API path unavailable.
func (e *Engine) fanOut(ctx context.Context, run *snapshotRun) Result[[]customerResult] {
	if e.upstream == nil || !e.upstream.Configured() {
		res := Fail[[]customerResult](SourceUpstream, KindUnconfigured, upstream.ErrNotConfigured)
		run.record("customers", res.Err)
		return res
	}

	listing := Attempt(SourceUpstream, func() ([]upstream.Customer, error) {
		return e.upstream.ListCustomers(ctx)
	})
	if listing.Ok() && len(listing.Value) == 0 {
		listing = Fail[[]upstream.Customer](SourceUpstream, KindMissing, ErrNoCustomers)
	}
	if !listing.Ok() {
		run.record("customers", listing.Err)
		return Fail[[]customerResult](listing.Err.Source, listing.Err.Kind, listing.Err.Err)
	}

	results := make([]customerResult, len(listing.Value))
	var g errgroup.Group
	g.SetLimit(e.cfg.FanOutLimit)

	for i, customer := range listing.Value {
		results[i].Customer = customer

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].ContractsErr = &SourceError{Source: SourceUpstream, Kind: Classify(err), Err: err}
				return nil
			}
			res := Attempt(SourceUpstream, func() ([]upstream.Contract, error) {
				return e.upstream.ListContracts(ctx, customer.ID, e.cfg.Currency)
			})
			results[i].Contracts, results[i].ContractsErr = res.Value, res.Err
			return nil
		})
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].HashrateErr = &SourceError{Source: SourceUpstream, Kind: Classify(err), Err: err}
				return nil
			}
			// a failed sub-call zeroes only its own field, the rest of the snapshot is kept
			res := Attempt(SourceUpstream, func() (upstream.HashrateSnapshot, error) {
				return e.upstream.GetHashrateSnapshot(ctx, customer.ID)
			})
			results[i].Hashrate, results[i].HashrateErr = res.Value, res.Err
			return nil
		})
	}
	_ = g.Wait()

	return Ok(results)
}

func (e *Engine) production(ctx context.Context, window metricsdb.Window) Result[float64] {
	if e.metrics == nil {
		return Fail[float64](SourceMetricsDB, KindUnconfigured, dbutil.ErrNotConfigured)
	}
	return Attempt(SourceMetricsDB, func() (float64, error) {
		return e.metrics.BTCProduction(ctx, window)
	})
}

// yesterdayPrice reads the quote of the previous UTC day, the last complete one
func (e *Engine) yesterdayPrice(ctx context.Context) Result[decimal.Decimal] {
	if e.prices == nil {
		return Fail[decimal.Decimal](SourcePriceDB, KindUnconfigured, dbutil.ErrNotConfigured)
	}
	date := e.now().UTC().AddDate(0, 0, -1)

	return Attempt(SourcePriceDB, func() (decimal.Decimal, error) {
		quote, ok, err := e.prices.PriceOn(ctx, date)
		if err != nil {
			return decimal.Zero, err
		}
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrPriceNotFound, date.Format("2006-01-02"))
		}
		return quote.BTCUSD, nil
	})
}

// accounts prefers the API rollup enriched with store earnings, and rebuilds the list
// from the store when the API produced nothing
func (e *Engine) accounts(ctx context.Context, run *snapshotRun, results []customerResult, price Result[decimal.Decimal]) []Account {
	accounts := groupAccounts(results, e.cfg.Currency)

	if len(accounts) > 0 {
		earnings := Attempt(SourceMetricsDB, func() (map[string]float64, error) {
			if e.metrics == nil {
				return nil, dbutil.ErrNotConfigured
			}
			return e.metrics.EarningsByCustomer24h(ctx)
		})
		run.record("account earnings", earnings.Err)
		applyEarnings(accounts, earnings.Or(nil))
	} else if e.metrics != nil {
		rows := Attempt(SourceMetricsDB, func() ([]metricsdb.AccountRow, error) {
			return e.metrics.AccountsLast24h(ctx)
		})
		run.record("accounts", rows.Err)
		accounts = accountsFromRows(rows.Or(nil))
	}

	applyPrice(accounts, price.Or(decimal.Zero))
	return accounts
}

// guard runs one aggregation step, a panic inside it leaves the step's fields at zero
func (r *snapshotRun) guard(step string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Warnf("step %s panicked: %v", step, p)
			r.record(step, &SourceError{Source: SourceEngine, Kind: KindPanic, Err: fmt.Errorf("%v", p)})
		}
	}()
	fn()
}

func (r *snapshotRun) record(what string, err *SourceError) {
	if err == nil {
		return
	}
	r.failures = append(r.failures, err)
	metrics.RecordSourceFailure(err.Source.String(), err.Kind.String())

	if err.Kind == KindUnconfigured || err.Kind == KindMissing {
		r.log.Debugf("%s not available, using fallback: %s", what, err)
		return
	}
	r.log.Warnf("%s degraded to fallback: %s", what, err)
}

// partialFailure records a failed task of one customer, siblings are unaffected
func (r *snapshotRun) partialFailure(res customerResult) {
	if res.ContractsErr != nil {
		r.record("contracts of customer "+res.Customer.ID, res.ContractsErr)
	}
	if res.HashrateErr != nil {
		r.record("hashrate of customer "+res.Customer.ID, res.HashrateErr)
	}
}

func (r *snapshotRun) status() Status {
	sources := make([]string, 0, len(r.failures))
	for _, f := range r.failures {
		sources = append(sources, f.Source.String())
	}
	return NewStatus(sources)
}
