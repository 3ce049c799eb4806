package fleet

import (
	"github.com/shopspring/decimal"
	"golang.org/x/exp/slices"

	"gitlab.com/TitanInd/fleet-metrics/internal/lib"
	"gitlab.com/TitanInd/fleet-metrics/internal/repositories/metricsdb"
	"gitlab.com/TitanInd/fleet-metrics/internal/repositories/upstream"
)

const thPerPH = 1000

// customerResult is the slot one customer's fan-out tasks write into
type customerResult struct {
	Customer     upstream.Customer
	Contracts    []upstream.Contract
	Hashrate     upstream.HashrateSnapshot
	ContractsErr *SourceError
	HashrateErr  *SourceError
}

type hashrateTotals struct {
	GlobalHashratePHs float64
	TotalMiners       int
}

type contractTotals struct {
	TheoreticalHashratePHs float64
	ActiveContracts        int
	TotalMachines          int
	Seen                   int // contracts in the target currency, active or not
}

var accountNameFields = lib.StringFields("customerName", "name")

// sumHashrate adds up every snapshot, a failed sub-call already left its own field at zero
func sumHashrate(results []customerResult) hashrateTotals {
	var t hashrateTotals
	for _, r := range results {
		t.GlobalHashratePHs += r.Hashrate.RealtimeHashratePHs
		t.TotalMiners += r.Hashrate.MachineCount
	}
	return t
}

// sumContracts aggregates active contracts in currency, throughput is TH/s per machine
func sumContracts(results []customerResult, currency string) contractTotals {
	var t contractTotals
	for _, r := range results {
		for i := range r.Contracts {
			c := &r.Contracts[i]
			if !c.IsCurrency(currency) {
				continue
			}
			t.Seen++
			if !c.IsActive() {
				continue
			}
			t.TheoreticalHashratePHs += c.Throughput() / thPerPH
			t.TotalMachines += c.MachineCount
			t.ActiveContracts++
		}
	}
	return t
}

func contractTotalsFromAggregate(agg metricsdb.ContractAggregate) contractTotals {
	return contractTotals{
		TheoreticalHashratePHs: agg.HashratePHs,
		ActiveContracts:        int(agg.Count),
		TotalMachines:          int(agg.TotalMachines),
	}
}

// groupAccounts rolls contracts up by customer id. Hashrate stays in the contracts'
// native unit.
func groupAccounts(results []customerResult, currency string) []Account {
	byID := make(map[string]*Account)
	for _, r := range results {
		for i := range r.Contracts {
			c := &r.Contracts[i]
			if !c.IsCurrency(currency) {
				continue
			}
			acc, ok := byID[c.CustomerID]
			if !ok {
				acc = &Account{
					ID:     c.CustomerID,
					Name:   accountName(c),
					Status: AccountStatusInactive,
				}
				byID[c.CustomerID] = acc
			}
			acc.Hashrate += c.Throughput()
			if c.IsActive() {
				acc.Status = AccountStatusActive
			}
		}
	}

	accounts := make([]Account, 0, len(byID))
	for _, acc := range byID {
		accounts = append(accounts, *acc)
	}
	sortAccounts(accounts)
	return accounts
}

func accountName(c *upstream.Contract) string {
	return lib.FirstOfOr(c.Raw, UnknownAccountName,
		accountNameFields[0],
		accountNameFields[1],
		lib.Value[lib.Fields](c.CustomerID),
	)
}

func accountsFromRows(rows []metricsdb.AccountRow) []Account {
	accounts := make([]Account, 0, len(rows))
	for _, row := range rows {
		acc := Account{
			ID:         row.CustomerID,
			Name:       lib.FirstOfOr(row, UnknownAccountName, rowName, rowID),
			Hashrate:   row.Hashrate,
			BTCLast24h: row.BTCLast24h,
			Status:     AccountStatusInactive,
		}
		if row.Active {
			acc.Status = AccountStatusActive
		}
		accounts = append(accounts, acc)
	}
	sortAccounts(accounts)
	return accounts
}

func rowName(row metricsdb.AccountRow) (string, bool) {
	return row.CustomerName, row.CustomerName != ""
}

func rowID(row metricsdb.AccountRow) (string, bool) {
	return row.CustomerID, row.CustomerID != ""
}

func sortAccounts(accounts []Account) {
	slices.SortStableFunc(accounts, func(a, b Account) bool {
		return a.ID < b.ID
	})
}

func applyEarnings(accounts []Account, earnings map[string]float64) {
	for i := range accounts {
		accounts[i].BTCLast24h = earnings[accounts[i].ID]
	}
}

func applyPrice(accounts []Account, price decimal.Decimal) {
	for i := range accounts {
		accounts[i].USDLast24h = toUSD(accounts[i].BTCLast24h, price)
	}
}

func toUSD(btc float64, price decimal.Decimal) float64 {
	usd, _ := decimal.NewFromFloat(btc).Mul(price).Float64()
	return usd
}
