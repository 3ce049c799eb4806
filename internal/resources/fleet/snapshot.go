package fleet

import (
	"math"

	"golang.org/x/exp/slices"
)

const (
	AccountStatusActive   = "active"
	AccountStatusInactive = "inactive"
	UnknownAccountName    = "Unknown Account"

	MessageOK       = "Fleet metrics retrieved successfully"
	MessageDegraded = "Fleet metrics retrieved with fallback values"
)

type Account struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Hashrate   float64 `json:"hashrate"` // machine throughput * machines, not scaled to PH/s
	BTCLast24h float64 `json:"btcLast24h"`
	USDLast24h float64 `json:"usdLast24h"`
	Status     string  `json:"status"`
}

// FleetSnapshot is the point-in-time aggregate of the fleet. It is always complete:
// numbers default to 0 and lists to empty.
type FleetSnapshot struct {
	GlobalHashratePHs       float64   `json:"globalHashratePHs"`
	TheoreticalHashratePHs  float64   `json:"theoreticalHashratePHs"`
	ActiveContracts         int       `json:"activeContracts"`
	TotalMachines           int       `json:"totalMachines"`
	BTCProduction24h        float64   `json:"btcProduction24h"`
	BTCProduction24hUSD     float64   `json:"btcProduction24hUSD"`
	BTCProductionMonthly    float64   `json:"btcProductionMonthly"`
	BTCProductionMonthlyUSD float64   `json:"btcProductionMonthlyUSD"`
	TotalMiners             int       `json:"totalMiners"`
	Accounts                []Account `json:"accounts"`
}

// Partial collects what the engine managed to compute, any field may be left unset
type Partial struct {
	GlobalHashratePHs       float64
	TheoreticalHashratePHs  float64
	ActiveContracts         int
	TotalMachines           int
	BTCProduction24h        float64
	BTCProduction24hUSD     float64
	BTCProductionMonthly    float64
	BTCProductionMonthlyUSD float64
	TotalMiners             int
	Accounts                []Account
}

// Status tells whether the snapshot holds fallback values and which sources caused them
type Status struct {
	Degraded        bool
	DegradedSources []string
	Message         string
}

func NewStatus(degradedSources []string) Status {
	sources := make([]string, 0, len(degradedSources))
	for _, s := range degradedSources {
		if !slices.Contains(sources, s) {
			sources = append(sources, s)
		}
	}
	slices.Sort(sources)

	if len(sources) == 0 {
		return Status{DegradedSources: sources, Message: MessageOK}
	}
	return Status{Degraded: true, DegradedSources: sources, Message: MessageDegraded}
}

// Assemble shapes p into a snapshot, replacing NaN and Inf with 0 and nil lists with
// empty ones. Finite values pass through untouched, a negative production correction
// stays negative.
func Assemble(p Partial) FleetSnapshot {
	accounts := make([]Account, 0, len(p.Accounts))
	for _, a := range p.Accounts {
		accounts = append(accounts, sanitizeAccount(a))
	}

	return FleetSnapshot{
		GlobalHashratePHs:       finite(p.GlobalHashratePHs),
		TheoreticalHashratePHs:  finite(p.TheoreticalHashratePHs),
		ActiveContracts:         p.ActiveContracts,
		TotalMachines:           p.TotalMachines,
		BTCProduction24h:        finite(p.BTCProduction24h),
		BTCProduction24hUSD:     finite(p.BTCProduction24hUSD),
		BTCProductionMonthly:    finite(p.BTCProductionMonthly),
		BTCProductionMonthlyUSD: finite(p.BTCProductionMonthlyUSD),
		TotalMiners:             p.TotalMiners,
		Accounts:                accounts,
	}
}

// EmptySnapshot is the all-zero snapshot served when nothing could be computed
func EmptySnapshot() FleetSnapshot {
	return Assemble(Partial{})
}

func sanitizeAccount(a Account) Account {
	if a.Name == "" {
		a.Name = UnknownAccountName
	}
	if a.Status != AccountStatusActive {
		a.Status = AccountStatusInactive
	}
	a.Hashrate = finite(a.Hashrate)
	a.BTCLast24h = finite(a.BTCLast24h)
	a.USDLast24h = finite(a.USDLast24h)
	return a
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
