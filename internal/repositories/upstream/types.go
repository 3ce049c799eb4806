package upstream

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gitlab.com/TitanInd/fleet-metrics/internal/lib"
)

var (
	ErrNotConfigured     = errors.New("upstream api is not configured")
	ErrMalformedResponse = errors.New("malformed upstream response")
	ErrUnknownUnit       = errors.New("unknown hashrate unit")
)

// UpstreamError is a non-2xx answer of the mining operations API
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream responded with status %d: %s", e.Status, e.Body)
}

type Customer struct {
	ID          string
	DisplayName string
}

const StatusActive = "active"

// Contract is a leased hashpower agreement as reported by the API. MachineThroughput is
// per machine in TH/s.
type Contract struct {
	CustomerID        string
	Currency          string
	Status            string
	MachineThroughput float64
	MachineCount      int
	Raw               lib.Fields
}

func (c *Contract) IsActive() bool {
	return strings.EqualFold(strings.TrimSpace(c.Status), StatusActive)
}

// IsCurrency reports whether the contract is denominated in currency. Bitcoin is
// accepted both as ticker and name. A contract without currency is trusted to match
// because listings are already filtered by the API.
func (c *Contract) IsCurrency(currency string) bool {
	if c.Currency == "" {
		return true
	}
	return normalizeCurrency(c.Currency) == normalizeCurrency(currency)
}

// Throughput is MachineThroughput*MachineCount in the contract's native unit
func (c *Contract) Throughput() float64 {
	return c.MachineThroughput * float64(c.MachineCount)
}

func normalizeCurrency(currency string) string {
	switch c := strings.ToUpper(strings.TrimSpace(currency)); c {
	case "BITCOIN", "XBT":
		return "BTC"
	default:
		return c
	}
}

type HashrateSnapshot struct {
	RealtimeHashratePHs float64
	MachineCount        int
}

var (
	customerIDFields   = lib.StringFields("id", "customerId", "customer_id")
	customerNameFields = lib.StringFields("displayName", "display_name", "name", "customerName")

	contractCustomerFields = lib.StringFields("customerId", "customer_id")
	contractCurrencyFields = lib.StringFields("currency", "coin")
	contractStatusFields   = lib.StringFields("status", "state")
	machineThroughputChain = lib.NumberFields("machineTH", "machine_th", "hashrate")
	machineCountChain      = lib.NumberFields("numberOfMachines", "number_of_machines", "machineCount", "machines")
)

func parseCustomer(raw lib.Fields) (Customer, bool) {
	id, ok := lib.FirstOf(raw, customerIDFields...)
	if !ok {
		return Customer{}, false
	}
	return Customer{
		ID:          id,
		DisplayName: lib.FirstOfOr(raw, "", customerNameFields...),
	}, true
}

// ParseContract reads a contract record, each field falls back through the known
// spellings used by the API
func ParseContract(raw lib.Fields, customerID string) Contract {
	count := lib.FirstOfOr(raw, 0, machineCountChain...)
	if count < 0 || math.IsNaN(count) {
		count = 0
	}
	throughput := lib.FirstOfOr(raw, 0, machineThroughputChain...)
	if throughput < 0 {
		throughput = 0
	}

	return Contract{
		CustomerID:        lib.FirstOfOr(raw, customerID, contractCustomerFields...),
		Currency:          lib.FirstOfOr(raw, "", contractCurrencyFields...),
		Status:            lib.FirstOfOr(raw, "", contractStatusFields...),
		MachineThroughput: throughput,
		MachineCount:      int(math.Round(count)),
		Raw:               raw,
	}
}
