package metricsdb

import (
	"errors"
	"fmt"
)

var ErrUnknownWindow = errors.New("unknown production window")

type Window int

const (
	Window24h Window = iota
	WindowMonth
)

func (w Window) String() string {
	switch w {
	case Window24h:
		return "24h"
	case WindowMonth:
		return "month"
	default:
		return "unknown"
	}
}

type ContractAggregate struct {
	Count         int64
	HashratePHs   float64
	TotalMachines int64
}

type AccountRow struct {
	CustomerID   string
	CustomerName string
	Hashrate     float64 // machine_th * number_of_machines, not scaled
	BTCLast24h   float64
	Active       bool
}

const (
	activeBitcoinContract = `LOWER(c.status) = 'active' AND LOWER(c.currency) IN ('btc', 'bitcoin')`
	bitcoinContract       = `LOWER(c.currency) IN ('btc', 'bitcoin')`

	windowLast24h = `e.date >= CURRENT_DATE - 1`
	windowMonth   = `e.date >= DATE_TRUNC('month', CURRENT_DATE)`
)

var queryActiveContractsAggregate = `
SELECT COUNT(*)::bigint,
       COALESCE(SUM(c.machine_th * c.number_of_machines), 0)::float8 / 1000,
       COALESCE(SUM(c.number_of_machines), 0)::bigint
FROM contracts c
WHERE ` + activeBitcoinContract

var queryAccountsLast24h = `
SELECT c.customer_id::text,
       COALESCE(MAX(c.customer_name), '')::text,
       COALESCE(SUM(c.machine_th * c.number_of_machines), 0)::float8,
       COALESCE(SUM(e.btc_amount), 0)::float8,
       COALESCE(BOOL_OR(LOWER(c.status) = 'active'), false)
FROM contracts c
LEFT JOIN (
    SELECT e.contract_id, SUM(e.btc_amount) AS btc_amount
    FROM earnings e
    WHERE ` + windowLast24h + `
    GROUP BY e.contract_id
) e ON e.contract_id = c.id
WHERE ` + bitcoinContract + `
GROUP BY c.customer_id
ORDER BY c.customer_id`

var queryEarningsByCustomer24h = `
SELECT c.customer_id::text, COALESCE(SUM(e.btc_amount), 0)::float8
FROM earnings e
JOIN contracts c ON c.id = e.contract_id
WHERE ` + bitcoinContract + ` AND ` + windowLast24h + `
GROUP BY c.customer_id`

func productionQuery(w Window) (string, error) {
	var window string
	switch w {
	case Window24h:
		window = windowLast24h
	case WindowMonth:
		window = windowMonth
	default:
		return "", fmt.Errorf("%w: %d", ErrUnknownWindow, w)
	}

	return `
SELECT COALESCE(SUM(e.btc_amount), 0)::float8
FROM earnings e
JOIN contracts c ON c.id = e.contract_id
WHERE ` + activeBitcoinContract + ` AND ` + window, nil
}
