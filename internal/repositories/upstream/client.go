package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"gitlab.com/TitanInd/fleet-metrics/internal/interfaces"
	"gitlab.com/TitanInd/fleet-metrics/internal/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	maxBodySize     = 8 << 20
	maxErrorBodyLen = 512
	firstPage       = "1"

	DefaultAuthHeader = "X-API-Key"
)

const (
	EndpointCustomers     = "customers"
	EndpointContracts     = "contracts"
	EndpointHashrateChart = "hashrate_chart"
	EndpointStatistics    = "statistics"
)

type ClientConfig struct {
	BaseURL       string
	APIKey        string
	AuthHeader    string
	Timeout       time.Duration
	PageSize      int
	RetryAttempts int
	RetryDelay    time.Duration
}

// Client talks to the partner mining operations API
type Client struct {
	baseURL       *url.URL
	apiKey        string
	authHeader    string
	pageSize      int
	retryAttempts uint
	retryDelay    time.Duration

	httpClient *http.Client
	log        interfaces.ILogger
}

func NewClient(cfg ClientConfig, log interfaces.ILogger) (*Client, error) {
	var baseURL *url.URL
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid upstream base url: %w", err)
		}
		baseURL = u
	}

	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	pageSize := cfg.PageSize
	if pageSize < 1 {
		pageSize = 100
	}
	authHeader := cfg.AuthHeader
	if authHeader == "" {
		authHeader = DefaultAuthHeader
	}

	return &Client{
		baseURL:       baseURL,
		apiKey:        cfg.APIKey,
		authHeader:    authHeader,
		pageSize:      pageSize,
		retryAttempts: uint(attempts),
		retryDelay:    cfg.RetryDelay,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		log:           log,
	}, nil
}

// Configured reports whether the base url and the credential are set. Without them no
// request is ever sent.
func (c *Client) Configured() bool {
	return c.baseURL != nil && c.apiKey != ""
}

// ListCustomers fetches the first page of customers. A rejected credential (401/403)
// yields an empty list and no error, callers must treat it as an unavailable source.
func (c *Client) ListCustomers(ctx context.Context) ([]Customer, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	query := url.Values{
		"page":     {firstPage},
		"pageSize": {strconv.Itoa(c.pageSize)},
	}
	body, err := c.get(ctx, EndpointCustomers, query, "customers")
	if err != nil {
		var upErr *UpstreamError
		if errors.As(err, &upErr) && (upErr.Status == http.StatusUnauthorized || upErr.Status == http.StatusForbidden) {
			c.log.Warnf("customer listing rejected the credential (status %d)", upErr.Status)
			return []Customer{}, nil
		}
		return nil, err
	}

	records, err := decodeRecords(body)
	if err != nil {
		return nil, err
	}

	customers := make([]Customer, 0, len(records))
	for _, rec := range records {
		customer, ok := parseCustomer(rec)
		if !ok {
			c.log.Debugf("skipping customer record without id")
			continue
		}
		customers = append(customers, customer)
	}
	return customers, nil
}

// ListContracts fetches the first page of contracts of one customer. The list is never
// nil: 404 means no contracts and any other failure yields an empty list. The error only
// tells the caller why the list is empty, it is not meant to abort anything.
func (c *Client) ListContracts(ctx context.Context, customerID string, currency string) ([]Contract, error) {
	if !c.Configured() {
		return []Contract{}, ErrNotConfigured
	}

	query := url.Values{
		"page":     {firstPage},
		"pageSize": {strconv.Itoa(c.pageSize)},
	}
	if currency != "" {
		query.Set("currency", currency)
	}

	body, err := c.get(ctx, EndpointContracts, query, "customers", customerID, "contracts")
	if err != nil {
		var upErr *UpstreamError
		if errors.As(err, &upErr) && upErr.Status == http.StatusNotFound {
			return []Contract{}, nil
		}
		c.log.Warnf("contracts of customer %s unavailable: %s", customerID, err)
		return []Contract{}, fmt.Errorf("contracts of customer %s: %w", customerID, err)
	}

	records, err := decodeRecords(body)
	if err != nil {
		c.log.Warnf("contracts of customer %s: %s", customerID, err)
		return []Contract{}, fmt.Errorf("contracts of customer %s: %w", customerID, err)
	}

	contracts := make([]Contract, 0, len(records))
	for _, rec := range records {
		contracts = append(contracts, ParseContract(rec, customerID))
	}
	return contracts, nil
}

// GetHashrateSnapshot requests the hashrate chart and the statistics of a customer
// concurrently, each failed call zeroes only its own field. The snapshot is always
// usable, the error joins the sub-calls that failed.
func (c *Client) GetHashrateSnapshot(ctx context.Context, customerID string) (HashrateSnapshot, error) {
	var snap HashrateSnapshot
	if !c.Configured() {
		return snap, ErrNotConfigured
	}

	var (
		g                  errgroup.Group
		chartErr, statsErr error
	)

	g.Go(func() error {
		body, err := c.get(ctx, EndpointHashrateChart, nil, "customers", customerID, "hashrate", "chart")
		if err == nil {
			snap.RealtimeHashratePHs, err = parseRealtimeHashrate(body)
		}
		if err != nil {
			snap.RealtimeHashratePHs = 0
			c.log.Warnf("hashrate chart of customer %s unavailable: %s", customerID, err)
			chartErr = fmt.Errorf("hashrate chart of customer %s: %w", customerID, err)
		}
		return nil
	})

	g.Go(func() error {
		body, err := c.get(ctx, EndpointStatistics, nil, "customers", customerID, "statistics")
		if err == nil {
			snap.MachineCount, err = parseMachineCount(body)
		}
		if err != nil {
			snap.MachineCount = 0
			c.log.Warnf("statistics of customer %s unavailable: %s", customerID, err)
			statsErr = fmt.Errorf("statistics of customer %s: %w", customerID, err)
		}
		return nil
	})

	_ = g.Wait()
	return snap, errors.Join(chartErr, statsErr)
}

// get performs an idempotent GET, retrying network errors, 429 and 5xx with exponential
// backoff. Path segments are escaped.
func (c *Client) get(ctx context.Context, endpoint string, query url.Values, segments ...string) ([]byte, error) {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u := c.baseURL.JoinPath(escaped...)
	u.RawQuery = query.Encode()
	target := u.String()

	return retry.DoWithData(
		func() ([]byte, error) {
			start := time.Now()
			body, err := c.do(ctx, target)

			outcome := metrics.Success
			if err != nil {
				outcome = metrics.Error
			}
			metrics.RecordUpstreamRequest(endpoint, outcome, time.Since(start))

			return body, err
		},
		retry.Context(ctx),
		retry.Attempts(c.retryAttempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && isRetryable(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.log.Debugf("retrying %s (attempt %d of %d): %s", endpoint, n+2, c.retryAttempts, err)
		}),
	)
}

func (c *Client) do(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(c.authHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{
			Status: resp.StatusCode,
			Body:   truncate(strings.TrimSpace(string(body)), maxErrorBodyLen),
		}
	}
	return body, nil
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr.Status == http.StatusTooManyRequests || upErr.Status >= 500
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// IsMalformed reports whether err comes from an unexpected response shape
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrUnknownUnit)
}
