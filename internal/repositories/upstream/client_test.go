package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/TitanInd/fleet-metrics/internal/lib"
)

const testAPIKey = "secret"

func newTestClient(t *testing.T, handler http.Handler) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		BaseURL:       server.URL + "/api/v1",
		APIKey:        testAPIKey,
		AuthHeader:    "X-API-Key",
		Timeout:       5 * time.Second,
		PageSize:      50,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}, &lib.LoggerMock{})
	require.NoError(t, err)
	return client
}

func TestListCustomers(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/customers", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, testAPIKey, r.Header.Get("X-API-Key"))
		require.Equal(t, "1", r.URL.Query().Get("page"))
		require.Equal(t, "50", r.URL.Query().Get("pageSize"))
		_, _ = w.Write([]byte(`{"data":[{"id":"c1","displayName":"Alpha"},{"customerId":42,"name":"Beta"},{"name":"no id"}]}`))
	})
	client := newTestClient(t, mux)

	customers, err := client.ListCustomers(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Customer{
		{ID: "c1", DisplayName: "Alpha"},
		{ID: "42", DisplayName: "Beta"},
	}, customers)
}

func TestListCustomersRejectedCredential(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		customers, err := client.ListCustomers(context.Background())
		require.NoError(t, err)
		require.NotNil(t, customers)
		require.Empty(t, customers)
	}
}

func TestListCustomersServerError(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bad gateway"))
	}))

	_, err := client.ListCustomers(context.Background())

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	require.Equal(t, http.StatusBadGateway, upErr.Status)
	require.Equal(t, "bad gateway", upErr.Body)
	require.EqualValues(t, 2, calls.Load())
}

func TestListCustomersClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))

	_, err := client.ListCustomers(context.Background())
	require.Error(t, err)
	require.EqualValues(t, 1, calls.Load())
}

func TestListCustomersRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`[{"id":"c1"}]`))
	}))

	customers, err := client.ListCustomers(context.Background())
	require.NoError(t, err)
	require.Len(t, customers, 1)
	require.EqualValues(t, 2, calls.Load())
}

func TestListCustomersMalformed(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total": 3}`))
	}))

	_, err := client.ListCustomers(context.Background())
	require.True(t, IsMalformed(err))
}

func TestListContracts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/customers/c1/contracts", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "BTC", r.URL.Query().Get("currency"))
		_, _ = w.Write([]byte(`{"data":{"items":[
			{"currency":"BTC","status":"Active","machineTH":100,"numberOfMachines":2,"customerName":"Alpha"},
			{"currency":"bitcoin","status":"inactive","machine_th":"50","number_of_machines":"1"}
		]}}`))
	})
	client := newTestClient(t, mux)

	contracts, err := client.ListContracts(context.Background(), "c1", "BTC")
	require.NoError(t, err)
	require.Len(t, contracts, 2)

	require.Equal(t, "c1", contracts[0].CustomerID)
	require.True(t, contracts[0].IsActive())
	require.Equal(t, 100.0, contracts[0].MachineThroughput)
	require.Equal(t, 2, contracts[0].MachineCount)
	require.Equal(t, "Alpha", contracts[0].Raw["customerName"])

	require.False(t, contracts[1].IsActive())
	require.True(t, contracts[1].IsCurrency("BTC"))
	require.Equal(t, 50.0, contracts[1].MachineThroughput)
	require.Equal(t, 1, contracts[1].MachineCount)
}

func TestListContractsNotFoundIsEmpty(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	contracts, err := client.ListContracts(context.Background(), "c1", "BTC")
	require.NoError(t, err)
	require.NotNil(t, contracts)
	require.Empty(t, contracts)
}

func TestListContractsDegradesToEmpty(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusUnauthorized} {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		contracts, err := client.ListContracts(context.Background(), "c1", "BTC")
		require.NotNil(t, contracts)
		require.Empty(t, contracts)

		var upErr *UpstreamError
		require.ErrorAs(t, err, &upErr)
		require.Equal(t, status, upErr.Status)
	}
}

func TestListContractsMalformed(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))

	contracts, err := client.ListContracts(context.Background(), "c1", "BTC")
	require.Empty(t, contracts)
	require.True(t, IsMalformed(err))
}

func TestListContractsEscapesCustomerID(t *testing.T) {
	var path string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`[]`))
	}))

	_, _ = client.ListContracts(context.Background(), "a/b", "")
	require.Equal(t, "/api/v1/customers/a%2Fb/contracts", path)
}

func TestGetHashrateSnapshot(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/customers/c1/hashrate/chart", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"unit":"TH/s","data":[{"hashrate":1000},{"hashrate":2500}]}`))
	})
	mux.HandleFunc("/api/v1/customers/c1/statistics", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"activeMachines":12}}`))
	})
	client := newTestClient(t, mux)

	snap, err := client.GetHashrateSnapshot(context.Background(), "c1")
	require.NoError(t, err)
	require.InDelta(t, 2.5, snap.RealtimeHashratePHs, 1e-9)
	require.Equal(t, 12, snap.MachineCount)
}

func TestGetHashrateSnapshotPartial(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/customers/c1/hashrate/chart", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"realtimeHashrate":1.5}`))
	})
	mux.HandleFunc("/api/v1/customers/c1/statistics", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	client := newTestClient(t, mux)

	snap, err := client.GetHashrateSnapshot(context.Background(), "c1")
	require.Equal(t, 1.5, snap.RealtimeHashratePHs)
	require.Zero(t, snap.MachineCount)

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	require.Equal(t, http.StatusServiceUnavailable, upErr.Status)
}

func TestNotConfiguredClientSendsNothing(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL}, &lib.LoggerMock{})
	require.NoError(t, err)
	require.False(t, client.Configured())

	_, err = client.ListCustomers(context.Background())
	require.ErrorIs(t, err, ErrNotConfigured)
	contracts, err := client.ListContracts(context.Background(), "c1", "BTC")
	require.Empty(t, contracts)
	require.ErrorIs(t, err, ErrNotConfigured)
	snap, err := client.GetHashrateSnapshot(context.Background(), "c1")
	require.Zero(t, snap)
	require.ErrorIs(t, err, ErrNotConfigured)
	require.Zero(t, calls.Load())
}

func TestRequestsStopAtDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	contracts, err := client.ListContracts(ctx, "c1", "BTC")
	require.Empty(t, contracts)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 2*time.Second)
}
