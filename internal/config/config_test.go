package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	var cfg Config
	err := LoadConfig(&cfg, &[]string{"fleet-metrics"})
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:8080", cfg.Web.Address)
	require.Equal(t, "X-API-Key", cfg.Upstream.AuthHeader)
	require.Equal(t, 100, cfg.Upstream.PageSize)
	require.Equal(t, "BTC", cfg.Fleet.Currency)
	require.Equal(t, 20*time.Second, cfg.Fleet.RequestTimeout)
	require.Equal(t, 8, cfg.Fleet.FanOutLimit)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("UPSTREAM_BASE_URL", "https://env.example.com")
	t.Setenv("FLEET_FANOUT_LIMIT", "4")

	var cfg Config
	err := LoadConfig(&cfg, &[]string{"fleet-metrics", "--upstream-base-url=https://flag.example.com", "--fleet-request-timeout=3s"})
	require.NoError(t, err)

	require.Equal(t, "https://flag.example.com", cfg.Upstream.BaseURL)
	require.Equal(t, 4, cfg.Fleet.FanOutLimit)
	require.Equal(t, 3*time.Second, cfg.Fleet.RequestTimeout)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("METRICS_DB_URL", "mysql://localhost/fleet")

	var cfg Config
	err := LoadConfig(&cfg, &[]string{"fleet-metrics"})
	require.ErrorIs(t, err, ErrConfigValidation)
}

func TestLoadConfigAcceptsKeywordDSN(t *testing.T) {
	t.Setenv("PRICE_DB_URL", "host=localhost dbname=prices")

	var cfg Config
	err := LoadConfig(&cfg, &[]string{"fleet-metrics"})
	require.NoError(t, err)
}

func TestGetCORSOrigins(t *testing.T) {
	var cfg Config
	cfg.Web.CORSOrigins = " https://a.example.com, ,https://b.example.com"
	require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.GetCORSOrigins())
}
