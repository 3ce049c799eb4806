package config

import (
	"strings"
	"time"
)

type ConfigWithDefaults interface {
	SetDefaults()
}

// Config is the whole service configuration, every field is read from env and can be
// overridden by the matching flag
type Config struct {
	Web struct {
		Address     string `env:"WEB_ADDRESS" flag:"web-address" validate:"required" desc:"http listen address"`
		CORSOrigins string `env:"WEB_CORS_ORIGINS" flag:"web-cors-origins" desc:"comma separated list of allowed origins, * for any"`
	}
	Upstream struct {
		BaseURL       string        `env:"UPSTREAM_BASE_URL" flag:"upstream-base-url" validate:"omitempty,url" desc:"mining operations API base url"`
		APIKey        string        `env:"UPSTREAM_API_KEY" flag:"upstream-api-key" desc:"pre-shared API credential, upstream calls are skipped when empty"`
		AuthHeader    string        `env:"UPSTREAM_AUTH_HEADER" flag:"upstream-auth-header" desc:"header carrying the API credential"`
		Timeout       time.Duration `env:"UPSTREAM_TIMEOUT" flag:"upstream-timeout" validate:"gte=0" desc:"timeout of a single upstream request"`
		PageSize      int           `env:"UPSTREAM_PAGE_SIZE" flag:"upstream-page-size" validate:"gte=0,lte=1000"`
		RetryAttempts int           `env:"UPSTREAM_RETRY_ATTEMPTS" flag:"upstream-retry-attempts" validate:"gte=0,lte=10" desc:"attempts per idempotent request, 1 disables retries"`
		RetryDelay    time.Duration `env:"UPSTREAM_RETRY_DELAY" flag:"upstream-retry-delay" validate:"gte=0"`
	}
	MetricsDB struct {
		URL      string `env:"METRICS_DB_URL" flag:"metrics-db-url" validate:"dburl" desc:"postgres url of the contracts and earnings database"`
		MaxConns int    `env:"METRICS_DB_MAX_CONNS" flag:"metrics-db-max-conns" validate:"gte=0,lte=100"`
	}
	PriceDB struct {
		URL            string        `env:"PRICE_DB_URL" flag:"price-db-url" validate:"dburl" desc:"postgres url of the price history database"`
		ConnectTimeout time.Duration `env:"PRICE_DB_CONNECT_TIMEOUT" flag:"price-db-connect-timeout" validate:"gte=0"`
	}
	Fleet struct {
		Currency       string        `env:"FLEET_CURRENCY" flag:"fleet-currency" desc:"currency filter sent with contract listings"`
		RequestTimeout time.Duration `env:"FLEET_REQUEST_TIMEOUT" flag:"fleet-request-timeout" validate:"gte=0" desc:"deadline of a whole snapshot"`
		FanOutLimit    int           `env:"FLEET_FANOUT_LIMIT" flag:"fleet-fanout-limit" validate:"gte=0,lte=256" desc:"max customers processed concurrently"`
	}
	Log struct {
		Level      string `env:"LOG_LEVEL" flag:"log-level" validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
		Color      bool   `env:"LOG_COLOR" flag:"log-color"`
		IsProd     bool   `env:"LOG_IS_PROD" flag:"log-is-prod"`
		JSON       bool   `env:"LOG_JSON" flag:"log-json"`
		FolderPath string `env:"LOG_FOLDER_PATH" flag:"log-folder-path" desc:"enables file logging when set"`
	}
}

func (cfg *Config) SetDefaults() {
	if cfg.Web.Address == "" {
		cfg.Web.Address = "0.0.0.0:8080"
	}

	if cfg.Upstream.AuthHeader == "" {
		cfg.Upstream.AuthHeader = "X-API-Key"
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = 10 * time.Second
	}
	if cfg.Upstream.PageSize == 0 {
		cfg.Upstream.PageSize = 100
	}
	if cfg.Upstream.RetryAttempts == 0 {
		cfg.Upstream.RetryAttempts = 2
	}
	if cfg.Upstream.RetryDelay == 0 {
		cfg.Upstream.RetryDelay = 200 * time.Millisecond
	}

	if cfg.MetricsDB.MaxConns == 0 {
		cfg.MetricsDB.MaxConns = 4
	}
	if cfg.PriceDB.ConnectTimeout == 0 {
		cfg.PriceDB.ConnectTimeout = 5 * time.Second
	}

	if cfg.Fleet.Currency == "" {
		cfg.Fleet.Currency = "BTC"
	}
	if cfg.Fleet.RequestTimeout == 0 {
		cfg.Fleet.RequestTimeout = 20 * time.Second
	}
	if cfg.Fleet.FanOutLimit == 0 {
		cfg.Fleet.FanOutLimit = 8
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// GetCORSOrigins splits the comma separated origins list, empty entries are dropped
func (cfg *Config) GetCORSOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(cfg.Web.CORSOrigins, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
