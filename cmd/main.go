package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"gitlab.com/TitanInd/fleet-metrics/internal/config"
	"gitlab.com/TitanInd/fleet-metrics/internal/handlers"
	"gitlab.com/TitanInd/fleet-metrics/internal/lib"
	"gitlab.com/TitanInd/fleet-metrics/internal/metrics"
	"gitlab.com/TitanInd/fleet-metrics/internal/repositories/metricsdb"
	"gitlab.com/TitanInd/fleet-metrics/internal/repositories/pricedb"
	"gitlab.com/TitanInd/fleet-metrics/internal/repositories/transport"
	"gitlab.com/TitanInd/fleet-metrics/internal/repositories/upstream"
	"gitlab.com/TitanInd/fleet-metrics/internal/resources/fleet"
)

var (
	ErrConnectToMetricsDB = fmt.Errorf("cannot set up metrics database pool")
)

func main() {
	err := start()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	os.Exit(0)
}

func start() error {
	var cfg config.Config
	err := config.LoadConfig(&cfg, &os.Args)
	if err != nil {
		return err
	}

	log, err := lib.NewLogger(lib.LoggerConfig{
		Level:      cfg.Log.Level,
		Color:      cfg.Log.Color,
		IsProd:     cfg.Log.IsProd,
		JSON:       cfg.Log.JSON,
		FolderPath: cfg.Log.FolderPath,
	})
	if err != nil {
		return err
	}

	defer func() {
		_ = log.Sync()
	}()

	log.Infof("fleet-metrics %s", config.BuildVersion)

	// graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-shutdownChan
		log.Warnf("Received signal: %s", s)
		cancel()

		s = <-shutdownChan
		log.Warnf("Received signal: %s. Forcing exit...", s)
		os.Exit(1)
	}()

	metrics.Init()

	client, err := upstream.NewClient(upstream.ClientConfig{
		BaseURL:       cfg.Upstream.BaseURL,
		APIKey:        cfg.Upstream.APIKey,
		AuthHeader:    cfg.Upstream.AuthHeader,
		Timeout:       cfg.Upstream.Timeout,
		PageSize:      cfg.Upstream.PageSize,
		RetryAttempts: cfg.Upstream.RetryAttempts,
		RetryDelay:    cfg.Upstream.RetryDelay,
	}, log.Named("UPSTREAM"))
	if err != nil {
		return err
	}
	if !client.Configured() {
		log.Warnf("upstream API credential or url not set, serving database fallbacks only")
	}

	var metricsStore *metricsdb.MetricsStore
	if cfg.MetricsDB.URL != "" {
		pool, err := metricsdb.NewPool(ctx, cfg.MetricsDB.URL, cfg.MetricsDB.MaxConns)
		if err != nil {
			return lib.WrapError(ErrConnectToMetricsDB, err)
		}
		metricsStore = metricsdb.NewMetricsStore(pool, log.Named("METRICSDB"))
	} else {
		log.Warnf("metrics database url not set, contract fallbacks and production are disabled")
		metricsStore = metricsdb.NewMetricsStore(nil, log.Named("METRICSDB"))
	}
	defer metricsStore.Close()

	var dial pricedb.Dialer
	if cfg.PriceDB.URL != "" {
		dial = pricedb.NewDialer(cfg.PriceDB.URL, cfg.PriceDB.ConnectTimeout)
	} else {
		log.Warnf("price database url not set, USD figures will be 0")
	}
	priceStore := pricedb.NewPriceStore(dial, log.Named("PRICEDB"))

	engine := fleet.NewEngine(client, metricsStore, priceStore, fleet.EngineConfig{
		Currency:       cfg.Fleet.Currency,
		RequestTimeout: cfg.Fleet.RequestTimeout,
		FanOutLimit:    cfg.Fleet.FanOutLimit,
	}, log.Named("ENGINE"))

	checks := map[string]handlers.ReadinessCheck{
		fleet.SourceUpstream.String(): func(ctx context.Context) (bool, error) {
			return client.Configured(), nil
		},
		fleet.SourceMetricsDB.String(): func(ctx context.Context) (bool, error) {
			return metricsStore.Configured(), metricsStore.Ping(ctx)
		},
		fleet.SourcePriceDB.String(): func(ctx context.Context) (bool, error) {
			return priceStore.Configured(), nil
		},
	}

	handl := handlers.NewHTTPHandler(engine, checks, handlers.HTTPConfig{
		CORSOrigins: cfg.GetCORSOrigins(),
		AccessLog:   log.Desugar().Named("HTTP"),
	}, log.Named("HTTP"))
	httpServer := transport.NewServer(cfg.Web.Address, handl, log.Named("HTTP"))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpServer.Run(ctx)
	})

	err = g.Wait()
	log.Infof("App exited due to %s", err)
	return err
}
