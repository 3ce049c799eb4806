package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"gitlab.com/TitanInd/fleet-metrics/internal/config"
	"gitlab.com/TitanInd/fleet-metrics/internal/interfaces"
	"gitlab.com/TitanInd/fleet-metrics/internal/metrics"
	"gitlab.com/TitanInd/fleet-metrics/internal/resources/fleet"
)

const readinessTimeout = 3 * time.Second

type SnapshotEngine interface {
	Snapshot(ctx context.Context) (fleet.FleetSnapshot, fleet.Status)
}

// ReadinessCheck reports whether a source is configured and, if it can tell, whether it is reachable
type ReadinessCheck func(ctx context.Context) (configured bool, err error)

type HTTPConfig struct {
	CORSOrigins []string
	AccessLog   *zap.Logger // request logging and panic recovery, skipped when nil
}

type HTTPHandler struct {
	engine SnapshotEngine
	checks map[string]ReadinessCheck
	log    interfaces.ILogger
}

func NewHTTPHandler(engine SnapshotEngine, checks map[string]ReadinessCheck, cfg HTTPConfig, log interfaces.ILogger) *gin.Engine {
	handl := &HTTPHandler{
		engine: engine,
		checks: checks,
		log:    log,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	if cfg.AccessLog != nil {
		r.Use(ginzap.Ginzap(cfg.AccessLog, time.RFC3339, true))
		r.Use(ginzap.RecoveryWithZap(cfg.AccessLog, true))
	} else {
		r.Use(gin.Recovery())
	}
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	}

	r.GET("/healthcheck", handl.HealthCheck)
	r.GET("/readyz", handl.Readiness)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/api/fleet/metrics", handl.GetFleetMetrics)

	err := r.SetTrustedProxies(nil)
	if err != nil {
		panic(err)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func (h *HTTPHandler) HealthCheck(ctx *gin.Context) {
	ctx.JSON(200, gin.H{
		"status":  "healthy",
		"version": config.BuildVersion,
	})
}

// GetFleetMetrics always answers 200, failures only show up as zeroed fields and
// the degraded sources list
func (h *HTTPHandler) GetFleetMetrics(ctx *gin.Context) {
	snapshot, status := h.snapshot(ctx.Request.Context())

	ctx.JSON(http.StatusOK, &FleetMetricsResponse{
		Success:         true,
		Message:         status.Message,
		DegradedSources: status.DegradedSources,
		Data:            snapshot,
	})
}

func (h *HTTPHandler) snapshot(ctx context.Context) (snapshot fleet.FleetSnapshot, status fleet.Status) {
	defer func() {
		if p := recover(); p != nil {
			h.log.Errorf("fleet snapshot panicked: %v", p)
			snapshot = fleet.EmptySnapshot()
			status = fleet.NewStatus([]string{fleet.SourceEngine.String()})
		}
	}()

	snapshot, status = h.engine.Snapshot(ctx)
	if status.DegradedSources == nil {
		status.DegradedSources = []string{}
	}
	return snapshot, status
}

// Readiness checks every source concurrently, it never fails the request
func (h *HTTPHandler) Readiness(ctx *gin.Context) {
	checkCtx, cancel := context.WithTimeout(ctx.Request.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	slices.Sort(names)

	states := make([]SourceReadiness, len(names))
	var g errgroup.Group
	for i, name := range names {
		check := h.checks[name]
		g.Go(func() error {
			states[i] = runCheck(checkCtx, check)
			return nil
		})
	}
	_ = g.Wait()

	res := &ReadinessResponse{Ready: true, Sources: make(map[string]SourceReadiness, len(names))}
	for i, name := range names {
		if !states[i].Configured || !states[i].Reachable {
			res.Ready = false
		}
		res.Sources[name] = states[i]
	}

	ctx.JSON(http.StatusOK, res)
}

func runCheck(ctx context.Context, check ReadinessCheck) (state SourceReadiness) {
	defer func() {
		if p := recover(); p != nil {
			state = SourceReadiness{Configured: true, Error: "check panicked"}
		}
	}()

	configured, err := check(ctx)
	state.Configured = configured
	if !configured {
		return state
	}
	if err != nil {
		state.Error = err.Error()
		return state
	}
	state.Reachable = true
	return state
}
