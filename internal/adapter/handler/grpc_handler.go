package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// PanelServiceName is the service name reported on the health endpoint.
const PanelServiceName = "stockpilot.panel"

// Pinger checks one backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// GRPCHandler serves grpc.health.v1 for the panel and reflects the state of
// its backing stores.
type GRPCHandler struct {
	health  *health.Server
	checks  map[string]Pinger
	timeout time.Duration
	logger  *zap.Logger
}

func NewGRPCHandler(checks map[string]Pinger, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &GRPCHandler{
		health:  health.NewServer(),
		checks:  checks,
		timeout: 2 * time.Second,
		logger:  logger.Named("grpc"),
	}
	h.health.SetServingStatus(PanelServiceName, healthpb.HealthCheckResponse_SERVING)
	return h
}

func (h *GRPCHandler) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
}

// Probe pings every backing store once and flips the panel status accordingly.
func (h *GRPCHandler) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for name, check := range h.checks {
		pctx, cancel := context.WithTimeout(ctx, h.timeout)
		err := check.Ping(pctx)
		cancel()
		if err != nil {
			h.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.health.SetServingStatus(PanelServiceName, status)
	h.health.SetServingStatus("", status)
	return status
}

// Shutdown reports NOT_SERVING to every watcher before the server stops.
func (h *GRPCHandler) Shutdown() {
	h.health.Shutdown()
}
