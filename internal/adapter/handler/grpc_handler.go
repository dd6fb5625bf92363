package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the name the inventory service reports under in the
// standard gRPC health protocol.
const ServiceName = "inventory.v1.InventoryService"

// Probe reports whether a dependency the service cannot run without is reachable.
type Probe func(ctx context.Context) error

type GRPCHandler struct {
	health *health.Server
	probe  Probe
	logger *zap.Logger
}

func NewGRPCHandler(probe Probe, logger *zap.Logger) *GRPCHandler {
	h := &GRPCHandler{health: health.NewServer(), probe: probe, logger: logger}
	h.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register attaches the health service and server reflection to srv.
func (h *GRPCHandler) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, h.health)
	reflection.Register(srv)
}

func (h *GRPCHandler) Health() *health.Server {
	return h.health
}

// Refresh runs the probe once and publishes the result.
func (h *GRPCHandler) Refresh(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if h.probe != nil {
		if err := h.probe(ctx); err != nil {
			h.logger.Warn("health probe failed", zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.health.SetServingStatus(ServiceName, status)
	h.health.SetServingStatus("", status)
}

// Watch refreshes the status every interval until ctx is done.
func (h *GRPCHandler) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING so load balancers drain traffic.
func (h *GRPCHandler) Shutdown() {
	h.health.Shutdown()
}
