package server

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NotifyService is the service name reported by the health endpoint.
const NotifyService = "chat.notify"

// HealthServer answers grpc.health.v1 checks.
// The process is SERVING only while the change feed is connected.
type HealthServer struct {
	log    *slog.Logger
	health *health.Server
	server *grpc.Server
}

func NewHealthServer(log *slog.Logger) *HealthServer {
	h := &HealthServer{
		log:    log,
		health: health.NewServer(),
		server: grpc.NewServer(),
	}
	healthpb.RegisterHealthServer(h.server, h.health)
	h.SetFeedConnected(false)
	return h
}

func (h *HealthServer) SetFeedConnected(connected bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if connected {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(NotifyService, status)
}

// Serve blocks until Stop is called.
func (h *HealthServer) Serve(listener net.Listener) error {
	h.log.Info("Starting gRPC health server", "address", listener.Addr().String())
	if err := h.server.Serve(listener); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("gRPC health server error: %w", err)
	}
	return nil
}

// Stop marks every service NOT_SERVING then drains the server.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
