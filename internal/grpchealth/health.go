// Package grpchealth serves the standard gRPC health protocol, driven by a
// periodic database probe, and provides a small client for it.
package grpchealth

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// ServiceName is the health entry for the discovery backend. The empty
// name reports overall server health and mirrors it.
const ServiceName = "discovery.Operations"

const probeInterval = 15 * time.Second

// Pinger is any dependency whose reachability decides serving status.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is a gRPC server that only hosts the health service.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	pinger   Pinger
	interval time.Duration
	logger   *slog.Logger
}

// NewServer creates a health server probing p.
func NewServer(p Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gs := grpc.NewServer(grpc.KeepaliveParams(keepalive.ServerParameters{
		Time:    2 * time.Minute,
		Timeout: 10 * time.Second,
	}))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{grpc: gs, health: hs, pinger: p, interval: probeInterval, logger: logger}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *Server) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Probe pings the dependency once and updates the serving status.
func (s *Server) Probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.pinger.Ping(ctx); err != nil {
		s.logger.Warn("Health probe failed", "error", err)
		s.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	s.set(healthpb.HealthCheckResponse_SERVING)
}

// Serve probes immediately, then on every interval, and serves lis until
// ctx is done or the listener fails.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.Probe(ctx)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Probe(ctx)
			case <-ctx.Done():
				s.health.Shutdown()
				s.grpc.GracefulStop()
				return
			}
		}
	}()

	s.logger.Info("gRPC health server listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("serve grpc health: %w", err)
	}
	return nil
}

// Check dials addr and returns the serving status of service.
func Check(ctx context.Context, addr, service string, opts ...grpc.DialOption) (healthpb.HealthCheckResponse_ServingStatus, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check: %w", err)
	}
	return resp.GetStatus(), nil
}
