package transport

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GRPC is the admin server of a simulation. It serves the standard gRPC
// health service, with one service name per simulated process, so probes
// such as grpc_health_probe or grpcurl can watch processes join and fail.
type GRPC struct {
	addr   string
	srv    *grpc.Server
	lis    net.Listener
	health *health.Server
	log    *zap.Logger

	mu      sync.Mutex
	stopped bool
}

// NewGRPC creates an admin server for addr (host:port, port 0 picks a free one)
func NewGRPC(addr string, log *zap.Logger) (*GRPC, error) {
	if addr == "" || !strings.Contains(addr, ":") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &GRPC{
		addr:   addr,
		srv:    grpc.NewServer(),
		health: health.NewServer(),
		log:    log,
	}, nil
}

func (g *GRPC) setupTcp() (net.Listener, error) {
	lis, err := net.Listen("tcp", g.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	return lis, nil
}

// Start binds synchronously and serves in a background goroutine
func (g *GRPC) Start() error {
	lis, err := g.setupTcp()
	if err != nil {
		return fmt.Errorf("failed to setup TCP: %w", err)
	}
	g.lis = lis

	healthpb.RegisterHealthServer(g.srv, g.health)

	// Register reflection service for gRPC tools (grpcurl, grpcui, etc.)
	reflection.Register(g.srv)

	go func() {
		if err := g.srv.Serve(lis); err != nil && err != grpc.ErrServerStopped {
			g.log.Error("admin server stopped", zap.Error(err))
		}
	}()

	g.log.Info("admin server listening", zap.String("addr", lis.Addr().String()))
	return nil
}

// Addr returns the bound address, or the configured one before Start
func (g *GRPC) Addr() string {
	if g.lis == nil {
		return g.addr
	}
	return g.lis.Addr().String()
}

// SetServing publishes the health of one process
func (g *GRPC) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus(service, status)
}

// Stop marks every service NOT_SERVING and closes the server. Safe to call twice.
func (g *GRPC) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return nil
	}
	g.stopped = true

	g.health.Shutdown()
	g.srv.Stop()
	return nil
}
