package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	grpclog "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthWorker serves the standard gRPC health service so orchestrators can
// probe the server. It reports SERVING while running and NOT_SERVING once
// its context ends.
type HealthWorker struct {
	log    *slog.Logger
	addr   string
	health *health.Server

	mu    sync.Mutex
	bound net.Addr
}

func NewHealthWorker(log *slog.Logger, addr string) *HealthWorker {
	return &HealthWorker{log: log, addr: addr, health: health.NewServer()}
}

// Addr returns the address the worker listens on, or nil before it started.
func (w *HealthWorker) Addr() net.Addr {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bound
}

func (w *HealthWorker) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", w.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", w.addr, err)
	}
	w.mu.Lock()
	w.bound = listener.Addr()
	w.mu.Unlock()

	s := grpc.NewServer(grpc.ChainUnaryInterceptor(grpclog.UnaryLoggingInterceptor(w.log)))
	healthpb.RegisterHealthServer(s, w.health)
	w.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		w.log.Info("Starting gRPC health server", "address", listener.Addr().String())
		serveErr <- s.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		w.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		s.GracefulStop()
		return nil
	case err := <-serveErr:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("gRPC health server error: %w", err)
		}
		return nil
	}
}
