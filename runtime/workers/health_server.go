package workers

import (
	"context"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name reported by the gRPC health service.
const ServiceName = "nexchat"

// HealthServerWorker exposes the standard gRPC health protocol so that
// orchestrators can probe the process without speaking the chat protocol.
type HealthServerWorker struct {
	log     *slog.Logger
	address string
	health  *health.Server
}

func NewHealthServerWorker(log *slog.Logger, address string) *HealthServerWorker {
	return &HealthServerWorker{log: log, address: address, health: health.NewServer()}
}

func (w *HealthServerWorker) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", w.address)
	if err != nil {
		return err
	}
	return w.Serve(ctx, listener)
}

func (w *HealthServerWorker) Serve(ctx context.Context, listener net.Listener) error {
	s := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(s, w.health)
	w.health.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	w.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	errChan := make(chan error, 1)
	go func() {
		w.log.Info("Starting gRPC health server", "address", listener.Addr().String())
		errChan <- s.Serve(listener)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		w.health.Shutdown()
		s.GracefulStop()
		return nil
	}
}

// SetServing toggles the reported status, e.g. while the store is closing.
func (w *HealthServerWorker) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	w.health.SetServingStatus(ServiceName, status)
}
