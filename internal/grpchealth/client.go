package grpchealth

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/example/image-classifier/internal/logging"
)

// Checker probes a remote health service.
type Checker struct {
	conn   *grpc.ClientConn
	client healthpb.HealthClient
	logger *zap.Logger
}

// Dial prepares a checker for addr. The connection is established lazily, so
// Dial succeeds even while the predictor is still starting.
func Dial(ctx context.Context, addr string, logger *zap.Logger) (*Checker, error) {
	conn, err := grpc.DialContext(
		ctx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		wrapped := logging.NewOperationError("grpchealth.dial", "", err)
		logger.Error("failed to dial health service", zap.Error(wrapped), zap.String("addr", addr))
		return nil, wrapped
	}
	return &Checker{conn: conn, client: healthpb.NewHealthClient(conn), logger: logger}, nil
}

// Check reports whether the predictor is SERVING.
func (c *Checker) Check(ctx context.Context) (bool, error) {
	resp, err := c.client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		wrapped := logging.NewOperationError("grpchealth.check", "", err)
		c.logger.Warn("health check failed", zap.Error(wrapped))
		return false, wrapped
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// Close releases the connection.
func (c *Checker) Close() error {
	return c.conn.Close()
}
