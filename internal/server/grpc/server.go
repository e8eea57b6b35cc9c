// Package grpc runs the gRPC health endpoint used by orchestrator probes.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/userhub/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Pinger reports whether a dependency is reachable. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// GRPCServer serves grpc.health.v1.Health and server reflection. The overall
// status follows the database: SERVING while it answers pings.
type GRPCServer struct {
	address       string
	logger        logging.Logger
	db            Pinger
	checkInterval time.Duration
	health        *health.Server
}

func NewGRPCServer(a string, l logging.Logger, db Pinger, checkInterval time.Duration) *GRPCServer {
	return &GRPCServer{
		address:       a,
		logger:        l.With("module", "grpc_server"),
		db:            db,
		checkInterval: checkInterval,
		health:        health.NewServer(),
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	// creates gRPC-server
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))

	// registers services
	healthpb.RegisterHealthServer(srv, s.health)
	reflection.Register(srv)

	s.checkHealth(ctx)
	go s.watchHealth(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}

func (s *GRPCServer) watchHealth(ctx context.Context) {
	if s.checkInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkHealth(ctx)
		}
	}
}

// checkHealth pings the database and publishes the result.
func (s *GRPCServer) checkHealth(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := s.db.PingContext(pingCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn(ctx, "database ping failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
}
