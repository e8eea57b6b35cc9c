package rest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/userhub/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// Server serves the REST API until its context is cancelled.
type Server struct {
	address string
	srv     *http.Server
	logger  logging.Logger
}

// NewServer constructs a Server listening on address.
func NewServer(address string, h http.Handler, l logging.Logger) *Server {
	return &Server{
		address: address,
		srv: &http.Server{
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       time.Minute,
			WriteTimeout:      time.Minute,
			IdleTimeout:       2 * time.Minute,
		},
		logger: l.With("module", "http_server"),
	}
}

// Run listens and serves. It returns nil after a graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "HTTP server shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := s.srv.Serve(listen); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-stopped
	return nil
}
