package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"gitlab.com/TitanInd/fleet-metrics/internal/interfaces"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

type Server struct {
	address string
	server  *http.Server
	log     interfaces.ILogger

	// set once the listener is bound
	listening chan net.Addr
}

func NewServer(address string, handler http.Handler, log interfaces.ILogger) *Server {
	return &Server{
		address: address,
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		log:       log,
		listening: make(chan net.Addr, 1),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("http server listen %s: %w", s.address, err)
	}
	s.listening <- listener.Addr()
	s.log.Infof("http server is listening: %s", listener.Addr())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = s.server.Shutdown(shutdownCtx)
	if err != nil {
		s.log.Warnf("http server shutdown: %s", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	s.log.Infof("http server closed")

	return ctx.Err()
}

// Addr blocks until the server is listening and returns the bound address
func (s *Server) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case addr := <-s.listening:
		s.listening <- addr
		return addr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
