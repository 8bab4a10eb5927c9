// Package server wires FanRide's background services (ingestion worker,
// projector, hub run-loop, HTTP listener) under one context and an
// errgroup.Group, replacing the donor main.go's hand-rolled goroutine +
// WaitGroup fan-in with errgroup's cancel-on-first-error semantics: a
// truly fatal error (e.g. the store connection is lost) brings every
// service down together, while plain context cancellation shuts all of
// them down cleanly.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Service is one long-running background component. Run blocks until ctx
// is cancelled or a fatal error occurs.
type Service interface {
	Run(ctx context.Context) error
}

// funcService adapts a plain function to Service.
type funcService struct {
	name string
	fn   func(ctx context.Context) error
}

func (f funcService) Run(ctx context.Context) error {
	if err := f.fn(ctx); err != nil {
		return fmt.Errorf("%s: %w", f.name, err)
	}
	return nil
}

// NamedService wraps fn as a Service for use with Server.Add.
func NamedService(name string, fn func(ctx context.Context) error) Service {
	return funcService{name: name, fn: fn}
}

// Server coordinates the HTTP listener and an arbitrary number of other
// background services under one lifecycle.
type Server struct {
	httpServer *http.Server
	services   []Service

	shutdownTimeout time.Duration
}

// New builds a Server that will listen on addr with handler, applying the
// given read/write/idle timeouts.
func New(addr string, handler http.Handler, readTimeout, writeTimeout, idleTimeout time.Duration) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
		shutdownTimeout: 10 * time.Second,
	}
}

// Add registers a background service to run alongside the HTTP listener.
func (s *Server) Add(svc Service) {
	s.services = append(s.services, svc)
}

// Run starts the HTTP listener and every registered service, and blocks
// until ctx is cancelled or one of them returns a fatal error. On
// cancellation the HTTP listener is shut down (with a grace period of
// shutdownTimeout) while every other service winds down concurrently on
// the same cancelled context; no order among them is enforced.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server: starting HTTP listener", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http listener: %w", err)
		}
		return nil
	})

	for _, svc := range s.services {
		svc := svc
		g.Go(func() error {
			return svc.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		slog.Info("server: stopping HTTP listener")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
