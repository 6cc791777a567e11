package site

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/vitrine/internal/platform/timeouts"
	"github.com/louisbranch/vitrine/internal/services/site/cache"
)

// Server runs the site's HTTP listener and the cache purge loop.
type Server struct {
	httpAddr   string
	httpServer *http.Server
	cache      *cache.Cache
	logger     *slog.Logger
}

// NewServer wraps handler in an HTTP server listening on addr.
func NewServer(addr string, handler http.Handler, c *cache.Cache, logger *slog.Logger) (*Server, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("http address is required")
	}
	if handler == nil {
		return nil, errors.New("http handler is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		httpAddr: addr,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           http.TimeoutHandler(handler, timeouts.Request, "request timed out"),
			ReadHeaderTimeout: timeouts.ReadHeader,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
		cache:  c,
		logger: logger,
	}, nil
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpAddr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx ends.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if s == nil {
		return errors.New("site server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("site listening", "addr", listener.Addr().String())
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})
	if s.cache != nil {
		g.Go(func() error {
			return s.cache.RunPurger(ctx, timeouts.CachePurgeInterval, timeouts.CachePurgeGrace)
		})
	}
	return g.Wait()
}
