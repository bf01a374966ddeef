// Package httpapi exposes AuthService over JSON/HTTP. Every request passes
// the same middleware chain: request id and access log, security headers,
// per-IP rate limit and the threat screen.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/services"
	"github.com/dmitrijs2005/authcore/internal/server/threat"
	"github.com/dmitrijs2005/authcore/internal/timex"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	address        string
	auth           *services.AuthService
	screener       *threat.Screener
	limiter        *endpointLimiter
	trustedProxies []netip.Prefix
	logger         logging.Logger
	mux            *http.ServeMux
	handler        http.Handler
}

// Option customizes a Server.
type Option func(*Server)

// WithTrustedProxies lets requests arriving from these prefixes name the
// client in X-Forwarded-For.
func WithTrustedProxies(p []netip.Prefix) Option {
	return func(s *Server) { s.trustedProxies = p }
}

func NewServer(a string, l logging.Logger, auth *services.AuthService, screener *threat.Screener, clock timex.Clock, opts ...Option) *Server {
	s := &Server{
		address:  a,
		auth:     auth,
		screener: screener,
		limiter:  newEndpointLimiter(defaultLimitRules, clock),
		logger:   l.With("module", "http_server"),
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mountRoutes()
	s.handler = chain(s.mux, s.requestLog(), securityHeaders(), s.rateLimit(), s.screen())
	return s
}

// Handler returns the root handler with the full middleware chain.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Run(ctx context.Context) error {

	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
