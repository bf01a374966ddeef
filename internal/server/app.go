// Package server wires storage, services and transports together and runs
// them until the process is signalled.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/auditexport"
	"github.com/dmitrijs2005/authcore/internal/server/config"
	"github.com/dmitrijs2005/authcore/internal/server/httpapi"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authcore/internal/server/services"
	"github.com/dmitrijs2005/authcore/internal/server/threat"

	gs "github.com/dmitrijs2005/authcore/internal/server/grpc"
)

type App struct {
	config         *config.Config
	logger         logging.Logger
	repomanager    repomanager.RepositoryManager
	auth           *services.AuthService
	screener       *threat.Screener
	exporter       *auditexport.Exporter
	trustedProxies []netip.Prefix
}

var openRepositoryManager = repomanager.Open

func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo)
	return newApp(context.Background(), c, logger)
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {

	proxies, err := httpapi.ParseTrustedProxies(c.TrustedProxies)
	if err != nil {
		return nil, err
	}

	rm, err := newRepositoryManager(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rules := threat.DefaultRules()
	if c.ThreatRulesFile != "" {
		rules, err = threat.LoadRules(c.ThreatRulesFile)
		if err != nil {
			_ = rm.Close()
			return nil, err
		}
	}
	detector, err := threat.NewDetector(rules)
	if err != nil {
		_ = rm.Close()
		return nil, fmt.Errorf("threat rules: %w", err)
	}

	auth := services.NewAuthService(rm, c, services.WithLogger(logger))
	app := &App{
		config:         c,
		logger:         logger,
		repomanager:    rm,
		auth:           auth,
		screener:       threat.NewScreener(detector, auth.Audit(), nil, logger),
		trustedProxies: proxies,
	}

	if c.AuditExportInterval > 0 {
		up, err := auditexport.NewS3Uploader(ctx, c)
		if err != nil {
			_ = rm.Close()
			return nil, fmt.Errorf("s3 init error: %w", err)
		}
		lastID, err := rm.Audit(rm.Conn()).LastID(ctx)
		if err != nil {
			_ = rm.Close()
			return nil, fmt.Errorf("audit cursor: %w", err)
		}
		app.exporter = auditexport.NewExporter(rm, up, c.S3Bucket, lastID, nil, logger)
	}

	return app, nil
}

func newRepositoryManager(ctx context.Context, c *config.Config) (repomanager.RepositoryManager, error) {
	rm, err := openRepositoryManager(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if err := rm.RunMigrations(ctx); err != nil {
		_ = rm.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return rm, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config.EndpointAddrHTTP, app.logger, app.auth, app.screener, nil,
		httpapi.WithTrustedProxies(app.trustedProxies))
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.auth, app.screener)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// runSessionSweeper retires expired sessions at start-up and then every
// SessionCleanupInterval.
func (app *App) runSessionSweeper(ctx context.Context) {
	if _, err := app.auth.CleanupExpiredSessions(ctx); err != nil {
		app.logger.Warn(ctx, "initial session cleanup failed", "error", err)
	}

	ticker := time.NewTicker(app.config.SessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := app.auth.CleanupExpiredSessions(ctx); err != nil {
				app.logger.Warn(ctx, "session cleanup failed", "error", err)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	if app.config.SessionCleanupInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.runSessionSweeper(ctx)
		}()
	}

	if app.exporter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.exporter.Run(ctx, app.config.AuditExportInterval)
		}()
	}

	wg.Wait()

	if err := app.repomanager.Close(); err != nil {
		app.logger.Error(ctx, "closing storage failed", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
