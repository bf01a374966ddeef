package admin

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/dmitrijs2005/authcore/internal/cryptox"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/config"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authcore/internal/server/services"
)

var openRepositoryManager = repomanager.Open

// Main opens storage from cfg, runs the command in args and returns the
// process exit code.
func Main(ctx context.Context, cfg *config.Config, args []string, in io.Reader, out, errOut io.Writer) int {
	rm, err := openRepositoryManager(ctx, cfg.DatabaseDSN)
	if err != nil {
		fmt.Fprintf(errOut, "authctl: %v\n", err)
		return 1
	}
	defer rm.Close()

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: slog.LevelWarn})))
	hasher := cryptox.NewPasswordHasher()
	auth := services.NewAuthService(rm, cfg, services.WithLogger(logger), services.WithHasher(hasher))

	if err := NewRunner(rm, auth, hasher, in, out).Run(ctx, args); err != nil {
		fmt.Fprintf(errOut, "authctl: %v\n", err)
		return 1
	}
	return 0
}
