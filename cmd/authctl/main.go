package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/authcore/internal/admin"
	"github.com/dmitrijs2005/authcore/internal/server/config"
)

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	cfg := config.LoadConfig()

	code := admin.Main(ctx, cfg, admin.CommandArgs(os.Args[1:]), os.Stdin, os.Stdout, os.Stderr)

	stop()
	os.Exit(code)

}
