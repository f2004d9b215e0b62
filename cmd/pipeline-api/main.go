package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go-customer-intel/internal/api"
	"go-customer-intel/internal/config"
	"go-customer-intel/internal/logger"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := logger.Initialize(cfg.Log.JSON, cfg.Log.Level); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := api.Serve(ctx, cfg, version); err != nil {
		logger.Named("server").Errorw("Server stopped", "error", err)
		stop()
		logger.Sync()
		os.Exit(1)
	}
}
