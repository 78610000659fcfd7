package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"kitchen-sync/internal/app/pos"
	"kitchen-sync/internal/common/config"
	"kitchen-sync/internal/common/logger"
)

func main() {
	cfgPath := pflag.String("config", "config.yml", "path to YAML config")
	port := pflag.Int("port", 0, "override http port")
	originID := pflag.String("origin-id", "", "override process origin id")
	pflag.Parse()

	lg := logger.New("bootstrap")

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		lg.Error("config_load_failed", err, map[string]any{"path": *cfgPath})
		os.Exit(1)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}
	if *originID != "" {
		cfg.Engine.OriginID = *originID
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := pos.Run(ctx, cfg); err != nil {
		lg.Error("fatal", err, nil)
		os.Exit(1)
	}
}
