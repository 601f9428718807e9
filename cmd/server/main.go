package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mcoot/biogames-go/internal/dependencies/clock"
	"github.com/mcoot/biogames-go/internal/proxy"
	"github.com/mcoot/biogames-go/internal/server"
)

const (
	releaseVersion = "1.0.0"
)

func main() {
	log.SetFlags(0)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := &Config{}
	cobra.CheckErr(newCmd(cfg).ExecuteContext(ctx))
}

func serve(ctx context.Context, cfg *Config) error {
	logger := cfg.logger()
	slog.SetDefault(logger)

	handler, err := proxy.NewRouter(cfg.proxyConfig(), clock.New(), logger)
	if err != nil {
		return err
	}

	logger.Info("proxying API requests",
		slog.String("prefix", proxy.APIPrefix),
		slog.String("backend", cfg.backend),
		slog.String("build_dir", cfg.buildDir))

	if err := server.New(handler, cfg.serverConfig(), logger).Run(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

