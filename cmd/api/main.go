package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/runcoach/internal/api"
	"example.com/runcoach/internal/app"
	"example.com/runcoach/internal/config"
	"example.com/runcoach/internal/logging"
	"example.com/runcoach/internal/observability"
	httptransport "example.com/runcoach/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "runcoach: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("close resources", "error", err)
		}
	}()

	if cfg.Strava.VerifyToken == "" {
		logger.Warn("STRAVA_VERIFY_TOKEN is empty; subscription handshakes will be rejected")
	}

	handler := api.NewHandler(application.Pipeline, cfg.Strava.VerifyToken, logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	collector, err := observability.NewHTTPCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}, collector.InstrumentHandler(mux))

	logger.Info("runcoach listening",
		"address", cfg.HTTPAddress,
		"backend", cfg.Generator.Backend,
		"ledger", cfg.Ledger.Driver,
		"channels", cfg.DeliveryChannels,
	)
	if err := httptransport.Run(ctx, server, cfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("runcoach stopped")
	return nil
}
