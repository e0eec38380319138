package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/runcoach/internal/app"
	"example.com/runcoach/internal/config"
	"example.com/runcoach/internal/consumer"
	"example.com/runcoach/internal/logging"
	httptransport "example.com/runcoach/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "runcoach-consumer: %v\n", err)
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
	logger = logger.With("component", "consumer")

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

	metricsSrv := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.MetricsAddress,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}, promhttp.Handler())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("consumer metrics listening", "address", cfg.MetricsAddress)
		if err := httptransport.Run(ctx, metricsSrv, cfg.ShutdownTimeout); err != nil {
			logger.Error("metrics server error", "error", err)
		}
	}()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.Kafka.Brokers,
		GroupID:         cfg.Kafka.GroupID,
		Topic:           cfg.Kafka.EventsTopic,
		MinBytes:        1,
		MaxBytes:        10e6,
		CommitInterval:  0,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
	defer reader.Close()

	proc := consumer.NewProcessor(reader, consumer.NewPipelineHandler(application.Pipeline), consumer.WithLogger(logger))

	logger.Info("consumer started", "topic", cfg.Kafka.EventsTopic, "group", cfg.Kafka.GroupID)
	err = proc.Run(ctx)
	stop()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consumer stopped: %w", err)
	}
	logger.Info("consumer stopped")
	return nil
}
