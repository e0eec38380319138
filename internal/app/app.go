// Package app assembles the advice pipeline from configuration. Both the HTTP
// service and the Kafka consumer share this wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/runcoach/internal/advice"
	"example.com/runcoach/internal/config"
	"example.com/runcoach/internal/delivery"
	"example.com/runcoach/internal/persistence"
	"example.com/runcoach/internal/persistence/postgres"
	"example.com/runcoach/internal/persistence/sqlite"
	"example.com/runcoach/internal/pipeline"
	"example.com/runcoach/internal/prompt"
	"example.com/runcoach/internal/strava"
)

// App owns the pipeline and the resources behind it.
type App struct {
	Pipeline *pipeline.Pipeline

	closers []func() error
}

// New builds every dependency of the pipeline. On error any resource opened so
// far is released.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	ledger, err := a.openLedger(ctx, cfg.Ledger, logger)
	if err != nil {
		return nil, err
	}

	source := strava.NewClient(strava.Config{
		APIURL:        cfg.Strava.APIURL,
		OAuthURL:      cfg.Strava.OAuthURL,
		ClientID:      cfg.Strava.ClientID,
		ClientSecret:  cfg.Strava.ClientSecret,
		ActivityLimit: cfg.Strava.ActivityLimit,
	}, strava.NewTokenStore(cfg.Strava.TokenFile), &http.Client{Timeout: cfg.Strava.FetchTimeout}, logger)

	generator := advice.NewAdapter(NewBackend(cfg.Generator),
		advice.WithTimeout(cfg.Generator.Timeout),
		advice.WithPacing(cfg.Generator.Pacing),
		advice.WithLogger(logger),
	)

	a.Pipeline = pipeline.New(
		source,
		ledger,
		persistence.NewArtifactStore(cfg.Paths.ActivityData, cfg.Paths.SummaryStatistics),
		prompt.NewFormatter(cfg.Paths.PromptTemplate),
		generator,
		a.notifier(cfg, logger),
		pipeline.WithLogger(logger),
		pipeline.WithFetchTimeout(cfg.Strava.FetchTimeout),
		pipeline.WithNotifyTimeout(cfg.Email.Timeout),
	)
	return a, nil
}

// NewBackend selects the text-generation backend named in cfg.
func NewBackend(cfg config.GeneratorConfig) advice.Backend {
	if cfg.Backend == config.BackendLocal {
		return advice.NewOllamaBackend(advice.OllamaConfig{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	}
	return advice.NewOpenAIBackend(advice.OpenAIConfig{
		APIKey:      cfg.APIToken,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
}

func (a *App) openLedger(ctx context.Context, cfg config.LedgerConfig, logger *slog.Logger) (pipeline.Ledger, error) {
	switch cfg.Driver {
	case config.LedgerPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })

		ledger := postgres.NewLedger(pool)
		if err := ledger.Init(ctx); err != nil {
			return nil, err
		}
		logger.Info("ledger ready", "driver", cfg.Driver)
		return ledger, nil
	default:
		ledger, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, ledger.Close)
		logger.Info("ledger ready", "driver", config.LedgerSQLite, "path", cfg.SQLitePath)
		return ledger, nil
	}
}

func (a *App) notifier(cfg config.Config, logger *slog.Logger) *delivery.Multi {
	var notifiers []delivery.Notifier
	if cfg.HasChannel(config.ChannelEmail) {
		notifiers = append(notifiers, delivery.NewSMTPNotifier(delivery.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Sender:   cfg.Email.Sender,
			Password: cfg.Email.Password,
			Receiver: cfg.Email.Receiver,
			Timeout:  cfg.Email.Timeout,
		}, logger))
	}
	if cfg.HasChannel(config.ChannelKafka) {
		bus := delivery.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.AdviceTopic, logger)
		a.closers = append(a.closers, bus.Close)
		notifiers = append(notifiers, bus)
	}
	return delivery.NewMulti(logger, notifiers...)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
