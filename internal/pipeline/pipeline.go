// Package pipeline orchestrates one advice run: fetch activities, aggregate,
// hand off through the artifact files, format the prompt, generate and
// deliver. Webhook events are deduplicated through a durable ledger.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/runcoach/internal/advice"
	"example.com/runcoach/internal/domain"
)

// ActivitySource supplies the athlete's recent activities.
type ActivitySource interface {
	FetchActivities(ctx context.Context) ([]domain.ActivityRecord, error)
}

// Ledger records which events have been claimed.
type Ledger interface {
	IsProcessed(ctx context.Context, eventID int64) (bool, error)
	MarkProcessed(ctx context.Context, eventID int64) error
}

// ArtifactStore persists aggregation output and returns what it read back.
// Write and read-back must be atomic with respect to other runs.
type ArtifactStore interface {
	Handoff(normalized []domain.NormalizedActivity, stats []domain.SummaryStatistics) ([]domain.NormalizedActivity, []domain.SummaryStatistics, error)
}

// Formatter renders the prompt.
type Formatter interface {
	Format(normalized []domain.NormalizedActivity, stats []domain.SummaryStatistics) (string, error)
}

// Notifier delivers advice.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) bool
}

type stage string

const (
	stageClaim     stage = "claim"
	stageFetch     stage = "fetch"
	stageAggregate stage = "aggregate"
	stageArtifacts stage = "artifacts"
	stageFormat    stage = "format"
	stageGenerate  stage = "generate"
	stageNotify    stage = "notify"
)

// AdviceSubject is the subject line of delivered advice.
const AdviceSubject = "New Workout Advice Available!"

const (
	defaultFetchTTL  = 60 * time.Second
	defaultNotifyTTL = 60 * time.Second
)

// StageError identifies which step of a run failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

func failAt(s stage, err error) error {
	return &StageError{Stage: string(s), Err: err}
}

// Result is the outcome reported to the event sender.
type Result struct {
	Status  domain.EventStatus `json:"status"`
	Message string             `json:"message,omitempty"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithFetchTimeout bounds the activity fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.fetchTimeout = d }
}

// WithNotifyTimeout bounds delivery.
func WithNotifyTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.notifyTimeout = d }
}

// Pipeline wires the collaborators of an advice run.
type Pipeline struct {
	source    ActivitySource
	ledger    Ledger
	artifacts ArtifactStore
	formatter Formatter
	generator advice.Generator
	notifier  Notifier

	logger        *slog.Logger
	fetchTimeout  time.Duration
	notifyTimeout time.Duration
}

// New constructs a Pipeline.
func New(source ActivitySource, ledger Ledger, artifacts ArtifactStore, formatter Formatter, generator advice.Generator, notifier Notifier, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:        source,
		ledger:        ledger,
		artifacts:     artifacts,
		formatter:     formatter,
		generator:     generator,
		notifier:      notifier,
		logger:        slog.Default(),
		fetchTimeout:  defaultFetchTTL,
		notifyTimeout: defaultNotifyTTL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandlePayload decodes a raw webhook body and handles it.
func (p *Pipeline) HandlePayload(ctx context.Context, body []byte) Result {
	var evt domain.WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		p.logger.Error("malformed webhook payload", "error", err)
		recordEvent(domain.EventStatusError)
		return Result{Status: domain.EventStatusError, Message: fmt.Sprintf("invalid payload: %v", err)}
	}
	return p.HandleEvent(ctx, evt)
}

// HandleEvent runs the pipeline at most once per activity creation event.
func (p *Pipeline) HandleEvent(ctx context.Context, evt domain.WebhookEvent) Result {
	result := p.handle(ctx, evt)
	recordEvent(result.Status)
	return result
}

func (p *Pipeline) handle(ctx context.Context, evt domain.WebhookEvent) Result {
	logger := p.logger.With("event_id", evt.ObjectID)
	logger.Info("webhook event received",
		"aspect_type", evt.AspectType,
		"object_type", evt.ObjectType,
		"owner_id", evt.OwnerID,
		"subscription_id", evt.SubscriptionID,
		"event_time", evt.EventTime,
		"updates", evt.Updates,
	)

	if !evt.TriggersAdvice() {
		return Result{Status: domain.EventStatusReceived}
	}
	if evt.ObjectID <= 0 {
		logger.Error("activity event without object id")
		return Result{Status: domain.EventStatusError, Message: "object_id must be a positive activity id"}
	}

	processed, err := p.ledger.IsProcessed(ctx, evt.ObjectID)
	if err != nil {
		logger.Error("ledger lookup failed", "error", err)
		return Result{Status: domain.EventStatusError, Message: err.Error()}
	}
	if processed {
		logger.Info("skipping already processed activity")
		return Result{Status: domain.EventStatusAlreadyProcessed}
	}

	if err := p.ledger.MarkProcessed(ctx, evt.ObjectID); err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) {
			logger.Info("activity claimed by a concurrent delivery")
			return Result{Status: domain.EventStatusAlreadyProcessed}
		}
		logger.Error("ledger claim failed", "stage", stageClaim, "error", err)
		recordStageFailure(stageClaim)
		return Result{Status: domain.EventStatusError, Message: err.Error()}
	}

	// The event is claimed; finish the run even if the sender hangs up.
	runCtx := context.WithoutCancel(ctx)
	logger = logger.With("run_id", uuid.NewString())
	start := time.Now()
	defer observeRun(start)

	if err := p.run(runCtx, logger); err != nil {
		var se *StageError
		if errors.As(err, &se) {
			recordStageFailure(stage(se.Stage))
			logger.Error("advice run failed", "stage", se.Stage, "error", se.Err)
		} else {
			logger.Error("advice run failed", "error", err)
		}
		return Result{Status: domain.EventStatusReceived}
	}
	logger.Info("advice delivered", "elapsed", time.Since(start))
	return Result{Status: domain.EventStatusProcessed}
}

// run executes one fetch-to-notify pass. Generated text carrying the error
// prefix fails the generate stage and is never handed to the notifier.
func (p *Pipeline) run(ctx context.Context, logger *slog.Logger) error {
	prompt, err := p.Prepare(ctx)
	if err != nil {
		return err
	}

	logger.Debug("generating advice", "stage", stageGenerate, "prompt_bytes", len(prompt))
	text := p.generator.Generate(ctx, prompt)
	if advice.IsErrorText(text) {
		return failAt(stageGenerate, fmt.Errorf("%w: %s", domain.ErrGeneration, strings.TrimPrefix(text, advice.ErrorPrefix)))
	}

	notifyCtx, cancel := context.WithTimeout(ctx, p.notifyTimeout)
	defer cancel()
	if !p.notifier.Notify(notifyCtx, AdviceSubject, text) {
		return failAt(stageNotify, domain.ErrDelivery)
	}
	return nil
}

// Prepare fetches and aggregates activities, round-trips them through the
// artifact files and returns the formatted prompt.
func (p *Pipeline) Prepare(ctx context.Context) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	records, err := p.source.FetchActivities(fetchCtx)
	cancel()
	if err != nil {
		return "", failAt(stageFetch, err)
	}

	normalized, stats, err := domain.Aggregate(records)
	if err != nil {
		return "", failAt(stageAggregate, err)
	}
	p.logger.Debug("activities aggregated", "stage", stageAggregate, "fetched", len(records), "runs", len(normalized))

	normalized, stats, err = p.artifacts.Handoff(normalized, stats)
	if err != nil {
		return "", failAt(stageArtifacts, err)
	}

	prompt, err := p.formatter.Format(normalized, stats)
	if err != nil {
		return "", failAt(stageFormat, err)
	}
	return prompt, nil
}

// Stream prepares a prompt and returns the advice chunk stream. The ledger
// is not consulted.
func (p *Pipeline) Stream(ctx context.Context) (<-chan string, error) {
	prompt, err := p.Prepare(ctx)
	if err != nil {
		return nil, err
	}
	p.logger.Info("streaming advice started")
	return p.generator.GenerateStream(ctx, prompt), nil
}

// Advise prepares a prompt and collects the streamed advice into one text.
// A stream that ends in error text is returned as an error wrapping
// domain.ErrGeneration.
func (p *Pipeline) Advise(ctx context.Context) (string, error) {
	chunks, err := p.Stream(ctx)
	if err != nil {
		return "", err
	}

	var (
		b    strings.Builder
		last string
	)
	for chunk := range chunks {
		b.WriteString(chunk)
		last = chunk
	}
	if advice.IsErrorText(last) {
		return "", failAt(stageGenerate, fmt.Errorf("%w: %s", domain.ErrGeneration, strings.TrimPrefix(last, advice.ErrorPrefix)))
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return b.String(), nil
}
