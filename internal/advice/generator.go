// Package advice turns a formatted prompt into coaching text using a
// configurable text-generation backend.
package advice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// ErrorPrefix marks generated text that is really a failure description.
const ErrorPrefix = "Error: "

const (
	defaultPacing       = 10 * time.Millisecond
	defaultStreamBuffer = 16
)

// Generator produces advice text for a prompt. Failures are returned as text
// starting with ErrorPrefix rather than as errors.
type Generator interface {
	Generate(ctx context.Context, prompt string) string
	GenerateStream(ctx context.Context, prompt string) <-chan string
}

// Backend is a concrete text-generation service.
type Backend interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
	// Stream calls emit for each chunk in order. A non-nil error from emit
	// aborts the stream and is returned.
	Stream(ctx context.Context, prompt string, emit func(chunk string) error) error
}

// IsErrorText reports whether s is an error-valued generation result.
func IsErrorText(s string) bool {
	return strings.HasPrefix(s, ErrorPrefix)
}

// ErrorText renders err as error-valued advice.
func ErrorText(err error) string {
	return ErrorPrefix + err.Error()
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTimeout bounds each Generate or GenerateStream call. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.timeout = d }
}

// WithPacing sets the delay between streamed chunks.
func WithPacing(d time.Duration) Option {
	return func(a *Adapter) { a.pacing = d }
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Adapter implements Generator on top of a Backend.
type Adapter struct {
	backend Backend
	timeout time.Duration
	pacing  time.Duration
	buffer  int
	logger  *slog.Logger
}

// NewAdapter wraps backend.
func NewAdapter(backend Backend, opts ...Option) *Adapter {
	a := &Adapter{
		backend: backend,
		pacing:  defaultPacing,
		buffer:  defaultStreamBuffer,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

// Generate returns the whole completion, or error text on failure.
func (a *Adapter) Generate(ctx context.Context, prompt string) string {
	callCtx, cancel := a.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	text, err := a.backend.Complete(callCtx, prompt)
	observeGeneration(a.backend.Name(), modeBlocking, start, err)
	if err != nil {
		a.logger.Error("advice generation failed", "backend", a.backend.Name(), "error", err)
		return ErrorText(err)
	}
	return text
}

// GenerateStream returns a channel of chunks that is closed when the
// backend finishes. A failure yields one final error-text chunk. Cancelling
// ctx stops the producer without a final chunk.
func (a *Adapter) GenerateStream(ctx context.Context, prompt string) <-chan string {
	out := make(chan string, a.buffer)

	go func() {
		defer close(out)

		callCtx, cancel := a.withTimeout(ctx)
		defer cancel()

		start := time.Now()
		sent := 0
		err := a.backend.Stream(callCtx, prompt, func(chunk string) error {
			if chunk == "" {
				return nil
			}
			if sent > 0 && a.pacing > 0 {
				timer := time.NewTimer(a.pacing)
				select {
				case <-callCtx.Done():
					timer.Stop()
					return callCtx.Err()
				case <-timer.C:
				}
			}
			select {
			case out <- chunk:
				sent++
				return nil
			case <-callCtx.Done():
				return callCtx.Err()
			}
		})
		observeGeneration(a.backend.Name(), modeStream, start, err)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			a.logger.Debug("advice stream abandoned by caller", "backend", a.backend.Name(), "chunks", sent)
			return
		}
		a.logger.Error("advice stream failed", "backend", a.backend.Name(), "chunks", sent, "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			err = errors.New("generation timed out")
		}
		select {
		case out <- ErrorText(err):
		case <-ctx.Done():
		}
	}()

	return out
}

// Collect drains a chunk channel into one string.
func Collect(chunks <-chan string) string {
	var b strings.Builder
	for chunk := range chunks {
		b.WriteString(chunk)
	}
	return b.String()
}
