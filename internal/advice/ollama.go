package advice

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"example.com/runcoach/internal/domain"
)

// DefaultOllamaURL is the address of a local model service.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaConfig configures the local model backend.
type OllamaConfig struct {
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// OllamaBackend generates text through a local Ollama server.
type OllamaBackend struct {
	client *api.Client
	config OllamaConfig
}

// NewOllamaBackend constructs a backend. Request lifetimes are bounded by the
// caller's context, so the HTTP client carries no timeout of its own.
func NewOllamaBackend(cfg OllamaConfig) *OllamaBackend {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Host == "" {
		base, _ = url.Parse(DefaultOllamaURL)
	}
	return &OllamaBackend{
		client: api.NewClient(base, &http.Client{}),
		config: cfg,
	}
}

// Name identifies the backend in logs and metrics.
func (b *OllamaBackend) Name() string { return "local" }

func (b *OllamaBackend) request(prompt string, stream bool) *api.GenerateRequest {
	options := map[string]any{}
	if b.config.Temperature != 0 {
		options["temperature"] = b.config.Temperature
	}
	if b.config.MaxTokens > 0 {
		options["num_predict"] = b.config.MaxTokens
	}
	return &api.GenerateRequest{
		Model:   b.config.Model,
		Prompt:  prompt,
		Stream:  &stream,
		Options: options,
	}
}

// Complete performs a non-streaming generation.
func (b *OllamaBackend) Complete(ctx context.Context, prompt string) (string, error) {
	var (
		out  strings.Builder
		done bool
	)
	err := b.client.Generate(ctx, b.request(prompt, false), func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		done = done || resp.Done
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}
	if !done {
		return "", fmt.Errorf("%w: response ended without completion", domain.ErrGeneration)
	}
	return out.String(), nil
}

// Stream emits each generated fragment until the server reports completion.
func (b *OllamaBackend) Stream(ctx context.Context, prompt string, emit func(string) error) error {
	var (
		done    bool
		emitErr error
	)
	err := b.client.Generate(ctx, b.request(prompt, true), func(resp api.GenerateResponse) error {
		if resp.Response != "" {
			if err := emit(resp.Response); err != nil {
				emitErr = err
				return err
			}
		}
		done = done || resp.Done
		return nil
	})
	if emitErr != nil {
		return emitErr
	}
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}
	if !done {
		return fmt.Errorf("%w: stream ended without completion", domain.ErrGeneration)
	}
	return nil
}
