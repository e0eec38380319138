package advice

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"example.com/runcoach/internal/domain"
)

// HuggingFaceRouterURL is the OpenAI-compatible endpoint for hosted models.
const HuggingFaceRouterURL = "https://router.huggingface.co/v1"

// OpenAIConfig configures an OpenAI-compatible chat completion backend.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// OpenAIBackend generates text through any OpenAI-compatible chat API.
type OpenAIBackend struct {
	client *openai.Client
	config OpenAIConfig
}

// NewOpenAIBackend constructs a backend. An empty BaseURL targets the
// Hugging Face router.
func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = HuggingFaceRouterURL
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIBackend{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
	}
}

// Name identifies the backend in logs and metrics.
func (b *OpenAIBackend) Name() string { return "hosted" }

func (b *OpenAIBackend) request(prompt string, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: b.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: b.config.Temperature,
		MaxTokens:   b.config.MaxTokens,
		Stream:      stream,
	}
}

// Complete returns the first choice of a chat completion.
func (b *OpenAIBackend) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, b.request(prompt, false))
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: response contained no choices", domain.ErrGeneration)
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream emits content deltas as they arrive.
func (b *OpenAIBackend) Stream(ctx context.Context, prompt string, emit func(string) error) error {
	stream, err := b.client.CreateChatCompletionStream(ctx, b.request(prompt, true))
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrGeneration, err)
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := emit(choice.Delta.Content); err != nil {
				return err
			}
		}
	}
}
