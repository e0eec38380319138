package advice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/runcoach/internal/domain"
)

func newOpenAIServer(t *testing.T, deltas []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer hf-token", r.Header.Get("Authorization"))

		var req struct {
			Model    string `json:"model"`
			Stream   bool   `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "mistralai/Mistral-7B-Instruct-v0.3", req.Model)
		require.Len(t, req.Messages, 1)
		require.Equal(t, "user", req.Messages[0].Role)

		if !req.Stream {
			w.Header().Set("Content-Type", "application/json")
			full := ""
			for _, d := range deltas {
				full += d
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":     "cmpl-1",
				"object": "chat.completion",
				"choices": []map[string]any{{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": full},
					"finish_reason": "stop",
				}},
			})
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range deltas {
			payload, _ := json.Marshal(map[string]any{
				"id":      "cmpl-1",
				"object":  "chat.completion.chunk",
				"choices": []map[string]any{{"index": 0, "delta": map[string]string{"content": d}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestOpenAIBackendCompleteAndStream(t *testing.T) {
	srv := newOpenAIServer(t, []string{"Nice ", "tempo ", "run."})
	defer srv.Close()

	backend := NewOpenAIBackend(OpenAIConfig{
		APIKey:    "hf-token",
		BaseURL:   srv.URL + "/v1",
		Model:     "mistralai/Mistral-7B-Instruct-v0.3",
		MaxTokens: 10000,
	})

	text, err := backend.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	require.Equal(t, "Nice tempo run.", text)

	var chunks []string
	err = backend.Stream(context.Background(), "prompt", func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Nice ", "tempo ", "run."}, chunks)
}

func TestOpenAIBackendReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid token","type":"auth"}}`))
	}))
	defer srv.Close()

	backend := NewOpenAIBackend(OpenAIConfig{APIKey: "bad", BaseURL: srv.URL + "/v1", Model: "m"})
	_, err := backend.Complete(context.Background(), "prompt")
	require.ErrorIs(t, err, domain.ErrGeneration)

	out := NewAdapter(backend).Generate(context.Background(), "prompt")
	require.True(t, IsErrorText(out))
	require.Contains(t, out, "invalid token")
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func TestOllamaBackendCompleteAndStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "llama3.2:latest", req.Model)
		require.Equal(t, "prompt", req.Prompt)
		require.InDelta(t, 0.7, req.Options["temperature"], 1e-6)
		require.EqualValues(t, 512, req.Options["num_predict"])

		if !req.Stream {
			_ = json.NewEncoder(w).Encode(ollamaResponse{Response: "Hydrate well.", Done: true})
			return
		}
		enc := json.NewEncoder(w)
		_ = enc.Encode(ollamaResponse{Response: "Hydrate "})
		_ = enc.Encode(ollamaResponse{Response: "well."})
		_ = enc.Encode(ollamaResponse{Done: true})
	}))
	defer srv.Close()

	backend := NewOllamaBackend(OllamaConfig{BaseURL: srv.URL + "/", Model: "llama3.2:latest", Temperature: 0.7, MaxTokens: 512})

	text, err := backend.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	require.Equal(t, "Hydrate well.", text)

	a := NewAdapter(backend, WithPacing(0))
	require.Equal(t, text, Collect(a.GenerateStream(context.Background(), "prompt")))
}

func TestOllamaBackendStreamErrorRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		enc := json.NewEncoder(w)
		_ = enc.Encode(ollamaResponse{Response: "Start "})
		_ = enc.Encode(ollamaResponse{Error: "model not found"})
	}))
	defer srv.Close()

	a := NewAdapter(NewOllamaBackend(OllamaConfig{BaseURL: srv.URL, Model: "x"}), WithPacing(0))
	out := Collect(a.GenerateStream(context.Background(), "prompt"))
	require.Equal(t, "Start Error: generation failed: model not found", out)
}

func TestOllamaBackendStreamWithoutDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaResponse{Response: "Half "})
	}))
	defer srv.Close()

	err := NewOllamaBackend(OllamaConfig{BaseURL: srv.URL, Model: "x"}).Stream(context.Background(), "p", func(string) error { return nil })
	require.ErrorIs(t, err, domain.ErrGeneration)
}

func TestOllamaBackendNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(ollamaResponse{Error: "server busy"})
	}))
	defer srv.Close()

	_, err := NewOllamaBackend(OllamaConfig{BaseURL: srv.URL}).Complete(context.Background(), "p")
	require.ErrorIs(t, err, domain.ErrGeneration)
	require.Contains(t, err.Error(), "busy")
}
