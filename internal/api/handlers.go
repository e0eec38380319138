// Package api exposes the HTTP endpoints of the advice service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"example.com/runcoach/internal/domain"
	"example.com/runcoach/internal/pipeline"
)

const maxWebhookBody = 1 << 20

// AdviceService is the pipeline surface used by the handlers.
type AdviceService interface {
	HandlePayload(ctx context.Context, body []byte) pipeline.Result
	Stream(ctx context.Context) (<-chan string, error)
	Advise(ctx context.Context) (string, error)
}

// Handler coordinates HTTP requests with the advice pipeline.
type Handler struct {
	service     AdviceService
	verifyToken string
	logger      *slog.Logger
}

// NewHandler builds a Handler. verifyToken is the shared secret expected in
// subscription handshakes.
func NewHandler(service AdviceService, verifyToken string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, verifyToken: verifyToken, logger: logger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/strava-webhook", h.webhook)
	mux.HandleFunc("/stream_advice", h.streamAdvice)
	mux.HandleFunc("/webhook-test", h.webhookTest)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.verifySubscription(w, r)
	case http.MethodPost:
		h.receiveEvent(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) verifySubscription(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")

	challenge, err := pipeline.VerifySubscription(mode, q.Get("hub.challenge"), q.Get("hub.verify_token"), h.verifyToken)
	if err != nil {
		h.logger.Warn("webhook validation failed", "mode", mode, "token_configured", h.verifyToken != "")
		writeError(w, http.StatusForbidden, "forbidden", "Verification failed")
		return
	}
	h.logger.Info("webhook validation successful")
	writeJSON(w, http.StatusOK, map[string]string{"hub.challenge": challenge})
}

func (h *Handler) receiveEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("read webhook body", "error", err)
		writeJSON(w, http.StatusOK, pipeline.Result{Status: domain.EventStatusError, Message: err.Error()})
		return
	}

	result := h.service.HandlePayload(r.Context(), body)
	h.logger.Info("webhook handled", "status", result.Status)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) streamAdvice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	chunks, err := h.service.Stream(r.Context())
	if err != nil {
		h.logger.Error("stream advice", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	broken := false
	for chunk := range chunks {
		if broken {
			continue
		}
		if _, err := io.WriteString(w, chunk); err != nil {
			h.logger.Debug("stream client went away", "error", err)
			broken = true
			continue
		}
		_ = rc.Flush()
	}
}

// WebhookTestResponse is the body of /webhook-test.
type WebhookTestResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Advice  string `json:"advice,omitempty"`
}

func (h *Handler) webhookTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	h.logger.Info("starting webhook test")
	text, err := h.service.Advise(r.Context())
	if err != nil {
		message := fmt.Sprintf("Failed to process activity data: %v", err)
		if errors.Is(err, domain.ErrGeneration) {
			message = fmt.Sprintf("Error generating advice: %v", err)
		}
		h.logger.Error("webhook test failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, WebhookTestResponse{Status: "error", Message: message})
		return
	}

	h.logger.Info("test webhook advice generated", "advice_bytes", len(text))
	writeJSON(w, http.StatusOK, WebhookTestResponse{
		Status:  "success",
		Message: "Test webhook processed successfully",
		Advice:  text,
	})
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
