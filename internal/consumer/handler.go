package consumer

import (
	"context"
	"errors"

	"example.com/runcoach/internal/domain"
	"example.com/runcoach/internal/pipeline"
)

// EventHandler is the part of the pipeline that handles decoded events.
type EventHandler interface {
	HandleEvent(ctx context.Context, evt domain.WebhookEvent) pipeline.Result
}

// PipelineHandler feeds consumed webhook events to the advice pipeline.
// Redelivered events are harmless because the pipeline's ledger reports them
// as already processed.
type PipelineHandler struct {
	events EventHandler
}

// NewPipelineHandler constructs a handler.
func NewPipelineHandler(events EventHandler) *PipelineHandler {
	return &PipelineHandler{events: events}
}

// Handle runs the event. Only an error status is returned as an error, so the
// message is retried; failed advice runs stay claimed and are committed.
func (h *PipelineHandler) Handle(ctx context.Context, msg Message) error {
	result := h.events.HandleEvent(ctx, msg.Event)
	if result.Status == domain.EventStatusError {
		return errors.New(result.Message)
	}
	return nil
}
