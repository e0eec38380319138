package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/runcoach/internal/domain"
	"example.com/runcoach/internal/pipeline"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func webhookMessage(offset int64, value string) kafka.Message {
	return kafka.Message{
		Topic:     "strava_webhook_events",
		Partition: 0,
		Offset:    offset,
		Time:      time.Now().UTC(),
		Key:       []byte("12345"),
		Value:     []byte(value),
	}
}

func TestProcessorCommitsOnSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{
		messages: []kafka.Message{webhookMessage(10, `{"aspect_type":"create","object_type":"activity","object_id":12345,"owner_id":7,"updates":{}}`)},
		after:    contextCanceled,
	}
	handler := &stubHandler{}

	processor := NewProcessor(reader, handler, WithLogger(quietLogger()), WithRetryDelay(0))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, "12345", handler.last.Key)
	require.Equal(t, int64(12345), handler.last.Event.ObjectID)
	require.Equal(t, int64(7), handler.last.Event.OwnerID)
	require.True(t, handler.last.Event.TriggersAdvice())
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{
		messages: []kafka.Message{webhookMessage(20, `{"aspect_type":"create","object_type":"activity","object_id":9}`)},
		after:    contextCanceled,
	}
	handler := &stubHandler{err: errors.New("boom")}

	processor := NewProcessor(reader, handler, WithLogger(quietLogger()), WithRetryDelay(0))

	err := processor.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 0, reader.commitCalls)
}

func TestProcessorCommitsMalformedMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &stubReader{
		messages: []kafka.Message{
			webhookMessage(30, `{"object_id":`),
			webhookMessage(31, ``),
			webhookMessage(32, `{"object_id":5}`),
		},
		after: contextCanceled,
	}
	handler := &stubHandler{}

	err := NewProcessor(reader, handler, WithLogger(quietLogger())).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Zero(t, handler.calls)
	require.Equal(t, 3, reader.commitCalls)
}

type stubEvents struct {
	result pipeline.Result
	seen   []domain.WebhookEvent
}

func (s *stubEvents) HandleEvent(_ context.Context, evt domain.WebhookEvent) pipeline.Result {
	s.seen = append(s.seen, evt)
	return s.result
}

func TestPipelineHandlerMapsStatuses(t *testing.T) {
	msg := Message{Event: domain.WebhookEvent{AspectType: "create", ObjectType: "activity", ObjectID: 1}}

	for _, status := range []domain.EventStatus{
		domain.EventStatusProcessed,
		domain.EventStatusAlreadyProcessed,
		domain.EventStatusReceived,
	} {
		events := &stubEvents{result: pipeline.Result{Status: status}}
		require.NoError(t, NewPipelineHandler(events).Handle(context.Background(), msg), status)
		require.Equal(t, []domain.WebhookEvent{msg.Event}, events.seen)
	}

	events := &stubEvents{result: pipeline.Result{Status: domain.EventStatusError, Message: "database is locked"}}
	require.EqualError(t, NewPipelineHandler(events).Handle(context.Background(), msg), "database is locked")
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
	after       func() error
}

func (r *stubReader) FetchMessage(context.Context) (kafka.Message, error) {
	if r.index >= len(r.messages) {
		if r.after != nil {
			return kafka.Message{}, r.after()
		}
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, _ ...kafka.Message) error {
	r.commitCalls++
	return nil
}

func (r *stubReader) Close() error { return nil }

func contextCanceled() error { return context.Canceled }

type stubHandler struct {
	calls int
	err   error
	last  Message
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	return h.err
}
