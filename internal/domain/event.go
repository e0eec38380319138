package domain

// Event fields that select the advice pipeline.
const (
	ObjectTypeActivity = "activity"
	AspectTypeCreate   = "create"
)

// WebhookEvent is a push notification from the provider's subscription API.
type WebhookEvent struct {
	AspectType     string         `json:"aspect_type"`
	EventTime      int64          `json:"event_time"`
	ObjectID       int64          `json:"object_id"`
	ObjectType     string         `json:"object_type"`
	OwnerID        int64          `json:"owner_id"`
	SubscriptionID int64          `json:"subscription_id"`
	Updates        map[string]any `json:"updates,omitempty"`
}

// TriggersAdvice reports whether the event should run the full pipeline.
func (e WebhookEvent) TriggersAdvice() bool {
	return e.ObjectType == ObjectTypeActivity && e.AspectType == AspectTypeCreate
}

// EventStatus is the externally visible outcome of handling a webhook event.
type EventStatus string

const (
	EventStatusReceived         EventStatus = "received"
	EventStatusAlreadyProcessed EventStatus = "already processed"
	EventStatusProcessed        EventStatus = "processed"
	EventStatusError            EventStatus = "error"
)
