package enums

import "fmt"

// EventType labels entries in the payment event log.
type EventType string

const (
	EventTypeIntentCreated    EventType = "INTENT_CREATED"
	EventTypeAttemptCreated   EventType = "ATTEMPT_CREATED"
	EventTypeStatusTransition EventType = "STATUS_TRANSITION"
	EventTypeWebhookConfirmed EventType = "WEBHOOK_CONFIRMED"
	EventTypeReconciled       EventType = "RECONCILED"
)

var validEventTypes = []EventType{
	EventTypeIntentCreated,
	EventTypeAttemptCreated,
	EventTypeStatusTransition,
	EventTypeWebhookConfirmed,
	EventTypeReconciled,
}

// String implements fmt.Stringer.
func (t EventType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known EventType.
func (t EventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseEventType converts raw input into an EventType.
func ParseEventType(value string) (EventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
