package enums

import "fmt"

// EventSource records which pathway observed a provider status.
type EventSource string

const (
	EventSourceSystem         EventSource = "system"
	EventSourceWebhook        EventSource = "webhook"
	EventSourceReconciliation EventSource = "reconciliation"
)

var validEventSources = []EventSource{
	EventSourceSystem,
	EventSourceWebhook,
	EventSourceReconciliation,
}

// String implements fmt.Stringer.
func (s EventSource) String() string {
	return string(s)
}

// IsValid reports whether the value is a known EventSource.
func (s EventSource) IsValid() bool {
	for _, candidate := range validEventSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseEventSource converts raw input into an EventSource.
func ParseEventSource(value string) (EventSource, error) {
	for _, candidate := range validEventSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event source %q", value)
}
