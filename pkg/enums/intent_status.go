package enums

import "fmt"

// IntentStatus is the canonical lifecycle state of a payment intent.
type IntentStatus string

const (
	IntentStatusCreated              IntentStatus = "CREATED"
	IntentStatusRequiresConfirmation IntentStatus = "REQUIRES_CONFIRMATION"
	IntentStatusProcessing           IntentStatus = "PROCESSING"
	IntentStatusSucceeded            IntentStatus = "SUCCEEDED"
	IntentStatusFailed               IntentStatus = "FAILED"
	IntentStatusCanceled             IntentStatus = "CANCELED"
)

var validIntentStatuses = []IntentStatus{
	IntentStatusCreated,
	IntentStatusRequiresConfirmation,
	IntentStatusProcessing,
	IntentStatusSucceeded,
	IntentStatusFailed,
	IntentStatusCanceled,
}

// intentStatusPriority ranks intent statuses for monotonic progression.
// FAILED and CANCELED share a rank below SUCCEEDED so a late approval can
// still promote a payment, while nothing walks back a success.
var intentStatusPriority = map[IntentStatus]int{
	IntentStatusCreated:              10,
	IntentStatusRequiresConfirmation: 20,
	IntentStatusProcessing:           30,
	IntentStatusFailed:               40,
	IntentStatusCanceled:             40,
	IntentStatusSucceeded:            50,
}

// String implements fmt.Stringer.
func (s IntentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known IntentStatus.
func (s IntentStatus) IsValid() bool {
	for _, candidate := range validIntentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Priority returns the monotonic rank used for transition decisions.
func (s IntentStatus) Priority() int {
	return intentStatusPriority[s]
}

// IsTerminal reports whether the status represents a settled outcome.
func (s IntentStatus) IsTerminal() bool {
	switch s {
	case IntentStatusSucceeded, IntentStatusFailed, IntentStatusCanceled:
		return true
	}
	return false
}

// ParseIntentStatus converts raw input into an IntentStatus.
func ParseIntentStatus(value string) (IntentStatus, error) {
	for _, candidate := range validIntentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid intent status %q", value)
}
