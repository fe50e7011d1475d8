package enums

import "fmt"

// AttemptStatus tracks a single provider-side charge attempt.
type AttemptStatus string

const (
	AttemptStatusInitiated       AttemptStatus = "INITIATED"
	AttemptStatusPendingProvider AttemptStatus = "PENDING_PROVIDER"
	AttemptStatusAuthorized      AttemptStatus = "AUTHORIZED"
	AttemptStatusCaptured        AttemptStatus = "CAPTURED"
	AttemptStatusFailed          AttemptStatus = "FAILED"
	AttemptStatusCanceled        AttemptStatus = "CANCELED"
)

var validAttemptStatuses = []AttemptStatus{
	AttemptStatusInitiated,
	AttemptStatusPendingProvider,
	AttemptStatusAuthorized,
	AttemptStatusCaptured,
	AttemptStatusFailed,
	AttemptStatusCanceled,
}

// String implements fmt.Stringer.
func (s AttemptStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known AttemptStatus.
func (s AttemptStatus) IsValid() bool {
	for _, candidate := range validAttemptStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsOpen reports whether the attempt is still awaiting a provider outcome.
func (s AttemptStatus) IsOpen() bool {
	switch s {
	case AttemptStatusInitiated, AttemptStatusPendingProvider, AttemptStatusAuthorized:
		return true
	}
	return false
}

// ParseAttemptStatus converts raw input into an AttemptStatus.
func ParseAttemptStatus(value string) (AttemptStatus, error) {
	for _, candidate := range validAttemptStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid attempt status %q", value)
}
