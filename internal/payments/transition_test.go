package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/selliahq/payments-backend/pkg/enums"
)

func TestResolveOutcomeTable(t *testing.T) {
	cases := []struct {
		provider    string
		intent      enums.IntentStatus
		attempt     enums.AttemptStatus
		transaction enums.TransactionStatus
		known       bool
	}{
		{"pending", enums.IntentStatusProcessing, enums.AttemptStatusPendingProvider, enums.TransactionStatusPending, true},
		{"in_process", enums.IntentStatusProcessing, enums.AttemptStatusAuthorized, enums.TransactionStatusPending, true},
		{"approved", enums.IntentStatusSucceeded, enums.AttemptStatusCaptured, enums.TransactionStatusApproved, true},
		{"rejected", enums.IntentStatusFailed, enums.AttemptStatusFailed, enums.TransactionStatusRejected, true},
		{"cancelled", enums.IntentStatusCanceled, enums.AttemptStatusCanceled, enums.TransactionStatusFailed, true},
		{"charged_back", enums.IntentStatusFailed, enums.AttemptStatusFailed, enums.TransactionStatusRejected, true},
	}

	for _, tc := range cases {
		t.Run(tc.provider, func(t *testing.T) {
			outcome := ResolveOutcome(tc.provider)
			assert.Equal(t, tc.intent, outcome.Intent)
			assert.Equal(t, tc.attempt, outcome.Attempt)
			assert.Equal(t, tc.transaction, outcome.Transaction)
			assert.Equal(t, tc.known, outcome.Known)
		})
	}
}

func TestResolveOutcomeNormalizesInput(t *testing.T) {
	outcome := ResolveOutcome("  Approved ")
	assert.True(t, outcome.Known)
	assert.Equal(t, enums.IntentStatusSucceeded, outcome.Intent)
}

func TestResolveOutcomeUnknownFailsClosed(t *testing.T) {
	for _, status := range []string{"refunded", "in_mediation", "authorized", "", "definitely_not_a_status"} {
		outcome := ResolveOutcome(status)
		assert.False(t, outcome.Known, "status %q should be unknown", status)
		assert.Equal(t, enums.IntentStatusFailed, outcome.Intent)
		assert.Equal(t, enums.AttemptStatusFailed, outcome.Attempt)
		assert.Equal(t, enums.TransactionStatusFailed, outcome.Transaction)
	}
}

func TestShouldTransitionIsMonotonic(t *testing.T) {
	// Forward moves are allowed.
	assert.True(t, ShouldTransition(enums.IntentStatusCreated, enums.IntentStatusRequiresConfirmation))
	assert.True(t, ShouldTransition(enums.IntentStatusRequiresConfirmation, enums.IntentStatusProcessing))
	assert.True(t, ShouldTransition(enums.IntentStatusProcessing, enums.IntentStatusSucceeded))

	// A late approval outranks a failure.
	assert.True(t, ShouldTransition(enums.IntentStatusFailed, enums.IntentStatusSucceeded))
	assert.True(t, ShouldTransition(enums.IntentStatusCanceled, enums.IntentStatusSucceeded))

	// Nothing walks back a success.
	assert.False(t, ShouldTransition(enums.IntentStatusSucceeded, enums.IntentStatusFailed))
	assert.False(t, ShouldTransition(enums.IntentStatusSucceeded, enums.IntentStatusProcessing))

	// Failures do not regress to processing.
	assert.False(t, ShouldTransition(enums.IntentStatusFailed, enums.IntentStatusProcessing))

	// Equal priority re-applies.
	assert.True(t, ShouldTransition(enums.IntentStatusFailed, enums.IntentStatusCanceled))
	assert.True(t, ShouldTransition(enums.IntentStatusProcessing, enums.IntentStatusProcessing))
}
