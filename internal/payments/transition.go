package payments

import (
	"strings"

	"github.com/selliahq/payments-backend/pkg/enums"
)

// Outcome is the full lifecycle consequence of one provider status. A single
// provider observation drives the intent, the attempt, and the transaction
// together so the three rows never disagree about what was seen.
type Outcome struct {
	Intent      enums.IntentStatus
	Attempt     enums.AttemptStatus
	Transaction enums.TransactionStatus
	// Known is false when the provider status is not in the table and the
	// failure outcome was applied fail-closed.
	Known bool
}

// outcomeByProviderStatus maps normalized Mercado Pago statuses to lifecycle
// outcomes. Unlisted statuses fail closed to the rejected outcome.
var outcomeByProviderStatus = map[string]Outcome{
	"pending": {
		Intent:      enums.IntentStatusProcessing,
		Attempt:     enums.AttemptStatusPendingProvider,
		Transaction: enums.TransactionStatusPending,
		Known:       true,
	},
	"in_process": {
		Intent:      enums.IntentStatusProcessing,
		Attempt:     enums.AttemptStatusAuthorized,
		Transaction: enums.TransactionStatusPending,
		Known:       true,
	},
	"approved": {
		Intent:      enums.IntentStatusSucceeded,
		Attempt:     enums.AttemptStatusCaptured,
		Transaction: enums.TransactionStatusApproved,
		Known:       true,
	},
	"rejected": {
		Intent:      enums.IntentStatusFailed,
		Attempt:     enums.AttemptStatusFailed,
		Transaction: enums.TransactionStatusRejected,
		Known:       true,
	},
	"cancelled": {
		Intent:      enums.IntentStatusCanceled,
		Attempt:     enums.AttemptStatusCanceled,
		Transaction: enums.TransactionStatusFailed,
		Known:       true,
	},
	"charged_back": {
		Intent:      enums.IntentStatusFailed,
		Attempt:     enums.AttemptStatusFailed,
		Transaction: enums.TransactionStatusRejected,
		Known:       true,
	},
}

// ResolveOutcome returns the lifecycle outcome for a provider status. Unknown
// statuses resolve to the failure outcome with Known=false so nothing a
// provider invents can ever mark a payment successful.
func ResolveOutcome(providerStatus string) Outcome {
	normalized := strings.ToLower(strings.TrimSpace(providerStatus))
	if outcome, ok := outcomeByProviderStatus[normalized]; ok {
		return outcome
	}
	return Outcome{
		Intent:      enums.IntentStatusFailed,
		Attempt:     enums.AttemptStatusFailed,
		Transaction: enums.TransactionStatusFailed,
		Known:       false,
	}
}

// ShouldTransition reports whether the intent may move from one status to
// another. Equal priority re-applies, lower priority never wins: a SUCCEEDED
// intent ignores late failures, while a FAILED intent can still be promoted
// by a late approval.
func ShouldTransition(from, to enums.IntentStatus) bool {
	return to.Priority() >= from.Priority()
}
