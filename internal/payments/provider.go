package payments

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Observation is the canonical view of one provider payment state, shared by
// the webhook and reconciliation pathways. NormalizedStatus is provider
// vocabulary, lowercased; amount and currency are nil/empty when the source
// did not carry them.
type Observation struct {
	ProviderEventID   string
	ProviderPaymentID string
	NormalizedStatus  string
	Amount            *decimal.Decimal
	Currency          string
	ExternalReference string
	Payload           json.RawMessage
}

// IdempotencyKey derives the event log primary key for this observation.
// Provider event ids win when present; otherwise the payment id plus status
// collapses repeated polls of the same state into one event.
func (o Observation) IdempotencyKey() string {
	if id := strings.TrimSpace(o.ProviderEventID); id != "" {
		return id
	}
	return strings.TrimSpace(o.ProviderPaymentID) + ":" + o.NormalizedStatus
}

// Checkout describes the redirect handles returned when a provider checkout
// is created for an intent.
type Checkout struct {
	PreferenceID string
	RedirectURL  string
}

// CheckoutItem is one purchasable line forwarded to the provider checkout.
type CheckoutItem struct {
	Title     string
	Quantity  int
	UnitPrice decimal.Decimal
}

// ProviderAdapter abstracts the payment processor for the lifecycle service,
// returning canonical observations instead of provider payloads.
type ProviderAdapter interface {
	CreateCheckout(ctx context.Context, externalReference, currency string, items []CheckoutItem) (*Checkout, error)
	FetchPayment(ctx context.Context, providerPaymentID string) (*Observation, error)
	SearchByExternalReference(ctx context.Context, externalReference string) ([]Observation, error)
}
