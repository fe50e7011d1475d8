package mercadopago

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Payment is the subset of the Mercado Pago payment resource the platform
// consumes. Statuses arrive in provider vocabulary (approved, rejected, ...)
// and are normalized before any lifecycle decision.
type Payment struct {
	ID                int64           `json:"id"`
	Status            string          `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	ExternalReference string          `json:"external_reference"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	CurrencyID        string          `json:"currency_id"`
	Metadata          map[string]any  `json:"metadata"`
}

// NormalizedStatus lowercases and trims the provider status so lookups in the
// transition table never miss on formatting.
func (p Payment) NormalizedStatus() string {
	return strings.ToLower(strings.TrimSpace(p.Status))
}

// PreferenceItem describes one line of a checkout preference.
type PreferenceItem struct {
	Title      string          `json:"title"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	CurrencyID string          `json:"currency_id,omitempty"`
}

// PreferenceRequest is the payload for creating a checkout preference.
type PreferenceRequest struct {
	Items             []PreferenceItem `json:"items"`
	ExternalReference string           `json:"external_reference"`
	NotificationURL   string           `json:"notification_url,omitempty"`
	Metadata          map[string]any   `json:"metadata,omitempty"`
}

// Preference is the provider's response to a preference creation.
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

type paymentSearchResponse struct {
	Results []Payment `json:"results"`
}
