package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/selliahq/payments-backend/pkg/enums"
)

// PaymentTransaction mirrors a provider money movement, keyed by the
// provider's payment id within a tenant. Rows are upserted as webhook and
// reconciliation observations arrive; RawPayload keeps the provider's last
// reported document verbatim for audit.
type PaymentTransaction struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	TenantID          string                  `gorm:"column:tenant_id;not null;uniqueIndex:idx_payment_transactions_tenant_provider"`
	IntentID          uuid.UUID               `gorm:"column:intent_id;type:uuid;not null;index"`
	AttemptID         uuid.UUID               `gorm:"column:attempt_id;type:uuid;not null"`
	ProviderPaymentID string                  `gorm:"column:provider_payment_id;not null;uniqueIndex:idx_payment_transactions_tenant_provider"`
	Amount            decimal.Decimal         `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency          string                  `gorm:"column:currency;not null;default:'ARS'"`
	Status            enums.TransactionStatus `gorm:"column:status;not null;default:'PENDING'"`
	RawPayload        json.RawMessage         `gorm:"column:raw_payload;type:jsonb"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
