package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/selliahq/payments-backend/pkg/enums"
)

// PaymentAttempt tracks one provider-side charge attempt against an intent.
// Unlike the intent, attempt state always reflects the latest provider
// observation, including regressions.
type PaymentAttempt struct {
	ID                   uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	TenantID             string              `gorm:"column:tenant_id;not null;index:idx_payment_attempts_tenant"`
	IntentID             uuid.UUID           `gorm:"column:intent_id;type:uuid;not null;index"`
	Provider             enums.Provider      `gorm:"column:provider;not null;default:'mercado_pago'"`
	ProviderPreferenceID *string             `gorm:"column:provider_preference_id"`
	ProviderPaymentID    *string             `gorm:"column:provider_payment_id;index"`
	Status               enums.AttemptStatus `gorm:"column:status;not null;default:'INITIATED'"`
	RawStatus            *string             `gorm:"column:raw_status"`
	LastError            *string             `gorm:"column:last_error"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
