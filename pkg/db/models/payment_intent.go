package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/selliahq/payments-backend/pkg/enums"
)

// PaymentIntent is the tenant-facing record of an expected payment. Its
// status only ever moves forward; provider noise lands on the attempt and
// transaction rows instead.
type PaymentIntent struct {
	ID                   uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	TenantID             string             `gorm:"column:tenant_id;not null;index:idx_payment_intents_tenant"`
	OrderRef             string             `gorm:"column:order_ref;not null"`
	ExternalReference    string             `gorm:"column:external_reference;not null;uniqueIndex"`
	ProviderPreferenceID *string            `gorm:"column:provider_preference_id"`
	Amount               decimal.Decimal    `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency             string             `gorm:"column:currency;not null;default:'ARS'"`
	Status               enums.IntentStatus `gorm:"column:status;not null;default:'CREATED'"`
	Metadata             json.RawMessage    `gorm:"column:metadata;type:jsonb"`
	CreatedAt            time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
