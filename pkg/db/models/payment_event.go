package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/selliahq/payments-backend/pkg/enums"
)

// PaymentEvent is the append-only confirmation log. The primary key is the
// idempotency key for the observation (provider event id when present,
// otherwise providerPaymentID:normalizedStatus), so replays lose the insert
// race instead of double-applying. ActorUID and RequestID tie each entry
// back to who or what triggered it.
type PaymentEvent struct {
	ID                string            `gorm:"column:id;primaryKey"`
	TenantID          string            `gorm:"column:tenant_id;not null;index:idx_payment_events_tenant"`
	IntentID          uuid.UUID         `gorm:"column:intent_id;type:uuid;not null;index"`
	AttemptID         *uuid.UUID        `gorm:"column:attempt_id;type:uuid"`
	Type              enums.EventType   `gorm:"column:type;not null"`
	Source            enums.EventSource `gorm:"column:source;not null"`
	ProviderEventID   *string           `gorm:"column:provider_event_id"`
	ProviderPaymentID *string           `gorm:"column:provider_payment_id"`
	ActorUID          *string           `gorm:"column:actor_uid"`
	RequestID         *string           `gorm:"column:request_id"`
	FromStatus        *string           `gorm:"column:from_status"`
	ToStatus          *string           `gorm:"column:to_status"`
	Payload           json.RawMessage   `gorm:"column:payload;type:jsonb"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
}
