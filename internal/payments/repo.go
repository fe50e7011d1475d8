package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/selliahq/payments-backend/pkg/db/models"
	"github.com/selliahq/payments-backend/pkg/enums"
)

// Repository defines persistence operations for the payment lifecycle tables.
// Every read is tenant-scoped; cross-tenant lookups do not exist.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateIntent(ctx context.Context, intent *models.PaymentIntent) error
	CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error
	CreateTransaction(ctx context.Context, txn *models.PaymentTransaction) error
	CreateEvent(ctx context.Context, event *models.PaymentEvent) error
	FindIntent(ctx context.Context, tenantID string, intentID uuid.UUID) (*models.PaymentIntent, error)
	FindIntentByExternalReference(ctx context.Context, externalReference string) (*models.PaymentIntent, error)
	FindAttempt(ctx context.Context, tenantID string, attemptID uuid.UUID) (*models.PaymentAttempt, error)
	FindAttemptByProviderPaymentID(ctx context.Context, tenantID, providerPaymentID string) (*models.PaymentAttempt, error)
	FindLatestAttemptByIntent(ctx context.Context, tenantID string, intentID uuid.UUID) (*models.PaymentAttempt, error)
	FindAttemptsByIntent(ctx context.Context, tenantID string, intentID uuid.UUID) ([]models.PaymentAttempt, error)
	FindTransactionByProviderPaymentID(ctx context.Context, tenantID, providerPaymentID string) (*models.PaymentTransaction, error)
	FindTransactionsByIntent(ctx context.Context, tenantID string, intentID uuid.UUID) ([]models.PaymentTransaction, error)
	FindEvent(ctx context.Context, tenantID, eventID string) (*models.PaymentEvent, error)
	FindEventsByIntent(ctx context.Context, tenantID string, intentID uuid.UUID) ([]models.PaymentEvent, error)
	UpdateIntentStatus(ctx context.Context, tenantID string, intentID uuid.UUID, status enums.IntentStatus) error
	UpdateIntent(ctx context.Context, tenantID string, intentID uuid.UUID, updates map[string]any) error
	UpdateAttempt(ctx context.Context, tenantID string, attemptID uuid.UUID, updates map[string]any) error
	UpdateTransaction(ctx context.Context, tenantID string, txnID uuid.UUID, updates map[string]any) error
	ListStuckAttempts(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentAttempt, error)
	CountAttemptsPendingSince(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateIntent(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *repository) CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) CreateEvent(ctx context.Context, event *models.PaymentEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) FindIntent(ctx context.Context, tenantID string, intentID uuid.UUID) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, intentID).
		First(&intent).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) FindIntentByExternalReference(ctx context.Context, externalReference string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("external_reference = ?", externalReference).
		First(&intent).Error
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) FindAttempt(ctx context.Context, tenantID string, attemptID uuid.UUID) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, attemptID).
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *repository) FindAttemptByProviderPaymentID(ctx context.Context, tenantID, providerPaymentID string) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND provider_payment_id = ?", tenantID, providerPaymentID).
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *repository) FindLatestAttemptByIntent(ctx context.Context, tenantID string, intentID uuid.UUID) (*models.PaymentAttempt, error) {
	var attempt models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND intent_id = ?", tenantID, intentID).
		Order("created_at DESC").
		First(&attempt).Error
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (r *repository) FindAttemptsByIntent(ctx context.Context, tenantID string, intentID uuid.UUID) ([]models.PaymentAttempt, error) {
	var attempts []models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND intent_id = ?", tenantID, intentID).
		Order("created_at ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *repository) FindTransactionByProviderPaymentID(ctx context.Context, tenantID, providerPaymentID string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND provider_payment_id = ?", tenantID, providerPaymentID).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindTransactionsByIntent(ctx context.Context, tenantID string, intentID uuid.UUID) ([]models.PaymentTransaction, error) {
	var txns []models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND intent_id = ?", tenantID, intentID).
		Order("created_at ASC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) FindEvent(ctx context.Context, tenantID, eventID string) (*models.PaymentEvent, error) {
	var event models.PaymentEvent
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, eventID).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *repository) FindEventsByIntent(ctx context.Context, tenantID string, intentID uuid.UUID) ([]models.PaymentEvent, error) {
	var events []models.PaymentEvent
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND intent_id = ?", tenantID, intentID).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) UpdateIntentStatus(ctx context.Context, tenantID string, intentID uuid.UUID, status enums.IntentStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("tenant_id = ? AND id = ?", tenantID, intentID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) UpdateIntent(ctx context.Context, tenantID string, intentID uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("tenant_id = ? AND id = ?", tenantID, intentID).
		Updates(updates).Error
}

func (r *repository) UpdateAttempt(ctx context.Context, tenantID string, attemptID uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("tenant_id = ? AND id = ?", tenantID, attemptID).
		Updates(updates).Error
}

func (r *repository) UpdateTransaction(ctx context.Context, tenantID string, txnID uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("tenant_id = ? AND id = ?", tenantID, txnID).
		Updates(updates).Error
}

// ListStuckAttempts returns open attempts whose last update predates the
// cutoff, oldest first, across all tenants. Used by the reconciliation sweep.
func (r *repository) ListStuckAttempts(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentAttempt, error) {
	var attempts []models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", openAttemptStatuses(), cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *repository) CountAttemptsPendingSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("status IN ? AND updated_at < ?", openAttemptStatuses(), cutoff).
		Count(&count).Error
	return count, err
}

// openAttemptStatuses lists the attempt states the reconciler chases. An
// INITIATED attempt never reached the provider, so there is nothing to ask
// the provider about.
func openAttemptStatuses() []enums.AttemptStatus {
	return []enums.AttemptStatus{
		enums.AttemptStatusPendingProvider,
		enums.AttemptStatusAuthorized,
	}
}
