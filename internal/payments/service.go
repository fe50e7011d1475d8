package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/selliahq/payments-backend/pkg/db"
	"github.com/selliahq/payments-backend/pkg/db/models"
	"github.com/selliahq/payments-backend/pkg/enums"
	pkgerrors "github.com/selliahq/payments-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// errEventRaced marks a confirmation whose event key already exists: either a
// straight replay or a concurrent confirm that won the insert race.
var errEventRaced = errors.New("payment event already recorded")

// Service drives the payment intent lifecycle.
type Service interface {
	CreateIntent(ctx context.Context, input CreateIntentInput) (*CreateIntentResult, error)
	RegisterProviderAttempt(ctx context.Context, input RegisterProviderAttemptInput) (*models.PaymentAttempt, error)
	Confirm(ctx context.Context, input ConfirmInput) (*ConfirmResult, error)
	GetIntent(ctx context.Context, tenantID string, intentID uuid.UUID) (*IntentDetail, error)
	ResolveIntentByExternalReference(ctx context.Context, externalReference string) (*models.PaymentIntent, error)
	StuckAttempts(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentAttempt, error)
	CountAgedPending(ctx context.Context, cutoff time.Time) (int64, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	adapter ProviderAdapter
}

// CreateIntentInput carries the merchant-facing intent creation request.
type CreateIntentInput struct {
	TenantID string
	OrderRef string
	ActorUID string
	Amount   decimal.Decimal
	Currency string
	Items    []CheckoutItem
	Metadata json.RawMessage
}

// CreateIntentResult returns the persisted intent and its first attempt,
// plus the provider checkout handles the merchant redirects to.
type CreateIntentResult struct {
	Intent   models.PaymentIntent
	Attempt  models.PaymentAttempt
	Checkout *Checkout
}

// RegisterProviderAttemptInput links a provider checkout preference to an
// intent and its attempt.
type RegisterProviderAttemptInput struct {
	TenantID             string
	IntentID             uuid.UUID
	AttemptID            uuid.UUID
	ProviderPreferenceID string
}

// ConfirmInput carries one provider observation into the lifecycle. ActorUID
// and RequestID are audit passthrough; confirmations driven by webhooks
// carry the delivery's request id, reconciliation runs carry neither.
type ConfirmInput struct {
	TenantID    string
	IntentID    uuid.UUID
	AttemptID   *uuid.UUID
	ActorUID    string
	RequestID   string
	Source      enums.EventSource
	Observation Observation
}

// ConfirmResult reports what the confirmation did. TransitionApplied is true
// only when the intent row actually changed status; the attempt and
// transaction are refreshed regardless.
type ConfirmResult struct {
	TransitionApplied bool
	Replayed          bool
	IntentStatus      enums.IntentStatus
	AttemptStatus     enums.AttemptStatus
}

// IntentDetail aggregates the full lifecycle view of one intent.
type IntentDetail struct {
	Intent       models.PaymentIntent
	Attempts     []models.PaymentAttempt
	Transactions []models.PaymentTransaction
	Events       []models.PaymentEvent
}

// NewService builds the payment lifecycle service.
func NewService(repo Repository, tx txRunner, adapter ProviderAdapter) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if adapter == nil {
		return nil, fmt.Errorf("provider adapter required")
	}
	return &service{repo: repo, tx: tx, adapter: adapter}, nil
}

func (s *service) CreateIntent(ctx context.Context, input CreateIntentInput) (*CreateIntentResult, error) {
	if strings.TrimSpace(input.TenantID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "tenant context missing")
	}
	if strings.TrimSpace(input.OrderRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order ref required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "ARS"
	}

	intent := models.PaymentIntent{
		ID:       uuid.New(),
		TenantID: input.TenantID,
		OrderRef: input.OrderRef,
		Amount:   input.Amount,
		Currency: currency,
		Status:   enums.IntentStatusRequiresConfirmation,
		Metadata: input.Metadata,
	}
	intent.ExternalReference = BuildExternalReference(input.TenantID, input.OrderRef, intent.ID)

	attempt := models.PaymentAttempt{
		ID:       uuid.New(),
		TenantID: input.TenantID,
		IntentID: intent.ID,
		Provider: enums.ProviderMercadoPago,
		Status:   enums.AttemptStatusInitiated,
	}

	// Intent, first attempt, and the creation event commit together; the
	// provider round-trip happens only after that.
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateIntent(ctx, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
		}
		if err := repo.CreateAttempt(ctx, &attempt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment attempt")
		}
		event := models.PaymentEvent{
			ID:        fmt.Sprintf("intent_created:%s", intent.ID),
			TenantID:  input.TenantID,
			IntentID:  intent.ID,
			AttemptID: &attempt.ID,
			Type:      enums.EventTypeIntentCreated,
			Source:    enums.EventSourceSystem,
			ActorUID:  nilIfEmpty(input.ActorUID),
			ToStatus:  statusPtr(string(intent.Status)),
		}
		if err := repo.CreateEvent(ctx, &event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record intent created event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	items := input.Items
	if len(items) == 0 {
		items = []CheckoutItem{{
			Title:     fmt.Sprintf("Order %s", input.OrderRef),
			Quantity:  1,
			UnitPrice: input.Amount,
		}}
	}

	checkout, err := s.adapter.CreateCheckout(ctx, intent.ExternalReference, currency, items)
	if err != nil {
		// Intent and attempt are already durable; a retry can re-open the
		// checkout without creating a second intent.
		return nil, err
	}

	linked, err := s.RegisterProviderAttempt(ctx, RegisterProviderAttemptInput{
		TenantID:             input.TenantID,
		IntentID:             intent.ID,
		AttemptID:            attempt.ID,
		ProviderPreferenceID: checkout.PreferenceID,
	})
	if err != nil {
		return nil, err
	}

	intent.ProviderPreferenceID = &checkout.PreferenceID
	return &CreateIntentResult{Intent: intent, Attempt: *linked, Checkout: checkout}, nil
}

// RegisterProviderAttempt stamps a checkout preference onto an intent and
// its attempt and moves the attempt to PENDING_PROVIDER. Pure metadata:
// re-registering the same preference is harmless.
func (s *service) RegisterProviderAttempt(ctx context.Context, input RegisterProviderAttemptInput) (*models.PaymentAttempt, error) {
	if strings.TrimSpace(input.TenantID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "tenant context missing")
	}
	if input.IntentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent id required")
	}
	if input.AttemptID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "attempt id required")
	}
	preferenceID := strings.TrimSpace(input.ProviderPreferenceID)
	if preferenceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider preference id required")
	}

	var attempt *models.PaymentAttempt
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		intent, err := repo.FindIntent(ctx, input.TenantID, input.IntentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment intent")
		}

		attempt, err = repo.FindAttempt(ctx, input.TenantID, input.AttemptID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payment attempt not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment attempt")
		}
		if attempt.IntentID != intent.ID {
			return pkgerrors.New(pkgerrors.CodeConflict, "attempt does not belong to intent")
		}

		if err := repo.UpdateIntent(ctx, input.TenantID, intent.ID, map[string]any{
			"provider_preference_id": preferenceID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link preference to intent")
		}
		if err := repo.UpdateAttempt(ctx, input.TenantID, attempt.ID, map[string]any{
			"provider_preference_id": preferenceID,
			"status":                 enums.AttemptStatusPendingProvider,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link preference to attempt")
		}
		attempt.ProviderPreferenceID = &preferenceID
		attempt.Status = enums.AttemptStatusPendingProvider
		return nil
	})
	if err != nil {
		return nil, err
	}
	return attempt, nil
}

// Confirm applies one provider observation atomically. The intent only moves
// when the observed status holds equal or higher priority than the current
// one, while the attempt and transaction rows always reflect the latest
// provider state, regressions included.
func (s *service) Confirm(ctx context.Context, input ConfirmInput) (*ConfirmResult, error) {
	if strings.TrimSpace(input.TenantID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "tenant context missing")
	}
	if input.IntentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent id required")
	}
	if strings.TrimSpace(input.Observation.ProviderPaymentID) == "" && strings.TrimSpace(input.Observation.ProviderEventID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "observation missing provider identifiers")
	}
	if !input.Source.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid event source")
	}

	outcome := ResolveOutcome(input.Observation.NormalizedStatus)
	idKey := input.Observation.IdempotencyKey()
	result := &ConfirmResult{}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := repo.FindEvent(ctx, input.TenantID, idKey); err == nil {
			return errEventRaced
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment event")
		}

		intent, err := repo.FindIntent(ctx, input.TenantID, input.IntentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment intent")
		}

		attempt, err := s.resolveAttempt(ctx, repo, input)
		if err != nil {
			return err
		}

		fromStatus := intent.Status
		if ShouldTransition(intent.Status, outcome.Intent) && intent.Status != outcome.Intent {
			if err := repo.UpdateIntentStatus(ctx, input.TenantID, intent.ID, outcome.Intent); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update intent status")
			}
			result.TransitionApplied = true
			result.IntentStatus = outcome.Intent
		} else {
			result.IntentStatus = intent.Status
		}

		if err := s.refreshAttempt(ctx, repo, input, attempt, outcome); err != nil {
			return err
		}
		result.AttemptStatus = outcome.Attempt

		if err := s.upsertTransaction(ctx, repo, input, attempt, outcome); err != nil {
			return err
		}

		event := models.PaymentEvent{
			ID:                idKey,
			TenantID:          input.TenantID,
			IntentID:          intent.ID,
			AttemptID:         &attempt.ID,
			Type:              eventTypeForSource(input.Source),
			Source:            input.Source,
			ProviderEventID:   nilIfEmpty(input.Observation.ProviderEventID),
			ProviderPaymentID: nilIfEmpty(input.Observation.ProviderPaymentID),
			ActorUID:          nilIfEmpty(input.ActorUID),
			RequestID:         nilIfEmpty(input.RequestID),
			FromStatus:        statusPtr(string(fromStatus)),
			// ToStatus keeps the status the provider reported even when the
			// transition was blocked; TransitionApplied tells them apart.
			ToStatus: statusPtr(string(outcome.Intent)),
			Payload:  input.Observation.Payload,
		}
		if err := repo.CreateEvent(ctx, &event); err != nil {
			if db.IsUniqueViolation(err, "") {
				return errEventRaced
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record confirmation event")
		}
		return nil
	})

	if errors.Is(err, errEventRaced) {
		// A concurrent or earlier confirmation owns this observation; report
		// the current state without claiming the transition.
		replay := &ConfirmResult{Replayed: true}
		if intent, lerr := s.repo.FindIntent(ctx, input.TenantID, input.IntentID); lerr == nil {
			replay.IntentStatus = intent.Status
		}
		return replay, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) resolveAttempt(ctx context.Context, repo Repository, input ConfirmInput) (*models.PaymentAttempt, error) {
	if input.AttemptID != nil && *input.AttemptID != uuid.Nil {
		attempt, err := repo.FindAttempt(ctx, input.TenantID, *input.AttemptID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment attempt not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment attempt")
		}
		return attempt, nil
	}

	if pid := strings.TrimSpace(input.Observation.ProviderPaymentID); pid != "" {
		attempt, err := repo.FindAttemptByProviderPaymentID(ctx, input.TenantID, pid)
		if err == nil {
			return attempt, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment attempt")
		}
	}

	attempt, err := repo.FindLatestAttemptByIntent(ctx, input.TenantID, input.IntentID)
	if err == nil {
		return attempt, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment attempt")
	}

	// Observation for an intent with no registered attempt. The provider is
	// authoritative that a charge exists, so record one.
	created := models.PaymentAttempt{
		ID:                uuid.New(),
		TenantID:          input.TenantID,
		IntentID:          input.IntentID,
		Provider:          enums.ProviderMercadoPago,
		ProviderPaymentID: nilIfEmpty(input.Observation.ProviderPaymentID),
		Status:            enums.AttemptStatusInitiated,
	}
	if err := repo.CreateAttempt(ctx, &created); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment attempt")
	}
	return &created, nil
}

func (s *service) refreshAttempt(ctx context.Context, repo Repository, input ConfirmInput, attempt *models.PaymentAttempt, outcome Outcome) error {
	updates := map[string]any{
		"status":     outcome.Attempt,
		"raw_status": strings.ToLower(strings.TrimSpace(input.Observation.NormalizedStatus)),
	}
	if outcome.Attempt == enums.AttemptStatusFailed {
		updates["last_error"] = fmt.Sprintf("provider_status:%s", strings.ToLower(strings.TrimSpace(input.Observation.NormalizedStatus)))
	} else {
		updates["last_error"] = nil
	}
	if pid := strings.TrimSpace(input.Observation.ProviderPaymentID); pid != "" {
		if attempt.ProviderPaymentID == nil || *attempt.ProviderPaymentID == "" {
			updates["provider_payment_id"] = pid
		}
	}
	if err := repo.UpdateAttempt(ctx, input.TenantID, attempt.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refresh payment attempt")
	}
	return nil
}

func (s *service) upsertTransaction(ctx context.Context, repo Repository, input ConfirmInput, attempt *models.PaymentAttempt, outcome Outcome) error {
	pid := strings.TrimSpace(input.Observation.ProviderPaymentID)
	if pid == "" {
		return nil
	}

	existing, err := repo.FindTransactionByProviderPaymentID(ctx, input.TenantID, pid)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transaction")
	}

	if existing != nil {
		updates := map[string]any{"status": outcome.Transaction}
		if len(input.Observation.Payload) > 0 {
			updates["raw_payload"] = input.Observation.Payload
		}
		if input.Observation.Amount != nil {
			updates["amount"] = *input.Observation.Amount
		}
		if cur := strings.ToUpper(strings.TrimSpace(input.Observation.Currency)); cur != "" {
			updates["currency"] = cur
		}
		if err := repo.UpdateTransaction(ctx, input.TenantID, existing.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment transaction")
		}
		return nil
	}

	txn := models.PaymentTransaction{
		ID:                uuid.New(),
		TenantID:          input.TenantID,
		IntentID:          input.IntentID,
		AttemptID:         attempt.ID,
		ProviderPaymentID: pid,
		Status:            outcome.Transaction,
		RawPayload:        input.Observation.Payload,
	}
	if input.Observation.Amount != nil {
		txn.Amount = *input.Observation.Amount
	}
	if cur := strings.ToUpper(strings.TrimSpace(input.Observation.Currency)); cur != "" {
		txn.Currency = cur
	} else {
		txn.Currency = "ARS"
	}
	if err := repo.CreateTransaction(ctx, &txn); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment transaction")
	}
	return nil
}

func (s *service) GetIntent(ctx context.Context, tenantID string, intentID uuid.UUID) (*IntentDetail, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "tenant context missing")
	}
	intent, err := s.repo.FindIntent(ctx, tenantID, intentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment intent")
	}

	attempts, err := s.repo.FindAttemptsByIntent(ctx, tenantID, intentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment attempts")
	}
	transactions, err := s.repo.FindTransactionsByIntent(ctx, tenantID, intentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transactions")
	}
	events, err := s.repo.FindEventsByIntent(ctx, tenantID, intentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment events")
	}

	return &IntentDetail{
		Intent:       *intent,
		Attempts:     attempts,
		Transactions: transactions,
		Events:       events,
	}, nil
}

// ResolveIntentByExternalReference validates a correlation token and loads
// the intent it points at. The embedded tenant and intent id must both match
// the stored row, so a token cannot be replayed across tenants.
func (s *service) ResolveIntentByExternalReference(ctx context.Context, externalReference string) (*models.PaymentIntent, error) {
	tenantID, _, intentID, err := ParseExternalReference(externalReference)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "malformed external reference")
	}

	intent, err := s.repo.FindIntentByExternalReference(ctx, externalReference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment intent")
	}
	if intent.TenantID != tenantID || intent.ID != intentID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "external reference does not match stored intent")
	}
	return intent, nil
}

func (s *service) StuckAttempts(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentAttempt, error) {
	if limit <= 0 {
		limit = 100
	}
	attempts, err := s.repo.ListStuckAttempts(ctx, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stuck attempts")
	}
	return attempts, nil
}

func (s *service) CountAgedPending(ctx context.Context, cutoff time.Time) (int64, error) {
	count, err := s.repo.CountAttemptsPendingSince(ctx, cutoff)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count aged pending attempts")
	}
	return count, nil
}

func eventTypeForSource(source enums.EventSource) enums.EventType {
	switch source {
	case enums.EventSourceWebhook:
		return enums.EventTypeWebhookConfirmed
	case enums.EventSourceReconciliation:
		return enums.EventTypeReconciled
	default:
		return enums.EventTypeStatusTransition
	}
}

func statusPtr(s string) *string {
	return &s
}

func nilIfEmpty(s string) *string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
