package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/selliahq/payments-backend/internal/payments"
	"github.com/selliahq/payments-backend/pkg/db/models"
	"github.com/selliahq/payments-backend/pkg/enums"
	pkgerrors "github.com/selliahq/payments-backend/pkg/errors"
	"github.com/selliahq/payments-backend/pkg/logger"
	"github.com/selliahq/payments-backend/pkg/metrics"
)

const (
	defaultPendingAge   = 15 * time.Minute
	defaultAgedAlertAge = 2 * time.Hour
	defaultSweepBatch   = 100
)

// paymentLifecycle is the slice of the payments service the sweeper drives.
type paymentLifecycle interface {
	StuckAttempts(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentAttempt, error)
	CountAgedPending(ctx context.Context, cutoff time.Time) (int64, error)
	Confirm(ctx context.Context, input payments.ConfirmInput) (*payments.ConfirmResult, error)
}

// intentReader resolves the intent backing an attempt, for the search
// fallback when the attempt never captured a provider payment id.
type intentReader interface {
	FindIntent(ctx context.Context, tenantID string, intentID uuid.UUID) (*models.PaymentIntent, error)
}

// providerSource polls the processor for the current payment state.
type providerSource interface {
	FetchPayment(ctx context.Context, providerPaymentID string) (*payments.Observation, error)
	SearchByExternalReference(ctx context.Context, externalReference string) ([]payments.Observation, error)
}

// alertSink forwards aged-pending alerts to the operations topic.
type alertSink interface {
	PublishAlert(ctx context.Context, data []byte, attributes map[string]string) error
}

// PaymentReconcileJobParams configure the pending-payment sweeper.
type PaymentReconcileJobParams struct {
	Logger       *logger.Logger
	Payments     paymentLifecycle
	Intents      intentReader
	Provider     providerSource
	Metrics      *metrics.WebhookMetrics
	Alerts       alertSink
	PendingAge   time.Duration
	AgedAlertAge time.Duration
	BatchSize    int
	Now          func() time.Time
}

type paymentReconcileJob struct {
	logg         *logger.Logger
	payments     paymentLifecycle
	intents      intentReader
	provider     providerSource
	metrics      *metrics.WebhookMetrics
	alerts       alertSink
	pendingAge   time.Duration
	agedAlertAge time.Duration
	batchSize    int
	now          func() time.Time
}

// NewPaymentReconcileJob builds the cron job that re-polls attempts stuck in
// an open status and raises an alert when pendings age past the threshold.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	if params.Intents == nil {
		return nil, fmt.Errorf("intent reader required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("provider source required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	pendingAge := params.PendingAge
	if pendingAge <= 0 {
		pendingAge = defaultPendingAge
	}
	agedAlertAge := params.AgedAlertAge
	if agedAlertAge <= 0 {
		agedAlertAge = defaultAgedAlertAge
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultSweepBatch
	}
	return &paymentReconcileJob{
		logg:         params.Logger,
		payments:     params.Payments,
		intents:      params.Intents,
		provider:     params.Provider,
		metrics:      params.Metrics,
		alerts:       params.Alerts,
		pendingAge:   pendingAge,
		agedAlertAge: agedAlertAge,
		batchSize:    batchSize,
		now:          now,
	}, nil
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	var errs []error
	if err := j.sweepStuckAttempts(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := j.reportAgedPending(ctx); err != nil {
		errs = append(errs, err)
	}
	return multierr.Combine(errs...)
}

func (j *paymentReconcileJob) sweepStuckAttempts(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.pendingAge)
	attempts, err := j.payments.StuckAttempts(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("list stuck attempts: %w", err)
	}
	var errs error
	scanned := len(attempts)
	confirmed := 0
	replayed := 0
	for i := range attempts {
		result, err := j.reconcileAttempt(ctx, &attempts[i])
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if result == nil {
			continue
		}
		if result.Replayed {
			replayed++
			continue
		}
		confirmed++
	}
	reportCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":   scanned,
		"confirmed": confirmed,
		"replayed":  replayed,
	})
	j.logg.Info(reportCtx, "payment reconcile sweep complete")
	return errs
}

func (j *paymentReconcileJob) reconcileAttempt(ctx context.Context, attempt *models.PaymentAttempt) (*payments.ConfirmResult, error) {
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"attempt_id": attempt.ID,
		"intent_id":  attempt.IntentID,
		"tenant_id":  attempt.TenantID,
	})
	observation, err := j.observe(logCtx, attempt)
	if err != nil {
		return nil, fmt.Errorf("observe attempt %s: %w", attempt.ID, err)
	}
	if observation == nil {
		j.logg.Info(logCtx, "no provider record for attempt yet; leaving as is")
		return nil, nil
	}
	result, err := j.payments.Confirm(logCtx, payments.ConfirmInput{
		TenantID:    attempt.TenantID,
		IntentID:    attempt.IntentID,
		AttemptID:   &attempt.ID,
		Source:      enums.EventSourceReconciliation,
		Observation: *observation,
	})
	if err != nil {
		return nil, fmt.Errorf("confirm attempt %s: %w", attempt.ID, err)
	}
	resultCtx := j.logg.WithFields(logCtx, map[string]any{
		"intent_status":  result.IntentStatus,
		"attempt_status": result.AttemptStatus,
		"transitioned":   result.TransitionApplied,
		"replayed":       result.Replayed,
	})
	j.logg.Info(resultCtx, "attempt reconciled")
	return result, nil
}

// observe fetches the provider's view of the attempt. Attempts that captured
// a payment id are looked up directly; the rest fall back to searching by the
// intent's external reference, where the newest hit wins.
func (j *paymentReconcileJob) observe(ctx context.Context, attempt *models.PaymentAttempt) (*payments.Observation, error) {
	if attempt.ProviderPaymentID != nil && strings.TrimSpace(*attempt.ProviderPaymentID) != "" {
		observation, err := j.provider.FetchPayment(ctx, *attempt.ProviderPaymentID)
		if err != nil {
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
				return nil, nil
			}
			return nil, err
		}
		return observation, nil
	}
	intent, err := j.intents.FindIntent(ctx, attempt.TenantID, attempt.IntentID)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, nil
	}
	observations, err := j.provider.SearchByExternalReference(ctx, intent.ExternalReference)
	if err != nil {
		return nil, err
	}
	if len(observations) == 0 {
		return nil, nil
	}
	return &observations[0], nil
}

// AgedPendingAlert is the payload published when open attempts sit past the
// aged threshold.
type AgedPendingAlert struct {
	PendingAttempts  int64     `json:"pendingAttempts"`
	ThresholdMinutes int       `json:"thresholdMinutes"`
	ObservedAt       time.Time `json:"observedAt"`
}

func (j *paymentReconcileJob) reportAgedPending(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.agedAlertAge)
	count, err := j.payments.CountAgedPending(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("count aged pending attempts: %w", err)
	}
	if j.metrics != nil {
		j.metrics.SetAgedPending(int(count))
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"aged_pending": count})
	if count == 0 {
		j.logg.Info(logCtx, "no aged pending attempts")
		return nil
	}
	j.logg.Info(logCtx, "aged pending attempts detected")
	if j.alerts == nil {
		return nil
	}
	payload, err := json.Marshal(AgedPendingAlert{
		PendingAttempts:  count,
		ThresholdMinutes: int(j.agedAlertAge / time.Minute),
		ObservedAt:       now,
	})
	if err != nil {
		return fmt.Errorf("encode aged pending alert: %w", err)
	}
	attributes := map[string]string{"type": "payments.aged_pending"}
	if err := j.alerts.PublishAlert(ctx, payload, attributes); err != nil {
		return fmt.Errorf("publish aged pending alert: %w", err)
	}
	return nil
}
