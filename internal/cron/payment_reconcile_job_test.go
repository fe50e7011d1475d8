package cron

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/selliahq/payments-backend/internal/payments"
	"github.com/selliahq/payments-backend/pkg/db/models"
	"github.com/selliahq/payments-backend/pkg/enums"
	pkgerrors "github.com/selliahq/payments-backend/pkg/errors"
	"github.com/selliahq/payments-backend/pkg/logger"
)

type fakePaymentLifecycle struct {
	attempts    []models.PaymentAttempt
	stuckCutoff time.Time
	stuckLimit  int
	listErr     error

	agedCount  int64
	agedCutoff time.Time
	countErr   error

	confirms   []payments.ConfirmInput
	confirmErr map[uuid.UUID]error
	results    map[uuid.UUID]*payments.ConfirmResult
}

func (f *fakePaymentLifecycle) StuckAttempts(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentAttempt, error) {
	f.stuckCutoff = cutoff
	f.stuckLimit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.attempts, nil
}

func (f *fakePaymentLifecycle) CountAgedPending(ctx context.Context, cutoff time.Time) (int64, error) {
	f.agedCutoff = cutoff
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.agedCount, nil
}

func (f *fakePaymentLifecycle) Confirm(ctx context.Context, input payments.ConfirmInput) (*payments.ConfirmResult, error) {
	f.confirms = append(f.confirms, input)
	if input.AttemptID != nil {
		if err, ok := f.confirmErr[*input.AttemptID]; ok {
			return nil, err
		}
		if result, ok := f.results[*input.AttemptID]; ok {
			return result, nil
		}
	}
	return &payments.ConfirmResult{
		TransitionApplied: true,
		IntentStatus:      enums.IntentStatusSucceeded,
		AttemptStatus:     enums.AttemptStatusCaptured,
	}, nil
}

type fakeIntentReader struct {
	intents map[uuid.UUID]*models.PaymentIntent
	err     error
}

func (f *fakeIntentReader) FindIntent(ctx context.Context, tenantID string, intentID uuid.UUID) (*models.PaymentIntent, error) {
	if f.err != nil {
		return nil, f.err
	}
	intent, ok := f.intents[intentID]
	if !ok {
		return nil, nil
	}
	if intent.TenantID != tenantID {
		return nil, nil
	}
	return intent, nil
}

type fakeProviderSource struct {
	byPaymentID map[string]*payments.Observation
	byReference map[string][]payments.Observation
	fetchErr    error
	searched    []string
}

func (f *fakeProviderSource) FetchPayment(ctx context.Context, providerPaymentID string) (*payments.Observation, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	observation, ok := f.byPaymentID[providerPaymentID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	return observation, nil
}

func (f *fakeProviderSource) SearchByExternalReference(ctx context.Context, externalReference string) ([]payments.Observation, error) {
	f.searched = append(f.searched, externalReference)
	return f.byReference[externalReference], nil
}

type fakeAlertSink struct {
	published  [][]byte
	attributes []map[string]string
	err        error
}

func (f *fakeAlertSink) PublishAlert(ctx context.Context, data []byte, attributes map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, data)
	f.attributes = append(f.attributes, attributes)
	return nil
}

func strPtr(s string) *string { return &s }

func newReconcileJob(t *testing.T, lifecycle *fakePaymentLifecycle, intents *fakeIntentReader, provider *fakeProviderSource, alerts *fakeAlertSink) *paymentReconcileJob {
	t.Helper()
	if intents == nil {
		intents = &fakeIntentReader{}
	}
	params := PaymentReconcileJobParams{
		Logger:       logger.New(logger.Options{ServiceName: "cron-test"}),
		Payments:     lifecycle,
		Intents:      intents,
		Provider:     provider,
		PendingAge:   15 * time.Minute,
		AgedAlertAge: 2 * time.Hour,
		BatchSize:    50,
	}
	if alerts != nil {
		params.Alerts = alerts
	}
	jobIface, err := NewPaymentReconcileJob(params)
	if err != nil {
		t.Fatalf("NewPaymentReconcileJob: %v", err)
	}
	job, ok := jobIface.(*paymentReconcileJob)
	if !ok {
		t.Fatalf("expected paymentReconcileJob, got %T", jobIface)
	}
	return job
}

func TestPaymentReconcileJobConfirmsStuckAttempts(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	attemptID := uuid.New()
	intentID := uuid.New()
	amount := decimal.NewFromFloat(1500.50)
	lifecycle := &fakePaymentLifecycle{
		attempts: []models.PaymentAttempt{{
			ID:                attemptID,
			TenantID:          "tenant-a",
			IntentID:          intentID,
			ProviderPaymentID: strPtr("991"),
			Status:            enums.AttemptStatusPendingProvider,
		}},
	}
	provider := &fakeProviderSource{
		byPaymentID: map[string]*payments.Observation{
			"991": {
				ProviderPaymentID: "991",
				NormalizedStatus:  "approved",
				Amount:            &amount,
				Currency:          "ARS",
			},
		},
	}
	job := newReconcileJob(t, lifecycle, nil, provider, nil)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	expectedCutoff := now.Add(-15 * time.Minute)
	if !lifecycle.stuckCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected sweep cutoff %s, got %s", expectedCutoff, lifecycle.stuckCutoff)
	}
	if lifecycle.stuckLimit != 50 {
		t.Fatalf("expected batch size 50, got %d", lifecycle.stuckLimit)
	}
	if len(lifecycle.confirms) != 1 {
		t.Fatalf("expected 1 confirm, got %d", len(lifecycle.confirms))
	}
	confirm := lifecycle.confirms[0]
	if confirm.TenantID != "tenant-a" {
		t.Fatalf("expected tenant scoping, got %q", confirm.TenantID)
	}
	if confirm.IntentID != intentID {
		t.Fatalf("expected intent %s, got %s", intentID, confirm.IntentID)
	}
	if confirm.AttemptID == nil || *confirm.AttemptID != attemptID {
		t.Fatal("expected confirm pinned to the swept attempt")
	}
	if confirm.Source != enums.EventSourceReconciliation {
		t.Fatalf("expected reconciliation source, got %q", confirm.Source)
	}
	if confirm.Observation.NormalizedStatus != "approved" {
		t.Fatalf("expected provider observation to flow through, got %q", confirm.Observation.NormalizedStatus)
	}
}

func TestPaymentReconcileJobFallsBackToSearchWithoutPaymentID(t *testing.T) {
	attemptID := uuid.New()
	intentID := uuid.New()
	lifecycle := &fakePaymentLifecycle{
		attempts: []models.PaymentAttempt{{
			ID:       attemptID,
			TenantID: "tenant-a",
			IntentID: intentID,
			Status:   enums.AttemptStatusInitiated,
		}},
	}
	intents := &fakeIntentReader{intents: map[uuid.UUID]*models.PaymentIntent{
		intentID: {
			ID:                intentID,
			TenantID:          "tenant-a",
			ExternalReference: "tenant-a::order-7::" + intentID.String(),
		},
	}}
	provider := &fakeProviderSource{
		byReference: map[string][]payments.Observation{
			"tenant-a::order-7::" + intentID.String(): {
				{ProviderPaymentID: "445", NormalizedStatus: "rejected"},
				{ProviderPaymentID: "390", NormalizedStatus: "pending"},
			},
		},
	}
	job := newReconcileJob(t, lifecycle, intents, provider, nil)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(provider.searched) != 1 {
		t.Fatalf("expected one search, got %d", len(provider.searched))
	}
	if len(lifecycle.confirms) != 1 {
		t.Fatalf("expected 1 confirm, got %d", len(lifecycle.confirms))
	}
	// Search results arrive newest first; the first hit wins.
	if got := lifecycle.confirms[0].Observation.ProviderPaymentID; got != "445" {
		t.Fatalf("expected newest observation, got payment id %q", got)
	}
}

func TestPaymentReconcileJobSkipsAttemptsUnknownToProvider(t *testing.T) {
	lifecycle := &fakePaymentLifecycle{
		attempts: []models.PaymentAttempt{{
			ID:                uuid.New(),
			TenantID:          "tenant-a",
			IntentID:          uuid.New(),
			ProviderPaymentID: strPtr("does-not-exist"),
		}},
	}
	provider := &fakeProviderSource{}
	job := newReconcileJob(t, lifecycle, nil, provider, nil)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("expected missing provider record to be skipped, got %v", err)
	}
	if len(lifecycle.confirms) != 0 {
		t.Fatalf("expected no confirms, got %d", len(lifecycle.confirms))
	}
}

func TestPaymentReconcileJobCollectsErrorsAndKeepsSweeping(t *testing.T) {
	failing := uuid.New()
	healthy := uuid.New()
	intentID := uuid.New()
	lifecycle := &fakePaymentLifecycle{
		attempts: []models.PaymentAttempt{
			{ID: failing, TenantID: "tenant-a", IntentID: intentID, ProviderPaymentID: strPtr("1")},
			{ID: healthy, TenantID: "tenant-a", IntentID: intentID, ProviderPaymentID: strPtr("2")},
		},
		confirmErr: map[uuid.UUID]error{failing: errors.New("deadlock")},
	}
	provider := &fakeProviderSource{
		byPaymentID: map[string]*payments.Observation{
			"1": {ProviderPaymentID: "1", NormalizedStatus: "approved"},
			"2": {ProviderPaymentID: "2", NormalizedStatus: "approved"},
		},
	}
	job := newReconcileJob(t, lifecycle, nil, provider, nil)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected sweep error to surface")
	}
	if !strings.Contains(err.Error(), failing.String()) {
		t.Fatalf("expected error to name the failing attempt, got %v", err)
	}
	if len(lifecycle.confirms) != 2 {
		t.Fatalf("expected both attempts confirmed despite failure, got %d", len(lifecycle.confirms))
	}
}

func TestPaymentReconcileJobPublishesAgedPendingAlert(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	lifecycle := &fakePaymentLifecycle{agedCount: 7}
	alerts := &fakeAlertSink{}
	job := newReconcileJob(t, lifecycle, nil, &fakeProviderSource{}, alerts)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	expectedCutoff := now.Add(-2 * time.Hour)
	if !lifecycle.agedCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected aged cutoff %s, got %s", expectedCutoff, lifecycle.agedCutoff)
	}
	if len(alerts.published) != 1 {
		t.Fatalf("expected one alert, got %d", len(alerts.published))
	}
	var alert AgedPendingAlert
	if err := json.Unmarshal(alerts.published[0], &alert); err != nil {
		t.Fatalf("decode alert: %v", err)
	}
	if alert.PendingAttempts != 7 {
		t.Fatalf("expected 7 pending attempts, got %d", alert.PendingAttempts)
	}
	if alert.ThresholdMinutes != 120 {
		t.Fatalf("expected threshold 120 minutes, got %d", alert.ThresholdMinutes)
	}
	if got := alerts.attributes[0]["type"]; got != "payments.aged_pending" {
		t.Fatalf("expected alert type attribute, got %q", got)
	}
}

func TestPaymentReconcileJobSkipsAlertWhenBacklogEmpty(t *testing.T) {
	lifecycle := &fakePaymentLifecycle{agedCount: 0}
	alerts := &fakeAlertSink{}
	job := newReconcileJob(t, lifecycle, nil, &fakeProviderSource{}, alerts)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(alerts.published) != 0 {
		t.Fatalf("expected no alerts, got %d", len(alerts.published))
	}
}
