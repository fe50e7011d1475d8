package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/selliahq/payments-backend/api/middleware"
	"github.com/selliahq/payments-backend/internal/payments"
	"github.com/selliahq/payments-backend/pkg/db/models"
	"github.com/selliahq/payments-backend/pkg/enums"
	pkgerrors "github.com/selliahq/payments-backend/pkg/errors"
)

type fakePaymentsService struct {
	createInput  payments.CreateIntentInput
	createResult *payments.CreateIntentResult
	createErr    error

	attemptInput  payments.RegisterProviderAttemptInput
	attemptResult *models.PaymentAttempt
	attemptErr    error

	detailTenant string
	detailIntent uuid.UUID
	detailResult *payments.IntentDetail
	detailErr    error
}

func (f *fakePaymentsService) CreateIntent(ctx context.Context, input payments.CreateIntentInput) (*payments.CreateIntentResult, error) {
	f.createInput = input
	return f.createResult, f.createErr
}

func (f *fakePaymentsService) RegisterProviderAttempt(ctx context.Context, input payments.RegisterProviderAttemptInput) (*models.PaymentAttempt, error) {
	f.attemptInput = input
	return f.attemptResult, f.attemptErr
}

func (f *fakePaymentsService) Confirm(ctx context.Context, input payments.ConfirmInput) (*payments.ConfirmResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not used in controller tests")
}

func (f *fakePaymentsService) GetIntent(ctx context.Context, tenantID string, intentID uuid.UUID) (*payments.IntentDetail, error) {
	f.detailTenant = tenantID
	f.detailIntent = intentID
	return f.detailResult, f.detailErr
}

func (f *fakePaymentsService) ResolveIntentByExternalReference(ctx context.Context, externalReference string) (*models.PaymentIntent, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not used in controller tests")
}

func (f *fakePaymentsService) StuckAttempts(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentAttempt, error) {
	return nil, nil
}

func (f *fakePaymentsService) CountAgedPending(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func tenantRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	ctx := middleware.WithTenantID(req.Context(), "tenant-a")
	ctx = middleware.WithActorUID(ctx, "user-17")
	return req.WithContext(ctx)
}

func testIntent(id uuid.UUID) models.PaymentIntent {
	return models.PaymentIntent{
		ID:                id,
		TenantID:          "tenant-a",
		OrderRef:          "order-7",
		ExternalReference: "tenant-a::order-7::" + id.String(),
		Amount:            decimal.NewFromInt(2500),
		Currency:          "ARS",
		Status:            enums.IntentStatusRequiresConfirmation,
	}
}

func TestPaymentIntentCreateReturnsIntentAndCheckout(t *testing.T) {
	intentID := uuid.New()
	svc := &fakePaymentsService{
		createResult: &payments.CreateIntentResult{
			Intent: testIntent(intentID),
			Attempt: models.PaymentAttempt{
				ID:       uuid.New(),
				TenantID: "tenant-a",
				IntentID: intentID,
				Provider: enums.ProviderMercadoPago,
				Status:   enums.AttemptStatusPendingProvider,
			},
			Checkout: &payments.Checkout{
				PreferenceID: "pref-1",
				RedirectURL:  "https://www.mercadopago.com.ar/checkout/v1/redirect?pref_id=pref-1",
			},
		},
	}
	handler := PaymentIntentCreate(svc, nil)

	body := `{"order_ref":"order-7","amount":"2500.00","currency":"ARS","items":[{"title":"Plan Pro","quantity":1,"unit_price":"2500.00"}]}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, tenantRequest(http.MethodPost, "/api/v1/payments/intents", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.createInput.TenantID != "tenant-a" {
		t.Fatalf("expected tenant from context, got %q", svc.createInput.TenantID)
	}
	if svc.createInput.OrderRef != "order-7" {
		t.Fatalf("expected order ref, got %q", svc.createInput.OrderRef)
	}
	if len(svc.createInput.Items) != 1 || svc.createInput.Items[0].Title != "Plan Pro" {
		t.Fatalf("expected checkout items forwarded, got %+v", svc.createInput.Items)
	}
	if svc.createInput.ActorUID != "user-17" {
		t.Fatalf("expected actor uid from context, got %q", svc.createInput.ActorUID)
	}

	var envelope struct {
		Data intentCreateResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Intent.ID != intentID {
		t.Fatalf("expected intent id %s, got %s", intentID, envelope.Data.Intent.ID)
	}
	if envelope.Data.Checkout == nil || envelope.Data.Checkout.PreferenceID != "pref-1" {
		t.Fatalf("expected checkout handles, got %+v", envelope.Data.Checkout)
	}
	if envelope.Data.Attempt.IntentID != intentID {
		t.Fatalf("expected first attempt in response, got %+v", envelope.Data.Attempt)
	}
}

func TestPaymentIntentCreateRejectsNonPositiveAmount(t *testing.T) {
	svc := &fakePaymentsService{}
	handler := PaymentIntentCreate(svc, nil)

	body := `{"order_ref":"order-7","amount":"0"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, tenantRequest(http.MethodPost, "/api/v1/payments/intents", body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.createInput.OrderRef != "" {
		t.Fatal("service must not be called for invalid amounts")
	}
}

func TestPaymentIntentCreateRequiresTenantContext(t *testing.T) {
	handler := PaymentIntentCreate(&fakePaymentsService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/intents", strings.NewReader(`{"order_ref":"o","amount":"10"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without tenant context, got %d", rec.Code)
	}
}

func TestPaymentAttemptRegisterForwardsPreference(t *testing.T) {
	intentID := uuid.New()
	attemptID := uuid.New()
	pref := "pref-77"
	svc := &fakePaymentsService{
		attemptResult: &models.PaymentAttempt{
			ID:                   attemptID,
			TenantID:             "tenant-a",
			IntentID:             intentID,
			Provider:             enums.ProviderMercadoPago,
			ProviderPreferenceID: &pref,
			Status:               enums.AttemptStatusPendingProvider,
		},
	}

	router := chi.NewRouter()
	router.Put("/api/v1/payments/intents/{intentId}/attempts/{attemptId}/provider", PaymentAttemptRegister(svc, nil))

	body := `{"provider_preference_id":"pref-77"}`
	target := "/api/v1/payments/intents/" + intentID.String() + "/attempts/" + attemptID.String() + "/provider"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, tenantRequest(http.MethodPut, target, body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.attemptInput.IntentID != intentID {
		t.Fatalf("expected intent id from path, got %s", svc.attemptInput.IntentID)
	}
	if svc.attemptInput.AttemptID != attemptID {
		t.Fatalf("expected attempt id from path, got %s", svc.attemptInput.AttemptID)
	}
	if svc.attemptInput.ProviderPreferenceID != "pref-77" {
		t.Fatalf("expected preference forwarded, got %q", svc.attemptInput.ProviderPreferenceID)
	}
}

func TestPaymentAttemptRegisterMapsConflict(t *testing.T) {
	intentID := uuid.New()
	attemptID := uuid.New()
	svc := &fakePaymentsService{
		attemptErr: pkgerrors.New(pkgerrors.CodeConflict, "attempt does not belong to intent"),
	}

	router := chi.NewRouter()
	router.Put("/api/v1/payments/intents/{intentId}/attempts/{attemptId}/provider", PaymentAttemptRegister(svc, nil))

	target := "/api/v1/payments/intents/" + intentID.String() + "/attempts/" + attemptID.String() + "/provider"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, tenantRequest(http.MethodPut, target, `{"provider_preference_id":"pref-1"}`))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestPaymentIntentDetailAggregatesLifecycle(t *testing.T) {
	intentID := uuid.New()
	attemptID := uuid.New()
	svc := &fakePaymentsService{
		detailResult: &payments.IntentDetail{
			Intent: testIntent(intentID),
			Attempts: []models.PaymentAttempt{{
				ID:       attemptID,
				IntentID: intentID,
				Provider: enums.ProviderMercadoPago,
				Status:   enums.AttemptStatusCaptured,
			}},
			Transactions: []models.PaymentTransaction{{
				ID:                uuid.New(),
				IntentID:          intentID,
				AttemptID:         attemptID,
				ProviderPaymentID: "889912",
				Amount:            decimal.NewFromInt(2500),
				Currency:          "ARS",
				Status:            enums.TransactionStatusApproved,
			}},
			Events: []models.PaymentEvent{{
				ID:       "evt-1",
				IntentID: intentID,
				Type:     enums.EventTypeWebhookConfirmed,
				Source:   enums.EventSourceWebhook,
			}},
		},
	}

	router := chi.NewRouter()
	router.Get("/api/v1/payments/intents/{intentId}", PaymentIntentDetail(svc, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, tenantRequest(http.MethodGet, "/api/v1/payments/intents/"+intentID.String(), ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.detailTenant != "tenant-a" {
		t.Fatalf("expected tenant-scoped lookup, got %q", svc.detailTenant)
	}
	if svc.detailIntent != intentID {
		t.Fatalf("expected intent id from path, got %s", svc.detailIntent)
	}

	var envelope struct {
		Data intentDetailResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Attempts) != 1 || len(envelope.Data.Transactions) != 1 || len(envelope.Data.Events) != 1 {
		t.Fatalf("expected full lifecycle view, got %+v", envelope.Data)
	}
}

func TestPaymentIntentDetailRejectsMalformedID(t *testing.T) {
	router := chi.NewRouter()
	router.Get("/api/v1/payments/intents/{intentId}", PaymentIntentDetail(&fakePaymentsService{}, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, tenantRequest(http.MethodGet, "/api/v1/payments/intents/not-a-uuid", ""))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
