package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/selliahq/payments-backend/api/middleware"
	"github.com/selliahq/payments-backend/api/responses"
	"github.com/selliahq/payments-backend/api/validators"
	"github.com/selliahq/payments-backend/internal/payments"
	"github.com/selliahq/payments-backend/pkg/db/models"
	pkgerrors "github.com/selliahq/payments-backend/pkg/errors"
	"github.com/selliahq/payments-backend/pkg/logger"
)

type intentCreateItem struct {
	Title     string          `json:"title" validate:"required"`
	Quantity  int             `json:"quantity" validate:"required,min=1"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"required"`
}

type intentCreateRequest struct {
	OrderRef string             `json:"order_ref" validate:"required"`
	Amount   decimal.Decimal    `json:"amount" validate:"required"`
	Currency string             `json:"currency" validate:"omitempty,len=3"`
	Items    []intentCreateItem `json:"items" validate:"omitempty,dive"`
	Metadata json.RawMessage    `json:"metadata"`
}

func (r intentCreateRequest) toInput(tenantID, actorUID string) (payments.CreateIntentInput, error) {
	if !r.Amount.IsPositive() {
		return payments.CreateIntentInput{}, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	items := make([]payments.CheckoutItem, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, payments.CheckoutItem{
			Title:     strings.TrimSpace(item.Title),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return payments.CreateIntentInput{
		TenantID: tenantID,
		ActorUID: actorUID,
		OrderRef: strings.TrimSpace(r.OrderRef),
		Amount:   r.Amount,
		Currency: strings.ToUpper(strings.TrimSpace(r.Currency)),
		Items:    items,
		Metadata: r.Metadata,
	}, nil
}

type attemptRegisterRequest struct {
	ProviderPreferenceID string `json:"provider_preference_id" validate:"required"`
}

type intentResponse struct {
	ID                   uuid.UUID       `json:"id"`
	OrderRef             string          `json:"order_ref"`
	ExternalReference    string          `json:"external_reference"`
	ProviderPreferenceID *string         `json:"provider_preference_id,omitempty"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	Status               string          `json:"status"`
	Metadata             json.RawMessage `json:"metadata,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

type checkoutResponse struct {
	PreferenceID string `json:"preference_id"`
	RedirectURL  string `json:"redirect_url"`
}

type intentCreateResponse struct {
	Intent   intentResponse    `json:"intent"`
	Attempt  attemptResponse   `json:"attempt"`
	Checkout *checkoutResponse `json:"checkout,omitempty"`
}

type attemptResponse struct {
	ID                   uuid.UUID `json:"id"`
	IntentID             uuid.UUID `json:"intent_id"`
	Provider             string    `json:"provider"`
	ProviderPreferenceID *string   `json:"provider_preference_id,omitempty"`
	ProviderPaymentID    *string   `json:"provider_payment_id,omitempty"`
	Status               string    `json:"status"`
	RawStatus            *string   `json:"raw_status,omitempty"`
	LastError            *string   `json:"last_error,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type transactionResponse struct {
	ID                uuid.UUID       `json:"id"`
	AttemptID         uuid.UUID       `json:"attempt_id"`
	ProviderPaymentID string          `json:"provider_payment_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Status            string          `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type eventResponse struct {
	ID                string          `json:"id"`
	AttemptID         *uuid.UUID      `json:"attempt_id,omitempty"`
	Type              string          `json:"type"`
	Source            string          `json:"source"`
	ProviderEventID   *string         `json:"provider_event_id,omitempty"`
	ProviderPaymentID *string         `json:"provider_payment_id,omitempty"`
	ActorUID          *string         `json:"actor_uid,omitempty"`
	RequestID         *string         `json:"request_id,omitempty"`
	FromStatus        *string         `json:"from_status,omitempty"`
	ToStatus          *string         `json:"to_status,omitempty"`
	Payload           json.RawMessage `json:"payload,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

type intentDetailResponse struct {
	Intent       intentResponse        `json:"intent"`
	Attempts     []attemptResponse     `json:"attempts"`
	Transactions []transactionResponse `json:"transactions"`
	Events       []eventResponse       `json:"events"`
}

func intentResponseFromModel(intent models.PaymentIntent) intentResponse {
	return intentResponse{
		ID:                   intent.ID,
		OrderRef:             intent.OrderRef,
		ExternalReference:    intent.ExternalReference,
		ProviderPreferenceID: intent.ProviderPreferenceID,
		Amount:               intent.Amount,
		Currency:             intent.Currency,
		Status:               string(intent.Status),
		Metadata:             intent.Metadata,
		CreatedAt:            intent.CreatedAt,
		UpdatedAt:            intent.UpdatedAt,
	}
}

func attemptResponseFromModel(attempt models.PaymentAttempt) attemptResponse {
	return attemptResponse{
		ID:                   attempt.ID,
		IntentID:             attempt.IntentID,
		Provider:             string(attempt.Provider),
		ProviderPreferenceID: attempt.ProviderPreferenceID,
		ProviderPaymentID:    attempt.ProviderPaymentID,
		Status:               string(attempt.Status),
		RawStatus:            attempt.RawStatus,
		LastError:            attempt.LastError,
		CreatedAt:            attempt.CreatedAt,
		UpdatedAt:            attempt.UpdatedAt,
	}
}

func transactionResponseFromModel(txn models.PaymentTransaction) transactionResponse {
	return transactionResponse{
		ID:                txn.ID,
		AttemptID:         txn.AttemptID,
		ProviderPaymentID: txn.ProviderPaymentID,
		Amount:            txn.Amount,
		Currency:          txn.Currency,
		Status:            string(txn.Status),
		CreatedAt:         txn.CreatedAt,
		UpdatedAt:         txn.UpdatedAt,
	}
}

func eventResponseFromModel(event models.PaymentEvent) eventResponse {
	return eventResponse{
		ID:                event.ID,
		AttemptID:         event.AttemptID,
		Type:              string(event.Type),
		Source:            string(event.Source),
		ProviderEventID:   event.ProviderEventID,
		ProviderPaymentID: event.ProviderPaymentID,
		ActorUID:          event.ActorUID,
		RequestID:         event.RequestID,
		FromStatus:        event.FromStatus,
		ToStatus:          event.ToStatus,
		Payload:           event.Payload,
		CreatedAt:         event.CreatedAt,
	}
}

// PaymentIntentCreate handles creating a payment intent and its provider
// checkout.
func PaymentIntentCreate(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		tenantID := middleware.TenantIDFromContext(r.Context())
		if tenantID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "tenant context missing"))
			return
		}

		var payload intentCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := payload.toInput(tenantID, middleware.ActorUIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateIntent(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		body := intentCreateResponse{
			Intent:  intentResponseFromModel(result.Intent),
			Attempt: attemptResponseFromModel(result.Attempt),
		}
		if result.Checkout != nil {
			body.Checkout = &checkoutResponse{
				PreferenceID: result.Checkout.PreferenceID,
				RedirectURL:  result.Checkout.RedirectURL,
			}
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, body)
	}
}

// PaymentAttemptRegister links a provider checkout preference to an intent
// and one of its attempts. Callers use it to re-stamp the preference when a
// checkout is reopened out of band.
func PaymentAttemptRegister(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		tenantID := middleware.TenantIDFromContext(r.Context())
		if tenantID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "tenant context missing"))
			return
		}

		intentID, err := uuid.Parse(chi.URLParam(r, "intentId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid intent id"))
			return
		}
		attemptID, err := uuid.Parse(chi.URLParam(r, "attemptId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid attempt id"))
			return
		}

		var payload attemptRegisterRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		attempt, err := svc.RegisterProviderAttempt(r.Context(), payments.RegisterProviderAttemptInput{
			TenantID:             tenantID,
			IntentID:             intentID,
			AttemptID:            attemptID,
			ProviderPreferenceID: payload.ProviderPreferenceID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, attemptResponseFromModel(*attempt))
	}
}

// PaymentIntentDetail returns the full lifecycle view of one intent.
func PaymentIntentDetail(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		tenantID := middleware.TenantIDFromContext(r.Context())
		if tenantID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "tenant context missing"))
			return
		}

		intentID, err := uuid.Parse(chi.URLParam(r, "intentId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid intent id"))
			return
		}

		detail, err := svc.GetIntent(r.Context(), tenantID, intentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		body := intentDetailResponse{
			Intent:       intentResponseFromModel(detail.Intent),
			Attempts:     make([]attemptResponse, 0, len(detail.Attempts)),
			Transactions: make([]transactionResponse, 0, len(detail.Transactions)),
			Events:       make([]eventResponse, 0, len(detail.Events)),
		}
		for _, attempt := range detail.Attempts {
			body.Attempts = append(body.Attempts, attemptResponseFromModel(attempt))
		}
		for _, txn := range detail.Transactions {
			body.Transactions = append(body.Transactions, transactionResponseFromModel(txn))
		}
		for _, event := range detail.Events {
			body.Events = append(body.Events, eventResponseFromModel(event))
		}
		responses.WriteSuccess(w, body)
	}
}
