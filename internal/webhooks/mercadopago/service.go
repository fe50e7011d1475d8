package mpwebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/selliahq/payments-backend/internal/payments"
	"github.com/selliahq/payments-backend/pkg/db/models"
	"github.com/selliahq/payments-backend/pkg/enums"
	pkgerrors "github.com/selliahq/payments-backend/pkg/errors"
)

// lifecycle is the slice of the payments service the webhook pathway drives.
type lifecycle interface {
	Confirm(ctx context.Context, input payments.ConfirmInput) (*payments.ConfirmResult, error)
	ResolveIntentByExternalReference(ctx context.Context, externalReference string) (*models.PaymentIntent, error)
}

type paymentFetcher interface {
	FetchPayment(ctx context.Context, providerPaymentID string) (*payments.Observation, error)
}

// Notification is one parsed Mercado Pago webhook delivery.
type Notification struct {
	EventID   string
	Topic     string
	DataID    string
	RequestID string
	Payload   json.RawMessage
}

// Service turns authenticated webhook notifications into lifecycle
// confirmations. The delivery payload is treated as a hint only: the payment
// is always re-fetched from the provider before any state changes.
type Service struct {
	payments lifecycle
	fetcher  paymentFetcher
}

// NewService builds the webhook processing service.
func NewService(lc lifecycle, fetcher paymentFetcher) (*Service, error) {
	if lc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	if fetcher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment fetcher required")
	}
	return &Service{payments: lc, fetcher: fetcher}, nil
}

// Process handles one authenticated notification. Non-payment topics are
// acknowledged without action so the provider stops retrying them.
func (s *Service) Process(ctx context.Context, notification Notification) (*payments.ConfirmResult, error) {
	topic := strings.ToLower(strings.TrimSpace(notification.Topic))
	if topic != "" && topic != "payment" {
		return nil, nil
	}
	if strings.TrimSpace(notification.DataID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification missing payment id")
	}

	observation, err := s.fetcher.FetchPayment(ctx, notification.DataID)
	if err != nil {
		return nil, err
	}
	if observation.ExternalReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment missing external reference")
	}

	intent, err := s.payments.ResolveIntentByExternalReference(ctx, observation.ExternalReference)
	if err != nil {
		return nil, err
	}

	obs := *observation
	obs.ProviderEventID = strings.TrimSpace(notification.EventID)
	if obs.Payload == nil {
		obs.Payload = notification.Payload
	}

	return s.payments.Confirm(ctx, payments.ConfirmInput{
		TenantID:    intent.TenantID,
		IntentID:    intent.ID,
		RequestID:   strings.TrimSpace(notification.RequestID),
		Source:      enums.EventSourceWebhook,
		Observation: obs,
	})
}
