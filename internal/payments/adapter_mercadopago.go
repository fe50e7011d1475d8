package payments

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/selliahq/payments-backend/pkg/mercadopago"
)

// mercadoPagoAdapter bridges the Mercado Pago client to the canonical
// provider surface.
type mercadoPagoAdapter struct {
	client          *mercadopago.Client
	notificationURL string
}

// NewMercadoPagoAdapter wraps the Mercado Pago client as a ProviderAdapter.
func NewMercadoPagoAdapter(client *mercadopago.Client, notificationURL string) ProviderAdapter {
	return &mercadoPagoAdapter{client: client, notificationURL: notificationURL}
}

func (a *mercadoPagoAdapter) CreateCheckout(ctx context.Context, externalReference, currency string, items []CheckoutItem) (*Checkout, error) {
	req := mercadopago.PreferenceRequest{
		ExternalReference: externalReference,
		NotificationURL:   a.notificationURL,
	}
	for _, item := range items {
		req.Items = append(req.Items, mercadopago.PreferenceItem{
			Title:      item.Title,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			CurrencyID: currency,
		})
	}

	pref, err := a.client.CreatePreference(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Checkout{PreferenceID: pref.ID, RedirectURL: pref.InitPoint}, nil
}

func (a *mercadoPagoAdapter) FetchPayment(ctx context.Context, providerPaymentID string) (*Observation, error) {
	payment, err := a.client.GetPayment(ctx, providerPaymentID)
	if err != nil {
		return nil, err
	}
	obs := toObservation(*payment)
	return &obs, nil
}

func (a *mercadoPagoAdapter) SearchByExternalReference(ctx context.Context, externalReference string) ([]Observation, error) {
	payments, err := a.client.SearchPaymentsByExternalReference(ctx, externalReference)
	if err != nil {
		return nil, err
	}
	observations := make([]Observation, 0, len(payments))
	for _, payment := range payments {
		observations = append(observations, toObservation(payment))
	}
	return observations, nil
}

func toObservation(payment mercadopago.Payment) Observation {
	amount := payment.TransactionAmount
	payload, _ := json.Marshal(payment)
	return Observation{
		ProviderPaymentID: strconv.FormatInt(payment.ID, 10),
		NormalizedStatus:  payment.NormalizedStatus(),
		Amount:            &amount,
		Currency:          payment.CurrencyID,
		ExternalReference: payment.ExternalReference,
		Payload:           payload,
	}
}
