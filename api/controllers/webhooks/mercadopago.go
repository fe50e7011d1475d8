package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/selliahq/payments-backend/api/responses"
	"github.com/selliahq/payments-backend/internal/payments"
	mpwebhook "github.com/selliahq/payments-backend/internal/webhooks/mercadopago"
	pkgerrors "github.com/selliahq/payments-backend/pkg/errors"
	"github.com/selliahq/payments-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

type mercadoPagoGuard interface {
	Verify(ctx context.Context, input mpwebhook.VerifyInput) (mpwebhook.Decision, error)
}

type mercadoPagoProcessor interface {
	Process(ctx context.Context, notification mpwebhook.Notification) (*payments.ConfirmResult, error)
}

// notificationBody is the subset of the Mercado Pago delivery payload the
// controller reads. data.id arrives as a number or a string depending on the
// notification generation.
type notificationBody struct {
	ID     json.Number `json:"id"`
	Type   string      `json:"type"`
	Topic  string      `json:"topic"`
	Action string      `json:"action"`
	Data   struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

// MercadoPagoWebhook ingests provider payment notifications. Every rejection
// reason collapses into the same opaque 403; replays are acknowledged with a
// 200 so the provider stops redelivering.
func MercadoPagoWebhook(guard mercadoPagoGuard, svc mercadoPagoProcessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if guard == nil || svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook pipeline unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		var body notificationBody
		// A malformed body is not fatal: the identifiers may still arrive in
		// the query string.
		_ = json.Unmarshal(payload, &body)

		dataID := extractDataID(body, r)
		requestID := r.Header.Get("X-Request-Id")

		decision, err := guard.Verify(ctx, mpwebhook.VerifyInput{
			RemoteIP:  clientIP(r),
			Signature: r.Header.Get("X-Signature"),
			RequestID: requestID,
			DataID:    dataID,
			Now:       time.Now().UTC(),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify delivery"))
			return
		}
		if !decision.Allowed {
			if decision.Reason == mpwebhook.ReasonReplayed {
				responses.WriteSuccess(w, nil)
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "forbidden"))
			return
		}

		result, err := svc.Process(ctx, mpwebhook.Notification{
			EventID:   body.ID.String(),
			Topic:     extractTopic(body, r),
			DataID:    dataID,
			RequestID: requestID,
			Payload:   payload,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if result == nil {
			responses.WriteSuccess(w, nil)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"intent_status":  result.IntentStatus,
			"attempt_status": result.AttemptStatus,
			"transitioned":   result.TransitionApplied,
			"replayed":       result.Replayed,
		})
	}
}

func extractDataID(body notificationBody, r *http.Request) string {
	if id := body.Data.ID.String(); id != "" && id != "0" {
		return id
	}
	query := r.URL.Query()
	for _, key := range []string{"data.id", "data[id]", "id"} {
		if v := strings.TrimSpace(query.Get(key)); v != "" {
			return v
		}
	}
	return ""
}

func extractTopic(body notificationBody, r *http.Request) string {
	if t := strings.TrimSpace(body.Type); t != "" {
		return t
	}
	if t := strings.TrimSpace(body.Topic); t != "" {
		return t
	}
	if action := strings.TrimSpace(body.Action); action != "" {
		// Actions look like "payment.updated"; the topic is the prefix.
		if idx := strings.IndexByte(action, '.'); idx > 0 {
			return action[:idx]
		}
		return action
	}
	query := r.URL.Query()
	for _, key := range []string{"topic", "type"} {
		if v := strings.TrimSpace(query.Get(key)); v != "" {
			return v
		}
	}
	return ""
}

// clientIP trusts the first hop of X-Forwarded-For when present, falling back
// to the socket address.
func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		first := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
