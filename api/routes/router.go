package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/selliahq/payments-backend/api/controllers"
	webhookcontrollers "github.com/selliahq/payments-backend/api/controllers/webhooks"
	"github.com/selliahq/payments-backend/api/middleware"
	"github.com/selliahq/payments-backend/internal/payments"
	mpwebhook "github.com/selliahq/payments-backend/internal/webhooks/mercadopago"
	"github.com/selliahq/payments-backend/pkg/config"
	"github.com/selliahq/payments-backend/pkg/db"
	"github.com/selliahq/payments-backend/pkg/logger"
	"github.com/selliahq/payments-backend/pkg/pubsub"
	"github.com/selliahq/payments-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	alertsP pubsub.Pinger,
	paymentsService payments.Service,
	webhookGuard *mpwebhook.Guard,
	webhookService *mpwebhook.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP, alertsP))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/mercadopago", webhookcontrollers.MercadoPagoWebhook(webhookGuard, webhookService, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/v1/payments", func(r chi.Router) {
			r.Post("/intents", controllers.PaymentIntentCreate(paymentsService, logg))
			r.Get("/intents/{intentId}", controllers.PaymentIntentDetail(paymentsService, logg))
			r.Put("/intents/{intentId}/attempts/{attemptId}/provider", controllers.PaymentAttemptRegister(paymentsService, logg))
		})
	})

	return r
}
