package controllers

import (
	"net/http"

	"github.com/selliahq/payments-backend/api/responses"
	"github.com/selliahq/payments-backend/pkg/config"
	"github.com/selliahq/payments-backend/pkg/db"
	pkgerrors "github.com/selliahq/payments-backend/pkg/errors"
	"github.com/selliahq/payments-backend/pkg/logger"
	"github.com/selliahq/payments-backend/pkg/pubsub"
	"github.com/selliahq/payments-backend/pkg/redis"
)

const envHeader = "X-Sellia-Env"

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness only when every wired dependency answers.
// Optional dependencies (nil clients) are skipped, not failed.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger, alertsP pubsub.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w.Header().Set(envHeader, cfg.App.Env)

		checks := map[string]string{}
		failed := false

		if dbP != nil {
			checks["db"] = "ok"
			if err := dbP.Ping(ctx); err != nil {
				checks["db"] = "unavailable"
				failed = true
			}
		}
		if redisP != nil {
			checks["redis"] = "ok"
			if err := redisP.Ping(ctx); err != nil {
				checks["redis"] = "unavailable"
				failed = true
			}
		}
		if alertsP != nil {
			checks["pubsub"] = "ok"
			if err := alertsP.Ping(ctx); err != nil {
				checks["pubsub"] = "unavailable"
				failed = true
			}
		}

		if failed {
			err := pkgerrors.New(pkgerrors.CodeDependency, "dependency unavailable").WithDetails(checks)
			responses.WriteError(ctx, logg, w, err)
			return
		}
		checks["status"] = "ready"
		responses.WriteSuccess(w, checks)
	}
}
