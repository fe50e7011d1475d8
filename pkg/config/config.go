package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "SELLIA"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "SELLIA_DB_DSN"
	EnvDBHost = "SELLIA_DB_HOST"
	EnvDBUser = "SELLIA_DB_USER"
	EnvDBName = "SELLIA_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App            AppConfig
	Service        ServiceConfig
	DB             DBConfig
	Redis          RedisConfig
	JWT            JWTConfig
	FeatureFlags   FeatureFlagsConfig
	MercadoPago    MercadoPagoConfig
	Webhook        WebhookGuardConfig
	Reconciliation ReconciliationConfig
	GCP            GCPConfig
	Alerts         AlertsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	cfg.Webhook.normalize()
	cfg.Reconciliation.normalize()
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SELLIA_APP_ENV" required:"true"`
	Port         string `envconfig:"SELLIA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SELLIA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SELLIA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SELLIA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SELLIA_DB_DSN"`
	Driver string `envconfig:"SELLIA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SELLIA_DB_HOST"`
	LegacyPort     int    `envconfig:"SELLIA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SELLIA_DB_USER"`
	LegacyPassword string `envconfig:"SELLIA_DB_PASSWORD"`
	LegacyName     string `envconfig:"SELLIA_DB_NAME"`
	LegacySSLMode  string `envconfig:"SELLIA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SELLIA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SELLIA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SELLIA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SELLIA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SELLIA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SELLIA_REDIS_ADDR"`
	Password     string        `envconfig:"SELLIA_REDIS_PASSWORD"`
	DB           int           `envconfig:"SELLIA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SELLIA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SELLIA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SELLIA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SELLIA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SELLIA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SELLIA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SELLIA_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SELLIA_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SELLIA_AUTO_MIGRATE" default:"false"`
}

// MercadoPagoConfig carries the provider credentials and transport knobs.
type MercadoPagoConfig struct {
	AccessToken     string        `envconfig:"SELLIA_MP_ACCESS_TOKEN"`
	BaseURL         string        `envconfig:"SELLIA_MP_BASE_URL" default:"https://api.mercadopago.com"`
	NotificationURL string        `envconfig:"SELLIA_MP_NOTIFICATION_URL"`
	HTTPTimeout     time.Duration `envconfig:"SELLIA_MP_HTTP_TIMEOUT" default:"10s"`
}

// WebhookGuardConfig configures the inbound webhook authenticity checks.
type WebhookGuardConfig struct {
	// Secret is the fallback signing secret; SecretRefs lists every currently
	// accepted secret so a rotation never drops in-flight deliveries.
	Secret          string        `envconfig:"SELLIA_MP_WEBHOOK_SECRET"`
	SecretRefs      string        `envconfig:"SELLIA_MP_WEBHOOK_SECRET_REFS"`
	SignatureWindow time.Duration `envconfig:"SELLIA_MP_SIGNATURE_WINDOW" default:"5m"`
	ReplayTTL       time.Duration `envconfig:"SELLIA_MP_REPLAY_TTL" default:"24h"`
	IPAllowlist     string        `envconfig:"SELLIA_MP_IP_ALLOWLIST"`
}

const (
	maxSignatureWindow = 30 * time.Minute
	minReplayTTL       = time.Minute
	maxReplayTTL       = 7 * 24 * time.Hour
)

// Mercado Pago webhook egress addresses, used when no allowlist is configured.
var defaultAllowedCIDRs = []string{
	"34.195.82.184/32",
	"100.24.156.160/32",
	"35.196.38.56/32",
	"44.217.34.150/32",
	"44.219.124.34/32",
}

func (w *WebhookGuardConfig) normalize() {
	if w.SignatureWindow <= 0 {
		w.SignatureWindow = 5 * time.Minute
	}
	if w.SignatureWindow > maxSignatureWindow {
		w.SignatureWindow = maxSignatureWindow
	}
	w.ReplayTTL = clampDuration(w.ReplayTTL, 24*time.Hour, minReplayTTL, maxReplayTTL)
}

// Secrets returns the accepted signing secrets, rotation refs first.
func (w WebhookGuardConfig) Secrets() []string {
	secrets := []string{}
	for _, ref := range strings.Split(w.SecretRefs, ",") {
		if trimmed := strings.TrimSpace(ref); trimmed != "" {
			secrets = append(secrets, trimmed)
		}
	}
	if fallback := strings.TrimSpace(w.Secret); fallback != "" {
		secrets = append(secrets, fallback)
	}
	return secrets
}

// AllowedCIDRs returns the configured allowlist or the hardcoded default set.
func (w WebhookGuardConfig) AllowedCIDRs() []string {
	parsed := []string{}
	for _, entry := range strings.Split(w.IPAllowlist, ",") {
		if trimmed := strings.TrimSpace(entry); trimmed != "" {
			parsed = append(parsed, trimmed)
		}
	}
	if len(parsed) > 0 {
		return parsed
	}
	out := make([]string, len(defaultAllowedCIDRs))
	copy(out, defaultAllowedCIDRs)
	return out
}

// ReconciliationConfig tunes the pending-payment sweeper.
type ReconciliationConfig struct {
	PendingMinutes   int           `envconfig:"SELLIA_RECONCILE_PENDING_MINUTES" default:"15"`
	BatchSize        int           `envconfig:"SELLIA_RECONCILE_BATCH_SIZE" default:"100"`
	AgedAlertMinutes int           `envconfig:"SELLIA_AGED_PENDING_ALERT_MINUTES" default:"120"`
	Interval         time.Duration `envconfig:"SELLIA_RECONCILE_INTERVAL" default:"10m"`
}

func (r *ReconciliationConfig) normalize() {
	r.PendingMinutes = clampInt(r.PendingMinutes, 15, 5, 1440)
	r.BatchSize = clampInt(r.BatchSize, 100, 1, 500)
	r.AgedAlertMinutes = clampInt(r.AgedAlertMinutes, 120, 10, 10080)
}

// PendingAge converts the pending threshold into a duration.
func (r ReconciliationConfig) PendingAge() time.Duration {
	return time.Duration(r.PendingMinutes) * time.Minute
}

// AgedAlertAge converts the aged-pending alert threshold into a duration.
func (r ReconciliationConfig) AgedAlertAge() time.Duration {
	return time.Duration(r.AgedAlertMinutes) * time.Minute
}

type GCPConfig struct {
	ProjectID string `envconfig:"SELLIA_GCP_PROJECT_ID"`
}

// AlertsConfig names the Pub/Sub topic operational alerts are published to.
type AlertsConfig struct {
	Topic string `envconfig:"SELLIA_ALERTS_TOPIC" default:"sellia-payment-alerts"`
}

func clampInt(value, fallback, min, max int) int {
	if value == 0 {
		value = fallback
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func clampDuration(value, fallback, min, max time.Duration) time.Duration {
	if value <= 0 {
		value = fallback
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
