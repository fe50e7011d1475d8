package mpwebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/selliahq/payments-backend/pkg/config"
	"github.com/selliahq/payments-backend/pkg/metrics"
	"github.com/selliahq/payments-backend/pkg/redis"
)

const providerLabel = "mercado_pago"

// Rejection reasons surfaced in logs and metrics. The HTTP layer maps all of
// them to an opaque 403 so probes learn nothing about which check tripped.
const (
	ReasonIPBlocked        = "ip_blocked"
	ReasonMissingSignature = "missing_signature"
	ReasonInvalidTimestamp = "invalid_ts"
	ReasonSignatureExpired = "signature_expired"
	ReasonSignatureInvalid = "signature_mismatch"
	ReasonReplayed         = "replayed"
)

// Guard runs the layered webhook ingestion checks: source IP allowlist,
// HMAC signature with rotation support, timestamp freshness, and replay
// fencing backed by Redis.
type Guard struct {
	secrets   []string
	window    time.Duration
	replayTTL time.Duration
	allowlist []*net.IPNet
	replays   redis.ReplayStore
	metrics   *metrics.WebhookMetrics
}

// VerifyInput carries everything extracted from one webhook delivery.
type VerifyInput struct {
	RemoteIP  string
	Signature string // raw x-signature header
	RequestID string // x-request-id header
	DataID    string // payment id from body or query
	Now       time.Time
}

// Decision is the guard verdict for one delivery.
type Decision struct {
	Allowed bool
	Reason  string
}

// NewGuard builds a webhook guard from configuration. A guard with no
// configured secret refuses every delivery rather than letting unsigned
// traffic through.
func NewGuard(cfg config.WebhookGuardConfig, replays redis.ReplayStore, m *metrics.WebhookMetrics) (*Guard, error) {
	if replays == nil {
		return nil, errors.New("replay store is required")
	}

	allowlist := make([]*net.IPNet, 0)
	for _, cidr := range cfg.AllowedCIDRs() {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("parsing allowlist cidr %q: %w", cidr, err)
		}
		allowlist = append(allowlist, network)
	}

	return &Guard{
		secrets:   cfg.Secrets(),
		window:    cfg.SignatureWindow,
		replayTTL: cfg.ReplayTTL,
		allowlist: allowlist,
		replays:   replays,
		metrics:   m,
	}, nil
}

// Verify runs the checks cheapest-first and stops on the first failure. Only
// a delivery passing every check claims its replay key.
func (g *Guard) Verify(ctx context.Context, input VerifyInput) (Decision, error) {
	if !g.ipAllowed(input.RemoteIP) {
		return g.reject(ReasonIPBlocked), nil
	}

	ts, v1, ok := parseSignatureHeader(input.Signature)
	if !ok {
		return g.reject(ReasonMissingSignature), nil
	}

	signedAt, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return g.reject(ReasonInvalidTimestamp), nil
	}
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}
	skew := now.Sub(time.Unix(signedAt, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > g.window {
		return g.reject(ReasonSignatureExpired), nil
	}

	if !g.signatureMatches(ts, input.RequestID, input.DataID, v1) {
		return g.reject(ReasonSignatureInvalid), nil
	}

	replayKey := g.replays.ReplayKey(providerLabel, replayIdentity(input))
	first, err := g.replays.SetNX(ctx, replayKey, 1, g.replayTTL)
	if err != nil {
		return Decision{}, fmt.Errorf("claiming replay key: %w", err)
	}
	if !first {
		return g.reject(ReasonReplayed), nil
	}

	g.metrics.IncAccepted(providerLabel)
	return Decision{Allowed: true}, nil
}

func (g *Guard) reject(reason string) Decision {
	g.metrics.IncRejected(providerLabel, reason)
	return Decision{Allowed: false, Reason: reason}
}

func (g *Guard) ipAllowed(remoteIP string) bool {
	ip := net.ParseIP(strings.TrimSpace(remoteIP))
	if ip == nil {
		return false
	}
	for _, network := range g.allowlist {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// signatureMatches recomputes the HMAC-SHA256 of "ts.requestID.dataID" for
// every accepted secret. Multiple secrets let a rotation keep verifying
// deliveries signed with the previous key.
func (g *Guard) signatureMatches(ts, requestID, dataID, provided string) bool {
	decoded, err := hex.DecodeString(strings.TrimSpace(provided))
	if err != nil || len(decoded) == 0 {
		return false
	}
	manifest := fmt.Sprintf("%s.%s.%s", ts, requestID, dataID)
	for _, secret := range g.secrets {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(manifest))
		if hmac.Equal(mac.Sum(nil), decoded) {
			return true
		}
	}
	return false
}

// parseSignatureHeader splits the "ts=...,v1=..." header form.
func parseSignatureHeader(header string) (ts, v1 string, ok bool) {
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			v1 = strings.TrimSpace(value)
		}
	}
	if ts == "" || v1 == "" {
		return "", "", false
	}
	return ts, v1, true
}

func replayIdentity(input VerifyInput) string {
	if input.RequestID != "" {
		return input.DataID + ":" + input.RequestID
	}
	return input.DataID + ":" + input.Signature
}
