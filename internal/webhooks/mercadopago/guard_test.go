package mpwebhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selliahq/payments-backend/pkg/config"
	"github.com/selliahq/payments-backend/pkg/metrics"
)

type fakeReplayStore struct {
	claimed map[string]bool
	err     error
}

func newFakeReplayStore() *fakeReplayStore {
	return &fakeReplayStore{claimed: make(map[string]bool)}
}

func (f *fakeReplayStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.claimed[key] {
		return false, nil
	}
	f.claimed[key] = true
	return true, nil
}

func (f *fakeReplayStore) ReplayKey(provider, eventID string) string {
	return "sellia:webhook_replay:" + provider + ":" + eventID
}

func signManifest(secret, ts, requestID, dataID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s.%s.%s", ts, requestID, dataID)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestGuard(t *testing.T, cfg config.WebhookGuardConfig) (*Guard, *fakeReplayStore) {
	t.Helper()
	if cfg.SignatureWindow == 0 {
		cfg.SignatureWindow = 5 * time.Minute
	}
	if cfg.ReplayTTL == 0 {
		cfg.ReplayTTL = 24 * time.Hour
	}
	if cfg.IPAllowlist == "" {
		cfg.IPAllowlist = "10.0.0.0/8"
	}
	replays := newFakeReplayStore()
	guard, err := NewGuard(cfg, replays, metrics.NewWebhookMetrics(prometheus.NewRegistry()))
	require.NoError(t, err)
	return guard, replays
}

func validInput(secret string, now time.Time) VerifyInput {
	ts := strconv.FormatInt(now.Unix(), 10)
	return VerifyInput{
		RemoteIP:  "10.1.2.3",
		RequestID: "req-1",
		DataID:    "12345",
		Signature: fmt.Sprintf("ts=%s,v1=%s", ts, signManifest(secret, ts, "req-1", "12345")),
		Now:       now,
	}
}

func TestGuardAcceptsValidDelivery(t *testing.T) {
	now := time.Now()
	guard, _ := newTestGuard(t, config.WebhookGuardConfig{Secret: "shh"})

	decision, err := guard.Verify(context.Background(), validInput("shh", now))
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Empty(t, decision.Reason)
}

func TestGuardBlocksUnlistedIP(t *testing.T) {
	now := time.Now()
	guard, _ := newTestGuard(t, config.WebhookGuardConfig{Secret: "shh"})

	input := validInput("shh", now)
	input.RemoteIP = "192.168.1.1"

	decision, err := guard.Verify(context.Background(), input)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonIPBlocked, decision.Reason)
}

func TestGuardRejectsMissingSignature(t *testing.T) {
	now := time.Now()
	guard, _ := newTestGuard(t, config.WebhookGuardConfig{Secret: "shh"})

	input := validInput("shh", now)
	input.Signature = ""

	decision, err := guard.Verify(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, ReasonMissingSignature, decision.Reason)

	input.Signature = "v1=deadbeef"
	decision, err = guard.Verify(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, ReasonMissingSignature, decision.Reason)
}

func TestGuardRejectsBadTimestamp(t *testing.T) {
	now := time.Now()
	guard, _ := newTestGuard(t, config.WebhookGuardConfig{Secret: "shh"})

	input := validInput("shh", now)
	input.Signature = "ts=not-a-number,v1=deadbeef"

	decision, err := guard.Verify(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidTimestamp, decision.Reason)
}

func TestGuardRejectsStaleSignature(t *testing.T) {
	now := time.Now()
	guard, _ := newTestGuard(t, config.WebhookGuardConfig{Secret: "shh", SignatureWindow: 5 * time.Minute})

	stale := now.Add(-10 * time.Minute)
	ts := strconv.FormatInt(stale.Unix(), 10)
	input := VerifyInput{
		RemoteIP:  "10.1.2.3",
		RequestID: "req-1",
		DataID:    "12345",
		Signature: fmt.Sprintf("ts=%s,v1=%s", ts, signManifest("shh", ts, "req-1", "12345")),
		Now:       now,
	}

	decision, err := guard.Verify(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, ReasonSignatureExpired, decision.Reason)
}

func TestGuardRejectsWrongSecret(t *testing.T) {
	now := time.Now()
	guard, _ := newTestGuard(t, config.WebhookGuardConfig{Secret: "shh"})

	decision, err := guard.Verify(context.Background(), validInput("wrong-secret", now))
	require.NoError(t, err)
	assert.Equal(t, ReasonSignatureInvalid, decision.Reason)
}

func TestGuardAcceptsRotatedSecret(t *testing.T) {
	now := time.Now()
	guard, _ := newTestGuard(t, config.WebhookGuardConfig{
		Secret:     "old-secret",
		SecretRefs: "new-secret",
	})

	// Signed with the previous key, still within rotation grace.
	decision, err := guard.Verify(context.Background(), validInput("old-secret", now))
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	input := validInput("new-secret", now)
	input.RequestID = "req-2"
	ts := strconv.FormatInt(now.Unix(), 10)
	input.Signature = fmt.Sprintf("ts=%s,v1=%s", ts, signManifest("new-secret", ts, "req-2", "12345"))
	decision, err = guard.Verify(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestGuardFencesReplays(t *testing.T) {
	now := time.Now()
	guard, _ := newTestGuard(t, config.WebhookGuardConfig{Secret: "shh"})
	input := validInput("shh", now)

	first, err := guard.Verify(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, first.Allowed)

	second, err := guard.Verify(context.Background(), input)
	require.NoError(t, err)
	assert.False(t, second.Allowed)
	assert.Equal(t, ReasonReplayed, second.Reason)
}

func TestGuardPropagatesReplayStoreErrors(t *testing.T) {
	now := time.Now()
	guard, replays := newTestGuard(t, config.WebhookGuardConfig{Secret: "shh"})
	replays.err = assert.AnError

	_, err := guard.Verify(context.Background(), validInput("shh", now))
	require.Error(t, err)
}

func TestGuardWithoutSecretsRefusesEverything(t *testing.T) {
	now := time.Now()
	guard, _ := newTestGuard(t, config.WebhookGuardConfig{})

	decision, err := guard.Verify(context.Background(), validInput("anything", now))
	require.NoError(t, err)
	assert.Equal(t, ReasonSignatureInvalid, decision.Reason)
}
