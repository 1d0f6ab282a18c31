package webhook

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/frame_layer/internal/metrics"
	"github.com/R3E-Network/frame_layer/pkg/logger"
	"github.com/R3E-Network/frame_layer/services/frame"
	"github.com/R3E-Network/frame_layer/services/frame/store"
	"github.com/R3E-Network/frame_layer/services/frame/store/memory"
)

type signer struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newSigner(t *testing.T) *signer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return &signer{pub: pub, priv: priv}
}

func (s *signer) envelope(t *testing.T, fid int64, payload interface{}) []byte {
	t.Helper()
	enc := base64.RawURLEncoding

	header, err := json.Marshal(Header{FID: fid, Type: "app_key", Key: "0x" + hex.EncodeToString(s.pub)})
	require.NoError(t, err)
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	h := enc.EncodeToString(header)
	p := enc.EncodeToString(body)
	sig := ed25519.Sign(s.priv, []byte(h+"."+p))

	out, err := json.Marshal(Envelope{Header: h, Payload: p, Signature: enc.EncodeToString(sig)})
	require.NoError(t, err)
	return out
}

type recordingWelcomer struct {
	calls []int64
	err   error
}

func (w *recordingWelcomer) Welcome(_ context.Context, fid int64, _ frame.NotificationDetails) (SendResult, error) {
	w.calls = append(w.calls, fid)
	return SendSuccess, w.err
}

type allowKeys struct{}

func (allowKeys) VerifyAppKey(context.Context, int64, string) (bool, error) { return true, nil }

func newTestHandler(s store.NotificationStore, w Welcomer) *Handler {
	return NewHandler(Options{Store: s, Welcomer: w, KeyVerifier: allowKeys{}, Logger: logger.NewDiscard("webhook")})
}

var details = map[string]string{"url": "https://api.host.example/v1/frame-notifications", "token": "tok-1"}

func TestProcess_FrameAddedStoresAndWelcomes(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	w := &recordingWelcomer{}
	h := newTestHandler(st, w)
	sg := newSigner(t)

	ev, err := h.Process(ctx, sg.envelope(t, 42, map[string]interface{}{
		"event":               "frame_added",
		"notificationDetails": details,
	}))
	require.NoError(t, err)
	assert.Equal(t, EventFrameAdded, ev.Name)
	assert.Equal(t, int64(42), ev.FID)

	rec, err := st.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", rec.Token)
	assert.Equal(t, []int64{42}, w.calls)
}

func TestProcess_WelcomeFailureIsNotFatal(t *testing.T) {
	w := &recordingWelcomer{err: errors.New("host down")}
	h := newTestHandler(memory.New(), w)

	_, err := h.Process(context.Background(), newSigner(t).envelope(t, 1, map[string]interface{}{
		"event":               "frame_added",
		"notificationDetails": details,
	}))
	assert.NoError(t, err)
}

func TestProcess_LifecycleEvents(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	h := newTestHandler(st, nil)
	sg := newSigner(t)

	_, err := h.Process(ctx, sg.envelope(t, 7, map[string]interface{}{"event": "notifications_enabled", "notificationDetails": details}))
	require.NoError(t, err)
	_, err = st.Get(ctx, 7)
	require.NoError(t, err)

	_, err = h.Process(ctx, sg.envelope(t, 7, map[string]interface{}{"event": "notifications_disabled"}))
	require.NoError(t, err)
	_, err = st.Get(ctx, 7)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, st.Save(ctx, 7, frame.NotificationDetails{URL: "u", Token: "t"}))
	_, err = h.Process(ctx, sg.envelope(t, 7, map[string]interface{}{"event": "frame_removed"}))
	require.NoError(t, err)
	_, err = st.Get(ctx, 7)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcess_Rejections(t *testing.T) {
	sg := newSigner(t)
	good := sg.envelope(t, 1, map[string]interface{}{"event": "frame_removed"})

	var tampered Envelope
	require.NoError(t, json.Unmarshal(good, &tampered))
	tampered.Payload = base64.RawURLEncoding.EncodeToString([]byte(`{"event":"frame_added"}`))
	tamperedBody, err := json.Marshal(tampered)
	require.NoError(t, err)

	other := newSigner(t)
	var wrongKey Envelope
	require.NoError(t, json.Unmarshal(other.envelope(t, 1, map[string]string{"event": "frame_removed"}), &wrongKey))
	wrongKey.Signature = tampered.Signature
	wrongKeyBody, err := json.Marshal(wrongKey)
	require.NoError(t, err)

	tests := []struct {
		name   string
		body   []byte
		status int
	}{
		{"not json", []byte("nope"), http.StatusBadRequest},
		{"missing fields", []byte(`{"header":"x"}`), http.StatusBadRequest},
		{"tampered payload", tamperedBody, http.StatusUnauthorized},
		{"wrong key", wrongKeyBody, http.StatusUnauthorized},
		{"unknown event", sg.envelope(t, 1, map[string]string{"event": "frame_exploded"}), http.StatusBadRequest},
		{"enabled without details", sg.envelope(t, 1, map[string]string{"event": "notifications_enabled"}), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(memory.New(), nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(tt.body)))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

type failingStore struct{ *memory.Store }

func (failingStore) Delete(context.Context, int64) error { return errors.New("db down") }

func TestServeHTTP_StoreFailure(t *testing.T) {
	h := newTestHandler(&failingStore{Store: memory.New()}, nil)
	body := newSigner(t).envelope(t, 1, map[string]string{"event": "frame_removed"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(body)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServeHTTP_OK(t *testing.T) {
	h := newTestHandler(memory.New(), nil)
	body := newSigner(t).envelope(t, 1, map[string]string{"event": "frame_removed"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"event":"frame_removed"}`, rec.Body.String())
}

func TestSkipVerify(t *testing.T) {
	h := NewHandler(Options{Store: memory.New(), SkipVerify: true, Logger: logger.NewDiscard("webhook")})
	enc := base64.RawURLEncoding
	body, err := json.Marshal(Envelope{
		Header:    enc.EncodeToString([]byte(`{"fid":3,"type":"app_key","key":"0x00"}`)),
		Payload:   enc.EncodeToString([]byte(`{"event":"frame_removed"}`)),
		Signature: "unsigned",
	})
	require.NoError(t, err)

	_, err = h.Process(context.Background(), body)
	assert.NoError(t, err)
}

type denyKeys struct{}

func (denyKeys) VerifyAppKey(context.Context, int64, string) (bool, error) { return false, nil }

func TestKeyVerifier(t *testing.T) {
	h := NewHandler(Options{Store: memory.New(), KeyVerifier: denyKeys{}, Logger: logger.NewDiscard("webhook")})
	_, err := h.Process(context.Background(), newSigner(t).envelope(t, 1, map[string]string{"event": "frame_removed"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestMissingKeyVerifierRejectsSignedEvents(t *testing.T) {
	st := memory.New()
	h := NewHandler(Options{Store: st, Logger: logger.NewDiscard("webhook")})
	body := newSigner(t).envelope(t, 3, map[string]interface{}{"event": "frame_added", "notificationDetails": details})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(body)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	_, err := st.Get(context.Background(), 3)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUnknownEventsShareOneMetricLabel(t *testing.T) {
	h := newTestHandler(memory.New(), nil)
	sg := newSigner(t)

	before := webhookEventCount(t, "unknown", "unknown_event")
	for _, name := range []string{"junk_1", "junk_2", "junk_3"} {
		_, err := h.Process(context.Background(), sg.envelope(t, 1, map[string]string{"event": name}))
		require.Error(t, err)
	}

	assert.Equal(t, before+3, webhookEventCount(t, "unknown", "unknown_event"))
	for _, name := range []string{"junk_1", "junk_2", "junk_3"} {
		assert.Zero(t, webhookEventCount(t, name, "unknown_event"))
	}
	assert.Equal(t, "frame_added", eventLabel("frame_added"))
	assert.Equal(t, "unknown", eventLabel(""))
}

// webhookEventCount reads frame_webhook_events_total for one label pair.
func webhookEventCount(t *testing.T, event, result string) float64 {
	t.Helper()
	families, err := metrics.Registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "frame_webhook_events_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["event"] == event && labels["result"] == result {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
