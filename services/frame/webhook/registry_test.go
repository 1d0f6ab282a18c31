package webhook

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/frame_layer/pkg/logger"
	"github.com/R3E-Network/frame_layer/services/frame"
	"github.com/R3E-Network/frame_layer/services/frame/store"
	"github.com/R3E-Network/frame_layer/services/frame/store/memory"
)

// signerEvent renders one hub signer event.
func signerEvent(fid int64, key, eventType string) string {
	return fmt.Sprintf(`{"type":"EVENT_TYPE_SIGNER","fid":%d,"signerEventBody":{"key":%q,"keyType":1,"eventType":%q}}`, fid, key, eventType)
}

// newHub serves onChainSignersByFid from a fixed fid -> events table.
func newHub(t *testing.T, signers map[string][]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != registrySignersPath {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("x-api-key") != "hub-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		events, ok := signers[r.URL.Query().Get("fid")]
		if !ok {
			http.Error(w, `{"errCode":"not_found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"events":[` + strings.Join(events, ",") + `]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestRegistry(t *testing.T, url string) *RegistryVerifier {
	t.Helper()
	v, err := NewRegistryVerifier(RegistryConfig{URL: url, APIKey: "hub-key"})
	require.NoError(t, err)
	return v
}

func hexKey(s *signer) string {
	return "0x" + hex.EncodeToString(s.pub)
}

func TestRegistryVerifier_VerifyAppKey(t *testing.T) {
	active := newSigner(t)
	removed := newSigner(t)
	hub := newHub(t, map[string][]string{
		"3": {
			signerEvent(3, strings.ToUpper(hexKey(active)[2:]), signerEventAdd),
			signerEvent(3, hexKey(removed), signerEventAdd),
			signerEvent(3, hexKey(removed), signerEventRemove),
		},
	})
	v := newTestRegistry(t, hub.URL)
	ctx := context.Background()

	tests := []struct {
		name string
		fid  int64
		key  string
		want bool
	}{
		{"active key", 3, hexKey(active), true},
		{"removed key", 3, hexKey(removed), false},
		{"key of another fid", 4, hexKey(active), false},
		{"unregistered key", 3, hexKey(newSigner(t)), false},
		{"empty key", 3, "0x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := v.VerifyAppKey(ctx, tt.fid, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestRegistryVerifier_HubFailure(t *testing.T) {
	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer hub.Close()

	_, err := newTestRegistry(t, hub.URL).VerifyAppKey(context.Background(), 3, "0xabcd")
	assert.Error(t, err)
}

func TestNewRegistryVerifier_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "hub.example", "ftp://hub.example", "://"} {
		_, err := NewRegistryVerifier(RegistryConfig{URL: raw})
		assert.Error(t, err, raw)
	}
}

func TestHandler_RejectsUnregisteredAppKey(t *testing.T) {
	ctx := context.Background()
	owner := newSigner(t)
	hub := newHub(t, map[string][]string{"3": {signerEvent(3, hexKey(owner), signerEventAdd)}})

	st := memory.New()
	legit := frame.NotificationDetails{URL: "https://api.host.example/v1/frame-notifications", Token: "legit"}
	require.NoError(t, st.Save(ctx, 3, legit))

	w := &recordingWelcomer{}
	h := NewHandler(Options{
		Store:       st,
		Welcomer:    w,
		KeyVerifier: newTestRegistry(t, hub.URL),
		Logger:      logger.NewDiscard("webhook"),
	})

	forged := newSigner(t).envelope(t, 3, map[string]interface{}{
		"event":               "frame_added",
		"notificationDetails": map[string]string{"url": "http://127.0.0.1:1/collect", "token": "evil"},
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(forged)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	got, err := st.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, legit.Token, got.Token)
	assert.Equal(t, legit.URL, got.URL)
	assert.Empty(t, w.calls)

	genuine := owner.envelope(t, 3, map[string]interface{}{"event": "frame_removed"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(genuine)))
	assert.Equal(t, http.StatusOK, rec.Code)
	_, err = st.Get(ctx, 3)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
