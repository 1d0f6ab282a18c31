package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/frame_layer/internal/httputil"
)

const (
	registrySignersPath = "/v1/onChainSignersByFid"
	registryTimeout     = 5 * time.Second

	signerEventAdd    = "SIGNER_EVENT_TYPE_ADD"
	signerEventRemove = "SIGNER_EVENT_TYPE_REMOVE"
)

// RegistryVerifier checks app keys against a hub's on-chain signer registry.
type RegistryVerifier struct {
	client *httputil.Client
}

// RegistryConfig configures a RegistryVerifier.
type RegistryConfig struct {
	// URL is the hub HTTP API root.
	URL string
	// APIKey is sent as x-api-key when set.
	APIKey  string
	Timeout time.Duration
}

// NewRegistryVerifier creates a verifier for the hub at cfg.URL.
func NewRegistryVerifier(cfg RegistryConfig) (*RegistryVerifier, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid key registry url %q", cfg.URL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = registryTimeout
	}
	var headers map[string]string
	if cfg.APIKey != "" {
		headers = map[string]string{"x-api-key": cfg.APIKey}
	}
	return &RegistryVerifier{
		client: httputil.NewClient(httputil.ClientConfig{
			BaseURL:    u.String(),
			Timeout:    timeout,
			MaxRetries: 1,
			UserAgent:  "frame-webhook",
			Headers:    headers,
		}),
	}, nil
}

// VerifyAppKey implements KeyVerifier. A key is active when its latest signer
// event for fid is an add.
func (v *RegistryVerifier) VerifyAppKey(ctx context.Context, fid int64, key string) (bool, error) {
	want := normalizeKey(key)
	if want == "" {
		return false, nil
	}

	resp, err := v.client.Get(ctx, registrySignersPath+"?fid="+strconv.FormatInt(fid, 10))
	if err != nil {
		return false, fmt.Errorf("query key registry: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		_ = httputil.DecodeResponse(resp, nil)
		return false, nil
	}
	var body json.RawMessage
	if err := httputil.DecodeResponse(resp, &body); err != nil {
		return false, fmt.Errorf("query key registry: %w", err)
	}

	active := false
	gjson.GetBytes(body, "events").ForEach(func(_, ev gjson.Result) bool {
		signer := ev.Get("signerEventBody")
		if normalizeKey(signer.Get("key").String()) != want {
			return true
		}
		switch signer.Get("eventType").String() {
		case signerEventAdd:
			active = true
		case signerEventRemove:
			active = false
		}
		return true
	})
	return active, nil
}

func normalizeKey(key string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(key)), "0x")
}
