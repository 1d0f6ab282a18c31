package manifest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/frame_layer/internal/config"
)

func TestBuild_DerivesURLs(t *testing.T) {
	doc := Build("https://app.example", DefaultCredentials(), DefaultMetadata())

	assert.Equal(t, "https://app.example/api/webhook", doc.Frame.WebhookURL)
	assert.Equal(t, "https://app.example/frames/hello/opengraph-image", doc.Frame.ImageURL)
	assert.Equal(t, "https://app.example/icon.png", doc.Frame.IconURL)
	assert.Equal(t, "https://app.example/splash.png", doc.Frame.SplashImageURL)
	assert.Equal(t, "https://app.example", doc.Frame.HomeURL)
	assert.Equal(t, "1", doc.Frame.Version)
	assert.Equal(t, "Launch Frame", doc.Frame.ButtonTitle)
	assert.Equal(t, "#f7f7f7", doc.Frame.SplashBackgroundColor)
	assert.Equal(t, ProjectTitle, doc.Frame.Name)
}

func TestBuild_PlatformFallback(t *testing.T) {
	base := config.ResolveBaseURL("", "x.vercel.app")
	doc := Build(base, DefaultCredentials(), DefaultMetadata())
	assert.Equal(t, "https://x.vercel.app/icon.png", doc.Frame.IconURL)
}

func TestBuild_NoBaseConfigured(t *testing.T) {
	base := config.ResolveBaseURL("", "")
	doc := Build(base, DefaultCredentials(), DefaultMetadata())
	assert.Equal(t, "https://", doc.Frame.HomeURL)
	assert.Equal(t, "https:///api/webhook", doc.Frame.WebhookURL)
}

func TestBuild_Deterministic(t *testing.T) {
	a, err := json.Marshal(Build("https://a.example", DefaultCredentials(), DefaultMetadata()))
	require.NoError(t, err)
	b, err := json.Marshal(Build("https://a.example", DefaultCredentials(), DefaultMetadata()))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestProvider_ServeHTTP(t *testing.T) {
	p := NewProvider("https://app.example", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/farcaster.json", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 2)

	assoc := body["accountAssociation"]
	assert.Equal(t, defaultHeader, assoc["header"])
	assert.Equal(t, defaultPayload, assoc["payload"])
	assert.Equal(t, defaultSignature, assoc["signature"])

	frame := body["frame"]
	assert.Len(t, frame, 9)
	assert.Equal(t, "https://app.example/api/webhook", frame["webhookUrl"])
}

func TestDecodeHeader(t *testing.T) {
	h, err := DefaultCredentials().DecodeHeader()
	require.NoError(t, err)
	assert.Equal(t, int64(887246), h.FID)
	assert.Equal(t, "custody", h.Type)
	assert.Equal(t, "0x7D400FD1F592bB4FCd6a363BfD200A43D16704e7", h.Key)

	_, err = AccountAssociation{Header: "%%%"}.DecodeHeader()
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
accountAssociation:
  header: h
  payload: p
  signature: s
frame:
  name: Staging Frame
  buttonTitle: Open
`), 0o600))

	o, err := Load(path)
	require.NoError(t, err)

	p := NewProvider("https://staging.example", o)
	doc := p.Document()
	assert.Equal(t, AccountAssociation{Header: "h", Payload: "p", Signature: "s"}, doc.AccountAssociation)
	assert.Equal(t, "Staging Frame", doc.Frame.Name)
	assert.Equal(t, "Open", doc.Frame.ButtonTitle)
	assert.Equal(t, "1", doc.Frame.Version)
	assert.Equal(t, "#f7f7f7", doc.Frame.SplashBackgroundColor)
}

func TestParseOverrides(t *testing.T) {
	o, err := Parse([]byte(`{"frame":{"splashBackgroundColor":"#000000"}}`), "overrides")
	require.NoError(t, err)
	assert.Nil(t, o.AccountAssociation)
	assert.Equal(t, "#000000", o.Frame.SplashBackgroundColor)

	_, err = Parse([]byte(`{"accountAssociation":{"header":"h"}}`), "m.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload, signature")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
