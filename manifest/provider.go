package manifest

import (
	"net/http"

	"github.com/R3E-Network/frame_layer/internal/httputil"
)

// Provider serves the discovery document for a fixed base URL.
type Provider struct {
	base  string
	creds AccountAssociation
	meta  Metadata
}

// NewProvider creates a provider. overrides may be nil.
func NewProvider(base string, overrides *Overrides) *Provider {
	creds, meta := overrides.Apply(DefaultCredentials(), DefaultMetadata())
	return &Provider{base: base, creds: creds, meta: meta}
}

// BaseURL returns the base URL the documents are built for.
func (p *Provider) BaseURL() string {
	return p.base
}

// Credentials returns the effective account association.
func (p *Provider) Credentials() AccountAssociation {
	return p.creds
}

// Document builds a fresh document.
func (p *Provider) Document() Document {
	return Build(p.base, p.creds, p.meta)
}

// ServeHTTP writes the document as JSON. There is no error path.
func (p *Provider) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, p.Document())
}
