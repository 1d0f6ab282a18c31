// Package manifest builds the frame discovery document served at
// /.well-known/farcaster.json.
//
// The document pairs an opaque, pre-signed account association with frame
// metadata whose URLs are derived from the deployment's public base URL.
package manifest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProjectTitle is the display name of the frame.
const ProjectTitle = "Onsen 1 USDC Frame"

// Path suffixes appended to the base URL.
const (
	IconPath    = "/icon.png"
	ImagePath   = "/frames/hello/opengraph-image"
	SplashPath  = "/splash.png"
	WebhookPath = "/api/webhook"
)

// Signed account association of the production deployment.
const (
	defaultHeader    = "eyJmaWQiOiA4ODcyNDYsICJ0eXBlIjogImN1c3RvZHkiLCAia2V5IjogIjB4N0Q0MDBGRDFGNTkyYkI0RkNkNmEzNjNCZkQyMDBBNDNEMTY3MDRlNyJ9"
	defaultPayload   = "eyJkb21haW4iOiAib25zZW5ib3QtZnJhbWVmb3IxdXNkYy52ZXJjZWwuYXBwIn0"
	defaultSignature = "MHg3YmRiNzEwMDQ2MTM0YTI0NTMzYTRlNDhlNTY4ZWI4YjQxNTkyZDRlNjNmMmZjNDlmMmY3NGZhOGZkNmJjZmUxNDZiNzFhZmU0MWI2YjgyM2NiMGE4MzZmZTA5NjdkNzhiYzMzYmJjNjljZDI1M2UxNTMyMWJiZjdkNWRjYzk2YTFi"
)

// AccountAssociation proves ownership of the domain. The three values are
// opaque and emitted exactly as configured.
type AccountAssociation struct {
	Header    string `json:"header" yaml:"header"`
	Payload   string `json:"payload" yaml:"payload"`
	Signature string `json:"signature" yaml:"signature"`
}

// Frame describes how a host renders and launches the frame.
type Frame struct {
	Version               string `json:"version"`
	Name                  string `json:"name"`
	IconURL               string `json:"iconUrl"`
	HomeURL               string `json:"homeUrl"`
	ImageURL              string `json:"imageUrl"`
	ButtonTitle           string `json:"buttonTitle"`
	SplashImageURL        string `json:"splashImageUrl"`
	SplashBackgroundColor string `json:"splashBackgroundColor"`
	WebhookURL            string `json:"webhookUrl"`
}

// Document is the complete discovery document.
type Document struct {
	AccountAssociation AccountAssociation `json:"accountAssociation"`
	Frame              Frame              `json:"frame"`
}

// Metadata holds the static, non-URL frame fields.
type Metadata struct {
	Version               string `json:"version,omitempty" yaml:"version,omitempty"`
	Name                  string `json:"name,omitempty" yaml:"name,omitempty"`
	ButtonTitle           string `json:"buttonTitle,omitempty" yaml:"buttonTitle,omitempty"`
	SplashBackgroundColor string `json:"splashBackgroundColor,omitempty" yaml:"splashBackgroundColor,omitempty"`
}

// DefaultCredentials returns the production account association.
func DefaultCredentials() AccountAssociation {
	return AccountAssociation{
		Header:    defaultHeader,
		Payload:   defaultPayload,
		Signature: defaultSignature,
	}
}

// DefaultMetadata returns the production frame metadata.
func DefaultMetadata() Metadata {
	return Metadata{
		Version:               "1",
		Name:                  ProjectTitle,
		ButtonTitle:           "Launch Frame",
		SplashBackgroundColor: "#f7f7f7",
	}
}

// Build synthesizes the document for base. base is used verbatim; it is the
// caller's job to resolve it.
func Build(base string, creds AccountAssociation, meta Metadata) Document {
	return Document{
		AccountAssociation: creds,
		Frame: Frame{
			Version:               meta.Version,
			Name:                  meta.Name,
			IconURL:               base + IconPath,
			HomeURL:               base,
			ImageURL:              base + ImagePath,
			ButtonTitle:           meta.ButtonTitle,
			SplashImageURL:        base + SplashPath,
			SplashBackgroundColor: meta.SplashBackgroundColor,
			WebhookURL:            base + WebhookPath,
		},
	}
}

// AssociationHeader is the decoded account association header.
type AssociationHeader struct {
	FID  int64  `json:"fid"`
	Type string `json:"type"`
	Key  string `json:"key"`
}

// DecodeHeader decodes the base64url header. For custody associations Key is
// the custody address of the signing account.
func (a AccountAssociation) DecodeHeader() (AssociationHeader, error) {
	var h AssociationHeader
	raw, err := DecodeSegment(a.Header)
	if err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	if err := json.Unmarshal(raw, &h); err != nil {
		return h, fmt.Errorf("parse header: %w", err)
	}
	return h, nil
}

// DecodeSegment decodes base64url with or without padding.
func DecodeSegment(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// Overrides replaces the default credentials and metadata, typically loaded
// from FRAME_MANIFEST_FILE. Empty fields keep their defaults.
type Overrides struct {
	AccountAssociation *AccountAssociation `json:"accountAssociation,omitempty" yaml:"accountAssociation,omitempty"`
	Frame              Metadata            `json:"frame,omitempty" yaml:"frame,omitempty"`
}

// Load loads overrides from a file.
func Load(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest overrides: %w", err)
	}
	return Parse(data, path)
}

// Parse parses override data. The format is chosen by extension, with JSON
// then YAML tried for anything else.
func Parse(data []byte, filename string) (*Overrides, error) {
	var o Overrides

	if strings.HasSuffix(filename, ".yaml") || strings.HasSuffix(filename, ".yml") {
		if err := yaml.Unmarshal(data, &o); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	} else if strings.HasSuffix(filename, ".json") {
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, fmt.Errorf("parse JSON: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, &o); err != nil {
			if err := yaml.Unmarshal(data, &o); err != nil {
				return nil, fmt.Errorf("parse manifest overrides: %w", err)
			}
		}
	}

	if err := o.Validate(); err != nil {
		return nil, err
	}
	return &o, nil
}

// Validate requires an account association to be complete if present.
func (o *Overrides) Validate() error {
	if o.AccountAssociation == nil {
		return nil
	}
	var missing []string
	if o.AccountAssociation.Header == "" {
		missing = append(missing, "header")
	}
	if o.AccountAssociation.Payload == "" {
		missing = append(missing, "payload")
	}
	if o.AccountAssociation.Signature == "" {
		missing = append(missing, "signature")
	}
	if len(missing) > 0 {
		return fmt.Errorf("accountAssociation missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Apply returns creds and meta with the overrides laid on top.
func (o *Overrides) Apply(creds AccountAssociation, meta Metadata) (AccountAssociation, Metadata) {
	if o == nil {
		return creds, meta
	}
	if o.AccountAssociation != nil {
		creds = *o.AccountAssociation
	}
	if o.Frame.Version != "" {
		meta.Version = o.Frame.Version
	}
	if o.Frame.Name != "" {
		meta.Name = o.Frame.Name
	}
	if o.Frame.ButtonTitle != "" {
		meta.ButtonTitle = o.Frame.ButtonTitle
	}
	if o.Frame.SplashBackgroundColor != "" {
		meta.SplashBackgroundColor = o.Frame.SplashBackgroundColor
	}
	return creds, meta
}
