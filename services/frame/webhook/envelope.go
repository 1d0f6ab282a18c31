// Package webhook receives host webhook events and sends frame notifications.
//
// Hosts deliver events as JSON Farcaster Signatures: a base64url header
// naming the signing app key, a base64url payload and an ed25519 signature
// over "header.payload".
package webhook

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/R3E-Network/frame_layer/manifest"
)

var (
	// ErrInvalidEnvelope is returned for bodies that are not a well-formed
	// signed envelope.
	ErrInvalidEnvelope = errors.New("webhook: invalid envelope")
	// ErrInvalidSignature is returned when the signature does not verify.
	ErrInvalidSignature = errors.New("webhook: invalid signature")
)

// Envelope is the signed webhook body.
type Envelope struct {
	Header    string `json:"header"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

// Header is the decoded envelope header.
type Header struct {
	FID  int64  `json:"fid"`
	Type string `json:"type"`
	Key  string `json:"key"`
}

// ParseEnvelope decodes the request body and the envelope header.
func ParseEnvelope(body []byte) (*Envelope, *Header, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.Header == "" || env.Payload == "" || env.Signature == "" {
		return nil, nil, fmt.Errorf("%w: missing header, payload or signature", ErrInvalidEnvelope)
	}

	raw, err := manifest.DecodeSegment(env.Header)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: header: %v", ErrInvalidEnvelope, err)
	}
	var h Header
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, nil, fmt.Errorf("%w: header: %v", ErrInvalidEnvelope, err)
	}
	if h.FID <= 0 || h.Key == "" {
		return nil, nil, fmt.Errorf("%w: header lacks fid or key", ErrInvalidEnvelope)
	}
	return &env, &h, nil
}

// PayloadJSON decodes the payload segment.
func (e *Envelope) PayloadJSON() ([]byte, error) {
	raw, err := manifest.DecodeSegment(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrInvalidEnvelope, err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: payload is not JSON", ErrInvalidEnvelope)
	}
	return raw, nil
}

// Verify checks the ed25519 signature with the app key named in h.
func (e *Envelope) Verify(h *Header) error {
	key, err := parseAppKey(h.Key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	sig, err := manifest.DecodeSegment(e.Signature)
	if err != nil {
		return fmt.Errorf("%w: signature encoding: %v", ErrInvalidSignature, err)
	}
	if err := jwt.SigningMethodEdDSA.Verify(e.Header+"."+e.Payload, sig, key); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

func parseAppKey(key string) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(key), "0x"))
	if err != nil {
		return nil, fmt.Errorf("app key is not hex: %v", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("app key has %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}
