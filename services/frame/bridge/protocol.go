// Package bridge implements the host client over a websocket connection to
// the page shim running inside the host.
//
// Wire format, one JSON object per text message:
//
//	server -> host request:  {"id":1,"method":"context","params":{...}}
//	host -> server response: {"id":1,"result":{...}} or {"id":1,"error":{"type":"...","message":"..."}}
//	host -> server event:    {"event":"frameAdded","data":{...}}
//	server -> host push:     {"event":"view","data":{...}}
package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/R3E-Network/frame_layer/services/frame"
)

// Methods invoked on the host.
const (
	MethodContext       = "context"
	MethodAddFrame      = "addFrame"
	MethodReady         = "ready"
	MethodWalletRequest = "wallet_request"
)

// Events understood in addition to the frame lifecycle events.
const (
	EventAnnounceProvider = "eip6963:announceProvider"
	EventAccountsChanged  = "accountsChanged"
	EventView             = "view"
	EventTransfer         = "transfer"
	// EventSession is pushed once, before any view, with the session grant.
	EventSession = "session"
)

// Remote error types with a dedicated frame error.
const (
	ErrorTypeRejectedByUser        = "rejected_by_user"
	ErrorTypeInvalidDomainManifest = "invalid_domain_manifest"
)

type request struct {
	ID     uint64      `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

type push struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type inbound struct {
	ID     uint64          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RemoteError    `json:"error,omitempty"`
	Event  string          `json:"event,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type walletRequest struct {
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// RemoteError is an error reported by the host.
type RemoteError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// asFrameError maps classified remote errors to the frame error types.
func (e *RemoteError) asFrameError() error {
	switch e.Type {
	case ErrorTypeRejectedByUser:
		return &frame.RejectedByUserError{Reason: e.Message}
	case ErrorTypeInvalidDomainManifest:
		return &frame.InvalidDomainManifestError{Reason: e.Message}
	default:
		return e
	}
}

type announceDetail struct {
	Info *frame.ProviderDetail `json:"info"`
}
