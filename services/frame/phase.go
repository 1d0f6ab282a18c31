package frame

import (
	"encoding/json"
	"fmt"
)

// Phase is the bootstrap lifecycle phase of one mount.
type Phase int32

const (
	// PhaseUninitialized is the phase before Mount.
	PhaseUninitialized Phase = iota

	// PhaseLoading covers the one-time sequence up to the ready signal. A
	// mount without host context stays here.
	PhaseLoading

	// PhaseReady is reached after the host has been told the frame is ready.
	PhaseReady

	// PhaseUnmounted is terminal. Host events no longer have an effect.
	PhaseUnmounted
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseUnmounted:
		return "unmounted"
	default:
		return fmt.Sprintf("phase(%d)", p)
	}
}

// MarshalJSON implements json.Marshaler.
func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Phase) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*p = ParsePhase(str)
	return nil
}

// ParsePhase converts a string to Phase.
func ParsePhase(s string) Phase {
	switch s {
	case "loading":
		return PhaseLoading
	case "ready":
		return PhaseReady
	case "unmounted":
		return PhaseUnmounted
	default:
		return PhaseUninitialized
	}
}

// IsTerminal reports whether no further transitions can happen.
func (p Phase) IsTerminal() bool {
	return p == PhaseUnmounted
}

// TransferState is the progress of a wallet transfer.
type TransferState int32

const (
	TransferIdle TransferState = iota
	TransferPending
	TransferConfirming
	TransferConfirmed
	TransferFailed
)

// String returns the string representation of the state.
func (s TransferState) String() string {
	switch s {
	case TransferIdle:
		return "idle"
	case TransferPending:
		return "pending"
	case TransferConfirming:
		return "confirming"
	case TransferConfirmed:
		return "confirmed"
	case TransferFailed:
		return "failed"
	default:
		return fmt.Sprintf("transfer(%d)", s)
	}
}

// MarshalJSON implements json.Marshaler.
func (s TransferState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *TransferState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ParseTransferState(str)
	return nil
}

// ParseTransferState converts a string to TransferState.
func ParseTransferState(s string) TransferState {
	switch s {
	case "pending":
		return TransferPending
	case "confirming":
		return TransferConfirming
	case "confirmed":
		return TransferConfirmed
	case "failed":
		return TransferFailed
	default:
		return TransferIdle
	}
}

// InFlight reports whether a transaction is submitted but not yet settled.
func (s TransferState) InFlight() bool {
	return s == TransferPending || s == TransferConfirming
}
