package frame

import "errors"

// AddOutcome classifies the result of the add-frame prompt.
type AddOutcome int

const (
	AddNotAttempted AddOutcome = iota
	AddRequested
	AddRejectedByUser
	AddInvalidManifest
	AddFailed
)

// String returns the metric label of the outcome.
func (o AddOutcome) String() string {
	switch o {
	case AddRequested:
		return "requested"
	case AddRejectedByUser:
		return "rejected_by_user"
	case AddInvalidManifest:
		return "invalid_domain_manifest"
	case AddFailed:
		return "error"
	default:
		return "not_attempted"
	}
}

// AddResult is the outcome of the add-frame prompt for one mount.
type AddResult struct {
	Outcome AddOutcome
	Reason  string
}

// Display is the text shown to the user. It is empty unless the prompt
// failed.
func (r AddResult) Display() string {
	switch r.Outcome {
	case AddRejectedByUser, AddInvalidManifest:
		return "Not added: " + r.Reason
	case AddFailed:
		return "Error: " + r.Reason
	default:
		return ""
	}
}

// ClassifyAddError maps an AddFrame error to a result. The first matching
// class wins, so a classified failure never degrades to the generic text.
func ClassifyAddError(err error) AddResult {
	if err == nil {
		return AddResult{Outcome: AddRequested}
	}

	var rejected *RejectedByUserError
	if errors.As(err, &rejected) {
		return AddResult{Outcome: AddRejectedByUser, Reason: rejected.Error()}
	}

	var invalid *InvalidDomainManifestError
	if errors.As(err, &invalid) {
		return AddResult{Outcome: AddInvalidManifest, Reason: invalid.Error()}
	}

	return AddResult{Outcome: AddFailed, Reason: err.Error()}
}
