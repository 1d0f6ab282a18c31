package httputil

import (
	"encoding/json"
	"net/http"

	svcerrors "github.com/R3E-Network/frame_layer/internal/errors"
)

// ErrorResponse is the JSON body written for failed requests.
type ErrorResponse struct {
	Error *svcerrors.ServiceError `json:"error"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes err as a JSON error body using its HTTP status.
func WriteError(w http.ResponseWriter, err error) {
	se := svcerrors.From(err)
	WriteJSON(w, se.HTTPStatus, ErrorResponse{Error: se})
}

// DecodeJSON decodes a request body of at most limit bytes into target.
func DecodeJSON(r *http.Request, limit int64, target interface{}) error {
	body, err := ReadAllStrict(r.Body, limit)
	if err != nil {
		return svcerrors.BadRequest(err.Error())
	}
	if err := json.Unmarshal(body, target); err != nil {
		return svcerrors.BadRequest("invalid JSON body")
	}
	return nil
}
