package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"idgaf/internal/fault"
	"idgaf/pkg/types"
)

// statusForError maps the runtime error taxonomy onto HTTP status codes.
// Resource exhaustion splits: a model that can never fit is 413, transient
// capacity pressure is 429.
func statusForError(err error) int {
	switch fault.KindOf(err) {
	case fault.KindNotFound:
		return http.StatusNotFound
	case fault.KindInvalidInput:
		return http.StatusBadRequest
	case fault.KindUnsupported:
		return http.StatusUnprocessableEntity
	case fault.KindResourceExhaustion:
		var fe *fault.Error
		if errors.As(err, &fe) && fe.Required > 0 && fe.Required > fe.Available {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusTooManyRequests
	case fault.KindTimeout:
		return http.StatusGatewayTimeout
	case fault.KindTransport:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// writeFault writes a classified error with its kind in the payload.
func writeFault(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusTooManyRequests {
		IncrementBackpressure("capacity")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{
		Error: err.Error(),
		Kind:  string(fault.KindOf(err)),
		Code:  status,
	})
}
