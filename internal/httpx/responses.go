package httpx

import (
	"encoding/json"
	"net/http"
)

// FailureResponse is the JSON body for failed requests.
type FailureResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message,omitempty"`
	Details interface{} `json:"details"`
}

// Text writes a plain-text body.
func Text(w http.ResponseWriter, statusCode int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(body))
}

// RawJSON writes an already encoded JSON document.
func RawJSON(w http.ResponseWriter, statusCode int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_, _ = w.Write(body)
}

func JSONFailure(w http.ResponseWriter, statusCode int, errLabel, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(FailureResponse{
		Error:   errLabel,
		Message: message,
		Details: details,
	})
}

// UpstreamDetails turns a raw upstream body into an envelope detail: the
// decoded document when it is JSON, the text otherwise, nil when empty.
func UpstreamDetails(body []byte) interface{} {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}
