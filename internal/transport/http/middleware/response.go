package middleware

import (
	"encoding/json"
	"net/http"
)

// errorBody mirrors the handler package's MessageEnvelope so middleware
// rejections look like every other error the API returns.
type errorBody struct {
	Error     string `json:"error"`
	ErrorCode int    `json:"error_code"`
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg, ErrorCode: status})
}
