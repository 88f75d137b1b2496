package handlers

import (
	"encoding/json"
	"net/http"
)

// Error codes returned in the "code" field of error bodies
const (
	CodeNotAvailable = "not_available"
	CodeNotFound     = "not_found"
)

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// respondNotAvailable tells the caller no snapshot exists yet
func respondNotAvailable(w http.ResponseWriter) {
	respondError(w, http.StatusNotFound, CodeNotAvailable,
		"No data available yet. Request a refresh to gather candidates.")
}
