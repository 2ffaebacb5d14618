package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

type errorBody struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("httpapi: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg, reason string, now time.Time) {
	writeJSON(w, status, errorBody{
		Success:   false,
		Message:   msg,
		Reason:    reason,
		Timestamp: now.UTC().Format(time.RFC3339),
	})
}
