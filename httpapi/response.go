package httpapi

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// Response is the envelope of every API response
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("Failed to write response")
	}
}

func respondWithData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func respondWithError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, Response{Success: false, Error: message})
}
