package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/soulart-temple/backend/internal/validator"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func writeValidationErrors(w http.ResponseWriter, errs []validator.ValidationError) {
	msg := "invalid request"
	if len(errs) > 0 {
		msg = errs[0].Message
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":  msg,
		"fields": errs,
	})
}
