package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		// headers are already sent
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, code, message string, details any) {
	resp := ErrorResponse{
		Error:   code,
		Message: message,
		Details: details,
	}
	WriteJSON(w, status, resp)
}

// NoStore marks the response as uncacheable by browsers and shared caches.
// Redirects carry it so every visit reaches the service and is counted.
func NoStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "private, no-store")
}

// Redirect writes an uncacheable 302 to target.
func Redirect(w http.ResponseWriter, r *http.Request, target string) {
	NoStore(w)
	http.Redirect(w, r, target, http.StatusFound)
}
