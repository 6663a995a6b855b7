// Package handlers provides the HTTP handlers of the local price lookup
// service: session snapshots, search, item detail, pricing selection, cart
// mutations, catalog reload and health.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/robbie-med/Sjprice/cart"
	"github.com/robbie-med/Sjprice/catalog"
	"github.com/robbie-med/Sjprice/logging"
	"github.com/robbie-med/Sjprice/scheduler"
	"github.com/robbie-med/Sjprice/session"
)

// RespondWithJSON writes a JSON response
func RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if _, err := w.Write(data); err != nil {
		logging.Debug("Failed to write response", "error", err)
	}
}

// RespondWithError writes a JSON error response
func RespondWithError(w http.ResponseWriter, code int, message string) {
	errorResponse := map[string]any{
		"error":   http.StatusText(code),
		"message": message,
		"code":    code,
	}
	RespondWithJSON(w, code, errorResponse)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, cart.ErrNoSuchEntry),
		errors.Is(err, session.ErrNoSuchItem),
		errors.Is(err, session.ErrUnknownPayer):
		return http.StatusNotFound
	case errors.Is(err, cart.ErrInvalidIndex):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrConfirmationRequired),
		errors.Is(err, scheduler.ErrUpdateInProgress):
		return http.StatusConflict
	case errors.Is(err, session.ErrUncontracted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrCatalogNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, catalog.ErrDataLoad):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// RespondWithDomainError writes err with the status its kind maps to
func RespondWithDomainError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logging.Error("Unhandled error", "error", err)
	}
	RespondWithError(w, code, err.Error())
}

// decodeBody reads a JSON request body into dst. Unknown fields are rejected.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

// formatUptimeHuman formats duration into a human-readable string
func formatUptimeHuman(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	var parts []string

	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	parts = append(parts, fmt.Sprintf("%ds", seconds))

	return strings.Join(parts, " ")
}
