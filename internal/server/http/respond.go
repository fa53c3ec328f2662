package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/and161185/typegpt/internal/errs"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a JSON body. An empty body leaves v untouched when optional is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: malformed JSON body", errs.ErrInvalidInput)
	}
	return nil
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string // empty: derived from the error
}

// mappings is ordered; the first match wins.
var mappings = []errorMapping{
	{errs.ErrInvalidInput, http.StatusBadRequest, "invalid_input", ""},
	{errs.ErrMissingEmail, http.StatusBadRequest, "missing_email", "No email from provider"},
	{errs.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated", "Unauthorized"},
	{errs.ErrInvalidCredential, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password"},
	{errs.ErrNotFound, http.StatusNotFound, "not_found", "Not found"},
	{errs.ErrAlreadyExists, http.StatusConflict, "conflict", "Email already registered"},
	{errs.ErrRateLimited, http.StatusTooManyRequests, "rate_limited", "Too many attempts, try again later"},
	{errs.ErrNotConfigured, http.StatusServiceUnavailable, "not_configured", "Google sign-in not configured"},
	{errs.ErrNoContent, http.StatusInternalServerError, "no_image_content", "No image generated. Try a different prompt. A billing account may be required for image generation."},
	{errs.ErrBillingRequired, http.StatusInternalServerError, "billing_required", "Billing account required for image generation"},
	{errs.ErrProvider, http.StatusInternalServerError, "provider_error", "Upstream provider failed"},
	{errs.ErrPersistence, http.StatusInternalServerError, "persistence_error", "Failed to save"},
}

// statusFor maps an error onto status, machine code and message.
func statusFor(err error) (int, errorBody) {
	for _, m := range mappings {
		if !errors.Is(err, m.target) {
			continue
		}
		msg := m.message
		if msg == "" {
			msg = strings.TrimPrefix(err.Error(), m.target.Error()+": ")
		}
		return m.status, errorBody{Error: msg, Code: m.code}
	}
	return http.StatusInternalServerError, errorBody{Error: "internal", Code: "internal"}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := statusFor(err)
	writeJSON(w, status, body)
}
