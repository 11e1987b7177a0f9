// Package httpx holds the JSON response helpers shared by every API handler.
package httpx

import (
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/diewo77/go-btp/i18n"
	"github.com/diewo77/go-btp/internal/apierr"
)

// ErrorResponse is the body of every API error: a stable code plus optional details.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	body := []byte("null")
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			// avoid writing partial JSON
			http.Error(w, `{"error":"encode_error"}`, http.StatusInternalServerError)
			return
		}
		body = b
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func JSONError(w http.ResponseWriter, status int, msg string, details any) {
	JSON(w, status, ErrorResponse{Error: msg, Details: details})
}

// Error writes err as an API error. *apierr.Error keeps its status and code and gets a
// localized message; anything else is reported as a 500 without leaking internals.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	lang := i18n.LangFromContext(r.Context())
	if e, ok := apierr.As(err); ok {
		JSONError(w, e.Status, e.Code, i18n.T(lang, e.Code))
		return
	}
	JSONError(w, http.StatusInternalServerError, "internal_error", i18n.T(lang, "internal_error"))
}

// Decode reads a JSON body into dst, capped at 1 MiB.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return apierr.New(http.StatusBadRequest, "invalid_json", err)
	}
	return nil
}
