// Package handlers exposes the services as a JSON API. Every handler decodes with httpx.Decode,
// reports failures through httpx.Error and reads the caller from the auth context.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/diewo77/go-btp/auth"
	"github.com/diewo77/go-btp/httpx"
	"github.com/diewo77/go-btp/i18n"
	"github.com/diewo77/go-btp/internal/apierr"
	"github.com/diewo77/go-btp/internal/services"
	"github.com/diewo77/go-btp/validation"
)

// pathID parses a numeric path value.
func pathID(r *http.Request, name string) (uint, error) {
	id, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apierr.Validation("invalid_id")
	}
	return uint(id), nil
}

func currentUser(r *http.Request) uint {
	uid, _ := auth.UserIDFromContext(r.Context())
	return uid
}

// scopeOf reads {chantierId} and the optional {soustraitantId}.
func scopeOf(r *http.Request) (services.Scope, error) {
	scope := services.Scope{Chantier: r.PathValue("chantierId")}
	if r.PathValue("soustraitantId") != "" {
		id, err := pathID(r, "soustraitantId")
		if err != nil {
			return scope, err
		}
		scope.SousTraitantID = id
	}
	return scope, nil
}

func queryInt(r *http.Request, key string, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil {
		return n
	}
	return def
}

// invalid writes 400 validation_failed with the localized violation of each field.
func invalid(w http.ResponseWriter, r *http.Request, v validation.Violations) {
	lang := i18n.LangFromContext(r.Context())
	details := make(map[string]string, len(v))
	for field, code := range v {
		details[field] = i18n.T(lang, code)
	}
	httpx.JSONError(w, http.StatusBadRequest, "validation_failed", details)
}
