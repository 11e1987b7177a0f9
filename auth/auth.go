// Package auth issues and verifies the signed cookies used by the API: the staff session and
// the sous-traitant portal access granted by PIN.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type ctxKey string

const (
	SessionCookieName = "session"
	PortalCookieName  = "portal"

	userIDCtxKey       = ctxKey("userID")
	soustraitantCtxKey = ctxKey("soustraitantID")

	sessionTTL = 14 * 24 * time.Hour
	portalTTL  = 12 * time.Hour
)

// UserVerifier validates that a session's user still exists and is active.
type UserVerifier func(ctx context.Context, uid uint) bool

// Signer signs cookie payloads with an HMAC secret.
type Signer struct {
	secret []byte
	now    func() time.Time
}

func NewSigner(secret string) *Signer {
	if secret == "" {
		secret = "devsessionsecret"
	}
	return &Signer{secret: []byte(secret), now: time.Now}
}

func (s *Signer) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// encode produces "id.expiry.sig".
func (s *Signer) encode(id uint, ttl time.Duration) string {
	payload := strconv.FormatUint(uint64(id), 10) + "." + strconv.FormatInt(s.now().Add(ttl).Unix(), 10)
	return payload + "." + s.sign(payload)
}

func (s *Signer) decode(value string) (uint, bool) {
	parts := strings.Split(value, ".")
	if len(parts) != 3 {
		return 0, false
	}
	payload := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(parts[2]), []byte(s.sign(payload))) {
		return 0, false
	}
	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || s.now().Unix() > exp {
		return 0, false
	}
	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// CreateSession sets the staff session cookie.
func (s *Signer) CreateSession(w http.ResponseWriter, userID uint) {
	s.setCookie(w, SessionCookieName, s.encode(userID, sessionTTL), sessionTTL, "/")
}

// CreatePortalSession grants read access to one sous-traitant's portal.
func (s *Signer) CreatePortalSession(w http.ResponseWriter, soustraitantID uint) {
	s.setCookie(w, PortalCookieName, s.encode(soustraitantID, portalTTL), portalTTL, "/api/portail/")
}

func (s *Signer) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  s.now().Add(ttl),
	})
}

// ClearSession deletes the session cookie.
func ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: SessionCookieName, Value: "", Path: "/", Expires: time.Unix(0, 0), HttpOnly: true, SameSite: http.SameSiteLaxMode})
}

// ParseSession validates the session cookie and returns the user id.
func (s *Signer) ParseSession(r *http.Request) (uint, bool) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil || c.Value == "" {
		return 0, false
	}
	return s.decode(c.Value)
}

// ParsePortal validates the portal cookie and returns the sous-traitant id.
func (s *Signer) ParsePortal(r *http.Request) (uint, bool) {
	c, err := r.Cookie(PortalCookieName)
	if err != nil || c.Value == "" {
		return 0, false
	}
	return s.decode(c.Value)
}

func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, userIDCtxKey, userID)
}

func UserIDFromContext(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(userIDCtxKey).(uint)
	return id, ok && id != 0
}

func WithSousTraitantID(ctx context.Context, id uint) context.Context {
	return context.WithValue(ctx, soustraitantCtxKey, id)
}

func SousTraitantIDFromContext(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(soustraitantCtxKey).(uint)
	return id, ok && id != 0
}

// Middleware attaches the session user and portal sous-traitant to the context when present.
func (s *Signer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if uid, ok := s.ParseSession(r); ok {
			ctx = WithUserID(ctx, uid)
		}
		if sid, ok := s.ParsePortal(r); ok {
			ctx = WithSousTraitantID(ctx, sid)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth replies 401 JSON unless a verified session user is present.
func RequireAuth(verify UserVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid, ok := UserIDFromContext(r.Context())
			if ok && verify != nil && !verify(r.Context(), uid) {
				// session refers to a deleted or disabled user
				ClearSession(w)
				ok = false
			}
			if !ok {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}
