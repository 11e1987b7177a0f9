// Package middleware holds the HTTP wrappers applied to every request.
package middleware

import (
	"net/http"

	"github.com/diewo77/go-btp/i18n"
)

const langCookie = "lang"

// Prefs resolves the response language (query > cookie > Accept-Language) into the context.
// A language passed in the query is remembered in a cookie for 30 days.
func Prefs(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := ""
		if c, err := r.Cookie(langCookie); err == nil {
			lang = c.Value
		}
		if ql := r.URL.Query().Get("lang"); supported(ql) {
			lang = ql
			http.SetCookie(w, &http.Cookie{Name: langCookie, Value: lang, Path: "/", MaxAge: 86400 * 30, SameSite: http.SameSiteLaxMode})
		}
		if !supported(lang) {
			lang = i18n.DetectLanguage(r.Header.Get("Accept-Language"))
		}
		next.ServeHTTP(w, r.WithContext(i18n.WithLang(r.Context(), lang)))
	})
}

func supported(lang string) bool {
	return lang == "fr" || lang == "en"
}
