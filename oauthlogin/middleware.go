package oauthlogin

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// logRequest logs each callback hit at debug level. Query strings are left
// out since they carry codes and tokens.
func logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("oauth callback")
		next.ServeHTTP(w, r)
	})
}

// frameSecurity keeps the callback pages out of frames and caches.
func frameSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
