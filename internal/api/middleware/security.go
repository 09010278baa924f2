package middleware

import (
	"net/http"
	"path"
)

var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
	{"Content-Security-Policy", "default-src 'none'"},
	{"Cache-Control", "no-store"},
}

// SecurityHeaders adds security headers to all responses. The API serves
// JSON and the socket only, so nothing may be framed, cached or rendered.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range securityHeaders {
			h.Set(kv[0], kv[1])
		}
		next.ServeHTTP(w, r)
	})
}

// ValidateRequest rejects what the read-only API never serves: methods other
// than GET, HEAD and OPTIONS, request bodies, and non-canonical paths.
func ValidateRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			w.Header().Set("Allow", "GET, HEAD, OPTIONS")
			jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if r.ContentLength > 0 {
			jsonError(w, http.StatusRequestEntityTooLarge, "request body not accepted")
			return
		}
		if p := r.URL.Path; p != "" && path.Clean(p) != p {
			jsonError(w, http.StatusBadRequest, "invalid request")
			return
		}
		next.ServeHTTP(w, r)
	})
}
