package api

import "net/http"

// baseCSP locks API responses down to same-origin content. The docs
// routes swap in docsCSP instead.
const baseCSP = "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; " +
	"img-src 'self' data:; connect-src 'self'"

// docsCSP admits the viewer assets the embedded Swagger UI and Redoc
// pages load from public CDNs (swagger-ui-dist via unpkg, redoc via
// jsdelivr, Redoc's fonts via Google) and the blob: worker Redoc
// renders with.
const docsCSP = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline' https://unpkg.com https://cdn.jsdelivr.net; " +
	"style-src 'self' 'unsafe-inline' https://unpkg.com https://cdn.jsdelivr.net https://fonts.googleapis.com; " +
	"font-src 'self' https://fonts.gstatic.com; " +
	"img-src 'self' data: blob:; " +
	"worker-src 'self' blob:; " +
	"connect-src 'self'"

// SecurityHeaders sets the standard security response headers on every
// response. Place it ahead of the route handlers so nothing escapes it.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		h.Set("Content-Security-Policy", baseCSP)

		if requestIsSecure(r) {
			h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// docsSecurityPolicy overrides the restrictive API policy on the
// Swagger UI and Redoc pages. Runs after SecurityHeaders, so the
// override wins.
func docsSecurityPolicy(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", docsCSP)
		next.ServeHTTP(w, r)
	})
}
