package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	csrfCookieName = "taskspace_csrf"
	csrfHeaderName = "X-CSRF-Token"
)

// CSRFMiddleware enforces triple-submit CSRF protection on mutating
// requests from authenticated sessions. Three independent copies of
// the token (cookie, request header, and the session-stored value)
// must all match. Comparing against the session-held copy (not just
// cookie == header) stops an attacker who leaked one token value from
// replaying it against a different victim session.
func (a *API) CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		// Anonymous mutations (signup, signin) carry no privilege to
		// forge; only sessions with a user are protected.
		sess := sessionFromContext(r.Context())
		if sess == nil || !sess.Authenticated() {
			next.ServeHTTP(w, r)
			return
		}

		if !validateCSRF(sess, r) {
			writeError(w, http.StatusForbidden, codeForbidden, "CSRF token mismatch")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// validateCSRF requires all three token copies present and byte-equal.
func validateCSRF(sess *Session, r *http.Request) bool {
	sessionToken := sess.CSRFToken()
	if sessionToken == "" {
		// A session with a user but no token was never fully
		// privileged; it must not pass.
		return false
	}
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	header := r.Header.Get(csrfHeaderName)
	if header == "" {
		return false
	}
	cookieOK := subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(sessionToken)) == 1
	headerOK := subtle.ConstantTimeCompare([]byte(header), []byte(sessionToken)) == 1
	return cookieOK && headerOK
}

// issueCSRF generates a fresh token, stores it on the session, and
// sets the script-readable cookie. Called only after Regenerate so a
// token from a destroyed session can never validate against the new
// one.
func (a *API) issueCSRF(sess *Session) string {
	token := uuid.NewString()
	sess.setCSRFToken(token)
	writeCSRFCookie(sess.w, sess.r, token)
	return token
}

// writeCSRFCookie sets the CSRF cookie. It is intentionally NOT
// HttpOnly: the browser-side app reads it and echoes it back in the
// X-CSRF-Token header on mutating requests.
func writeCSRFCookie(w http.ResponseWriter, r *http.Request, token string) {
	setCookieReplace(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(sessionMaxAge / time.Second),
	})
}

// clearCSRFCookie removes the CSRF cookie on logout.
func clearCSRFCookie(w http.ResponseWriter, r *http.Request) {
	setCookieReplace(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: false,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}
