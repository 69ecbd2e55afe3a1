package api

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	sessionCookieName = "taskspace_session"
	sessionMaxAge     = 7 * 24 * time.Hour
)

type contextKey int

const sessionContextKey contextKey = iota

// Session is the mutable per-request view of a session record.
// Handlers mutate it through its methods; the middleware persists it
// before the response body is flushed, so a success response is never
// sent ahead of its session write.
type Session struct {
	key       string
	record    SessionRecord
	store     SessionStore
	w         http.ResponseWriter
	r         *http.Request
	isNew     bool
	modified  bool
	destroyed bool
}

// Key returns the current session key.
func (s *Session) Key() string { return s.key }

// UserID returns the authenticated user ID, or "" for anonymous.
func (s *Session) UserID() string { return s.record.UserID }

// Authenticated reports whether the session carries a user.
func (s *Session) Authenticated() bool { return s.record.UserID != "" }

// CSRFToken returns the session-held CSRF token copy.
func (s *Session) CSRFToken() string { return s.record.Aux.CSRFToken }

// Pending returns the in-flight protocol sub-state.
func (s *Session) Pending() Pending { return s.record.Aux.Pending }

// SetUserID marks the session as belonging to a user.
func (s *Session) SetUserID(id string) {
	s.record.UserID = id
	s.modified = true
}

// SetPending stashes a protocol sub-state on the session.
func (s *Session) SetPending(p Pending) {
	s.record.Aux.Pending = p
	s.modified = true
}

// ClearPending removes any in-flight sub-state.
func (s *Session) ClearPending() {
	s.record.Aux.Pending = Pending{}
	s.modified = true
}

func (s *Session) setCSRFToken(token string) {
	s.record.Aux.CSRFToken = token
	s.modified = true
}

// Regenerate destroys the current record and issues a brand-new key
// with a fresh, anonymous record. It exists to defeat session
// fixation: a key an attacker planted before authentication must not
// survive a privilege change. The caller re-populates user ID and aux
// data before the response goes out.
func (s *Session) Regenerate() error {
	if !s.isNew {
		if err := s.store.Delete(s.key); err != nil {
			return fmt.Errorf("destroying old session: %w", err)
		}
	}
	s.key = newSessionKey()
	now := time.Now()
	s.record = SessionRecord{
		ExpiresAt:      now.Add(sessionMaxAge),
		OriginalMaxAge: sessionMaxAge,
	}
	s.isNew = false
	s.modified = true
	s.destroyed = false
	writeSessionCookie(s.w, s.r, s.key, s.record)
	return nil
}

// Destroy removes the session record and clears both cookies. Logout
// must never fail visibly, so store errors are logged, not surfaced.
func (s *Session) Destroy() {
	if !s.isNew {
		if err := s.store.Delete(s.key); err != nil {
			slog.Warn("failed to delete session record on destroy", "error", err)
		}
	}
	s.destroyed = true
	s.modified = false
	clearSessionCookie(s.w, s.r)
	clearCSRFCookie(s.w, s.r)
}

func newSessionKey() string {
	return uuid.NewString()
}

// SessionMiddleware resolves the session for the incoming cookie,
// exposes it on the request context, and persists any mutation after
// the handler runs. The response body is buffered so the persistence
// write strictly precedes the bytes on the wire.
func (a *API) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := &Session{store: a.sessions, r: r}

		if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
			record, ok, err := a.sessions.Get(cookie.Value)
			if err != nil {
				// A store failure is an availability problem, not a
				// logout; do not continue with an anonymous session.
				writeInternalError(w, "session store unavailable", err)
				return
			}
			if ok {
				sess.key = cookie.Value
				sess.record = record
			}
		}

		if sess.key == "" {
			// First contact (or stale cookie): issue a fresh anonymous
			// session on this response.
			sess.key = newSessionKey()
			now := time.Now()
			sess.record = SessionRecord{
				ExpiresAt:      now.Add(sessionMaxAge),
				OriginalMaxAge: sessionMaxAge,
			}
			sess.isNew = true
			sess.modified = true
		}

		bw := &bufferedResponseWriter{ResponseWriter: w}
		sess.w = bw
		if sess.isNew {
			writeSessionCookie(bw, r, sess.key, sess.record)
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, sess)
		next.ServeHTTP(bw, r.WithContext(ctx))

		if sess.modified && !sess.destroyed {
			if err := a.sessions.Put(sess.key, sess.record); err != nil {
				bw.discard()
				writeInternalError(bw, "failed to persist session", err)
			}
		}
		bw.flush()
	})
}

// sessionFromContext returns the request's session. It is always
// present below SessionMiddleware.
func sessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey).(*Session)
	return sess
}

// RequireAuth rejects requests whose session carries no user.
func (a *API) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFromContext(r.Context())
		if sess == nil || !sess.Authenticated() {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bufferedResponseWriter holds back the status line and body until
// flush so the middleware can persist session state (or replace the
// response on failure) after the handler has run.
type bufferedResponseWriter struct {
	http.ResponseWriter
	buf    bytes.Buffer
	status int
}

func (w *bufferedResponseWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *bufferedResponseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.buf.Write(b)
}

func (w *bufferedResponseWriter) discard() {
	w.status = 0
	w.buf.Reset()
	w.Header().Del("Content-Type")
	w.Header().Del("Content-Length")
}

func (w *bufferedResponseWriter) flush() {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.ResponseWriter.WriteHeader(w.status)
	_, _ = w.ResponseWriter.Write(w.buf.Bytes())
}

// Cookie attributes are fixed server-side policy, never caller input.

// setCookieReplace sets a cookie, dropping any Set-Cookie header for
// the same name written earlier in this response (a regeneration
// supersedes the anonymous cookie issued on entry).
func setCookieReplace(w http.ResponseWriter, cookie *http.Cookie) {
	existing := w.Header()["Set-Cookie"]
	if len(existing) > 0 {
		kept := existing[:0]
		prefix := cookie.Name + "="
		for _, line := range existing {
			if !strings.HasPrefix(line, prefix) {
				kept = append(kept, line)
			}
		}
		w.Header()["Set-Cookie"] = kept
	}
	http.SetCookie(w, cookie)
}

func writeSessionCookie(w http.ResponseWriter, r *http.Request, key string, record SessionRecord) {
	setCookieReplace(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    key,
		Path:     "/",
		HttpOnly: true,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(record.OriginalMaxAge / time.Second),
	})
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	setCookieReplace(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
