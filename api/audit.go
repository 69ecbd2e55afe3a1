package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditSignup            AuditEvent = "signup"
	AuditSigninSuccess     AuditEvent = "signin_success"
	AuditSigninFailure     AuditEvent = "signin_failure"
	AuditSigninPendingTOTP AuditEvent = "signin_pending_totp"
	AuditSignout           AuditEvent = "signout"
	AuditTOTPSetup         AuditEvent = "totp_setup"
	AuditTOTPEnabled       AuditEvent = "totp_enabled"
	AuditTOTPDisabled      AuditEvent = "totp_disabled"
	AuditSpaceCreated      AuditEvent = "space_created"
	AuditSpaceUpdated      AuditEvent = "space_updated"
	AuditSpaceDeleted      AuditEvent = "space_deleted"
	AuditTodoCreated       AuditEvent = "todo_created"
	AuditTodoUpdated       AuditEvent = "todo_updated"
	AuditTodoDeleted       AuditEvent = "todo_deleted"
)

// auditLogger wraps slog.Logger for structured security audit logging.
type auditLogger struct {
	logger *slog.Logger
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes a structured audit log entry. User IDs are opaque UUIDs,
// safe for logs; emails and credentials never appear here.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
}

// logUser is a convenience for events tied to a user ID.
func (al *auditLogger) logUser(event AuditEvent, r *http.Request, userID string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("user_id", userID),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}

// logFailure logs a failed authentication attempt. The reason is for
// operators only; the wire response stays generic.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}
