package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/rvalente/taskspace/internal/util"
	"github.com/rvalente/taskspace/store"
)

const (
	// minPasswordLen is the minimum password length required at signup.
	// The password feeds the argon2id hash; enforcing a minimum length
	// ensures a baseline of entropy from the human-chosen input.
	minPasswordLen = 10

	defaultSpaceName = "Personal"
)

// Signup handles POST /auth/signup.
func (a *API) Signup(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[SignupRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	email := util.NormalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, http.StatusBadRequest, codeBadRequest, "a valid email is required")
		return
	}
	if len(req.Password) < minPasswordLen {
		writeError(w, http.StatusBadRequest, codeBadRequest,
			fmt.Sprintf("password must be at least %d characters", minPasswordLen))
		return
	}
	if req.Password != req.Confirm {
		writeError(w, http.StatusBadRequest, codeBadRequest, "password and confirmation do not match")
		return
	}

	hash, err := a.codec.HashPassword(req.Password)
	if err != nil {
		writeInternalError(w, "failed to hash password", err)
		return
	}
	user := &store.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
	}
	if err := a.users.Create(user); err != nil {
		mapError(w, err)
		return
	}

	// Every account starts with a space to put todos in.
	if _, err := a.spaces.Create(user.ID, defaultSpaceName); err != nil {
		writeInternalError(w, "failed to create default space", err)
		return
	}

	sess := sessionFromContext(r.Context())
	if err := sess.Regenerate(); err != nil {
		writeInternalError(w, "failed to regenerate session", err)
		return
	}
	sess.SetUserID(user.ID)
	a.issueCSRF(sess)

	a.audit.logUser(AuditSignup, r, user.ID)
	writeJSON(w, http.StatusCreated, AuthResponse{Authenticated: true})
}

// Signin handles POST /auth/signin. Every credential failure gets the
// same status and body so the endpoint cannot be used to probe which
// emails are registered.
func (a *API) Signin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[SigninRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "email and password are required")
		return
	}

	user, err := a.users.GetByEmail(req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn a hash verification anyway so the unknown-email path
			// costs the same as a wrong password.
			_, _ = a.codec.VerifyPassword(a.decoyHash, req.Password)
			a.audit.logFailure(AuditSigninFailure, r, "unknown email")
			writeError(w, http.StatusBadRequest, codeBadRequest, signinFailedMessage)
			return
		}
		writeInternalError(w, "failed to look up user", err)
		return
	}

	match, err := a.codec.VerifyPassword(user.PasswordHash, req.Password)
	if err != nil {
		writeInternalError(w, "failed to verify password", err)
		return
	}
	if !match {
		a.audit.logFailure(AuditSigninFailure, r, "wrong password")
		writeError(w, http.StatusBadRequest, codeBadRequest, signinFailedMessage)
		return
	}

	// The password step passed; the old session key must not carry the
	// new privilege level.
	sess := sessionFromContext(r.Context())
	if err := sess.Regenerate(); err != nil {
		writeInternalError(w, "failed to regenerate session", err)
		return
	}

	if user.TOTPEnabled {
		sess.SetPending(Pending{
			Kind:      PendingLogin,
			ExpiresAt: a.now().Add(pendingLoginTTL),
			UserID:    user.ID,
		})
		a.audit.logUser(AuditSigninPendingTOTP, r, user.ID)
		writeJSON(w, http.StatusAccepted, AuthResponse{Authenticated: false})
		return
	}

	sess.SetUserID(user.ID)
	a.issueCSRF(sess)
	a.audit.logUser(AuditSigninSuccess, r, user.ID)
	writeJSON(w, http.StatusOK, AuthResponse{Authenticated: true})
}

// SigninTOTP handles POST /auth/signin/totp, the second step of a
// two-factor sign-in. Absent, expired, and mismatched states all get
// the same response; any failure drops the pending state so the flow
// restarts from the password step.
func (a *API) SigninTOTP(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[SigninTOTPRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	sess := sessionFromContext(r.Context())
	p := sess.Pending()
	if p.Kind != PendingLogin {
		a.audit.logFailure(AuditSigninFailure, r, "no pending totp signin")
		writeError(w, http.StatusBadRequest, codeBadRequest, totpFailedMessage)
		return
	}
	if a.now().After(p.ExpiresAt) {
		sess.ClearPending()
		a.audit.logFailure(AuditSigninFailure, r, "pending totp signin expired")
		writeError(w, http.StatusBadRequest, codeBadRequest, totpFailedMessage)
		return
	}

	user, err := a.users.GetByID(p.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sess.ClearPending()
			a.audit.logFailure(AuditSigninFailure, r, "pending user no longer exists")
			writeError(w, http.StatusBadRequest, codeBadRequest, totpFailedMessage)
			return
		}
		writeInternalError(w, "failed to look up user", err)
		return
	}
	if !user.TOTPEnabled || user.TOTPSecret == "" {
		sess.ClearPending()
		a.audit.logFailure(AuditSigninFailure, r, "totp no longer enabled")
		writeError(w, http.StatusBadRequest, codeBadRequest, totpFailedMessage)
		return
	}

	secret, err := a.codec.DecryptString(user.TOTPSecret)
	if err != nil {
		writeInternalError(w, "failed to decrypt TOTP secret", err)
		return
	}
	if !verifyTOTPCode(secret, req.Code, a.now()) {
		sess.ClearPending()
		a.audit.logFailure(AuditSigninFailure, r, "totp code mismatch",
			slog.String("user_id", user.ID))
		writeError(w, http.StatusBadRequest, codeBadRequest, totpFailedMessage)
		return
	}

	if err := sess.Regenerate(); err != nil {
		writeInternalError(w, "failed to regenerate session", err)
		return
	}
	sess.SetUserID(user.ID)
	a.issueCSRF(sess)
	a.audit.logUser(AuditSigninSuccess, r, user.ID)
	writeJSON(w, http.StatusOK, AuthResponse{Authenticated: true})
}

// AuthState handles GET /auth/state.
func (a *API) AuthState(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, AuthResponse{Authenticated: sess.Authenticated()})
}

// Signout handles POST /auth/signout. It is idempotent: signing out an
// anonymous session succeeds.
func (a *API) Signout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if sess.Authenticated() {
		a.audit.logUser(AuditSignout, r, sess.UserID())
	}
	sess.Destroy()
	writeJSON(w, http.StatusOK, AuthResponse{Authenticated: false})
}

// GenerateTOTPSecret handles POST /auth/totp/secret. The plaintext seed
// appears only in this response; the session holds a codec-sealed copy
// until the user confirms with a valid code.
func (a *API) GenerateTOTPSecret(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	user, err := a.users.GetByID(sess.UserID())
	if err != nil {
		mapError(w, err)
		return
	}
	if user.TOTPEnabled {
		writeError(w, http.StatusConflict, codeConflict, "two-factor authentication is already enabled")
		return
	}

	key, err := generateTOTPKey(user.Email)
	if err != nil {
		writeInternalError(w, "failed to generate TOTP secret", err)
		return
	}
	sealed, err := a.codec.EncryptString(key.Secret())
	if err != nil {
		writeInternalError(w, "failed to seal TOTP secret", err)
		return
	}
	image, err := renderEnrollmentImage(key)
	if err != nil {
		writeInternalError(w, "failed to render enrollment image", err)
		return
	}

	expiresAt := a.now().Add(totpEnrollTTL)
	// Replaces any earlier pending state, including a previous
	// unconfirmed enrollment.
	sess.SetPending(Pending{
		Kind:            PendingEnrollment,
		ExpiresAt:       expiresAt,
		EncryptedSecret: sealed,
	})

	a.audit.logUser(AuditTOTPSetup, r, user.ID)
	writeJSON(w, http.StatusOK, TOTPSecretResponse{
		Secret:          key.Secret(),
		OtpauthURL:      key.URL(),
		EnrollmentImage: image,
		ExpiresAt:       expiresAt,
	})
}

// EnableTOTP handles POST /auth/totp/enable. The submitted code must
// verify against the pending seed before two-factor auth turns on; any
// failure clears the pending enrollment and requires a fresh secret.
func (a *API) EnableTOTP(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[EnableTOTPRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	sess := sessionFromContext(r.Context())
	p := sess.Pending()
	if p.Kind != PendingEnrollment {
		writeError(w, http.StatusBadRequest, codeBadRequest, "no enrollment in progress; generate a new secret")
		return
	}
	if a.now().After(p.ExpiresAt) {
		sess.ClearPending()
		writeError(w, http.StatusBadRequest, codeBadRequest, "enrollment expired; generate a new secret")
		return
	}

	secret, err := a.codec.DecryptString(p.EncryptedSecret)
	if err != nil {
		sess.ClearPending()
		writeInternalError(w, "failed to unseal pending TOTP secret", err)
		return
	}
	if !verifyTOTPCode(secret, req.Code, a.now()) {
		sess.ClearPending()
		writeError(w, http.StatusBadRequest, codeBadRequest, "code did not match; generate a new secret")
		return
	}

	user, err := a.users.Update(sess.UserID(), func(u *store.User) error {
		u.TOTPEnabled = true
		u.TOTPSecret = p.EncryptedSecret
		return nil
	})
	if err != nil {
		mapError(w, err)
		return
	}
	sess.ClearPending()

	a.audit.logUser(AuditTOTPEnabled, r, user.ID)
	writeJSON(w, http.StatusOK, TOTPStatusResponse{Enabled: true})
}

// DisableTOTP handles POST /auth/totp/disable.
func (a *API) DisableTOTP(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	user, err := a.users.Update(sess.UserID(), func(u *store.User) error {
		u.TOTPEnabled = false
		u.TOTPSecret = ""
		return nil
	})
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.logUser(AuditTOTPDisabled, r, user.ID)
	writeJSON(w, http.StatusOK, TOTPStatusResponse{Enabled: false})
}

// TOTPStatus handles GET /auth/totp.
func (a *API) TOTPStatus(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	user, err := a.users.GetByID(sess.UserID())
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TOTPStatusResponse{Enabled: user.TOTPEnabled})
}
