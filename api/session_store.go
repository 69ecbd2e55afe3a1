package api

import "time"

// PendingKind tags the single in-flight sub-state a session may carry.
// Using one tagged struct instead of parallel optional fields makes
// coexisting pending states unrepresentable.
type PendingKind string

const (
	// PendingNone means no sub-flow is in progress.
	PendingNone PendingKind = ""
	// PendingEnrollment means a TOTP secret has been generated and is
	// awaiting confirmation.
	PendingEnrollment PendingKind = "enrollment"
	// PendingLogin means the password step succeeded for a 2FA-enabled
	// account and the TOTP step is outstanding.
	PendingLogin PendingKind = "login"
)

// Pending is the transient protocol state stashed on a session.
type Pending struct {
	Kind      PendingKind `json:"kind,omitempty"`
	ExpiresAt time.Time   `json:"expires_at,omitzero"`
	// EncryptedSecret is set for enrollment: the codec-sealed TOTP seed.
	EncryptedSecret string `json:"encrypted_secret,omitempty"`
	// UserID is set for login: the account that passed the password step.
	UserID string `json:"user_id,omitempty"`
}

// AuxData is the auxiliary blob carried by a session record.
type AuxData struct {
	CSRFToken string  `json:"csrf_token,omitempty"`
	Pending   Pending `json:"pending,omitzero"`
}

// SessionRecord holds the server-side state for one session key.
type SessionRecord struct {
	// UserID is empty for anonymous or in-progress sessions.
	UserID string `json:"user_id,omitempty"`
	// ExpiresAt past or zero means the record reads as absent.
	ExpiresAt time.Time `json:"expires_at"`
	// OriginalMaxAge recomputes the cookie lifetime on reissue.
	OriginalMaxAge time.Duration `json:"original_max_age"`
	Aux            AuxData       `json:"aux,omitzero"`
}

// Expired reports whether the record must be treated as absent.
func (r *SessionRecord) Expired(now time.Time) bool {
	return r.ExpiresAt.IsZero() || now.After(r.ExpiresAt)
}

// SessionStore abstracts session record persistence so sessions can be
// stored in-memory or in durable backing storage.
//
// Get distinguishes "no session" (false, nil) from a store failure
// (err != nil): the middleware must never treat an availability problem
// as a logout.
type SessionStore interface {
	// Get retrieves a session record by key. An expired or absent
	// record returns (zero, false, nil).
	Get(key string) (SessionRecord, bool, error)
	// Put creates or updates the record for the given key (upsert).
	Put(key string, record SessionRecord) error
	// Delete removes a record. Deleting an absent key is not an error.
	Delete(key string) error
}
