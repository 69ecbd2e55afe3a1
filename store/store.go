// Package store persists the application entities (users, spaces,
// todos) on top of storage.Repository and enforces the version checks
// that protect every mutation.
package store

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken indicates the email is already registered to
	// another user.
	ErrEmailTaken = errors.New("email already taken")
	// ErrVersionMismatch indicates the caller's updated_at does not
	// match the persisted one (lost-update protection).
	ErrVersionMismatch = errors.New("version mismatch")
)

// Storage scopes and record types. The account namespace is shared;
// todos are scoped per space so tenants never contend.
const (
	accountScope = "__accounts"
	spaceScope   = "__spaces"

	userRecordType  = "USER"
	emailRecordType = "EMAIL"
	spaceRecordType = "SPACE"
	ownerRecordType = "OWNER"
	todoRecordType  = "TODO"
)

// normTime canonicalizes a timestamp for version comparison: UTC,
// truncated to microseconds so a value that round-tripped through JSON
// or a timestamp column still compares equal.
func normTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// nextVersionTime returns the write timestamp for an update, strictly
// after the previous one so the version token always changes even when
// two writes land within the clock's microsecond granularity.
func nextVersionTime(prev time.Time) time.Time {
	now := normTime(time.Now())
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

// CheckVersion compares the persisted updated_at with the caller's
// last-known value. Exact-instant equality; anything else is a
// mismatch, including a caller claiming a newer timestamp.
func CheckVersion(persisted, supplied time.Time) error {
	if !normTime(persisted).Equal(normTime(supplied)) {
		return ErrVersionMismatch
	}
	return nil
}
