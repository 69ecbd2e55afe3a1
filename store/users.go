package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rvalente/taskspace/internal/util"
	"github.com/rvalente/taskspace/storage"
)

// UserStore persists account records and the unique-email index.
type UserStore struct {
	repo storage.Repository
}

// NewUserStore creates a UserStore over the given repository.
func NewUserStore(repo storage.Repository) *UserStore {
	return &UserStore{repo: repo}
}

// Create inserts a new user. The email uniqueness check and the insert
// run in one transaction so two concurrent signups for the same email
// cannot both succeed.
func (s *UserStore) Create(user *User) error {
	user.Email = util.NormalizeEmail(user.Email)
	now := normTime(time.Now())
	user.CreatedAt = now
	user.UpdatedAt = now

	return s.repo.Batch(accountScope, func(tx storage.BatchTx) error {
		if err := ensureEmailAvailable(tx, user.Email, ""); err != nil {
			return err
		}
		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		if err := tx.PutCAS(userRecordType, user.ID, 0, data); err != nil {
			return fmt.Errorf("inserting user: %w", err)
		}
		idx, err := json.Marshal(emailIndex{UserID: user.ID})
		if err != nil {
			return err
		}
		return tx.Put(emailRecordType, user.Email, idx)
	})
}

// ensureEmailAvailable is the unique-key guard variant: it rejects an
// email already indexed to a user other than excludeUserID.
func ensureEmailAvailable(tx storage.BatchTx, email, excludeUserID string) error {
	rec, err := tx.Get(emailRecordType, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrScopeNotFound) {
			return nil
		}
		return err
	}
	var idx emailIndex
	if err := json.Unmarshal(rec.Data, &idx); err != nil {
		return fmt.Errorf("decoding email index: %w", err)
	}
	if idx.UserID != excludeUserID {
		return ErrEmailTaken
	}
	return nil
}

// GetByEmail looks up a user through the email index.
func (s *UserStore) GetByEmail(email string) (*User, error) {
	email = util.NormalizeEmail(email)
	rec, err := s.repo.Get(accountScope, emailRecordType, email)
	if err != nil {
		return nil, mapStorageErr(err)
	}
	var idx emailIndex
	if err := json.Unmarshal(rec.Data, &idx); err != nil {
		return nil, fmt.Errorf("decoding email index: %w", err)
	}
	return s.GetByID(idx.UserID)
}

// GetByID looks up a user by ID.
func (s *UserStore) GetByID(id string) (*User, error) {
	rec, err := s.repo.Get(accountScope, userRecordType, id)
	if err != nil {
		return nil, mapStorageErr(err)
	}
	var user User
	if err := json.Unmarshal(rec.Data, &user); err != nil {
		return nil, fmt.Errorf("decoding user: %w", err)
	}
	return &user, nil
}

// Update rewrites a user record under CAS so a concurrent write cannot
// be lost. The caller passes a mutator; it runs on the freshly loaded
// record inside the transaction.
func (s *UserStore) Update(id string, mutate func(*User) error) (*User, error) {
	var updated *User
	err := s.repo.Batch(accountScope, func(tx storage.BatchTx) error {
		rec, err := tx.Get(userRecordType, id)
		if err != nil {
			return mapStorageErr(err)
		}
		var user User
		if err := json.Unmarshal(rec.Data, &user); err != nil {
			return fmt.Errorf("decoding user: %w", err)
		}
		if err := mutate(&user); err != nil {
			return err
		}
		user.UpdatedAt = nextVersionTime(user.UpdatedAt)
		data, err := json.Marshal(&user)
		if err != nil {
			return err
		}
		if err := tx.PutCAS(userRecordType, id, rec.Version, data); err != nil {
			return fmt.Errorf("updating user: %w", err)
		}
		updated = &user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func mapStorageErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrScopeNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
