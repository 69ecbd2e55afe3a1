package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rvalente/taskspace/storage"
)

// SpaceStore persists spaces and the owner index.
type SpaceStore struct {
	repo storage.Repository
}

// NewSpaceStore creates a SpaceStore over the given repository.
func NewSpaceStore(repo storage.Repository) *SpaceStore {
	return &SpaceStore{repo: repo}
}

func ownerIndexID(ownerID, spaceID string) string {
	return ownerID + "/" + spaceID
}

// Create inserts a new space owned by ownerID.
func (s *SpaceStore) Create(ownerID, name string) (*Space, error) {
	now := normTime(time.Now())
	space := &Space{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.repo.Batch(spaceScope, func(tx storage.BatchTx) error {
		data, err := json.Marshal(space)
		if err != nil {
			return err
		}
		if err := tx.PutCAS(spaceRecordType, space.ID, 0, data); err != nil {
			return fmt.Errorf("inserting space: %w", err)
		}
		return tx.Put(ownerRecordType, ownerIndexID(ownerID, space.ID), []byte("{}"))
	})
	if err != nil {
		return nil, err
	}
	return space, nil
}

// Get looks up a space by ID.
func (s *SpaceStore) Get(id string) (*Space, error) {
	rec, err := s.repo.Get(spaceScope, spaceRecordType, id)
	if err != nil {
		return nil, mapStorageErr(err)
	}
	var space Space
	if err := json.Unmarshal(rec.Data, &space); err != nil {
		return nil, fmt.Errorf("decoding space: %w", err)
	}
	return &space, nil
}

// ListByOwner returns all spaces owned by ownerID.
func (s *SpaceStore) ListByOwner(ownerID string) ([]*Space, error) {
	ids, err := s.repo.List(spaceScope, ownerRecordType)
	if err != nil {
		return nil, err
	}
	prefix := ownerID + "/"
	var spaces []*Space
	for _, id := range ids {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		space, err := s.Get(strings.TrimPrefix(id, prefix))
		if err != nil {
			return nil, err
		}
		spaces = append(spaces, space)
	}
	return spaces, nil
}

// Update renames a space. The supplied updated_at must match the
// persisted one; the check and the write share one transaction.
func (s *SpaceStore) Update(id, name string, supplied time.Time) (*Space, error) {
	var updated *Space
	err := s.repo.Batch(spaceScope, func(tx storage.BatchTx) error {
		rec, err := tx.Get(spaceRecordType, id)
		if err != nil {
			return mapStorageErr(err)
		}
		var space Space
		if err := json.Unmarshal(rec.Data, &space); err != nil {
			return fmt.Errorf("decoding space: %w", err)
		}
		if err := CheckVersion(space.UpdatedAt, supplied); err != nil {
			return err
		}
		space.Name = name
		space.UpdatedAt = nextVersionTime(space.UpdatedAt)
		data, err := json.Marshal(&space)
		if err != nil {
			return err
		}
		if err := tx.PutCAS(spaceRecordType, id, rec.Version, data); err != nil {
			return fmt.Errorf("updating space: %w", err)
		}
		updated = &space
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a space after the version check, then sweeps the
// space's todos. The sweep is best-effort outside the transaction; an
// orphaned todo record is unreachable once the space is gone.
func (s *SpaceStore) Delete(id string, supplied time.Time) error {
	err := s.repo.Batch(spaceScope, func(tx storage.BatchTx) error {
		rec, err := tx.Get(spaceRecordType, id)
		if err != nil {
			return mapStorageErr(err)
		}
		var space Space
		if err := json.Unmarshal(rec.Data, &space); err != nil {
			return fmt.Errorf("decoding space: %w", err)
		}
		if err := CheckVersion(space.UpdatedAt, supplied); err != nil {
			return err
		}
		if err := tx.Delete(spaceRecordType, id); err != nil {
			return err
		}
		return tx.Delete(ownerRecordType, ownerIndexID(space.OwnerID, id))
	})
	if err != nil {
		return err
	}
	todoIDs, err := s.repo.List(id, todoRecordType)
	if err != nil {
		return nil
	}
	for _, todoID := range todoIDs {
		_ = s.repo.Delete(id, todoRecordType, todoID)
	}
	return nil
}
