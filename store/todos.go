package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rvalente/taskspace/storage"
)

// TodoStore persists todos, scoped per space.
type TodoStore struct {
	repo storage.Repository
}

// NewTodoStore creates a TodoStore over the given repository.
func NewTodoStore(repo storage.Repository) *TodoStore {
	return &TodoStore{repo: repo}
}

// Create inserts a new todo in the given space.
func (s *TodoStore) Create(spaceID, title, notes string) (*Todo, error) {
	now := normTime(time.Now())
	todo := &Todo{
		ID:        uuid.NewString(),
		SpaceID:   spaceID,
		Title:     title,
		Notes:     notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	data, err := json.Marshal(todo)
	if err != nil {
		return nil, err
	}
	if err := s.repo.PutCAS(spaceID, todoRecordType, todo.ID, 0, data); err != nil {
		return nil, fmt.Errorf("inserting todo: %w", err)
	}
	return todo, nil
}

// Get looks up a todo by space and ID.
func (s *TodoStore) Get(spaceID, id string) (*Todo, error) {
	rec, err := s.repo.Get(spaceID, todoRecordType, id)
	if err != nil {
		return nil, mapStorageErr(err)
	}
	var todo Todo
	if err := json.Unmarshal(rec.Data, &todo); err != nil {
		return nil, fmt.Errorf("decoding todo: %w", err)
	}
	return &todo, nil
}

// List returns all todos in a space, oldest first.
func (s *TodoStore) List(spaceID string) ([]*Todo, error) {
	ids, err := s.repo.List(spaceID, todoRecordType)
	if err != nil {
		return nil, err
	}
	todos := make([]*Todo, 0, len(ids))
	for _, id := range ids {
		todo, err := s.Get(spaceID, id)
		if err != nil {
			return nil, err
		}
		todos = append(todos, todo)
	}
	sort.Slice(todos, func(i, j int) bool {
		if todos[i].CreatedAt.Equal(todos[j].CreatedAt) {
			return todos[i].ID < todos[j].ID
		}
		return todos[i].CreatedAt.Before(todos[j].CreatedAt)
	})
	return todos, nil
}

// Update mutates a todo. The supplied updated_at must match the
// persisted one; the check and the write share one transaction, and
// the CAS write closes the remaining race against a concurrent writer.
func (s *TodoStore) Update(spaceID, id string, supplied time.Time, mutate func(*Todo)) (*Todo, error) {
	var updated *Todo
	err := s.repo.Batch(spaceID, func(tx storage.BatchTx) error {
		rec, err := tx.Get(todoRecordType, id)
		if err != nil {
			return mapStorageErr(err)
		}
		var todo Todo
		if err := json.Unmarshal(rec.Data, &todo); err != nil {
			return fmt.Errorf("decoding todo: %w", err)
		}
		if err := CheckVersion(todo.UpdatedAt, supplied); err != nil {
			return err
		}
		mutate(&todo)
		todo.UpdatedAt = nextVersionTime(todo.UpdatedAt)
		data, err := json.Marshal(&todo)
		if err != nil {
			return err
		}
		if err := tx.PutCAS(todoRecordType, id, rec.Version, data); err != nil {
			return fmt.Errorf("updating todo: %w", err)
		}
		updated = &todo
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a todo after the version check.
func (s *TodoStore) Delete(spaceID, id string, supplied time.Time) error {
	return s.repo.Batch(spaceID, func(tx storage.BatchTx) error {
		rec, err := tx.Get(todoRecordType, id)
		if err != nil {
			return mapStorageErr(err)
		}
		var todo Todo
		if err := json.Unmarshal(rec.Data, &todo); err != nil {
			return fmt.Errorf("decoding todo: %w", err)
		}
		if err := CheckVersion(todo.UpdatedAt, supplied); err != nil {
			return err
		}
		return tx.Delete(todoRecordType, id)
	})
}
