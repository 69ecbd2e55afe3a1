package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rvalente/taskspace/store"
)

const (
	maxAuthBodySize  = 4 << 10
	maxSmallBodySize = 64 << 10
)

// decodeJSON reads and decodes a JSON request body into T, writing the
// error response itself when the body is oversized or malformed.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, maxSize int64) (T, bool) {
	var req T
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, codeBadRequest, "request body too large")
			return req, false
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid JSON body")
		return req, false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, http.StatusBadRequest, codeBadRequest, "unexpected data after JSON body")
		return req, false
	}
	return req, true
}

// resolveSpace loads the space from the URL and enforces that the
// session user owns it. A missing space is 404; someone else's space
// is 403, not 404, because space IDs are unguessable UUIDs and hiding
// existence buys nothing over an honest denial.
func (a *API) resolveSpace(w http.ResponseWriter, r *http.Request) (*store.Space, bool) {
	spaceID := chi.URLParam(r, "spaceID")
	space, err := a.spaces.Get(spaceID)
	if err != nil {
		mapError(w, err)
		return nil, false
	}
	sess := sessionFromContext(r.Context())
	if space.OwnerID != sess.UserID() {
		writeError(w, http.StatusForbidden, codeForbidden, "you do not own this space")
		return nil, false
	}
	return space, true
}

func spaceToAPI(s *store.Space) SpaceResponse {
	return SpaceResponse{
		ID:        s.ID,
		OwnerID:   s.OwnerID,
		Name:      s.Name,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func todoToAPI(t *store.Todo) TodoResponse {
	return TodoResponse{
		ID:        t.ID,
		SpaceID:   t.SpaceID,
		Title:     t.Title,
		Notes:     t.Notes,
		Done:      t.Done,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// CreateSpace handles POST /spaces.
func (a *API) CreateSpace(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[CreateSpaceRequest](w, r, maxSmallBodySize)
	if !ok {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "name is required")
		return
	}

	sess := sessionFromContext(r.Context())
	space, err := a.spaces.Create(sess.UserID(), name)
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.logUser(AuditSpaceCreated, r, sess.UserID())
	writeJSON(w, http.StatusCreated, spaceToAPI(space))
}

// ListSpaces handles GET /spaces.
func (a *API) ListSpaces(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	spaces, err := a.spaces.ListByOwner(sess.UserID())
	if err != nil {
		mapError(w, err)
		return
	}
	resp := ListSpacesResponse{Spaces: make([]SpaceResponse, 0, len(spaces))}
	for _, s := range spaces {
		resp.Spaces = append(resp.Spaces, spaceToAPI(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSpace handles GET /spaces/{spaceID}.
func (a *API) GetSpace(w http.ResponseWriter, r *http.Request) {
	space, ok := a.resolveSpace(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, spaceToAPI(space))
}

// UpdateSpace handles PUT /spaces/{spaceID}. The request carries the
// caller's last-seen updated_at; a mismatch with the persisted value
// means someone else changed the space first and the write is refused.
func (a *API) UpdateSpace(w http.ResponseWriter, r *http.Request) {
	space, ok := a.resolveSpace(w, r)
	if !ok {
		return
	}
	req, ok := decodeJSON[UpdateSpaceRequest](w, r, maxSmallBodySize)
	if !ok {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "name is required")
		return
	}

	updated, err := a.spaces.Update(space.ID, name, req.UpdatedAt)
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.logUser(AuditSpaceUpdated, r, space.OwnerID)
	writeJSON(w, http.StatusOK, spaceToAPI(updated))
}

// DeleteSpace handles DELETE /spaces/{spaceID}.
func (a *API) DeleteSpace(w http.ResponseWriter, r *http.Request) {
	space, ok := a.resolveSpace(w, r)
	if !ok {
		return
	}
	req, ok := decodeJSON[DeleteRequest](w, r, maxSmallBodySize)
	if !ok {
		return
	}
	if err := a.spaces.Delete(space.ID, req.UpdatedAt); err != nil {
		mapError(w, err)
		return
	}
	a.audit.logUser(AuditSpaceDeleted, r, space.OwnerID)
	w.WriteHeader(http.StatusNoContent)
}

// CreateTodo handles POST /spaces/{spaceID}/todos.
func (a *API) CreateTodo(w http.ResponseWriter, r *http.Request) {
	space, ok := a.resolveSpace(w, r)
	if !ok {
		return
	}
	req, ok := decodeJSON[CreateTodoRequest](w, r, maxSmallBodySize)
	if !ok {
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "title is required")
		return
	}

	todo, err := a.todos.Create(space.ID, title, req.Notes)
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.logUser(AuditTodoCreated, r, space.OwnerID)
	writeJSON(w, http.StatusCreated, todoToAPI(todo))
}

// ListTodos handles GET /spaces/{spaceID}/todos.
func (a *API) ListTodos(w http.ResponseWriter, r *http.Request) {
	space, ok := a.resolveSpace(w, r)
	if !ok {
		return
	}
	todos, err := a.todos.List(space.ID)
	if err != nil {
		mapError(w, err)
		return
	}
	resp := ListTodosResponse{Todos: make([]TodoResponse, 0, len(todos))}
	for _, t := range todos {
		resp.Todos = append(resp.Todos, todoToAPI(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetTodo handles GET /spaces/{spaceID}/todos/{todoID}.
func (a *API) GetTodo(w http.ResponseWriter, r *http.Request) {
	space, ok := a.resolveSpace(w, r)
	if !ok {
		return
	}
	todo, err := a.todos.Get(space.ID, chi.URLParam(r, "todoID"))
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, todoToAPI(todo))
}

// UpdateTodo handles PUT /spaces/{spaceID}/todos/{todoID}. Omitted
// fields keep their current values; updated_at is the version guard.
func (a *API) UpdateTodo(w http.ResponseWriter, r *http.Request) {
	space, ok := a.resolveSpace(w, r)
	if !ok {
		return
	}
	req, ok := decodeJSON[UpdateTodoRequest](w, r, maxSmallBodySize)
	if !ok {
		return
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "title cannot be empty")
		return
	}

	todo, err := a.todos.Update(space.ID, chi.URLParam(r, "todoID"), req.UpdatedAt, func(t *store.Todo) {
		if req.Title != nil {
			t.Title = strings.TrimSpace(*req.Title)
		}
		if req.Notes != nil {
			t.Notes = *req.Notes
		}
		if req.Done != nil {
			t.Done = *req.Done
		}
	})
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.logUser(AuditTodoUpdated, r, space.OwnerID)
	writeJSON(w, http.StatusOK, todoToAPI(todo))
}

// DeleteTodo handles DELETE /spaces/{spaceID}/todos/{todoID}.
func (a *API) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	space, ok := a.resolveSpace(w, r)
	if !ok {
		return
	}
	req, ok := decodeJSON[DeleteRequest](w, r, maxSmallBodySize)
	if !ok {
		return
	}
	if err := a.todos.Delete(space.ID, chi.URLParam(r, "todoID"), req.UpdatedAt); err != nil {
		mapError(w, err)
		return
	}
	a.audit.logUser(AuditTodoDeleted, r, space.OwnerID)
	w.WriteHeader(http.StatusNoContent)
}
