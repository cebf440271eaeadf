// Copyright Threadgate Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/threadgate/threadgate/pkg/core/state"
)

// Store is an in-memory implementation of state.SessionStore, used for tests
// and local development. It mirrors the relational stores' referential
// integrity rules: previous_response_id must resolve at insert time, and
// deleting a session cascades to its items.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*state.ResponseSession
	inputs   map[string][]state.InputItem
	outputs  map[string][]state.OutputItem
}

// New creates a new in-memory store
func New() *Store {
	return &Store{
		sessions: make(map[string]*state.ResponseSession),
		inputs:   make(map[string][]state.InputItem),
		outputs:  make(map[string][]state.OutputItem),
	}
}

// CreateSession atomically registers the session and its items.
func (s *Store) CreateSession(ctx context.Context, session *state.ResponseSession, inputs []state.InputItem, outputs []state.OutputItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s: %w", session.ID, state.ErrAlreadyExists)
	}
	if session.PreviousResponseID != nil {
		if _, exists := s.sessions[*session.PreviousResponseID]; !exists {
			return fmt.Errorf("previous response %s: %w", *session.PreviousResponseID, state.ErrForeignKeyViolation)
		}
	}
	for _, item := range inputs {
		if item.ResponseID != session.ID {
			return fmt.Errorf("input item %s references %s: %w", item.ID, item.ResponseID, state.ErrForeignKeyViolation)
		}
	}
	for _, item := range outputs {
		if item.ResponseID != session.ID {
			return fmt.Errorf("output item %s references %s: %w", item.ID, item.ResponseID, state.ErrForeignKeyViolation)
		}
	}

	copied := *session
	s.sessions[session.ID] = &copied
	s.inputs[session.ID] = append([]state.InputItem(nil), inputs...)
	s.outputs[session.ID] = append([]state.OutputItem(nil), outputs...)
	return nil
}

// GetSession retrieves a session by ID
func (s *Store) GetSession(ctx context.Context, id string) (*state.ResponseSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[id]
	if !exists {
		return nil, fmt.Errorf("session %s: %w", id, state.ErrNotFound)
	}
	copied := *session
	return &copied, nil
}

// GetInputItems returns intake order: created_at ascending, position breaks ties.
func (s *Store) GetInputItems(ctx context.Context, responseID string) ([]state.InputItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := append([]state.InputItem(nil), s.inputs[responseID]...)
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt != items[j].CreatedAt {
			return items[i].CreatedAt < items[j].CreatedAt
		}
		return items[i].Position < items[j].Position
	})
	return items, nil
}

// GetOutputItems returns the session's output items, same ordering rule.
func (s *Store) GetOutputItems(ctx context.Context, responseID string) ([]state.OutputItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := append([]state.OutputItem(nil), s.outputs[responseID]...)
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt != items[j].CreatedAt {
			return items[i].CreatedAt < items[j].CreatedAt
		}
		return items[i].Position < items[j].Position
	})
	return items, nil
}

// DeleteSession removes the session and cascades to its items. Sessions that
// reference the deleted one keep their dangling previous_response_id.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; !exists {
		return fmt.Errorf("session %s: %w", id, state.ErrNotFound)
	}
	delete(s.sessions, id)
	delete(s.inputs, id)
	delete(s.outputs, id)
	return nil
}

// Close implements state.SessionStore
func (s *Store) Close() error { return nil }

// Relink rewires a stored session's previous_response_id without integrity
// checks. Test hook for exercising cycle detection; no production caller.
func (s *Store) Relink(id, previousID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[id]
	if !exists {
		return fmt.Errorf("session %s: %w", id, state.ErrNotFound)
	}
	session.PreviousResponseID = &previousID
	return nil
}
