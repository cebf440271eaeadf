// Copyright Threadgate Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"errors"

	"github.com/threadgate/threadgate/pkg/core/schema"
)

// Storage error sentinels. Implementations wrap these with %w so callers can
// classify failures with errors.Is.
var (
	// ErrNotFound means the requested session does not exist. It is also the
	// failure mode when a chain points at a deleted predecessor.
	ErrNotFound = errors.New("response not found")

	// ErrForeignKeyViolation means a write referenced a missing session,
	// e.g. a previous_response_id that was never committed.
	ErrForeignKeyViolation = errors.New("foreign key violation")

	// ErrAlreadyExists means a session with the same ID is already stored.
	ErrAlreadyExists = errors.New("response already exists")
)

// ResponseSession is one stored /v1/responses call and its result.
// Write-once after creation; only the lifecycle status may change, and this
// synchronous design sets it before the single insert.
type ResponseSession struct {
	ID                 string
	CreatedAt          int64 // unix seconds
	Status             schema.Status
	Model              string
	PreviousResponseID *string
	Instructions       *string

	MaxOutputTokens *int64
	Temperature     *float64
	TopP            *float64

	Store    bool
	Metadata map[string]string

	UserID           *string
	SafetyIdentifier *string
	PromptCacheKey   *string

	// Usage counters, nil until the backend reply is assembled
	InputTokens  *int64
	OutputTokens *int64
	TotalTokens  *int64

	Error             *schema.ErrorField
	IncompleteDetails *schema.IncompleteDetailsField
}

// InputItem is an immutable record of one unit of user-supplied content.
// It is owned by its session and cascade-deleted with it.
type InputItem struct {
	ID         string
	ResponseID string
	ItemType   string // "message", "image", "file"
	Role       *schema.Role
	Content    []schema.ContentPart
	CreatedAt  int64
	Position   int // insertion order, breaks created_at ties
}

// OutputItem is an immutable record of one unit of model-produced content.
type OutputItem struct {
	ID         string
	ResponseID string
	ItemType   string // "message"
	Role       *schema.Role
	Content    []schema.ContentPart
	Status     schema.Status
	CreatedAt  int64
	Position   int
}

// SessionStore is the persistence boundary for response sessions and their
// items.
type SessionStore interface {
	// CreateSession atomically inserts the session row and all of its items.
	// Either every row lands or none do; a concurrent reader never observes
	// a session without its items or items without their session.
	CreateSession(ctx context.Context, session *ResponseSession, inputs []InputItem, outputs []OutputItem) error

	// GetSession retrieves a session by ID, or ErrNotFound.
	GetSession(ctx context.Context, id string) (*ResponseSession, error)

	// GetInputItems returns the session's input items ordered by created_at,
	// ties broken by insertion order.
	GetInputItems(ctx context.Context, responseID string) ([]InputItem, error)

	// GetOutputItems returns the session's output items, same ordering rule.
	GetOutputItems(ctx context.Context, responseID string) ([]OutputItem, error)

	// DeleteSession removes the session and cascades to both item tables.
	// Sessions referencing the deleted one keep their now-dangling pointer.
	DeleteSession(ctx context.Context, id string) error

	// Close releases the underlying storage handle.
	Close() error
}
