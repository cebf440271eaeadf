// Copyright Threadgate Authors
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/threadgate/threadgate/pkg/core/schema"
	"github.com/threadgate/threadgate/pkg/core/state"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed implementation of state.SessionStore.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at path and prepares the schema.
// ":memory:" is accepted for ephemeral stores.
func New(path string) (*Store, error) {
	memory := path == ":memory:" || strings.Contains(path, "mode=memory")
	if !memory {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite mkdir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// An in-memory database exists per connection; pin the pool to one.
	if memory {
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite pragma: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS responses (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			status TEXT NOT NULL,
			model TEXT NOT NULL,
			previous_response_id TEXT,
			instructions TEXT,
			max_output_tokens INTEGER,
			temperature REAL,
			top_p REAL,
			store BOOLEAN NOT NULL DEFAULT TRUE,
			metadata TEXT,
			user_id TEXT,
			safety_identifier TEXT,
			prompt_cache_key TEXT,
			usage_input_tokens INTEGER,
			usage_output_tokens INTEGER,
			usage_total_tokens INTEGER,
			error TEXT,
			incomplete_details TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS input_items (
			id TEXT PRIMARY KEY,
			response_id TEXT NOT NULL,
			item_type TEXT NOT NULL,
			role TEXT,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (response_id) REFERENCES responses(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS output_items (
			id TEXT PRIMARY KEY,
			response_id TEXT NOT NULL,
			item_type TEXT NOT NULL,
			role TEXT,
			content TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (response_id) REFERENCES responses(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_responses_previous_id ON responses(previous_response_id)`,
		`CREATE INDEX IF NOT EXISTS idx_responses_user_id ON responses(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_responses_created_at ON responses(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_input_items_response_id ON input_items(response_id)`,
		`CREATE INDEX IF NOT EXISTS idx_output_items_response_id ON output_items(response_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlite create tables: %w", err)
		}
	}
	return nil
}

// CreateSession inserts the session row and all item rows in one transaction.
func (s *Store) CreateSession(ctx context.Context, session *state.ResponseSession, inputs []state.InputItem, outputs []state.OutputItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// previous_response_id is checked here rather than with a self-FK:
	// deleting a referenced session must succeed and leave the successor's
	// pointer dangling, which an enforced constraint would forbid.
	if session.PreviousResponseID != nil {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM responses WHERE id = ?)`,
			*session.PreviousResponseID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check previous response: %w", err)
		}
		if !exists {
			return fmt.Errorf("previous response %s: %w", *session.PreviousResponseID, state.ErrForeignKeyViolation)
		}
	}

	metadataJSON, err := marshalNullable(session.Metadata != nil, session.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	errorJSON, err := marshalNullable(session.Error != nil, session.Error)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	incompleteJSON, err := marshalNullable(session.IncompleteDetails != nil, session.IncompleteDetails)
	if err != nil {
		return fmt.Errorf("marshal incomplete_details: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO responses (
			id, created_at, status, model, previous_response_id,
			instructions, max_output_tokens, temperature, top_p, store,
			metadata, user_id, safety_identifier, prompt_cache_key,
			usage_input_tokens, usage_output_tokens, usage_total_tokens,
			error, incomplete_details
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.CreatedAt, string(session.Status), session.Model, session.PreviousResponseID,
		session.Instructions, session.MaxOutputTokens, session.Temperature, session.TopP, session.Store,
		metadataJSON, session.UserID, session.SafetyIdentifier, session.PromptCacheKey,
		session.InputTokens, session.OutputTokens, session.TotalTokens,
		errorJSON, incompleteJSON,
	)
	if err != nil {
		return fmt.Errorf("insert response: %w", mapSQLiteError(err))
	}

	for _, item := range inputs {
		contentJSON, err := json.Marshal(item.Content)
		if err != nil {
			return fmt.Errorf("marshal input content: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO input_items (id, response_id, item_type, role, content, created_at, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.ResponseID, item.ItemType, rolePtr(item.Role), string(contentJSON), item.CreatedAt, item.Position,
		)
		if err != nil {
			return fmt.Errorf("insert input item: %w", mapSQLiteError(err))
		}
	}

	for _, item := range outputs {
		contentJSON, err := json.Marshal(item.Content)
		if err != nil {
			return fmt.Errorf("marshal output content: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO output_items (id, response_id, item_type, role, content, status, created_at, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.ResponseID, item.ItemType, rolePtr(item.Role), string(contentJSON), string(item.Status), item.CreatedAt, item.Position,
		)
		if err != nil {
			return fmt.Errorf("insert output item: %w", mapSQLiteError(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", mapSQLiteError(err))
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*state.ResponseSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, status, model, previous_response_id,
		        instructions, max_output_tokens, temperature, top_p, store,
		        metadata, user_id, safety_identifier, prompt_cache_key,
		        usage_input_tokens, usage_output_tokens, usage_total_tokens,
		        error, incomplete_details
		 FROM responses WHERE id = ?`, id)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, state.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// GetInputItems returns the session's input items in chronological order.
func (s *Store) GetInputItems(ctx context.Context, responseID string) ([]state.InputItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, response_id, item_type, role, content, created_at, position
		 FROM input_items WHERE response_id = ?
		 ORDER BY created_at ASC, position ASC`, responseID)
	if err != nil {
		return nil, fmt.Errorf("get input items: %w", err)
	}
	defer rows.Close()

	var items []state.InputItem
	for rows.Next() {
		var (
			item    state.InputItem
			role    sql.NullString
			content string
		)
		if err := rows.Scan(&item.ID, &item.ResponseID, &item.ItemType, &role, &content, &item.CreatedAt, &item.Position); err != nil {
			return nil, fmt.Errorf("scan input item: %w", err)
		}
		item.Role, err = parseNullableRole(role)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(content), &item.Content); err != nil {
			return nil, fmt.Errorf("unmarshal input content: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetOutputItems returns the session's output items in chronological order.
func (s *Store) GetOutputItems(ctx context.Context, responseID string) ([]state.OutputItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, response_id, item_type, role, content, status, created_at, position
		 FROM output_items WHERE response_id = ?
		 ORDER BY created_at ASC, position ASC`, responseID)
	if err != nil {
		return nil, fmt.Errorf("get output items: %w", err)
	}
	defer rows.Close()

	var items []state.OutputItem
	for rows.Next() {
		var (
			item    state.OutputItem
			role    sql.NullString
			content string
			status  string
		)
		if err := rows.Scan(&item.ID, &item.ResponseID, &item.ItemType, &role, &content, &status, &item.CreatedAt, &item.Position); err != nil {
			return nil, fmt.Errorf("scan output item: %w", err)
		}
		item.Status = schema.Status(status)
		item.Role, err = parseNullableRole(role)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(content), &item.Content); err != nil {
			return nil, fmt.Errorf("unmarshal output content: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteSession removes the session; ON DELETE CASCADE takes the items.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM responses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", mapSQLiteError(err))
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, state.ErrNotFound)
	}
	return nil
}

// --- helpers ---

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scannable) (*state.ResponseSession, error) {
	var (
		session                          state.ResponseSession
		status                           string
		prevID, instructions             sql.NullString
		userID, safetyID, cacheKey       sql.NullString
		metadata, errField, incomplete   sql.NullString
		maxTokens, inTok, outTok, totTok sql.NullInt64
		temperature, topP                sql.NullFloat64
	)
	err := row.Scan(&session.ID, &session.CreatedAt, &status, &session.Model, &prevID,
		&instructions, &maxTokens, &temperature, &topP, &session.Store,
		&metadata, &userID, &safetyID, &cacheKey,
		&inTok, &outTok, &totTok,
		&errField, &incomplete)
	if err != nil {
		return nil, err
	}

	session.Status = schema.Status(status)
	session.PreviousResponseID = nullStringPtr(prevID)
	session.Instructions = nullStringPtr(instructions)
	session.UserID = nullStringPtr(userID)
	session.SafetyIdentifier = nullStringPtr(safetyID)
	session.PromptCacheKey = nullStringPtr(cacheKey)
	session.MaxOutputTokens = nullInt64Ptr(maxTokens)
	session.InputTokens = nullInt64Ptr(inTok)
	session.OutputTokens = nullInt64Ptr(outTok)
	session.TotalTokens = nullInt64Ptr(totTok)
	session.Temperature = nullFloat64Ptr(temperature)
	session.TopP = nullFloat64Ptr(topP)

	if metadata.Valid {
		if err := json.Unmarshal([]byte(metadata.String), &session.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if errField.Valid {
		if err := json.Unmarshal([]byte(errField.String), &session.Error); err != nil {
			return nil, fmt.Errorf("unmarshal error: %w", err)
		}
	}
	if incomplete.Valid {
		if err := json.Unmarshal([]byte(incomplete.String), &session.IncompleteDetails); err != nil {
			return nil, fmt.Errorf("unmarshal incomplete_details: %w", err)
		}
	}
	return &session, nil
}

// mapSQLiteError translates driver constraint failures into store sentinels.
func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %v", state.ErrForeignKeyViolation, err)
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", state.ErrAlreadyExists, err)
	}
	return err
}

func marshalNullable(present bool, v interface{}) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func rolePtr(r *schema.Role) *string {
	if r == nil {
		return nil
	}
	s := string(*r)
	return &s
}

func parseNullableRole(ns sql.NullString) (*schema.Role, error) {
	if !ns.Valid {
		return nil, nil
	}
	role, err := schema.ParseRole(ns.String)
	if err != nil {
		return nil, fmt.Errorf("stored role: %w", err)
	}
	return &role, nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func nullInt64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	return &ni.Int64
}

func nullFloat64Ptr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	return &nf.Float64
}
