// Copyright Threadgate Authors
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/threadgate/threadgate/pkg/core/schema"
	"github.com/threadgate/threadgate/pkg/core/state"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("New(:memory:) = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func textPart(text string) []schema.ContentPart {
	return []schema.ContentPart{{Type: "input_text", Text: &text}}
}

func fullSession(id string) *state.ResponseSession {
	instructions := "You are helpful."
	maxTokens := int64(256)
	temperature := 0.7
	inTok, outTok, totTok := int64(36), int64(87), int64(123)
	user := "alice"
	return &state.ResponseSession{
		ID:              id,
		CreatedAt:       1700000000,
		Status:          schema.StatusCompleted,
		Model:           "gpt-test",
		Instructions:    &instructions,
		MaxOutputTokens: &maxTokens,
		Temperature:     &temperature,
		Store:           true,
		Metadata:        map[string]string{"env": "test"},
		UserID:          &user,
		InputTokens:     &inTok,
		OutputTokens:    &outTok,
		TotalTokens:     &totTok,
	}
}

func TestSessionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	role := schema.RoleUser
	assistant := schema.RoleAssistant
	inputs := []state.InputItem{{
		ID: "msg_in", ResponseID: "resp_1", ItemType: "message",
		Role: &role, Content: textPart("Hello"), CreatedAt: 1700000000, Position: 0,
	}}
	reply := "Hi there"
	outputs := []state.OutputItem{{
		ID: "msg_out", ResponseID: "resp_1", ItemType: "message",
		Role: &assistant, Content: []schema.ContentPart{{Type: "output_text", Text: &reply}},
		Status: schema.StatusCompleted, CreatedAt: 1700000000, Position: 0,
	}}

	if err := store.CreateSession(ctx, fullSession("resp_1"), inputs, outputs); err != nil {
		t.Fatalf("CreateSession() = %v", err)
	}

	got, err := store.GetSession(ctx, "resp_1")
	if err != nil {
		t.Fatalf("GetSession() = %v", err)
	}
	if got.Model != "gpt-test" || got.Status != schema.StatusCompleted {
		t.Errorf("session = %+v", got)
	}
	if got.Instructions == nil || *got.Instructions != "You are helpful." {
		t.Errorf("instructions = %v", got.Instructions)
	}
	if got.MaxOutputTokens == nil || *got.MaxOutputTokens != 256 {
		t.Errorf("max_output_tokens = %v", got.MaxOutputTokens)
	}
	if got.Temperature == nil || *got.Temperature != 0.7 {
		t.Errorf("temperature = %v", got.Temperature)
	}
	if got.TopP != nil {
		t.Errorf("top_p = %v, want nil", got.TopP)
	}
	if got.Metadata["env"] != "test" {
		t.Errorf("metadata = %v", got.Metadata)
	}
	if got.TotalTokens == nil || *got.TotalTokens != 123 {
		t.Errorf("total_tokens = %v", got.TotalTokens)
	}

	gotInputs, err := store.GetInputItems(ctx, "resp_1")
	if err != nil {
		t.Fatalf("GetInputItems() = %v", err)
	}
	if len(gotInputs) != 1 || gotInputs[0].ID != "msg_in" {
		t.Fatalf("inputs = %+v", gotInputs)
	}
	if gotInputs[0].Role == nil || *gotInputs[0].Role != schema.RoleUser {
		t.Errorf("input role = %v", gotInputs[0].Role)
	}
	if len(gotInputs[0].Content) != 1 || *gotInputs[0].Content[0].Text != "Hello" {
		t.Errorf("input content = %+v", gotInputs[0].Content)
	}

	gotOutputs, err := store.GetOutputItems(ctx, "resp_1")
	if err != nil {
		t.Fatalf("GetOutputItems() = %v", err)
	}
	if len(gotOutputs) != 1 || gotOutputs[0].Status != schema.StatusCompleted {
		t.Fatalf("outputs = %+v", gotOutputs)
	}
	if *gotOutputs[0].Content[0].Text != "Hi there" {
		t.Errorf("output content = %+v", gotOutputs[0].Content)
	}
}

func TestCreateSessionAtomicRollback(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, fullSession("resp_1"), nil, nil); err != nil {
		t.Fatalf("CreateSession(resp_1) = %v", err)
	}

	// Duplicate session ID: the whole transaction, items included, must
	// roll back.
	role := schema.RoleUser
	items := []state.InputItem{{
		ID: "msg_orphan", ResponseID: "resp_1", ItemType: "message",
		Role: &role, Content: textPart("dangling"), CreatedAt: 1700000001, Position: 0,
	}}
	err := store.CreateSession(ctx, fullSession("resp_1"), items, nil)
	if !errors.Is(err, state.ErrAlreadyExists) {
		t.Fatalf("duplicate CreateSession() = %v, want ErrAlreadyExists", err)
	}

	got, err := store.GetInputItems(ctx, "resp_1")
	if err != nil {
		t.Fatalf("GetInputItems() = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("items from rolled-back transaction persisted: %+v", got)
	}
}

func TestCreateSessionOutputInsertFailureRollsBackSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assistant := schema.RoleAssistant
	reply := "done"
	output := state.OutputItem{
		ID: "msg_dup", ResponseID: "resp_1", ItemType: "message",
		Role: &assistant, Content: []schema.ContentPart{{Type: "output_text", Text: &reply}},
		Status: schema.StatusCompleted, CreatedAt: 1700000000, Position: 0,
	}
	if err := store.CreateSession(ctx, fullSession("resp_1"), nil, []state.OutputItem{output}); err != nil {
		t.Fatalf("CreateSession(resp_1) = %v", err)
	}

	// The second session's output item reuses msg_dup, failing mid
	// transaction after the session row was already staged.
	conflicting := output
	conflicting.ResponseID = "resp_2"
	err := store.CreateSession(ctx, fullSession("resp_2"), nil, []state.OutputItem{conflicting})
	if !errors.Is(err, state.ErrAlreadyExists) {
		t.Fatalf("CreateSession(resp_2) = %v, want ErrAlreadyExists", err)
	}

	if _, err := store.GetSession(ctx, "resp_2"); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("staged session row survived rollback: %v", err)
	}
}

func TestCreateSessionForeignKeyViolation(t *testing.T) {
	store := newTestStore(t)

	session := fullSession("resp_1")
	missing := "resp_ghost"
	session.PreviousResponseID = &missing

	err := store.CreateSession(context.Background(), session, nil, nil)
	if !errors.Is(err, state.ErrForeignKeyViolation) {
		t.Fatalf("CreateSession() = %v, want ErrForeignKeyViolation", err)
	}
}

func TestDeleteSessionCascade(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	role := schema.RoleUser
	items := []state.InputItem{{
		ID: "msg_1", ResponseID: "resp_1", ItemType: "message",
		Role: &role, Content: textPart("Hello"), CreatedAt: 1700000000, Position: 0,
	}}
	if err := store.CreateSession(ctx, fullSession("resp_1"), items, nil); err != nil {
		t.Fatalf("CreateSession() = %v", err)
	}

	if err := store.DeleteSession(ctx, "resp_1"); err != nil {
		t.Fatalf("DeleteSession() = %v", err)
	}
	if _, err := store.GetSession(ctx, "resp_1"); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("GetSession() = %v, want ErrNotFound", err)
	}
	got, err := store.GetInputItems(ctx, "resp_1")
	if err != nil {
		t.Fatalf("GetInputItems() = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("items survived cascade delete: %+v", got)
	}

	if err := store.DeleteSession(ctx, "resp_1"); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("second DeleteSession() = %v, want ErrNotFound", err)
	}
}

func TestItemOrderingByCreatedAtThenPosition(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	role := schema.RoleUser
	items := []state.InputItem{
		{ID: "msg_late", ResponseID: "resp_1", ItemType: "message", Role: &role,
			Content: textPart("later"), CreatedAt: 1700000005, Position: 0},
		{ID: "msg_b", ResponseID: "resp_1", ItemType: "message", Role: &role,
			Content: textPart("second"), CreatedAt: 1700000000, Position: 1},
		{ID: "msg_a", ResponseID: "resp_1", ItemType: "message", Role: &role,
			Content: textPart("first"), CreatedAt: 1700000000, Position: 0},
	}
	if err := store.CreateSession(ctx, fullSession("resp_1"), items, nil); err != nil {
		t.Fatalf("CreateSession() = %v", err)
	}

	got, err := store.GetInputItems(ctx, "resp_1")
	if err != nil {
		t.Fatalf("GetInputItems() = %v", err)
	}
	want := []string{"msg_a", "msg_b", "msg_late"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("items[%d].ID = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestDeleteReferencedSessionLeavesDanglingChain(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, fullSession("resp_1"), nil, nil); err != nil {
		t.Fatalf("CreateSession(resp_1) = %v", err)
	}
	second := fullSession("resp_2")
	prev := "resp_1"
	second.PreviousResponseID = &prev
	if err := store.CreateSession(ctx, second, nil, nil); err != nil {
		t.Fatalf("CreateSession(resp_2) = %v", err)
	}

	if err := store.DeleteSession(ctx, "resp_1"); err != nil {
		t.Fatalf("DeleteSession(resp_1) = %v", err)
	}

	got, err := store.GetSession(ctx, "resp_2")
	if err != nil {
		t.Fatalf("GetSession(resp_2) = %v", err)
	}
	if got.PreviousResponseID == nil || *got.PreviousResponseID != "resp_1" {
		t.Errorf("previous_response_id = %v, want dangling resp_1", got.PreviousResponseID)
	}
}

func TestConversationChainPersists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, fullSession("resp_1"), nil, nil); err != nil {
		t.Fatalf("CreateSession(resp_1) = %v", err)
	}
	second := fullSession("resp_2")
	prev := "resp_1"
	second.PreviousResponseID = &prev
	if err := store.CreateSession(ctx, second, nil, nil); err != nil {
		t.Fatalf("CreateSession(resp_2) = %v", err)
	}

	got, err := store.GetSession(ctx, "resp_2")
	if err != nil {
		t.Fatalf("GetSession() = %v", err)
	}
	if got.PreviousResponseID == nil || *got.PreviousResponseID != "resp_1" {
		t.Errorf("previous_response_id = %v, want resp_1", got.PreviousResponseID)
	}
}
