// Copyright Threadgate Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/threadgate/threadgate/pkg/core/api"
	"github.com/threadgate/threadgate/pkg/core/schema"
	"github.com/threadgate/threadgate/pkg/core/state"
)

// maxChainDepth bounds the previous_response_id walk. A chain this long is
// treated as corrupt rather than replayed.
const maxChainDepth = 100

// buildHistory reconstructs the conversation leading up to previousID as a
// flat message list in chronological order. Each ancestor contributes its
// instructions as a system message, then its input items, then its output
// items.
func (e *Engine) buildHistory(ctx context.Context, previousID string) ([]api.Message, error) {
	// Walk newest to oldest, then reverse.
	var chain []*state.ResponseSession
	visited := make(map[string]bool)

	id := previousID
	for id != "" {
		if visited[id] {
			return nil, &CorruptChainError{ResponseID: id, Reason: "cycle"}
		}
		if len(chain) >= maxChainDepth {
			return nil, &CorruptChainError{ResponseID: id, Reason: "depth"}
		}
		visited[id] = true

		session, err := e.store.GetSession(ctx, id)
		if err != nil {
			if errors.Is(err, state.ErrNotFound) {
				return nil, &NotFoundError{ID: id}
			}
			return nil, fmt.Errorf("loading session %s: %w", id, err)
		}
		chain = append(chain, session)

		if session.PreviousResponseID == nil {
			break
		}
		id = *session.PreviousResponseID
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	var messages []api.Message
	for _, session := range chain {
		if session.Instructions != nil && *session.Instructions != "" {
			messages = append(messages, api.Message{Role: "system", Content: *session.Instructions})
		}

		inputs, err := e.store.GetInputItems(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("loading input items for %s: %w", session.ID, err)
		}
		for _, item := range inputs {
			messages = append(messages, itemToMessage(item.Role, item.Content, schema.RoleUser))
		}

		outputs, err := e.store.GetOutputItems(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("loading output items for %s: %w", session.ID, err)
		}
		for _, item := range outputs {
			messages = append(messages, itemToMessage(item.Role, item.Content, schema.RoleAssistant))
		}
	}
	return messages, nil
}

// itemToMessage flattens a stored item into a chat message. Items without a
// recorded role fall back to the side of the conversation they came from.
func itemToMessage(role *schema.Role, content []schema.ContentPart, fallback schema.Role) api.Message {
	r := fallback
	if role != nil {
		r = *role
	}

	// Single text part collapses to plain content; anything else stays
	// multimodal.
	if len(content) == 1 && content[0].Text != nil && content[0].ImageURL == nil && content[0].FileID == nil {
		return api.Message{Role: string(r), Content: *content[0].Text}
	}

	msg := api.Message{Role: string(r)}
	for _, part := range content {
		msg.ContentParts = append(msg.ContentParts, contentPartToMessagePart(part))
	}
	return msg
}

func contentPartToMessagePart(part schema.ContentPart) api.MessageContentPart {
	switch {
	case part.ImageURL != nil:
		detail := ""
		if part.Detail != nil {
			detail = *part.Detail
		}
		return api.MessageContentPart{
			Type:     "image_url",
			ImageURL: &api.MessageImageURL{URL: part.ImageURL.URL, Detail: detail},
		}
	case part.FileID != nil:
		return api.MessageContentPart{
			Type: "file",
			File: &api.MessageFile{FileID: *part.FileID},
		}
	default:
		text := ""
		if part.Text != nil {
			text = *part.Text
		}
		return api.MessageContentPart{Type: "text", Text: text}
	}
}
