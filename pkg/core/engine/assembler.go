// Copyright Threadgate Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/threadgate/threadgate/pkg/core/api"
	"github.com/threadgate/threadgate/pkg/core/schema"
	"github.com/threadgate/threadgate/pkg/core/state"
)

// newResponseID mints a response session ID.
func newResponseID() string {
	return fmt.Sprintf("resp_%x", [16]byte(uuid.New()))
}

// newItemID mints an input or output item ID.
func newItemID() string {
	return fmt.Sprintf("msg_%x", [16]byte(uuid.New()))
}

// buildInputItems converts the request input into storable records.
func buildInputItems(responseID string, input *schema.InputField, now time.Time) []state.InputItem {
	created := now.Unix()

	if input.Text != nil {
		role := schema.RoleUser
		return []state.InputItem{{
			ID:         newItemID(),
			ResponseID: responseID,
			ItemType:   "message",
			Role:       &role,
			Content:    []schema.ContentPart{{Type: "input_text", Text: input.Text}},
			CreatedAt:  created,
			Position:   0,
		}}
	}

	items := make([]state.InputItem, 0, len(input.Items))
	for i, param := range input.Items {
		role := schema.RoleUser
		if param.Role != nil {
			// Validated upstream; parse cannot fail here.
			role, _ = schema.ParseRole(*param.Role)
		}
		items = append(items, state.InputItem{
			ID:         newItemID(),
			ResponseID: responseID,
			ItemType:   param.Type,
			Role:       &role,
			Content:    inputToContentParts(param),
			CreatedAt:  created,
			Position:   i,
		})
	}
	return items
}

// buildOutputItems converts backend choices into storable records, one item
// per choice.
func buildOutputItems(responseID string, completion *api.ChatCompletionResponse, now time.Time) []state.OutputItem {
	created := now.Unix()
	role := schema.RoleAssistant

	items := make([]state.OutputItem, 0, len(completion.Choices))
	for i, choice := range completion.Choices {
		text := choice.Message.Content
		items = append(items, state.OutputItem{
			ID:         newItemID(),
			ResponseID: responseID,
			ItemType:   "message",
			Role:       &role,
			Content:    []schema.ContentPart{{Type: "output_text", Text: &text}},
			Status:     schema.StatusCompleted,
			CreatedAt:  created,
			Position:   i,
		})
	}
	return items
}

// applyCompletion folds the backend reply into the response: output items,
// usage, and the terminal status derived from the finish reason.
func applyCompletion(resp *schema.Response, completion *api.ChatCompletionResponse, outputs []state.OutputItem) {
	for _, item := range outputs {
		resp.Output = append(resp.Output, schema.ItemField{
			Type:    item.ItemType,
			ID:      item.ID,
			Status:  item.Status,
			Role:    item.Role,
			Content: item.Content,
		})
	}

	resp.Usage = &schema.UsageField{
		InputTokens:  completion.Usage.PromptTokens,
		OutputTokens: completion.Usage.CompletionTokens,
		TotalTokens:  completion.Usage.PromptTokens + completion.Usage.CompletionTokens,
	}

	finishReason := ""
	if len(completion.Choices) > 0 {
		finishReason = completion.Choices[0].FinishReason
	}
	switch finishReason {
	case "length":
		resp.MarkIncomplete("max_output_tokens")
	case "content_filter":
		resp.MarkIncomplete("content_filter")
	default:
		resp.MarkCompleted()
	}
}

// sessionFromResponse flattens the wire response into its storage record.
func sessionFromResponse(resp *schema.Response) *state.ResponseSession {
	session := &state.ResponseSession{
		ID:                 resp.ID,
		CreatedAt:          resp.CreatedAt,
		Status:             resp.Status,
		Model:              resp.Model,
		PreviousResponseID: resp.PreviousResponseID,
		Instructions:       resp.Instructions,
		MaxOutputTokens:    resp.MaxOutputTokens,
		Temperature:        resp.Temperature,
		TopP:               resp.TopP,
		Store:              resp.Store,
		Metadata:           resp.Metadata,
		UserID:             resp.User,
		SafetyIdentifier:   resp.SafetyIdentifier,
		PromptCacheKey:     resp.PromptCacheKey,
		Error:              resp.Error,
		IncompleteDetails:  resp.IncompleteDetails,
	}
	if resp.Usage != nil {
		session.InputTokens = &resp.Usage.InputTokens
		session.OutputTokens = &resp.Usage.OutputTokens
		session.TotalTokens = &resp.Usage.TotalTokens
	}
	return session
}

// responseFromSession rebuilds the wire response from storage for GET.
func responseFromSession(session *state.ResponseSession, outputs []state.OutputItem) *schema.Response {
	resp := &schema.Response{
		ID:                 session.ID,
		Object:             "response",
		CreatedAt:          session.CreatedAt,
		Status:             session.Status,
		Model:              session.Model,
		Output:             make([]schema.ItemField, 0, len(outputs)),
		PreviousResponseID: session.PreviousResponseID,
		Instructions:       session.Instructions,
		MaxOutputTokens:    session.MaxOutputTokens,
		Temperature:        session.Temperature,
		TopP:               session.TopP,
		Store:              session.Store,
		Metadata:           session.Metadata,
		User:               session.UserID,
		SafetyIdentifier:   session.SafetyIdentifier,
		PromptCacheKey:     session.PromptCacheKey,
		Error:              session.Error,
		IncompleteDetails:  session.IncompleteDetails,
	}
	for _, item := range outputs {
		resp.Output = append(resp.Output, schema.ItemField{
			Type:    item.ItemType,
			ID:      item.ID,
			Status:  item.Status,
			Role:    item.Role,
			Content: item.Content,
		})
	}
	if session.InputTokens != nil && session.OutputTokens != nil && session.TotalTokens != nil {
		resp.Usage = &schema.UsageField{
			InputTokens:  *session.InputTokens,
			OutputTokens: *session.OutputTokens,
			TotalTokens:  *session.TotalTokens,
		}
	}
	return resp
}
