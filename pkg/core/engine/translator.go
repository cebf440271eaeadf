// Copyright Threadgate Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"github.com/threadgate/threadgate/pkg/core/api"
	"github.com/threadgate/threadgate/pkg/core/schema"
)

// buildCompletionRequest assembles the stateless backend call: reconstructed
// history, then this turn's system message, then this turn's input. Absent
// sampling parameters stay absent so the backend applies its own defaults.
func buildCompletionRequest(req *schema.ResponseRequest, history []api.Message) *api.ChatCompletionRequest {
	messages := make([]api.Message, 0, len(history)+2)
	messages = append(messages, history...)

	if req.Instructions != nil && *req.Instructions != "" {
		messages = append(messages, api.Message{Role: "system", Content: *req.Instructions})
	}
	messages = append(messages, inputToMessages(req.Input)...)

	return &api.ChatCompletionRequest{
		Model:               *req.Model,
		Messages:            messages,
		Temperature:         req.Temperature,
		TopP:                req.TopP,
		MaxCompletionTokens: req.MaxOutputTokens,
		User:                req.User,
		SafetyIdentifier:    req.SafetyIdentifier,
		PromptCacheKey:      req.PromptCacheKey,
	}
}

// inputToMessages converts the request input into chat messages. String input
// becomes a single user message. Item input groups consecutive items sharing
// a role into one message so an image and its caption travel together.
func inputToMessages(input *schema.InputField) []api.Message {
	if input.Text != nil {
		return []api.Message{{Role: "user", Content: *input.Text}}
	}

	var messages []api.Message
	var current *api.Message
	currentRole := ""

	for _, item := range input.Items {
		role := "user"
		if item.Role != nil {
			role = *item.Role
		}
		if current == nil || role != currentRole {
			messages = append(messages, api.Message{Role: role})
			current = &messages[len(messages)-1]
			currentRole = role
		}
		current.ContentParts = append(current.ContentParts, inputItemToMessagePart(item))
	}

	// A lone text part collapses back to plain content.
	for i := range messages {
		m := &messages[i]
		if len(m.ContentParts) == 1 && m.ContentParts[0].Type == "text" {
			m.Content = m.ContentParts[0].Text
			m.ContentParts = nil
		}
	}
	return messages
}

func inputItemToMessagePart(item schema.InputItemParam) api.MessageContentPart {
	switch item.Type {
	case "image":
		detail := ""
		if item.Detail != nil {
			detail = *item.Detail
		}
		return api.MessageContentPart{
			Type:     "image_url",
			ImageURL: &api.MessageImageURL{URL: item.ImageURL.URL, Detail: detail},
		}
	case "file":
		return api.MessageContentPart{
			Type: "file",
			File: &api.MessageFile{FileID: *item.FileID},
		}
	default:
		text := ""
		if item.Text != nil {
			text = *item.Text
		}
		return api.MessageContentPart{Type: "text", Text: text}
	}
}

// inputToContentParts converts the request input into the typed storage form.
func inputToContentParts(item schema.InputItemParam) []schema.ContentPart {
	switch item.Type {
	case "image":
		return []schema.ContentPart{{
			Type:     "input_image",
			ImageURL: item.ImageURL,
			Detail:   item.Detail,
		}}
	case "file":
		return []schema.ContentPart{{
			Type:    "input_file",
			FileID:  item.FileID,
			Purpose: item.Purpose,
		}}
	default:
		return []schema.ContentPart{{
			Type: "input_text",
			Text: item.Text,
		}}
	}
}
