// Copyright Threadgate Authors
// SPDX-License-Identifier: Apache-2.0

package api

import "context"

// ChatCompletionClient is the stateless single-turn completion backend.
// The gateway treats it as an opaque request/response function.
type ChatCompletionClient interface {
	CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error)
}

// ChatCompletionRequest represents a chat completion request
type ChatCompletionRequest struct {
	Model               string    `json:"model"`
	Messages            []Message `json:"messages"`
	Temperature         *float64  `json:"temperature,omitempty"`
	TopP                *float64  `json:"top_p,omitempty"`
	MaxCompletionTokens *int64    `json:"max_completion_tokens,omitempty"`
	User                *string   `json:"user,omitempty"`
	SafetyIdentifier    *string   `json:"safety_identifier,omitempty"`
	PromptCacheKey      *string   `json:"prompt_cache_key,omitempty"`
}

// Message represents a chat message
type Message struct {
	Role         string               `json:"role"`                    // "system", "user", "assistant"
	Content      string               `json:"content"`                 // Message text content
	ContentParts []MessageContentPart `json:"content_parts,omitempty"` // Multimodal parts (take precedence over Content when non-empty)
}

// MessageContentPart represents a content part in a multimodal message
type MessageContentPart struct {
	Type     string           `json:"type"`                // "text", "image_url", "file"
	Text     string           `json:"text,omitempty"`      // Text content (when Type="text")
	ImageURL *MessageImageURL `json:"image_url,omitempty"` // Image URL (when Type="image_url")
	File     *MessageFile     `json:"file,omitempty"`      // File content (when Type="file")
}

// MessageImageURL represents an image URL in a content part
type MessageImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"` // "auto", "low", "high"
}

// MessageFile represents a file in a content part
type MessageFile struct {
	FileID   string `json:"file_id,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// ChatCompletionResponse represents a chat completion response
type ChatCompletionResponse struct {
	ID      string   `json:"id"`      // Unique completion ID
	Object  string   `json:"object"`  // "chat.completion"
	Created int64    `json:"created"` // Unix timestamp
	Model   string   `json:"model"`   // Model used
	Choices []Choice `json:"choices"` // Generated completions
	Usage   Usage    `json:"usage"`   // Token usage statistics
}

// Choice represents a completion choice
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"` // "stop", "length", "content_filter"
}

// Usage represents token usage statistics
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}
