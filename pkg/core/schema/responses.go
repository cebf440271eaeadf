// Copyright Threadgate Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// ResponseRequest represents a request to the /v1/responses endpoint.
type ResponseRequest struct {
	// Model ID forwarded to the stateless backend
	Model *string `json:"model,omitempty"`

	// Input is the new turn's content: a string or an array of input items
	Input *InputField `json:"input,omitempty"`

	// Instructions become this turn's leading system message. They are not
	// merged into ancestor instructions when previous_response_id is set.
	Instructions *string `json:"instructions,omitempty"`

	// Previous response ID for multi-turn conversations
	PreviousResponseID *string `json:"previous_response_id,omitempty"`

	// Sampling parameters; absent values are omitted, not defaulted
	MaxOutputTokens *int64   `json:"max_output_tokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"top_p,omitempty"`

	// Metadata key-value pairs (max 16 entries, 64-char keys, 512-char values)
	Metadata map[string]string `json:"metadata,omitempty"`

	// Whether the session should survive after being returned
	Store *bool `json:"store,omitempty"`

	// Caller attribution
	User             *string `json:"user,omitempty"`
	SafetyIdentifier *string `json:"safety_identifier,omitempty"`
	PromptCacheKey   *string `json:"prompt_cache_key,omitempty"`
}

// Validate checks the request shape before any storage read or backend call.
func (r *ResponseRequest) Validate() error {
	if r.Model == nil || *r.Model == "" {
		return fmt.Errorf("model is required")
	}
	if r.Input == nil || (r.Input.Text == nil && len(r.Input.Items) == 0) {
		return fmt.Errorf("input is required")
	}
	for i := range r.Input.Items {
		if err := r.Input.Items[i].validate(); err != nil {
			return err
		}
	}
	return ValidateMetadata(r.Metadata)
}

// ShouldStore reports whether the session must be persisted (default true).
func (r *ResponseRequest) ShouldStore() bool {
	return r.Store == nil || *r.Store
}

// InputField holds the polymorphic input payload: either a bare text string
// or an array of typed items.
type InputField struct {
	Text  *string
	Items []InputItemParam
}

// UnmarshalJSON accepts both input shapes the API permits.
func (f *InputField) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		f.Text = &text
		return nil
	}
	var items []InputItemParam
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("input must be a string or an array of items")
	}
	f.Items = items
	return nil
}

// MarshalJSON renders whichever shape the field carries.
func (f InputField) MarshalJSON() ([]byte, error) {
	if f.Text != nil {
		return json.Marshal(*f.Text)
	}
	return json.Marshal(f.Items)
}

// InputItemParam is one typed unit of user-supplied input.
type InputItemParam struct {
	Type string  `json:"type"` // "message", "image", "file"
	Role *string `json:"role,omitempty"`

	// Message content
	Text *string `json:"text,omitempty"`

	// Image content
	ImageURL *ImageURL `json:"image_url,omitempty"`
	Detail   *string   `json:"detail,omitempty"`

	// File content
	FileID  *string `json:"file_id,omitempty"`
	Purpose *string `json:"purpose,omitempty"`
}

func (p *InputItemParam) validate() error {
	switch p.Type {
	case "message":
		if p.Text == nil {
			return fmt.Errorf("message input item requires text")
		}
	case "image":
		if p.ImageURL == nil {
			return fmt.Errorf("image input item requires image_url")
		}
	case "file":
		if p.FileID == nil {
			return fmt.Errorf("file input item requires file_id")
		}
	default:
		return fmt.Errorf("unsupported input item type %q", p.Type)
	}
	if p.Role != nil {
		if _, err := ParseRole(*p.Role); err != nil {
			return err
		}
	}
	return nil
}

// ImageURL represents an image reference in an input item.
type ImageURL struct {
	URL string `json:"url"`
}

// ContentPart is one part of an item's polymorphic content. It is the typed
// in-memory form; serialization to a blob happens only at the storage edge.
type ContentPart struct {
	Type string `json:"type"` // "input_text", "output_text", "input_image", "input_file"

	Text *string `json:"text,omitempty"`

	ImageURL *ImageURL `json:"image_url,omitempty"`
	Detail   *string   `json:"detail,omitempty"`

	FileID  *string `json:"file_id,omitempty"`
	Purpose *string `json:"purpose,omitempty"`
}

// Response is the wire rendering of a response session.
type Response struct {
	ID        string `json:"id"`
	Object    string `json:"object"` // always "response"
	CreatedAt int64  `json:"created_at"`
	Status    Status `json:"status"`
	Model     string `json:"model"`

	Output []ItemField `json:"output"`

	Usage             *UsageField             `json:"usage"`
	Error             *ErrorField             `json:"error"`
	IncompleteDetails *IncompleteDetailsField `json:"incomplete_details"`

	// Request parameters echoed back
	PreviousResponseID *string           `json:"previous_response_id"`
	Instructions       *string           `json:"instructions"`
	MaxOutputTokens    *int64            `json:"max_output_tokens"`
	Temperature        *float64          `json:"temperature"`
	TopP               *float64          `json:"top_p"`
	Store              bool              `json:"store"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	User               *string           `json:"user,omitempty"`
	SafetyIdentifier   *string           `json:"safety_identifier,omitempty"`
	PromptCacheKey     *string           `json:"prompt_cache_key,omitempty"`
}

// ItemField is the wire rendering of one output item.
type ItemField struct {
	Type    string        `json:"type"` // "message"
	ID      string        `json:"id"`
	Status  Status        `json:"status"`
	Role    *Role         `json:"role,omitempty"`
	Content []ContentPart `json:"content"`
}

// InputItemField is the wire rendering of one stored input item.
type InputItemField struct {
	Type      string        `json:"type"`
	ID        string        `json:"id"`
	Role      *Role         `json:"role,omitempty"`
	Content   []ContentPart `json:"content"`
	CreatedAt int64         `json:"created_at"`
}

// UsageField reports token accounting from the backend.
type UsageField struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// ErrorField carries a structured failure recorded on the session.
type ErrorField struct {
	Type    string  `json:"type"`
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Param   *string `json:"param,omitempty"`
}

// IncompleteDetailsField explains a truncated reply.
type IncompleteDetailsField struct {
	Reason string `json:"reason"` // "max_output_tokens", "content_filter"
}

// DeleteResponseResponse confirms a deletion.
type DeleteResponseResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"` // "response.deleted"
	Deleted bool   `json:"deleted"`
}

// ListInputItemsResponse is the envelope for GET /v1/responses/{id}/input_items.
type ListInputItemsResponse struct {
	Object  string           `json:"object"` // "list"
	Data    []InputItemField `json:"data"`
	FirstID string           `json:"first_id,omitempty"`
	LastID  string           `json:"last_id,omitempty"`
	HasMore bool             `json:"has_more"`
}

// NewResponse creates an in-progress Response shell.
func NewResponse(id, model string) *Response {
	return &Response{
		ID:        id,
		Object:    "response",
		CreatedAt: time.Now().Unix(),
		Status:    StatusInProgress,
		Model:     model,
		Output:    make([]ItemField, 0),
		Store:     true,
	}
}

// MarkCompleted transitions the response to completed.
func (r *Response) MarkCompleted() {
	if CanTransition(r.Status, StatusCompleted) {
		r.Status = StatusCompleted
	}
}

// MarkFailed transitions the response to failed and records the error.
func (r *Response) MarkFailed(errType, code, message string) {
	if !CanTransition(r.Status, StatusFailed) {
		return
	}
	r.Status = StatusFailed
	r.Error = &ErrorField{Type: errType, Code: code, Message: message}
}

// MarkIncomplete transitions the response to incomplete with a reason.
func (r *Response) MarkIncomplete(reason string) {
	if !CanTransition(r.Status, StatusIncomplete) {
		return
	}
	r.Status = StatusIncomplete
	r.IncompleteDetails = &IncompleteDetailsField{Reason: reason}
}
