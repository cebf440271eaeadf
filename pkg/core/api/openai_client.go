// Copyright Threadgate Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIClient implements ChatCompletionClient using the official OpenAI Go SDK.
// Supports OpenAI, Ollama, vLLM, and other OpenAI-compatible backends.
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient creates a new OpenAI-compatible client. The baseURL allows
// connecting to OpenAI-compatible backends like Ollama and vLLM.
func NewOpenAIClient(baseURL, apiKey string, timeout time.Duration) *OpenAIClient {
	opts := []option.RequestOption{}

	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	} else {
		// Local backends like Ollama accept any key
		opts = append(opts, option.WithAPIKey("dummy"))
	}

	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}

	return &OpenAIClient{
		client: openai.NewClient(opts...),
	}
}

// convertMessages converts our Message types to OpenAI SDK message params
func convertMessages(messages []Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			result = append(result, openai.SystemMessage(msg.Content))
		case "user":
			if len(msg.ContentParts) > 0 {
				parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.ContentParts))
				for _, cp := range msg.ContentParts {
					switch cp.Type {
					case "text":
						parts = append(parts, openai.TextContentPart(cp.Text))
					case "image_url":
						if cp.ImageURL != nil {
							imgParam := openai.ChatCompletionContentPartImageImageURLParam{
								URL: cp.ImageURL.URL,
							}
							if cp.ImageURL.Detail != "" {
								imgParam.Detail = cp.ImageURL.Detail
							}
							parts = append(parts, openai.ImageContentPart(imgParam))
						}
					case "file":
						if cp.File != nil {
							fileParam := openai.ChatCompletionContentPartFileFileParam{}
							if cp.File.FileID != "" {
								fileParam.FileID = openai.String(cp.File.FileID)
							}
							if cp.File.Filename != "" {
								fileParam.Filename = openai.String(cp.File.Filename)
							}
							parts = append(parts, openai.FileContentPart(fileParam))
						}
					}
				}
				result = append(result, openai.UserMessage(parts))
			} else {
				result = append(result, openai.UserMessage(msg.Content))
			}
		case "assistant":
			result = append(result, openai.AssistantMessage(msg.Content))
		default:
			return nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}
	return result, nil
}

// buildParams constructs SDK params from our ChatCompletionRequest
func buildParams(req *ChatCompletionRequest, messages []openai.ChatCompletionMessageParamUnion) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}

	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if req.MaxCompletionTokens != nil {
		params.MaxCompletionTokens = openai.Int(*req.MaxCompletionTokens)
	}
	if req.User != nil {
		params.User = openai.String(*req.User)
	}
	if req.SafetyIdentifier != nil {
		params.SafetyIdentifier = openai.String(*req.SafetyIdentifier)
	}
	if req.PromptCacheKey != nil {
		params.PromptCacheKey = openai.String(*req.PromptCacheKey)
	}

	return params
}

// CreateChatCompletion implements ChatCompletionClient
func (c *OpenAIClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	completion, err := c.client.Chat.Completions.New(ctx, buildParams(req, messages))
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	resp := &ChatCompletionResponse{
		ID:      completion.ID,
		Object:  "chat.completion",
		Created: completion.Created,
		Model:   completion.Model,
		Usage: Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
		},
	}

	for _, choice := range completion.Choices {
		resp.Choices = append(resp.Choices, Choice{
			Index: int(choice.Index),
			Message: Message{
				Role:    string(choice.Message.Role),
				Content: choice.Message.Content,
			},
			FinishReason: string(choice.FinishReason),
		})
	}

	return resp, nil
}
