// Copyright Threadgate Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"fmt"
	"time"
)

// MockChatCompletionClient is a mock implementation for testing.
// It generates predictable responses based on the input.
type MockChatCompletionClient struct {
	// Err, when set, is returned from every call.
	Err error
	// FinishReason overrides the default "stop" finish reason.
	FinishReason string
	// Usage overrides the estimated token counts when non-zero.
	Usage Usage
	// LastRequest captures the most recent request for assertions.
	LastRequest *ChatCompletionRequest
}

// NewMockChatCompletionClient creates a new mock client
func NewMockChatCompletionClient() *MockChatCompletionClient {
	return &MockChatCompletionClient{}
}

// CreateChatCompletion implements ChatCompletionClient
func (m *MockChatCompletionClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	m.LastRequest = req

	if m.Err != nil {
		return nil, m.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Echo the last user message so tests can assert on content flow
	userMessage := ""
	for _, msg := range req.Messages {
		if msg.Role == "user" {
			userMessage = msg.Content
		}
	}

	mockContent := fmt.Sprintf("Mock response to: %s", userMessage)

	finishReason := m.FinishReason
	if finishReason == "" {
		finishReason = "stop"
	}

	usage := m.Usage
	if usage.TotalTokens == 0 {
		usage = Usage{
			PromptTokens:     estimateTokens(userMessage),
			CompletionTokens: estimateTokens(mockContent),
			TotalTokens:      estimateTokens(userMessage) + estimateTokens(mockContent),
		}
	}

	return &ChatCompletionResponse{
		ID:      fmt.Sprintf("chatcmpl-mock-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []Choice{
			{
				Index: 0,
				Message: Message{
					Role:    "assistant",
					Content: mockContent,
				},
				FinishReason: finishReason,
			},
		},
		Usage: usage,
	}, nil
}

// estimateTokens provides a rough token count estimate,
// using ~4 characters per token as a simple heuristic.
func estimateTokens(text string) int64 {
	if text == "" {
		return 0
	}
	return int64(len(text) / 4)
}
