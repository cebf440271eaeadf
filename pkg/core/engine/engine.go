// Copyright Threadgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine implements the stateful response lifecycle on top of a
// stateless chat completion backend: request validation, conversation
// history reconstruction, protocol translation, and session persistence.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/threadgate/threadgate/pkg/core/api"
	"github.com/threadgate/threadgate/pkg/core/schema"
	"github.com/threadgate/threadgate/pkg/core/state"
	"github.com/threadgate/threadgate/pkg/observability/logging"
)

// Engine orchestrates response creation and retrieval.
type Engine struct {
	store  state.SessionStore
	client api.ChatCompletionClient
	logger *logging.Logger
}

// New creates an Engine.
func New(store state.SessionStore, client api.ChatCompletionClient, logger *logging.Logger) *Engine {
	return &Engine{
		store:  store,
		client: client,
		logger: logger.Component("engine"),
	}
}

// CreateResponse handles POST /v1/responses: validates the request, replays
// the conversation chain, calls the backend once, and persists the session
// unless storage was opted out.
//
// A backend failure still yields a response object, with status failed and a
// recorded error; only validation, chain, and cancellation problems return a
// Go error.
func (e *Engine) CreateResponse(ctx context.Context, req *schema.ResponseRequest) (*schema.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	var history []api.Message
	if req.PreviousResponseID != nil {
		var err error
		history, err = e.buildHistory(ctx, *req.PreviousResponseID)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now()
	resp := schema.NewResponse(newResponseID(), *req.Model)
	resp.CreatedAt = now.Unix()
	resp.PreviousResponseID = req.PreviousResponseID
	resp.Instructions = req.Instructions
	resp.MaxOutputTokens = req.MaxOutputTokens
	resp.Temperature = req.Temperature
	resp.TopP = req.TopP
	resp.Store = req.ShouldStore()
	resp.Metadata = req.Metadata
	resp.User = req.User
	resp.SafetyIdentifier = req.SafetyIdentifier
	resp.PromptCacheKey = req.PromptCacheKey

	inputs := buildInputItems(resp.ID, req.Input, now)

	completion, backendErr := e.client.CreateChatCompletion(ctx, buildCompletionRequest(req, history))

	if err := ctx.Err(); err != nil {
		// Caller went away; nothing is recorded for this request.
		return nil, err
	}

	var outputs []state.OutputItem
	if backendErr != nil {
		e.logger.Error("backend completion failed", "response_id", resp.ID, "error", backendErr)
		resp.MarkFailed("server_error", "backend_error", backendErr.Error())
	} else {
		outputs = buildOutputItems(resp.ID, completion, now)
		applyCompletion(resp, completion, outputs)
	}

	if resp.Store {
		if err := e.store.CreateSession(ctx, sessionFromResponse(resp), inputs, outputs); err != nil {
			if backendErr != nil {
				return nil, fmt.Errorf("persisting failed session: %w", err)
			}
			// The model already answered; losing the reply now is worse
			// than losing the session.
			e.logger.Warn("persisting response failed, returning unstored result",
				"response_id", resp.ID, "error", err)
			resp.Store = false
		}
	}

	e.logger.Info("response created",
		"response_id", resp.ID, "status", string(resp.Status), "stored", resp.Store)
	return resp, nil
}

// GetResponse handles GET /v1/responses/{id}.
func (e *Engine) GetResponse(ctx context.Context, id string) (*schema.Response, error) {
	session, err := e.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, err
	}

	outputs, err := e.store.GetOutputItems(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading output items for %s: %w", id, err)
	}
	return responseFromSession(session, outputs), nil
}

// DeleteResponse handles DELETE /v1/responses/{id}. Successors that chained
// onto the deleted session keep their pointer and fail with not-found when
// replayed.
func (e *Engine) DeleteResponse(ctx context.Context, id string) (*schema.DeleteResponseResponse, error) {
	if err := e.store.DeleteSession(ctx, id); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, err
	}

	e.logger.Info("response deleted", "response_id", id)
	return &schema.DeleteResponseResponse{
		ID:      id,
		Object:  "response.deleted",
		Deleted: true,
	}, nil
}

// ListInputItems handles GET /v1/responses/{id}/input_items. The session is
// checked first so a missing ID is a 404 rather than an empty list.
func (e *Engine) ListInputItems(ctx context.Context, id string) (*schema.ListInputItemsResponse, error) {
	if _, err := e.store.GetSession(ctx, id); err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, err
	}

	items, err := e.store.GetInputItems(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading input items for %s: %w", id, err)
	}

	list := &schema.ListInputItemsResponse{
		Object: "list",
		Data:   make([]schema.InputItemField, 0, len(items)),
	}
	for _, item := range items {
		list.Data = append(list.Data, schema.InputItemField{
			Type:      item.ItemType,
			ID:        item.ID,
			Role:      item.Role,
			Content:   item.Content,
			CreatedAt: item.CreatedAt,
		})
	}
	if len(list.Data) > 0 {
		list.FirstID = list.Data[0].ID
		list.LastID = list.Data[len(list.Data)-1].ID
	}
	return list, nil
}
