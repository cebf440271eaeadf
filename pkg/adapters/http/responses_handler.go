// Copyright Threadgate Authors
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"encoding/json"
	"net/http"

	"github.com/threadgate/threadgate/pkg/core/schema"
)

// handleCreateResponse handles POST /v1/responses
func (h *Handler) handleCreateResponse(w http.ResponseWriter, r *http.Request) {
	var req schema.ResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to parse request", "error", err)
		h.writeError(w, http.StatusBadRequest, "invalid_request_error", "Failed to parse request body")
		return
	}

	resp, err := h.engine.CreateResponse(r.Context(), &req)
	if err != nil {
		h.logger.Error("Failed to create response", "error", err)
		h.writeEngineError(w, err)
		return
	}

	// A backend failure still produces a response object; the failure is in
	// its status and error fields, not the HTTP code.
	h.writeJSON(w, http.StatusOK, resp)

	h.logger.Info("Response sent",
		"response_id", resp.ID,
		"status", string(resp.Status))
}

// handleGetResponse handles GET /v1/responses/{id}
func (h *Handler) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	responseID := r.PathValue("id")
	if responseID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request_error", "Response ID is required")
		return
	}

	resp, err := h.engine.GetResponse(r.Context(), responseID)
	if err != nil {
		h.logger.Error("Failed to get response", "error", err, "response_id", responseID)
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// handleDeleteResponse handles DELETE /v1/responses/{id}
func (h *Handler) handleDeleteResponse(w http.ResponseWriter, r *http.Request) {
	responseID := r.PathValue("id")
	if responseID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request_error", "Response ID is required")
		return
	}

	resp, err := h.engine.DeleteResponse(r.Context(), responseID)
	if err != nil {
		h.logger.Error("Failed to delete response", "error", err, "response_id", responseID)
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// handleListInputItems handles GET /v1/responses/{id}/input_items
func (h *Handler) handleListInputItems(w http.ResponseWriter, r *http.Request) {
	responseID := r.PathValue("id")
	if responseID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request_error", "Response ID is required")
		return
	}

	list, err := h.engine.ListInputItems(r.Context(), responseID)
	if err != nil {
		h.logger.Error("Failed to list input items", "error", err, "response_id", responseID)
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, list)
}
