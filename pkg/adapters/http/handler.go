// Copyright Threadgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package http adapts the response engine to HTTP.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/threadgate/threadgate/pkg/core/engine"
	"github.com/threadgate/threadgate/pkg/observability/logging"
)

// Handler implements the HTTP adapter
type Handler struct {
	engine *engine.Engine
	logger *logging.Logger
	mux    *http.ServeMux
}

// New creates a new HTTP handler
func New(eng *engine.Engine, logger *logging.Logger) *Handler {
	h := &Handler{
		engine: eng,
		logger: logger.Component("http"),
		mux:    http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /health", h.handleHealth)

	// Responses API
	h.mux.HandleFunc("POST /v1/responses", h.handleCreateResponse)
	h.mux.HandleFunc("GET /v1/responses/{id}", h.handleGetResponse)
	h.mux.HandleFunc("DELETE /v1/responses/{id}", h.handleDeleteResponse)
	h.mux.HandleFunc("GET /v1/responses/{id}/input_items", h.handleListInputItems)

	return h
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Request",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)

	h.mux.ServeHTTP(w, r)
}

// handleHealth handles health check requests
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// writeJSON writes a JSON response body
func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, errType, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"type":    errType,
			"message": message,
		},
	})
}

// writeEngineError maps engine errors to HTTP status codes.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	var validationErr *engine.ValidationError
	var notFoundErr *engine.NotFoundError
	var chainErr *engine.CorruptChainError

	switch {
	case errors.As(err, &validationErr):
		h.writeError(w, http.StatusBadRequest, "invalid_request_error", validationErr.Message)
	case errors.As(err, &notFoundErr):
		h.writeError(w, http.StatusNotFound, "not_found_error", notFoundErr.Error())
	case errors.As(err, &chainErr):
		h.writeError(w, http.StatusInternalServerError, "server_error", chainErr.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}
