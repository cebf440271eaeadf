// Copyright Threadgate Authors
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/threadgate/threadgate/pkg/core/api"
	"github.com/threadgate/threadgate/pkg/core/engine"
	"github.com/threadgate/threadgate/pkg/core/schema"
	"github.com/threadgate/threadgate/pkg/observability/logging"
	"github.com/threadgate/threadgate/pkg/storage/memory"
)

func newTestHandler() *Handler {
	store := memory.New()
	client := api.NewMockChatCompletionClient()
	logger := logging.New(logging.Config{Level: "error", Output: io.Discard})
	return New(engine.New(store, client, logger), logger)
}

func doJSON(t *testing.T, h *Handler, method, path string, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("response body is not JSON: %v\n%s", err, rec.Body.String())
	}
	return rec, decoded
}

func createResponse(t *testing.T, h *Handler, body string) string {
	t.Helper()
	rec, decoded := doJSON(t, h, http.MethodPost, "/v1/responses", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /v1/responses = %d: %s", rec.Code, rec.Body.String())
	}
	id, _ := decoded["id"].(string)
	if id == "" {
		t.Fatalf("no id in response: %v", decoded)
	}
	return id
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHandler()
	rec, decoded := doJSON(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", rec.Code)
	}
	if decoded["status"] != "healthy" {
		t.Errorf("body = %v", decoded)
	}
}

func TestCreateResponseEndpoint(t *testing.T) {
	h := newTestHandler()

	rec, decoded := doJSON(t, h, http.MethodPost, "/v1/responses",
		`{"model":"gpt-test","input":"Hello","metadata":{"env":"test"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q", ct)
	}
	if decoded["object"] != "response" {
		t.Errorf("object = %v", decoded["object"])
	}
	if decoded["status"] != "completed" {
		t.Errorf("status = %v", decoded["status"])
	}
	id, _ := decoded["id"].(string)
	if !strings.HasPrefix(id, "resp_") {
		t.Errorf("id = %q", id)
	}
	output, _ := decoded["output"].([]interface{})
	if len(output) != 1 {
		t.Errorf("output = %v", decoded["output"])
	}
	metadata, _ := decoded["metadata"].(map[string]interface{})
	if metadata["env"] != "test" {
		t.Errorf("metadata = %v", decoded["metadata"])
	}
}

func TestCreateResponseEndpointErrors(t *testing.T) {
	h := newTestHandler()

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantType string
	}{
		{
			name:     "malformed JSON",
			body:     `{"model":`,
			wantCode: http.StatusBadRequest,
			wantType: "invalid_request_error",
		},
		{
			name:     "missing model",
			body:     `{"input":"Hello"}`,
			wantCode: http.StatusBadRequest,
			wantType: "invalid_request_error",
		},
		{
			name:     "unknown previous response",
			body:     `{"model":"gpt-test","input":"Hello","previous_response_id":"resp_ghost"}`,
			wantCode: http.StatusNotFound,
			wantType: "not_found_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, decoded := doJSON(t, h, http.MethodPost, "/v1/responses", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			errBody, _ := decoded["error"].(map[string]interface{})
			if errBody["type"] != tt.wantType {
				t.Errorf("error type = %v, want %s", errBody["type"], tt.wantType)
			}
		})
	}
}

func TestCreateResponseEndpointBackendFailure(t *testing.T) {
	store := memory.New()
	client := api.NewMockChatCompletionClient()
	client.Err = io.ErrUnexpectedEOF
	logger := logging.New(logging.Config{Level: "error", Output: io.Discard})
	h := New(engine.New(store, client, logger), logger)

	// Backend failures surface in the response object, not the HTTP code.
	rec, decoded := doJSON(t, h, http.MethodPost, "/v1/responses", `{"model":"gpt-test","input":"Hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if decoded["status"] != "failed" {
		t.Errorf("response status = %v, want failed", decoded["status"])
	}
	errField, _ := decoded["error"].(map[string]interface{})
	if errField["code"] != "backend_error" {
		t.Errorf("error = %v", decoded["error"])
	}
}

func TestGetResponseEndpoint(t *testing.T) {
	h := newTestHandler()
	id := createResponse(t, h, `{"model":"gpt-test","input":"Hello"}`)

	rec, decoded := doJSON(t, h, http.MethodGet, "/v1/responses/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if decoded["id"] != id {
		t.Errorf("id = %v, want %s", decoded["id"], id)
	}

	rec, _ = doJSON(t, h, http.MethodGet, "/v1/responses/resp_ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing id status = %d, want 404", rec.Code)
	}
}

func TestDeleteResponseEndpoint(t *testing.T) {
	h := newTestHandler()
	id := createResponse(t, h, `{"model":"gpt-test","input":"Hello"}`)

	rec, decoded := doJSON(t, h, http.MethodDelete, "/v1/responses/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if decoded["object"] != "response.deleted" || decoded["deleted"] != true {
		t.Errorf("body = %v", decoded)
	}

	rec, _ = doJSON(t, h, http.MethodDelete, "/v1/responses/"+id, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestListInputItemsEndpoint(t *testing.T) {
	h := newTestHandler()
	id := createResponse(t, h, `{"model":"gpt-test","input":"Hello"}`)

	rec, decoded := doJSON(t, h, http.MethodGet, "/v1/responses/"+id+"/input_items", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if decoded["object"] != "list" {
		t.Errorf("object = %v", decoded["object"])
	}
	data, _ := decoded["data"].([]interface{})
	if len(data) != 1 {
		t.Fatalf("data = %v", decoded["data"])
	}
	item, _ := data[0].(map[string]interface{})
	if decoded["first_id"] != item["id"] || decoded["last_id"] != item["id"] {
		t.Errorf("first/last = %v/%v, want %v", decoded["first_id"], decoded["last_id"], item["id"])
	}
	if decoded["has_more"] != false {
		t.Errorf("has_more = %v", decoded["has_more"])
	}

	rec, _ = doJSON(t, h, http.MethodGet, "/v1/responses/resp_ghost/input_items", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing id status = %d, want 404", rec.Code)
	}
}

// Multi-turn conversation exercised end to end over HTTP.
func TestConversationOverHTTP(t *testing.T) {
	h := newTestHandler()

	first := createResponse(t, h, `{"model":"gpt-test","input":"Hello"}`)
	body, _ := json.Marshal(schema.ResponseRequest{
		Model:              stringPtr("gpt-test"),
		Input:              &schema.InputField{Text: stringPtr("And again")},
		PreviousResponseID: &first,
	})
	second := createResponse(t, h, string(body))

	rec, decoded := doJSON(t, h, http.MethodGet, "/v1/responses/"+second, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if decoded["previous_response_id"] != first {
		t.Errorf("previous_response_id = %v, want %s", decoded["previous_response_id"], first)
	}
}

func stringPtr(s string) *string { return &s }
