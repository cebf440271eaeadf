// Copyright Threadgate Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusQueued, StatusInProgress, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusIncomplete, true},
		{StatusQueued, StatusCompleted, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusCompleted, false},
		{StatusIncomplete, StatusInProgress, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusIncomplete}
	all := []Status{StatusQueued, StatusInProgress, StatusCompleted, StatusFailed, StatusIncomplete}

	for _, from := range terminal {
		if !from.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", from)
		}
		for _, to := range all {
			if CanTransition(from, to) {
				t.Errorf("CanTransition(%s, %s) = true, want false", from, to)
			}
		}
	}
}

func TestResponseStatusMarks(t *testing.T) {
	resp := NewResponse("resp_test", "gpt-test")
	if resp.Status != StatusInProgress {
		t.Fatalf("new response status = %s, want %s", resp.Status, StatusInProgress)
	}

	resp.MarkIncomplete("max_output_tokens")
	if resp.Status != StatusIncomplete {
		t.Fatalf("status = %s, want %s", resp.Status, StatusIncomplete)
	}
	if resp.IncompleteDetails == nil || resp.IncompleteDetails.Reason != "max_output_tokens" {
		t.Fatalf("incomplete details = %+v, want reason max_output_tokens", resp.IncompleteDetails)
	}

	// Terminal status must not move again.
	resp.MarkCompleted()
	if resp.Status != StatusIncomplete {
		t.Errorf("status after MarkCompleted = %s, want %s", resp.Status, StatusIncomplete)
	}
	resp.MarkFailed("server_error", "backend_error", "boom")
	if resp.Status != StatusIncomplete {
		t.Errorf("status after MarkFailed = %s, want %s", resp.Status, StatusIncomplete)
	}
	if resp.Error != nil {
		t.Errorf("error recorded on refused transition: %+v", resp.Error)
	}
}
