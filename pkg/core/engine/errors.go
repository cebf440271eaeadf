// Copyright Threadgate Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import "fmt"

// ValidationError reports a malformed request. Handlers map it to 400.
type ValidationError struct {
	Message string
	Param   string
}

func (e *ValidationError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("invalid request: %s (param %s)", e.Message, e.Param)
	}
	return fmt.Sprintf("invalid request: %s", e.Message)
}

// NotFoundError reports a missing session. Handlers map it to 404, except
// when the missing session is a chain predecessor discovered mid-walk, in
// which case the ID names the predecessor rather than the requested session.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("response %s not found", e.ID)
}

// CorruptChainError reports a conversation chain that cannot be walked to
// completion: either a cycle or a chain longer than the depth bound.
type CorruptChainError struct {
	ResponseID string
	Reason     string // "cycle" or "depth"
}

func (e *CorruptChainError) Error() string {
	if e.Reason == "cycle" {
		return fmt.Sprintf("conversation chain contains a cycle at %s", e.ResponseID)
	}
	return fmt.Sprintf("conversation chain exceeds %d links at %s", maxChainDepth, e.ResponseID)
}
