// Copyright Threadgate Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Status is the lifecycle state of a response session.
//
// queued and in_progress are transient: the backend call is awaited in full
// before any row is written, so stored sessions are always terminal. The
// values are still tracked so a streaming extension can persist them.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusIncomplete Status = "incomplete"
)

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusIncomplete:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusQueued:
		return to == StatusInProgress
	case StatusInProgress:
		return to == StatusCompleted || to == StatusFailed || to == StatusIncomplete
	}
	return false
}

func (s Status) String() string { return string(s) }
