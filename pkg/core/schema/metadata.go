// Copyright Threadgate Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"sort"
)

// Metadata bounds, matching the Responses API contract.
const (
	MetadataMaxEntries  = 16
	MetadataMaxKeyLen   = 64
	MetadataMaxValueLen = 512
)

// MetadataError reports the first metadata entry that violates a bound.
type MetadataError struct {
	Reason string // "too_many_entries", "key_too_long", "value_too_long"
	Key    string // offending key ("" for too_many_entries)
	Length int    // offending length
}

func (e *MetadataError) Error() string {
	switch e.Reason {
	case "too_many_entries":
		return fmt.Sprintf("metadata cannot have more than %d entries (got %d)", MetadataMaxEntries, e.Length)
	case "key_too_long":
		return fmt.Sprintf("metadata key %q too long: %d characters (max %d)", e.Key, e.Length, MetadataMaxKeyLen)
	case "value_too_long":
		return fmt.Sprintf("metadata value for key %q too long: %d characters (max %d)", e.Key, e.Length, MetadataMaxValueLen)
	}
	return "invalid metadata"
}

// ValidateMetadata checks the bounded key/value mapping before anything is
// written or sent to the backend. Keys are checked in sorted order so the
// reported entry is deterministic; Go maps have no insertion order to honor.
func ValidateMetadata(metadata map[string]string) error {
	if metadata == nil {
		return nil
	}
	if len(metadata) > MetadataMaxEntries {
		return &MetadataError{Reason: "too_many_entries", Length: len(metadata)}
	}

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if len(k) > MetadataMaxKeyLen {
			return &MetadataError{Reason: "key_too_long", Key: k, Length: len(k)}
		}
		if v := metadata[k]; len(v) > MetadataMaxValueLen {
			return &MetadataError{Reason: "value_too_long", Key: k, Length: len(v)}
		}
	}
	return nil
}
