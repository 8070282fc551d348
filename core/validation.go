// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"strings"
	"time"
)

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - Content must not be blank
//   - Metadata.SourceFile must not be empty
//   - Metadata.PageNumber must be >= 1
//   - Vector must not be empty
//
// NOT validated (assigned by the store):
//   - ID
//   - CreatedAt
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if strings.TrimSpace(chunk.Content) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}

	if chunk.Metadata.SourceFile == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptySourceFile)
	}

	if chunk.Metadata.PageNumber < 1 {
		return fmt.Errorf("%w: %w: %d", ErrInvalidChunk, ErrInvalidPageNumber, chunk.Metadata.PageNumber)
	}

	if len(chunk.Vector) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyVector)
	}

	return nil
}

// ValidateJobPayload validates the payload of an ingestion job.
func ValidateJobPayload(payload JobPayload) error {
	if strings.TrimSpace(payload.FilePath) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidJob, ErrEmptyFilePath)
	}
	return nil
}

// ValidateTurn validates a conversation turn.
func ValidateTurn(turn ConversationTurn) error {
	if err := ValidateRole(turn.Role); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTurn, err)
	}
	if turn.Timestamp != nil && !IsValidTimestamp(*turn.Timestamp) {
		return fmt.Errorf("%w: %w", ErrInvalidTurn, ErrInvalidTimestamp)
	}
	return nil
}

// ValidateRole validates that a Role has a known value.
func ValidateRole(role Role) error {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidRole, role)
}

// IsValidTimestamp checks if a timestamp is valid (not in the future).
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now())
}
