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
	"time"
)

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - OwnerID and Filename must not be empty
//   - FileType must not be empty
//   - Status must be one of the four lifecycle states
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if doc.OwnerID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyOwner)
	}
	if doc.Filename == "" {
		return fmt.Errorf("%w: filename cannot be empty", ErrInvalidDocument)
	}
	if doc.FileType == "" {
		return fmt.Errorf("%w: file type cannot be empty", ErrInvalidDocument)
	}
	if err := ValidateStatus(doc.Status); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return nil
}

// ValidateStatus checks that a status is one of the known lifecycle states.
func ValidateStatus(status DocumentStatus) error {
	switch status {
	case StatusUploaded, StatusProcessing, StatusProcessed, StatusError:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
}

// ValidateChunk validates a Chunk before it is persisted.
//
// NOT validated:
//   - EmbeddingID (populated after embedding)
//   - ID (assigned from sequences)
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}
	if chunk.DocumentID == 0 {
		return fmt.Errorf("%w: document id is required", ErrInvalidChunk)
	}
	if chunk.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}
	if chunk.Index < 0 {
		return fmt.Errorf("%w: negative index %d", ErrInvalidChunk, chunk.Index)
	}
	if chunk.EndChar < chunk.StartChar {
		return fmt.Errorf("%w: end %d before start %d", ErrInvalidChunk, chunk.EndChar, chunk.StartChar)
	}
	return nil
}

// ValidateMessage validates a Message according to domain rules.
//
// Validation rules:
//   - ConversationID must be set
//   - Role must be user or assistant
//   - Timestamp must not be in the future
//
// Empty content is allowed for assistant messages, which may be
// interrupted before the first token arrives.
func ValidateMessage(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("%w: message is nil", ErrInvalidMessage)
	}
	if msg.ConversationID == 0 {
		return fmt.Errorf("%w: conversation id is required", ErrInvalidMessage)
	}
	if err := ValidateRole(msg.Role); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if msg.Role == RoleUser && msg.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, ErrEmptyContent)
	}
	if !IsValidTimestamp(msg.CreatedAt) {
		return fmt.Errorf("%w: timestamp cannot be in the future", ErrInvalidMessage)
	}
	return nil
}

// ValidateRole validates that a Role has a valid value.
func ValidateRole(role Role) error {
	if role != RoleUser && role != RoleAssistant {
		return fmt.Errorf("%w: value %d", ErrInvalidRole, role)
	}
	return nil
}

// IsValidTimestamp checks if a timestamp is valid (not in the future).
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now())
}
