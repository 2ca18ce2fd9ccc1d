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

import "errors"

// Domain validation errors
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidMessage indicates a Message failed validation.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrInvalidRole indicates a role outside the user/assistant pair.
	ErrInvalidRole = errors.New("invalid role")

	// ErrInvalidStatus indicates an unknown or disallowed document status.
	ErrInvalidStatus = errors.New("invalid document status")

	// ErrEmptyContent indicates the content field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyOwner indicates a missing owner id.
	ErrEmptyOwner = errors.New("owner cannot be empty")

	// ErrDimensionMismatch indicates two vectors of different length.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrMalformedRecord indicates an encoded record that cannot be decoded.
	ErrMalformedRecord = errors.New("malformed record")
)
