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

package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/ragline/core"
)

// serializer is the shape of the record serializers in core.
type serializer[T any] interface {
	Marshal(v T, bs []byte) int
	Unmarshal(bs []byte) (T, int, error)
	Size(v T) int
}

// MarshalID serializes an ID to bytes. IDs are fixed-width big endian so
// that keys built from them sort numerically.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("%w: id needs 8 bytes, got %d", ErrSerializationFailed, len(data))
	}
	return core.ID(binary.BigEndian.Uint64(data)), nil
}

func marshal[T any](ser serializer[T], v *T) []byte {
	buf := make([]byte, ser.Size(*v))
	ser.Marshal(*v, buf)
	return buf
}

func unmarshal[T any](ser serializer[T], data []byte) (*T, error) {
	v, n, err := ser.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}
	return &v, nil
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) ([]byte, error) {
	return marshal[core.Document](core.DocumentMUS, doc), nil
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	return unmarshal[core.Document](core.DocumentMUS, data)
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(chunk *core.Chunk) ([]byte, error) {
	return marshal[core.Chunk](core.ChunkMUS, chunk), nil
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	return unmarshal[core.Chunk](core.ChunkMUS, data)
}

// MarshalEmbedding serializes an Embedding to bytes.
// Vector components are stored as raw float32, four bytes each.
func MarshalEmbedding(emb *core.Embedding) ([]byte, error) {
	return marshal[core.Embedding](core.EmbeddingMUS, emb), nil
}

// UnmarshalEmbedding deserializes an Embedding from bytes.
func UnmarshalEmbedding(data []byte) (*core.Embedding, error) {
	return unmarshal[core.Embedding](core.EmbeddingMUS, data)
}

// MarshalConversation serializes a Conversation to bytes.
func MarshalConversation(conv *core.Conversation) ([]byte, error) {
	return marshal[core.Conversation](core.ConversationMUS, conv), nil
}

// UnmarshalConversation deserializes a Conversation from bytes.
func UnmarshalConversation(data []byte) (*core.Conversation, error) {
	return unmarshal[core.Conversation](core.ConversationMUS, data)
}

// MarshalMessage serializes a Message to bytes.
// Messages with a role other than user or assistant are rejected.
func MarshalMessage(msg *core.Message) ([]byte, error) {
	if err := core.ValidateRole(msg.Role); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return marshal[core.Message](core.MessageMUS, msg), nil
}

// UnmarshalMessage deserializes a Message from bytes.
// Messages with a role other than user or assistant are rejected.
func UnmarshalMessage(data []byte) (*core.Message, error) {
	return unmarshal[core.Message](core.MessageMUS, data)
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *core.Checkpoint) ([]byte, error) {
	return marshal[core.Checkpoint](core.CheckpointMUS, checkpoint), nil
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	return unmarshal[core.Checkpoint](core.CheckpointMUS, data)
}
