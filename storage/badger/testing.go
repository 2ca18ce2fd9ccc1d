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


package badger

import "errors"

// Repositories groups the BadgerDB repositories sharing one backend.
type Repositories struct {
	Backend       *Backend
	Documents     *DocumentRepository
	Chunks        *ChunkRepository
	Conversations *ConversationRepository
	Checkpoints   *CheckpointRepository
}

// OpenRepositories creates every repository on top of backend.
// dimensions is the vector dimension enforced by the chunk repository
// (0 disables the check).
func OpenRepositories(backend *Backend, dimensions int) (*Repositories, error) {
	docs, err := NewDocumentRepository(backend)
	if err != nil {
		return nil, err
	}
	chunks, err := NewChunkRepository(backend, dimensions)
	if err != nil {
		docs.Close()
		return nil, err
	}
	convs, err := NewConversationRepository(backend)
	if err != nil {
		chunks.Close()
		docs.Close()
		return nil, err
	}
	return &Repositories{
		Backend:       backend,
		Documents:     docs,
		Chunks:        chunks,
		Conversations: convs,
		Checkpoints:   NewCheckpointRepository(backend),
	}, nil
}

// Close releases every repository, then the backend.
func (r *Repositories) Close() error {
	return errors.Join(
		r.Conversations.Close(),
		r.Chunks.Close(),
		r.Documents.Close(),
		r.Backend.Close(),
	)
}

// NewMemoryRepositories creates in-memory repositories for testing.
// Caller must Close the result when done.
func NewMemoryRepositories(dimensions int, opts ...BackendOption) (*Repositories, error) {
	backend, err := OpenBackend("", true, opts...)
	if err != nil {
		return nil, err
	}
	repos, err := OpenRepositories(backend, dimensions)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return repos, nil
}
