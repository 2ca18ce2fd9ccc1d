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


// Package storage provides the storage abstraction layer for ragline.
//
// This package defines repository interfaces that decouple storage implementation
// from business logic. The badger subpackage is the only backend; tests use the
// same backend in memory.
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - Transactor: runs a function inside one read-write transaction
//   - DocumentRepository: uploaded documents and their lifecycle status
//   - ChunkRepository: chunks, their embeddings and owner-scoped nearest-neighbor search
//   - ConversationRepository: conversations and their messages
//   - CheckpointRepository: progress markers for resumable batch jobs
//
// # Usage
//
// Open every repository over one backend:
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	repos, err := badger.OpenRepositories(backend, 768)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repos.Close()
//
// Use in tests with in-memory storage:
//
//	repos, err := badger.NewMemoryRepositories(16)
//
// # Transactions
//
// WithTransaction stores the open transaction in the context it hands to fn.
// Repository calls made with that context join the transaction, and nested
// WithTransaction calls reuse it. The transaction commits when fn returns nil
// and is discarded otherwise.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
