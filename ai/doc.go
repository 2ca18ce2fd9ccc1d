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

// Package ai provides abstractions for AI services used in ragline.
//
// This package defines interfaces for text embeddings and streamed answer
// generation. The core domain and business logic depend on these
// abstractions rather than on a particular client library.
//
// # Design Principles
//
// The package is designed around three key interfaces:
//
//   - Embedder: Generates vector embeddings from text
//   - Generator: Streams chat completions as a channel of fragments
//   - AIProvider: Aggregates AI services for convenient initialization
//
// Provider calls are blocking and callback driven. Pump runs such a call on
// its own goroutine and forwards fragments over a bounded channel; closing
// the channel is the only end-of-stream signal, and a provider failure
// arrives as one last fragment carrying ErrGenerationFailed.
//
// Embedders never retry. WithRetry adds exponential backoff for the callers
// that want it.
//
// # Implementation Packages
//
//   - ai/openai: langchaingo client for OpenAI-compatible APIs
//   - ai/goopenai: go-openai client, supports declared embedding dimensions
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, goopenai.NewEmbedder, etc.) return
// INTERFACE types to enforce abstraction. Test utility constructors
// (mock.NewMockEmbedder, mock.NewMockGenerator) return CONCRETE types to
// enable test assertions and behavior injection.
//
// # Usage Example
//
//	config := ai.DefaultConfig()
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "Hello world")
//	answer, err := ai.Collect(provider.Generator().Stream(ctx, messages, ai.GenerateOptions{}))
package ai
