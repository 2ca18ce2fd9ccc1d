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


// Package search retrieves the chunks most relevant to a query and renders
// them as a context block for generation.
//
// The Searcher embeds the query, retrying transient embedder failures, and
// ranks stored chunks by cosine distance. An owner filter restricts the
// candidates to one user's documents before ranking, so a user never sees
// another user's chunks even when those are closer.
//
// A failure of the vector search itself is logged and treated as an empty
// result; only a failure to embed the query is reported to the caller.
package search
