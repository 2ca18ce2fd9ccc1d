// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.Generator,
// and ai.AIProvider for use in unit tests. The mocks allow tests to run without
// external AI service dependencies and enable controlled, deterministic behavior.
//
// # Usage in Tests
//
//	// Deterministic vectors, with one text failing
//	embedder := mock.NewMockEmbedderWithDimensions(8).FailOn("bad chunk")
//
//	// Scripted streaming answer
//	generator := mock.NewMockGenerator("Hello", ", world")
//	generator.Err = errors.New("provider went away")
//
//	// Check call counts
//	count := embedder.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: Returns deterministic unit vectors based on text hash
//   - MockGenerator: Replays its tokens through ai.Pump
//   - MockProvider: Aggregates mock embedder and generator
package mock
