// Package goopenai implements ai.AIProvider on top of the
// sashabaranov/go-openai client.
//
// Unlike the langchaingo-backed provider it can request a declared output
// dimensionality from embedding models that support it (Config.Dimensions),
// and it reads streamed completions directly from the SSE reader.
package goopenai
