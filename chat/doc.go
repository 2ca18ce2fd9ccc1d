// Package chat runs conversational turns: it resolves the conversation,
// optionally retrieves grounding context, streams the model's reply as
// events and persists the turn.
//
// A turn is one unit of work. The user message, the assistant reply and
// the conversation's bookkeeping commit together or not at all, so stored
// history never holds a question without its answer. Callers without an
// identity get retrieval and generation but nothing is stored for them.
//
// When retrieval is requested and finds nothing, the reply is a fixed
// refusal and the model is not consulted.
package chat
