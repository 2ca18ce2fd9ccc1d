package chat

import (
	"context"

	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/storage"
)

// DefaultPageSize is used by History when limit is not positive.
const DefaultPageSize = 50

// Conversations lists the caller's conversations, most recently active first.
func (o *Orchestrator) Conversations(ctx context.Context, userID string) ([]*core.Conversation, error) {
	if userID == "" {
		return nil, ErrAnonymous
	}
	return o.conversations.ListConversationsByOwner(ctx, userID)
}

// History pages a conversation's messages most recent first. Passing the
// oldest returned id as before fetches the next page. A conversation owned
// by someone else is reported as not found.
func (o *Orchestrator) History(ctx context.Context, userID string, conversationID core.ID, limit int, before core.ID) ([]*core.Message, error) {
	if userID == "" {
		return nil, ErrAnonymous
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	conv, err := o.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.OwnerID != userID {
		return nil, storage.ErrNotFound
	}
	return o.conversations.ListMessages(ctx, conversationID, limit, before)
}
