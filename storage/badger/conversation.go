package badger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/storage"
)

// ConversationRepository implements storage.ConversationRepository for BadgerDB.
type ConversationRepository struct {
	backend *Backend
	convSeq *badger.Sequence
	msgSeq  *badger.Sequence
}

var _ storage.ConversationRepository = (*ConversationRepository)(nil)

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(backend *Backend) (*ConversationRepository, error) {
	convSeq, err := backend.GetSequence(conversationIDSeq)
	if err != nil {
		return nil, err
	}
	msgSeq, err := backend.GetSequence(messageIDSeq)
	if err != nil {
		convSeq.Release()
		return nil, err
	}
	return &ConversationRepository{
		backend: backend,
		convSeq: convSeq,
		msgSeq:  msgSeq,
	}, nil
}

// Close releases the ID sequences.
func (r *ConversationRepository) Close() error {
	return errors.Join(r.convSeq.Release(), r.msgSeq.Release())
}

// WithTransaction delegates to the backend.
func (r *ConversationRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddConversation stores a new conversation.
func (r *ConversationRepository) AddConversation(ctx context.Context, conv *core.Conversation) (*core.Conversation, error) {
	if conv.OwnerID == "" {
		return nil, core.ErrEmptyOwner
	}
	if conv.Title == "" {
		conv.Title = core.DefaultConversationTitle
	}

	err := r.backend.update(ctx, func(tx *badger.Txn) error {
		id, err := nextID(r.convSeq)
		if err != nil {
			return err
		}
		conv.ID = id
		conv.CreatedAt = time.Now().UTC()
		conv.UpdatedAt = conv.CreatedAt

		if err := putConversation(tx, conv); err != nil {
			return err
		}
		return tx.Set(makeConversationOwnerKey(conv.OwnerID, conv.ID), nil)
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation retrieves a conversation by ID.
func (r *ConversationRepository) GetConversation(ctx context.Context, id core.ID) (*core.Conversation, error) {
	var conv *core.Conversation
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		var err error
		conv, err = readConversation(tx, id)
		if err != nil {
			return err
		}
		if conv == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return conv, err
}

// UpdateConversation replaces a stored conversation and bumps UpdatedAt.
func (r *ConversationRepository) UpdateConversation(ctx context.Context, conv *core.Conversation) (*core.Conversation, error) {
	err := r.backend.update(ctx, func(tx *badger.Txn) error {
		old, err := readConversation(tx, conv.ID)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}
		conv.OwnerID = old.OwnerID
		conv.CreatedAt = old.CreatedAt
		conv.UpdatedAt = time.Now().UTC()
		return putConversation(tx, conv)
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversationsByOwner returns an owner's conversations, most recently
// updated first.
func (r *ConversationRepository) ListConversationsByOwner(ctx context.Context, ownerID string) ([]*core.Conversation, error) {
	var convs []*core.Conversation
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		for _, key := range scanKeys(tx, makeConversationOwnerPrefix(ownerID)) {
			conv, err := readConversation(tx, idSuffix(key))
			if err != nil {
				return err
			}
			if conv != nil {
				convs = append(convs, conv)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(convs, func(a, b *core.Conversation) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return convs, nil
}

// AddMessages appends messages to their conversations.
func (r *ConversationRepository) AddMessages(ctx context.Context, messages ...*core.Message) ([]*core.Message, error) {
	now := time.Now().UTC()
	for _, msg := range messages {
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		if err := core.ValidateMessage(msg); err != nil {
			return nil, err
		}
	}

	err := r.backend.update(ctx, func(tx *badger.Txn) error {
		seen := make(map[core.ID]bool)
		for _, msg := range messages {
			if !seen[msg.ConversationID] {
				conv, err := readConversation(tx, msg.ConversationID)
				if err != nil {
					return err
				}
				if conv == nil {
					return fmt.Errorf("conversation %d: %w", msg.ConversationID, storage.ErrNotFound)
				}
				seen[msg.ConversationID] = true
			}

			id, err := nextID(r.msgSeq)
			if err != nil {
				return err
			}
			msg.ID = id

			value, err := storage.MarshalMessage(msg)
			if err != nil {
				return err
			}
			key := makeMessageKey(msg.ConversationID, msg.CreatedAt, msg.ID)
			if err := tx.Set(key, value); err != nil {
				return err
			}
			if err := tx.Set(makeMessageIDKey(msg.ID), key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// GetRecentMessages returns the last n messages of a conversation, oldest first.
func (r *ConversationRepository) GetRecentMessages(ctx context.Context, conversationID core.ID, n int) ([]*core.Message, error) {
	msgs, err := r.ListMessages(ctx, conversationID, n, 0)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// ListMessages pages a conversation's messages most recent first.
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID core.ID, limit int, beforeID core.ID) ([]*core.Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	var msgs []*core.Message
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		prefix := makeMessageConvPrefix(conversationID)
		seekKey := prefixEnd(prefix)

		if beforeID != 0 {
			item, err := tx.Get(makeMessageIDKey(beforeID))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return storage.ErrNotFound
				}
				return err
			}
			if seekKey, err = item.ValueCopy(nil); err != nil {
				return err
			}
		}

		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(seekKey); iter.ValidForPrefix(prefix) && len(msgs) < limit; iter.Next() {
			if beforeID != 0 && idSuffix(iter.Item().Key()) == beforeID {
				continue
			}
			err := iter.Item().Value(func(val []byte) error {
				msg, err := storage.UnmarshalMessage(val)
				if err != nil {
					return err
				}
				msgs = append(msgs, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return msgs, err
}

// Helper functions

func readConversation(tx *badger.Txn, id core.ID) (*core.Conversation, error) {
	return getValue(tx, makeConversationKey(id), storage.UnmarshalConversation)
}

func putConversation(tx *badger.Txn, conv *core.Conversation) error {
	value, err := storage.MarshalConversation(conv)
	if err != nil {
		return err
	}
	return tx.Set(makeConversationKey(conv.ID), value)
}
