package chat

import "errors"

var (
	// ErrConversationRepositoryRequired is returned when a conversation repository is not provided.
	ErrConversationRepositoryRequired = errors.New("conversation repository required")

	// ErrRetrieverRequired is returned when a retriever is not provided.
	ErrRetrieverRequired = errors.New("retriever required")

	// ErrGeneratorRequired is returned when a generator is not provided.
	ErrGeneratorRequired = errors.New("generator required")

	// ErrEmptyMessage is returned for a turn without any text.
	ErrEmptyMessage = errors.New("message cannot be empty")

	// ErrInvalidRequest is returned for out-of-range generation settings.
	ErrInvalidRequest = errors.New("invalid chat request")

	// ErrAnonymous is returned when history is requested without an identity.
	ErrAnonymous = errors.New("anonymous callers have no history")
)
