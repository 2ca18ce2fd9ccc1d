package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/storage"
)

// Defaults for Orchestrator options.
const (
	DefaultHistoryMessages = 10
	DefaultTopK            = 5
	DefaultMaxTokens       = 1000
	DefaultTemperature     = 0.7
)

// Retriever finds grounding context for a query. The boolean is false when
// nothing relevant exists. An error means retrieval itself failed.
type Retriever interface {
	RetrieveContext(ctx context.Context, query, ownerID string, k int) (string, bool, error)
}

// Orchestrator runs chat turns.
type Orchestrator struct {
	conversations   storage.ConversationRepository
	retriever       Retriever
	generator       ai.Generator
	historyMessages int
	topK            int
	maxTokens       int
	refusal         string
	buffer          int
	logger          *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// WithHistoryMessages sets how many stored messages are sent with a turn.
func WithHistoryMessages(n int) Option {
	return func(o *Orchestrator) error {
		if n < 0 {
			return fmt.Errorf("%w: history size %d", ErrInvalidRequest, n)
		}
		o.historyMessages = n
		return nil
	}
}

// WithTopK sets how many chunks are retrieved per turn.
func WithTopK(k int) Option {
	return func(o *Orchestrator) error {
		if k <= 0 {
			return fmt.Errorf("%w: top k %d", ErrInvalidRequest, k)
		}
		o.topK = k
		return nil
	}
}

// WithMaxTokens sets the reply cap used when a request leaves it unset.
func WithMaxTokens(n int) Option {
	return func(o *Orchestrator) error {
		if n <= 0 {
			return fmt.Errorf("%w: max tokens %d", ErrInvalidRequest, n)
		}
		o.maxTokens = n
		return nil
	}
}

// WithRefusalMessage replaces the reply given when retrieval finds nothing.
func WithRefusalMessage(msg string) Option {
	return func(o *Orchestrator) error {
		if strings.TrimSpace(msg) != "" {
			o.refusal = msg
		}
		return nil
	}
}

// WithEventBuffer sets the capacity of the event channel returned by Chat.
func WithEventBuffer(n int) Option {
	return func(o *Orchestrator) error {
		if n > 0 {
			o.buffer = n
		}
		return nil
	}
}

// NewOrchestrator creates a new chat orchestrator.
func NewOrchestrator(
	conversations storage.ConversationRepository,
	retriever Retriever,
	generator ai.Generator,
	opts ...Option,
) (*Orchestrator, error) {
	if conversations == nil {
		return nil, ErrConversationRepositoryRequired
	}
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	o := &Orchestrator{
		conversations:   conversations,
		retriever:       retriever,
		generator:       generator,
		historyMessages: DefaultHistoryMessages,
		topK:            DefaultTopK,
		maxTokens:       DefaultMaxTokens,
		refusal:         DefaultRefusalMessage,
		buffer:          ai.DefaultStreamBuffer,
		logger:          slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	o.logger = o.logger.With("component", "chat")
	return o, nil
}

// RefusalMessage returns the reply given when retrieval finds nothing.
func (o *Orchestrator) RefusalMessage() string {
	return o.refusal
}

// Chat runs one turn and streams its events. The channel is closed after
// the terminal event. Cancelling ctx stops token delivery; the turn is then
// stored with whatever part of the reply had arrived, marked interrupted.
func (o *Orchestrator) Chat(ctx context.Context, req Request) <-chan Event {
	out := make(chan Event, o.buffer)
	go func() {
		defer close(out)
		t := &turn{o: o, req: req, out: out, started: time.Now().UTC()}
		t.run(ctx)
	}()
	return out
}

// turn carries the state of one Chat call.
type turn struct {
	o       *Orchestrator
	req     Request
	out     chan<- Event
	started time.Time

	conversationID core.ID
	reply          strings.Builder
	grounded       bool
	interrupted    bool
}

func (t *turn) run(ctx context.Context) {
	logger := t.o.logger.With("user", t.req.UserID)

	if err := t.validate(); err != nil {
		t.fail(ctx, err)
		return
	}

	if t.req.UserID == "" {
		if err := t.respond(ctx, nil); err != nil {
			logger.Error("anonymous turn failed", "err", err)
			t.fail(ctx, err)
			return
		}
		t.finish(ctx, Event{Type: EventDone})
		return
	}

	// Writes are staged in one transaction that outlives cancellation of
	// ctx so an interrupted turn can still be finalized.
	var assistantID core.ID
	err := t.o.conversations.WithTransaction(context.WithoutCancel(ctx), func(txCtx context.Context) error {
		conv, err := t.resolveConversation(txCtx)
		if err != nil {
			return err
		}
		t.conversationID = conv.ID

		history, err := t.o.conversations.GetRecentMessages(txCtx, conv.ID, t.o.historyMessages)
		if err != nil {
			return fmt.Errorf("loading history: %w", err)
		}
		if err := t.respond(ctx, history); err != nil {
			return err
		}

		assistantID, err = t.persist(txCtx, conv)
		return err
	})
	if err != nil {
		logger.Error("chat turn failed", "conversation", t.conversationID, "err", err)
		t.fail(ctx, err)
		return
	}

	logger.Info("chat turn complete",
		"conversation", t.conversationID,
		"grounded", t.grounded,
		"interrupted", t.interrupted,
		"elapsed", time.Since(t.started))
	t.finish(ctx, Event{Type: EventDone, ConversationID: t.conversationID, MessageID: assistantID})
}

func (t *turn) validate() error {
	if strings.TrimSpace(t.req.Message) == "" {
		return ErrEmptyMessage
	}
	if t.req.Temperature < 0 || t.req.Temperature > 2 {
		return fmt.Errorf("%w: temperature %v outside [0, 2]", ErrInvalidRequest, t.req.Temperature)
	}
	if t.req.MaxTokens < 0 {
		return fmt.Errorf("%w: max tokens %d", ErrInvalidRequest, t.req.MaxTokens)
	}
	return nil
}

func (t *turn) maxTokens() int {
	if t.req.MaxTokens > 0 {
		return t.req.MaxTokens
	}
	return t.o.maxTokens
}

// resolveConversation reuses the requested conversation when the caller
// owns it and creates a new one otherwise.
func (t *turn) resolveConversation(ctx context.Context) (*core.Conversation, error) {
	if t.req.ConversationID != 0 {
		conv, err := t.o.conversations.GetConversation(ctx, t.req.ConversationID)
		switch {
		case err == nil && conv.OwnerID == t.req.UserID:
			return conv, nil
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return nil, err
		}
		t.o.logger.Debug("conversation not available, starting a new one",
			"requested", t.req.ConversationID, "user", t.req.UserID)
	}
	return t.o.conversations.AddConversation(ctx, &core.Conversation{OwnerID: t.req.UserID})
}

// respond retrieves context when asked and produces the reply, streaming it
// as token events.
func (t *turn) respond(ctx context.Context, history []*core.Message) error {
	var block string
	if t.req.UseRetrieval {
		var err error
		block, t.grounded, err = t.o.retriever.RetrieveContext(ctx, t.req.Message, t.req.UserID, t.o.topK)
		if err != nil {
			return err
		}
		if !t.grounded {
			t.o.logger.Debug("no grounding context, refusing", "conversation", t.conversationID)
			t.reply.WriteString(t.o.refusal)
			t.sendToken(ctx, t.o.refusal)
			return nil
		}
	}

	stream := t.o.generator.Stream(ctx, buildMessages(history, t.req.Message), ai.GenerateOptions{
		SystemPrompt: systemPrompt(block, t.grounded, t.o.refusal),
		Temperature:  t.req.Temperature,
		MaxTokens:    t.maxTokens(),
	})
	for frag := range stream {
		if frag.Err != nil {
			return frag.Err
		}
		if ctx.Err() != nil {
			break
		}
		t.reply.WriteString(frag.Text)
		t.sendToken(ctx, frag.Text)
	}
	if ctx.Err() != nil {
		t.interrupted = true
	}
	return nil
}

// persist stores the user message and the reply and bumps the conversation.
// It returns the id of the stored reply, zero when there was none.
func (t *turn) persist(ctx context.Context, conv *core.Conversation) (core.ID, error) {
	messages := []*core.Message{{
		ConversationID: conv.ID,
		Role:           core.RoleUser,
		Content:        t.req.Message,
		CreatedAt:      t.started,
	}}
	// An interrupted turn that produced nothing keeps only the question.
	if t.reply.Len() > 0 {
		messages = append(messages, &core.Message{
			ConversationID: conv.ID,
			Role:           core.RoleAssistant,
			Content:        t.reply.String(),
			Metadata: &core.GenerationMetadata{
				Temperature:   t.req.Temperature,
				MaxTokens:     t.maxTokens(),
				UsedRetrieval: t.req.UseRetrieval,
				Interrupted:   t.interrupted,
				Model:         t.o.generator.ModelName(),
			},
			CreatedAt: time.Now().UTC(),
		})
	}

	stored, err := t.o.conversations.AddMessages(ctx, messages...)
	if err != nil {
		return 0, fmt.Errorf("storing messages: %w", err)
	}
	if _, err := t.o.conversations.UpdateConversation(ctx, conv); err != nil {
		return 0, fmt.Errorf("updating conversation: %w", err)
	}
	if len(stored) < 2 {
		return 0, nil
	}
	return stored[len(stored)-1].ID, nil
}

// sendToken delivers a token unless the caller has gone away.
func (t *turn) sendToken(ctx context.Context, text string) {
	if ctx.Err() != nil {
		return
	}
	select {
	case t.out <- Event{Type: EventToken, Token: text, ConversationID: t.conversationID}:
	case <-ctx.Done():
	}
}

func (t *turn) fail(ctx context.Context, err error) {
	t.finish(ctx, Event{Type: EventError, Err: err})
}

// finish delivers the terminal event. After cancellation it is delivered
// only if the buffer has room.
func (t *turn) finish(ctx context.Context, ev Event) {
	if ctx.Err() != nil {
		select {
		case t.out <- ev:
		default:
		}
		return
	}
	select {
	case t.out <- ev:
	case <-ctx.Done():
	}
}
