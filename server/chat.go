package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/poiesic/ragline/chat"
	"github.com/poiesic/ragline/core"
)

type chatRequest struct {
	Message        string   `json:"message"`
	ConversationID core.ID  `json:"conversation_id"`
	UseRAG         *bool    `json:"use_rag"`
	Temperature    *float64 `json:"temperature"`
	MaxTokens      int      `json:"max_tokens"`
}

func (r chatRequest) toChat(userID string, defaultTemperature float64) chat.Request {
	req := chat.Request{
		UserID:         userID,
		ConversationID: r.ConversationID,
		Message:        r.Message,
		UseRetrieval:   true,
		Temperature:    defaultTemperature,
		MaxTokens:      r.MaxTokens,
	}
	if r.UseRAG != nil {
		req.UseRetrieval = *r.UseRAG
	}
	if r.Temperature != nil {
		req.Temperature = *r.Temperature
	}
	return req
}

// streamChat runs one chat turn and relays its events as server-sent
// events. A turn that fails before producing anything is answered with a
// plain JSON error instead of a stream.
func (s *Server) streamChat(c echo.Context) error {
	var body chatRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
	}

	events := s.engine.Chat().Chat(c.Request().Context(), body.toChat(userID(c), s.chat.Temperature))

	first, ok := <-events
	if !ok {
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "chat ended without a result"})
	}
	if first.Type == chat.EventError {
		return errorJSON(c, first.Err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)

	if err := writeEvent(res, first); err != nil {
		drain(events)
		return nil
	}
	for ev := range events {
		if err := writeEvent(res, ev); err != nil {
			s.logger.Debug("client went away", "err", err)
			drain(events)
			return nil
		}
	}
	return nil
}

func writeEvent(res *echo.Response, ev chat.Event) error {
	var data any
	switch ev.Type {
	case chat.EventToken:
		data = map[string]any{"token": ev.Token, "conversation_id": ev.ConversationID}
	case chat.EventDone:
		data = map[string]any{"conversation_id": ev.ConversationID, "message_id": ev.MessageID}
	case chat.EventError:
		data = map[string]any{"error": ev.Err.Error()}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", ev.Type, payload); err != nil {
		return err
	}
	res.Flush()
	return nil
}

func drain(events <-chan chat.Event) {
	for range events {
	}
}
