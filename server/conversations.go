package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/poiesic/ragline/core"
)

type conversationView struct {
	ID        core.ID   `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type messageView struct {
	ID        core.ID                  `json:"id"`
	Role      core.Role                `json:"role"`
	Content   string                   `json:"content"`
	Metadata  *core.GenerationMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
}

func (s *Server) listConversations(c echo.Context) error {
	convs, err := s.engine.Chat().Conversations(c.Request().Context(), userID(c))
	if err != nil {
		return errorJSON(c, err)
	}
	views := make([]conversationView, 0, len(convs))
	for _, conv := range convs {
		views = append(views, conversationView{
			ID:        conv.ID,
			Title:     conv.Title,
			CreatedAt: conv.CreatedAt,
			UpdatedAt: conv.UpdatedAt,
		})
	}
	return c.JSON(http.StatusOK, views)
}

// listMessages pages a conversation most recent first. limit bounds the
// page size and before is the oldest id of the previous page.
func (s *Server) listMessages(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, err)
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			return c.JSON(http.StatusBadRequest, map[string]any{"error": "limit must be a non-negative integer"})
		}
	}
	var before core.ID
	if raw := c.QueryParam("before"); raw != "" {
		if before, err = parseID(raw); err != nil {
			return errorJSON(c, err)
		}
	}

	msgs, err := s.engine.Chat().History(c.Request().Context(), userID(c), id, limit, before)
	if err != nil {
		return errorJSON(c, err)
	}
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messageView{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			Metadata:  m.Metadata,
			CreatedAt: m.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, views)
}
