package httpserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/gigmarket/internal/platform/errors"
)

func (s *Server) registerConversationRoutes(csrf, limiter echo.MiddlewareFunc) {
	g := s.echo.Group("/api/conversations/:conversationId", limiter, s.requireAuth, csrf)
	g.GET("/messages", s.handleListMessages)
	g.POST("/messages", s.handlePostMessage)
	g.POST("/read", s.handleMarkRead)
}

type postMessageRequest struct {
	Body string `json:"body"`
}

type markReadRequest struct {
	MessageID int64 `json:"messageId"`
}

func (s *Server) handleListMessages(c echo.Context) error {
	userID, err := sessionUserID(c)
	if err != nil {
		return err
	}
	conversationID, err := int64Param(c, "conversationId")
	if err != nil {
		return err
	}

	var beforeID int64
	if raw := c.QueryParam("before"); raw != "" {
		if beforeID, err = strconv.ParseInt(raw, 10, 64); err != nil || beforeID < 0 {
			return apperrors.ValidationError("invalid before").WithField("before", raw)
		}
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			return apperrors.ValidationError("invalid limit").WithField("limit", raw)
		}
	}

	messages, err := s.app.ListMessages(c.Request().Context(), userID, conversationID, beforeID, limit)
	if err != nil {
		return mapAppError(err, "list messages").WithField("conversation_id", conversationID)
	}
	return writeJSON(c, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) handlePostMessage(c echo.Context) error {
	userID, err := sessionUserID(c)
	if err != nil {
		return err
	}
	conversationID, err := int64Param(c, "conversationId")
	if err != nil {
		return err
	}
	var req postMessageRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	msg, err := s.app.PostMessage(c.Request().Context(), userID, conversationID, req.Body)
	if err != nil {
		return mapAppError(err, "post message").WithField("conversation_id", conversationID)
	}
	return writeJSON(c, http.StatusCreated, msg)
}

func (s *Server) handleMarkRead(c echo.Context) error {
	userID, err := sessionUserID(c)
	if err != nil {
		return err
	}
	conversationID, err := int64Param(c, "conversationId")
	if err != nil {
		return err
	}
	var req markReadRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	state, err := s.app.MarkRead(c.Request().Context(), userID, conversationID, req.MessageID)
	if err != nil {
		return mapAppError(err, "mark conversation read").WithField("conversation_id", conversationID)
	}
	return writeJSON(c, http.StatusOK, map[string]any{
		"lastReadMessageId": state.LastReadMessageID,
		"unreadCount":       state.UnreadCount,
	})
}
