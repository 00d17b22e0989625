package handlers

import (
	"net/http"
	"strings"

	"github.com/cr4all/supportservices/middleware"
	"github.com/cr4all/supportservices/models"
	"github.com/cr4all/supportservices/services"
	"github.com/labstack/echo/v4"
)

type ChatHandler struct {
	chat *services.ChatService
	// requireOperator gates the admin side of the API behind a token.
	requireOperator bool
}

func NewChatHandler(chat *services.ChatService, requireOperator bool) *ChatHandler {
	return &ChatHandler{chat: chat, requireOperator: requireOperator}
}

func (h *ChatHandler) isOperator(c echo.Context) bool {
	return !h.requireOperator || middleware.OperatorFrom(c) != nil
}

// createSessionRequest takes visitorId as any JSON value; anything but a
// string counts as no visitor id.
type createSessionRequest struct {
	VisitorID interface{} `json:"visitorId"`
}

// CreateSession opens a new active session for the visitor in the body.
func (h *ChatHandler) CreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	visitorID, _ := req.VisitorID.(string)

	session, err := h.chat.CreateSession(c.Request().Context(), visitorID)
	if err != nil {
		return respondError(c, err, "Failed to create session")
	}
	return c.JSON(http.StatusOK, session)
}

// ListSessions serves both the admin inbox and, with ?visitorId=, the
// visitor's active session lookup.
func (h *ChatHandler) ListSessions(c echo.Context) error {
	ctx := c.Request().Context()
	if visitorID := c.QueryParam("visitorId"); visitorID != "" {
		summary, err := h.chat.FindActiveSessionByVisitor(ctx, visitorID)
		if err != nil {
			return respondError(c, err, "Failed to find session")
		}
		return c.JSON(http.StatusOK, summary)
	}

	if !h.isOperator(c) {
		return operatorRequired(c)
	}
	sessions, err := h.chat.ListSessions(ctx)
	if err != nil {
		return respondError(c, err, "Failed to list sessions")
	}
	return c.JSON(http.StatusOK, sessions)
}

func (h *ChatHandler) GetSession(c echo.Context) error {
	session, err := h.chat.FindSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err, "Failed to get session")
	}
	return c.JSON(http.StatusOK, session)
}

type updateSessionRequest struct {
	Status                *string `json:"status"`
	Name                  *string `json:"name"`
	Email                 *string `json:"email"`
	MarkRead              bool    `json:"markRead"`
	MarkAdminMessagesRead bool    `json:"markAdminMessagesRead"`
}

func (r updateSessionRequest) toUpdate() services.SessionUpdate {
	upd := services.SessionUpdate{
		Name:                  r.Name,
		Email:                 r.Email,
		MarkRead:              r.MarkRead,
		MarkAdminMessagesRead: r.MarkAdminMessagesRead,
	}
	if r.Status != nil && *r.Status != "" {
		status := models.SessionStatus(*r.Status)
		upd.Status = &status
	}
	return upd
}

// UpdateSession applies a partial update. Status changes and marking
// visitor messages read are operator actions; contact details and
// marking admin messages read come from the visitor.
func (h *ChatHandler) UpdateSession(c echo.Context) error {
	var req updateSessionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	upd := req.toUpdate()
	if (upd.Status != nil || upd.MarkRead) && !h.isOperator(c) {
		return operatorRequired(c)
	}

	session, err := h.chat.UpdateSession(c.Request().Context(), c.Param("id"), upd)
	if err != nil {
		return respondError(c, err, "Failed to update session")
	}
	return c.JSON(http.StatusOK, session)
}

func (h *ChatHandler) ListMessages(c echo.Context) error {
	messages, err := h.chat.ListMessages(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err, "Failed to list messages")
	}
	return c.JSON(http.StatusOK, messages)
}

type sendMessageRequest struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

func (h *ChatHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	sender := models.ParseSender(strings.TrimSpace(req.Sender))
	if sender == models.SenderAdmin && !h.isOperator(c) {
		return operatorRequired(c)
	}

	message, err := h.chat.SendMessage(c.Request().Context(), c.Param("id"), sender, req.Content)
	if err != nil {
		return respondError(c, err, "Failed to send message")
	}
	return c.JSON(http.StatusOK, message)
}
