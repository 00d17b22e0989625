package handlers

import (
	"context"
	"net/http"

	"github.com/cr4all/supportservices/middleware"
	"github.com/cr4all/supportservices/models"
	chatredis "github.com/cr4all/supportservices/redis"
	"github.com/cr4all/supportservices/services"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type StreamHandler struct {
	chat            *services.ChatService
	hub             *StreamHub
	presence        *chatredis.Presence // nil without Redis
	requireOperator bool
}

func NewStreamHandler(chat *services.ChatService, hub *StreamHub, presence *chatredis.Presence, requireOperator bool) *StreamHandler {
	return &StreamHandler{
		chat:            chat,
		hub:             hub,
		presence:        presence,
		requireOperator: requireOperator,
	}
}

// Stream upgrades to a websocket that receives every change to the
// session as a {type, payload} frame, starting with an "init" frame
// carrying the session itself.
func (h *StreamHandler) Stream(c echo.Context) error {
	session, err := h.chat.FindSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err, "Failed to open stream")
	}

	viewer := chatredis.Viewer{
		ConnID: uuid.New().String(),
		Role:   string(models.SenderVisitor),
		Since:  services.Now(),
	}
	if c.QueryParam("role") == string(models.SenderAdmin) {
		operator := middleware.OperatorFrom(c)
		if h.requireOperator && operator == nil {
			return operatorRequired(c)
		}
		viewer.Role = string(models.SenderAdmin)
		if operator != nil {
			viewer.Operator = operator.Username
		}
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader already answered the request.
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	room := h.hub.join(session.ID)
	client := &streamClient{
		viewer: viewer,
		conn:   ws,
		room:   room,
		send:   make(chan StreamFrame, 64),
		ctx:    ctx,
		cancel: cancel,
	}
	client.send <- StreamFrame{Type: "init", Payload: session}
	room.add(client)

	if h.presence != nil {
		if err := h.presence.Join(ctx, session.ID, viewer); err != nil {
			c.Logger().Warnf("presence join: %v", err)
		}
	}
	defer func() {
		cancel()
		h.hub.leave(room, client)
		_ = ws.Close()
		if h.presence != nil {
			if err := h.presence.Leave(context.Background(), session.ID, viewer.ConnID); err != nil {
				c.Logger().Warnf("presence leave: %v", err)
			}
		}
	}()

	go client.writePump()
	client.readPump(h.hub)
	return nil
}

// Viewers reports who is watching a session, across instances when
// presence is backed by Redis and for this process otherwise.
func (h *StreamHandler) Viewers(c echo.Context) error {
	id, ok := models.CanonicalID(c.Param("id"))
	if !ok {
		return respondError(c, services.ErrInvalidSessionID, "")
	}

	var (
		viewers []chatredis.Viewer
		err     error
	)
	if h.presence != nil {
		viewers, err = h.presence.Viewers(c.Request().Context(), id)
		if err != nil {
			return respondError(c, err, "Failed to fetch viewers")
		}
	} else {
		viewers = h.hub.LocalViewers(id)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessionId": id,
		"count":     len(viewers),
		"viewers":   viewers,
	})
}
