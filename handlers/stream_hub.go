package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/cr4all/supportservices/models"
	chatredis "github.com/cr4all/supportservices/redis"
	"github.com/gorilla/websocket"
	"github.com/labstack/gommon/log"
)

// StreamFrame is the JSON envelope written to stream sockets.
type StreamFrame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type broadcastFrame struct {
	frame  StreamFrame
	except string // connection id that should not receive the frame
}

// streamClient is one websocket connection watching a session.
type streamClient struct {
	viewer chatredis.Viewer
	conn   *websocket.Conn
	room   *streamRoom
	send   chan StreamFrame
	ctx    context.Context
	cancel context.CancelFunc
}

// streamRoom fans frames out to every connection watching one session.
type streamRoom struct {
	id        string
	clients   map[string]*streamClient // guarded by mu
	mu        sync.RWMutex
	broadcast chan broadcastFrame
	ctx       context.Context
	cancel    context.CancelFunc
	members   int // guarded by StreamHub.mu
}

// StreamHub keeps one room per watched session and receives chat events
// as a services.EventSink. Rooms exist only while they have members.
type StreamHub struct {
	rooms map[string]*streamRoom
	mu    sync.Mutex
}

func NewStreamHub() *StreamHub {
	return &StreamHub{rooms: make(map[string]*streamRoom)}
}

func (h *StreamHub) join(sessionID string) *streamRoom {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[sessionID]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		room = &streamRoom{
			id:        sessionID,
			clients:   make(map[string]*streamClient),
			broadcast: make(chan broadcastFrame, 256),
			ctx:       ctx,
			cancel:    cancel,
		}
		h.rooms[sessionID] = room
		go room.run()
	}
	room.members++
	return room
}

func (h *StreamHub) leave(room *streamRoom, client *streamClient) {
	room.drop(client)

	h.mu.Lock()
	defer h.mu.Unlock()
	room.members--
	if room.members == 0 {
		delete(h.rooms, room.id)
		room.cancel()
	}
}

func (room *streamRoom) run() {
	for {
		select {
		case <-room.ctx.Done():
			return
		case msg := <-room.broadcast:
			room.deliver(msg)
		}
	}
}

// deliver sends under the read lock so drop cannot close a channel mid
// send. Clients whose buffer is full are disconnected.
func (room *streamRoom) deliver(msg broadcastFrame) {
	var slow []*streamClient
	room.mu.RLock()
	for id, client := range room.clients {
		if id == msg.except {
			continue
		}
		select {
		case client.send <- msg.frame:
		default:
			slow = append(slow, client)
		}
	}
	room.mu.RUnlock()

	for _, client := range slow {
		log.Warnf("Stream %s send buffer full, disconnecting", client.viewer.ConnID)
		client.cancel()
		room.drop(client)
	}
}

// add makes client visible to broadcasts and viewer lists. It runs on
// the connecting goroutine before leave can, so a connection is never
// listed after it has gone.
func (room *streamRoom) add(client *streamClient) {
	room.mu.Lock()
	defer room.mu.Unlock()
	room.clients[client.viewer.ConnID] = client
}

// drop removes client from the room and closes its send channel. The
// membership check makes a second drop a no-op.
func (room *streamRoom) drop(client *streamClient) {
	room.mu.Lock()
	defer room.mu.Unlock()
	if current, ok := room.clients[client.viewer.ConnID]; ok && current == client {
		delete(room.clients, client.viewer.ConnID)
		close(client.send)
	}
}

func (room *streamRoom) viewers() []chatredis.Viewer {
	room.mu.RLock()
	defer room.mu.RUnlock()
	out := make([]chatredis.Viewer, 0, len(room.clients))
	for _, client := range room.clients {
		out = append(out, client.viewer)
	}
	return out
}

// Publish forwards committed changes to the sockets watching the session.
func (h *StreamHub) Publish(_ context.Context, event models.ChatEvent) {
	frame := StreamFrame{Type: string(event.Type)}
	switch {
	case event.Message != nil:
		frame.Payload = event.Message
	case event.Session != nil:
		frame.Payload = event.Session
	default:
		return
	}

	h.mu.Lock()
	room, ok := h.rooms[event.SessionID]
	h.mu.Unlock()
	if !ok {
		return
	}
	h.send(room, broadcastFrame{frame: frame})
}

func (h *StreamHub) send(room *streamRoom, msg broadcastFrame) {
	select {
	case room.broadcast <- msg:
	case <-room.ctx.Done():
	default:
		log.Warnf("Stream room %s broadcast queue full, dropping %s", room.id, msg.frame.Type)
	}
}

// LocalViewers lists the connections this process holds for a session.
func (h *StreamHub) LocalViewers(sessionID string) []chatredis.Viewer {
	h.mu.Lock()
	room, ok := h.rooms[sessionID]
	h.mu.Unlock()
	if !ok {
		return []chatredis.Viewer{}
	}
	return room.viewers()
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return

		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				log.Debugf("Stream write to %s failed: %v", c.viewer.ConnID, err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type incomingFrame struct {
	Type    string `json:"type"`
	Payload struct {
		IsTyping bool `json:"isTyping"`
	} `json:"payload"`
}

// readPump blocks until the peer goes away. The only frame a client may
// send is a typing indicator, relayed to the other viewers.
func (c *streamClient) readPump(hub *StreamHub) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg incomingFrame
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Debugf("Stream %s read error: %v", c.viewer.ConnID, err)
			}
			return
		}
		if msg.Type == "typing" {
			hub.send(c.room, broadcastFrame{
				frame: StreamFrame{Type: "typing", Payload: map[string]interface{}{
					"role":     c.viewer.Role,
					"isTyping": msg.Payload.IsTyping,
				}},
				except: c.viewer.ConnID,
			})
		}
	}
}
