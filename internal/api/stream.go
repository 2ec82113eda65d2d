package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/sentinelops/sentinel-go/internal/history"
)

const (
	// Time allowed to write a message to the client.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the client.
	pongWait = 60 * time.Second

	// Ping period, must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from the client.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// streamClient is one connected WebSocket consumer of the history event feed.
type streamClient struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	closed bool
	mu     sync.Mutex
}

func (c *Controller) initStreamRoutes() {
	c.Group.GET("/stream/events", c.HandleEventStream)
}

// HandleEventStream upgrades the connection and forwards every history store
// event to the client as JSON until either side disconnects.
func (c *Controller) HandleEventStream(ctx echo.Context) error {
	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		c.logger.Error("websocket upgrade failed", "error", err, "ip", ctx.RealIP())
		return err
	}

	client := &streamClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 64),
	}
	c.registerClient(client)
	c.logger.Info("stream client connected", "client_id", client.id, "ip", ctx.RealIP())

	events, eventsCtx := c.Store.Subscribe()

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		defer c.Store.Unsubscribe(events)
		c.forwardEvents(client, events, eventsCtx.Done())
	}()
	go func() {
		defer c.wg.Done()
		client.writePump()
	}()
	go client.readPump(func() { c.unregisterClient(client) })

	return nil
}

// forwardEvents serializes store events onto the client's send queue. Slow
// clients get disconnected rather than blocking the feed.
func (c *Controller) forwardEvents(client *streamClient, events <-chan history.Event, cancelled <-chan struct{}) {
	defer c.unregisterClient(client)

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-cancelled:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			msg, err := marshalEvent(string(ev.Kind), ev.AnalysisID)
			if err != nil {
				c.logger.Error("failed to encode stream event", "error", err)
				continue
			}
			if !client.enqueue(msg) {
				c.logger.Warn("dropping slow stream client", "client_id", client.id)
				return
			}
		}
	}
}

func (c *Controller) registerClient(client *streamClient) {
	c.clientsMu.Lock()
	defer c.clientsMu.Unlock()
	c.clients[client.id] = client
}

func (c *Controller) unregisterClient(client *streamClient) {
	c.clientsMu.Lock()
	defer c.clientsMu.Unlock()
	if _, ok := c.clients[client.id]; ok {
		delete(c.clients, client.id)
		client.close()
	}
}

// close shuts the send queue exactly once; writePump then closes the socket.
func (s *streamClient) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

// enqueue places a message on the send queue, reporting false when the client
// is closed or its queue is full.
func (s *streamClient) enqueue(msg []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

// writePump drains the send queue onto the socket and keeps the connection
// alive with periodic pings.
func (s *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages and detects disconnects.
func (s *streamClient) readPump(onClose func()) {
	defer onClose()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// streamEvent is the wire form of one history store event.
type streamEvent struct {
	Kind       string `json:"kind"`
	AnalysisID string `json:"analysisId,omitempty"`
	Timestamp  string `json:"timestamp"`
}

func marshalEvent(kind, analysisID string) ([]byte, error) {
	return json.Marshal(streamEvent{
		Kind:       kind,
		AnalysisID: analysisID,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}
