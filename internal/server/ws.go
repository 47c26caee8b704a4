package server

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/lvillar/webmirror/internal/cloner"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // preview tool; same-machine clients with arbitrary origins
	},
}

// wsClient is one connected dashboard. The write mutex serializes frames:
// gorilla connections allow a single concurrent writer.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Hub fans clone and verify progress out to connected dashboards.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*wsClient]struct{})}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// Broadcast sends an event to every connected client. Send errors drop the
// client; its read loop notices the closed connection and cleans up.
func (h *Hub) Broadcast(ev cloner.Event) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(ev); err != nil {
			logrus.WithError(err).Debug("dropping websocket client")
			c.conn.Close()
			h.remove(c)
		}
	}
}

// handleWS upgrades the connection, pushes the current snapshot state, then
// blocks reading until the client goes away.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("websocket upgrade failed")
		return
	}

	client := &wsClient{conn: conn}
	s.hub.add(client)
	defer func() {
		s.hub.remove(client)
		conn.Close()
	}()

	logrus.Debug("websocket client connected")

	// Initial state so a freshly opened dashboard is not blank.
	if snap, err := s.store.LatestSnapshot(); err == nil {
		_ = client.send(cloner.Event{
			Type:    cloner.EventSummary,
			Message: "current snapshot " + snap.BaseURL,
			Pages:   snap.Pages,
			Assets:  snap.Assets,
			Failed:  snap.Failed,
			Skipped: snap.Skipped,
		})
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithError(err).Debug("websocket read error")
			}
			return
		}
		// Inbound messages are ignored; the feed is one-way.
	}
}
