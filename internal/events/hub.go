// Package events provides real-time change notification fan-out. Connected
// clients learn that their tenant's server state moved and schedule a pull;
// the events carry no record data.
package events

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// EventType is the kind of server-side change being announced.
type EventType string

const (
	// EventMutationsApplied fires after a push commits.
	EventMutationsApplied EventType = "mutations_applied"
	// EventPurgeExecuted fires after a transactional purge commits.
	EventPurgeExecuted EventType = "purge_executed"
	// EventLicenseChanged fires when a tenant's license or suspension changes.
	EventLicenseChanged EventType = "license_changed"
)

// Event is one change notification delivered to a tenant's clients.
type Event struct {
	Type      EventType `json:"type"`
	TenantID  uuid.UUID `json:"tenant_id"`
	ServerSeq int64     `json:"server_seq,omitempty"`
	At        time.Time `json:"at"`
}

// Config holds hub timing configuration.
type Config struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	SendBufferSize int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PingInterval:   30 * time.Second,
		WriteTimeout:   10 * time.Second,
		SendBufferSize: 64,
	}
}

type client struct {
	id       uuid.UUID
	tenantID uuid.UUID
	conn     *websocket.Conn
	send     chan *Event
}

// Hub fans change events out to connected clients, partitioned by tenant.
type Hub struct {
	config   Config
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[uuid.UUID]map[uuid.UUID]*client // tenantID -> clientID -> client

	broadcast  chan *Event
	register   chan *client
	unregister chan *client

	done chan struct{}
	wg   sync.WaitGroup
}

// NewHub creates a hub.
func NewHub(cfg Config, logger zerolog.Logger) *Hub {
	return &Hub{
		config: cfg,
		logger: logger.With().Str("component", "events_hub").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:    make(map[uuid.UUID]map[uuid.UUID]*client),
		broadcast:  make(chan *Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Start begins the fan-out loop.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.run()
	h.logger.Info().Msg("events hub started")
}

// Stop closes all client connections and stops the loop.
func (h *Hub) Stop() {
	close(h.done)
	h.wg.Wait()
	h.logger.Info().Msg("events hub stopped")
}

// Publish queues an event for delivery to the tenant's connected clients.
// Never blocks; if the hub is saturated the event is dropped, which is safe
// because clients also poll.
func (h *Hub) Publish(event *Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn().Str("type", string(event.Type)).Msg("event dropped, hub saturated")
	}
}

func (h *Hub) run() {
	defer h.wg.Done()

	for {
		select {
		case <-h.done:
			h.closeAll()
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

func (h *Hub) addClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.tenantID]; !ok {
		h.clients[c.tenantID] = make(map[uuid.UUID]*client)
	}
	h.clients[c.tenantID][c.id] = c

	h.logger.Debug().
		Str("client_id", c.id.String()).
		Str("tenant_id", c.tenantID.String()).
		Msg("client connected")
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tenantClients, ok := h.clients[c.tenantID]
	if !ok {
		return
	}
	if _, ok := tenantClients[c.id]; !ok {
		return
	}
	delete(tenantClients, c.id)
	if len(tenantClients) == 0 {
		delete(h.clients, c.tenantID)
	}
	close(c.send)

	h.logger.Debug().
		Str("client_id", c.id.String()).
		Str("tenant_id", c.tenantID.String()).
		Msg("client disconnected")
}

func (h *Hub) deliver(event *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients[event.TenantID] {
		select {
		case c.send <- event:
		default:
			// Slow client; it will catch up on its next poll.
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, tenantClients := range h.clients {
		for _, c := range tenantClients {
			close(c.send)
			c.conn.Close()
		}
	}
	h.clients = make(map[uuid.UUID]map[uuid.UUID]*client)
}

// Serve upgrades an authenticated HTTP request to a WebSocket subscription
// for the given tenant's events.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, tenantID uuid.UUID) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		id:       uuid.New(),
		tenantID: tenantID,
		conn:     conn,
		send:     make(chan *Event, h.config.SendBufferSize),
	}
	h.register <- c

	go h.writePump(c)
	go h.readPump(c)
	return nil
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection; clients do not send application messages.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
