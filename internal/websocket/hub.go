package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/raaihank/mailscraped/internal/etl"
)

// HubConfig contains configuration for the WebSocket hub
type HubConfig struct {
	BroadcastRuns        bool
	BroadcastProgress    bool
	BroadcastConnections bool
	MaxConnections       int
	ReadBufferSize       int
	WriteBufferSize      int
	AllowedOrigins       []string
	PingInterval         time.Duration
	PongTimeout          time.Duration
	WriteTimeout         time.Duration
	MaxMessageSize       int64
}

// Hub maintains the set of active clients and broadcasts run events to
// them. It implements etl.Reporter.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	upgrader websocket.Upgrader
	config   *HubConfig
	logger   *zap.Logger

	mu    sync.RWMutex
	stats *HubStats
}

// HubStats tracks WebSocket hub statistics
type HubStats struct {
	TotalConnections   int64     `json:"total_connections"`
	ActiveConnections  int64     `json:"active_connections"`
	TotalMessages      int64     `json:"total_messages"`
	TotalBroadcasts    int64     `json:"total_broadcasts"`
	DroppedEvents      int64     `json:"dropped_events"`
	LastConnectionTime time.Time `json:"last_connection_time"`
	LastBroadcastTime  time.Time `json:"last_broadcast_time"`
}

var _ etl.Reporter = (*Hub)(nil)

// NewHub creates a new WebSocket hub
func NewHub(config *HubConfig, logger *zap.Logger) *Hub {
	applyHubDefaults(config)

	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		config:     config,
		logger:     logger,
		stats:      &HubStats{},
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  config.ReadBufferSize,
		WriteBufferSize: config.WriteBufferSize,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func applyHubDefaults(c *HubConfig) {
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = 1024
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = 1024
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = 60 * time.Second
	}
	if c.PingInterval == 0 || c.PingInterval >= c.PongTimeout {
		c.PingInterval = (c.PongTimeout * 9) / 10
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 512
	}
}

// Run handles client registration and broadcasting until Stop is called
func (h *Hub) Run() {
	h.logger.Info("Starting WebSocket hub")

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.broadcastEvent(event)

		case <-h.done:
			h.closeAll()
			return
		}
	}
}

// Stop disconnects every client and ends Run
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	h.stats.TotalConnections++
	h.stats.LastConnectionTime = time.Now()

	h.logger.Info("Client connected",
		zap.String("client_id", client.ID),
		zap.String("client_ip", client.IP),
		zap.Int("active_connections", len(h.clients)),
	)

	if h.config.BroadcastConnections {
		h.sendLocked(Event{
			Type:      EventTypeConnection,
			Timestamp: time.Now(),
			Data: ConnectionEvent{
				Action:   "connected",
				ClientID: client.ID,
				Message:  fmt.Sprintf("Client %s connected", client.ID),
			},
		}, client)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	h.dropLocked(client)

	h.logger.Info("Client disconnected",
		zap.String("client_id", client.ID),
		zap.Int("active_connections", len(h.clients)),
	)

	if h.config.BroadcastConnections {
		h.sendLocked(Event{
			Type:      EventTypeConnection,
			Timestamp: time.Now(),
			Data: ConnectionEvent{
				Action:   "disconnected",
				ClientID: client.ID,
				Message:  fmt.Sprintf("Client %s disconnected", client.ID),
			},
		}, nil)
	}
}

func (h *Hub) broadcastEvent(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stats.TotalBroadcasts++
	h.stats.LastBroadcastTime = time.Now()
	h.sendLocked(event, nil)
}

// sendLocked queues event for every subscribed client except exclude.
// Clients whose queue is full are disconnected. h.mu must be held.
func (h *Hub) sendLocked(event Event, exclude *Client) {
	for client := range h.clients {
		if client == exclude || !wants(client, event) {
			continue
		}
		select {
		case client.Send <- event:
			h.stats.TotalMessages++
		default:
			h.logger.Warn("Client send channel full, closing connection",
				zap.String("client_id", client.ID),
			)
			h.dropLocked(client)
		}
	}
}

func (h *Hub) dropLocked(client *Client) {
	delete(h.clients, client)
	close(client.Send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.dropLocked(client)
	}
}

// wants reports whether the client's subscription covers event
func wants(client *Client, event Event) bool {
	sub := client.Subscription
	if sub == nil {
		return true
	}

	if len(sub.Events) > 0 && !contains(sub.Events, event.Type) {
		return false
	}
	if len(sub.RunIDs) > 0 && event.RunID != "" && !contains(sub.RunIDs, event.RunID) {
		return false
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// BroadcastEvent sends an event to all connected clients (only if enabled in config)
func (h *Hub) BroadcastEvent(event Event) {
	if !h.shouldBroadcastEvent(event.Type) {
		return
	}

	select {
	case h.broadcast <- event:
	default:
		h.mu.Lock()
		h.stats.DroppedEvents++
		h.mu.Unlock()
		h.logger.Warn("Broadcast channel full, dropping event",
			zap.String("event_type", string(event.Type)),
		)
	}
}

func (h *Hub) shouldBroadcastEvent(eventType EventType) bool {
	if h.config == nil {
		return false
	}

	switch eventType {
	case EventTypeRunStarted, EventTypeRunCompleted, EventTypeRunFailed:
		return h.config.BroadcastRuns
	case EventTypeRunProgress:
		return h.config.BroadcastProgress
	case EventTypeConnection:
		return h.config.BroadcastConnections
	default:
		return false
	}
}

// RunStarted implements etl.Reporter
func (h *Hub) RunStarted(runID, filename string) {
	h.BroadcastEvent(Event{
		Type:      EventTypeRunStarted,
		Timestamp: time.Now(),
		RunID:     runID,
		Data:      RunStartedEvent{RunID: runID, Filename: filename},
	})
}

// RunProgress implements etl.Reporter
func (h *Hub) RunProgress(runID string, stats etl.RunStats) {
	h.BroadcastEvent(Event{
		Type:      EventTypeRunProgress,
		Timestamp: time.Now(),
		RunID:     runID,
		Data:      RunProgressEvent{RunID: runID, Stats: stats},
	})
}

// RunCompleted implements etl.Reporter
func (h *Hub) RunCompleted(result *etl.RunResult) {
	h.BroadcastEvent(Event{
		Type:      EventTypeRunCompleted,
		Timestamp: time.Now(),
		RunID:     result.RunID,
		Data: RunCompletedEvent{
			RunID: result.RunID,
			File:  result.File,
			Count: len(result.Entries),
			Stats: result.Stats,
		},
	})
}

// RunFailed implements etl.Reporter
func (h *Hub) RunFailed(runID string, err error) {
	h.BroadcastEvent(Event{
		Type:      EventTypeRunFailed,
		Timestamp: time.Now(),
		RunID:     runID,
		Data:      RunFailedEvent{RunID: runID, Reason: failureReason(err)},
	})
}

// failureReason maps run errors to messages safe to show to any client
func failureReason(err error) string {
	var pe *etl.ParseError
	var we *etl.WriteError
	switch {
	case errors.As(err, &pe):
		return "failed to process file"
	case errors.As(err, &we):
		return "failed to write results"
	default:
		return "run aborted"
	}
}

// HandleWebSocket upgrades the connection and registers the client
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if limit := h.config.MaxConnections; limit > 0 && h.GetStats().ActiveConnections >= int64(limit) {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          "client_" + uuid.NewString(),
		Conn:        conn,
		Send:        make(chan Event, 256),
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
		IP:          getClientIP(r),
		UserAgent:   r.UserAgent(),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go h.handleClientWrite(client)
	go h.handleClientRead(client)
}

func (h *Hub) handleClientWrite(client *Client) {
	conn := client.Conn.(*websocket.Conn)
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.Send:
			conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteJSON(event); err != nil {
				h.logger.Error("Failed to write WebSocket message",
					zap.String("client_id", client.ID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handleClientRead(client *Client) {
	conn := client.Conn.(*websocket.Conn)
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		conn.Close()
	}()

	conn.SetReadLimit(h.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
		return nil
	})

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket error",
					zap.String("client_id", client.ID),
					zap.Error(err),
				)
			}
			return
		}

		h.handleClientMessage(client, msg)
	}
}

func (h *Hub) handleClientMessage(client *Client, msg ClientMessage) {
	switch msg.Type {
	case "subscribe":
		data, err := json.Marshal(msg.Data)
		if err != nil {
			return
		}
		var subscription SubscriptionRequest
		if err := json.Unmarshal(data, &subscription); err != nil {
			return
		}

		h.mu.Lock()
		client.Subscription = &subscription
		h.mu.Unlock()

		h.logger.Debug("Client subscription updated",
			zap.String("client_id", client.ID),
			zap.Any("subscription", subscription),
		)
	case "ping":
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.clients[client]; !ok {
			return
		}
		select {
		case client.Send <- Event{Type: "pong", Timestamp: time.Now(), Data: map[string]string{"message": "pong"}}:
		default:
		}
	}
}

// checkOrigin accepts requests without an Origin header and those whose
// origin is listed. "*" allows every origin.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.config.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := *h.stats
	stats.ActiveConnections = int64(len(h.clients))
	return stats
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
