package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"pipewatch-backend/internal/alerting"
)

var ErrMaxConnections = errors.New("max connections exceeded")

// Update is a statistical or alert payload pushed to subscribers.
type Update struct {
	Type       string    `json:"type"`
	PipelineID string    `json:"pipelineId,omitempty"`
	Metric     string    `json:"metric,omitempty"`
	Data       any       `json:"data,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Conn is the transport surface the hub needs. *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, data []byte, err error)
	Close() error
}

// AnalyzeFunc serves request:analysis messages.
type AnalyzeFunc func(ctx context.Context, pipelineID, metric string) (any, error)

type Options struct {
	MaxConnections    int
	HeartbeatInterval time.Duration
	ClientTimeout     time.Duration
	SendBuffer        int
	Analyze           AnalyzeFunc
}

type subscription struct {
	pipelines  map[string]struct{}
	alertTypes map[string]struct{}
	global     bool
}

type client struct {
	id       string
	conn     Conn
	send     chan []byte
	sub      subscription
	lastSeen time.Time
	done     chan struct{}
	once     sync.Once
}

// Hub tracks live subscriptions and fans updates out to matching clients.
// Pure push: a client that matches nothing receives nothing, and missed
// updates are not replayed.
type Hub struct {
	mu      sync.Mutex
	logger  *slog.Logger
	clients map[string]*client
	opts    Options
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

func New(logger *slog.Logger, opts Options) *Hub {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 256
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.ClientTimeout <= 0 {
		opts.ClientTimeout = 90 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	return &Hub{
		logger:  logger,
		clients: map[string]*client{},
		opts:    opts,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

// Start runs the heartbeat sweeper until Stop.
func (h *Hub) Start() {
	go func() {
		ticker := time.NewTicker(h.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.Sweep(h.now())
			case <-h.stop:
				return
			}
		}
	}()
}

func (h *Hub) Stop() {
	h.once.Do(func() { close(h.stop) })
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = map[string]*client{}
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

// Register admits a connection, or rejects it with an error event once the
// connection cap is reached.
func (h *Hub) Register(conn Conn) (string, error) {
	h.mu.Lock()
	if len(h.clients) >= h.opts.MaxConnections {
		h.mu.Unlock()
		h.writeEvent(conn, map[string]any{"event": "error", "code": "max_connections"})
		_ = conn.Close()
		return "", ErrMaxConnections
	}
	c := &client{
		id:       uuid.NewString(),
		conn:     conn,
		send:     make(chan []byte, h.opts.SendBuffer),
		sub:      subscription{pipelines: map[string]struct{}{}, alertTypes: map[string]struct{}{}},
		lastSeen: h.now(),
		done:     make(chan struct{}),
	}
	h.clients[c.id] = c
	h.mu.Unlock()

	go h.writeLoop(c)
	go h.readLoop(c)
	h.enqueue(c, map[string]any{
		"event":     "connected",
		"socketId":  c.id,
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"features":  []string{"statistical:update", "request:analysis", "subscribe:global"},
	})
	return c.id, nil
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// ClientCount reports currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// PublishUpdate delivers the update to every client whose subscription
// matches. No match means no delivery.
func (h *Hub) PublishUpdate(u Update) {
	if u.Timestamp.IsZero() {
		u.Timestamp = h.now()
	}
	payload, err := json.Marshal(map[string]any{"event": "statistical:update", "update": u})
	if err != nil {
		h.logger.Error("update marshal failed", slog.String("error", err.Error()))
		return
	}
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		if c.sub.matches(u) {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()
	for _, c := range targets {
		h.send(c, payload)
	}
}

// BroadcastAlert adapts alert lifecycle events onto the update stream,
// satisfying alerting.Broadcaster.
func (h *Hub) BroadcastAlert(event string, alert alerting.Alert) {
	h.PublishUpdate(Update{
		Type:       string(alert.Type),
		PipelineID: alert.Context.PipelineID,
		Metric:     alert.Details.Metric,
		Data:       map[string]any{"event": event, "alert": alert},
		Timestamp:  h.now(),
	})
}

func (s subscription) matches(u Update) bool {
	if u.PipelineID != "" {
		if _, ok := s.pipelines[u.PipelineID]; ok {
			return true
		}
	}
	if _, ok := s.alertTypes[u.Type]; ok {
		return true
	}
	return s.global && u.PipelineID == ""
}

// Sweep pings every client and evicts the ones silent past ClientTimeout.
func (h *Hub) Sweep(now time.Time) {
	ping, _ := json.Marshal(map[string]any{"event": "ping"})
	h.mu.Lock()
	var stale []string
	var live []*client
	for id, c := range h.clients {
		if now.Sub(c.lastSeen) > h.opts.ClientTimeout {
			stale = append(stale, id)
			continue
		}
		live = append(live, c)
	}
	h.mu.Unlock()

	for _, id := range stale {
		h.logger.Info("evicting silent client", slog.String("client_id", id))
		h.unregister(id)
	}
	for _, c := range live {
		h.send(c, ping)
	}
}

func (h *Hub) send(c *client, payload []byte) {
	select {
	case c.send <- payload:
	case <-c.done:
	default:
		// slow consumer: drop rather than block the hub
		h.logger.Warn("dropping update for slow client", slog.String("client_id", c.id))
	}
}

func (h *Hub) enqueue(c *client, event map[string]any) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.send(c, payload)
}

func (h *Hub) writeEvent(conn Conn, event map[string]any) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	_ = conn.WriteMessage(textMessage, payload)
}

func (h *Hub) writeLoop(c *client) {
	for {
		select {
		case payload := <-c.send:
			if err := c.conn.WriteMessage(textMessage, payload); err != nil {
				h.unregister(c.id)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (h *Hub) readLoop(c *client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			h.unregister(c.id)
			return
		}
		h.mu.Lock()
		c.lastSeen = h.now()
		h.mu.Unlock()
		h.handleMessage(c, data)
	}
}
