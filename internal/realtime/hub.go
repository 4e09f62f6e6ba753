package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/velociti/velociti/internal/datastore/entities"
	"github.com/velociti/velociti/internal/logger"
)

const maxInboundSize = 4096

// Config tunes the hub.
type Config struct {
	// SendBuffer is the per-connection queue length. A connection whose
	// queue is full when a broadcast arrives is closed.
	SendBuffer    int
	InitialAlerts int
	PingInterval  time.Duration
	PongWait      time.Duration
	WriteWait     time.Duration
	// AllowedOrigins lists browser origins permitted to connect. "*" allows
	// any origin. Requests without an Origin header are always accepted.
	AllowedOrigins []string
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.SendBuffer <= 0 {
		out.SendBuffer = 256
	}
	if out.InitialAlerts <= 0 {
		out.InitialAlerts = 20
	}
	if out.PongWait <= 0 {
		out.PongWait = 60 * time.Second
	}
	if out.PingInterval <= 0 || out.PingInterval >= out.PongWait {
		out.PingInterval = out.PongWait * 9 / 10
	}
	if out.WriteWait <= 0 {
		out.WriteWait = 10 * time.Second
	}
	return out
}

// InitialLoader returns the newest alerts for the connect snapshot.
type InitialLoader func(ctx context.Context, limit int) ([]entities.Alert, error)

// Metrics receives hub activity. All methods must be safe for concurrent use.
type Metrics interface {
	ClientsChanged(n int)
	Broadcast(msgType string)
	ClientDropped()
}

type nopMetrics struct{}

func (nopMetrics) ClientsChanged(int)  {}
func (nopMetrics) Broadcast(string)    {}
func (nopMetrics) ClientDropped()      {}

// Hub tracks open connections and fans messages out to them. It is created
// once by the server and handed to whatever needs to broadcast.
type Hub struct {
	cfg      Config
	loader   InitialLoader
	metrics  Metrics
	upgrader websocket.Upgrader
	log      logger.Logger

	mu      sync.RWMutex
	clients map[*conn]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) HubOption {
	return func(h *Hub) {
		if m != nil {
			h.metrics = m
		}
	}
}

// NewHub creates a Hub. loader may be nil, in which case new connections
// receive an empty snapshot.
func NewHub(cfg Config, loader InitialLoader, log logger.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		cfg:     cfg.withDefaults(),
		loader:  loader,
		metrics: nopMetrics{},
		log:     log.Module("realtime"),
		clients: make(map[*conn]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(h.cfg.AllowedOrigins, "*") {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	// same-origin requests are always fine
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// ClientCount returns the number of open connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "realtime relay is shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.log.Warn("websocket upgrade failed",
			logger.String("remote", r.RemoteAddr),
			logger.Error(err))
		return
	}

	c := &conn{
		hub:  h,
		ws:   ws,
		send: make(chan []byte, h.cfg.SendBuffer),
		log:  h.log.With(logger.String("remote", r.RemoteAddr)),
	}

	// The snapshot goes into the queue before registration so it is always
	// the first frame the client sees.
	c.send <- h.snapshot(r.Context())

	if !h.register(c) {
		_ = ws.Close()
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	c.readPump()
}

func (h *Hub) snapshot(ctx context.Context) []byte {
	alerts := make([]entities.Alert, 0)
	if h.loader != nil {
		loaded, err := h.loader(ctx, h.cfg.InitialAlerts)
		if err != nil {
			h.log.Error("failed to load initial alerts", logger.Error(err))
		} else if loaded != nil {
			alerts = loaded
		}
	}
	b, err := json.Marshal(initialDataMessage{Type: TypeInitialData, Alerts: alerts})
	if err != nil {
		h.log.Error("failed to encode initial alerts", logger.Error(err))
		b = []byte(`{"type":"initial_data","alerts":[]}`)
	}
	return b
}

func (h *Hub) register(c *conn) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.wg.Add(1) // read pump
	h.mu.Unlock()

	h.metrics.ClientsChanged(n)
	c.log.Debug("websocket client connected", logger.Int("clients", n))
	return true
}

// remove unregisters c and closes its queue, which ends its write pump.
// Safe to call more than once.
func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.ClientsChanged(n)
	c.log.Debug("websocket client disconnected", logger.Int("clients", n))
}

// enqueue queues msg for one client. It reports false when the client is
// gone or its queue is full.
func (h *Hub) enqueue(c *conn, msg []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// broadcast queues msg on every connection. Connections that cannot keep up
// are closed rather than skipped.
func (h *Hub) broadcast(msgType string, v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		h.log.Error("failed to encode broadcast", logger.String("type", msgType), logger.Error(err))
		return
	}

	var slow []*conn
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	h.metrics.Broadcast(msgType)

	for _, c := range slow {
		c.log.Warn("websocket client too slow, disconnecting", logger.String("type", msgType))
		h.metrics.ClientDropped()
		h.remove(c)
	}
}

// BroadcastNewAlert sends new_alert to every connection.
func (h *Hub) BroadcastNewAlert(alert *entities.Alert) {
	h.broadcast(TypeNewAlert, dataMessage{Type: TypeNewAlert, Data: alert})
}

// BroadcastAlertStatus sends alert_status to every connection.
func (h *Hub) BroadcastAlertStatus(alertID, status string) {
	h.broadcast(TypeAlertStatus, dataMessage{
		Type: TypeAlertStatus,
		Data: AlertStatusData{AlertID: alertID, Status: status},
	})
}

// BroadcastAgentStatus sends agent_status to every connection.
func (h *Hub) BroadcastAgentStatus(agentID, status string) {
	h.broadcast(TypeAgentStatus, dataMessage{
		Type: TypeAgentStatus,
		Data: AgentStatusData{AgentID: agentID, Status: status},
	})
}

// Close disconnects every client, refuses new ones and waits for all
// connection goroutines to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*conn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
	h.wg.Wait()
}

// conn is one websocket connection.
type conn struct {
	hub  *Hub
	ws   *websocket.Conn
	send chan []byte
	log  logger.Logger

	mu       sync.Mutex
	channels []string
}

func (c *conn) readPump() {
	defer c.hub.wg.Done()
	defer c.hub.remove(c)

	c.ws.SetReadLimit(maxInboundSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("websocket read failed", logger.Error(err))
			}
			return
		}
		// any client frame proves liveness
		_ = c.ws.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))

		reply := c.handle(data)
		if reply == nil {
			continue
		}
		if !c.hub.enqueue(c, reply) {
			c.log.Warn("websocket client queue full, disconnecting")
			c.hub.metrics.ClientDropped()
			return
		}
	}
}

func (c *conn) handle(data []byte) []byte {
	var in inbound
	if err := json.Unmarshal(data, &in); err != nil {
		c.log.Debug("ignoring malformed websocket message", logger.Error(err))
		return mustMarshal(errorMessage{Type: TypeError, Error: "invalid message"})
	}

	switch in.Type {
	case TypePing:
		return mustMarshal(pongMessage{Type: TypePong, Timestamp: time.Now().UnixMilli()})
	case TypeSubscribe:
		c.mu.Lock()
		if in.Channel != "" && !slices.Contains(c.channels, in.Channel) {
			c.channels = append(c.channels, in.Channel)
		}
		c.mu.Unlock()
		return mustMarshal(subscribedMessage{Type: TypeSubscribed, Channel: in.Channel})
	default:
		return mustMarshal(errorMessage{Type: TypeError, Error: "unknown message type: " + in.Type})
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("websocket write failed", logger.Error(err))
				c.hub.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.remove(c)
				return
			}
		}
	}
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
