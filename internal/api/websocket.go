package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/starfield/server/internal/compression"
	"github.com/starfield/server/internal/config"
	"github.com/starfield/server/internal/performance"
	"github.com/starfield/server/internal/procedural"
	"github.com/starfield/server/internal/session"
	"github.com/starfield/server/internal/starmap"
	"github.com/starfield/server/internal/streaming"
)

const (
	// Supported WebSocket protocol versions
	ProtocolVersion1 = "starfield-v1"

	// Default ping interval
	defaultPingInterval = 54 * time.Second

	// Write timeout
	writeTimeout = 10 * time.Second

	// Maximum inbound message size
	maxMessageSize = 4096

	sendBufferSize = 64
)

// Message types
const (
	MsgCameraUpdate    = "camera_update"
	MsgSelect          = "select"
	MsgPick            = "pick"
	MsgSessionSave     = "session_save"
	MsgSessionRestore  = "session_restore"
	MsgPing            = "ping"
	MsgPong            = "pong"
	MsgVisibleStars    = "visible_stars"
	MsgSelection       = "selection"
	MsgSessionSaved    = "session_saved"
	MsgSessionRestored = "session_restored"
	MsgUniverseReseed  = "universe_reseeded"
	MsgError           = "error"
)

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WebSocketError represents an error message sent over WebSocket
type WebSocketError struct {
	Type       string `json:"type"`
	ID         string `json:"id,omitempty"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// VisibleStarsData is the payload of a visible_stars message. Exactly one
// of Stars and Compressed is set.
type VisibleStarsData struct {
	Stars           []procedural.Star            `json:"stars,omitempty"`
	Compressed      *compression.CompressedStars `json:"compressed,omitempty"`
	Count           int                          `json:"count"`
	ChunksGenerated int                          `json:"chunks_generated"`
	CameraChunk     starmap.ChunkCoord           `json:"camera_chunk"`
	Added           []starmap.ChunkCoord         `json:"added,omitempty"`
	Removed         []starmap.ChunkCoord         `json:"removed,omitempty"`
	Trimmed         int                          `json:"trimmed"`
	Epoch           uint64                       `json:"epoch"`
}

// SelectionData is the payload of a selection message. Star is nil when
// nothing matched.
type SelectionData struct {
	Star *procedural.Star `json:"star"`
}

type selectRequest struct {
	Name string `json:"name"`
}

type pickRequest struct {
	MaxAngle float64 `json:"max_angle"`
}

type sessionRequest struct {
	Name string `json:"name"`
}

// WebSocketConnection represents an active WebSocket connection. Each
// connection owns one observer in the streaming manager.
type WebSocketConnection struct {
	conn     *websocket.Conn
	version  string
	observer *streaming.Observer
	hub      *WebSocketHub
	logger   *slog.Logger

	send     chan []byte
	sendMu   sync.Mutex
	sendDone bool

	// view state, guarded by mu
	mu        sync.Mutex
	pose      streaming.CameraPose
	hasPose   bool
	dirty     bool
	lastEpoch uint64
	stars     []procedural.Star
	selected  *procedural.Star
}

// queue hands message to the write pump. It never blocks; a full buffer
// drops the message.
func (c *WebSocketConnection) queue(message []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendDone {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		c.logger.Warn("send buffer full, dropping message")
		return false
	}
}

func (c *WebSocketConnection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendDone {
		c.sendDone = true
		close(c.send)
	}
}

func (c *WebSocketConnection) sendMessage(msgType, id string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		c.logger.Error("failed to marshal message", "type", msgType, "error", err)
		return
	}
	messageBytes, err := json.Marshal(WebSocketMessage{Type: msgType, ID: id, Data: raw})
	if err != nil {
		c.logger.Error("failed to marshal envelope", "type", msgType, "error", err)
		return
	}
	c.queue(messageBytes)
}

// sendError sends an error message to the client
func (c *WebSocketConnection) sendError(id, errorMsg, code string) {
	c.sendErrorWithSuggestion(id, errorMsg, code, "")
}

func (c *WebSocketConnection) sendErrorWithSuggestion(id, errorMsg, code, suggestion string) {
	messageBytes, err := json.Marshal(WebSocketError{
		Type:       MsgError,
		ID:         id,
		Error:      errorMsg,
		Message:    errorMsg,
		Code:       code,
		Suggestion: suggestion,
	})
	if err != nil {
		c.logger.Error("failed to marshal error message", "error", err)
		return
	}
	c.queue(messageBytes)
}

// WebSocketHub manages all active WebSocket connections
type WebSocketHub struct {
	connections map[*WebSocketConnection]bool
	broadcast   chan []byte
	register    chan *WebSocketConnection
	unregister  chan *WebSocketConnection
	done        chan struct{}
	mu          sync.RWMutex
	logger      *slog.Logger
}

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub(logger *slog.Logger) *WebSocketHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHub{
		connections: make(map[*WebSocketConnection]bool),
		broadcast:   make(chan []byte, sendBufferSize),
		register:    make(chan *WebSocketConnection),
		unregister:  make(chan *WebSocketConnection),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Run is the hub's main loop. It closes every connection's send queue and
// returns when ctx is done.
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.connections {
				conn.closeSend()
				delete(h.connections, conn)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn] = true
			n := len(h.connections)
			h.mu.Unlock()
			h.logger.Info("websocket connection registered",
				"observer", conn.observer.ID(),
				"version", conn.version,
				"connections", n,
			)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				conn.closeSend()
			}
			h.mu.Unlock()
			h.logger.Info("websocket connection unregistered", "observer", conn.observer.ID())

		case message := <-h.broadcast:
			h.mu.RLock()
			for conn := range h.connections {
				conn.queue(message)
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends a message to all connected clients
func (h *WebSocketHub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	default:
		h.logger.Warn("broadcast queue full, dropping message")
	}
}

// Count returns the number of registered connections.
func (h *WebSocketHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

func (h *WebSocketHub) add(conn *WebSocketConnection) bool {
	select {
	case h.register <- conn:
		return true
	case <-h.done:
		return false
	}
}

func (h *WebSocketHub) remove(conn *WebSocketConnection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// WebSocketHandlers handles WebSocket connections
type WebSocketHandlers struct {
	hub        *WebSocketHub
	manager    *streaming.Manager
	bridge     *session.Bridge
	profiler   *performance.Profiler
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	interval   time.Duration
	pingPeriod time.Duration
	pickAngle  float64
	compress   bool
}

// NewWebSocketHandlers creates a new WebSocket handlers instance and
// subscribes the hub to universe resets.
func NewWebSocketHandlers(cfg *config.Config, manager *streaming.Manager, bridge *session.Bridge, profiler *performance.Profiler, logger *slog.Logger) *WebSocketHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "stream")

	hz := max(cfg.Universe.TargetUpdateHz, 1)
	pingPeriod := cfg.Stream.PingPeriod
	if pingPeriod <= 0 {
		pingPeriod = defaultPingInterval
	}
	pickAngle := cfg.Stream.PickAngle
	if pickAngle <= 0 {
		pickAngle = 0.05
	}

	h := &WebSocketHandlers{
		hub:        NewWebSocketHub(logger),
		manager:    manager,
		bridge:     bridge,
		profiler:   profiler,
		logger:     logger,
		interval:   time.Second / time.Duration(hz),
		pingPeriod: pingPeriod,
		pickAngle:  pickAngle,
		compress:   cfg.Stream.Compress,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originAllowed(cfg.Server.AllowedOrigins),
			Subprotocols:    []string{ProtocolVersion1},
		},
	}

	manager.OnReseed(func(info streaming.Info) {
		raw, err := json.Marshal(info)
		if err != nil {
			return
		}
		msg, err := json.Marshal(WebSocketMessage{Type: MsgUniverseReseed, Data: raw})
		if err != nil {
			return
		}
		h.hub.Broadcast(msg)
	})
	return h
}

// GetHub returns the connection hub
func (h *WebSocketHandlers) GetHub() *WebSocketHub {
	return h.hub
}

// HandleWebSocket handles WebSocket connection upgrades
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	requestedVersions := r.Header.Get("Sec-WebSocket-Protocol")
	selectedVersion := negotiateVersion(requestedVersions)
	if selectedVersion == "" {
		h.logger.Warn("websocket version negotiation failed", "requested", requestedVersions)
		http.Error(w, "Unsupported protocol version", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	observer := h.manager.NewObserver()
	wsConn := &WebSocketConnection{
		conn:     conn,
		version:  selectedVersion,
		observer: observer,
		hub:      h.hub,
		logger:   h.logger.With("observer", observer.ID()),
		send:     make(chan []byte, sendBufferSize),
	}

	if !h.hub.add(wsConn) {
		h.manager.RemoveObserver(observer.ID())
		_ = conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	go wsConn.writePump(h.pingPeriod)
	go h.updateLoop(ctx, wsConn)
	go func() {
		defer cancel()
		h.readPump(ctx, wsConn)
	}()
}

// negotiateVersion selects the highest supported protocol version
func negotiateVersion(requested string) string {
	if requested == "" {
		return ProtocolVersion1
	}

	supportedVersions := []string{ProtocolVersion1}
	for _, supported := range supportedVersions {
		for _, v := range strings.Split(requested, ",") {
			if strings.TrimSpace(v) == supported {
				return supported
			}
		}
	}
	return ""
}

// readPump handles incoming messages from the WebSocket connection
func (h *WebSocketHandlers) readPump(ctx context.Context, c *WebSocketConnection) {
	defer func() {
		h.hub.remove(c)
		h.manager.RemoveObserver(c.observer.ID())
		_ = c.conn.Close()
	}()

	pongWait := h.pingPeriod * 10 / 9
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		var msg WebSocketMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			c.sendError("", "Invalid message format", "InvalidMessageFormat")
			continue
		}
		h.handleMessage(ctx, c, &msg)
	}
}

// writePump handles outgoing messages to the WebSocket connection
func (c *WebSocketConnection) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// updateLoop recomputes the connection's visible stars at the target rate
// whenever its pose moved or the universe was reset.
func (h *WebSocketHandlers) updateLoop(ctx context.Context, c *WebSocketConnection) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.refresh(c)
		}
	}
}

// refresh runs one visibility update for c if anything changed.
func (h *WebSocketHandlers) refresh(c *WebSocketConnection) {
	c.mu.Lock()
	if !c.hasPose || (!c.dirty && c.lastEpoch == h.manager.Epoch()) {
		c.mu.Unlock()
		return
	}
	pos := c.pose.Position
	c.dirty = false
	c.mu.Unlock()

	result := c.observer.UpdateVisible(pos)

	c.mu.Lock()
	c.lastEpoch = result.Epoch
	c.stars = result.Stars
	c.mu.Unlock()

	c.sendMessage(MsgVisibleStars, "", h.visibleStarsData(result))
}

func (h *WebSocketHandlers) visibleStarsData(result streaming.Result) VisibleStarsData {
	data := VisibleStarsData{
		Count:           len(result.Stars),
		ChunksGenerated: result.ChunksGenerated,
		CameraChunk:     result.CameraChunk,
		Added:           result.Added,
		Removed:         result.Removed,
		Trimmed:         result.Trimmed,
		Epoch:           result.Epoch,
	}
	if !h.compress {
		data.Stars = nonNilStars(result.Stars)
		return data
	}

	op := h.profiler.Start(performance.OpEncodeStars)
	origin := result.CameraChunk.Origin(h.manager.Settings().Generation.ChunkSize)
	compressed, err := compression.CompressAndFormatStars(result.Stars, origin)
	op.End()
	if err != nil {
		h.logger.Debug("star compression failed, sending plain list", "error", err)
		data.Stars = nonNilStars(result.Stars)
		return data
	}
	data.Compressed = compressed
	return data
}

func nonNilStars(stars []procedural.Star) []procedural.Star {
	if stars == nil {
		return []procedural.Star{}
	}
	return stars
}

// currentStarsLocked returns the last visible list, or nil once the universe
// has moved to a newer epoch. Caller holds c.mu.
func (h *WebSocketHandlers) currentStarsLocked(c *WebSocketConnection) []procedural.Star {
	if c.lastEpoch != h.manager.Epoch() {
		return nil
	}
	return c.stars
}

// handleMessage routes messages to appropriate handlers
func (h *WebSocketHandlers) handleMessage(ctx context.Context, c *WebSocketConnection, msg *WebSocketMessage) {
	switch msg.Type {
	case MsgPing:
		c.sendMessage(MsgPong, msg.ID, struct{}{})
	case MsgCameraUpdate:
		h.handleCameraUpdate(c, msg)
	case MsgSelect:
		h.handleSelect(c, msg)
	case MsgPick:
		h.handlePick(c, msg)
	case MsgSessionSave:
		h.handleSessionSave(ctx, c, msg)
	case MsgSessionRestore:
		h.handleSessionRestore(ctx, c, msg)
	default:
		c.sendError(msg.ID, "Unknown message type", "UnknownMessageType")
	}
}

func (h *WebSocketHandlers) handleCameraUpdate(c *WebSocketConnection, msg *WebSocketMessage) {
	var pose streaming.CameraPose
	if err := json.Unmarshal(msg.Data, &pose); err != nil {
		c.sendError(msg.ID, "Invalid camera pose", "InvalidPose")
		return
	}
	if !pose.Position.IsFinite() || math.IsNaN(pose.Pitch) || math.IsNaN(pose.Yaw) ||
		math.IsInf(pose.Pitch, 0) || math.IsInf(pose.Yaw, 0) {
		c.sendError(msg.ID, "Camera pose must be finite", "InvalidPose")
		return
	}

	c.mu.Lock()
	if !c.hasPose || c.pose != pose {
		c.pose = pose
		c.hasPose = true
		c.dirty = true
	}
	c.mu.Unlock()
}

func (h *WebSocketHandlers) handleSelect(c *WebSocketConnection, msg *WebSocketMessage) {
	var req selectRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		c.sendError(msg.ID, "Invalid select request", "InvalidRequest")
		return
	}

	c.mu.Lock()
	var selected *procedural.Star
	if star, ok := streaming.FindByName(h.currentStarsLocked(c), req.Name); ok {
		selected = &star
	}
	c.selected = selected
	c.mu.Unlock()

	c.sendMessage(MsgSelection, msg.ID, SelectionData{Star: selected})
}

func (h *WebSocketHandlers) handlePick(c *WebSocketConnection, msg *WebSocketMessage) {
	req := pickRequest{MaxAngle: h.pickAngle}
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.sendError(msg.ID, "Invalid pick request", "InvalidRequest")
			return
		}
	}
	if !(req.MaxAngle > 0) || req.MaxAngle > math.Pi {
		c.sendError(msg.ID, "max_angle must be in (0, pi]", "InvalidRequest")
		return
	}

	c.mu.Lock()
	var selected *procedural.Star
	if star, ok := streaming.Pick(h.currentStarsLocked(c), c.pose, req.MaxAngle); ok {
		selected = &star
	}
	c.selected = selected
	c.mu.Unlock()

	c.sendMessage(MsgSelection, msg.ID, SelectionData{Star: selected})
}

func (h *WebSocketHandlers) handleSessionSave(ctx context.Context, c *WebSocketConnection, msg *WebSocketMessage) {
	var req sessionRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		c.sendError(msg.ID, "Invalid session request", "InvalidRequest")
		return
	}

	c.mu.Lock()
	pose, selected := c.pose, c.selected
	c.mu.Unlock()

	rec, err := h.bridge.Capture(ctx, req.Name, pose, selected)
	if err != nil {
		c.logger.Warn("session save failed", "name", req.Name, "error", err)
		c.sendError(msg.ID, "Failed to save session", "SessionSaveFailed")
		return
	}
	c.sendMessage(MsgSessionSaved, msg.ID, rec)
}

func (h *WebSocketHandlers) handleSessionRestore(ctx context.Context, c *WebSocketConnection, msg *WebSocketMessage) {
	var req sessionRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		c.sendError(msg.ID, "Invalid session request", "InvalidRequest")
		return
	}

	rec, err := h.bridge.Restore(ctx, req.Name)
	if err != nil {
		c.logger.Error("session restore failed", "name", req.Name, "error", err)
		c.sendError(msg.ID, "Failed to restore session", "SessionRestoreFailed")
		return
	}
	if rec == nil {
		suggestion, _ := h.bridge.Suggest(ctx, req.Name)
		c.sendErrorWithSuggestion(msg.ID, "Session not found", "SessionNotFound", suggestion)
		return
	}

	// Reply first so the client sees session_restored before the refreshed
	// visible_stars.
	c.sendMessage(MsgSessionRestored, msg.ID, rec)

	c.mu.Lock()
	c.pose = rec.State.Pose
	c.hasPose = true
	c.dirty = true
	c.stars = nil
	c.selected = rec.State.Selected
	c.mu.Unlock()
}
