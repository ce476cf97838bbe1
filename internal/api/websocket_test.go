package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/starfield/server/internal/config"
	"github.com/starfield/server/internal/logging"
	"github.com/starfield/server/internal/procedural"
	"github.com/starfield/server/internal/session"
	"github.com/starfield/server/internal/starmap"
	"github.com/starfield/server/internal/streaming"
)

func TestNegotiateVersion(t *testing.T) {
	tests := []struct {
		name      string
		requested string
		expected  string
	}{
		{"empty string defaults to v1", "", ProtocolVersion1},
		{"v1 requested", ProtocolVersion1, ProtocolVersion1},
		{"multiple versions", "starfield-v2, starfield-v1", ProtocolVersion1},
		{"unsupported version", "starfield-v99", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := negotiateVersion(tt.requested); result != tt.expected {
				t.Errorf("negotiateVersion(%q) = %q, want %q", tt.requested, result, tt.expected)
			}
		})
	}
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialStream(t *testing.T, ts *testServer) *wsClient {
	t.Helper()
	srv := httptest.NewServer(ts.server.Handler)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	dialer := websocket.Dialer{Subprotocols: []string{ProtocolVersion1}, HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	if got := resp.Header.Get("Sec-WebSocket-Protocol"); got != ProtocolVersion1 {
		t.Errorf("negotiated protocol = %q, want %q", got, ProtocolVersion1)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(msgType, id string, data any) {
	c.t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		c.t.Fatalf("failed to marshal %s: %v", msgType, err)
	}
	if err := c.conn.WriteJSON(WebSocketMessage{Type: msgType, ID: id, Data: raw}); err != nil {
		c.t.Fatalf("failed to send %s: %v", msgType, err)
	}
}

// await reads until a message of msgType arrives and returns its raw bytes.
func (c *wsClient) await(msgType string) []byte {
	c.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			c.t.Fatalf("SetReadDeadline() failed: %v", err)
		}
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.t.Fatalf("waiting for %s: %v", msgType, err)
		}
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			c.t.Fatalf("invalid message %q: %v", raw, err)
		}
		if env.Type == msgType {
			return raw
		}
	}
}

func (c *wsClient) awaitData(msgType string, v any) {
	c.t.Helper()
	var msg WebSocketMessage
	if err := json.Unmarshal(c.await(msgType), &msg); err != nil {
		c.t.Fatalf("failed to decode %s: %v", msgType, err)
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		c.t.Fatalf("failed to decode %s data: %v", msgType, err)
	}
}

func TestWebSocket_VisibleStream(t *testing.T) {
	ts := newTestServer(t, newTestConfig(t))
	client := dialStream(t, ts)

	client.send(MsgPing, "p1", struct{}{})
	client.await(MsgPong)

	client.send(MsgCameraUpdate, "", streaming.CameraPose{Position: starmap.Vec3{X: 64, Y: 64, Z: 64}})
	var visible VisibleStarsData
	client.awaitData(MsgVisibleStars, &visible)

	if visible.Count == 0 || len(visible.Stars) != visible.Count {
		t.Fatalf("visible_stars count = %d with %d stars", visible.Count, len(visible.Stars))
	}
	if visible.ChunksGenerated != 125 {
		t.Errorf("chunks generated = %d, want 125", visible.ChunksGenerated)
	}
	if visible.Epoch != ts.manager.Epoch() {
		t.Errorf("epoch = %d, want %d", visible.Epoch, ts.manager.Epoch())
	}

	target := visible.Stars[3]
	client.send(MsgSelect, "s1", selectRequest{Name: target.Name})
	var sel SelectionData
	client.awaitData(MsgSelection, &sel)
	if sel.Star == nil || sel.Star.Name != target.Name {
		t.Errorf("selection = %+v, want %s", sel.Star, target.Name)
	}

	client.send(MsgSelect, "s2", selectRequest{Name: "NOPE-0000"})
	client.awaitData(MsgSelection, &sel)
	if sel.Star != nil {
		t.Errorf("selection of unknown star = %+v, want nil", sel.Star)
	}
}

func TestWebSocket_PickFacesStar(t *testing.T) {
	ts := newTestServer(t, newTestConfig(t))
	client := dialStream(t, ts)

	client.send(MsgCameraUpdate, "", streaming.CameraPose{Position: starmap.Vec3{X: 1, Y: 1, Z: 1}})
	var visible VisibleStarsData
	client.awaitData(MsgVisibleStars, &visible)

	// Yaw 0 and pitch 0 look down +Z. Move the camera straight behind a star.
	target := visible.Stars[0]
	pose := streaming.CameraPose{Position: target.Position.Sub(starmap.Vec3{Z: 5})}
	client.send(MsgCameraUpdate, "", pose)
	client.awaitData(MsgVisibleStars, &visible)

	client.send(MsgPick, "k1", pickRequest{MaxAngle: 1e-6})
	var sel SelectionData
	client.awaitData(MsgSelection, &sel)
	if sel.Star == nil || sel.Star.Name != target.Name {
		t.Errorf("pick = %+v, want %s", sel.Star, target.Name)
	}

	client.send(MsgPick, "k2", pickRequest{MaxAngle: -1})
	client.await(MsgError)
}

func TestWebSocket_ReseedBroadcast(t *testing.T) {
	ts := newTestServer(t, newTestConfig(t))
	client := dialStream(t, ts)

	client.send(MsgCameraUpdate, "", streaming.CameraPose{})
	var first VisibleStarsData
	client.awaitData(MsgVisibleStars, &first)

	info := ts.manager.SetActiveSeed("broadcast-seed")

	// The broadcast and the refresh of the unchanged pose race each other.
	var reseeded *streaming.Info
	var next *VisibleStarsData
	deadline := time.Now().Add(5 * time.Second)
	for reseeded == nil || next == nil {
		if err := client.conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("SetReadDeadline() failed: %v", err)
		}
		var msg WebSocketMessage
		if err := client.conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() failed: %v", err)
		}
		switch msg.Type {
		case MsgUniverseReseed:
			reseeded = &streaming.Info{}
			if err := json.Unmarshal(msg.Data, reseeded); err != nil {
				t.Fatalf("failed to decode universe_reseeded: %v", err)
			}
		case MsgVisibleStars:
			v := &VisibleStarsData{}
			if err := json.Unmarshal(msg.Data, v); err != nil {
				t.Fatalf("failed to decode visible_stars: %v", err)
			}
			if v.Epoch == info.Epoch {
				next = v
			}
		}
	}

	if reseeded.Seed != "broadcast-seed" || reseeded.Epoch != info.Epoch {
		t.Errorf("universe_reseeded = %+v, want %+v", *reseeded, info)
	}
	if next.ChunksGenerated != 125 {
		t.Errorf("refresh after reseed generated %d chunks, want 125", next.ChunksGenerated)
	}
}

func TestWebSocket_Sessions(t *testing.T) {
	ts := newTestServer(t, newTestConfig(t))
	client := dialStream(t, ts)

	pose := streaming.CameraPose{Position: starmap.Vec3{X: 300, Y: 0, Z: -40}, Yaw: 0.5}
	client.send(MsgCameraUpdate, "", pose)
	client.await(MsgVisibleStars)

	client.send(MsgSessionSave, "w1", sessionRequest{Name: "outpost"})
	var saved session.Record
	client.awaitData(MsgSessionSaved, &saved)
	if saved.Name != "outpost" || saved.State.Pose != pose {
		t.Errorf("session_saved = %+v", saved)
	}

	client.send(MsgCameraUpdate, "", streaming.CameraPose{})
	client.await(MsgVisibleStars)

	client.send(MsgSessionRestore, "r1", sessionRequest{Name: "outpost"})
	var restored session.Record
	client.awaitData(MsgSessionRestored, &restored)
	if restored.State.Pose != pose {
		t.Errorf("restored pose = %+v, want %+v", restored.State.Pose, pose)
	}
	var visible VisibleStarsData
	client.awaitData(MsgVisibleStars, &visible)
	wantChunk := starmap.ChunkCoordFromPosition(pose.Position, ts.manager.Settings().Generation.ChunkSize)
	if visible.CameraChunk != wantChunk {
		t.Errorf("camera chunk after restore = %v, want %v", visible.CameraChunk, wantChunk)
	}

	client.send(MsgSessionRestore, "r2", sessionRequest{Name: "outpsot"})
	var wsErr WebSocketError
	if err := json.Unmarshal(client.await(MsgError), &wsErr); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if wsErr.Code != "SessionNotFound" || wsErr.Suggestion != "outpost" {
		t.Errorf("error = %+v", wsErr)
	}
}

func TestWebSocket_CompressedPayload(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Stream.Compress = true
	ts := newTestServer(t, cfg)
	client := dialStream(t, ts)

	client.send(MsgCameraUpdate, "", streaming.CameraPose{Position: starmap.Vec3{X: -10, Y: 5, Z: 900}})
	var visible VisibleStarsData
	client.awaitData(MsgVisibleStars, &visible)

	if visible.Compressed == nil || len(visible.Stars) != 0 {
		t.Fatalf("expected a compressed payload, got %+v", visible)
	}
	stars, err := visible.Compressed.Decode()
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if len(stars) != visible.Count {
		t.Errorf("decoded %d stars, want %d", len(stars), visible.Count)
	}
}

func TestWebSocket_ErrorsAndDisconnect(t *testing.T) {
	ts := newTestServer(t, newTestConfig(t))
	client := dialStream(t, ts)

	client.send("warp_drive", "x1", struct{}{})
	var wsErr WebSocketError
	if err := json.Unmarshal(client.await(MsgError), &wsErr); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if wsErr.Code != "UnknownMessageType" || wsErr.ID != "x1" {
		t.Errorf("error = %+v", wsErr)
	}

	if err := client.conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("WriteMessage() failed: %v", err)
	}
	client.await(MsgError)

	if n := ts.manager.Stats().Observers; n != 2 {
		t.Fatalf("observers = %d, want 2 (primary + connection)", n)
	}
	_ = client.conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for ts.manager.Stats().Observers != 1 || ts.server.WebSocket.GetHub().Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("observer was not removed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewWebSocketHandlers_Defaults(t *testing.T) {
	cfg := &config.Config{Universe: config.DefaultUniverse()}
	ts := newTestServer(t, newTestConfig(t))

	h := NewWebSocketHandlers(cfg, ts.manager, nil, nil, nil)
	if h.pingPeriod != defaultPingInterval {
		t.Errorf("ping period = %v, want %v", h.pingPeriod, defaultPingInterval)
	}
	if want := time.Second / 60; h.interval != want {
		t.Errorf("interval = %v, want %v", h.interval, want)
	}
	if h.GetHub() == nil {
		t.Error("hub is nil")
	}
}

func TestWebSocket_SelectAfterReseedIgnoresOldStars(t *testing.T) {
	ts := newTestServer(t, newTestConfig(t))
	client := dialStream(t, ts)

	client.send(MsgCameraUpdate, "", streaming.CameraPose{})
	var visible VisibleStarsData
	client.awaitData(MsgVisibleStars, &visible)
	old := visible.Stars[0]

	ts.manager.SetActiveSeed("another-sky")

	client.send(MsgSelect, "s1", selectRequest{Name: old.Name})
	var sel SelectionData
	client.awaitData(MsgSelection, &sel)
	if sel.Star != nil {
		t.Errorf("selection after reseed = %+v, want nil", sel.Star)
	}
}

// lastSelection drains queued messages and returns the last selection.
func lastSelection(t *testing.T, c *WebSocketConnection) SelectionData {
	t.Helper()
	var sel SelectionData
	found := false
	for {
		select {
		case raw := <-c.send:
			var msg WebSocketMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				t.Fatalf("invalid queued message %q: %v", raw, err)
			}
			if msg.Type == MsgSelection {
				sel = SelectionData{}
				if err := json.Unmarshal(msg.Data, &sel); err != nil {
					t.Fatalf("failed to decode selection: %v", err)
				}
				found = true
			}
		default:
			if !found {
				t.Fatal("no selection queued")
			}
			return sel
		}
	}
}

func TestWebSocketHandlers_StaleStars(t *testing.T) {
	ts := newTestServer(t, newTestConfig(t))
	logger := logging.Discard()
	bridge := session.NewBridge(session.NewMemoryStore(), ts.manager, logger)
	h := NewWebSocketHandlers(ts.cfg, ts.manager, bridge, nil, logger)

	old := procedural.Star{Name: "OLD-1234", Size: 1, Position: starmap.Vec3{Z: 10}}
	newConn := func() *WebSocketConnection {
		return &WebSocketConnection{
			send:      make(chan []byte, 16),
			logger:    logger,
			hasPose:   true,
			lastEpoch: ts.manager.Epoch(),
			stars:     []procedural.Star{old},
		}
	}
	selectOld := func(c *WebSocketConnection) SelectionData {
		raw, _ := json.Marshal(selectRequest{Name: old.Name})
		h.handleSelect(c, &WebSocketMessage{Type: MsgSelect, Data: raw})
		return lastSelection(t, c)
	}

	c := newConn()
	if sel := selectOld(c); sel.Star == nil {
		t.Fatal("select in the current epoch found nothing")
	}

	ts.manager.ResetCache()
	if sel := selectOld(c); sel.Star != nil {
		t.Errorf("select after a new epoch = %+v, want nil", sel.Star)
	}
	h.handlePick(c, &WebSocketMessage{Type: MsgPick})
	if sel := lastSelection(t, c); sel.Star != nil {
		t.Errorf("pick after a new epoch = %+v, want nil", sel.Star)
	}

	ctx := context.Background()
	if _, err := bridge.Capture(ctx, "outpost", streaming.CameraPose{Position: starmap.Vec3{X: 500}}, nil); err != nil {
		t.Fatalf("Capture() failed: %v", err)
	}
	c = newConn()
	raw, _ := json.Marshal(sessionRequest{Name: "outpost"})
	h.handleSessionRestore(ctx, c, &WebSocketMessage{Type: MsgSessionRestore, Data: raw})
	c.mu.Lock()
	stars := c.stars
	c.mu.Unlock()
	if stars != nil {
		t.Errorf("stars after restore = %v, want cleared until the next refresh", stars)
	}
	if sel := selectOld(c); sel.Star != nil {
		t.Errorf("select after restore = %+v, want nil", sel.Star)
	}
}
