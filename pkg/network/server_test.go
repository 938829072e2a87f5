package network

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opd-ai/go-quadsim/pkg/config"
	"github.com/opd-ai/go-quadsim/pkg/engine"
	"github.com/opd-ai/go-quadsim/pkg/event"
)

func testEnv() *config.EnvironmentConfig {
	return &config.EnvironmentConfig{
		ReadTimeout:                       5 * time.Second,
		WriteTimeout:                      2 * time.Second,
		ShutdownTimeout:                   2 * time.Second,
		CircuitBreakerMaxRequests:         1,
		CircuitBreakerInterval:            time.Minute,
		CircuitBreakerTimeout:             time.Minute,
		CircuitBreakerMaxConsecutiveFails: 1,
	}
}

type testStream struct {
	sim *engine.Simulation
	srv *StreamServer
	url string
}

func newTestStream(t *testing.T, mutate func(*config.SimulationConfig)) *testStream {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Particles.Count = 50
	cfg.Seed = 3
	cfg.Server.BroadcastEvery = 1
	if mutate != nil {
		mutate(cfg)
	}

	sim, err := engine.NewSimulation(cfg)
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	srv, err := NewStreamServer(sim, testEnv(), nil)
	if err != nil {
		t.Fatalf("NewStreamServer: %v", err)
	}
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})

	return &testStream{
		sim: sim,
		srv: srv,
		url: "ws" + strings.TrimPrefix(ts.URL, "http") + StreamPath,
	}
}

// dial connects a raw websocket and consumes the welcome message
func (ts *testStream) dial(t *testing.T, format Format) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(ts.url+"?format="+string(format), nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial failed (status %d): %v", status, err)
	}
	t.Cleanup(func() { conn.Close() })

	welcome := readMessage(t, conn, format)
	if welcome.Type != MessageWelcome || welcome.ViewerID == "" {
		t.Fatalf("expected welcome, got %+v", welcome)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn, format Format) *ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if kind != format.MessageType() {
		t.Errorf("frame type = %d, want %d", kind, format.MessageType())
	}
	var msg ServerMessage
	if err := format.Decode(data, &msg); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return &msg
}

func sendControl(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamServer_BroadcastsSnapshots(t *testing.T) {
	for _, format := range []Format{FormatMsgpack, FormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			ts := newTestStream(t, nil)
			conn := ts.dial(t, format)

			ts.sim.Step()

			msg := readMessage(t, conn, format)
			if msg.Type != MessageSnapshot || msg.Snapshot == nil {
				t.Fatalf("expected snapshot, got %+v", msg)
			}
			snap := msg.Snapshot
			if snap.Frame != 1 || snap.Mode != engine.ModeQuadTree {
				t.Errorf("snapshot frame/mode = %d/%v", snap.Frame, snap.Mode)
			}
			if len(snap.Particles) != 50 {
				t.Errorf("snapshot has %d particles, want 50", len(snap.Particles))
			}
			if len(snap.Cells) == 0 {
				t.Error("quadtree snapshot should carry cells")
			}
			if snap.Arena.Width() != 800 {
				t.Errorf("arena width = %v", snap.Arena.Width())
			}
		})
	}
}

func TestStreamServer_BroadcastEvery(t *testing.T) {
	ts := newTestStream(t, func(c *config.SimulationConfig) { c.Server.BroadcastEvery = 3 })
	conn := ts.dial(t, FormatJSON)

	for i := 0; i < 3; i++ {
		ts.sim.Step()
	}

	msg := readMessage(t, conn, FormatJSON)
	if msg.Snapshot == nil || msg.Snapshot.Frame != 3 {
		t.Fatalf("first broadcast should be frame 3, got %+v", msg)
	}
}

func TestStreamServer_ControlMessages(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		wantType string
		wantMode string
		check    func(t *testing.T, sim *engine.Simulation)
	}{
		{
			name:     "set brute",
			message:  `{"type":"set_mode","mode":"brute"}`,
			wantType: MessageMode,
			wantMode: "brute",
			check: func(t *testing.T, sim *engine.Simulation) {
				if sim.Mode() != engine.ModeBruteForce {
					t.Errorf("sim mode = %v", sim.Mode())
				}
			},
		},
		{
			name:     "toggle",
			message:  `{"type":"toggle_mode"}`,
			wantType: MessageMode,
			wantMode: "brute",
		},
		{
			name:     "ping",
			message:  `{"type":"ping"}`,
			wantType: MessagePong,
		},
		{
			name:     "unknown mode",
			message:  `{"type":"set_mode","mode":"octree"}`,
			wantType: MessageError,
			check: func(t *testing.T, sim *engine.Simulation) {
				if sim.Mode() != engine.ModeQuadTree {
					t.Errorf("sim mode changed to %v", sim.Mode())
				}
			},
		},
		{
			name:     "not json",
			message:  `set_mode brute`,
			wantType: MessageError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestStream(t, nil)
			conn := ts.dial(t, FormatJSON)

			sendControl(t, conn, tt.message)
			msg := readMessage(t, conn, FormatJSON)

			if msg.Type != tt.wantType {
				t.Fatalf("reply type = %q, want %q (%+v)", msg.Type, tt.wantType, msg)
			}
			if tt.wantMode != "" && msg.Mode != tt.wantMode {
				t.Errorf("reply mode = %q, want %q", msg.Mode, tt.wantMode)
			}
			if tt.wantType == MessageError && msg.Error == "" {
				t.Error("error reply has no message")
			}
			if tt.check != nil {
				tt.check(t, ts.sim)
			}
		})
	}
}

func TestStreamServer_ShowCells(t *testing.T) {
	ts := newTestStream(t, nil)
	conn := ts.dial(t, FormatMsgpack)

	sendControl(t, conn, `{"type":"show_cells","enabled":false}`)
	// a ping after show_cells proves it was handled
	sendControl(t, conn, `{"type":"ping"}`)
	if msg := readMessage(t, conn, FormatMsgpack); msg.Type != MessagePong {
		t.Fatalf("expected pong, got %+v", msg)
	}

	ts.sim.Step()
	msg := readMessage(t, conn, FormatMsgpack)
	if msg.Snapshot == nil {
		t.Fatalf("expected snapshot, got %+v", msg)
	}
	if len(msg.Snapshot.Cells) != 0 {
		t.Errorf("cells were disabled but %d arrived", len(msg.Snapshot.Cells))
	}
	if msg.Snapshot.Stats.Nodes == 0 {
		t.Error("stats should still describe the tree")
	}
}

func TestStreamServer_MaxViewers(t *testing.T) {
	ts := newTestStream(t, func(c *config.SimulationConfig) { c.Server.MaxViewers = 2 })
	ts.dial(t, FormatJSON)
	ts.dial(t, FormatJSON)

	_, resp, err := websocket.DefaultDialer.Dial(ts.url, nil)
	if err == nil {
		t.Fatal("third viewer should be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %+v", resp)
	}
	if n := ts.srv.ViewerCount(); n != 2 {
		t.Errorf("ViewerCount() = %d, want 2", n)
	}
}

func TestStreamServer_BadFormat(t *testing.T) {
	ts := newTestStream(t, nil)
	_, resp, err := websocket.DefaultDialer.Dial(ts.url+"?format=xml", nil)
	if err == nil {
		t.Fatal("unknown format should be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %+v", resp)
	}
}

func TestStreamServer_ViewerEvents(t *testing.T) {
	ts := newTestStream(t, nil)

	var mu sync.Mutex
	var joined, left []string
	ts.sim.EventBus.Subscribe(event.ViewerJoined, func(e event.Event) {
		mu.Lock()
		joined = append(joined, e.(*event.ViewerEvent).ViewerID)
		mu.Unlock()
	})
	ts.sim.EventBus.Subscribe(event.ViewerLeft, func(e event.Event) {
		mu.Lock()
		left = append(left, e.(*event.ViewerEvent).ViewerID)
		mu.Unlock()
	})

	conn := ts.dial(t, FormatJSON)
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	waitFor(t, "viewer to leave", func() bool { return ts.srv.ViewerCount() == 0 })
	waitFor(t, "viewer left event", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(left) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if len(joined) != 1 || joined[0] != left[0] {
		t.Errorf("joined %v, left %v", joined, left)
	}
}

func TestStreamServer_SlowViewerDoesNotBlockStep(t *testing.T) {
	ts := newTestStream(t, nil)
	ts.dial(t, FormatMsgpack)

	// the viewer never reads, so the queue fills and frames are dropped
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			ts.sim.Step()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Step blocked on a slow viewer")
	}
}

func TestStreamServer_Close(t *testing.T) {
	ts := newTestStream(t, nil)
	conn := ts.dial(t, FormatJSON)

	if err := ts.srv.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if err := ts.srv.Close(); !errors.Is(err, ErrServerClosed) {
		t.Errorf("second Close() = %v, want ErrServerClosed", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection should be closed")
	}

	if _, resp, err := websocket.DefaultDialer.Dial(ts.url, nil); err == nil || resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("dial after close: err=%v resp=%+v", err, resp)
	}

	err := ts.srv.ListenAndServe(context.Background(), "127.0.0.1:0", http.NewServeMux())
	if !errors.Is(err, ErrServerClosed) {
		t.Errorf("ListenAndServe after Close = %v, want ErrServerClosed", err)
	}
}

func TestStreamServer_ListenAndServeShutdown(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Particles.Count = 10
	sim, err := engine.NewSimulation(cfg)
	if err != nil {
		t.Fatal(err)
	}
	srv, err := NewStreamServer(sim, testEnv(), nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := srv.ListenAndServe(ctx, "127.0.0.1:0", http.NewServeMux()); err != nil {
		t.Errorf("ListenAndServe returned %v after cancel", err)
	}
	if err := srv.Close(); !errors.Is(err, ErrServerClosed) {
		t.Errorf("server should already be closed, got %v", err)
	}
}
