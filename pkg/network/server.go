// pkg/network/server.go
package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opd-ai/go-quadsim/pkg/config"
	"github.com/opd-ai/go-quadsim/pkg/engine"
	"github.com/opd-ai/go-quadsim/pkg/event"
	"github.com/opd-ai/go-quadsim/pkg/logging"
	"github.com/opd-ai/go-quadsim/pkg/validation"
)

// ErrServerClosed is returned by ListenAndServe after Close
var ErrServerClosed = errors.New("stream server closed")

// StreamPath is where viewers connect
const StreamPath = "/ws"

// viewerQueue is how many encoded messages may wait for a slow viewer
const viewerQueue = 4

// StreamServer broadcasts simulation snapshots to websocket viewers and
// applies their mode requests to the simulation.
type StreamServer struct {
	sim       *engine.Simulation
	cfg       config.ServerConfig
	env       *config.EnvironmentConfig
	logger    *logging.Logger
	validator *validation.MessageValidator
	upgrader  websocket.Upgrader

	viewersLock sync.RWMutex
	viewers     map[string]*viewer
	closed      bool

	frameSub *event.Subscription
	nextID   atomic.Uint64
	dropped  atomic.Uint64
}

// viewer is one connected websocket
type viewer struct {
	id        string
	conn      *websocket.Conn
	format    Format
	ctx       context.Context
	send      chan []byte
	showCells atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// close signals writePump, which closes the connection and so ends readPump
func (v *viewer) close() {
	v.closeOnce.Do(func() { close(v.done) })
}

// NewStreamServer creates a server streaming sim. Timeouts come from env;
// a nil env uses LoadConfigFromEnv, and a nil logger discards output.
func NewStreamServer(sim *engine.Simulation, env *config.EnvironmentConfig, logger *logging.Logger) (*StreamServer, error) {
	if env == nil {
		var err error
		if env, err = config.LoadConfigFromEnv(); err != nil {
			return nil, logging.WrapError(err, "load environment config")
		}
	}
	if logger == nil {
		logger = logging.Discard()
	}

	s := &StreamServer{
		sim:       sim,
		cfg:       sim.Config.Server,
		env:       env,
		logger:    logger,
		validator: validation.NewMessageValidator(),
		viewers:   make(map[string]*viewer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.frameSub = sim.EventBus.Subscribe(event.FrameCompleted, s.onFrame)
	return s, nil
}

// ViewerCount returns the number of connected viewers
func (s *StreamServer) ViewerCount() int {
	s.viewersLock.RLock()
	defer s.viewersLock.RUnlock()
	return len(s.viewers)
}

// Dropped returns how many messages were discarded for slow viewers
func (s *StreamServer) Dropped() uint64 {
	return s.dropped.Load()
}

// HandleWebSocket upgrades a request on StreamPath. The format query
// parameter picks msgpack (default) or json.
func (s *StreamServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	format, err := ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.viewersLock.RLock()
	closed, full := s.closed, len(s.viewers) >= s.cfg.MaxViewers
	s.viewersLock.RUnlock()
	if closed {
		http.Error(w, ErrServerClosed.Error(), http.StatusServiceUnavailable)
		return
	}
	if full {
		s.logger.Warn(r.Context(), "rejecting viewer, server full", "remote", r.RemoteAddr, "max", s.cfg.MaxViewers)
		http.Error(w, "server full", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	v := &viewer{
		id:     fmt.Sprintf("viewer-%d", s.nextID.Add(1)),
		conn:   conn,
		format: format,
		ctx:    logging.WithCorrelationID(context.Background(), logging.GenerateCorrelationID()),
		send:   make(chan []byte, viewerQueue),
		done:   make(chan struct{}),
	}
	v.showCells.Store(s.cfg.IncludeCells)

	if !s.addViewer(v) {
		conn.Close()
		return
	}
	defer s.removeViewer(v, r.RemoteAddr)

	s.logger.Info(v.ctx, "viewer connected", "viewer", v.id, "remote", r.RemoteAddr, "format", string(format))
	s.sim.EventBus.Publish(event.NewViewerEvent(event.ViewerJoined, s, v.id, r.RemoteAddr))

	s.reply(v, &ServerMessage{Type: MessageWelcome, ViewerID: v.id, Mode: s.sim.Mode().String()})

	go s.writePump(v)
	s.readPump(v)
}

// addViewer registers v unless the server closed or filled up meanwhile
func (s *StreamServer) addViewer(v *viewer) bool {
	s.viewersLock.Lock()
	defer s.viewersLock.Unlock()
	if s.closed || len(s.viewers) >= s.cfg.MaxViewers {
		return false
	}
	s.viewers[v.id] = v
	return true
}

func (s *StreamServer) removeViewer(v *viewer, remote string) {
	s.viewersLock.Lock()
	delete(s.viewers, v.id)
	s.viewersLock.Unlock()

	v.close()
	s.validator.Forget(v.id)

	s.logger.Info(v.ctx, "viewer disconnected", "viewer", v.id)
	s.sim.EventBus.Publish(event.NewViewerEvent(event.ViewerLeft, s, v.id, remote))
}

// readPump handles control messages until the connection fails
func (s *StreamServer) readPump(v *viewer) {
	v.conn.SetReadLimit(2 * validation.MaxMessageSize)
	v.conn.SetReadDeadline(time.Now().Add(s.env.ReadTimeout))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(s.env.ReadTimeout))
	})

	for {
		_, data, err := v.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn(v.ctx, "viewer read failed", "viewer", v.id, "error", err)
			}
			return
		}
		v.conn.SetReadDeadline(time.Now().Add(s.env.ReadTimeout))
		s.handleControl(v, data)
	}
}

// handleControl validates and applies one viewer message
func (s *StreamServer) handleControl(v *viewer, data []byte) {
	if err := s.validator.ValidateMessage(data, v.id); err != nil {
		s.logger.Warn(v.ctx, "rejected viewer message", "viewer", v.id, "error", err)
		s.reply(v, &ServerMessage{Type: MessageError, Error: err.Error()})
		return
	}

	msg, err := validation.ParseControlMessage(data)
	if err != nil {
		s.logger.Warn(v.ctx, "invalid control message", "viewer", v.id, "error", err)
		s.reply(v, &ServerMessage{Type: MessageError, Error: err.Error()})
		return
	}

	switch msg.Type {
	case validation.MessageSetMode:
		mode, err := engine.ParseMode(msg.Mode)
		if err == nil {
			err = s.sim.SetMode(mode)
		}
		if err != nil {
			s.reply(v, &ServerMessage{Type: MessageError, Error: err.Error()})
			return
		}
		s.logger.Info(v.ctx, "viewer requested mode", "viewer", v.id, "mode", mode.String())
		s.reply(v, &ServerMessage{Type: MessageMode, Mode: mode.String()})
	case validation.MessageToggleMode:
		mode := s.sim.ToggleMode()
		s.logger.Info(v.ctx, "viewer toggled mode", "viewer", v.id, "mode", mode.String())
		s.reply(v, &ServerMessage{Type: MessageMode, Mode: mode.String()})
	case validation.MessageShowCells:
		v.showCells.Store(*msg.Enabled)
	case validation.MessageHello:
		s.logger.Info(v.ctx, "viewer introduced itself", "viewer", v.id, "name", msg.Name)
	case validation.MessagePing:
		s.reply(v, &ServerMessage{Type: MessagePong})
	}
}

// writePump owns all writes to the connection
func (s *StreamServer) writePump(v *viewer) {
	ping := time.NewTicker(s.env.ReadTimeout * 9 / 10)
	defer func() {
		ping.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case data := <-v.send:
			v.conn.SetWriteDeadline(time.Now().Add(s.env.WriteTimeout))
			if err := v.conn.WriteMessage(v.format.MessageType(), data); err != nil {
				s.logger.Debug(v.ctx, "viewer write failed", "viewer", v.id, "error", err)
				return
			}
		case <-ping.C:
			v.conn.SetWriteDeadline(time.Now().Add(s.env.WriteTimeout))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-v.done:
			v.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"),
				time.Now().Add(time.Second))
			return
		}
	}
}

// reply queues msg for v alone
func (s *StreamServer) reply(v *viewer, msg *ServerMessage) {
	data, err := v.format.Encode(msg)
	if err != nil {
		s.logger.Error(v.ctx, "encode reply", err, "viewer", v.id, "type", msg.Type)
		return
	}
	s.enqueue(v, data)
}

// enqueue never blocks; a full queue drops data
func (s *StreamServer) enqueue(v *viewer, data []byte) {
	select {
	case v.send <- data:
	case <-v.done:
	default:
		s.dropped.Add(1)
	}
}

// onFrame runs after every step with the step lock released
func (s *StreamServer) onFrame(e event.Event) {
	fe, ok := e.(*event.FrameEvent)
	if !ok {
		return
	}
	every := uint64(max(s.cfg.BroadcastEvery, 1))
	if fe.Frame%every != 0 || s.ViewerCount() == 0 {
		return
	}
	s.Broadcast(s.sim.Snapshot())
}

// encodingKey identifies one encoding of a snapshot
type encodingKey struct {
	format Format
	cells  bool
}

// Broadcast sends snap to every viewer. Each format and cell choice is
// encoded once.
func (s *StreamServer) Broadcast(snap *engine.Snapshot) {
	s.viewersLock.RLock()
	defer s.viewersLock.RUnlock()

	encoded := make(map[encodingKey][]byte, 4)
	for _, v := range s.viewers {
		key := encodingKey{format: v.format, cells: v.showCells.Load()}
		data, ok := encoded[key]
		if !ok {
			var err error
			if data, err = key.format.Encode(&ServerMessage{Type: MessageSnapshot, Snapshot: s.view(snap, key.cells)}); err != nil {
				s.logger.Error(context.Background(), "encode snapshot", err, "frame", snap.Frame)
				return
			}
			encoded[key] = data
		}
		s.enqueue(v, data)
	}
}

// view strips cells from snap when they are not wanted
func (s *StreamServer) view(snap *engine.Snapshot, cells bool) *engine.Snapshot {
	if cells || len(snap.Cells) == 0 {
		return snap
	}
	stripped := *snap
	stripped.Cells = nil
	return &stripped
}

// ListenAndServe serves mux, with StreamPath registered on it, at addr until
// ctx is done. It returns nil after a clean shutdown and ErrServerClosed if
// the server was already closed.
func (s *StreamServer) ListenAndServe(ctx context.Context, addr string, mux *http.ServeMux) error {
	s.viewersLock.RLock()
	closed := s.closed
	s.viewersLock.RUnlock()
	if closed {
		return ErrServerClosed
	}

	mux.HandleFunc(StreamPath, s.HandleWebSocket)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: s.env.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "stream server listening", "addr", addr, "path", StreamPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		return fmt.Errorf("stream server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.env.ShutdownTimeout)
	defer cancel()

	// hijacked websocket connections are not tracked by Shutdown
	s.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("stream server shutdown: %w", err)
	}
	s.logger.Info(context.Background(), "stream server stopped")
	return nil
}

// Close disconnects every viewer and stops broadcasting. Calling it again
// returns ErrServerClosed.
func (s *StreamServer) Close() error {
	s.viewersLock.Lock()
	if s.closed {
		s.viewersLock.Unlock()
		return ErrServerClosed
	}
	s.closed = true
	viewers := make([]*viewer, 0, len(s.viewers))
	for _, v := range s.viewers {
		viewers = append(viewers, v)
	}
	s.viewersLock.Unlock()

	s.frameSub.Cancel()
	for _, v := range viewers {
		v.close()
	}
	s.validator.Close()
	return nil
}
