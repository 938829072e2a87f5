// pkg/network/client.go
package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opd-ai/go-quadsim/pkg/config"
	"github.com/opd-ai/go-quadsim/pkg/engine"
	"github.com/opd-ai/go-quadsim/pkg/logging"
	"github.com/opd-ai/go-quadsim/pkg/validation"
)

// ErrNotConnected is returned when sending before Connect or after Close
var ErrNotConnected = errors.New("not connected to stream server")

// StreamClient receives snapshots from a StreamServer and sends control
// messages back.
type StreamClient struct {
	conn           *websocket.Conn
	format         Format
	viewerID       string
	networkService *NetworkService
	logger         *logging.Logger
	ctx            context.Context

	snapshots chan *engine.Snapshot
	latest    atomic.Pointer[engine.Snapshot]
	mode      atomic.Value
	lastError atomic.Value
	latency   atomic.Int64
	pingSent  atomic.Int64

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once

	connectionTimeout time.Duration
	readTimeout       time.Duration
	writeTimeout      time.Duration
}

// NewStreamClient creates an unconnected client. Timeouts and breaker
// settings come from env; a nil env uses LoadConfigFromEnv with defaults on
// failure.
func NewStreamClient(env *config.EnvironmentConfig, logger *logging.Logger) *StreamClient {
	if env == nil {
		var err error
		if env, err = config.LoadConfigFromEnv(); err != nil {
			env = &config.EnvironmentConfig{
				ReadTimeout:                       30 * time.Second,
				WriteTimeout:                      10 * time.Second,
				CircuitBreakerMaxRequests:         3,
				CircuitBreakerInterval:            60 * time.Second,
				CircuitBreakerTimeout:             30 * time.Second,
				CircuitBreakerMaxConsecutiveFails: 5,
			}
		}
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &StreamClient{
		networkService:    NewNetworkService(env, logger),
		logger:            logger,
		ctx:               logging.WithCorrelationID(context.Background(), logging.GenerateCorrelationID()),
		snapshots:         make(chan *engine.Snapshot, 1),
		done:              make(chan struct{}),
		connectionTimeout: 10 * time.Second,
		readTimeout:       env.ReadTimeout,
		writeTimeout:      env.WriteTimeout,
	}
}

// NetworkService exposes the breaker guarding Connect
func (c *StreamClient) NetworkService() *NetworkService {
	return c.networkService
}

// Connect dials rawURL (ws://host:port/ws) through the circuit breaker,
// retrying with backoff, and starts reading.
func (c *StreamClient) Connect(ctx context.Context, rawURL string, format Format) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse stream url: %w", err)
	}
	if u.Path == "" {
		u.Path = StreamPath
	}
	q := u.Query()
	q.Set("format", string(format))
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: c.connectionTimeout}
	var conn *websocket.Conn
	err = c.networkService.ExecuteWithRetry(ctx, func() error {
		dialCtx, cancel := context.WithTimeout(ctx, c.connectionTimeout)
		defer cancel()

		var dialErr error
		conn, _, dialErr = dialer.DialContext(dialCtx, u.String(), nil)
		return dialErr
	})
	if err != nil {
		return fmt.Errorf("failed to connect to stream server: %w", err)
	}

	conn.SetPingHandler(func(data string) error {
		return c.handlePing(conn, data)
	})

	c.writeMu.Lock()
	c.conn = conn
	c.format = format
	c.writeMu.Unlock()
	c.logger.Info(c.ctx, "connected to stream server", "url", u.String(), "format", string(format))

	go c.readLoop()
	return nil
}

// Snapshots delivers received snapshots. A slow reader only sees the newest
// one. The channel is closed when the connection ends.
func (c *StreamClient) Snapshots() <-chan *engine.Snapshot {
	return c.snapshots
}

// Latest returns the newest snapshot received, or nil
func (c *StreamClient) Latest() *engine.Snapshot {
	return c.latest.Load()
}

// ViewerID returns the id the server assigned in its welcome message
func (c *StreamClient) ViewerID() string {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.viewerID
}

// Mode returns the last mode the server reported
func (c *StreamClient) Mode() string {
	m, _ := c.mode.Load().(string)
	return m
}

// LastError returns the last error message the server sent
func (c *StreamClient) LastError() string {
	e, _ := c.lastError.Load().(string)
	return e
}

// Latency returns the round trip time of the last answered Ping
func (c *StreamClient) Latency() time.Duration {
	return time.Duration(c.latency.Load())
}

// Done is closed when the connection ends
func (c *StreamClient) Done() <-chan struct{} {
	return c.done
}

func (c *StreamClient) readLoop() {
	defer c.Close()
	defer close(c.snapshots)

	for {
		if c.readTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warn(c.ctx, "stream read failed", "error", err)
			}
			return
		}

		var msg ServerMessage
		if err := c.format.Decode(data, &msg); err != nil {
			c.logger.Warn(c.ctx, "undecodable server message", "error", err, "bytes", len(data))
			continue
		}
		c.handle(&msg)
	}
}

// handlePing answers a server keepalive. A ping counts as traffic, so the
// read deadline moves forward even when no snapshot arrives.
func (c *StreamClient) handlePing(conn *websocket.Conn, data string) error {
	if c.readTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	var deadline time.Time
	if c.writeTimeout > 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	err := conn.WriteControl(websocket.PongMessage, []byte(data), deadline)
	if err == nil || errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return nil
	}
	return err
}

func (c *StreamClient) handle(msg *ServerMessage) {
	switch msg.Type {
	case MessageWelcome:
		c.writeMu.Lock()
		c.viewerID = msg.ViewerID
		c.writeMu.Unlock()
		c.mode.Store(msg.Mode)
	case MessageSnapshot:
		if msg.Snapshot == nil {
			return
		}
		c.latest.Store(msg.Snapshot)
		c.mode.Store(msg.Snapshot.Mode.String())
		c.deliver(msg.Snapshot)
	case MessageMode:
		c.mode.Store(msg.Mode)
	case MessagePong:
		if sent := c.pingSent.Load(); sent != 0 {
			c.latency.Store(time.Now().UnixNano() - sent)
		}
	case MessageError:
		c.lastError.Store(msg.Error)
		c.logger.Warn(c.ctx, "server rejected message", "error", msg.Error)
	}
}

// deliver replaces an unread snapshot instead of blocking
func (c *StreamClient) deliver(snap *engine.Snapshot) {
	for {
		select {
		case c.snapshots <- snap:
			return
		default:
		}
		select {
		case <-c.snapshots:
		default:
		}
	}
}

// send writes one control message
func (c *StreamClient) send(msg validation.ControlMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}

	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

// Hello tells the server the viewer's display name
func (c *StreamClient) Hello(name string) error {
	return c.send(validation.ControlMessage{Type: validation.MessageHello, Name: name})
}

// SetMode asks the server to switch detection mode ("brute" or "quadtree")
func (c *StreamClient) SetMode(mode string) error {
	return c.send(validation.ControlMessage{Type: validation.MessageSetMode, Mode: mode})
}

// ToggleMode asks the server to flip detection mode
func (c *StreamClient) ToggleMode() error {
	return c.send(validation.ControlMessage{Type: validation.MessageToggleMode})
}

// ShowCells turns the quadtree cells in received snapshots on or off
func (c *StreamClient) ShowCells(enabled bool) error {
	return c.send(validation.ControlMessage{Type: validation.MessageShowCells, Enabled: &enabled})
}

// Ping measures round trip time; see Latency
func (c *StreamClient) Ping() error {
	c.pingSent.Store(time.Now().UnixNano())
	return c.send(validation.ControlMessage{Type: validation.MessagePing})
}

// Close ends the connection. It is safe to call more than once.
func (c *StreamClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		close(c.done)
		if c.conn == nil {
			return
		}
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}
