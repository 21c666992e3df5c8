// SPDX-License-Identifier: MIT
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"spectro/internal/display"
	"spectro/internal/log"
	"spectro/internal/observe"
	"spectro/internal/render"
)

const (
	clientQueue  = 16
	writeTimeout = 2 * time.Second
)

type message struct {
	kind int // websocket.TextMessage or websocket.BinaryMessage
	data []byte
}

type client struct {
	conn *websocket.Conn
	send chan message
}

// WebSocketTransport broadcasts to every client connected on /ws: frames
// as binary PNG messages, limited to one per frame interval, and status
// updates and anything given to Send as JSON text messages. A client that
// cannot keep up loses messages rather than slowing the others.
type WebSocketTransport struct {
	addr          string
	upgrader      websocket.Upgrader
	mux           *http.ServeMux
	frameInterval time.Duration
	metrics       *observe.Metrics
	log           log.Logger

	clientsMu sync.Mutex
	clients   map[*client]struct{}
	closed    bool

	frameMu   sync.Mutex
	lastFrame time.Time
	encoder   png.Encoder
}

var (
	_ Transport          = (*WebSocketTransport)(nil)
	_ render.Surface     = (*WebSocketTransport)(nil)
	_ display.StatusSink = (*WebSocketTransport)(nil)
)

// NewWebSocketTransport creates a transport for addr. Nothing listens until
// ListenAndServe. metrics may be nil.
func NewWebSocketTransport(addr string, frameInterval time.Duration, metrics *observe.Metrics) *WebSocketTransport {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	wst := &WebSocketTransport{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // local viewers are served from anywhere
			},
		},
		mux:           http.NewServeMux(),
		frameInterval: frameInterval,
		metrics:       metrics,
		log:           log.For("WebSocketTransport"),
		clients:       make(map[*client]struct{}),
		encoder:       png.Encoder{CompressionLevel: png.BestSpeed},
	}
	wst.mux.HandleFunc("/ws", wst.handleWebSocket)
	return wst
}

// Handle mounts an extra handler, such as /metrics, next to /ws.
func (wst *WebSocketTransport) Handle(pattern string, h http.Handler) {
	wst.mux.Handle(pattern, h)
}

// Handler serves /ws and anything mounted with Handle.
func (wst *WebSocketTransport) Handler() http.Handler { return wst.mux }

// ListenAndServe serves until ctx is cancelled, then disconnects every
// client.
func (wst *WebSocketTransport) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", wst.addr)
	if err != nil {
		return fmt.Errorf("websocket: listen %s: %w", wst.addr, err)
	}
	srv := &http.Server{
		Handler:           wst.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	wst.log.Infof("serving on ws://%s/ws", ln.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), wst.Close())
	case err := <-errCh:
		wst.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wst.log.Warnf("upgrade error: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan message, clientQueue)}
	wst.clientsMu.Lock()
	if wst.closed {
		wst.clientsMu.Unlock()
		conn.Close()
		return
	}
	wst.clients[c] = struct{}{}
	wst.metrics.Clients.Add(r.Context(), 1)
	total := len(wst.clients)
	wst.clientsMu.Unlock()

	wst.log.Infof("client connected from %s, total: %d", conn.RemoteAddr(), total)

	go wst.writeLoop(c)
	go wst.readLoop(c)
}

// readLoop discards incoming messages and unregisters the client once the
// connection fails.
func (wst *WebSocketTransport) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
	wst.drop(c)
}

func (wst *WebSocketTransport) writeLoop(c *client) {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(msg.kind, msg.data); err != nil {
			wst.log.Debugf("write to %s: %v", c.conn.RemoteAddr(), err)
			c.conn.Close()
			wst.drop(c)
			// Drain until drop closes the queue.
			for range c.send {
			}
			return
		}
		if msg.kind == websocket.BinaryMessage {
			wst.metrics.FramesSent.Add(context.Background(), 1)
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
	c.conn.Close()
}

// drop unregisters c once.
func (wst *WebSocketTransport) drop(c *client) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[c]
	if ok {
		delete(wst.clients, c)
		close(c.send)
		wst.metrics.Clients.Add(context.Background(), -1)
	}
	total := len(wst.clients)
	wst.clientsMu.Unlock()

	if ok {
		wst.log.Infof("client disconnected, total: %d", total)
	}
}

// Clients returns the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

func (wst *WebSocketTransport) broadcast(msg message) {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	for c := range wst.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// Send broadcasts data as JSON.
func (wst *WebSocketTransport) Send(data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("websocket: encode %T: %w", data, err)
	}
	wst.broadcast(message{kind: websocket.TextMessage, data: b})
	return nil
}

// PublishStatus broadcasts s as a StatusMessage.
func (wst *WebSocketTransport) PublishStatus(s display.Status) {
	if err := wst.Send(NewStatusMessage(s, time.Now())); err != nil {
		wst.log.Errorf("%v", err)
	}
}

// Present broadcasts frame as a PNG unless one went out less than a frame
// interval ago or nobody is listening.
func (wst *WebSocketTransport) Present(frame *image.RGBA) error {
	if wst.Clients() == 0 {
		return nil
	}
	wst.frameMu.Lock()
	now := time.Now()
	if now.Sub(wst.lastFrame) < wst.frameInterval {
		wst.frameMu.Unlock()
		return nil
	}
	wst.lastFrame = now
	var buf bytes.Buffer
	err := wst.encoder.Encode(&buf, frame)
	wst.frameMu.Unlock()
	if err != nil {
		return fmt.Errorf("websocket: encode frame: %w", err)
	}

	wst.broadcast(message{kind: websocket.BinaryMessage, data: buf.Bytes()})
	return nil
}

// Close disconnects every client. Later connections are refused.
func (wst *WebSocketTransport) Close() error {
	wst.clientsMu.Lock()
	wst.closed = true
	clients := wst.clients
	wst.clients = make(map[*client]struct{})
	for c := range clients {
		close(c.send)
	}
	if n := len(clients); n > 0 {
		wst.metrics.Clients.Add(context.Background(), -int64(n))
	}
	wst.clientsMu.Unlock()

	if n := len(clients); n > 0 {
		wst.log.Infof("closed %d client(s)", n)
	}
	return nil
}
