package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	sErrors "github.com/zynkhq/zynk/internal/modules/sessionmodule/errors"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/types"
)

const (
	defaultQueueSize = 64
	defaultWriteWait = 10 * time.Second
)

// TransportOptions bound the per-connection queues and frame sizes.
type TransportOptions struct {
	InboundQueue    int
	OutboundQueue   int
	MaxMessageBytes int64
	WriteWait       time.Duration
	AllowedOrigins  []string
}

func (o TransportOptions) withDefaults() TransportOptions {
	if o.InboundQueue <= 0 {
		o.InboundQueue = defaultQueueSize
	}
	if o.OutboundQueue <= 0 {
		o.OutboundQueue = defaultQueueSize
	}
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	return o
}

// originChecker allows requests without an Origin header (non-browser
// clients), any origin when the list is empty or holds "*", and otherwise
// only exact matches.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	allowAll := len(allowed) == 0
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[strings.TrimRight(o, "/")] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		if set[origin] {
			return true
		}
		// Same-host requests are always allowed.
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// HandleSession handles GET /ws/session and GET /ws/video
// Upgrades the connection and runs one session over it until the session
// closes or the client goes away.
func (h *Handler) HandleSession(c *gin.Context) {
	requestedID := c.Query("session_id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn("websocket upgrade failed", "error", err, "path", c.Request.URL.Path)
		return
	}

	h.conns.Add(1)
	defer h.conns.Done()
	h.serve(conn, requestedID)
}

func (h *Handler) serve(conn *websocket.Conn, requestedID string) {
	defer conn.Close()
	if h.transport.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.transport.MaxMessageBytes)
	}

	logger := h.logger.With("remote", conn.RemoteAddr().String())
	notifier := newConnNotifier(conn, h.transport.OutboundQueue, h.transport.WriteWait, logger)
	go notifier.writeLoop()

	ctrl := h.newSession(requestedID, notifier)
	inbound := make(chan types.Inbound, h.transport.InboundQueue)
	go readLoop(conn, inbound, ctrl.Done(), logger)

	logger.Debug("websocket connected", "requested_session", requestedID)
	err := ctrl.Run(h.ctx, inbound)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("session ended with error", "session_id", ctrl.ID(), "error", err)
	}

	// Flush terminal messages before the connection is closed.
	notifier.Close()
	logger.Debug("websocket closed", "session_id", ctrl.ID(), "state", ctrl.State())
}

// readLoop feeds parsed messages to the session. It closes inbound when the
// connection ends, which the session treats as an abort unless it has
// already closed.
func readLoop(conn *websocket.Conn, inbound chan<- types.Inbound, done <-chan struct{}, logger hclog.Logger) {
	defer close(inbound)

	for {
		kind, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			logger.Debug("ignoring non-text websocket message", "kind", kind)
			continue
		}

		msg, err := types.ParseInbound(raw)
		if err != nil {
			logger.Warn("ignoring malformed message", "error", err, "type", sErrors.GetType(err), "bytes", len(raw))
			continue
		}

		select {
		case inbound <- msg:
		case <-done:
			return
		}
	}
}

// connNotifier is the session's outbound path. A single writer goroutine
// owns the connection's write side.
type connNotifier struct {
	conn      *websocket.Conn
	out       chan types.Outbound
	stop      chan struct{}
	dead      chan struct{}
	stopOnce  sync.Once
	writeWait time.Duration
	logger    hclog.Logger
}

func newConnNotifier(conn *websocket.Conn, queue int, writeWait time.Duration, logger hclog.Logger) *connNotifier {
	return &connNotifier{
		conn:      conn,
		out:       make(chan types.Outbound, queue),
		stop:      make(chan struct{}),
		dead:      make(chan struct{}),
		writeWait: writeWait,
		logger:    logger,
	}
}

// Send queues msg for the writer. It blocks while the queue is full and
// returns false once the connection is gone or closing.
func (n *connNotifier) Send(msg types.Outbound) bool {
	select {
	case <-n.stop:
		return false
	case <-n.dead:
		return false
	default:
	}

	select {
	case n.out <- msg:
		return true
	case <-n.stop:
		return false
	case <-n.dead:
		return false
	}
}

// Close drains queued messages, sends a close frame and waits for the
// writer to exit.
func (n *connNotifier) Close() {
	n.stopOnce.Do(func() { close(n.stop) })
	<-n.dead
}

func (n *connNotifier) writeLoop() {
	defer close(n.dead)

	for {
		select {
		case msg := <-n.out:
			if err := n.write(msg); err != nil {
				n.logger.Debug("websocket write failed", "error", err, "type", msg.Type)
				return
			}
		case <-n.stop:
			for {
				select {
				case msg := <-n.out:
					if err := n.write(msg); err != nil {
						n.logger.Debug("websocket write failed", "error", err, "type", msg.Type)
						return
					}
				default:
					deadline := time.Now().Add(n.writeWait)
					closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed")
					_ = n.conn.WriteControl(websocket.CloseMessage, closeMsg, deadline)
					return
				}
			}
		}
	}
}

func (n *connNotifier) write(msg types.Outbound) error {
	if err := n.conn.SetWriteDeadline(time.Now().Add(n.writeWait)); err != nil {
		return err
	}
	return n.conn.WriteJSON(msg)
}
