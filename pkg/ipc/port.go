package ipc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"nhooyr.io/websocket"

	exterrors "github.com/odvcencio/extbridge/pkg/errors"
	"github.com/odvcencio/extbridge/pkg/messaging"
)

const portWriteTimeout = 15 * time.Second

type wsConn interface {
	Write(ctx context.Context, msgType websocket.MessageType, data []byte) error
	Close(status websocket.StatusCode, reason string) error
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
}

// wsPort is a messaging.Port over one websocket connection. Outgoing
// messages wait in a bounded queue drained by writeLoop; a full queue drops
// the message.
type wsPort struct {
	name   string
	sender *messaging.Sender
	conn   wsConn
	send   chan []byte

	mu       sync.Mutex
	listener messaging.PortListener
	closed   bool
	done     chan struct{}
	stop     context.CancelFunc
}

func newWSPort(name string, sender *messaging.Sender, conn wsConn) *wsPort {
	return &wsPort{
		name:   name,
		sender: sender,
		conn:   conn,
		send:   make(chan []byte, portSendQueue),
		done:   make(chan struct{}),
	}
}

func (p *wsPort) Name() string               { return p.name }
func (p *wsPort) Sender() *messaging.Sender { return p.sender }

func (p *wsPort) SetListener(l messaging.PortListener) {
	p.mu.Lock()
	p.listener = l
	p.mu.Unlock()
}

func (p *wsPort) PostMessage(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return exterrors.Wrap(err, exterrors.ErrCodeInvalidInput, "encode port message")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return exterrors.New(exterrors.ErrCodePortClosed, "port closed").WithContext("port", p.name)
	}
	select {
	case p.send <- data:
		return nil
	default:
		metricPortSendDropped.Inc()
		return exterrors.New(exterrors.ErrCodePortClosed, "port send queue full").
			WithContext("port", p.name).
			WithRetryable(true)
	}
}

// deliver hands one inbound frame to the listener. Frames that are not a
// request envelope are dropped.
func (p *wsPort) deliver(data []byte) bool {
	var req messaging.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return false
	}
	p.mu.Lock()
	l := p.listener
	p.mu.Unlock()
	if l == nil {
		return false
	}
	metricPortFrames.WithLabelValues("ws", "up").Inc()
	l.OnPortMessage(&req, p)
	return true
}

// readLoop dispatches frames in arrival order until the connection fails.
func (p *wsPort) readLoop(ctx context.Context) error {
	for {
		_, data, err := p.conn.Read(ctx)
		if err != nil {
			return err
		}
		p.deliver(data)
	}
}

func (p *wsPort) writeLoop(ctx context.Context) error {
	for {
		select {
		case data := <-p.send:
			writeCtx, cancel := context.WithTimeout(ctx, portWriteTimeout)
			err := p.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
			metricPortFrames.WithLabelValues("ws", "down").Inc()
		case <-p.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close ends the connection's read and write loops. The serving handler
// then closes the socket and frees the port's slot.
func (p *wsPort) Close() error {
	p.mu.Lock()
	stop := p.stop
	p.mu.Unlock()
	if stop != nil {
		stop()
	}
	return nil
}

// disconnect marks the port closed and notifies its listener once.
func (p *wsPort) disconnect() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	l := p.listener
	close(p.done)
	p.mu.Unlock()

	if l != nil {
		l.OnPortDisconnect(p)
	}
}
