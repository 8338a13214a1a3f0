// Package client is the auxiliary side of a websocket port: it dials the
// relay, sends requests on named channels and receives replies, broadcasts
// and peer connection traffic.
package client

import (
	"context"
	"encoding/json"
	stdliberrors "errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	exterrors "github.com/odvcencio/extbridge/pkg/errors"
	"github.com/odvcencio/extbridge/pkg/messaging"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 15 * time.Second
	inboxSize        = 64
)

// ErrClosed is returned by calls on a closed client.
var ErrClosed = exterrors.New(exterrors.ErrCodePortClosed, "client closed")

// Options describe the port to open. An empty Name is replaced with a random
// one, since peer connections need the client to know its own token.
type Options struct {
	Name    string
	TabID   int
	FrameID int
	URL     string
	Header  http.Header
	Logger  *zerolog.Logger
}

// frame is any message the relay posts down a port: a reply, a broadcast or
// a forwarded framework message.
type frame struct {
	AuxProcessID *int64         `json:"auxProcessId"`
	ChannelName  string          `json:"channelName"`
	Msg          json.RawMessage `json:"msg"`
	Broadcast    bool            `json:"broadcast"`
}

// Client is one open port.
type Client struct {
	name   string
	conn   *websocket.Conn
	logger zerolog.Logger

	writeMu sync.Mutex
	nextID  atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan json.RawMessage
	closed  bool
	err     error

	broadcasts chan json.RawMessage
	framework  chan json.RawMessage
	done       chan struct{}
}

// Dial opens a port at rawURL, the relay's /ws/port endpoint.
func Dial(ctx context.Context, rawURL string, opts Options) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, exterrors.Wrap(err, exterrors.ErrCodeInvalidInput, "parse relay url")
	}
	if opts.Name == "" {
		opts.Name = uuid.NewString()
	}
	q := u.Query()
	q.Set("name", opts.Name)
	if opts.TabID > 0 {
		q.Set("tabId", strconv.Itoa(opts.TabID))
	}
	if opts.FrameID > 0 {
		q.Set("frameId", strconv.Itoa(opts.FrameID))
	}
	if opts.URL != "" {
		q.Set("url", opts.URL)
	}
	u.RawQuery = q.Encode()

	d := websocket.Dialer{
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: handshakeTimeout,
	}
	conn, resp, err := d.DialContext(ctx, u.String(), opts.Header)
	if err != nil {
		e := exterrors.Wrap(err, exterrors.ErrCodeHostUnavailable, "dial relay").WithContext("url", rawURL)
		if resp != nil {
			e = e.WithContext("status", resp.StatusCode)
			if resp.StatusCode == http.StatusServiceUnavailable {
				e = e.WithRetryable(true)
			}
		}
		return nil, e
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	c := &Client{
		name:       opts.Name,
		conn:       conn,
		logger:     logger.With().Str("port", opts.Name).Logger(),
		pending:    make(map[int64]chan json.RawMessage),
		broadcasts: make(chan json.RawMessage, inboxSize),
		framework:  make(chan json.RawMessage, inboxSize),
		done:       make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Name is the port name, which doubles as the peer connection token.
func (c *Client) Name() string { return c.name }

// Broadcasts yields the msg of every relay broadcast. It is closed when the
// connection ends.
func (c *Client) Broadcasts() <-chan json.RawMessage { return c.broadcasts }

// Framework yields vapi messages other ports routed to this one. It is
// closed when the connection ends.
func (c *Client) Framework() <-chan json.RawMessage { return c.framework }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended, or nil while it is open.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send posts msg on channel and waits for the reply.
func (c *Client) Send(ctx context.Context, channel string, msg any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	ch := make(chan json.RawMessage, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	if err := c.write(ctx, &id, channel, msg); err != nil {
		forget()
		return nil, err
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		forget()
		return nil, ctx.Err()
	case <-c.done:
		forget()
		return nil, ErrClosed
	}
}

// Post sends msg on channel without asking for a reply.
func (c *Client) Post(ctx context.Context, channel string, msg any) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return c.write(ctx, nil, channel, msg)
}

func (c *Client) write(ctx context.Context, id *int64, channel string, msg any) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return exterrors.Wrap(err, exterrors.ErrCodeInvalidInput, "encode message")
	}
	req := messaging.Request{AuxProcessID: id, ChannelName: channel, Msg: raw}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(req); err != nil {
		return exterrors.Wrap(err, exterrors.ErrCodePortClosed, "write request").WithContext("channel", channel)
	}
	return nil
}

// Close ends the connection. Pending Sends fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) readLoop() {
	defer func() {
		close(c.broadcasts)
		close(c.framework)
		close(c.done)
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) || stdliberrors.Is(err, net.ErrClosed) {
			err = ErrClosed
		}
		c.err = err
	}
	c.closed = true
	c.pending = make(map[int64]chan json.RawMessage)
}

func (c *Client) dispatch(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.logger.Debug().Err(err).Msg("dropping malformed frame")
		return
	}

	switch {
	case f.Broadcast:
		c.offer(c.broadcasts, f.Msg, "broadcast")
	case f.ChannelName == messaging.VAPIChannel && isFrameworkMsg(f.Msg):
		c.offer(c.framework, f.Msg, "framework")
	case f.AuxProcessID != nil:
		c.mu.Lock()
		ch, ok := c.pending[*f.AuxProcessID]
		delete(c.pending, *f.AuxProcessID)
		c.mu.Unlock()
		if !ok {
			c.logger.Debug().Int64("auxProcessId", *f.AuxProcessID).Msg("reply for unknown request")
			return
		}
		msg := f.Msg
		if len(msg) == 0 {
			msg = json.RawMessage("null")
		}
		ch <- msg
	}
}

// offer never blocks the read loop; a full inbox drops the message.
func (c *Client) offer(ch chan json.RawMessage, msg json.RawMessage, kind string) {
	select {
	case ch <- msg:
	default:
		c.logger.Warn().Str("kind", kind).Msg("inbox full, message dropped")
	}
}

// isFrameworkMsg reports whether msg is a routed peer message rather than
// the null reply to a vapi request.
func isFrameworkMsg(msg json.RawMessage) bool {
	var probe struct {
		What string `json:"what"`
	}
	return json.Unmarshal(msg, &probe) == nil && probe.What != ""
}
