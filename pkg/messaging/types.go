// Package messaging multiplexes named auxiliary ports onto named handlers and
// relays the peer connection handshake between ports.
package messaging

import (
	"encoding/json"
)

// VAPIChannel is the reserved channel for relay-internal messages.
const VAPIChannel = "vapi"

// Sender describes where a port was opened from. TabID 0 means the port does
// not belong to a tab.
type Sender struct {
	TabID   int    `json:"tabId"`
	FrameID int    `json:"frameId"`
	URL     string `json:"url,omitempty"`
}

// HasTab reports whether the sender belongs to a tab.
func (s *Sender) HasTab() bool {
	return s != nil && s.TabID != 0
}

// Port is a named bidirectional pipe to one auxiliary context.
//
// Implementations must be comparable (pointer receivers) since the relay
// uses port identity to decide whether a reply may still be delivered.
//
//go:generate mockgen -package=messaging -destination=mock_port_test.go github.com/odvcencio/extbridge/pkg/messaging Port
type Port interface {
	Name() string
	Sender() *Sender
	PostMessage(v any) error
	// SetListener attaches l to the port's message and disconnect events.
	// Passing nil detaches.
	SetListener(l PortListener)
}

// PortListener receives a port's events.
type PortListener interface {
	OnPortMessage(req *Request, p Port)
	OnPortDisconnect(p Port)
}

// PortCloser is implemented by ports whose transport can be shut down from
// the relay side. Close must not call back into the listener.
type PortCloser interface {
	Close() error
}

// Substrate produces ports. Listen registers the connect callback and is
// called at most once by the relay.
type Substrate interface {
	Listen(onConnect func(Port))
}

// Request is the envelope auxiliary contexts send. A non-nil AuxProcessID
// means the caller expects exactly one reply.
type Request struct {
	AuxProcessID *int64          `json:"auxProcessId,omitempty"`
	ChannelName  string          `json:"channelName"`
	Msg          json.RawMessage `json:"msg,omitempty"`
}

// Reply answers a Request on the port it arrived on.
type Reply struct {
	AuxProcessID *int64 `json:"auxProcessId"`
	ChannelName  string `json:"channelName"`
	Msg          any    `json:"msg"`
}

// BroadcastMessage is posted to every registered port by Broadcast.
type BroadcastMessage struct {
	Broadcast bool `json:"broadcast"`
	Msg       any  `json:"msg"`
}

// Responder replies to the request it was created for. Only the first call
// has an effect; a nil response is posted as null.
type Responder func(response any)

// Handler serves one channel. It must return Declined() to let the next
// handler try.
type Handler func(msg json.RawMessage, sender *Sender, respond Responder) Result

type resultKind uint8

const (
	resultDeclined resultKind = iota
	resultHandled
	resultAsync
)

// Result tells the relay what a Handler did with a request.
type Result struct {
	kind  resultKind
	value any
}

// Handled means the request was served and v is the reply.
func Handled(v any) Result {
	return Result{kind: resultHandled, value: v}
}

// HandledAsync means the handler took ownership of the responder and will
// call it itself, possibly later.
func HandledAsync() Result {
	return Result{kind: resultAsync}
}

// Declined means the handler does not serve this request.
func Declined() Result {
	return Result{}
}

// IsDeclined reports whether the handler passed on the request.
func (r Result) IsDeclined() bool {
	return r.kind == resultDeclined
}

// Value returns the reply carried by Handled.
func (r Result) Value() any {
	return r.value
}

// Decode is a small helper for handlers: it unmarshals msg into v and
// reports success.
func Decode(msg json.RawMessage, v any) bool {
	if len(msg) == 0 {
		return false
	}
	return json.Unmarshal(msg, v) == nil
}
