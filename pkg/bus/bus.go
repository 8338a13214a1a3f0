// Package bus carries port traffic and host facility calls between extbridge
// and processes that are not connected over a websocket. It supports
// publish/subscribe, queue groups and request/reply. NATS is the production
// transport; MemoryBus serves single-process setups and tests.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrTimeout is returned when a request times out waiting for a response.
	ErrTimeout = errors.New("request timeout")

	// ErrNoResponders is returned when no subscribers are available to handle a request.
	ErrNoResponders = errors.New("no responders available")

	// ErrClosed is returned when operating on a closed bus or subscription.
	ErrClosed = errors.New("bus or subscription closed")
)

// Subjects shared by the bus port substrate and the host bridge.
const (
	SubjectPrefix      = "extbridge"
	SubjectPortConnect = "extbridge.port.connect"
	SubjectTabRemoved  = "extbridge.host.tabs.removed"

	// QueueGroup load-balances connect requests across extbridge instances.
	QueueGroup = "extbridge"
)

// Port subject directions.
const (
	DirUp         = "up"
	DirDown       = "down"
	DirDisconnect = "disconnect"
)

// MessageBus is the transport interface. Implementations must be safe for
// concurrent use.
type MessageBus interface {
	// Publish sends a message to all subscribers of the given subject.
	// Returns immediately; does not wait for message delivery.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// Supports wildcards: "extbridge.port.*.up" matches "extbridge.port.abc.up".
	Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a single response.
	Request(ctx context.Context, subject string, data []byte, timeout time.Duration) ([]byte, error)

	// QueueSubscribe creates a subscription where messages are load-balanced
	// across subscribers in the same queue group.
	QueueSubscribe(ctx context.Context, subject, queue string, handler MessageHandler) (Subscription, error)

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// MessageHandler processes incoming messages.
// For request/reply, return data to send as response; return nil for no response.
type MessageHandler func(msg *Message) []byte

// Message represents an incoming message from the bus.
type Message struct {
	Subject string
	Data    []byte
	ReplyTo string // Set if sender expects a response
}

// Subscription represents an active subscription that can be cancelled.
type Subscription interface {
	Unsubscribe() error
	Subject() string
}

// Config holds configuration for creating a MessageBus.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	// Ignored for in-memory bus.
	URL string

	// Name is a client identifier for debugging/monitoring.
	Name string

	// Timeout is the default timeout for operations.
	Timeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:     "nats://localhost:4222",
		Name:    "extbridge",
		Timeout: 5 * time.Second,
	}
}

// PortSubject returns the subject for one direction of a named port.
func PortSubject(name, dir string) string {
	return SubjectPrefix + ".port." + name + "." + dir
}

// HostSubject returns the subject a host facility call is sent on, e.g.
// HostSubject("tabs", "query") is "extbridge.host.tabs.query".
func HostSubject(area, op string) string {
	return SubjectPrefix + ".host." + area + "." + op
}

// ValidToken reports whether s can be used as a single subject token.
func ValidToken(s string) bool {
	if s == "" {
		return false
	}
	return !strings.ContainsAny(s, ".*> \t\r\n")
}

// hostReply is the envelope host facilities answer with.
type hostReply struct {
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// HostError is an error reported by the host facility itself, as opposed to
// a transport failure.
type HostError struct {
	Subject string
	Message string
}

func (e *HostError) Error() string {
	return fmt.Sprintf("%s: %s", e.Subject, e.Message)
}

// Call sends in as JSON to subject and decodes the host's reply into out.
// The reply is {"result": ...} or {"error": "..."}. out may be nil.
func Call(ctx context.Context, b MessageBus, subject string, in, out any, timeout time.Duration) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subject, err)
	}
	raw, err := b.Request(ctx, subject, data, timeout)
	if err != nil {
		return err
	}
	var reply hostReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return fmt.Errorf("decode %s: %w", subject, err)
	}
	if reply.Error != "" {
		return &HostError{Subject: subject, Message: reply.Error}
	}
	if out == nil || len(reply.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(reply.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", subject, err)
	}
	return nil
}

// Serve answers host facility calls on subject with fn. It is the other side
// of Call, used by host adapters and tests.
func Serve(ctx context.Context, b MessageBus, subject string, fn func(data []byte) (any, error)) (Subscription, error) {
	return b.Subscribe(ctx, subject, func(msg *Message) []byte {
		result, err := fn(msg.Data)
		var reply hostReply
		if err != nil {
			reply.Error = err.Error()
		} else if result != nil {
			reply.Result, err = json.Marshal(result)
			if err != nil {
				reply.Error = err.Error()
			}
		}
		out, _ := json.Marshal(reply)
		return out
	})
}
