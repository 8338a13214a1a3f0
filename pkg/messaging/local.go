package messaging

import (
	"encoding/json"
	"sync"

	exterrors "github.com/odvcencio/extbridge/pkg/errors"
)

const localPortBuffer = 256

// LocalSubstrate produces in-process ports. It is what embedded auxiliary
// contexts and tests connect through.
type LocalSubstrate struct {
	mu        sync.Mutex
	onConnect func(Port)
	pending   []*LocalPort
}

// NewLocalSubstrate creates a substrate with no ports.
func NewLocalSubstrate() *LocalSubstrate {
	return &LocalSubstrate{}
}

// Listen implements Substrate. Ports connected before Listen are delivered
// now, in connection order.
func (s *LocalSubstrate) Listen(onConnect func(Port)) {
	s.mu.Lock()
	s.onConnect = onConnect
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, p := range pending {
		onConnect(p)
	}
}

// Connect opens a port named name. A nil sender is a port outside any tab.
func (s *LocalSubstrate) Connect(name string, sender *Sender) *LocalPort {
	p := &LocalPort{
		name:   name,
		sender: sender,
		out:    make(chan json.RawMessage, localPortBuffer),
	}
	s.mu.Lock()
	onConnect := s.onConnect
	if onConnect == nil {
		s.pending = append(s.pending, p)
	}
	s.mu.Unlock()

	if onConnect != nil {
		onConnect(p)
	}
	return p
}

// LocalPort is an in-process Port. Posted messages are JSON-encoded, as they
// would be on a real transport, and read back from Messages.
type LocalPort struct {
	name   string
	sender *Sender

	mu       sync.Mutex
	listener PortListener
	closed   bool
	out      chan json.RawMessage
}

// Name implements Port.
func (p *LocalPort) Name() string { return p.name }

// Sender implements Port.
func (p *LocalPort) Sender() *Sender { return p.sender }

// SetListener implements Port.
func (p *LocalPort) SetListener(l PortListener) {
	p.mu.Lock()
	p.listener = l
	p.mu.Unlock()
}

// PostMessage implements Port.
func (p *LocalPort) PostMessage(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return exterrors.Wrap(err, exterrors.ErrCodeInvalidInput, "encode port message")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return exterrors.New(exterrors.ErrCodePortClosed, "port closed").
			WithContext("port", p.name)
	}
	select {
	case p.out <- data:
		return nil
	default:
		return exterrors.New(exterrors.ErrCodePortClosed, "port buffer full").
			WithContext("port", p.name).
			WithRetryable(true)
	}
}

// Messages returns the stream of messages posted to the port. It is closed
// on Disconnect.
func (p *LocalPort) Messages() <-chan json.RawMessage {
	return p.out
}

// Send delivers req to the port's listener as if the auxiliary context had
// sent it.
func (p *LocalPort) Send(req *Request) error {
	p.mu.Lock()
	l := p.listener
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return exterrors.New(exterrors.ErrCodePortClosed, "port closed").
			WithContext("port", p.name)
	}
	if l == nil {
		return exterrors.New(exterrors.ErrCodeHostUnavailable, "port has no listener").
			WithContext("port", p.name)
	}
	l.OnPortMessage(req, p)
	return nil
}

// SendRaw decodes a wire-format request and delivers it.
func (p *LocalPort) SendRaw(data []byte) error {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return exterrors.Wrap(err, exterrors.ErrCodeInvalidInput, "decode port request")
	}
	return p.Send(&req)
}

// Disconnect closes the port and notifies its listener. Further calls are
// no-ops.
func (p *LocalPort) Disconnect() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	l := p.listener
	close(p.out)
	p.mu.Unlock()

	if l != nil {
		l.OnPortDisconnect(p)
	}
}

// Close implements PortCloser.
func (p *LocalPort) Close() error {
	p.Disconnect()
	return nil
}
