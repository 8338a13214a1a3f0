package ipc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/odvcencio/extbridge/pkg/bus"
	exterrors "github.com/odvcencio/extbridge/pkg/errors"
	"github.com/odvcencio/extbridge/pkg/messaging"
	"github.com/odvcencio/extbridge/pkg/telemetry"
)

// ConnectRequest is the payload of a port connect request on the bus.
type ConnectRequest struct {
	Name   string            `json:"name"`
	Sender *messaging.Sender `json:"sender,omitempty"`
}

// ConnectReply answers a ConnectRequest.
type ConnectReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// TabRemoved is the payload of the host tab-removed event.
type TabRemoved struct {
	TabID int `json:"tabId"`
}

// BusSubstrate maps message bus subjects onto relay ports, for auxiliary
// contexts that live in other processes.
type BusSubstrate struct {
	bus          bus.MessageBus
	onTabRemoved func(tabID int)
	logger       zerolog.Logger

	mu        sync.Mutex
	ctx       context.Context
	onConnect func(messaging.Port)
	ports     map[string]*busPort
	subs      []bus.Subscription
}

// BusOption configures a BusSubstrate.
type BusOption func(*BusSubstrate)

// WithBusLogger sets the substrate logger.
func WithBusLogger(logger zerolog.Logger) BusOption {
	return func(s *BusSubstrate) { s.logger = logger }
}

// WithTabRemoved routes host tab-removed events to fn.
func WithTabRemoved(fn func(tabID int)) BusOption {
	return func(s *BusSubstrate) { s.onTabRemoved = fn }
}

// NewBusSubstrate creates a substrate over b. Call Start to subscribe.
func NewBusSubstrate(b bus.MessageBus, opts ...BusOption) *BusSubstrate {
	s := &BusSubstrate{
		bus:    b,
		logger: zerolog.Nop(),
		ctx:    context.Background(),
		ports:  make(map[string]*busPort),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen implements messaging.Substrate.
func (s *BusSubstrate) Listen(onConnect func(messaging.Port)) {
	s.mu.Lock()
	s.onConnect = onConnect
	s.mu.Unlock()
}

// Start subscribes to connect requests, load-balanced across extbridge
// instances, and to host tab-removed events.
func (s *BusSubstrate) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	connectSub, err := s.bus.QueueSubscribe(ctx, bus.SubjectPortConnect, bus.QueueGroup, s.handleConnect)
	if err != nil {
		return err
	}
	s.track(connectSub)

	tabSub, err := s.bus.Subscribe(ctx, bus.SubjectTabRemoved, s.handleTabRemoved)
	if err != nil {
		return err
	}
	s.track(tabSub)
	return nil
}

// Stop unsubscribes and disconnects every bus port.
func (s *BusSubstrate) Stop() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	ports := make([]*busPort, 0, len(s.ports))
	for _, p := range s.ports {
		ports = append(ports, p)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	for _, p := range ports {
		p.disconnect()
	}
}

func (s *BusSubstrate) track(sub bus.Subscription) {
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
}

func (s *BusSubstrate) handleConnect(msg *bus.Message) []byte {
	reply := func(err error) []byte {
		r := ConnectReply{OK: err == nil}
		if err != nil {
			r.Error = err.Error()
		}
		out, _ := json.Marshal(r)
		return out
	}

	var req ConnectRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return reply(exterrors.Wrap(err, exterrors.ErrCodeInvalidInput, "decode connect request"))
	}
	if !bus.ValidToken(req.Name) {
		return reply(exterrors.New(exterrors.ErrCodeInvalidInput, "port name is not a valid subject token").
			WithContext("name", req.Name))
	}

	s.mu.Lock()
	onConnect := s.onConnect
	ctx := s.ctx
	previous := s.ports[req.Name]
	s.mu.Unlock()
	if onConnect == nil {
		return reply(exterrors.New(exterrors.ErrCodeHostUnavailable, "relay not ready"))
	}

	// A reconnect under the same name replaces the old port.
	if previous != nil {
		previous.disconnect()
	}

	sender := req.Sender
	if sender == nil {
		sender = &messaging.Sender{}
	}
	p := &busPort{name: req.Name, sender: sender, owner: s, ctx: ctx}

	up, err := s.bus.Subscribe(ctx, bus.PortSubject(req.Name, bus.DirUp), p.handleUp)
	if err != nil {
		return reply(err)
	}
	down, err := s.bus.Subscribe(ctx, bus.PortSubject(req.Name, bus.DirDisconnect), func(*bus.Message) []byte {
		p.disconnect()
		return nil
	})
	if err != nil {
		_ = up.Unsubscribe()
		return reply(err)
	}
	p.mu.Lock()
	p.subs = []bus.Subscription{up, down}
	p.mu.Unlock()

	s.mu.Lock()
	s.ports[req.Name] = p
	s.mu.Unlock()
	metricPortsOpen.Inc()

	onConnect(p)
	s.logger.Debug().Str("port", req.Name).Int("tab", sender.TabID).Msg("bus port connected")
	return reply(nil)
}

func (s *BusSubstrate) handleTabRemoved(msg *bus.Message) []byte {
	var ev TabRemoved
	if err := json.Unmarshal(msg.Data, &ev); err != nil || ev.TabID <= 0 {
		s.logger.Debug().Str("subject", msg.Subject).Msg("ignoring malformed tab-removed event")
		return nil
	}
	if s.onTabRemoved != nil {
		s.onTabRemoved(ev.TabID)
	}
	return nil
}

func (s *BusSubstrate) forget(p *busPort) {
	s.mu.Lock()
	if s.ports[p.name] == p {
		delete(s.ports, p.name)
	}
	s.mu.Unlock()
}

// busPort is a messaging.Port whose traffic flows over the port's up and
// down subjects.
type busPort struct {
	name   string
	sender *messaging.Sender
	owner  *BusSubstrate
	ctx    context.Context
	subs   []bus.Subscription

	mu       sync.Mutex
	listener messaging.PortListener
	closed   bool
}

func (p *busPort) Name() string               { return p.name }
func (p *busPort) Sender() *messaging.Sender { return p.sender }

func (p *busPort) SetListener(l messaging.PortListener) {
	p.mu.Lock()
	p.listener = l
	p.mu.Unlock()
}

func (p *busPort) PostMessage(v any) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return exterrors.New(exterrors.ErrCodePortClosed, "port closed").WithContext("port", p.name)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return exterrors.Wrap(err, exterrors.ErrCodeInvalidInput, "encode port message")
	}
	if err := p.owner.bus.Publish(p.ctx, bus.PortSubject(p.name, bus.DirDown), data); err != nil {
		return exterrors.Wrap(err, exterrors.ErrCodeHostUnavailable, "publish port message").
			WithContext("port", p.name)
	}
	metricPortFrames.WithLabelValues("bus", "down").Inc()
	return nil
}

func (p *busPort) handleUp(msg *bus.Message) []byte {
	var req messaging.Request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		p.owner.logger.Debug().Err(err).Str("port", p.name).Msg("dropping malformed port frame")
		return nil
	}
	p.mu.Lock()
	l := p.listener
	closed := p.closed
	p.mu.Unlock()
	if closed || l == nil {
		return nil
	}
	metricPortFrames.WithLabelValues("bus", "up").Inc()
	l.OnPortMessage(&req, p)
	return nil
}

// Close drops the port's subscriptions.
func (p *busPort) Close() error {
	p.disconnect()
	return nil
}

func (p *busPort) disconnect() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	l := p.listener
	subs := p.subs
	p.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	p.owner.forget(p)
	metricPortsOpen.Dec()
	if l != nil {
		l.OnPortDisconnect(p)
	}
}

// ForwardEvents publishes every telemetry event from hub to the bus as
// extbridge.events.<type> until ctx ends.
func ForwardEvents(ctx context.Context, hub *telemetry.Hub, b bus.MessageBus, logger zerolog.Logger) {
	ch, unsubscribe := hub.Subscribe()
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				data, err := json.Marshal(event)
				if err != nil {
					continue
				}
				if err := b.Publish(ctx, EventSubject(event.Type), data); err != nil {
					logger.Debug().Err(err).Str("type", string(event.Type)).Msg("event forward failed")
				}
			}
		}
	}()
}

// EventSubject is the bus subject telemetry events of type t are forwarded on.
func EventSubject(t telemetry.EventType) string {
	return bus.SubjectPrefix + ".events." + string(t)
}
