package messaging

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	exterrors "github.com/odvcencio/extbridge/pkg/errors"
	"github.com/odvcencio/extbridge/pkg/telemetry"
)

const defaultHostTimeout = 10 * time.Second

// Relay owns the port registry and the channel handler table.
type Relay struct {
	mu             sync.RWMutex
	ports          map[string]Port
	listeners      map[string]Handler
	defaultHandler Handler
	ready          bool

	css             StyleInjector
	userStylesheets atomic.Bool
	hostTimeout     time.Duration
	baseCtx         context.Context

	events telemetry.Publisher
	logger zerolog.Logger
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the relay logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

// WithStyleInjector sets the host facility used by userCSS.
func WithStyleInjector(css StyleInjector) Option {
	return func(r *Relay) { r.css = css }
}

// WithUserStylesheets marks injected CSS as user-origin.
func WithUserStylesheets(enabled bool) Option {
	return func(r *Relay) { r.userStylesheets.Store(enabled) }
}

// WithEvents publishes port lifecycle events to p.
func WithEvents(p telemetry.Publisher) Option {
	return func(r *Relay) { r.events = p }
}

// WithHostTimeout bounds each host call made on behalf of a request.
func WithHostTimeout(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.hostTimeout = d
		}
	}
}

// WithContext sets the parent context of host calls.
func WithContext(ctx context.Context) Option {
	return func(r *Relay) {
		if ctx != nil {
			r.baseCtx = ctx
		}
	}
}

// NewRelay creates an empty relay. Call Setup before ports can connect.
func NewRelay(opts ...Option) *Relay {
	r := &Relay{
		ports:       make(map[string]Port),
		listeners:   make(map[string]Handler),
		hostTimeout: defaultHostTimeout,
		baseCtx:     context.Background(),
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetUserStylesheets updates whether the host supports user-origin CSS. It
// is called again when the host flavor changes.
func (r *Relay) SetUserStylesheets(enabled bool) {
	r.userStylesheets.Store(enabled)
}

// Listen registers h for channel. A second registration replaces the first.
func (r *Relay) Listen(channel string, h Handler) error {
	if channel == VAPIChannel {
		return exterrors.Newf(exterrors.ErrCodeInvalidInput, "channel %q is reserved", channel)
	}
	if channel == "" || h == nil {
		return exterrors.New(exterrors.ErrCodeInvalidInput, "channel name and handler are required")
	}
	r.mu.Lock()
	r.listeners[channel] = h
	r.mu.Unlock()
	return nil
}

// Setup installs defaultHandler and starts accepting ports from substrates.
// Only the first call has any effect.
func (r *Relay) Setup(defaultHandler Handler, substrates ...Substrate) {
	r.mu.Lock()
	if r.ready {
		r.mu.Unlock()
		return
	}
	r.ready = true
	if defaultHandler == nil {
		defaultHandler = func(json.RawMessage, *Sender, Responder) Result { return Declined() }
	}
	r.defaultHandler = defaultHandler
	r.mu.Unlock()

	for _, sub := range substrates {
		if sub != nil {
			sub.Listen(r.OnPortConnect)
		}
	}
}

// OnPortConnect registers p and attaches the relay as its listener. The port
// is registered first so a request read straight away can still be answered.
func (r *Relay) OnPortConnect(p Port) {
	if p == nil {
		return
	}
	r.mu.Lock()
	r.ports[p.Name()] = p
	count := len(r.ports)
	r.mu.Unlock()
	p.SetListener(r)

	metricPortsConnected.Set(float64(count))
	r.publish(telemetry.Event{Type: telemetry.EventPortConnected, Port: p.Name(), TabID: senderTab(p)})
	r.logger.Debug().Str("port", p.Name()).Int("tab", senderTab(p)).Msg("port connected")
}

// OnPortDisconnect detaches the relay from p and forgets it. Calling it more
// than once is harmless. A newer port registered under the same name is left
// alone.
func (r *Relay) OnPortDisconnect(p Port) {
	if p == nil {
		return
	}
	p.SetListener(nil)

	r.mu.Lock()
	current, ok := r.ports[p.Name()]
	removed := ok && current == p
	if removed {
		delete(r.ports, p.Name())
	}
	count := len(r.ports)
	r.mu.Unlock()

	if !removed {
		return
	}
	metricPortsConnected.Set(float64(count))
	r.publish(telemetry.Event{Type: telemetry.EventPortDisconnected, Port: p.Name(), TabID: senderTab(p)})
	r.logger.Debug().Str("port", p.Name()).Msg("port disconnected")
}

// OnPortMessage dispatches one request that arrived on p.
func (r *Relay) OnPortMessage(req *Request, p Port) {
	if req == nil || p == nil {
		return
	}
	respond := r.responderFor(p, req)

	if req.ChannelName == VAPIChannel {
		metricMessages.WithLabelValues(VAPIChannel).Inc()
		r.toFramework(req, p, respond)
		return
	}

	r.mu.RLock()
	listener := r.listeners[req.ChannelName]
	fallback := r.defaultHandler
	r.mu.RUnlock()

	if listener != nil {
		metricMessages.WithLabelValues(req.ChannelName).Inc()
	} else {
		metricMessages.WithLabelValues("other").Inc()
	}

	sender := p.Sender()
	if listener != nil && settle(listener(req.Msg, sender, respond), respond) {
		return
	}
	if fallback != nil && settle(fallback(req.Msg, sender, respond), respond) {
		return
	}

	metricUnhandled.Inc()
	r.publish(telemetry.Event{
		Type: telemetry.EventRequestUnhandled,
		Port: p.Name(),
		Data: map[string]any{"channel": req.ChannelName},
	})
	r.logger.Error().
		Str("port", p.Name()).
		Str("channel", req.ChannelName).
		RawJSON("msg", rawOrNull(req.Msg)).
		Msg("unhandled request")

	// Reply anyway so the caller is not left waiting.
	respond(nil)
}

// Broadcast posts {broadcast: true, msg} to every registered port.
func (r *Relay) Broadcast(msg any) {
	wrapper := BroadcastMessage{Broadcast: true, Msg: msg}
	ports := r.snapshot()
	for _, p := range ports {
		if err := p.PostMessage(wrapper); err != nil {
			r.logger.Debug().Err(err).Str("port", p.Name()).Msg("broadcast post failed")
		}
	}
	r.publish(telemetry.Event{Type: telemetry.EventBroadcast, Data: map[string]any{"ports": len(ports)}})
}

// OnTabRemoved tears down every port opened from tabID without waiting for
// the substrate's own disconnect. Ports implementing PortCloser also have
// their transport closed.
func (r *Relay) OnTabRemoved(tabID int) {
	if tabID == 0 {
		return
	}
	for _, p := range r.snapshot() {
		s := p.Sender()
		if s == nil || !s.HasTab() || s.TabID != tabID {
			continue
		}
		r.OnPortDisconnect(p)
		if c, ok := p.(PortCloser); ok {
			if err := c.Close(); err != nil {
				r.logger.Debug().Err(err).Str("port", p.Name()).Msg("closing port transport")
			}
		}
	}
	r.publish(telemetry.Event{Type: telemetry.EventTabRemoved, TabID: tabID})
}

// Ports returns the sorted names of registered ports.
func (r *Relay) Ports() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.ports))
	for name := range r.ports {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Port returns the registered port with the given name.
func (r *Relay) Port(name string) (Port, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.ports[name]
	return p, ok
}

func (r *Relay) isRegistered(p Port) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	current, ok := r.ports[p.Name()]
	return ok && current == p
}

func (r *Relay) snapshot() []Port {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Port, 0, len(r.ports))
	for _, p := range r.ports {
		out = append(out, p)
	}
	return out
}

// responderFor builds the one-shot reply callback for req. Requests without
// an auxProcessId get a no-op.
func (r *Relay) responderFor(p Port, req *Request) Responder {
	if req.AuxProcessID == nil {
		return func(any) {}
	}
	auxID := *req.AuxProcessID
	channel := req.ChannelName
	var once sync.Once
	return func(response any) {
		once.Do(func() {
			if !r.isRegistered(p) {
				metricRepliesDropped.Inc()
				return
			}
			err := p.PostMessage(Reply{
				AuxProcessID: &auxID,
				ChannelName:  channel,
				Msg:          response,
			})
			if err != nil {
				r.logger.Debug().Err(err).Str("port", p.Name()).Msg("reply post failed")
			}
		})
	}
}

func (r *Relay) publish(e telemetry.Event) {
	if r.events != nil {
		r.events.Publish(e)
	}
}

func (r *Relay) hostContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.baseCtx, r.hostTimeout)
}

// settle applies a handler result and reports whether dispatch is done.
func settle(res Result, respond Responder) bool {
	switch res.kind {
	case resultDeclined:
		return false
	case resultHandled:
		respond(res.value)
	}
	return true
}

func senderTab(p Port) int {
	if s := p.Sender(); s != nil {
		return s.TabID
	}
	return 0
}

func rawOrNull(msg []byte) []byte {
	if len(msg) == 0 {
		return []byte("null")
	}
	return msg
}
