// Package ipc exposes the relay to auxiliary contexts: a websocket port
// substrate with a small control API, and a port substrate over the message
// bus.
package ipc

import (
	"context"
	"encoding/json"
	stdliberrors "errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/odvcencio/extbridge/pkg/messaging"
	"github.com/odvcencio/extbridge/pkg/telemetry"
)

// Config controls the IPC server behavior.
type Config struct {
	BindAddress    string
	AllowedOrigins []string
	MaxPorts       int
}

// Relay is the part of messaging.Relay the control API drives.
type Relay interface {
	Broadcast(msg any)
	OnTabRemoved(tabID int)
	Ports() []string
}

// Server hosts websocket ports, the telemetry event stream and the control
// API. It is a messaging.Substrate.
type Server struct {
	cfg          Config
	relay        Relay
	events       *telemetry.Hub
	healthCheck  func(ctx context.Context) error
	portLimiter  *connLimiter
	eventLimiter *connLimiter
	httpServer   *http.Server
	logger       zerolog.Logger

	mu        sync.Mutex
	onConnect func(messaging.Port)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithHealthCheck makes /healthz report 503 while check fails.
func WithHealthCheck(check func(ctx context.Context) error) Option {
	return func(s *Server) { s.healthCheck = check }
}

// NewServer constructs a server in front of relay. events may be nil, in
// which case /ws/events is not served.
func NewServer(cfg Config, relay Relay, events *telemetry.Hub, opts ...Option) *Server {
	if cfg.BindAddress == "" {
		cfg.BindAddress = "127.0.0.1:4489"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost", "http://127.0.0.1"}
	}
	if cfg.MaxPorts <= 0 {
		cfg.MaxPorts = defaultMaxPorts
	}
	s := &Server{
		cfg:          cfg,
		relay:        relay,
		events:       events,
		portLimiter:  newConnLimiter(cfg.MaxPorts),
		eventLimiter: newConnLimiter(maxEventStreamClients),
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen implements messaging.Substrate.
func (s *Server) Listen(onConnect func(messaging.Port)) {
	s.mu.Lock()
	s.onConnect = onConnect
	s.mu.Unlock()
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(s.corsMiddleware)
	router.Use(securityHeadersMiddleware)

	router.Get("/healthz", s.handleHealthz)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/ws/port", s.handlePort)
	if s.events != nil {
		router.Get("/ws/events", s.handleEvents)
	}

	router.Route("/api", func(r chi.Router) {
		r.Get("/ports", s.handleListPorts)
		r.Post("/broadcast", s.handleBroadcast)
		r.Delete("/tabs/{tabID}", s.handleTabRemoved)
	})
	return router
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.BindAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info().Str("bind", s.cfg.BindAddress).Msg("serving ports")
		if err := s.httpServer.ListenAndServe(); err != nil && !stdliberrors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.healthCheck != nil {
		if err := s.healthCheck(r.Context()); err != nil {
			respondError(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"ports":  len(s.relay.Ports()),
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListPorts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"ports": s.relay.Ports()})
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var msg json.RawMessage
	if status, err := decodeJSONBody(w, r, &msg, maxBroadcastBytes); err != nil {
		respondError(w, status, err)
		return
	}
	s.relay.Broadcast(msg)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTabRemoved(w http.ResponseWriter, r *http.Request) {
	tabID, err := strconv.Atoi(chi.URLParam(r, "tabID"))
	if err != nil || tabID <= 0 {
		respondError(w, http.StatusBadRequest, stdliberrors.New("tab id must be a positive integer"))
		return
	}
	s.relay.OnTabRemoved(tabID)
	w.WriteHeader(http.StatusNoContent)
}

// handlePort upgrades to a websocket port. Query parameters name the port
// and describe its sender; a missing name gets a random one.
func (s *Server) handlePort(w http.ResponseWriter, r *http.Request) {
	if !s.isWebSocketOriginAllowed(r) {
		metricRejected.WithLabelValues("origin").Inc()
		respondError(w, http.StatusForbidden, stdliberrors.New("origin not allowed"))
		return
	}
	s.mu.Lock()
	onConnect := s.onConnect
	s.mu.Unlock()
	if onConnect == nil {
		metricRejected.WithLabelValues("not_ready").Inc()
		respondError(w, http.StatusServiceUnavailable, stdliberrors.New("relay not ready"))
		return
	}
	if !s.portLimiter.Acquire() {
		metricRejected.WithLabelValues("capacity").Inc()
		respondError(w, http.StatusServiceUnavailable, stdliberrors.New("too many ports"))
		return
	}
	defer s.portLimiter.Release()

	name, sender := portParams(r)

	// Origin was checked above.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.logger.Debug().Err(err).Msg("port websocket accept failed")
		return
	}
	conn.SetReadLimit(maxWSReadBytesPort)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	port := newWSPort(name, sender, conn)
	port.stop = cancel
	metricPortsOpen.Inc()
	defer metricPortsOpen.Dec()

	startWSPing(ctx, conn, cancel)
	go func() {
		if err := port.writeLoop(ctx); err != nil && ctx.Err() == nil {
			s.logger.Debug().Err(err).Str("port", name).Msg("port write failed")
		}
		cancel()
	}()

	onConnect(port)
	err = port.readLoop(ctx)
	port.disconnect()

	status := websocket.CloseStatus(err)
	if status == -1 {
		_ = conn.Close(websocket.StatusGoingAway, "port closed")
	}
	s.logger.Debug().Str("port", name).Int("status", int(status)).Msg("port websocket closed")
}

func portParams(r *http.Request) (string, *messaging.Sender) {
	q := r.URL.Query()
	name := strings.TrimSpace(q.Get("name"))
	if name == "" {
		name = uuid.NewString()
	}
	sender := &messaging.Sender{URL: q.Get("url")}
	if v, err := strconv.Atoi(q.Get("tabId")); err == nil && v > 0 {
		sender.TabID = v
	}
	if v, err := strconv.Atoi(q.Get("frameId")); err == nil && v >= 0 {
		sender.FrameID = v
	}
	return name, sender
}

// handleEvents streams telemetry events as JSON text frames. The optional
// "type" query parameter is a comma-separated list of event type prefixes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.isWebSocketOriginAllowed(r) {
		metricRejected.WithLabelValues("origin").Inc()
		respondError(w, http.StatusForbidden, stdliberrors.New("origin not allowed"))
		return
	}
	if !s.eventLimiter.Acquire() {
		metricRejected.WithLabelValues("capacity").Inc()
		respondError(w, http.StatusServiceUnavailable, stdliberrors.New("too many event streams"))
		return
	}
	defer s.eventLimiter.Release()

	filter := eventFilter(r.URL.Query().Get("type"))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.logger.Debug().Err(err).Msg("event stream accept failed")
		return
	}
	conn.SetReadLimit(maxWSReadBytesEventStream)
	metricEventStreams.Inc()
	defer metricEventStreams.Dec()

	// Inbound frames are ignored; CloseRead ends ctx when the peer leaves.
	ctx := conn.CloseRead(r.Context())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	startWSPing(ctx, conn, cancel)

	ch, unsubscribe := s.events.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case event, ok := <-ch:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			if !filter(event) {
				continue
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, portWriteTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancelWrite()
			if err != nil {
				return
			}
		}
	}
}

func eventFilter(raw string) func(telemetry.Event) bool {
	var prefixes []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return func(e telemetry.Event) bool {
		if len(prefixes) == 0 {
			return true
		}
		for _, p := range prefixes {
			if strings.HasPrefix(string(e.Type), p) {
				return true
			}
		}
		return false
	}
}
