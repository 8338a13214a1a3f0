package messaging

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/extbridge/pkg/telemetry"
)

// Kinds carried in msg.what on the vapi channel.
const (
	WhatConnectionRequested = "connectionRequested"
	WhatConnectionAccepted  = "connectionAccepted"
	WhatConnectionRefused   = "connectionRefused"
	WhatConnectionBroken    = "connectionBroken"
	WhatConnectionCheck     = "connectionCheck"
	WhatConnectionMessage   = "connectionMessage"
	WhatUserCSS             = "userCSS"
)

const maxConcurrentCSSCalls = 8

// CSSDetails is the host's style injection request.
type CSSDetails struct {
	Code            string `json:"code"`
	FrameID         *int   `json:"frameId,omitempty"`
	MatchAboutBlank bool   `json:"matchAboutBlank"`
	CSSOrigin       string `json:"cssOrigin,omitempty"`
	RunAt           string `json:"runAt,omitempty"`
}

// StyleInjector inserts CSS into a tab.
//
//go:generate mockgen -package=messaging -destination=mock_style_test.go github.com/odvcencio/extbridge/pkg/messaging StyleInjector,CSSRemover
type StyleInjector interface {
	InsertCSS(ctx context.Context, tabID int, details CSSDetails) error
}

// CSSRemover is implemented by hosts that can also remove injected CSS.
type CSSRemover interface {
	RemoveCSS(ctx context.Context, tabID int, details CSSDetails) error
}

// frameworkMsg is a vapi payload. Fields are kept raw so forwarding
// preserves whatever the peers put in them.
type frameworkMsg map[string]json.RawMessage

func (m frameworkMsg) str(key string) string {
	raw, ok := m[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func (m frameworkMsg) present(key string) bool {
	raw, ok := m[key]
	return ok && string(raw) != "null"
}

func (m frameworkMsg) strings(key string) []string {
	raw, ok := m[key]
	if !ok {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func (m frameworkMsg) setWhat(what string) {
	m["what"], _ = json.Marshal(what)
}

// setTab tags the message with the originating tab; no tab means no field.
func (m frameworkMsg) setTab(s *Sender) {
	if s.HasTab() {
		m["tabId"], _ = json.Marshal(s.TabID)
		return
	}
	delete(m, "tabId")
}

// toFramework routes a vapi request. The only replies it sends are the
// userCSS completion and, for routing messages that carry an auxProcessId,
// a null once routing is done. A bounced routing message therefore reaches
// its sender twice under the same auxProcessId: first as connectionBroken,
// then as the null reply.
func (r *Relay) toFramework(req *Request, p Port, respond Responder) {
	sender := p.Sender()
	if sender == nil {
		sender = &Sender{}
	}

	var msg frameworkMsg
	if err := json.Unmarshal(req.Msg, &msg); err != nil || msg == nil {
		r.logger.Debug().Err(err).Str("port", p.Name()).Msg("malformed framework message")
		respond(nil)
		return
	}

	switch what := msg.str("what"); what {
	case WhatConnectionAccepted, WhatConnectionRefused:
		r.forward(req, msg, p, msg.str("fromToken"))
	case WhatConnectionRequested:
		msg.setTab(sender)
		out := rewrap(req, msg)
		for _, to := range r.snapshot() {
			r.post(to, out)
		}
	case WhatConnectionBroken, WhatConnectionCheck, WhatConnectionMessage:
		dest := msg.str("fromToken")
		if p.Name() == dest {
			dest = msg.str("toToken")
		}
		r.forward(req, msg, p, dest)
	case WhatUserCSS:
		r.userCSS(msg, sender, respond)
		return
	default:
		r.logger.Debug().Str("what", what).Str("port", p.Name()).Msg("unknown framework message")
	}
	respond(nil)
}

// forward delivers to the port named dest, or bounces the request back to
// its sender as connectionBroken when dest is gone.
func (r *Relay) forward(req *Request, msg frameworkMsg, from Port, dest string) {
	if to, ok := r.Port(dest); ok {
		msg.setTab(from.Sender())
		r.post(to, rewrap(req, msg))
		return
	}
	what := msg.str("what")
	msg.setWhat(WhatConnectionBroken)
	metricBroken.WithLabelValues(what).Inc()
	r.publish(telemetry.Event{
		Type: telemetry.EventConnectionBroken,
		Port: from.Name(),
		Data: map[string]any{"what": what, "token": dest},
	})
	r.post(from, rewrap(req, msg))
}

func (r *Relay) post(p Port, v any) {
	if err := p.PostMessage(v); err != nil {
		r.logger.Debug().Err(err).Str("port", p.Name()).Msg("framework post failed")
	}
}

func rewrap(req *Request, msg frameworkMsg) *Request {
	raw, _ := json.Marshal(msg)
	return &Request{
		AuxProcessID: req.AuxProcessID,
		ChannelName:  req.ChannelName,
		Msg:          raw,
	}
}

// userCSS injects msg.add and removes msg.remove in the sender's tab and
// replies once every host call has returned, including when there is none.
func (r *Relay) userCSS(msg frameworkMsg, sender *Sender, respond Responder) {
	if !sender.HasTab() || r.css == nil {
		respond(nil)
		return
	}

	tabID := sender.TabID
	frameID := sender.FrameID
	base := CSSDetails{
		FrameID:         &frameID,
		MatchAboutBlank: true,
	}
	if r.userStylesheets.Load() {
		base.CSSOrigin = "user"
	}
	if msg.present("add") {
		base.RunAt = "document_start"
	}
	add := msg.strings("add")
	remove := msg.strings("remove")
	remover, canRemove := r.css.(CSSRemover)
	if !canRemove {
		remove = nil
	}

	ctx, cancel := r.hostContext()
	ctx, span := telemetry.StartSpan(ctx, "relay.userCSS",
		telemetry.AttrTabID.Int(tabID),
		telemetry.AttrCSSCount.Int(len(add)+len(remove)),
	)

	var g errgroup.Group
	g.SetLimit(maxConcurrentCSSCalls)
	for _, code := range add {
		details := base
		details.Code = code
		g.Go(func() error {
			err := r.css.InsertCSS(ctx, tabID, details)
			if err != nil && frameID == 0 {
				// Some hosts reject an explicit top-frame id.
				details.FrameID = nil
				err = r.css.InsertCSS(ctx, tabID, details)
			}
			if err != nil {
				r.logger.Debug().Err(err).Int("tab", tabID).Msg("insertCSS failed")
			}
			return nil
		})
	}
	for _, code := range remove {
		details := base
		details.Code = code
		g.Go(func() error {
			if err := remover.RemoveCSS(ctx, tabID, details); err != nil {
				r.logger.Debug().Err(err).Int("tab", tabID).Msg("removeCSS failed")
			}
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		telemetry.EndSpan(span, nil)
		cancel()
		respond(nil)
	}()
}
