package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/odvcencio/extbridge/pkg/contextmenu"
	"github.com/odvcencio/extbridge/pkg/messaging"
	"github.com/odvcencio/extbridge/pkg/tabs"
	"github.com/odvcencio/extbridge/pkg/telemetry"
)

const hostCallTimeout = 10 * time.Second

type defaultRequest struct {
	What        string              `json:"what"`
	Key         string              `json:"key"`
	TabID       int                 `json:"tabId"`
	URL         string              `json:"url"`
	BypassCache bool                `json:"bypassCache"`
	Details     *openDetails        `json:"details"`
	State       tabs.IconState      `json:"state"`
	Badge       string              `json:"badge"`
	Parts       int                 `json:"parts"`
	Entries     []contextmenu.Entry `json:"entries"`
}

type openDetails struct {
	URL    string `json:"url"`
	TabID  int    `json:"tabId"`
	Index  *int   `json:"index"`
	Active *bool  `json:"active"`
	Select bool   `json:"select"`
	Popup  bool   `json:"popup"`
}

// menuClicks turns context menu clicks into a broadcast to every port.
type menuClicks struct {
	relay *messaging.Relay
	hub   *telemetry.Hub
}

func (m *menuClicks) HandleClick(_ context.Context, c contextmenu.Click) {
	m.relay.Broadcast(map[string]any{"what": "contextMenuClicked", "info": c})
	m.hub.Publish(telemetry.Event{
		Type:      telemetry.EventContextMenu,
		Timestamp: time.Now(),
		TabID:     c.TabID,
		Data:      map[string]any{"menuItemId": c.MenuItemID},
	})
}

// tabEvents forwards host tab lifecycle events to telemetry and, for
// navigations, to every port.
type tabEvents struct {
	relay *messaging.Relay
	hub   *telemetry.Hub
}

func (e *tabEvents) listeners() tabs.NavigationListeners {
	return tabs.NavigationListeners{
		OnNavigation:   e.navigated,
		OnUpdated:      e.updated,
		OnPopupCreated: e.popupCreated,
	}
}

func (e *tabEvents) navigated(n tabs.Navigation) {
	if tabs.IsBehindTheScene(n.TabID) {
		return
	}
	target := tabs.PunycodeURL(n.URL)
	e.relay.Broadcast(map[string]any{"what": "tabNavigated", "tabId": n.TabID, "url": target})
	e.hub.Publish(telemetry.Event{
		Type:      telemetry.EventTabNavigation,
		Timestamp: time.Now(),
		TabID:     n.TabID,
		Data:      map[string]any{"url": target},
	})
}

func (e *tabEvents) updated(tabID int, url string) {
	e.hub.Publish(telemetry.Event{
		Type:      telemetry.EventTabUpdated,
		Timestamp: time.Now(),
		TabID:     tabID,
		Data:      map[string]any{"url": tabs.PunycodeURL(url)},
	})
}

func (e *tabEvents) popupCreated(tabID, openerTabID int) {
	e.hub.Publish(telemetry.Event{
		Type:      telemetry.EventPopupCreated,
		Timestamp: time.Now(),
		TabID:     tabID,
		Data:      map[string]any{"openerTabId": openerTabID},
	})
}

// newDefaultHandler answers requests sent on channels nobody listens on:
// admin settings, a liveness ping and the tab, toolbar and menu calls that
// need the host bridge.
func newDefaultHandler(ctx context.Context, a *app) messaging.Handler {
	clicks := &menuClicks{relay: a.relay, hub: a.hub}
	logger := a.logger

	// hostQuery runs fn against the host bridge and replies with its result,
	// or null when it fails.
	hostQuery := func(what string, respond messaging.Responder, fn func(context.Context) (any, error)) messaging.Result {
		if a.host == nil {
			logger.Debug().Str("what", what).Msg("no host bridge configured")
			return messaging.Handled(nil)
		}
		go func() {
			callCtx, cancel := context.WithTimeout(ctx, hostCallTimeout)
			defer cancel()
			v, err := fn(callCtx)
			if err != nil {
				logHostError(logger, what, err)
				v = nil
			}
			respond(v)
		}()
		return messaging.HandledAsync()
	}
	// hostCall is hostQuery for calls that reply null.
	hostCall := func(what string, respond messaging.Responder, fn func(context.Context) error) messaging.Result {
		return hostQuery(what, respond, func(ctx context.Context) (any, error) {
			return nil, fn(ctx)
		})
	}

	return func(msg json.RawMessage, _ *messaging.Sender, respond messaging.Responder) messaging.Result {
		var req defaultRequest
		if !messaging.Decode(msg, &req) {
			return messaging.Declined()
		}

		switch req.What {
		case "ping":
			return messaging.Handled("pong")

		case "getAdminItem":
			v, ok := a.managed.GetItem(req.Key)
			if !ok {
				return messaging.Handled(nil)
			}
			return messaging.Handled(v)

		case "gotoURL":
			if req.Details == nil {
				return messaging.Handled(nil)
			}
			d := req.Details
			return hostCall(req.What, respond, func(ctx context.Context) error {
				return a.tabs.Open(ctx, tabs.OpenDetails{
					URL:    d.URL,
					TabID:  d.TabID,
					Index:  d.Index,
					Active: d.Active,
					Select: d.Select,
					Popup:  d.Popup,
				})
			})

		case "getTab":
			var id *int
			if req.TabID != 0 {
				id = &req.TabID
			}
			return hostQuery(req.What, respond, func(ctx context.Context) (any, error) {
				tab, err := a.tabs.Get(ctx, id)
				if err != nil || tab == nil {
					return nil, err
				}
				return tab, nil
			})

		case "replaceTab":
			return hostCall(req.What, respond, func(ctx context.Context) error {
				return a.tabs.Replace(ctx, req.TabID, req.URL)
			})

		case "removeTab":
			return hostCall(req.What, respond, func(ctx context.Context) error {
				return a.tabs.Remove(ctx, req.TabID)
			})

		case "reloadTab":
			return hostCall(req.What, respond, func(ctx context.Context) error {
				return a.tabs.Reload(ctx, req.TabID, req.BypassCache)
			})

		case "selectTab":
			return hostCall(req.What, respond, func(ctx context.Context) error {
				return a.tabs.Select(ctx, req.TabID)
			})

		case "updateToolbarIcon":
			parts := req.Parts
			if parts == 0 {
				parts = tabs.PartAll
			}
			return hostCall(req.What, respond, func(ctx context.Context) error {
				return a.icon.SetIcon(ctx, req.TabID, req.State, req.Badge, parts)
			})

		case "setContextMenu":
			// The click listener outlives the request, so it is bound to
			// the process context. Each host call is bounded by the bus
			// timeout.
			return hostCall(req.What, respond, func(context.Context) error {
				return a.menu.SetEntries(ctx, req.Entries, clicks)
			})
		}

		return messaging.Declined()
	}
}

func logHostError(logger zerolog.Logger, what string, err error) {
	logger.Debug().Err(err).Str("what", what).Msg("host call failed")
}
