package tabs

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/odvcencio/extbridge/pkg/bus"
)

// Tab lifecycle event subjects.
const (
	opCommitted               = "committed"
	opCreatedNavigationTarget = "createdNavigationTarget"
	opUpdated                 = "updated"
	opRemoved                 = "removed"
)

// Navigation is a top-frame navigation reported by the host. URL has been
// through SanitizeURL.
type Navigation struct {
	TabID   int    `json:"tabId"`
	FrameID int    `json:"frameId"`
	URL     string `json:"url"`
}

// NavigationListeners receive tab lifecycle events. Nil fields are skipped.
type NavigationListeners struct {
	// OnNavigation fires when a top frame commits a navigation, and when a
	// new tab is opened on a URL the network layer never sees.
	OnNavigation func(Navigation)
	// OnUpdated fires when a tab's URL or state changes. url is empty when
	// the host reported neither a new nor a current URL.
	OnUpdated func(tabID int, url string)
	// OnPopupCreated fires for every tab opened from another tab.
	OnPopupCreated func(tabID, openerTabID int)
}

var reWebRequestURL = regexp.MustCompile(`^https?://`)

type navigationDetails struct {
	TabID       int     `json:"tabId"`
	FrameID     int     `json:"frameId"`
	URL         *string `json:"url"`
	SourceTabID int     `json:"sourceTabId"`
}

type tabUpdate struct {
	TabID      int `json:"tabId"`
	ChangeInfo struct {
		URL *string `json:"url"`
	} `json:"changeInfo"`
	Tab *Tab `json:"tab"`
}

func (d navigationDetails) url() string {
	if d.URL == nil {
		return ""
	}
	return *d.URL
}

func (l NavigationListeners) committed(d navigationDetails) {
	if d.FrameID != 0 || l.OnNavigation == nil {
		return
	}
	l.OnNavigation(Navigation{TabID: d.TabID, URL: SanitizeURL(d.url())})
}

// createdTarget reports tabs opened on non-http URLs as navigations right
// away, since no network request will announce them.
func (l NavigationListeners) createdTarget(d navigationDetails) {
	target := d.url()
	if !reWebRequestURL.MatchString(target) && l.OnNavigation != nil {
		l.OnNavigation(Navigation{TabID: d.TabID, URL: SanitizeURL(target)})
	}
	if l.OnPopupCreated != nil {
		l.OnPopupCreated(d.TabID, d.SourceTabID)
	}
}

func (l NavigationListeners) updated(u tabUpdate) {
	if l.OnUpdated == nil {
		return
	}
	var target string
	switch {
	case u.ChangeInfo.URL != nil:
		target = *u.ChangeInfo.URL
	case u.Tab != nil:
		target = u.Tab.URL
	}
	if target != "" {
		target = SanitizeURL(target)
	}
	l.OnUpdated(u.TabID, target)
}

// OnNavigation subscribes l to the host's navigation and tab update events.
// The returned func removes every subscription.
func (h *BusHost) OnNavigation(ctx context.Context, l NavigationListeners) (func(), error) {
	var subs []bus.Subscription
	unsubscribe := func() {
		for _, sub := range subs {
			_ = sub.Unsubscribe()
		}
	}

	navigation := func(fn func(navigationDetails)) bus.MessageHandler {
		return func(msg *bus.Message) []byte {
			var d navigationDetails
			if err := json.Unmarshal(msg.Data, &d); err != nil {
				h.logger.Debug().Err(err).Str("subject", msg.Subject).Msg("dropping malformed tab event")
				return nil
			}
			fn(d)
			return nil
		}
	}
	handlers := map[string]bus.MessageHandler{
		opCommitted:               navigation(l.committed),
		opCreatedNavigationTarget: navigation(l.createdTarget),
		opUpdated: func(msg *bus.Message) []byte {
			var u tabUpdate
			if err := json.Unmarshal(msg.Data, &u); err != nil || u.TabID <= 0 {
				return nil
			}
			l.updated(u)
			return nil
		},
	}
	for _, op := range []string{opCommitted, opCreatedNavigationTarget, opUpdated} {
		sub, err := h.bus.Subscribe(ctx, bus.HostSubject(areaTabs, op), handlers[op])
		if err != nil {
			unsubscribe()
			return nil, err
		}
		subs = append(subs, sub)
	}
	return unsubscribe, nil
}

// OnRemoved calls fn with the id of every tab the host closes.
func (h *BusHost) OnRemoved(ctx context.Context, fn func(tabID int)) (func(), error) {
	sub, err := h.bus.Subscribe(ctx, bus.HostSubject(areaTabs, opRemoved), func(msg *bus.Message) []byte {
		var ref tabRef
		if err := json.Unmarshal(msg.Data, &ref); err != nil || ref.TabID <= 0 {
			return nil
		}
		fn(ref.TabID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = sub.Unsubscribe() }, nil
}
