// Package contextmenu keeps the host's context menu entries in step with
// the list the extension wants shown.
package contextmenu

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Entry is one context menu item.
type Entry struct {
	ID                  string   `json:"id"`
	Title               string   `json:"title"`
	Contexts            []string `json:"contexts,omitempty"`
	DocumentURLPatterns []string `json:"documentUrlPatterns,omitempty"`
	TargetURLPatterns   []string `json:"targetUrlPatterns,omitempty"`
}

// Click describes a click on one of the entries.
type Click struct {
	MenuItemID    string `json:"menuItemId"`
	TabID         int    `json:"tabId"`
	FrameID       int    `json:"frameId,omitempty"`
	PageURL       string `json:"pageUrl,omitempty"`
	LinkURL       string `json:"linkUrl,omitempty"`
	SrcURL        string `json:"srcUrl,omitempty"`
	SelectionText string `json:"selectionText,omitempty"`
}

// ClickHandler receives clicks. Handlers are compared by identity, so
// implement it on a pointer.
type ClickHandler interface {
	HandleClick(ctx context.Context, click Click)
}

// MenuHost is the browser's context menu facility.
//
//go:generate mockgen -package=contextmenu -destination=mock_host_test.go github.com/odvcencio/extbridge/pkg/contextmenu MenuHost
type MenuHost interface {
	CreateEntry(ctx context.Context, entry Entry) error
	RemoveEntry(ctx context.Context, id string) error
	// OnClicked starts delivering clicks to h until the returned function
	// is called.
	OnClicked(ctx context.Context, h ClickHandler) (func(), error)
}

// Menu tracks the entry ids currently installed on the host.
type Menu struct {
	host   MenuHost
	logger zerolog.Logger

	mu           sync.Mutex
	entries      []string
	handler      ClickHandler
	unlisten     func()
	onMustUpdate func(tabID int)
}

// New constructs a menu over host.
func New(host MenuHost, logger zerolog.Logger) *Menu {
	return &Menu{host: host, logger: logger}
}

// SetEntries makes the host show entries, position by position: a slot whose
// id changed is removed and recreated, new slots are created and surplus
// slots removed. Host failures on individual entries are logged and do not
// stop the pass. The click handler is registered while there are entries
// and dropped when there are none.
func (m *Menu) SetEntries(ctx context.Context, entries []Entry, h ClickHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := max(len(m.entries), len(entries))
	for i := 0; i < n; i++ {
		switch {
		case i < len(m.entries) && i < len(entries):
			if entries[i].ID != m.entries[i] {
				m.remove(ctx, m.entries[i])
				m.create(ctx, entries[i])
				m.entries[i] = entries[i].ID
			}
		case i < len(m.entries):
			m.remove(ctx, m.entries[i])
		default:
			m.create(ctx, entries[i])
			m.entries = append(m.entries, entries[i].ID)
		}
	}
	m.entries = m.entries[:len(entries)]

	if h == m.handler {
		return nil
	}
	switch {
	case len(entries) != 0 && h != nil:
		if m.unlisten != nil {
			m.unlisten()
		}
		unlisten, err := m.host.OnClicked(ctx, h)
		if err != nil {
			m.unlisten = nil
			m.handler = nil
			return err
		}
		m.unlisten = unlisten
		m.handler = h
	case len(entries) == 0 && m.handler != nil:
		if m.unlisten != nil {
			m.unlisten()
		}
		m.unlisten = nil
		m.handler = nil
	}
	return nil
}

// Entries returns the installed entry ids in order.
func (m *Menu) Entries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.entries...)
}

// SetOnMustUpdate installs the hook OnMustUpdate calls.
func (m *Menu) SetOnMustUpdate(fn func(tabID int)) {
	m.mu.Lock()
	m.onMustUpdate = fn
	m.mu.Unlock()
}

// OnMustUpdate signals that the entries for tabID may need to change, for
// example after the tab was activated or its icon refreshed.
func (m *Menu) OnMustUpdate(tabID int) {
	m.mu.Lock()
	fn := m.onMustUpdate
	m.mu.Unlock()
	if fn != nil {
		fn(tabID)
	}
}

func (m *Menu) create(ctx context.Context, e Entry) {
	if err := m.host.CreateEntry(ctx, e); err != nil {
		m.logger.Debug().Err(err).Str("entry", e.ID).Msg("create menu entry failed")
	}
}

func (m *Menu) remove(ctx context.Context, id string) {
	if err := m.host.RemoveEntry(ctx, id); err != nil {
		m.logger.Debug().Err(err).Str("entry", id).Msg("remove menu entry failed")
	}
}
