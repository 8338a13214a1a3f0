package tabs

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	exterrors "github.com/odvcencio/extbridge/pkg/errors"
)

// OpenDetails describe Manager.Open.
type OpenDetails struct {
	URL string
	// TabID reuses that tab instead of creating one. If it no longer
	// exists a new tab is created.
	TabID int
	// Index places the tab: nil appends, -1 means right after the active
	// tab, anything else is an absolute position.
	Index *int
	// Active defaults to true.
	Active *bool
	// Select focuses an existing tab showing URL instead of opening another.
	Select bool
	// Popup opens URL in a standalone popup window.
	Popup bool
}

// Manager drives a Host.
type Manager struct {
	host    Host
	baseURL string
	logger  zerolog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithBaseURL sets the URL extension-relative paths resolve against.
func WithBaseURL(base string) ManagerOption {
	return func(m *Manager) { m.baseURL = base }
}

// NewManager constructs a manager over host.
func NewManager(host Host, opts ...ManagerOption) *Manager {
	m := &Manager{host: host, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the tab with the given id, or the active tab of the current
// window when id is nil. A nil tab with no error means there is none.
func (m *Manager) Get(ctx context.Context, id *int) (*Tab, error) {
	if id == nil {
		found, err := m.host.Query(ctx, Query{Active: true, CurrentWindow: true})
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, nil
		}
		return &found[0], nil
	}
	tabID := Normalize(*id)
	if tabID == UnsetTabID {
		return nil, nil
	}
	return m.host.Get(ctx, tabID)
}

// Open shows details.URL in a tab according to details.
func (m *Manager) Open(ctx context.Context, details OpenDetails) error {
	if details.URL == "" {
		return exterrors.New(exterrors.ErrCodeInvalidInput, "url is required")
	}
	target := ResolveURL(m.baseURL, details.URL)

	if details.Select {
		done, err := m.selectExisting(ctx, target)
		if err != nil || done {
			return err
		}
	}
	return m.open(ctx, target, details)
}

// selectExisting focuses a tab already showing target. The host matches
// fragments, so the lookup is done without one.
func (m *Manager) selectExisting(ctx context.Context, target string) (bool, error) {
	lookup := target
	if pos := strings.IndexByte(lookup, '#'); pos != -1 {
		lookup = lookup[:pos]
	}
	found, err := m.host.Query(ctx, Query{URL: lookup})
	if err != nil {
		m.logger.Debug().Err(err).Str("url", lookup).Msg("tab lookup failed")
		return false, nil
	}
	if len(found) == 0 {
		return false, nil
	}
	existing := found[0]
	props := UpdateProperties{Active: boolPtr(true)}
	if existing.URL != target {
		props.URL = target
	}
	tab, err := m.host.Update(ctx, existing.ID, props)
	if err != nil {
		return true, err
	}
	if tab != nil {
		return true, m.host.UpdateWindow(ctx, tab.WindowID, true)
	}
	return true, nil
}

func (m *Manager) open(ctx context.Context, target string, details OpenDetails) error {
	active := true
	if details.Active != nil {
		active = *details.Active
	}

	if details.Popup {
		return m.host.CreatePopupWindow(ctx, target)
	}

	index := details.Index
	if index != nil && *index == -1 {
		index = nil
		current, err := m.Get(ctx, nil)
		if err != nil {
			m.logger.Debug().Err(err).Msg("active tab lookup failed")
		}
		if current != nil {
			next := current.Index + 1
			index = &next
		}
	}

	create := CreateProperties{URL: target, Active: active, Index: index}
	tabID := Normalize(details.TabID)
	if tabID == UnsetTabID {
		return m.create(ctx, create)
	}

	// Update takes no index; placement is a separate move.
	tab, err := m.host.Update(ctx, tabID, UpdateProperties{URL: target, Active: &active})
	if err != nil || tab == nil {
		m.logger.Debug().Err(err).Int("tab", tabID).Msg("tab gone, opening a new one")
		return m.create(ctx, create)
	}
	if index != nil {
		return m.host.Move(ctx, tab.ID, *index)
	}
	return nil
}

// create opens a tab and focuses its window when it is active, since a tab
// opened from another window does not bring that window forward.
func (m *Manager) create(ctx context.Context, props CreateProperties) error {
	tab, err := m.host.Create(ctx, props)
	if err != nil {
		return err
	}
	if tab != nil && tab.Active {
		return m.host.UpdateWindow(ctx, tab.WindowID, true)
	}
	return nil
}

// Replace navigates an existing tab to url. It does nothing for ids that
// are not real tabs.
func (m *Manager) Replace(ctx context.Context, id int, url string) error {
	tabID := Normalize(id)
	if tabID == UnsetTabID {
		return nil
	}
	_, err := m.host.Update(ctx, tabID, UpdateProperties{URL: ResolveURL(m.baseURL, url)})
	return err
}

// Remove closes a tab.
func (m *Manager) Remove(ctx context.Context, id int) error {
	tabID := Normalize(id)
	if tabID == UnsetTabID {
		return nil
	}
	return m.host.Remove(ctx, tabID)
}

// Reload reloads a tab. Hosts without a native reload get a script that
// reloads the page from inside.
func (m *Manager) Reload(ctx context.Context, id int, bypassCache bool) error {
	tabID := Normalize(id)
	if tabID == UnsetTabID {
		return nil
	}
	if r, ok := m.host.(Reloader); ok {
		return r.Reload(ctx, tabID, bypassCache)
	}
	tab, err := m.host.Get(ctx, tabID)
	if err != nil || tab == nil {
		return err
	}
	return m.InjectScript(ctx, tabID, ScriptDetails{
		Code: fmt.Sprintf("window.location.reload(%t)", bypassCache),
	})
}

// Select activates a tab and focuses its window.
func (m *Manager) Select(ctx context.Context, id int) error {
	tabID := Normalize(id)
	if tabID == UnsetTabID {
		return nil
	}
	tab, err := m.host.Update(ctx, tabID, UpdateProperties{Active: boolPtr(true)})
	if err != nil || tab == nil {
		return err
	}
	return m.host.UpdateWindow(ctx, tab.WindowID, true)
}

// InjectScript runs details in tabID, or in the active tab when tabID is
// not a real tab.
func (m *Manager) InjectScript(ctx context.Context, tabID int, details ScriptDetails) error {
	return m.host.ExecuteScript(ctx, Normalize(tabID), details)
}

func boolPtr(v bool) *bool { return &v }
