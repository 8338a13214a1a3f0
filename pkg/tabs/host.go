package tabs

import "context"

// Tab is the host's view of one tab.
type Tab struct {
	ID       int    `json:"id"`
	WindowID int    `json:"windowId"`
	Index    int    `json:"index"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Active   bool   `json:"active"`
}

// Query selects tabs. Zero fields do not constrain the result.
type Query struct {
	Active        bool   `json:"active,omitempty"`
	CurrentWindow bool   `json:"currentWindow,omitempty"`
	URL           string `json:"url,omitempty"`
}

// CreateProperties describe a new tab. A nil Index appends the tab.
type CreateProperties struct {
	URL    string `json:"url"`
	Active bool   `json:"active"`
	Index  *int   `json:"index,omitempty"`
}

// UpdateProperties change an existing tab. An empty URL keeps the current
// one; a nil Active keeps the current selection.
type UpdateProperties struct {
	URL    string `json:"url,omitempty"`
	Active *bool  `json:"active,omitempty"`
}

// ScriptDetails describe a script injection.
type ScriptDetails struct {
	Code      string `json:"code,omitempty"`
	File      string `json:"file,omitempty"`
	AllFrames bool   `json:"allFrames,omitempty"`
	RunAt     string `json:"runAt,omitempty"`
}

// Host is the browser's tab and window facility.
//
//go:generate mockgen -package=tabs -destination=mock_host_test.go github.com/odvcencio/extbridge/pkg/tabs Host,ActionHost
type Host interface {
	Query(ctx context.Context, q Query) ([]Tab, error)
	// Get returns nil and no error when the tab does not exist.
	Get(ctx context.Context, id int) (*Tab, error)
	Create(ctx context.Context, props CreateProperties) (*Tab, error)
	Update(ctx context.Context, id int, props UpdateProperties) (*Tab, error)
	Move(ctx context.Context, id, index int) error
	Remove(ctx context.Context, id int) error
	// ExecuteScript injects into tabID, or into the active tab when tabID
	// is UnsetTabID.
	ExecuteScript(ctx context.Context, tabID int, details ScriptDetails) error
	UpdateWindow(ctx context.Context, windowID int, focused bool) error
	CreatePopupWindow(ctx context.Context, url string) error
}

// Reloader is implemented by hosts with a native tab reload.
type Reloader interface {
	Reload(ctx context.Context, id int, bypassCache bool) error
}

// ActionHost is the toolbar button facility.
type ActionHost interface {
	SetIcon(ctx context.Context, tabID int, state IconState) error
	SetBadgeText(ctx context.Context, tabID int, text string) error
	SetTitle(ctx context.Context, tabID int, title string) error
}
