package tabs

import (
	"context"
	"encoding/json"
	stdliberrors "errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/odvcencio/extbridge/pkg/bus"
	"github.com/odvcencio/extbridge/pkg/contextmenu"
	exterrors "github.com/odvcencio/extbridge/pkg/errors"
	"github.com/odvcencio/extbridge/pkg/messaging"
)

const defaultHostTimeout = 5 * time.Second

// Host facility subjects, as bus.HostSubject(area, op).
const (
	areaTabs          = "tabs"
	areaWindows       = "windows"
	areaAction        = "browserAction"
	areaContextMenus  = "contextMenus"
	opClicked         = "clicked"
	opActivated       = "activated"
	opInsertCSS       = "insertCSS"
	opRemoveCSS       = "removeCSS"
	opExecuteScript   = "executeScript"
	opSetIcon         = "setIcon"
	opSetBadgeText    = "setBadgeText"
	opSetTitle        = "setTitle"
	opCreateMenuEntry = "create"
	opRemoveMenuEntry = "remove"
)

// BusHost reaches the browser through host adapters answering on the
// message bus. It implements Host, Reloader, ActionHost, the context menu
// host and the relay's style injector.
type BusHost struct {
	bus     bus.MessageBus
	timeout time.Duration
	logger  zerolog.Logger
}

var (
	_ Host                    = (*BusHost)(nil)
	_ Reloader                = (*BusHost)(nil)
	_ ActionHost              = (*BusHost)(nil)
	_ contextmenu.MenuHost    = (*BusHost)(nil)
	_ messaging.StyleInjector = (*BusHost)(nil)
	_ messaging.CSSRemover    = (*BusHost)(nil)
)

// NewBusHost builds a host over b. A non-positive timeout uses the default.
func NewBusHost(b bus.MessageBus, timeout time.Duration, logger zerolog.Logger) *BusHost {
	if timeout <= 0 {
		timeout = defaultHostTimeout
	}
	return &BusHost{bus: b, timeout: timeout, logger: logger}
}

func (h *BusHost) call(ctx context.Context, area, op string, in, out any) error {
	err := bus.Call(ctx, h.bus, bus.HostSubject(area, op), in, out, h.timeout)
	if err == nil {
		return nil
	}
	var hostErr *bus.HostError
	if stdliberrors.As(err, &hostErr) {
		return exterrors.Wrap(err, exterrors.ErrCodeInvalidInput, "host rejected call").
			WithContext("subject", hostErr.Subject)
	}
	return exterrors.Wrap(err, exterrors.ErrCodeHostUnavailable, "host call failed").
		WithContext("subject", bus.HostSubject(area, op)).
		WithRetryable(stdliberrors.Is(err, bus.ErrTimeout) || stdliberrors.Is(err, bus.ErrNoResponders))
}

type tabRef struct {
	TabID int `json:"tabId"`
}

func (h *BusHost) Query(ctx context.Context, q Query) ([]Tab, error) {
	var out []Tab
	if err := h.call(ctx, areaTabs, "query", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get maps a host-side rejection to "no such tab".
func (h *BusHost) Get(ctx context.Context, id int) (*Tab, error) {
	var out *Tab
	err := h.call(ctx, areaTabs, "get", tabRef{TabID: id}, &out)
	if exterrors.IsCode(err, exterrors.ErrCodeInvalidInput) {
		return nil, nil
	}
	return out, err
}

func (h *BusHost) Create(ctx context.Context, props CreateProperties) (*Tab, error) {
	var out *Tab
	if err := h.call(ctx, areaTabs, "create", props, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *BusHost) Update(ctx context.Context, id int, props UpdateProperties) (*Tab, error) {
	in := struct {
		TabID int `json:"tabId"`
		UpdateProperties
	}{id, props}
	var out *Tab
	if err := h.call(ctx, areaTabs, "update", in, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *BusHost) Move(ctx context.Context, id, index int) error {
	return h.call(ctx, areaTabs, "move", map[string]int{"tabId": id, "index": index}, nil)
}

func (h *BusHost) Remove(ctx context.Context, id int) error {
	return h.call(ctx, areaTabs, "remove", tabRef{TabID: id}, nil)
}

func (h *BusHost) Reload(ctx context.Context, id int, bypassCache bool) error {
	in := struct {
		TabID       int  `json:"tabId"`
		BypassCache bool `json:"bypassCache"`
	}{id, bypassCache}
	return h.call(ctx, areaTabs, "reload", in, nil)
}

func (h *BusHost) ExecuteScript(ctx context.Context, tabID int, details ScriptDetails) error {
	in := struct {
		TabID int `json:"tabId,omitempty"`
		ScriptDetails
	}{tabID, details}
	return h.call(ctx, areaTabs, opExecuteScript, in, nil)
}

func (h *BusHost) UpdateWindow(ctx context.Context, windowID int, focused bool) error {
	in := struct {
		WindowID int  `json:"windowId"`
		Focused  bool `json:"focused"`
	}{windowID, focused}
	return h.call(ctx, areaWindows, "update", in, nil)
}

func (h *BusHost) CreatePopupWindow(ctx context.Context, url string) error {
	in := struct {
		URL  string `json:"url"`
		Type string `json:"type"`
	}{url, "popup"}
	return h.call(ctx, areaWindows, "create", in, nil)
}

func (h *BusHost) SetIcon(ctx context.Context, tabID int, state IconState) error {
	in := struct {
		TabID int       `json:"tabId"`
		State IconState `json:"state"`
	}{tabID, state}
	return h.call(ctx, areaAction, opSetIcon, in, nil)
}

func (h *BusHost) SetBadgeText(ctx context.Context, tabID int, text string) error {
	in := struct {
		TabID int    `json:"tabId"`
		Text  string `json:"text"`
	}{tabID, text}
	return h.call(ctx, areaAction, opSetBadgeText, in, nil)
}

func (h *BusHost) SetTitle(ctx context.Context, tabID int, title string) error {
	in := struct {
		TabID int    `json:"tabId"`
		Title string `json:"title"`
	}{tabID, title}
	return h.call(ctx, areaAction, opSetTitle, in, nil)
}

func (h *BusHost) InsertCSS(ctx context.Context, tabID int, details messaging.CSSDetails) error {
	return h.call(ctx, areaTabs, opInsertCSS, cssCall{tabID, details}, nil)
}

func (h *BusHost) RemoveCSS(ctx context.Context, tabID int, details messaging.CSSDetails) error {
	return h.call(ctx, areaTabs, opRemoveCSS, cssCall{tabID, details}, nil)
}

type cssCall struct {
	TabID int `json:"tabId"`
	messaging.CSSDetails
}

func (h *BusHost) CreateEntry(ctx context.Context, entry contextmenu.Entry) error {
	return h.call(ctx, areaContextMenus, opCreateMenuEntry, entry, nil)
}

func (h *BusHost) RemoveEntry(ctx context.Context, id string) error {
	return h.call(ctx, areaContextMenus, opRemoveMenuEntry, map[string]string{"id": id}, nil)
}

// OnClicked subscribes to the host's menu click events.
func (h *BusHost) OnClicked(ctx context.Context, handler contextmenu.ClickHandler) (func(), error) {
	sub, err := h.bus.Subscribe(ctx, bus.HostSubject(areaContextMenus, opClicked), func(msg *bus.Message) []byte {
		var click contextmenu.Click
		if err := json.Unmarshal(msg.Data, &click); err != nil {
			h.logger.Debug().Err(err).Msg("dropping malformed menu click")
			return nil
		}
		handler.HandleClick(ctx, click)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// OnActivated calls fn with the id of every tab the host activates.
func (h *BusHost) OnActivated(ctx context.Context, fn func(tabID int)) (func(), error) {
	sub, err := h.bus.Subscribe(ctx, bus.HostSubject(areaTabs, opActivated), func(msg *bus.Message) []byte {
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
