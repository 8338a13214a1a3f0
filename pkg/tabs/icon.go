package tabs

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// IconState selects the toolbar icon variant.
type IconState int

const (
	IconOff IconState = 0
	IconOn  IconState = 1
)

// Parts of the toolbar button SetIcon refreshes.
const (
	PartIcon  = 1 << 0
	PartBadge = 1 << 1
	PartAll   = PartIcon | PartBadge
)

const titlePlaceholder = "{badge}"

// Icon keeps a tab's toolbar button in sync with its filtering state.
type Icon struct {
	host          Host
	action        ActionHost
	titleTemplate string
	onMustUpdate  func(tabID int)
	logger        zerolog.Logger
}

// IconOption configures an Icon.
type IconOption func(*Icon)

// WithIconLogger sets the icon logger.
func WithIconLogger(logger zerolog.Logger) IconOption {
	return func(i *Icon) { i.logger = logger }
}

// WithMustUpdate registers fn to run after every SetIcon, typically the
// context menu's refresh hook.
func WithMustUpdate(fn func(tabID int)) IconOption {
	return func(i *Icon) { i.onMustUpdate = fn }
}

// NewIcon builds an Icon. name is the extension name shown in the title.
func NewIcon(host Host, action ActionHost, name string, opts ...IconOption) *Icon {
	i := &Icon{
		host:          host,
		action:        action,
		titleTemplate: name + " (" + titlePlaceholder + ")",
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Title renders the button title for state and badge.
func (i *Icon) Title(state IconState, badge string) string {
	text := "off"
	if state == IconOn {
		text = badge
		if text == "" {
			text = "0"
		}
	}
	return strings.Replace(i.titleTemplate, titlePlaceholder, text, 1)
}

// SetIcon updates the button of tabID. The icon image changes only when
// parts includes PartIcon; badge and title are always refreshed. Tabs that
// have gone away are skipped quietly.
func (i *Icon) SetIcon(ctx context.Context, tabID int, state IconState, badge string, parts int) error {
	tabID = Normalize(tabID)
	if tabID == UnsetTabID {
		return nil
	}
	if i.onMustUpdate != nil {
		defer i.onMustUpdate(tabID)
	}

	// The tab may have closed since the caller looked at it.
	tab, err := i.host.Get(ctx, tabID)
	if err != nil || tab == nil {
		i.logger.Debug().Err(err).Int("tab", tabID).Msg("skipping icon update for missing tab")
		return nil
	}

	if parts&PartIcon != 0 {
		if err := i.action.SetIcon(ctx, tab.ID, state); err != nil {
			return err
		}
	}
	if err := i.action.SetBadgeText(ctx, tab.ID, badge); err != nil {
		return err
	}
	return i.action.SetTitle(ctx, tab.ID, i.Title(state, badge))
}
