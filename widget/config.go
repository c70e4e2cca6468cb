package widget

import "github.com/hazyhaar/playerwatch/player"

// Config is the JSON document handed to the widget runtime on boot and on
// every load.
type Config struct {
	ClientID string          `json:"clientId"`
	Backend  *Backend        `json:"backend,omitempty"`
	Group    *Group          `json:"group,omitempty"`
	SSOToken string          `json:"ssoToken,omitempty"`
	Locale   string          `json:"locale,omitempty"`
	Widgets  []WidgetConfig  `json:"widgets"`
	Hooks    map[string]bool `json:"hooks,omitempty"`
}

type Backend struct {
	Domain string `json:"domain"`
}

type Group struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// WidgetConfig binds the widget to one player.
type WidgetConfig struct {
	Player          PlayerConfig `json:"player"`
	Timeline        *Timeline    `json:"timeline,omitempty"`
	PositionElement string       `json:"positionElement,omitempty"`
}

type PlayerConfig struct {
	Type    player.Kind `json:"type"`
	Element string      `json:"element"`
}

type Timeline struct {
	Overlay bool `json:"overlay"`
}

// clone returns a copy that shares no slices or pointers with c.
func (c Config) clone() Config {
	out := c
	if c.Backend != nil {
		b := *c.Backend
		out.Backend = &b
	}
	if c.Group != nil {
		g := *c.Group
		out.Group = &g
	}
	out.Widgets = append([]WidgetConfig(nil), c.Widgets...)
	if c.Hooks != nil {
		out.Hooks = make(map[string]bool, len(c.Hooks))
		for k, v := range c.Hooks {
			out.Hooks[k] = v
		}
	}
	return out
}
