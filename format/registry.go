package format

import (
	"time"

	"github.com/hazyhaar/playerwatch/dom"
)

var shallow = dom.ObserveOptions{Attributes: true, ChildList: true}

// builtin returns fresh copies of the built-in profiles.
func builtin() map[Tag]*Profile {
	return map[Tag]*Profile{
		Plain: {
			ObserveSelectors: []string{"body.format-topics .section.main"},
			Observe:          shallow,
			SettleDelay:      500 * time.Millisecond,
			MultiPlayer:      true,
			extract:          firstRecordAttr("data-locked"),
		},
		Tabs: {
			ObserveSelectors: []string{"body.format-tabtopics .yui3-tab-panel"},
			Observe:          shallow,
			ActiveSelector:   "body.format-tabtopics .yui3-tab-panel.yui3-tab-panel-selected",
			extract:          targetHasClass("yui3-tab-panel-selected"),
		},
		Grid: {
			ObserveSelectors: []string{"body.format-grid .grid_section", "body.format-grid #gridshadebox"},
			Observe:          shallow,
			ActiveSelector:   "body.format-grid .grid_section:not(.hide_section)",
			extract:          targetLacksClass("hide_section"),
		},
		Topcoll: {
			ObserveSelectors: []string{"body.format-topcoll .ctopics.topics .toggledsection"},
			Observe:          shallow,
			extract:          anyRecord,
		},
		Snap: {
			ObserveSelectors: []string{
				"body.format-topics.theme-snap .section.main .activity",
				"body.format-topics.theme-snap .section.main",
			},
			Observe:        shallow,
			ActiveSelector: "body.format-topics.theme-snap .section.main.state-visible",
			SettleDelay:    500 * time.Millisecond,
			MultiPlayer:    true,
			extract:        firstRecordAttr("class"),
		},
		Modtab: {
			ObserveSelectors: []string{"#page-mod-tab-view .TabbedPanelsContentGroup .TabbedPanelsContent"},
			Observe:          shallow,
			ActiveSelector:   "#page-mod-tab-view .TabbedPanelsContentGroup .TabbedPanelsContent.TabbedPanelsContentVisible",
			extract:          targetHasClass("TabbedPanelsContentVisible"),
		},
		ModtabDivs: {
			ObserveSelectors: []string{"#page-mod-tab-view #TabbedPanelsTabContent > div"},
			Observe:          shallow,
			ActiveSelector:   "#page-mod-tab-view #TabbedPanelsTabContent > div.active",
			extract:          activeAndShown,
		},
		Tiles: {
			ObserveSelectors: []string{"body.format-tiles", "body.format-tiles #multi_section_tiles li.section.main"},
			Observe:          shallow,
			ActiveSelector:   "body.format-tiles #multi_section_tiles li.section.main.moveablesection.state-visible",
			SettleDelay:      200 * time.Millisecond,
			AwaitActive:      true,
			extract:          visibleTile,
		},
		Icontent: {
			ObserveSelectors: []string{"#idicontentpages"},
			Observe:          dom.ObserveOptions{ChildList: true},
			ActiveSelector:   "#idicontentpages",
			SettleDelay:      2 * time.Second,
			extract:          childListOnly,
		},
		Kalvidres: {},
		LTI:       {},
	}
}

// Registry maps tags to profiles. It is safe for concurrent use: nothing
// mutates it after NewRegistry returns.
type Registry struct {
	profiles map[Tag]*Profile
}

// NewRegistry builds the registry, applying per-tag settle delay overrides.
// A zero override is ignored.
func NewRegistry(settle map[Tag]time.Duration) *Registry {
	profiles := builtin()
	for tag, p := range profiles {
		p.Tag = tag
		if d, ok := settle[tag]; ok && d > 0 {
			p.SettleDelay = d
		}
		if p.SettleDelay <= 0 {
			p.SettleDelay = DefaultSettleDelay
		}
	}
	return &Registry{profiles: profiles}
}

// ProfileFor returns the profile for tag. Unknown tags get an unobserved
// profile so the reconciler stays idle on layouts it does not know.
func (r *Registry) ProfileFor(tag Tag) *Profile {
	if p, ok := r.profiles[tag]; ok {
		return p
	}
	return &Profile{Tag: tag, SettleDelay: DefaultSettleDelay}
}

// Tags lists the registered tags.
func (r *Registry) Tags() []Tag {
	out := make([]Tag, 0, len(r.profiles))
	for tag := range r.profiles {
		out = append(out, tag)
	}
	return out
}
