// Package format holds the per-layout profiles the reconciler consults.
//
// A profile names what to observe on a page of a given layout and how to
// pick the one region worth re-examining out of a batch of mutations.
// Profiles are data; the reconciler never branches on a Tag.
package format

import (
	"strings"
	"time"

	"github.com/hazyhaar/playerwatch/dom"
)

// Tag identifies a page layout variant.
type Tag string

const (
	Plain      Tag = "plain"
	Tabs       Tag = "tabs"
	Grid       Tag = "grid"
	Topcoll    Tag = "topcoll"
	Snap       Tag = "snap"
	Modtab     Tag = "modtab"
	ModtabDivs Tag = "modtabDivs"
	Tiles      Tag = "tiles"
	Icontent   Tag = "icontent"
	Kalvidres  Tag = "kalvidres"
	LTI        Tag = "lti"
)

// DefaultSettleDelay applies to profiles that do not set their own.
const DefaultSettleDelay = 100 * time.Millisecond

// Profile describes one layout. It is immutable once the Registry is built.
type Profile struct {
	Tag Tag

	// ObserveSelectors select the observation targets. Empty means the
	// layout is not observed and the reconciler stays idle.
	ObserveSelectors []string
	Observe          dom.ObserveOptions

	// ActiveSelector finds an already-active region without a batch.
	ActiveSelector string

	// SettleDelay is how long a triggering batch must stay quiet before a
	// pass runs.
	SettleDelay time.Duration

	// MultiPlayer enables play-driven switching between side-by-side players.
	MultiPlayer bool

	// AwaitActive makes startup wait (bounded) for ActiveSelector to match.
	AwaitActive bool

	extract func([]dom.Mutation) dom.Element
}

// Observed reports whether the profile has anything to observe.
func (p *Profile) Observed() bool {
	return len(p.ObserveSelectors) > 0
}

// Targets returns the observation targets present in doc.
func (p *Profile) Targets(doc dom.Document) []dom.Element {
	if !p.Observed() {
		return nil
	}
	return doc.QueryAll(strings.Join(p.ObserveSelectors, ", "))
}

// ExtractActiveTarget returns the element a pass should re-examine, or nil
// when records hold nothing relevant. With nil records it looks the active
// region up directly instead.
func (p *Profile) ExtractActiveTarget(doc dom.Document, records []dom.Mutation) dom.Element {
	if records == nil {
		if p.ActiveSelector == "" {
			return nil
		}
		return dom.FirstRendered(doc.QueryAll(p.ActiveSelector))
	}
	if p.extract == nil || len(records) == 0 {
		return nil
	}
	return p.extract(records)
}

// --- extraction rules ---

func firstTarget(records []dom.Mutation, pred func(dom.Mutation) bool) dom.Element {
	for _, m := range records {
		if m.Target != nil && pred(m) {
			return m.Target
		}
	}
	return nil
}

func targetHasClass(name string) func([]dom.Mutation) dom.Element {
	return func(records []dom.Mutation) dom.Element {
		return firstTarget(records, func(m dom.Mutation) bool {
			return m.Target.HasClass(name)
		})
	}
}

func targetLacksClass(name string) func([]dom.Mutation) dom.Element {
	return func(records []dom.Mutation) dom.Element {
		return firstTarget(records, func(m dom.Mutation) bool {
			return !m.Target.HasClass(name)
		})
	}
}

func anyRecord(records []dom.Mutation) dom.Element {
	return records[0].Target
}

// firstRecordAttr keeps the batch only when its first record changes attr.
func firstRecordAttr(attr string) func([]dom.Mutation) dom.Element {
	return func(records []dom.Mutation) dom.Element {
		m := records[0]
		if m.Kind == dom.KindAttributes && m.AttributeName == attr {
			return m.Target
		}
		return nil
	}
}

func activeAndShown(records []dom.Mutation) dom.Element {
	return firstTarget(records, func(m dom.Mutation) bool {
		return m.Kind == dom.KindAttributes && m.Target.HasClass("active") && m.Target.HasClass("show")
	})
}

func visibleTile(records []dom.Mutation) dom.Element {
	return firstTarget(records, func(m dom.Mutation) bool {
		return m.Target.Matches("li.section.main") && m.Target.HasClass("state-visible")
	})
}

func childListOnly(records []dom.Mutation) dom.Element {
	return firstTarget(records, func(m dom.Mutation) bool {
		return m.Kind == dom.KindChildList
	})
}
