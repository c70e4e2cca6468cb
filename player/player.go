// Package player locates embedded media players inside a DOM subtree.
package player

import "github.com/hazyhaar/playerwatch/dom"

// Kind is the player family a Descriptor was matched as.
type Kind string

const (
	KindVideoJS Kind = "videojs"
	KindJW      Kind = "jw"
	KindH5P     Kind = "h5p"
	KindYouTube Kind = "youtube"
	KindVimeo   Kind = "vimeo"
	KindWistia  Kind = "wistia"
	KindHTML5   Kind = "html5"
)

// OverlayTimeline reports whether the widget timeline may overlay the
// player. The iframe-based sharing sites lay out their own controls over
// the frame, so the timeline sits below them instead.
func (k Kind) OverlayTimeline() bool {
	return k != KindYouTube && k != KindVimeo
}

// MultiInstance reports whether pages commonly embed several independent
// players of this kind side by side.
func (k Kind) MultiInstance() bool {
	return k == KindVimeo || k == KindVideoJS
}

// Descriptor is one located player. It is rebuilt on every Locate call.
type Descriptor struct {
	ID      string      `json:"id"`
	Kind    Kind        `json:"kind"`
	Element dom.Element `json:"-"`
}

// Same reports whether d and other name the same logical player.
func (d *Descriptor) Same(other *Descriptor) bool {
	if d == nil || other == nil {
		return d == nil && other == nil
	}
	return d.ID == other.ID
}

// Selector returns the signature selector of kind, or "" for unknown kinds.
func Selector(kind Kind) string {
	for _, m := range matchers {
		if m.kind == kind {
			return m.selector
		}
	}
	return ""
}

// Kinds returns every kind in locator priority order.
func Kinds() []Kind {
	out := make([]Kind, len(matchers))
	for i, m := range matchers {
		out[i] = m.kind
	}
	return out
}
