package player

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/playerwatch/dom"
	"github.com/hazyhaar/playerwatch/idgen"
)

// matcher is one row of the priority table. prepare, when set, may patch
// the matched element before the descriptor is returned.
type matcher struct {
	kind     Kind
	selector string
	prepare  func(dom.Element) error
}

// matchers is consulted in order; the first kind with a match wins.
var matchers = []matcher{
	{kind: KindVideoJS, selector: ".video-js"},
	{kind: KindJW, selector: ".jwplayer"},
	{kind: KindH5P, selector: "iframe.h5p-iframe"},
	{kind: KindYouTube, selector: `iframe[src*="youtube.com"]`, prepare: enableYouTubeAPI},
	{kind: KindVimeo, selector: `iframe[src*="vimeo.com"]`},
	{kind: KindWistia, selector: ".wistia_embed:not(iframe)"},
	{kind: KindHTML5, selector: "video"},
}

// EnableJSAPI returns src with enablejsapi=1 appended, and whether it
// changed. A src already carrying the parameter (any case) is left alone.
func EnableJSAPI(src string) (string, bool) {
	if strings.Contains(strings.ToLower(src), "enablejsapi") {
		return src, false
	}
	sep := "?"
	if strings.Contains(src, "?") {
		sep = "&"
	}
	return src + sep + "enablejsapi=1", true
}

func enableYouTubeAPI(el dom.Element) error {
	src, _ := el.Attr("src")
	patched, changed := EnableJSAPI(src)
	if !changed {
		return nil
	}
	return el.SetAttr("src", patched)
}

// Options configures a Locator.
type Options struct {
	// IDs generates ids for players lacking one. Default: idgen.ElementID.
	IDs    idgen.Generator
	Logger *slog.Logger
}

// Locator finds the highest priority player under a root element.
type Locator struct {
	ids    idgen.Generator
	logger *slog.Logger
}

// NewLocator creates a Locator.
func NewLocator(opts Options) *Locator {
	if opts.IDs == nil {
		opts.IDs = idgen.ElementID
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Locator{ids: opts.IDs, logger: opts.Logger}
}

// Locate returns the first player under root, or nil. The matched element
// gets an id if it has none; a YouTube iframe gets enablejsapi=1.
func (l *Locator) Locate(root dom.Element) *Descriptor {
	if root == nil {
		return nil
	}
	for _, m := range matchers {
		el := dom.First(root.Find(m.selector))
		if el == nil {
			continue
		}
		if m.prepare != nil {
			if err := m.prepare(el); err != nil {
				l.logger.Warn("player: prepare failed", "kind", m.kind, "error", err)
			}
		}
		id, err := l.EnsureID(el)
		if err != nil {
			l.logger.Warn("player: assign id", "kind", m.kind, "error", err)
			return nil
		}
		l.logger.Info("player: detected", "kind", m.kind, "id", id, "root", root.Label())
		return &Descriptor{ID: id, Kind: m.kind, Element: el}
	}
	l.logger.Info("player: none found", "root", root.Label())
	return nil
}

// LocateAll returns a descriptor for every element of kind under root, in
// document order.
func (l *Locator) LocateAll(root dom.Element, kind Kind) ([]*Descriptor, error) {
	sel := Selector(kind)
	if root == nil || sel == "" {
		return nil, nil
	}
	var out []*Descriptor
	for _, el := range root.Find(sel) {
		id, err := l.EnsureID(el)
		if err != nil {
			return nil, fmt.Errorf("player: locate all: %w", err)
		}
		out = append(out, &Descriptor{ID: id, Kind: kind, Element: el})
	}
	return out, nil
}

// EnsureID returns el's id, assigning a generated one when it is empty.
func (l *Locator) EnsureID(el dom.Element) (string, error) {
	if id := el.ID(); id != "" {
		return id, nil
	}
	id := l.ids()
	if err := el.SetID(id); err != nil {
		return "", err
	}
	return id, nil
}
