// Package memdom is an in-process implementation of the dom port.
//
// The tree is an x/net/html document queried with goquery. Layout is not
// computed; visibility follows a list of "hidden" selectors standing in for
// the page stylesheet. Observe emulates MutationObserver: every mutating
// call delivers one batch, synchronously, after the document lock has been
// released.
package memdom

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/playerwatch/dom"
)

// DefaultHiddenSelectors approximate the display:none rules of the LMS
// themes the engine targets.
var DefaultHiddenSelectors = []string{
	"head", "script", "template",
	"[hidden]",
	`[style*="display:none"]`,
	`[style*="display: none"]`,
	".hide", ".hidden", ".d-none", ".hide_section",
	".modal:not(.show)",
	".yui3-tab-panel:not(.yui3-tab-panel-selected)",
	".TabbedPanelsContent:not(.TabbedPanelsContentVisible)",
	"#TabbedPanelsTabContent > div:not(.active)",
	".toggledsection:not(.sectionopen)",
	"body.theme-snap .section.main:not(.state-visible)",
	"#multi_section_tiles li.section.main:not(.state-visible)",
}

// Document is an in-memory page.
type Document struct {
	mu        sync.Mutex
	root      *html.Node
	gq        *goquery.Document
	hidden    cascadia.Matcher
	observers []*observer
	listeners map[*html.Node]map[string]map[int]func()
	nextID    int
}

// Option configures a Document.
type Option func(*Document) error

// WithHiddenSelectors replaces DefaultHiddenSelectors.
func WithHiddenSelectors(sels ...string) Option {
	return func(d *Document) error {
		m, err := cascadia.Compile(strings.Join(sels, ", "))
		if err != nil {
			return fmt.Errorf("memdom: hidden selectors: %w", err)
		}
		d.hidden = m
		return nil
	}
}

// Parse reads an HTML document.
func Parse(r io.Reader, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("memdom: parse: %w", err)
	}
	d := &Document{
		root:      root,
		gq:        goquery.NewDocumentFromNode(root),
		listeners: make(map[*html.Node]map[string]map[int]func()),
	}
	if err := WithHiddenSelectors(DefaultHiddenSelectors...)(d); err != nil {
		return nil, err
	}
	for _, o := range opts {
		if err := o(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// ParseString is Parse over a string.
func ParseString(s string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(s), opts...)
}

// MustParse panics on error. Intended for tests.
func MustParse(s string, opts ...Option) *Document {
	d, err := ParseString(s, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

// wrap returns a handle, or an untyped nil for a nil node.
func (d *Document) wrap(n *html.Node) dom.Element {
	if n == nil {
		return nil
	}
	return &Element{doc: d, n: n}
}

func (d *Document) wrapAll(nodes []*html.Node) []dom.Element {
	out := make([]dom.Element, 0, len(nodes))
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			out = append(out, &Element{doc: d, n: n})
		}
	}
	return out
}

// Body returns the body element.
func (d *Document) Body() dom.Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wrap(findFirst(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Body
	}))
}

// ByID returns the element with the given id, or nil.
func (d *Document) ByID(id string) dom.Element {
	if id == "" {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wrap(findFirst(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, "id") == id
	}))
}

// QueryAll returns every element matching selector in document order.
func (d *Document) QueryAll(selector string) []dom.Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wrapAll(d.gq.Find(selector).Nodes)
}

// Query is QueryAll's first match, or nil.
func (d *Document) Query(selector string) *Element {
	els := d.QueryAll(selector)
	if len(els) == 0 {
		return nil
	}
	return els[0].(*Element)
}

// MustQuery panics when selector matches nothing. Intended for tests.
func (d *Document) MustQuery(selector string) *Element {
	el := d.Query(selector)
	if el == nil {
		panic("memdom: no match for " + selector)
	}
	return el
}

// CreateElement creates a detached element.
func (d *Document) CreateElement(tag, id string) (dom.Element, error) {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
	if id != "" {
		n.Attr = []html.Attribute{{Key: "id", Val: id}}
	}
	return &Element{doc: d, n: n}, nil
}

// Render serialises the document. Intended for test failure messages.
func (d *Document) Render() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var sb strings.Builder
	_ = html.Render(&sb, d.root)
	return sb.String()
}

// --- node helpers (callers hold d.mu) ---

func findFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if pred(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, pred); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func classes(n *html.Node) []string {
	return strings.Fields(attr(n, "class"))
}

func hasClass(n *html.Node, name string) bool {
	for _, c := range classes(n) {
		if c == name {
			return true
		}
	}
	return false
}

func (d *Document) attached(n *html.Node) bool {
	for x := n; x != nil; x = x.Parent {
		if x == d.root {
			return true
		}
	}
	return false
}

func (d *Document) rendered(n *html.Node) bool {
	if !d.attached(n) {
		return false
	}
	for x := n; x != nil; x = x.Parent {
		if x.Type == html.ElementNode && d.hidden.Match(x) {
			return false
		}
	}
	return true
}
