// Package dom is the port between the reconciliation engine and a live page.
//
// The engine never touches a browser directly. It sees elements through
// Element, the page through Document, and change notifications as batches
// of Mutation records, the same shape a MutationObserver produces. Two
// implementations exist: dom/memdom (in-process tree, used by tests) and the
// rod-backed one in playerwatch/internal/roddom.
package dom

// Element is a handle to an element of the observed page.
//
// Methods that read never fail: a handle whose node has gone away answers
// with zero values (empty id, not rendered, no children). Methods that write
// return an error because they cross a process boundary in the browser
// implementation.
type Element interface {
	ID() string
	SetID(id string) error
	Tag() string
	Attr(name string) (string, bool)
	SetAttr(name, value string) error
	HasClass(name string) bool

	// Matches reports whether the element matches a CSS selector, evaluated
	// against the whole document (ancestors outside the element count).
	Matches(selector string) bool

	// Rendered reports whether the element currently has a layout box
	// (offsetParent != null in browser terms).
	Rendered() bool

	// Parent returns nil for the root or a detached node.
	Parent() Element
	Contains(other Element) bool

	// Find returns the descendants matching selector in document order.
	Find(selector string) []Element

	// AppendChild moves child to be the last child of this element.
	AppendChild(child Element) error

	// On attaches an event listener. The returned function removes it.
	On(event string, fn func()) (remove func(), err error)

	// Same reports node identity. Two handles to one node are Same.
	Same(other Element) bool

	// Label is a short human description (id or class list) for logs.
	Label() string
}

// Document is the observed page.
type Document interface {
	Body() Element
	ByID(id string) Element
	QueryAll(selector string) []Element
	CreateElement(tag, id string) (Element, error)

	// Observe subscribes fn to mutations on targets. fn may be called from
	// any goroutine and must not block.
	Observe(targets []Element, opts ObserveOptions, fn func([]Mutation)) (Subscription, error)
}

// Subscription is a live Observe registration.
type Subscription interface {
	Disconnect()
}

// ObserveOptions mirrors MutationObserverInit.
type ObserveOptions struct {
	Attributes bool
	ChildList  bool
	Subtree    bool
}

// MutationKind is the type of a mutation record.
type MutationKind string

const (
	KindAttributes MutationKind = "attributes"
	KindChildList  MutationKind = "childList"
)

// Mutation is a single change notification.
type Mutation struct {
	Kind          MutationKind
	Target        Element
	AttributeName string // attributes only
	OldValue      string // attributes only
}

// First returns the first element among els, or nil.
func First(els []Element) Element {
	if len(els) == 0 {
		return nil
	}
	return els[0]
}

// FirstRendered returns the first rendered element among els, or nil.
func FirstRendered(els []Element) Element {
	for _, el := range els {
		if el.Rendered() {
			return el
		}
	}
	return nil
}

// Same is a nil-safe identity check.
func Same(a, b Element) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Same(b)
}
