package format

import "github.com/hazyhaar/playerwatch/dom"

// Signals carries page facts only the live page can answer, such as which
// LMS JavaScript modules registered themselves.
type Signals struct {
	// Globals names the members present on the LMS global (M.tabtopics, ...).
	Globals []string
}

func (s Signals) has(name string) bool {
	for _, g := range s.Globals {
		if g == name {
			return true
		}
	}
	return false
}

// GlobalMarkers lists the LMS globals Detect looks for, in precedence order.
func GlobalMarkers() []string {
	return []string{"tabtopics", "format_grid", "format_topcoll", "snapTheme"}
}

// Detect classifies the page. Module globals take precedence over body
// markers; anything unrecognised is Plain.
func Detect(doc dom.Document, sig Signals) Tag {
	switch {
	case sig.has("tabtopics"):
		return Tabs
	case sig.has("format_grid"):
		return Grid
	case sig.has("format_topcoll"):
		return Topcoll
	case sig.has("snapTheme"):
		return Snap
	}

	body := doc.Body()
	if body == nil {
		return Plain
	}
	switch {
	case body.ID() == "page-mod-tab-view":
		if len(doc.QueryAll("#page-mod-tab-view #TabbedPanelsTabContent > div")) > 0 {
			return ModtabDivs
		}
		return Modtab
	case body.ID() == "page-mod-kalvidres-view":
		return Kalvidres
	case body.HasClass("format-tiles"):
		return Tiles
	case body.HasClass("path-mod-icontent"):
		return Icontent
	case body.ID() == "page-mod-lti-view":
		return LTI
	}
	return Plain
}
