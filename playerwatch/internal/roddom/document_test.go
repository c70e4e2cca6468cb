package roddom

import (
	"strings"
	"testing"
)

func TestPageJS_DefinesHelpers(t *testing.T) {
	for _, name := range []string{
		"body", "byId", "query", "find", "create", "tag", "attr", "setAttr",
		"hasClass", "matches", "rendered", "parent", "contains", "append",
		"label", "on", "off", "observe", "disconnect", "post", "emit",
	} {
		if !strings.Contains(pageJS, "\n    "+name+": ") {
			t.Errorf("page.js does not define __pw.%s", name)
		}
	}
	if !strings.Contains(pageJS, bindingName) {
		t.Error("page.js does not report through the binding")
	}
}
