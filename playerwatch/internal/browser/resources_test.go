package browser

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

func TestBlocked(t *testing.T) {
	set := blocked([]string{"Images", "fonts", "xhr", "bogus"})
	if !set[proto.NetworkResourceTypeImage] || !set[proto.NetworkResourceTypeFont] {
		t.Fatalf("named types missing: %v", set)
	}
	if !set[proto.NetworkResourceTypeXHR] {
		t.Fatalf("xhr missing: %v", set)
	}
	if len(set) != 3 || set[proto.NetworkResourceTypeStylesheet] {
		t.Fatal("stylesheets blocked without being asked")
	}
}
