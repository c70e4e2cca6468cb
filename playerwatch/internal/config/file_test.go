package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("page:\n  url: https://lms.example/course/view.php?id=2\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Page.URL == "" {
		t.Fatal("url lost")
	}
	if cfg.Timing.ModalOpen != 1500*time.Millisecond || cfg.Timing.ModalClose != 200*time.Millisecond {
		t.Fatalf("modal settle: %v %v", cfg.Timing.ModalOpen, cfg.Timing.ModalClose)
	}
	if cfg.Timing.Failsafe != time.Second || cfg.Timing.RetryAttempts != 20 {
		t.Fatalf("timing: %+v", cfg.Timing)
	}
	if cfg.Widget.ReadyTimeout != 10*time.Second {
		t.Fatalf("ready timeout: %v", cfg.Widget.ReadyTimeout)
	}
}

func TestParse_Durations(t *testing.T) {
	src := `
timing:
  settle:
    snap: 750ms
    icontent: 3s
  failsafe: 2s
widget:
  client_id: abc
  group:
    id: "42"
    title: Course
completion:
  enabled: true
  totalview: "80"
`
	cfg, err := Parse([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Timing.Settle["snap"] != 750*time.Millisecond || cfg.Timing.Settle["icontent"] != 3*time.Second {
		t.Fatalf("settle: %v", cfg.Timing.Settle)
	}
	if cfg.Timing.Failsafe != 2*time.Second {
		t.Fatalf("failsafe: %v", cfg.Timing.Failsafe)
	}
	if cfg.Widget.ClientID != "abc" || cfg.Widget.Group.ID != "42" {
		t.Fatalf("widget: %+v", cfg.Widget)
	}
	if !cfg.Completion.Enabled || cfg.Completion.TotalView != "80" {
		t.Fatalf("completion: %+v", cfg.Completion)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pw.yaml")
	if err := os.WriteFile(path, []byte("http:\n  addr: ':9000'\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Addr != ":9000" {
		t.Fatalf("addr: %q", cfg.HTTP.Addr)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("timing: [")); err == nil {
		t.Fatal("expected error")
	}
}
