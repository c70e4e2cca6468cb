package widget_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/playerwatch/dom/memdom"
	"github.com/hazyhaar/playerwatch/player"
	"github.com/hazyhaar/playerwatch/widget"
	"github.com/hazyhaar/playerwatch/widget/widgettest"
)

const page = `<html><body><div id="page-wrapper">
<div id="sec"><div class="holder"><video id="v1"></video></div></div>
<div id="other"><iframe id="yt" src="https://www.youtube.com/embed/x?enablejsapi=1"></iframe></div>
</div></body></html>`

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func setup(t *testing.T, opts widget.Options) (*memdom.Document, *widget.Adapter, *widgettest.SDK, *widgettest.Loader) {
	t.Helper()
	doc := memdom.MustParse(page)
	sdk := widgettest.New()
	loader := &widgettest.Loader{SDK: sdk}
	if opts.Logger == nil {
		opts.Logger = quiet
	}
	if opts.ReadyTimeout == 0 {
		opts.ReadyTimeout = time.Second
	}
	a, err := widget.NewAdapter(doc, loader, opts)
	if err != nil {
		t.Fatal(err)
	}
	return doc, a, sdk, loader
}

func descriptor(doc *memdom.Document, id string, kind player.Kind) *player.Descriptor {
	return &player.Descriptor{ID: id, Kind: kind, Element: doc.ByID(id)}
}

func TestNewAdapter_MountsInPageWrapper(t *testing.T) {
	doc, a, _, _ := setup(t, widget.Options{})
	if a.Home().ID() != "page-wrapper" {
		t.Fatalf("home: got %s", a.Home().Label())
	}
	if doc.ByID(widget.AppID) == nil || !a.App().Parent().Same(a.Home()) {
		t.Fatal("app container not mounted in home")
	}
}

func TestNewAdapter_FallsBackToBody(t *testing.T) {
	doc := memdom.MustParse(`<html><body><p>x</p></body></html>`)
	a, err := widget.NewAdapter(doc, &widgettest.Loader{}, widget.Options{Logger: quiet})
	if err != nil {
		t.Fatal(err)
	}
	if a.Home().Tag() != "body" {
		t.Fatalf("home: got %s", a.Home().Label())
	}
}

func TestBootstrap_LoadsOnce(t *testing.T) {
	doc, a, sdk, loader := setup(t, widget.Options{Base: widget.Config{ClientID: "cid"}})
	ctx := context.Background()
	p := descriptor(doc, "v1", player.KindHTML5)

	if err := a.Bootstrap(ctx, p); err != nil {
		t.Fatal(err)
	}
	if err := a.Bootstrap(ctx, p); err != nil {
		t.Fatal(err)
	}
	if loader.Loads() != 1 {
		t.Fatalf("asset loads: got %d, want 1", loader.Loads())
	}
	calls := sdk.Calls()
	if len(calls) != 1 || calls[0].Op != "boot" || calls[0].Player != "#v1" {
		t.Fatalf("calls: %+v", calls)
	}
	if calls[0].Config.ClientID != "cid" {
		t.Fatalf("base config not carried: %+v", calls[0].Config)
	}
	if !a.Bootstrapped() || !a.Ready() || !a.Loaded() || a.Attached().ID != "v1" {
		t.Fatal("state after bootstrap")
	}
}

func TestBootstrap_RuntimeMissing(t *testing.T) {
	doc := memdom.MustParse(page)
	loader := &widgettest.Loader{Missing: true}
	a, err := widget.NewAdapter(doc, loader, widget.Options{Logger: quiet})
	if err != nil {
		t.Fatal(err)
	}
	p := descriptor(doc, "v1", player.KindHTML5)
	err = a.Bootstrap(context.Background(), p)
	if !errors.Is(err, widget.ErrBootstrapFailed) || !errors.Is(err, widget.ErrRuntimeMissing) {
		t.Fatalf("err: got %v", err)
	}
	// Not retried.
	_ = a.Bootstrap(context.Background(), p)
	if loader.Loads() != 1 {
		t.Fatalf("asset loads: got %d, want 1", loader.Loads())
	}
	if !a.Bootstrapped() || a.Loaded() {
		t.Fatal("failed bootstrap should stay bootstrapped and not loaded")
	}
	if err := a.Load(context.Background(), p); !errors.Is(err, widget.ErrNotReady) {
		t.Fatalf("Load after failed bootstrap: got %v", err)
	}
}

func TestBootstrap_ReadyTimeout(t *testing.T) {
	doc, a, sdk, _ := setup(t, widget.Options{ReadyTimeout: 20 * time.Millisecond})
	sdk.NoReady = true
	err := a.Bootstrap(context.Background(), descriptor(doc, "v1", player.KindHTML5))
	if !errors.Is(err, widget.ErrNotReady) {
		t.Fatalf("err: got %v", err)
	}
	if a.Loaded() {
		t.Fatal("loaded without ready")
	}
}

func TestBootstrap_LateReadyCallsOnReady(t *testing.T) {
	var calls atomic.Int32
	doc, a, sdk, _ := setup(t, widget.Options{
		ReadyTimeout: 20 * time.Millisecond,
		OnReady:      func() { calls.Add(1) },
	})
	sdk.NoReady = true
	if err := a.Bootstrap(context.Background(), descriptor(doc, "v1", player.KindHTML5)); !errors.Is(err, widget.ErrNotReady) {
		t.Fatalf("err: got %v", err)
	}
	if calls.Load() != 0 || a.Ready() {
		t.Fatal("ready before the event")
	}

	sdk.Emit(widget.EventReady, json.RawMessage(`{}`))
	sdk.Emit(widget.EventReady, json.RawMessage(`{}`))
	if n := calls.Load(); n != 1 {
		t.Fatalf("OnReady calls: %d", n)
	}
	if !a.Ready() {
		t.Fatal("not ready after the event")
	}
	if err := a.Load(context.Background(), descriptor(doc, "yt", player.KindYouTube)); err != nil {
		t.Fatalf("Load after late ready: %v", err)
	}
}

func TestLoad_SameIDIsNoop(t *testing.T) {
	doc, a, sdk, _ := setup(t, widget.Options{})
	ctx := context.Background()
	if err := a.Bootstrap(ctx, descriptor(doc, "v1", player.KindHTML5)); err != nil {
		t.Fatal(err)
	}
	if err := a.Load(ctx, descriptor(doc, "v1", player.KindHTML5)); err != nil {
		t.Fatal(err)
	}
	if err := a.Load(ctx, descriptor(doc, "yt", player.KindYouTube)); err != nil {
		t.Fatal(err)
	}
	if err := a.Load(ctx, descriptor(doc, "yt", player.KindYouTube)); err != nil {
		t.Fatal(err)
	}
	ops := sdk.Ops()
	if len(ops) != 2 || ops[1] != "load" {
		t.Fatalf("ops: %v", ops)
	}
	last := sdk.Calls()[1]
	if last.Kind != "youtube" || last.Config.Widgets[0].Timeline.Overlay {
		t.Fatalf("youtube load should use a non-overlay timeline: %+v", last.Config.Widgets[0])
	}
}

func TestLoad_RejectionLeavesNotLoaded(t *testing.T) {
	doc, a, sdk, _ := setup(t, widget.Options{})
	ctx := context.Background()
	if err := a.Bootstrap(ctx, descriptor(doc, "v1", player.KindHTML5)); err != nil {
		t.Fatal(err)
	}
	sdk.FailNext("load", errors.New("boom"))
	if err := a.Load(ctx, descriptor(doc, "yt", player.KindYouTube)); err == nil {
		t.Fatal("expected error")
	}
	if a.Loaded() || a.Attached() != nil {
		t.Fatal("state should be not loaded after rejection")
	}
	// A later pass retries naturally.
	if err := a.Load(ctx, descriptor(doc, "v1", player.KindHTML5)); err != nil {
		t.Fatal(err)
	}
	if !a.Loaded() {
		t.Fatal("retry did not load")
	}
}

func TestDestroy(t *testing.T) {
	doc, a, sdk, _ := setup(t, widget.Options{})
	ctx := context.Background()
	if err := a.Destroy(ctx); err != nil {
		t.Fatal(err)
	}
	if len(sdk.Ops()) != 0 {
		t.Fatal("destroy before load reached the runtime")
	}
	if err := a.Bootstrap(ctx, descriptor(doc, "v1", player.KindHTML5)); err != nil {
		t.Fatal(err)
	}
	sdk.FailNext("destroy", errors.New("boom"))
	if err := a.Destroy(ctx); err == nil {
		t.Fatal("expected error")
	}
	if a.Loaded() {
		t.Fatal("rejected destroy should still leave not loaded")
	}
	if err := a.Destroy(ctx); err != nil {
		t.Fatal(err)
	}
	if got := sdk.Ops(); len(got) != 2 {
		t.Fatalf("ops: %v", got)
	}
}

func TestMoveContainer_Idempotent(t *testing.T) {
	doc, a, _, _ := setup(t, widget.Options{})
	sec := doc.ByID("sec")
	moved, err := a.MoveContainer(sec)
	if err != nil || !moved {
		t.Fatalf("first move: %v %v", moved, err)
	}
	moved, err = a.MoveContainer(sec)
	if err != nil || moved {
		t.Fatalf("second move: %v %v", moved, err)
	}
	if !a.App().Parent().Same(sec) {
		t.Fatal("app not in target")
	}
	moved, _ = a.MoveHome()
	if !moved || !a.App().Parent().Same(a.Home()) {
		t.Fatal("move home")
	}
	if moved, _ = a.MoveHome(); moved {
		t.Fatal("second move home should be a no-op")
	}
}

func TestPositionOnParent(t *testing.T) {
	doc, a, sdk, _ := setup(t, widget.Options{PositionOnParent: true})
	if err := a.Bootstrap(context.Background(), descriptor(doc, "v1", player.KindHTML5)); err != nil {
		t.Fatal(err)
	}
	w := sdk.Calls()[0].Config.Widgets[0]
	if w.PositionElement == "" {
		t.Fatal("position element not set")
	}
	holder := doc.MustQuery(".holder")
	if w.PositionElement != "#"+holder.ID() {
		t.Fatalf("position element: got %q, parent id %q", w.PositionElement, holder.ID())
	}
}

func TestInFlightGuard(t *testing.T) {
	doc, a, sdk, _ := setup(t, widget.Options{})
	ctx := context.Background()
	if err := a.Bootstrap(ctx, descriptor(doc, "v1", player.KindHTML5)); err != nil {
		t.Fatal(err)
	}
	sdk.SetDelay(50 * time.Millisecond)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	ids := []string{"yt", "v1"}
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i == 1 {
				time.Sleep(10 * time.Millisecond)
			}
			errs[i] = a.Load(ctx, descriptor(doc, ids[i], player.KindHTML5))
		}()
	}
	wg.Wait()
	if errs[0] != nil || !errors.Is(errs[1], widget.ErrInFlight) {
		t.Fatalf("errs: %v", errs)
	}
	if sdk.MaxInflight() != 1 {
		t.Fatalf("overlapping runtime calls: %d", sdk.MaxInflight())
	}
}

func TestActivityForwarded(t *testing.T) {
	var got json.RawMessage
	doc, a, sdk, _ := setup(t, widget.Options{OnActivity: func(p json.RawMessage) { got = p }})
	if err := a.Bootstrap(context.Background(), descriptor(doc, "v1", player.KindHTML5)); err != nil {
		t.Fatal(err)
	}
	sdk.Emit(widget.EventMyActivity, json.RawMessage(`{"completion":40}`))
	if string(got) != `{"completion":40}` {
		t.Fatalf("got %s", got)
	}
}

func TestAuth(t *testing.T) {
	doc, a, sdk, _ := setup(t, widget.Options{})
	ctx := context.Background()
	if err := a.Auth(ctx, "tok"); !errors.Is(err, widget.ErrNotReady) {
		t.Fatalf("auth before boot: %v", err)
	}
	if err := a.Bootstrap(ctx, descriptor(doc, "v1", player.KindHTML5)); err != nil {
		t.Fatal(err)
	}
	if err := a.Auth(ctx, "tok"); err != nil {
		t.Fatal(err)
	}
	if ops := sdk.Ops(); ops[len(ops)-1] != "auth" {
		t.Fatalf("ops: %v", ops)
	}
}
