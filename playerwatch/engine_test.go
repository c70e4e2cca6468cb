package playerwatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/playerwatch/connectivity"
	"github.com/hazyhaar/playerwatch/dbopen"
	"github.com/hazyhaar/playerwatch/dom"
	"github.com/hazyhaar/playerwatch/dom/memdom"
	"github.com/hazyhaar/playerwatch/format"
	"github.com/hazyhaar/playerwatch/player"
	"github.com/hazyhaar/playerwatch/playerwatch"
	"github.com/hazyhaar/playerwatch/progress"
	"github.com/hazyhaar/playerwatch/retry"
	"github.com/hazyhaar/playerwatch/widget"
	"github.com/hazyhaar/playerwatch/widget/widgettest"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

const plainPage = `<html><body class="format-topics"><div id="page-wrapper">
<div class="section main" id="sec"><div class="holder"><video id="v1"></video></div></div>
<div class="section main" id="empty"><p>text</p></div>
</div></body></html>`

const ltiPage = `<html><body id="page-mod-lti-view"><div id="page-wrapper">
<iframe id="contentframe" src="https://tool.example/launch"></iframe>
</div></body></html>`

var fastTiming = playerwatch.Timing{
	Settle:       map[format.Tag]time.Duration{format.Plain: 5 * time.Millisecond},
	ModalOpen:    10 * time.Millisecond,
	ModalClose:   5 * time.Millisecond,
	Failsafe:     20 * time.Millisecond,
	Retry:        retry.Policy{Attempts: 5, Interval: 5 * time.Millisecond},
	ReadyTimeout: time.Second,
}

type fixture struct {
	doc    *memdom.Document
	sdk    *widgettest.SDK
	loader *widgettest.Loader
	eng    *playerwatch.Engine
}

func newFixture(t *testing.T, html string, opts playerwatch.Options) *fixture {
	t.Helper()
	doc := memdom.MustParse(html)
	sdk := widgettest.New()
	loader := &widgettest.Loader{SDK: sdk}
	if opts.Logger == nil {
		opts.Logger = quiet
	}
	if opts.Timing.Failsafe == 0 {
		opts.Timing = fastTiming
	}
	eng := playerwatch.New(doc, loader, opts)
	t.Cleanup(eng.Stop)
	return &fixture{doc: doc, sdk: sdk, loader: loader, eng: eng}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func count(ops []string, op string) int {
	n := 0
	for _, o := range ops {
		if o == op {
			n++
		}
	}
	return n
}

func TestSetup_BootstrapsOnce(t *testing.T) {
	f := newFixture(t, plainPage, playerwatch.Options{})
	ctx := context.Background()
	if err := f.eng.Setup(ctx, playerwatch.Params{}); err != nil {
		t.Fatal(err)
	}
	eventually(t, "widget loaded", func() bool { return f.eng.State().Loaded })

	if err := f.eng.Setup(ctx, playerwatch.Params{}); err != nil {
		t.Fatalf("second Setup: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if f.loader.Loads() != 1 {
		t.Fatalf("runtime loads: %d", f.loader.Loads())
	}
	if n := count(f.sdk.Ops(), "boot"); n != 1 {
		t.Fatalf("boots: %d (%v)", n, f.sdk.Ops())
	}

	st := f.eng.State()
	if !st.SetUp || st.Format != format.Plain {
		t.Fatalf("state: %+v", st)
	}
	if st.Attached == nil || st.Attached.ID != "v1" || st.Attached.Kind != player.KindHTML5 {
		t.Fatalf("attached: %+v", st.Attached)
	}
}

func TestSetup_ForcedFormat(t *testing.T) {
	f := newFixture(t, plainPage, playerwatch.Options{})
	if err := f.eng.Setup(context.Background(), playerwatch.Params{Format: format.LTI}); err != nil {
		t.Fatal(err)
	}
	st := f.eng.State()
	if st.Format != format.LTI || st.Observing {
		t.Fatalf("state: %+v", st)
	}
}

func TestState_BeforeSetup(t *testing.T) {
	f := newFixture(t, plainPage, playerwatch.Options{})
	st := f.eng.State()
	if st.SetUp || st.Loaded || st.Format != "" {
		t.Fatalf("state: %+v", st)
	}
	if err := f.eng.Auth(context.Background(), "tok"); !errors.Is(err, playerwatch.ErrNotSetUp) {
		t.Fatalf("Auth before setup: %v", err)
	}
	f.eng.Stop()
}

func TestFindPlayerIn(t *testing.T) {
	f := newFixture(t, plainPage, playerwatch.Options{})

	d, err := f.eng.FindPlayerIn("sec")
	if err != nil {
		t.Fatal(err)
	}
	if d == nil || d.ID != "v1" || d.Kind != player.KindHTML5 {
		t.Fatalf("descriptor: %+v", d)
	}

	d, err = f.eng.FindPlayerIn("empty")
	if err != nil || d != nil {
		t.Fatalf("empty container: %+v, %v", d, err)
	}

	d, err = f.eng.FindPlayerIn("")
	if err != nil || d == nil || d.ID != "v1" {
		t.Fatalf("whole page: %+v, %v", d, err)
	}

	if _, err := f.eng.FindPlayerIn("nope"); err == nil {
		t.Fatal("unknown container accepted")
	}
}

func TestAuth_ForwardedOnceReady(t *testing.T) {
	f := newFixture(t, plainPage, playerwatch.Options{})
	if err := f.eng.Setup(context.Background(), playerwatch.Params{}); err != nil {
		t.Fatal(err)
	}
	eventually(t, "widget loaded", func() bool { return f.eng.State().Loaded })
	if err := f.eng.Auth(context.Background(), "sso-token"); err != nil {
		t.Fatal(err)
	}
	var got string
	for _, c := range f.sdk.Calls() {
		if c.Op == "auth" {
			got = c.Player
		}
	}
	if got != "sso-token" {
		t.Fatalf("auth token: %q", got)
	}
}

type published struct {
	mu     sync.Mutex
	events map[string][]json.RawMessage
}

func (p *published) handler(event string) connectivity.Handler {
	return func(_ context.Context, payload []byte) ([]byte, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.events[event] = append(p.events[event], append(json.RawMessage(nil), payload...))
		return nil, nil
	}
}

func (p *published) get(event string) []json.RawMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]json.RawMessage(nil), p.events[event]...)
}

func newRouter() (*connectivity.Router, *published) {
	pub := &published{events: make(map[string][]json.RawMessage)}
	router := connectivity.New(connectivity.WithLogger(quiet))
	router.RegisterLocal(playerwatch.EventActivity, pub.handler(playerwatch.EventActivity))
	router.RegisterLocal(playerwatch.EventCompleted, pub.handler(playerwatch.EventCompleted))
	return router, pub
}

func TestWidgetActivity_StoredAndPublished(t *testing.T) {
	store, err := progress.NewStore(dbopen.OpenMemory(t))
	if err != nil {
		t.Fatal(err)
	}
	router, pub := newRouter()
	f := newFixture(t, plainPage, playerwatch.Options{Store: store, Router: router})

	err = f.eng.Setup(context.Background(), playerwatch.Params{
		ActivityID:   "42",
		Learner:      progress.Learner{Enrolled: true, HasToken: true},
		Requirements: &progress.Requirements{Enabled: true, TotalView: "50"},
	})
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, "widget loaded", func() bool { return f.eng.State().Loaded })

	f.sdk.Emit(widget.EventMyActivity, json.RawMessage(`{"completion":20,"comments":0,"replies":0}`))
	if f.eng.State().Completed {
		t.Fatal("completed below threshold")
	}
	f.sdk.Emit(widget.EventMyActivity, json.RawMessage(`{"completion":75,"comments":1,"replies":0}`))
	f.sdk.Emit(widget.EventMyActivity, json.RawMessage(`{"completion":90,"comments":1,"replies":0}`))

	st := f.eng.State()
	if !st.Completed || st.Activity == nil || st.Activity.Completion != 90 {
		t.Fatalf("state: %+v", st)
	}

	rec, err := store.Latest(context.Background(), "42")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Source != "widget" || !rec.Completed || rec.Activity.Completion != 90 {
		t.Fatalf("latest: %+v", rec)
	}

	if n := len(pub.get(playerwatch.EventActivity)); n != 3 {
		t.Fatalf("activity events: %d", n)
	}
	done := pub.get(playerwatch.EventCompleted)
	if len(done) != 1 {
		t.Fatalf("completed events: %d", len(done))
	}
	var payload struct {
		ActivityID string `json:"activity_id"`
	}
	if err := json.Unmarshal(done[0], &payload); err != nil || payload.ActivityID != "42" {
		t.Fatalf("completed payload: %s", done[0])
	}
}

func TestWidgetActivity_MalformedIgnored(t *testing.T) {
	router, pub := newRouter()
	f := newFixture(t, plainPage, playerwatch.Options{Router: router})
	if err := f.eng.Setup(context.Background(), playerwatch.Params{ActivityID: "1"}); err != nil {
		t.Fatal(err)
	}
	eventually(t, "widget loaded", func() bool { return f.eng.State().Loaded })
	f.sdk.Emit(widget.EventMyActivity, json.RawMessage(`not json`))
	if f.eng.State().Activity != nil || len(pub.get(playerwatch.EventActivity)) != 0 {
		t.Fatal("malformed payload was observed")
	}
}

// fakeFrames records posts and hands replies back to the registered
// message callback.
type fakeFrames struct {
	mu     sync.Mutex
	posts  []string
	frame  string
	nested bool
	onMsg  []func([]byte)
}

func (f *fakeFrames) PostToFrame(frame dom.Element, msg []byte, nested bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, string(msg))
	f.frame = frame.ID()
	f.nested = nested
	return nil
}

func (f *fakeFrames) OnMessage(fn func([]byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onMsg = append(f.onMsg, fn)
}

func (f *fakeFrames) Posts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.posts...)
}

func (f *fakeFrames) target() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame, f.nested
}

func (f *fakeFrames) deliver(msg string) {
	f.mu.Lock()
	fns := slices.Clone(f.onMsg)
	f.mu.Unlock()
	for _, fn := range fns {
		fn([]byte(msg))
	}
}

func TestLTI_SubscribesToIframeProgress(t *testing.T) {
	frames := &fakeFrames{}
	router, pub := newRouter()
	f := newFixture(t, ltiPage, playerwatch.Options{Frames: frames, Router: router})

	err := f.eng.Setup(context.Background(), playerwatch.Params{
		ActivityID:   "7",
		Learner:      progress.Learner{Enrolled: true, HasToken: true},
		Requirements: &progress.Requirements{Enabled: true, TotalView: "100"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if f.eng.State().Format != format.LTI {
		t.Fatalf("format: %s", f.eng.State().Format)
	}

	eventually(t, "subscribe post", func() bool { return len(frames.Posts()) > 0 })
	id := progress.CorrelationID(progress.FrameLTI, "contentframe")
	var msg progress.Message
	if err := json.Unmarshal([]byte(frames.Posts()[0]), &msg); err != nil {
		t.Fatal(err)
	}
	if msg != progress.SubscribeMessage(id) {
		t.Fatalf("message: %+v", msg)
	}
	if frame, nested := frames.target(); frame != "contentframe" || nested {
		t.Fatalf("posted to %q nested=%v", frame, nested)
	}

	frames.deliver(`{"aud":"annoto_widget","id":"` + id + `","type":"subscribe"}`)
	frames.deliver(`{"aud":"annoto_widget","id":"` + id + `","type":"event","data":{"eventName":"my_activity","eventData":{"completion":100}}}`)

	st := f.eng.State()
	if !st.Completed || st.Activity == nil || st.Activity.Completion != 100 {
		t.Fatalf("state: %+v", st)
	}
	events := pub.get(playerwatch.EventActivity)
	if len(events) != 1 || !strings.Contains(string(events[0]), `"source":"iframe"`) {
		t.Fatalf("activity events: %s", events)
	}
}

func TestLTI_NoSubscriptionWithoutRequirements(t *testing.T) {
	frames := &fakeFrames{}
	f := newFixture(t, ltiPage, playerwatch.Options{Frames: frames})
	err := f.eng.Setup(context.Background(), playerwatch.Params{
		Learner: progress.Learner{Enrolled: true, HasToken: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	if len(frames.Posts()) != 0 {
		t.Fatalf("posts: %v", frames.Posts())
	}
}

func TestRegisterConnectivity(t *testing.T) {
	f := newFixture(t, plainPage, playerwatch.Options{})
	router := connectivity.New(connectivity.WithLogger(quiet))
	f.eng.RegisterConnectivity(router)
	ctx := context.Background()

	out, err := router.Call(ctx, playerwatch.ServiceFindPlayer, []byte(`{"container":"sec"}`))
	if err != nil {
		t.Fatal(err)
	}
	var resp playerwatch.FindPlayerResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Found || resp.Player.ID != "v1" {
		t.Fatalf("find_player: %s", out)
	}

	if _, err := router.Call(ctx, playerwatch.ServiceFindPlayer, []byte(`{"container":"nope"}`)); err == nil {
		t.Fatal("unknown container accepted")
	}

	out, err = router.Call(ctx, playerwatch.ServiceState, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `"setup":false`) {
		t.Fatalf("state: %s", out)
	}
}
