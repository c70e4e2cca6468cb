package playerwatch

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/playerwatch/connectivity"
	"github.com/hazyhaar/playerwatch/format"
	"github.com/hazyhaar/playerwatch/playerwatch/internal/browser"
	"github.com/hazyhaar/playerwatch/playerwatch/internal/roddom"
	"github.com/hazyhaar/playerwatch/playerwatch/internal/rodsdk"
	"github.com/hazyhaar/playerwatch/progress"
)

// Session hosts one LMS page in Chrome and runs an Engine on it.
type Session struct {
	cfg    *Config
	logger *slog.Logger
	mgr    *browser.Manager

	tab    *browser.Tab
	doc    *roddom.Document
	db     *sql.DB
	router *connectivity.Router
	engine *Engine
}

// NewSession prepares a session. Start opens the page.
func NewSession(cfg *Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:    cfg,
		logger: logger,
		mgr: browser.NewManager(browser.Config{
			RemoteURL:        cfg.Browser.Remote,
			Headful:          cfg.Browser.Headful,
			ResourceBlocking: cfg.Browser.ResourceBlocking,
			Logger:           logger,
		}),
		router: connectivity.New(connectivity.WithLogger(logger)),
	}
}

// Start launches the browser, opens the page and sets the engine up.
func (s *Session) Start(ctx context.Context) error {
	if s.cfg.Page.URL == "" {
		return fmt.Errorf("playerwatch: no page url configured")
	}

	db, err := connectivity.OpenDB(s.cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("playerwatch: open store: %w", err)
	}
	s.db = db
	store, err := progress.NewStore(db)
	if err != nil {
		return fmt.Errorf("playerwatch: open store: %w", err)
	}
	s.router.RegisterTransport("http", connectivity.HTTPFactory())
	go s.router.Watch(ctx, db, s.cfg.Store.RoutesRefresh)

	if _, err := s.mgr.Start(ctx); err != nil {
		return fmt.Errorf("playerwatch: %w", err)
	}
	tab, err := browser.OpenTab(ctx, s.mgr, s.cfg.Page.URL, s.cfg.Browser.NavigateTimeout)
	if err != nil {
		return fmt.Errorf("playerwatch: %w", err)
	}
	s.tab = tab

	doc, err := roddom.Attach(ctx, tab.Page, s.logger)
	if err != nil {
		return fmt.Errorf("playerwatch: %w", err)
	}
	s.doc = doc

	w := s.cfg.Widget
	loader := &rodsdk.Loader{
		Doc: doc,
		Hooks: rodsdk.Hooks{
			LoginURL:         w.LoginURL,
			MediaTitle:       w.MediaTitle,
			MediaDescription: w.MediaDescription,
		},
		Logger: s.logger,
	}
	s.engine = New(doc, loader, Options{
		Timing: TimingFrom(s.cfg),
		Frames: doc,
		Store:  store,
		Router: s.router,
		Logger: s.logger,
	})
	s.engine.RegisterConnectivity(s.router)

	params := ParamsFrom(s.cfg)
	params.Signals = pageSignals(doc, s.logger)
	return s.engine.Setup(ctx, params)
}

// pageGlobalsJS lists the layout plugins' globals present on the page,
// either on window or on the LMS's M namespace.
const pageGlobalsJS = `(names) => names.filter((k) =>
	(typeof window[k] !== 'undefined') || (window.M && typeof window.M[k] !== 'undefined'))`

func pageSignals(doc *roddom.Document, logger *slog.Logger) format.Signals {
	res, err := doc.Eval(pageGlobalsJS, format.GlobalMarkers())
	if err != nil {
		logger.Debug("playerwatch: read page globals", "error", err)
		return format.Signals{}
	}
	var sig format.Signals
	for _, v := range res.Value.Arr() {
		sig.Globals = append(sig.Globals, v.Str())
	}
	return sig
}

// Engine returns the running engine, or nil before Start.
func (s *Session) Engine() *Engine { return s.engine }

// Router returns the session's service router.
func (s *Session) Router() *connectivity.Router { return s.router }

// Close tears everything down.
func (s *Session) Close() {
	if s.engine != nil {
		s.engine.Stop()
	}
	if s.doc != nil {
		s.doc.Close()
	}
	if s.tab != nil {
		_ = s.tab.Close()
	}
	_ = s.mgr.Close()
	_ = s.router.Close()
	if s.db != nil {
		_ = s.db.Close()
	}
}
