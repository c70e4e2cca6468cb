package playerwatch

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/playerwatch/kit"
	"github.com/hazyhaar/playerwatch/shield"
	"github.com/hazyhaar/playerwatch/widget"
)

// Handler serves the query surface:
//
//	GET  /state
//	GET  /player?container=<id>
//	POST /auth     {"token": "..."}
//	GET  /metrics  (when gatherer is not nil)
func (e *Engine) Handler(gatherer prometheus.Gatherer) http.Handler {
	eps := e.endpoints()
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	for _, mw := range shield.DefaultStack() {
		r.Use(mw)
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := kit.WithTransport(req.Context(), "http")
			ctx = kit.WithRequestID(ctx, middleware.GetReqID(ctx))
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})

	r.Get("/state", func(w http.ResponseWriter, req *http.Request) {
		resp, err := eps[ServiceState](req.Context(), nil)
		writeJSON(w, resp, err)
	})
	r.Get("/player", func(w http.ResponseWriter, req *http.Request) {
		resp, err := eps[ServiceFindPlayer](req.Context(), &findPlayerReq{Container: req.URL.Query().Get("container")})
		writeJSON(w, resp, err)
	})
	r.Post("/auth", func(w http.ResponseWriter, req *http.Request) {
		var body authReq
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		resp, err := eps[ServiceAuth](req.Context(), &body)
		writeJSON(w, resp, err)
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func writeJSON(w http.ResponseWriter, v any, err error) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, ErrNotSetUp):
			status = http.StatusServiceUnavailable
		case errors.Is(err, widget.ErrInFlight), errors.Is(err, widget.ErrNotReady):
			status = http.StatusConflict
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}
