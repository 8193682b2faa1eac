package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"

	"timeaxis/internal/config"
	"timeaxis/internal/errs"
	"timeaxis/internal/ics"
	appLog "timeaxis/internal/log"
	"timeaxis/internal/model"
	"timeaxis/internal/timeline"
	"timeaxis/internal/timerange"
)

// Runner serializes engine access. clock.Loop implements it.
type Runner interface {
	Do(ctx context.Context, f func()) error
}

// refreshHorizon is how far around the visible range ICS events are
// expanded.
const refreshHorizon = 366 * 24 * time.Hour

// Server exposes one timeline over HTTP. Every engine call runs on the
// Runner.
type Server struct {
	mu      sync.RWMutex
	cfg     *config.Config
	tl      *timeline.Timeline
	run     Runner
	fetcher *ics.Fetcher
	router  chi.Router
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, tl *timeline.Timeline, run Runner, fetcher *ics.Fetcher) *Server {
	if fetcher == nil {
		fetcher = ics.NewFetcher(nil)
	}
	s := &Server{cfg: cfg, tl: tl, run: run, fetcher: fetcher}
	s.routes()
	return s
}

// SetConfig swaps the config used by later refreshes. The listen address
// and credentials keep their startup values.
func (s *Server) SetConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	listen, auth := s.cfg.Listen, s.cfg.BasicAuth
	next := *cfg
	next.Listen, next.BasicAuth = listen, auth
	s.cfg = &next
}

func (s *Server) config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Handler returns the router, behind basic auth when configured.
func (s *Server) Handler() http.Handler {
	if s.basicAuthEnabled() {
		return s.basicAuthMiddleware(s.router)
	}
	return s.router
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(accessLog)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", s.handleSnapshot)
		r.Post("/range", s.handleRange)
		r.Post("/zoom", s.handleZoom)
		r.Post("/move", s.handleMove)
		r.Post("/rolling", s.handleRolling)
		r.Post("/refresh", s.handleRefresh)
	})
	s.router = r
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware guards every endpoint except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="timeaxis", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("request done",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", chimw.GetReqID(r.Context()),
		)
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listen := s.config().Listen
	srv := &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+listen, "basic_auth", s.basicAuthEnabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// StartRefresh refreshes ICS sources now and on the cron schedule until
// ctx is cancelled.
func (s *Server) StartRefresh(ctx context.Context, spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if err := s.Refresh(ctx); err != nil {
			appLog.Error("scheduled ICS refresh failed", err)
		}
	}); err != nil {
		return err
	}
	if err := s.Refresh(ctx); err != nil {
		appLog.Error("initial ICS refresh failed", err)
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

// Refresh fetches, parses and expands the configured ICS sources around
// the visible range and replaces the timeline items. Sources that fail are
// logged and left out.
func (s *Server) Refresh(ctx context.Context) error {
	cfg := s.config()
	if len(cfg.ICS) == 0 {
		return nil
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	var start, end float64
	if err := s.run.Do(ctx, func() {
		start, end = s.tl.Range().Start(), s.tl.Range().End()
	}); err != nil {
		return err
	}
	window := ics.Window{
		Start: time.UnixMilli(int64(start)).Add(-refreshHorizon),
		End:   time.UnixMilli(int64(end)).Add(refreshHorizon),
	}

	results, fetchErr := s.fetcher.FetchAll(ctx, cfg.ICS)
	var events []ics.Event
	for _, res := range results {
		evs, err := ics.Parse(res.Source, res.Body, loc)
		if err != nil {
			appLog.Error("ics parse failed", err, "id", res.Source.ID)
			continue
		}
		events = append(events, evs...)
	}
	items, err := ics.Expand(events, window)
	if err != nil {
		return err
	}
	if err := s.run.Do(ctx, func() { s.tl.SetItems(items) }); err != nil {
		return err
	}
	appLog.Info("ics refresh completed", "sources", len(results), "items", len(items))
	return fetchErr
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	var (
		snap timeline.Snapshot
		err  error
	)
	if runErr := s.run.Do(r.Context(), func() { snap, err = s.tl.Snapshot() }); runErr != nil {
		writeError(w, http.StatusServiceUnavailable, runErr.Error())
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type rangeRequest struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Animate bool    `json:"animate"`
	// Duration is the animation length in ms.
	Duration float64 `json:"duration"`
	Easing   string  `json:"easing"`
}

type rangeResponse struct {
	Changed bool    `json:"changed"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Rolling bool    `json:"rolling"`
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	var req rangeRequest
	if !decode(w, r, &req) {
		return
	}
	o := timerange.SetOptions{ByUser: true}
	if req.Animate {
		o.Animation = &timerange.Animation{
			Duration: time.Duration(req.Duration * float64(time.Millisecond)),
			Easing:   req.Easing,
		}
	}
	s.mutate(w, r, func(rng *timerange.Range) (bool, error) {
		return rng.SetRange(req.Start, req.End, o)
	})
}

type zoomRequest struct {
	Scale  float64  `json:"scale"`
	Center *float64 `json:"center"`
	Delta  int      `json:"delta"`
}

func (s *Server) handleZoom(w http.ResponseWriter, r *http.Request) {
	var req zoomRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Scale <= 0 {
		writeError(w, http.StatusBadRequest, "scale must be positive")
		return
	}
	s.mutate(w, r, func(rng *timerange.Range) (bool, error) {
		return rng.Zoom(req.Scale, req.Center, req.Delta)
	})
}

type moveRequest struct {
	// Delta pans by a fraction of the window.
	Delta *float64 `json:"delta"`
	// To centers the window on a time.
	To *float64 `json:"to"`
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !decode(w, r, &req) {
		return
	}
	if (req.Delta == nil) == (req.To == nil) {
		writeError(w, http.StatusBadRequest, "exactly one of delta and to is required")
		return
	}
	s.mutate(w, r, func(rng *timerange.Range) (bool, error) {
		if req.To != nil {
			return rng.MoveTo(*req.To, timerange.SetOptions{ByUser: true})
		}
		return rng.Move(*req.Delta)
	})
}

type rollingRequest struct {
	Follow bool `json:"follow"`
}

func (s *Server) handleRolling(w http.ResponseWriter, r *http.Request) {
	var req rollingRequest
	if !decode(w, r, &req) {
		return
	}
	s.mutate(w, r, func(rng *timerange.Range) (bool, error) {
		was := rng.Rolling()
		if req.Follow {
			rng.StartRolling()
		} else {
			rng.StopRolling()
		}
		return was != rng.Rolling(), nil
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.Refresh(r.Context()); err != nil {
		appLog.Error("manual ICS refresh failed", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// mutate runs f against the range on the Runner and answers with the
// resulting window.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, f func(*timerange.Range) (bool, error)) {
	var (
		resp rangeResponse
		err  error
	)
	runErr := s.run.Do(r.Context(), func() {
		rng := s.tl.Range()
		resp.Changed, err = f(rng)
		resp.Start, resp.End, resp.Rolling = rng.Start(), rng.End(), rng.Rolling()
	})
	if runErr != nil {
		writeError(w, http.StatusServiceUnavailable, runErr.Error())
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeEngineError maps engine errors caused by the request to 400.
func writeEngineError(w http.ResponseWriter, err error) {
	var (
		invalid *errs.InvalidRangeError
		easing  *errs.UnknownEasingError
		scale   *errs.UnknownScaleError
	)
	if errors.As(err, &invalid) || errors.As(err, &easing) || errors.As(err, &scale) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	appLog.Error("engine call failed", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// Items returns the current timeline items.
func (s *Server) Items(ctx context.Context) ([]model.Item, error) {
	var items []model.Item
	err := s.run.Do(ctx, func() { items = s.tl.Items() })
	return items, err
}
