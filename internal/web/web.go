package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"eventmap/internal/civiltime"
	"eventmap/internal/config"
	"eventmap/internal/explorer"
	"eventmap/internal/filter"
	"eventmap/internal/ingest"
	appLog "eventmap/internal/log"
	"eventmap/internal/model"
)

// Server exposes the map page and the JSON API over one Explorer.
// Each request carries its full state in the query string; requests are
// applied to the Explorer one at a time.
type Server struct {
	cfg     *config.Config
	router  chi.Router
	limiter *rate.Limiter

	mu sync.Mutex
	ex *explorer.Explorer
}

// embeddedStatic contains the map page.
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a Server over ex.
func NewServer(cfg *config.Config, ex *explorer.Explorer) *Server {
	s := &Server{cfg: cfg, ex: ex}
	if cfg.RateLimit.RPS > 0 {
		burst := cfg.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), burst)
	}
	s.router = s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

// Swap replaces the dataset served by the Explorer.
func (s *Server) Swap(d *ingest.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ex.Swap(d)
}

// ListenAndServe serves on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "basic_auth", s.basicAuthEnabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		appLog.Info("HTTP server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.basicAuthEnabled() {
			r.Use(s.basicAuth)
		}

		r.Route("/api", func(r chi.Router) {
			if s.limiter != nil {
				r.Use(s.rateLimit)
			}
			r.Get("/meta", s.handleMeta)
			r.Get("/view", s.handleView)
			r.Get("/locations/{key}/popup", s.handlePopup)
			r.Get("/tags", s.handleTags)
			r.Get("/calendar.ics", s.handleCalendar)
			r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, http.StatusNotFound, "not found")
			})
		})

		r.Get("/preview.png", s.handlePreview)
		r.Handle("/*", s.staticFileServer())
	})
	return r
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="EventMap", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// metaResponse tells the map page how to initialize itself.
type metaResponse struct {
	Snapshot     string           `json:"snapshot"`
	LoadedAt     time.Time        `json:"loaded_at"`
	Window       filter.DateRange `json:"window"`
	DefaultRange filter.DateRange `json:"default_range"`
	Center       [2]float64       `json:"center"`
	Zoom         int              `json:"zoom"`
	TileURL      string           `json:"tile_url"`
	Report       ingest.Report    `json:"report"`
}

func (s *Server) handleMeta(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	data := s.ex.Dataset()
	from, to := s.ex.Window()
	resp := metaResponse{
		Snapshot:     data.SnapshotID,
		LoadedAt:     data.LoadedAt,
		Window:       filter.DateRange{From: from, To: to},
		DefaultRange: s.ex.DefaultRange(),
		Center:       s.cfg.Map.Center,
		Zoom:         s.cfg.Map.Zoom,
		TileURL:      s.cfg.Map.TileURL,
		Report:       data.Report,
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// viewResponse is the JSON shape of /api/view.
type viewResponse struct {
	Snapshot string         `json:"snapshot"`
	State    explorer.State `json:"state"`
	View     any            `json:"view"`
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.applyQuery(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, viewResponse{
		Snapshot: s.ex.Dataset().SnapshotID,
		State:    s.ex.State(),
		View:     s.ex.View(),
	})
}

func (s *Server) handlePopup(w http.ResponseWriter, r *http.Request) {
	key, err := model.ParseLocationKey(chi.URLParam(r, "key"))
	if err != nil || !key.Known() {
		writeError(w, http.StatusBadRequest, "invalid location key")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.applyQuery(w, r) {
		return
	}
	popup, ok := s.ex.Popup(key)
	if !ok {
		writeError(w, http.StatusNotFound, "no marker at this location")
		return
	}
	writeJSON(w, http.StatusOK, popup)
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.applyQuery(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, s.ex.Tags())
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.applyQuery(w, r) {
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="events.ics"`)
	if err := s.ex.Export(w); err != nil {
		appLog.Error("calendar export failed", err)
	}
}

// applyQuery loads the request's state into the Explorer. It writes a 400
// and returns false on malformed input. Callers hold s.mu.
func (s *Server) applyQuery(w http.ResponseWriter, r *http.Request) bool {
	state, err := parseState(r, s.ex.DefaultRange())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	s.ex.Apply(state)
	return true
}

// parseState reads from/to (YYYY-MM-DD), the comma-separated or repeated
// selected/required/forbidden tag lists and the q search text. Without from
// and to the default range applies. A tag listed under several states takes
// the last of selected, required, forbidden.
func parseState(r *http.Request, def filter.DateRange) (explorer.State, error) {
	q := r.URL.Query()
	state := explorer.State{Range: def, Tags: filter.TagStates{}, Search: q.Get("q")}

	from, to := q.Get("from"), q.Get("to")
	if from != "" || to != "" {
		state.Range = filter.DateRange{}
		if from != "" {
			d, err := civiltime.ParseDate(from)
			if err != nil {
				return state, fmt.Errorf("invalid from date: %w", err)
			}
			state.Range.From = d
		}
		if to != "" {
			d, err := civiltime.ParseDate(to)
			if err != nil {
				return state, fmt.Errorf("invalid to date: %w", err)
			}
			state.Range.To = d
		}
	}

	for _, st := range []filter.TagState{filter.Selected, filter.Required, filter.Forbidden} {
		for _, v := range q[st.String()] {
			for _, tag := range strings.Split(v, ",") {
				if tag = strings.TrimPrefix(strings.TrimSpace(tag), "#"); tag != "" {
					state.Tags.Set(tag, st)
				}
			}
		}
	}
	return state, nil
}

// staticFileServer serves the embedded map page.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}
	return http.FileServer(http.FS(sub))
}

// handlePreview serves the last captured PNG of the map page.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	path := s.cfg.Capture.Output
	if path == "" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, path)
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
