// Package web serves the map and trends pages and the JSON query API.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/naka-gawa/geoeditors/internal/config"
	"github.com/naka-gawa/geoeditors/internal/geo"
	"github.com/naka-gawa/geoeditors/internal/usecase"
)

const (
	shutdownTimeout = 10 * time.Second
	mapLabels       = 10
)

//go:embed templates/*.html
var templateFS embed.FS

// Querier answers dataset queries.
type Querier interface {
	Query(ctx context.Context, f usecase.Filter) (*usecase.Result, error)
	Snapshot(ctx context.Context, f usecase.Filter, month string) (*usecase.Result, error)
}

// Server renders the HTML views and the JSON API.
type Server struct {
	queries    Querier
	boundaries *boundariesCache
	cfg        config.WebConfig
	tmpl       *template.Template
	logger     *logrus.Logger
}

// NewServer creates a Server. boundariesPath may point to a file that does not
// exist yet; it is loaded on first use after an update downloads it.
func NewServer(queries Querier, boundariesPath string, cfg config.WebConfig, logger *logrus.Logger) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	if cfg.TrendTopN < 1 {
		cfg.TrendTopN = 10
	}
	return &Server{
		queries:    queries,
		boundaries: &boundariesCache{path: boundariesPath},
		cfg:        cfg,
		tmpl:       tmpl,
		logger:     logger,
	}, nil
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /map", s.handleMap)
	mux.HandleFunc("GET /trends", s.handleTrends)
	mux.HandleFunc("GET /api/query", s.handleQuery)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return s.withRequestLog(mux)
}

// Run listens on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("Listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	result, err := s.queries.Query(r.Context(), s.filterFromRequest(r, true))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.render(w, r, "index.html", NewIndexView(result))
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	result, err := s.queries.Snapshot(r.Context(), s.filterFromRequest(r, true), r.URL.Query().Get("month"))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	b, err := s.boundaries.get()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		loggerFrom(r, s.logger).WithError(err).Warn("Failed to load country boundaries")
	}
	s.render(w, r, "map.html", NewMapView(result, b, mapLabels))
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	result, err := s.queries.Query(r.Context(), s.filterFromRequest(r, true))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.render(w, r, "trends.html", NewTrendsView(result, s.cfg.TrendTopN))
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	result, err := s.queries.Query(r.Context(), s.filterFromRequest(r, false))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	q := r.URL.Query()
	resp := result.Report(q.Get("group_by"), q.Get("records") == "true")
	writeJSON(w, r, s.logger, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

// filterFromRequest reads the filter parameters. With defaults, an absent
// activity_level or project falls back to the configured view defaults; a
// present but empty one disables that filter.
func (s *Server) filterFromRequest(r *http.Request, defaults bool) usecase.Filter {
	q := r.URL.Query()
	f := usecase.Filter{
		ActivityLevel: q.Get("activity_level"),
		Project:       q.Get("project"),
		Countries:     q["countries"],
		From:          q.Get("from"),
		To:            q.Get("to"),
	}
	if defaults {
		if !q.Has("activity_level") {
			f.ActivityLevel = s.cfg.DefaultActivityLevel
		}
		if !q.Has("project") {
			f.Project = s.cfg.DefaultProject
		}
	}
	return f.Normalize()
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		loggerFrom(r, s.logger).WithError(err).WithField("template", name).Error("Failed to render template")
	}
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	loggerFrom(r, s.logger).WithError(err).Error("Failed to load dataset")
	http.Error(w, "failed to load data", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, r *http.Request, logger *logrus.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		loggerFrom(r, logger).WithError(err).Error("Failed to encode response")
	}
}

// boundariesCache loads the boundaries file once it exists.
type boundariesCache struct {
	path string
	mu   sync.Mutex
	b    *geo.Boundaries
}

func (c *boundariesCache) get() (*geo.Boundaries, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.b != nil || c.path == "" {
		return c.b, nil
	}
	b, err := geo.Load(c.path)
	if err != nil {
		return nil, err
	}
	c.b = b
	return b, nil
}
