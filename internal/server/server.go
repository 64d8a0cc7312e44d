// Package server serves past runs and their deviation reports over HTTP.
package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/TobiSchelling/codedd/internal/database"
	"github.com/TobiSchelling/codedd/internal/output"
	"github.com/TobiSchelling/codedd/internal/pipeline"
	"github.com/TobiSchelling/codedd/internal/rubric"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Reports render as GFM tables.
var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Server is the HTTP server for browsing runs.
type Server struct {
	db      *database.DB
	metrics []string
	pages   map[string]*template.Template
	mux     *http.ServeMux
}

// New creates a new Server. Reports are computed over the metrics of r.
func New(db *database.DB, r *rubric.Rubric) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"runDir": output.RunDirName,
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"index.html", "run.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, metrics: r.MetricKeys(), pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	// Routes
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /run/{number}", s.handleRun)
	s.mux.HandleFunc("GET /run/{number}/csv", s.handleCSV)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	runs, err := s.db.GetRuns()
	if err != nil {
		clog.FromContext(r.Context()).Errorf("Listing runs: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	stats, err := s.db.GetStats()
	if err != nil {
		clog.FromContext(r.Context()).Errorf("Reading stats: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, r, "index.html", map[string]any{
		"Runs":  runs,
		"Stats": stats,
	})
}

// loadRun resolves {number} and writes the error response when it cannot.
func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*pipeline.RunReport, bool) {
	number, err := strconv.Atoi(r.PathValue("number"))
	if err != nil || number < 1 {
		http.NotFound(w, r)
		return nil, false
	}
	rr, err := pipeline.LoadReport(s.db, s.metrics, number)
	if err != nil {
		clog.FromContext(r.Context()).With("run", number).Errorf("Loading report: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}
	if rr == nil {
		http.NotFound(w, r)
		return nil, false
	}
	return rr, true
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	rr, ok := s.loadRun(w, r)
	if !ok {
		return
	}

	s.render(w, r, "run.html", map[string]any{
		"Run":        rr.Run,
		"Rows":       len(rr.Rows),
		"Exclusions": rr.Exclusions,
		"Report":     rr.Report.Markdown(),
		"Summary":    rr.Report.Concise(),
	})
}

func (s *Server) handleCSV(w http.ResponseWriter, r *http.Request) {
	rr, ok := s.loadRun(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := output.WriteCSV(&buf, s.metrics, rr.Rows); err != nil {
		clog.FromContext(r.Context()).Errorf("Writing csv: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%04d.csv", rr.Run.Number))
	w.Write(buf.Bytes())
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	log := clog.FromContext(r.Context())
	tmpl, ok := s.pages[name]
	if !ok {
		log.Errorf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Errorf("Error rendering template %s: %v", name, err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port and stops it when ctx is
// done.
func Serve(ctx context.Context, db *database.DB, r *rubric.Rubric, port int) error {
	srv, err := New(db, r)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	clog.FromContext(ctx).Infof("Server listening on http://%s", addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
