// Package server provides the HTTP server for the note preview application.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/jgrn/notemd/internal/config"
	"github.com/jgrn/notemd/internal/converter"
	"github.com/jgrn/notemd/internal/notes"
	"github.com/jgrn/notemd/static"
)

// maxStylesheetSize caps the custom CSS file served at /style.css.
const maxStylesheetSize = 1 << 20

// Server wraps the HTTP server serving rendered notes, directory listings,
// the stylesheet, and the modification polling API.
type Server struct {
	mux        *http.ServeMux
	httpServer *http.Server
	logger     *slog.Logger
	notes      *notes.Service
	templates  *templateRenderer
	cfg        config.Config
}

// New constructs a Server with the provided configuration and notes service.
func New(cfg config.Config, logger *slog.Logger, notesSvc *notes.Service) (*Server, error) {
	if notesSvc == nil {
		return nil, errors.New("notes service must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}

	tmpl, err := newTemplateRenderer()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		logger:    logger.With("component", "http"),
		notes:     notesSvc,
		templates: tmpl,
	}

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /style.css", s.handleStylesheet)
	s.mux.HandleFunc("GET /api/modified/{path...}", s.handleModified)
	s.mux.HandleFunc("GET /api/search", s.handleSearch)
	s.mux.HandleFunc("GET /{path...}", s.handleBrowse)
}

// ServeHTTP dispatches to the underlying mux. It exists so tests can drive
// the full route table without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start runs the HTTP server until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	handler := chain(s.mux,
		recoveryMiddleware,
		gzipMiddleware,
		loggingMiddleware(s.logger, s.cfg.Verbose),
	)

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", slog.String("addr", "http://"+addr), slog.String("notes", s.notes.Root()))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.ErrorContext(ctx, "graceful shutdown failed", slog.Any("err", err))
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown gracefully stops the server with the provided context timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// handleBrowse serves either a directory listing or a rendered note.
func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := strings.TrimSpace(r.PathValue("path"))

	if _, relDir, ok := s.notes.ResolveDir(name); ok {
		s.renderListing(w, r, relDir)
		return
	}

	note, err := s.notes.Resolve(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "note not found", http.StatusNotFound)
			return
		}
		s.logger.WarnContext(ctx, "invalid note path", slog.String("path", name), slog.Any("err", err))
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}

	html, err := s.notes.Render(ctx, note)
	if err != nil {
		s.logger.ErrorContext(ctx, "render note failed", slog.String("path", note.RelPath), slog.Any("err", err))
		http.Error(w, "failed to render note", http.StatusInternalServerError)
		return
	}

	html = converter.InjectAssets(html, note.RelPath, s.cfg.RefreshInterval)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(html); err != nil {
		s.logger.WarnContext(ctx, "write note response", slog.String("path", note.RelPath), slog.Any("err", err))
	}
}

func (s *Server) renderListing(w http.ResponseWriter, r *http.Request, relDir string) {
	query := r.URL.Query()
	opts := notes.ListOptions{
		Query:      strings.TrimSpace(query.Get("q")),
		SortBy:     query.Get("sort"),
		Descending: query.Get("dir") == "desc",
	}
	switch opts.SortBy {
	case notes.SortByName, notes.SortByTitle, notes.SortByModified:
	default:
		opts.SortBy = notes.SortByName
	}

	entries, err := s.notes.List(relDir, opts)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "list directory failed", slog.String("dir", relDir), slog.Any("err", err))
		http.Error(w, "failed to list directory", http.StatusInternalServerError)
		return
	}

	data := listingViewData{
		Path:        relDir,
		Entries:     entries,
		Query:       opts.Query,
		SortBy:      opts.SortBy,
		Descending:  opts.Descending,
		Breadcrumbs: breadcrumbsFor(relDir),
		SortLinks:   sortLinksFor(relDir, opts),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := s.templates.render(w, "listing", data); err != nil {
		s.logger.ErrorContext(r.Context(), "render listing failed", slog.Any("err", err))
	}
}

func (s *Server) handleModified(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimSpace(r.PathValue("path"))
	if rel == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse("path is required"))
		return
	}
	resp := struct {
		Modified bool `json:"modified"`
	}{
		Modified: s.notes.IsModified(rel),
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse("query parameter 'q' is required"))
		return
	}

	results, err := s.notes.Search(query)
	if err != nil {
		s.logger.WarnContext(r.Context(), "search failed", slog.Any("err", err))
		respondJSON(w, http.StatusInternalServerError, errorResponse("search failed"))
		return
	}

	resp := struct {
		Query   string               `json:"query"`
		Count   int                  `json:"count"`
		Results []notes.SearchResult `json:"results"`
	}{
		Query:   query,
		Count:   len(results),
		Results: results,
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleStylesheet serves the configured CSS file, or the embedded default
// when none was supplied.
func (s *Server) handleStylesheet(w http.ResponseWriter, r *http.Request) {
	if s.cfg.CSSFile == "" {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=60, must-revalidate")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(static.DefaultStylesheet()); err != nil {
			s.logger.WarnContext(r.Context(), "write default stylesheet", slog.Any("err", err))
		}
		return
	}

	info, err := os.Stat(s.cfg.CSSFile)
	if err != nil {
		s.logger.WarnContext(r.Context(), "stat stylesheet failed", slog.String("path", s.cfg.CSSFile), slog.Any("err", err))
		http.Error(w, "stylesheet not found", http.StatusNotFound)
		return
	}
	if info.Size() > maxStylesheetSize {
		s.logger.WarnContext(r.Context(), "stylesheet too large", slog.String("path", s.cfg.CSSFile), slog.Int64("size", info.Size()))
		http.Error(w, "stylesheet too large", http.StatusRequestEntityTooLarge)
		return
	}

	// HTTP dates have second precision.
	modTime := info.ModTime().UTC().Truncate(time.Second)
	if t, err := http.ParseTime(r.Header.Get("If-Modified-Since")); err == nil && !modTime.After(t) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	content, err := os.ReadFile(s.cfg.CSSFile) //nolint:gosec // path comes from validated configuration
	if err != nil {
		s.logger.WarnContext(r.Context(), "read stylesheet failed", slog.String("path", s.cfg.CSSFile), slog.Any("err", err))
		http.Error(w, "failed to read stylesheet", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Last-Modified", modTime.Format(http.TimeFormat))
	w.Header().Set("Cache-Control", "public, max-age=60, must-revalidate")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(content); err != nil {
		s.logger.WarnContext(r.Context(), "write stylesheet response", slog.Any("err", err))
	}
}

func breadcrumbsFor(relDir string) []breadcrumb {
	if relDir == "" {
		return nil
	}
	parts := strings.Split(relDir, "/")
	crumbs := make([]breadcrumb, 0, len(parts))
	current := ""
	for _, part := range parts {
		if part == "" {
			continue
		}
		current = path.Join(current, part)
		crumbs = append(crumbs, breadcrumb{Name: part, Path: "/" + current})
	}
	return crumbs
}

func sortLinksFor(relDir string, opts notes.ListOptions) map[string]string {
	base := "/" + relDir
	if relDir == "" {
		base = "/"
	}
	links := make(map[string]string, 3)
	for _, key := range []string{notes.SortByName, notes.SortByTitle, notes.SortByModified} {
		dir := "asc"
		if opts.SortBy == key && !opts.Descending {
			dir = "desc"
		}
		link := fmt.Sprintf("%s?sort=%s&dir=%s", base, key, dir)
		if opts.Query != "" {
			link += "&q=" + url.QueryEscape(opts.Query)
		}
		links[key] = link
	}
	return links
}
