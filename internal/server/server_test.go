package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jgrn/notemd/internal/config"
	"github.com/jgrn/notemd/internal/converter"
	"github.com/jgrn/notemd/internal/notes"
)

// fakeConverter stands in for pandoc.
type fakeConverter struct {
	fail bool
}

func (f *fakeConverter) Convert(_ context.Context, path string) ([]byte, error) {
	if f.fail {
		return nil, fmt.Errorf("%w: %s: exit status 2", converter.ErrConvert, path)
	}
	doc := "<html><head><title>t</title></head><body><h1>Rendered " + filepath.Base(path) + "</h1></body></html>"
	return []byte(doc), nil
}

func newTestServer(t *testing.T, conv notes.Converter, mutate func(*config.Config)) *Server {
	t.Helper()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "index.md"), "# Welcome\n\nhello\n")
	writeFile(t, filepath.Join(root, "projects", "roadmap.md"), "---\ntitle: Roadmap 2026\n---\n\n# Plans\n")

	if conv == nil {
		conv = &fakeConverter{}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := notes.NewService(context.Background(), root, conv, logger, notes.Options{})
	if err != nil {
		t.Fatalf("notes service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })

	cfg := config.Default()
	cfg.NotesDir = root
	cfg.RefreshInterval = 500
	if mutate != nil {
		mutate(&cfg)
	}

	srv, err := New(cfg, logger, svc)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	return srv
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestNoteHandler(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil, nil)

	t.Run("renders a note with injected assets", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/index.md", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d with body %s", rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("expected text/html content type, got %q", ct)
		}
		if cc := rec.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
			t.Errorf("expected no-store cache control, got %q", cc)
		}
		body := rec.Body.String()
		if !strings.Contains(body, "Rendered index.md") {
			t.Errorf("expected converter output, got %q", body)
		}
		if !strings.Contains(body, `<link rel="stylesheet" href="/style.css">`) {
			t.Errorf("expected injected stylesheet link, got %q", body)
		}
		if !strings.Contains(body, "/api/modified/index.md") {
			t.Errorf("expected injected refresh script, got %q", body)
		}
	})

	t.Run("resolves extensionless note paths", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/projects/roadmap", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Rendered roadmap.md") {
			t.Errorf("expected roadmap render, got %q", rec.Body.String())
		}
	})

	t.Run("missing note returns 404", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/no-such-note.md", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("traversal never serves outside the root", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/%2e%2e/etc/passwd", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		if rec.Code == http.StatusOK {
			t.Fatalf("expected traversal to be rejected, got 200 with body %s", rec.Body.String())
		}
	})
}

func TestNoteHandlerConverterFailure(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, &fakeConverter{fail: true}, nil)

	req := httptest.NewRequest(http.MethodGet, "/index.md", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "exit status") {
		t.Errorf("converter stderr must not reach the response, got %q", rec.Body.String())
	}
}

func TestListingHandler(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil, nil)

	t.Run("root listing", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d with body %s", rec.Code, rec.Body.String())
		}
		body := rec.Body.String()
		if !strings.Contains(body, `href="/projects"`) {
			t.Errorf("expected link to projects directory, got %q", body)
		}
		if !strings.Contains(body, `href="/index.md"`) {
			t.Errorf("expected link to index.md, got %q", body)
		}
	})

	t.Run("subdirectory listing shows titles and parent", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/projects", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := rec.Body.String()
		if !strings.Contains(body, "Roadmap 2026") {
			t.Errorf("expected front matter title in listing, got %q", body)
		}
		if !strings.Contains(body, "Parent Directory") {
			t.Errorf("expected parent entry, got %q", body)
		}
	})

	t.Run("query filters entries", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/?q=zzzz", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if strings.Contains(rec.Body.String(), `href="/index.md"`) {
			t.Errorf("expected index.md to be filtered out, got %q", rec.Body.String())
		}
	})
}

func TestModifiedHandler(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/modified/index.md", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Modified bool `json:"modified"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Modified {
		t.Errorf("expected unmodified note")
	}
}

func TestSearchHandler(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil, nil)

	t.Run("requires a query", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/api/search", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns ranked results", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodGet, "/api/search?q=roadmap", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp struct {
			Query   string               `json:"query"`
			Count   int                  `json:"count"`
			Results []notes.SearchResult `json:"results"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Count != 1 || len(resp.Results) != 1 {
			t.Fatalf("expected one result, got %+v", resp)
		}
		if resp.Results[0].Path != "/projects/roadmap.md" {
			t.Errorf("expected /projects/roadmap.md, got %s", resp.Results[0].Path)
		}
	})
}

func TestStylesheetHandler(t *testing.T) {
	t.Parallel()

	t.Run("serves embedded default without --css", func(t *testing.T) {
		t.Parallel()
		srv := newTestServer(t, nil, nil)

		req := httptest.NewRequest(http.MethodGet, "/style.css", nil)
		rec := httptest.NewRecorder()

		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/css") {
			t.Errorf("expected text/css, got %q", ct)
		}
		if rec.Body.Len() == 0 {
			t.Errorf("expected default stylesheet content")
		}
	})

	t.Run("serves configured file with conditional requests", func(t *testing.T) {
		t.Parallel()
		cssPath := filepath.Join(t.TempDir(), "style.css")
		writeFile(t, cssPath, "body { color: rebeccapurple; }\n")

		srv := newTestServer(t, nil, func(cfg *config.Config) {
			cfg.CSSFile = cssPath
		})

		req := httptest.NewRequest(http.MethodGet, "/style.css", nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "rebeccapurple") {
			t.Errorf("expected configured CSS, got %q", rec.Body.String())
		}
		lastModified := rec.Header().Get("Last-Modified")
		if lastModified == "" {
			t.Fatalf("expected Last-Modified header")
		}

		req = httptest.NewRequest(http.MethodGet, "/style.css", nil)
		req.Header.Set("If-Modified-Since", lastModified)
		rec = httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotModified {
			t.Fatalf("expected 304, got %d", rec.Code)
		}
	})

	t.Run("rejects oversized stylesheets", func(t *testing.T) {
		t.Parallel()
		cssPath := filepath.Join(t.TempDir(), "style.css")
		writeFile(t, cssPath, strings.Repeat("a", maxStylesheetSize+1))

		srv := newTestServer(t, nil, func(cfg *config.Config) {
			cfg.CSSFile = cssPath
		})

		req := httptest.NewRequest(http.MethodGet, "/style.css", nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("expected 413, got %d", rec.Code)
		}
	})
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGracefulShutdown(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, nil, func(cfg *config.Config) {
		cfg.Host = "127.0.0.1"
		cfg.Port = freePort(t)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not shut down")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	// Config validation requires a concrete port, so reserve one briefly.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
