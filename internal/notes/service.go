// Package notes resolves note paths, tracks file changes, and caches rendered HTML.
package notes

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Converter renders a markdown file to HTML.
type Converter interface {
	Convert(ctx context.Context, path string) ([]byte, error)
}

// Note identifies a resolved markdown file under the notes directory.
type Note struct {
	AbsPath string
	RelPath string // slash-separated, relative to the notes root
}

// Options configures the notes service.
type Options struct {
	Extensions []string
	Watch      bool
}

// Service coordinates note lookup, rendering, and change tracking for one
// notes directory.
type Service struct {
	logger     *slog.Logger
	converter  Converter
	cancel     context.CancelFunc
	ctx        context.Context
	watcher    *watcher
	modified   map[string]struct{}
	root       string
	extensions []string
	cache      sync.Map // map[string]cacheEntry, keyed by absolute path
	modMu      sync.Mutex
}

type cacheEntry struct {
	modTime time.Time
	html    []byte
}

// NewService initializes a notes service rooted at root. When opts.Watch is
// set, a recursive file watcher invalidates the render cache and records
// modified notes for the client polling endpoint.
func NewService(parentCtx context.Context, root string, conv Converter, logger *slog.Logger, opts Options) (*Service, error) {
	if root == "" {
		return nil, errors.New("notes directory must be provided")
	}
	if conv == nil {
		return nil, errors.New("converter must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve notes directory: %w", err)
	}

	exts := opts.Extensions
	if len(exts) == 0 {
		exts = []string{".md", ".markdown", ".txt"}
	}

	ctx, cancel := context.WithCancel(parentCtx)

	svc := &Service{
		root:       absRoot,
		extensions: exts,
		converter:  conv,
		logger:     logger.With("component", "notes"),
		ctx:        ctx,
		cancel:     cancel,
		modified:   make(map[string]struct{}),
	}

	if opts.Watch {
		w, err := newWatcher(svc)
		if err != nil {
			cancel()
			return nil, err
		}
		svc.watcher = w
	}

	return svc, nil
}

// Close releases the file watcher and any background goroutines.
func (s *Service) Close() error {
	s.cancel()
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// Root returns the absolute notes directory.
func (s *Service) Root() string {
	return s.root
}

// Resolve maps a URL path to a note file. It tries the exact relative path,
// then probes configured extensions for extensionless requests, and finally
// falls back to a recursive lookup by bare file name so notes can be addressed
// by ID from anywhere in the tree. Missing notes yield os.ErrNotExist.
func (s *Service) Resolve(name string) (Note, error) {
	rel, abs, err := s.resolvePath(name)
	if err != nil {
		return Note{}, err
	}

	if info, err := os.Stat(abs); err == nil && !info.IsDir() && s.hasNoteExtension(abs) {
		return Note{AbsPath: abs, RelPath: rel}, nil
	}

	if filepath.Ext(abs) == "" {
		for _, ext := range s.extensions {
			probe := abs + ext
			if info, err := os.Stat(probe); err == nil && !info.IsDir() {
				return Note{AbsPath: probe, RelPath: rel + ext}, nil
			}
		}
	}

	if note, ok := s.lookupByName(name); ok {
		return note, nil
	}

	return Note{}, fmt.Errorf("note %s: %w", name, os.ErrNotExist)
}

// ResolveDir reports whether the URL path names a directory under the root and
// returns its absolute and relative paths.
func (s *Service) ResolveDir(name string) (absDir, relDir string, ok bool) {
	if strings.TrimSpace(name) == "" || name == "/" {
		return s.root, "", true
	}
	rel, abs, err := s.resolvePath(name)
	if err != nil {
		return "", "", false
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", "", false
	}
	return abs, rel, true
}

// resolvePath cleans a URL path and anchors it below the notes root,
// rejecting traversal and absolute paths.
func (s *Service) resolvePath(name string) (string, string, error) {
	trimmed := strings.Trim(strings.TrimSpace(name), "/")
	if trimmed == "" {
		return "", "", fmt.Errorf("invalid path: %q", name)
	}
	clean := filepath.Clean(filepath.FromSlash(trimmed))
	if clean == "." || clean == "" || filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" {
		return "", "", fmt.Errorf("invalid path: %q", name)
	}
	slashed := filepath.ToSlash(clean)
	if slashed == ".." || strings.HasPrefix(slashed, "../") || strings.Contains(slashed, "/../") {
		return "", "", fmt.Errorf("invalid path: %q", name)
	}

	abs, err := filepath.Abs(filepath.Join(s.root, clean))
	if err != nil {
		return "", "", fmt.Errorf("resolve path: %w", err)
	}
	relToRoot, err := filepath.Rel(s.root, abs)
	if err != nil {
		return "", "", fmt.Errorf("resolve path: %w", err)
	}
	if relToRoot == ".." || strings.HasPrefix(relToRoot, ".."+string(os.PathSeparator)) {
		return "", "", fmt.Errorf("path escapes notes directory: %q", name)
	}
	return filepath.ToSlash(relToRoot), abs, nil
}

// lookupByName searches the whole tree for a note whose file stem matches.
func (s *Service) lookupByName(name string) (Note, bool) {
	stem := strings.Trim(strings.TrimSpace(name), "/")
	if stem == "" || strings.ContainsAny(stem, "/\\") {
		return Note{}, false
	}

	var found Note
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable entries are skipped, not fatal
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != s.root {
				return filepath.SkipDir
			}
			return nil
		}
		base := d.Name()
		ext := filepath.Ext(base)
		if !s.hasNoteExtension(base) || strings.TrimSuffix(base, ext) != stem {
			return nil
		}
		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return nil //nolint:nilerr
		}
		found = Note{AbsPath: path, RelPath: filepath.ToSlash(rel)}
		return fs.SkipAll
	})
	if err != nil || found.AbsPath == "" {
		return Note{}, false
	}
	return found, true
}

func (s *Service) hasNoteExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range s.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Render converts a note to HTML, serving from the cache when the file has
// not changed since the cached conversion. A fresh render clears the note's
// modified flag so the client poll loop settles after reloading.
func (s *Service) Render(ctx context.Context, note Note) ([]byte, error) {
	info, err := os.Stat(note.AbsPath)
	if err != nil {
		return nil, fmt.Errorf("stat note: %w", err)
	}

	if entry, ok := s.cache.Load(note.AbsPath); ok {
		if cached, ok := entry.(cacheEntry); ok && cached.modTime.Equal(info.ModTime()) {
			s.logger.Debug("render cache hit", slog.String("path", note.RelPath))
			s.clearModified(note.RelPath)
			return cached.html, nil
		}
	}

	html, err := s.converter.Convert(ctx, note.AbsPath)
	if err != nil {
		return nil, err
	}

	s.cache.Store(note.AbsPath, cacheEntry{modTime: info.ModTime(), html: html})
	s.clearModified(note.RelPath)
	return html, nil
}

// Invalidate drops the cached render for an absolute path.
func (s *Service) Invalidate(absPath string) {
	s.cache.Delete(absPath)
}

// IsModified reports whether the note changed since it was last rendered.
func (s *Service) IsModified(relPath string) bool {
	s.modMu.Lock()
	defer s.modMu.Unlock()
	_, ok := s.modified[relPath]
	return ok
}

func (s *Service) markModified(relPath string) {
	s.modMu.Lock()
	s.modified[relPath] = struct{}{}
	s.modMu.Unlock()
}

func (s *Service) clearModified(relPath string) {
	s.modMu.Lock()
	delete(s.modified, relPath)
	s.modMu.Unlock()
}
