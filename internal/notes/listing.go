package notes

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
)

// Entry is one row of a directory listing.
type Entry struct {
	Modified time.Time `json:"modified"`
	Name     string    `json:"name"`
	Title    string    `json:"title"`
	Path     string    `json:"path"` // URL path with leading slash
	IsDir    bool      `json:"isDir"`
}

// Sort keys accepted by List.
const (
	SortByName     = "name"
	SortByTitle    = "title"
	SortByModified = "modified"
)

// ListOptions controls listing filtering and ordering.
type ListOptions struct {
	Query      string
	SortBy     string
	Descending bool
}

// List returns the browsable entries of a directory: subdirectories plus note
// files, hidden names skipped. A non-empty query keeps only fuzzy matches on
// name or title. A parent entry is prepended when relDir is not the root.
func (s *Service) List(relDir string, opts ListOptions) ([]Entry, error) {
	absDir := s.root
	if relDir != "" {
		absDir = filepath.Join(s.root, filepath.FromSlash(relDir))
	}

	dirEntries, err := os.ReadDir(absDir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		absPath := filepath.Join(absDir, name)
		relPath := path.Join(relDir, name)

		var entry Entry
		switch {
		case de.IsDir():
			entry = Entry{Name: name, Title: name, Path: "/" + relPath, IsDir: true}
		case s.hasNoteExtension(name):
			entry = Entry{Name: name, Title: s.Title(absPath), Path: "/" + relPath}
		default:
			continue
		}
		if info, err := de.Info(); err == nil {
			entry.Modified = info.ModTime()
		}

		if opts.Query != "" && !matches(opts.Query, entry.Name) && !matches(opts.Query, entry.Title) {
			continue
		}
		entries = append(entries, entry)
	}

	sortEntries(entries, opts.SortBy, opts.Descending)

	if relDir != "" {
		parent := path.Dir(relDir)
		parentPath := "/"
		if parent != "." && parent != "/" {
			parentPath = "/" + parent
		}
		entries = append([]Entry{{Name: "..", Title: "Parent Directory", Path: parentPath, IsDir: true}}, entries...)
	}
	return entries, nil
}

func sortEntries(entries []Entry, sortBy string, desc bool) {
	key := func(e Entry) string {
		switch sortBy {
		case SortByTitle:
			return strings.ToLower(e.Title)
		default:
			return strings.ToLower(e.Name)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		var less bool
		if sortBy == SortByModified {
			less = a.Modified.Before(b.Modified)
		} else {
			less = key(a) < key(b)
		}
		if desc {
			return !less
		}
		return less
	})
}

// SearchResult is a ranked note match for the search API.
type SearchResult struct {
	Modified time.Time `json:"modified"`
	Path     string    `json:"path"`
	Name     string    `json:"name"`
	Title    string    `json:"title"`
}

// Search walks the notes tree and returns notes whose file name or title
// matches the query, substring matches ranked ahead of fuzzy ones.
func (s *Service) Search(query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	type scored struct {
		result SearchResult
		score  int
		exact  bool
	}
	var results []scored

	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable entries are skipped
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && p != s.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !s.hasNoteExtension(d.Name()) {
			return nil
		}

		title := s.Title(p)
		score, ok := matchScore(query, d.Name(), title)
		if !ok {
			return nil
		}

		rel, relErr := filepath.Rel(s.root, p)
		if relErr != nil {
			return nil //nolint:nilerr
		}
		res := SearchResult{
			Path:  "/" + filepath.ToSlash(rel),
			Name:  d.Name(),
			Title: title,
		}
		if info, infoErr := d.Info(); infoErr == nil {
			res.Modified = info.ModTime()
		}
		results = append(results, scored{
			result: res,
			score:  score,
			exact:  containsFold(d.Name(), query) || containsFold(title, query),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk notes directory: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].exact != results[j].exact {
			return results[i].exact
		}
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return strings.ToLower(results[i].result.Name) < strings.ToLower(results[j].result.Name)
	})

	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = r.result
	}
	return out, nil
}

// matches reports whether text matches the query as a substring or fuzzily.
func matches(query, text string) bool {
	_, ok := matchScore(query, text)
	return ok
}

// matchScore returns the best fuzzy score across the candidate strings.
// Substring hits count as matches regardless of fuzzy score.
func matchScore(query string, candidates ...string) (int, bool) {
	best := 0
	found := false
	for _, c := range candidates {
		if containsFold(c, query) {
			found = true
		}
		for _, m := range fuzzy.Find(query, []string{c}) {
			found = true
			if m.Score > best {
				best = m.Score
			}
		}
	}
	return best, found
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
