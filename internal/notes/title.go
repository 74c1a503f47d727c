package notes

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// Title extracts a display title for a note: YAML front matter `title` first,
// then the first level-one heading, falling back to the file stem.
func (s *Service) Title(absPath string) string {
	stem := strings.TrimSuffix(filepath.Base(absPath), filepath.Ext(absPath))

	content, err := os.ReadFile(absPath) //nolint:gosec // paths are resolved against the notes root
	if err != nil {
		return stem
	}

	if title := frontMatterTitle(content); title != "" {
		return title
	}
	if title := firstHeading(content); title != "" {
		return title
	}
	return stem
}

func frontMatterTitle(content []byte) string {
	block, ok := frontMatterBlock(content)
	if !ok {
		return ""
	}
	var meta struct {
		Title string `yaml:"title"`
	}
	if err := yaml.Unmarshal(block, &meta); err != nil {
		return ""
	}
	return strings.TrimSpace(meta.Title)
}

// frontMatterBlock returns the YAML between a leading pair of --- fences.
func frontMatterBlock(content []byte) ([]byte, bool) {
	rest, ok := bytes.CutPrefix(content, []byte("---"))
	if !ok {
		return nil, false
	}
	rest, ok = bytes.CutPrefix(bytes.TrimPrefix(rest, []byte("\r")), []byte("\n"))
	if !ok {
		return nil, false
	}
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, false
	}
	return rest[:end], true
}

func firstHeading(content []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if after, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(after)
		}
	}
	return ""
}
