// Package converter bridges markdown files to HTML by invoking pandoc as a subprocess.
package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// ErrConvert indicates pandoc exited with a non-zero status.
var ErrConvert = errors.New("pandoc conversion failed")

// Runner abstracts subprocess execution so conversion can be tested without pandoc.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// execRunner implements Runner on os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Pandoc converts markdown files to standalone HTML5 documents.
// User-supplied flags are passed through ahead of the fixed argument template.
type Pandoc struct {
	// Runner executes the subprocess; replaceable in tests.
	Runner Runner
	logger *slog.Logger
	flags  []string
}

// NewPandoc constructs a converter with the given extra pandoc flags.
func NewPandoc(flags []string, logger *slog.Logger) *Pandoc {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pandoc{
		Runner: execRunner{},
		logger: logger.With("component", "converter"),
		flags:  flags,
	}
}

// Check verifies that pandoc is installed and runnable.
func (p *Pandoc) Check(ctx context.Context) error {
	if _, err := exec.LookPath("pandoc"); err != nil {
		return fmt.Errorf("pandoc executable not found in PATH: %w", err)
	}
	if _, stderr, err := p.Runner.Run(ctx, "pandoc", "--version"); err != nil {
		return fmt.Errorf("pandoc --version: %s: %w", firstLine(stderr), err)
	}
	return nil
}

// Convert renders the markdown file at path to a standalone HTML document.
// The converter's stderr is attached to the returned error, never to stdout.
func (p *Pandoc) Convert(ctx context.Context, path string) ([]byte, error) {
	args := make([]string, 0, len(p.flags)+4)
	args = append(args, p.flags...)
	args = append(args, "--standalone", "-t", "html5", path)

	p.logger.Debug("running pandoc", slog.String("path", path), slog.Any("args", args))

	stdout, stderr, err := p.Runner.Run(ctx, "pandoc", args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrConvert, path, firstLine(stderr))
	}
	return stdout, nil
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return "no stderr output"
	}
	return s
}
