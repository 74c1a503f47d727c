package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/pflag"
)

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("NOTEMD_PORT", "8080")
	t.Setenv("NOTEMD_HOST", "0.0.0.0")
	t.Setenv("NOTEMD_WATCH", "false")
	t.Setenv("NOTEMD_REFRESH_INTERVAL", "250")
	t.Setenv("PANDOC_FLAGS", `--toc --metadata title="My Notes"`)

	cfg := Default()
	if err := ApplyEnvOverrides(&cfg); err != nil {
		t.Fatalf("ApplyEnvOverrides: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Port)
	}
	if cfg.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Host)
	}
	if cfg.Watch {
		t.Errorf("expected watch disabled")
	}
	if cfg.RefreshInterval != 250 {
		t.Errorf("expected refresh interval 250, got %d", cfg.RefreshInterval)
	}
	want := []string{"--toc", "--metadata", "title=My Notes"}
	if !reflect.DeepEqual(cfg.PandocFlags, want) {
		t.Errorf("expected pandoc flags %v, got %v", want, cfg.PandocFlags)
	}
}

func TestApplyEnvOverridesRejectsBadFlagString(t *testing.T) {
	t.Setenv("PANDOC_FLAGS", `--metadata title="unterminated`)

	cfg := Default()
	if err := ApplyEnvOverrides(&cfg); err == nil {
		t.Fatalf("expected error for unterminated quote")
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("PANDOC_FLAGS", "--toc")

	cfg := Default()
	if err := ApplyEnvOverrides(&cfg); err != nil {
		t.Fatalf("ApplyEnvOverrides: %v", err)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, &cfg)
	if err := fs.Parse([]string{"--pandoc-flags", "--mathjax --number-sections", "--no-watch"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if err := ApplyFlagResults(fs, &cfg); err != nil {
		t.Fatalf("ApplyFlagResults: %v", err)
	}

	want := []string{"--mathjax", "--number-sections"}
	if !reflect.DeepEqual(cfg.PandocFlags, want) {
		t.Errorf("expected pandoc flags %v, got %v", want, cfg.PandocFlags)
	}
	if cfg.Watch {
		t.Errorf("expected --no-watch to disable the watcher")
	}
}

func TestFinalize(t *testing.T) {
	t.Parallel()

	notes := t.TempDir()
	css := filepath.Join(t.TempDir(), "style.css")
	if err := os.WriteFile(css, []byte("body{}"), 0o644); err != nil {
		t.Fatalf("write css: %v", err)
	}

	cfg := Default()
	cfg.NotesDir = notes
	cfg.CSSFile = css
	if err := Finalize(&cfg); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !filepath.IsAbs(cfg.NotesDir) {
		t.Errorf("expected absolute notes dir, got %s", cfg.NotesDir)
	}

	t.Run("missing notes directory", func(t *testing.T) {
		t.Parallel()
		cfg := Default()
		cfg.NotesDir = filepath.Join(notes, "does-not-exist")
		if err := Finalize(&cfg); err == nil {
			t.Fatalf("expected error for missing notes directory")
		}
	})

	t.Run("missing css file", func(t *testing.T) {
		t.Parallel()
		cfg := Default()
		cfg.NotesDir = notes
		cfg.CSSFile = filepath.Join(notes, "missing.css")
		if err := Finalize(&cfg); err == nil {
			t.Fatalf("expected error for missing css file")
		}
	})

	t.Run("invalid port", func(t *testing.T) {
		t.Parallel()
		cfg := Default()
		cfg.NotesDir = notes
		cfg.Port = -1
		if err := Finalize(&cfg); err == nil {
			t.Fatalf("expected error for invalid port")
		}
	})
}

func TestLoadDotenvDiscovers(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PANDOC_FLAGS=--toc\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Chdir(sub)
	t.Setenv("PANDOC_FLAGS", "") // register cleanup, then clear so godotenv can set it
	os.Unsetenv("PANDOC_FLAGS")

	path, err := LoadDotenv("")
	if err != nil {
		t.Fatalf("LoadDotenv: %v", err)
	}
	if path == "" {
		t.Fatalf("expected .env to be discovered in a parent directory")
	}
	if got := os.Getenv("PANDOC_FLAGS"); got != "--toc" {
		t.Errorf("expected PANDOC_FLAGS --toc, got %q", got)
	}
}
