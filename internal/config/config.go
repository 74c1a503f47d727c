// Package config manages application configuration from environment variables and flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/spf13/pflag"
)

const envPrefix = "NOTEMD_"

// PandocFlagsEnv is the unprefixed variable carrying extra converter arguments.
// It is read as a shell-style string so quoted flags survive splitting.
const PandocFlagsEnv = "PANDOC_FLAGS"

// Config holds runtime configuration for the note preview server.
type Config struct {
	NotesDir        string
	CSSFile         string
	Host            string
	EnvFile         string
	PandocFlags     []string
	Extensions      []string
	Port            int
	RefreshInterval int // milliseconds between client modification polls
	Watch           bool
	Verbose         bool

	rawPandocFlags string
}

// Default returns ready-to-use defaults prior to env/flag overrides.
func Default() Config {
	return Config{
		NotesDir:        "~/notes",
		Host:            "127.0.0.1",
		Port:            5000,
		RefreshInterval: 500,
		Extensions:      []string{".md", ".markdown", ".txt"},
		Watch:           true,
	}
}

// RegisterFlags attaches configuration flags to the provided FlagSet.
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVarP(&cfg.NotesDir, "notes-dir", "d", cfg.NotesDir, "root directory containing markdown notes")
	fs.StringVar(&cfg.CSSFile, "css", cfg.CSSFile, "custom CSS file served with rendered pages")
	fs.StringVar(&cfg.rawPandocFlags, "pandoc-flags", "", "extra pandoc arguments (overrides PANDOC_FLAGS)")
	fs.IntVar(&cfg.RefreshInterval, "refresh-interval", cfg.RefreshInterval, "client modification poll interval in milliseconds")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to bind the HTTP server")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "host to bind the HTTP server")
	fs.Bool("no-watch", false, "disable the notes directory file watcher")
	fs.StringVar(&cfg.EnvFile, "env-file", cfg.EnvFile, "explicit .env file to load")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "enable verbose logging (HTTP requests)")
}

// ApplyFlagResults folds flag-only values back into cfg after parsing.
func ApplyFlagResults(fs *pflag.FlagSet, cfg *Config) error {
	if fs.Changed("no-watch") {
		noWatch, err := fs.GetBool("no-watch")
		if err != nil {
			return err
		}
		cfg.Watch = !noWatch
	}
	if fs.Changed("pandoc-flags") {
		flags, err := shlex.Split(cfg.rawPandocFlags)
		if err != nil {
			return fmt.Errorf("parse --pandoc-flags: %w", err)
		}
		cfg.PandocFlags = flags
	}
	return nil
}

// ApplyEnvOverrides reads supported environment variables and overrides cfg in place.
func ApplyEnvOverrides(cfg *Config) error {
	applyStringEnv("NOTES_DIR", func(v string) { cfg.NotesDir = v })
	applyStringEnv("CSS", func(v string) { cfg.CSSFile = v })
	applyStringEnv("HOST", func(v string) { cfg.Host = v })
	applyIntEnv("PORT", func(v int) { cfg.Port = v })
	applyIntEnv("REFRESH_INTERVAL", func(v int) { cfg.RefreshInterval = v })
	applyBoolEnv("WATCH", func(v bool) { cfg.Watch = v })
	applyBoolEnv("VERBOSE", func(v bool) { cfg.Verbose = v })

	raw := strings.TrimSpace(os.Getenv(PandocFlagsEnv))
	if raw == "" {
		return nil
	}
	flags, err := shlex.Split(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", PandocFlagsEnv, err)
	}
	cfg.PandocFlags = flags
	return nil
}

func applyStringEnv(key string, apply func(string)) {
	if raw, ok := lookupNonEmpty(key); ok {
		apply(raw)
	}
}

func applyIntEnv(key string, apply func(int)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := strconv.Atoi(raw); err == nil {
			apply(value)
		}
	}
}

func applyBoolEnv(key string, apply func(bool)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := strconv.ParseBool(raw); err == nil {
			apply(value)
		}
	}
}

func lookupNonEmpty(key string) (string, bool) {
	raw, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", false
	}
	return value, true
}

// Finalize validates and normalizes paths. The notes directory must exist;
// the CSS file, when configured, must exist as well.
func Finalize(cfg *Config) error {
	notes, err := expandPath(cfg.NotesDir)
	if err != nil {
		return fmt.Errorf("resolve notes directory: %w", err)
	}
	cfg.NotesDir = notes

	info, err := os.Stat(cfg.NotesDir)
	if err != nil {
		return fmt.Errorf("notes directory %s: %w", cfg.NotesDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("notes directory %s is not a directory", cfg.NotesDir)
	}

	if cfg.CSSFile != "" {
		css, err := expandPath(cfg.CSSFile)
		if err != nil {
			return fmt.Errorf("resolve css file: %w", err)
		}
		cfg.CSSFile = css
		info, err := os.Stat(cfg.CSSFile)
		if err != nil {
			return fmt.Errorf("css file %s: %w", cfg.CSSFile, err)
		}
		if info.IsDir() {
			return fmt.Errorf("css file %s is a directory", cfg.CSSFile)
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.RefreshInterval <= 0 {
		return fmt.Errorf("invalid refresh interval: %d", cfg.RefreshInterval)
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = Default().Extensions
	}
	return nil
}

func expandPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Abs(p)
}
