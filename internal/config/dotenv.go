package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// dotenv discovery walks at most this many parent directories.
const dotenvSearchDepth = 3

// LoadDotenv loads environment variables from a .env file. An explicit path
// overrides values already present in the process environment; a discovered
// file does not.
func LoadDotenv(explicit string) (string, error) {
	if explicit != "" {
		if err := godotenv.Overload(explicit); err != nil {
			return "", fmt.Errorf("load env file %s: %w", explicit, err)
		}
		return explicit, nil
	}

	path, ok := findDotenv()
	if !ok {
		return "", nil
	}
	if err := godotenv.Load(path); err != nil {
		return "", fmt.Errorf("load env file %s: %w", path, err)
	}
	return path, nil
}

// findDotenv looks for a .env file in the working directory and up to
// dotenvSearchDepth parents.
func findDotenv() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for i := 0; i <= dotenvSearchDepth; i++ {
		candidate := filepath.Join(dir, ".env")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}
