// Package static embeds the fallback stylesheet served when no custom CSS is configured.
package static

import (
	_ "embed"
)

//go:embed default.css
var defaultStylesheet []byte

// DefaultStylesheet returns the embedded fallback stylesheet.
func DefaultStylesheet() []byte {
	return defaultStylesheet
}
