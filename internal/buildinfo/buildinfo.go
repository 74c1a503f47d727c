// Package buildinfo exposes version metadata stamped at build time.
package buildinfo

// Injected via -ldflags at release time.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Summary returns a single-line version string for --version output.
func Summary() string {
	version := Version
	if version == "" {
		version = "dev"
	}
	out := version
	if Commit != "" {
		out += " (" + Commit
		if Date != "" {
			out += " " + Date
		}
		out += ")"
	} else if Date != "" {
		out += " (" + Date + ")"
	}
	return out
}
