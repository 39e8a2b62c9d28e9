package source

import (
	"path/filepath"
	"strings"
)

// Defaults for RedirectRule.
const (
	DefaultMarker      = "report-render"
	DefaultMarkerDir   = "report-renderer"
	DefaultFallbackDir = "web4"
)

// RedirectRule maps identifiers pointing into a packaged build artifact onto
// a locally served mirror rooted at Base.
//
// If Marker occurs in an identifier, everything from the marker onward is
// placed under Base/MarkerDir. Otherwise StripPrefix is removed and the rest
// is placed under Base/FallbackDir.
type RedirectRule struct {
	Base        string `yaml:"base" toml:"base"`
	Marker      string `yaml:"marker" toml:"marker"`
	MarkerDir   string `yaml:"marker_dir" toml:"marker_dir"`
	StripPrefix string `yaml:"strip_prefix" toml:"strip_prefix"`
	FallbackDir string `yaml:"fallback_dir" toml:"fallback_dir"`
}

func (r RedirectRule) withDefaults() RedirectRule {
	if r.Marker == "" {
		r.Marker = DefaultMarker
	}
	if r.MarkerDir == "" {
		r.MarkerDir = DefaultMarkerDir
	}
	if r.FallbackDir == "" {
		r.FallbackDir = DefaultFallbackDir
	}
	return r
}

// Rewrite returns the local path to read for id and the path to display.
func (r RedirectRule) Rewrite(id string) (target, relative string) {
	r = r.withDefaults()

	if i := strings.Index(id, r.Marker); i >= 0 {
		relative = id[i:]
		return filepath.Join(r.Base, r.MarkerDir, relative), relative
	}

	relative = id
	if r.StripPrefix != "" {
		relative = strings.TrimPrefix(id, r.StripPrefix)
	}
	return filepath.Join(r.Base, r.FallbackDir, relative), relative
}
