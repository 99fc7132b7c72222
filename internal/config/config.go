// Package config loads the assetpack build configuration.
//
// Configuration comes from an optional assetpack.cue or assetpack.yaml file in
// the project root, unified with an embedded CUE schema that supplies every
// default, then adjusted by .env / environment overrides. Callers apply CLI
// flag overrides last and call Validate.
package config

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/assetpack/internal/ir"
)

// Config is the full set of build options.
type Config struct {
	// Root is the absolute project root. Relative directories below are
	// resolved against it.
	Root string `json:"root,omitempty" yaml:"root,omitempty"`

	// Base is the base source directory.
	Base string `json:"base" yaml:"base"`

	// Output is the output root.
	Output string `json:"output" yaml:"output"`

	JS  JSConfig  `json:"js" yaml:"js"`
	CSS CSSConfig `json:"css" yaml:"css"`

	// Templates are globs (relative to Root) of reference-bearing template
	// files rewritten by the manifest step.
	Templates []string `json:"templates" yaml:"templates"`

	// Assets are extra globs (relative to Output) recorded in the manifest
	// but never rewritten.
	Assets []string `json:"assets" yaml:"assets"`

	Manifest string `json:"manifest" yaml:"manifest"`

	Debug bool `json:"debug" yaml:"debug"`
	Watch bool `json:"watch" yaml:"watch"`

	Debounce    string `json:"debounce" yaml:"debounce"`
	Concurrency int    `json:"concurrency" yaml:"concurrency"`

	// Journal is the SQLite journal path relative to Root. Empty disables it.
	Journal string `json:"journal" yaml:"journal"`

	// Define maps extra process.env names to their substituted values.
	Define map[string]string `json:"define" yaml:"define"`
}

// JSConfig holds script bundling options.
type JSConfig struct {
	// Src are entry globs relative to Base.
	Src []string `json:"src" yaml:"src"`

	// Dest is the script directory under Output.
	Dest string `json:"dest" yaml:"dest"`

	// Entry is the entry filename searched below each glob base.
	Entry string `json:"entry" yaml:"entry"`

	Shared  string `json:"shared" yaml:"shared"`
	Helpers string `json:"helpers" yaml:"helpers"`
	Style   string `json:"style" yaml:"style"`

	Vendor VendorConfig `json:"vendor" yaml:"vendor"`

	// ModulesDirectories are the bare-request search directories, relative
	// to Root.
	ModulesDirectories []string `json:"modulesDirectories" yaml:"modulesDirectories"`
}

// VendorConfig names the third-party modules bundled into the vendor chunk.
type VendorConfig struct {
	Modules []string `json:"modules" yaml:"modules"`
	Output  string   `json:"output" yaml:"output"`
}

// CSSConfig holds stylesheet options.
type CSSConfig struct {
	Dest string `json:"dest" yaml:"dest"`
}

func (c *Config) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Root, filepath.FromSlash(p))
}

// BaseDir is the absolute base source directory.
func (c *Config) BaseDir() string { return c.abs(c.Base) }

// OutputDir is the absolute output root.
func (c *Config) OutputDir() string { return c.abs(c.Output) }

// ScriptDir is the absolute directory receiving script chunks.
func (c *Config) ScriptDir() string {
	return filepath.Join(c.OutputDir(), filepath.FromSlash(c.JS.Dest))
}

// StyleDir is the absolute directory receiving stylesheets.
func (c *Config) StyleDir() string {
	return filepath.Join(c.OutputDir(), filepath.FromSlash(c.CSS.Dest))
}

// SharedPath is the shared chunk path.
func (c *Config) SharedPath() string { return filepath.Join(c.ScriptDir(), c.JS.Shared) }

// VendorPath is the vendor chunk path.
func (c *Config) VendorPath() string { return filepath.Join(c.ScriptDir(), c.JS.Vendor.Output) }

// HelperPath is the extracted helper file path.
func (c *Config) HelperPath() string { return filepath.Join(c.ScriptDir(), c.JS.Helpers) }

// StylePath is the extracted stylesheet path.
func (c *Config) StylePath() string { return filepath.Join(c.StyleDir(), c.JS.Style) }

// ManifestPath is the manifest file path.
func (c *Config) ManifestPath() string { return filepath.Join(c.OutputDir(), c.Manifest) }

// JournalPath is the absolute journal path, or "" when disabled.
func (c *Config) JournalPath() string {
	if c.Journal == "" {
		return ""
	}
	return c.abs(c.Journal)
}

// SearchDirs returns the absolute module search directories.
func (c *Config) SearchDirs() []string {
	dirs := make([]string, len(c.JS.ModulesDirectories))
	for i, d := range c.JS.ModulesDirectories {
		dirs[i] = c.abs(d)
	}
	return dirs
}

// DebounceWindow parses Debounce. Validate guarantees it succeeds.
func (c *Config) DebounceWindow() time.Duration {
	d, err := time.ParseDuration(c.Debounce)
	if err != nil {
		return 0
	}
	return d
}

// Validate checks constraints the schema cannot express.
func (c *Config) Validate() error {
	if c.Root == "" || !filepath.IsAbs(c.Root) {
		return fieldError("root", "must be an absolute path, got %q", c.Root)
	}
	if len(c.JS.Src) == 0 {
		return fieldError("js.src", "at least one entry glob is required")
	}
	for _, g := range c.JS.Src {
		if g == "" {
			return fieldError("js.src", "empty glob")
		}
	}
	names := map[string]string{
		"js.entry":         c.JS.Entry,
		"js.shared":        c.JS.Shared,
		"js.helpers":       c.JS.Helpers,
		"js.style":         c.JS.Style,
		"js.vendor.output": c.JS.Vendor.Output,
		"manifest":         c.Manifest,
	}
	for _, field := range sortedKeys(names) {
		if err := checkFilename(field, names[field]); err != nil {
			return err
		}
	}
	outputs := map[string]string{
		c.JS.Shared:        "js.shared",
		c.JS.Vendor.Output: "js.vendor.output",
		c.JS.Helpers:       "js.helpers",
	}
	if len(outputs) != 3 {
		return fieldError("js", "shared, vendor and helper filenames must differ")
	}
	seen := make(map[string]bool, len(c.JS.Vendor.Modules))
	for _, m := range c.JS.Vendor.Modules {
		if m == "" || strings.HasPrefix(m, ".") || strings.HasPrefix(m, "/") {
			return fieldError("js.vendor.modules", "%q is not a bare module name", m)
		}
		if seen[m] {
			return fieldError("js.vendor.modules", "duplicate module %q", m)
		}
		seen[m] = true
	}
	d, err := time.ParseDuration(c.Debounce)
	if err != nil {
		return fieldError("debounce", "%v", err)
	}
	if d < 0 {
		return fieldError("debounce", "must not be negative")
	}
	if c.Concurrency < 1 {
		return fieldError("concurrency", "must be at least 1")
	}
	if filepath.Clean(c.OutputDir()) == filepath.Clean(c.BaseDir()) {
		return fieldError("output", "must differ from base")
	}
	return nil
}

func checkFilename(field, name string) error {
	if name == "" {
		return fieldError(field, "must not be empty")
	}
	if path.Base(filepath.ToSlash(name)) != filepath.ToSlash(name) {
		return fieldError(field, "%q must be a bare filename", name)
	}
	return nil
}

func fieldError(field, format string, args ...any) error {
	return ir.NewConfigError("%s: %s", field, fmt.Sprintf(format, args...))
}
