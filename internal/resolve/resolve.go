// Package resolve implements node-style module request resolution.
package resolve

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultExtensions are tried, in order, when a request names no existing file.
var DefaultExtensions = []string{".js", ".jsx", ".ts", ".tsx", ".css"}

// ErrNotFound is wrapped by every failed resolution.
var ErrNotFound = errors.New("module not found")

// Resolver resolves require requests to absolute file paths.
//
// Relative and absolute requests resolve against the requesting module's
// directory. Bare requests resolve against each search directory in order.
// A request naming a directory resolves through package.json "main" and then
// index files.
type Resolver struct {
	// SearchDirs are absolute directories searched for bare requests.
	SearchDirs []string

	// Extensions are appended to extensionless requests. Defaults to
	// DefaultExtensions.
	Extensions []string
}

// New creates a Resolver over the given search directories.
func New(searchDirs ...string) *Resolver {
	return &Resolver{SearchDirs: searchDirs, Extensions: DefaultExtensions}
}

// IsBare reports whether request names a package rather than a path.
func IsBare(request string) bool {
	return request != "" &&
		!strings.HasPrefix(request, "./") &&
		!strings.HasPrefix(request, "../") &&
		request != "." && request != ".." &&
		!filepath.IsAbs(request) && !strings.HasPrefix(request, "/")
}

// PackageName returns the package part of a bare request:
// "lodash/fp" is "lodash", "@scope/pkg/x" is "@scope/pkg".
func PackageName(request string) string {
	parts := strings.SplitN(request, "/", 3)
	if strings.HasPrefix(request, "@") && len(parts) >= 2 {
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}

// Resolve resolves request as required from a module in fromDir.
func (r *Resolver) Resolve(fromDir, request string) (string, error) {
	if request == "" {
		return "", fmt.Errorf("empty request: %w", ErrNotFound)
	}
	if !IsBare(request) {
		target := filepath.FromSlash(request)
		if !filepath.IsAbs(target) {
			target = filepath.Join(fromDir, target)
		}
		if p, ok := r.load(target); ok {
			return p, nil
		}
		return "", fmt.Errorf("%q from %s: %w", request, fromDir, ErrNotFound)
	}
	for _, dir := range r.SearchDirs {
		if p, ok := r.load(filepath.Join(dir, filepath.FromSlash(request))); ok {
			return p, nil
		}
	}
	return "", fmt.Errorf("%q in %s: %w", request, strings.Join(r.SearchDirs, ", "), ErrNotFound)
}

// load tries target as a file, then as a directory.
func (r *Resolver) load(target string) (string, bool) {
	if p, ok := r.loadFile(target); ok {
		return p, true
	}
	return r.loadDir(target)
}

func (r *Resolver) loadFile(target string) (string, bool) {
	if isFile(target) {
		return target, true
	}
	for _, ext := range r.extensions() {
		if isFile(target + ext) {
			return target + ext, true
		}
	}
	return "", false
}

func (r *Resolver) loadDir(dir string) (string, bool) {
	if !isDir(dir) {
		return "", false
	}
	if main := packageMain(dir); main != "" {
		target := filepath.Join(dir, filepath.FromSlash(main))
		if p, ok := r.loadFile(target); ok {
			return p, true
		}
		if p, ok := r.loadFile(filepath.Join(target, "index")); ok {
			return p, true
		}
	}
	return r.loadFile(filepath.Join(dir, "index"))
}

func (r *Resolver) extensions() []string {
	if r.Extensions == nil {
		return DefaultExtensions
	}
	return r.Extensions
}

func packageMain(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return ""
	}
	var pkg struct {
		Main string `json:"main"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ""
	}
	return pkg.Main
}

func isFile(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}

func isDir(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.IsDir()
}
