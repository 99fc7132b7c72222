package ir

import (
	"path/filepath"
	"sort"
	"strings"
)

// ModuleKind classifies a source module by what it contributes to the output.
type ModuleKind string

const (
	// KindScript is an ordinary script module.
	KindScript ModuleKind = "script"
	// KindStyle is a stylesheet required from a script; its rules are hoisted
	// into the extracted stylesheet.
	KindStyle ModuleKind = "style-fragment"
	// KindHelper is a project-defined runtime helper; its definition is hoisted
	// into the extracted helper file.
	KindHelper ModuleKind = "helper-fragment"
)

// SourceModule is one node of the module graph.
//
// A SourceModule is created the first time graph traversal reaches its path
// and is cached by Path for the lifetime of a build session. It is never
// mutated after the transform completes; invalidation replaces it.
type SourceModule struct {
	// Path is the resolved absolute path.
	Path string `json:"path"`

	// ID is Path relative to the project root, forward slashes.
	ID string `json:"id"`

	Kind ModuleKind `json:"kind"`

	// Raw is the file content as read from disk.
	Raw []byte `json:"-"`

	// Content is the transformed content.
	Content []byte `json:"-"`

	// Requests are the dependency requests declared by the transform, in
	// declaration order without duplicates.
	Requests []string `json:"requests"`

	// Helpers maps runtime helper names used by this module to their code.
	Helpers map[string]string `json:"helpers,omitempty"`

	// Style holds the stylesheet text of a style fragment.
	Style string `json:"style,omitempty"`
}

// HelperNames returns the helper names in sorted order.
func (m *SourceModule) HelperNames() []string {
	names := make([]string, 0, len(m.Helpers))
	for name := range m.Helpers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dependency is one resolved edge of the module graph.
type Dependency struct {
	// Request is the string the module passed to require.
	Request string `json:"request"`

	// Path is the resolved absolute path. Empty for external edges.
	Path string `json:"path,omitempty"`

	// External marks requests satisfied at runtime by the vendor chunk.
	External bool `json:"external,omitempty"`
}

// Entry is a bundling root.
type Entry struct {
	// Source is the absolute path of the entry module.
	Source string `json:"source"`

	// Base is the absolute static base directory of the glob that matched it.
	Base string `json:"base"`

	// Output is the absolute output path of the entry's chunk.
	Output string `json:"output"`
}

// ChunkKind identifies the role of an output artifact.
type ChunkKind string

const (
	ChunkEntry  ChunkKind = "entry"
	ChunkShared ChunkKind = "shared"
	ChunkVendor ChunkKind = "vendor"
	ChunkHelper ChunkKind = "helper"
	ChunkStyle  ChunkKind = "style"
	ChunkMap    ChunkKind = "sourcemap"
)

// Chunk is one physical output artifact containing a subset of the graph.
type Chunk struct {
	Kind ChunkKind `json:"kind"`

	// Modules lists module paths, sorted by module id, without duplicates.
	Modules []string `json:"modules"`

	// Output is the absolute artifact path.
	Output string `json:"output"`

	// Entry is the entry module path for entry chunks.
	Entry string `json:"entry,omitempty"`
}

// Artifact is a file produced by a build.
type Artifact struct {
	Path   string    `json:"path"`
	Kind   ChunkKind `json:"kind"`
	Digest string    `json:"digest"`
	Bytes  int64     `json:"bytes"`
}

// ManifestEntry maps one original artifact reference to its versioned path.
type ManifestEntry struct {
	Original  string `json:"original"`
	Hash      string `json:"hash"`
	Versioned string `json:"versioned"`
}

// ModuleID derives the module id for an absolute path under root. Paths
// outside root keep their absolute, slash-separated form.
func ModuleID(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// SortArtifacts orders artifacts by path.
func SortArtifacts(as []Artifact) {
	sort.Slice(as, func(i, j int) bool { return as[i].Path < as[j].Path })
}
