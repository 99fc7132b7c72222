package extract

import (
	"context"
	"sort"
	"strings"

	"github.com/roach88/assetpack/internal/ir"
)

// HelperHeader opens the helper file.
const HelperHeader = "var " + ir.HelpersGlobal + " = window." + ir.HelpersGlobal +
	" = window." + ir.HelpersGlobal + " || {};\n"

// Helpers hoists inlined runtime helpers out of script chunks into one
// helper file. Each inlined definition is replaced with a lookup in the
// global helper table. The file holds the union of helpers found in chunks
// and helpers declared by live modules, ordered by name.
type Helpers struct {
	path string
}

// NewHelpers creates the helper plugin writing to path.
func NewHelpers(path string) *Helpers {
	return &Helpers{path: path}
}

// Name implements Plugin.
func (h *Helpers) Name() string { return "helpers" }

// Extract implements Plugin.
func (h *Helpers) Extract(_ context.Context, in *Input) error {
	if in.Helpers == nil {
		in.Helpers = make(map[string]string)
	}
	for _, a := range in.Scripts() {
		content, found := cutBlocks(a.Content, ir.MarkerHelper, ir.MarkerEnd, func(name, _ string) string {
			return ir.HelperRef(name)
		})
		for _, b := range found {
			in.Helpers[b.key] = helperCode(b.key, b.body)
		}
		a.Content = content
	}

	all := make(map[string]string, len(in.Helpers))
	for name, code := range in.Helpers {
		all[name] = code
	}
	for _, m := range in.Modules {
		for name, code := range m.Helpers {
			all[name] = code
		}
	}
	in.Put(&Artifact{Path: h.path, Kind: ir.ChunkHelper, Content: RenderHelpers(all)})
	return nil
}

// RenderHelpers renders the helper file for helpers.
func RenderHelpers(helpers map[string]string) []byte {
	names := make([]string, 0, len(helpers))
	for name := range helpers {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(HelperHeader)
	for _, name := range names {
		b.WriteString(ir.HelpersGlobal + "[" + ir.Quote(name) + "] = " + helpers[name] + ";\n")
	}
	return []byte(b.String())
}

// helperCode recovers CODE from a "var NAME = CODE;" block body.
func helperCode(name, body string) string {
	code := strings.TrimSpace(body)
	code = strings.TrimPrefix(code, "var "+name+" = ")
	return strings.TrimSuffix(code, ";")
}
