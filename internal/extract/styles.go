package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/assetpack/internal/ir"
)

// Styles hoists style fragments out of script chunks into one stylesheet,
// rules ordered by module id. Each fragment's module body becomes an empty
// export.
type Styles struct {
	path string
}

// NewStyles creates the style plugin writing to path.
func NewStyles(path string) *Styles {
	return &Styles{path: path}
}

// Name implements Plugin.
func (s *Styles) Name() string { return "styles" }

// Extract implements Plugin.
func (s *Styles) Extract(_ context.Context, in *Input) error {
	if in.Styles == nil {
		in.Styles = make(map[string]string)
	}
	for _, a := range in.Scripts() {
		content, found := cutBlocks(a.Content, ir.MarkerStyle, ir.MarkerEnd, func(string, string) string {
			return ir.StyleRef
		})
		for _, b := range found {
			css, err := styleText(b.body)
			if err != nil {
				return &ir.BuildError{
					Kind:    ir.ErrBundle,
					Message: fmt.Sprintf("malformed style block %s", b.key),
					Path:    a.Path,
					Err:     err,
				}
			}
			in.Styles[b.key] = css
		}
		a.Content = content
	}

	all := make(map[string]string, len(in.Styles))
	for id, css := range in.Styles {
		all[id] = css
	}
	for _, m := range in.Modules {
		if m.Kind == ir.KindStyle {
			all[m.ID] = m.Style
		}
	}
	in.Put(&Artifact{Path: s.path, Kind: ir.ChunkStyle, Content: RenderStyles(all)})
	return nil
}

// RenderStyles renders the stylesheet for styles keyed by module id.
func RenderStyles(styles map[string]string) []byte {
	ids := make([]string, 0, len(styles))
	for id := range styles {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		b.WriteString("/* " + id + " */\n")
		css := styles[id]
		b.WriteString(css)
		if css != "" && !strings.HasSuffix(css, "\n") {
			b.WriteByte('\n')
		}
	}
	return []byte(b.String())
}

func styleText(body string) (string, error) {
	lit := strings.TrimSpace(body)
	lit = strings.TrimPrefix(lit, "module.exports = ")
	lit = strings.TrimSuffix(lit, ";")
	var css string
	if err := json.Unmarshal([]byte(lit), &css); err != nil {
		return "", err
	}
	return css, nil
}
