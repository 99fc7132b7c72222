package extract

import (
	"context"
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/roach88/assetpack/internal/ir"
)

const mapURLPrefix = "//# sourceMappingURL="

var (
	moduleStart = regexp.MustCompile(`^` + ir.ModulesGlobal + `\[("(?:[^"\\]|\\.)*")\] = \[function \(module, exports, require\) \{$`)
	moduleEnd   = regexp.MustCompile(`^\}, \{.*\}\];$`)
)

// SourceMaps writes a line-level source map next to every non-empty script
// chunk and appends a single sourceMappingURL comment to the chunk. Each
// module is one source whose content is its body as it appears in the chunk.
type SourceMaps struct{}

// NewSourceMaps creates the source map plugin.
func NewSourceMaps() *SourceMaps { return &SourceMaps{} }

// Name implements Plugin.
func (*SourceMaps) Name() string { return "sourcemap" }

// Extract implements Plugin.
func (*SourceMaps) Extract(_ context.Context, in *Input) error {
	for _, a := range in.Scripts() {
		if len(a.Content) == 0 {
			continue
		}
		base := filepath.Base(a.Path)
		body := stripMapURL(string(a.Content))
		data, err := json.Marshal(BuildSourceMap(base, body))
		if err != nil {
			return err
		}
		a.Content = []byte(body + mapURLPrefix + base + ".map\n")
		in.Put(&Artifact{Path: a.Path + ".map", Kind: ir.ChunkMap, Content: data})
	}
	return nil
}

func stripMapURL(s string) string {
	i := strings.LastIndex(s, mapURLPrefix)
	if i < 0 || (i > 0 && s[i-1] != '\n') {
		return s
	}
	if strings.Contains(s[i:len(s)-1], "\n") {
		return s
	}
	return s[:i]
}

// SourceMap is a version 3 source map.
type SourceMap struct {
	Version        int      `json:"version"`
	File           string   `json:"file"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// BuildSourceMap maps every line of each module body in chunk back to the
// same line of that module's source.
func BuildSourceMap(file, chunk string) *SourceMap {
	sm := &SourceMap{Version: 3, File: file, Sources: []string{}, SourcesContent: []string{}, Names: []string{}}
	lines := strings.Split(strings.TrimSuffix(chunk, "\n"), "\n")

	var (
		mappings   strings.Builder
		inModule   bool
		current    int
		bodyLine   int
		body       []string
		prevSource int
		prevLine   int
	)
	closeModule := func() {
		content := strings.Join(body, "\n")
		if len(body) > 0 {
			content += "\n"
		}
		sm.SourcesContent = append(sm.SourcesContent, content)
		inModule = false
	}
	for i, line := range lines {
		if i > 0 {
			mappings.WriteByte(';')
		}
		if !inModule {
			if m := moduleStart.FindStringSubmatch(line); m != nil {
				var id string
				if err := json.Unmarshal([]byte(m[1]), &id); err != nil {
					id = m[1]
				}
				sm.Sources = append(sm.Sources, id)
				current = len(sm.Sources) - 1
				bodyLine = 0
				body = nil
				inModule = true
			}
			continue
		}
		if moduleEnd.MatchString(line) {
			closeModule()
			continue
		}
		mappings.WriteString(encodeVLQ(0))
		mappings.WriteString(encodeVLQ(current - prevSource))
		mappings.WriteString(encodeVLQ(bodyLine - prevLine))
		mappings.WriteString(encodeVLQ(0))
		prevSource, prevLine = current, bodyLine
		body = append(body, line)
		bodyLine++
	}
	if inModule {
		closeModule()
	}
	sm.Mappings = mappings.String()
	return sm
}

const base64Digits = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// encodeVLQ encodes v as a base64 VLQ.
func encodeVLQ(v int) string {
	n := v << 1
	if v < 0 {
		n = (-v << 1) | 1
	}
	var b strings.Builder
	for {
		digit := n & 0x1f
		n >>= 5
		if n > 0 {
			digit |= 0x20
		}
		b.WriteByte(base64Digits[digit])
		if n == 0 {
			return b.String()
		}
	}
}
