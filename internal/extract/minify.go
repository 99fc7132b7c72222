package extract

import (
	"context"
	"fmt"

	"github.com/evanw/esbuild/pkg/api"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/assetpack/internal/ir"
)

// Minify removes insignificant whitespace and comments from scripts and
// stylesheets through esbuild's transform API. Identifiers are never
// renamed, since chunks communicate through globals.
//
// Results are memoized by input digest, and every output is also recorded as
// its own result, so re-running over minified artifacts is a no-op.
type Minify struct {
	memo *lru.Cache[string, []byte]
}

// NewMinify creates the minify plugin.
func NewMinify() *Minify {
	memo, err := lru.New[string, []byte](512)
	if err != nil {
		// Only a non-positive size fails.
		panic(err)
	}
	return &Minify{memo: memo}
}

// Name implements Plugin.
func (*Minify) Name() string { return "minify" }

// Extract implements Plugin.
func (m *Minify) Extract(_ context.Context, in *Input) error {
	for _, a := range in.Artifacts {
		var loader api.Loader
		switch a.Kind {
		case ir.ChunkEntry, ir.ChunkShared, ir.ChunkVendor, ir.ChunkHelper:
			loader = api.LoaderJS
		case ir.ChunkStyle:
			loader = api.LoaderCSS
		default:
			continue
		}
		if len(a.Content) == 0 {
			continue
		}
		out, err := m.minify(a.Content, loader)
		if err != nil {
			return &ir.BuildError{Kind: ir.ErrBundle, Message: "minify failed", Path: a.Path, Err: err}
		}
		a.Content = out
	}
	return nil
}

func (m *Minify) minify(content []byte, loader api.Loader) ([]byte, error) {
	key := fmt.Sprintf("%d:%s", loader, ir.Digest(content))
	if out, ok := m.memo.Get(key); ok {
		return out, nil
	}
	res := api.Transform(string(content), api.TransformOptions{
		Loader:           loader,
		MinifyWhitespace: true,
		LegalComments:    api.LegalCommentsNone,
	})
	if len(res.Errors) > 0 {
		msg := res.Errors[0]
		if msg.Location != nil {
			return nil, fmt.Errorf("%d:%d: %s", msg.Location.Line, msg.Location.Column, msg.Text)
		}
		return nil, fmt.Errorf("%s", msg.Text)
	}
	m.memo.Add(key, res.Code)
	m.memo.Add(fmt.Sprintf("%d:%s", loader, ir.Digest(res.Code)), res.Code)
	return res.Code, nil
}
