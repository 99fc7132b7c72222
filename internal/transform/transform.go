// Package transform defines the per-module transform capability and the
// default transform chain.
//
// A Transformer turns one module's raw content into compiled content plus the
// dependency requests it declares. The graph builder calls it exactly once
// per module per session; implementations must be safe for concurrent use.
package transform

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/roach88/assetpack/internal/ir"
)

// Result is the output of transforming one module.
type Result struct {
	Content []byte

	// Dependencies are require requests in declaration order.
	Dependencies []string

	// Helpers maps runtime helper names the content relies on to their code.
	Helpers map[string]string

	// Kind overrides the module kind. Empty keeps the previous kind.
	Kind ir.ModuleKind

	// Style is the stylesheet text of a style fragment.
	Style string
}

// Transformer converts one source module.
type Transformer interface {
	Transform(ctx context.Context, path string, content []byte) (Result, error)
}

// Func adapts a function to Transformer.
type Func func(ctx context.Context, path string, content []byte) (Result, error)

// Transform calls f.
func (f Func) Transform(ctx context.Context, path string, content []byte) (Result, error) {
	return f(ctx, path, content)
}

// Chain runs transformers in order, feeding each one the previous content.
type Chain []Transformer

// Transform implements Transformer.
func (c Chain) Transform(ctx context.Context, path string, content []byte) (Result, error) {
	res := Result{Content: content, Kind: ir.KindScript}
	seen := make(map[string]bool)
	for _, step := range c {
		r, err := step.Transform(ctx, path, res.Content)
		if err != nil {
			return Result{}, err
		}
		if r.Content != nil {
			res.Content = r.Content
		}
		for _, dep := range r.Dependencies {
			if !seen[dep] {
				seen[dep] = true
				res.Dependencies = append(res.Dependencies, dep)
			}
		}
		for name, code := range r.Helpers {
			if res.Helpers == nil {
				res.Helpers = make(map[string]string)
			}
			res.Helpers[name] = code
		}
		if r.Kind != "" {
			res.Kind = r.Kind
		}
		if r.Style != "" {
			res.Style = r.Style
		}
	}
	return res, nil
}

// Options configures the default chain.
type Options struct {
	// Root is the project root; style fragment ids are relative to it.
	Root string

	// Production selects NODE_ENV=production.
	Production bool

	// Define adds process.env substitutions.
	Define map[string]string
}

// Default returns the standard chain: style wrapping, env substitution,
// project helper hoisting, syntax check, require collection and helper
// injection.
func Default(opts Options) Chain {
	return Chain{
		Styles{Root: opts.Root},
		Env{Vars: envVars(opts)},
		ProjectHelpers{},
		Syntax{},
		Requires{},
		Helpers{Registry: BuiltinHelpers},
	}
}

// Vendor returns the chain for third-party modules: style wrapping, env
// substitution and require collection. Third-party code is trusted to parse.
func Vendor(opts Options) Chain {
	return Chain{
		Styles{Root: opts.Root},
		Env{Vars: envVars(opts)},
		Requires{},
	}
}

// HelperSuffix marks project-defined runtime helper files.
const HelperSuffix = ".helper.js"

func envVars(opts Options) map[string]string {
	env := map[string]string{"NODE_ENV": "development"}
	if opts.Production {
		env["NODE_ENV"] = "production"
	}
	for k, v := range opts.Define {
		env[k] = v
	}
	return env
}

func isScript(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs":
		return true
	}
	return false
}

func isStyle(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".css")
}
