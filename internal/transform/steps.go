package transform

import (
	"bytes"
	"context"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/assetpack/internal/ir"
)

// Styles turns .css modules into style fragments whose rules are later
// hoisted into the extracted stylesheet.
type Styles struct {
	Root string
}

// Transform implements Transformer.
func (s Styles) Transform(_ context.Context, path string, content []byte) (Result, error) {
	if !isStyle(path) {
		return Result{}, nil
	}
	css := string(content)
	id := ir.ModuleID(s.Root, path)
	return Result{
		Content: []byte(ir.StyleBlock(id, css)),
		Kind:    ir.KindStyle,
		Style:   css,
	}, nil
}

var envRef = regexp.MustCompile(`\bprocess\.env\.([A-Za-z_$][A-Za-z0-9_$]*)`)

// Env replaces process.env.NAME references with string literals for every
// known NAME. Unknown names are left alone.
type Env struct {
	Vars map[string]string
}

// Transform implements Transformer.
func (e Env) Transform(_ context.Context, path string, content []byte) (Result, error) {
	if !isScript(path) || !bytes.Contains(content, []byte("process.env.")) {
		return Result{}, nil
	}
	out := envRef.ReplaceAllFunc(content, func(m []byte) []byte {
		name := string(envRef.FindSubmatch(m)[1])
		v, ok := e.Vars[name]
		if !ok {
			return m
		}
		return []byte(ir.Quote(v))
	})
	return Result{Content: out}, nil
}

// ProjectHelpers hoists *.helper.js files into the helper table. The helper
// is named after the file and its code evaluates the file as a CommonJS
// module; the module body itself becomes a reference into the table.
type ProjectHelpers struct{}

// HelperName returns the helper name for a *.helper.js path.
func HelperName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), HelperSuffix)
}

// Transform implements Transformer.
func (ProjectHelpers) Transform(_ context.Context, path string, content []byte) (Result, error) {
	if !strings.HasSuffix(path, HelperSuffix) {
		return Result{}, nil
	}
	name := HelperName(path)
	code := "(function () {\nvar module = { exports: {} }, exports = module.exports;\n" +
		strings.TrimRight(string(content), "\n") +
		"\nreturn module.exports;\n})()"
	return Result{
		Content: []byte("module.exports = " + ir.HelpersGlobal + "[" + ir.Quote(name) + "];\n"),
		Helpers: map[string]string{name: code},
		Kind:    ir.KindHelper,
	}, nil
}

var requireCall = regexp.MustCompile(`\brequire\s*\(\s*(?:'([^'\n]+)'|"([^"\n]+)")\s*\)`)

// Requires collects require("...") requests.
type Requires struct{}

// Transform implements Transformer.
func (Requires) Transform(_ context.Context, path string, content []byte) (Result, error) {
	if !isScript(path) {
		return Result{}, nil
	}
	var deps []string
	for _, m := range requireCall.FindAllSubmatch(content, -1) {
		req := string(m[1])
		if req == "" {
			req = string(m[2])
		}
		deps = append(deps, req)
	}
	return Result{Dependencies: deps}, nil
}

// Helpers injects inlined definitions for every registry helper a script
// calls without defining, the way a compiler inlines its runtime helpers.
type Helpers struct {
	Registry map[string]string
}

// Transform implements Transformer.
func (h Helpers) Transform(_ context.Context, path string, content []byte) (Result, error) {
	if !isScript(path) || strings.HasSuffix(path, HelperSuffix) {
		return Result{}, nil
	}
	var used []string
	for name := range h.Registry {
		if !bytes.Contains(content, []byte(name)) {
			continue
		}
		if usesHelper(content, name) && !definesHelper(content, name) {
			used = append(used, name)
		}
	}
	if len(used) == 0 {
		return Result{}, nil
	}
	sort.Strings(used)
	var b bytes.Buffer
	helpers := make(map[string]string, len(used))
	for _, name := range used {
		code := h.Registry[name]
		helpers[name] = code
		b.WriteString(ir.HelperBlock(name, code))
	}
	b.Write(content)
	return Result{Content: b.Bytes(), Helpers: helpers}, nil
}

func usesHelper(content []byte, name string) bool {
	re := regexp.MustCompile(`(^|[^A-Za-z0-9_$.])` + regexp.QuoteMeta(name) + `\s*\(`)
	return re.Match(content)
}

func definesHelper(content []byte, name string) bool {
	re := regexp.MustCompile(`\b(?:var|let|const|function)\s+` + regexp.QuoteMeta(name) + `\b`)
	return re.Match(content)
}

// BuiltinHelpers are the runtime helpers the Helpers step knows how to inline.
var BuiltinHelpers = map[string]string{
	"_classCallCheck": `function (instance, Constructor) { if (!(instance instanceof Constructor)) { throw new TypeError("Cannot call a class as a function"); } }`,
	"_defineProperty": `function (obj, key, value) { if (key in obj) { Object.defineProperty(obj, key, { value: value, enumerable: true, configurable: true, writable: true }); } else { obj[key] = value; } return obj; }`,
	"_extends":        `Object.assign || function (target) { for (var i = 1; i < arguments.length; i++) { var source = arguments[i]; for (var key in source) { if (Object.prototype.hasOwnProperty.call(source, key)) { target[key] = source[key]; } } } return target; }`,
	"_interopRequireDefault": `function (obj) { return obj && obj.__esModule ? obj : { default: obj }; }`,
}
