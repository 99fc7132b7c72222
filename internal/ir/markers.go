package ir

import (
	"encoding/json"
	"strings"
)

// Block markers delimit regions the extraction plugins hoist out of chunks.
// Each marker occupies a whole line.
const (
	MarkerHelper = "//@assetpack:helper "
	MarkerStyle  = "//@assetpack:style "
	MarkerEnd    = "//@assetpack:end"
)

// Global tables used by the rendered runtime.
const (
	ModulesGlobal = "__modules__"
	HelpersGlobal = "__helpers__"
	RequireFunc   = "__require__"
)

// HelperBlock renders an inlined helper definition.
func HelperBlock(name, code string) string {
	var b strings.Builder
	b.WriteString(MarkerHelper)
	b.WriteString(name)
	b.WriteString("\nvar ")
	b.WriteString(name)
	b.WriteString(" = ")
	b.WriteString(code)
	b.WriteString(";\n")
	b.WriteString(MarkerEnd)
	b.WriteString("\n")
	return b.String()
}

// HelperRef is the statement a helper block is replaced with once hoisted.
func HelperRef(name string) string {
	return "var " + name + " = " + HelpersGlobal + "[" + Quote(name) + "];\n"
}

// StyleBlock renders a style fragment module body.
func StyleBlock(id, css string) string {
	return MarkerStyle + id + "\nmodule.exports = " + Quote(css) + ";\n" + MarkerEnd + "\n"
}

// StyleRef is the statement a style block is replaced with once hoisted.
const StyleRef = "module.exports = {};\n"

// Quote renders s as a JavaScript string literal.
func Quote(s string) string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	// Encoding a string cannot fail.
	_ = enc.Encode(s)
	return strings.TrimSuffix(b.String(), "\n")
}
