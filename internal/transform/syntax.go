package transform

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/assetpack/internal/ir"
)

// Syntax rejects scripts with unbalanced brackets or unterminated strings and
// comments. It is a cheap structural check, not a parser.
type Syntax struct{}

// Transform implements Transformer.
func (Syntax) Transform(_ context.Context, path string, content []byte) (Result, error) {
	if !isScript(path) {
		return Result{}, nil
	}
	if line, col, msg, ok := checkBalance(content); !ok {
		return Result{}, ir.NewTransformError(path,
			fmt.Sprintf("%s (%d:%d)", msg, line, col),
			CodeFrame(content, line, col), nil)
	}
	return Result{}, nil
}

type opener struct {
	ch        byte
	line, col int
}

func checkBalance(src []byte) (line, col int, msg string, ok bool) {
	var stack []opener
	var prev byte // last significant byte
	line, col = 1, 0
	closers := map[byte]byte{')': '(', ']': '[', '}': '{'}
	for i := 0; i < len(src); i++ {
		c := src[i]
		col++
		if c == '\n' {
			line++
			col = 0
			continue
		}
		if c == ' ' || c == '\t' || c == '\r' {
			continue
		}
		switch {
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			i--
			continue
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			startLine, startCol := line, col
			i += 2
			col += 2
			for ; i < len(src); i++ {
				col++
				if src[i] == '\n' {
					line++
					col = 0
				}
				if src[i] == '*' && i+1 < len(src) && src[i+1] == '/' {
					i++
					col++
					break
				}
			}
			if i >= len(src) {
				return startLine, startCol, "unterminated comment", false
			}
			continue
		case c == '\'' || c == '"' || c == '`':
			startLine, startCol := line, col
			quote := c
			closed := false
			for i++; i < len(src); i++ {
				col++
				if src[i] == '\\' {
					i++
					col++
					continue
				}
				if src[i] == '\n' {
					if quote != '`' {
						return startLine, startCol, "unterminated string", false
					}
					line++
					col = 0
				}
				if src[i] == quote {
					closed = true
					break
				}
			}
			if !closed {
				return startLine, startCol, "unterminated string", false
			}
		case c == '/' && regexAllowed(prev):
			startLine, startCol := line, col
			inClass := false
			closed := false
			for i++; i < len(src) && src[i] != '\n'; i++ {
				col++
				switch {
				case src[i] == '\\':
					i++
					col++
				case src[i] == '[':
					inClass = true
				case src[i] == ']':
					inClass = false
				case src[i] == '/' && !inClass:
					closed = true
				}
				if closed {
					break
				}
			}
			if !closed {
				return startLine, startCol, "unterminated regular expression", false
			}
		case c == '(' || c == '[' || c == '{':
			stack = append(stack, opener{c, line, col})
		case c == ')' || c == ']' || c == '}':
			if len(stack) == 0 || stack[len(stack)-1].ch != closers[c] {
				return line, col, fmt.Sprintf("unexpected %q", c), false
			}
			stack = stack[:len(stack)-1]
		}
		prev = c
	}
	if len(stack) > 0 {
		o := stack[len(stack)-1]
		return o.line, o.col, fmt.Sprintf("unclosed %q", o.ch), false
	}
	return 0, 0, "", true
}

// regexAllowed reports whether a '/' following prev starts a regular
// expression literal rather than a division.
func regexAllowed(prev byte) bool {
	switch prev {
	case 0, '(', ',', '=', ':', '[', '!', '&', '|', '?', '{', '}', ';', '+', '-', '*', '%', '<', '>', '~', '^':
		return true
	}
	return false
}

// CodeFrame renders up to two lines of context around line with a caret
// under col.
func CodeFrame(src []byte, line, col int) string {
	lines := strings.Split(string(src), "\n")
	if line < 1 || line > len(lines) {
		return ""
	}
	first := max(1, line-2)
	last := min(len(lines), line+2)
	width := len(fmt.Sprint(last))
	var b strings.Builder
	for n := first; n <= last; n++ {
		marker := " "
		if n == line {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s %*d | %s\n", marker, width, n, lines[n-1])
		if n == line && col > 0 {
			fmt.Fprintf(&b, "  %s | %s^\n", strings.Repeat(" ", width), strings.Repeat(" ", col-1))
		}
	}
	return b.String()
}
