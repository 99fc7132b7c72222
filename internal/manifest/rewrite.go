package manifest

// Rewriter replaces every occurrence of a manifest original with its
// versioned path in one left-to-right pass.
//
// A match must sit on path boundaries: the byte before it cannot continue a
// path segment, and the byte after it cannot either, nor can it be a dot
// followed by a name character. A match after a slash must be anchored at
// the start of the reference, allowing only leading "./" and "../"
// segments. So "js/app.js" matches in "/js/app.js", "../js/app.js" and
// "js/app.js?v=1" but not in "js/app.js.map", "vendorjs/app.js" or
// "static/js/app.js", and a versioned path never contains its original.
// Host-qualified URLs are not rewritten. Rewriting is therefore
// idempotent. Among originals matching at one position the longest wins.
type Rewriter struct {
	root *node
}

type node struct {
	next     map[byte]*node
	value    string
	terminal bool
}

// NewRewriter builds a Rewriter for original -> versioned pairs.
func NewRewriter(pairs map[string]string) *Rewriter {
	root := &node{}
	for from, to := range pairs {
		if from == "" {
			continue
		}
		n := root
		for i := 0; i < len(from); i++ {
			c := from[i]
			if n.next == nil {
				n.next = make(map[byte]*node)
			}
			child, ok := n.next[c]
			if !ok {
				child = &node{}
				n.next[c] = child
			}
			n = child
		}
		n.terminal = true
		n.value = to
	}
	return &Rewriter{root: root}
}

// Rewrite returns src with every boundary-respecting occurrence replaced and
// the number of replacements. src is not modified.
func (r *Rewriter) Rewrite(src []byte) ([]byte, int) {
	out := make([]byte, 0, len(src))
	count := 0
	for i := 0; i < len(src); {
		if boundaryBefore(src, i) {
			if end, value, ok := r.match(src, i); ok {
				out = append(out, value...)
				count++
				i = end
				continue
			}
		}
		out = append(out, src[i])
		i++
	}
	return out, count
}

// match walks the trie from src[i] and returns the end of the longest
// original that ends on a boundary.
func (r *Rewriter) match(src []byte, i int) (int, string, bool) {
	n := r.root
	bestEnd, best, found := 0, "", false
	for j := i; j < len(src); j++ {
		child, ok := n.next[src[j]]
		if !ok {
			break
		}
		n = child
		if n.terminal && boundaryAfter(src, j+1) {
			bestEnd, best, found = j+1, n.value, true
		}
	}
	return bestEnd, best, found
}

func isNameByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-'
}

// boundaryBefore reports whether a reference can start at src[i]. After a
// slash the reference must be anchored: only "." or ".." segments, or
// nothing, may sit between it and the start of the path, so "app.js" matches
// in "/app.js" and "../app.js" but not in "other/app.js".
func boundaryBefore(src []byte, i int) bool {
	if i == 0 {
		return true
	}
	if c := src[i-1]; c != '/' {
		return !isNameByte(c) && c != '.'
	}
	for j := i - 1; ; {
		k := j
		for k > 0 && src[k-1] == '.' {
			k--
		}
		dots := j - k
		if dots > 2 {
			return false
		}
		if k == 0 {
			return true
		}
		if src[k-1] != '/' {
			return !isNameByte(src[k-1])
		}
		if dots == 0 {
			return false
		}
		j = k - 1
	}
}

func boundaryAfter(src []byte, j int) bool {
	if j >= len(src) {
		return true
	}
	c := src[j]
	if isNameByte(c) {
		return false
	}
	if c == '.' && j+1 < len(src) && isNameByte(src[j+1]) {
		return false
	}
	return true
}
