package extract

import (
	"bytes"
	"strings"
)

// block is one marker-delimited region found in a chunk.
type block struct {
	key  string
	body string
}

// cutBlocks removes every region opened by a line starting with marker and
// closed by an end-marker line, replacing it with replace(key, body).
// Unterminated regions are left untouched.
func cutBlocks(content []byte, marker, end string, replace func(key, body string) string) ([]byte, []block) {
	if !bytes.Contains(content, []byte(marker)) {
		return content, nil
	}
	lines := strings.SplitAfter(string(content), "\n")
	var out strings.Builder
	var found []block
	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(trimmed, marker) {
			out.WriteString(lines[i])
			continue
		}
		closeAt := -1
		for j := i + 1; j < len(lines); j++ {
			if strings.TrimSpace(lines[j]) == end {
				closeAt = j
				break
			}
		}
		if closeAt < 0 {
			out.WriteString(lines[i])
			continue
		}
		key := strings.TrimSpace(strings.TrimPrefix(trimmed, marker))
		body := strings.Join(lines[i+1:closeAt], "")
		found = append(found, block{key: key, body: body})
		out.WriteString(replace(key, body))
		i = closeAt
	}
	return []byte(out.String()), found
}
