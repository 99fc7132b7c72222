// Package chunk partitions a module graph into output chunks and renders
// them.
//
// Every module reachable from the entries belongs to exactly one chunk: the
// shared chunk when two or more entries reach it, otherwise the chunk of the
// single entry that does. Assignment uses reachability sets, so traversal
// order never influences the result.
package chunk

import (
	"sort"

	"github.com/roach88/assetpack/internal/graph"
	"github.com/roach88/assetpack/internal/ir"
)

// Assign returns one entry chunk per entry, in entry order, followed by the
// shared chunk at sharedPath. The shared chunk is always present, possibly
// empty, since it carries the runtime.
func Assign(g *graph.Graph, entries []ir.Entry, sharedPath string) []ir.Chunk {
	owners := make(map[string][]int)
	for i, e := range entries {
		for p := range g.Reachable(e.Source) {
			owners[p] = append(owners[p], i)
		}
	}

	perEntry := make([][]string, len(entries))
	var shared []string
	for p, idx := range owners {
		if len(idx) >= 2 {
			shared = append(shared, p)
		} else {
			perEntry[idx[0]] = append(perEntry[idx[0]], p)
		}
	}

	chunks := make([]ir.Chunk, 0, len(entries)+1)
	for i, e := range entries {
		chunks = append(chunks, ir.Chunk{
			Kind:    ir.ChunkEntry,
			Modules: sortByID(g, perEntry[i]),
			Output:  e.Output,
			Entry:   e.Source,
		})
	}
	chunks = append(chunks, ir.Chunk{
		Kind:    ir.ChunkShared,
		Modules: sortByID(g, shared),
		Output:  sharedPath,
	})
	return chunks
}

func sortByID(g *graph.Graph, paths []string) []string {
	out := append([]string{}, paths...)
	sort.Slice(out, func(i, j int) bool { return g.Modules[out[i]].ID < g.Modules[out[j]].ID })
	return out
}

// Modules converts chunk module paths into renderable modules.
func Modules(g *graph.Graph, c ir.Chunk) []Module {
	mods := make([]Module, 0, len(c.Modules))
	for _, p := range c.Modules {
		m := g.Modules[p]
		mods = append(mods, Module{ID: m.ID, Content: m.Content, Deps: g.DepMap(p)})
	}
	return mods
}

// RenderChunk renders c from g.
func RenderChunk(g *graph.Graph, c ir.Chunk) []byte {
	var entryID string
	if c.Kind == ir.ChunkEntry {
		if m, ok := g.Modules[c.Entry]; ok {
			entryID = m.ID
		}
	}
	return Render(c.Kind, Modules(g, c), entryID)
}
