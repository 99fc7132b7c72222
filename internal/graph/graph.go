// Package graph builds the module dependency graph reachable from a set of
// root modules.
package graph

import (
	"sort"

	"github.com/roach88/assetpack/internal/ir"
)

// Graph is the set of modules reachable from Roots.
//
// A Graph is produced by one Build call and is not mutated afterwards.
type Graph struct {
	// Roots are the root module paths in the order given to Build.
	Roots []string

	// Modules maps module path to module.
	Modules map[string]*ir.SourceModule

	// Deps maps module path to its resolved dependencies in request order.
	Deps map[string][]ir.Dependency
}

func newGraph(roots []string) *Graph {
	return &Graph{
		Roots:   append([]string(nil), roots...),
		Modules: make(map[string]*ir.SourceModule),
		Deps:    make(map[string][]ir.Dependency),
	}
}

// Reachable returns every module path reachable from root, root included.
// External edges are not followed.
func (g *Graph) Reachable(root string) map[string]bool {
	seen := make(map[string]bool)
	if _, ok := g.Modules[root]; !ok {
		return seen
	}
	stack := []string{root}
	seen[root] = true
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range g.Deps[p] {
			if d.External || seen[d.Path] {
				continue
			}
			if _, ok := g.Modules[d.Path]; !ok {
				continue
			}
			seen[d.Path] = true
			stack = append(stack, d.Path)
		}
	}
	return seen
}

// Sorted returns all modules ordered by id.
func (g *Graph) Sorted() []*ir.SourceModule {
	mods := make([]*ir.SourceModule, 0, len(g.Modules))
	for _, m := range g.Modules {
		mods = append(mods, m)
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i].ID < mods[j].ID })
	return mods
}

// Dependents returns the reverse edges: module path to the paths of the
// modules that require it.
func (g *Graph) Dependents() map[string][]string {
	rev := make(map[string][]string)
	for from, deps := range g.Deps {
		for _, d := range deps {
			if !d.External {
				rev[d.Path] = append(rev[d.Path], from)
			}
		}
	}
	for _, froms := range rev {
		sort.Strings(froms)
	}
	return rev
}

// DepMap returns request to module id for the module at path. External
// requests map to the request itself, the name the vendor chunk registers.
func (g *Graph) DepMap(path string) map[string]string {
	deps := g.Deps[path]
	if len(deps) == 0 {
		return nil
	}
	out := make(map[string]string, len(deps))
	for _, d := range deps {
		if d.External {
			out[d.Request] = d.Request
			continue
		}
		if m, ok := g.Modules[d.Path]; ok {
			out[d.Request] = m.ID
		}
	}
	return out
}
