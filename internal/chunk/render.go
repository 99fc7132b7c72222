package chunk

import (
	"bytes"
	"sort"

	"github.com/roach88/assetpack/internal/ir"
)

// Header opens every script chunk. Chunks may load in any order; each one
// registers into the same module table.
const Header = "var " + ir.ModulesGlobal + " = window." + ir.ModulesGlobal +
	" = window." + ir.ModulesGlobal + " || {};\n"

// Runtime defines the module loader. It is rendered once, into the shared
// chunk, which pages load before their entry chunk.
const Runtime = `(function () {
  var cache = {};
  function load(id) {
    if (cache[id]) {
      return cache[id].exports;
    }
    var def = ` + ir.ModulesGlobal + `[id];
    if (!def) {
      throw new Error("module not found: " + id);
    }
    var module = cache[id] = { id: id, exports: {} };
    def[0].call(module.exports, module, module.exports, function (request) {
      var dep = def[1][request];
      return load(dep === undefined ? request : dep);
    });
    return module.exports;
  }
  window.` + ir.RequireFunc + ` = load;
})();
`

// Module is one module as rendered into a chunk.
type Module struct {
	// ID is the key the module registers under.
	ID string

	Content []byte

	// Deps maps each request the module makes to the id it loads.
	Deps map[string]string
}

// Render returns the bytes of a script chunk. Modules are written in id
// order. The shared chunk carries the runtime; an entry chunk ends by
// requiring entryID. Output depends only on the arguments.
func Render(kind ir.ChunkKind, modules []Module, entryID string) []byte {
	mods := append([]Module(nil), modules...)
	sort.Slice(mods, func(i, j int) bool { return mods[i].ID < mods[j].ID })

	var b bytes.Buffer
	b.WriteString(Header)
	if kind == ir.ChunkShared {
		b.WriteString(Runtime)
	}
	for _, m := range mods {
		writeModule(&b, m)
	}
	if kind == ir.ChunkEntry && entryID != "" {
		b.WriteString(ir.RequireFunc + "(" + ir.Quote(entryID) + ");\n")
	}
	return b.Bytes()
}

func writeModule(b *bytes.Buffer, m Module) {
	b.WriteString(ir.ModulesGlobal + "[" + ir.Quote(m.ID) + "] = [function (module, exports, require) {\n")
	b.Write(m.Content)
	if len(m.Content) > 0 && m.Content[len(m.Content)-1] != '\n' {
		b.WriteByte('\n')
	}
	b.WriteString("}, ")
	writeDeps(b, m.Deps)
	b.WriteString("];\n")
}

func writeDeps(b *bytes.Buffer, deps map[string]string) {
	keys := make([]string, 0, len(deps))
	for k := range deps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ir.Quote(k))
		b.WriteString(": ")
		b.WriteString(ir.Quote(deps[k]))
	}
	b.WriteByte('}')
}
