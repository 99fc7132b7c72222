package resolve

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetpack/internal/testutil"
)

func TestResolve(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"src/home/index.js":                  "",
		"src/util/format.js":                 "",
		"src/util/index.js":                  "",
		"src/widgets/index.jsx":              "",
		"src/styles/app.css":                 "",
		"node_modules/lodash/package.json":   `{"main": "lodash.js"}`,
		"node_modules/lodash/lodash.js":      "",
		"node_modules/lodash/fp.js":          "",
		"node_modules/noext/package.json":    `{"main": "lib/main"}`,
		"node_modules/noext/lib/main.js":     "",
		"node_modules/plain/index.js":        "",
		"node_modules/@scope/pkg/index.js":   "",
		"node_modules/badpkg/package.json":   `{not json`,
		"node_modules/badpkg/index.js":       "",
		"vendor_modules/extra/index.js":      "",
	})
	r := New(filepath.Join(root, "node_modules"), filepath.Join(root, "vendor_modules"))
	from := filepath.Join(root, "src", "home")

	tests := []struct {
		request string
		want    string
	}{
		{"../util/format", "src/util/format.js"},
		{"../util/format.js", "src/util/format.js"},
		{"../util", "src/util/index.js"},
		{"../widgets", "src/widgets/index.jsx"},
		{"../styles/app.css", "src/styles/app.css"},
		{"./index", "src/home/index.js"},
		{"lodash", "node_modules/lodash/lodash.js"},
		{"lodash/fp", "node_modules/lodash/fp.js"},
		{"noext", "node_modules/noext/lib/main.js"},
		{"plain", "node_modules/plain/index.js"},
		{"@scope/pkg", "node_modules/@scope/pkg/index.js"},
		{"badpkg", "node_modules/badpkg/index.js"},
		{"extra", "vendor_modules/extra/index.js"},
	}
	for _, tt := range tests {
		t.Run(tt.request, func(t *testing.T) {
			got, err := r.Resolve(from, tt.request)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(root, filepath.FromSlash(tt.want)), got)
		})
	}
}

func TestResolve_NotFound(t *testing.T) {
	root := t.TempDir()
	r := New(filepath.Join(root, "node_modules"))
	for _, req := range []string{"./missing", "missing-pkg", ""} {
		_, err := r.Resolve(root, req)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound), req)
	}
}

func TestIsBare(t *testing.T) {
	assert.True(t, IsBare("lodash"))
	assert.True(t, IsBare("@scope/pkg"))
	assert.False(t, IsBare("./a"))
	assert.False(t, IsBare("../a"))
	assert.False(t, IsBare("/abs/a"))
	assert.False(t, IsBare(""))
}

func TestPackageName(t *testing.T) {
	assert.Equal(t, "lodash", PackageName("lodash"))
	assert.Equal(t, "lodash", PackageName("lodash/fp"))
	assert.Equal(t, "@scope/pkg", PackageName("@scope/pkg/deep/x"))
}
