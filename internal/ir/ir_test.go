package ir

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModuleID(t *testing.T) {
	root := filepath.FromSlash("/project")
	tests := []struct {
		path string
		want string
	}{
		{"/project/src/home/index.js", "src/home/index.js"},
		{"/project/node_modules/lodash/index.js", "node_modules/lodash/index.js"},
		{"/elsewhere/x.js", "/elsewhere/x.js"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, ModuleID(root, filepath.FromSlash(tt.path)))
		})
	}
}

func TestHelperNamesSorted(t *testing.T) {
	m := &SourceModule{Helpers: map[string]string{"_extends": "x", "_classCallCheck": "y"}}
	assert.Equal(t, []string{"_classCallCheck", "_extends"}, m.HelperNames())
}

func TestArtifactHash_DomainSeparated(t *testing.T) {
	data := []byte("console.log(1)")
	assert.NotEqual(t, Digest(data), ArtifactHash(data))
	assert.Equal(t, ArtifactHash(data), ArtifactHash([]byte("console.log(1)")))
	assert.Len(t, VersionToken(data), VersionLength)
	assert.Equal(t, ArtifactHash(data)[:VersionLength], VersionToken(data))
}

func TestBuildError_Is(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("stage: %w", NewTransformError("/p/a.js", "unexpected token", "1 | x(", cause))

	assert.True(t, IsTransformError(err))
	assert.False(t, IsBundleError(err))
	assert.Equal(t, ErrTransform, KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "TRANSFORM: unexpected token (/p/a.js): boom")
}

func TestBuildError_Joined(t *testing.T) {
	err := errors.Join(
		NewBundleError("/p/a.js", "./missing", nil),
		NewIOError("write", "/p/dist/vendor.js", errors.New("disk full")),
	)
	assert.True(t, IsBundleError(err))
	assert.True(t, IsIOError(err))
	assert.False(t, IsConfigError(err))
	assert.False(t, IsWatchError(nil))
}
