package engine

import (
	"strings"
	"testing"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nameFilter []string

func (f nameFilter) Exclude(item Item) bool {
	return lo.ContainsBy(f, func(name string) bool {
		return strings.HasSuffix(item.Path, name)
	})
}

func newSourceTree(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/docs/readme.md", []byte("readme"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/src/docs/sub/deep.txt", []byte("deep"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/src/docs/.DS_Store", []byte("junk"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/src/docs/cache/blob", []byte("blob"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/src/single.txt", []byte("single"), 0o644))
	return fs
}

func TestExpandSources(t *testing.T) {
	fs := newSourceTree(t)

	items, err := ExpandSources(fs, []string{"/src/docs", "/src/single.txt"}, nameFilter{".DS_Store", "cache"})
	require.NoError(t, err)

	paths := lo.Map(items, func(item Item, _ int) string { return item.Path })
	assert.Equal(t, []string{
		"docs",
		"docs/readme.md",
		"docs/sub",
		"docs/sub/deep.txt",
		"single.txt",
	}, paths)

	single := items[len(items)-1]
	assert.False(t, single.IsDir)
	assert.Equal(t, int64(6), single.Size)
	assert.Equal(t, "/src/single.txt", single.Source)
	assert.Equal(t, int64(16), TotalSize(items))
}

func TestExpandSourcesDirectoriesFirst(t *testing.T) {
	fs := newSourceTree(t)

	items, err := ExpandSources(fs, []string{"/src/docs"}, nil)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, item := range items {
		if i := strings.LastIndex(item.Path, "/"); i > 0 {
			assert.True(t, seen[item.Path[:i]], "parent of %s emitted after it", item.Path)
		}
		seen[item.Path] = true
	}
}

func TestExpandSourcesMissing(t *testing.T) {
	_, err := ExpandSources(afero.NewMemMapFs(), []string{"/nope"}, nil)
	assert.ErrorContains(t, err, "failed to walk source /nope")
}
