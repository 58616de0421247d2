package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cubeice/ice/internal/engine"
)

func TestSetExclude(t *testing.T) {
	set, err := New(zap.NewNop(),
		append([]string{"*.tmp", "build/cache"}, Builtin...),
		[]string{`size > 1000 && name.endsWith(".log")`, `dir && name == "node_modules"`},
	)
	require.NoError(t, err)

	tests := []struct {
		name string
		item engine.Item
		want bool
	}{
		{name: "builtin file", item: engine.Item{Path: "photos/.DS_Store"}, want: true},
		{name: "builtin dir", item: engine.Item{Path: "__MACOSX", IsDir: true}, want: true},
		{name: "glob on base name", item: engine.Item{Path: "a/b/scratch.tmp"}, want: true},
		{name: "glob with slash on full path", item: engine.Item{Path: "build/cache", IsDir: true}, want: true},
		{name: "slash glob does not match elsewhere", item: engine.Item{Path: "src/build/cache", IsDir: true}, want: false},
		{name: "large log", item: engine.Item{Path: "var/app.log", Size: 5000}, want: true},
		{name: "small log", item: engine.Item{Path: "var/app.log", Size: 10}, want: false},
		{name: "node_modules dir", item: engine.Item{Path: "web/node_modules", IsDir: true}, want: true},
		{name: "node_modules file", item: engine.Item{Path: "web/node_modules"}, want: false},
		{name: "regular file", item: engine.Item{Path: "docs/readme.md", Size: 2048}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, set.Exclude(tt.item))
		})
	}
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name        string
		patterns    []string
		expressions []string
		wantErr     string
	}{
		{name: "bad glob", patterns: []string{"[unclosed"}, wantErr: "invalid filter pattern"},
		{name: "bad syntax", expressions: []string{"size >"}, wantErr: "invalid filter expression"},
		{name: "unknown variable", expressions: []string{"owner == 'root'"}, wantErr: "invalid filter expression"},
		{name: "not a bool", expressions: []string{"size + 1"}, wantErr: "must be a bool"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(zap.NewNop(), tt.patterns, tt.expressions)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestEmpty(t *testing.T) {
	var nilSet *Set
	assert.True(t, nilSet.Empty())
	assert.False(t, nilSet.Exclude(engine.Item{Path: ".DS_Store"}))

	set, err := New(zap.NewNop(), []string{"", ""}, nil)
	require.NoError(t, err)
	assert.True(t, set.Empty())
}
