package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		input string
		want  string
		len   int
	}{
		{"/", "/", 0},
		{"/a", "/a", 1},
		{"/a/b[2]/c", "/a/b[2]/c", 3},
		{"/a[1]/b/", "/a/b", 2},
		{"/jcr:system/mode:locks", "/jcr:system/mode:locks", 2},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, err := ParsePath(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.String())
			assert.Equal(t, tt.len, p.Len())
		})
	}
}

func TestParsePathErrors(t *testing.T) {
	for _, input := range []string{"", "a/b", "/a//b", "/a[0]", "/a[x]", "/[2]"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParsePath(input)
			assert.Error(t, err)
		})
	}
}

func TestPathChildDoesNotAlias(t *testing.T) {
	base := Path{{Name: "a", Index: 1}}
	left := base.Child(Segment{Name: "l", Index: 1})
	right := base.Child(Segment{Name: "r", Index: 1})

	assert.Equal(t, "/a/l", left.String())
	assert.Equal(t, "/a/r", right.String())
	assert.Equal(t, "/a", base.String())
}

func TestNewNameNormalizes(t *testing.T) {
	assert.Equal(t, NewName("\u00e9"), NewName("e\u0301"))
}

func TestParseNodeKey(t *testing.T) {
	key := NodeKey{Source: "src", Workspace: "default", Identifier: "a:b"}
	parsed, err := ParseNodeKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	_, err = ParseNodeKey("nope")
	assert.Error(t, err)
}

func TestPathRelations(t *testing.T) {
	p, err := ParsePath("/a/b[2]/c")
	require.NoError(t, err)
	ab, err := ParsePath("/a/b[2]")
	require.NoError(t, err)

	assert.True(t, p.Parent().Equal(ab))
	assert.True(t, RootPath.Parent().IsRoot())
	assert.True(t, ab.IsAncestorOf(p))
	assert.True(t, RootPath.IsAncestorOf(p))
	assert.False(t, p.IsAncestorOf(p))
	assert.False(t, p.IsAncestorOf(ab))

	withIndex := Path{{Name: "a", Index: 1}}
	noIndex := Path{{Name: "a"}}
	assert.True(t, withIndex.Equal(noIndex))
}

func TestPathResolve(t *testing.T) {
	base, err := ParsePath("/a/b")
	require.NoError(t, err)

	tests := []struct {
		rel  string
		want string
	}{
		{".", "/a/b"},
		{"c", "/a/b/c"},
		{"../c[2]", "/a/c[2]"},
		{"../..", "/"},
	}
	for _, tt := range tests {
		got, err := base.Resolve(tt.rel)
		require.NoError(t, err, tt.rel)
		assert.Equal(t, tt.want, got.String(), tt.rel)
	}

	_, err = base.Resolve("../../..")
	assert.Error(t, err)
	assert.Equal(t, "/a/b", base.String(), "Resolve must not modify the receiver")
}
