package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddVirtualAssignsSequentialIDs(t *testing.T) {
	fs := NewFileSet()
	a, err := fs.AddVirtual("a.fth", []byte("x"))
	require.NoError(t, err)
	b, err := fs.AddVirtual("b.fth", []byte("y"))
	require.NoError(t, err)
	require.NotEqual(t, NoFileID, a)
	require.NotEqual(t, a, b)
	require.Equal(t, 2, fs.Len())
	require.Equal(t, "b.fth", fs.Get(b).Path)
}

func TestDuplicatePathRejected(t *testing.T) {
	fs := NewFileSet()
	a, err := fs.AddVirtual("a.fth", []byte("x"))
	require.NoError(t, err)
	dup, err := fs.AddVirtual("a.fth", []byte("other"))
	require.Error(t, err)
	require.Equal(t, a, dup, "the error carries the existing id")
}

func TestGetUnknownID(t *testing.T) {
	fs := NewFileSet()
	require.Nil(t, fs.Get(NoFileID))
	require.Nil(t, fs.Get(7))
}

func TestPositionResolution(t *testing.T) {
	fs := NewFileSet()
	id, err := fs.AddVirtual("m.fth", []byte("ab\ncdef\n\nx"))
	require.NoError(t, err)

	cases := []struct {
		offset uint32
		line   uint32
		col    uint32
	}{
		{0, 1, 1},
		{1, 1, 2},
		{2, 1, 3}, // the newline belongs to line 1
		{3, 2, 1},
		{6, 2, 4},
		{8, 3, 1}, // empty line
		{9, 4, 1},
	}
	for _, c := range cases {
		pos, ok := fs.Position(id, c.offset)
		require.True(t, ok, "offset %d", c.offset)
		require.Equal(t, LineCol{Line: c.line, Col: c.col}, pos, "offset %d", c.offset)
	}

	// One past the end is allowed (end-of-file spans); beyond is not.
	_, ok := fs.Position(id, 10)
	require.True(t, ok)
	_, ok = fs.Position(id, 11)
	require.False(t, ok)
}

func TestLoadReadsDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unit.fth")
	require.NoError(t, os.WriteFile(path, []byte("contract"), 0o644))

	fs := NewFileSet()
	id, err := fs.Load(path)
	require.NoError(t, err)
	require.Equal(t, []byte("contract"), fs.Get(id).Content)

	_, err = fs.Load(filepath.Join(t.TempDir(), "absent.fth"))
	require.Error(t, err)
}

func TestSpanCover(t *testing.T) {
	a := Span{File: 1, Start: 4, End: 8}
	b := Span{File: 1, Start: 2, End: 6}
	require.Equal(t, Span{File: 1, Start: 2, End: 8}, a.Cover(b))

	other := Span{File: 2, Start: 0, End: 100}
	require.Equal(t, a, a.Cover(other), "cross-file spans stay put")

	require.True(t, Span{Start: 3, End: 3}.Empty())
	require.Equal(t, uint32(4), a.Len())
}
