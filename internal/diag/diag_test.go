package diag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"fathom/internal/source"
)

func span(file source.FileID, start uint32) source.Span {
	return source.Span{File: file, Start: start, End: start + 1}
}

func TestBagRespectsCap(t *testing.T) {
	b := NewBag(2)
	require.True(t, b.Add(NewError(GenBreakOutsideLoop, span(1, 0), "a")))
	require.True(t, b.Add(NewError(GenBreakOutsideLoop, span(1, 4), "b")))
	require.False(t, b.Add(NewError(GenBreakOutsideLoop, span(1, 8), "dropped")))
	require.Equal(t, 2, b.Len())
}

func TestBagHasErrors(t *testing.T) {
	b := NewBag(8)
	require.False(t, b.HasErrors())
	b.Add(New(SevWarning, UnknownCode, span(1, 0), "watch out"))
	require.False(t, b.HasErrors())
	b.Add(NewError(GenMissingMain, span(1, 0), "no main"))
	require.True(t, b.HasErrors())
	b = NewBag(8)
	b.Add(NewBug(IceUseBeforeDef, span(1, 0), "broken"))
	require.True(t, b.HasErrors(), "internal errors count as errors")
}

func TestBagSortIsPositional(t *testing.T) {
	b := NewBag(8)
	b.Add(NewError(GenStorageArray, span(2, 0), "third"))
	b.Add(NewError(GenStorageArray, span(1, 9), "second"))
	b.Add(NewError(GenStorageArray, span(1, 3), "first"))
	b.Sort()
	items := b.Items()
	require.Equal(t, "first", items[0].Message)
	require.Equal(t, "second", items[1].Message)
	require.Equal(t, "third", items[2].Message)
}

func TestBagMergeRespectsCap(t *testing.T) {
	dst := NewBag(2)
	dst.Add(NewError(GenMissingMain, span(1, 0), "kept"))
	src := NewBag(8)
	src.Add(NewError(GenStorageArray, span(1, 1), "moved"))
	src.Add(NewError(GenStorageArray, span(1, 2), "dropped"))
	dst.Merge(src)
	require.Equal(t, 2, dst.Len())
	require.Equal(t, "moved", dst.Items()[1].Message)
}

func TestCodeBands(t *testing.T) {
	require.False(t, GenBreakOutsideLoop.IsInternal())
	require.False(t, GenUnknownAsmOpcode.IsInternal())
	require.True(t, IceUnknownVariable.IsInternal())
	require.Equal(t, "F7001", GenBreakOutsideLoop.String())
	require.Equal(t, "F9006", IceUseBeforeDef.String())
}

func TestRenderFormat(t *testing.T) {
	fs := source.NewFileSet()
	id, err := fs.AddVirtual("main.fth", []byte("contract;\nlet x = 1\n"))
	require.NoError(t, err)

	b := NewBag(8)
	b.Add(NewError(GenBreakOutsideLoop, source.Span{File: id, Start: 10, End: 13}, "break outside of a loop").
		WithNote(source.Span{File: id, Start: 0, End: 8}, "declared here"))

	var sb strings.Builder
	Render(&sb, b, fs, RenderOpts{})
	out := sb.String()
	require.Contains(t, out, "main.fth:2:1: error[F7001]: break outside of a loop")
	require.Contains(t, out, "  main.fth:1:1: note: declared here")
}

func TestRenderMarksBugs(t *testing.T) {
	fs := source.NewFileSet()
	id, err := fs.AddVirtual("main.fth", []byte("x"))
	require.NoError(t, err)

	b := NewBag(8)
	b.Add(NewBug(IceUnterminatedBlock, span(id, 0), "block fell off the end"))

	var sb strings.Builder
	Render(&sb, b, fs, RenderOpts{})
	require.Contains(t, sb.String(), "internal compiler error[F9005]")
	require.Contains(t, sb.String(), "please report it")
}
