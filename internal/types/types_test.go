package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInternIsStable(t *testing.T) {
	in := NewInterner()
	u64 := in.Builtins().U64
	require.Equal(t, in.Pointer(u64), in.Pointer(u64))
	require.Equal(t, in.Array(u64, 3), in.Array(u64, 3))
	require.NotEqual(t, in.Array(u64, 3), in.Array(u64, 4))
	require.Equal(t, u64, in.Intern(Type{Kind: KindUint, Width: Width64}))
}

func TestInvalidKindMapsToNoTypeID(t *testing.T) {
	in := NewInterner()
	require.Equal(t, NoTypeID, in.Intern(Type{Kind: KindInvalid}))
	_, ok := in.Lookup(NoTypeID)
	require.False(t, ok)
}

func TestStructIdentityIsStructural(t *testing.T) {
	in := NewInterner()
	u64 := in.Builtins().U64
	fields := []Field{{Name: "a", Type: u64}, {Name: "b", Type: in.Builtins().Bool}}
	a := in.Struct("point", fields)
	b := in.Struct("point", fields)
	require.Equal(t, a, b)

	c := in.Struct("point", []Field{{Name: "a", Type: u64}})
	require.NotEqual(t, a, c)

	info, ok := in.AggInfo(a)
	require.True(t, ok)
	require.Equal(t, "point", info.Name)
	require.Len(t, info.Fields, 2)
}

func TestScalarSizes(t *testing.T) {
	in := NewInterner()
	bt := in.Builtins()
	cases := []struct {
		id    TypeID
		bytes uint64
		words uint64
	}{
		{bt.Unit, 0, 0},
		{bt.Bool, 1, 1},
		{bt.U8, 1, 1},
		{bt.U16, 8, 1},
		{bt.U64, 8, 1},
		{bt.B256, 32, 4},
		{in.Pointer(bt.U64), 8, 1},
		{in.RawSlice(bt.U8), 16, 2},
		{in.StringType(5), 8, 1},
		{in.StringType(9), 16, 2},
		{in.Array(bt.B256, 2), 64, 8},
	}
	for _, c := range cases {
		b, err := in.SizeInBytes(c.id)
		require.NoError(t, err, in.String(c.id))
		require.Equal(t, c.bytes, b, in.String(c.id))
		w, err := in.SizeInWords(c.id)
		require.NoError(t, err)
		require.Equal(t, c.words, w, in.String(c.id))
	}
}

func TestStructLayoutIsWordAligned(t *testing.T) {
	in := NewInterner()
	bt := in.Builtins()
	// The bool still claims a full word inside an aggregate.
	s := in.Struct("mix", []Field{
		{Name: "flag", Type: bt.Bool},
		{Name: "hash", Type: bt.B256},
		{Name: "count", Type: bt.U64},
	})

	size, err := in.SizeInBytes(s)
	require.NoError(t, err)
	require.Equal(t, uint64(8+32+8), size)

	off, ty, err := in.FieldOffsetInWords(s, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(0), off)
	require.Equal(t, bt.Bool, ty)

	off, ty, err = in.FieldOffsetInWords(s, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), off)
	require.Equal(t, bt.B256, ty)

	off, ty, err = in.FieldOffsetInWords(s, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(5), off)
	require.Equal(t, bt.U64, ty)

	_, _, err = in.FieldOffsetInWords(s, 3)
	require.Error(t, err)
	_, _, err = in.FieldOffsetInWords(bt.U64, 0)
	require.Error(t, err)
}

func TestUnionSizeIsTagPlusWidestVariant(t *testing.T) {
	in := NewInterner()
	bt := in.Builtins()
	u := in.Union("either", []Field{
		{Name: "word", Type: bt.U64},
		{Name: "hash", Type: bt.B256},
	})
	size, err := in.SizeInBytes(u)
	require.NoError(t, err)
	require.Equal(t, uint64(8+32), size)
}

func TestCopyClass(t *testing.T) {
	in := NewInterner()
	bt := in.Builtins()
	require.True(t, in.IsCopyType(bt.Unit))
	require.True(t, in.IsCopyType(bt.Bool))
	require.True(t, in.IsCopyType(bt.U64))
	require.True(t, in.IsCopyType(in.Pointer(bt.B256)))

	require.False(t, in.IsCopyType(bt.B256))
	require.False(t, in.IsCopyType(in.StringType(4)))
	require.False(t, in.IsCopyType(in.Array(bt.U64, 2)))

	s := in.Struct("s", []Field{{Name: "x", Type: bt.U64}})
	require.False(t, in.IsCopyType(s))
	require.True(t, in.IsAggregate(s))
	require.False(t, in.IsAggregate(bt.U64))
}

func TestTypeParamRoundTrip(t *testing.T) {
	in := NewInterner()
	tp := in.TypeParam(2)
	tt, ok := in.Lookup(tp)
	require.True(t, ok)
	require.Equal(t, KindTypeParam, tt.Kind)
	require.Equal(t, uint32(2), tt.Len)
	require.Equal(t, tp, in.TypeParam(2))
	require.NotEqual(t, tp, in.TypeParam(3))
}
