package ir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"fathom/internal/source"
	"fathom/internal/types"
)

func retZero(in *types.Interner, b *Block) {
	b.Append(&Instruction{
		Op:  OpRet,
		Ret: RetInstr{Val: NewUintConstant(0, in.Builtins().U64, source.Span{})},
	})
}

func TestValidateAcceptsMinimalFunction(t *testing.T) {
	in := types.NewInterner()
	ctx := NewContext()
	f := ctx.NewFunction("main", in.Builtins().U64, source.Span{})
	retZero(in, f.Entry)
	require.NoError(t, Validate(f))
	require.NoError(t, ValidateContext(ctx))
}

func TestValidateRejectsUnterminatedBlock(t *testing.T) {
	in := types.NewInterner()
	ctx := NewContext()
	f := ctx.NewFunction("main", in.Builtins().U64, source.Span{})
	f.Entry.Append(&Instruction{Op: OpNop})
	err := Validate(f)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unterminated")
}

func TestValidateRejectsEmptyBlock(t *testing.T) {
	in := types.NewInterner()
	ctx := NewContext()
	f := ctx.NewFunction("main", in.Builtins().U64, source.Span{})
	retZero(in, f.Entry)
	f.NewBlock("dangling")
	err := Validate(f)
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty block")
}

func TestValidateRejectsMidBlockTerminator(t *testing.T) {
	in := types.NewInterner()
	ctx := NewContext()
	f := ctx.NewFunction("main", in.Builtins().U64, source.Span{})
	retZero(in, f.Entry)
	retZero(in, f.Entry)
	err := Validate(f)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not in final position")
}

func TestValidateRejectsForeignBranchTarget(t *testing.T) {
	in := types.NewInterner()
	ctx := NewContext()
	f := ctx.NewFunction("main", in.Builtins().U64, source.Span{})
	g := ctx.NewFunction("other", in.Builtins().U64, source.Span{})
	retZero(in, g.Entry)

	f.Entry.Append(&Instruction{Op: OpBr, Br: BrInstr{To: g.Entry}})
	err := Validate(f)
	require.Error(t, err)
	require.Contains(t, err.Error(), "foreign block")
}

func TestValidateRejectsBranchArgArityMismatch(t *testing.T) {
	in := types.NewInterner()
	u64 := in.Builtins().U64
	ctx := NewContext()
	f := ctx.NewFunction("main", u64, source.Span{})
	merge := f.NewBlock("merge")
	arg := merge.NewBlockArg(u64, source.Span{})
	merge.Append(&Instruction{Op: OpRet, Ret: RetInstr{Val: arg}})

	f.Entry.Append(&Instruction{Op: OpBr, Br: BrInstr{To: merge}})
	err := Validate(f)
	require.Error(t, err)
	require.Contains(t, err.Error(), "passes 0 args, block declares 1")
}

func TestValidateRejectsUseBeforeDef(t *testing.T) {
	in := types.NewInterner()
	u64 := in.Builtins().U64
	ctx := NewContext()
	f := ctx.NewFunction("main", u64, source.Span{})

	late := f.NewBlock("late")
	def := late.Append(&Instruction{
		Op: OpLoad, Type: u64,
		Load: LoadInstr{Src: NewUintConstant(0, in.Pointer(u64), source.Span{})},
	})
	retZero(in, late)

	// The entry block reads a value only defined in a later block.
	f.Entry.Append(&Instruction{Op: OpRet, Ret: RetInstr{Val: def}})
	err := Validate(f)
	require.Error(t, err)
	require.Contains(t, err.Error(), "before its definition")
}

func TestValidateAcceptsBlockArgFlow(t *testing.T) {
	in := types.NewInterner()
	u64 := in.Builtins().U64
	bool_ := in.Builtins().Bool
	ctx := NewContext()
	f := ctx.NewFunction("main", u64, source.Span{})

	merge := f.NewBlock("merge")
	res := merge.NewBlockArg(u64, source.Span{})
	merge.Append(&Instruction{Op: OpRet, Ret: RetInstr{Val: res}})

	cond := NewBoolConstant(true, bool_, source.Span{})
	one := NewUintConstant(1, u64, source.Span{})
	two := NewUintConstant(2, u64, source.Span{})
	f.Entry.Append(&Instruction{Op: OpCbr, Cbr: CbrInstr{
		Cond: cond,
		True: merge, TrueArgs: []*Value{one},
		False: merge, FalseArgs: []*Value{two},
	}})
	require.NoError(t, Validate(f))
}

func TestDumpListsBlocksInLayoutOrder(t *testing.T) {
	in := types.NewInterner()
	u64 := in.Builtins().U64
	ctx := NewContext()
	f := ctx.NewFunction("main", u64, source.Span{})
	next := f.NewBlock("next")
	f.Entry.Append(&Instruction{Op: OpBr, Br: BrInstr{To: next}})
	retZero(in, next)

	var sb strings.Builder
	Dump(&sb, f, in)
	out := sb.String()
	require.Contains(t, out, "main")
	entryAt := strings.Index(out, "entry")
	nextAt := strings.Index(out, "next")
	require.True(t, entryAt >= 0 && nextAt > entryAt)
}

func TestRemoveBlockDetaches(t *testing.T) {
	in := types.NewInterner()
	ctx := NewContext()
	f := ctx.NewFunction("main", in.Builtins().U64, source.Span{})
	retZero(in, f.Entry)
	b := f.NewBlock("orphan")
	require.Len(t, f.Blocks, 2)
	f.RemoveBlock(b)
	require.Len(t, f.Blocks, 1)
	require.NoError(t, Validate(f))
}
