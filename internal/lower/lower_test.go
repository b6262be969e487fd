package lower

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"fathom/internal/ast"
	"fathom/internal/diag"
	"fathom/internal/ir"
	"fathom/internal/source"
	"fathom/internal/types"
)

var nextSpan uint32

// sp hands out distinct spans so call sites stay distinguishable.
func sp() source.Span {
	nextSpan += 4
	return source.Span{File: 1, Start: nextSpan, End: nextSpan + 3}
}

func lit(in *types.Interner, v uint64) *ast.Expr {
	return &ast.Expr{
		Kind: ast.ExprLiteral,
		Type: in.Builtins().U64,
		Span: sp(),
		Data: ast.LiteralData{Kind: ast.LiteralU64, UintValue: v},
	}
}

func boolLit(in *types.Interner, v bool) *ast.Expr {
	return &ast.Expr{
		Kind: ast.ExprLiteral,
		Type: in.Builtins().Bool,
		Span: sp(),
		Data: ast.LiteralData{Kind: ast.LiteralBool, BoolValue: v},
	}
}

func block(in *types.Interner, exprs ...*ast.Expr) *ast.Expr {
	ty := in.Builtins().Unit
	if len(exprs) > 0 {
		ty = exprs[len(exprs)-1].Type
	}
	return &ast.Expr{Kind: ast.ExprBlock, Type: ty, Span: sp(), Data: ast.BlockData{Exprs: exprs}}
}

func ret(in *types.Interner, val *ast.Expr) *ast.Expr {
	return &ast.Expr{Kind: ast.ExprReturn, Type: in.Builtins().Unit, Span: sp(), Data: ast.ReturnData{Value: val}}
}

func revert(in *types.Interner, code uint64) *ast.Expr {
	return &ast.Expr{Kind: ast.ExprRevert, Type: in.Builtins().Unit, Span: sp(), Data: ast.RevertData{Code: lit(in, code)}}
}

func scriptWithMain(body *ast.Expr, ret types.TypeID) *ast.Program {
	return &ast.Program{
		Kind: ast.ProgramScript,
		Entries: []*ast.Function{{
			Name: "main",
			Ret:  ret,
			Body: body,
			Span: sp(),
		}},
	}
}

func lowerProgram(t *testing.T, p *ast.Program, in *types.Interner) (*ir.Context, *diag.Bag) {
	t.Helper()
	bag := diag.NewBag(16)
	ctx := New(in, nil, bag, p).CompileProgram()
	return ctx, bag
}

func dump(in *types.Interner, ctx *ir.Context) string {
	var sb strings.Builder
	ir.DumpContext(&sb, ctx, in)
	return sb.String()
}

func TestLowerDeterminism(t *testing.T) {
	build := func() string {
		in := types.NewInterner()
		nextSpan = 0
		cond := boolLit(in, true)
		body := block(in,
			&ast.Expr{Kind: ast.ExprIf, Type: in.Builtins().U64, Span: sp(), Data: ast.IfData{
				Cond: cond,
				Then: lit(in, 7),
				Else: lit(in, 9),
			}},
		)
		ctx, bag := lowerProgram(t, scriptWithMain(body, in.Builtins().U64), in)
		require.False(t, bag.HasErrors())
		return dump(in, ctx)
	}
	require.Equal(t, build(), build())
}

func TestIfElseMergesThroughBlockArg(t *testing.T) {
	in := types.NewInterner()
	body := &ast.Expr{Kind: ast.ExprIf, Type: in.Builtins().U64, Span: sp(), Data: ast.IfData{
		Cond: boolLit(in, true),
		Then: lit(in, 1),
		Else: lit(in, 2),
	}}
	ctx, bag := lowerProgram(t, scriptWithMain(body, in.Builtins().U64), in)
	require.False(t, bag.HasErrors(), "%v", bag.Items())
	require.Len(t, ctx.Functions, 1)
	require.NoError(t, ir.ValidateContext(ctx))

	f := ctx.Functions[0]
	var merge *ir.Block
	for _, b := range f.Blocks {
		if strings.HasPrefix(b.Label, "merge") {
			merge = b
		}
	}
	require.NotNil(t, merge)
	require.Len(t, merge.Args, 1, "merge block carries the if result")
	require.Equal(t, in.Builtins().U64, merge.Args[0].Type)
}

func TestElselessIfIsUnit(t *testing.T) {
	in := types.NewInterner()
	body := block(in,
		&ast.Expr{Kind: ast.ExprIf, Type: in.Builtins().Unit, Span: sp(), Data: ast.IfData{
			Cond: boolLit(in, false),
			Then: block(in),
		}},
		lit(in, 3),
	)
	ctx, bag := lowerProgram(t, scriptWithMain(body, in.Builtins().U64), in)
	require.False(t, bag.HasErrors())
	require.NoError(t, ir.ValidateContext(ctx))
	for _, b := range ctx.Functions[0].Blocks {
		require.Empty(t, b.Args, "unit if needs no block arguments")
	}
}

func TestWhileBreakBlockPrecedesBody(t *testing.T) {
	in := types.NewInterner()
	loop := &ast.Expr{Kind: ast.ExprWhile, Type: in.Builtins().Unit, Span: sp(), Data: ast.WhileData{
		Cond: boolLit(in, true),
		Body: block(in, &ast.Expr{Kind: ast.ExprBreak, Type: in.Builtins().Unit, Span: sp(), Data: nil}),
	}}
	body := block(in, loop, lit(in, 0))
	ctx, bag := lowerProgram(t, scriptWithMain(body, in.Builtins().U64), in)
	require.False(t, bag.HasErrors(), "%v", bag.Items())
	require.NoError(t, ir.ValidateContext(ctx))

	f := ctx.Functions[0]
	idx := func(prefix string) int {
		for i, b := range f.Blocks {
			if strings.HasPrefix(b.Label, prefix) {
				return i
			}
		}
		return -1
	}
	condIdx, breakIdx, bodyIdx, exitIdx := idx("while_cond"), idx("while_break"), idx("while_body"), idx("while_exit")
	require.True(t, condIdx >= 0 && breakIdx >= 0 && bodyIdx >= 0 && exitIdx >= 0)
	require.Less(t, condIdx, breakIdx)
	require.Less(t, breakIdx, bodyIdx, "break trampoline sits before the body")
	require.Less(t, bodyIdx, exitIdx)

	// The trampoline holds a single branch to the loop exit.
	trampoline := f.Blocks[breakIdx]
	require.Len(t, trampoline.Instrs, 1)
	require.Equal(t, ir.OpBr, trampoline.Instrs[0].Op)
	require.Same(t, f.Blocks[exitIdx], trampoline.Instrs[0].Br.To)
}

func TestBreakOutsideLoopIsUserError(t *testing.T) {
	in := types.NewInterner()
	body := block(in, &ast.Expr{Kind: ast.ExprBreak, Type: in.Builtins().Unit, Span: sp()})
	ctx, bag := lowerProgram(t, scriptWithMain(body, in.Builtins().Unit), in)
	require.True(t, bag.HasErrors())
	require.Equal(t, diag.GenBreakOutsideLoop, bag.Items()[0].Code)
	require.Empty(t, ctx.Functions, "failed function is dropped")
}

func TestContinueOutsideLoopIsUserError(t *testing.T) {
	in := types.NewInterner()
	body := block(in, &ast.Expr{Kind: ast.ExprContinue, Type: in.Builtins().Unit, Span: sp()})
	_, bag := lowerProgram(t, scriptWithMain(body, in.Builtins().Unit), in)
	require.True(t, bag.HasErrors())
	require.Equal(t, diag.GenContinueOutsideLoop, bag.Items()[0].Code)
}

func TestWhileInPredicateRejected(t *testing.T) {
	in := types.NewInterner()
	loop := &ast.Expr{Kind: ast.ExprWhile, Type: in.Builtins().Unit, Span: sp(), Data: ast.WhileData{
		Cond: boolLit(in, true),
		Body: block(in),
	}}
	p := scriptWithMain(block(in, loop, boolLit(in, true)), in.Builtins().Bool)
	p.Kind = ast.ProgramPredicate
	_, bag := lowerProgram(t, p, in)
	require.True(t, bag.HasErrors())
	require.Equal(t, diag.GenWhileInPredicate, bag.Items()[0].Code)
}

func TestShortCircuitSkipsDivergedRight(t *testing.T) {
	in := types.NewInterner()
	// a && b where a diverges: nothing attributable to b may be lowered.
	left := block(in, revert(in, 42), boolLit(in, true))
	right := boolLit(in, false)
	and := &ast.Expr{Kind: ast.ExprAnd, Type: in.Builtins().Bool, Span: sp(), Data: ast.ShortCircuitData{
		Left: left, Right: right,
	}}
	ctx, bag := lowerProgram(t, scriptWithMain(block(in, and, lit(in, 0)), in.Builtins().U64), in)
	require.False(t, bag.HasErrors(), "%v", bag.Items())

	f := ctx.Functions[0]
	total := 0
	for _, b := range f.Blocks {
		total += len(b.Instrs)
	}
	require.Equal(t, 1, total, "only the revert is emitted")
	require.Equal(t, ir.OpRevert, f.Entry.Instrs[0].Op)
}

func TestShortCircuitRightOnFallthroughEdge(t *testing.T) {
	in := types.NewInterner()
	or := &ast.Expr{Kind: ast.ExprOr, Type: in.Builtins().Bool, Span: sp(), Data: ast.ShortCircuitData{
		Left:  boolLit(in, false),
		Right: boolLit(in, true),
	}}
	ctx, bag := lowerProgram(t, scriptWithMain(block(in, or, lit(in, 0)), in.Builtins().U64), in)
	require.False(t, bag.HasErrors())
	require.NoError(t, ir.ValidateContext(ctx))

	f := ctx.Functions[0]
	term := f.Entry.Terminator()
	require.NotNil(t, term)
	require.Equal(t, ir.OpCbr, term.Op)
	// For || the true edge goes straight to the merge, carrying the left
	// value.
	require.Len(t, term.Cbr.TrueArgs, 1)
	require.Empty(t, term.Cbr.FalseArgs)
}

func TestInliningCachesPerInstantiation(t *testing.T) {
	in := types.NewInterner()
	u64 := in.Builtins().U64
	tp := in.TypeParam(0)

	ident := &ast.Function{
		Name:       "ident",
		Params:     []ast.Param{{Name: "x", Type: tp, Span: sp()}},
		Ret:        tp,
		TypeParams: []string{"T"},
		Body:       &ast.Expr{Kind: ast.ExprVar, Type: tp, Span: sp(), Data: ast.VarData{Name: "x"}},
		Span:       sp(),
	}
	callSpan := sp()
	call := func() *ast.Expr {
		return &ast.Expr{Kind: ast.ExprCall, Type: u64, Span: callSpan, Data: ast.CallData{
			Callee:   ident,
			Args:     []*ast.Expr{lit(in, 5)},
			TypeArgs: []types.TypeID{u64},
		}}
	}
	sum := &ast.Expr{Kind: ast.ExprBinary, Type: u64, Span: sp(), Data: ast.BinaryData{
		Op: ast.OpAdd, Left: call(), Right: call(),
	}}

	bag := diag.NewBag(16)
	l := New(in, nil, bag, scriptWithMain(block(in, sum), u64))
	ctx := l.CompileProgram()
	require.False(t, bag.HasErrors(), "%v", bag.Items())
	require.NoError(t, ir.ValidateContext(ctx))
	require.Len(t, l.inlineCache, 1, "identical instantiations share one cache entry")
}

func TestInlineExitCarriesResult(t *testing.T) {
	in := types.NewInterner()
	u64 := in.Builtins().U64
	callee := &ast.Function{
		Name:   "seven",
		Params: nil,
		Ret:    u64,
		Body:   block(in, ret(in, lit(in, 7))),
		Span:   sp(),
	}
	call := &ast.Expr{Kind: ast.ExprCall, Type: u64, Span: sp(), Data: ast.CallData{Callee: callee}}
	ctx, bag := lowerProgram(t, scriptWithMain(block(in, call), u64), in)
	require.False(t, bag.HasErrors(), "%v", bag.Items())
	require.NoError(t, ir.ValidateContext(ctx))

	// The explicit return branches to an inline exit block carrying the
	// result as a block argument.
	f := ctx.Functions[0]
	var exit *ir.Block
	for _, b := range f.Blocks {
		if strings.HasPrefix(b.Label, "inline_exit") {
			exit = b
		}
	}
	require.NotNil(t, exit)
	require.Len(t, exit.Args, 1)
}

func TestStorageRoundTripUsesSameOpFamilies(t *testing.T) {
	in := types.NewInterner()
	u64 := in.Builtins().U64
	mixed := in.Struct("mixed", []types.Field{
		{Name: "flag", Type: in.Builtins().Bool},
		{Name: "count", Type: u64},
		{Name: "hash", Type: in.Builtins().B256},
	})
	prog := &ast.Program{
		Kind:    ast.ProgramContract,
		Storage: []ast.StorageField{{Name: "state", Type: mixed, Ix: 0, Span: sp()}},
	}

	write := &ast.Expr{Kind: ast.ExprStorageWrite, Type: in.Builtins().Unit, Span: sp(), Data: ast.StorageAccessData{
		Ix: 0,
		RHS: &ast.Expr{Kind: ast.ExprStructLit, Type: mixed, Span: sp(), Data: ast.StructLitData{Fields: []*ast.Expr{
			boolLit(in, true), lit(in, 3), {Kind: ast.ExprLiteral, Type: in.Builtins().B256, Span: sp(), Data: ast.LiteralData{Kind: ast.LiteralB256}},
		}}},
	}}
	read := &ast.Expr{Kind: ast.ExprStorageRead, Type: mixed, Span: sp(), Data: ast.StorageAccessData{Ix: 0}}
	prog.Entries = []*ast.Function{{
		Name: "roundtrip",
		Ret:  u64,
		Body: block(in, write, read, lit(in, 0)),
		Span: sp(),
	}}

	ctx, bag := lowerProgram(t, prog, in)
	require.False(t, bag.HasErrors(), "%v", bag.Items())
	require.NoError(t, ir.ValidateContext(ctx))

	counts := map[ir.Op]int{}
	for _, b := range ctx.Functions[0].Blocks {
		for _, ins := range b.Instrs {
			counts[ins.Op]++
		}
	}
	// One word op per bool/uint leaf, one quad op per b256 leaf, per
	// direction.
	require.Equal(t, 2, counts[ir.OpStateStoreWord])
	require.Equal(t, 2, counts[ir.OpStateLoadWord])
	require.Equal(t, 1, counts[ir.OpStateStoreQuad])
	require.Equal(t, 1, counts[ir.OpStateLoadQuad])
}

func TestStorageArrayRejected(t *testing.T) {
	in := types.NewInterner()
	arr := in.Array(in.Builtins().U64, 4)
	prog := &ast.Program{
		Kind:    ast.ProgramContract,
		Storage: []ast.StorageField{{Name: "xs", Type: arr, Ix: 0, Span: sp()}},
	}
	prog.Entries = []*ast.Function{{
		Name: "readxs",
		Ret:  in.Builtins().Unit,
		Body: block(in, &ast.Expr{Kind: ast.ExprStorageRead, Type: arr, Span: sp(), Data: ast.StorageAccessData{Ix: 0}}),
		Span: sp(),
	}}
	_, bag := lowerProgram(t, prog, in)
	require.True(t, bag.HasErrors())
	require.Equal(t, diag.GenStorageArray, bag.Items()[0].Code)
}

func TestContractCallPacking(t *testing.T) {
	in := types.NewInterner()
	u64 := in.Builtins().U64
	b256 := in.Builtins().B256
	addrLit := func() *ast.Expr {
		return &ast.Expr{Kind: ast.ExprLiteral, Type: b256, Span: sp(), Data: ast.LiteralData{Kind: ast.LiteralB256}}
	}
	call := func(args ...*ast.Expr) *ast.Expr {
		return &ast.Expr{Kind: ast.ExprContractCall, Type: u64, Span: sp(), Data: ast.ContractCallData{
			Address:  addrLit(),
			Name:     "method",
			Selector: 0xcafe,
			Args:     args,
		}}
	}

	countOps := func(body *ast.Expr) (bitcasts int, locals int) {
		ctx, bag := lowerProgram(t, scriptWithMain(block(in, body), u64), in)
		require.False(t, bag.HasErrors(), "%v", bag.Items())
		require.NoError(t, ir.ValidateContext(ctx))
		f := ctx.Functions[0]
		for _, lv := range f.Locals {
			if strings.HasPrefix(lv.Name, "__callargs") {
				locals++
			}
		}
		for _, b := range f.Blocks {
			for _, ins := range b.Instrs {
				if ins.Op == ir.OpBitCast {
					bitcasts++
				}
			}
		}
		return bitcasts, locals
	}

	// 0 args: no bitcast, no bundle struct; the args word is literal 0.
	bitcasts, locals := countOps(call())
	require.Zero(t, bitcasts)
	require.Zero(t, locals)

	// 1 non-aggregate arg: bitcast straight to a word, still no bundle.
	bitcasts, locals = countOps(call(lit(in, 9)))
	require.Equal(t, 1, bitcasts)
	require.Zero(t, locals)

	// 2 args: exactly one bundle struct with one field per argument.
	_, locals = countOps(call(lit(in, 1), lit(in, 2)))
	require.Equal(t, 1, locals)
}

func TestArrayIndexOutOfBounds(t *testing.T) {
	in := types.NewInterner()
	u64 := in.Builtins().U64
	arrTy := in.Array(u64, 2)
	arr := &ast.Expr{Kind: ast.ExprArrayLit, Type: arrTy, Span: sp(), Data: ast.ArrayLitData{
		Elems: []*ast.Expr{lit(in, 1), lit(in, 2)},
	}}
	decl := &ast.Expr{Kind: ast.ExprDecl, Type: in.Builtins().Unit, Span: sp(), Data: ast.DeclData{Name: "xs", Init: arr}}
	bad := &ast.Expr{Kind: ast.ExprIndex, Type: u64, Span: sp(), Data: ast.IndexData{
		Object: &ast.Expr{Kind: ast.ExprVar, Type: arrTy, Span: sp(), Data: ast.VarData{Name: "xs"}},
		Index:  lit(in, 5),
	}}
	_, bag := lowerProgram(t, scriptWithMain(block(in, decl, bad), u64), in)
	require.True(t, bag.HasErrors())
	require.Equal(t, diag.GenArrayIndexOOB, bag.Items()[0].Code)
}

func TestConfigurableKeepsDataName(t *testing.T) {
	in := types.NewInterner()
	u64 := in.Builtins().U64
	prog := scriptWithMain(block(in,
		&ast.Expr{Kind: ast.ExprVar, Type: u64, Span: sp(), Data: ast.VarData{Name: "LIMIT"}},
	), u64)
	prog.Configurables = []*ast.ConfigDecl{{
		Name:    "LIMIT",
		Type:    u64,
		Default: lit(in, 100),
		Span:    sp(),
	}}
	ctx, bag := lowerProgram(t, prog, in)
	require.False(t, bag.HasErrors(), "%v", bag.Items())

	term := ctx.Functions[0].Entry.Terminator()
	require.Equal(t, ir.OpRet, term.Op)
	require.True(t, term.Ret.Val.IsConstant())
	require.Equal(t, "LIMIT", term.Ret.Val.Const.ConfigName, "configurables stay named for the data section")
}

func TestDivergingBlockDropsRest(t *testing.T) {
	in := types.NewInterner()
	body := block(in, revert(in, 1), lit(in, 99))
	ctx, bag := lowerProgram(t, scriptWithMain(body, in.Builtins().U64), in)
	require.False(t, bag.HasErrors())
	f := ctx.Functions[0]
	require.Len(t, f.Blocks, 1)
	require.Len(t, f.Entry.Instrs, 1)
	require.Equal(t, ir.OpRevert, f.Entry.Instrs[0].Op)
}

// A let binding a struct to another local stores through the aggregate's
// address; no load of the aggregate ever appears.
func TestStructDeclStoresThroughAddress(t *testing.T) {
	in := types.NewInterner()
	u64 := in.Builtins().U64
	pt := in.Struct("pt", []types.Field{
		{Name: "x", Type: u64},
		{Name: "y", Type: u64},
	})
	structLit := &ast.Expr{Kind: ast.ExprStructLit, Type: pt, Span: sp(), Data: ast.StructLitData{
		Fields: []*ast.Expr{lit(in, 1), lit(in, 2)},
	}}
	body := block(in,
		&ast.Expr{Kind: ast.ExprDecl, Type: in.Builtins().Unit, Span: sp(), Data: ast.DeclData{Name: "a", Init: structLit}},
		&ast.Expr{Kind: ast.ExprDecl, Type: in.Builtins().Unit, Span: sp(), Data: ast.DeclData{
			Name: "b",
			Init: &ast.Expr{Kind: ast.ExprVar, Type: pt, Span: sp(), Data: ast.VarData{Name: "a"}},
		}},
	)
	ctx, bag := lowerProgram(t, scriptWithMain(body, in.Builtins().Unit), in)
	require.False(t, bag.HasErrors(), "%v", bag.Items())
	require.NoError(t, ir.ValidateContext(ctx))

	f := ctx.Functions[0]
	var stores, loads, aggStores int
	for _, b := range f.Blocks {
		for _, ins := range b.Instrs {
			switch ins.Op {
			case ir.OpStore:
				stores++
				if ins.Store.Src.Type == in.Pointer(pt) {
					aggStores++
				}
			case ir.OpLoad:
				loads++
			}
		}
	}
	require.Equal(t, 4, stores, "two field inits plus one store per let")
	require.Equal(t, 2, aggStores, "both lets store the struct's address for copying")
	require.Zero(t, loads, "aggregates move by address")
}
