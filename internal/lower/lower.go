// Package lower walks the typed AST and builds IR: control flow graphs of
// single-assignment instructions. Calls are inlined per instantiation here,
// so the IR a unit produces contains only its entry functions.
package lower

import (
	"errors"
	"fmt"

	"fathom/internal/ast"
	"fathom/internal/diag"
	"fathom/internal/ir"
	"fathom/internal/source"
	"fathom/internal/storage"
	"fathom/internal/types"
)

// errAborted signals that lowering of the current function stopped after a
// diagnostic was recorded. The diagnostic itself lives in the bag.
var errAborted = errors.New("lowering aborted")

// loopCtx records the innermost loop's branch targets.
type loopCtx struct {
	breakTarget    *ir.Block
	continueTarget *ir.Block
}

// returnCtx records what an explicit return should do. The outermost frame
// emits a real ret instruction; inline frames branch to an exit block that
// is created on first use, so fully diverging callees never leave an
// unreachable block behind.
type returnCtx struct {
	inline bool
	retTy  types.TypeID
	exit   *ir.Block
	result *ir.Value // exit's block arg, nil for unit results
}

// binding resolves a source identifier inside the current scope.
type binding struct {
	local *ir.LocalVar // named stack slot, nil for direct values
	value *ir.Value    // function argument or inlined parameter value
	byRef bool
	ty    types.TypeID
}

// Lowerer compiles the functions of one unit. It is single-threaded and
// scoped to one compilation; the caller owns the diagnostic bag.
type Lowerer struct {
	types *types.Interner
	keys  storage.KeyDeriver
	bag   *diag.Bag

	program *ast.Program
	ctx     *ir.Context

	f   *ir.Function
	cur *ir.Block

	scopes      []map[string]binding
	loopStack   []loopCtx
	returnStack []*returnCtx

	inlineCache map[instKey]*ast.Function
	mangle      int

	consts  map[string]*ast.ConstDecl
	configs map[string]*ast.ConfigDecl
}

// New builds a lowerer for one program. A nil deriver defaults to the
// sha256 scheme.
func New(in *types.Interner, keys storage.KeyDeriver, bag *diag.Bag, program *ast.Program) *Lowerer {
	if keys == nil {
		keys = storage.Sha256Deriver{}
	}
	l := &Lowerer{
		types:       in,
		keys:        keys,
		bag:         bag,
		program:     program,
		ctx:         ir.NewContext(),
		inlineCache: make(map[instKey]*ast.Function),
		consts:      make(map[string]*ast.ConstDecl),
		configs:     make(map[string]*ast.ConfigDecl),
	}
	if program != nil {
		for _, c := range program.Constants {
			l.consts[c.Name] = c
		}
		for _, c := range program.Configurables {
			l.configs[c.Name] = c
		}
	}
	return l
}

// CompileProgram lowers every entry function of the unit. Functions that
// fail lowering are dropped; their diagnostics stay in the bag so the
// driver can continue with the other declarations.
func (l *Lowerer) CompileProgram() *ir.Context {
	if l.program == nil {
		return l.ctx
	}
	for _, fn := range l.program.Entries {
		if err := l.compileEntry(fn); err != nil && !errors.Is(err, errAborted) {
			l.ice(diag.IceUnknownType, fn.Span, err.Error())
		}
	}
	return l.ctx
}

func (l *Lowerer) compileEntry(fn *ast.Function) error {
	f := l.ctx.NewFunction(fn.Name, fn.Ret, fn.Span)
	f.IsEntry = true
	f.Selector = fn.Selector

	l.f = f
	l.cur = f.Entry
	l.scopes = l.scopes[:0]
	l.loopStack = l.loopStack[:0]
	l.returnStack = append(l.returnStack[:0], &returnCtx{})

	l.pushScope()
	for _, p := range fn.Params {
		arg := f.AddArg(p.Name, p.Type, p.Span)
		l.bind(p.Name, binding{value: arg, byRef: p.ByRef, ty: p.Type})
	}

	res, err := l.lowerExpr(fn.Body)
	if err != nil {
		// Drop the partially built function so later stages never see it.
		l.ctx.Functions = l.ctx.Functions[:len(l.ctx.Functions)-1]
		return err
	}
	if !res.Diverges {
		l.emit(&ir.Instruction{
			Op:   ir.OpRet,
			Span: fn.Span,
			Ret:  ir.RetInstr{Val: res.Val},
		})
	}
	l.popScope()
	return nil
}

// emit appends to the current block. Appending after a terminator is a
// lowering bug the validator reports; divergence checking should prevent
// it entirely.
func (l *Lowerer) emit(ins *ir.Instruction) *ir.Value {
	return l.cur.Append(ins)
}

func (l *Lowerer) startBlock(b *ir.Block) {
	l.cur = b
}

func (l *Lowerer) pushScope() {
	l.scopes = append(l.scopes, make(map[string]binding))
}

func (l *Lowerer) popScope() {
	l.scopes = l.scopes[:len(l.scopes)-1]
}

func (l *Lowerer) bind(name string, b binding) {
	l.scopes[len(l.scopes)-1][name] = b
}

// lookup searches the lexical scope stack innermost-first.
func (l *Lowerer) lookup(name string) (binding, bool) {
	for i := len(l.scopes) - 1; i >= 0; i-- {
		if b, ok := l.scopes[i][name]; ok {
			return b, true
		}
	}
	return binding{}, false
}

// mangled produces a unique stack-slot name for a source identifier, so
// shadowing and inlining never collide.
func (l *Lowerer) mangled(name string) string {
	l.mangle++
	return fmt.Sprintf("%s_%d", name, l.mangle)
}

// newLocal declares an anonymous temporary stack slot.
func (l *Lowerer) newTemp(hint string, ty types.TypeID) *ir.LocalVar {
	l.mangle++
	return l.f.NewLocal(fmt.Sprintf("__%s%d", hint, l.mangle), ty, nil)
}

// userErr records a user-facing error and aborts the current function.
func (l *Lowerer) userErr(code diag.Code, span source.Span, format string, args ...any) error {
	l.bag.Add(diag.NewError(code, span, fmt.Sprintf(format, args...)))
	return errAborted
}

// ice records an internal compiler error and aborts the current function.
// These mean the front end handed over something type checking should have
// rejected, or the lowerer itself is broken.
func (l *Lowerer) ice(code diag.Code, span source.Span, format string, args ...any) error {
	l.bag.Add(diag.NewBug(code, span, fmt.Sprintf(format, args...)))
	return errAborted
}

func (l *Lowerer) unitVal(span source.Span) *ir.Value {
	return ir.NewUnitConstant(l.types.Builtins().Unit, span)
}

// sizeOf wraps the type oracle, converting failures into internal errors.
func (l *Lowerer) sizeOf(ty types.TypeID, span source.Span) (uint64, error) {
	n, err := l.types.SizeInBytes(ty)
	if err != nil {
		return 0, l.ice(diag.IceUnknownType, span, "cannot size type %s", l.types.String(ty))
	}
	return n, nil
}

// addrOfLocal emits a get_local yielding the slot's address.
func (l *Lowerer) addrOfLocal(lv *ir.LocalVar, span source.Span) *ir.Value {
	return l.emit(&ir.Instruction{
		Op:       ir.OpGetLocal,
		Type:     l.types.Pointer(lv.Type),
		Span:     span,
		GetLocal: ir.GetLocalInstr{Local: lv},
	})
}

// loadIfCopy reads a copy-typed value through ptr; non-copy values stay as
// their address.
func (l *Lowerer) loadIfCopy(ptr *ir.Value, ty types.TypeID, span source.Span) *ir.Value {
	if !l.types.IsCopyType(ty) {
		return ptr
	}
	return l.emit(&ir.Instruction{
		Op:   ir.OpLoad,
		Type: ty,
		Span: span,
		Load: ir.LoadInstr{Src: ptr},
	})
}

// store writes val through ptr. Aggregate stores become memory copies
// during instruction selection.
func (l *Lowerer) store(ptr, val *ir.Value, span source.Span) {
	l.emit(&ir.Instruction{
		Op:    ir.OpStore,
		Span:  span,
		Store: ir.StoreInstr{Dst: ptr, Src: val},
	})
}
