package lower

import (
	"fathom/internal/ast"
	"fathom/internal/diag"
	"fathom/internal/ir"
	"fathom/internal/types"
)

// lowerExpr dispatches on expression kind. Callers must check the result's
// Diverges flag before using its value or emitting more instructions.
func (l *Lowerer) lowerExpr(e *ast.Expr) (Lowered, error) {
	if e == nil {
		return value(l.unitVal(l.f.Span)), nil
	}
	switch e.Kind {
	case ast.ExprLiteral:
		return l.lowerLiteral(e)
	case ast.ExprVar:
		return l.lowerVar(e)
	case ast.ExprDecl:
		return l.lowerDecl(e)
	case ast.ExprAssign:
		return l.lowerAssign(e)
	case ast.ExprBlock:
		return l.lowerBlock(e)
	case ast.ExprIf:
		return l.lowerIf(e)
	case ast.ExprWhile:
		return l.lowerWhile(e)
	case ast.ExprBreak:
		return l.lowerBreak(e)
	case ast.ExprContinue:
		return l.lowerContinue(e)
	case ast.ExprReturn:
		return l.lowerReturn(e)
	case ast.ExprAnd, ast.ExprOr:
		return l.lowerShortCircuit(e)
	case ast.ExprNot:
		return l.lowerNot(e)
	case ast.ExprBinary:
		return l.lowerBinary(e)
	case ast.ExprCall:
		return l.lowerCall(e)
	case ast.ExprStructLit:
		return l.lowerStructLit(e)
	case ast.ExprArrayLit:
		return l.lowerArrayLit(e)
	case ast.ExprField:
		return l.lowerField(e)
	case ast.ExprIndex:
		return l.lowerIndex(e)
	case ast.ExprAsm:
		return l.lowerAsmBlock(e)
	case ast.ExprStorageRead:
		return l.lowerStorageRead(e)
	case ast.ExprStorageWrite:
		return l.lowerStorageWrite(e)
	case ast.ExprContractCall:
		return l.lowerContractCall(e)
	case ast.ExprRevert:
		return l.lowerRevert(e)
	default:
		return Lowered{}, l.ice(diag.IceUnknownType, e.Span, "unknown expression kind %d", e.Kind)
	}
}

func (l *Lowerer) lowerLiteral(e *ast.Expr) (Lowered, error) {
	data := e.Data.(ast.LiteralData)
	c, err := l.constantFromLiteral(data, e)
	if err != nil {
		return Lowered{}, err
	}
	return value(ir.NewConstant(c, e.Type, e.Span)), nil
}

func (l *Lowerer) constantFromLiteral(data ast.LiteralData, e *ast.Expr) (*ir.Constant, error) {
	switch data.Kind {
	case ast.LiteralU64:
		return &ir.Constant{Kind: ir.ConstUint, UintValue: data.UintValue}, nil
	case ast.LiteralBool:
		return &ir.Constant{Kind: ir.ConstBool, BoolValue: data.BoolValue}, nil
	case ast.LiteralB256:
		return &ir.Constant{Kind: ir.ConstB256, B256Value: data.B256Value}, nil
	case ast.LiteralString:
		return &ir.Constant{Kind: ir.ConstString, StringData: []byte(data.StringValue)}, nil
	default:
		return nil, l.ice(diag.IceUnknownType, e.Span, "unknown literal kind %d", data.Kind)
	}
}

// lowerVar resolves an identifier: lexical scope first, then function
// parameters (by-reference ones need an extra load), then module
// constants, then configurables. Failure means the type checker let a bad
// program through.
func (l *Lowerer) lowerVar(e *ast.Expr) (Lowered, error) {
	name := e.Data.(ast.VarData).Name
	if b, ok := l.lookup(name); ok {
		if b.local != nil {
			ptr := l.addrOfLocal(b.local, e.Span)
			return value(l.loadIfCopy(ptr, b.ty, e.Span)), nil
		}
		if b.byRef && l.types.IsCopyType(b.ty) {
			loaded := l.emit(&ir.Instruction{
				Op:   ir.OpLoad,
				Type: b.ty,
				Span: e.Span,
				Load: ir.LoadInstr{Src: b.value},
			})
			return value(loaded), nil
		}
		return value(b.value), nil
	}
	if c, ok := l.consts[name]; ok {
		lit, ok := c.Value.Data.(ast.LiteralData)
		if !ok {
			return Lowered{}, l.ice(diag.IceUnknownType, c.Span, "constant %s is not a literal", name)
		}
		cv, err := l.constantFromLiteral(lit, c.Value)
		if err != nil {
			return Lowered{}, err
		}
		return value(ir.NewConstant(cv, c.Type, e.Span)), nil
	}
	if c, ok := l.configs[name]; ok {
		lit, ok := c.Default.Data.(ast.LiteralData)
		if !ok {
			return Lowered{}, l.ice(diag.IceUnknownType, c.Span, "configurable %s default is not a literal", name)
		}
		cv, err := l.constantFromLiteral(lit, c.Default)
		if err != nil {
			return Lowered{}, err
		}
		cv.ConfigName = name
		return value(ir.NewConstant(cv, c.Type, e.Span)), nil
	}
	return Lowered{}, l.ice(diag.IceUnknownVariable, e.Span, "unknown variable %q at code generation", name)
}

func (l *Lowerer) lowerDecl(e *ast.Expr) (Lowered, error) {
	data := e.Data.(ast.DeclData)
	init, err := l.lowerExpr(data.Init)
	if err != nil {
		return Lowered{}, err
	}
	if init.Diverges {
		return diverged(), nil
	}
	ty := data.Init.Type
	lv := l.f.NewLocal(l.mangled(data.Name), ty, nil)
	ptr := l.addrOfLocal(lv, e.Span)
	l.store(ptr, init.Val, e.Span)
	l.bind(data.Name, binding{local: lv, ty: ty})
	return value(l.unitVal(e.Span)), nil
}

func (l *Lowerer) lowerAssign(e *ast.Expr) (Lowered, error) {
	data := e.Data.(ast.AssignData)
	rhs, err := l.lowerExpr(data.RHS)
	if err != nil {
		return Lowered{}, err
	}
	if rhs.Diverges {
		return diverged(), nil
	}
	b, ok := l.lookup(data.Name)
	if !ok || b.local == nil {
		return Lowered{}, l.ice(diag.IceUnknownVariable, e.Span, "assignment to unknown local %q", data.Name)
	}
	ptr := l.addrOfLocal(b.local, e.Span)
	ty := b.ty
	if len(data.FieldPath) > 0 {
		ptr, ty, err = l.elemPtrByFields(ptr, ty, data.FieldPath, e)
		if err != nil {
			return Lowered{}, err
		}
	}
	l.store(ptr, rhs.Val, e.Span)
	return value(l.unitVal(e.Span)), nil
}

// elemPtrByFields addresses a nested struct member by constant field
// indices.
func (l *Lowerer) elemPtrByFields(base *ir.Value, ty types.TypeID, path []int, e *ast.Expr) (*ir.Value, types.TypeID, error) {
	indices := make([]*ir.Value, 0, len(path))
	cur := ty
	for _, ix := range path {
		if !l.types.IsAggregate(cur) {
			return nil, types.NoTypeID, l.ice(diag.IceGepOnNonAggregate, e.Span,
				"element access into non-aggregate %s", l.types.String(cur))
		}
		_, fieldTy, err := l.types.FieldOffsetInWords(cur, ix)
		if err != nil {
			return nil, types.NoTypeID, l.ice(diag.IceGepOnNonAggregate, e.Span, "%v", err)
		}
		indices = append(indices, ir.NewUintConstant(uint64(ix), l.types.Builtins().U64, e.Span)) //nolint:gosec // field index is non-negative
		cur = fieldTy
	}
	ptr := l.emit(&ir.Instruction{
		Op:         ir.OpGetElemPtr,
		Type:       l.types.Pointer(cur),
		Span:       e.Span,
		GetElemPtr: ir.GetElemPtrInstr{Base: base, Indices: indices},
	})
	return ptr, cur, nil
}

// lowerBlock lowers a sequence; its value is the last expression's value.
// Once an element diverges the rest of the sequence is unreachable and is
// not lowered at all.
func (l *Lowerer) lowerBlock(e *ast.Expr) (Lowered, error) {
	data := e.Data.(ast.BlockData)
	l.pushScope()
	defer l.popScope()
	last := value(l.unitVal(e.Span))
	for _, sub := range data.Exprs {
		res, err := l.lowerExpr(sub)
		if err != nil {
			return Lowered{}, err
		}
		if res.Diverges {
			return diverged(), nil
		}
		last = res
	}
	return last, nil
}

func (l *Lowerer) lowerNot(e *ast.Expr) (Lowered, error) {
	data := e.Data.(ast.NotData)
	operand, err := l.lowerExpr(data.Operand)
	if err != nil {
		return Lowered{}, err
	}
	if operand.Diverges {
		return diverged(), nil
	}
	res := l.emit(&ir.Instruction{
		Op:   ir.OpBinary,
		Type: e.Type,
		Span: e.Span,
		Binary: ir.BinaryInstr{
			Op:    ast.OpXor,
			Left:  operand.Val,
			Right: ir.NewBoolConstant(true, l.types.Builtins().Bool, e.Span),
		},
	})
	return value(res), nil
}

func (l *Lowerer) lowerBinary(e *ast.Expr) (Lowered, error) {
	data := e.Data.(ast.BinaryData)
	left, err := l.lowerExpr(data.Left)
	if err != nil {
		return Lowered{}, err
	}
	if left.Diverges {
		return diverged(), nil
	}
	right, err := l.lowerExpr(data.Right)
	if err != nil {
		return Lowered{}, err
	}
	if right.Diverges {
		return diverged(), nil
	}

	lt, ok := l.types.Lookup(data.Left.Type)
	if !ok {
		return Lowered{}, l.ice(diag.IceUnknownType, e.Span, "untyped binary operand")
	}
	instr := &ir.Instruction{
		Op:   ir.OpBinary,
		Type: e.Type,
		Span: e.Span,
		Binary: ir.BinaryInstr{
			Op:    data.Op,
			Left:  left.Val,
			Right: right.Val,
		},
	}
	// 256-bit arithmetic results live in memory; reserve the buffer here
	// so instruction selection has an address to emit the wide op into.
	if lt.Kind == types.KindB256 && !isComparison(data.Op) {
		buf := l.newTemp("wide", e.Type)
		instr.Binary.Wide = l.addrOfLocal(buf, e.Span)
		instr.Type = l.types.Pointer(e.Type)
	}
	return value(l.emit(instr)), nil
}

func isComparison(op ast.BinaryOp) bool {
	switch op {
	case ast.OpEq, ast.OpNeq, ast.OpLt, ast.OpGt, ast.OpLe, ast.OpGe:
		return true
	default:
		return false
	}
}

// lowerStructLit builds the aggregate in a fresh stack slot, storing
// fields in layout order; the expression's value is the slot's address.
func (l *Lowerer) lowerStructLit(e *ast.Expr) (Lowered, error) {
	data := e.Data.(ast.StructLitData)
	lv := l.newTemp("struct", e.Type)
	base := l.addrOfLocal(lv, e.Span)
	for i, fe := range data.Fields {
		res, err := l.lowerExpr(fe)
		if err != nil {
			return Lowered{}, err
		}
		if res.Diverges {
			return diverged(), nil
		}
		ptr, _, err := l.elemPtrByFields(base, e.Type, []int{i}, e)
		if err != nil {
			return Lowered{}, err
		}
		l.store(ptr, res.Val, fe.Span)
	}
	return value(base), nil
}

func (l *Lowerer) lowerArrayLit(e *ast.Expr) (Lowered, error) {
	data := e.Data.(ast.ArrayLitData)
	lv := l.newTemp("array", e.Type)
	base := l.addrOfLocal(lv, e.Span)
	tt, ok := l.types.Lookup(e.Type)
	if !ok || tt.Kind != types.KindArray {
		return Lowered{}, l.ice(diag.IceUnknownType, e.Span, "array literal with non-array type %s", l.types.String(e.Type))
	}
	for i, el := range data.Elems {
		res, err := l.lowerExpr(el)
		if err != nil {
			return Lowered{}, err
		}
		if res.Diverges {
			return diverged(), nil
		}
		idx := ir.NewUintConstant(uint64(i), l.types.Builtins().U64, el.Span) //nolint:gosec // element index is non-negative
		ptr := l.emit(&ir.Instruction{
			Op:         ir.OpGetElemPtr,
			Type:       l.types.Pointer(tt.Elem),
			Span:       el.Span,
			GetElemPtr: ir.GetElemPtrInstr{Base: base, Indices: []*ir.Value{idx}},
		})
		l.store(ptr, res.Val, el.Span)
	}
	return value(base), nil
}

func (l *Lowerer) lowerField(e *ast.Expr) (Lowered, error) {
	data := e.Data.(ast.FieldData)
	obj, err := l.lowerExpr(data.Object)
	if err != nil {
		return Lowered{}, err
	}
	if obj.Diverges {
		return diverged(), nil
	}
	ptr, ty, err := l.elemPtrByFields(obj.Val, data.Object.Type, []int{data.FieldIdx}, e)
	if err != nil {
		return Lowered{}, err
	}
	return value(l.loadIfCopy(ptr, ty, e.Span)), nil
}

func (l *Lowerer) lowerIndex(e *ast.Expr) (Lowered, error) {
	data := e.Data.(ast.IndexData)
	obj, err := l.lowerExpr(data.Object)
	if err != nil {
		return Lowered{}, err
	}
	if obj.Diverges {
		return diverged(), nil
	}
	tt, ok := l.types.Lookup(data.Object.Type)
	if !ok || tt.Kind != types.KindArray {
		return Lowered{}, l.ice(diag.IceGepOnNonAggregate, e.Span,
			"index into non-array %s", l.types.String(data.Object.Type))
	}
	idx, err := l.lowerExpr(data.Index)
	if err != nil {
		return Lowered{}, err
	}
	if idx.Diverges {
		return diverged(), nil
	}
	if c, ok := idx.Val.ConstantUint(); ok && c >= uint64(tt.Len) {
		return Lowered{}, l.userErr(diag.GenArrayIndexOOB, e.Span,
			"index %d out of bounds for array of length %d", c, tt.Len)
	}
	ptr := l.emit(&ir.Instruction{
		Op:         ir.OpGetElemPtr,
		Type:       l.types.Pointer(tt.Elem),
		Span:       e.Span,
		GetElemPtr: ir.GetElemPtrInstr{Base: obj.Val, Indices: []*ir.Value{idx.Val}},
	})
	return value(l.loadIfCopy(ptr, tt.Elem, e.Span)), nil
}

func (l *Lowerer) lowerRevert(e *ast.Expr) (Lowered, error) {
	data := e.Data.(ast.RevertData)
	code, err := l.lowerExpr(data.Code)
	if err != nil {
		return Lowered{}, err
	}
	if code.Diverges {
		return diverged(), nil
	}
	l.emit(&ir.Instruction{
		Op:     ir.OpRevert,
		Span:   e.Span,
		Revert: ir.RevertInstr{Code: code.Val},
	})
	return diverged(), nil
}
