package lower

import (
	"strconv"
	"strings"

	"fathom/internal/ast"
	"fathom/internal/diag"
	"fathom/internal/ir"
	"fathom/internal/source"
	"fathom/internal/types"
)

// instKey identifies one call-site instantiation: the call's span plus the
// concrete argument and type-argument types. Two lowerings of the same
// program produce identical keys, so instantiation order is deterministic.
type instKey struct {
	span source.Span
	sig  string
}

func makeInstKey(span source.Span, args []*ast.Expr, typeArgs []types.TypeID) instKey {
	var sb strings.Builder
	for _, a := range args {
		sb.WriteString(strconv.FormatUint(uint64(a.Type), 10))
		sb.WriteByte(',')
	}
	sb.WriteByte('|')
	for _, t := range typeArgs {
		sb.WriteString(strconv.FormatUint(uint64(t), 10))
		sb.WriteByte(',')
	}
	return instKey{span: span, sig: sb.String()}
}

// lowerCall inlines the callee at the call site. Generic callees are
// instantiated once per (call site, argument types, type arguments) and the
// instantiation is cached. A callee declared with one trailing by-ref
// parameter beyond the supplied arguments returns through that out
// parameter; the call's value is then the out slot's content.
func (l *Lowerer) lowerCall(e *ast.Expr) (Lowered, error) {
	data := e.Data.(ast.CallData)
	callee := data.Callee
	if callee == nil {
		return Lowered{}, l.ice(diag.IceBadCallArity, e.Span, "call with unresolved callee")
	}

	argv := make([]*ir.Value, 0, len(data.Args))
	for _, a := range data.Args {
		res, err := l.lowerExpr(a)
		if err != nil {
			return Lowered{}, err
		}
		if res.Diverges {
			return diverged(), nil
		}
		argv = append(argv, res.Val)
	}

	key := makeInstKey(e.Span, data.Args, data.TypeArgs)
	inst, ok := l.inlineCache[key]
	if !ok {
		var err error
		inst, err = l.instantiate(callee, data.TypeArgs, e.Span)
		if err != nil {
			return Lowered{}, err
		}
		l.inlineCache[key] = inst
	}

	outRef := len(inst.Params) == len(argv)+1 && inst.Params[len(inst.Params)-1].ByRef
	if !outRef && len(inst.Params) != len(argv) {
		return Lowered{}, l.ice(diag.IceBadCallArity, e.Span,
			"call to %s with %d arguments, %d parameters", callee.Name, len(argv), len(inst.Params))
	}

	l.pushScope()
	for i, p := range inst.Params[:len(argv)] {
		l.bind(p.Name, binding{value: argv[i], byRef: p.ByRef, ty: p.Type})
	}
	var outLocal *ir.LocalVar
	if outRef {
		p := inst.Params[len(inst.Params)-1]
		outLocal = l.newTemp("out", p.Type)
		l.bind(p.Name, binding{value: l.addrOfLocal(outLocal, e.Span), byRef: true, ty: p.Type})
	}

	frame := &returnCtx{inline: true, retTy: inst.Ret}
	l.returnStack = append(l.returnStack, frame)
	body, err := l.lowerExpr(inst.Body)
	l.returnStack = l.returnStack[:len(l.returnStack)-1]
	l.popScope()
	if err != nil {
		return Lowered{}, err
	}

	if !body.Diverges {
		exit := frame.ensureExit(l, e)
		br := ir.BrInstr{To: exit}
		if frame.result != nil {
			br.Args = []*ir.Value{body.Val}
		}
		l.emit(&ir.Instruction{Op: ir.OpBr, Span: e.Span, Br: br})
	}
	if frame.exit == nil {
		// Every path through the callee reverted or returned nowhere.
		return diverged(), nil
	}

	l.startBlock(frame.exit)
	switch {
	case outRef:
		ptr := l.addrOfLocal(outLocal, e.Span)
		return value(l.loadIfCopy(ptr, outLocal.Type, e.Span)), nil
	case frame.result != nil:
		return value(frame.result), nil
	default:
		return value(l.unitVal(e.Span)), nil
	}
}

// instantiate produces the callee to inline. Non-generic callees are used
// as-is; generic ones are deep-cloned with every type parameter replaced by
// its concrete argument.
func (l *Lowerer) instantiate(fn *ast.Function, typeArgs []types.TypeID, span source.Span) (*ast.Function, error) {
	if len(typeArgs) == 0 {
		return fn, nil
	}
	if len(typeArgs) != len(fn.TypeParams) {
		return nil, l.ice(diag.IceBadCallArity, span,
			"call to %s with %d type arguments, %d type parameters", fn.Name, len(typeArgs), len(fn.TypeParams))
	}
	sub := &substituter{l: l, typeArgs: typeArgs, span: span}
	params := make([]ast.Param, len(fn.Params))
	for i, p := range fn.Params {
		ty, err := sub.typ(p.Type)
		if err != nil {
			return nil, err
		}
		params[i] = ast.Param{Name: p.Name, Type: ty, ByRef: p.ByRef, Span: p.Span}
	}
	ret, err := sub.typ(fn.Ret)
	if err != nil {
		return nil, err
	}
	body, err := sub.expr(fn.Body)
	if err != nil {
		return nil, err
	}
	return &ast.Function{
		Name:   fn.Name,
		Params: params,
		Ret:    ret,
		Body:   body,
		Span:   fn.Span,
		Purity: fn.Purity,
	}, nil
}

// substituter rewrites type parameters to concrete types through an AST.
type substituter struct {
	l        *Lowerer
	typeArgs []types.TypeID
	span     source.Span
}

func (s *substituter) typ(id types.TypeID) (types.TypeID, error) {
	if id == types.NoTypeID {
		return id, nil
	}
	in := s.l.types
	t, ok := in.Lookup(id)
	if !ok {
		return types.NoTypeID, s.l.ice(diag.IceUnknownType, s.span, "unknown type id %d during instantiation", id)
	}
	switch t.Kind {
	case types.KindTypeParam:
		if int(t.Len) >= len(s.typeArgs) {
			return types.NoTypeID, s.l.ice(diag.IceUnknownType, s.span, "type parameter %d has no argument", t.Len)
		}
		return s.typeArgs[t.Len], nil
	case types.KindPointer:
		elem, err := s.typ(t.Elem)
		if err != nil {
			return types.NoTypeID, err
		}
		return in.Pointer(elem), nil
	case types.KindRawSlice:
		elem, err := s.typ(t.Elem)
		if err != nil {
			return types.NoTypeID, err
		}
		return in.RawSlice(elem), nil
	case types.KindArray:
		elem, err := s.typ(t.Elem)
		if err != nil {
			return types.NoTypeID, err
		}
		return in.Array(elem, t.Len), nil
	case types.KindStruct, types.KindUnion:
		info, ok := in.AggInfo(id)
		if !ok {
			return types.NoTypeID, s.l.ice(diag.IceUnknownType, s.span, "aggregate %d has no field info", id)
		}
		fields := make([]types.Field, len(info.Fields))
		changed := false
		for i, f := range info.Fields {
			ft, err := s.typ(f.Type)
			if err != nil {
				return types.NoTypeID, err
			}
			if ft != f.Type {
				changed = true
			}
			fields[i] = types.Field{Name: f.Name, Type: ft}
		}
		if !changed {
			return id, nil
		}
		if t.Kind == types.KindStruct {
			return in.Struct(info.Name, fields), nil
		}
		return in.Union(info.Name, fields), nil
	default:
		return id, nil
	}
}

func (s *substituter) expr(e *ast.Expr) (*ast.Expr, error) {
	if e == nil {
		return nil, nil
	}
	ty, err := s.typ(e.Type)
	if err != nil {
		return nil, err
	}
	out := &ast.Expr{Kind: e.Kind, Type: ty, Span: e.Span}
	out.Data, err = s.data(e.Data)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *substituter) exprs(in []*ast.Expr) ([]*ast.Expr, error) {
	if in == nil {
		return nil, nil
	}
	out := make([]*ast.Expr, len(in))
	for i, e := range in {
		var err error
		if out[i], err = s.expr(e); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *substituter) data(d ast.ExprData) (ast.ExprData, error) {
	switch v := d.(type) {
	case ast.LiteralData, ast.VarData:
		return d, nil
	case ast.RevertData:
		code, err := s.expr(v.Code)
		if err != nil {
			return nil, err
		}
		return ast.RevertData{Code: code}, nil
	case ast.DeclData:
		init, err := s.expr(v.Init)
		if err != nil {
			return nil, err
		}
		return ast.DeclData{Name: v.Name, Init: init}, nil
	case ast.AssignData:
		rhs, err := s.expr(v.RHS)
		if err != nil {
			return nil, err
		}
		return ast.AssignData{Name: v.Name, FieldPath: v.FieldPath, RHS: rhs}, nil
	case ast.BlockData:
		es, err := s.exprs(v.Exprs)
		if err != nil {
			return nil, err
		}
		return ast.BlockData{Exprs: es}, nil
	case ast.IfData:
		cond, err := s.expr(v.Cond)
		if err != nil {
			return nil, err
		}
		then, err := s.expr(v.Then)
		if err != nil {
			return nil, err
		}
		els, err := s.expr(v.Else)
		if err != nil {
			return nil, err
		}
		return ast.IfData{Cond: cond, Then: then, Else: els}, nil
	case ast.WhileData:
		cond, err := s.expr(v.Cond)
		if err != nil {
			return nil, err
		}
		body, err := s.expr(v.Body)
		if err != nil {
			return nil, err
		}
		return ast.WhileData{Cond: cond, Body: body}, nil
	case ast.ReturnData:
		val, err := s.expr(v.Value)
		if err != nil {
			return nil, err
		}
		return ast.ReturnData{Value: val}, nil
	case ast.ShortCircuitData:
		left, err := s.expr(v.Left)
		if err != nil {
			return nil, err
		}
		right, err := s.expr(v.Right)
		if err != nil {
			return nil, err
		}
		return ast.ShortCircuitData{Left: left, Right: right}, nil
	case ast.NotData:
		op, err := s.expr(v.Operand)
		if err != nil {
			return nil, err
		}
		return ast.NotData{Operand: op}, nil
	case ast.BinaryData:
		left, err := s.expr(v.Left)
		if err != nil {
			return nil, err
		}
		right, err := s.expr(v.Right)
		if err != nil {
			return nil, err
		}
		return ast.BinaryData{Op: v.Op, Left: left, Right: right}, nil
	case ast.CallData:
		args, err := s.exprs(v.Args)
		if err != nil {
			return nil, err
		}
		typeArgs := make([]types.TypeID, len(v.TypeArgs))
		for i, t := range v.TypeArgs {
			if typeArgs[i], err = s.typ(t); err != nil {
				return nil, err
			}
		}
		return ast.CallData{Callee: v.Callee, Args: args, TypeArgs: typeArgs}, nil
	case ast.StructLitData:
		fields, err := s.exprs(v.Fields)
		if err != nil {
			return nil, err
		}
		return ast.StructLitData{Fields: fields}, nil
	case ast.ArrayLitData:
		elems, err := s.exprs(v.Elems)
		if err != nil {
			return nil, err
		}
		return ast.ArrayLitData{Elems: elems}, nil
	case ast.FieldData:
		obj, err := s.expr(v.Object)
		if err != nil {
			return nil, err
		}
		return ast.FieldData{Object: obj, FieldIdx: v.FieldIdx}, nil
	case ast.IndexData:
		obj, err := s.expr(v.Object)
		if err != nil {
			return nil, err
		}
		idx, err := s.expr(v.Index)
		if err != nil {
			return nil, err
		}
		return ast.IndexData{Object: obj, Index: idx}, nil
	case ast.AsmData:
		regs := make([]ast.AsmReg, len(v.Regs))
		for i, r := range v.Regs {
			init, err := s.expr(r.Init)
			if err != nil {
				return nil, err
			}
			regs[i] = ast.AsmReg{Name: r.Name, Init: init}
		}
		return ast.AsmData{Regs: regs, Ops: v.Ops, RetReg: v.RetReg}, nil
	case ast.StorageAccessData:
		rhs, err := s.expr(v.RHS)
		if err != nil {
			return nil, err
		}
		return ast.StorageAccessData{Ix: v.Ix, Path: v.Path, RHS: rhs}, nil
	case ast.ContractCallData:
		addr, err := s.expr(v.Address)
		if err != nil {
			return nil, err
		}
		args, err := s.exprs(v.Args)
		if err != nil {
			return nil, err
		}
		coins, err := s.expr(v.Coins)
		if err != nil {
			return nil, err
		}
		asset, err := s.expr(v.Asset)
		if err != nil {
			return nil, err
		}
		gas, err := s.expr(v.Gas)
		if err != nil {
			return nil, err
		}
		return ast.ContractCallData{
			Address: addr, Name: v.Name, Selector: v.Selector,
			Args: args, Coins: coins, Asset: asset, Gas: gas,
		}, nil
	case nil:
		return nil, nil
	default:
		return nil, s.l.ice(diag.IceUnknownType, s.span, "unknown expression payload %T", d)
	}
}
