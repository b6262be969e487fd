package lower

import (
	"math"

	"fathom/internal/ast"
	"fathom/internal/ir"
	"fathom/internal/source"
	"fathom/internal/types"
)

// lowerContractCall packs the cross-contract call record and emits the call
// instruction. The record is (args word, contract address, encoded
// selector); the args word is a literal 0 with no user arguments, the lone
// argument bitcast to a word when it is non-aggregate, and otherwise a
// pointer to a synthesized on-stack struct holding every argument in source
// order. Omitted coins, asset and gas fall back to well-known defaults.
func (l *Lowerer) lowerContractCall(e *ast.Expr) (Lowered, error) {
	data := e.Data.(ast.ContractCallData)

	addr, err := l.lowerExpr(data.Address)
	if err != nil {
		return Lowered{}, err
	}
	if addr.Diverges {
		return diverged(), nil
	}

	args := make([]*ir.Value, 0, len(data.Args))
	for _, a := range data.Args {
		res, err := l.lowerExpr(a)
		if err != nil {
			return Lowered{}, err
		}
		if res.Diverges {
			return diverged(), nil
		}
		args = append(args, res.Val)
	}

	argsWord, err := l.packCallArgs(data.Args, args, e.Span)
	if err != nil {
		return Lowered{}, err
	}

	u64 := l.types.Builtins().U64
	b256 := l.types.Builtins().B256
	recTy := l.types.Struct("call_params", []types.Field{
		{Name: "args", Type: u64},
		{Name: "to", Type: b256},
		{Name: "selector", Type: u64},
	})
	rec := l.newTemp("callrec", recTy)
	base := l.addrOfLocal(rec, e.Span)
	for i, v := range []*ir.Value{
		argsWord,
		addr.Val,
		ir.NewUintConstant(data.Selector, u64, e.Span),
	} {
		ptr, _, err := l.structFieldPtr(base, recTy, i, e.Span)
		if err != nil {
			return Lowered{}, err
		}
		l.store(ptr, v, e.Span)
	}

	coins, err := l.callQualifier(data.Coins, ir.NewUintConstant(0, u64, e.Span))
	if err != nil {
		return Lowered{}, err
	}
	asset, err := l.callQualifier(data.Asset, zeroB256(b256, e.Span))
	if err != nil {
		return Lowered{}, err
	}
	gas, err := l.callQualifier(data.Gas, ir.NewUintConstant(math.MaxUint64, u64, e.Span))
	if err != nil {
		return Lowered{}, err
	}
	if coins == nil || asset == nil || gas == nil {
		return diverged(), nil
	}

	res := l.emit(&ir.Instruction{
		Op:   ir.OpContractCall,
		Type: e.Type,
		Span: e.Span,
		ContractCall: ir.ContractCallInstr{
			Name:   data.Name,
			Params: base,
			Coins:  coins,
			Asset:  asset,
			Gas:    gas,
		},
	})
	if res == nil {
		// Unit-typed external calls still produce a value for callers.
		return value(l.unitVal(e.Span)), nil
	}
	return value(res), nil
}

// packCallArgs produces the args word of the call record.
func (l *Lowerer) packCallArgs(exprs []*ast.Expr, vals []*ir.Value, span source.Span) (*ir.Value, error) {
	u64 := l.types.Builtins().U64
	switch {
	case len(vals) == 0:
		return ir.NewUintConstant(0, u64, span), nil
	case len(vals) == 1 && !l.types.IsAggregate(exprs[0].Type):
		return l.emit(&ir.Instruction{
			Op:      ir.OpBitCast,
			Type:    u64,
			Span:    span,
			BitCast: ir.BitCastInstr{Val: vals[0]},
		}), nil
	default:
		fields := make([]types.Field, len(exprs))
		for i, a := range exprs {
			fields[i] = types.Field{Name: "", Type: a.Type}
		}
		bundleTy := l.types.Struct("call_args", fields)
		bundle := l.newTemp("callargs", bundleTy)
		base := l.addrOfLocal(bundle, span)
		for i, v := range vals {
			ptr, _, err := l.structFieldPtr(base, bundleTy, i, span)
			if err != nil {
				return nil, err
			}
			l.store(ptr, v, span)
		}
		return l.emit(&ir.Instruction{
			Op:      ir.OpBitCast,
			Type:    u64,
			Span:    span,
			BitCast: ir.BitCastInstr{Val: base},
		}), nil
	}
}

// callQualifier lowers an optional coins/asset/gas expression, returning
// the fallback when absent and nil when the expression diverges.
func (l *Lowerer) callQualifier(e *ast.Expr, fallback *ir.Value) (*ir.Value, error) {
	if e == nil {
		return fallback, nil
	}
	res, err := l.lowerExpr(e)
	if err != nil {
		return nil, err
	}
	if res.Diverges {
		return nil, nil
	}
	return res.Val, nil
}

func zeroB256(ty types.TypeID, span source.Span) *ir.Value {
	return ir.NewConstant(&ir.Constant{Kind: ir.ConstB256}, ty, span)
}
