package asmgen

import (
	"fathom/internal/asm"
	"fathom/internal/ast"
	"fathom/internal/diag"
	"fathom/internal/ir"
	"fathom/internal/source"
	"fathom/internal/types"
)

func (fs *funcSelector) selectInstr(ins *ir.Instruction) error {
	switch ins.Op {
	case ir.OpAsm:
		return fs.selectAsm(ins)
	case ir.OpBitCast:
		return fs.selectBitCast(ins)
	case ir.OpBinary:
		return fs.selectBinary(ins)
	case ir.OpBr:
		return fs.selectBr(ins)
	case ir.OpCbr:
		return fs.selectCbr(ins)
	case ir.OpContractCall:
		return fs.selectContractCall(ins)
	case ir.OpGetLocal:
		return fs.selectGetLocal(ins)
	case ir.OpGetElemPtr:
		return fs.selectGetElemPtr(ins)
	case ir.OpLoad:
		return fs.selectLoad(ins)
	case ir.OpStore:
		return fs.selectStore(ins)
	case ir.OpRet:
		return fs.selectRet(ins)
	case ir.OpRevert:
		return fs.selectRevert(ins)
	case ir.OpStateLoadWord, ir.OpStateStoreWord:
		return fs.selectStateWord(ins)
	case ir.OpStateLoadQuad, ir.OpStateStoreQuad:
		return fs.selectStateQuad(ins)
	case ir.OpNop:
		fs.emit(asm.Op{Opcode: asm.OpcodeNoop, Span: ins.Span})
		return nil
	default:
		return fs.ice(diag.IceOperandMismatch, ins.Span, "unknown instruction %s", ins.Op)
	}
}

// selectBitCast reinterprets bits. Casting to bool normalizes any nonzero
// input to exactly 1; every other cast is a register alias.
func (fs *funcSelector) selectBitCast(ins *ir.Instruction) error {
	src, err := fs.reg(ins.BitCast.Val, ins.Span)
	if err != nil {
		return err
	}
	t, ok := fs.s.types.Lookup(ins.Type)
	if !ok {
		return fs.ice(diag.IceUnknownType, ins.Span, "bitcast to unknown type")
	}
	if t.Kind != types.KindBool {
		fs.regs[ins.Result] = src
		return nil
	}
	tmp := fs.fresh()
	fs.emit(asm.Op{
		Opcode: asm.OpcodeEq,
		Regs:   []asm.Register{tmp, src, asm.Reserved(asm.RegZero)},
		Span:   ins.Span,
	})
	dst := fs.fresh()
	fs.emit(asm.Op{
		Opcode: asm.OpcodeXori,
		Regs:   []asm.Register{dst, tmp},
		Imm:    1, HasImm: true,
		Span: ins.Span,
	})
	fs.regs[ins.Result] = dst
	return nil
}

// Binary op table for word-sized operands. Neq, Le and Ge invert the
// complementary compare.
var wordOpcodes = map[ast.BinaryOp]asm.Opcode{
	ast.OpAdd: asm.OpcodeAdd,
	ast.OpSub: asm.OpcodeSub,
	ast.OpMul: asm.OpcodeMul,
	ast.OpDiv: asm.OpcodeDiv,
	ast.OpMod: asm.OpcodeMod,
	ast.OpAnd: asm.OpcodeAnd,
	ast.OpOr:  asm.OpcodeOr,
	ast.OpXor: asm.OpcodeXor,
	ast.OpShl: asm.OpcodeSll,
	ast.OpShr: asm.OpcodeSrl,
	ast.OpEq:  asm.OpcodeEq,
	ast.OpLt:  asm.OpcodeLt,
	ast.OpGt:  asm.OpcodeGt,
}

var invertedOpcodes = map[ast.BinaryOp]asm.Opcode{
	ast.OpNeq: asm.OpcodeEq,
	ast.OpLe:  asm.OpcodeGt,
	ast.OpGe:  asm.OpcodeLt,
}

var wideOps = map[ast.BinaryOp]asm.WideOp{
	ast.OpAdd: asm.WideAdd,
	ast.OpSub: asm.WideSub,
	ast.OpAnd: asm.WideAnd,
	ast.OpOr:  asm.WideOr,
	ast.OpXor: asm.WideXor,
	ast.OpEq:  asm.WideEq,
	ast.OpLt:  asm.WideLt,
	ast.OpGt:  asm.WideGt,
}

var invertedWideOps = map[ast.BinaryOp]asm.WideOp{
	ast.OpNeq: asm.WideEq,
	ast.OpLe:  asm.WideGt,
	ast.OpGe:  asm.WideLt,
}

func (fs *funcSelector) selectBinary(ins *ir.Instruction) error {
	left, err := fs.reg(ins.Binary.Left, ins.Span)
	if err != nil {
		return err
	}
	right, err := fs.reg(ins.Binary.Right, ins.Span)
	if err != nil {
		return err
	}
	if ins.Binary.Wide != nil {
		return fs.selectWideArith(ins, left, right)
	}
	lt, ok := fs.s.types.Lookup(ins.Binary.Left.Type)
	if !ok {
		return fs.ice(diag.IceUnknownType, ins.Span, "untyped binary operand")
	}
	if lt.Kind == types.KindB256 {
		return fs.selectWideCompare(ins, left, right)
	}

	if opc, ok := wordOpcodes[ins.Binary.Op]; ok {
		dst := fs.fresh()
		fs.emit(asm.Op{
			Opcode: opc,
			Regs:   []asm.Register{dst, left, right},
			Span:   ins.Span,
		})
		fs.regs[ins.Result] = dst
		return nil
	}
	if opc, ok := invertedOpcodes[ins.Binary.Op]; ok {
		tmp := fs.fresh()
		fs.emit(asm.Op{
			Opcode: opc,
			Regs:   []asm.Register{tmp, left, right},
			Span:   ins.Span,
		})
		dst := fs.fresh()
		fs.emit(asm.Op{
			Opcode: asm.OpcodeXori,
			Regs:   []asm.Register{dst, tmp},
			Imm:    1, HasImm: true,
			Span: ins.Span,
		})
		fs.regs[ins.Result] = dst
		return nil
	}
	return fs.ice(diag.IceOperandMismatch, ins.Span, "no opcode for operator %s", ins.Binary.Op)
}

// selectWideArith emits a wqop writing into the result buffer; the
// instruction's value is the buffer's address.
func (fs *funcSelector) selectWideArith(ins *ir.Instruction, left, right asm.Register) error {
	wideOp, ok := wideOps[ins.Binary.Op]
	if !ok {
		return fs.ice(diag.IceOperandMismatch, ins.Span, "operator %s has no wide form", ins.Binary.Op)
	}
	dst, err := fs.reg(ins.Binary.Wide, ins.Span)
	if err != nil {
		return err
	}
	fs.emit(asm.Op{
		Opcode: asm.OpcodeWqop,
		Regs:   []asm.Register{dst, left, right},
		Imm:    uint64(wideOp), HasImm: true,
		Span: ins.Span,
	})
	fs.regs[ins.Result] = dst
	return nil
}

func (fs *funcSelector) selectWideCompare(ins *ir.Instruction, left, right asm.Register) error {
	if wideOp, ok := wideOps[ins.Binary.Op]; ok {
		dst := fs.fresh()
		fs.emit(asm.Op{
			Opcode: asm.OpcodeWqcm,
			Regs:   []asm.Register{dst, left, right},
			Imm:    uint64(wideOp), HasImm: true,
			Span: ins.Span,
		})
		fs.regs[ins.Result] = dst
		return nil
	}
	wideOp, ok := invertedWideOps[ins.Binary.Op]
	if !ok {
		return fs.ice(diag.IceOperandMismatch, ins.Span, "operator %s has no wide compare", ins.Binary.Op)
	}
	tmp := fs.fresh()
	fs.emit(asm.Op{
		Opcode: asm.OpcodeWqcm,
		Regs:   []asm.Register{tmp, left, right},
		Imm:    uint64(wideOp), HasImm: true,
		Span: ins.Span,
	})
	dst := fs.fresh()
	fs.emit(asm.Op{
		Opcode: asm.OpcodeXori,
		Regs:   []asm.Register{dst, tmp},
		Imm:    1, HasImm: true,
		Span: ins.Span,
	})
	fs.regs[ins.Result] = dst
	return nil
}

// phiReg returns the stable register a block argument is read from. It is
// allocated on first use and reused by every predecessor.
func (fs *funcSelector) phiReg(arg *ir.Value) asm.Register {
	if r, ok := fs.phiRegs[arg]; ok {
		return r
	}
	r := fs.fresh()
	fs.phiRegs[arg] = r
	fs.regs[arg] = r
	return r
}

// copyBlockArgs moves each branch argument into the target's phi register.
func (fs *funcSelector) copyBlockArgs(target *ir.Block, args []*ir.Value, span source.Span) error {
	if len(args) != len(target.Args) {
		return fs.ice(diag.IceOperandMismatch, span,
			"branch to %s with %d arguments, block takes %d", target.Label, len(args), len(target.Args))
	}
	for i, a := range args {
		src, err := fs.reg(a, span)
		if err != nil {
			return err
		}
		dst := fs.phiReg(target.Args[i])
		if dst == src {
			continue
		}
		fs.emit(asm.Op{
			Opcode: asm.OpcodeMove,
			Regs:   []asm.Register{dst, src},
			Span:   span,
		})
	}
	return nil
}

func (fs *funcSelector) selectBr(ins *ir.Instruction) error {
	if err := fs.copyBlockArgs(ins.Br.To, ins.Br.Args, ins.Span); err != nil {
		return err
	}
	fs.emit(asm.Op{Opcode: asm.OpcodeJmp, Label: fs.labels[ins.Br.To], Span: ins.Span})
	return nil
}

// selectCbr branches on a nonzero condition. The false edge's argument
// copies sit on the fallthrough path; when the true edge also carries
// copies, they go behind a local trampoline label so neither edge observes
// the other's moves.
func (fs *funcSelector) selectCbr(ins *ir.Instruction) error {
	cond, err := fs.reg(ins.Cbr.Cond, ins.Span)
	if err != nil {
		return err
	}
	trueLabel := fs.labels[ins.Cbr.True]
	if len(ins.Cbr.TrueArgs) > 0 {
		trueLabel = fs.s.seq.NextLabel()
	}
	fs.emit(asm.Op{
		Opcode: asm.OpcodeJnzi,
		Regs:   []asm.Register{cond},
		Label:  trueLabel,
		Span:   ins.Span,
	})
	if err := fs.copyBlockArgs(ins.Cbr.False, ins.Cbr.FalseArgs, ins.Span); err != nil {
		return err
	}
	fs.emit(asm.Op{Opcode: asm.OpcodeJmp, Label: fs.labels[ins.Cbr.False], Span: ins.Span})
	if len(ins.Cbr.TrueArgs) > 0 {
		fs.emit(asm.Op{Opcode: asm.OpcodeLabel, Label: trueLabel})
		if err := fs.copyBlockArgs(ins.Cbr.True, ins.Cbr.TrueArgs, ins.Span); err != nil {
			return err
		}
		fs.emit(asm.Op{Opcode: asm.OpcodeJmp, Label: fs.labels[ins.Cbr.True], Span: ins.Span})
	}
	return nil
}

func (fs *funcSelector) selectContractCall(ins *ir.Instruction) error {
	params, err := fs.reg(ins.ContractCall.Params, ins.Span)
	if err != nil {
		return err
	}
	coins, err := fs.reg(ins.ContractCall.Coins, ins.Span)
	if err != nil {
		return err
	}
	asset, err := fs.reg(ins.ContractCall.Asset, ins.Span)
	if err != nil {
		return err
	}
	gas, err := fs.reg(ins.ContractCall.Gas, ins.Span)
	if err != nil {
		return err
	}
	fs.emit(asm.Op{
		Opcode: asm.OpcodeCall,
		Regs:   []asm.Register{params, coins, asset, gas},
		Span:   ins.Span,
	}.WithComment("call %s", ins.ContractCall.Name))
	if ins.Result != nil {
		// The return-value register is transient; copy it out before any
		// later call clobbers it.
		dst := fs.fresh()
		fs.emit(asm.Op{
			Opcode: asm.OpcodeMove,
			Regs:   []asm.Register{dst, asm.Reserved(asm.RegReturnValue)},
			Span:   ins.Span,
		})
		fs.regs[ins.Result] = dst
	}
	return nil
}

func (fs *funcSelector) selectGetLocal(ins *ir.Instruction) error {
	off, ok := fs.localOff[ins.GetLocal.Local]
	if !ok {
		return fs.ice(diag.IceUnknownVariable, ins.Span, "unknown local %s", ins.GetLocal.Local.Name)
	}
	if size, err := fs.s.types.SizeInBytes(ins.GetLocal.Local.Type); err == nil && size == 0 {
		// Zero-sized locals occupy no frame space; loads and stores
		// through the address vanish, so any register serves.
		fs.regs[ins.Result] = asm.Reserved(asm.RegZero)
		return nil
	}
	if !fs.hasLocals {
		return fs.ice(diag.IceUnknownVariable, ins.Span, "local access without a frame")
	}
	r, err := fs.addImm(fs.localBase, off, ins.Span)
	if err != nil {
		return err
	}
	fs.regs[ins.Result] = r
	return nil
}

// selectGetElemPtr folds compile-time-constant offsets across the whole
// index chain and falls back to multiply-and-add only for non-constant
// array indices.
func (fs *funcSelector) selectGetElemPtr(ins *ir.Instruction) error {
	base, err := fs.reg(ins.GetElemPtr.Base, ins.Span)
	if err != nil {
		return err
	}
	// The base is an address whether it is typed as a pointer or, as with
	// block arguments carrying aggregates, as the aggregate itself.
	cur := fs.pointeeOr(ins.GetElemPtr.Base.Type)

	var constOff uint64
	var runtime asm.Register
	hasRuntime := false

	for _, idx := range ins.GetElemPtr.Indices {
		t, ok := fs.s.types.Lookup(cur)
		if !ok {
			return fs.ice(diag.IceUnknownType, ins.Span, "element access into unknown type")
		}
		switch t.Kind {
		case types.KindStruct:
			c, ok := idx.ConstantUint()
			if !ok {
				return fs.ice(diag.IceGepOnNonAggregate, ins.Span, "non-constant struct field index")
			}
			wordOff, fieldTy, err := fs.s.types.FieldOffsetInWords(cur, int(c)) //nolint:gosec // validated field index
			if err != nil {
				return fs.ice(diag.IceGepOnNonAggregate, ins.Span, "%v", err)
			}
			constOff += wordOff * 8
			cur = fieldTy
		case types.KindArray:
			stride, err := fs.s.types.SizeInWords(t.Elem)
			if err != nil {
				return fs.ice(diag.IceUnknownType, ins.Span, "cannot size array element")
			}
			stride *= 8
			if c, ok := idx.ConstantUint(); ok {
				constOff += c * stride
			} else {
				idxReg, err := fs.reg(idx, ins.Span)
				if err != nil {
					return err
				}
				scaled, err := fs.mulImm(idxReg, stride, ins.Span)
				if err != nil {
					return err
				}
				if hasRuntime {
					sum := fs.fresh()
					fs.emit(asm.Op{
						Opcode: asm.OpcodeAdd,
						Regs:   []asm.Register{sum, runtime, scaled},
						Span:   ins.Span,
					})
					runtime = sum
				} else {
					runtime = scaled
					hasRuntime = true
				}
			}
			cur = t.Elem
		default:
			return fs.ice(diag.IceGepOnNonAggregate, ins.Span,
				"element access into non-aggregate %s", fs.s.types.String(cur))
		}
	}

	addr := base
	if hasRuntime {
		sum := fs.fresh()
		fs.emit(asm.Op{
			Opcode: asm.OpcodeAdd,
			Regs:   []asm.Register{sum, base, runtime},
			Span:   ins.Span,
		})
		addr = sum
	}
	addr, err = fs.addImm(addr, constOff, ins.Span)
	if err != nil {
		return err
	}
	fs.regs[ins.Result] = addr
	return nil
}

func (fs *funcSelector) mulImm(src asm.Register, factor uint64, span source.Span) (asm.Register, error) {
	dst := fs.fresh()
	if fs.s.tgt.FitsImmediate(factor) {
		fs.emit(asm.Op{
			Opcode: asm.OpcodeMuli,
			Regs:   []asm.Register{dst, src},
			Imm:    factor, HasImm: true,
			Span: span,
		})
		return dst, nil
	}
	f, err := fs.materializeWord(factor, "", span)
	if err != nil {
		return asm.Register{}, err
	}
	fs.emit(asm.Op{
		Opcode: asm.OpcodeMul,
		Regs:   []asm.Register{dst, src, f},
		Span:   span,
	})
	return dst, nil
}

// selectLoad picks the opcode width from the static byte size: 1 for bytes,
// 8 for words. Unit loads vanish; any other width is an internal error.
func (fs *funcSelector) selectLoad(ins *ir.Instruction) error {
	src, err := fs.reg(ins.Load.Src, ins.Span)
	if err != nil {
		return err
	}
	size, err := fs.s.types.SizeInBytes(ins.Type)
	if err != nil {
		return fs.ice(diag.IceUnknownType, ins.Span, "cannot size loaded type")
	}
	switch size {
	case 0:
		fs.regs[ins.Result] = asm.Reserved(asm.RegZero)
		return nil
	case 1:
		dst := fs.fresh()
		fs.emit(asm.Op{
			Opcode: asm.OpcodeLb,
			Regs:   []asm.Register{dst, src},
			Imm:    0, HasImm: true,
			Span: ins.Span,
		})
		fs.regs[ins.Result] = dst
		return nil
	case 8:
		dst := fs.fresh()
		fs.emit(asm.Op{
			Opcode: asm.OpcodeLw,
			Regs:   []asm.Register{dst, src},
			Imm:    0, HasImm: true,
			Span: ins.Span,
		})
		fs.regs[ins.Result] = dst
		return nil
	default:
		return fs.ice(diag.IceBadLoadWidth, ins.Span, "load of %d bytes", size)
	}
}

// selectStore keys the copy-vs-memcpy choice on what the destination
// points at. A copy-typed pointee arrives as a value in the source
// register; anything else arrives as an address and the store copies the
// pointee bytes.
func (fs *funcSelector) selectStore(ins *ir.Instruction) error {
	dst, err := fs.reg(ins.Store.Dst, ins.Span)
	if err != nil {
		return err
	}
	src, err := fs.reg(ins.Store.Src, ins.Span)
	if err != nil {
		return err
	}
	ty := fs.pointeeOr(ins.Store.Dst.Type)
	if fs.s.types.IsCopyType(ty) {
		size, err := fs.s.types.SizeInBytes(ty)
		if err != nil {
			return fs.ice(diag.IceUnknownType, ins.Span, "cannot size stored type")
		}
		switch size {
		case 0:
			return nil
		case 1:
			fs.emit(asm.Op{
				Opcode: asm.OpcodeSb,
				Regs:   []asm.Register{dst, src},
				Imm:    0, HasImm: true,
				Span: ins.Span,
			})
			return nil
		case 8:
			fs.emit(asm.Op{
				Opcode: asm.OpcodeSw,
				Regs:   []asm.Register{dst, src},
				Imm:    0, HasImm: true,
				Span: ins.Span,
			})
			return nil
		default:
			return fs.ice(diag.IceBadLoadWidth, ins.Span, "store of %d bytes", size)
		}
	}

	size, err := fs.s.types.SizeInBytes(ty)
	if err != nil {
		return fs.ice(diag.IceUnknownType, ins.Span, "cannot size copied type")
	}
	if fs.s.tgt.FitsImmediate(size) {
		fs.emit(asm.Op{
			Opcode: asm.OpcodeMcpi,
			Regs:   []asm.Register{dst, src},
			Imm:    size, HasImm: true,
			Span: ins.Span,
		})
		return nil
	}
	lenReg, err := fs.materializeWord(size, "", ins.Span)
	if err != nil {
		return err
	}
	fs.emit(asm.Op{
		Opcode: asm.OpcodeMcp,
		Regs:   []asm.Register{dst, src, lenReg},
		Span:   ins.Span,
	})
	return nil
}

// pointeeOr returns the pointee for pointer types and the type itself
// otherwise. Non-copy values are carried as addresses, so both shapes
// describe the same pointee.
func (fs *funcSelector) pointeeOr(ty types.TypeID) types.TypeID {
	if t, ok := fs.s.types.Lookup(ty); ok && t.Kind == types.KindPointer {
		return t.Elem
	}
	return ty
}

// selectRet returns copy-typed values in a register and everything else
// as (address, length) through retd. The declared return type decides,
// since aggregate values reach here typed as pointers.
func (fs *funcSelector) selectRet(ins *ir.Instruction) error {
	val := ins.Ret.Val
	if val == nil {
		fs.emit(asm.Op{Opcode: asm.OpcodeRet, Regs: []asm.Register{asm.Reserved(asm.RegZero)}, Span: ins.Span})
		return nil
	}
	r, err := fs.reg(val, ins.Span)
	if err != nil {
		return err
	}
	ty := fs.f.Ret
	if ty == types.NoTypeID {
		ty = fs.pointeeOr(val.Type)
	}
	if fs.s.types.IsCopyType(ty) {
		fs.emit(asm.Op{Opcode: asm.OpcodeRet, Regs: []asm.Register{r}, Span: ins.Span})
		return nil
	}
	size, err := fs.s.types.SizeInBytes(ty)
	if err != nil {
		return fs.ice(diag.IceUnknownType, ins.Span, "cannot size returned type")
	}
	lenReg, err := fs.materializeWord(size, "", ins.Span)
	if err != nil {
		return err
	}
	fs.emit(asm.Op{
		Opcode: asm.OpcodeRetd,
		Regs:   []asm.Register{r, lenReg},
		Span:   ins.Span,
	})
	return nil
}

func (fs *funcSelector) selectRevert(ins *ir.Instruction) error {
	r, err := fs.reg(ins.Revert.Code, ins.Span)
	if err != nil {
		return err
	}
	fs.emit(asm.Op{Opcode: asm.OpcodeRvrt, Regs: []asm.Register{r}, Span: ins.Span})
	return nil
}

func (fs *funcSelector) selectStateWord(ins *ir.Instruction) error {
	key, err := fs.reg(ins.StateWord.Key, ins.Span)
	if err != nil {
		return err
	}
	if ins.Op == ir.OpStateLoadWord {
		dst := fs.fresh()
		fs.emit(asm.Op{
			Opcode: asm.OpcodeSrw,
			Regs:   []asm.Register{dst, key},
			Span:   ins.Span,
		})
		fs.regs[ins.Result] = dst
		return nil
	}
	val, err := fs.reg(ins.StateWord.Val, ins.Span)
	if err != nil {
		return err
	}
	fs.emit(asm.Op{
		Opcode: asm.OpcodeSww,
		Regs:   []asm.Register{key, val},
		Span:   ins.Span,
	})
	return nil
}

func (fs *funcSelector) selectStateQuad(ins *ir.Instruction) error {
	ptr, err := fs.reg(ins.StateQuad.Ptr, ins.Span)
	if err != nil {
		return err
	}
	key, err := fs.reg(ins.StateQuad.Key, ins.Span)
	if err != nil {
		return err
	}
	opc := asm.OpcodeSrwq
	if ins.Op == ir.OpStateStoreQuad {
		opc = asm.OpcodeSwwq
	}
	fs.emit(asm.Op{
		Opcode: opc,
		Regs:   []asm.Register{ptr, key},
		Imm:    ins.StateQuad.NumSlots, HasImm: true,
		Span: ins.Span,
	})
	return nil
}
