package asmgen

import (
	"fathom/internal/asm"
	"fathom/internal/ast"
	"fathom/internal/diag"
	"fathom/internal/ir"
)

// selectAsm expands an inline asm block. This is the last point where
// register names can be substituted, so malformed blocks (unknown opcode or
// register, shadowed reserved name, bad immediate, missing return register)
// surface here as user errors.
func (fs *funcSelector) selectAsm(ins *ir.Instruction) error {
	named := make(map[string]asm.Register, len(ins.Asm.Regs))
	for _, decl := range ins.Asm.Regs {
		if _, reserved := asm.LookupReserved(decl.Name); reserved {
			return fs.userErr(diag.GenAsmShadowsReserved, ins.Span,
				"asm register %q shadows a reserved register", decl.Name)
		}
		if _, dup := named[decl.Name]; dup {
			return fs.userErr(diag.GenUnknownAsmRegister, ins.Span,
				"asm register %q declared twice", decl.Name)
		}
		r := fs.fresh()
		named[decl.Name] = r
		if decl.Init != nil {
			src, err := fs.reg(decl.Init, ins.Span)
			if err != nil {
				return err
			}
			fs.emit(asm.Op{
				Opcode: asm.OpcodeMove,
				Regs:   []asm.Register{r, src},
				Span:   ins.Span,
			})
		}
	}

	for _, op := range ins.Asm.Ops {
		opc, ok := asm.LookupOpcode(op.Opcode)
		if !ok {
			return fs.userErr(diag.GenUnknownAsmOpcode, op.Span, "unknown instruction %q", op.Opcode)
		}
		out := asm.Op{Opcode: opc, Span: op.Span}
		for _, arg := range op.Args {
			switch arg.Kind {
			case ast.AsmArgReg:
				r, err := fs.resolveAsmReg(named, arg)
				if err != nil {
					return err
				}
				out.Regs = append(out.Regs, r)
			case ast.AsmArgImm:
				if out.HasImm {
					return fs.userErr(diag.GenAsmBadImmediate, arg.Span,
						"instruction %q takes at most one immediate", op.Opcode)
				}
				if !fs.s.tgt.FitsImmediate(arg.Imm) {
					return fs.userErr(diag.GenAsmBadImmediate, arg.Span,
						"immediate %d exceeds the %d-bit field", arg.Imm, fs.s.tgt.ImmBits)
				}
				out.Imm = arg.Imm
				out.HasImm = true
			}
		}
		fs.emit(out)
	}

	if ins.Asm.RetReg != "" {
		r, ok := named[ins.Asm.RetReg]
		if !ok {
			return fs.userErr(diag.GenAsmReturnMismatch, ins.Span,
				"asm block returns undeclared register %q", ins.Asm.RetReg)
		}
		fs.regs[ins.Result] = r
	} else if ins.Result != nil {
		return fs.userErr(diag.GenAsmReturnMismatch, ins.Span,
			"asm block yields a value but names no return register")
	}
	return nil
}

func (fs *funcSelector) resolveAsmReg(named map[string]asm.Register, arg ast.AsmArg) (asm.Register, error) {
	if r, ok := named[arg.Reg]; ok {
		return r, nil
	}
	if res, ok := asm.LookupReserved(arg.Reg); ok {
		return asm.Reserved(res), nil
	}
	return asm.Register{}, fs.userErr(diag.GenUnknownAsmRegister, arg.Span,
		"unknown asm register %q", arg.Reg)
}
