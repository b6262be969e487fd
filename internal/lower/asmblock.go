package lower

import (
	"fathom/internal/ast"
	"fathom/internal/ir"
	"fathom/internal/types"
)

// lowerAsmBlock carries an inline asm block through to instruction
// selection mostly verbatim. Only the register initializers are lowered
// here; opcode and operand validation happens during instruction selection,
// the last point where register substitution is possible.
func (l *Lowerer) lowerAsmBlock(e *ast.Expr) (Lowered, error) {
	data := e.Data.(ast.AsmData)

	regs := make([]ir.AsmRegDecl, 0, len(data.Regs))
	for _, r := range data.Regs {
		decl := ir.AsmRegDecl{Name: r.Name}
		if r.Init != nil {
			res, err := l.lowerExpr(r.Init)
			if err != nil {
				return Lowered{}, err
			}
			if res.Diverges {
				return diverged(), nil
			}
			decl.Init = res.Val
		}
		regs = append(regs, decl)
	}

	ops := make([]ir.AsmInstrOp, len(data.Ops))
	for i, op := range data.Ops {
		ops[i] = ir.AsmInstrOp{Opcode: op.Opcode, Args: op.Args, Span: op.Span}
	}

	ty := e.Type
	if data.RetReg == "" {
		ty = types.NoTypeID
	}
	res := l.emit(&ir.Instruction{
		Op:   ir.OpAsm,
		Type: ty,
		Span: e.Span,
		Asm:  ir.AsmInstr{Regs: regs, Ops: ops, RetReg: data.RetReg},
	})
	if res == nil {
		return value(l.unitVal(e.Span)), nil
	}
	return value(res), nil
}
