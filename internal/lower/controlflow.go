package lower

import (
	"fathom/internal/ast"
	"fathom/internal/diag"
	"fathom/internal/ir"
	"fathom/internal/types"
)

// lowerIf lowers a conditional. A non-unit if carries its result through a
// block argument on the merge block; arms that diverge never branch there.
// When both arms diverge the merge block is never created and the whole
// expression diverges.
func (l *Lowerer) lowerIf(e *ast.Expr) (Lowered, error) {
	data := e.Data.(ast.IfData)
	cond, err := l.lowerExpr(data.Cond)
	if err != nil {
		return Lowered{}, err
	}
	if cond.Diverges {
		return diverged(), nil
	}

	carries := data.Else != nil && !l.isUnit(e.Type)

	thenB := l.f.NewBlock("then")
	var elseB *ir.Block
	if data.Else != nil {
		elseB = l.f.NewBlock("else")
	}

	type armEnd struct {
		block *ir.Block
		val   *ir.Value
	}
	var ends []armEnd

	lowerArm := func(b *ir.Block, body *ast.Expr) error {
		l.startBlock(b)
		res, err := l.lowerExpr(body)
		if err != nil {
			return err
		}
		if !res.Diverges {
			ends = append(ends, armEnd{block: l.cur, val: res.Val})
		}
		return nil
	}

	// The cbr is emitted after the arms are lowered so a missing else arm
	// can target the merge block directly. Record the origin first.
	origin := l.cur

	if err := lowerArm(thenB, data.Then); err != nil {
		return Lowered{}, err
	}
	if elseB != nil {
		if err := lowerArm(elseB, data.Else); err != nil {
			return Lowered{}, err
		}
	}

	if len(ends) == 0 && elseB != nil {
		// Both arms diverge; control never rejoins.
		origin.Append(&ir.Instruction{
			Op:   ir.OpCbr,
			Span: e.Span,
			Cbr:  ir.CbrInstr{Cond: cond.Val, True: thenB, False: elseB},
		})
		return diverged(), nil
	}

	merge := l.f.NewBlock("merge")
	var result *ir.Value
	if carries {
		result = merge.NewBlockArg(e.Type, e.Span)
	}

	falseTarget := merge
	if elseB != nil {
		falseTarget = elseB
	}
	origin.Append(&ir.Instruction{
		Op:   ir.OpCbr,
		Span: e.Span,
		Cbr:  ir.CbrInstr{Cond: cond.Val, True: thenB, False: falseTarget},
	})
	for _, end := range ends {
		br := ir.BrInstr{To: merge}
		if carries {
			br.Args = []*ir.Value{end.val}
		}
		end.block.Append(&ir.Instruction{Op: ir.OpBr, Span: e.Span, Br: br})
	}

	l.startBlock(merge)
	if carries {
		return value(result), nil
	}
	return value(l.unitVal(e.Span)), nil
}

// lowerWhile lowers a loop. Block creation order is fixed: condition,
// break trampoline, body, exit. The break trampoline holds a single
// branch to the exit block; break statements target the trampoline.
func (l *Lowerer) lowerWhile(e *ast.Expr) (Lowered, error) {
	data := e.Data.(ast.WhileData)
	if l.program.Kind == ast.ProgramPredicate {
		return Lowered{}, l.userErr(diag.GenWhileInPredicate, e.Span,
			"while loops are not allowed in predicates")
	}

	condB := l.f.NewBlock("while_cond")
	breakB := l.f.NewBlock("while_break")
	bodyB := l.f.NewBlock("while_body")
	exitB := l.f.NewBlock("while_exit")

	l.emit(&ir.Instruction{Op: ir.OpBr, Span: e.Span, Br: ir.BrInstr{To: condB}})

	l.startBlock(condB)
	cond, err := l.lowerExpr(data.Cond)
	if err != nil {
		return Lowered{}, err
	}
	if cond.Diverges {
		l.f.RemoveBlock(breakB)
		l.f.RemoveBlock(bodyB)
		l.f.RemoveBlock(exitB)
		return diverged(), nil
	}
	l.emit(&ir.Instruction{
		Op:   ir.OpCbr,
		Span: e.Span,
		Cbr:  ir.CbrInstr{Cond: cond.Val, True: bodyB, False: exitB},
	})

	breakB.Append(&ir.Instruction{Op: ir.OpBr, Span: e.Span, Br: ir.BrInstr{To: exitB}})

	l.loopStack = append(l.loopStack, loopCtx{breakTarget: breakB, continueTarget: condB})
	l.startBlock(bodyB)
	body, err := l.lowerExpr(data.Body)
	l.loopStack = l.loopStack[:len(l.loopStack)-1]
	if err != nil {
		return Lowered{}, err
	}
	if !body.Diverges {
		l.emit(&ir.Instruction{Op: ir.OpBr, Span: e.Span, Br: ir.BrInstr{To: condB}})
	}

	l.startBlock(exitB)
	return value(l.unitVal(e.Span)), nil
}

func (l *Lowerer) lowerBreak(e *ast.Expr) (Lowered, error) {
	if len(l.loopStack) == 0 {
		return Lowered{}, l.userErr(diag.GenBreakOutsideLoop, e.Span, "break outside of a loop")
	}
	target := l.loopStack[len(l.loopStack)-1].breakTarget
	l.emit(&ir.Instruction{Op: ir.OpBr, Span: e.Span, Br: ir.BrInstr{To: target}})
	return diverged(), nil
}

func (l *Lowerer) lowerContinue(e *ast.Expr) (Lowered, error) {
	if len(l.loopStack) == 0 {
		return Lowered{}, l.userErr(diag.GenContinueOutsideLoop, e.Span, "continue outside of a loop")
	}
	target := l.loopStack[len(l.loopStack)-1].continueTarget
	l.emit(&ir.Instruction{Op: ir.OpBr, Span: e.Span, Br: ir.BrInstr{To: target}})
	return diverged(), nil
}

func (l *Lowerer) lowerReturn(e *ast.Expr) (Lowered, error) {
	data := e.Data.(ast.ReturnData)
	var val *ir.Value
	if data.Value != nil {
		res, err := l.lowerExpr(data.Value)
		if err != nil {
			return Lowered{}, err
		}
		if res.Diverges {
			return diverged(), nil
		}
		val = res.Val
	} else {
		val = l.unitVal(e.Span)
	}

	frame := l.returnStack[len(l.returnStack)-1]
	if !frame.inline {
		l.emit(&ir.Instruction{Op: ir.OpRet, Span: e.Span, Ret: ir.RetInstr{Val: val}})
		return diverged(), nil
	}

	exit := frame.ensureExit(l, e)
	br := ir.BrInstr{To: exit}
	if frame.result != nil {
		br.Args = []*ir.Value{val}
	}
	l.emit(&ir.Instruction{Op: ir.OpBr, Span: e.Span, Br: br})
	return diverged(), nil
}

// ensureExit creates the inline frame's exit block on first use, with a
// block argument when the callee's result is carried in a register.
func (rc *returnCtx) ensureExit(l *Lowerer, e *ast.Expr) *ir.Block {
	if rc.exit == nil {
		rc.exit = l.f.NewBlock("inline_exit")
		if !l.isUnit(rc.retTy) {
			rc.result = rc.exit.NewBlockArg(rc.retTy, e.Span)
		}
	}
	return rc.exit
}

// lowerShortCircuit lowers && and ||. The right operand only runs on the
// fallthrough edge; when the left operand diverges the right is never
// lowered at all.
func (l *Lowerer) lowerShortCircuit(e *ast.Expr) (Lowered, error) {
	data := e.Data.(ast.ShortCircuitData)
	left, err := l.lowerExpr(data.Left)
	if err != nil {
		return Lowered{}, err
	}
	if left.Diverges {
		return diverged(), nil
	}

	rhsB := l.f.NewBlock("rhs")
	merge := l.f.NewBlock("merge")
	result := merge.NewBlockArg(e.Type, e.Span)

	cbr := ir.CbrInstr{Cond: left.Val}
	if e.Kind == ast.ExprAnd {
		cbr.True = rhsB
		cbr.False = merge
		cbr.FalseArgs = []*ir.Value{left.Val}
	} else {
		cbr.True = merge
		cbr.TrueArgs = []*ir.Value{left.Val}
		cbr.False = rhsB
	}
	l.emit(&ir.Instruction{Op: ir.OpCbr, Span: e.Span, Cbr: cbr})

	l.startBlock(rhsB)
	right, err := l.lowerExpr(data.Right)
	if err != nil {
		return Lowered{}, err
	}
	if !right.Diverges {
		l.emit(&ir.Instruction{
			Op:   ir.OpBr,
			Span: e.Span,
			Br:   ir.BrInstr{To: merge, Args: []*ir.Value{right.Val}},
		})
	}

	l.startBlock(merge)
	return value(result), nil
}

func (l *Lowerer) isUnit(ty types.TypeID) bool {
	t, ok := l.types.Lookup(ty)
	return ok && t.Kind == types.KindUnit
}
