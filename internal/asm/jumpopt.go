package asm

// JumpOptimize removes no-op jumps and unreachable labels. Two ordered
// linear passes per function: first delete every unconditional jump whose
// target label is the very next op, then delete every label no remaining
// jump references. The second pass must see the stream the first produced,
// otherwise a label kept alive only by a deleted jump survives.
func JumpOptimize(p Program) Program {
	out := p.clone()
	out.Stage = StageJumpOptimized
	for i := range out.Funcs {
		ops := dropRedundantJumps(out.Funcs[i].Ops)
		out.Funcs[i].Ops = dropDeadLabels(ops)
	}
	return out
}

func dropRedundantJumps(ops []Op) []Op {
	out := make([]Op, 0, len(ops))
	for i, op := range ops {
		if op.Opcode == OpcodeJmp && i+1 < len(ops) {
			next := ops[i+1]
			if next.Opcode == OpcodeLabel && next.Label == op.Label {
				continue
			}
		}
		out = append(out, op)
	}
	return out
}

func dropDeadLabels(ops []Op) []Op {
	referenced := make(map[Label]bool)
	for _, op := range ops {
		switch op.Opcode {
		case OpcodeJmp, OpcodeJnzi:
			referenced[op.Label] = true
		}
	}
	out := make([]Op, 0, len(ops))
	for _, op := range ops {
		if op.Opcode == OpcodeLabel && !referenced[op.Label] {
			continue
		}
		out = append(out, op)
	}
	return out
}
