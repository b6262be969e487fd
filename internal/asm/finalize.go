package asm

// Finalize is the last pipeline stage, reserved for peephole optimization
// (e.g. merging consecutive constant-offset additions). It currently
// performs a faithful copy; it must never reorder instructions or change
// register assignments.
func Finalize(p Program) Program {
	out := p.clone()
	out.Stage = StageFinalized
	return out
}
