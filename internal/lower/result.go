package lower

import (
	"fathom/internal/ir"
)

// Lowered is the result of lowering one expression: either a value, or the
// statement that this path unconditionally terminates (return, break,
// revert, a call that never returns). Every caller must check Diverges and
// stop emitting sibling instructions into an already-terminated block.
type Lowered struct {
	Val      *ir.Value
	Diverges bool
}

func value(v *ir.Value) Lowered {
	return Lowered{Val: v}
}

func diverged() Lowered {
	return Lowered{Diverges: true}
}
