package asm

import (
	"fmt"
	"io"
)

// ProgramKind mirrors the compilation unit kind.
type ProgramKind uint8

const (
	ProgramContract ProgramKind = iota
	ProgramScript
	ProgramPredicate
	ProgramLibrary
)

func (k ProgramKind) String() string {
	switch k {
	case ProgramContract:
		return "contract"
	case ProgramScript:
		return "script"
	case ProgramPredicate:
		return "predicate"
	case ProgramLibrary:
		return "library"
	default:
		return "unknown"
	}
}

// Stage records how far through the pipeline a program has travelled. One
// concrete representation serves all four stages; each pass consumes its
// input and produces a new program with the next stage stamped in.
type Stage uint8

const (
	StageAbstract Stage = iota
	StageJumpOptimized
	StageRegisterAllocated
	StageFinalized
)

func (s Stage) String() string {
	switch s {
	case StageAbstract:
		return "abstract"
	case StageJumpOptimized:
		return "jump-optimized"
	case StageRegisterAllocated:
		return "register-allocated"
	case StageFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Function is one unit of the instruction stream. Entries carry the ABI
// selector and name; ordinary functions carry neither.
type Function struct {
	Name     string
	IsEntry  bool
	Selector uint64
	Ops      []Op
}

// Program pairs a data section with the per-function instruction streams of
// one compilation unit.
type Program struct {
	Kind  ProgramKind
	Stage Stage
	Data  *DataSection
	Funcs []Function
}

// clone deep-copies the program so a stage never aliases its input.
func (p Program) clone() Program {
	out := Program{Kind: p.Kind, Stage: p.Stage}
	if p.Data != nil {
		out.Data = &DataSection{Entries: append([]Entry(nil), p.Data.Entries...)}
	}
	out.Funcs = make([]Function, len(p.Funcs))
	for i, f := range p.Funcs {
		ops := make([]Op, len(f.Ops))
		for j, op := range f.Ops {
			op.Regs = append([]Register(nil), op.Regs...)
			ops[j] = op
		}
		out.Funcs[i] = Function{Name: f.Name, IsEntry: f.IsEntry, Selector: f.Selector, Ops: ops}
	}
	return out
}

// OpCount returns the total number of ops across all functions.
func (p Program) OpCount() int {
	n := 0
	for _, f := range p.Funcs {
		n += len(f.Ops)
	}
	return n
}

// Print writes the data section and the `.program:` listing, one op per
// line. This text form is the sole externally observed artifact.
func (p Program) Print(w io.Writer) {
	if p.Data != nil {
		p.Data.Print(w)
	}
	fmt.Fprintln(w, ".program:")
	for _, f := range p.Funcs {
		if f.IsEntry {
			fmt.Fprintf(w, "; entry %s selector=0x%x\n", f.Name, f.Selector)
		} else {
			fmt.Fprintf(w, "; fn %s\n", f.Name)
		}
		for _, op := range f.Ops {
			fmt.Fprintf(w, "%s\n", op.String())
		}
	}
}
