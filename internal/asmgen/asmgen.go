// Package asmgen selects virtual-register assembly from IR. Every reachable
// block of every function is visited once in layout order, with a
// value-to-register map threaded through the walk. The output is an
// abstract-stage program; jump optimization and register allocation run
// downstream.
package asmgen

import (
	"errors"
	"fmt"

	"fathom/internal/asm"
	"fathom/internal/diag"
	"fathom/internal/ir"
	"fathom/internal/source"
	"fathom/internal/target"
	"fathom/internal/types"
)

// errAborted signals that selection stopped after a diagnostic was
// recorded.
var errAborted = errors.New("instruction selection aborted")

// Selector turns one unit's IR into an abstract program. The sequencer is
// shared with every other id consumer of the compilation.
type Selector struct {
	types *types.Interner
	tgt   target.Target
	seq   *asm.Sequencer
	bag   *diag.Bag
}

func New(in *types.Interner, tgt target.Target, seq *asm.Sequencer, bag *diag.Bag) *Selector {
	return &Selector{types: in, tgt: tgt, seq: seq, bag: bag}
}

// Generate selects the whole unit. A selection failure in any function
// aborts the unit; the diagnostic is already in the bag.
func (s *Selector) Generate(ctx *ir.Context, kind asm.ProgramKind) (asm.Program, error) {
	prog := asm.Program{
		Kind:  kind,
		Stage: asm.StageAbstract,
		Data:  asm.NewDataSection(),
	}
	for _, f := range ctx.Functions {
		fs := &funcSelector{
			s:        s,
			f:        f,
			data:     prog.Data,
			regs:     make(map[*ir.Value]asm.Register),
			labels:   make(map[*ir.Block]asm.Label),
			phiRegs:  make(map[*ir.Value]asm.Register),
			localOff: make(map[*ir.LocalVar]uint64),
		}
		ops, err := fs.run()
		if err != nil {
			return asm.Program{}, err
		}
		prog.Funcs = append(prog.Funcs, asm.Function{
			Name:     f.Name,
			IsEntry:  f.IsEntry,
			Selector: f.Selector,
			Ops:      ops,
		})
	}
	if err := s.checkDataLimit(prog.Data); err != nil {
		return asm.Program{}, err
	}
	return prog, nil
}

func (s *Selector) checkDataLimit(d *asm.DataSection) error {
	if s.tgt.DataSectionLimit == 0 {
		return nil
	}
	var size uint64
	for _, e := range d.Entries {
		switch e.Kind {
		case asm.EntryWord:
			size += 8
		case asm.EntryBytes:
			size += uint64(len(e.Bytes))
		}
	}
	if size > uint64(s.tgt.DataSectionLimit) {
		return fmt.Errorf("data section is %d bytes, target %s allows %d",
			size, s.tgt.Name, s.tgt.DataSectionLimit)
	}
	return nil
}

// funcSelector carries the per-function selection state.
type funcSelector struct {
	s    *Selector
	f    *ir.Function
	data *asm.DataSection
	ops  []asm.Op

	regs    map[*ir.Value]asm.Register
	labels  map[*ir.Block]asm.Label
	phiRegs map[*ir.Value]asm.Register

	localOff  map[*ir.LocalVar]uint64
	localBase asm.Register
	hasLocals bool
}

func (fs *funcSelector) emit(op asm.Op) {
	fs.ops = append(fs.ops, op)
}

func (fs *funcSelector) fresh() asm.Register {
	return fs.s.seq.NextRegister()
}

func (fs *funcSelector) userErr(code diag.Code, span source.Span, format string, args ...any) error {
	fs.s.bag.Add(diag.NewError(code, span, fmt.Sprintf(format, args...)))
	return errAborted
}

func (fs *funcSelector) ice(code diag.Code, span source.Span, format string, args ...any) error {
	fs.s.bag.Add(diag.NewBug(code, span, fmt.Sprintf(format, args...)))
	return errAborted
}

func (fs *funcSelector) run() ([]asm.Op, error) {
	for _, b := range fs.f.Blocks {
		fs.labels[b] = fs.s.seq.NextLabel()
	}
	if err := fs.prologue(); err != nil {
		return nil, err
	}
	for _, b := range fs.f.Blocks {
		fs.emit(asm.Op{Opcode: asm.OpcodeLabel, Label: fs.labels[b]})
		for _, ins := range b.Instrs {
			if err := fs.selectInstr(ins); err != nil {
				return nil, err
			}
		}
	}
	return fs.ops, nil
}

// prologue binds argument registers and claims the local stack frame.
// Arguments live word-aligned at the frame base: copy-typed ones are read
// by value, larger ones by address.
func (fs *funcSelector) prologue() error {
	var off uint64
	for _, arg := range fs.f.Args {
		words, err := fs.s.types.SizeInWords(arg.Type)
		if err != nil {
			return fs.ice(diag.IceUnknownType, arg.Span, "cannot size argument %s", arg.Name)
		}
		if fs.s.types.IsCopyType(arg.Type) {
			if words == 0 {
				fs.regs[arg] = asm.Reserved(asm.RegZero)
				continue
			}
			r := fs.fresh()
			fs.emit(asm.Op{
				Opcode: asm.OpcodeLw,
				Regs:   []asm.Register{r, asm.Reserved(asm.RegStackStart)},
				Imm:    off, HasImm: true,
				Span: arg.Span,
			}.WithComment("arg %s", arg.Name))
			fs.regs[arg] = r
			off++
			continue
		}
		r, err := fs.addImm(asm.Reserved(asm.RegStackStart), off*8, arg.Span)
		if err != nil {
			return err
		}
		fs.regs[arg] = r
		off += words
	}

	var frame uint64
	for _, lv := range fs.f.Locals {
		words, err := fs.s.types.SizeInWords(lv.Type)
		if err != nil {
			return fs.ice(diag.IceUnknownType, fs.f.Span, "cannot size local %s", lv.Name)
		}
		fs.localOff[lv] = frame
		frame += words * 8
	}
	if frame == 0 {
		return nil
	}
	fs.hasLocals = true
	fs.localBase = fs.fresh()
	fs.emit(asm.Op{
		Opcode: asm.OpcodeMove,
		Regs:   []asm.Register{fs.localBase, asm.Reserved(asm.RegStackPtr)},
		Span:   fs.f.Span,
	}.WithComment("locals base"))
	fs.emit(asm.Op{
		Opcode: asm.OpcodeCfei,
		Imm:    frame, HasImm: true,
		Span: fs.f.Span,
	})
	return nil
}

// reg resolves a value to its register, materializing constants on first
// use.
func (fs *funcSelector) reg(v *ir.Value, span source.Span) (asm.Register, error) {
	if r, ok := fs.regs[v]; ok {
		return r, nil
	}
	if v == nil {
		return asm.Register{}, fs.ice(diag.IceUseBeforeDef, span, "nil operand")
	}
	if v.IsConstant() {
		r, err := fs.materializeConst(v)
		if err != nil {
			return asm.Register{}, err
		}
		fs.regs[v] = r
		return r, nil
	}
	return asm.Register{}, fs.ice(diag.IceUseBeforeDef, v.Span, "value used before definition")
}

// addImm produces base+off in a fresh register, routing large offsets
// through a scratch register.
func (fs *funcSelector) addImm(base asm.Register, off uint64, span source.Span) (asm.Register, error) {
	if off == 0 {
		return base, nil
	}
	r := fs.fresh()
	if fs.s.tgt.FitsImmediate(off) {
		fs.emit(asm.Op{
			Opcode: asm.OpcodeAddi,
			Regs:   []asm.Register{r, base},
			Imm:    off, HasImm: true,
			Span: span,
		})
		return r, nil
	}
	tmp, err := fs.materializeWord(off, "", span)
	if err != nil {
		return asm.Register{}, err
	}
	fs.emit(asm.Op{
		Opcode: asm.OpcodeAdd,
		Regs:   []asm.Register{r, base, tmp},
		Span:   span,
	})
	return r, nil
}
