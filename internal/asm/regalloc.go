package asm

import (
	"sort"
)

// scratchRegs is the number of hardware registers held back for staging
// spilled operands when spilling is needed at all. A call op reads four
// registers, so four scratch registers cover the worst single op.
const scratchRegs = 4

// AllocateRegisters bounds the unbounded virtual-register stream to
// numRegisters hardware registers, inserting spill traffic where the
// stream's register pressure exceeds the hardware set. Program order and
// observable semantics are preserved; only register identities and spill
// loads/stores change.
//
// Each virtual register gets a live interval over the instruction stream.
// Backward jumps extend every interval that is live anywhere inside the
// loop they close past the jump itself, so a register assigned to a
// loop-carried value is never reused before the back edge re-reads it.
// When every interval fits, each is pinned to one hardware register for
// its whole lifetime. Otherwise the interval ending last is spilled to a
// stack slot and all of its accesses go through scratch registers, which
// re-execute on every loop iteration.
func AllocateRegisters(p Program, numRegisters int) Program {
	out := p.clone()
	out.Stage = StageRegisterAllocated
	if numRegisters < 1 {
		return out
	}
	for i := range out.Funcs {
		out.Funcs[i].Ops = allocateFunc(out.Funcs[i].Ops, numRegisters)
	}
	return out
}

// interval is the live range of one virtual register, in instruction
// positions, both ends inclusive.
type interval struct {
	id    uint64
	start int
	end   int
}

func allocateFunc(ops []Op, numRegisters int) []Op {
	ivs := liveIntervals(ops)
	if len(ivs) == 0 {
		return ops
	}
	if maxPressure(ivs) <= numRegisters {
		asn := assignIntervals(ivs, numRegisters)
		return rewriteOps(ops, asn, Register{}, 0)
	}
	// Pressure exceeds the register file: hold back the scratch set and
	// one register as the spill-area base.
	allocatable := numRegisters - scratchRegs - 1
	if allocatable < 1 {
		// Too few registers to spill through; leave virtuals in place
		// rather than emit wrong code. Target validation rejects such
		// register files before codegen.
		return ops
	}
	asn := assignIntervals(ivs, allocatable)
	spillBase := Hardware(uint64(numRegisters - 1)) //nolint:gosec // checked >= 1
	out := rewriteOps(ops, asn, spillBase, uint64(allocatable))
	if len(asn.spilled) == 0 {
		return out
	}
	return withSpillPrologue(out, spillBase, len(asn.spilled))
}

// liveIntervals computes one interval per virtual register, then extends
// intervals across backward jumps: a value live anywhere inside a loop
// survives until the back edge, because the jump re-enters code that was
// rewritten against its register. Extension repeats until stable so nested
// loops propagate outward.
func liveIntervals(ops []Op) []*interval {
	byID := make(map[uint64]*interval)
	touch := func(id uint64, pos int) {
		iv, ok := byID[id]
		if !ok {
			byID[id] = &interval{id: id, start: pos, end: pos}
			return
		}
		if pos < iv.start {
			iv.start = pos
		}
		if pos > iv.end {
			iv.end = pos
		}
	}
	labelPos := make(map[Label]int)
	type edge struct{ to, from int }
	var jumps []struct {
		label Label
		pos   int
	}
	for pos, op := range ops {
		switch op.Opcode {
		case OpcodeLabel:
			labelPos[op.Label] = pos
		case OpcodeJmp, OpcodeJnzi:
			jumps = append(jumps, struct {
				label Label
				pos   int
			}{op.Label, pos})
		}
		for _, r := range op.Regs {
			if r.Kind == RegVirtual {
				touch(r.ID, pos)
			}
		}
	}
	var back []edge
	for _, j := range jumps {
		if t, ok := labelPos[j.label]; ok && t < j.pos {
			back = append(back, edge{to: t, from: j.pos})
		}
	}
	for changed := true; changed; {
		changed = false
		for _, e := range back {
			for _, iv := range byID {
				if iv.start <= e.from && iv.end >= e.to && iv.end < e.from {
					iv.end = e.from
					changed = true
				}
			}
		}
	}
	ivs := make([]*interval, 0, len(byID))
	for _, iv := range byID {
		ivs = append(ivs, iv)
	}
	return ivs
}

// maxPressure returns the largest number of simultaneously live intervals.
func maxPressure(ivs []*interval) int {
	type event struct {
		pos   int
		delta int
	}
	events := make([]event, 0, len(ivs)*2)
	for _, iv := range ivs {
		events = append(events, event{iv.start, 1}, event{iv.end + 1, -1})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].pos != events[j].pos {
			return events[i].pos < events[j].pos
		}
		return events[i].delta < events[j].delta
	})
	cur, peak := 0, 0
	for _, e := range events {
		cur += e.delta
		if cur > peak {
			peak = cur
		}
	}
	return peak
}

type assignment struct {
	reg     map[uint64]uint64 // virtual id -> hardware index
	spilled map[uint64]uint64 // virtual id -> spill slot
}

// assignIntervals runs a linear scan over the intervals sorted by start.
// A placed interval owns its hardware register for its entire range; when
// no register is free the interval ending last is spilled, since it blocks
// a register for the longest stretch.
func assignIntervals(ivs []*interval, capacity int) assignment {
	sorted := append([]*interval(nil), ivs...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].start != sorted[j].start {
			return sorted[i].start < sorted[j].start
		}
		return sorted[i].id < sorted[j].id
	})
	asn := assignment{
		reg:     make(map[uint64]uint64, len(ivs)),
		spilled: make(map[uint64]uint64),
	}
	inUse := make([]bool, capacity)
	active := make([]*interval, 0, capacity)
	var nextSlot uint64
	for _, iv := range sorted {
		kept := active[:0]
		for _, a := range active {
			if a.end < iv.start {
				inUse[asn.reg[a.id]] = false
			} else {
				kept = append(kept, a)
			}
		}
		active = kept

		free := -1
		for h, used := range inUse {
			if !used {
				free = h
				break
			}
		}
		if free >= 0 {
			asn.reg[iv.id] = uint64(free) //nolint:gosec // bounded by capacity
			inUse[free] = true
			active = append(active, iv)
			continue
		}
		victim := iv
		victimIdx := -1
		for i, a := range active {
			if a.end > victim.end {
				victim, victimIdx = a, i
			}
		}
		if victimIdx >= 0 {
			asn.reg[iv.id] = asn.reg[victim.id]
			delete(asn.reg, victim.id)
			active[victimIdx] = iv
		}
		asn.spilled[victim.id] = nextSlot
		nextSlot++
	}
	return asn
}

// rewriteOps maps every virtual register onto hardware. Spilled operands
// are staged through scratch registers starting at scratchBase: reads load
// their slot before the op, a spilled definition stores back after it.
func rewriteOps(ops []Op, asn assignment, spillBase Register, scratchBase uint64) []Op {
	out := make([]Op, 0, len(ops))
	for _, op := range ops {
		scratch := make(map[uint64]uint64)
		nextScratch := scratchBase
		for _, r := range op.Uses() {
			if r.Kind != RegVirtual {
				continue
			}
			slot, ok := asn.spilled[r.ID]
			if !ok {
				continue
			}
			if _, seen := scratch[r.ID]; seen {
				continue
			}
			scratch[r.ID] = nextScratch
			out = append(out, Op{
				Opcode:  OpcodeLw,
				Regs:    []Register{Hardware(nextScratch), spillBase},
				Imm:     slot,
				HasImm:  true,
				Comment: "unspill",
			})
			nextScratch++
		}
		var defSlot uint64
		spilledDef := false
		if def, ok := op.Def(); ok && def.Kind == RegVirtual {
			if slot, ok := asn.spilled[def.ID]; ok {
				if _, seen := scratch[def.ID]; !seen {
					scratch[def.ID] = nextScratch
					nextScratch++
				}
				defSlot = slot
				spilledDef = true
			}
		}

		rewritten := op
		rewritten.Regs = make([]Register, len(op.Regs))
		for i, r := range op.Regs {
			switch {
			case r.Kind != RegVirtual:
				rewritten.Regs[i] = r
			default:
				if s, ok := scratch[r.ID]; ok {
					rewritten.Regs[i] = Hardware(s)
				} else {
					rewritten.Regs[i] = Hardware(asn.reg[r.ID])
				}
			}
		}
		out = append(out, rewritten)

		if spilledDef {
			if def, ok := op.Def(); ok {
				out = append(out, Op{
					Opcode:  OpcodeSw,
					Regs:    []Register{spillBase, Hardware(scratch[def.ID])},
					Imm:     defSlot,
					HasImm:  true,
					Comment: "spill",
				})
			}
		}
	}
	return out
}

// withSpillPrologue reserves the spill area on the stack right after the
// function's leading label.
func withSpillPrologue(ops []Op, spillBase Register, slots int) []Op {
	prologue := []Op{
		{Opcode: OpcodeMove, Regs: []Register{spillBase, Reserved(RegStackPtr)}, Comment: "spill area base"},
		{Opcode: OpcodeCfei, Imm: uint64(slots * 8), HasImm: true}, //nolint:gosec // slot count bounded by stream length
	}
	insert := 0
	if len(ops) > 0 && ops[0].Opcode == OpcodeLabel {
		insert = 1
	}
	out := make([]Op, 0, len(ops)+len(prologue))
	out = append(out, ops[:insert]...)
	out = append(out, prologue...)
	out = append(out, ops[insert:]...)
	return out
}
