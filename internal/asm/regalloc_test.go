package asm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// movi v<i>, i<i> for i in 0..n-1, then an op reading all of them. The
// trailing use keeps every virtual live across the whole stream.
func pressureOps(n int) []Op {
	ops := make([]Op, 0, n+1)
	for i := 0; i < n; i++ {
		ops = append(ops, Op{
			Opcode: OpcodeMovi,
			Regs:   []Register{Virtual(uint64(i))},
			Imm:    uint64(i), HasImm: true,
		})
	}
	for i := 0; i < n; i++ {
		ops = append(ops, Op{
			Opcode: OpcodeSw,
			Regs:   []Register{Reserved(RegStackPtr), Virtual(uint64(i))},
			Imm:    uint64(i), HasImm: true,
		})
	}
	return ops
}

func hardwareIDs(p Program) map[uint64]bool {
	ids := make(map[uint64]bool)
	for _, f := range p.Funcs {
		for _, op := range f.Ops {
			for _, r := range op.Regs {
				if r.Kind == RegHardware {
					ids[r.ID] = true
				}
			}
		}
	}
	return ids
}

func TestAllocationStaysWithinBudget(t *testing.T) {
	const budget = 6
	p := progWith(pressureOps(16)...)
	out := AllocateRegisters(p, budget)

	require.Equal(t, StageRegisterAllocated, out.Stage)
	ids := hardwareIDs(out)
	require.LessOrEqual(t, len(ids), budget)
	for id := range ids {
		require.Less(t, id, uint64(budget))
	}
	for _, op := range out.Funcs[0].Ops {
		for _, r := range op.Regs {
			require.NotEqual(t, RegVirtual, r.Kind, "no virtual register survives allocation")
		}
	}
}

func TestLowPressureNeedsNoSpills(t *testing.T) {
	p := progWith(
		Op{Opcode: OpcodeMovi, Regs: []Register{Virtual(0)}, Imm: 1, HasImm: true},
		Op{Opcode: OpcodeMovi, Regs: []Register{Virtual(1)}, Imm: 2, HasImm: true},
		Op{Opcode: OpcodeAdd, Regs: []Register{Virtual(2), Virtual(0), Virtual(1)}},
		Op{Opcode: OpcodeRet, Regs: []Register{Virtual(2)}},
	)
	out := AllocateRegisters(p, 48)

	require.Equal(t, len(p.Funcs[0].Ops), len(out.Funcs[0].Ops), "no spill traffic inserted")
	for _, op := range out.Funcs[0].Ops {
		require.NotEqual(t, OpcodeCfei, op.Opcode)
	}
}

func TestSpillTrafficRestoresValues(t *testing.T) {
	const budget = 6 // 1 allocatable + 4 scratch + spill base
	p := progWith(pressureOps(8)...)
	out := AllocateRegisters(p, budget)

	var spills, reloads int
	for _, op := range out.Funcs[0].Ops {
		switch {
		case op.Opcode == OpcodeSw && op.Comment == "spill":
			spills++
		case op.Opcode == OpcodeLw && op.Comment == "unspill":
			reloads++
		}
	}
	require.Greater(t, spills, 0, "pressure above budget forces spills")
	require.Greater(t, reloads, 0)

	// The spill area is claimed once, before any spill store runs.
	require.Equal(t, OpcodeMove, out.Funcs[0].Ops[0].Opcode)
	require.Equal(t, Hardware(uint64(budget-1)), out.Funcs[0].Ops[0].Regs[0], "last register is the spill base")
	require.Equal(t, OpcodeCfei, out.Funcs[0].Ops[1].Opcode)
}

func TestSpillPrologueFollowsLeadingLabel(t *testing.T) {
	ops := append([]Op{{Opcode: OpcodeLabel, Label: 9}}, pressureOps(8)...)
	p := progWith(ops...)
	out := AllocateRegisters(p, 6)

	got := out.Funcs[0].Ops
	require.Equal(t, OpcodeLabel, got[0].Opcode)
	require.Equal(t, OpcodeMove, got[1].Opcode)
	require.Equal(t, OpcodeCfei, got[2].Opcode)
}

func TestReservedRegistersPassThrough(t *testing.T) {
	p := progWith(
		Op{Opcode: OpcodeAdd, Regs: []Register{Virtual(0), Reserved(RegZero), Reserved(RegOne)}},
		Op{Opcode: OpcodeRet, Regs: []Register{Virtual(0)}},
	)
	out := AllocateRegisters(p, 48)

	add := out.Funcs[0].Ops[0]
	require.True(t, add.Regs[1].IsZero())
	require.True(t, add.Regs[2].IsOne())
	require.Equal(t, RegHardware, add.Regs[0].Kind)
}

func TestTinyBudgetLeavesProgramUntouched(t *testing.T) {
	p := progWith(pressureOps(4)...)
	out := AllocateRegisters(p, 3)
	require.Equal(t, StageRegisterAllocated, out.Stage)
	require.Equal(t, RegVirtual, out.Funcs[0].Ops[0].Regs[0].Kind)
}

// A value defined before a loop and read inside it stays in its register
// until the back edge; nothing in the loop body may redefine that register.
func TestLoopCarriedValueSurvivesBackEdge(t *testing.T) {
	p := progWith(
		Op{Opcode: OpcodeMovi, Regs: []Register{Virtual(0)}, Imm: 42, HasImm: true},
		Op{Opcode: OpcodeLabel, Label: 1},
		Op{Opcode: OpcodeAdd, Regs: []Register{Virtual(1), Virtual(0), Reserved(RegOne)}},
		Op{Opcode: OpcodeMovi, Regs: []Register{Virtual(2)}, Imm: 7, HasImm: true},
		Op{Opcode: OpcodeJnzi, Regs: []Register{Virtual(2)}, Label: 1},
		Op{Opcode: OpcodeRet, Regs: []Register{Virtual(1)}},
	)
	out := AllocateRegisters(p, 48)

	ops := out.Funcs[0].Ops
	require.Equal(t, len(p.Funcs[0].Ops), len(ops))
	carried := ops[0].Regs[0]
	require.Equal(t, RegHardware, carried.Kind)
	for _, op := range ops[1:5] {
		if def, ok := op.Def(); ok {
			require.NotEqual(t, carried, def, "loop-carried register redefined by %s", op.String())
		}
	}
	// The add reads the carried value through the same register on every
	// iteration.
	require.Equal(t, carried, ops[2].Regs[1])
}

// Spilled values that are read inside a loop reload from their slot on
// every iteration, between the loop head and the back edge.
func TestSpilledLoopValueReloadsInsideLoop(t *testing.T) {
	ops := make([]Op, 0, 18)
	for i := 0; i < 8; i++ {
		ops = append(ops, Op{
			Opcode: OpcodeMovi,
			Regs:   []Register{Virtual(uint64(i))},
			Imm:    uint64(i), HasImm: true,
		})
	}
	ops = append(ops, Op{Opcode: OpcodeLabel, Label: 1})
	for i := 0; i < 8; i++ {
		ops = append(ops, Op{
			Opcode: OpcodeSw,
			Regs:   []Register{Reserved(RegStackPtr), Virtual(uint64(i))},
			Imm:    uint64(i), HasImm: true,
		})
	}
	ops = append(ops, Op{Opcode: OpcodeJnzi, Regs: []Register{Virtual(0)}, Label: 1})
	p := progWith(ops...)
	out := AllocateRegisters(p, 6)

	got := out.Funcs[0].Ops
	labelAt, backAt := -1, -1
	for i, op := range got {
		switch op.Opcode {
		case OpcodeLabel:
			labelAt = i
		case OpcodeJnzi:
			backAt = i
		}
	}
	require.Greater(t, backAt, labelAt)
	reloads := 0
	for _, op := range got[labelAt:backAt] {
		if op.Opcode == OpcodeLw && op.Comment == "unspill" {
			reloads++
		}
	}
	require.Greater(t, reloads, 0, "loop-body reads of spilled values reload from the spill area")
}
