package asm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDataSectionDedupsPlainEntries(t *testing.T) {
	d := NewDataSection()
	a := d.InsertWord(42)
	b := d.InsertWord(42)
	c := d.InsertWord(43)
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Equal(t, 2, d.Len())

	x := d.InsertBytes([]byte{1, 2, 3})
	y := d.InsertBytes([]byte{1, 2, 3})
	require.Equal(t, x, y)
	require.Equal(t, 3, d.Len())
}

func TestConfigEntriesNeverDedup(t *testing.T) {
	d := NewDataSection()
	a := d.Insert(Entry{Kind: EntryWord, Word: 7, ConfigName: "A"})
	b := d.Insert(Entry{Kind: EntryWord, Word: 7, ConfigName: "A"})
	require.NotEqual(t, a, b)
	require.Equal(t, 2, d.Len())

	// A config entry never serves as the pooled copy of a plain constant.
	c := d.InsertWord(7)
	require.NotEqual(t, a, c)
	require.NotEqual(t, b, c)
}

func TestDataSectionPrintTags(t *testing.T) {
	d := NewDataSection()
	d.InsertWord(255)
	d.Insert(Entry{Kind: EntryBytes, Bytes: []byte{0xab, 0xcd}, ConfigName: "SEED"})

	var sb strings.Builder
	d.Print(&sb)
	out := sb.String()
	require.Contains(t, out, ".data:\n")
	require.Contains(t, out, "data_0 .word 0xff")
	require.Contains(t, out, "config_SEED .bytes 0xabcd")
}

func TestOpStringForms(t *testing.T) {
	label := Op{Opcode: OpcodeLabel, Label: 3}
	require.Equal(t, ".L3:", label.String())

	jnzi := Op{Opcode: OpcodeJnzi, Regs: []Register{Virtual(4)}, Label: 7}
	require.Equal(t, "jnzi $v4 .L7", jnzi.String())

	addi := Op{Opcode: OpcodeAddi, Regs: []Register{Hardware(1), Reserved(RegStackStart)}, Imm: 16, HasImm: true}
	require.Equal(t, "addi $r1 $ssp i16", addi.String())

	lwd := Op{Opcode: OpcodeLwd, Regs: []Register{Virtual(0)}, Data: 2, HasData: true}.WithComment("limit")
	require.Equal(t, "lwd $v0 data_2 ; limit", lwd.String())
}

func TestProgramPrintMarksEntries(t *testing.T) {
	p := Program{
		Kind: ProgramContract,
		Data: NewDataSection(),
		Funcs: []Function{
			{Name: "transfer", IsEntry: true, Selector: 0x2e, Ops: []Op{{Opcode: OpcodeRet, Regs: []Register{Reserved(RegZero)}}}},
			{Name: "helper", Ops: []Op{{Opcode: OpcodeNoop}}},
		},
	}
	var sb strings.Builder
	p.Print(&sb)
	out := sb.String()
	require.Contains(t, out, "; entry transfer selector=0x2e\n")
	require.Contains(t, out, "; fn helper\n")
	require.Contains(t, out, ".program:\n")
}

func TestSequencerIsMonotonic(t *testing.T) {
	s := NewSequencer()
	r1 := s.NextRegister()
	r2 := s.NextRegister()
	require.NotEqual(t, r1, r2)
	require.Equal(t, RegVirtual, r1.Kind)

	l1 := s.NextLabel()
	l2 := s.NextLabel()
	require.NotEqual(t, l1, l2)

	// Registers and labels draw from one counter, so ids never collide
	// across the two kinds.
	require.Equal(t, uint64(4), s.Issued())
	require.NotEqual(t, uint64(l1), r2.ID)
}
