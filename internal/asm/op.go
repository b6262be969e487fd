package asm

import (
	"fmt"
	"strings"

	"fathom/internal/source"
)

// Opcode enumerates the virtual instruction set.
type Opcode uint8

const (
	// Control.
	OpcodeLabel Opcode = iota
	OpcodeJmp
	OpcodeJnzi
	OpcodeRet
	OpcodeRetd
	OpcodeRvrt
	OpcodeCall
	OpcodeNoop

	// Moves.
	OpcodeMove
	OpcodeMovi

	// Arithmetic, bitwise, shifts, compares: dst, lhs, rhs.
	OpcodeAdd
	OpcodeSub
	OpcodeMul
	OpcodeDiv
	OpcodeMod
	OpcodeAnd
	OpcodeOr
	OpcodeXor
	OpcodeSll
	OpcodeSrl
	OpcodeEq
	OpcodeLt
	OpcodeGt

	// Immediate forms: dst, src, imm.
	OpcodeAddi
	OpcodeSubi
	OpcodeMuli
	OpcodeXori

	// Memory: word/byte loads and stores, copies, stack frame.
	OpcodeLw
	OpcodeSw
	OpcodeLb
	OpcodeSb
	OpcodeMcp
	OpcodeMcpi
	OpcodeLwd
	OpcodeCfei
	OpcodeCfsi

	// Storage.
	OpcodeSrw
	OpcodeSww
	OpcodeSrwq
	OpcodeSwwq

	// 256-bit wide family; the immediate selects the concrete operation.
	OpcodeWqop
	OpcodeWqcm
)

var opcodeNames = [...]string{
	OpcodeLabel: "label",
	OpcodeJmp:   "jmp",
	OpcodeJnzi:  "jnzi",
	OpcodeRet:   "ret",
	OpcodeRetd:  "retd",
	OpcodeRvrt:  "rvrt",
	OpcodeCall:  "call",
	OpcodeNoop:  "noop",
	OpcodeMove:  "move",
	OpcodeMovi:  "movi",
	OpcodeAdd:   "add",
	OpcodeSub:   "sub",
	OpcodeMul:   "mul",
	OpcodeDiv:   "div",
	OpcodeMod:   "mod",
	OpcodeAnd:   "and",
	OpcodeOr:    "or",
	OpcodeXor:   "xor",
	OpcodeSll:   "sll",
	OpcodeSrl:   "srl",
	OpcodeEq:    "eq",
	OpcodeLt:    "lt",
	OpcodeGt:    "gt",
	OpcodeAddi:  "addi",
	OpcodeSubi:  "subi",
	OpcodeMuli:  "muli",
	OpcodeXori:  "xori",
	OpcodeLw:    "lw",
	OpcodeSw:    "sw",
	OpcodeLb:    "lb",
	OpcodeSb:    "sb",
	OpcodeMcp:   "mcp",
	OpcodeMcpi:  "mcpi",
	OpcodeLwd:   "lwd",
	OpcodeCfei:  "cfei",
	OpcodeCfsi:  "cfsi",
	OpcodeSrw:   "srw",
	OpcodeSww:   "sww",
	OpcodeSrwq:  "srwq",
	OpcodeSwwq:  "swwq",
	OpcodeWqop:  "wqop",
	OpcodeWqcm:  "wqcm",
}

func (o Opcode) String() string {
	if int(o) < len(opcodeNames) {
		return opcodeNames[o]
	}
	return fmt.Sprintf("op%d", o)
}

// LookupOpcode resolves an inline-asm mnemonic to its opcode.
func LookupOpcode(name string) (Opcode, bool) {
	for op, n := range opcodeNames {
		if n == name {
			return Opcode(op), true //nolint:gosec // index bounded by the name table
		}
	}
	return 0, false
}

// WideOp selects the concrete operation of a wqop/wqcm instruction.
type WideOp uint64

const (
	WideAdd WideOp = iota
	WideSub
	WideAnd
	WideOr
	WideXor
	WideEq
	WideLt
	WideGt
)

// Op is one virtual-register instruction.
type Op struct {
	Opcode  Opcode
	Regs    []Register
	Imm     uint64
	HasImm  bool
	Label   Label
	Data    DataID
	HasData bool
	Comment string
	Span    source.Span
}

// WithComment returns the op annotated with a listing comment.
func (o Op) WithComment(format string, args ...any) Op {
	o.Comment = fmt.Sprintf(format, args...)
	return o
}

// defIndex returns the index into Regs of the register the opcode writes,
// or -1 when the opcode writes no register. Note srwq's first register is a
// destination pointer, which is read, not written.
func (o *Op) defIndex() int {
	switch o.Opcode {
	case OpcodeMove, OpcodeMovi,
		OpcodeAdd, OpcodeSub, OpcodeMul, OpcodeDiv, OpcodeMod,
		OpcodeAnd, OpcodeOr, OpcodeXor, OpcodeSll, OpcodeSrl,
		OpcodeEq, OpcodeLt, OpcodeGt,
		OpcodeAddi, OpcodeSubi, OpcodeMuli, OpcodeXori,
		OpcodeLw, OpcodeLb, OpcodeLwd, OpcodeSrw:
		return 0
	default:
		return -1
	}
}

// Def returns the register the op writes, if any.
func (o *Op) Def() (Register, bool) {
	i := o.defIndex()
	if i < 0 || i >= len(o.Regs) {
		return Register{}, false
	}
	return o.Regs[i], true
}

// Uses returns the registers the op reads, in operand order.
func (o *Op) Uses() []Register {
	d := o.defIndex()
	uses := make([]Register, 0, len(o.Regs))
	for i, r := range o.Regs {
		if i == d {
			continue
		}
		uses = append(uses, r)
	}
	return uses
}

func (o Op) String() string {
	if o.Opcode == OpcodeLabel {
		return o.Label.String() + ":"
	}
	parts := []string{o.Opcode.String()}
	operands := make([]string, 0, len(o.Regs)+2)
	for _, r := range o.Regs {
		operands = append(operands, r.String())
	}
	switch o.Opcode {
	case OpcodeJmp, OpcodeJnzi:
		operands = append(operands, o.Label.String())
	}
	if o.HasData {
		operands = append(operands, o.Data.String())
	}
	if o.HasImm {
		operands = append(operands, fmt.Sprintf("i%d", o.Imm))
	}
	if len(operands) > 0 {
		parts = append(parts, strings.Join(operands, " "))
	}
	s := strings.Join(parts, " ")
	if o.Comment != "" {
		s += " ; " + o.Comment
	}
	return s
}
