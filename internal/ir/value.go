// Package ir is the control-flow-graph, single-assignment form between the
// typed AST and virtual-register assembly. A Context owns Functions;
// Functions own Blocks of Instructions; Values are produced once during
// lowering and never mutated afterwards.
package ir

import (
	"fathom/internal/source"
	"fathom/internal/types"
)

// ValueKind enumerates where a Value comes from.
type ValueKind uint8

const (
	// ValueInstr is the result of an instruction.
	ValueInstr ValueKind = iota
	// ValueArgument is a function argument.
	ValueArgument
	// ValueBlockArg is a block argument: the phi point a predecessor
	// fills when branching into the block.
	ValueBlockArg
	// ValueConstant is a literal or configurable constant.
	ValueConstant
)

// Value is one single-assignment value.
type Value struct {
	Kind ValueKind
	Type types.TypeID
	Span source.Span

	// ValueInstr:
	Instr *Instruction

	// ValueArgument / ValueBlockArg:
	Name  string
	Block *Block // owning block for block args

	// ValueConstant:
	Const *Constant
}

// ConstKind enumerates constant kinds.
type ConstKind uint8

const (
	ConstUnit ConstKind = iota
	ConstBool
	ConstUint
	ConstB256
	ConstString
)

// Constant is a compile-time value. A non-empty ConfigName marks a
// configurable: it is always materialized through the data section so the
// deployed binary can be patched, and it is never deduplicated.
type Constant struct {
	Kind       ConstKind
	UintValue  uint64
	BoolValue  bool
	B256Value  [32]byte
	StringData []byte
	ConfigName string
}

// NewConstant wraps a Constant in a Value.
func NewConstant(c *Constant, ty types.TypeID, span source.Span) *Value {
	return &Value{Kind: ValueConstant, Type: ty, Span: span, Const: c}
}

// NewUintConstant builds an unsigned integer constant value.
func NewUintConstant(v uint64, ty types.TypeID, span source.Span) *Value {
	return NewConstant(&Constant{Kind: ConstUint, UintValue: v}, ty, span)
}

// NewBoolConstant builds a boolean constant value.
func NewBoolConstant(v bool, ty types.TypeID, span source.Span) *Value {
	return NewConstant(&Constant{Kind: ConstBool, BoolValue: v}, ty, span)
}

// NewUnitConstant builds the unit constant value.
func NewUnitConstant(ty types.TypeID, span source.Span) *Value {
	return NewConstant(&Constant{Kind: ConstUnit}, ty, span)
}

// IsConstant reports whether the value is a constant (configurable or not).
func (v *Value) IsConstant() bool {
	return v != nil && v.Kind == ValueConstant
}

// ConstantUint returns the constant's uint payload when the value is a
// plain (non-configurable) unsigned constant.
func (v *Value) ConstantUint() (uint64, bool) {
	if v == nil || v.Kind != ValueConstant || v.Const == nil {
		return 0, false
	}
	if v.Const.Kind != ConstUint || v.Const.ConfigName != "" {
		return 0, false
	}
	return v.Const.UintValue, true
}
