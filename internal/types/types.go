package types

import "fmt"

// TypeID uniquely identifies a type inside the interner.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// Kind enumerates all supported kinds of types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUnit
	KindBool
	KindUint
	KindB256
	KindString
	KindStruct
	KindUnion
	KindArray
	KindPointer
	KindRawSlice
	// KindTypeParam is a placeholder for a generic function's type
	// parameter; Len holds the parameter's declaration index. These only
	// appear inside generic callee bodies and are substituted away by the
	// inliner before any layout query.
	KindTypeParam
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindUnit:
		return "unit"
	case KindBool:
		return "bool"
	case KindUint:
		return "uint"
	case KindB256:
		return "b256"
	case KindString:
		return "str"
	case KindStruct:
		return "struct"
	case KindUnion:
		return "union"
	case KindArray:
		return "array"
	case KindPointer:
		return "ptr"
	case KindRawSlice:
		return "raw_slice"
	case KindTypeParam:
		return "typeparam"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Width captures the bit width of unsigned integers.
type Width uint8

const (
	Width8  Width = 8
	Width16 Width = 16
	Width32 Width = 32
	Width64 Width = 64
)

// AggID indexes the interner's aggregate side table.
type AggID uint32

// NoAggID marks the absence of aggregate info.
const NoAggID AggID = 0

// Type is the structural descriptor of a type. It is comparable, so the
// interner can use it directly as a map key.
type Type struct {
	Kind  Kind
	Width Width  // uints
	Len   uint32 // string byte length, array element count
	Elem  TypeID // array/pointer/slice element
	Agg   AggID  // struct/union side-table index
}

// Field is a named member of a struct or a variant of a union.
type Field struct {
	Name string
	Type TypeID
}

// AggInfo describes a struct's fields or a union's variants.
type AggInfo struct {
	Name   string
	Fields []Field
}
