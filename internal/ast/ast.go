// Package ast defines the type-checked AST the backend consumes. The front
// end (parser, desugarer, type checker) lives outside this repository; this
// package is the handover surface. Every node carries its resolved type and
// source span.
package ast

import (
	"fathom/internal/source"
	"fathom/internal/types"
)

// ProgramKind distinguishes the four compilation unit kinds.
type ProgramKind uint8

const (
	// ProgramContract is a deployable contract with ABI entry methods.
	ProgramContract ProgramKind = iota
	// ProgramScript is a transaction script with a single main.
	ProgramScript
	// ProgramPredicate is a spending predicate with a single boolean main.
	ProgramPredicate
	// ProgramLibrary produces no output of its own.
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

// Purity records the storage effects the type checker attributed to a
// function declaration.
type Purity uint8

const (
	PurityPure Purity = iota
	PurityReads
	PurityWrites
	PurityReadsWrites
)

// Program is one type-checked compilation unit.
type Program struct {
	Kind ProgramKind

	// Entries are the externally callable functions: ABI methods for a
	// contract, main for scripts and predicates. Libraries have none.
	Entries []*Function

	Constants     []*ConstDecl
	Configurables []*ConfigDecl
	Storage       []StorageField
}

// Param is a function parameter. ByRef parameters hold the address of the
// argument; reading them requires an extra load.
type Param struct {
	Name  string
	Type  types.TypeID
	ByRef bool
	Span  source.Span
}

// Function is a type-checked function declaration. Generic functions keep
// their type parameter names; each call site supplies concrete type
// arguments and the backend inlines a fresh instantiation.
type Function struct {
	Name       string
	Params     []Param
	Ret        types.TypeID
	Body       *Expr
	Span       source.Span
	Purity     Purity
	TypeParams []string

	// Selector is the ABI selector for contract entry methods, encoded by
	// the front end. Zero for non-entries.
	Selector uint64
}

// ConstDecl is a module-level constant with a literal value.
type ConstDecl struct {
	Name  string
	Type  types.TypeID
	Value *Expr
	Span  source.Span
}

// ConfigDecl is a module-level configurable: a named constant whose value
// may be patched in the binary after compilation. Configurables always
// materialize through the data section, never as immediates.
type ConfigDecl struct {
	Name    string
	Type    types.TypeID
	Default *Expr
	Span    source.Span
}

// StorageField is one declared field of persistent contract state.
type StorageField struct {
	Name string
	Type types.TypeID
	Ix   uint64
	Span source.Span
}
