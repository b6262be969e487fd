package ast

import (
	"fathom/internal/source"
	"fathom/internal/types"
)

// ExprKind enumerates typed AST expression kinds. Statements are
// unit-typed expressions, so a code block is just a sequence of Exprs whose
// last element is the block's value.
type ExprKind uint8

const (
	// ExprLiteral is a literal value (u64, bool, b256, string).
	ExprLiteral ExprKind = iota
	// ExprVar is a reference to a local, parameter, constant or configurable.
	ExprVar
	// ExprDecl declares a new local binding.
	ExprDecl
	// ExprAssign reassigns an existing binding or a field of one.
	ExprAssign
	// ExprBlock is a brace-delimited sequence; its value is the last element.
	ExprBlock
	// ExprIf is a conditional; without an else branch the value is unit.
	ExprIf
	// ExprWhile is a loop; always unit-typed.
	ExprWhile
	// ExprBreak jumps past the innermost loop.
	ExprBreak
	// ExprContinue jumps to the innermost loop's condition.
	ExprContinue
	// ExprReturn leaves the current function.
	ExprReturn
	// ExprAnd is short-circuit conjunction.
	ExprAnd
	// ExprOr is short-circuit disjunction.
	ExprOr
	// ExprNot is logical negation.
	ExprNot
	// ExprBinary is an arithmetic, bitwise, shift or comparison operation.
	ExprBinary
	// ExprCall is a direct call to a declared function.
	ExprCall
	// ExprStructLit constructs a struct, fields in layout order.
	ExprStructLit
	// ExprArrayLit constructs an array.
	ExprArrayLit
	// ExprField reads a struct field by index.
	ExprField
	// ExprIndex reads an array element.
	ExprIndex
	// ExprAsm is an inline assembly block.
	ExprAsm
	// ExprStorageRead reads a (possibly nested) storage field.
	ExprStorageRead
	// ExprStorageWrite writes a (possibly nested) storage field.
	ExprStorageWrite
	// ExprContractCall invokes a method on an external contract.
	ExprContractCall
	// ExprRevert aborts the transaction with a code.
	ExprRevert
)

// Expr is a typed AST expression.
type Expr struct {
	Kind ExprKind
	Type types.TypeID
	Span source.Span
	Data ExprData
}

// ExprData is the interface for kind-specific payloads.
type ExprData interface {
	exprData()
}

// LiteralKind enumerates literal value kinds.
type LiteralKind uint8

const (
	LiteralU64 LiteralKind = iota
	LiteralBool
	LiteralB256
	LiteralString
)

// LiteralData holds data for ExprLiteral.
type LiteralData struct {
	Kind        LiteralKind
	UintValue   uint64
	BoolValue   bool
	B256Value   [32]byte
	StringValue string
}

func (LiteralData) exprData() {}

// VarData holds data for ExprVar.
type VarData struct {
	Name string
}

func (VarData) exprData() {}

// DeclData holds data for ExprDecl.
type DeclData struct {
	Name string
	Init *Expr
}

func (DeclData) exprData() {}

// AssignData holds data for ExprAssign. FieldPath is empty for a plain
// rebinding; otherwise it names the struct field chain being stored to.
type AssignData struct {
	Name      string
	FieldPath []int
	RHS       *Expr
}

func (AssignData) exprData() {}

// BlockData holds data for ExprBlock.
type BlockData struct {
	Exprs []*Expr
}

func (BlockData) exprData() {}

// IfData holds data for ExprIf. Else may be nil.
type IfData struct {
	Cond *Expr
	Then *Expr
	Else *Expr
}

func (IfData) exprData() {}

// WhileData holds data for ExprWhile.
type WhileData struct {
	Cond *Expr
	Body *Expr
}

func (WhileData) exprData() {}

// ReturnData holds data for ExprReturn. Value may be nil for unit returns.
type ReturnData struct {
	Value *Expr
}

func (ReturnData) exprData() {}

// ShortCircuitData holds data for ExprAnd / ExprOr.
type ShortCircuitData struct {
	Left  *Expr
	Right *Expr
}

func (ShortCircuitData) exprData() {}

// NotData holds data for ExprNot.
type NotData struct {
	Operand *Expr
}

func (NotData) exprData() {}

// BinaryOp enumerates non-short-circuit binary operators.
type BinaryOp uint8

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpEq
	OpNeq
	OpLt
	OpGt
	OpLe
	OpGe
)

func (op BinaryOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "%"
	case OpAnd:
		return "&"
	case OpOr:
		return "|"
	case OpXor:
		return "^"
	case OpShl:
		return "<<"
	case OpShr:
		return ">>"
	case OpEq:
		return "=="
	case OpNeq:
		return "!="
	case OpLt:
		return "<"
	case OpGt:
		return ">"
	case OpLe:
		return "<="
	case OpGe:
		return ">="
	default:
		return "?"
	}
}

// BinaryData holds data for ExprBinary.
type BinaryData struct {
	Op    BinaryOp
	Left  *Expr
	Right *Expr
}

func (BinaryData) exprData() {}

// CallData holds data for ExprCall. Callee is resolved by the front end;
// TypeArgs are the concrete type arguments for a generic callee, in
// declaration order.
type CallData struct {
	Callee   *Function
	Args     []*Expr
	TypeArgs []types.TypeID
}

func (CallData) exprData() {}

// StructLitData holds data for ExprStructLit. Fields are in layout order.
type StructLitData struct {
	Fields []*Expr
}

func (StructLitData) exprData() {}

// ArrayLitData holds data for ExprArrayLit.
type ArrayLitData struct {
	Elems []*Expr
}

func (ArrayLitData) exprData() {}

// FieldData holds data for ExprField.
type FieldData struct {
	Object   *Expr
	FieldIdx int
}

func (FieldData) exprData() {}

// IndexData holds data for ExprIndex.
type IndexData struct {
	Object *Expr
	Index  *Expr
}

func (IndexData) exprData() {}

// AsmReg declares a virtual register used by an inline asm block,
// optionally initialized from an expression.
type AsmReg struct {
	Name string
	Init *Expr
}

// AsmArgKind distinguishes inline asm operand forms.
type AsmArgKind uint8

const (
	// AsmArgReg names a declared or reserved register.
	AsmArgReg AsmArgKind = iota
	// AsmArgImm is an unsigned decimal immediate.
	AsmArgImm
)

// AsmArg is one operand of an inline asm instruction.
type AsmArg struct {
	Kind AsmArgKind
	Reg  string
	Imm  uint64
	Span source.Span
}

// AsmOp is one instruction inside an inline asm block.
type AsmOp struct {
	Opcode string
	Args   []AsmArg
	Span   source.Span
}

// AsmData holds data for ExprAsm. RetReg names the register whose value the
// block yields; empty means the block is unit-typed.
type AsmData struct {
	Regs   []AsmReg
	Ops    []AsmOp
	RetReg string
}

func (AsmData) exprData() {}

// StorageAccessData holds data for ExprStorageRead and ExprStorageWrite.
// Ix is the declared state index; Path is the struct field index chain from
// the declared field's type down to the accessed member (empty for the
// whole field). RHS is nil for reads.
type StorageAccessData struct {
	Ix   uint64
	Path []uint64
	RHS  *Expr
}

func (StorageAccessData) exprData() {}

// ContractCallData holds data for ExprContractCall. Coins, Asset and Gas
// may be nil, in which case well-known defaults apply.
type ContractCallData struct {
	Address  *Expr
	Name     string
	Selector uint64
	Args     []*Expr
	Coins    *Expr
	Asset    *Expr
	Gas      *Expr
}

func (ContractCallData) exprData() {}

// RevertData holds data for ExprRevert.
type RevertData struct {
	Code *Expr
}

func (RevertData) exprData() {}
