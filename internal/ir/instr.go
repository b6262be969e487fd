package ir

import (
	"fathom/internal/ast"
	"fathom/internal/source"
	"fathom/internal/types"
)

// Op enumerates IR instruction kinds.
type Op uint8

const (
	// OpAsm is an inline assembly block with declared registers.
	OpAsm Op = iota
	// OpBitCast reinterprets a value as another type of the same size.
	OpBitCast
	// OpBinary is an arithmetic, bitwise, shift or comparison operation.
	OpBinary
	// OpBr branches unconditionally, filling the target's block args.
	OpBr
	// OpCbr branches on a boolean condition.
	OpCbr
	// OpContractCall transfers control to an external contract method.
	OpContractCall
	// OpGetLocal yields the address of a named stack slot.
	OpGetLocal
	// OpGetElemPtr addresses a member of an aggregate through an index
	// chain.
	OpGetElemPtr
	// OpLoad reads through a pointer.
	OpLoad
	// OpStore writes through a pointer.
	OpStore
	// OpRet leaves the function.
	OpRet
	// OpRevert aborts the transaction with a code.
	OpRevert
	// OpStateLoadWord reads one word from a storage slot.
	OpStateLoadWord
	// OpStateStoreWord writes one word to a storage slot.
	OpStateStoreWord
	// OpStateLoadQuad reads whole 32-byte slots into memory.
	OpStateLoadQuad
	// OpStateStoreQuad writes whole 32-byte slots from memory.
	OpStateStoreQuad
	// OpNop does nothing.
	OpNop
)

func (op Op) String() string {
	switch op {
	case OpAsm:
		return "asm"
	case OpBitCast:
		return "bitcast"
	case OpBinary:
		return "binary"
	case OpBr:
		return "br"
	case OpCbr:
		return "cbr"
	case OpContractCall:
		return "contract_call"
	case OpGetLocal:
		return "get_local"
	case OpGetElemPtr:
		return "get_elem_ptr"
	case OpLoad:
		return "load"
	case OpStore:
		return "store"
	case OpRet:
		return "ret"
	case OpRevert:
		return "revert"
	case OpStateLoadWord:
		return "state_load_word"
	case OpStateStoreWord:
		return "state_store_word"
	case OpStateLoadQuad:
		return "state_load_quad"
	case OpStateStoreQuad:
		return "state_store_quad"
	case OpNop:
		return "nop"
	default:
		return "unknown"
	}
}

// Instruction is one IR instruction. The Op selects which payload field is
// meaningful. Result is the value the instruction defines, nil for
// instructions without results.
type Instruction struct {
	Op     Op
	Type   types.TypeID
	Span   source.Span
	Result *Value

	Asm          AsmInstr
	BitCast      BitCastInstr
	Binary       BinaryInstr
	Br           BrInstr
	Cbr          CbrInstr
	ContractCall ContractCallInstr
	GetLocal     GetLocalInstr
	GetElemPtr   GetElemPtrInstr
	Load         LoadInstr
	Store        StoreInstr
	Ret          RetInstr
	Revert       RevertInstr
	StateWord    StateWordInstr
	StateQuad    StateQuadInstr
}

// IsTerminator reports whether the instruction ends a block.
func (ins *Instruction) IsTerminator() bool {
	if ins == nil {
		return false
	}
	switch ins.Op {
	case OpBr, OpCbr, OpRet, OpRevert:
		return true
	default:
		return false
	}
}

// AsmRegDecl declares one register of an inline asm block, optionally
// initialized.
type AsmRegDecl struct {
	Name string
	Init *Value
}

// AsmInstrOp is one instruction of an inline asm block, carried through the
// IR verbatim; the instruction selector parses and substitutes it.
type AsmInstrOp struct {
	Opcode string
	Args   []ast.AsmArg
	Span   source.Span
}

// AsmInstr is the payload of OpAsm.
type AsmInstr struct {
	Regs   []AsmRegDecl
	Ops    []AsmInstrOp
	RetReg string
}

// BitCastInstr is the payload of OpBitCast.
type BitCastInstr struct {
	Val *Value
}

// BinaryInstr is the payload of OpBinary. Wide is set for 256-bit
// arithmetic only: it addresses the stack buffer the result is written
// into, and the instruction's value is that address.
type BinaryInstr struct {
	Op    ast.BinaryOp
	Left  *Value
	Right *Value
	Wide  *Value
}

// BrInstr is the payload of OpBr. Args fill the target's block arguments
// positionally.
type BrInstr struct {
	To   *Block
	Args []*Value
}

// CbrInstr is the payload of OpCbr.
type CbrInstr struct {
	Cond      *Value
	True      *Block
	TrueArgs  []*Value
	False     *Block
	FalseArgs []*Value
}

// ContractCallInstr is the payload of OpContractCall. Params points at the
// packed (args pointer, contract address, encoded selector) record.
type ContractCallInstr struct {
	Name   string
	Params *Value
	Coins  *Value
	Asset  *Value
	Gas    *Value
}

// GetLocalInstr is the payload of OpGetLocal.
type GetLocalInstr struct {
	Local *LocalVar
}

// GetElemPtrInstr is the payload of OpGetElemPtr. Indices walk the base
// aggregate member by member; the instruction's Type is a pointer to the
// addressed member.
type GetElemPtrInstr struct {
	Base    *Value
	Indices []*Value
}

// LoadInstr is the payload of OpLoad.
type LoadInstr struct {
	Src *Value
}

// StoreInstr is the payload of OpStore.
type StoreInstr struct {
	Dst *Value
	Src *Value
}

// RetInstr is the payload of OpRet.
type RetInstr struct {
	Val *Value
}

// RevertInstr is the payload of OpRevert.
type RevertInstr struct {
	Code *Value
}

// StateWordInstr is the payload of OpStateLoadWord / OpStateStoreWord.
// Key points at a b256 slot key in memory; Val is the stored word (stores
// only).
type StateWordInstr struct {
	Key *Value
	Val *Value
}

// StateQuadInstr is the payload of OpStateLoadQuad / OpStateStoreQuad.
// Ptr addresses a word-aligned buffer of NumSlots*32 bytes.
type StateQuadInstr struct {
	Ptr      *Value
	Key      *Value
	NumSlots uint64
}

// Operands returns every value the instruction reads, in a fixed order.
// Branch arguments are included.
func (ins *Instruction) Operands() []*Value {
	if ins == nil {
		return nil
	}
	switch ins.Op {
	case OpAsm:
		var ops []*Value
		for _, r := range ins.Asm.Regs {
			if r.Init != nil {
				ops = append(ops, r.Init)
			}
		}
		return ops
	case OpBitCast:
		return []*Value{ins.BitCast.Val}
	case OpBinary:
		ops := []*Value{ins.Binary.Left, ins.Binary.Right}
		if ins.Binary.Wide != nil {
			ops = append(ops, ins.Binary.Wide)
		}
		return ops
	case OpBr:
		return ins.Br.Args
	case OpCbr:
		ops := []*Value{ins.Cbr.Cond}
		ops = append(ops, ins.Cbr.TrueArgs...)
		ops = append(ops, ins.Cbr.FalseArgs...)
		return ops
	case OpContractCall:
		return []*Value{ins.ContractCall.Params, ins.ContractCall.Coins, ins.ContractCall.Asset, ins.ContractCall.Gas}
	case OpGetLocal:
		return nil
	case OpGetElemPtr:
		ops := []*Value{ins.GetElemPtr.Base}
		ops = append(ops, ins.GetElemPtr.Indices...)
		return ops
	case OpLoad:
		return []*Value{ins.Load.Src}
	case OpStore:
		return []*Value{ins.Store.Dst, ins.Store.Src}
	case OpRet:
		if ins.Ret.Val == nil {
			return nil
		}
		return []*Value{ins.Ret.Val}
	case OpRevert:
		return []*Value{ins.Revert.Code}
	case OpStateLoadWord, OpStateStoreWord:
		if ins.StateWord.Val != nil {
			return []*Value{ins.StateWord.Key, ins.StateWord.Val}
		}
		return []*Value{ins.StateWord.Key}
	case OpStateLoadQuad, OpStateStoreQuad:
		return []*Value{ins.StateQuad.Ptr, ins.StateQuad.Key}
	default:
		return nil
	}
}
