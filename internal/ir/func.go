package ir

import (
	"fmt"

	"fathom/internal/source"
	"fathom/internal/types"
)

// Context owns every function of one compilation unit.
type Context struct {
	Functions []*Function
}

func NewContext() *Context {
	return &Context{}
}

// NewFunction creates a function with an empty entry block and registers it
// with the context.
func (c *Context) NewFunction(name string, ret types.TypeID, span source.Span) *Function {
	f := &Function{
		Name: name,
		Ret:  ret,
		Span: span,
	}
	f.Entry = f.NewBlock("entry")
	c.Functions = append(c.Functions, f)
	return f
}

// LocalVar is a named stack slot.
type LocalVar struct {
	Name string
	Type types.TypeID
	Init *Constant
}

// Function is one compiled function: an entry block, arguments and named
// stack slots. After the inliner has run, entry functions are the only
// functions left in a unit.
type Function struct {
	Name   string
	Args   []*Value
	Locals []*LocalVar
	Blocks []*Block
	Entry  *Block
	Ret    types.TypeID
	Span   source.Span

	// Entry metadata: only externally callable functions carry a selector
	// and are recorded in the unit's ABI.
	IsEntry  bool
	Selector uint64

	nextLabel int
}

// NewBlock appends an empty block. An empty hint produces a numbered
// label; labels are unique within the function.
func (f *Function) NewBlock(hint string) *Block {
	label := hint
	if label == "" || f.findBlock(label) != nil {
		label = fmt.Sprintf("block%d", f.nextLabel)
		f.nextLabel++
	}
	b := &Block{Label: label, Func: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// RemoveBlock detaches a block nothing branches to. Callers are trusted;
// the validator catches branches to a removed block.
func (f *Function) RemoveBlock(b *Block) {
	for i, cand := range f.Blocks {
		if cand == b {
			f.Blocks = append(f.Blocks[:i], f.Blocks[i+1:]...)
			return
		}
	}
}

func (f *Function) findBlock(label string) *Block {
	for _, b := range f.Blocks {
		if b.Label == label {
			return b
		}
	}
	return nil
}

// AddArg declares a function argument value.
func (f *Function) AddArg(name string, ty types.TypeID, span source.Span) *Value {
	v := &Value{Kind: ValueArgument, Type: ty, Name: name, Span: span}
	f.Args = append(f.Args, v)
	return v
}

// NewLocal declares a named stack slot. Names are assumed unique; the
// lowerer mangles source identifiers before declaring them.
func (f *Function) NewLocal(name string, ty types.TypeID, init *Constant) *LocalVar {
	lv := &LocalVar{Name: name, Type: ty, Init: init}
	f.Locals = append(f.Locals, lv)
	return lv
}

// Block is an ordered instruction list ending in exactly one terminator.
// Args are the block's phi points.
type Block struct {
	Label  string
	Func   *Function
	Args   []*Value
	Instrs []*Instruction
}

// Terminated reports whether the block already ends in a terminator.
func (b *Block) Terminated() bool {
	if b == nil || len(b.Instrs) == 0 {
		return false
	}
	return b.Instrs[len(b.Instrs)-1].IsTerminator()
}

// NewBlockArg appends a typed block argument and returns its value.
func (b *Block) NewBlockArg(ty types.TypeID, span source.Span) *Value {
	v := &Value{
		Kind:  ValueBlockArg,
		Type:  ty,
		Name:  fmt.Sprintf("%s_arg%d", b.Label, len(b.Args)),
		Span:  span,
		Block: b,
	}
	b.Args = append(b.Args, v)
	return v
}

// Append adds an instruction to the block and returns its result value
// (nil for instructions without results). Appending to a terminated block
// is an internal error the validator reports; the builder itself stays
// silent so lowering can surface the diagnostic with a span.
func (b *Block) Append(ins *Instruction) *Value {
	if b == nil || ins == nil {
		return nil
	}
	if ins.Type != types.NoTypeID && !ins.IsTerminator() && ins.Op != OpStore &&
		ins.Op != OpStateStoreWord && ins.Op != OpStateStoreQuad && ins.Op != OpNop {
		ins.Result = &Value{Kind: ValueInstr, Type: ins.Type, Span: ins.Span, Instr: ins}
	}
	b.Instrs = append(b.Instrs, ins)
	return ins.Result
}

// Terminator returns the block's final instruction when it is a
// terminator, nil otherwise.
func (b *Block) Terminator() *Instruction {
	if !b.Terminated() {
		return nil
	}
	return b.Instrs[len(b.Instrs)-1]
}
