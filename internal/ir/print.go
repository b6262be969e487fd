package ir

import (
	"fmt"
	"io"
	"strings"

	"fathom/internal/types"
)

// Dump writes a human-readable listing of a function. Value numbering is
// assigned at print time in definition order, so dumping the same function
// twice yields identical text.
func Dump(w io.Writer, f *Function, in *types.Interner) {
	if w == nil || f == nil {
		return
	}
	p := &printer{w: w, types: in, names: make(map[*Value]string)}
	p.dumpFunc(f)
}

// DumpContext dumps every function of a context.
func DumpContext(w io.Writer, c *Context, in *types.Interner) {
	if c == nil {
		return
	}
	for _, f := range c.Functions {
		Dump(w, f, in)
	}
}

type printer struct {
	w     io.Writer
	types *types.Interner
	names map[*Value]string
	next  int
}

func (p *printer) name(v *Value) string {
	if v == nil {
		return "<nil>"
	}
	if v.Kind == ValueConstant {
		return p.constStr(v.Const)
	}
	if n, ok := p.names[v]; ok {
		return n
	}
	var n string
	switch v.Kind {
	case ValueArgument, ValueBlockArg:
		n = "%" + v.Name
	default:
		n = fmt.Sprintf("%%v%d", p.next)
		p.next++
	}
	p.names[v] = n
	return n
}

func (p *printer) constStr(c *Constant) string {
	if c == nil {
		return "<nil const>"
	}
	prefix := ""
	if c.ConfigName != "" {
		prefix = fmt.Sprintf("config(%s) ", c.ConfigName)
	}
	switch c.Kind {
	case ConstUnit:
		return prefix + "()"
	case ConstBool:
		return fmt.Sprintf("%s%t", prefix, c.BoolValue)
	case ConstUint:
		return fmt.Sprintf("%s%d", prefix, c.UintValue)
	case ConstB256:
		return fmt.Sprintf("%s0x%x", prefix, c.B256Value)
	case ConstString:
		return fmt.Sprintf("%s%q", prefix, string(c.StringData))
	default:
		return prefix + "?"
	}
}

func (p *printer) typeStr(id types.TypeID) string {
	if p.types == nil {
		return fmt.Sprintf("t%d", id)
	}
	return p.types.String(id)
}

func (p *printer) dumpFunc(f *Function) {
	args := make([]string, 0, len(f.Args))
	for _, a := range f.Args {
		args = append(args, fmt.Sprintf("%s: %s", p.name(a), p.typeStr(a.Type)))
	}
	entry := ""
	if f.IsEntry {
		entry = fmt.Sprintf("entry(selector=0x%x) ", f.Selector)
	}
	fmt.Fprintf(p.w, "%sfn %s(%s) -> %s {\n", entry, f.Name, strings.Join(args, ", "), p.typeStr(f.Ret))
	for _, lv := range f.Locals {
		fmt.Fprintf(p.w, "  local %s: %s\n", lv.Name, p.typeStr(lv.Type))
	}
	for _, b := range f.Blocks {
		p.dumpBlock(b)
	}
	fmt.Fprintf(p.w, "}\n")
}

func (p *printer) dumpBlock(b *Block) {
	args := make([]string, 0, len(b.Args))
	for _, a := range b.Args {
		args = append(args, fmt.Sprintf("%s: %s", p.name(a), p.typeStr(a.Type)))
	}
	fmt.Fprintf(p.w, "  %s(%s):\n", b.Label, strings.Join(args, ", "))
	for _, ins := range b.Instrs {
		p.dumpInstr(ins)
	}
}

func (p *printer) dumpInstr(ins *Instruction) {
	lhs := ""
	if ins.Result != nil {
		lhs = p.name(ins.Result) + " = "
	}
	switch ins.Op {
	case OpBinary:
		fmt.Fprintf(p.w, "    %sbinary %s %s, %s\n", lhs, ins.Binary.Op, p.name(ins.Binary.Left), p.name(ins.Binary.Right))
	case OpBr:
		fmt.Fprintf(p.w, "    br %s(%s)\n", ins.Br.To.Label, p.valueList(ins.Br.Args))
	case OpCbr:
		fmt.Fprintf(p.w, "    cbr %s, %s(%s), %s(%s)\n", p.name(ins.Cbr.Cond),
			ins.Cbr.True.Label, p.valueList(ins.Cbr.TrueArgs),
			ins.Cbr.False.Label, p.valueList(ins.Cbr.FalseArgs))
	case OpGetLocal:
		fmt.Fprintf(p.w, "    %sget_local %s\n", lhs, ins.GetLocal.Local.Name)
	case OpGetElemPtr:
		fmt.Fprintf(p.w, "    %sget_elem_ptr %s [%s] -> %s\n", lhs, p.name(ins.GetElemPtr.Base),
			p.valueList(ins.GetElemPtr.Indices), p.typeStr(ins.Type))
	case OpLoad:
		fmt.Fprintf(p.w, "    %sload %s\n", lhs, p.name(ins.Load.Src))
	case OpStore:
		fmt.Fprintf(p.w, "    store %s, %s\n", p.name(ins.Store.Dst), p.name(ins.Store.Src))
	case OpBitCast:
		fmt.Fprintf(p.w, "    %sbitcast %s to %s\n", lhs, p.name(ins.BitCast.Val), p.typeStr(ins.Type))
	case OpRet:
		if ins.Ret.Val == nil {
			fmt.Fprintf(p.w, "    ret\n")
		} else {
			fmt.Fprintf(p.w, "    ret %s\n", p.name(ins.Ret.Val))
		}
	case OpRevert:
		fmt.Fprintf(p.w, "    revert %s\n", p.name(ins.Revert.Code))
	case OpContractCall:
		fmt.Fprintf(p.w, "    %scontract_call %s %s coins=%s asset=%s gas=%s\n", lhs,
			ins.ContractCall.Name, p.name(ins.ContractCall.Params),
			p.name(ins.ContractCall.Coins), p.name(ins.ContractCall.Asset), p.name(ins.ContractCall.Gas))
	case OpStateLoadWord:
		fmt.Fprintf(p.w, "    %sstate_load_word key=%s\n", lhs, p.name(ins.StateWord.Key))
	case OpStateStoreWord:
		fmt.Fprintf(p.w, "    state_store_word key=%s, %s\n", p.name(ins.StateWord.Key), p.name(ins.StateWord.Val))
	case OpStateLoadQuad:
		fmt.Fprintf(p.w, "    state_load_quad %s, key=%s, slots=%d\n", p.name(ins.StateQuad.Ptr), p.name(ins.StateQuad.Key), ins.StateQuad.NumSlots)
	case OpStateStoreQuad:
		fmt.Fprintf(p.w, "    state_store_quad %s, key=%s, slots=%d\n", p.name(ins.StateQuad.Ptr), p.name(ins.StateQuad.Key), ins.StateQuad.NumSlots)
	case OpAsm:
		fmt.Fprintf(p.w, "    %sasm(%d regs, %d ops)\n", lhs, len(ins.Asm.Regs), len(ins.Asm.Ops))
	case OpNop:
		fmt.Fprintf(p.w, "    nop\n")
	default:
		fmt.Fprintf(p.w, "    %s%s\n", lhs, ins.Op)
	}
}

func (p *printer) valueList(vals []*Value) string {
	parts := make([]string, 0, len(vals))
	for _, v := range vals {
		parts = append(parts, p.name(v))
	}
	return strings.Join(parts, ", ")
}
