package asmgen

import (
	"fathom/internal/asm"
	"fathom/internal/diag"
	"fathom/internal/ir"
	"fathom/internal/source"
)

// materializeConst places a constant in a register, cheapest form first:
// the always-zero register, the always-one register, an immediate move,
// and finally a data-section entry plus load-by-id. Configurable constants
// skip the tiering entirely: they must stay patchable in the deployed
// binary, so they always go through a named data entry.
func (fs *funcSelector) materializeConst(v *ir.Value) (asm.Register, error) {
	c := v.Const
	if c == nil {
		return asm.Register{}, fs.ice(diag.IceUseBeforeDef, v.Span, "constant value without payload")
	}
	if c.ConfigName != "" {
		return fs.loadConfig(c, v.Span)
	}
	switch c.Kind {
	case ir.ConstUnit:
		return asm.Reserved(asm.RegZero), nil
	case ir.ConstBool:
		if c.BoolValue {
			return asm.Reserved(asm.RegOne), nil
		}
		return asm.Reserved(asm.RegZero), nil
	case ir.ConstUint:
		return fs.materializeWord(c.UintValue, "", v.Span)
	case ir.ConstB256:
		return fs.loadBytes(c.B256Value[:], "", v.Span), nil
	case ir.ConstString:
		return fs.loadBytes(c.StringData, "", v.Span), nil
	default:
		return asm.Register{}, fs.ice(diag.IceUnknownType, v.Span, "unknown constant kind %d", c.Kind)
	}
}

// materializeWord places a machine word in a register. A non-empty config
// name forces a named data entry regardless of the value.
func (fs *funcSelector) materializeWord(w uint64, configName string, span source.Span) (asm.Register, error) {
	if configName == "" {
		switch {
		case w == 0:
			return asm.Reserved(asm.RegZero), nil
		case w == 1:
			return asm.Reserved(asm.RegOne), nil
		case fs.s.tgt.FitsImmediate(w):
			r := fs.fresh()
			fs.emit(asm.Op{
				Opcode: asm.OpcodeMovi,
				Regs:   []asm.Register{r},
				Imm:    w, HasImm: true,
				Span: span,
			})
			return r, nil
		}
	}
	id := fs.data.Insert(asm.Entry{Kind: asm.EntryWord, Word: w, ConfigName: configName})
	r := fs.fresh()
	fs.emit(asm.Op{
		Opcode: asm.OpcodeLwd,
		Regs:   []asm.Register{r},
		Data:   id, HasData: true,
		Span: span,
	})
	return r, nil
}

// loadBytes pools a byte constant and loads its address.
func (fs *funcSelector) loadBytes(b []byte, configName string, span source.Span) asm.Register {
	id := fs.data.Insert(asm.Entry{Kind: asm.EntryBytes, Bytes: append([]byte(nil), b...), ConfigName: configName})
	r := fs.fresh()
	fs.emit(asm.Op{
		Opcode: asm.OpcodeLwd,
		Regs:   []asm.Register{r},
		Data:   id, HasData: true,
		Span: span,
	})
	return r
}

func (fs *funcSelector) loadConfig(c *ir.Constant, span source.Span) (asm.Register, error) {
	switch c.Kind {
	case ir.ConstUnit:
		return asm.Reserved(asm.RegZero), nil
	case ir.ConstBool:
		w := uint64(0)
		if c.BoolValue {
			w = 1
		}
		return fs.materializeWord(w, c.ConfigName, span)
	case ir.ConstUint:
		return fs.materializeWord(c.UintValue, c.ConfigName, span)
	case ir.ConstB256:
		return fs.loadBytes(c.B256Value[:], c.ConfigName, span), nil
	case ir.ConstString:
		return fs.loadBytes(c.StringData, c.ConfigName, span), nil
	default:
		return asm.Register{}, fs.ice(diag.IceUnknownType, span, "unknown configurable kind %d", c.Kind)
	}
}
