// Package asm defines the virtual-register assembly form and the staged
// pipeline that turns it into finalized, printable output: jump
// optimization, register allocation and the finalizer peephole slot.
package asm

import (
	"fmt"
)

// RegKind distinguishes register classes.
type RegKind uint8

const (
	// RegVirtual is an unbounded symbolic register, live until the
	// allocator maps it onto hardware.
	RegVirtual RegKind = iota
	// RegReserved is one of the VM's special registers.
	RegReserved
	// RegHardware is an allocatable hardware register, only present after
	// register allocation.
	RegHardware
)

// ReservedReg enumerates the VM's special registers.
type ReservedReg uint8

const (
	// RegZero always reads 0.
	RegZero ReservedReg = iota
	// RegOne always reads 1.
	RegOne
	// RegStackStart points at the base of the call frame.
	RegStackStart
	// RegStackPtr points past the top of the stack.
	RegStackPtr
	// RegInstrStart points at the start of the loaded program.
	RegInstrStart
	// RegReturnValue holds a callee's returned word.
	RegReturnValue
	// RegReturnLength holds the byte length of returned data.
	RegReturnLength
	// RegFlags holds arithmetic flags.
	RegFlags
	// RegContextGas holds the remaining gas of the current context.
	RegContextGas
	// RegBalance holds the forwarded asset amount of the current call.
	RegBalance
)

var reservedNames = map[ReservedReg]string{
	RegZero:         "zero",
	RegOne:          "one",
	RegStackStart:   "ssp",
	RegStackPtr:     "sp",
	RegInstrStart:   "is",
	RegReturnValue:  "ret",
	RegReturnLength: "retl",
	RegFlags:        "flag",
	RegContextGas:   "cgas",
	RegBalance:      "bal",
}

func (r ReservedReg) String() string {
	if n, ok := reservedNames[r]; ok {
		return "$" + n
	}
	return fmt.Sprintf("$reserved%d", r)
}

// LookupReserved resolves an inline-asm register name ("zero", "sp", ...)
// to a reserved register.
func LookupReserved(name string) (ReservedReg, bool) {
	for r, n := range reservedNames {
		if n == name {
			return r, true
		}
	}
	return 0, false
}

// Register is one operand register of an Op.
type Register struct {
	Kind RegKind
	ID   uint64      // virtual or hardware index
	Res  ReservedReg // reserved registers only
}

// Virtual builds a virtual register.
func Virtual(id uint64) Register {
	return Register{Kind: RegVirtual, ID: id}
}

// Reserved builds a reserved register.
func Reserved(r ReservedReg) Register {
	return Register{Kind: RegReserved, Res: r}
}

// Hardware builds an allocated hardware register.
func Hardware(id uint64) Register {
	return Register{Kind: RegHardware, ID: id}
}

func (r Register) String() string {
	switch r.Kind {
	case RegVirtual:
		return fmt.Sprintf("$v%d", r.ID)
	case RegHardware:
		return fmt.Sprintf("$r%d", r.ID)
	case RegReserved:
		return r.Res.String()
	default:
		return "$?"
	}
}

// IsZero reports whether the register is the always-zero register.
func (r Register) IsZero() bool {
	return r.Kind == RegReserved && r.Res == RegZero
}

// IsOne reports whether the register is the always-one register.
func (r Register) IsOne() bool {
	return r.Kind == RegReserved && r.Res == RegOne
}

// Label is an opaque jump target id, unique per compilation.
type Label uint64

func (l Label) String() string {
	return fmt.Sprintf(".L%d", l)
}
