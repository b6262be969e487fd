package ir

import (
	"errors"
	"fmt"
)

// Validate checks a function's structural invariants: every block ends in
// exactly one terminator positioned last, every branch target belongs to
// the function, and every operand is defined before use in block layout
// order. Violations are compiler defects, not user errors.
func Validate(f *Function) error {
	if f == nil {
		return nil
	}
	var errs []error
	if err := validateTerminators(f); err != nil {
		errs = append(errs, err)
	}
	if err := validateTargets(f); err != nil {
		errs = append(errs, err)
	}
	if err := validateDefsBeforeUses(f); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("function %s: %w", f.Name, errors.Join(errs...))
}

// ValidateContext validates every function of a context.
func ValidateContext(c *Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, f := range c.Functions {
		if err := Validate(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validateTerminators(f *Function) error {
	var errs []error
	for _, b := range f.Blocks {
		if len(b.Instrs) == 0 {
			errs = append(errs, fmt.Errorf("%s: empty block", b.Label))
			continue
		}
		if !b.Terminated() {
			errs = append(errs, fmt.Errorf("%s: unterminated block", b.Label))
		}
		for i, ins := range b.Instrs {
			if ins.IsTerminator() && i != len(b.Instrs)-1 {
				errs = append(errs, fmt.Errorf("%s: terminator %s not in final position", b.Label, ins.Op))
			}
		}
	}
	return errors.Join(errs...)
}

func validateTargets(f *Function) error {
	owned := make(map[*Block]bool, len(f.Blocks))
	for _, b := range f.Blocks {
		owned[b] = true
	}
	check := func(label string, target *Block, args []*Value) error {
		if target == nil || !owned[target] {
			return fmt.Errorf("%s: branch to foreign block", label)
		}
		if len(args) != len(target.Args) {
			return fmt.Errorf("%s: branch to %s passes %d args, block declares %d",
				label, target.Label, len(args), len(target.Args))
		}
		return nil
	}
	var errs []error
	for _, b := range f.Blocks {
		term := b.Terminator()
		if term == nil {
			continue
		}
		switch term.Op {
		case OpBr:
			if err := check(b.Label, term.Br.To, term.Br.Args); err != nil {
				errs = append(errs, err)
			}
		case OpCbr:
			if err := check(b.Label, term.Cbr.True, term.Cbr.TrueArgs); err != nil {
				errs = append(errs, err)
			}
			if err := check(b.Label, term.Cbr.False, term.Cbr.FalseArgs); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// validateDefsBeforeUses approximates dominance by block layout order,
// which the lowerer guarantees: branch targets are always laid out after
// the instructions feeding them.
func validateDefsBeforeUses(f *Function) error {
	defined := make(map[*Value]bool)
	for _, a := range f.Args {
		defined[a] = true
	}
	var errs []error
	for _, b := range f.Blocks {
		for _, a := range b.Args {
			defined[a] = true
		}
		for _, ins := range b.Instrs {
			for _, op := range ins.Operands() {
				if op == nil || op.Kind == ValueConstant {
					continue
				}
				if !defined[op] {
					errs = append(errs, fmt.Errorf("%s: %s uses a value before its definition", b.Label, ins.Op))
				}
			}
			if ins.Result != nil {
				defined[ins.Result] = true
			}
		}
	}
	return errors.Join(errs...)
}
