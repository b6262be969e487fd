// Package driver runs the backend pipeline for compilation units: lowering
// to IR, validation, instruction selection, jump optimization, register
// allocation and finalization. Units compile independently; BuildAll fans
// them out across workers.
package driver

import (
	"fmt"
	"strings"

	"fathom/internal/asm"
	"fathom/internal/asmgen"
	"fathom/internal/ast"
	"fathom/internal/diag"
	"fathom/internal/ir"
	"fathom/internal/lower"
	"fathom/internal/source"
	"fathom/internal/storage"
	"fathom/internal/target"
	"fathom/internal/types"
)

// Unit is one type-checked compilation unit handed over by the front end.
// ContentHash keys the artifact cache; a zero hash disables caching for the
// unit.
type Unit struct {
	Name        string
	Program     *ast.Program
	Types       *types.Interner
	Files       *source.FileSet
	ContentHash Digest
}

// Options configures a build.
type Options struct {
	Target         target.Target
	Keys           storage.KeyDeriver
	MaxDiagnostics int
	Jobs           int
	Cache          *ArtifactCache
}

func (o Options) withDefaults() Options {
	if o.Target.Name == "" {
		o.Target = target.Default()
	}
	if o.MaxDiagnostics <= 0 {
		o.MaxDiagnostics = 64
	}
	return o
}

// Artifact is the result of compiling one unit. Text is the printed
// finalized program; libraries produce no text. The bag holds every
// diagnostic the unit raised, whether or not compilation succeeded.
type Artifact struct {
	Unit   string
	Kind   asm.ProgramKind
	Text   string
	Bag    *diag.Bag
	Cached bool
}

var programKinds = map[ast.ProgramKind]asm.ProgramKind{
	ast.ProgramContract:  asm.ProgramContract,
	ast.ProgramScript:    asm.ProgramScript,
	ast.ProgramPredicate: asm.ProgramPredicate,
	ast.ProgramLibrary:   asm.ProgramLibrary,
}

// Compile runs the whole pipeline for one unit, synchronously. A unit
// either produces a finalized artifact or fails with its first terminal
// diagnostic in the bag.
func Compile(u *Unit, opts Options) (*Artifact, error) {
	opts = opts.withDefaults()
	bag := diag.NewBag(opts.MaxDiagnostics)
	art := &Artifact{Unit: u.Name, Bag: bag}
	if err := opts.Target.Validate(); err != nil {
		return art, fmt.Errorf("driver: unit %s: %w", u.Name, err)
	}
	if u.Program == nil {
		return art, fmt.Errorf("driver: unit %s has no program", u.Name)
	}
	art.Kind = programKinds[u.Program.Kind]

	if err := checkEntries(u.Program, bag); err != nil {
		return art, err
	}
	if u.Program.Kind == ast.ProgramLibrary {
		// Libraries contribute declarations to other units and emit
		// nothing themselves.
		return art, nil
	}

	irctx := lower.New(u.Types, opts.Keys, bag, u.Program).CompileProgram()
	if bag.HasErrors() {
		return art, fmt.Errorf("driver: unit %s failed lowering", u.Name)
	}
	if err := ir.ValidateContext(irctx); err != nil {
		bag.Add(diag.NewBug(diag.IceUnterminatedBlock, source.Span{}, err.Error()))
		return art, fmt.Errorf("driver: unit %s produced invalid IR: %w", u.Name, err)
	}

	seq := asm.NewSequencer()
	prog, err := asmgen.New(u.Types, opts.Target, seq, bag).Generate(irctx, art.Kind)
	if err != nil {
		return art, fmt.Errorf("driver: unit %s failed instruction selection: %w", u.Name, err)
	}

	prog = asm.JumpOptimize(prog)
	prog = asm.AllocateRegisters(prog, opts.Target.Registers)
	prog = asm.Finalize(prog)

	var sb strings.Builder
	prog.Print(&sb)
	art.Text = sb.String()
	return art, nil
}

// checkEntries enforces the per-kind entry rules: scripts and predicates
// need exactly one main, contracts need at least one ABI method.
func checkEntries(p *ast.Program, bag *diag.Bag) error {
	switch p.Kind {
	case ast.ProgramScript, ast.ProgramPredicate:
		if f := findEntry(p, "main"); f == nil {
			bag.Add(diag.NewError(diag.GenMissingMain, source.Span{},
				fmt.Sprintf("%s has no main function", p.Kind)))
			return fmt.Errorf("driver: %s without main", p.Kind)
		}
	case ast.ProgramContract:
		if len(p.Entries) == 0 {
			bag.Add(diag.NewError(diag.GenMissingMain, source.Span{},
				"contract declares no ABI methods"))
			return fmt.Errorf("driver: contract without entries")
		}
	}
	return nil
}

func findEntry(p *ast.Program, name string) *ast.Function {
	for _, f := range p.Entries {
		if f.Name == name {
			return f
		}
	}
	return nil
}
