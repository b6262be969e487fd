// Package target describes the VM the backend emits code for. The defaults
// match fathom-vm-v1; deployments with different register files or
// immediate widths override them with a TOML description file.
package target

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Target captures the VM properties the backend depends on.
type Target struct {
	Name      string `toml:"name"`
	WordSize  int    `toml:"word_size"`
	Registers int    `toml:"registers"`
	ImmBits   int    `toml:"imm_bits"`

	// DataSectionLimit caps data section entries; 0 means unlimited.
	DataSectionLimit int `toml:"data_section_limit"`
}

// Default returns the fathom-vm-v1 target.
func Default() Target {
	return Target{
		Name:      "fathom-vm-v1",
		WordSize:  8,
		Registers: 48,
		ImmBits:   18,
	}
}

// MaxImmediate returns the largest value the target's immediate field
// holds.
func (t Target) MaxImmediate() uint64 {
	return (uint64(1) << t.ImmBits) - 1 //nolint:gosec // ImmBits validated to 1..32
}

// FitsImmediate reports whether v fits the target's immediate width.
func (t Target) FitsImmediate(v uint64) bool {
	return v <= t.MaxImmediate()
}

// Validate rejects targets the backend cannot emit code for.
func (t Target) Validate() error {
	if t.WordSize != 8 {
		return fmt.Errorf("target %s: unsupported word size %d", t.Name, t.WordSize)
	}
	if t.Registers < 8 {
		return fmt.Errorf("target %s: need at least 8 allocatable registers, have %d", t.Name, t.Registers)
	}
	if t.ImmBits < 1 || t.ImmBits > 32 {
		return fmt.Errorf("target %s: immediate width %d out of range 1..32", t.Name, t.ImmBits)
	}
	return nil
}

// Load reads a TOML target description, filling unset fields from the
// default target.
func Load(path string) (Target, error) {
	t := Default()
	meta, err := toml.DecodeFile(path, &t)
	if err != nil {
		return Target{}, fmt.Errorf("target: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Target{}, fmt.Errorf("target: unknown key %q in %s", undecoded[0], path)
	}
	if err := t.Validate(); err != nil {
		return Target{}, err
	}
	return t, nil
}
