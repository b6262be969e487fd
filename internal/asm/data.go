package asm

import (
	"encoding/hex"
	"fmt"
	"io"
)

// DataID addresses one entry of the data section.
type DataID uint32

func (id DataID) String() string {
	return fmt.Sprintf("data_%d", id)
}

// EntryKind distinguishes word entries (loaded by value) from byte entries
// (loaded by address).
type EntryKind uint8

const (
	EntryWord EntryKind = iota
	EntryBytes
)

// Entry is one constant pooled in the data section. ConfigName marks a
// configurable entry, which is addressable by name in the deployed binary
// and therefore never deduplicated.
type Entry struct {
	Kind       EntryKind
	Word       uint64
	Bytes      []byte
	ConfigName string
}

func (e Entry) equal(other Entry) bool {
	if e.Kind != other.Kind || e.Word != other.Word || len(e.Bytes) != len(other.Bytes) {
		return false
	}
	for i := range e.Bytes {
		if e.Bytes[i] != other.Bytes[i] {
			return false
		}
	}
	return true
}

// DataSection is the ordered, append-only constant pool of one compilation
// unit.
type DataSection struct {
	Entries []Entry
}

func NewDataSection() *DataSection {
	return &DataSection{}
}

// Insert pools an entry and returns its id. Identical non-configurable
// entries share one id; configurable entries are always appended.
func (d *DataSection) Insert(e Entry) DataID {
	if e.ConfigName == "" {
		for i, existing := range d.Entries {
			if existing.ConfigName == "" && existing.equal(e) {
				return DataID(i) //nolint:gosec // bounded by section growth below
			}
		}
	}
	id := DataID(len(d.Entries)) //nolint:gosec // sections stay far below 2^32 entries
	d.Entries = append(d.Entries, e)
	return id
}

// InsertWord pools a word constant.
func (d *DataSection) InsertWord(w uint64) DataID {
	return d.Insert(Entry{Kind: EntryWord, Word: w})
}

// InsertBytes pools a byte-array constant.
func (d *DataSection) InsertBytes(b []byte) DataID {
	return d.Insert(Entry{Kind: EntryBytes, Bytes: b})
}

// Len returns the number of entries.
func (d *DataSection) Len() int {
	return len(d.Entries)
}

// Print writes the `.data:` block, one `tag value` line per entry.
func (d *DataSection) Print(w io.Writer) {
	fmt.Fprintln(w, ".data:")
	for i, e := range d.Entries {
		tag := DataID(i).String() //nolint:gosec // index bounded by Insert
		if e.ConfigName != "" {
			tag = "config_" + e.ConfigName
		}
		switch e.Kind {
		case EntryWord:
			fmt.Fprintf(w, "%s .word 0x%x\n", tag, e.Word)
		case EntryBytes:
			fmt.Fprintf(w, "%s .bytes 0x%s\n", tag, hex.EncodeToString(e.Bytes))
		}
	}
}
