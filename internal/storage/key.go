// Package storage derives the 256-bit slot keys under which persistent
// contract state lives. The derivation scheme is part of the chain's ABI;
// the backend only decides which (state index, field path) to hash and how
// many consecutive slots an access spans.
package storage

import (
	"crypto/sha256"
	"encoding/binary"
)

// KeyDeriver maps a declared state index plus a struct field index chain to
// a slot key. Implementations must be deterministic.
type KeyDeriver interface {
	SlotKey(stateIndex uint64, fieldPath []uint64) [32]byte
}

// Sha256Deriver is the default scheme: sha256 over the little-endian state
// index followed by each path element.
type Sha256Deriver struct{}

func (Sha256Deriver) SlotKey(stateIndex uint64, fieldPath []uint64) [32]byte {
	h := sha256.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], stateIndex)
	h.Write(buf[:])
	for _, ix := range fieldPath {
		binary.LittleEndian.PutUint64(buf[:], ix)
		h.Write(buf[:])
	}
	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}

// SlotSize is the byte width of one storage slot.
const SlotSize = 32

// SlotCount returns how many consecutive slots a value of the given byte
// size occupies.
func SlotCount(sizeInBytes uint64) uint64 {
	return (sizeInBytes + SlotSize - 1) / SlotSize
}
