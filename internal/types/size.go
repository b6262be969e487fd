package types

import (
	"fmt"
)

// WordSize is the VM word size in bytes. All stack layout is word-granular;
// only u8 and bool occupy a single byte when stored in isolation.
const WordSize = 8

// SizeInBytes returns the static byte size of a type.
func (in *Interner) SizeInBytes(id TypeID) (uint64, error) {
	tt, ok := in.Lookup(id)
	if !ok {
		return 0, fmt.Errorf("types: size of invalid TypeID %d", id)
	}
	switch tt.Kind {
	case KindUnit:
		return 0, nil
	case KindBool:
		return 1, nil
	case KindUint:
		if tt.Width == Width8 {
			return 1, nil
		}
		return WordSize, nil
	case KindB256:
		return 32, nil
	case KindPointer:
		return WordSize, nil
	case KindRawSlice:
		// Pointer plus length.
		return 2 * WordSize, nil
	case KindString:
		return roundUpToWord(uint64(tt.Len)), nil
	case KindArray:
		elemWords, err := in.SizeInWords(tt.Elem)
		if err != nil {
			return 0, err
		}
		return elemWords * WordSize * uint64(tt.Len), nil
	case KindStruct:
		info, ok := in.AggInfo(id)
		if !ok {
			return 0, fmt.Errorf("types: struct %d has no aggregate info", id)
		}
		var words uint64
		for _, f := range info.Fields {
			fw, err := in.SizeInWords(f.Type)
			if err != nil {
				return 0, err
			}
			words += fw
		}
		return words * WordSize, nil
	case KindUnion:
		info, ok := in.AggInfo(id)
		if !ok {
			return 0, fmt.Errorf("types: union %d has no aggregate info", id)
		}
		var maxWords uint64
		for _, f := range info.Fields {
			fw, err := in.SizeInWords(f.Type)
			if err != nil {
				return 0, err
			}
			if fw > maxWords {
				maxWords = fw
			}
		}
		// One tag word in front of the widest variant.
		return (maxWords + 1) * WordSize, nil
	default:
		return 0, fmt.Errorf("types: size of %s", tt.Kind)
	}
}

// SizeInWords returns the number of whole words a type occupies on the
// stack. Sub-word scalars round up to one word.
func (in *Interner) SizeInWords(id TypeID) (uint64, error) {
	b, err := in.SizeInBytes(id)
	if err != nil {
		return 0, err
	}
	return (b + WordSize - 1) / WordSize, nil
}

// FieldOffsetInWords returns the word offset of struct field fieldIdx, and
// the field's type. Every field is word-aligned.
func (in *Interner) FieldOffsetInWords(id TypeID, fieldIdx int) (uint64, TypeID, error) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindStruct {
		return 0, NoTypeID, fmt.Errorf("types: field offset on non-struct %s", in.String(id))
	}
	info, ok := in.AggInfo(id)
	if !ok {
		return 0, NoTypeID, fmt.Errorf("types: struct %d has no aggregate info", id)
	}
	if fieldIdx < 0 || fieldIdx >= len(info.Fields) {
		return 0, NoTypeID, fmt.Errorf("types: field index %d out of range for %s", fieldIdx, in.String(id))
	}
	var words uint64
	for i := 0; i < fieldIdx; i++ {
		fw, err := in.SizeInWords(info.Fields[i].Type)
		if err != nil {
			return 0, NoTypeID, err
		}
		words += fw
	}
	return words, info.Fields[fieldIdx].Type, nil
}

// IsCopyType reports whether values of the type fit in one register and are
// passed by value. Everything else lives in memory and is passed by
// reference.
func (in *Interner) IsCopyType(id TypeID) bool {
	tt, ok := in.Lookup(id)
	if !ok {
		return false
	}
	switch tt.Kind {
	case KindUnit, KindBool, KindUint, KindPointer:
		return true
	default:
		return false
	}
}

// IsAggregate reports whether the type has addressable members.
func (in *Interner) IsAggregate(id TypeID) bool {
	tt, ok := in.Lookup(id)
	if !ok {
		return false
	}
	switch tt.Kind {
	case KindStruct, KindUnion, KindArray:
		return true
	default:
		return false
	}
}

func roundUpToWord(n uint64) uint64 {
	return (n + WordSize - 1) / WordSize * WordSize
}
