package types

import (
	"fmt"

	"fortio.org/safecast"
)

// Builtins stores TypeIDs for the primitive types every compilation needs.
type Builtins struct {
	Unit TypeID
	Bool TypeID
	U8   TypeID
	U16  TypeID
	U32  TypeID
	U64  TypeID
	B256 TypeID
}

// Interner provides stable TypeIDs by hashing structural descriptors.
// Interning the same structural type twice yields the same id, which keeps
// type identity comparisons cheap throughout the backend.
type Interner struct {
	types    []Type
	index    map[Type]TypeID
	aggs     []AggInfo
	builtins Builtins
}

// NewInterner constructs an interner seeded with built-in primitives.
func NewInterner() *Interner {
	in := &Interner{
		index: make(map[Type]TypeID, 64),
	}
	in.types = append(in.types, Type{Kind: KindInvalid}) // reserve NoTypeID
	in.aggs = append(in.aggs, AggInfo{})                 // reserve NoAggID
	in.builtins.Unit = in.Intern(Type{Kind: KindUnit})
	in.builtins.Bool = in.Intern(Type{Kind: KindBool})
	in.builtins.U8 = in.Intern(Type{Kind: KindUint, Width: Width8})
	in.builtins.U16 = in.Intern(Type{Kind: KindUint, Width: Width16})
	in.builtins.U32 = in.Intern(Type{Kind: KindUint, Width: Width32})
	in.builtins.U64 = in.Intern(Type{Kind: KindUint, Width: Width64})
	in.builtins.B256 = in.Intern(Type{Kind: KindB256})
	return in
}

// Builtins returns TypeIDs for primitive types.
func (in *Interner) Builtins() Builtins {
	return in.builtins
}

// Intern ensures the provided descriptor has a stable TypeID.
func (in *Interner) Intern(t Type) TypeID {
	if t.Kind == KindInvalid {
		return NoTypeID
	}
	if id, ok := in.index[t]; ok {
		return id
	}
	raw, err := safecast.Conv[uint32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("types: id overflow: %w", err))
	}
	id := TypeID(raw)
	in.types = append(in.types, t)
	in.index[t] = id
	return id
}

// Lookup returns the descriptor for a TypeID.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	if id == NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// MustLookup panics when id is invalid. For use on ids the backend itself
// produced.
func (in *Interner) MustLookup(id TypeID) Type {
	tt, ok := in.Lookup(id)
	if !ok {
		panic(fmt.Sprintf("types: invalid TypeID %d", id))
	}
	return tt
}

// StringType interns a fixed-length string type of n bytes.
func (in *Interner) StringType(n uint32) TypeID {
	return in.Intern(Type{Kind: KindString, Len: n})
}

// Array interns an array type.
func (in *Interner) Array(elem TypeID, count uint32) TypeID {
	return in.Intern(Type{Kind: KindArray, Elem: elem, Len: count})
}

// Pointer interns a pointer type.
func (in *Interner) Pointer(elem TypeID) TypeID {
	return in.Intern(Type{Kind: KindPointer, Elem: elem})
}

// RawSlice interns the raw-slice type over elem.
func (in *Interner) RawSlice(elem TypeID) TypeID {
	return in.Intern(Type{Kind: KindRawSlice, Elem: elem})
}

// TypeParam interns the placeholder for a generic type parameter by
// declaration index.
func (in *Interner) TypeParam(index uint32) TypeID {
	return in.Intern(Type{Kind: KindTypeParam, Len: index})
}

// Struct interns a struct type. Field order is layout order. Structs with
// the same name and fields share one id.
func (in *Interner) Struct(name string, fields []Field) TypeID {
	return in.internAgg(KindStruct, name, fields)
}

// Union interns a tagged-union type.
func (in *Interner) Union(name string, variants []Field) TypeID {
	return in.internAgg(KindUnion, name, variants)
}

func (in *Interner) internAgg(kind Kind, name string, fields []Field) TypeID {
	// Structural dedup: reuse an existing aggregate with identical shape.
	for i := 1; i < len(in.aggs); i++ {
		if in.aggs[i].Name != name || len(in.aggs[i].Fields) != len(fields) {
			continue
		}
		same := true
		for j := range fields {
			if in.aggs[i].Fields[j] != fields[j] {
				same = false
				break
			}
		}
		if !same {
			continue
		}
		raw, err := safecast.Conv[uint32](i)
		if err != nil {
			panic(fmt.Errorf("types: agg id overflow: %w", err))
		}
		if id, ok := in.index[Type{Kind: kind, Agg: AggID(raw)}]; ok {
			return id
		}
	}
	raw, err := safecast.Conv[uint32](len(in.aggs))
	if err != nil {
		panic(fmt.Errorf("types: agg id overflow: %w", err))
	}
	aggID := AggID(raw)
	in.aggs = append(in.aggs, AggInfo{Name: name, Fields: append([]Field(nil), fields...)})
	return in.Intern(Type{Kind: kind, Agg: aggID})
}

// AggInfo returns the aggregate side info for struct/union ids.
func (in *Interner) AggInfo(id TypeID) (*AggInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || (tt.Kind != KindStruct && tt.Kind != KindUnion) {
		return nil, false
	}
	if tt.Agg == NoAggID || int(tt.Agg) >= len(in.aggs) {
		return nil, false
	}
	return &in.aggs[tt.Agg], true
}

// String renders a type for dumps and diagnostics.
func (in *Interner) String(id TypeID) string {
	tt, ok := in.Lookup(id)
	if !ok {
		return "<invalid>"
	}
	switch tt.Kind {
	case KindUint:
		return fmt.Sprintf("u%d", tt.Width)
	case KindString:
		return fmt.Sprintf("str[%d]", tt.Len)
	case KindArray:
		return fmt.Sprintf("[%s; %d]", in.String(tt.Elem), tt.Len)
	case KindPointer:
		return fmt.Sprintf("ptr %s", in.String(tt.Elem))
	case KindRawSlice:
		return "raw_slice"
	case KindStruct, KindUnion:
		if info, ok := in.AggInfo(id); ok && info.Name != "" {
			return info.Name
		}
		return tt.Kind.String()
	default:
		return tt.Kind.String()
	}
}
