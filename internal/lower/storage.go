package lower

import (
	"fathom/internal/ast"
	"fathom/internal/diag"
	"fathom/internal/ir"
	"fathom/internal/source"
	"fathom/internal/storage"
	"fathom/internal/types"
)

// resolveStorage finds the declared state field and walks the access path
// down to the accessed member's type.
func (l *Lowerer) resolveStorage(data ast.StorageAccessData, span source.Span) (types.TypeID, error) {
	var field *ast.StorageField
	for i := range l.program.Storage {
		if l.program.Storage[i].Ix == data.Ix {
			field = &l.program.Storage[i]
			break
		}
	}
	if field == nil {
		return types.NoTypeID, l.ice(diag.IceBadStorageType, span, "no storage field with index %d", data.Ix)
	}
	ty := field.Type
	for _, ix := range data.Path {
		_, next, err := l.types.FieldOffsetInWords(ty, int(ix)) //nolint:gosec // path indices are small
		if err != nil {
			return types.NoTypeID, l.ice(diag.IceBadStorageType, span, "%v", err)
		}
		ty = next
	}
	if err := l.rejectStorageArrays(ty, span); err != nil {
		return types.NoTypeID, err
	}
	return ty, nil
}

// rejectStorageArrays refuses arrays anywhere in a stored type. The slot
// layout for arrays is not pinned down yet; refusing them beats silently
// choosing one.
func (l *Lowerer) rejectStorageArrays(ty types.TypeID, span source.Span) error {
	t, ok := l.types.Lookup(ty)
	if !ok {
		return l.ice(diag.IceBadStorageType, span, "unsized storage type")
	}
	switch t.Kind {
	case types.KindArray:
		return l.userErr(diag.GenStorageArray, span, "arrays cannot be stored in contract storage")
	case types.KindStruct, types.KindUnion:
		info, ok := l.types.AggInfo(ty)
		if !ok {
			return l.ice(diag.IceBadStorageType, span, "aggregate without field info in storage")
		}
		for _, f := range info.Fields {
			if err := l.rejectStorageArrays(f.Type, span); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}

func (l *Lowerer) slotKeyValue(ix uint64, path []uint64, span source.Span) *ir.Value {
	key := l.keys.SlotKey(ix, path)
	return ir.NewConstant(&ir.Constant{Kind: ir.ConstB256, B256Value: key}, l.types.Builtins().B256, span)
}

// lowerStorageRead reads a storage member. Copy-typed leaves come back as
// a single word; everything else is read into a fresh stack slot and the
// expression's value is that slot's address.
func (l *Lowerer) lowerStorageRead(e *ast.Expr) (Lowered, error) {
	data := e.Data.(ast.StorageAccessData)
	ty, err := l.resolveStorage(data, e.Span)
	if err != nil {
		return Lowered{}, err
	}

	if l.types.IsCopyType(ty) {
		v, err := l.readStorageWord(data.Ix, data.Path, ty, e.Span)
		if err != nil {
			return Lowered{}, err
		}
		return value(v), nil
	}

	lv := l.newTemp("sread", ty)
	ptr := l.addrOfLocal(lv, e.Span)
	if err := l.readStorageInto(ptr, ty, data.Ix, data.Path, e.Span); err != nil {
		return Lowered{}, err
	}
	return value(ptr), nil
}

func (l *Lowerer) lowerStorageWrite(e *ast.Expr) (Lowered, error) {
	data := e.Data.(ast.StorageAccessData)
	ty, err := l.resolveStorage(data, e.Span)
	if err != nil {
		return Lowered{}, err
	}
	rhs, err := l.lowerExpr(data.RHS)
	if err != nil {
		return Lowered{}, err
	}
	if rhs.Diverges {
		return diverged(), nil
	}

	if l.types.IsCopyType(ty) {
		l.writeStorageWord(rhs.Val, data.Ix, data.Path, ty, e.Span)
		return value(l.unitVal(e.Span)), nil
	}
	if err := l.writeStorageFrom(rhs.Val, ty, data.Ix, data.Path, e.Span); err != nil {
		return Lowered{}, err
	}
	return value(l.unitVal(e.Span)), nil
}

// readStorageWord loads one word-sized leaf and narrows it to its declared
// type.
func (l *Lowerer) readStorageWord(ix uint64, path []uint64, ty types.TypeID, span source.Span) (*ir.Value, error) {
	word := l.emit(&ir.Instruction{
		Op:        ir.OpStateLoadWord,
		Type:      l.types.Builtins().U64,
		Span:      span,
		StateWord: ir.StateWordInstr{Key: l.slotKeyValue(ix, path, span)},
	})
	if ty == l.types.Builtins().U64 {
		return word, nil
	}
	return l.emit(&ir.Instruction{
		Op:      ir.OpBitCast,
		Type:    ty,
		Span:    span,
		BitCast: ir.BitCastInstr{Val: word},
	}), nil
}

func (l *Lowerer) writeStorageWord(val *ir.Value, ix uint64, path []uint64, ty types.TypeID, span source.Span) {
	if ty != l.types.Builtins().U64 {
		val = l.emit(&ir.Instruction{
			Op:      ir.OpBitCast,
			Type:    l.types.Builtins().U64,
			Span:    span,
			BitCast: ir.BitCastInstr{Val: val},
		})
	}
	l.emit(&ir.Instruction{
		Op:        ir.OpStateStoreWord,
		Span:      span,
		StateWord: ir.StateWordInstr{Key: l.slotKeyValue(ix, path, span), Val: val},
	})
}

// readStorageInto fills the memory at ptr with the storage member's value.
// Structs decompose field by field, extending the key path; b256 leaves use
// one quad slot in place; other sized leaves bounce through a slot-aligned
// buffer.
func (l *Lowerer) readStorageInto(ptr *ir.Value, ty types.TypeID, ix uint64, path []uint64, span source.Span) error {
	t, ok := l.types.Lookup(ty)
	if !ok {
		return l.ice(diag.IceBadStorageType, span, "unknown storage type")
	}
	switch t.Kind {
	case types.KindStruct:
		info, _ := l.types.AggInfo(ty)
		for i := range info.Fields {
			fieldPtr, fieldTy, err := l.structFieldPtr(ptr, ty, i, span)
			if err != nil {
				return err
			}
			sub := append(append([]uint64{}, path...), uint64(i)) //nolint:gosec // field index is non-negative
			if l.types.IsCopyType(fieldTy) {
				v, err := l.readStorageWord(ix, sub, fieldTy, span)
				if err != nil {
					return err
				}
				l.store(fieldPtr, v, span)
				continue
			}
			if err := l.readStorageInto(fieldPtr, fieldTy, ix, sub, span); err != nil {
				return err
			}
		}
		return nil
	case types.KindB256:
		l.emit(&ir.Instruction{
			Op:        ir.OpStateLoadQuad,
			Span:      span,
			StateQuad: ir.StateQuadInstr{Ptr: ptr, Key: l.slotKeyValue(ix, path, span), NumSlots: 1},
		})
		return nil
	case types.KindString, types.KindUnion:
		size, err := l.sizeOf(ty, span)
		if err != nil {
			return err
		}
		buf, slots, err := l.slotBuffer(size, span)
		if err != nil {
			return err
		}
		l.emit(&ir.Instruction{
			Op:        ir.OpStateLoadQuad,
			Span:      span,
			StateQuad: ir.StateQuadInstr{Ptr: buf, Key: l.slotKeyValue(ix, path, span), NumSlots: slots},
		})
		src := l.emit(&ir.Instruction{
			Op:      ir.OpBitCast,
			Type:    l.types.Pointer(ty),
			Span:    span,
			BitCast: ir.BitCastInstr{Val: buf},
		})
		l.store(ptr, src, span)
		return nil
	default:
		return l.ice(diag.IceBadStorageType, span, "type %s cannot live in storage", l.types.String(ty))
	}
}

func (l *Lowerer) writeStorageFrom(ptr *ir.Value, ty types.TypeID, ix uint64, path []uint64, span source.Span) error {
	t, ok := l.types.Lookup(ty)
	if !ok {
		return l.ice(diag.IceBadStorageType, span, "unknown storage type")
	}
	switch t.Kind {
	case types.KindStruct:
		info, _ := l.types.AggInfo(ty)
		for i := range info.Fields {
			fieldPtr, fieldTy, err := l.structFieldPtr(ptr, ty, i, span)
			if err != nil {
				return err
			}
			sub := append(append([]uint64{}, path...), uint64(i)) //nolint:gosec // field index is non-negative
			if l.types.IsCopyType(fieldTy) {
				v := l.loadIfCopy(fieldPtr, fieldTy, span)
				l.writeStorageWord(v, ix, sub, fieldTy, span)
				continue
			}
			if err := l.writeStorageFrom(fieldPtr, fieldTy, ix, sub, span); err != nil {
				return err
			}
		}
		return nil
	case types.KindB256:
		l.emit(&ir.Instruction{
			Op:        ir.OpStateStoreQuad,
			Span:      span,
			StateQuad: ir.StateQuadInstr{Ptr: ptr, Key: l.slotKeyValue(ix, path, span), NumSlots: 1},
		})
		return nil
	case types.KindString, types.KindUnion:
		size, err := l.sizeOf(ty, span)
		if err != nil {
			return err
		}
		buf, slots, err := l.slotBuffer(size, span)
		if err != nil {
			return err
		}
		dst := l.emit(&ir.Instruction{
			Op:      ir.OpBitCast,
			Type:    l.types.Pointer(ty),
			Span:    span,
			BitCast: ir.BitCastInstr{Val: buf},
		})
		l.store(dst, ptr, span)
		l.emit(&ir.Instruction{
			Op:        ir.OpStateStoreQuad,
			Span:      span,
			StateQuad: ir.StateQuadInstr{Ptr: buf, Key: l.slotKeyValue(ix, path, span), NumSlots: slots},
		})
		return nil
	default:
		return l.ice(diag.IceBadStorageType, span, "type %s cannot live in storage", l.types.String(ty))
	}
}

// slotBuffer allocates a slot-aligned scratch buffer as an array of b256,
// returning its address and slot count.
func (l *Lowerer) slotBuffer(sizeInBytes uint64, span source.Span) (*ir.Value, uint64, error) {
	slots := storage.SlotCount(sizeInBytes)
	bufTy := l.types.Array(l.types.Builtins().B256, uint32(slots)) //nolint:gosec // slot counts are tiny
	lv := l.newTemp("slots", bufTy)
	return l.addrOfLocal(lv, span), slots, nil
}

// structFieldPtr addresses one struct field by constant index.
func (l *Lowerer) structFieldPtr(base *ir.Value, structTy types.TypeID, fieldIdx int, span source.Span) (*ir.Value, types.TypeID, error) {
	_, fieldTy, err := l.types.FieldOffsetInWords(structTy, fieldIdx)
	if err != nil {
		return nil, types.NoTypeID, l.ice(diag.IceBadStorageType, span, "%v", err)
	}
	idx := ir.NewUintConstant(uint64(fieldIdx), l.types.Builtins().U64, span) //nolint:gosec // field index is non-negative
	ptr := l.emit(&ir.Instruction{
		Op:         ir.OpGetElemPtr,
		Type:       l.types.Pointer(fieldTy),
		Span:       span,
		GetElemPtr: ir.GetElemPtrInstr{Base: base, Indices: []*ir.Value{idx}},
	})
	return ptr, fieldTy, nil
}
