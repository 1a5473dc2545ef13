// Package levels generates Dremel-style definition and repetition levels
// for a single Arrow column so that it can be handed to a Parquet column
// writer. Only flat arrays and lists (arbitrarily deep, single-child) are
// supported; anything else is rejected with arrow.ErrNotImplemented.
package levels

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/bitutil"
)

// Result is the output of Generate for one leaf column.
//
// Values is the unsliced leaf array; the slice
// [ValuesOffset, ValuesOffset+NumValues) of it is what the level buffers
// describe. DefLevels is nil for a non-nullable primitive column.
// RepLevels is nil for any primitive column, in which case all levels are
// implicitly zero and NumLevels equals the input array length.
type Result struct {
	Values       arrow.Array
	ValuesOffset int64
	NumValues    int64
	NumLevels    int64
	DefLevels    []int16
	RepLevels    []int16
}

type builder struct {
	defLevels []int16
	repLevels []int16

	// one entry per nesting layer, leaf included; offsets has no leaf
	// entry, and nullable is filled from the field rather than the arrays
	nullCounts   []int64
	validBitmaps [][]byte
	offsets      [][]int32
	arrayOffsets []int64
	nullable     []bool

	minOffsetIdx int64
	maxOffsetIdx int64
	values       arrow.Array
}

// Generate walks arr along its single-child path and produces the level
// buffers plus the leaf slice bounds. field must describe arr's type and
// nullability, including all nested layers.
func Generate(arr arrow.Array, field arrow.Field) (*Result, error) {
	b := &builder{
		minOffsetIdx: 0,
		maxOffsetIdx: int64(arr.Len()),
	}
	if err := b.visit(arr); err != nil {
		return nil, err
	}

	res := &Result{
		Values:       b.values,
		ValuesOffset: b.minOffsetIdx,
		NumValues:    b.maxOffsetIdx - b.minOffsetIdx,
	}

	// Walk the field path to collect nullability per layer.
	cur := field
	b.nullable = append(b.nullable, cur.Nullable)
	for {
		nested, ok := cur.Type.(arrow.NestedType)
		if !ok {
			break
		}
		children := nested.Fields()
		if len(children) != 1 {
			return nil, fmt.Errorf("%w: fields with more than one child are not supported", arrow.ErrNotImplemented)
		}
		cur = children[0]
		b.nullable = append(b.nullable, cur.Nullable)
	}

	if len(b.nullable) == 1 {
		// Primitive column: rep levels are implicit, def levels are the
		// validity bitmap widened to int16.
		if b.nullable[0] {
			def := make([]int16, arr.Len())
			switch {
			case arr.NullN() == 0:
				for i := range def {
					def[i] = 1
				}
			case arr.NullN() == arr.Len():
				// already all zero
			default:
				bitmap := arr.NullBitmapBytes()
				off := arr.Data().Offset()
				for i := range def {
					if bitutil.BitIsSet(bitmap, off+i) {
						def[i] = 1
					}
				}
			}
			res.DefLevels = def
		}
		res.NumLevels = int64(arr.Len())
		return res, nil
	}

	b.repLevels = append(b.repLevels, 0)
	if err := b.handleListEntries(0, 0, 0, int64(arr.Len())); err != nil {
		return nil, err
	}
	res.DefLevels = b.defLevels
	res.RepLevels = b.repLevels
	res.NumLevels = int64(len(b.repLevels))
	return res, nil
}

// visit descends the value path and records per-layer offsets, bitmaps and
// null counts. The running [minOffsetIdx, maxOffsetIdx) window is mapped
// through each list's offsets so that it delimits the leaf values actually
// referenced, which is not the whole child for sliced arrays.
func (b *builder) visit(arr arrow.Array) error {
	switch arr.DataType().ID() {
	case arrow.LIST:
		lst := arr.(*array.List)
		data := lst.Data()
		b.arrayOffsets = append(b.arrayOffsets, int64(data.Offset()))
		b.validBitmaps = append(b.validBitmaps, lst.NullBitmapBytes())
		b.nullCounts = append(b.nullCounts, int64(lst.NullN()))

		off := lst.Offsets()[data.Offset():]
		b.offsets = append(b.offsets, off)

		b.minOffsetIdx = int64(off[b.minOffsetIdx])
		b.maxOffsetIdx = int64(off[b.maxOffsetIdx])

		return b.visit(lst.ListValues())
	case arrow.MAP, arrow.FIXED_SIZE_LIST, arrow.LARGE_LIST, arrow.STRUCT,
		arrow.DENSE_UNION, arrow.SPARSE_UNION, arrow.DICTIONARY, arrow.EXTENSION:
		return fmt.Errorf("%w: level generation for %s not supported yet", arrow.ErrNotImplemented, arr.DataType().Name())
	default:
		b.arrayOffsets = append(b.arrayOffsets, int64(arr.Data().Offset()))
		b.validBitmaps = append(b.validBitmaps, arr.NullBitmapBytes())
		b.nullCounts = append(b.nullCounts, int64(arr.NullN()))
		b.values = arr
		return nil
	}
}

func (b *builder) handleListEntries(defLevel, repLevel int16, offset, length int64) error {
	for i := int64(0); i < length; i++ {
		if i > 0 {
			b.repLevels = append(b.repLevels, repLevel)
		}
		if err := b.handleList(defLevel, repLevel, offset+i); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) handleList(defLevel, repLevel int16, index int64) error {
	if b.nullable[repLevel] {
		if b.nullCounts[repLevel] == 0 ||
			bitutil.BitIsSet(b.validBitmaps[repLevel], int(index+b.arrayOffsets[repLevel])) {
			return b.handleNonNullList(defLevel+1, repLevel, index)
		}
		// null list slot: a single def level, no rep advance
		b.defLevels = append(b.defLevels, defLevel)
		return nil
	}
	return b.handleNonNullList(defLevel, repLevel, index)
}

func (b *builder) handleNonNullList(defLevel, repLevel int16, index int64) error {
	off := b.offsets[repLevel]
	innerOffset := int64(off[index])
	innerLength := int64(off[index+1]) - innerOffset
	recursionLevel := int64(repLevel) + 1
	if innerLength == 0 {
		// present but empty
		b.defLevels = append(b.defLevels, defLevel)
		return nil
	}
	if recursionLevel < int64(len(b.offsets)) {
		return b.handleListEntries(defLevel+1, repLevel+1, innerOffset, innerLength)
	}

	// Reached the leaf layer.
	nullableLevel := b.nullable[recursionLevel]
	levelNullCount := b.nullCounts[recursionLevel]
	levelValidBitmap := b.validBitmaps[recursionLevel]

	for i := int64(1); i < innerLength; i++ {
		b.repLevels = append(b.repLevels, repLevel+1)
	}

	if levelNullCount != 0 && levelValidBitmap == nil {
		// leaf is a null array, every slot is null
		for i := int64(0); i < innerLength; i++ {
			b.defLevels = append(b.defLevels, defLevel+1)
		}
		return nil
	}

	for i := int64(0); i < innerLength; i++ {
		if nullableLevel &&
			(levelNullCount == 0 ||
				bitutil.BitIsSet(levelValidBitmap, int(innerOffset+i+b.arrayOffsets[recursionLevel]))) {
			b.defLevels = append(b.defLevels, defLevel+2)
		} else {
			// nullable leaf with a null slot, or non-nullable leaf
			b.defLevels = append(b.defLevels, defLevel+1)
		}
	}
	return nil
}
