package arrowpq

import (
	"fmt"
	"unsafe"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"

	"github.com/polarsignals/arrowpq/levels"
)

// arrowColumnWriter writes one column chunk worth of Arrow data into a
// single parquet column writer. It holds the schema field describing the
// column so that level generation can see the full nullability chain.
type arrowColumnWriter struct {
	encodeProps encodeProperties
	field       arrow.Field
	writer      file.ColumnChunkWriter
}

// Write feeds rows [offset, offset+size) of data into the column writer,
// slicing across chunk boundaries as needed.
func (w *arrowColumnWriter) Write(data *arrow.Chunked, offset, size int64) error {
	absolutePosition := int64(0)
	chunkIndex := 0
	chunkOffset := int64(0)
	for chunkIndex < len(data.Chunks()) && absolutePosition < offset {
		chunkLength := int64(data.Chunk(chunkIndex).Len())
		if absolutePosition+chunkLength > offset {
			chunkOffset = offset - absolutePosition
			absolutePosition = offset
			break
		}
		absolutePosition += chunkLength
		chunkIndex++
	}
	if absolutePosition < offset {
		return fmt.Errorf("%w: cannot write data at offset past end of chunked array", arrow.ErrInvalid)
	}

	valuesWritten := int64(0)
	for valuesWritten < size {
		if chunkIndex >= len(data.Chunks()) {
			return fmt.Errorf("%w: cannot write data at offset past end of chunked array", arrow.ErrInvalid)
		}
		chunk := data.Chunk(chunkIndex)
		available := int64(chunk.Len()) - chunkOffset
		writeSize := size - valuesWritten
		if writeSize > available {
			writeSize = available
		}

		arr := chunk
		if chunkOffset != 0 || writeSize != int64(chunk.Len()) {
			arr = array.NewSlice(chunk, chunkOffset, chunkOffset+writeSize)
		}
		err := w.write(arr)
		if arr != chunk {
			arr.Release()
		}
		if err != nil {
			return err
		}

		if writeSize == available {
			chunkIndex++
			chunkOffset = 0
		} else {
			chunkOffset += writeSize
		}
		valuesWritten += writeSize
	}
	return nil
}

func (w *arrowColumnWriter) write(arr arrow.Array) error {
	res, err := levels.Generate(arr, w.field)
	if err != nil {
		return err
	}

	leaf := res.Values
	if res.ValuesOffset != 0 || res.NumValues != int64(leaf.Len()) {
		leaf = array.NewSlice(leaf, res.ValuesOffset, res.ValuesOffset+res.NumValues)
		defer leaf.Release()
	}

	physical, err := physicalType(leaf.DataType(), w.encodeProps)
	if err != nil {
		return err
	}
	if got := w.writer.Type(); got != physical {
		return fmt.Errorf("%w: column writer type %s cannot store leaf type %s",
			arrow.ErrInvalid, got, leaf.DataType().Name())
	}

	switch leaf.DataType().ID() {
	case arrow.NULL:
		cw := w.writer.(*file.Int32ColumnChunkWriter)
		return recoverWrite(func() error {
			_, err := cw.WriteBatch(nil, res.DefLevels, res.RepLevels)
			return err
		})
	case arrow.BOOL:
		return w.writeBools(leaf.(*array.Boolean), res, w.writer.(*file.BooleanColumnChunkWriter))
	case arrow.INT8:
		a := leaf.(*array.Int8)
		out := make([]int32, a.Len())
		for i, v := range a.Int8Values() {
			out[i] = int32(v)
		}
		return w.writeInt32Values(out, leaf, res, w.writer.(*file.Int32ColumnChunkWriter))
	case arrow.UINT8:
		a := leaf.(*array.Uint8)
		out := make([]int32, a.Len())
		for i, v := range a.Uint8Values() {
			out[i] = int32(v)
		}
		return w.writeInt32Values(out, leaf, res, w.writer.(*file.Int32ColumnChunkWriter))
	case arrow.INT16:
		a := leaf.(*array.Int16)
		out := make([]int32, a.Len())
		for i, v := range a.Int16Values() {
			out[i] = int32(v)
		}
		return w.writeInt32Values(out, leaf, res, w.writer.(*file.Int32ColumnChunkWriter))
	case arrow.UINT16:
		a := leaf.(*array.Uint16)
		out := make([]int32, a.Len())
		for i, v := range a.Uint16Values() {
			out[i] = int32(v)
		}
		return w.writeInt32Values(out, leaf, res, w.writer.(*file.Int32ColumnChunkWriter))
	case arrow.INT32:
		a := leaf.(*array.Int32)
		return w.writeInt32Values(a.Int32Values(), leaf, res, w.writer.(*file.Int32ColumnChunkWriter))
	case arrow.UINT32:
		a := leaf.(*array.Uint32)
		if w.encodeProps.version == parquet.V1_0 {
			// 1.0 readers cannot interpret the UINT_32 logical type, so the
			// values widen to int64.
			out := make([]int64, a.Len())
			for i, v := range a.Uint32Values() {
				out[i] = int64(v)
			}
			return w.writeInt64Values(out, leaf, res, w.writer.(*file.Int64ColumnChunkWriter))
		}
		out := make([]int32, a.Len())
		for i, v := range a.Uint32Values() {
			out[i] = int32(v)
		}
		return w.writeInt32Values(out, leaf, res, w.writer.(*file.Int32ColumnChunkWriter))
	case arrow.DATE32:
		a := leaf.(*array.Date32)
		out := make([]int32, a.Len())
		for i, v := range a.Date32Values() {
			out[i] = int32(v)
		}
		return w.writeInt32Values(out, leaf, res, w.writer.(*file.Int32ColumnChunkWriter))
	case arrow.DATE64:
		// Parquet has no 64-bit date, only days since the epoch.
		a := leaf.(*array.Date64)
		out := make([]int32, a.Len())
		for i, v := range a.Date64Values() {
			out[i] = int32(int64(v) / millisecondsPerDay)
		}
		return w.writeInt32Values(out, leaf, res, w.writer.(*file.Int32ColumnChunkWriter))
	case arrow.TIME32:
		a := leaf.(*array.Time32)
		unit := a.DataType().(*arrow.Time32Type).Unit
		out := make([]int32, a.Len())
		if unit == arrow.Second {
			// Parquet time types start at milliseconds.
			for i, v := range a.Time32Values() {
				out[i] = int32(v) * 1000
			}
		} else {
			for i, v := range a.Time32Values() {
				out[i] = int32(v)
			}
		}
		return w.writeInt32Values(out, leaf, res, w.writer.(*file.Int32ColumnChunkWriter))
	case arrow.INT64:
		a := leaf.(*array.Int64)
		return w.writeInt64Values(a.Int64Values(), leaf, res, w.writer.(*file.Int64ColumnChunkWriter))
	case arrow.UINT64:
		a := leaf.(*array.Uint64)
		out := make([]int64, a.Len())
		for i, v := range a.Uint64Values() {
			out[i] = int64(v)
		}
		return w.writeInt64Values(out, leaf, res, w.writer.(*file.Int64ColumnChunkWriter))
	case arrow.TIME64:
		a := leaf.(*array.Time64)
		out := make([]int64, a.Len())
		for i, v := range a.Time64Values() {
			out[i] = int64(v)
		}
		return w.writeInt64Values(out, leaf, res, w.writer.(*file.Int64ColumnChunkWriter))
	case arrow.TIMESTAMP:
		a := leaf.(*array.Timestamp)
		if w.encodeProps.int96Timestamps {
			return w.writeInt96Timestamps(a, res, w.writer.(*file.Int96ColumnChunkWriter))
		}
		return w.writeTimestamps(a, res, w.writer.(*file.Int64ColumnChunkWriter))
	case arrow.FLOAT32:
		a := leaf.(*array.Float32)
		return w.writeFloat32Values(a.Float32Values(), leaf, res, w.writer.(*file.Float32ColumnChunkWriter))
	case arrow.FLOAT64:
		a := leaf.(*array.Float64)
		return w.writeFloat64Values(a.Float64Values(), leaf, res, w.writer.(*file.Float64ColumnChunkWriter))
	case arrow.STRING, arrow.BINARY:
		return w.writeByteArrays(leaf, res, w.writer.(*file.ByteArrayColumnChunkWriter))
	case arrow.FIXED_SIZE_BINARY:
		return w.writeFixedSizeBinaries(leaf.(*array.FixedSizeBinary), res, w.writer.(*file.FixedLenByteArrayColumnChunkWriter))
	case arrow.DECIMAL128:
		return w.writeDecimals(leaf.(*array.Decimal128), res, w.writer.(*file.FixedLenByteArrayColumnChunkWriter))
	default:
		return fmt.Errorf("%w: data type %s cannot be written to parquet", arrow.ErrNotImplemented, leaf.DataType().Name())
	}
}

func (w *arrowColumnWriter) leafRequired() bool {
	return w.writer.Descr().SchemaNode().RepetitionType() == parquet.Repetitions.Required
}

// writeInt32Values writes a positionally aligned buffer densely when the
// leaf is required or the array has no nulls, and spaced otherwise.
func (w *arrowColumnWriter) writeInt32Values(values []int32, arr arrow.Array, res *levels.Result, cw *file.Int32ColumnChunkWriter) error {
	if w.leafRequired() || arr.NullN() == 0 {
		return recoverWrite(func() error {
			_, err := cw.WriteBatch(values, res.DefLevels, res.RepLevels)
			return err
		})
	}
	return recoverWrite(func() error {
		cw.WriteBatchSpaced(values, res.DefLevels, res.RepLevels, arr.NullBitmapBytes(), int64(arr.Data().Offset()))
		return nil
	})
}

func (w *arrowColumnWriter) writeInt64Values(values []int64, arr arrow.Array, res *levels.Result, cw *file.Int64ColumnChunkWriter) error {
	if w.leafRequired() || arr.NullN() == 0 {
		return recoverWrite(func() error {
			_, err := cw.WriteBatch(values, res.DefLevels, res.RepLevels)
			return err
		})
	}
	return recoverWrite(func() error {
		cw.WriteBatchSpaced(values, res.DefLevels, res.RepLevels, arr.NullBitmapBytes(), int64(arr.Data().Offset()))
		return nil
	})
}

func (w *arrowColumnWriter) writeFloat32Values(values []float32, arr arrow.Array, res *levels.Result, cw *file.Float32ColumnChunkWriter) error {
	if w.leafRequired() || arr.NullN() == 0 {
		return recoverWrite(func() error {
			_, err := cw.WriteBatch(values, res.DefLevels, res.RepLevels)
			return err
		})
	}
	return recoverWrite(func() error {
		cw.WriteBatchSpaced(values, res.DefLevels, res.RepLevels, arr.NullBitmapBytes(), int64(arr.Data().Offset()))
		return nil
	})
}

func (w *arrowColumnWriter) writeFloat64Values(values []float64, arr arrow.Array, res *levels.Result, cw *file.Float64ColumnChunkWriter) error {
	if w.leafRequired() || arr.NullN() == 0 {
		return recoverWrite(func() error {
			_, err := cw.WriteBatch(values, res.DefLevels, res.RepLevels)
			return err
		})
	}
	return recoverWrite(func() error {
		cw.WriteBatchSpaced(values, res.DefLevels, res.RepLevels, arr.NullBitmapBytes(), int64(arr.Data().Offset()))
		return nil
	})
}

func (w *arrowColumnWriter) writeInt96Timestamps(arr *array.Timestamp, res *levels.Result, cw *file.Int96ColumnChunkWriter) error {
	unit := arr.DataType().(*arrow.TimestampType).Unit
	src := arr.TimestampValues()
	values := make([]parquet.Int96, len(src))
	for i, v := range src {
		values[i] = impalaTimestamp(int64(v), unit)
	}
	if w.leafRequired() || arr.NullN() == 0 {
		return recoverWrite(func() error {
			_, err := cw.WriteBatch(values, res.DefLevels, res.RepLevels)
			return err
		})
	}
	return recoverWrite(func() error {
		cw.WriteBatchSpaced(values, res.DefLevels, res.RepLevels, arr.NullBitmapBytes(), int64(arr.Data().Offset()))
		return nil
	})
}

// writeBools densely packs the present values; the column writer consumes
// null slots from the definition levels.
func (w *arrowColumnWriter) writeBools(arr *array.Boolean, res *levels.Result, cw *file.BooleanColumnChunkWriter) error {
	values := make([]bool, 0, arr.Len())
	for i := 0; i < arr.Len(); i++ {
		if arr.IsValid(i) {
			values = append(values, arr.Value(i))
		}
	}
	return recoverWrite(func() error {
		_, err := cw.WriteBatch(values, res.DefLevels, res.RepLevels)
		return err
	})
}

func (w *arrowColumnWriter) writeByteArrays(arr arrow.Array, res *levels.Result, cw *file.ByteArrayColumnChunkWriter) error {
	values := make([]parquet.ByteArray, 0, arr.Len())
	switch a := arr.(type) {
	case *array.String:
		for i := 0; i < a.Len(); i++ {
			if a.IsValid(i) {
				values = append(values, unsafeStringBytes(a.Value(i)))
			}
		}
	case *array.Binary:
		for i := 0; i < a.Len(); i++ {
			if a.IsValid(i) {
				values = append(values, parquet.ByteArray(a.Value(i)))
			}
		}
	default:
		return fmt.Errorf("%w: data type %s cannot be written to parquet", arrow.ErrNotImplemented, arr.DataType().Name())
	}
	return recoverWrite(func() error {
		_, err := cw.WriteBatch(values, res.DefLevels, res.RepLevels)
		return err
	})
}

func (w *arrowColumnWriter) writeFixedSizeBinaries(arr *array.FixedSizeBinary, res *levels.Result, cw *file.FixedLenByteArrayColumnChunkWriter) error {
	values := make([]parquet.FixedLenByteArray, 0, arr.Len())
	for i := 0; i < arr.Len(); i++ {
		if arr.IsValid(i) {
			values = append(values, parquet.FixedLenByteArray(arr.Value(i)))
		}
	}
	return recoverWrite(func() error {
		_, err := cw.WriteBatch(values, res.DefLevels, res.RepLevels)
		return err
	})
}

// writeDecimals re-encodes each present decimal as big-endian
// two's-complement, truncated to the byte width its precision needs.
func (w *arrowColumnWriter) writeDecimals(arr *array.Decimal128, res *levels.Result, cw *file.FixedLenByteArrayColumnChunkWriter) error {
	typ := arr.DataType().(*arrow.Decimal128Type)
	width := int(DecimalSize(typ.Precision))
	offset := 16 - width

	scratch := make([]byte, 16*arr.Len())
	values := make([]parquet.FixedLenByteArray, 0, arr.Len())
	pos := 0
	for i := 0; i < arr.Len(); i++ {
		if !arr.IsValid(i) {
			continue
		}
		buf := scratch[pos*16 : pos*16+16]
		putDecimalBigEndian(buf, arr.Value(i))
		values = append(values, parquet.FixedLenByteArray(buf[offset:]))
		pos++
	}
	return recoverWrite(func() error {
		_, err := cw.WriteBatch(values, res.DefLevels, res.RepLevels)
		return err
	})
}

// recoverWrite converts panics raised inside the underlying column writer
// into errors so a bad batch fails the call instead of the process.
func recoverWrite(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parquet column writer: %v", r)
		}
	}()
	return fn()
}

func unsafeStringBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
