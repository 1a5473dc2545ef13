package arrowpq

import (
	"bytes"
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/stretchr/testify/require"
)

// Writing a window of a multi-chunk column must slice across chunk
// boundaries.
func TestWriteColumnChunkAcrossChunks(t *testing.T) {
	mem := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "v", Type: arrow.PrimitiveTypes.Int64},
	}, nil)

	var buf bytes.Buffer
	w, err := NewFileWriter(schema, &buf)
	require.NoError(t, err)

	b := array.NewInt64Builder(mem)
	b.AppendValues([]int64{1, 2, 3}, nil)
	first := b.NewArray()
	defer first.Release()
	b.AppendValues([]int64{4, 5, 6}, nil)
	second := b.NewArray()
	defer second.Release()

	chunked := arrow.NewChunked(arrow.PrimitiveTypes.Int64, []arrow.Array{first, second})
	defer chunked.Release()

	require.NoError(t, w.NewRowGroup())
	require.NoError(t, w.WriteColumnChunk(context.Background(), chunked, 1, 4))
	require.NoError(t, w.Close())

	rdr, got := readBack(t, &buf)
	defer rdr.Close()
	defer got.Release()

	require.Equal(t, int64(4), got.NumRows())
	require.Equal(t, []int64{2, 3, 4, 5}, columnChunk(t, got, 0).(*array.Int64).Int64Values())
}

func TestSmallIntsWiden(t *testing.T) {
	mem := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "i8", Type: arrow.PrimitiveTypes.Int8, Nullable: true},
		{Name: "u16", Type: arrow.PrimitiveTypes.Uint16, Nullable: true},
	}, nil)

	i8b := array.NewInt8Builder(mem)
	i8b.AppendValues([]int8{-1, 0, 127}, nil)
	u16b := array.NewUint16Builder(mem)
	u16b.AppendValues([]uint16{0, 1, 65535}, nil)

	rec := array.NewRecord(schema, []arrow.Array{i8b.NewArray(), u16b.NewArray()}, 3)
	tbl := array.NewTableFromRecords(schema, []arrow.Record{rec})
	defer tbl.Release()

	var buf bytes.Buffer
	require.NoError(t, WriteTable(context.Background(), tbl, &buf, 1024))

	rdr, got := readBack(t, &buf)
	defer rdr.Close()
	defer got.Release()

	require.Equal(t, parquet.Types.Int32, rdr.MetaData().Schema.Column(0).PhysicalType())
	require.Equal(t, parquet.Types.Int32, rdr.MetaData().Schema.Column(1).PhysicalType())

	i8 := columnChunk(t, got, 0).(*array.Int8)
	require.Equal(t, []int8{-1, 0, 127}, i8.Int8Values())
	u16 := columnChunk(t, got, 1).(*array.Uint16)
	require.Equal(t, []uint16{0, 1, 65535}, u16.Uint16Values())
}

// Format 1.0 readers cannot consume the UINT_32 annotation, so the column
// is stored as int64.
func TestUint32WidensUnderV1(t *testing.T) {
	mem := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "v", Type: arrow.PrimitiveTypes.Uint32, Nullable: true},
	}, nil)

	b := array.NewUint32Builder(mem)
	b.AppendValues([]uint32{0, 7, 4294967295}, nil)
	rec := array.NewRecord(schema, []arrow.Array{b.NewArray()}, 3)
	tbl := array.NewTableFromRecords(schema, []arrow.Record{rec})
	defer tbl.Release()

	var buf bytes.Buffer
	require.NoError(t, WriteTable(context.Background(), tbl, &buf, 1024,
		WithWriterProperties(parquet.NewWriterProperties(parquet.WithVersion(parquet.V1_0)))))

	rdr, err := file.NewParquetReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer rdr.Close()
	require.Equal(t, parquet.Types.Int64, rdr.MetaData().Schema.Column(0).PhysicalType())
	require.Equal(t, int64(3), rdr.NumRows())
}

func TestDecimalRoundTrip(t *testing.T) {
	mem := memory.NewGoAllocator()
	dt := &arrow.Decimal128Type{Precision: 9, Scale: 2}
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "v", Type: dt, Nullable: true},
	}, nil)

	b := array.NewDecimal128Builder(mem, dt)
	b.Append(decimal128.FromI64(123456789))
	b.AppendNull()
	b.Append(decimal128.FromI64(-42))
	rec := array.NewRecord(schema, []arrow.Array{b.NewArray()}, 3)
	tbl := array.NewTableFromRecords(schema, []arrow.Record{rec})
	defer tbl.Release()

	var buf bytes.Buffer
	require.NoError(t, WriteTable(context.Background(), tbl, &buf, 1024))

	rdr, got := readBack(t, &buf)
	defer rdr.Close()
	defer got.Release()

	dec := columnChunk(t, got, 0).(*array.Decimal128)
	require.Equal(t, decimal128.FromI64(123456789), dec.Value(0))
	require.True(t, dec.IsNull(1))
	require.Equal(t, decimal128.FromI64(-42), dec.Value(2))
}

// date64 stores days, not milliseconds.
func TestDate64StoresDays(t *testing.T) {
	mem := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "d", Type: arrow.FixedWidthTypes.Date64, Nullable: true},
	}, nil)

	b := array.NewDate64Builder(mem)
	b.AppendValues([]arrow.Date64{0, 2 * millisecondsPerDay, 3 * millisecondsPerDay}, nil)
	rec := array.NewRecord(schema, []arrow.Array{b.NewArray()}, 3)
	tbl := array.NewTableFromRecords(schema, []arrow.Record{rec})
	defer tbl.Release()

	var buf bytes.Buffer
	require.NoError(t, WriteTable(context.Background(), tbl, &buf, 1024))

	rdr, got := readBack(t, &buf)
	defer rdr.Close()
	defer got.Release()

	require.Equal(t, parquet.Types.Int32, rdr.MetaData().Schema.Column(0).PhysicalType())
	d := columnChunk(t, got, 0).(*array.Date32)
	require.Equal(t, []arrow.Date32{0, 2, 3}, d.Date32Values())
}
