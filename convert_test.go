package arrowpq

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/stretchr/testify/require"
)

func TestPhysicalType(t *testing.T) {
	for _, tc := range []struct {
		name  string
		dt    arrow.DataType
		props encodeProperties
		want  parquet.Type
	}{
		{name: "null", dt: arrow.Null, want: parquet.Types.Int32},
		{name: "bool", dt: arrow.FixedWidthTypes.Boolean, want: parquet.Types.Boolean},
		{name: "int8", dt: arrow.PrimitiveTypes.Int8, want: parquet.Types.Int32},
		{name: "uint16", dt: arrow.PrimitiveTypes.Uint16, want: parquet.Types.Int32},
		{name: "int32", dt: arrow.PrimitiveTypes.Int32, want: parquet.Types.Int32},
		{
			name:  "uint32",
			dt:    arrow.PrimitiveTypes.Uint32,
			props: encodeProperties{version: parquet.V2_6},
			want:  parquet.Types.Int32,
		},
		{
			name:  "uint32 under v1.0",
			dt:    arrow.PrimitiveTypes.Uint32,
			props: encodeProperties{version: parquet.V1_0},
			want:  parquet.Types.Int64,
		},
		{name: "int64", dt: arrow.PrimitiveTypes.Int64, want: parquet.Types.Int64},
		{name: "date32", dt: arrow.FixedWidthTypes.Date32, want: parquet.Types.Int32},
		{name: "date64", dt: arrow.FixedWidthTypes.Date64, want: parquet.Types.Int32},
		{name: "time32s", dt: arrow.FixedWidthTypes.Time32s, want: parquet.Types.Int32},
		{name: "time64us", dt: arrow.FixedWidthTypes.Time64us, want: parquet.Types.Int64},
		{name: "timestamp", dt: arrow.FixedWidthTypes.Timestamp_ns, want: parquet.Types.Int64},
		{
			name:  "timestamp as int96",
			dt:    arrow.FixedWidthTypes.Timestamp_ns,
			props: encodeProperties{int96Timestamps: true},
			want:  parquet.Types.Int96,
		},
		{name: "float32", dt: arrow.PrimitiveTypes.Float32, want: parquet.Types.Float},
		{name: "float64", dt: arrow.PrimitiveTypes.Float64, want: parquet.Types.Double},
		{name: "string", dt: arrow.BinaryTypes.String, want: parquet.Types.ByteArray},
		{name: "binary", dt: arrow.BinaryTypes.Binary, want: parquet.Types.ByteArray},
		{name: "fixed size binary", dt: &arrow.FixedSizeBinaryType{ByteWidth: 4}, want: parquet.Types.FixedLenByteArray},
		{name: "decimal128", dt: &arrow.Decimal128Type{Precision: 9, Scale: 2}, want: parquet.Types.FixedLenByteArray},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := physicalType(tc.dt, tc.props)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestPhysicalTypeUnsupported(t *testing.T) {
	_, err := physicalType(arrow.FixedWidthTypes.Duration_ms, encodeProperties{})
	require.ErrorIs(t, err, arrow.ErrNotImplemented)
}

func TestLeafTypeID(t *testing.T) {
	id, err := leafTypeID(arrow.PrimitiveTypes.Int64)
	require.NoError(t, err)
	require.Equal(t, arrow.INT64, id)

	id, err = leafTypeID(arrow.ListOf(arrow.ListOf(arrow.BinaryTypes.String)))
	require.NoError(t, err)
	require.Equal(t, arrow.STRING, id)

	_, err = leafTypeID(arrow.StructOf(
		arrow.Field{Name: "a", Type: arrow.PrimitiveTypes.Int32},
		arrow.Field{Name: "b", Type: arrow.PrimitiveTypes.Int32},
	))
	require.ErrorIs(t, err, arrow.ErrNotImplemented)
}
