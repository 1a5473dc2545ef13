package arrowpq

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet"
)

// leafTypeID descends a single-child nesting chain and returns the type ID
// of the leaf. Multi-child nested types are rejected since a column chunk
// maps to exactly one leaf.
func leafTypeID(dt arrow.DataType) (arrow.Type, error) {
	for {
		nested, ok := dt.(arrow.NestedType)
		if !ok {
			return dt.ID(), nil
		}
		children := nested.Fields()
		if len(children) != 1 {
			return arrow.NULL, fmt.Errorf("%w: fields with more than one child are not supported", arrow.ErrNotImplemented)
		}
		dt = children[0].Type
	}
}

// physicalType maps an Arrow leaf type to the Parquet physical type the
// materializers will produce for it. version matters for uint32, which
// 1.0 readers can only consume as int64.
func physicalType(dt arrow.DataType, props encodeProperties) (parquet.Type, error) {
	switch dt.ID() {
	case arrow.NULL:
		return parquet.Types.Int32, nil
	case arrow.BOOL:
		return parquet.Types.Boolean, nil
	case arrow.INT8, arrow.UINT8, arrow.INT16, arrow.UINT16, arrow.INT32,
		arrow.DATE32, arrow.TIME32, arrow.DATE64:
		return parquet.Types.Int32, nil
	case arrow.UINT32:
		if props.version == parquet.V1_0 {
			return parquet.Types.Int64, nil
		}
		return parquet.Types.Int32, nil
	case arrow.INT64, arrow.UINT64, arrow.TIME64:
		return parquet.Types.Int64, nil
	case arrow.TIMESTAMP:
		if props.int96Timestamps {
			return parquet.Types.Int96, nil
		}
		return parquet.Types.Int64, nil
	case arrow.FLOAT32:
		return parquet.Types.Float, nil
	case arrow.FLOAT64:
		return parquet.Types.Double, nil
	case arrow.STRING, arrow.BINARY:
		return parquet.Types.ByteArray, nil
	case arrow.FIXED_SIZE_BINARY, arrow.DECIMAL128:
		return parquet.Types.FixedLenByteArray, nil
	default:
		return parquet.Types.Int32, fmt.Errorf("%w: data type %s cannot be written to parquet", arrow.ErrNotImplemented, dt.Name())
	}
}
