package arrowpq

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"

	"github.com/polarsignals/arrowpq/levels"
)

type coercionOp int8

const (
	coerceInvalid coercionOp = iota
	coerceMultiply
	coerceDivide
)

// timestampFactors[from][to] gives the conversion between two time units.
// A factor of 1 with coerceMultiply is the identity. Conversions that
// would need sub-nanosecond resolution are invalid.
var timestampFactors = [4][4]struct {
	op     coercionOp
	factor int64
}{
	arrow.Second: {
		arrow.Second:      {coerceMultiply, 1},
		arrow.Millisecond: {coerceMultiply, 1000},
		arrow.Microsecond: {coerceMultiply, 1000000},
		arrow.Nanosecond:  {coerceMultiply, 1000000000},
	},
	arrow.Millisecond: {
		arrow.Second:      {coerceDivide, 1000},
		arrow.Millisecond: {coerceMultiply, 1},
		arrow.Microsecond: {coerceMultiply, 1000},
		arrow.Nanosecond:  {coerceMultiply, 1000000},
	},
	arrow.Microsecond: {
		arrow.Second:      {coerceDivide, 1000000},
		arrow.Millisecond: {coerceDivide, 1000},
		arrow.Microsecond: {coerceMultiply, 1},
		arrow.Nanosecond:  {coerceMultiply, 1000},
	},
	arrow.Nanosecond: {
		arrow.Second:      {coerceDivide, 1000000000},
		arrow.Millisecond: {coerceDivide, 1000000},
		arrow.Microsecond: {coerceDivide, 1000},
		arrow.Nanosecond:  {coerceMultiply, 1},
	},
}

// writeTimestamps applies the unit policy for one timestamp leaf and hands
// the result to the int64 column writer. The policy, in order: an explicit
// coercion unit wins; format 1.0 cannot store nanoseconds, so they become
// microseconds with truncation disallowed; seconds always widen to
// milliseconds; anything else passes through unchanged.
func (w *arrowColumnWriter) writeTimestamps(arr *array.Timestamp, res *levels.Result, cw *file.Int64ColumnChunkWriter) error {
	sourceUnit := arr.DataType().(*arrow.TimestampType).Unit
	props := w.encodeProps

	if props.coerceTimestamps {
		if sourceUnit == props.coerceUnit {
			return w.writeInt64Values(timestampInt64s(arr), arr, res, cw)
		}
		return w.writeTimestampsCoerce(arr, res, cw, props.coerceUnit, props.truncatedTimestampsAllowed)
	}
	if props.version == parquet.V1_0 && sourceUnit == arrow.Nanosecond {
		return w.writeTimestampsCoerce(arr, res, cw, arrow.Microsecond, false)
	}
	if sourceUnit == arrow.Second {
		return w.writeTimestampsCoerce(arr, res, cw, arrow.Millisecond, true)
	}
	return w.writeInt64Values(timestampInt64s(arr), arr, res, cw)
}

// writeTimestampsCoerce rescales the values into targetUnit. Division that
// drops a remainder fails unless truncation is allowed; multiplication is
// not overflow-checked.
func (w *arrowColumnWriter) writeTimestampsCoerce(arr *array.Timestamp, res *levels.Result, cw *file.Int64ColumnChunkWriter, targetUnit arrow.TimeUnit, truncationAllowed bool) error {
	sourceUnit := arr.DataType().(*arrow.TimestampType).Unit
	conv := timestampFactors[sourceUnit][targetUnit]
	if conv.op == coerceInvalid {
		panic(fmt.Sprintf("no conversion from %s to %s", sourceUnit, targetUnit))
	}

	values := arr.TimestampValues()
	out := make([]int64, len(values))
	switch conv.op {
	case coerceMultiply:
		for i, v := range values {
			out[i] = int64(v) * conv.factor
		}
	case coerceDivide:
		for i, v := range values {
			if !truncationAllowed && !arr.IsNull(i) && int64(v)%conv.factor != 0 {
				return fmt.Errorf("%w: casting from %s to %s would lose data: %d",
					arrow.ErrInvalid, sourceUnit, targetUnit, int64(v))
			}
			out[i] = int64(v) / conv.factor
		}
	}
	return w.writeInt64Values(out, arr, res, cw)
}

const (
	julianUnixEpochDay   = 2440588
	nanosecondsPerDay    = 24 * 60 * 60 * 1000 * 1000 * 1000
	microsecondsPerDay   = 24 * 60 * 60 * 1000 * 1000
	millisecondsPerDay   = 24 * 60 * 60 * 1000
	secondsPerDay        = 24 * 60 * 60
	nanosPerMicrosecond  = 1000
	nanosPerMillisecond  = 1000000
	nanosPerSecond       = 1000000000
)

// impalaTimestamp converts a timestamp value into the Int96 layout Impala
// uses: nanoseconds within the day in the low two words, Julian day in the
// high word.
func impalaTimestamp(v int64, unit arrow.TimeUnit) parquet.Int96 {
	var day, nanos int64
	switch unit {
	case arrow.Second:
		day = v / secondsPerDay
		nanos = (v % secondsPerDay) * nanosPerSecond
	case arrow.Millisecond:
		day = v / millisecondsPerDay
		nanos = (v % millisecondsPerDay) * nanosPerMillisecond
	case arrow.Microsecond:
		day = v / microsecondsPerDay
		nanos = (v % microsecondsPerDay) * nanosPerMicrosecond
	case arrow.Nanosecond:
		day = v / nanosecondsPerDay
		nanos = v % nanosecondsPerDay
	}

	return parquet.NewInt96([3]uint32{
		uint32(nanos),
		uint32(uint64(nanos) >> 32),
		uint32(day + julianUnixEpochDay),
	})
}

func timestampInt64s(arr *array.Timestamp) []int64 {
	values := arr.TimestampValues()
	out := make([]int64, len(values))
	for i, v := range values {
		out[i] = int64(v)
	}
	return out
}
