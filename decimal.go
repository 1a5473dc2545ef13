package arrowpq

import (
	"encoding/binary"

	"github.com/apache/arrow-go/v18/arrow/decimal128"
)

// DecimalSize returns the minimum number of bytes needed to hold a decimal
// of the given precision. Precision must be in [1, 38].
func DecimalSize(precision int32) int32 {
	switch {
	case precision <= 2:
		return 1
	case precision <= 4:
		return 2
	case precision <= 6:
		return 3
	case precision <= 9:
		return 4
	case precision <= 11:
		return 5
	case precision <= 14:
		return 6
	case precision <= 16:
		return 7
	case precision <= 18:
		return 8
	case precision <= 21:
		return 9
	case precision <= 23:
		return 10
	case precision <= 26:
		return 11
	case precision <= 28:
		return 12
	case precision <= 31:
		return 13
	case precision <= 33:
		return 14
	case precision <= 35:
		return 15
	default:
		return 16
	}
}

// putDecimalBigEndian writes n as a 16-byte big-endian two's-complement
// integer into dst. Callers slice off the leading bytes to reach the
// width DecimalSize prescribes for their precision.
func putDecimalBigEndian(dst []byte, n decimal128.Num) {
	binary.BigEndian.PutUint64(dst[0:8], uint64(n.HighBits()))
	binary.BigEndian.PutUint64(dst[8:16], n.LowBits())
}
