package arrowpq

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a FileWriter.
type Option func(*FileWriter) error

// WithAllocator sets the memory allocator used by the default parquet
// writer properties (when WithWriterProperties is not given) and by the
// dictionary cast. It must be safe for concurrent use if shared between
// writers.
func WithAllocator(mem memory.Allocator) Option {
	return func(w *FileWriter) error {
		w.mem = mem
		return nil
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger log.Logger) Option {
	return func(w *FileWriter) error {
		w.logger = logger
		return nil
	}
}

// WithTracer sets the tracer used to create spans around table and
// row-group writes.
func WithTracer(tracer trace.Tracer) Option {
	return func(w *FileWriter) error {
		w.tracer = tracer
		return nil
	}
}

// WithRegisterer registers the writer's metrics with the given registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(w *FileWriter) error {
		w.reg = reg
		return nil
	}
}

// WithWriterProperties sets the properties of the underlying parquet
// writer (format version, compression, row-group length bounds, ...).
func WithWriterProperties(props *parquet.WriterProperties) Option {
	return func(w *FileWriter) error {
		w.props = props
		return nil
	}
}

// WithDeprecatedInt96Timestamps writes all timestamp columns as
// Impala-compatible Int96 values instead of int64.
func WithDeprecatedInt96Timestamps() Option {
	return func(w *FileWriter) error {
		w.encodeProps.int96Timestamps = true
		return nil
	}
}

// WithCoerceTimestamps coerces all timestamp columns to the given unit
// before writing.
func WithCoerceTimestamps(unit arrow.TimeUnit) Option {
	return func(w *FileWriter) error {
		w.encodeProps.coerceTimestamps = true
		w.encodeProps.coerceUnit = unit
		return nil
	}
}

// WithTruncatedTimestamps allows timestamp coercions that lose
// sub-target-unit precision instead of failing the write.
func WithTruncatedTimestamps() Option {
	return func(w *FileWriter) error {
		w.encodeProps.truncatedTimestampsAllowed = true
		return nil
	}
}

// encodeProperties are the arrow-side writer settings consulted by the
// per-type materializers.
type encodeProperties struct {
	int96Timestamps            bool
	coerceTimestamps           bool
	coerceUnit                 arrow.TimeUnit
	truncatedTimestampsAllowed bool
	version                    parquet.Version
}
