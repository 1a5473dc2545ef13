// Package arrowpq writes Arrow tables into Parquet files. It slices table
// columns into row-group sized column chunks, generates Dremel levels for
// nested data, materializes Arrow values into the Parquet physical types
// and drives the underlying columnar file writer.
package arrowpq

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/compute"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// FileWriter writes one Parquet file from Arrow data. It is not safe for
// concurrent use; row groups and column chunks are written serially, in
// schema order.
type FileWriter struct {
	mem    memory.Allocator
	logger log.Logger
	tracer trace.Tracer
	reg    prometheus.Registerer
	props  *parquet.WriterProperties

	encodeProps encodeProperties
	metrics     *writerMetrics

	schema *arrow.Schema
	writer *file.Writer

	rgw          file.SerialRowGroupWriter
	colIdx       int
	rowGroupOpen time.Time
	closed       bool
}

// NewFileWriter opens a Parquet file writer on sink for tables with the
// given schema.
func NewFileWriter(sc *arrow.Schema, sink io.Writer, opts ...Option) (*FileWriter, error) {
	w := &FileWriter{
		mem:    memory.DefaultAllocator,
		logger: log.NewNopLogger(),
		tracer: noop.NewTracerProvider().Tracer("arrowpq"),
		schema: sc,
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	if w.props == nil {
		w.props = parquet.NewWriterProperties(parquet.WithAllocator(w.mem))
	}
	w.encodeProps.version = w.props.Version()
	w.metrics = newWriterMetrics(w.reg)

	psc, err := pqarrow.ToParquet(sc, w.props, w.arrowWriterProperties())
	if err != nil {
		return nil, fmt.Errorf("convert arrow schema to parquet: %w", err)
	}
	w.writer = file.NewParquetWriter(sink, psc.Root(), file.WithWriterProps(w.props))
	return w, nil
}

func (w *FileWriter) arrowWriterProperties() pqarrow.ArrowWriterProperties {
	opts := []pqarrow.WriterOption{
		pqarrow.WithDeprecatedInt96Timestamps(w.encodeProps.int96Timestamps),
		pqarrow.WithTruncatedTimestamps(w.encodeProps.truncatedTimestampsAllowed),
	}
	if w.encodeProps.coerceTimestamps {
		opts = append(opts, pqarrow.WithCoerceTimestamps(w.encodeProps.coerceUnit))
	}
	return pqarrow.NewArrowWriterProperties(opts...)
}

// NewRowGroup closes the current row group, if any, and appends a new one.
func (w *FileWriter) NewRowGroup() error {
	if err := w.closeRowGroup(); err != nil {
		return err
	}
	w.rgw = w.writer.AppendRowGroup()
	w.colIdx = 0
	w.rowGroupOpen = time.Now()
	w.metrics.rowGroupsOpened.Inc()
	level.Debug(w.logger).Log("msg", "opened row group")
	return nil
}

func (w *FileWriter) closeRowGroup() error {
	if w.rgw == nil {
		return nil
	}
	err := recoverWrite(w.rgw.Close)
	w.rgw = nil
	if err != nil {
		return fmt.Errorf("close row group: %w", err)
	}
	w.metrics.rowGroupDuration.Observe(time.Since(w.rowGroupOpen).Seconds())
	return nil
}

// WriteColumnChunk writes rows [offset, offset+size) of data as the next
// column chunk of the current row group. Columns must be written in schema
// order; the N-th call after NewRowGroup writes schema field N.
func (w *FileWriter) WriteColumnChunk(ctx context.Context, data *arrow.Chunked, offset, size int64) error {
	if w.closed {
		return fmt.Errorf("%w: writer is closed", arrow.ErrInvalid)
	}
	if w.rgw == nil {
		if err := w.NewRowGroup(); err != nil {
			return err
		}
	}
	if w.colIdx >= w.schema.NumFields() {
		return fmt.Errorf("%w: more column chunks than schema fields", arrow.ErrInvalid)
	}

	if unwrapped, err := w.unwrapDictionary(ctx, data); err != nil {
		return err
	} else if unwrapped != nil {
		defer unwrapped.Release()
		data = unwrapped
	}

	cw, err := w.rgw.NextColumn()
	if err != nil {
		return fmt.Errorf("next column: %w", err)
	}
	field := w.schema.Field(w.colIdx)
	w.colIdx++

	acw := &arrowColumnWriter{
		encodeProps: w.encodeProps,
		field:       field,
		writer:      cw,
	}
	if err := acw.Write(data, offset, size); err != nil {
		return err
	}
	if err := recoverWrite(cw.Close); err != nil {
		return fmt.Errorf("close column chunk: %w", err)
	}
	w.metrics.columnChunksWritten.Inc()
	return nil
}

// unwrapDictionary casts a dictionary-encoded column to its value type so
// the materializers only ever see plain arrays. A dictionary of nulls has
// no cast kernel and becomes a null array directly. Returns nil when data
// is not dictionary encoded.
func (w *FileWriter) unwrapDictionary(ctx context.Context, data *arrow.Chunked) (*arrow.Chunked, error) {
	dt, ok := data.DataType().(*arrow.DictionaryType)
	if !ok {
		return nil, nil
	}
	ctx = compute.WithAllocator(ctx, w.mem)

	chunks := make([]arrow.Array, 0, len(data.Chunks()))
	release := func() {
		for _, c := range chunks {
			c.Release()
		}
	}
	for _, chunk := range data.Chunks() {
		if dt.ValueType.ID() == arrow.NULL {
			chunks = append(chunks, array.NewNull(chunk.Len()))
			continue
		}
		out, err := compute.CastToType(ctx, chunk, dt.ValueType)
		if err != nil {
			release()
			return nil, fmt.Errorf("unwrap dictionary column: %w", err)
		}
		chunks = append(chunks, out)
	}
	unwrapped := arrow.NewChunked(dt.ValueType, chunks)
	release()
	return unwrapped, nil
}

// WriteColumn writes arr in full as the next column chunk.
func (w *FileWriter) WriteColumn(ctx context.Context, arr arrow.Array) error {
	chunked := arrow.NewChunked(arr.DataType(), []arrow.Array{arr})
	defer chunked.Release()
	return w.WriteColumnChunk(ctx, chunked, 0, int64(arr.Len()))
}

// WriteTable writes tbl as one or more row groups of at most chunkSize
// rows. If a row group fails to write, the writer is closed best-effort so
// the sink is not left with an unterminated file; a rejected chunk size or
// schema returns the error without closing.
func (w *FileWriter) WriteTable(ctx context.Context, tbl arrow.Table, chunkSize int64) error {
	ctx, span := w.tracer.Start(ctx, "arrowpq/WriteTable", trace.WithAttributes(
		attribute.Int64("rows", tbl.NumRows()),
		attribute.Int64("cols", tbl.NumCols()),
	))
	defer span.End()

	if chunkSize <= 0 && tbl.NumRows() > 0 {
		return fmt.Errorf("%w: chunk size per row group must be greater than 0", arrow.ErrInvalid)
	}
	if !tbl.Schema().Equal(w.schema) {
		return fmt.Errorf("%w: table schema does not match this writer's. table: %s vs writer: %s",
			arrow.ErrInvalid, tbl.Schema(), w.schema)
	}
	if maxLen := w.props.MaxRowGroupLength(); chunkSize > maxLen {
		chunkSize = maxLen
	}

	writeRowGroup := func(offset, size int64) error {
		ctx, span := w.tracer.Start(ctx, "arrowpq/WriteRowGroup", trace.WithAttributes(
			attribute.Int64("offset", offset),
			attribute.Int64("size", size),
		))
		defer span.End()
		if err := w.NewRowGroup(); err != nil {
			return err
		}
		for i := 0; i < int(tbl.NumCols()); i++ {
			if err := w.WriteColumnChunk(ctx, tbl.Column(i).Data(), offset, size); err != nil {
				return err
			}
		}
		w.metrics.rowsWritten.Add(float64(size))
		return nil
	}

	if tbl.NumRows() == 0 {
		// an empty table still records its schema through one empty row group
		if err := writeRowGroup(0, 0); err != nil {
			return w.closeAfterError(err)
		}
		return nil
	}

	for offset := int64(0); offset < tbl.NumRows(); offset += chunkSize {
		size := tbl.NumRows() - offset
		if size > chunkSize {
			size = chunkSize
		}
		if err := writeRowGroup(offset, size); err != nil {
			return w.closeAfterError(err)
		}
	}
	level.Debug(w.logger).Log("msg", "wrote table", "rows", tbl.NumRows())
	return nil
}

func (w *FileWriter) closeAfterError(err error) error {
	if cerr := w.Close(); cerr != nil {
		level.Error(w.logger).Log("msg", "best-effort close after failed write", "err", cerr)
	}
	return err
}

// Close finalizes the current row group and the file footer. Further calls
// are no-ops.
func (w *FileWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.closeRowGroup(); err != nil {
		return err
	}
	if err := recoverWrite(w.writer.Close); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

// WriteTable writes tbl to sink as a complete Parquet file, splitting it
// into row groups of at most chunkSize rows.
func WriteTable(ctx context.Context, tbl arrow.Table, sink io.Writer, chunkSize int64, opts ...Option) error {
	w, err := NewFileWriter(tbl.Schema(), sink, opts...)
	if err != nil {
		return err
	}
	if err := w.WriteTable(ctx, tbl, chunkSize); err != nil {
		return err
	}
	return w.Close()
}
