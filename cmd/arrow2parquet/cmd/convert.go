package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/polarsignals/arrowpq"
)

var (
	flagChunkSize                int64
	flagCompression              string
	flagCoerceTimestamps         string
	flagAllowTruncatedTimestamps bool
	flagInt96Timestamps          bool
	flagParquetVersion           string
)

var convertCmd = &cobra.Command{
	Use:     "convert",
	Example: "arrow2parquet convert <input.arrow> <output.parquet>",
	Short:   "convert an Arrow IPC stream into a Parquet file",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return convert(args[0], args[1])
	},
}

func init() {
	convertCmd.Flags().Int64Var(&flagChunkSize, "chunk-size", 64*1024, "rows per row group")
	convertCmd.Flags().StringVar(&flagCompression, "compression", "snappy", "none|snappy|gzip|zstd|brotli|lz4")
	convertCmd.Flags().StringVar(&flagCoerceTimestamps, "coerce-timestamps", "", "coerce all timestamps to this unit: s|ms|us|ns")
	convertCmd.Flags().BoolVar(&flagAllowTruncatedTimestamps, "allow-truncated-timestamps", false, "allow timestamp coercion to drop sub-unit precision")
	convertCmd.Flags().BoolVar(&flagInt96Timestamps, "int96-timestamps", false, "write timestamps as Impala-compatible Int96")
	convertCmd.Flags().StringVar(&flagParquetVersion, "parquet-version", "2.6", "parquet format version: 1.0|2.4|2.6")
}

func convert(input, output string) error {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))

	tbl, inputSize, err := readTable(input)
	if err != nil {
		return err
	}
	defer tbl.Release()

	opts, err := writerOptions()
	if err != nil {
		return err
	}
	opts = append(opts, arrowpq.WithLogger(logger))

	outf, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer outf.Close()

	level.Info(logger).Log(
		"msg", "converting",
		"input", input,
		"size", humanize.Bytes(uint64(inputSize)),
		"rows", tbl.NumRows(),
		"cols", tbl.NumCols(),
	)

	if err := arrowpq.WriteTable(context.Background(), tbl, outf, flagChunkSize, opts...); err != nil {
		return fmt.Errorf("write parquet file: %w", err)
	}

	stat, err := outf.Stat()
	if err != nil {
		return fmt.Errorf("stat output file: %w", err)
	}
	level.Info(logger).Log(
		"msg", "converted",
		"output", output,
		"size", humanize.Bytes(uint64(stat.Size())),
	)
	return nil
}

func readTable(path string) (arrow.Table, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat input file: %w", err)
	}

	reader, err := ipc.NewReader(f, ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, 0, fmt.Errorf("read arrow stream: %w", err)
	}
	defer reader.Release()

	var recs []arrow.Record
	for reader.Next() {
		rec := reader.Record()
		rec.Retain()
		recs = append(recs, rec)
	}
	if err := reader.Err(); err != nil {
		return nil, 0, fmt.Errorf("read arrow stream: %w", err)
	}
	if len(recs) == 0 {
		return nil, 0, fmt.Errorf("no records in %q", path)
	}

	tbl := array.NewTableFromRecords(recs[0].Schema(), recs)
	for _, rec := range recs {
		rec.Release()
	}
	return tbl, stat.Size(), nil
}

func writerOptions() ([]arrowpq.Option, error) {
	codec, err := codecFromFlag(flagCompression)
	if err != nil {
		return nil, err
	}
	version, err := versionFromFlag(flagParquetVersion)
	if err != nil {
		return nil, err
	}

	opts := []arrowpq.Option{
		arrowpq.WithWriterProperties(parquet.NewWriterProperties(
			parquet.WithCompression(codec),
			parquet.WithVersion(version),
		)),
	}
	if flagInt96Timestamps {
		opts = append(opts, arrowpq.WithDeprecatedInt96Timestamps())
	}
	if flagCoerceTimestamps != "" {
		unit, err := timeUnitFromFlag(flagCoerceTimestamps)
		if err != nil {
			return nil, err
		}
		opts = append(opts, arrowpq.WithCoerceTimestamps(unit))
	}
	if flagAllowTruncatedTimestamps {
		opts = append(opts, arrowpq.WithTruncatedTimestamps())
	}
	return opts, nil
}

func codecFromFlag(name string) (compress.Compression, error) {
	switch name {
	case "none":
		return compress.Codecs.Uncompressed, nil
	case "snappy":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "brotli":
		return compress.Codecs.Brotli, nil
	case "lz4":
		return compress.Codecs.Lz4Raw, nil
	default:
		return compress.Codecs.Uncompressed, fmt.Errorf("unknown compression %q", name)
	}
}

func versionFromFlag(v string) (parquet.Version, error) {
	switch v {
	case "1.0":
		return parquet.V1_0, nil
	case "2.4":
		return parquet.V2_4, nil
	case "2.6":
		return parquet.V2_6, nil
	default:
		return parquet.V2_6, fmt.Errorf("unknown parquet version %q", v)
	}
}

func timeUnitFromFlag(u string) (arrow.TimeUnit, error) {
	switch u {
	case "s":
		return arrow.Second, nil
	case "ms":
		return arrow.Millisecond, nil
	case "us":
		return arrow.Microsecond, nil
	case "ns":
		return arrow.Nanosecond, nil
	default:
		return arrow.Second, fmt.Errorf("unknown time unit %q", u)
	}
}
