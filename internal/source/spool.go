package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
)

// tableWriter writes one table of a spool directory in record batches
type tableWriter[T any] struct {
	codec     *codec[T]
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	batchSize int
	count     int
	rows      int64
}

func newTableWriter[T any](dir string, c *codec[T], batchSize int) (*tableWriter[T], error) {
	if batchSize <= 0 {
		batchSize = 100_000
	}
	schema := c.schema()

	f, err := os.Create(filepath.Join(dir, c.file()))
	if err != nil {
		return nil, err
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(schema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, err
	}

	return &tableWriter[T]{
		codec:     c,
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, schema),
		batchSize: batchSize,
	}, nil
}

// Write appends one row
func (w *tableWriter[T]) Write(v *T) error {
	w.codec.append(w.builder, v)
	w.count++
	w.rows++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

func (w *tableWriter[T]) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	w.count = 0
	if err := w.writer.Write(rec); err != nil {
		return fmt.Errorf("%s: %w", w.codec.table, err)
	}
	return nil
}

// Close flushes pending rows and closes the file
func (w *tableWriter[T]) Close() error {
	defer w.builder.Release()
	if err := w.flush(); err != nil {
		w.writer.Close()
		w.file.Close()
		return err
	}
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("%s: %w", w.codec.table, err)
	}
	// the parquet writer closes its sink
	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

// Rows returns how many rows have been written
func (w *tableWriter[T]) Rows() int64 {
	return w.rows
}
