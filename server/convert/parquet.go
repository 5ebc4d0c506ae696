package convert

import (
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"
)

const writerBatchSize = 4096

// parquetWriter streams text rows into a canonical parquet file. Every
// column is VARCHAR; type fidelity is traded away so conversion can never
// fail on mixed-type input. Callers cast at query time.
type parquetWriter struct {
	file    *os.File
	writer  *pqarrow.FileWriter
	builder *array.RecordBuilder
	schema  *arrow.Schema
	width   int
	pending int
	rows    int64
}

func newParquetWriter(dest string, columns []string) (*parquetWriter, error) {
	fields := make([]arrow.Field, len(columns))
	for i, name := range columns {
		fields[i] = arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	file, err := os.Create(dest)
	if err != nil {
		return nil, errors.New(ErrParquetWriterFailed, "failed to create canonical file", err).AddContext("path", dest)
	}

	writer, err := pqarrow.NewFileWriter(schema, file, nil, pqarrow.DefaultWriterProps())
	if err != nil {
		file.Close()
		os.Remove(dest)
		return nil, errors.New(ErrParquetWriterFailed, "failed to create parquet writer", err).AddContext("path", dest)
	}

	return &parquetWriter{
		file:    file,
		writer:  writer,
		builder: array.NewRecordBuilder(memory.NewGoAllocator(), schema),
		schema:  schema,
		width:   len(columns),
	}, nil
}

// Append writes one row. Short rows are padded with empty cells and long
// rows truncated to the header width, so ragged input cannot fail here.
func (w *parquetWriter) Append(row []string) error {
	for i := 0; i < w.width; i++ {
		b := w.builder.Field(i).(*array.StringBuilder)
		if i < len(row) {
			b.Append(normalizeCell(row[i]))
		} else {
			b.Append("")
		}
	}
	w.pending++
	w.rows++

	if w.pending >= writerBatchSize {
		return w.flush()
	}
	return nil
}

func (w *parquetWriter) flush() error {
	if w.pending == 0 {
		return nil
	}

	record := w.builder.NewRecord()
	defer record.Release()

	if err := w.writer.Write(record); err != nil {
		return errors.New(ErrParquetWriterFailed, "failed to write record batch", err)
	}
	w.pending = 0
	return nil
}

// Close flushes the tail batch and finalizes the file, returning the
// total row count.
func (w *parquetWriter) Close() (int64, error) {
	if err := w.flush(); err != nil {
		w.writer.Close()
		return 0, err
	}
	w.builder.Release()

	// pqarrow's Close also closes the underlying file.
	if err := w.writer.Close(); err != nil {
		return 0, errors.New(ErrParquetWriterFailed, "failed to finalize parquet file", err)
	}
	return w.rows, nil
}

// Abort discards the writer and removes any partial output.
func (w *parquetWriter) Abort() {
	w.builder.Release()
	w.writer.Close()
	os.Remove(w.file.Name())
}
