package convert

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"
)

// convertSpreadsheet reads every sheet through the standard spreadsheet
// reader. The first sheet defines the header; later sheets are appended,
// skipping a leading row that repeats the header.
func (p *Pipeline) convertSpreadsheet(ctx context.Context, src, dest string) (*outcome, error) {
	f, err := excelize.OpenFile(src)
	if err != nil {
		return nil, errors.New(ErrSpreadsheetOpen, "failed to open spreadsheet", err).AddContext("path", src)
	}
	defer f.Close()

	var columns []string
	var writer *parquetWriter
	var total int64

	for sheetIdx, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			if writer != nil {
				writer.Abort()
			}
			return nil, errors.New(ErrSpreadsheetOpen, "failed to read sheet", err).AddContext("sheet", sheet)
		}

		for rowIdx, row := range rows {
			if total%ctxCheckInterval == 0 && ctx.Err() != nil {
				if writer != nil {
					writer.Abort()
				}
				return nil, ctx.Err()
			}

			if columns == nil {
				columns = normalizeColumns(row)
				writer, err = newParquetWriter(dest, columns)
				if err != nil {
					return nil, err
				}
				continue
			}

			if sheetIdx > 0 && rowIdx == 0 && repeatsHeader(row, columns) {
				continue
			}

			if err := writer.Append(row); err != nil {
				writer.Abort()
				return nil, err
			}
			total++
		}
	}

	if columns == nil {
		return nil, errors.New(ErrEmptySource, "spreadsheet has no rows", nil).AddContext("path", src)
	}

	rows, err := writer.Close()
	if err != nil {
		return nil, err
	}
	return &outcome{Columns: columns, TotalRows: rows}, nil
}

// convertSpreadsheetStreaming iterates sheet rows without materializing
// whole sheets, for files too large for the direct reader.
func (p *Pipeline) convertSpreadsheetStreaming(ctx context.Context, src, dest string) (*outcome, error) {
	f, err := excelize.OpenFile(src)
	if err != nil {
		return nil, errors.New(ErrSpreadsheetOpen, "failed to open spreadsheet", err).AddContext("path", src)
	}
	defer f.Close()

	var columns []string
	var writer *parquetWriter
	var total int64

	for sheetIdx, sheet := range f.GetSheetList() {
		iter, err := f.Rows(sheet)
		if err != nil {
			if writer != nil {
				writer.Abort()
			}
			return nil, errors.New(ErrSpreadsheetOpen, "failed to stream sheet", err).AddContext("sheet", sheet)
		}

		rowIdx := 0
		for iter.Next() {
			if total%ctxCheckInterval == 0 && ctx.Err() != nil {
				iter.Close()
				if writer != nil {
					writer.Abort()
				}
				return nil, ctx.Err()
			}

			row, err := iter.Columns()
			if err != nil {
				iter.Close()
				if writer != nil {
					writer.Abort()
				}
				return nil, errors.New(ErrSpreadsheetOpen, "failed to read streamed row", err).AddContext("sheet", sheet)
			}

			if columns == nil {
				columns = normalizeColumns(row)
				writer, err = newParquetWriter(dest, columns)
				if err != nil {
					iter.Close()
					return nil, err
				}
				rowIdx++
				continue
			}

			if sheetIdx > 0 && rowIdx == 0 && repeatsHeader(row, columns) {
				rowIdx++
				continue
			}

			if err := writer.Append(row); err != nil {
				iter.Close()
				writer.Abort()
				return nil, err
			}
			total++
			rowIdx++
		}
		iter.Close()
	}

	if columns == nil {
		return nil, errors.New(ErrEmptySource, "spreadsheet has no rows", nil).AddContext("path", src)
	}

	rows, err := writer.Close()
	if err != nil {
		return nil, err
	}
	return &outcome{Columns: columns, TotalRows: rows}, nil
}

// convertSpreadsheetNative hands the whole conversion to the engine,
// bypassing row-by-row parsing entirely. Requires the engine's xlsx
// reader; failure falls through to the Go-side strategies.
func (p *Pipeline) convertSpreadsheetNative(ctx context.Context, src, dest string) (*outcome, error) {
	if p.engine == nil {
		return nil, errors.New(ErrEngineUnavailable, "no engine gateway wired for native ingestion", nil)
	}

	copySQL := fmt.Sprintf(
		"COPY (SELECT * FROM read_xlsx(%s, all_varchar = true)) TO %s (FORMAT parquet)",
		sqlString(src), sqlString(dest),
	)
	if _, err := p.engine.Execute(ctx, copySQL); err != nil {
		return nil, err
	}

	relation := fmt.Sprintf("SELECT * FROM read_parquet(%s)", sqlString(dest))
	described, err := p.engine.Describe(ctx, relation)
	if err != nil {
		return nil, err
	}
	columns := make([]string, len(described))
	for i, col := range described {
		columns[i] = col.Name
	}
	columns = normalizeColumns(columns)

	countRes, err := p.engine.Execute(ctx, fmt.Sprintf("SELECT COUNT(*) FROM read_parquet(%s)", sqlString(dest)))
	if err != nil {
		return nil, err
	}

	var total int64
	if len(countRes.Rows) > 0 && len(countRes.Rows[0]) > 0 {
		total = toInt64(countRes.Rows[0][0])
	}

	return &outcome{Columns: columns, TotalRows: total}, nil
}

func repeatsHeader(row, columns []string) bool {
	if len(row) != len(columns) {
		return false
	}
	for i := range row {
		if strings.TrimSpace(row[i]) != columns[i] {
			return false
		}
	}
	return true
}

func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
