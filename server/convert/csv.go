package convert

import (
	"bufio"
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"
)

const ctxCheckInterval = 1024

// convertDelimited is the primary delimited-text strategy: charset and
// delimiter are sniffed from a sample, then the file is parsed with a
// strict CSV reader. Ragged files fail here and fall through to the
// tolerant strategy.
func (p *Pipeline) convertDelimited(ctx context.Context, src, dest string) (*outcome, error) {
	delim, err := p.sniffFile(src)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(src)
	if err != nil {
		return nil, errors.New(ErrSourceUnreadable, "failed to open source file", err).AddContext("path", src)
	}
	defer f.Close()

	reader := csv.NewReader(decodeReader(f))
	reader.Comma = delim
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.New(ErrEmptySource, "source file has no header row", err).AddContext("path", src)
	}
	columns := normalizeColumns(header)

	writer, err := newParquetWriter(dest, columns)
	if err != nil {
		return nil, err
	}

	var n int64
	for {
		if n%ctxCheckInterval == 0 && ctx.Err() != nil {
			writer.Abort()
			return nil, ctx.Err()
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			writer.Abort()
			return nil, err
		}
		if err := writer.Append(row); err != nil {
			writer.Abort()
			return nil, err
		}
		n++
	}

	rows, err := writer.Close()
	if err != nil {
		return nil, err
	}
	return &outcome{Columns: columns, TotalRows: rows}, nil
}

// convertDelimitedTolerant is the fallback delimited-text strategy: a
// plain line scanner with naive splitting. Rows that cannot plausibly
// belong to the table (more than twice the header width) are skipped and
// counted instead of failing the whole file.
func (p *Pipeline) convertDelimitedTolerant(ctx context.Context, src, dest string) (*outcome, error) {
	delim, err := p.sniffFile(src)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(src)
	if err != nil {
		return nil, errors.New(ErrSourceUnreadable, "failed to open source file", err).AddContext("path", src)
	}
	defer f.Close()

	scanner := bufio.NewScanner(decodeReader(f))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var columns []string
	var writer *parquetWriter
	var rows, skipped int64

	for scanner.Scan() {
		if rows%ctxCheckInterval == 0 && ctx.Err() != nil {
			if writer != nil {
				writer.Abort()
			}
			return nil, ctx.Err()
		}

		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, string(delim))

		if columns == nil {
			columns = normalizeColumns(fields)
			writer, err = newParquetWriter(dest, columns)
			if err != nil {
				return nil, err
			}
			continue
		}

		if len(fields) > 2*len(columns) {
			skipped++
			continue
		}

		if err := writer.Append(fields); err != nil {
			writer.Abort()
			return nil, err
		}
		rows++
	}

	if err := scanner.Err(); err != nil {
		if writer != nil {
			writer.Abort()
		}
		return nil, errors.New(ErrSourceUnreadable, "failed reading source file", err).AddContext("path", src)
	}

	if columns == nil {
		return nil, errors.New(ErrEmptySource, "source file has no rows", nil).AddContext("path", src)
	}

	total, err := writer.Close()
	if err != nil {
		return nil, err
	}

	if skipped > 0 {
		p.logger.Warn().Int64("skipped", skipped).Str("source", src).Msg("Tolerant reader skipped malformed rows")
	}
	return &outcome{Columns: columns, TotalRows: total, SkippedRows: skipped}, nil
}

func (p *Pipeline) sniffFile(src string) (rune, error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, errors.New(ErrSourceUnreadable, "failed to open source file for sniffing", err).AddContext("path", src)
	}
	defer f.Close()

	lines := sampleLines(f)
	if len(lines) == 0 {
		return 0, errors.New(ErrEmptySource, "source file is empty", nil).AddContext("path", src)
	}
	return sniffDelimiter(lines), nil
}
