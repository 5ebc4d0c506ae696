package convert

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"
	"github.com/danyguancha/soft-eps-v2-sub000/server/cache"
	"github.com/danyguancha/soft-eps-v2-sub000/server/config"
	"github.com/danyguancha/soft-eps-v2-sub000/server/engine"
)

// Engine is the slice of the gateway the pipeline needs for native
// spreadsheet ingestion.
type Engine interface {
	Execute(ctx context.Context, sql string) (*engine.Result, error)
	Describe(ctx context.Context, sql string) ([]engine.Column, error)
}

// outcome is the tagged per-strategy result.
type outcome struct {
	Columns     []string
	TotalRows   int64
	SkippedRows int64
}

// strategy pairs a name with a uniform conversion function so the
// fallback chain is an ordered list, not nested recovery blocks.
type strategy struct {
	name string
	run  func(ctx context.Context, src, dest string) (*outcome, error)
}

// Pipeline converts uploaded files to the canonical parquet format by
// trying ordered strategies under a size-proportional time budget. A
// successful conversion persists its cache entry before returning.
type Pipeline struct {
	cache  *cache.ContentCache
	engine Engine
	cfg    *config.ConvertConfig
	logger zerolog.Logger
}

// New creates a conversion pipeline. engine may be nil; the native
// spreadsheet strategy is then skipped.
func New(cc *cache.ContentCache, eng Engine, cfg *config.ConvertConfig, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		cache:  cc,
		engine: eng,
		cfg:    cfg,
		logger: logger.With().Str("component", "conversion-pipeline").Logger(),
	}
}

var delimitedExtensions = map[string]struct{}{
	".csv": {}, ".txt": {}, ".tsv": {}, ".dat": {}, ".psv": {},
}

var spreadsheetExtensions = map[string]struct{}{
	".xlsx": {}, ".xls": {}, ".xlsm": {},
}

// Convert turns sourcePath into the canonical file for contentHash. On
// success the resulting cache entry has already been saved through the
// content cache.
func (p *Pipeline) Convert(ctx context.Context, sourcePath, originalName, ext, contentHash string) (*cache.Entry, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, errors.New(ErrSourceUnreadable, "failed to stat source file", err).AddContext("path", sourcePath)
	}
	originalSize := info.Size()
	if originalSize == 0 {
		return nil, errors.New(ErrEmptySource, "source file is empty", nil).AddContext("path", sourcePath)
	}

	strategies, err := p.strategiesFor(ext, originalSize)
	if err != nil {
		return nil, err
	}

	budget := p.timeoutBudget(originalSize)
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	dest := p.cache.Paths().CanonicalFile(contentHash)
	start := time.Now()

	var attempts []string
	for _, s := range strategies {
		result, err := s.run(ctx, sourcePath, dest)
		if err == nil {
			return p.finish(sourcePath, originalName, ext, contentHash, dest, originalSize, s.name, result)
		}

		attempts = append(attempts, s.name)
		p.logger.Warn().Err(err).Str("strategy", s.name).Str("source", sourcePath).Msg("Conversion strategy failed")
		os.Remove(dest)

		if ctx.Err() != nil {
			return nil, errors.New(ErrTimeout, "conversion budget exceeded", ctx.Err()).
				AddContext("elapsed", time.Since(start).String()).
				AddContext("budget", budget.String()).
				AddContext("attempted", strings.Join(attempts, ","))
		}
	}

	return nil, errors.New(ErrAllStrategiesFailed, "every conversion strategy failed", nil).
		AddContext("attempted", strings.Join(attempts, ",")).
		AddContext("source", sourcePath)
}

func (p *Pipeline) strategiesFor(ext string, size int64) ([]strategy, error) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	if _, ok := delimitedExtensions[ext]; ok {
		return []strategy{
			{"csv-sniffed", p.convertDelimited},
			{"csv-tolerant", p.convertDelimitedTolerant},
		}, nil
	}

	if _, ok := spreadsheetExtensions[ext]; ok {
		threshold := p.cfg.SpreadsheetDirectMB * 1024 * 1024
		if size <= threshold {
			return []strategy{
				{"xlsx-direct", p.convertSpreadsheet},
				{"xlsx-streaming", p.convertSpreadsheetStreaming},
			}, nil
		}
		return []strategy{
			{"xlsx-native", p.convertSpreadsheetNative},
			{"xlsx-streaming", p.convertSpreadsheetStreaming},
			{"xlsx-direct", p.convertSpreadsheet},
		}, nil
	}

	// Unknown extensions get the delimited chain; plenty of exports
	// arrive mislabeled and still parse as delimited text.
	return []strategy{
		{"csv-sniffed", p.convertDelimited},
		{"csv-tolerant", p.convertDelimitedTolerant},
	}, nil
}

// timeoutBudget grants one minute per configured MB band, clamped to the
// configured [min, max] window.
func (p *Pipeline) timeoutBudget(size int64) time.Duration {
	sizeMB := size / (1024 * 1024)
	minutes := sizeMB / p.cfg.MBPerMinute
	if minutes < int64(p.cfg.TimeoutMinMinutes) {
		minutes = int64(p.cfg.TimeoutMinMinutes)
	}
	if minutes > int64(p.cfg.TimeoutMaxMinutes) {
		minutes = int64(p.cfg.TimeoutMaxMinutes)
	}
	return time.Duration(minutes) * time.Minute
}

func (p *Pipeline) finish(sourcePath, originalName, ext, contentHash, dest string, originalSize int64, method string, result *outcome) (*cache.Entry, error) {
	canonicalInfo, err := os.Stat(dest)
	if err != nil {
		return nil, errors.New(ErrParquetWriterFailed, "canonical file missing after conversion", err).AddContext("path", dest)
	}

	entry := &cache.Entry{
		ContentHash:   contentHash,
		OriginalName:  originalName,
		Extension:     strings.ToLower(ext),
		SourcePath:    sourcePath,
		Columns:       result.Columns,
		TotalRows:     result.TotalRows,
		OriginalSize:  originalSize,
		CanonicalSize: canonicalInfo.Size(),
		Method:        method,
		CanonicalPath: dest,
	}
	if entry.CanonicalSize > 0 {
		entry.CompressionRatio = float64(originalSize) / float64(entry.CanonicalSize)
	}

	if err := p.cache.Save(contentHash, entry); err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("content_hash", contentHash).
		Str("method", method).
		Int64("rows", result.TotalRows).
		Int64("skipped", result.SkippedRows).
		Msg("Conversion completed")

	return entry, nil
}
