package convert

import "github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"

// Package-specific error codes for the conversion pipeline
var (
	ErrSourceUnreadable     = errors.MustNewCode("convert.source_unreadable")
	ErrEmptySource          = errors.MustNewCode("convert.empty_source")
	ErrAllStrategiesFailed  = errors.MustNewCode("convert.all_strategies_failed")
	ErrTimeout              = errors.MustNewCode("convert.timeout")
	ErrParquetWriterFailed  = errors.MustNewCode("convert.parquet_writer_failed")
	ErrSpreadsheetOpen      = errors.MustNewCode("convert.spreadsheet_open_failed")
	ErrEngineUnavailable    = errors.MustNewCode("convert.engine_unavailable")
	ErrUnsupportedExtension = errors.MustNewCode("convert.unsupported_extension")
)
