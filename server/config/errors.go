package config

import "github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"

// Package-specific error codes for config
var (
	ErrConfigFileReadFailed       = errors.MustNewCode("config.file_read_failed")
	ErrConfigFileParseFailed      = errors.MustNewCode("config.file_parse_failed")
	ErrConfigFileMarshalFailed    = errors.MustNewCode("config.file_marshal_failed")
	ErrConfigFileWriteFailed      = errors.MustNewCode("config.file_write_failed")
	ErrConfigValidationFailed     = errors.MustNewCode("config.validation_failed")
	ErrDataPathRequired           = errors.MustNewCode("config.data_path_required")
	ErrInvalidPageSizeBounds      = errors.MustNewCode("config.invalid_page_size_bounds")
	ErrInvalidTimeoutBand         = errors.MustNewCode("config.invalid_timeout_band")
	ErrLogFilePathRequired        = errors.MustNewCode("config.log_file_path_required")
	ErrLogDirectoryCreationFailed = errors.MustNewCode("config.log_directory_creation_failed")
	ErrLogFileOpenFailed          = errors.MustNewCode("config.log_file_open_failed")
	ErrLogFileStatFailed          = errors.MustNewCode("config.log_file_stat_failed")
	ErrLogRotationFailed          = errors.MustNewCode("config.log_rotation_failed")
	ErrLogRotationCheckFailed     = errors.MustNewCode("config.log_rotation_check_failed")
	ErrLogBackupReadFailed        = errors.MustNewCode("config.log_backup_read_failed")
	ErrLogBackupRemoveFailed      = errors.MustNewCode("config.log_backup_remove_failed")
	ErrLogCleanupFailed           = errors.MustNewCode("config.log_cleanup_failed")
	ErrLogWriterSetupFailed       = errors.MustNewCode("config.log_writer_setup_failed")
)
