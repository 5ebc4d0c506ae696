package cache

import "github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"

// Package-specific error codes for the content cache
var (
	ErrIdentifyFailed  = errors.MustNewCode("cache.identify_failed")
	ErrSaveFailed      = errors.MustNewCode("cache.save_failed")
	ErrEntryNotFound   = errors.MustNewCode("cache.entry_not_found")
	ErrCorruption      = errors.MustNewCode("cache.corruption")
	ErrCleanupFailed   = errors.MustNewCode("cache.cleanup_failed")
	ErrRestoreScan     = errors.MustNewCode("cache.restore_scan_failed")
	ErrSidecarEncoding = errors.MustNewCode("cache.sidecar_encoding_failed")
)
