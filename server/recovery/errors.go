package recovery

import "github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"

// Package-specific error codes for startup recovery
var (
	ErrRestoreFailed = errors.MustNewCode("recovery.restore_failed")
)
