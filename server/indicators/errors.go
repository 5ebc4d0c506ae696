package indicators

import "github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"

// Package-specific error codes for table profiling
var (
	ErrProfileFailed = errors.MustNewCode("indicators.profile_failed")
)
