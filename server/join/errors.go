package join

import "github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"

// Package-specific error codes for the join engine
var (
	ErrInvalidSpec     = errors.MustNewCode("join.invalid_spec")
	ErrExecutionFailed = errors.MustNewCode("join.execution_failed")
	ErrCountFailed     = errors.MustNewCode("join.count_failed")
)
