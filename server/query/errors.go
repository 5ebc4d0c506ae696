package query

import "github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"

// Package-specific error codes for query building and execution
var (
	ErrExecutionFailed = errors.MustNewCode("query.execution_failed")
	ErrCountFailed     = errors.MustNewCode("query.count_failed")
	ErrDescribeFailed  = errors.MustNewCode("query.describe_failed")
	ErrSelfHealFailed  = errors.MustNewCode("query.self_heal_failed")
	ErrInvalidRequest  = errors.MustNewCode("query.invalid_request")
)
