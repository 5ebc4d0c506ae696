package engine

import "github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"

// Package-specific error codes for the engine gateway
var (
	ErrOpenFailed         = errors.MustNewCode("engine.open_failed")
	ErrPingFailed         = errors.MustNewCode("engine.ping_failed")
	ErrNotInitialized     = errors.MustNewCode("engine.not_initialized")
	ErrEmptyStatement     = errors.MustNewCode("engine.empty_statement")
	ErrStatementRejected  = errors.MustNewCode("engine.statement_rejected")
	ErrExecutionFailed    = errors.MustNewCode("engine.execution_failed")
	ErrScanFailed         = errors.MustNewCode("engine.scan_failed")
	ErrDescribeFailed     = errors.MustNewCode("engine.describe_failed")
	ErrReconnectFailed    = errors.MustNewCode("engine.reconnect_failed")
	ErrSessionSetupFailed = errors.MustNewCode("engine.session_setup_failed")
)
