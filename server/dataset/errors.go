package dataset

import "github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"

// Package-specific error codes for the dataset service
var (
	ErrIngestFailed   = errors.MustNewCode("dataset.ingest_failed")
	ErrInvalidRequest = errors.MustNewCode("dataset.invalid_request")
)
