package http

import "github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"

// Package-specific error codes for the HTTP surface
var (
	ErrBadRequest   = errors.MustNewCode("http.bad_request")
	ErrUploadFailed = errors.MustNewCode("http.upload_failed")
)
