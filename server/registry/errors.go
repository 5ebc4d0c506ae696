package registry

import "github.com/danyguancha/soft-eps-v2-sub000/pkg/errors"

// Package-specific error codes for the table registry
var (
	ErrMiss                = errors.MustNewCode("registry.miss")
	ErrInvalidTransition   = errors.MustNewCode("registry.invalid_transition")
	ErrPromotionFailed     = errors.MustNewCode("registry.promotion_failed")
	ErrEvictionFailed      = errors.MustNewCode("registry.eviction_failed")
	ErrLinkStoreOpenFailed = errors.MustNewCode("registry.link_store_open_failed")
	ErrLinkStoreFailed     = errors.MustNewCode("registry.link_store_failed")
)
