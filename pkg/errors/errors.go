package apperrors

import "errors"

// Sentinel errors, wrapped with %w by the packages that return them;
// trigger's isTransientChainError treats ErrChainTimeout and
// ErrChainUnavailable as retryable for retry.Do.
var (
	ErrChainTimeout            = errors.New("chain request timed out")
	ErrChainUnavailable        = errors.New("chain endpoint unavailable")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrValidationRange         = errors.New("value outside valid range")
	ErrReconciliationAmbiguous = errors.New("reconciliation could not determine a safe correction")
	ErrAuthFailed              = errors.New("authentication failed")
	ErrPersistenceFailed       = errors.New("persistence layer failed")
	ErrOrderNotFound           = errors.New("order not found")
	ErrDuplicateOrder          = errors.New("duplicate order")
	ErrDivergenceHalt          = errors.New("divergence exceeded halt threshold")
	ErrSlotLocked              = errors.New("slot is locked by a concurrent operation")
)
