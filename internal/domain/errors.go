package domain

import (
	"errors"
	"fmt"
)

// Error kinds returned by the ledger. Callers match them with errors.Is; the
// concrete errors below wrap a kind so that, for example, every missing
// entity also matches ErrNotFound.
var (
	ErrValidation            = errors.New("validation failed")
	ErrNotFound              = errors.New("not found")
	ErrInsufficientFunds     = errors.New("insufficient points")
	ErrUnverifiedAccount     = errors.New("account is not verified")
	ErrPromotionNotActive    = errors.New("promotion is not active")
	ErrPromotionAlreadyUsed  = errors.New("promotion has already been used")
	ErrMinimumSpendingNotMet = errors.New("minimum spending not met")
	ErrBudgetExceeded        = errors.New("event does not have enough points remaining")
	ErrNotAGuest             = errors.New("account is not a guest of the event")
	ErrAlreadyProcessed      = errors.New("redemption has already been processed")
	ErrWrongType             = errors.New("operation does not apply to this transaction type")
	ErrPermission            = errors.New("permission denied")
	ErrRateLimited           = errors.New("too many requests")
)

var (
	ErrAccountNotFound     = fmt.Errorf("account %w", ErrNotFound)
	ErrRecipientNotFound   = fmt.Errorf("recipient %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
	ErrPromotionNotFound   = fmt.Errorf("promotion %w", ErrNotFound)
	ErrEventNotFound       = fmt.Errorf("event %w", ErrNotFound)
)

// Invalid builds a validation error carrying a human readable reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
