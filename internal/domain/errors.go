package domain

import "errors"

// Sentinel errors returned by ledger operations. Adapters classify these
// with errors.Is; anything else is treated as a backend failure and is safe
// to retry, as is ErrBusy.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrLoanNotFound      = errors.New("loan not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidState      = errors.New("operation not valid for current state")
	ErrOfferAlreadyTaken = errors.New("offer already taken")
	ErrUnauthorized      = errors.New("caller is not authorized for this record")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrBusy              = errors.New("resource busy, retry later")
	ErrInvalidAmount     = errors.New("invalid amount")
)
