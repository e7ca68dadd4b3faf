package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/simaogato/lendflow-backend/internal/domain"
)

// OperationClass groups transaction types for rate limiting purposes
type OperationClass string

const (
	// OpClassLoanMutation covers escrow, disbursement, repayment and refund
	// entries — one of these is written by every loan-mutating operation.
	OpClassLoanMutation OperationClass = "LOAN_MUTATION"
)

// classTypes maps an operation class to the log entry types it counts.
var classTypes = map[OperationClass][]domain.TransactionType{
	OpClassLoanMutation: domain.LoanMutatingTypes,
}

// Result represents the outcome of a rate limit check
type Result struct {
	Allowed   bool
	Remaining int
}

// Limiter implements a sliding-window counter over the transaction log.
// There is no separate counter state to keep consistent: the check queries
// the log's recent entries for the user, at the cost of a scan per check.
// Consumption is implicit — an allowed operation appends its own entries.
type Limiter struct {
	Transactions domain.TransactionRepository
	Ceiling      int
	Window       time.Duration
}

// NewLimiter creates a new Limiter instance
func NewLimiter(transactions domain.TransactionRepository, ceiling int, window time.Duration) *Limiter {
	return &Limiter{
		Transactions: transactions,
		Ceiling:      ceiling,
		Window:       window,
	}
}

// CheckAndConsume reports whether the user may perform another operation of
// the given class. When the ceiling is reached it returns allowed=false and
// the caller must reject the operation with ErrRateLimited before applying
// any mutation.
func (l *Limiter) CheckAndConsume(ctx context.Context, userID uuid.UUID, class OperationClass) (Result, error) {
	types, ok := classTypes[class]
	if !ok {
		return Result{}, fmt.Errorf("unknown operation class %q", class)
	}

	since := time.Now().Add(-l.Window)
	count, err := l.Transactions.CountByOwnerAndTypes(ctx, userID, types, since)
	if err != nil {
		return Result{}, fmt.Errorf("failed to count recent transactions: %w", err)
	}

	remaining := l.Ceiling - count
	if remaining < 0 {
		remaining = 0
	}

	return Result{Allowed: count < l.Ceiling, Remaining: remaining}, nil
}
