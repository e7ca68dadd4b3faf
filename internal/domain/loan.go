package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanStatus represents the lifecycle state of a loan
type LoanStatus string

const (
	LoanStatusPending   LoanStatus = "PENDING"
	LoanStatusActive    LoanStatus = "ACTIVE"
	LoanStatusRepaid    LoanStatus = "REPAID"
	LoanStatusDefaulted LoanStatus = "DEFAULTED"
	LoanStatusCancelled LoanStatus = "CANCELLED"
)

// Terminal reports whether the status is final. A loan never leaves a
// terminal state.
func (s LoanStatus) Terminal() bool {
	switch s {
	case LoanStatusRepaid, LoanStatusDefaulted, LoanStatusCancelled:
		return true
	}
	return false
}

// loanTransitions maps each status to the statuses it may move to.
var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanStatusPending: {LoanStatusActive, LoanStatusCancelled},
	LoanStatusActive:  {LoanStatusRepaid, LoanStatusDefaulted},
}

// Loan represents a peer-to-peer loan. While PENDING, the escrowed principal
// is held by the loan record itself: it has been debited from the lender's
// main wallet and is not spendable by anyone.
type Loan struct {
	ID             uuid.UUID
	LenderID       uuid.UUID
	BorrowerID     *uuid.UUID // NULL until a borrower accepts
	Principal      decimal.Decimal
	InterestRate   decimal.Decimal // percentage, 0-100
	InterestAmount decimal.Decimal // fixed at offer time, not prorated
	ProcessingFee  decimal.Decimal
	TotalRepayment decimal.Decimal // principal + interest
	TermDays       int
	Status         LoanStatus
	CreatedAt      time.Time
	AcceptedAt     *time.Time
	DueAt          *time.Time
	RepaidAt       *time.Time
}

// Transition moves the loan to a new status, enforcing the state machine.
// Returns ErrInvalidState if the move is not allowed.
func (l *Loan) Transition(to LoanStatus) error {
	for _, allowed := range loanTransitions[l.Status] {
		if allowed == to {
			l.Status = to
			return nil
		}
	}
	return ErrInvalidState
}

// Overdue reports whether the loan is active and past its due date.
func (l *Loan) Overdue(now time.Time) bool {
	return l.Status == LoanStatusActive && l.DueAt != nil && l.DueAt.Before(now)
}

// Validate ensures the loan adheres to domain rules
// Returns an error if validation fails
func (l *Loan) Validate() error {
	if !l.Principal.IsPositive() {
		return errors.New("loan principal must be positive")
	}

	if l.InterestRate.IsNegative() || l.InterestRate.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("loan interest rate must be between 0 and 100")
	}

	if l.TermDays <= 0 {
		return errors.New("loan term must be at least one day")
	}

	// Total repayment is fixed at offer time: principal + simple interest
	if !l.TotalRepayment.Equal(l.Principal.Add(l.InterestAmount)) {
		return errors.New("total repayment must equal principal plus interest")
	}

	// Non-pending loans must have a borrower of record
	if l.Status != LoanStatusPending && l.Status != LoanStatusCancelled && l.BorrowerID == nil {
		return errors.New("loan must have a borrower once accepted")
	}

	return nil
}

// RoundMoney rounds to the currency's minor unit (2 decimal places) using
// round-half-up.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
