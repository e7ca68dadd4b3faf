package lending

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/lendflow-backend/internal/domain"
	"github.com/simaogato/lendflow-backend/internal/usecase/ratelimit"
	"github.com/simaogato/lendflow-backend/internal/usecase/seeder"
	"github.com/simaogato/lendflow-backend/internal/usecase/transfer"
)

// RateClass fixes the interest rate and term for a band of principals.
type RateClass struct {
	MaxPrincipal decimal.Decimal // inclusive upper bound of the band
	InterestRate decimal.Decimal // percentage, simple interest for the full term
	TermDays     int
}

// Config holds the lending engine's posted-offer policy
type Config struct {
	MinPrincipal decimal.Decimal
	MaxPrincipal decimal.Decimal
	EntryFeeRate decimal.Decimal // percentage of principal, charged at posting
	RateClasses  []RateClass     // ascending by MaxPrincipal
}

// DefaultConfig returns the standard posted-offer policy.
func DefaultConfig() Config {
	return Config{
		MinPrincipal: decimal.NewFromInt(100),
		MaxPrincipal: decimal.NewFromInt(50000),
		EntryFeeRate: decimal.NewFromInt(1),
		RateClasses: []RateClass{
			{MaxPrincipal: decimal.NewFromInt(1000), InterestRate: decimal.NewFromInt(3), TermDays: 7},
			{MaxPrincipal: decimal.NewFromInt(5000), InterestRate: decimal.NewFromInt(5), TermDays: 14},
			{MaxPrincipal: decimal.NewFromInt(50000), InterestRate: decimal.NewFromInt(8), TermDays: 30},
		},
	}
}

// classFor returns the rate class for a principal. Principals are validated
// against the configured bounds before this is called, so the last class
// acts as the catch-all.
func (c Config) classFor(principal decimal.Decimal) RateClass {
	for _, rc := range c.RateClasses {
		if principal.LessThanOrEqual(rc.MaxPrincipal) {
			return rc
		}
	}
	return c.RateClasses[len(c.RateClasses)-1]
}

// Service implements the loan lifecycle: offer, accept, cancel, repay
type Service struct {
	Store   domain.Store
	Limiter *ratelimit.Limiter
	Cfg     Config
}

// NewService creates a new lending Service instance
func NewService(store domain.Store, limiter *ratelimit.Limiter, cfg Config) *Service {
	return &Service{
		Store:   store,
		Limiter: limiter,
		Cfg:     cfg,
	}
}

// checkRate rejects the operation with ErrRateLimited once the caller has
// exhausted their loan-mutation budget for the trailing window.
func (s *Service) checkRate(ctx context.Context, userID uuid.UUID) error {
	res, err := s.Limiter.CheckAndConsume(ctx, userID, ratelimit.OpClassLoanMutation)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return fmt.Errorf("loan operations for user %s: %w", userID, domain.ErrRateLimited)
	}
	return nil
}

// PostOfferResult represents the outcome of posting a loan offer
type PostOfferResult struct {
	Loan       *domain.Loan
	FeeCharged decimal.Decimal
}

// PostOffer creates a pending loan offer.
// Logic:
//  1. Validate principal within configured bounds
//  2. Pick the rate class; compute interest, fee, and total repayment
//  3. Atomically: escrow the principal out of the lender's main wallet
//     (the loan record becomes the holder), charge the entry fee to the
//     treasury, and create the PENDING loan
func (s *Service) PostOffer(ctx context.Context, lenderID uuid.UUID, principal decimal.Decimal) (*PostOfferResult, error) {
	if err := s.checkRate(ctx, lenderID); err != nil {
		return nil, err
	}

	if principal.LessThan(s.Cfg.MinPrincipal) || principal.GreaterThan(s.Cfg.MaxPrincipal) {
		return nil, fmt.Errorf("principal must be between %s and %s: %w",
			s.Cfg.MinPrincipal, s.Cfg.MaxPrincipal, domain.ErrInvalidAmount)
	}

	rc := s.Cfg.classFor(principal)
	interest := domain.RoundMoney(principal.Mul(rc.InterestRate).Div(decimal.NewFromInt(100)))
	fee := domain.RoundMoney(principal.Mul(s.Cfg.EntryFeeRate).Div(decimal.NewFromInt(100)))

	loan := &domain.Loan{
		ID:             uuid.New(),
		LenderID:       lenderID,
		Principal:      principal,
		InterestRate:   rc.InterestRate,
		InterestAmount: interest,
		ProcessingFee:  fee,
		TotalRepayment: principal.Add(interest),
		TermDays:       rc.TermDays,
		Status:         domain.LoanStatusPending,
		CreatedAt:      time.Now(),
	}
	if err := loan.Validate(); err != nil {
		return nil, err
	}

	err := s.Store.WithinTx(ctx, func(tx domain.Tx) error {
		if _, err := tx.GetUser(ctx, lenderID); err != nil {
			return err
		}

		// Escrow: the pending loan holds the principal from here on
		if _, err := transfer.Hold(ctx, tx, lenderID, domain.WalletKindMain, principal,
			domain.TxTypeLoanEscrow, "loan offer escrow", &loan.ID); err != nil {
			return err
		}

		if _, err := transfer.Apply(ctx, tx, transfer.Params{
			FromOwner:   lenderID,
			FromKind:    domain.WalletKindMain,
			ToOwner:     seeder.SystemUserID,
			ToKind:      domain.WalletKindMain,
			Amount:      fee,
			Type:        domain.TxTypeLoanFee,
			Description: "loan offer entry fee",
			ReferenceID: &loan.ID,
		}); err != nil {
			return err
		}

		return tx.CreateLoan(ctx, loan)
	})
	if err != nil {
		return nil, err
	}

	return &PostOfferResult{Loan: loan, FeeCharged: fee}, nil
}

// TakeOfferResult represents the outcome of accepting a loan offer
type TakeOfferResult struct {
	Loan              *domain.Loan
	PrincipalReceived decimal.Decimal
	DueAt             time.Time
}

// TakeOffer accepts a pending offer. The loan row is locked before any
// mutation, so of two concurrent borrowers exactly one wins; the loser
// observes the loan out of PENDING and receives ErrOfferAlreadyTaken.
func (s *Service) TakeOffer(ctx context.Context, borrowerID uuid.UUID, loanID uuid.UUID) (*TakeOfferResult, error) {
	if err := s.checkRate(ctx, borrowerID); err != nil {
		return nil, err
	}

	var result *TakeOfferResult
	err := s.Store.WithinTx(ctx, func(tx domain.Tx) error {
		loan, err := tx.LoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}

		if loan.Status != domain.LoanStatusPending || loan.BorrowerID != nil {
			if loan.Status == domain.LoanStatusCancelled {
				return fmt.Errorf("loan %s is cancelled: %w", loanID, domain.ErrInvalidState)
			}
			return fmt.Errorf("loan %s: %w", loanID, domain.ErrOfferAlreadyTaken)
		}

		if loan.LenderID == borrowerID {
			return fmt.Errorf("lender cannot take their own offer: %w", domain.ErrInvalidState)
		}

		if _, err := tx.GetUser(ctx, borrowerID); err != nil {
			return err
		}

		now := time.Now()
		dueAt := now.AddDate(0, 0, loan.TermDays)
		loan.BorrowerID = &borrowerID
		loan.AcceptedAt = &now
		loan.DueAt = &dueAt
		if err := loan.Transition(domain.LoanStatusActive); err != nil {
			return err
		}

		// Disburse the escrowed principal to the borrower
		if _, err := transfer.Release(ctx, tx, borrowerID, domain.WalletKindMain, loan.Principal,
			domain.TxTypeLoanDisbursement, "loan disbursement", &loan.ID); err != nil {
			return err
		}

		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}

		result = &TakeOfferResult{Loan: loan, PrincipalReceived: loan.Principal, DueAt: dueAt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelOfferResult represents the outcome of cancelling a loan offer
type CancelOfferResult struct {
	Loan     *domain.Loan
	Refunded decimal.Decimal
}

// CancelOffer withdraws a pending offer and returns the escrowed principal
// to the lender. Fails with ErrInvalidState once a borrower has accepted.
func (s *Service) CancelOffer(ctx context.Context, lenderID uuid.UUID, loanID uuid.UUID) (*CancelOfferResult, error) {
	if err := s.checkRate(ctx, lenderID); err != nil {
		return nil, err
	}

	var result *CancelOfferResult
	err := s.Store.WithinTx(ctx, func(tx domain.Tx) error {
		loan, err := tx.LoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}

		if loan.LenderID != lenderID {
			return fmt.Errorf("caller is not the lender of loan %s: %w", loanID, domain.ErrUnauthorized)
		}

		if loan.Status != domain.LoanStatusPending {
			return fmt.Errorf("loan %s is %s: %w", loanID, loan.Status, domain.ErrInvalidState)
		}

		if err := loan.Transition(domain.LoanStatusCancelled); err != nil {
			return err
		}

		if _, err := transfer.Release(ctx, tx, lenderID, domain.WalletKindMain, loan.Principal,
			domain.TxTypeLoanRefund, "loan offer cancelled", &loan.ID); err != nil {
			return err
		}

		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}

		result = &CancelOfferResult{Loan: loan, Refunded: loan.Principal}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RepayResult represents the outcome of repaying a loan
type RepayResult struct {
	Loan          *domain.Loan
	AmountRepaid  decimal.Decimal
	RepaidAt      time.Time
	AlreadyRepaid bool // true when a retry hit an already-settled loan
}

// RepayLoan transfers the full repayment amount from the borrower to the
// lender and marks the loan repaid. Idempotent against retries: a repeat
// call on an already-repaid loan returns the prior result without moving
// funds again.
func (s *Service) RepayLoan(ctx context.Context, borrowerID uuid.UUID, loanID uuid.UUID) (*RepayResult, error) {
	if err := s.checkRate(ctx, borrowerID); err != nil {
		return nil, err
	}

	var result *RepayResult
	err := s.Store.WithinTx(ctx, func(tx domain.Tx) error {
		loan, err := tx.LoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}

		if loan.BorrowerID == nil || *loan.BorrowerID != borrowerID {
			return fmt.Errorf("caller is not the borrower of loan %s: %w", loanID, domain.ErrUnauthorized)
		}

		if loan.Status == domain.LoanStatusRepaid {
			result = &RepayResult{
				Loan:          loan,
				AmountRepaid:  loan.TotalRepayment,
				RepaidAt:      *loan.RepaidAt,
				AlreadyRepaid: true,
			}
			return nil
		}

		if loan.Status != domain.LoanStatusActive {
			return fmt.Errorf("loan %s is %s: %w", loanID, loan.Status, domain.ErrInvalidState)
		}

		if _, err := Settle(ctx, tx, loan, "loan repayment"); err != nil {
			return err
		}

		result = &RepayResult{Loan: loan, AmountRepaid: loan.TotalRepayment, RepaidAt: *loan.RepaidAt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Settle executes the repayment transfer and state transition for an active
// loan inside the caller's unit of work. It is shared between borrower-
// initiated repayment and the auto-settlement scheduler, so both paths have
// identical semantics. The loan row must already be locked.
func Settle(ctx context.Context, tx domain.Tx, loan *domain.Loan, description string) (*domain.TransferResult, error) {
	if loan.Status != domain.LoanStatusActive || loan.BorrowerID == nil {
		return nil, fmt.Errorf("loan %s is %s: %w", loan.ID, loan.Status, domain.ErrInvalidState)
	}

	pair, err := transfer.Apply(ctx, tx, transfer.Params{
		FromOwner:   *loan.BorrowerID,
		FromKind:    domain.WalletKindMain,
		ToOwner:     loan.LenderID,
		ToKind:      domain.WalletKindMain,
		Amount:      loan.TotalRepayment,
		Type:        domain.TxTypeLoanRepayment,
		Description: description,
		ReferenceID: &loan.ID,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	loan.RepaidAt = &now
	if err := loan.Transition(domain.LoanStatusRepaid); err != nil {
		return nil, err
	}

	if err := tx.UpdateLoan(ctx, loan); err != nil {
		return nil, err
	}

	return pair, nil
}
