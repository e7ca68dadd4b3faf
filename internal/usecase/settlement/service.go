package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/simaogato/lendflow-backend/internal/domain"
	"github.com/simaogato/lendflow-backend/internal/usecase/lending"
)

const defaultBatchSize = 500

// Report aggregates the outcome of one settlement run
type Report struct {
	RepaidCount    int
	DefaultedCount int
	FailedCount    int
	TotalRepaid    decimal.Decimal
	Skipped        bool // true when another run already held the job lock
}

// Service resolves overdue active loans: repay when the borrower can cover
// the full amount, default otherwise.
type Service struct {
	Store     domain.Store
	Loans     domain.LoanRepository
	Log       zerolog.Logger
	BatchSize int

	// Named advisory lock for this job type, process-wide. Acquired with a
	// non-blocking attempt so an overlapping trigger exits immediately.
	mu sync.Mutex
}

// NewService creates a new settlement Service instance
func NewService(store domain.Store, loans domain.LoanRepository, log zerolog.Logger) *Service {
	return &Service{
		Store:     store,
		Loans:     loans,
		Log:       log,
		BatchSize: defaultBatchSize,
	}
}

// Run processes every overdue active loan. Each loan is settled in its own
// transaction so a single failure never aborts the batch; per-loan errors
// are logged and counted. If another run is in flight the call returns a
// Skipped report — that is a normal race, not a failure.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	if !s.mu.TryLock() {
		s.Log.Info().Msg("settlement run already in progress, skipping")
		return &Report{Skipped: true, TotalRepaid: decimal.Zero}, nil
	}
	defer s.mu.Unlock()

	report := &Report{TotalRepaid: decimal.Zero}
	now := time.Now()

	ids, err := s.Loans.ListOverdueIDs(ctx, now, s.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue loans: %w", err)
	}

	for _, id := range ids {
		if err := s.settleOne(ctx, id, now, report); err != nil {
			report.FailedCount++
			s.Log.Error().Err(err).Str("loan_id", id.String()).Msg("failed to settle loan")
		}
	}

	s.Log.Info().
		Int("repaid", report.RepaidCount).
		Int("defaulted", report.DefaultedCount).
		Int("failed", report.FailedCount).
		Str("total_repaid", report.TotalRepaid.String()).
		Msg("settlement run complete")

	return report, nil
}

// settleOne resolves a single loan in its own transaction. The loan row is
// claimed with skip-locked semantics: if a manual repayment (or a racing
// run) holds the row, the loan is skipped and picked up next time.
func (s *Service) settleOne(ctx context.Context, id uuid.UUID, now time.Time, report *Report) error {
	return s.Store.WithinTx(ctx, func(tx domain.Tx) error {
		loan, err := tx.ClaimLoan(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrLoanNotFound) {
				// Locked elsewhere or gone; nothing to do
				return nil
			}
			return err
		}

		// Re-check under the lock: a racing repayment may have resolved it
		if !loan.Overdue(now) {
			return nil
		}

		wallet, err := tx.WalletForUpdate(ctx, *loan.BorrowerID, domain.WalletKindMain)
		if err != nil {
			return err
		}

		if wallet.Spendable().GreaterThanOrEqual(loan.TotalRepayment) {
			if _, err := lending.Settle(ctx, tx, loan, "loan repayment (auto-settlement)"); err != nil {
				return err
			}
			report.RepaidCount++
			report.TotalRepaid = report.TotalRepaid.Add(loan.TotalRepayment)
			return nil
		}

		// Insufficient funds: default, no funds move, the lender absorbs
		// the loss
		if err := loan.Transition(domain.LoanStatusDefaulted); err != nil {
			return err
		}
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		report.DefaultedCount++
		return nil
	})
}
