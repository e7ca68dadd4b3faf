package commission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/lendflow-backend/internal/domain"
	"github.com/simaogato/lendflow-backend/internal/usecase/transfer"
)

// DefaultSchedule returns the standard two-level override table: only
// elite-tier uplines receive commissions.
func DefaultSchedule() domain.CommissionSchedule {
	return domain.CommissionSchedule{
		Levels: []domain.CommissionLevel{
			{Level: 1, Rate: decimal.NewFromInt(10), MinTier: domain.TierElite},
			{Level: 2, Rate: decimal.NewFromInt(8), MinTier: domain.TierElite},
		},
	}
}

// Distribute walks the source user's referral chain and pays the configured
// override to each qualifying upline's royalty wallet, recording a
// commission event per payout. It runs inside the caller's unit of work so
// a commission is never recorded without its triggering reward, and vice
// versa.
//
// Logic:
//  1. Walk one referrer per schedule level, starting from the source user
//  2. A missing referrer ends the walk
//  3. An upline below the level's minimum tier is skipped — the walk
//     continues to the next level, it does not abort
//  4. For each qualifying upline: credit baseAmount x rate to their royalty
//     wallet and record the event
func Distribute(ctx context.Context, tx domain.Tx, schedule domain.CommissionSchedule, sourceUserID uuid.UUID, baseAmount decimal.Decimal, eventType domain.CommissionEventType) ([]*domain.CommissionEvent, error) {
	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	if !baseAmount.IsPositive() {
		return nil, fmt.Errorf("commission base amount must be positive: %w", domain.ErrInvalidAmount)
	}

	var events []*domain.CommissionEvent

	current, err := tx.GetUser(ctx, sourceUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load commission source user: %w", err)
	}

	for _, level := range schedule.Levels {
		if current.ReferrerID == nil {
			break
		}

		upline, err := tx.GetUser(ctx, *current.ReferrerID)
		if err != nil {
			return nil, fmt.Errorf("failed to load level %d upline: %w", level.Level, err)
		}

		if upline.Tier.AtLeast(level.MinTier) {
			amount := domain.RoundMoney(baseAmount.Mul(level.Rate).Div(decimal.NewFromInt(100)))

			event := &domain.CommissionEvent{
				ID:         uuid.New(),
				ReferrerID: upline.ID,
				ReferredID: sourceUserID,
				Level:      level.Level,
				EventType:  eventType,
				BaseAmount: baseAmount,
				Rate:       level.Rate,
				Amount:     amount,
				Paid:       true,
				CreatedAt:  time.Now(),
			}

			if _, err := transfer.Issue(ctx, tx, upline.ID, domain.WalletKindRoyalty, amount,
				domain.TxTypeCommission, fmt.Sprintf("level %d %s commission", level.Level, eventType), &event.ID); err != nil {
				return nil, err
			}

			if err := tx.CreateCommissionEvent(ctx, event); err != nil {
				return nil, err
			}

			events = append(events, event)
		}

		current = upline
	}

	return events, nil
}
