package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommissionEventType identifies the qualifying event that triggered a
// commission payout
type CommissionEventType string

const (
	CommissionEventTaskApproval       CommissionEventType = "TASK_APPROVAL"
	CommissionEventMembershipPurchase CommissionEventType = "MEMBERSHIP_PURCHASE"
)

// CommissionEvent records a single upline payout. Immutable once paid.
type CommissionEvent struct {
	ID         uuid.UUID
	ReferrerID uuid.UUID // the upline who received the payout
	ReferredID uuid.UUID // the downline whose activity triggered it
	Level      int       // 1 = direct referrer, 2 = referrer's referrer
	EventType  CommissionEventType
	BaseAmount decimal.Decimal
	Rate       decimal.Decimal // percentage, 0-100
	Amount     decimal.Decimal
	Paid       bool
	CreatedAt  time.Time
}

// CommissionLevel defines the override rate for one upline level and the
// minimum tier the upline must hold to receive it.
type CommissionLevel struct {
	Level   int
	Rate    decimal.Decimal // percentage (0-100) of the base amount
	MinTier MembershipTier
}

// CommissionSchedule is the rate table walked by the distributor, one entry
// per upline level.
type CommissionSchedule struct {
	Levels []CommissionLevel
}

// Validate ensures the schedule adheres to domain rules
// Returns an error if validation fails
// CRITICAL: Levels must be consecutive starting at 1 so the upline walk
// cannot skip a generation
func (s *CommissionSchedule) Validate() error {
	if len(s.Levels) == 0 {
		return errors.New("commission schedule must have at least one level")
	}

	for i, level := range s.Levels {
		if level.Level != i+1 {
			return errors.New("commission schedule levels must be consecutive starting at 1")
		}

		if level.Rate.LessThan(decimal.Zero) || level.Rate.GreaterThan(decimal.NewFromInt(100)) {
			return errors.New("commission rate must be between 0 and 100")
		}

		if !level.MinTier.Valid() {
			return errors.New("commission level minimum tier must be a valid membership tier")
		}
	}

	return nil
}
