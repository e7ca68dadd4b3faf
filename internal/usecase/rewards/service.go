package rewards

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/lendflow-backend/internal/domain"
	"github.com/simaogato/lendflow-backend/internal/usecase/commission"
	"github.com/simaogato/lendflow-backend/internal/usecase/seeder"
	"github.com/simaogato/lendflow-backend/internal/usecase/transfer"
)

// Config holds the reward-side policy: the commission rate table and the
// membership tier prices.
type Config struct {
	Schedule   domain.CommissionSchedule
	TierPrices map[domain.MembershipTier]decimal.Decimal
}

// DefaultConfig returns the standard reward policy.
func DefaultConfig() Config {
	return Config{
		Schedule: commission.DefaultSchedule(),
		TierPrices: map[domain.MembershipTier]decimal.Decimal{
			domain.TierPro:   decimal.NewFromInt(500),
			domain.TierElite: decimal.NewFromInt(2000),
		},
	}
}

// Service handles the events that trigger commission distribution: task
// approvals and membership purchases. Each runs in a single unit of work so
// the reward credit and its commissions land atomically.
type Service struct {
	Store domain.Store
	Cfg   Config
}

// NewService creates a new rewards Service instance
func NewService(store domain.Store, cfg Config) *Service {
	return &Service{Store: store, Cfg: cfg}
}

// ApproveTaskResult represents the outcome of approving an earning task
type ApproveTaskResult struct {
	Task        *domain.EarnTask
	Reward      decimal.Decimal
	Commissions []*domain.CommissionEvent
}

// ApproveTask approves a pending earning task, issues its reward to the
// owner's task wallet, and distributes upline commissions on the reward —
// all in one atomic boundary.
func (s *Service) ApproveTask(ctx context.Context, taskID uuid.UUID) (*ApproveTaskResult, error) {
	var result *ApproveTaskResult
	err := s.Store.WithinTx(ctx, func(tx domain.Tx) error {
		task, err := tx.TaskForUpdate(ctx, taskID)
		if err != nil {
			return err
		}

		if task.Status != domain.TaskStatusPending {
			return fmt.Errorf("task %s is %s: %w", taskID, task.Status, domain.ErrInvalidState)
		}

		now := time.Now()
		task.Status = domain.TaskStatusApproved
		task.ApprovedAt = &now

		if _, err := transfer.Issue(ctx, tx, task.OwnerID, domain.WalletKindTask, task.Reward,
			domain.TxTypeTaskReward, fmt.Sprintf("reward for task %q", task.Title), &task.ID); err != nil {
			return err
		}

		events, err := commission.Distribute(ctx, tx, s.Cfg.Schedule, task.OwnerID, task.Reward,
			domain.CommissionEventTaskApproval)
		if err != nil {
			return err
		}

		if err := tx.UpdateTask(ctx, task); err != nil {
			return err
		}

		result = &ApproveTaskResult{Task: task, Reward: task.Reward, Commissions: events}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PurchaseMembershipResult represents the outcome of a membership purchase
type PurchaseMembershipResult struct {
	Tier        domain.MembershipTier
	Charged     decimal.Decimal
	Commissions []*domain.CommissionEvent
}

// PurchaseMembership charges the tier price from the user's main wallet to
// the treasury, upgrades the tier, and distributes upline commissions on
// the purchase amount.
func (s *Service) PurchaseMembership(ctx context.Context, userID uuid.UUID, tier domain.MembershipTier) (*PurchaseMembershipResult, error) {
	price, ok := s.Cfg.TierPrices[tier]
	if !ok {
		return nil, fmt.Errorf("tier %s cannot be purchased: %w", tier, domain.ErrInvalidAmount)
	}

	var result *PurchaseMembershipResult
	err := s.Store.WithinTx(ctx, func(tx domain.Tx) error {
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}

		if user.Tier.AtLeast(tier) {
			return fmt.Errorf("user already holds %s or above: %w", tier, domain.ErrInvalidState)
		}

		if _, err := transfer.Apply(ctx, tx, transfer.Params{
			FromOwner:   userID,
			FromKind:    domain.WalletKindMain,
			ToOwner:     seeder.SystemUserID,
			ToKind:      domain.WalletKindMain,
			Amount:      price,
			Type:        domain.TxTypeMembership,
			Description: fmt.Sprintf("%s membership purchase", tier),
		}); err != nil {
			return err
		}

		if err := tx.UpdateUserTier(ctx, userID, tier); err != nil {
			return err
		}

		events, err := commission.Distribute(ctx, tx, s.Cfg.Schedule, userID, price,
			domain.CommissionEventMembershipPurchase)
		if err != nil {
			return err
		}

		result = &PurchaseMembershipResult{Tier: tier, Charged: price, Commissions: events}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
