package rewards

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/lendflow-backend/internal/adapter/repository/memory"
	"github.com/simaogato/lendflow-backend/internal/domain"
	"github.com/simaogato/lendflow-backend/internal/usecase/seeder"
)

func seedUser(store *memory.Store, tier domain.MembershipTier, referrer *uuid.UUID) uuid.UUID {
	id := uuid.New()
	store.AddUser(&domain.User{ID: id, Username: id.String()[:8], Tier: tier, ReferrerID: referrer, CreatedAt: time.Now()})
	return id
}

func TestApproveTask(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := NewService(store, DefaultConfig())

	upline := seedUser(store, domain.TierElite, nil)
	worker := seedUser(store, domain.TierBasic, &upline)

	task := &domain.EarnTask{
		ID:        uuid.New(),
		OwnerID:   worker,
		Title:     "survey",
		Reward:    decimal.NewFromInt(200),
		Status:    domain.TaskStatusPending,
		CreatedAt: time.Now(),
	}
	store.AddTask(task)

	result, err := service.ApproveTask(ctx, task.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.TaskStatusApproved, result.Task.Status)
	require.NotNil(t, result.Task.ApprovedAt)
	assert.True(t, result.Reward.Equal(decimal.NewFromInt(200)))

	// Reward lands in the task wallet, not main
	assert.True(t, store.Balance(worker, domain.WalletKindTask).Equal(decimal.NewFromInt(200)))
	assert.True(t, store.Balance(worker, domain.WalletKindMain).IsZero())

	// Level 1 commission: 10% of the reward to the upline's royalty wallet
	require.Len(t, result.Commissions, 1)
	assert.True(t, store.Balance(upline, domain.WalletKindRoyalty).Equal(decimal.NewFromInt(20)))

	assert.Equal(t, domain.TaskStatusApproved, store.Task(task.ID).Status)
}

func TestApproveTask_Errors(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := NewService(store, DefaultConfig())

	worker := seedUser(store, domain.TierBasic, nil)

	t.Run("unknown task", func(t *testing.T) {
		_, err := service.ApproveTask(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	})

	t.Run("double approval", func(t *testing.T) {
		task := &domain.EarnTask{
			ID: uuid.New(), OwnerID: worker, Title: "survey",
			Reward: decimal.NewFromInt(100), Status: domain.TaskStatusPending, CreatedAt: time.Now(),
		}
		store.AddTask(task)

		_, err := service.ApproveTask(ctx, task.ID)
		require.NoError(t, err)

		_, err = service.ApproveTask(ctx, task.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidState)

		// Reward was issued exactly once
		assert.True(t, store.Balance(worker, domain.WalletKindTask).Equal(decimal.NewFromInt(100)))
	})

	t.Run("rejected task cannot be approved", func(t *testing.T) {
		task := &domain.EarnTask{
			ID: uuid.New(), OwnerID: worker, Title: "spam",
			Reward: decimal.NewFromInt(100), Status: domain.TaskStatusRejected, CreatedAt: time.Now(),
		}
		store.AddTask(task)

		_, err := service.ApproveTask(ctx, task.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})
}

// The reward credit and its commissions land atomically: a failure recording
// the commission event rolls back the reward too.
func TestApproveTask_AtomicWithCommissions(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := NewService(store, DefaultConfig())

	upline := seedUser(store, domain.TierElite, nil)
	worker := seedUser(store, domain.TierBasic, &upline)

	task := &domain.EarnTask{
		ID: uuid.New(), OwnerID: worker, Title: "survey",
		Reward: decimal.NewFromInt(200), Status: domain.TaskStatusPending, CreatedAt: time.Now(),
	}
	store.AddTask(task)

	boom := errors.New("connection reset")
	store.FailOn["CreateCommissionEvent"] = boom

	_, err := service.ApproveTask(ctx, task.ID)
	require.ErrorIs(t, err, boom)

	// Everything reverted: task still pending, no reward, no commission
	assert.Equal(t, domain.TaskStatusPending, store.Task(task.ID).Status)
	assert.True(t, store.Balance(worker, domain.WalletKindTask).IsZero())
	assert.True(t, store.Balance(upline, domain.WalletKindRoyalty).IsZero())
	assert.Empty(t, store.Transactions())
}

func TestPurchaseMembership(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := NewService(store, DefaultConfig())

	upline := seedUser(store, domain.TierElite, nil)
	buyer := seedUser(store, domain.TierBasic, &upline)
	store.AddWallet(buyer, domain.WalletKindMain, decimal.NewFromInt(1000))

	result, err := service.PurchaseMembership(ctx, buyer, domain.TierPro)
	require.NoError(t, err)

	assert.Equal(t, domain.TierPro, result.Tier)
	assert.True(t, result.Charged.Equal(decimal.NewFromInt(500)))

	// Price moved to the treasury, tier upgraded
	assert.True(t, store.Balance(buyer, domain.WalletKindMain).Equal(decimal.NewFromInt(500)))
	assert.True(t, store.Balance(seeder.SystemUserID, domain.WalletKindMain).Equal(decimal.NewFromInt(500)))
	assert.Equal(t, domain.TierPro, store.User(buyer).Tier)

	// Level 1 commission on the purchase amount
	require.Len(t, result.Commissions, 1)
	assert.True(t, store.Balance(upline, domain.WalletKindRoyalty).Equal(decimal.NewFromInt(50)))
}

func TestPurchaseMembership_Errors(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := NewService(store, DefaultConfig())

	buyer := seedUser(store, domain.TierBasic, nil)
	store.AddWallet(buyer, domain.WalletKindMain, decimal.NewFromInt(100))

	t.Run("basic is not purchasable", func(t *testing.T) {
		_, err := service.PurchaseMembership(ctx, buyer, domain.TierBasic)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		_, err := service.PurchaseMembership(ctx, buyer, domain.TierPro)
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
		assert.Equal(t, domain.TierBasic, store.User(buyer).Tier)
		assert.True(t, store.Balance(buyer, domain.WalletKindMain).Equal(decimal.NewFromInt(100)))
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := service.PurchaseMembership(ctx, uuid.New(), domain.TierPro)
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("cannot re-purchase held tier", func(t *testing.T) {
		pro := seedUser(store, domain.TierPro, nil)
		store.AddWallet(pro, domain.WalletKindMain, decimal.NewFromInt(5000))

		_, err := service.PurchaseMembership(ctx, pro, domain.TierPro)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("cannot downgrade", func(t *testing.T) {
		elite := seedUser(store, domain.TierElite, nil)
		store.AddWallet(elite, domain.WalletKindMain, decimal.NewFromInt(5000))

		_, err := service.PurchaseMembership(ctx, elite, domain.TierPro)
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})
}

func TestPurchaseMembership_Upgrade(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := NewService(store, DefaultConfig())

	buyer := seedUser(store, domain.TierPro, nil)
	store.AddWallet(buyer, domain.WalletKindMain, decimal.NewFromInt(3000))

	result, err := service.PurchaseMembership(ctx, buyer, domain.TierElite)
	require.NoError(t, err)

	assert.True(t, result.Charged.Equal(decimal.NewFromInt(2000)))
	assert.Equal(t, domain.TierElite, store.User(buyer).Tier)
	assert.True(t, store.Balance(buyer, domain.WalletKindMain).Equal(decimal.NewFromInt(1000)))
}
