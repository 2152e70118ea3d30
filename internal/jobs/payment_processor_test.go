package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"predictpix/internal/models"
	"predictpix/internal/payments"
)

func TestTickProcessesPendingRewards(t *testing.T) {
	env := newTestEnv(t)
	processor := NewPaymentProcessor(env.rewards, env.transactions, env.rail, time.Minute, env.log)
	ctx := context.Background()

	creator := env.createUser(t, "creator", decimal.Zero)
	alice := env.createUser(t, "alice", decimal.Zero)
	bob := env.createUser(t, "bob", decimal.Zero)
	now := time.Now().UTC()

	market := env.createMarket(t, creator.ID, models.MarketStatusClosed,
		now.Add(-2*time.Hour), now.Add(-time.Minute), outcomePtr(models.OutcomeYes))
	env.stake(t, alice.ID, market.ID, models.OutcomeYes, decimal.NewFromInt(100))
	env.stake(t, bob.ID, market.ID, models.OutcomeNo, decimal.NewFromInt(100))

	result, err := env.settlement.Settle(ctx, market.ID)
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if len(result.RewardIDs) != 1 {
		t.Fatalf("reward count = %d, want 1", len(result.RewardIDs))
	}

	processor.Tick(ctx)

	var reward models.Reward
	if err := env.db.First(&reward, result.RewardIDs[0]).Error; err != nil {
		t.Fatalf("failed to reload reward: %v", err)
	}
	if reward.Status != models.RewardStatusProcessed {
		t.Errorf("reward status = %s, want PROCESSED", reward.Status)
	}
	if reward.ProcessedAt == nil {
		t.Error("processed_at not recorded")
	}

	// a second pass finds nothing to do
	processor.Tick(ctx)
	pending, err := env.rewards.ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending reward count = %d, want 0", len(pending))
	}
}

func TestTickReconcilesPendingTransactions(t *testing.T) {
	env := newTestEnv(t)
	processor := NewPaymentProcessor(env.rewards, env.transactions, env.rail, time.Minute, env.log)
	ctx := context.Background()

	alice := env.createUser(t, "alice", decimal.Zero)

	tx, err := env.transactions.Deposit(ctx, alice.ID, decimal.NewFromInt(300))
	if err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	processor.Tick(ctx)

	var reloaded models.Transaction
	if err := env.db.First(&reloaded, tx.ID).Error; err != nil {
		t.Fatalf("failed to reload transaction: %v", err)
	}
	if reloaded.Status != models.TransactionStatusCompleted {
		t.Errorf("deposit status = %s, want COMPLETED", reloaded.Status)
	}

	var user models.User
	if err := env.db.First(&user, alice.ID).Error; err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	if !user.Balance.Equal(decimal.NewFromInt(300)) {
		t.Errorf("alice balance = %s, want 300", user.Balance)
	}
}

// brokenRail fails to create reward payouts.
type brokenRail struct{}

func (brokenRail) CreatePayment(ctx context.Context, amount decimal.Decimal, memo string, userID uint) (string, error) {
	return "", errors.New("rail unreachable")
}

func (brokenRail) VerifyPayment(ctx context.Context, paymentID string) (payments.Status, error) {
	return payments.StatusPending, nil
}

func TestTickMarksRewardFailedOnRailError(t *testing.T) {
	env := newTestEnv(t)
	processor := NewPaymentProcessor(env.rewards, env.transactions, brokenRail{}, time.Minute, env.log)
	ctx := context.Background()

	creator := env.createUser(t, "creator", decimal.Zero)
	alice := env.createUser(t, "alice", decimal.Zero)
	now := time.Now().UTC()

	market := env.createMarket(t, creator.ID, models.MarketStatusClosed,
		now.Add(-2*time.Hour), now.Add(-time.Minute), outcomePtr(models.OutcomeYes))
	env.stake(t, alice.ID, market.ID, models.OutcomeYes, decimal.NewFromInt(100))

	result, err := env.settlement.Settle(ctx, market.ID)
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}

	processor.Tick(ctx)

	var reward models.Reward
	if err := env.db.First(&reward, result.RewardIDs[0]).Error; err != nil {
		t.Fatalf("failed to reload reward: %v", err)
	}
	if reward.Status != models.RewardStatusFailed {
		t.Errorf("reward status = %s, want FAILED", reward.Status)
	}

	// a failed payout never unwinds the settled balance
	var user models.User
	if err := env.db.First(&user, alice.ID).Error; err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	if !user.Balance.Equal(decimal.NewFromInt(97)) {
		t.Errorf("alice balance = %s, want 97", user.Balance)
	}

	// the market itself stayed settled
	if got := env.marketStatus(t, market.ID); got != models.MarketStatusSettled {
		t.Errorf("market status = %s, want SETTLED", got)
	}
}
