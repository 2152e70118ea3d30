package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"predictpix/internal/models"
)

func TestTickClosesExpiredMarkets(t *testing.T) {
	env := newTestEnv(t)
	driver := NewMarketLifecycleDriver(env.markets, env.settlement, time.Minute, env.log)
	ctx := context.Background()

	creator := env.createUser(t, "creator", decimal.Zero)
	now := time.Now().UTC()

	expired := env.createMarket(t, creator.ID, models.MarketStatusActive,
		now.Add(-time.Minute), now.Add(2*time.Hour), nil)
	running := env.createMarket(t, creator.ID, models.MarketStatusActive,
		now.Add(time.Hour), now.Add(3*time.Hour), nil)

	driver.Tick(ctx)

	if got := env.marketStatus(t, expired.ID); got != models.MarketStatusClosed {
		t.Errorf("expired market status = %s, want CLOSED", got)
	}
	if got := env.marketStatus(t, running.ID); got != models.MarketStatusActive {
		t.Errorf("running market status = %s, want ACTIVE", got)
	}
}

func TestTickSettlesDueMarkets(t *testing.T) {
	env := newTestEnv(t)
	driver := NewMarketLifecycleDriver(env.markets, env.settlement, time.Minute, env.log)
	ctx := context.Background()

	creator := env.createUser(t, "creator", decimal.Zero)
	alice := env.createUser(t, "alice", decimal.Zero)
	bob := env.createUser(t, "bob", decimal.Zero)
	now := time.Now().UTC()

	// resolved and past its resolution time, due for settlement
	due := env.createMarket(t, creator.ID, models.MarketStatusClosed,
		now.Add(-2*time.Hour), now.Add(-time.Minute), outcomePtr(models.OutcomeYes))
	env.stake(t, alice.ID, due.ID, models.OutcomeYes, decimal.NewFromInt(100))
	env.stake(t, bob.ID, due.ID, models.OutcomeNo, decimal.NewFromInt(100))

	// second due market in the same batch
	due2 := env.createMarket(t, creator.ID, models.MarketStatusClosed,
		now.Add(-2*time.Hour), now.Add(-time.Minute), outcomePtr(models.OutcomeNo))
	env.stake(t, bob.ID, due2.ID, models.OutcomeNo, decimal.NewFromInt(50))

	// closed but unresolved, must stay put
	unresolved := env.createMarket(t, creator.ID, models.MarketStatusClosed,
		now.Add(-2*time.Hour), now.Add(-time.Minute), nil)

	// resolved but resolution time not reached yet
	early := env.createMarket(t, creator.ID, models.MarketStatusClosed,
		now.Add(-2*time.Hour), now.Add(time.Hour), outcomePtr(models.OutcomeYes))

	driver.Tick(ctx)

	if got := env.marketStatus(t, due.ID); got != models.MarketStatusSettled {
		t.Errorf("due market status = %s, want SETTLED", got)
	}
	if got := env.marketStatus(t, due2.ID); got != models.MarketStatusSettled {
		t.Errorf("second due market status = %s, want SETTLED", got)
	}
	if got := env.marketStatus(t, unresolved.ID); got != models.MarketStatusClosed {
		t.Errorf("unresolved market status = %s, want CLOSED", got)
	}
	if got := env.marketStatus(t, early.ID); got != models.MarketStatusClosed {
		t.Errorf("early market status = %s, want CLOSED", got)
	}

	// settlement effects landed
	var alice2 models.User
	if err := env.db.First(&alice2, alice.ID).Error; err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	// 200 pool, 2% + 1% fees, single winner takes 194
	if !alice2.Balance.Equal(decimal.NewFromInt(194)) {
		t.Errorf("alice balance = %s, want 194", alice2.Balance)
	}
}

func TestTickFullLifecycle(t *testing.T) {
	env := newTestEnv(t)
	driver := NewMarketLifecycleDriver(env.markets, env.settlement, time.Minute, env.log)
	ctx := context.Background()

	creator := env.createUser(t, "creator", decimal.Zero)
	alice := env.createUser(t, "alice", decimal.Zero)
	now := time.Now().UTC()

	market := env.createMarket(t, creator.ID, models.MarketStatusActive,
		now.Add(-time.Minute), now.Add(-time.Second), nil)
	env.stake(t, alice.ID, market.ID, models.OutcomeYes, decimal.NewFromInt(10))

	// first pass closes; no outcome yet so no settlement
	driver.Tick(ctx)
	if got := env.marketStatus(t, market.ID); got != models.MarketStatusClosed {
		t.Fatalf("market status after first tick = %s, want CLOSED", got)
	}

	admin := env.createAdmin(t, "admin")
	if _, err := env.markets.Resolve(ctx, admin.ID, market.ID, models.OutcomeYes); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// second pass settles
	driver.Tick(ctx)
	if got := env.marketStatus(t, market.ID); got != models.MarketStatusSettled {
		t.Errorf("market status after second tick = %s, want SETTLED", got)
	}
}
