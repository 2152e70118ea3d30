package repository

import (
	"context"
	"time"

	"predictpix/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Repository is the persistence layer for the settlement core. All
// multi-row mutations run inside Transaction so partial writes cannot
// survive a failure. Guarded updates (conditional UPDATE ... WHERE) stand
// in for row locks so only one state transition ever wins a race.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying handle for migration and test setup.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// Transaction runs fn within a database transaction, handing it a
// Repository bound to that transaction.
func (r *Repository) Transaction(ctx context.Context, fn func(txRepo *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// ============================================================================
// Users
// ============================================================================

func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *Repository) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreditBalance atomically adds amount to the user's balance.
func (r *Repository) CreditBalance(ctx context.Context, userID uint, amount decimal.Decimal) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", amount)).Error
}

// DebitBalance atomically subtracts amount from the user's balance, but
// only if the balance covers it. Returns false when the guard rejects the
// debit (insufficient funds or missing user).
func (r *Repository) DebitBalance(ctx context.Context, userID uint, amount decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND balance >= ?", userID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetUserReferrer records who referred the user, but only once: the guard
// on referrer_id being unset keeps a second link from overwriting the
// first. Returns false when the user already has a referrer or is missing.
func (r *Repository) SetUserReferrer(ctx context.Context, userID, referrerID uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND referrer_id IS NULL", userID).
		Update("referrer_id", referrerID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ============================================================================
// Markets
// ============================================================================

func (r *Repository) CreateMarket(ctx context.Context, market *models.Market) error {
	return r.db.WithContext(ctx).Create(market).Error
}

func (r *Repository) GetMarketByID(ctx context.Context, marketID uint) (*models.Market, error) {
	var market models.Market
	err := r.db.WithContext(ctx).Where("id = ?", marketID).First(&market).Error
	if err != nil {
		return nil, err
	}
	return &market, nil
}

// TransitionMarketStatus performs a compare-and-swap on market status,
// applying extra column updates in the same statement. Returns false when
// the market was not in the expected state, which is how concurrent
// duplicate transitions lose the race.
func (r *Repository) TransitionMarketStatus(
	ctx context.Context,
	marketID uint,
	from, to models.MarketStatus,
	extra map[string]interface{},
) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	res := r.db.WithContext(ctx).Model(&models.Market{}).
		Where("id = ? AND status = ?", marketID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RecordMarketOutcome writes the correct outcome onto a market that is
// still CLOSED. The status guard keeps a stale resolve, one whose snapshot
// predates a concurrent settlement, from writing CLOSED back over SETTLED.
// Returns false when the market is no longer CLOSED.
func (r *Repository) RecordMarketOutcome(
	ctx context.Context,
	marketID uint,
	outcome models.Outcome,
	audit models.AuditTrail,
) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Market{}).
		Where("id = ? AND status = ?", marketID, models.MarketStatusClosed).
		Updates(map[string]interface{}{
			"correct_outcome": outcome,
			"audit":           audit,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// IncrementPools adds amount to the total pool and the chosen side pool,
// guarded on the market still being ACTIVE and open for bets. The guard
// doubles as the status re-check that keeps placement from interleaving
// with closing: once a market leaves ACTIVE no increment can land.
func (r *Repository) IncrementPools(
	ctx context.Context,
	marketID uint,
	outcome models.Outcome,
	amount decimal.Decimal,
	now time.Time,
) (bool, error) {
	sideColumn := "no_pool"
	if outcome == models.OutcomeYes {
		sideColumn = "yes_pool"
	}

	res := r.db.WithContext(ctx).Model(&models.Market{}).
		Where("id = ? AND status = ? AND end_time > ?", marketID, models.MarketStatusActive, now).
		Updates(map[string]interface{}{
			"total_pool": gorm.Expr("total_pool + ?", amount),
			sideColumn:   gorm.Expr(sideColumn+" + ?", amount),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DecrementPools removes a cancelled stake from the pools, guarded on the
// market still being ACTIVE.
func (r *Repository) DecrementPools(
	ctx context.Context,
	marketID uint,
	outcome models.Outcome,
	amount decimal.Decimal,
) (bool, error) {
	sideColumn := "no_pool"
	if outcome == models.OutcomeYes {
		sideColumn = "yes_pool"
	}

	res := r.db.WithContext(ctx).Model(&models.Market{}).
		Where("id = ? AND status = ?", marketID, models.MarketStatusActive).
		Updates(map[string]interface{}{
			"total_pool": gorm.Expr("total_pool - ?", amount),
			sideColumn:   gorm.Expr(sideColumn+" - ?", amount),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) ListMarketsByStatus(ctx context.Context, status models.MarketStatus, limit, offset int) ([]*models.Market, error) {
	var markets []*models.Market
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&markets).Error
	if err != nil {
		return nil, err
	}
	return markets, nil
}

func (r *Repository) ListMarkets(ctx context.Context, limit, offset int) ([]*models.Market, error) {
	var markets []*models.Market
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&markets).Error
	if err != nil {
		return nil, err
	}
	return markets, nil
}

// ListExpiredActiveMarkets returns ACTIVE markets whose end time has passed.
func (r *Repository) ListExpiredActiveMarkets(ctx context.Context, now time.Time) ([]*models.Market, error) {
	var markets []*models.Market
	err := r.db.WithContext(ctx).
		Where("status = ? AND end_time <= ?", models.MarketStatusActive, now).
		Order("end_time ASC").
		Find(&markets).Error
	if err != nil {
		return nil, err
	}
	return markets, nil
}

// ListSettleableMarkets returns CLOSED markets past their resolution time
// that have a correct outcome recorded.
func (r *Repository) ListSettleableMarkets(ctx context.Context, now time.Time) ([]*models.Market, error) {
	var markets []*models.Market
	err := r.db.WithContext(ctx).
		Where("status = ? AND resolution_time <= ? AND correct_outcome IS NOT NULL",
			models.MarketStatusClosed, now).
		Order("resolution_time ASC").
		Find(&markets).Error
	if err != nil {
		return nil, err
	}
	return markets, nil
}

func (r *Repository) CountPendingMarketsByCreator(ctx context.Context, creatorID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Market{}).
		Where("creator_id = ? AND status = ?", creatorID, models.MarketStatusPending).
		Count(&count).Error
	return count, err
}

// ============================================================================
// Predictions
// ============================================================================

func (r *Repository) CreatePrediction(ctx context.Context, prediction *models.Prediction) error {
	return r.db.WithContext(ctx).Create(prediction).Error
}

func (r *Repository) GetPredictionByID(ctx context.Context, predictionID uint) (*models.Prediction, error) {
	var prediction models.Prediction
	err := r.db.WithContext(ctx).Where("id = ?", predictionID).First(&prediction).Error
	if err != nil {
		return nil, err
	}
	return &prediction, nil
}

func (r *Repository) SavePrediction(ctx context.Context, prediction *models.Prediction) error {
	return r.db.WithContext(ctx).Save(prediction).Error
}

func (r *Repository) GetPredictionsByMarket(ctx context.Context, marketID uint) ([]*models.Prediction, error) {
	var predictions []*models.Prediction
	err := r.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("id ASC").
		Find(&predictions).Error
	if err != nil {
		return nil, err
	}
	return predictions, nil
}

func (r *Repository) GetPredictionsByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.Prediction, error) {
	var predictions []*models.Prediction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&predictions).Error
	if err != nil {
		return nil, err
	}
	return predictions, nil
}

// MarkLosingPredictions flips every prediction on the market that did not
// pick winningOutcome and is not yet terminal to LOST with zero winnings.
func (r *Repository) MarkLosingPredictions(ctx context.Context, marketID uint, winningOutcome models.Outcome) error {
	return r.db.WithContext(ctx).Model(&models.Prediction{}).
		Where("market_id = ? AND predicted_outcome != ? AND status NOT IN ?",
			marketID, winningOutcome,
			[]models.PredictionStatus{models.PredictionStatusCancelled}).
		Updates(map[string]interface{}{
			"status":             models.PredictionStatusLost,
			"potential_winnings": decimal.Zero,
		}).Error
}

// UpdatePredictionSettlement records the settlement verdict for one
// prediction.
func (r *Repository) UpdatePredictionSettlement(
	ctx context.Context,
	predictionID uint,
	status models.PredictionStatus,
	potentialWinnings decimal.Decimal,
) error {
	return r.db.WithContext(ctx).Model(&models.Prediction{}).
		Where("id = ?", predictionID).
		Updates(map[string]interface{}{
			"status":             status,
			"potential_winnings": potentialWinnings,
		}).Error
}

// ListRefundablePredictions returns every non-terminal prediction on the
// market, the set a cancellation must pay back.
func (r *Repository) ListRefundablePredictions(ctx context.Context, marketID uint) ([]*models.Prediction, error) {
	var predictions []*models.Prediction
	err := r.db.WithContext(ctx).
		Where("market_id = ? AND status IN ?", marketID,
			[]models.PredictionStatus{models.PredictionStatusPending, models.PredictionStatusActive}).
		Order("id ASC").
		Find(&predictions).Error
	if err != nil {
		return nil, err
	}
	return predictions, nil
}

// ============================================================================
// Rewards
// ============================================================================

func (r *Repository) CreateReward(ctx context.Context, reward *models.Reward) error {
	return r.db.WithContext(ctx).Create(reward).Error
}

func (r *Repository) GetRewardByID(ctx context.Context, rewardID uint) (*models.Reward, error) {
	var reward models.Reward
	err := r.db.WithContext(ctx).Where("id = ?", rewardID).First(&reward).Error
	if err != nil {
		return nil, err
	}
	return &reward, nil
}

func (r *Repository) SaveReward(ctx context.Context, reward *models.Reward) error {
	return r.db.WithContext(ctx).Save(reward).Error
}

func (r *Repository) GetRewardsByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.Reward, error) {
	var rewards []*models.Reward
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rewards).Error
	if err != nil {
		return nil, err
	}
	return rewards, nil
}

func (r *Repository) GetRewardsByMarket(ctx context.Context, marketID uint) ([]*models.Reward, error) {
	var rewards []*models.Reward
	err := r.db.WithContext(ctx).
		Where("market_id = ?", marketID).
		Order("id ASC").
		Find(&rewards).Error
	if err != nil {
		return nil, err
	}
	return rewards, nil
}

func (r *Repository) ListPendingRewards(ctx context.Context, limit int) ([]*models.Reward, error) {
	var rewards []*models.Reward
	err := r.db.WithContext(ctx).
		Where("status = ?", models.RewardStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rewards).Error
	if err != nil {
		return nil, err
	}
	return rewards, nil
}

// ============================================================================
// Transactions (ledger)
// ============================================================================

func (r *Repository) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *Repository) GetTransactionByID(ctx context.Context, txID uint) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).Where("id = ?", txID).First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *Repository) GetTransactionsByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *Repository) GetTransactionsByReference(ctx context.Context, referenceID string) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	err := r.db.WithContext(ctx).
		Where("reference_id = ?", referenceID).
		Order("id ASC").
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *Repository) ListPendingTransactions(ctx context.Context, types []models.TransactionType, limit int) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	q := r.db.WithContext(ctx).Where("status = ?", models.TransactionStatusPending)
	if len(types) > 0 {
		q = q.Where("type IN ?", types)
	}
	err := q.Order("created_at ASC").Limit(limit).Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// SettleTransactionStatus moves a ledger row out of PENDING exactly once.
// The guard keeps completed or failed rows from ever being reopened or
// double-applied. Returns false when the row was not PENDING.
func (r *Repository) SettleTransactionStatus(
	ctx context.Context,
	txID uint,
	to models.TransactionStatus,
	extra map[string]interface{},
) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	res := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", txID, models.TransactionStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
