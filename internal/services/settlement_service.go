package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"predictpix/internal/models"
	"predictpix/internal/notify"
	"predictpix/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// rewardScale is the fixed-point scale of reward amounts. Winner shares are
// always rounded DOWN to this scale so the distributed total can never
// exceed the pool.
const rewardScale = 6

// SettlementService transforms one CLOSED market with a recorded outcome
// into SETTLED: every winner paid its proportional share of the pool after
// fees, every loser marked, fee transactions written, all inside a single
// database transaction.
type SettlementService struct {
	repo      *repository.Repository
	publisher notify.Publisher
	log       *logrus.Logger
}

func NewSettlementService(repo *repository.Repository, publisher notify.Publisher, log *logrus.Logger) *SettlementService {
	return &SettlementService{
		repo:      repo,
		publisher: publisher,
		log:       log,
	}
}

// SettlementResult summarizes what one settlement run did.
type SettlementResult struct {
	MarketID         uint            `json:"market_id"`
	CorrectOutcome   models.Outcome  `json:"correct_outcome"`
	TotalPool        decimal.Decimal `json:"total_pool"`
	WinningPool      decimal.Decimal `json:"winning_pool"`
	Distributable    decimal.Decimal `json:"distributable"`
	TotalDistributed decimal.Decimal `json:"total_distributed"`
	PlatformFee      decimal.Decimal `json:"platform_fee"`
	CreatorFee       decimal.Decimal `json:"creator_fee"`
	UnclaimedPool    decimal.Decimal `json:"unclaimed_pool"`
	WinnerCount      int             `json:"winner_count"`
	LoserCount       int             `json:"loser_count"`
	RewardIDs        []uint          `json:"reward_ids"`
}

// Settle settles one market. Preconditions: status CLOSED and a valid
// correct outcome; anything else fails with ErrInvalidState and no effects.
// The status transition is a compare-and-swap, so of two concurrent calls
// exactly one proceeds and the other reports ErrInvalidState. Any failure
// rolls the whole settlement back and leaves the market CLOSED for retry.
func (s *SettlementService) Settle(ctx context.Context, marketID uint) (*SettlementResult, error) {
	var result *SettlementResult

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		market, err := tx.GetMarketByID(ctx, marketID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("market %d: %w", marketID, ErrNotFound)
			}
			return fmt.Errorf("failed to load market %d: %w", marketID, err)
		}

		if market.Status != models.MarketStatusClosed {
			return fmt.Errorf("market %d is %s, not CLOSED: %w", marketID, market.Status, ErrInvalidState)
		}
		if market.CorrectOutcome == nil || !market.CorrectOutcome.Valid() {
			return fmt.Errorf("market %d has no correct outcome: %w", marketID, ErrInvalidState)
		}

		res, err := s.settleLocked(ctx, tx, market)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"market_id":   result.MarketID,
		"outcome":     result.CorrectOutcome,
		"winners":     result.WinnerCount,
		"losers":      result.LoserCount,
		"distributed": result.TotalDistributed,
	}).Info("market settled")

	s.publisher.Publish(notify.Event{
		Name: notify.EventMarketSettled,
		Payload: map[string]any{
			"market_id":       result.MarketID,
			"correct_outcome": result.CorrectOutcome,
			"winner_count":    result.WinnerCount,
		},
	})

	return result, nil
}

// SettleByAdmin settles ahead of the resolution time on an admin's
// explicit request. The lifecycle driver uses Settle directly.
func (s *SettlementService) SettleByAdmin(ctx context.Context, adminID, marketID uint) (*SettlementResult, error) {
	if err := requireAdmin(ctx, s.repo, adminID); err != nil {
		return nil, err
	}
	return s.Settle(ctx, marketID)
}

func (s *SettlementService) settleLocked(ctx context.Context, tx *repository.Repository, market *models.Market) (*SettlementResult, error) {
	outcome := *market.CorrectOutcome
	now := time.Now().UTC()

	// Claim the market first. The conditional transition is the settlement
	// lock: a concurrent duplicate loses here before any money moves.
	audit := models.AppendAudit(market.Audit, "settlement_engine", "settled", map[string]any{
		"correct_outcome": outcome,
		"total_pool":      market.TotalPool.String(),
	})
	claimed, err := tx.TransitionMarketStatus(ctx, market.ID,
		models.MarketStatusClosed, models.MarketStatusSettled,
		map[string]interface{}{
			"settled_at": now,
			"audit":      audit,
		})
	if err != nil {
		return nil, fmt.Errorf("failed to transition market %d: %w", market.ID, err)
	}
	if !claimed {
		return nil, fmt.Errorf("market %d already claimed for settlement: %w", market.ID, ErrInvalidState)
	}

	predictions, err := tx.GetPredictionsByMarket(ctx, market.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load predictions for market %d: %w", market.ID, err)
	}

	// Partition by outcome. Cancelled predictions were already refunded and
	// their stake removed from the pools; they take no part in settlement.
	var winners, losers []*models.Prediction
	winningPool := decimal.Zero
	for _, p := range predictions {
		if p.Status == models.PredictionStatusCancelled {
			continue
		}
		if p.PredictedOutcome == outcome {
			winners = append(winners, p)
			winningPool = winningPool.Add(p.Amount)
		} else {
			losers = append(losers, p)
		}
	}

	platformFee := feeAmount(market.TotalPool, market.PlatformFeePercentage)
	creatorFee := feeAmount(market.TotalPool, market.CreatorFeePercentage)
	distributable := market.TotalPool.Sub(platformFee).Sub(creatorFee)

	result := &SettlementResult{
		MarketID:       market.ID,
		CorrectOutcome: outcome,
		TotalPool:      market.TotalPool,
		WinningPool:    winningPool,
		Distributable:  distributable,
		PlatformFee:    platformFee,
		CreatorFee:     creatorFee,
		LoserCount:     len(losers),
	}

	if winningPool.IsPositive() {
		for _, p := range winners {
			if err := s.payWinner(ctx, tx, market, p, winningPool, distributable, result); err != nil {
				return nil, err
			}
		}
	} else {
		// Nobody predicted correctly: everything after fees reverts to the
		// platform treasury, recorded as its own ledger row so the money is
		// accounted for instead of silently forfeited.
		result.UnclaimedPool = distributable
		if distributable.IsPositive() {
			unclaimedTx := &models.Transaction{
				Type:        models.TransactionTypeFee,
				Amount:      distributable,
				Status:      models.TransactionStatusCompleted,
				ReferenceID: fmt.Sprintf("market_%d_unclaimed_pool", market.ID),
				Audit: models.AppendAudit(nil, "settlement_engine", "unclaimed_pool_reverted", map[string]any{
					"market_id":       market.ID,
					"correct_outcome": outcome,
				}),
			}
			if err := tx.CreateTransaction(ctx, unclaimedTx); err != nil {
				return nil, fmt.Errorf("failed to record unclaimed pool for market %d: %w", market.ID, err)
			}
		}
	}

	if err := tx.MarkLosingPredictions(ctx, market.ID, outcome); err != nil {
		return nil, fmt.Errorf("failed to mark losing predictions for market %d: %w", market.ID, err)
	}

	if err := s.distributeFees(ctx, tx, market, platformFee, creatorFee); err != nil {
		return nil, err
	}

	return result, nil
}

// payWinner computes one winner's proportional share, credits the balance
// and writes the WINNINGS transaction and the Reward row.
func (s *SettlementService) payWinner(
	ctx context.Context,
	tx *repository.Repository,
	market *models.Market,
	prediction *models.Prediction,
	winningPool, distributable decimal.Decimal,
	result *SettlementResult,
) error {
	// share = (amount / winning_pool) * distributable, floored at 6 decimal
	// places. Multiplying before dividing keeps one rounding step; flooring
	// guarantees the residual dust stays in the pool instead of being
	// over-distributed.
	share := prediction.Amount.Mul(distributable).Div(winningPool).RoundDown(rewardScale)

	multiplier := 0.0
	if prediction.Amount.IsPositive() {
		multiplier, _ = share.Div(prediction.Amount).Float64()
	}

	if err := tx.UpdatePredictionSettlement(ctx, prediction.ID, models.PredictionStatusWon, share); err != nil {
		return fmt.Errorf("failed to mark prediction %d won: %w", prediction.ID, err)
	}

	if err := tx.CreditBalance(ctx, prediction.UserID, share); err != nil {
		return fmt.Errorf("failed to credit winnings to user %d: %w", prediction.UserID, err)
	}

	winTx := &models.Transaction{
		UserID:      &prediction.UserID,
		Type:        models.TransactionTypeWinnings,
		Amount:      share,
		Status:      models.TransactionStatusCompleted,
		ReferenceID: fmt.Sprintf("market_%d_prediction_%d_winnings", market.ID, prediction.ID),
		Audit: models.AppendAudit(nil, "settlement_engine", "winnings_credited", map[string]any{
			"market_id":         market.ID,
			"prediction_id":     prediction.ID,
			"original_bet":      prediction.Amount.String(),
			"winning_outcome":   *market.CorrectOutcome,
			"reward_multiplier": multiplier,
		}),
	}
	if err := tx.CreateTransaction(ctx, winTx); err != nil {
		return fmt.Errorf("failed to create winnings transaction for prediction %d: %w", prediction.ID, err)
	}

	reward := &models.Reward{
		UserID:                   prediction.UserID,
		PredictionID:             prediction.ID,
		MarketID:                 market.ID,
		Amount:                   share,
		OriginalPredictionAmount: prediction.Amount,
		RewardMultiplier:         multiplier,
		Status:                   models.RewardStatusPending,
		TransactionID:            &winTx.ID,
		Audit: models.AppendAudit(nil, "settlement_engine", "reward_created", map[string]any{
			"market_title":    market.Title,
			"winning_outcome": *market.CorrectOutcome,
			"total_pool":      market.TotalPool.String(),
			"winning_pool":    winningPool.String(),
			"platform_fee":    market.PlatformFeePercentage.String(),
			"creator_fee":     market.CreatorFeePercentage.String(),
		}),
	}
	if err := tx.CreateReward(ctx, reward); err != nil {
		return fmt.Errorf("failed to create reward for prediction %d: %w", prediction.ID, err)
	}

	result.WinnerCount++
	result.TotalDistributed = result.TotalDistributed.Add(share)
	result.RewardIDs = append(result.RewardIDs, reward.ID)
	return nil
}

// distributeFees writes the platform fee row (treasury, no user credit) and
// the creator fee row (credited to the market creator's balance).
func (s *SettlementService) distributeFees(
	ctx context.Context,
	tx *repository.Repository,
	market *models.Market,
	platformFee, creatorFee decimal.Decimal,
) error {
	platformTx := &models.Transaction{
		Type:        models.TransactionTypeFee,
		Amount:      platformFee,
		Status:      models.TransactionStatusCompleted,
		ReferenceID: fmt.Sprintf("market_%d_platform_fee", market.ID),
		Audit: models.AppendAudit(nil, "settlement_engine", "fee_distributed", map[string]any{
			"market_id":      market.ID,
			"fee_type":       "platform",
			"fee_percentage": market.PlatformFeePercentage.String(),
		}),
	}
	if err := tx.CreateTransaction(ctx, platformTx); err != nil {
		return fmt.Errorf("failed to create platform fee transaction: %w", err)
	}

	creatorTx := &models.Transaction{
		UserID:      &market.CreatorID,
		Type:        models.TransactionTypeFee,
		Amount:      creatorFee,
		Status:      models.TransactionStatusCompleted,
		ReferenceID: fmt.Sprintf("market_%d_creator_fee", market.ID),
		Audit: models.AppendAudit(nil, "settlement_engine", "fee_distributed", map[string]any{
			"market_id":      market.ID,
			"fee_type":       "creator",
			"fee_percentage": market.CreatorFeePercentage.String(),
		}),
	}
	if err := tx.CreateTransaction(ctx, creatorTx); err != nil {
		return fmt.Errorf("failed to create creator fee transaction: %w", err)
	}

	if creatorFee.IsPositive() {
		if err := tx.CreditBalance(ctx, market.CreatorID, creatorFee); err != nil {
			return fmt.Errorf("failed to credit creator fee to user %d: %w", market.CreatorID, err)
		}
	}

	return nil
}

// feeAmount computes pool * pct / 100, floored at the reward scale so the
// fee can never push the distributed total past the pool.
func feeAmount(pool, pct decimal.Decimal) decimal.Decimal {
	return pool.Mul(pct).Div(decimal.NewFromInt(100)).RoundDown(rewardScale)
}
