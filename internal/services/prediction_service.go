package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"predictpix/internal/config"
	"predictpix/internal/models"
	"predictpix/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PredictionService places and cancels stakes. Placement is a single
// transaction covering the balance debit, the pool increments and the
// ledger row, so a partially applied bet cannot exist.
type PredictionService struct {
	repo      *repository.Repository
	cfg       config.MarketConfig
	referrals *ReferralService
	log       *logrus.Logger
}

func NewPredictionService(repo *repository.Repository, cfg config.MarketConfig, referrals *ReferralService, log *logrus.Logger) *PredictionService {
	return &PredictionService{
		repo:      repo,
		cfg:       cfg,
		referrals: referrals,
		log:       log,
	}
}

// Place stakes amount on one side of an ACTIVE market.
func (s *PredictionService) Place(
	ctx context.Context,
	userID uint,
	marketID uint,
	outcome models.Outcome,
	amount decimal.Decimal,
) (*models.Prediction, error) {
	if !outcome.Valid() {
		return nil, validationErr("predicted_outcome", `must be either "YES" or "NO"`)
	}
	if !amount.IsPositive() {
		return nil, validationErr("amount", "must be positive")
	}
	if amount.LessThan(s.cfg.MinPredictionAmount) {
		return nil, validationErr("amount", fmt.Sprintf("minimum prediction amount is %s", s.cfg.MinPredictionAmount))
	}
	if amount.GreaterThan(s.cfg.MaxPredictionAmount) {
		return nil, validationErr("amount", fmt.Sprintf("maximum prediction amount is %s", s.cfg.MaxPredictionAmount))
	}

	var prediction *models.Prediction

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		market, err := tx.GetMarketByID(ctx, marketID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("market %d: %w", marketID, ErrNotFound)
			}
			return fmt.Errorf("failed to load market %d: %w", marketID, err)
		}

		now := time.Now().UTC()
		if market.Status != models.MarketStatusActive {
			return fmt.Errorf("market %d is %s: %w", marketID, market.Status, ErrInvalidState)
		}
		if !now.Before(market.EndTime) {
			return fmt.Errorf("market %d is past its end time: %w", marketID, ErrInvalidState)
		}

		if _, err := tx.GetUserByID(ctx, userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("user %d: %w", userID, ErrNotFound)
			}
			return fmt.Errorf("failed to load user %d: %w", userID, err)
		}

		debited, err := tx.DebitBalance(ctx, userID, amount)
		if err != nil {
			return fmt.Errorf("failed to debit user %d: %w", userID, err)
		}
		if !debited {
			return fmt.Errorf("user %d cannot cover %s: %w", userID, amount, ErrInsufficientBalance)
		}

		// The guarded increment re-checks ACTIVE + end_time in the same
		// statement, so a bet can never land on a market the lifecycle
		// driver closed between our read and this write.
		staked, err := tx.IncrementPools(ctx, marketID, outcome, amount, now)
		if err != nil {
			return fmt.Errorf("failed to update pools for market %d: %w", marketID, err)
		}
		if !staked {
			return fmt.Errorf("market %d no longer accepts predictions: %w", marketID, ErrInvalidState)
		}

		prediction = &models.Prediction{
			UserID:           userID,
			MarketID:         marketID,
			Amount:           amount,
			PredictedOutcome: outcome,
			Status:           models.PredictionStatusActive,
		}
		if err := tx.CreatePrediction(ctx, prediction); err != nil {
			return fmt.Errorf("failed to create prediction: %w", err)
		}

		stakeTx := &models.Transaction{
			UserID:      &userID,
			Type:        models.TransactionTypePrediction,
			Amount:      amount,
			Status:      models.TransactionStatusCompleted,
			ReferenceID: fmt.Sprintf("market_%d_prediction_%d", marketID, prediction.ID),
			Audit: models.AppendAudit(nil, fmt.Sprintf("user:%d", userID), "stake_placed", map[string]any{
				"market_id":         marketID,
				"prediction_id":     prediction.ID,
				"predicted_outcome": outcome,
			}),
		}
		if err := tx.CreateTransaction(ctx, stakeTx); err != nil {
			return fmt.Errorf("failed to create stake transaction: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	// Rebates are a courtesy credit on top of the stake, so a failure here
	// never unwinds the placed bet.
	if err := s.referrals.ProcessStakeRebate(ctx, prediction); err != nil {
		s.log.WithError(err).WithField("prediction_id", prediction.ID).Warn("referral rebate failed")
	}

	s.log.WithFields(logrus.Fields{
		"user_id":   userID,
		"market_id": marketID,
		"outcome":   outcome,
		"amount":    amount,
	}).Info("prediction placed")

	return prediction, nil
}

// Cancel withdraws the caller's own prediction while the market is still
// ACTIVE, refunding the stake and removing it from the pools.
func (s *PredictionService) Cancel(ctx context.Context, userID, predictionID uint) (*models.Prediction, error) {
	var cancelled *models.Prediction

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		prediction, err := tx.GetPredictionByID(ctx, predictionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("prediction %d: %w", predictionID, ErrNotFound)
			}
			return fmt.Errorf("failed to load prediction %d: %w", predictionID, err)
		}
		if prediction.UserID != userID {
			return fmt.Errorf("prediction %d: %w", predictionID, ErrNotFound)
		}
		if prediction.Status.Terminal() {
			return fmt.Errorf("prediction %d is already %s: %w", predictionID, prediction.Status, ErrInvalidState)
		}

		// Only an ACTIVE market still holds the stake in its pools; the
		// guarded decrement rejects the cancel once the market moved on.
		removed, err := tx.DecrementPools(ctx, prediction.MarketID, prediction.PredictedOutcome, prediction.Amount)
		if err != nil {
			return fmt.Errorf("failed to update pools for market %d: %w", prediction.MarketID, err)
		}
		if !removed {
			return fmt.Errorf("market %d no longer allows cancellation: %w", prediction.MarketID, ErrInvalidState)
		}

		prediction.Status = models.PredictionStatusCancelled
		if err := tx.SavePrediction(ctx, prediction); err != nil {
			return fmt.Errorf("failed to cancel prediction %d: %w", predictionID, err)
		}

		if err := tx.CreditBalance(ctx, userID, prediction.Amount); err != nil {
			return fmt.Errorf("failed to refund user %d: %w", userID, err)
		}

		refundTx := &models.Transaction{
			UserID:      &userID,
			Type:        models.TransactionTypeRefund,
			Amount:      prediction.Amount,
			Status:      models.TransactionStatusCompleted,
			ReferenceID: fmt.Sprintf("market_%d_prediction_%d_refund", prediction.MarketID, prediction.ID),
			Audit: models.AppendAudit(nil, fmt.Sprintf("user:%d", userID), "stake_refunded", map[string]any{
				"market_id":     prediction.MarketID,
				"prediction_id": prediction.ID,
			}),
		}
		if err := tx.CreateTransaction(ctx, refundTx); err != nil {
			return fmt.Errorf("failed to create refund transaction: %w", err)
		}

		cancelled = prediction
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cancelled, nil
}

// GetByID returns one of the user's predictions.
func (s *PredictionService) GetByID(ctx context.Context, userID, predictionID uint) (*models.Prediction, error) {
	prediction, err := s.repo.GetPredictionByID(ctx, predictionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("prediction %d: %w", predictionID, ErrNotFound)
		}
		return nil, err
	}
	if prediction.UserID != userID {
		return nil, fmt.Errorf("prediction %d: %w", predictionID, ErrNotFound)
	}
	return prediction, nil
}

// ListByUser returns the user's predictions, newest first.
func (s *PredictionService) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.Prediction, error) {
	return s.repo.GetPredictionsByUser(ctx, userID, limit, offset)
}
