package services

import (
	"context"
	"errors"
	"fmt"

	"predictpix/internal/models"
	"predictpix/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// referralRebatePercentage is the platform-funded cut of each stake a
// referred user places, credited to their referrer. It is paid out of the
// platform's fee income, never out of the market pools, so settlement math
// is unaffected.
var referralRebatePercentage = decimal.RequireFromString("0.5")

// ReferralService links users to the referrer who brought them in and pays
// the referrer a rebate on every stake the referred user places.
type ReferralService struct {
	repo *repository.Repository
	log  *logrus.Logger
}

func NewReferralService(repo *repository.Repository, log *logrus.Logger) *ReferralService {
	return &ReferralService{
		repo: repo,
		log:  log,
	}
}

// Link records referrerID as the referrer of userID. A user links at most
// once and never to themselves.
func (s *ReferralService) Link(ctx context.Context, userID, referrerID uint) error {
	if userID == referrerID {
		return validationErr("referrer_id", "cannot refer yourself")
	}

	if _, err := s.repo.GetUserByID(ctx, referrerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("user %d: %w", referrerID, ErrNotFound)
		}
		return fmt.Errorf("failed to load user %d: %w", referrerID, err)
	}
	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		return fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	linked, err := s.repo.SetUserReferrer(ctx, userID, referrerID)
	if err != nil {
		return fmt.Errorf("failed to link referrer for user %d: %w", userID, err)
	}
	if !linked {
		return fmt.Errorf("user %d already has a referrer: %w", userID, ErrInvalidState)
	}

	s.log.WithFields(logrus.Fields{
		"user_id":     userID,
		"referrer_id": referrerID,
	}).Info("referrer linked")
	return nil
}

// ProcessStakeRebate credits the bettor's referrer their cut of a placed
// stake. Most users have no referrer, which is not an error.
func (s *ReferralService) ProcessStakeRebate(ctx context.Context, prediction *models.Prediction) error {
	bettor, err := s.repo.GetUserByID(ctx, prediction.UserID)
	if err != nil {
		return fmt.Errorf("failed to load user %d: %w", prediction.UserID, err)
	}
	if bettor.ReferrerID == nil {
		return nil
	}

	rebate := prediction.Amount.Mul(referralRebatePercentage).
		Div(decimal.NewFromInt(100)).RoundDown(rewardScale)
	if !rebate.IsPositive() {
		return nil
	}

	referrerID := *bettor.ReferrerID
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.CreditBalance(ctx, referrerID, rebate); err != nil {
			return fmt.Errorf("failed to credit rebate to user %d: %w", referrerID, err)
		}

		rebateTx := &models.Transaction{
			UserID:      &referrerID,
			Type:        models.TransactionTypeReferral,
			Amount:      rebate,
			Status:      models.TransactionStatusCompleted,
			ReferenceID: fmt.Sprintf("prediction_%d_referral_rebate", prediction.ID),
			Audit: models.AppendAudit(nil, "referral_engine", "rebate_credited", map[string]any{
				"prediction_id":     prediction.ID,
				"referred_user_id":  prediction.UserID,
				"rebate_percentage": referralRebatePercentage.String(),
			}),
		}
		return tx.CreateTransaction(ctx, rebateTx)
	})
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"referrer_id":   referrerID,
		"prediction_id": prediction.ID,
		"rebate":        rebate,
	}).Info("referral rebate credited")
	return nil
}
