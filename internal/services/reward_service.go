package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"predictpix/internal/models"
	"predictpix/internal/notify"
	"predictpix/internal/repository"

	"gorm.io/gorm"
)

// RewardService is the query and payment-execution surface of the reward
// ledger. Rewards are created only by the settlement engine; the sole
// mutation allowed here is the PENDING to PROCESSED/FAILED move driven by
// the payment processor.
type RewardService struct {
	repo      *repository.Repository
	publisher notify.Publisher
}

func NewRewardService(repo *repository.Repository, publisher notify.Publisher) *RewardService {
	return &RewardService{repo: repo, publisher: publisher}
}

// ListByUser returns the user's rewards, newest first.
func (s *RewardService) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.Reward, error) {
	return s.repo.GetRewardsByUser(ctx, userID, limit, offset)
}

// ListByMarket returns every reward a settlement produced for one market.
func (s *RewardService) ListByMarket(ctx context.Context, marketID uint) ([]*models.Reward, error) {
	return s.repo.GetRewardsByMarket(ctx, marketID)
}

// ListPending returns rewards awaiting payment execution.
func (s *RewardService) ListPending(ctx context.Context, limit int) ([]*models.Reward, error) {
	return s.repo.ListPendingRewards(ctx, limit)
}

// MarkProcessed records a successful external payout for a PENDING reward.
func (s *RewardService) MarkProcessed(ctx context.Context, rewardID uint, paymentID string) error {
	if err := s.finish(ctx, rewardID, models.RewardStatusProcessed, paymentID, ""); err != nil {
		return err
	}
	s.publisher.Publish(notify.Event{
		Name:    notify.EventRewardProcessed,
		Payload: map[string]any{"reward_id": rewardID, "payment_id": paymentID},
	})
	return nil
}

// MarkFailed records a failed external payout. The reward stays auditable;
// settled balances are never unwound.
func (s *RewardService) MarkFailed(ctx context.Context, rewardID uint, reason string) error {
	return s.finish(ctx, rewardID, models.RewardStatusFailed, "", reason)
}

func (s *RewardService) finish(ctx context.Context, rewardID uint, status models.RewardStatus, paymentID, reason string) error {
	return s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		reward, err := tx.GetRewardByID(ctx, rewardID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("reward %d: %w", rewardID, ErrNotFound)
			}
			return fmt.Errorf("failed to load reward %d: %w", rewardID, err)
		}
		if reward.Status != models.RewardStatusPending {
			return fmt.Errorf("reward %d is %s, not PENDING: %w", rewardID, reward.Status, ErrInvalidState)
		}

		detail := map[string]any{}
		if paymentID != "" {
			detail["payment_id"] = paymentID
		}
		if reason != "" {
			detail["reason"] = reason
		}

		reward.Status = status
		reward.Audit = models.AppendAudit(reward.Audit, "payment_processor", "payment_"+string(status), detail)
		if status == models.RewardStatusProcessed {
			now := time.Now().UTC()
			reward.ProcessedAt = &now
		}

		if err := tx.SaveReward(ctx, reward); err != nil {
			return fmt.Errorf("failed to update reward %d: %w", rewardID, err)
		}
		return nil
	})
}
