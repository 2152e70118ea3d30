package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"predictpix/internal/config"
	"predictpix/internal/models"
	"predictpix/internal/notify"
	"predictpix/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// maxPendingMarketsPerCreator caps how many unapproved markets one user can
// queue up.
const maxPendingMarketsPerCreator = 5

// MarketService owns the market state machine outside of settlement:
// creation, approval, rejection, closing, cancellation with refunds, and
// recording the resolved outcome.
type MarketService struct {
	repo      *repository.Repository
	cfg       config.MarketConfig
	publisher notify.Publisher
	log       *logrus.Logger
}

func NewMarketService(repo *repository.Repository, cfg config.MarketConfig, publisher notify.Publisher, log *logrus.Logger) *MarketService {
	return &MarketService{
		repo:      repo,
		cfg:       cfg,
		publisher: publisher,
		log:       log,
	}
}

// CreateMarketInput carries the caller-supplied fields of a new market.
type CreateMarketInput struct {
	Title                 string
	Description           string
	EndTime               time.Time
	ResolutionTime        time.Time
	CreatorFeePercentage  *decimal.Decimal
	PlatformFeePercentage *decimal.Decimal
}

// Create validates timing and fees and inserts a PENDING market. Markets
// created by admins are approved automatically.
func (s *MarketService) Create(ctx context.Context, creatorID uint, input CreateMarketInput) (*models.Market, error) {
	now := time.Now().UTC()

	if input.Title == "" {
		return nil, validationErr("title", "must not be empty")
	}
	if !input.EndTime.After(now) {
		return nil, validationErr("end_time", "must be in the future")
	}
	if input.ResolutionTime.Before(input.EndTime.Add(s.cfg.MinResolutionDelay)) {
		return nil, validationErr("resolution_time",
			fmt.Sprintf("must be at least %s after end time", s.cfg.MinResolutionDelay))
	}

	creatorFee := s.cfg.CreatorFeePercentage
	if input.CreatorFeePercentage != nil {
		creatorFee = *input.CreatorFeePercentage
	}
	platformFee := s.cfg.PlatformFeePercentage
	if input.PlatformFeePercentage != nil {
		platformFee = *input.PlatformFeePercentage
	}
	maxFee := decimal.NewFromInt(5)
	if creatorFee.IsNegative() || creatorFee.GreaterThan(maxFee) {
		return nil, validationErr("creator_fee_percentage", "must be in [0,5]")
	}
	if platformFee.IsNegative() || platformFee.GreaterThan(maxFee) {
		return nil, validationErr("platform_fee_percentage", "must be in [0,5]")
	}

	var market *models.Market

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		creator, err := tx.GetUserByID(ctx, creatorID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("user %d: %w", creatorID, ErrNotFound)
			}
			return fmt.Errorf("failed to load user %d: %w", creatorID, err)
		}

		pending, err := tx.CountPendingMarketsByCreator(ctx, creatorID)
		if err != nil {
			return fmt.Errorf("failed to count pending markets: %w", err)
		}
		if pending >= maxPendingMarketsPerCreator {
			return validationErr("creator",
				fmt.Sprintf("cannot have more than %d pending markets", maxPendingMarketsPerCreator))
		}

		actor := fmt.Sprintf("user:%d", creatorID)
		market = &models.Market{
			CreatorID:             creatorID,
			Title:                 input.Title,
			Description:           input.Description,
			EndTime:               input.EndTime,
			ResolutionTime:        input.ResolutionTime,
			Status:                models.MarketStatusPending,
			CreatorFeePercentage:  creatorFee,
			PlatformFeePercentage: platformFee,
			Audit:                 models.AppendAudit(nil, actor, "created", nil),
		}

		if creator.Role == models.UserRoleAdmin {
			market.Status = models.MarketStatusActive
			market.Audit = models.AppendAudit(market.Audit, actor, "auto_approved", map[string]any{
				"approval_type": "auto_admin",
			})
		}

		if err := tx.CreateMarket(ctx, market); err != nil {
			return fmt.Errorf("failed to create market: %w", err)
		}

		creationTx := &models.Transaction{
			UserID:      &creatorID,
			Type:        models.TransactionTypeMarketCreation,
			Amount:      decimal.Zero,
			Status:      models.TransactionStatusCompleted,
			ReferenceID: fmt.Sprintf("market_%d_creation", market.ID),
			Audit:       models.AppendAudit(nil, actor, "market_created", map[string]any{"market_id": market.ID}),
		}
		if err := tx.CreateTransaction(ctx, creationTx); err != nil {
			return fmt.Errorf("failed to record market creation: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(notify.Event{
		Name:    notify.EventMarketCreated,
		Payload: map[string]any{"market_id": market.ID, "status": market.Status},
	})

	return market, nil
}

// requireAdmin verifies the caller holds the ADMIN role. Identity comes
// from upstream, but lifecycle transitions stay admin operations here.
func requireAdmin(ctx context.Context, repo *repository.Repository, userID uint) error {
	user, err := repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		return fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	if user.Role != models.UserRoleAdmin {
		return fmt.Errorf("user %d has role %s: %w", userID, user.Role, ErrForbidden)
	}
	return nil
}

// Approve transitions a PENDING market to ACTIVE.
func (s *MarketService) Approve(ctx context.Context, adminID, marketID uint) error {
	if err := requireAdmin(ctx, s.repo, adminID); err != nil {
		return err
	}
	market, err := s.getMarket(ctx, marketID)
	if err != nil {
		return err
	}
	if market.Status != models.MarketStatusPending {
		return fmt.Errorf("market %d is %s, not PENDING: %w", marketID, market.Status, ErrInvalidState)
	}

	audit := models.AppendAudit(market.Audit, fmt.Sprintf("admin:%d", adminID), "approved", nil)
	approved, err := s.repo.TransitionMarketStatus(ctx, marketID,
		models.MarketStatusPending, models.MarketStatusActive,
		map[string]interface{}{"audit": audit})
	if err != nil {
		return fmt.Errorf("failed to approve market %d: %w", marketID, err)
	}
	if !approved {
		return fmt.Errorf("market %d left PENDING concurrently: %w", marketID, ErrInvalidState)
	}

	s.publisher.Publish(notify.Event{
		Name:    notify.EventMarketApproved,
		Payload: map[string]any{"market_id": marketID},
	})
	return nil
}

// Reject cancels a PENDING market and refunds any stakes on it.
func (s *MarketService) Reject(ctx context.Context, adminID, marketID uint) error {
	return s.cancelWithRefunds(ctx, adminID, marketID, models.MarketStatusPending, "rejected")
}

// CancelActive cancels an ACTIVE market and refunds every non-terminal
// prediction on it.
func (s *MarketService) CancelActive(ctx context.Context, adminID, marketID uint) error {
	return s.cancelWithRefunds(ctx, adminID, marketID, models.MarketStatusActive, "cancelled")
}

// cancelWithRefunds is the shared reject/cancel path: one transaction that
// flips the market to CANCELLED and pays every open stake back in full.
func (s *MarketService) cancelWithRefunds(
	ctx context.Context,
	adminID, marketID uint,
	expected models.MarketStatus,
	action string,
) error {
	if err := requireAdmin(ctx, s.repo, adminID); err != nil {
		return err
	}

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		market, err := tx.GetMarketByID(ctx, marketID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("market %d: %w", marketID, ErrNotFound)
			}
			return fmt.Errorf("failed to load market %d: %w", marketID, err)
		}
		if market.Status != expected {
			return fmt.Errorf("market %d is %s, not %s: %w", marketID, market.Status, expected, ErrInvalidState)
		}

		actor := fmt.Sprintf("admin:%d", adminID)
		audit := models.AppendAudit(market.Audit, actor, action, nil)
		moved, err := tx.TransitionMarketStatus(ctx, marketID, expected, models.MarketStatusCancelled,
			map[string]interface{}{"audit": audit})
		if err != nil {
			return fmt.Errorf("failed to cancel market %d: %w", marketID, err)
		}
		if !moved {
			return fmt.Errorf("market %d left %s concurrently: %w", marketID, expected, ErrInvalidState)
		}

		return s.refundOpenPredictions(ctx, tx, market, actor)
	})
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{"market_id": marketID, "action": action}).Info("market cancelled")
	s.publisher.Publish(notify.Event{
		Name:    notify.EventMarketCancelled,
		Payload: map[string]any{"market_id": marketID, "action": action},
	})
	return nil
}

// refundOpenPredictions sets every non-terminal prediction on the market to
// CANCELLED and credits its full amount back to the bettor. The market is
// being abandoned, so the pool accumulators are left as they are.
func (s *MarketService) refundOpenPredictions(
	ctx context.Context,
	tx *repository.Repository,
	market *models.Market,
	actor string,
) error {
	predictions, err := tx.ListRefundablePredictions(ctx, market.ID)
	if err != nil {
		return fmt.Errorf("failed to list refundable predictions for market %d: %w", market.ID, err)
	}

	for _, p := range predictions {
		p.Status = models.PredictionStatusCancelled
		if err := tx.SavePrediction(ctx, p); err != nil {
			return fmt.Errorf("failed to cancel prediction %d: %w", p.ID, err)
		}

		if err := tx.CreditBalance(ctx, p.UserID, p.Amount); err != nil {
			return fmt.Errorf("failed to refund user %d: %w", p.UserID, err)
		}

		refundTx := &models.Transaction{
			UserID:      &p.UserID,
			Type:        models.TransactionTypeRefund,
			Amount:      p.Amount,
			Status:      models.TransactionStatusCompleted,
			ReferenceID: fmt.Sprintf("market_%d_prediction_%d_refund", market.ID, p.ID),
			Audit: models.AppendAudit(nil, actor, "stake_refunded", map[string]any{
				"market_id":     market.ID,
				"prediction_id": p.ID,
			}),
		}
		if err := tx.CreateTransaction(ctx, refundTx); err != nil {
			return fmt.Errorf("failed to create refund transaction: %w", err)
		}
	}

	return nil
}

// Close transitions an ACTIVE market past its end time to CLOSED. Used by
// the lifecycle driver; safe to race because of the conditional update.
func (s *MarketService) Close(ctx context.Context, marketID uint) (bool, error) {
	market, err := s.getMarket(ctx, marketID)
	if err != nil {
		return false, err
	}
	if time.Now().UTC().Before(market.EndTime) {
		return false, fmt.Errorf("market %d has not reached its end time: %w", marketID, ErrInvalidState)
	}

	audit := models.AppendAudit(market.Audit, "lifecycle_driver", "closed", nil)
	closed, err := s.repo.TransitionMarketStatus(ctx, marketID,
		models.MarketStatusActive, models.MarketStatusClosed,
		map[string]interface{}{"audit": audit})
	if err != nil {
		return false, fmt.Errorf("failed to close market %d: %w", marketID, err)
	}
	if closed {
		s.publisher.Publish(notify.Event{
			Name:    notify.EventMarketClosed,
			Payload: map[string]any{"market_id": marketID},
		})
	}
	return closed, nil
}

// Resolve records the correct outcome on a CLOSED market. Settlement itself
// happens separately, once the resolution time has passed.
func (s *MarketService) Resolve(ctx context.Context, adminID, marketID uint, outcome models.Outcome) (*models.Market, error) {
	if !outcome.Valid() {
		return nil, validationErr("correct_outcome", `must be either "YES" or "NO"`)
	}
	if err := requireAdmin(ctx, s.repo, adminID); err != nil {
		return nil, err
	}

	market, err := s.getMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if market.Status != models.MarketStatusClosed {
		return nil, fmt.Errorf("market %d must be CLOSED before resolution, is %s: %w",
			marketID, market.Status, ErrInvalidState)
	}

	market.CorrectOutcome = &outcome
	market.Audit = models.AppendAudit(market.Audit, fmt.Sprintf("admin:%d", adminID), "resolved", map[string]any{
		"correct_outcome": outcome,
	})
	// Conditional write rather than a snapshot save: if settlement claimed
	// the market between our read and here, the guard rejects the outcome
	// instead of reverting the status and unlocking a second settlement.
	recorded, err := s.repo.RecordMarketOutcome(ctx, marketID, outcome, market.Audit)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve market %d: %w", marketID, err)
	}
	if !recorded {
		return nil, fmt.Errorf("market %d left CLOSED concurrently: %w", marketID, ErrInvalidState)
	}

	s.log.WithFields(logrus.Fields{"market_id": marketID, "outcome": outcome}).Info("market resolved")
	return market, nil
}

// ExpiredActive returns ACTIVE markets whose end time has passed.
func (s *MarketService) ExpiredActive(ctx context.Context) ([]*models.Market, error) {
	return s.repo.ListExpiredActiveMarkets(ctx, time.Now().UTC())
}

// DueForSettlement returns CLOSED markets past their resolution time with
// an outcome recorded.
func (s *MarketService) DueForSettlement(ctx context.Context) ([]*models.Market, error) {
	return s.repo.ListSettleableMarkets(ctx, time.Now().UTC())
}

// Get returns one market.
func (s *MarketService) Get(ctx context.Context, marketID uint) (*models.Market, error) {
	return s.getMarket(ctx, marketID)
}

// Odds returns the current odds snapshot for one market.
func (s *MarketService) Odds(ctx context.Context, marketID uint) (*MarketOdds, error) {
	market, err := s.getMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	odds := CalculateOdds(market.YesPool, market.NoPool)
	return &odds, nil
}

// List returns markets, optionally filtered by status.
func (s *MarketService) List(ctx context.Context, status *models.MarketStatus, limit, offset int) ([]*models.Market, error) {
	if status != nil {
		return s.repo.ListMarketsByStatus(ctx, *status, limit, offset)
	}
	return s.repo.ListMarkets(ctx, limit, offset)
}

func (s *MarketService) getMarket(ctx context.Context, marketID uint) (*models.Market, error) {
	market, err := s.repo.GetMarketByID(ctx, marketID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("market %d: %w", marketID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load market %d: %w", marketID, err)
	}
	return market, nil
}
