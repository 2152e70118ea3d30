package jobs

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"predictpix/internal/config"
	"predictpix/internal/models"
	"predictpix/internal/notify"
	"predictpix/internal/payments"
	"predictpix/internal/repository"
	"predictpix/internal/services"
)

type testEnv struct {
	db           *gorm.DB
	repo         *repository.Repository
	markets      *services.MarketService
	predictions  *services.PredictionService
	settlement   *services.SettlementService
	rewards      *services.RewardService
	transactions *services.TransactionService
	rail         payments.Rail
	log          *logrus.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	err = db.AutoMigrate(
		&models.User{},
		&models.Market{},
		&models.Prediction{},
		&models.Transaction{},
		&models.Reward{},
	)
	if err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := config.MarketConfig{
		MinPredictionAmount:   decimal.NewFromInt(1),
		MaxPredictionAmount:   decimal.NewFromInt(1000),
		PlatformFeePercentage: decimal.NewFromInt(2),
		CreatorFeePercentage:  decimal.NewFromInt(1),
		MinResolutionDelay:    time.Hour,
	}

	repo := repository.NewRepository(db)
	rail := payments.NewLocalRail(log)

	return &testEnv{
		db:           db,
		repo:         repo,
		markets:      services.NewMarketService(repo, cfg, notify.NopPublisher{}, log),
		predictions:  services.NewPredictionService(repo, cfg, services.NewReferralService(repo, log), log),
		settlement:   services.NewSettlementService(repo, notify.NopPublisher{}, log),
		rewards:      services.NewRewardService(repo, notify.NopPublisher{}),
		transactions: services.NewTransactionService(repo, rail, log),
		rail:         rail,
		log:          log,
	}
}

func (e *testEnv) createUser(t *testing.T, username string, balance decimal.Decimal) *models.User {
	t.Helper()
	user := &models.User{
		Username: username,
		Role:     models.UserRoleUser,
		Balance:  balance,
		IsActive: true,
	}
	if err := e.db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return user
}

func (e *testEnv) createAdmin(t *testing.T, username string) *models.User {
	t.Helper()
	user := &models.User{
		Username: username,
		Role:     models.UserRoleAdmin,
		Balance:  decimal.Zero,
		IsActive: true,
	}
	if err := e.db.Create(user).Error; err != nil {
		t.Fatalf("failed to create admin %s: %v", username, err)
	}
	return user
}

func (e *testEnv) createMarket(t *testing.T, creatorID uint, status models.MarketStatus, endTime, resolutionTime time.Time, outcome *models.Outcome) *models.Market {
	t.Helper()
	market := &models.Market{
		CreatorID:             creatorID,
		Title:                 "lifecycle market",
		EndTime:               endTime,
		ResolutionTime:        resolutionTime,
		Status:                status,
		CorrectOutcome:        outcome,
		CreatorFeePercentage:  decimal.NewFromInt(1),
		PlatformFeePercentage: decimal.NewFromInt(2),
	}
	if err := e.db.Create(market).Error; err != nil {
		t.Fatalf("failed to create market: %v", err)
	}
	return market
}

func (e *testEnv) stake(t *testing.T, userID, marketID uint, outcome models.Outcome, amount decimal.Decimal) {
	t.Helper()
	prediction := &models.Prediction{
		UserID:           userID,
		MarketID:         marketID,
		Amount:           amount,
		PredictedOutcome: outcome,
		Status:           models.PredictionStatusActive,
	}
	if err := e.db.Create(prediction).Error; err != nil {
		t.Fatalf("failed to create prediction: %v", err)
	}
	sideColumn := "no_pool"
	if outcome == models.OutcomeYes {
		sideColumn = "yes_pool"
	}
	err := e.db.Model(&models.Market{}).
		Where("id = ?", marketID).
		Updates(map[string]interface{}{
			"total_pool": gorm.Expr("total_pool + ?", amount),
			sideColumn:   gorm.Expr(sideColumn+" + ?", amount),
		}).Error
	if err != nil {
		t.Fatalf("failed to seed pools: %v", err)
	}
}

func (e *testEnv) marketStatus(t *testing.T, marketID uint) models.MarketStatus {
	t.Helper()
	var market models.Market
	if err := e.db.First(&market, marketID).Error; err != nil {
		t.Fatalf("failed to reload market %d: %v", marketID, err)
	}
	return market.Status
}

func outcomePtr(o models.Outcome) *models.Outcome {
	return &o
}
