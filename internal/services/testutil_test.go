package services

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
	"predictpix/internal/repository"
)

// setupTestDB opens a per-test in-memory database. The name is derived from
// the test so parallel tests never share state.
func setupTestDB(t *testing.T) *gorm.DB {
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

	return db
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testMarketConfig() config.MarketConfig {
	return config.MarketConfig{
		MinPredictionAmount:   decimal.NewFromInt(1),
		MaxPredictionAmount:   decimal.NewFromInt(1000),
		PlatformFeePercentage: decimal.NewFromInt(2),
		CreatorFeePercentage:  decimal.NewFromInt(1),
		MinResolutionDelay:    time.Hour,
	}
}

func createTestUser(t *testing.T, db *gorm.DB, username string, balance decimal.Decimal) *models.User {
	t.Helper()
	user := &models.User{
		Username: username,
		Role:     models.UserRoleUser,
		Balance:  balance,
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return user
}

func createTestAdmin(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{
		Username: username,
		Role:     models.UserRoleAdmin,
		Balance:  decimal.Zero,
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create admin %s: %v", username, err)
	}
	return user
}

func createTestMarket(t *testing.T, db *gorm.DB, creatorID uint, status models.MarketStatus, endTime, resolutionTime time.Time) *models.Market {
	t.Helper()
	market := &models.Market{
		CreatorID:             creatorID,
		Title:                 "Will it rain tomorrow?",
		EndTime:               endTime,
		ResolutionTime:        resolutionTime,
		Status:                status,
		CreatorFeePercentage:  decimal.NewFromInt(1),
		PlatformFeePercentage: decimal.NewFromInt(2),
	}
	if err := db.Create(market).Error; err != nil {
		t.Fatalf("failed to create market: %v", err)
	}
	return market
}

// createTestPrediction inserts a prediction row directly and bumps the
// market pools to match, the way placement would have.
func createTestPrediction(t *testing.T, db *gorm.DB, userID, marketID uint, outcome models.Outcome, amount decimal.Decimal, status models.PredictionStatus) *models.Prediction {
	t.Helper()
	prediction := &models.Prediction{
		UserID:           userID,
		MarketID:         marketID,
		Amount:           amount,
		PredictedOutcome: outcome,
		Status:           status,
	}
	if err := db.Create(prediction).Error; err != nil {
		t.Fatalf("failed to create prediction: %v", err)
	}

	if status != models.PredictionStatusCancelled {
		sideColumn := "no_pool"
		if outcome == models.OutcomeYes {
			sideColumn = "yes_pool"
		}
		err := db.Model(&models.Market{}).
			Where("id = ?", marketID).
			Updates(map[string]interface{}{
				"total_pool": gorm.Expr("total_pool + ?", amount),
				sideColumn:   gorm.Expr(sideColumn+" + ?", amount),
			}).Error
		if err != nil {
			t.Fatalf("failed to seed pools: %v", err)
		}
	}
	return prediction
}

func reloadMarket(t *testing.T, db *gorm.DB, marketID uint) *models.Market {
	t.Helper()
	var market models.Market
	if err := db.First(&market, marketID).Error; err != nil {
		t.Fatalf("failed to reload market %d: %v", marketID, err)
	}
	return &market
}

func reloadUser(t *testing.T, db *gorm.DB, userID uint) *models.User {
	t.Helper()
	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		t.Fatalf("failed to reload user %d: %v", userID, err)
	}
	return &user
}

func reloadPrediction(t *testing.T, db *gorm.DB, predictionID uint) *models.Prediction {
	t.Helper()
	var prediction models.Prediction
	if err := db.First(&prediction, predictionID).Error; err != nil {
		t.Fatalf("failed to reload prediction %d: %v", predictionID, err)
	}
	return &prediction
}

func assertDecimal(t *testing.T, got decimal.Decimal, want string, what string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("%s = %s, want %s", what, got, want)
	}
}

func newTestRepo(db *gorm.DB) *repository.Repository {
	return repository.NewRepository(db)
}

func newTestPredictionService(db *gorm.DB) *PredictionService {
	repo := newTestRepo(db)
	return NewPredictionService(repo, testMarketConfig(), NewReferralService(repo, testLogger()), testLogger())
}

func outcomePtr(o models.Outcome) *models.Outcome {
	return &o
}
