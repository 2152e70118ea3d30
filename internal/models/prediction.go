package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PredictionStatus string

const (
	PredictionStatusPending   PredictionStatus = "PENDING"
	PredictionStatusActive    PredictionStatus = "ACTIVE"
	PredictionStatusWon       PredictionStatus = "WON"
	PredictionStatusLost      PredictionStatus = "LOST"
	PredictionStatusCancelled PredictionStatus = "CANCELLED"
)

// Terminal reports whether the prediction has reached a final status.
func (s PredictionStatus) Terminal() bool {
	return s == PredictionStatusWon || s == PredictionStatusLost || s == PredictionStatusCancelled
}

// Prediction is a single stake on one side of a market. While the market is
// ACTIVE the sum of prediction amounts per outcome equals the matching side
// pool. PotentialWinnings is set once, at settlement.
type Prediction struct {
	ID                uint             `gorm:"primaryKey" json:"id"`
	UserID            uint             `gorm:"not null;index" json:"user_id"`
	User              *User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	MarketID          uint             `gorm:"not null;index" json:"market_id"`
	Market            *Market          `gorm:"foreignKey:MarketID" json:"market,omitempty"`
	Amount            decimal.Decimal  `gorm:"type:decimal(20,6);not null" json:"amount"`
	PredictedOutcome  Outcome          `gorm:"size:10;not null" json:"predicted_outcome"`
	Status            PredictionStatus `gorm:"size:20;not null;default:PENDING;index" json:"status"`
	PotentialWinnings *decimal.Decimal `gorm:"type:decimal(20,6)" json:"potential_winnings,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// TableName specifies the table name for Prediction model
func (Prediction) TableName() string {
	return "predictions"
}
