package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RewardStatus string

const (
	RewardStatusPending   RewardStatus = "PENDING"
	RewardStatusProcessed RewardStatus = "PROCESSED"
	RewardStatusFailed    RewardStatus = "FAILED"
	RewardStatusCancelled RewardStatus = "CANCELLED"
)

// Reward is the dedicated audit record of one winning prediction's payout,
// created exactly once at settlement (1:1 with a WON prediction). It is
// mutated only by the payment execution step (PENDING to PROCESSED/FAILED);
// amounts are fixed-point decimal(20,6) so repeated settlements of large
// pools accumulate no rounding drift.
type Reward struct {
	ID                       uint            `gorm:"primaryKey" json:"id"`
	UserID                   uint            `gorm:"not null;index" json:"user_id"`
	User                     *User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	PredictionID             uint            `gorm:"not null;uniqueIndex" json:"prediction_id"`
	Prediction               *Prediction     `gorm:"foreignKey:PredictionID" json:"prediction,omitempty"`
	MarketID                 uint            `gorm:"not null;index" json:"market_id"`
	Amount                   decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"amount"`
	OriginalPredictionAmount decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"original_prediction_amount"`
	RewardMultiplier         float64         `gorm:"not null" json:"reward_multiplier"`
	Status                   RewardStatus    `gorm:"size:20;not null;default:PENDING;index" json:"status"`
	TransactionID            *uint           `gorm:"index" json:"transaction_id,omitempty"`
	Audit                    AuditTrail      `json:"audit,omitempty"`
	CreatedAt                time.Time       `json:"created_at"`
	ProcessedAt              *time.Time      `json:"processed_at,omitempty"`
}

// TableName specifies the table name for Reward model
func (Reward) TableName() string {
	return "rewards"
}
