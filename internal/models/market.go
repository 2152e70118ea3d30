package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MarketStatus string

const (
	MarketStatusPending   MarketStatus = "PENDING"
	MarketStatusActive    MarketStatus = "ACTIVE"
	MarketStatusClosed    MarketStatus = "CLOSED"
	MarketStatusSettled   MarketStatus = "SETTLED"
	MarketStatusCancelled MarketStatus = "CANCELLED"
)

// Outcome is a side of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Valid reports whether o is one of the two binary outcomes.
func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// Market represents a binary prediction market with a pooled stake on each
// side. Pools only grow while the market is ACTIVE; after settlement the
// market is terminal and all money fields are frozen.
type Market struct {
	ID                    uint            `gorm:"primaryKey" json:"id"`
	CreatorID             uint            `gorm:"not null;index" json:"creator_id"`
	Creator               *User           `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	Title                 string          `gorm:"size:500;not null" json:"title"`
	Description           string          `gorm:"type:text" json:"description"`
	EndTime               time.Time       `gorm:"not null;index" json:"end_time"`
	ResolutionTime        time.Time       `gorm:"not null;index" json:"resolution_time"`
	Status                MarketStatus    `gorm:"size:20;not null;default:PENDING;index" json:"status"`
	TotalPool             decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"total_pool"`
	YesPool               decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"yes_pool"`
	NoPool                decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"no_pool"`
	CorrectOutcome        *Outcome        `gorm:"size:10" json:"correct_outcome,omitempty"`
	CreatorFeePercentage  decimal.Decimal `gorm:"type:decimal(5,2);not null;default:1" json:"creator_fee_percentage"`
	PlatformFeePercentage decimal.Decimal `gorm:"type:decimal(5,2);not null;default:2" json:"platform_fee_percentage"`
	Audit                 AuditTrail      `json:"audit,omitempty"`
	Predictions           []Prediction    `gorm:"foreignKey:MarketID;constraint:OnDelete:CASCADE" json:"predictions,omitempty"`
	Rewards               []Reward        `gorm:"foreignKey:MarketID;constraint:OnDelete:CASCADE" json:"rewards,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	SettledAt             *time.Time      `json:"settled_at,omitempty"`
}

// TableName specifies the table name for Market model
func (Market) TableName() string {
	return "prediction_markets"
}

// PoolFor returns the stake accumulated on one side of the market.
func (m *Market) PoolFor(o Outcome) decimal.Decimal {
	if o == OutcomeYes {
		return m.YesPool
	}
	return m.NoPool
}
