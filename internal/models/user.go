package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type UserRole string

const (
	UserRoleAdmin UserRole = "ADMIN"
	UserRoleUser  UserRole = "USER"
)

// User represents a platform user and their spendable balance.
// Balance is the single mutable money aggregate: only prediction placement,
// settlement, refunds and verified deposits/withdrawals may adjust it, so
// the transaction ledger stays authoritative.
type User struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Username   string          `gorm:"size:255;uniqueIndex;not null" json:"username"`
	Role       UserRole        `gorm:"size:20;not null;default:USER;index" json:"role"`
	Balance    decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"balance"`
	ReferrerID *uint           `gorm:"index" json:"referrer_id,omitempty"`
	IsActive   bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}
