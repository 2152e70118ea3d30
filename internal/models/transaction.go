package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeDeposit        TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal     TransactionType = "WITHDRAWAL"
	TransactionTypePrediction     TransactionType = "PREDICTION"
	TransactionTypeWinnings       TransactionType = "WINNINGS"
	TransactionTypeRefund         TransactionType = "REFUND"
	TransactionTypeFee            TransactionType = "FEE"
	TransactionTypeReferral       TransactionType = "REFERRAL"
	TransactionTypeMarketCreation TransactionType = "MARKET_CREATION"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// Transaction is one row of the append-only ledger of balance-affecting
// events. Status moves PENDING to COMPLETED or FAILED exactly once and is
// never reopened. UserID is nil for platform-level fee entries.
type Transaction struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	UserID      *uint             `gorm:"index" json:"user_id,omitempty"`
	User        *User             `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Type        TransactionType   `gorm:"size:30;not null;index" json:"type"`
	Amount      decimal.Decimal   `gorm:"type:decimal(20,6);not null" json:"amount"`
	Status      TransactionStatus `gorm:"size:20;not null;default:PENDING;index" json:"status"`
	ReferenceID string            `gorm:"size:255;index" json:"reference_id"`
	PaymentID   *string           `gorm:"size:64;index" json:"payment_id,omitempty"`
	Audit       AuditTrail        `json:"audit,omitempty"`
	CreatedAt   time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// TableName specifies the table name for Transaction model
func (Transaction) TableName() string {
	return "transactions"
}
