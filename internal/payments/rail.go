package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Status of a payment on the external rail.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Rail is the narrow interface to the external payment system. The
// settlement engine never calls it; only the asynchronous payment processor
// does, so a slow or failing rail can never block or unwind a settlement.
type Rail interface {
	CreatePayment(ctx context.Context, amount decimal.Decimal, memo string, userID uint) (string, error)
	VerifyPayment(ctx context.Context, paymentID string) (Status, error)
}

// LocalRail is an in-process rail that approves every payment immediately.
// It stands in for the real payment network in development and tests.
type LocalRail struct {
	log *logrus.Logger
}

func NewLocalRail(log *logrus.Logger) *LocalRail {
	return &LocalRail{log: log}
}

func (r *LocalRail) CreatePayment(ctx context.Context, amount decimal.Decimal, memo string, userID uint) (string, error) {
	paymentID := uuid.New().String()
	r.log.WithFields(logrus.Fields{
		"payment_id": paymentID,
		"user_id":    userID,
		"amount":     amount,
		"memo":       memo,
	}).Info("payment created")
	return paymentID, nil
}

func (r *LocalRail) VerifyPayment(ctx context.Context, paymentID string) (Status, error) {
	return StatusCompleted, nil
}
