package services

import (
	"context"
	"errors"
	"fmt"

	"predictpix/internal/models"
	"predictpix/internal/payments"
	"predictpix/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TransactionService is the append-only ledger surface: user-facing
// deposits and withdrawals against the payment rail, plus queries. Rows
// leave PENDING exactly once; balances change only when a row completes.
type TransactionService struct {
	repo *repository.Repository
	rail payments.Rail
	log  *logrus.Logger
}

func NewTransactionService(repo *repository.Repository, rail payments.Rail, log *logrus.Logger) *TransactionService {
	return &TransactionService{
		repo: repo,
		rail: rail,
		log:  log,
	}
}

// Deposit opens a PENDING deposit against the payment rail. The balance is
// credited only when verification completes the row.
func (s *TransactionService) Deposit(ctx context.Context, userID uint, amount decimal.Decimal) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, validationErr("amount", "must be positive")
	}
	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	paymentID, err := s.rail.CreatePayment(ctx, amount, "deposit", userID)
	if err != nil {
		return nil, fmt.Errorf("payment rail rejected deposit: %w", err)
	}

	tx := &models.Transaction{
		UserID:      &userID,
		Type:        models.TransactionTypeDeposit,
		Amount:      amount,
		Status:      models.TransactionStatusPending,
		ReferenceID: fmt.Sprintf("user_%d_deposit", userID),
		PaymentID:   &paymentID,
		Audit: models.AppendAudit(nil, fmt.Sprintf("user:%d", userID), "deposit_opened", map[string]any{
			"payment_id": paymentID,
		}),
	}
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to create deposit transaction: %w", err)
	}
	return tx, nil
}

// Withdraw reserves the amount out of the user's balance immediately and
// opens a PENDING withdrawal on the rail. A failed verification refunds the
// reservation.
func (s *TransactionService) Withdraw(ctx context.Context, userID uint, amount decimal.Decimal) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, validationErr("amount", "must be positive")
	}

	var tx *models.Transaction

	err := s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		if _, err := txRepo.GetUserByID(ctx, userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("user %d: %w", userID, ErrNotFound)
			}
			return fmt.Errorf("failed to load user %d: %w", userID, err)
		}

		debited, err := txRepo.DebitBalance(ctx, userID, amount)
		if err != nil {
			return fmt.Errorf("failed to reserve withdrawal: %w", err)
		}
		if !debited {
			return fmt.Errorf("user %d cannot cover %s: %w", userID, amount, ErrInsufficientBalance)
		}

		paymentID, err := s.rail.CreatePayment(ctx, amount, "withdrawal", userID)
		if err != nil {
			return fmt.Errorf("payment rail rejected withdrawal: %w", err)
		}

		tx = &models.Transaction{
			UserID:      &userID,
			Type:        models.TransactionTypeWithdrawal,
			Amount:      amount,
			Status:      models.TransactionStatusPending,
			ReferenceID: fmt.Sprintf("user_%d_withdrawal", userID),
			PaymentID:   &paymentID,
			Audit: models.AppendAudit(nil, fmt.Sprintf("user:%d", userID), "withdrawal_opened", map[string]any{
				"payment_id": paymentID,
			}),
		}
		if err := txRepo.CreateTransaction(ctx, tx); err != nil {
			return fmt.Errorf("failed to create withdrawal transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Verify reconciles one PENDING transaction against the payment rail,
// completing or failing it and applying the balance effect exactly once.
func (s *TransactionService) Verify(ctx context.Context, txID uint) (*models.Transaction, error) {
	tx, err := s.repo.GetTransactionByID(ctx, txID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("transaction %d: %w", txID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load transaction %d: %w", txID, err)
	}
	if tx.Status != models.TransactionStatusPending {
		return nil, fmt.Errorf("transaction %d is %s, not PENDING: %w", txID, tx.Status, ErrInvalidState)
	}
	if tx.PaymentID == nil {
		return nil, fmt.Errorf("transaction %d has no payment to verify: %w", txID, ErrInvalidState)
	}

	status, err := s.rail.VerifyPayment(ctx, *tx.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify payment %s: %w", *tx.PaymentID, err)
	}
	if status == payments.StatusPending {
		return tx, nil
	}

	err = s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		switch status {
		case payments.StatusCompleted:
			moved, err := txRepo.SettleTransactionStatus(ctx, tx.ID, models.TransactionStatusCompleted, nil)
			if err != nil {
				return fmt.Errorf("failed to complete transaction %d: %w", tx.ID, err)
			}
			if !moved {
				// Another verifier got here first; nothing to apply.
				return nil
			}
			if tx.Type == models.TransactionTypeDeposit && tx.UserID != nil {
				if err := txRepo.CreditBalance(ctx, *tx.UserID, tx.Amount); err != nil {
					return fmt.Errorf("failed to credit deposit: %w", err)
				}
			}
			tx.Status = models.TransactionStatusCompleted

		case payments.StatusFailed:
			moved, err := txRepo.SettleTransactionStatus(ctx, tx.ID, models.TransactionStatusFailed, nil)
			if err != nil {
				return fmt.Errorf("failed to fail transaction %d: %w", tx.ID, err)
			}
			if !moved {
				return nil
			}
			// A failed withdrawal returns the reserved funds.
			if tx.Type == models.TransactionTypeWithdrawal && tx.UserID != nil {
				if err := txRepo.CreditBalance(ctx, *tx.UserID, tx.Amount); err != nil {
					return fmt.Errorf("failed to return withdrawal reservation: %w", err)
				}
			}
			tx.Status = models.TransactionStatusFailed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"type":           tx.Type,
		"status":         tx.Status,
	}).Info("transaction verified")

	return tx, nil
}

// ListByUser returns the user's ledger rows, newest first.
func (s *TransactionService) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]*models.Transaction, error) {
	return s.repo.GetTransactionsByUser(ctx, userID, limit, offset)
}

// ListByReference returns every ledger row correlated to a reference such
// as a market settlement.
func (s *TransactionService) ListByReference(ctx context.Context, referenceID string) ([]*models.Transaction, error) {
	return s.repo.GetTransactionsByReference(ctx, referenceID)
}

// ListPending returns PENDING rows of the given types for the payment
// processor to reconcile.
func (s *TransactionService) ListPending(ctx context.Context, types []models.TransactionType, limit int) ([]*models.Transaction, error) {
	return s.repo.ListPendingTransactions(ctx, types, limit)
}
