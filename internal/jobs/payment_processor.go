package jobs

import (
	"context"
	"fmt"
	"time"

	"predictpix/internal/models"
	"predictpix/internal/payments"
	"predictpix/internal/services"

	"github.com/sirupsen/logrus"
)

// paymentBatchSize caps how many rows one pass picks up.
const paymentBatchSize = 100

// PaymentProcessor drains PENDING rewards through the payment rail and
// reconciles PENDING deposits and withdrawals. It runs outside any
// settlement transaction: settlement is already final by the time a reward
// reaches this job, and a rail failure only marks the reward FAILED.
type PaymentProcessor struct {
	rewards      *services.RewardService
	transactions *services.TransactionService
	rail         payments.Rail
	interval     time.Duration
	log          *logrus.Logger
	stopChan     chan struct{}
}

func NewPaymentProcessor(
	rewards *services.RewardService,
	transactions *services.TransactionService,
	rail payments.Rail,
	interval time.Duration,
	log *logrus.Logger,
) *PaymentProcessor {
	return &PaymentProcessor{
		rewards:      rewards,
		transactions: transactions,
		rail:         rail,
		interval:     interval,
		log:          log,
		stopChan:     make(chan struct{}),
	}
}

// Start begins the processing loop. Blocks until Stop is called.
func (p *PaymentProcessor) Start() {
	p.log.WithField("interval", p.interval).Info("starting payment processor")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Tick(context.Background())
		case <-p.stopChan:
			p.log.Info("stopping payment processor")
			return
		}
	}
}

// Stop stops the processing loop.
func (p *PaymentProcessor) Stop() {
	close(p.stopChan)
}

// Tick runs one processing pass.
func (p *PaymentProcessor) Tick(ctx context.Context) {
	p.processPendingRewards(ctx)
	p.reconcilePendingTransactions(ctx)
}

func (p *PaymentProcessor) processPendingRewards(ctx context.Context) {
	rewards, err := p.rewards.ListPending(ctx, paymentBatchSize)
	if err != nil {
		p.log.WithError(err).Error("failed to list pending rewards")
		return
	}

	for _, reward := range rewards {
		memo := fmt.Sprintf("market_%d_reward_%d", reward.MarketID, reward.ID)
		paymentID, err := p.rail.CreatePayment(ctx, reward.Amount, memo, reward.UserID)
		if err != nil {
			p.log.WithError(err).WithField("reward_id", reward.ID).Error("payment rail rejected reward payout")
			if err := p.rewards.MarkFailed(ctx, reward.ID, err.Error()); err != nil {
				p.log.WithError(err).WithField("reward_id", reward.ID).Error("failed to mark reward failed")
			}
			continue
		}

		if err := p.rewards.MarkProcessed(ctx, reward.ID, paymentID); err != nil {
			p.log.WithError(err).WithField("reward_id", reward.ID).Error("failed to mark reward processed")
		}
	}
}

func (p *PaymentProcessor) reconcilePendingTransactions(ctx context.Context) {
	pending, err := p.transactions.ListPending(ctx, []models.TransactionType{
		models.TransactionTypeDeposit,
		models.TransactionTypeWithdrawal,
	}, paymentBatchSize)
	if err != nil {
		p.log.WithError(err).Error("failed to list pending transactions")
		return
	}

	for _, tx := range pending {
		if _, err := p.transactions.Verify(ctx, tx.ID); err != nil {
			p.log.WithError(err).WithField("transaction_id", tx.ID).Error("failed to verify transaction")
		}
	}
}
