package jobs

import (
	"context"
	"errors"
	"time"

	"predictpix/internal/services"

	"github.com/sirupsen/logrus"
)

// MarketLifecycleDriver is the periodic job that moves markets through
// their time-driven transitions: ACTIVE markets past end_time are closed,
// and CLOSED markets past resolution_time with an outcome recorded are
// settled. Each market transition is its own database transaction, so one
// failing market is logged and skipped without blocking the rest of the
// batch.
type MarketLifecycleDriver struct {
	markets    *services.MarketService
	settlement *services.SettlementService
	interval   time.Duration
	log        *logrus.Logger
	stopChan   chan struct{}
}

func NewMarketLifecycleDriver(
	markets *services.MarketService,
	settlement *services.SettlementService,
	interval time.Duration,
	log *logrus.Logger,
) *MarketLifecycleDriver {
	return &MarketLifecycleDriver{
		markets:    markets,
		settlement: settlement,
		interval:   interval,
		log:        log,
		stopChan:   make(chan struct{}),
	}
}

// Start begins the lifecycle loop. Blocks until Stop is called.
func (d *MarketLifecycleDriver) Start() {
	d.log.WithField("interval", d.interval).Info("starting market lifecycle driver")

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.Tick(context.Background())
		case <-d.stopChan:
			d.log.Info("stopping market lifecycle driver")
			return
		}
	}
}

// Stop stops the lifecycle loop.
func (d *MarketLifecycleDriver) Stop() {
	close(d.stopChan)
}

// Tick runs one scan-and-transition pass. Exported so tests and the admin
// surface can drive the lifecycle without the timer.
func (d *MarketLifecycleDriver) Tick(ctx context.Context) {
	d.closeExpiredMarkets(ctx)
	d.settleDueMarkets(ctx)
}

func (d *MarketLifecycleDriver) closeExpiredMarkets(ctx context.Context) {
	markets, err := d.markets.ExpiredActive(ctx)
	if err != nil {
		d.log.WithError(err).Error("failed to scan for expired markets")
		return
	}

	closedCount := 0
	for _, market := range markets {
		closed, err := d.markets.Close(ctx, market.ID)
		if err != nil {
			d.log.WithError(err).WithField("market_id", market.ID).Error("failed to close market")
			continue
		}
		if closed {
			closedCount++
		}
	}

	if closedCount > 0 {
		d.log.WithField("count", closedCount).Info("closed expired markets")
	}
}

func (d *MarketLifecycleDriver) settleDueMarkets(ctx context.Context) {
	markets, err := d.markets.DueForSettlement(ctx)
	if err != nil {
		d.log.WithError(err).Error("failed to scan for settleable markets")
		return
	}

	settledCount := 0
	for _, market := range markets {
		if _, err := d.settlement.Settle(ctx, market.ID); err != nil {
			// A concurrent settle may have claimed the market between the
			// scan and this call; that is a clean loss, not a failure.
			if errors.Is(err, services.ErrInvalidState) {
				d.log.WithField("market_id", market.ID).Debug("market claimed by concurrent settlement")
				continue
			}
			d.log.WithError(err).WithField("market_id", market.ID).Error("failed to settle market")
			continue
		}
		settledCount++
	}

	if settledCount > 0 {
		d.log.WithField("count", settledCount).Info("settled due markets")
	}
}
