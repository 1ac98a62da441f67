package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"gorm.io/gorm"

	"globcrm/models"
	"globcrm/utils"
)

// SyncWorker is the scheduled loop that synchronizes every connected
// mailbox account across all tenants. Cycles never overlap: a new cycle
// starts only after the previous one finished for all accounts.
type SyncWorker struct {
	db       *gorm.DB
	engine   *SyncEngine
	interval time.Duration
	delay    time.Duration
	logger   *log.Logger
}

func NewSyncWorker(db *gorm.DB, engine *SyncEngine, interval, delay time.Duration, logger *log.Logger) *SyncWorker {
	return &SyncWorker{
		db:       db,
		engine:   engine,
		interval: interval,
		delay:    delay,
		logger:   logger,
	}
}

// Start drives the sync loop until the context is canceled. Cancellation is
// a cooperative shutdown, not a failure: the loop exits without logging an
// error.
func (sw *SyncWorker) Start(ctx context.Context) {
	sw.logger.Println("Starting mailbox sync worker...")
	ticker := time.NewTicker(sw.interval)

	for {
		select {
		case <-ticker.C:
			sw.RunCycle(ctx)
		case <-ctx.Done():
			sw.logger.Println("Stopping mailbox sync worker...")
			ticker.Stop()
			return
		}
	}
}

// RunCycle synchronizes all accounts sequentially with a small pacing delay
// between them. One account's failure never aborts the batch, and the cycle
// body never panics out into the host process.
func (sw *SyncWorker) RunCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("sync cycle panic: %v", r)
			utils.LogError("sync_cycle_panic", err, nil)
			sentry.CurrentHub().Recover(r)
		}
	}()

	// Accounts in the error state are included so transient failures retry
	// automatically on the next cycle.
	var accounts []models.EmailAccount
	if err := sw.db.Order("id").Find(&accounts).Error; err != nil {
		sw.logger.Printf("Failed to load accounts: %v", err)
		return
	}

	sw.logger.Printf("Syncing %d mailbox accounts...", len(accounts))

	for i := range accounts {
		if ctx.Err() != nil {
			return
		}

		account := &accounts[i]
		if err := sw.engine.SyncAccount(ctx, account); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}

			utils.LogError("account_sync_failed", err, map[string]interface{}{
				"account_id": account.ID,
				"tenant_id":  account.TenantID,
				"mailbox":    account.EmailAddress,
			})
			if merr := account.MarkError(sw.db, err.Error()); merr != nil {
				sw.logger.Printf("Failed to mark account %d as errored: %v", account.ID, merr)
			}
		}

		// Pace calls so a large tenant base does not burst the provider's
		// rate limits. Failed accounts pace too; a run of failures must not
		// hammer the provider.
		select {
		case <-ctx.Done():
			return
		case <-time.After(sw.delay):
		}
	}
}
