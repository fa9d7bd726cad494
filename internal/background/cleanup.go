package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/castellanhq/castellan/internal/repositories"
)

// CleanupManager periodically removes aged failed-login attempts and
// expired lockout records from the database
type CleanupManager struct {
	attemptRepo *repositories.AttemptRepository
	lockoutRepo *repositories.LockoutRepository
	logger      *slog.Logger
	interval    time.Duration
	retention   time.Duration
	stopCh      chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	attemptRepo *repositories.AttemptRepository,
	lockoutRepo *repositories.LockoutRepository,
	logger *slog.Logger,
	interval time.Duration,
	retention time.Duration,
) *CleanupManager {
	return &CleanupManager{
		attemptRepo: attemptRepo,
		lockoutRepo: lockoutRepo,
		logger:      logger,
		interval:    interval,
		retention:   retention,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup removes retention-expired records from the database
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cm.logger.Info("starting security record cleanup")

	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-cm.retention)

	attemptsDeleted, err := cm.attemptRepo.DeleteExpiredAttempts(cleanupCtx, cutoff)
	if err != nil {
		cm.logger.Error("failed to cleanup failed login attempts", slog.Any("error", err))
	}

	lockoutsDeleted, err := cm.lockoutRepo.DeleteExpiredLockouts(cleanupCtx, cutoff)
	if err != nil {
		cm.logger.Error("failed to cleanup expired lockouts", slog.Any("error", err))
	}

	if attemptsDeleted > 0 || lockoutsDeleted > 0 {
		cm.logger.Info("security record cleanup completed",
			slog.Int64("attempts_deleted", attemptsDeleted),
			slog.Int64("lockouts_deleted", lockoutsDeleted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
