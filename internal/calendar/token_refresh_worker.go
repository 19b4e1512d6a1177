package calendar

import (
	"context"
	"time"

	"github.com/Hervar88/DentiFlow/pkg/logging"
)

// TokenRefreshWorker keeps Google access tokens fresh so syncs on the
// booking path rarely pay for a refresh round trip.
type TokenRefreshWorker struct {
	calendar      *GoogleCalendar
	logger        *logging.Logger
	interval      time.Duration
	refreshBefore time.Duration
}

func NewTokenRefreshWorker(cal *GoogleCalendar, logger *logging.Logger) *TokenRefreshWorker {
	if cal == nil {
		panic("calendar: adapter required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TokenRefreshWorker{
		calendar:      cal,
		logger:        logger,
		interval:      30 * time.Minute,
		refreshBefore: 10 * time.Minute,
	}
}

// WithInterval sets the check interval.
func (w *TokenRefreshWorker) WithInterval(interval time.Duration) *TokenRefreshWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// WithRefreshBefore sets how long before expiry a token is refreshed.
func (w *TokenRefreshWorker) WithRefreshBefore(d time.Duration) *TokenRefreshWorker {
	if d > 0 {
		w.refreshBefore = d
	}
	return w
}

// Start blocks until ctx is cancelled.
func (w *TokenRefreshWorker) Start(ctx context.Context) {
	w.logger.Info("starting google token refresh worker",
		"interval", w.interval.String(),
		"refresh_before", w.refreshBefore.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("google token refresh worker shutting down")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce refreshes every token expiring within the refresh window and
// returns how many were refreshed.
func (w *TokenRefreshWorker) RunOnce(ctx context.Context) int {
	expiring, err := w.calendar.ListExpiring(ctx, w.refreshBefore)
	if err != nil {
		w.logger.Error("failed to list expiring google tokens", "error", err)
		return 0
	}
	if len(expiring) == 0 {
		w.logger.Debug("no google tokens need refresh")
		return 0
	}

	refreshed := 0
	for _, d := range expiring {
		if err := w.calendar.RefreshToken(ctx, d); err != nil {
			w.logger.Error("failed to refresh google token", "dentist_id", d.ID, "error", err)
			continue
		}
		refreshed++
	}
	w.logger.Info("refreshed google tokens", "count", refreshed, "candidates", len(expiring))
	return refreshed
}
