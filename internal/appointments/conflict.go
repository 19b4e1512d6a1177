package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConflictChecker answers whether a dentist already holds an overlapping,
// non-cancelled appointment.
type ConflictChecker struct {
	store Store
}

func NewConflictChecker(store Store) *ConflictChecker {
	if store == nil {
		panic("appointments: store required")
	}
	return &ConflictChecker{store: store}
}

// HasConflict checks [start, start+duration) against persisted state. Pass
// uuid.Nil as exclude when no appointment should be skipped.
func (c *ConflictChecker) HasConflict(ctx context.Context, dentistID uuid.UUID, start time.Time, durationMinutes int, exclude uuid.UUID) (bool, error) {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	overlapping, err := c.store.FindOverlapping(ctx, dentistID, start, end, exclude)
	if err != nil {
		return false, fmt.Errorf("appointments: conflict check: %w", err)
	}
	return len(overlapping) > 0, nil
}
