// internal/models/children.go
package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbq "github.com/codr1/Fitclub/internal/db/queries"
)

var ErrChildHasBookings = errors.New("child has upcoming bookings")

// RemoveChild archives a child that has nothing upcoming booked. Past
// bookings keep pointing at the child. Call it with transaction-bound queries.
func RemoveChild(ctx context.Context, q *dbq.Queries, childID, parentUserID int64, now time.Time) error {
	child, err := q.GetChild(ctx, childID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrChildNotFound
		}
		return fmt.Errorf("load child: %w", err)
	}
	if child.ParentUserID != parentUserID || child.ArchivedAt != nil {
		return ErrChildNotFound
	}

	upcoming, err := q.CountUpcomingBookingsForChild(ctx, childID, now)
	if err != nil {
		return fmt.Errorf("count child bookings: %w", err)
	}
	if upcoming > 0 {
		return ErrChildHasBookings
	}

	archived, err := q.ArchiveChild(ctx, childID, parentUserID, now)
	if err != nil {
		return fmt.Errorf("archive child: %w", err)
	}
	if archived == 0 {
		return ErrChildNotFound
	}
	return nil
}
