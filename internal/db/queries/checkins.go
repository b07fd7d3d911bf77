// internal/db/queries/checkins.go
package queries

import (
	"context"
	"time"
)

type CreateCheckinParams struct {
	BookingID  int64
	UserID     int64
	LocationID int64
	ScannedBy  *int64
	Method     string
	CreatedAt  time.Time
}

const checkinColumns = `id, booking_id, user_id, location_id, scanned_by, method, created_at`

const createCheckin = `
INSERT INTO checkins (booking_id, user_id, location_id, scanned_by, method, created_at)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING ` + checkinColumns

func scanCheckin(row rowScanner) (Checkin, error) {
	var i Checkin
	err := row.Scan(
		&i.ID,
		&i.BookingID,
		&i.UserID,
		&i.LocationID,
		&i.ScannedBy,
		&i.Method,
		&i.CreatedAt,
	)
	return i, err
}

func (q *Queries) CreateCheckin(ctx context.Context, arg CreateCheckinParams) (Checkin, error) {
	row := q.db.QueryRowContext(ctx, createCheckin,
		arg.BookingID,
		arg.UserID,
		arg.LocationID,
		arg.ScannedBy,
		arg.Method,
		ts(arg.CreatedAt),
	)
	return scanCheckin(row)
}

const getCheckinByBooking = `SELECT ` + checkinColumns + ` FROM checkins WHERE booking_id = ?`

func (q *Queries) GetCheckinByBooking(ctx context.Context, bookingID int64) (Checkin, error) {
	return scanCheckin(q.db.QueryRowContext(ctx, getCheckinByBooking, bookingID))
}

const countCheckinsBetween = `
SELECT COUNT(*)
FROM checkins
WHERE (? = 0 OR location_id = ?)
  AND created_at >= ? AND created_at < ?`

func (q *Queries) CountCheckinsBetween(ctx context.Context, arg CountBetweenParams) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countCheckinsBetween,
		arg.LocationID, arg.LocationID,
		ts(arg.From), ts(arg.To),
	).Scan(&count)
	return count, err
}
