// internal/db/queries/bookings.go
package queries

import (
	"context"
	"time"
)

const bookingColumns = `id, reference, class_id, user_id, child_id, credit_lot_id, status, refunded, created_at, cancelled_at, checked_in_at`

func scanBooking(row rowScanner) (Booking, error) {
	var i Booking
	err := row.Scan(
		&i.ID,
		&i.Reference,
		&i.ClassID,
		&i.UserID,
		&i.ChildID,
		&i.CreditLotID,
		&i.Status,
		&i.Refunded,
		&i.CreatedAt,
		&i.CancelledAt,
		&i.CheckedInAt,
	)
	return i, err
}

type CreateBookingParams struct {
	Reference   string
	ClassID     int64
	UserID      int64
	ChildID     *int64
	CreditLotID *int64
	CreatedAt   time.Time
}

const createBooking = `
INSERT INTO bookings (reference, class_id, user_id, child_id, credit_lot_id, created_at)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING ` + bookingColumns

func (q *Queries) CreateBooking(ctx context.Context, arg CreateBookingParams) (Booking, error) {
	row := q.db.QueryRowContext(ctx, createBooking,
		arg.Reference,
		arg.ClassID,
		arg.UserID,
		arg.ChildID,
		arg.CreditLotID,
		ts(arg.CreatedAt),
	)
	return scanBooking(row)
}

const getBooking = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`

func (q *Queries) GetBooking(ctx context.Context, id int64) (Booking, error) {
	return scanBooking(q.db.QueryRowContext(ctx, getBooking, id))
}

const listActiveBookingsForClass = `
SELECT ` + bookingColumns + `
FROM bookings
WHERE class_id = ? AND status = 'booked'
ORDER BY id`

func (q *Queries) ListActiveBookingsForClass(ctx context.Context, classID int64) ([]Booking, error) {
	rows, err := q.db.QueryContext(ctx, listActiveBookingsForClass, classID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanBooking)
}

type CancelBookingParams struct {
	ID          int64
	Refunded    bool
	CancelledAt time.Time
}

const cancelBooking = `
UPDATE bookings
SET status = 'cancelled', refunded = ?, cancelled_at = ?
WHERE id = ? AND status = 'booked'
RETURNING ` + bookingColumns

// CancelBooking returns sql.ErrNoRows unless the booking is still booked.
func (q *Queries) CancelBooking(ctx context.Context, arg CancelBookingParams) (Booking, error) {
	return scanBooking(q.db.QueryRowContext(ctx, cancelBooking, arg.Refunded, ts(arg.CancelledAt), arg.ID))
}

type SetBookingAttendanceParams struct {
	ID          int64
	Status      string
	CheckedInAt *time.Time
}

const setBookingAttendance = `
UPDATE bookings
SET status = ?, checked_in_at = COALESCE(?, checked_in_at)
WHERE id = ? AND status IN ('booked', 'attended', 'no_show')
RETURNING ` + bookingColumns

func (q *Queries) SetBookingAttendance(ctx context.Context, arg SetBookingAttendanceParams) (Booking, error) {
	return scanBooking(q.db.QueryRowContext(ctx, setBookingAttendance, arg.Status, tsPtr(arg.CheckedInAt), arg.ID))
}

// BookingDetail is a booking joined with what a member or roster view shows.
type BookingDetail struct {
	Booking
	MemberName    string    `json:"memberName"`
	MemberEmail   string    `json:"memberEmail"`
	ChildName     *string   `json:"childName,omitempty"`
	ClassStartsAt time.Time `json:"classStartsAt"`
	ClassEndsAt   time.Time `json:"classEndsAt"`
	ClassStatus   string    `json:"classStatus"`
	ClassTypeName string    `json:"classTypeName"`
	LocationID    int64     `json:"locationId"`
	LocationName  string    `json:"locationName"`
}

const bookingDetailSelect = `
SELECT b.id, b.reference, b.class_id, b.user_id, b.child_id, b.credit_lot_id, b.status, b.refunded,
       b.created_at, b.cancelled_at, b.checked_in_at,
       u.first_name || ' ' || u.last_name,
       u.email,
       CASE WHEN ch.id IS NULL THEN NULL ELSE ch.first_name || ' ' || ch.last_name END,
       c.starts_at, c.ends_at, c.status,
       ct.name,
       l.id, l.name
FROM bookings b
JOIN users u ON u.id = b.user_id
LEFT JOIN children ch ON ch.id = b.child_id
JOIN classes c ON c.id = b.class_id
JOIN class_types ct ON ct.id = c.class_type_id
JOIN locations l ON l.id = c.location_id`

func scanBookingDetail(row rowScanner) (BookingDetail, error) {
	var i BookingDetail
	err := row.Scan(
		&i.ID,
		&i.Reference,
		&i.ClassID,
		&i.UserID,
		&i.ChildID,
		&i.CreditLotID,
		&i.Status,
		&i.Refunded,
		&i.CreatedAt,
		&i.CancelledAt,
		&i.CheckedInAt,
		&i.MemberName,
		&i.MemberEmail,
		&i.ChildName,
		&i.ClassStartsAt,
		&i.ClassEndsAt,
		&i.ClassStatus,
		&i.ClassTypeName,
		&i.LocationID,
		&i.LocationName,
	)
	return i, err
}

const getBookingDetail = bookingDetailSelect + ` WHERE b.id = ?`

func (q *Queries) GetBookingDetail(ctx context.Context, id int64) (BookingDetail, error) {
	return scanBookingDetail(q.db.QueryRowContext(ctx, getBookingDetail, id))
}

type ListBookingsParams struct {
	UserID   int64
	ClassID  int64
	Status   string
	From     *time.Time
	To       *time.Time
	Upcoming *bool
	Now      time.Time
	Limit    int64
	Offset   int64
}

const listBookings = bookingDetailSelect + `
WHERE (? = 0 OR b.user_id = ?)
  AND (? = 0 OR b.class_id = ?)
  AND (? = '' OR b.status = ?)
  AND (? IS NULL OR c.starts_at >= ?)
  AND (? IS NULL OR c.starts_at < ?)
  AND (? IS NULL OR (? = 1 AND c.ends_at > ?) OR (? = 0 AND c.ends_at <= ?))
ORDER BY c.starts_at, b.id
LIMIT ? OFFSET ?`

func (q *Queries) ListBookings(ctx context.Context, arg ListBookingsParams) ([]BookingDetail, error) {
	now := ts(arg.Now)
	from := tsPtr(arg.From)
	to := tsPtr(arg.To)
	rows, err := q.db.QueryContext(ctx, listBookings,
		arg.UserID, arg.UserID,
		arg.ClassID, arg.ClassID,
		arg.Status, arg.Status,
		from, from,
		to, to,
		arg.Upcoming, arg.Upcoming, now, arg.Upcoming, now,
		arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanBookingDetail)
}

const listClassRoster = bookingDetailSelect + `
WHERE b.class_id = ? AND b.status <> 'cancelled'
ORDER BY u.last_name, u.first_name, b.id`

func (q *Queries) ListClassRoster(ctx context.Context, classID int64) ([]BookingDetail, error) {
	rows, err := q.db.QueryContext(ctx, listClassRoster, classID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanBookingDetail)
}

const listBookingsStartingBetween = bookingDetailSelect + `
WHERE b.status = 'booked'
  AND c.status = 'scheduled'
  AND c.starts_at >= ? AND c.starts_at < ?
ORDER BY c.starts_at, b.id`

// ListBookingsStartingBetween returns active bookings for classes starting in [from, to).
func (q *Queries) ListBookingsStartingBetween(ctx context.Context, from, to time.Time) ([]BookingDetail, error) {
	rows, err := q.db.QueryContext(ctx, listBookingsStartingBetween, ts(from), ts(to))
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanBookingDetail)
}

const countBookingsForClassesBetween = `
SELECT COUNT(*)
FROM bookings b
JOIN classes c ON c.id = b.class_id
WHERE b.status IN ('booked', 'attended', 'no_show')
  AND (? = 0 OR c.location_id = ?)
  AND c.starts_at >= ? AND c.starts_at < ?`

func (q *Queries) CountBookingsForClassesBetween(ctx context.Context, arg CountBetweenParams) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countBookingsForClassesBetween,
		arg.LocationID, arg.LocationID,
		ts(arg.From), ts(arg.To),
	).Scan(&count)
	return count, err
}
