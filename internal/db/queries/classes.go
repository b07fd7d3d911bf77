// internal/db/queries/classes.go
package queries

import (
	"context"
	"time"
)

const classColumns = `id, location_id, class_type_id, coach_id, default_schedule_id, starts_at, ends_at,
    capacity, status, cancel_reason, created_at, updated_at`

func scanClass(row rowScanner) (Class, error) {
	var i Class
	err := row.Scan(
		&i.ID,
		&i.LocationID,
		&i.ClassTypeID,
		&i.CoachID,
		&i.DefaultScheduleID,
		&i.StartsAt,
		&i.EndsAt,
		&i.Capacity,
		&i.Status,
		&i.CancelReason,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

type CreateClassParams struct {
	LocationID        int64
	ClassTypeID       int64
	CoachID           int64
	DefaultScheduleID *int64
	StartsAt          time.Time
	EndsAt            time.Time
	Capacity          int64
}

const createClass = `
INSERT INTO classes (location_id, class_type_id, coach_id, default_schedule_id, starts_at, ends_at, capacity)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING ` + classColumns

func (q *Queries) CreateClass(ctx context.Context, arg CreateClassParams) (Class, error) {
	row := q.db.QueryRowContext(ctx, createClass,
		arg.LocationID,
		arg.ClassTypeID,
		arg.CoachID,
		arg.DefaultScheduleID,
		ts(arg.StartsAt),
		ts(arg.EndsAt),
		arg.Capacity,
	)
	return scanClass(row)
}

const createGeneratedClass = `
INSERT OR IGNORE INTO classes (location_id, class_type_id, coach_id, default_schedule_id, starts_at, ends_at, capacity)
VALUES (?, ?, ?, ?, ?, ?, ?)`

// CreateGeneratedClass inserts a template instance unless one already exists for
// the same template and start. It reports whether a row was written.
func (q *Queries) CreateGeneratedClass(ctx context.Context, arg CreateClassParams) (bool, error) {
	result, err := q.db.ExecContext(ctx, createGeneratedClass,
		arg.LocationID,
		arg.ClassTypeID,
		arg.CoachID,
		arg.DefaultScheduleID,
		ts(arg.StartsAt),
		ts(arg.EndsAt),
		arg.Capacity,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

const getClass = `SELECT ` + classColumns + ` FROM classes WHERE id = ?`

func (q *Queries) GetClass(ctx context.Context, id int64) (Class, error) {
	return scanClass(q.db.QueryRowContext(ctx, getClass, id))
}

// ClassSummary is a class with display names and its active booking count.
type ClassSummary struct {
	Class
	ClassTypeName string `json:"classTypeName"`
	CoachName     string `json:"coachName"`
	LocationName  string `json:"locationName"`
	BookedCount   int64  `json:"bookedCount"`
	SpotsLeft     int64  `json:"spotsLeft"`
}

const classSummarySelect = `
SELECT c.id, c.location_id, c.class_type_id, c.coach_id, c.default_schedule_id, c.starts_at, c.ends_at,
       c.capacity, c.status, c.cancel_reason, c.created_at, c.updated_at,
       ct.name,
       u.first_name || ' ' || u.last_name,
       l.name,
       (SELECT COUNT(*) FROM bookings b WHERE b.class_id = c.id AND b.status IN ('booked', 'attended'))
FROM classes c
JOIN class_types ct ON ct.id = c.class_type_id
JOIN users u ON u.id = c.coach_id
JOIN locations l ON l.id = c.location_id`

func scanClassSummary(row rowScanner) (ClassSummary, error) {
	var i ClassSummary
	err := row.Scan(
		&i.ID,
		&i.LocationID,
		&i.ClassTypeID,
		&i.CoachID,
		&i.DefaultScheduleID,
		&i.StartsAt,
		&i.EndsAt,
		&i.Capacity,
		&i.Status,
		&i.CancelReason,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.ClassTypeName,
		&i.CoachName,
		&i.LocationName,
		&i.BookedCount,
	)
	i.SpotsLeft = max(i.Capacity-i.BookedCount, 0)
	return i, err
}

const getClassSummary = classSummarySelect + ` WHERE c.id = ?`

func (q *Queries) GetClassSummary(ctx context.Context, id int64) (ClassSummary, error) {
	return scanClassSummary(q.db.QueryRowContext(ctx, getClassSummary, id))
}

type ListClassesParams struct {
	LocationID       int64
	CoachID          int64
	From             time.Time
	To               time.Time
	IncludeCancelled bool
}

const listClasses = classSummarySelect + `
WHERE (? = 0 OR c.location_id = ?)
  AND (? = 0 OR c.coach_id = ?)
  AND c.starts_at >= ?
  AND c.starts_at < ?
  AND (? = 1 OR c.status = 'scheduled')
ORDER BY c.starts_at, c.id`

func (q *Queries) ListClasses(ctx context.Context, arg ListClassesParams) ([]ClassSummary, error) {
	rows, err := q.db.QueryContext(ctx, listClasses,
		arg.LocationID, arg.LocationID,
		arg.CoachID, arg.CoachID,
		ts(arg.From),
		ts(arg.To),
		arg.IncludeCancelled,
	)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanClassSummary)
}

type UpdateClassParams struct {
	ID          int64
	ClassTypeID int64
	CoachID     int64
	StartsAt    time.Time
	EndsAt      time.Time
	Capacity    int64
}

const updateClass = `
UPDATE classes
SET class_type_id = ?, coach_id = ?, starts_at = ?, ends_at = ?, capacity = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
RETURNING ` + classColumns

func (q *Queries) UpdateClass(ctx context.Context, arg UpdateClassParams) (Class, error) {
	row := q.db.QueryRowContext(ctx, updateClass,
		arg.ClassTypeID,
		arg.CoachID,
		ts(arg.StartsAt),
		ts(arg.EndsAt),
		arg.Capacity,
		arg.ID,
	)
	return scanClass(row)
}

const setClassSchedule = `
UPDATE classes SET default_schedule_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

func (q *Queries) SetClassSchedule(ctx context.Context, id int64, scheduleID *int64) error {
	_, err := q.db.ExecContext(ctx, setClassSchedule, scheduleID, id)
	return err
}

const cancelClass = `
UPDATE classes
SET status = 'cancelled', cancel_reason = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND status = 'scheduled'
RETURNING ` + classColumns

// CancelClass returns sql.ErrNoRows when the class is already cancelled.
func (q *Queries) CancelClass(ctx context.Context, id int64, reason string) (Class, error) {
	return scanClass(q.db.QueryRowContext(ctx, cancelClass, reason, id))
}

const deleteUnbookedClass = `
DELETE FROM classes
WHERE id = ? AND NOT EXISTS (SELECT 1 FROM bookings WHERE class_id = ?)`

// DeleteUnbookedClass removes a class that has never had a booking.
func (q *Queries) DeleteUnbookedClass(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteUnbookedClass, id, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listScheduledClassesBySchedule = `
SELECT ` + classColumns + `
FROM classes
WHERE default_schedule_id = ?
  AND status = 'scheduled'
  AND starts_at >= ?
ORDER BY starts_at, id`

// ListScheduledClassesBySchedule returns instances of a template starting at or after from.
func (q *Queries) ListScheduledClassesBySchedule(ctx context.Context, scheduleID int64, from time.Time) ([]Class, error) {
	rows, err := q.db.QueryContext(ctx, listScheduledClassesBySchedule, scheduleID, ts(from))
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanClass)
}

const countActiveBookingsForClass = `
SELECT COUNT(*) FROM bookings WHERE class_id = ? AND status IN ('booked', 'attended')`

func (q *Queries) CountActiveBookingsForClass(ctx context.Context, classID int64) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countActiveBookingsForClass, classID).Scan(&count)
	return count, err
}

type CountBetweenParams struct {
	LocationID int64
	From       time.Time
	To         time.Time
}

const countScheduledClasses = `
SELECT COUNT(*)
FROM classes
WHERE status = 'scheduled'
  AND (? = 0 OR location_id = ?)
  AND starts_at >= ? AND starts_at < ?`

func (q *Queries) CountScheduledClasses(ctx context.Context, arg CountBetweenParams) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countScheduledClasses,
		arg.LocationID, arg.LocationID,
		ts(arg.From), ts(arg.To),
	).Scan(&count)
	return count, err
}
