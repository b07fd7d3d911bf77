// internal/db/queries/schedules.go
package queries

import (
	"context"
	"time"
)

const defaultScheduleColumns = `id, location_id, class_type_id, coach_id, day_of_week, start_time, duration_minutes,
    capacity, effective_from, effective_until, status, created_at, updated_at`

func scanDefaultSchedule(row rowScanner) (DefaultSchedule, error) {
	var i DefaultSchedule
	err := row.Scan(
		&i.ID,
		&i.LocationID,
		&i.ClassTypeID,
		&i.CoachID,
		&i.DayOfWeek,
		&i.StartTime,
		&i.DurationMinutes,
		&i.Capacity,
		&i.EffectiveFrom,
		&i.EffectiveUntil,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

type CreateDefaultScheduleParams struct {
	LocationID      int64
	ClassTypeID     int64
	CoachID         int64
	DayOfWeek       int64
	StartTime       string
	DurationMinutes int64
	Capacity        int64
	EffectiveFrom   string
	EffectiveUntil  *string
}

const createDefaultSchedule = `
INSERT INTO default_schedules (
    location_id, class_type_id, coach_id, day_of_week, start_time, duration_minutes,
    capacity, effective_from, effective_until
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + defaultScheduleColumns

func (q *Queries) CreateDefaultSchedule(ctx context.Context, arg CreateDefaultScheduleParams) (DefaultSchedule, error) {
	row := q.db.QueryRowContext(ctx, createDefaultSchedule,
		arg.LocationID,
		arg.ClassTypeID,
		arg.CoachID,
		arg.DayOfWeek,
		arg.StartTime,
		arg.DurationMinutes,
		arg.Capacity,
		arg.EffectiveFrom,
		arg.EffectiveUntil,
	)
	return scanDefaultSchedule(row)
}

const getDefaultSchedule = `SELECT ` + defaultScheduleColumns + ` FROM default_schedules WHERE id = ?`

func (q *Queries) GetDefaultSchedule(ctx context.Context, id int64) (DefaultSchedule, error) {
	return scanDefaultSchedule(q.db.QueryRowContext(ctx, getDefaultSchedule, id))
}

type ListDefaultSchedulesParams struct {
	LocationID int64
	// Month limits results to templates effective in that YYYY-MM month; empty lists all.
	Month string
}

const listDefaultSchedules = `
SELECT ` + defaultScheduleColumns + `
FROM default_schedules
WHERE location_id = ?
  AND (? = '' OR (status = 'active' AND effective_from <= ? AND (effective_until IS NULL OR effective_until >= ?)))
ORDER BY day_of_week, start_time, id`

func (q *Queries) ListDefaultSchedules(ctx context.Context, arg ListDefaultSchedulesParams) ([]DefaultSchedule, error) {
	rows, err := q.db.QueryContext(ctx, listDefaultSchedules,
		arg.LocationID,
		arg.Month, arg.Month, arg.Month,
	)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanDefaultSchedule)
}

type ListOverlappingSchedulesParams struct {
	FromMonth string
	// UntilMonth empty means open ended.
	UntilMonth string
}

const listOverlappingSchedules = `
SELECT ` + defaultScheduleColumns + `
FROM default_schedules
WHERE status = 'active'
  AND (effective_until IS NULL OR effective_until >= ?)
  AND (? = '' OR effective_from <= ?)
ORDER BY location_id, day_of_week, start_time, id`

// ListOverlappingSchedules returns active templates at any location whose
// effective months intersect the given range.
func (q *Queries) ListOverlappingSchedules(ctx context.Context, arg ListOverlappingSchedulesParams) ([]DefaultSchedule, error) {
	rows, err := q.db.QueryContext(ctx, listOverlappingSchedules,
		arg.FromMonth,
		arg.UntilMonth, arg.UntilMonth,
	)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanDefaultSchedule)
}

type UpdateDefaultScheduleParams struct {
	ID              int64
	ClassTypeID     int64
	CoachID         int64
	DayOfWeek       int64
	StartTime       string
	DurationMinutes int64
	Capacity        int64
}

const updateDefaultSchedule = `
UPDATE default_schedules
SET class_type_id = ?, coach_id = ?, day_of_week = ?, start_time = ?, duration_minutes = ?,
    capacity = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
RETURNING ` + defaultScheduleColumns

func (q *Queries) UpdateDefaultSchedule(ctx context.Context, arg UpdateDefaultScheduleParams) (DefaultSchedule, error) {
	row := q.db.QueryRowContext(ctx, updateDefaultSchedule,
		arg.ClassTypeID,
		arg.CoachID,
		arg.DayOfWeek,
		arg.StartTime,
		arg.DurationMinutes,
		arg.Capacity,
		arg.ID,
	)
	return scanDefaultSchedule(row)
}

const endDefaultSchedule = `
UPDATE default_schedules
SET effective_until = ?,
    status = CASE WHEN ? < effective_from THEN 'inactive' ELSE status END,
    updated_at = CURRENT_TIMESTAMP
WHERE id = ?
RETURNING ` + defaultScheduleColumns

// EndDefaultSchedule sets the last effective month. A template ending before it
// starts becomes inactive.
func (q *Queries) EndDefaultSchedule(ctx context.Context, id int64, untilMonth string) (DefaultSchedule, error) {
	return scanDefaultSchedule(q.db.QueryRowContext(ctx, endDefaultSchedule, untilMonth, untilMonth, id))
}

const getScheduleGeneration = `
SELECT location_id, month, classes_created, generated_at
FROM schedule_generations
WHERE location_id = ? AND month = ?`

func (q *Queries) GetScheduleGeneration(ctx context.Context, locationID int64, month string) (ScheduleGeneration, error) {
	var i ScheduleGeneration
	err := q.db.QueryRowContext(ctx, getScheduleGeneration, locationID, month).Scan(
		&i.LocationID,
		&i.Month,
		&i.ClassesCreated,
		&i.GeneratedAt,
	)
	return i, err
}

type RecordScheduleGenerationParams struct {
	LocationID     int64
	Month          string
	ClassesCreated int64
	GeneratedAt    time.Time
}

const recordScheduleGeneration = `
INSERT INTO schedule_generations (location_id, month, classes_created, generated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (location_id, month) DO UPDATE
SET classes_created = schedule_generations.classes_created + excluded.classes_created,
    generated_at = excluded.generated_at`

func (q *Queries) RecordScheduleGeneration(ctx context.Context, arg RecordScheduleGenerationParams) error {
	_, err := q.db.ExecContext(ctx, recordScheduleGeneration,
		arg.LocationID,
		arg.Month,
		arg.ClassesCreated,
		ts(arg.GeneratedAt),
	)
	return err
}
