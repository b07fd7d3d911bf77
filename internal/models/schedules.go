// internal/models/schedules.go
package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbq "github.com/codr1/Fitclub/internal/db/queries"
	"github.com/codr1/Fitclub/internal/recurring"
)

const (
	ApplyToCurrent = "current"
	ApplyToFuture  = "future"

	// MaxMonthsAhead bounds how far ahead classes can be generated.
	MaxMonthsAhead = 12
)

var (
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrScheduleEnded    = errors.New("schedule has no months left to change")
	ErrInvalidApplyTo   = errors.New("apply_to must be current or future")
	ErrMonthTooFar      = fmt.Errorf("month is more than %d months ahead", MaxMonthsAhead)
	ErrInvalidCoach     = errors.New("coach must be an active coach or admin")
	ErrLocationNotFound = errors.New("location not found")
	ErrInvalidClassType = errors.New("class type must exist and be active")
)

// ScheduleConflictError lists the templates that would overlap.
type ScheduleConflictError struct {
	Conflicts []recurring.Conflict
}

func (e *ScheduleConflictError) Error() string {
	return fmt.Sprintf("%d schedule conflicts", len(e.Conflicts))
}

// CapacityConflictError lists instances whose active bookings exceed a new capacity.
type CapacityConflictError struct {
	Capacity int64
	Classes  []CapacityConflict
}

type CapacityConflict struct {
	ClassID  int64     `json:"classId"`
	StartsAt time.Time `json:"startsAt"`
	Booked   int64     `json:"booked"`
}

func (e *CapacityConflictError) Error() string {
	ids := make([]string, 0, len(e.Classes))
	for _, c := range e.Classes {
		ids = append(ids, fmt.Sprintf("%d", c.ClassID))
	}
	return fmt.Sprintf("capacity %d is below active bookings for classes %s", e.Capacity, strings.Join(ids, ", "))
}

// RescheduleConflictError lists booked instances a template change would move
// before the point the change takes effect.
type RescheduleConflictError struct {
	Earliest time.Time
	Classes  []RescheduleConflict
}

type RescheduleConflict struct {
	ClassID     int64     `json:"classId"`
	StartsAt    time.Time `json:"startsAt"`
	NewStartsAt time.Time `json:"newStartsAt"`
	Booked      int64     `json:"booked"`
}

func (e *RescheduleConflictError) Error() string {
	ids := make([]string, 0, len(e.Classes))
	for _, c := range e.Classes {
		ids = append(ids, fmt.Sprintf("%d", c.ClassID))
	}
	return fmt.Sprintf("booked classes %s would move before %s", strings.Join(ids, ", "), e.Earliest.Format(time.RFC3339))
}

// ScheduleInput is the editable part of a default schedule.
type ScheduleInput struct {
	ClassTypeID     int64   `json:"class_type_id" validate:"required,gt=0"`
	CoachID         int64   `json:"coach_id" validate:"required,gt=0"`
	DayOfWeek       int64   `json:"day_of_week" validate:"gte=0,lte=6"`
	StartTime       string  `json:"start_time" validate:"required"`
	DurationMinutes int64   `json:"duration_minutes" validate:"required,gt=0,lte=600"`
	Capacity        int64   `json:"capacity" validate:"required,gt=0"`
	EffectiveFrom   string  `json:"effective_from" validate:"required"`
	EffectiveUntil  *string `json:"effective_until,omitempty"`
}

func (in ScheduleInput) template(id, locationID int64) (recurring.Template, error) {
	from, err := recurring.ParseMonth(in.EffectiveFrom)
	if err != nil {
		return recurring.Template{}, err
	}
	t := recurring.Template{
		ID:              id,
		LocationID:      locationID,
		CoachID:         in.CoachID,
		DayOfWeek:       time.Weekday(in.DayOfWeek),
		StartTime:       in.StartTime,
		DurationMinutes: in.DurationMinutes,
		EffectiveFrom:   from,
	}
	if in.EffectiveUntil != nil && *in.EffectiveUntil != "" {
		until, err := recurring.ParseMonth(*in.EffectiveUntil)
		if err != nil {
			return recurring.Template{}, err
		}
		t.EffectiveUntil = &until
	}
	if in.Capacity <= 0 {
		return recurring.Template{}, ErrInvalidCapacity
	}
	return t, t.Validate()
}

// Validate checks the shape of the input without touching the database.
func (in ScheduleInput) Validate() error {
	_, err := in.template(0, 0)
	return err
}

// Validate checks the shape of the change without touching the database.
func (c ScheduleChange) Validate() error {
	if c.Capacity <= 0 {
		return ErrInvalidCapacity
	}
	return recurring.Template{
		DayOfWeek:       time.Weekday(c.DayOfWeek),
		StartTime:       c.StartTime,
		DurationMinutes: c.DurationMinutes,
	}.Validate()
}

// TemplateFromSchedule converts a stored schedule to its recurrence pattern.
func TemplateFromSchedule(s dbq.DefaultSchedule) (recurring.Template, error) {
	return scheduleInput(s).template(s.ID, s.LocationID)
}

func scheduleInput(s dbq.DefaultSchedule) ScheduleInput {
	return ScheduleInput{
		ClassTypeID:     s.ClassTypeID,
		CoachID:         s.CoachID,
		DayOfWeek:       s.DayOfWeek,
		StartTime:       s.StartTime,
		DurationMinutes: s.DurationMinutes,
		Capacity:        s.Capacity,
		EffectiveFrom:   s.EffectiveFrom,
		EffectiveUntil:  s.EffectiveUntil,
	}
}

func locationTZ(ctx context.Context, q *dbq.Queries, locationID int64) (dbq.Location, *time.Location, error) {
	location, err := q.GetLocation(ctx, locationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dbq.Location{}, nil, ErrLocationNotFound
		}
		return dbq.Location{}, nil, fmt.Errorf("load location: %w", err)
	}
	tz, err := time.LoadLocation(location.Timezone)
	if err != nil {
		return dbq.Location{}, nil, fmt.Errorf("location %d timezone: %w", location.ID, err)
	}
	return location, tz, nil
}

func checkClassType(ctx context.Context, q *dbq.Queries, classTypeID int64) error {
	classType, err := q.GetClassType(ctx, classTypeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalidClassType
		}
		return fmt.Errorf("load class type: %w", err)
	}
	if classType.Status != dbq.StatusActive {
		return ErrInvalidClassType
	}
	return nil
}

func checkCoach(ctx context.Context, q *dbq.Queries, coachID int64) error {
	coach, err := q.GetUserByID(ctx, coachID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalidCoach
		}
		return fmt.Errorf("load coach: %w", err)
	}
	if coach.Status != dbq.StatusActive || (coach.Role != dbq.RoleCoach && coach.Role != dbq.RoleAdmin) {
		return ErrInvalidCoach
	}
	return nil
}

// detectConflicts checks batch against every stored active template whose
// months could overlap it, reading each start time in its location's zone.
func detectConflicts(ctx context.Context, q *dbq.Queries, batch []recurring.Template, ignore ...int64) ([]recurring.Conflict, error) {
	if len(batch) == 0 {
		return []recurring.Conflict{}, nil
	}
	from := batch[0].EffectiveFrom
	var until *recurring.Month
	openEnded := false
	for _, t := range batch {
		if t.EffectiveFrom.Before(from) {
			from = t.EffectiveFrom
		}
		if t.EffectiveUntil == nil {
			openEnded = true
			continue
		}
		if until == nil || t.EffectiveUntil.After(*until) {
			u := *t.EffectiveUntil
			until = &u
		}
	}
	params := dbq.ListOverlappingSchedulesParams{FromMonth: from.String()}
	if !openEnded && until != nil {
		params.UntilMonth = until.String()
	}
	stored, err := q.ListOverlappingSchedules(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	zones := map[int64]*time.Location{}
	zoneFor := func(locationID int64) (*time.Location, error) {
		if tz, ok := zones[locationID]; ok {
			return tz, nil
		}
		_, tz, err := locationTZ(ctx, q, locationID)
		if err != nil {
			return nil, err
		}
		zones[locationID] = tz
		return tz, nil
	}

	zoned := make([]recurring.Template, len(batch))
	for i, t := range batch {
		if t.Zone, err = zoneFor(t.LocationID); err != nil {
			return nil, err
		}
		zoned[i] = t
	}
	existing := make([]recurring.Template, 0, len(stored))
	for _, s := range stored {
		t, err := TemplateFromSchedule(s)
		if err != nil {
			return nil, fmt.Errorf("schedule %d: %w", s.ID, err)
		}
		if t.Zone, err = zoneFor(s.LocationID); err != nil {
			return nil, err
		}
		existing = append(existing, t)
	}
	return recurring.DetectConflicts(zoned, existing, ignore...), nil
}

func createSchedule(ctx context.Context, q *dbq.Queries, locationID int64, in ScheduleInput) (dbq.DefaultSchedule, error) {
	return q.CreateDefaultSchedule(ctx, dbq.CreateDefaultScheduleParams{
		LocationID:      locationID,
		ClassTypeID:     in.ClassTypeID,
		CoachID:         in.CoachID,
		DayOfWeek:       in.DayOfWeek,
		StartTime:       in.StartTime,
		DurationMinutes: in.DurationMinutes,
		Capacity:        in.Capacity,
		EffectiveFrom:   in.EffectiveFrom,
		EffectiveUntil:  in.EffectiveUntil,
	})
}

// CreateSchedule stores one template after checking it against existing ones.
func CreateSchedule(ctx context.Context, q *dbq.Queries, locationID int64, in ScheduleInput) (dbq.DefaultSchedule, error) {
	result, err := ImportSchedules(ctx, q, locationID, []ScheduleInput{in}, false)
	if err != nil {
		return dbq.DefaultSchedule{}, err
	}
	return result.Created[0], nil
}

type ImportResult struct {
	DryRun    bool                  `json:"dryRun"`
	Planned   int                   `json:"planned"`
	Conflicts []recurring.Conflict  `json:"conflicts"`
	Created   []dbq.DefaultSchedule `json:"created"`
}

// ImportSchedules validates a batch of templates for one location and stores
// all of them, or none when any entry conflicts. A dry run only reports.
func ImportSchedules(ctx context.Context, q *dbq.Queries, locationID int64, entries []ScheduleInput, dryRun bool) (ImportResult, error) {
	if _, _, err := locationTZ(ctx, q, locationID); err != nil {
		return ImportResult{}, err
	}
	batch := make([]recurring.Template, 0, len(entries))
	coaches := map[int64]bool{}
	classTypes := map[int64]bool{}
	for i, entry := range entries {
		t, err := entry.template(0, locationID)
		if err != nil {
			return ImportResult{}, fmt.Errorf("entry %d: %w", i, err)
		}
		if !classTypes[entry.ClassTypeID] {
			if err := checkClassType(ctx, q, entry.ClassTypeID); err != nil {
				return ImportResult{}, fmt.Errorf("entry %d: %w", i, err)
			}
			classTypes[entry.ClassTypeID] = true
		}
		if !coaches[entry.CoachID] {
			if err := checkCoach(ctx, q, entry.CoachID); err != nil {
				return ImportResult{}, fmt.Errorf("entry %d: %w", i, err)
			}
			coaches[entry.CoachID] = true
		}
		batch = append(batch, t)
	}

	conflicts, err := detectConflicts(ctx, q, batch)
	if err != nil {
		return ImportResult{}, err
	}
	result := ImportResult{
		DryRun:    dryRun,
		Planned:   len(entries),
		Conflicts: conflicts,
		Created:   []dbq.DefaultSchedule{},
	}
	if dryRun {
		return result, nil
	}
	if len(conflicts) > 0 {
		return result, &ScheduleConflictError{Conflicts: conflicts}
	}
	for i, entry := range entries {
		created, err := createSchedule(ctx, q, locationID, entry)
		if err != nil {
			return ImportResult{}, fmt.Errorf("create entry %d: %w", i, err)
		}
		result.Created = append(result.Created, created)
	}
	return result, nil
}

type GenerateResult struct {
	LocationID int64  `json:"locationId"`
	Month      string `json:"month"`
	Created    int64  `json:"created"`
	Skipped    int64  `json:"skipped"`
}

// GenerateMonth creates the class instances every active template yields in
// month. Slots before now and slots that already exist are skipped, so running
// it twice creates nothing new.
func GenerateMonth(ctx context.Context, q *dbq.Queries, locationID int64, month recurring.Month, now time.Time) (GenerateResult, error) {
	_, tz, err := locationTZ(ctx, q, locationID)
	if err != nil {
		return GenerateResult{}, err
	}
	if recurring.MonthOf(now, tz).MonthsBetween(month) > MaxMonthsAhead {
		return GenerateResult{}, ErrMonthTooFar
	}

	schedules, err := q.ListDefaultSchedules(ctx, dbq.ListDefaultSchedulesParams{
		LocationID: locationID,
		Month:      month.String(),
	})
	if err != nil {
		return GenerateResult{}, fmt.Errorf("list schedules: %w", err)
	}

	result := GenerateResult{LocationID: locationID, Month: month.String()}
	for _, schedule := range schedules {
		t, err := TemplateFromSchedule(schedule)
		if err != nil {
			return GenerateResult{}, fmt.Errorf("schedule %d: %w", schedule.ID, err)
		}
		occurrences, err := recurring.Occurrences(t, month, tz, now)
		if err != nil {
			return GenerateResult{}, fmt.Errorf("schedule %d: %w", schedule.ID, err)
		}
		scheduleID := schedule.ID
		for _, occ := range occurrences {
			created, err := q.CreateGeneratedClass(ctx, dbq.CreateClassParams{
				LocationID:        locationID,
				ClassTypeID:       schedule.ClassTypeID,
				CoachID:           schedule.CoachID,
				DefaultScheduleID: &scheduleID,
				StartsAt:          occ.StartsAt,
				EndsAt:            occ.EndsAt,
				Capacity:          schedule.Capacity,
			})
			if err != nil {
				return GenerateResult{}, fmt.Errorf("create class: %w", err)
			}
			if created {
				result.Created++
			} else {
				result.Skipped++
			}
		}
	}

	if err := q.RecordScheduleGeneration(ctx, dbq.RecordScheduleGenerationParams{
		LocationID:     locationID,
		Month:          month.String(),
		ClassesCreated: result.Created,
		GeneratedAt:    now,
	}); err != nil {
		return GenerateResult{}, fmt.Errorf("record generation: %w", err)
	}
	return result, nil
}

type ScheduleChange struct {
	ClassTypeID     int64  `json:"class_type_id" validate:"required,gt=0"`
	CoachID         int64  `json:"coach_id" validate:"required,gt=0"`
	DayOfWeek       int64  `json:"day_of_week" validate:"gte=0,lte=6"`
	StartTime       string `json:"start_time" validate:"required"`
	DurationMinutes int64  `json:"duration_minutes" validate:"required,gt=0,lte=600"`
	Capacity        int64  `json:"capacity" validate:"required,gt=0"`
}

type UpdateScheduleParams struct {
	ID      int64
	Change  ScheduleChange
	ApplyTo string
	Now     time.Time
}

type UpdateScheduleResult struct {
	// Schedule is the template now in force for the changed months.
	Schedule dbq.DefaultSchedule `json:"schedule"`
	// Ended is the original template when the change was split off.
	Ended          *dbq.DefaultSchedule `json:"ended,omitempty"`
	ClassesUpdated int                  `json:"classesUpdated"`
	ClassesRemoved int                  `json:"classesRemoved"`
	ClassesCreated int64                `json:"classesCreated"`
}

// UpdateSchedule changes a template. With apply_to=current the template is
// edited in place and every instance that has not started follows it. With
// apply_to=future the current month keeps the old template and a new one takes
// over from next month, adopting the instances already generated there.
//
// An instance moves to the new weekday within its week. A move that would land
// before the change takes effect drops an unbooked instance and fails with
// RescheduleConflictError for a booked one. Months already generated then get
// any new slots the old weekday did not cover.
func UpdateSchedule(ctx context.Context, q *dbq.Queries, params UpdateScheduleParams) (UpdateScheduleResult, error) {
	if params.ApplyTo != ApplyToCurrent && params.ApplyTo != ApplyToFuture {
		return UpdateScheduleResult{}, ErrInvalidApplyTo
	}
	schedule, err := q.GetDefaultSchedule(ctx, params.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UpdateScheduleResult{}, ErrScheduleNotFound
		}
		return UpdateScheduleResult{}, fmt.Errorf("load schedule: %w", err)
	}
	if schedule.Status != dbq.StatusActive {
		return UpdateScheduleResult{}, ErrScheduleEnded
	}
	_, tz, err := locationTZ(ctx, q, schedule.LocationID)
	if err != nil {
		return UpdateScheduleResult{}, err
	}
	if err := checkCoach(ctx, q, params.Change.CoachID); err != nil {
		return UpdateScheduleResult{}, err
	}
	if err := checkClassType(ctx, q, params.Change.ClassTypeID); err != nil {
		return UpdateScheduleResult{}, err
	}

	in := scheduleInput(schedule)
	in.ClassTypeID = params.Change.ClassTypeID
	in.CoachID = params.Change.CoachID
	in.DayOfWeek = params.Change.DayOfWeek
	in.StartTime = params.Change.StartTime
	in.DurationMinutes = params.Change.DurationMinutes
	in.Capacity = params.Change.Capacity

	current := recurring.MonthOf(params.Now, tz)
	affectedFrom := params.Now
	if params.ApplyTo == ApplyToFuture {
		from, err := recurring.ParseMonth(schedule.EffectiveFrom)
		if err != nil {
			return UpdateScheduleResult{}, err
		}
		next := current.Next()
		if from.After(next) {
			next = from
		}
		if in.EffectiveUntil != nil {
			until, err := recurring.ParseMonth(*in.EffectiveUntil)
			if err != nil {
				return UpdateScheduleResult{}, err
			}
			if until.Before(next) {
				return UpdateScheduleResult{}, ErrScheduleEnded
			}
		}
		in.EffectiveFrom = next.String()
		affectedFrom = next.Start(tz)
	}

	tmpl, err := in.template(schedule.ID, schedule.LocationID)
	if err != nil {
		return UpdateScheduleResult{}, err
	}
	conflicts, err := detectConflicts(ctx, q, []recurring.Template{tmpl}, schedule.ID)
	if err != nil {
		return UpdateScheduleResult{}, err
	}
	if len(conflicts) > 0 {
		return UpdateScheduleResult{}, &ScheduleConflictError{Conflicts: conflicts}
	}

	instances, err := q.ListScheduledClassesBySchedule(ctx, schedule.ID, affectedFrom)
	if err != nil {
		return UpdateScheduleResult{}, fmt.Errorf("list classes: %w", err)
	}
	if err := checkInstanceCapacity(ctx, q, instances, in.Capacity); err != nil {
		return UpdateScheduleResult{}, err
	}
	moves, err := planMoves(ctx, q, tmpl, instances, tz, affectedFrom)
	if err != nil {
		return UpdateScheduleResult{}, err
	}

	var result UpdateScheduleResult
	if params.ApplyTo == ApplyToCurrent {
		updated, err := q.UpdateDefaultSchedule(ctx, dbq.UpdateDefaultScheduleParams{
			ID:              schedule.ID,
			ClassTypeID:     in.ClassTypeID,
			CoachID:         in.CoachID,
			DayOfWeek:       in.DayOfWeek,
			StartTime:       in.StartTime,
			DurationMinutes: in.DurationMinutes,
			Capacity:        in.Capacity,
		})
		if err != nil {
			return UpdateScheduleResult{}, fmt.Errorf("update schedule: %w", err)
		}
		result.Schedule = updated
	} else {
		ended, err := q.EndDefaultSchedule(ctx, schedule.ID, current.String())
		if err != nil {
			return UpdateScheduleResult{}, fmt.Errorf("end schedule: %w", err)
		}
		created, err := createSchedule(ctx, q, schedule.LocationID, in)
		if err != nil {
			return UpdateScheduleResult{}, fmt.Errorf("create schedule: %w", err)
		}
		result.Ended = &ended
		result.Schedule = created
	}

	tmpl.ID = result.Schedule.ID
	for _, move := range moves {
		class := move.class
		if move.drop {
			if err := dropInstance(ctx, q, class.ID, params.Now); err != nil {
				return UpdateScheduleResult{}, err
			}
			result.ClassesRemoved++
			continue
		}
		if result.Schedule.ID != schedule.ID {
			newID := result.Schedule.ID
			if err := q.SetClassSchedule(ctx, class.ID, &newID); err != nil {
				return UpdateScheduleResult{}, fmt.Errorf("move class %d: %w", class.ID, err)
			}
		}
		if _, err := q.UpdateClass(ctx, dbq.UpdateClassParams{
			ID:          class.ID,
			ClassTypeID: in.ClassTypeID,
			CoachID:     in.CoachID,
			StartsAt:    move.startsAt,
			EndsAt:      move.endsAt,
			Capacity:    in.Capacity,
		}); err != nil {
			return UpdateScheduleResult{}, fmt.Errorf("update class %d: %w", class.ID, err)
		}
		result.ClassesUpdated++
	}

	created, err := fillGeneratedMonths(ctx, q, result.Schedule, tmpl, tz, affectedFrom, params.Now)
	if err != nil {
		return UpdateScheduleResult{}, err
	}
	result.ClassesCreated = created
	return result, nil
}

type classMove struct {
	class    dbq.Class
	startsAt time.Time
	endsAt   time.Time
	drop     bool
}

// planMoves maps each instance onto tmpl. Instances whose new start falls
// before earliest are dropped when unbooked; booked ones are a conflict.
func planMoves(ctx context.Context, q *dbq.Queries, tmpl recurring.Template, instances []dbq.Class, tz *time.Location, earliest time.Time) ([]classMove, error) {
	moves := make([]classMove, 0, len(instances))
	var offending []RescheduleConflict
	for _, class := range instances {
		startsAt, endsAt, err := recurring.Reschedule(tmpl, class.StartsAt, tz)
		if err != nil {
			return nil, err
		}
		move := classMove{class: class, startsAt: startsAt, endsAt: endsAt}
		if startsAt.Before(earliest) {
			booked, err := q.CountActiveBookingsForClass(ctx, class.ID)
			if err != nil {
				return nil, fmt.Errorf("count bookings: %w", err)
			}
			if booked > 0 {
				offending = append(offending, RescheduleConflict{
					ClassID:     class.ID,
					StartsAt:    class.StartsAt,
					NewStartsAt: startsAt,
					Booked:      booked,
				})
				continue
			}
			move.drop = true
		}
		moves = append(moves, move)
	}
	if len(offending) > 0 {
		return nil, &RescheduleConflictError{Earliest: earliest, Classes: offending}
	}
	return moves, nil
}

// dropInstance deletes an instance nobody ever booked and cancels one that
// only has cancelled bookings, keeping their history.
func dropInstance(ctx context.Context, q *dbq.Queries, classID int64, now time.Time) error {
	deleted, err := q.DeleteUnbookedClass(ctx, classID)
	if err != nil {
		return fmt.Errorf("delete class %d: %w", classID, err)
	}
	if deleted > 0 {
		return nil
	}
	_, err = CancelClass(ctx, q, classID, "Schedule changed", nil, now)
	return err
}

// fillGeneratedMonths creates the template's missing slots from notBefore on
// in every month that was already generated for the location.
func fillGeneratedMonths(ctx context.Context, q *dbq.Queries, schedule dbq.DefaultSchedule, tmpl recurring.Template, tz *time.Location, notBefore, now time.Time) (int64, error) {
	var created int64
	last := recurring.MonthOf(now, tz).AddMonths(MaxMonthsAhead)
	scheduleID := schedule.ID
	for month := recurring.MonthOf(notBefore, tz); !month.After(last); month = month.Next() {
		if _, err := q.GetScheduleGeneration(ctx, schedule.LocationID, month.String()); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return created, fmt.Errorf("load generation %s: %w", month, err)
		}
		occurrences, err := recurring.Occurrences(tmpl, month, tz, notBefore)
		if err != nil {
			return created, err
		}
		for _, occ := range occurrences {
			ok, err := q.CreateGeneratedClass(ctx, dbq.CreateClassParams{
				LocationID:        schedule.LocationID,
				ClassTypeID:       schedule.ClassTypeID,
				CoachID:           schedule.CoachID,
				DefaultScheduleID: &scheduleID,
				StartsAt:          occ.StartsAt,
				EndsAt:            occ.EndsAt,
				Capacity:          schedule.Capacity,
			})
			if err != nil {
				return created, fmt.Errorf("create class: %w", err)
			}
			if ok {
				created++
			}
		}
	}
	return created, nil
}

func checkInstanceCapacity(ctx context.Context, q *dbq.Queries, classes []dbq.Class, capacity int64) error {
	var offending []CapacityConflict
	for _, class := range classes {
		booked, err := q.CountActiveBookingsForClass(ctx, class.ID)
		if err != nil {
			return fmt.Errorf("count bookings: %w", err)
		}
		if booked > capacity {
			offending = append(offending, CapacityConflict{
				ClassID:  class.ID,
				StartsAt: class.StartsAt,
				Booked:   booked,
			})
		}
	}
	if len(offending) > 0 {
		return &CapacityConflictError{Capacity: capacity, Classes: offending}
	}
	return nil
}

type DeleteScheduleResult struct {
	Schedule         dbq.DefaultSchedule `json:"schedule"`
	CancelledClasses []ClassCancellation `json:"-"`
	ClassesCancelled int                 `json:"classesCancelled"`
	BookingsRefunded int                 `json:"bookingsRefunded"`
}

// DeleteSchedule ends a template. apply_to=current ends it at the previous
// month and cancels every instance that has not started; apply_to=future keeps
// the current month and cancels instances after it. Bookings on cancelled
// instances are refunded.
func DeleteSchedule(ctx context.Context, q *dbq.Queries, id int64, applyTo string, actorID *int64, now time.Time) (DeleteScheduleResult, error) {
	if applyTo != ApplyToCurrent && applyTo != ApplyToFuture {
		return DeleteScheduleResult{}, ErrInvalidApplyTo
	}
	schedule, err := q.GetDefaultSchedule(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DeleteScheduleResult{}, ErrScheduleNotFound
		}
		return DeleteScheduleResult{}, fmt.Errorf("load schedule: %w", err)
	}
	_, tz, err := locationTZ(ctx, q, schedule.LocationID)
	if err != nil {
		return DeleteScheduleResult{}, err
	}

	current := recurring.MonthOf(now, tz)
	endMonth := current.Prev()
	cancelFrom := now
	if applyTo == ApplyToFuture {
		endMonth = current
		cancelFrom = current.Next().Start(tz)
	}
	if schedule.EffectiveUntil != nil {
		until, err := recurring.ParseMonth(*schedule.EffectiveUntil)
		if err == nil && until.Before(endMonth) {
			endMonth = until
		}
	}

	ended, err := q.EndDefaultSchedule(ctx, schedule.ID, endMonth.String())
	if err != nil {
		return DeleteScheduleResult{}, fmt.Errorf("end schedule: %w", err)
	}

	instances, err := q.ListScheduledClassesBySchedule(ctx, schedule.ID, cancelFrom)
	if err != nil {
		return DeleteScheduleResult{}, fmt.Errorf("list classes: %w", err)
	}
	result := DeleteScheduleResult{Schedule: ended}
	for _, class := range instances {
		cancelled, err := CancelClass(ctx, q, class.ID, "Schedule removed", actorID, now)
		if err != nil {
			return DeleteScheduleResult{}, err
		}
		result.CancelledClasses = append(result.CancelledClasses, cancelled)
		result.ClassesCancelled++
		result.BookingsRefunded += len(cancelled.Bookings)
	}
	return result, nil
}
