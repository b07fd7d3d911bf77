// internal/recurring/template.go
package recurring

import (
	"errors"
	"fmt"
	"time"
)

// Template is the weekly pattern a default schedule repeats.
type Template struct {
	ID              int64
	LocationID      int64
	CoachID         int64
	DayOfWeek       time.Weekday
	StartTime       string
	DurationMinutes int64
	EffectiveFrom   Month
	// EffectiveUntil is the last month the template applies; nil is open ended.
	EffectiveUntil *Month
	// Zone is the location's time zone for StartTime; nil means UTC.
	Zone *time.Location
}

func (t Template) zone() *time.Location {
	if t.Zone == nil {
		return time.UTC
	}
	return t.Zone
}

// ParseClock parses a 24h HH:MM time of day and returns minutes since midnight.
func ParseClock(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("time must be HH:MM: %q", value)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (t Template) Validate() error {
	if t.DayOfWeek < time.Sunday || t.DayOfWeek > time.Saturday {
		return errors.New("day_of_week must be between 0 and 6")
	}
	if _, err := ParseClock(t.StartTime); err != nil {
		return err
	}
	if t.DurationMinutes <= 0 {
		return errors.New("duration_minutes must be positive")
	}
	if t.EffectiveUntil != nil && t.EffectiveUntil.Before(t.EffectiveFrom) {
		return errors.New("effective_until must not be before effective_from")
	}
	return nil
}

// EffectiveIn reports whether the template applies during month.
func (t Template) EffectiveIn(month Month) bool {
	if month.Before(t.EffectiveFrom) {
		return false
	}
	return t.EffectiveUntil == nil || !month.After(*t.EffectiveUntil)
}

// Occurrence is one generated class slot in UTC.
type Occurrence struct {
	TemplateID int64
	StartsAt   time.Time
	EndsAt     time.Time
}

// Occurrences returns every slot the template yields in month, interpreting the
// start time as wall clock time in loc. Slots starting before notBefore are skipped.
func Occurrences(t Template, month Month, loc *time.Location, notBefore time.Time) ([]Occurrence, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if !t.EffectiveIn(month) {
		return []Occurrence{}, nil
	}
	minutes, _ := ParseClock(t.StartTime)
	duration := time.Duration(t.DurationMinutes) * time.Minute

	occurrences := []Occurrence{}
	for day := 1; day <= month.Days(); day++ {
		date := time.Date(month.Year, month.Month, day, 0, 0, 0, 0, loc)
		if date.Weekday() != t.DayOfWeek {
			continue
		}
		start := time.Date(month.Year, month.Month, day, minutes/60, minutes%60, 0, 0, loc)
		if start.Before(notBefore) {
			continue
		}
		occurrences = append(occurrences, Occurrence{
			TemplateID: t.ID,
			StartsAt:   start.UTC(),
			EndsAt:     start.Add(duration).UTC(),
		})
	}
	return occurrences, nil
}

// Reschedule moves an instance that started at startsAt to the template's
// weekday and time within the same local week (Sunday first).
func Reschedule(t Template, startsAt time.Time, loc *time.Location) (time.Time, time.Time, error) {
	minutes, err := ParseClock(t.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	local := startsAt.In(loc)
	offset := int(t.DayOfWeek) - int(local.Weekday())
	start := time.Date(local.Year(), local.Month(), local.Day()+offset, minutes/60, minutes%60, 0, 0, loc)
	return start.UTC(), start.Add(time.Duration(t.DurationMinutes) * time.Minute).UTC(), nil
}
