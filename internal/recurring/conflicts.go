// internal/recurring/conflicts.go
package recurring

import (
	"fmt"
	"sort"
	"time"
)

const (
	ConflictRoom  = "room"
	ConflictCoach = "coach"
)

// Conflict describes two templates that cannot both run. Index fields refer to
// positions in the submitted batch; ExistingID is set when the other side is
// already stored.
type Conflict struct {
	Kind       string `json:"kind"`
	Index      int    `json:"index"`
	OtherIndex *int   `json:"otherIndex,omitempty"`
	ExistingID *int64 `json:"existingId,omitempty"`
	Message    string `json:"message"`
}

const (
	minutesPerDay  = 24 * 60
	minutesPerWeek = 7 * minutesPerDay
	// conflictHorizon is how many shared months are compared, enough to see
	// both sides of every daylight saving change.
	conflictHorizon = 12
)

// span is a weekly slot in minutes since Sunday 00:00 UTC. It may wrap past
// the end of the week.
type span struct {
	start, length int
}

// templateSpan places the template's wall clock slot in its zone on the week
// containing ref.
func templateSpan(t Template, ref time.Time) (span, error) {
	minutes, err := ParseClock(t.StartTime)
	if err != nil {
		return span{}, err
	}
	local := ref.In(t.zone())
	start := time.Date(local.Year(), local.Month(), local.Day()+int(t.DayOfWeek)-int(local.Weekday()),
		minutes/60, minutes%60, 0, 0, t.zone()).UTC()
	return span{
		start:  int(start.Weekday())*minutesPerDay + start.Hour()*60 + start.Minute(),
		length: int(t.DurationMinutes),
	}, nil
}

func (s span) overlaps(other span) bool {
	return weekMod(other.start-s.start) < s.length || weekMod(s.start-other.start) < other.length
}

func weekMod(minutes int) int {
	return ((minutes % minutesPerWeek) + minutesPerWeek) % minutesPerWeek
}

func monthsOverlap(a, b Template) bool {
	if a.EffectiveUntil != nil && a.EffectiveUntil.Before(b.EffectiveFrom) {
		return false
	}
	if b.EffectiveUntil != nil && b.EffectiveUntil.Before(a.EffectiveFrom) {
		return false
	}
	return true
}

// slotsOverlap compares the two weekly slots in UTC for each month both
// templates share, up to conflictHorizon months.
func slotsOverlap(a, b Template) bool {
	month := a.EffectiveFrom
	if b.EffectiveFrom.After(month) {
		month = b.EffectiveFrom
	}
	for i := 0; i < conflictHorizon && a.EffectiveIn(month) && b.EffectiveIn(month); i++ {
		ref := month.Start(time.UTC).AddDate(0, 0, 14).Add(12 * time.Hour)
		sa, errA := templateSpan(a, ref)
		sb, errB := templateSpan(b, ref)
		if errA != nil || errB != nil {
			return false
		}
		if sa.overlaps(sb) {
			return true
		}
		month = month.Next()
	}
	return false
}

func conflictKind(a, b Template) string {
	if !monthsOverlap(a, b) {
		return ""
	}
	sameRoom := a.LocationID == b.LocationID
	if !sameRoom && a.CoachID != b.CoachID {
		return ""
	}
	if !slotsOverlap(a, b) {
		return ""
	}
	if sameRoom {
		return ConflictRoom
	}
	return ConflictCoach
}

// DetectConflicts checks batch entries against each other and against existing
// templates. Existing templates with an ID listed in ignore are skipped.
func DetectConflicts(batch []Template, existing []Template, ignore ...int64) []Conflict {
	skip := make(map[int64]bool, len(ignore))
	for _, id := range ignore {
		skip[id] = true
	}

	conflicts := []Conflict{}
	for i := range batch {
		for j := i + 1; j < len(batch); j++ {
			kind := conflictKind(batch[i], batch[j])
			if kind == "" {
				continue
			}
			other := j
			conflicts = append(conflicts, Conflict{
				Kind:       kind,
				Index:      i,
				OtherIndex: &other,
				Message:    fmt.Sprintf("entry %d overlaps entry %d (%s)", i, j, kind),
			})
		}
		for _, stored := range existing {
			if skip[stored.ID] {
				continue
			}
			kind := conflictKind(batch[i], stored)
			if kind == "" {
				continue
			}
			id := stored.ID
			conflicts = append(conflicts, Conflict{
				Kind:       kind,
				Index:      i,
				ExistingID: &id,
				Message:    fmt.Sprintf("entry %d overlaps schedule %d (%s)", i, id, kind),
			})
		}
	}

	sort.SliceStable(conflicts, func(a, b int) bool {
		return conflicts[a].Index < conflicts[b].Index
	})
	return conflicts
}
