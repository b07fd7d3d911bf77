// internal/recurring/month.go
package recurring

import (
	"fmt"
	"time"
)

// Month is a calendar month in YYYY-MM form.
type Month struct {
	Year  int
	Month time.Month
}

func ParseMonth(value string) (Month, error) {
	t, err := time.Parse("2006-01", value)
	if err != nil {
		return Month{}, fmt.Errorf("month must be YYYY-MM: %q", value)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

func MonthOf(t time.Time, loc *time.Location) Month {
	local := t.In(loc)
	return Month{Year: local.Year(), Month: local.Month()}
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func (m Month) AddMonths(n int) Month {
	t := time.Date(m.Year, m.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	return Month{Year: t.Year(), Month: t.Month()}
}

func (m Month) Next() Month { return m.AddMonths(1) }

func (m Month) Prev() Month { return m.AddMonths(-1) }

func (m Month) index() int {
	return m.Year*12 + int(m.Month) - 1
}

func (m Month) Before(other Month) bool { return m.index() < other.index() }

func (m Month) After(other Month) bool { return m.index() > other.index() }

// MonthsBetween returns how many months other is after m.
func (m Month) MonthsBetween(other Month) int {
	return other.index() - m.index()
}

// Start returns midnight of the first day of the month in loc.
func (m Month) Start(loc *time.Location) time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, loc)
}

func (m Month) Days() int {
	return time.Date(m.Year, m.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
