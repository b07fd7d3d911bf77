// internal/email/details.go
package email

import (
	"time"

	dbq "github.com/codr1/Fitclub/internal/db/queries"
)

// LoadTimezone returns the named zone, or UTC when it cannot be loaded.
func LoadTimezone(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// BookingClassDetails describes a booking's class in the location's timezone.
func BookingClassDetails(clubName string, booking dbq.BookingDetail, loc *time.Location) ClassDetails {
	date, timeRange := FormatClassTime(booking.ClassStartsAt, booking.ClassEndsAt, loc)
	attendee := booking.MemberName
	if booking.ChildName != nil {
		attendee = *booking.ChildName
	}
	return ClassDetails{
		ClubName:     clubName,
		LocationName: booking.LocationName,
		ClassName:    booking.ClassTypeName,
		Attendee:     attendee,
		Date:         date,
		TimeRange:    timeRange,
		Reference:    booking.Reference,
	}
}
