// internal/models/checkins.go
package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbq "github.com/codr1/Fitclub/internal/db/queries"
)

var (
	ErrAlreadyCheckedIn     = errors.New("already_checked_in")
	ErrWrongLocation        = errors.New("class is at another location")
	ErrOutsideCheckinWindow = errors.New("outside the check-in window")
)

type CheckInParams struct {
	BookingID int64
	// LocationID is where the scan happened; zero skips the location check.
	LocationID   int64
	ScannedBy    *int64
	Method       string
	WindowBefore time.Duration
	Now          time.Time
}

type CheckInResult struct {
	Checkin dbq.Checkin
	Booking dbq.Booking
	Class   dbq.Class
}

// CheckIn marks a booking attended and records who let the member in. The
// booking must be active and the scan must fall within [start - window, end].
func CheckIn(ctx context.Context, q *dbq.Queries, params CheckInParams) (CheckInResult, error) {
	booking, err := q.GetBooking(ctx, params.BookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CheckInResult{}, ErrBookingNotFound
		}
		return CheckInResult{}, fmt.Errorf("load booking: %w", err)
	}

	if _, err := q.GetCheckinByBooking(ctx, booking.ID); err == nil {
		return CheckInResult{}, ErrAlreadyCheckedIn
	} else if !errors.Is(err, sql.ErrNoRows) {
		return CheckInResult{}, fmt.Errorf("load checkin: %w", err)
	}
	if booking.Status == dbq.BookingStatusAttended {
		return CheckInResult{}, ErrAlreadyCheckedIn
	}
	if booking.Status != dbq.BookingStatusBooked {
		return CheckInResult{}, ErrBookingNotActive
	}

	class, err := q.GetClass(ctx, booking.ClassID)
	if err != nil {
		return CheckInResult{}, fmt.Errorf("load class: %w", err)
	}
	if class.Status != dbq.ClassStatusScheduled {
		return CheckInResult{}, ErrBookingNotActive
	}
	if params.LocationID != 0 && class.LocationID != params.LocationID {
		return CheckInResult{}, ErrWrongLocation
	}
	opensAt := class.StartsAt.Add(-params.WindowBefore)
	if params.Now.Before(opensAt) || params.Now.After(class.EndsAt) {
		return CheckInResult{}, ErrOutsideCheckinWindow
	}

	now := params.Now
	updated, err := q.SetBookingAttendance(ctx, dbq.SetBookingAttendanceParams{
		ID:          booking.ID,
		Status:      dbq.BookingStatusAttended,
		CheckedInAt: &now,
	})
	if err != nil {
		return CheckInResult{}, fmt.Errorf("mark attended: %w", err)
	}
	checkin, err := q.CreateCheckin(ctx, dbq.CreateCheckinParams{
		BookingID:  booking.ID,
		UserID:     booking.UserID,
		LocationID: class.LocationID,
		ScannedBy:  params.ScannedBy,
		Method:     params.Method,
		CreatedAt:  now,
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return CheckInResult{}, ErrAlreadyCheckedIn
		}
		return CheckInResult{}, fmt.Errorf("record checkin: %w", err)
	}
	return CheckInResult{Checkin: checkin, Booking: updated, Class: class}, nil
}
