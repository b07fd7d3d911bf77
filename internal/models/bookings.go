// internal/models/bookings.go
package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	dbq "github.com/codr1/Fitclub/internal/db/queries"
	"github.com/codr1/Fitclub/internal/refcode"
)

var (
	ErrClassNotFound         = errors.New("class not found")
	ErrClassNotBookable      = errors.New("class is not open for booking")
	ErrClassStarted          = errors.New("class has already started")
	ErrClassFull             = errors.New("class is full")
	ErrChildNotFound         = errors.New("child not found")
	ErrAlreadyBooked         = errors.New("already booked for this class")
	ErrBookingNotFound       = errors.New("booking not found")
	ErrBookingNotActive      = errors.New("booking is not active")
	ErrBookingNotCancellable = errors.New("booking can no longer be cancelled")
	ErrInvalidAttendance     = errors.New("attendance must be attended or no_show")
)

type BookClassParams struct {
	ClassID int64
	UserID  int64
	ChildID *int64
	Now     time.Time
}

type BookingResult struct {
	Booking dbq.Booking
	Class   dbq.Class
	Lot     dbq.CreditLot
}

// BookClass books one spot and consumes one credit. Call it with
// transaction-bound queries so the capacity check and credit use are atomic.
func BookClass(ctx context.Context, q *dbq.Queries, params BookClassParams) (BookingResult, error) {
	class, err := q.GetClass(ctx, params.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BookingResult{}, ErrClassNotFound
		}
		return BookingResult{}, fmt.Errorf("load class: %w", err)
	}
	if class.Status != dbq.ClassStatusScheduled {
		return BookingResult{}, ErrClassNotBookable
	}
	if !params.Now.Before(class.StartsAt) {
		return BookingResult{}, ErrClassStarted
	}

	if params.ChildID != nil {
		child, err := q.GetChild(ctx, *params.ChildID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return BookingResult{}, ErrChildNotFound
			}
			return BookingResult{}, fmt.Errorf("load child: %w", err)
		}
		if child.ParentUserID != params.UserID || child.ArchivedAt != nil {
			return BookingResult{}, ErrChildNotFound
		}
	}

	booked, err := q.CountActiveBookingsForClass(ctx, class.ID)
	if err != nil {
		return BookingResult{}, fmt.Errorf("count bookings: %w", err)
	}
	if booked >= class.Capacity {
		return BookingResult{}, ErrClassFull
	}

	lot, err := ConsumeCredit(ctx, q, ConsumeCreditParams{
		UserID:     params.UserID,
		LocationID: class.LocationID,
		ValidAt:    class.StartsAt,
	})
	if err != nil {
		return BookingResult{}, err
	}

	reference, err := refcode.New()
	if err != nil {
		return BookingResult{}, err
	}
	booking, err := q.CreateBooking(ctx, dbq.CreateBookingParams{
		Reference:   reference,
		ClassID:     class.ID,
		UserID:      params.UserID,
		ChildID:     params.ChildID,
		CreditLotID: &lot.ID,
		CreatedAt:   params.Now,
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return BookingResult{}, ErrAlreadyBooked
		}
		return BookingResult{}, fmt.Errorf("create booking: %w", err)
	}
	if err := RecordConsumption(ctx, q, booking, params.Now); err != nil {
		return BookingResult{}, err
	}

	return BookingResult{Booking: booking, Class: class, Lot: lot}, nil
}

type CancelBookingParams struct {
	BookingID   int64
	ActorID     int64
	// ForceRefund skips the cutoff rule. Admin cancellations always refund.
	ForceRefund bool
	Now         time.Time
}

type CancellationResult struct {
	Booking dbq.Booking
	Class   dbq.Class
}

// CancelBooking cancels a booked spot. The credit is refunded when the
// cancellation happens at least the location's cutoff hours before the start.
func CancelBooking(ctx context.Context, q *dbq.Queries, params CancelBookingParams) (CancellationResult, error) {
	booking, err := q.GetBooking(ctx, params.BookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CancellationResult{}, ErrBookingNotFound
		}
		return CancellationResult{}, fmt.Errorf("load booking: %w", err)
	}
	switch booking.Status {
	case dbq.BookingStatusBooked:
	case dbq.BookingStatusCancelled:
		return CancellationResult{}, ErrBookingNotActive
	default:
		return CancellationResult{}, ErrBookingNotCancellable
	}

	class, err := q.GetClass(ctx, booking.ClassID)
	if err != nil {
		return CancellationResult{}, fmt.Errorf("load class: %w", err)
	}
	location, err := q.GetLocation(ctx, class.LocationID)
	if err != nil {
		return CancellationResult{}, fmt.Errorf("load location: %w", err)
	}

	refund := params.ForceRefund || RefundEligible(class.StartsAt, location.CancellationCutoffHours, params.Now)
	cancelled, err := q.CancelBooking(ctx, dbq.CancelBookingParams{
		ID:          booking.ID,
		Refunded:    refund,
		CancelledAt: params.Now,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CancellationResult{}, ErrBookingNotActive
		}
		return CancellationResult{}, fmt.Errorf("cancel booking: %w", err)
	}

	if refund {
		actorID := params.ActorID
		if err := RefundCredit(ctx, q, cancelled, "Cancelled booking "+cancelled.Reference, &actorID, params.Now); err != nil {
			return CancellationResult{}, err
		}
	}
	return CancellationResult{Booking: cancelled, Class: class}, nil
}

// RefundEligible reports whether cancelling at now still returns the credit.
func RefundEligible(startsAt time.Time, cutoffHours int64, now time.Time) bool {
	deadline := startsAt.Add(-time.Duration(cutoffHours) * time.Hour)
	return !now.After(deadline)
}

func MarkAttendance(ctx context.Context, q *dbq.Queries, bookingID int64, status string, now time.Time) (dbq.Booking, error) {
	if status != dbq.BookingStatusAttended && status != dbq.BookingStatusNoShow {
		return dbq.Booking{}, ErrInvalidAttendance
	}
	var checkedInAt *time.Time
	if status == dbq.BookingStatusAttended {
		checkedInAt = &now
	}
	booking, err := q.SetBookingAttendance(ctx, dbq.SetBookingAttendanceParams{
		ID:          bookingID,
		Status:      status,
		CheckedInAt: checkedInAt,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := q.GetBooking(ctx, bookingID); errors.Is(getErr, sql.ErrNoRows) {
				return dbq.Booking{}, ErrBookingNotFound
			}
			return dbq.Booking{}, ErrBookingNotActive
		}
		return dbq.Booking{}, fmt.Errorf("mark attendance: %w", err)
	}
	return booking, nil
}

// IsUniqueViolation reports whether err is a SQLite unique constraint failure.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
