// internal/models/classes.go
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
	ErrInvalidClassTime      = errors.New("class must end after it starts")
	ErrInvalidCapacity       = errors.New("capacity must be positive")
	ErrCapacityBelowBookings = errors.New("capacity is below active bookings")
	ErrClassCancelled        = errors.New("class is already cancelled")
)

type CreateClassParams struct {
	LocationID  int64
	ClassTypeID int64
	CoachID     int64
	StartsAt    time.Time
	EndsAt      time.Time
	Capacity    int64
}

// CreateClass adds a one-off instance that no template owns.
func CreateClass(ctx context.Context, q *dbq.Queries, params CreateClassParams) (dbq.Class, error) {
	if !params.EndsAt.After(params.StartsAt) {
		return dbq.Class{}, ErrInvalidClassTime
	}
	if params.Capacity <= 0 {
		return dbq.Class{}, ErrInvalidCapacity
	}
	if _, _, err := locationTZ(ctx, q, params.LocationID); err != nil {
		return dbq.Class{}, err
	}
	if err := checkClassType(ctx, q, params.ClassTypeID); err != nil {
		return dbq.Class{}, err
	}
	if err := checkCoach(ctx, q, params.CoachID); err != nil {
		return dbq.Class{}, err
	}
	return q.CreateClass(ctx, dbq.CreateClassParams{
		LocationID:  params.LocationID,
		ClassTypeID: params.ClassTypeID,
		CoachID:     params.CoachID,
		StartsAt:    params.StartsAt,
		EndsAt:      params.EndsAt,
		Capacity:    params.Capacity,
	})
}

type UpdateClassParams struct {
	ID          int64
	ClassTypeID int64
	CoachID     int64
	StartsAt    time.Time
	EndsAt      time.Time
	Capacity    int64
}

// UpdateClass edits a scheduled instance. Capacity may not drop below the
// bookings already taken.
func UpdateClass(ctx context.Context, q *dbq.Queries, params UpdateClassParams) (dbq.Class, error) {
	if !params.EndsAt.After(params.StartsAt) {
		return dbq.Class{}, ErrInvalidClassTime
	}
	if params.Capacity <= 0 {
		return dbq.Class{}, ErrInvalidCapacity
	}
	class, err := q.GetClass(ctx, params.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dbq.Class{}, ErrClassNotFound
		}
		return dbq.Class{}, fmt.Errorf("load class: %w", err)
	}
	if class.Status == dbq.ClassStatusCancelled {
		return dbq.Class{}, ErrClassCancelled
	}
	if params.ClassTypeID != class.ClassTypeID {
		if err := checkClassType(ctx, q, params.ClassTypeID); err != nil {
			return dbq.Class{}, err
		}
	}
	if params.CoachID != class.CoachID {
		if err := checkCoach(ctx, q, params.CoachID); err != nil {
			return dbq.Class{}, err
		}
	}
	booked, err := q.CountActiveBookingsForClass(ctx, class.ID)
	if err != nil {
		return dbq.Class{}, fmt.Errorf("count bookings: %w", err)
	}
	if params.Capacity < booked {
		return dbq.Class{}, ErrCapacityBelowBookings
	}
	return q.UpdateClass(ctx, dbq.UpdateClassParams{
		ID:          class.ID,
		ClassTypeID: params.ClassTypeID,
		CoachID:     params.CoachID,
		StartsAt:    params.StartsAt,
		EndsAt:      params.EndsAt,
		Capacity:    params.Capacity,
	})
}

type ClassCancellation struct {
	Class    dbq.Class
	Bookings []dbq.Booking
}

// CancelClass cancels the instance and every booked spot on it, refunding each
// credit.
func CancelClass(ctx context.Context, q *dbq.Queries, classID int64, reason string, actorID *int64, now time.Time) (ClassCancellation, error) {
	class, err := q.CancelClass(ctx, classID, reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := q.GetClass(ctx, classID); errors.Is(getErr, sql.ErrNoRows) {
				return ClassCancellation{}, ErrClassNotFound
			}
			return ClassCancellation{}, ErrClassCancelled
		}
		return ClassCancellation{}, fmt.Errorf("cancel class: %w", err)
	}

	active, err := q.ListActiveBookingsForClass(ctx, class.ID)
	if err != nil {
		return ClassCancellation{}, fmt.Errorf("list bookings: %w", err)
	}
	cancelled := make([]dbq.Booking, 0, len(active))
	for _, booking := range active {
		updated, err := q.CancelBooking(ctx, dbq.CancelBookingParams{
			ID:          booking.ID,
			Refunded:    true,
			CancelledAt: now,
		})
		if err != nil {
			return ClassCancellation{}, fmt.Errorf("cancel booking %d: %w", booking.ID, err)
		}
		if err := RefundCredit(ctx, q, updated, "Class cancelled", actorID, now); err != nil {
			return ClassCancellation{}, err
		}
		cancelled = append(cancelled, updated)
	}
	return ClassCancellation{Class: class, Bookings: cancelled}, nil
}
