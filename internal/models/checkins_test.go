package models

import (
	"context"
	"errors"
	"testing"
	"time"

	dbq "github.com/codr1/Fitclub/internal/db/queries"
	"github.com/codr1/Fitclub/internal/testutil"
)

func TestCheckIn(t *testing.T) {
	database, f := setupModelsTest(t)
	ctx := context.Background()
	q := database.Queries

	class := testutil.SeedClass(t, database, f, testNow.Add(30*time.Minute), 10)
	booking := testutil.SeedBooking(t, database, class.ID, f.Member.ID, nil)

	params := CheckInParams{
		BookingID:    booking.ID,
		LocationID:   f.Location.ID,
		ScannedBy:    &f.Coach.ID,
		Method:       dbq.CheckinMethodQR,
		WindowBefore: time.Hour,
		Now:          testNow,
	}
	result, err := CheckIn(ctx, q, params)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if result.Booking.Status != dbq.BookingStatusAttended || result.Booking.CheckedInAt == nil {
		t.Fatalf("unexpected booking: %+v", result.Booking)
	}
	if result.Checkin.Method != dbq.CheckinMethodQR || result.Checkin.LocationID != f.Location.ID {
		t.Fatalf("unexpected checkin: %+v", result.Checkin)
	}

	if _, err := CheckIn(ctx, q, params); !errors.Is(err, ErrAlreadyCheckedIn) {
		t.Fatalf("expected ErrAlreadyCheckedIn, got %v", err)
	}
}

func TestCheckInRejections(t *testing.T) {
	database, f := setupModelsTest(t)
	ctx := context.Background()
	q := database.Queries

	soon := testutil.SeedClass(t, database, f, testNow.Add(30*time.Minute), 10)
	later := testutil.SeedClass(t, database, f, testNow.Add(3*time.Hour), 10)
	finished := testutil.SeedClass(t, database, f, testNow.Add(-2*time.Hour), 10)

	soonBooking := testutil.SeedBooking(t, database, soon.ID, f.Member.ID, nil)
	laterBooking := testutil.SeedBooking(t, database, later.ID, f.Member.ID, nil)
	finishedBooking := testutil.SeedBooking(t, database, finished.ID, f.Member.ID, nil)

	second := testutil.SeedUser(t, database, "second@example.com", dbq.RoleMember)
	cancelledBooking := testutil.SeedBooking(t, database, soon.ID, second.ID, nil)
	if _, err := q.CancelBooking(ctx, dbq.CancelBookingParams{ID: cancelledBooking.ID, CancelledAt: testNow}); err != nil {
		t.Fatalf("cancel booking: %v", err)
	}

	tests := []struct {
		name       string
		bookingID  int64
		locationID int64
		wantErr    error
	}{
		{name: "unknown_booking", bookingID: 9999, locationID: f.Location.ID, wantErr: ErrBookingNotFound},
		{name: "wrong_location", bookingID: soonBooking.ID, locationID: f.Location.ID + 100, wantErr: ErrWrongLocation},
		{name: "too_early", bookingID: laterBooking.ID, locationID: f.Location.ID, wantErr: ErrOutsideCheckinWindow},
		{name: "after_end", bookingID: finishedBooking.ID, locationID: f.Location.ID, wantErr: ErrOutsideCheckinWindow},
		{name: "cancelled", bookingID: cancelledBooking.ID, locationID: f.Location.ID, wantErr: ErrBookingNotActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CheckIn(ctx, q, CheckInParams{
				BookingID:    tt.bookingID,
				LocationID:   tt.locationID,
				Method:       dbq.CheckinMethodManual,
				WindowBefore: time.Hour,
				Now:          testNow,
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
