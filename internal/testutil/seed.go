// internal/testutil/seed.go
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codr1/Fitclub/internal/db"
	dbq "github.com/codr1/Fitclub/internal/db/queries"
)

// Fixture is the minimal world most package tests need: one location, one class
// type, a coach and a member.
type Fixture struct {
	Location  dbq.Location
	ClassType dbq.ClassType
	Coach     dbq.User
	Member    dbq.User
	Admin     dbq.User
}

func Seed(t *testing.T, database *db.DB) Fixture {
	t.Helper()
	ctx := context.Background()
	q := database.Queries

	location, err := q.CreateLocation(ctx, dbq.CreateLocationParams{
		Name:                    "Central",
		Address:                 "1 Main St",
		Timezone:                "UTC",
		CancellationCutoffHours: 12,
	})
	if err != nil {
		t.Fatalf("seed location: %v", err)
	}
	classType, err := q.CreateClassType(ctx, dbq.CreateClassTypeParams{
		Name:                   "Reformer",
		DefaultDurationMinutes: 50,
	})
	if err != nil {
		t.Fatalf("seed class type: %v", err)
	}

	return Fixture{
		Location:  location,
		ClassType: classType,
		Coach:     SeedUser(t, database, "coach@example.com", dbq.RoleCoach),
		Member:    SeedUser(t, database, "member@example.com", dbq.RoleMember),
		Admin:     SeedUser(t, database, "admin@example.com", dbq.RoleAdmin),
	}
}

func SeedUser(t *testing.T, database *db.DB, email, role string) dbq.User {
	t.Helper()
	user, err := database.Queries.CreateUser(context.Background(), dbq.CreateUserParams{
		Email:     email,
		FirstName: "Test",
		LastName:  role,
		Role:      role,
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return user
}

func SeedClass(t *testing.T, database *db.DB, f Fixture, startsAt time.Time, capacity int64) dbq.Class {
	t.Helper()
	class, err := database.Queries.CreateClass(context.Background(), dbq.CreateClassParams{
		LocationID:  f.Location.ID,
		ClassTypeID: f.ClassType.ID,
		CoachID:     f.Coach.ID,
		StartsAt:    startsAt,
		EndsAt:      startsAt.Add(50 * time.Minute),
		Capacity:    capacity,
	})
	if err != nil {
		t.Fatalf("seed class: %v", err)
	}
	return class
}

// SeedCredits grants an unrestricted lot of credits to the user.
func SeedCredits(t *testing.T, database *db.DB, userID, credits int64, expiresAt time.Time) dbq.CreditLot {
	t.Helper()
	lot, err := database.Queries.CreateCreditLot(context.Background(), dbq.CreateCreditLotParams{
		UserID:    userID,
		Total:     credits,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed credits: %v", err)
	}
	return lot
}

var bookingSeq atomic.Int64

func SeedBooking(t *testing.T, database *db.DB, classID, userID int64, lotID *int64) dbq.Booking {
	t.Helper()
	seq := bookingSeq.Add(1)
	booking, err := database.Queries.CreateBooking(context.Background(), dbq.CreateBookingParams{
		Reference:   fmt.Sprintf("TESTBK%04d", seq),
		ClassID:     classID,
		UserID:      userID,
		CreditLotID: lotID,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		t.Fatalf("seed booking: %v", err)
	}
	return booking
}
