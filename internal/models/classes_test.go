package models

import (
	"context"
	"errors"
	"testing"
	"time"

	dbq "github.com/codr1/Fitclub/internal/db/queries"
)

func TestCreateClass(t *testing.T) {
	database, f := setupModelsTest(t)
	ctx := context.Background()
	q := database.Queries

	start := testNow.Add(72 * time.Hour)
	valid := CreateClassParams{
		LocationID:  f.Location.ID,
		ClassTypeID: f.ClassType.ID,
		CoachID:     f.Coach.ID,
		StartsAt:    start,
		EndsAt:      start.Add(50 * time.Minute),
		Capacity:    8,
	}

	class, err := CreateClass(ctx, q, valid)
	if err != nil {
		t.Fatalf("create class: %v", err)
	}
	if class.Status != dbq.ClassStatusScheduled || class.DefaultScheduleID != nil || class.Capacity != 8 {
		t.Fatalf("unexpected class: %+v", class)
	}

	tests := []struct {
		name   string
		mutate func(*CreateClassParams)
		want   error
	}{
		{"ends before start", func(p *CreateClassParams) { p.EndsAt = p.StartsAt }, ErrInvalidClassTime},
		{"zero capacity", func(p *CreateClassParams) { p.Capacity = 0 }, ErrInvalidCapacity},
		{"unknown location", func(p *CreateClassParams) { p.LocationID = 999 }, ErrLocationNotFound},
		{"unknown class type", func(p *CreateClassParams) { p.ClassTypeID = 999 }, ErrInvalidClassType},
		{"member as coach", func(p *CreateClassParams) { p.CoachID = f.Member.ID }, ErrInvalidCoach},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := valid
			tt.mutate(&params)
			if _, err := CreateClass(ctx, q, params); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
