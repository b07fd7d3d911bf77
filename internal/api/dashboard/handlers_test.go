package dashboard

// NOTE: Tests cannot use t.Parallel() due to shared package state.

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/codr1/Fitclub/internal/api/authz"
	appdb "github.com/codr1/Fitclub/internal/db"
	dbq "github.com/codr1/Fitclub/internal/db/queries"
	"github.com/codr1/Fitclub/internal/testutil"
)

func setupDashboardTest(t *testing.T) (*appdb.DB, testutil.Fixture) {
	t.Helper()

	database := testutil.NewTestDB(t)
	fixture := testutil.Seed(t, database)

	queries = nil
	queriesOnce = sync.Once{}
	InitHandlers(database)

	t.Cleanup(func() {
		queries = nil
		queriesOnce = sync.Once{}
	})

	return database, fixture
}

func withAuthUser(req *http.Request, user dbq.User) *http.Request {
	return req.WithContext(authz.ContextWithUser(req.Context(), &authz.AuthUser{
		ID:    user.ID,
		Email: user.Email,
		Role:  user.Role,
	}))
}

func TestHandleDashboardMetrics(t *testing.T) {
	database, f := setupDashboardTest(t)

	class := testutil.SeedClass(t, database, f, time.Now().Add(-time.Hour), 10)
	testutil.SeedBooking(t, database, class.ID, f.Member.ID, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/dashboard?range=last_7_days", nil)
	rec := httptest.NewRecorder()
	HandleDashboardMetrics(rec, withAuthUser(req, f.Admin))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var metrics Metrics
	if err := json.Unmarshal(rec.Body.Bytes(), &metrics); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if metrics.Range != dateRangeLast7Days {
		t.Fatalf("expected range %q, got %q", dateRangeLast7Days, metrics.Range)
	}
	if metrics.ActiveMembers != 1 || metrics.Classes != 1 || metrics.Bookings != 1 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
	if metrics.Checkins != 0 || metrics.PendingReviews != 0 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
}

func TestHandleDashboardMetricsRejectsBadInput(t *testing.T) {
	_, f := setupDashboardTest(t)

	tests := []struct {
		name   string
		user   dbq.User
		query  string
		status int
	}{
		{"member forbidden", f.Member, "", http.StatusForbidden},
		{"coach forbidden", f.Coach, "", http.StatusForbidden},
		{"unknown range", f.Admin, "?range=forever", http.StatusBadRequest},
		{"custom missing dates", f.Admin, "?range=custom", http.StatusBadRequest},
		{"custom reversed", f.Admin, "?range=custom&start_date=2026-03-10&end_date=2026-03-01", http.StatusBadRequest},
		{"unknown location", f.Admin, "?location_id=999", http.StatusNotFound},
		{"custom ok", f.Admin, "?range=custom&start_date=2026-03-01&end_date=2026-03-31", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/dashboard"+tt.query, nil)
			rec := httptest.NewRecorder()
			HandleDashboardMetrics(rec, withAuthUser(req, tt.user))
			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestPresetDateRange(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	now := time.Date(2026, time.March, 15, 3, 0, 0, 0, time.UTC) // 23:00 on Mar 14 in New York

	tests := []struct {
		preset string
		from   time.Time
		to     time.Time
	}{
		{dateRangeToday, time.Date(2026, 3, 14, 0, 0, 0, 0, loc), time.Date(2026, 3, 15, 0, 0, 0, 0, loc)},
		{dateRangeLast7Days, time.Date(2026, 3, 8, 0, 0, 0, 0, loc), time.Date(2026, 3, 15, 0, 0, 0, 0, loc)},
		{dateRangeThisMonth, time.Date(2026, 3, 1, 0, 0, 0, 0, loc), time.Date(2026, 4, 1, 0, 0, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.preset, func(t *testing.T) {
			from, to, ok := presetDateRange(tt.preset, now, loc)
			if !ok {
				t.Fatalf("preset %q not recognised", tt.preset)
			}
			if !from.Equal(tt.from) || !to.Equal(tt.to) {
				t.Fatalf("expected [%s, %s), got [%s, %s)", tt.from, tt.to, from, to)
			}
		})
	}

	if _, _, ok := presetDateRange("yesterday", now, loc); ok {
		t.Fatal("expected unknown preset rejected")
	}
}
