package locations

// NOTE: Tests cannot use t.Parallel() due to shared package state.

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/codr1/Fitclub/internal/api/authz"
	dbq "github.com/codr1/Fitclub/internal/db/queries"
	"github.com/codr1/Fitclub/internal/testutil"
)

func setupLocationsTest(t *testing.T) testutil.Fixture {
	t.Helper()

	database := testutil.NewTestDB(t)
	fixture := testutil.Seed(t, database)

	queries = nil
	queriesOnce = sync.Once{}
	InitHandlers(database.Queries)

	t.Cleanup(func() {
		queries = nil
		queriesOnce = sync.Once{}
	})

	return fixture
}

func withAuthUser(req *http.Request, user dbq.User) *http.Request {
	return req.WithContext(authz.ContextWithUser(req.Context(), &authz.AuthUser{
		ID:    user.ID,
		Email: user.Email,
		Role:  user.Role,
	}))
}

func TestHandleLocationCreate(t *testing.T) {
	f := setupLocationsTest(t)

	tests := []struct {
		name   string
		user   dbq.User
		body   string
		status int
	}{
		{"admin creates", f.Admin, `{"name":"Harbour","address":"2 Quay","timezone":"Europe/London","cancellation_cutoff_hours":6}`, http.StatusCreated},
		{"default cutoff", f.Admin, `{"name":"Uptown","timezone":"America/New_York"}`, http.StatusCreated},
		{"bad timezone", f.Admin, `{"name":"Nowhere","timezone":"Mars/Olympus"}`, http.StatusBadRequest},
		{"negative cutoff", f.Admin, `{"name":"Early","timezone":"UTC","cancellation_cutoff_hours":-1}`, http.StatusBadRequest},
		{"member forbidden", f.Member, `{"name":"Sneaky","timezone":"UTC"}`, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/locations", strings.NewReader(tt.body))
			req = withAuthUser(req, tt.user)
			rec := httptest.NewRecorder()

			HandleLocationCreate(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/locations", strings.NewReader(`{"name":"Midtown","timezone":"UTC"}`))
	rec := httptest.NewRecorder()
	HandleLocationCreate(rec, withAuthUser(req, f.Admin))
	var created dbq.Location
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode location: %v", err)
	}
	if created.CancellationCutoffHours != defaultCutoffHours {
		t.Fatalf("expected default cutoff %d, got %d", defaultCutoffHours, created.CancellationCutoffHours)
	}
}

func TestHandleLocationDeactivateHidesFromMembers(t *testing.T) {
	f := setupLocationsTest(t)

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/v1/admin/locations/%d", f.Location.ID), nil)
	req.SetPathValue("id", fmt.Sprint(f.Location.ID))
	rec := httptest.NewRecorder()
	HandleLocationDeactivate(rec, withAuthUser(req, f.Admin))
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate status: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/locations", nil)
	rec = httptest.NewRecorder()
	HandleLocationsList(rec, withAuthUser(req, f.Member))
	var resp struct {
		Locations []dbq.Location `json:"locations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(resp.Locations) != 0 {
		t.Fatalf("expected no active locations, got %d", len(resp.Locations))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/locations?include_inactive=true", nil)
	rec = httptest.NewRecorder()
	HandleLocationsList(rec, withAuthUser(req, f.Admin))
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode admin list: %v", err)
	}
	if len(resp.Locations) != 1 {
		t.Fatalf("expected admin to see inactive location, got %d", len(resp.Locations))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/locations/1", nil)
	req.SetPathValue("id", fmt.Sprint(f.Location.ID))
	rec = httptest.NewRecorder()
	HandleLocationGet(rec, withAuthUser(req, f.Member))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected member get of inactive location to 404, got %d", rec.Code)
	}
}

func TestHandleLocationsListRequiresLogin(t *testing.T) {
	setupLocationsTest(t)

	rec := httptest.NewRecorder()
	HandleLocationsList(rec, httptest.NewRequest(http.MethodGet, "/api/v1/locations", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}
