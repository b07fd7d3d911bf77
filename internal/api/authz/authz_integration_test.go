//go:build integration
// +build integration

package authz_test

// NOTE: Tests cannot use t.Parallel() due to shared package state.

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codr1/Fitclub/internal/api/authz"
	"github.com/codr1/Fitclub/internal/api/classes"
	"github.com/codr1/Fitclub/internal/api/credits"
	"github.com/codr1/Fitclub/internal/testutil"
)

func TestClassAccessIntegration(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.Seed(t, database)
	otherCoach := testutil.SeedUser(t, database, "coach2@example.com", authz.RoleCoach)
	class := testutil.SeedClass(t, database, f, time.Now().Add(48*time.Hour), 10)

	classes.InitHandlers(database, nil)
	credits.InitHandlers(database)

	handlers := []struct {
		name       string
		handler    func(http.ResponseWriter, *http.Request)
		newRequest func() *http.Request
		// coachAllowed reports whether the owning coach may call the handler.
		coachAllowed bool
	}{
		{
			name:    "class roster",
			handler: classes.HandleClassRoster,
			newRequest: func() *http.Request {
				req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/classes/%d/roster", class.ID), nil)
				req.SetPathValue("id", fmt.Sprint(class.ID))
				return req
			},
			coachAllowed: true,
		},
		{
			name:    "member credits",
			handler: credits.HandleMemberCredits,
			newRequest: func() *http.Request {
				req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/admin/members/%d/credits", f.Member.ID), nil)
				req.SetPathValue("id", fmt.Sprint(f.Member.ID))
				return req
			},
		},
	}

	cases := []struct {
		name        string
		user        *authz.AuthUser
		ownerCoach  bool
		wantAllowed bool
		wantStatus  int
	}{
		{
			name:        "admin allowed",
			user:        &authz.AuthUser{ID: f.Admin.ID, Role: authz.RoleAdmin},
			wantAllowed: true,
		},
		{
			name:       "owning coach",
			user:       &authz.AuthUser{ID: f.Coach.ID, Role: authz.RoleCoach},
			ownerCoach: true,
		},
		{
			name:       "other coach forbidden",
			user:       &authz.AuthUser{ID: otherCoach.ID, Role: authz.RoleCoach},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "member forbidden",
			user:       &authz.AuthUser{ID: f.Member.ID, Role: authz.RoleMember},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "unauthenticated rejected",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, handlerCase := range handlers {
				t.Run(handlerCase.name, func(t *testing.T) {
					want := tc.wantStatus
					switch {
					case tc.wantAllowed:
						want = http.StatusOK
					case tc.ownerCoach && handlerCase.coachAllowed:
						want = http.StatusOK
					case tc.ownerCoach:
						want = http.StatusForbidden
					}

					req := handlerCase.newRequest()
					if tc.user != nil {
						req = req.WithContext(authz.ContextWithUser(req.Context(), tc.user))
					}
					recorder := httptest.NewRecorder()
					handlerCase.handler(recorder, req)
					if recorder.Code != want {
						t.Fatalf("status: got %d want %d: %s", recorder.Code, want, recorder.Body.String())
					}
				})
			}
		})
	}
}
