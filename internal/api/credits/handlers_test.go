package credits

// NOTE: Tests cannot use t.Parallel() due to shared package state.

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codr1/Fitclub/internal/api/authz"
	appdb "github.com/codr1/Fitclub/internal/db"
	dbq "github.com/codr1/Fitclub/internal/db/queries"
	"github.com/codr1/Fitclub/internal/models"
	"github.com/codr1/Fitclub/internal/testutil"
)

func setupCreditsTest(t *testing.T) (*appdb.DB, testutil.Fixture) {
	t.Helper()

	database := testutil.NewTestDB(t)
	fixture := testutil.Seed(t, database)

	queries = nil
	store = nil
	queriesOnce = sync.Once{}
	InitHandlers(database)

	t.Cleanup(func() {
		queries = nil
		store = nil
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

func adjust(t *testing.T, f testutil.Fixture, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/members/x/credits/adjust", strings.NewReader(body))
	req.SetPathValue("id", fmt.Sprint(f.Member.ID))
	rec := httptest.NewRecorder()
	HandleCreditAdjust(rec, withAuthUser(req, f.Admin))
	return rec
}

func TestHandleMyCredits(t *testing.T) {
	database, f := setupCreditsTest(t)
	testutil.SeedCredits(t, database, f.Member.ID, 3, time.Now().Add(72*time.Hour))
	testutil.SeedCredits(t, database, f.Member.ID, 4, time.Now().Add(-time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)
	rec := httptest.NewRecorder()
	HandleMyCredits(rec, withAuthUser(req, f.Member))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var summary models.CreditSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Available != 3 {
		t.Fatalf("expected expired lot excluded, got %d available", summary.Available)
	}
	if len(summary.Lots) != 1 || summary.NextExpiry == nil {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestHandleCreditAdjust(t *testing.T) {
	database, f := setupCreditsTest(t)
	testutil.SeedCredits(t, database, f.Member.ID, 2, time.Now().Add(24*time.Hour))
	testutil.SeedCredits(t, database, f.Member.ID, 2, time.Now().Add(48*time.Hour))

	tests := []struct {
		name      string
		body      string
		status    int
		available int64
	}{
		{"missing note", `{"amount":1}`, http.StatusBadRequest, 4},
		{"zero amount", `{"amount":0,"note":"noop"}`, http.StatusBadRequest, 4},
		{"grant", `{"amount":3,"valid_days":10,"note":"Goodwill"}`, http.StatusOK, 7},
		{"deduct across lots", `{"amount":-5,"note":"Correction"}`, http.StatusOK, 2},
		{"deduct too many", `{"amount":-3,"note":"Too far"}`, http.StatusConflict, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := adjust(t, f, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			summary, err := models.GetCreditSummary(context.Background(), database.Queries, f.Member.ID, time.Now())
			if err != nil {
				t.Fatalf("summary: %v", err)
			}
			if summary.Available != tt.available {
				t.Fatalf("expected %d available, got %d", tt.available, summary.Available)
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits/ledger", nil)
	rec := httptest.NewRecorder()
	HandleMyLedger(rec, withAuthUser(req, f.Member))
	var resp struct {
		Transactions []dbq.CreditTransaction `json:"transactions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode ledger: %v", err)
	}
	var adjustments int
	for _, entry := range resp.Transactions {
		if entry.Kind == dbq.CreditKindAdjust {
			adjustments++
		}
	}
	// One grant plus one deduction per lot touched.
	if adjustments != 4 {
		t.Fatalf("expected 4 adjust entries, got %d", adjustments)
	}
}

func TestHandleMemberCreditsAdminOnly(t *testing.T) {
	_, f := setupCreditsTest(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/members/x/credits", nil)
	req.SetPathValue("id", fmt.Sprint(f.Admin.ID))
	rec := httptest.NewRecorder()
	HandleMemberCredits(rec, withAuthUser(req, f.Member))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected member forbidden, got %d", rec.Code)
	}

	req.SetPathValue("id", "9999")
	rec = httptest.NewRecorder()
	HandleMemberCredits(rec, withAuthUser(req, f.Admin))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected unknown member 404, got %d", rec.Code)
	}
}
