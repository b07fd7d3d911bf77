package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/codr1/Fitclub/internal/api/authz"
	"github.com/codr1/Fitclub/internal/config"
	dbq "github.com/codr1/Fitclub/internal/db/queries"
	"github.com/codr1/Fitclub/internal/testutil"
)

func withTestSecret(t *testing.T) {
	t.Helper()
	prevConfig := appConfig
	appConfig = &config.Config{}
	appConfig.App.SecretKey = "test-secret"
	t.Cleanup(func() {
		appConfig = prevConfig
	})
}

func TestParseAuthCookieSessionType(t *testing.T) {
	withTestSecret(t)

	sessionPayload := authSession{
		UserID:      42,
		Role:        authz.RoleCoach,
		SessionType: SessionTypeStaff,
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
	}

	payloadBytes, err := json.Marshal(sessionPayload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	req := makeAuthRequest(t, payloadBytes)

	session, err := parseAuthCookie(req)
	if err != nil {
		t.Fatalf("parse auth cookie: %v", err)
	}
	if session == nil {
		t.Fatal("expected session, got nil")
	}
	if session.SessionType != SessionTypeStaff {
		t.Fatalf("expected session type %q, got %q", SessionTypeStaff, session.SessionType)
	}
	if session.Role != authz.RoleCoach {
		t.Fatalf("expected role %q, got %q", authz.RoleCoach, session.Role)
	}
}

func TestParseAuthCookieRejectsTampering(t *testing.T) {
	withTestSecret(t)

	payloadBytes, err := json.Marshal(authSession{UserID: 42, Role: authz.RoleMember, ExpiresAt: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	encodedPayload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	signature, err := signPayload(encodedPayload)
	if err != nil {
		t.Fatalf("sign payload: %v", err)
	}

	forged, err := json.Marshal(authSession{UserID: 42, Role: authz.RoleAdmin, ExpiresAt: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("marshal forged payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{
		Name:  authCookieName,
		Value: base64.RawURLEncoding.EncodeToString(forged) + "." + signature,
	})

	if _, err := parseAuthCookie(req); err == nil {
		t.Fatal("expected forged cookie to be rejected")
	}
}

func TestParseAuthCookieExpired(t *testing.T) {
	withTestSecret(t)

	payloadBytes, err := json.Marshal(authSession{UserID: 42, ExpiresAt: time.Now().Add(-time.Minute).Unix()})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if _, err := parseAuthCookie(makeAuthRequest(t, payloadBytes)); err == nil {
		t.Fatal("expected expired cookie to be rejected")
	}
}

func TestNormalizeSessionTypeUnknownDefaultsToMember(t *testing.T) {
	normalized := normalizeSessionType("unknown")
	if normalized != SessionTypeMember {
		t.Fatalf("expected session type %q, got %q", SessionTypeMember, normalized)
	}
	if role := normalizeRole("superuser"); role != authz.RoleMember {
		t.Fatalf("expected role %q, got %q", authz.RoleMember, role)
	}
}

func TestUserFromRequestUsesServerSession(t *testing.T) {
	withTestSecret(t)
	database := testutil.NewTestDB(t)
	prevQueries := queries
	queries = database.Queries
	t.Cleanup(func() { queries = prevQueries })

	coach := testutil.SeedUser(t, database, "coach@test.com", dbq.RoleCoach)

	rec := httptest.NewRecorder()
	if err := CreateSession(rec, coach.ID); err != nil {
		t.Fatalf("create session: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	user, err := UserFromRequest(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatalf("user from request: %v", err)
	}
	if user == nil || user.ID != coach.ID {
		t.Fatalf("expected coach %d, got %+v", coach.ID, user)
	}
	if user.Role != authz.RoleCoach || user.SessionType != SessionTypeStaff {
		t.Fatalf("expected coach staff session, got role=%q type=%q", user.Role, user.SessionType)
	}

	// Deactivated accounts lose their session on the next request.
	if _, err := database.Queries.UpdateUserAdmin(context.Background(), dbq.UpdateUserAdminParams{
		ID:     coach.ID,
		Role:   dbq.RoleCoach,
		Status: dbq.StatusInactive,
	}); err != nil {
		t.Fatalf("deactivate coach: %v", err)
	}
	user, err = UserFromRequest(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatalf("user from request after deactivation: %v", err)
	}
	if user != nil {
		t.Fatalf("expected no user after deactivation, got %+v", user)
	}
}

func makeAuthRequest(t *testing.T, payload []byte) *http.Request {
	t.Helper()

	encodedPayload := base64.RawURLEncoding.EncodeToString(payload)
	signature, err := signPayload(encodedPayload)
	if err != nil {
		t.Fatalf("sign payload: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{
		Name:  authCookieName,
		Value: encodedPayload + "." + signature,
	})

	return req
}
