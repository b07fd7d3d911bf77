package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/time/rate"

	"github.com/codr1/Fitclub/internal/api/authz"
	"github.com/codr1/Fitclub/internal/cognito"
	"github.com/codr1/Fitclub/internal/config"
	dbq "github.com/codr1/Fitclub/internal/db/queries"
	"github.com/codr1/Fitclub/internal/ratelimit"
	"github.com/codr1/Fitclub/internal/testutil"
)

const testPassword = "correct-horse-9"

type authTestContext struct {
	member dbq.User
}

type fakeOTP struct {
	session     string
	code        string
	verifyErr   error
	initiated   []string
	provisioned []string
}

func (f *fakeOTP) InitiateEmailOTP(ctx context.Context, email string) (string, error) {
	f.initiated = append(f.initiated, email)
	return f.session, nil
}

func (f *fakeOTP) VerifyEmailOTP(ctx context.Context, session, email, code string) error {
	if f.verifyErr != nil {
		return f.verifyErr
	}
	if session != f.session || code != f.code {
		return cognito.ErrCognitoCodeMismatch
	}
	return nil
}

func (f *fakeOTP) CreateUser(ctx context.Context, email string) error {
	f.provisioned = append(f.provisioned, email)
	return nil
}

func setupAuthTest(t *testing.T, env string) authTestContext {
	t.Helper()

	database := testutil.NewTestDB(t)

	// Save and restore global state
	prevConfig := appConfig
	prevQueries := queries
	prevOTP := otpClient
	prevLimiter := limiter
	prevAttempts := attempts
	t.Cleanup(func() {
		attempts.Close()
		appConfig = prevConfig
		queries = prevQueries
		otpClient = prevOTP
		limiter = prevLimiter
		attempts = prevAttempts
	})

	// Set up config with specified environment
	appConfig = &config.Config{}
	appConfig.App.Environment = env
	appConfig.App.SecretKey = "test-secret-key"

	queries = database.Queries
	otpClient = nil
	limiter = rate.NewLimiter(rate.Inf, 0)
	attempts = ratelimit.New(ratelimit.DefaultConfig())

	hash, err := HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	member, err := database.Queries.CreateUser(context.Background(), dbq.CreateUserParams{
		Email:        "member@test.com",
		FirstName:    "Test",
		LastName:     "Member",
		Role:         dbq.RoleMember,
		PasswordHash: hash,
	})
	if err != nil {
		t.Fatalf("insert member user: %v", err)
	}

	return authTestContext{member: member}
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func hasCookie(rec *httptest.ResponseRecorder, name string) bool {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name && c.Value != "" {
			return true
		}
	}
	return false
}

func TestRegisterCreatesMemberAndSession(t *testing.T) {
	setupAuthTest(t, "production")

	body := `{"email":" New.Member@Test.com ","password":"longenough","first_name":"Ada","last_name":"Lovelace","phone":"(415) 555-2671"}`
	rec := httptest.NewRecorder()
	HandleRegister(rec, jsonRequest(http.MethodPost, "/api/v1/auth/register", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		User dbq.User `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.User.Email != "new.member@test.com" {
		t.Fatalf("expected normalized email, got %q", resp.User.Email)
	}
	if resp.User.Role != dbq.RoleMember {
		t.Fatalf("expected member role, got %q", resp.User.Role)
	}
	if resp.User.Phone == nil || *resp.User.Phone != "+14155552671" {
		t.Fatalf("expected E.164 phone, got %v", resp.User.Phone)
	}
	if !hasCookie(rec, sessionCookieName) || !hasCookie(rec, authCookieName) {
		t.Fatal("expected session and auth cookies to be set")
	}
}

func TestRegisterValidation(t *testing.T) {
	setupAuthTest(t, "production")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"short password", `{"email":"a@test.com","password":"short","first_name":"A","last_name":"B"}`, http.StatusBadRequest},
		{"bad email", `{"email":"not-an-email","password":"longenough","first_name":"A","last_name":"B"}`, http.StatusBadRequest},
		{"missing name", `{"email":"a@test.com","password":"longenough","last_name":"B"}`, http.StatusBadRequest},
		{"bad phone", `{"email":"a@test.com","password":"longenough","first_name":"A","last_name":"B","phone":"12"}`, http.StatusBadRequest},
		{"unknown field", `{"email":"a@test.com","password":"longenough","first_name":"A","last_name":"B","role":"admin"}`, http.StatusBadRequest},
		{"duplicate email", `{"email":"MEMBER@test.com","password":"longenough","first_name":"A","last_name":"B"}`, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleRegister(rec, jsonRequest(http.MethodPost, "/api/v1/auth/register", tt.body))
			if rec.Code != tt.want {
				t.Fatalf("expected status %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestLoginSetsCookies(t *testing.T) {
	setupAuthTest(t, "production")

	rec := httptest.NewRecorder()
	HandleLogin(rec, jsonRequest(http.MethodPost, "/api/v1/auth/login", `{"email":"Member@Test.com","password":"`+testPassword+`"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !hasCookie(rec, sessionCookieName) || !hasCookie(rec, authCookieName) {
		t.Fatal("expected session and auth cookies to be set")
	}
}

func TestLoginLocksOutAfterRepeatedFailures(t *testing.T) {
	setupAuthTest(t, "production")

	maxFailures := ratelimit.DefaultConfig().AttemptMaxFailures
	for i := 0; i < maxFailures; i++ {
		rec := httptest.NewRecorder()
		HandleLogin(rec, jsonRequest(http.MethodPost, "/api/v1/auth/login", `{"email":"member@test.com","password":"wrong-password"}`))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected status 401, got %d", i+1, rec.Code)
		}
	}

	// Even the right password is refused while locked out.
	rec := httptest.NewRecorder()
	HandleLogin(rec, jsonRequest(http.MethodPost, "/api/v1/auth/login", `{"email":"member@test.com","password":"`+testPassword+`"}`))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	tc := setupAuthTest(t, "production")

	if _, err := queries.UpdateUserAdmin(context.Background(), dbq.UpdateUserAdminParams{
		ID:     tc.member.ID,
		Role:   dbq.RoleMember,
		Status: dbq.StatusInactive,
	}); err != nil {
		t.Fatalf("deactivate user: %v", err)
	}

	rec := httptest.NewRecorder()
	HandleLogin(rec, jsonRequest(http.MethodPost, "/api/v1/auth/login", `{"email":"member@test.com","password":"`+testPassword+`"}`))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestChangePasswordRequiresCurrentPassword(t *testing.T) {
	tc := setupAuthTest(t, "production")

	withUser := func(body string) *http.Request {
		req := jsonRequest(http.MethodPost, "/api/v1/auth/password", body)
		ctx := authz.ContextWithUser(req.Context(), authUserFromRecord(tc.member))
		return req.WithContext(ctx)
	}

	rec := httptest.NewRecorder()
	HandleChangePassword(rec, withUser(`{"current_password":"nope","new_password":"another-secret"}`))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	HandleChangePassword(rec, withUser(`{"current_password":"`+testPassword+`","new_password":"another-secret"}`))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d: %s", rec.Code, rec.Body.String())
	}

	user, err := queries.GetUserByID(context.Background(), tc.member.ID)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if !VerifyPassword(user.PasswordHash, "another-secret") {
		t.Fatal("expected new password to be stored")
	}
}

func TestMeRequiresSession(t *testing.T) {
	setupAuthTest(t, "production")

	rec := httptest.NewRecorder()
	HandleMe(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestDevBypassSendCode(t *testing.T) {
	setupAuthTest(t, devEnvironment)

	rec := httptest.NewRecorder()
	HandleSendCode(rec, jsonRequest(http.MethodPost, "/api/v1/auth/otp/send", `{"email":"member@test.com"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), devBypassSession) {
		t.Errorf("expected body to contain dev session token %q, got: %s", devBypassSession, rec.Body.String())
	}
}

func TestDevBypassVerifyCode(t *testing.T) {
	setupAuthTest(t, devEnvironment)

	body := `{"email":"member@test.com","session":"` + devBypassSession + `","code":"` + devBypassCode + `"}`
	rec := httptest.NewRecorder()
	HandleVerifyCode(rec, jsonRequest(http.MethodPost, "/api/v1/auth/otp/verify", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !hasCookie(rec, authCookieName) {
		t.Error("expected auth cookie to be set")
	}
}

func TestDevBypassWrongCodeFails(t *testing.T) {
	setupAuthTest(t, devEnvironment)

	body := `{"email":"member@test.com","session":"` + devBypassSession + `","code":"999999"}`
	rec := httptest.NewRecorder()
	HandleVerifyCode(rec, jsonRequest(http.MethodPost, "/api/v1/auth/otp/verify", body))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if hasCookie(rec, authCookieName) {
		t.Error("wrong code must not grant a session")
	}
}

func TestOTPUnavailableInProductionWithoutCognito(t *testing.T) {
	setupAuthTest(t, "production")

	body := `{"email":"member@test.com","session":"` + devBypassSession + `","code":"` + devBypassCode + `"}`
	rec := httptest.NewRecorder()
	HandleVerifyCode(rec, jsonRequest(http.MethodPost, "/api/v1/auth/otp/verify", body))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	HandleSendCode(rec, jsonRequest(http.MethodPost, "/api/v1/auth/otp/send", `{"email":"member@test.com"}`))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
}

func TestOTPWithProvider(t *testing.T) {
	setupAuthTest(t, "production")
	fake := &fakeOTP{session: "cognito-session", code: "424242"}
	otpClient = fake

	rec := httptest.NewRecorder()
	HandleSendCode(rec, jsonRequest(http.MethodPost, "/api/v1/auth/otp/send", `{"email":"member@test.com"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("send: expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(fake.initiated) != 1 {
		t.Fatalf("expected one initiate call, got %d", len(fake.initiated))
	}

	rec = httptest.NewRecorder()
	HandleVerifyCode(rec, jsonRequest(http.MethodPost, "/api/v1/auth/otp/verify", `{"email":"member@test.com","session":"cognito-session","code":"424242"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestOTPVerifyUnknownEmailForbidden(t *testing.T) {
	setupAuthTest(t, "production")
	otpClient = &fakeOTP{session: "s", code: "424242"}

	rec := httptest.NewRecorder()
	HandleVerifyCode(rec, jsonRequest(http.MethodPost, "/api/v1/auth/otp/verify", `{"email":"stranger@test.com","session":"s","code":"424242"}`))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
}

func TestIsDevMode(t *testing.T) {
	prevConfig := appConfig
	t.Cleanup(func() { appConfig = prevConfig })

	tests := []struct {
		name     string
		env      string
		expected bool
	}{
		{"development", devEnvironment, true},
		{"production", "production", false},
		{"staging", "staging", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appConfig = &config.Config{}
			appConfig.App.Environment = tt.env

			if got := isDevMode(); got != tt.expected {
				t.Errorf("isDevMode() with env=%q: got %v, want %v", tt.env, got, tt.expected)
			}
		})
	}

	// Test nil config
	t.Run("nil config", func(t *testing.T) {
		appConfig = nil
		if isDevMode() {
			t.Error("isDevMode() with nil config should return false")
		}
	})
}
