package purchases

// NOTE: Tests cannot use t.Parallel() due to shared package state.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codr1/Fitclub/internal/api/authz"
	"github.com/codr1/Fitclub/internal/config"
	appdb "github.com/codr1/Fitclub/internal/db"
	dbq "github.com/codr1/Fitclub/internal/db/queries"
	"github.com/codr1/Fitclub/internal/models"
	"github.com/codr1/Fitclub/internal/storage"
	"github.com/codr1/Fitclub/internal/testutil"
)

type fakeProofStore struct {
	mu      sync.Mutex
	saved   map[string][]byte
	deleted []string
}

func (s *fakeProofStore) Save(ctx context.Context, name string, contentType string, r io.Reader) (storage.Object, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.Object{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = make(map[string][]byte)
	}
	s.saved[name] = data
	return storage.Object{ID: name, URL: "https://proofs.example.com/" + name}, nil
}

func (s *fakeProofStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	return nil
}

type sentEmail struct {
	recipient string
	subject   string
	body      string
}

type fakeSender struct {
	sent chan sentEmail
}

func (f *fakeSender) Send(ctx context.Context, recipient, subject, body string) error {
	f.sent <- sentEmail{recipient: recipient, subject: subject, body: body}
	return nil
}

func (f *fakeSender) wait(t *testing.T) sentEmail {
	t.Helper()
	select {
	case msg := <-f.sent:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for email")
		return sentEmail{}
	}
}

type purchasesEnv struct {
	db      *appdb.DB
	fixture testutil.Fixture
	proofs  *fakeProofStore
	sender  *fakeSender
	pkg     dbq.Package
}

func setupPurchasesTest(t *testing.T) purchasesEnv {
	t.Helper()

	database := testutil.NewTestDB(t)
	fixture := testutil.Seed(t, database)
	pkg, err := database.Queries.CreatePackage(context.Background(), dbq.CreatePackageParams{
		Name:       "5 Class Pack",
		Credits:    5,
		ValidDays:  30,
		PriceCents: 7500,
	})
	if err != nil {
		t.Fatalf("create package: %v", err)
	}

	cfg := &config.Config{}
	cfg.App.Name = "Fitclub"
	cfg.Storage.MaxProofBytes = 1024

	env := purchasesEnv{
		db:      database,
		fixture: fixture,
		proofs:  &fakeProofStore{},
		sender:  &fakeSender{sent: make(chan sentEmail, 4)},
		pkg:     pkg,
	}

	queries = nil
	store = nil
	appConfig = nil
	proofs = nil
	emailClient = nil
	queriesOnce = sync.Once{}
	InitHandlers(database, cfg, env.proofs, env.sender)

	t.Cleanup(func() {
		queries = nil
		store = nil
		appConfig = nil
		proofs = nil
		emailClient = nil
		queriesOnce = sync.Once{}
	})

	return env
}

func withAuthUser(req *http.Request, user dbq.User) *http.Request {
	return req.WithContext(authz.ContextWithUser(req.Context(), &authz.AuthUser{
		ID:    user.ID,
		Email: user.Email,
		Role:  user.Role,
	}))
}

func createPurchase(t *testing.T, env purchasesEnv) dbq.Purchase {
	t.Helper()
	body := fmt.Sprintf(`{"package_id":%d,"location_id":%d}`, env.pkg.ID, env.fixture.Location.ID)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/purchases", strings.NewReader(body))
	rec := httptest.NewRecorder()
	HandlePurchaseCreate(rec, withAuthUser(req, env.fixture.Member))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create purchase status %d: %s", rec.Code, rec.Body.String())
	}
	var purchase dbq.Purchase
	if err := json.Unmarshal(rec.Body.Bytes(), &purchase); err != nil {
		t.Fatalf("decode purchase: %v", err)
	}
	return purchase
}

func proofRequest(t *testing.T, purchaseID int64, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(proofFormField, "receipt.bin")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/purchases/x/proof", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.SetPathValue("id", fmt.Sprint(purchaseID))
	return req
}

func TestPurchaseCreateSnapshotsTerms(t *testing.T) {
	env := setupPurchasesTest(t)

	purchase := createPurchase(t, env)
	if purchase.Status != dbq.PurchaseStatusPendingPayment {
		t.Fatalf("expected pending_payment, got %s", purchase.Status)
	}
	if purchase.PriceCents != 7500 || purchase.Credits != 5 || purchase.ValidDays != 30 {
		t.Fatalf("unexpected snapshot: %+v", purchase)
	}
	if purchase.Reference == "" {
		t.Fatal("expected purchase reference")
	}

	if _, err := env.db.Queries.SetPackageStatus(context.Background(), env.pkg.ID, dbq.StatusInactive); err != nil {
		t.Fatalf("deactivate package: %v", err)
	}
	body := fmt.Sprintf(`{"package_id":%d,"location_id":%d}`, env.pkg.ID, env.fixture.Location.ID)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/purchases", strings.NewReader(body))
	rec := httptest.NewRecorder()
	HandlePurchaseCreate(rec, withAuthUser(req, env.fixture.Member))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected inactive package to 404, got %d", rec.Code)
	}
}

func TestPurchaseProofUpload(t *testing.T) {
	env := setupPurchasesTest(t)
	purchase := createPurchase(t, env)

	tests := []struct {
		name    string
		user    dbq.User
		content []byte
		status  int
	}{
		{"plain text rejected", env.fixture.Member, []byte("definitely not a receipt"), http.StatusUnsupportedMediaType},
		{"too large", env.fixture.Member, append([]byte("%PDF-1.7\n"), bytes.Repeat([]byte("x"), 2048)...), http.StatusRequestEntityTooLarge},
		{"other member", env.fixture.Coach, []byte("%PDF-1.7\n"), http.StatusNotFound},
		{"pdf accepted", env.fixture.Member, []byte("%PDF-1.7\nreceipt"), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandlePurchaseProofUpload(rec, withAuthUser(proofRequest(t, purchase.ID, tt.content), tt.user))
			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}

	updated, err := env.db.Queries.GetPurchase(context.Background(), purchase.ID)
	if err != nil {
		t.Fatalf("get purchase: %v", err)
	}
	if updated.Status != dbq.PurchaseStatusPendingReview {
		t.Fatalf("expected pending_review, got %s", updated.Status)
	}
	if !strings.HasPrefix(updated.ProofURL, "https://proofs.example.com/") {
		t.Fatalf("unexpected proof url %q", updated.ProofURL)
	}
	if got := env.proofs.saved[updated.ProofStorageID]; !bytes.Equal(got, []byte("%PDF-1.7\nreceipt")) {
		t.Fatalf("stored proof mismatch: %q", got)
	}
}

func TestPurchaseApproveGrantsCreditsOnce(t *testing.T) {
	env := setupPurchasesTest(t)
	purchase := createPurchase(t, env)

	approve := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/purchases/x/approve", strings.NewReader(`{"note":"Bank transfer received"}`))
		req.SetPathValue("id", fmt.Sprint(purchase.ID))
		rec := httptest.NewRecorder()
		HandlePurchaseApprove(rec, withAuthUser(req, env.fixture.Admin))
		return rec
	}

	rec := approve()
	if rec.Code != http.StatusOK {
		t.Fatalf("approve status %d: %s", rec.Code, rec.Body.String())
	}

	summary, err := models.GetCreditSummary(context.Background(), env.db.Queries, env.fixture.Member.ID, time.Now())
	if err != nil {
		t.Fatalf("credit summary: %v", err)
	}
	if summary.Available != 5 {
		t.Fatalf("expected 5 credits, got %d", summary.Available)
	}

	msg := env.sender.wait(t)
	if msg.recipient != env.fixture.Member.Email || !strings.Contains(msg.subject, "Payment Approved") {
		t.Fatalf("unexpected email: %+v", msg)
	}

	rec = approve()
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected second approval to 409, got %d", rec.Code)
	}
	summary, err = models.GetCreditSummary(context.Background(), env.db.Queries, env.fixture.Member.ID, time.Now())
	if err != nil {
		t.Fatalf("credit summary: %v", err)
	}
	if summary.Available != 5 {
		t.Fatalf("expected credits unchanged after repeat approval, got %d", summary.Available)
	}
}

func TestPurchaseRejectRequiresNote(t *testing.T) {
	env := setupPurchasesTest(t)
	purchase := createPurchase(t, env)

	reject := func(body string, user dbq.User) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/purchases/x/reject", strings.NewReader(body))
		req.SetPathValue("id", fmt.Sprint(purchase.ID))
		rec := httptest.NewRecorder()
		HandlePurchaseReject(rec, withAuthUser(req, user))
		return rec
	}

	if rec := reject(`{"note":"nope"}`, env.fixture.Member); rec.Code != http.StatusForbidden {
		t.Fatalf("expected member forbidden, got %d", rec.Code)
	}
	if rec := reject(`{}`, env.fixture.Admin); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected missing note to 400, got %d", rec.Code)
	}
	rec := reject(`{"note":"Transfer not found"}`, env.fixture.Admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("reject status %d: %s", rec.Code, rec.Body.String())
	}

	msg := env.sender.wait(t)
	if !strings.Contains(msg.body, "Transfer not found") {
		t.Fatalf("expected rejection note in email, got %q", msg.body)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/purchases/x/cancel", nil)
	req.SetPathValue("id", fmt.Sprint(purchase.ID))
	rec = httptest.NewRecorder()
	HandlePurchaseCancel(rec, withAuthUser(req, env.fixture.Member))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected cancel of rejected purchase to 409, got %d", rec.Code)
	}
}

func TestPurchaseCancel(t *testing.T) {
	env := setupPurchasesTest(t)
	purchase := createPurchase(t, env)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/purchases/x/cancel", nil)
	req.SetPathValue("id", fmt.Sprint(purchase.ID))

	rec := httptest.NewRecorder()
	HandlePurchaseCancel(rec, withAuthUser(req, env.fixture.Coach))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected other user cancel to 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	HandlePurchaseCancel(rec, withAuthUser(req, env.fixture.Member))
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status %d: %s", rec.Code, rec.Body.String())
	}

	listReq := httptest.NewRequest(http.MethodGet, "/api/v1/admin/purchases?status=cancelled", nil)
	rec = httptest.NewRecorder()
	HandleAdminPurchasesList(rec, withAuthUser(listReq, env.fixture.Admin))
	var resp struct {
		Purchases []dbq.Purchase `json:"purchases"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(resp.Purchases) != 1 || resp.Purchases[0].ID != purchase.ID {
		t.Fatalf("expected cancelled purchase in list, got %+v", resp.Purchases)
	}
}
