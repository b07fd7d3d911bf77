package models

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codr1/Fitclub/internal/db"
	dbq "github.com/codr1/Fitclub/internal/db/queries"
	"github.com/codr1/Fitclub/internal/testutil"
)

var testNow = time.Date(2030, time.January, 7, 9, 0, 0, 0, time.UTC)

func setupModelsTest(t *testing.T) (*db.DB, testutil.Fixture) {
	t.Helper()
	database := testutil.NewTestDB(t)
	return database, testutil.Seed(t, database)
}

func TestConsumeCreditUsesEarliestExpiringLot(t *testing.T) {
	database, f := setupModelsTest(t)
	ctx := context.Background()

	later := testutil.SeedCredits(t, database, f.Member.ID, 5, testNow.AddDate(0, 2, 0))
	sooner := testutil.SeedCredits(t, database, f.Member.ID, 5, testNow.AddDate(0, 1, 0))

	lot, err := ConsumeCredit(ctx, database.Queries, ConsumeCreditParams{
		UserID:     f.Member.ID,
		LocationID: f.Location.ID,
		ValidAt:    testNow.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if lot.ID != sooner.ID {
		t.Fatalf("consumed lot %d, want %d", lot.ID, sooner.ID)
	}
	if lot.Remaining != 4 {
		t.Fatalf("remaining = %d, want 4", lot.Remaining)
	}

	untouched, err := database.Queries.GetCreditLot(ctx, later.ID)
	if err != nil {
		t.Fatalf("get lot: %v", err)
	}
	if untouched.Remaining != 5 {
		t.Fatalf("later lot remaining = %d", untouched.Remaining)
	}
}

func TestConsumeCreditSkipsIneligibleLots(t *testing.T) {
	database, f := setupModelsTest(t)
	ctx := context.Background()
	classStart := testNow.Add(48 * time.Hour)

	// Expires before the class starts.
	testutil.SeedCredits(t, database, f.Member.ID, 3, testNow.Add(24*time.Hour))

	other, err := database.Queries.CreateLocation(ctx, dbq.CreateLocationParams{
		Name:     "Harbour",
		Timezone: "UTC",
	})
	if err != nil {
		t.Fatalf("create location: %v", err)
	}
	if _, err := database.Queries.CreateCreditLot(ctx, dbq.CreateCreditLotParams{
		UserID:     f.Member.ID,
		LocationID: &other.ID,
		Total:      3,
		ExpiresAt:  testNow.AddDate(0, 1, 0),
		CreatedAt:  testNow,
	}); err != nil {
		t.Fatalf("create restricted lot: %v", err)
	}

	_, err = ConsumeCredit(ctx, database.Queries, ConsumeCreditParams{
		UserID:     f.Member.ID,
		LocationID: f.Location.ID,
		ValidAt:    classStart,
	})
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}

	lot, err := ConsumeCredit(ctx, database.Queries, ConsumeCreditParams{
		UserID:     f.Member.ID,
		LocationID: other.ID,
		ValidAt:    classStart,
	})
	if err != nil {
		t.Fatalf("consume at restricted location: %v", err)
	}
	if lot.LocationID == nil || *lot.LocationID != other.ID {
		t.Fatalf("expected restricted lot, got %+v", lot)
	}
}

func TestGrantCreditsWritesLedger(t *testing.T) {
	database, f := setupModelsTest(t)
	ctx := context.Background()

	lot, err := GrantCredits(ctx, database.Queries, GrantCreditsParams{
		UserID:    f.Member.ID,
		Credits:   10,
		ValidDays: 30,
		Note:      "welcome",
		CreatedBy: &f.Admin.ID,
		Now:       testNow,
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !lot.ExpiresAt.Equal(testNow.AddDate(0, 0, 30)) {
		t.Fatalf("expires_at = %s", lot.ExpiresAt)
	}

	entries, err := database.Queries.ListCreditTransactions(ctx, dbq.ListCreditTransactionsParams{
		UserID: f.Member.ID,
		Limit:  10,
	})
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(entries) != 1 || entries[0].Kind != dbq.CreditKindGrant || entries[0].Amount != 10 {
		t.Fatalf("unexpected ledger: %+v", entries)
	}

	if _, err := GrantCredits(ctx, database.Queries, GrantCreditsParams{UserID: f.Member.ID, Credits: 0, ValidDays: 30, Now: testNow}); !errors.Is(err, ErrInvalidCreditAmount) {
		t.Fatalf("expected ErrInvalidCreditAmount, got %v", err)
	}
}

func TestAdjustCredits(t *testing.T) {
	database, f := setupModelsTest(t)
	ctx := context.Background()

	first := testutil.SeedCredits(t, database, f.Member.ID, 2, testNow.AddDate(0, 0, 10))
	second := testutil.SeedCredits(t, database, f.Member.ID, 4, testNow.AddDate(0, 0, 20))

	err := AdjustCredits(ctx, database.Queries, AdjustCreditsParams{
		UserID:    f.Member.ID,
		Amount:    -7,
		Note:      "too many",
		CreatedBy: f.Admin.ID,
		Now:       testNow,
	})
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}

	if err := AdjustCredits(ctx, database.Queries, AdjustCreditsParams{
		UserID:    f.Member.ID,
		Amount:    -3,
		Note:      "correction",
		CreatedBy: f.Admin.ID,
		Now:       testNow,
	}); err != nil {
		t.Fatalf("deduct: %v", err)
	}

	for _, want := range []struct {
		id        int64
		remaining int64
	}{{first.ID, 0}, {second.ID, 3}} {
		lot, err := database.Queries.GetCreditLot(ctx, want.id)
		if err != nil {
			t.Fatalf("get lot: %v", err)
		}
		if lot.Remaining != want.remaining {
			t.Fatalf("lot %d remaining = %d, want %d", want.id, lot.Remaining, want.remaining)
		}
	}

	if err := AdjustCredits(ctx, database.Queries, AdjustCreditsParams{
		UserID:    f.Member.ID,
		Amount:    5,
		ValidDays: 60,
		CreatedBy: f.Admin.ID,
		Now:       testNow,
	}); err != nil {
		t.Fatalf("grant adjustment: %v", err)
	}

	balance, err := database.Queries.GetCreditBalance(ctx, f.Member.ID, testNow)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Available != 8 {
		t.Fatalf("available = %d, want 8", balance.Available)
	}
}

func TestExpireCredits(t *testing.T) {
	database, f := setupModelsTest(t)
	ctx := context.Background()

	expired := testutil.SeedCredits(t, database, f.Member.ID, 4, testNow.Add(-time.Hour))
	testutil.SeedCredits(t, database, f.Member.ID, 2, testNow.Add(time.Hour))

	result, err := ExpireCredits(ctx, database.Queries, testNow, DefaultExpiryBatch)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if result.Lots != 1 || result.Credits != 4 {
		t.Fatalf("unexpected result: %+v", result)
	}

	lot, err := database.Queries.GetCreditLot(ctx, expired.ID)
	if err != nil {
		t.Fatalf("get lot: %v", err)
	}
	if lot.Remaining != 0 {
		t.Fatalf("remaining = %d", lot.Remaining)
	}

	again, err := ExpireCredits(ctx, database.Queries, testNow, DefaultExpiryBatch)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if again.Lots != 0 {
		t.Fatalf("second sweep expired %d lots", again.Lots)
	}

	summary, err := GetCreditSummary(ctx, database.Queries, f.Member.ID, testNow)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Available != 2 || len(summary.Lots) != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestExpireCreditsReportsFullBatch(t *testing.T) {
	database, f := setupModelsTest(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		testutil.SeedCredits(t, database, f.Member.ID, 1, testNow.Add(-time.Hour))
	}

	first, err := ExpireCredits(ctx, database.Queries, testNow, 2)
	if err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if first.Lots != 2 || !first.More {
		t.Fatalf("first batch: %+v", first)
	}

	second, err := ExpireCredits(ctx, database.Queries, testNow, 2)
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if second.Lots != 1 || second.More {
		t.Fatalf("second batch: %+v", second)
	}
}
