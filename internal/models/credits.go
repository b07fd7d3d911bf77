// internal/models/credits.go
package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbq "github.com/codr1/Fitclub/internal/db/queries"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidCreditAmount = errors.New("invalid credit amount")
)

// DefaultExpiryBatch is how many lots one expiry sweep handles.
const DefaultExpiryBatch = 500

// CreditQueries is the subset of queries the credit ledger needs. Pass
// transaction-bound queries when credit changes must be atomic with other writes.
type CreditQueries interface {
	CreateCreditLot(ctx context.Context, arg dbq.CreateCreditLotParams) (dbq.CreditLot, error)
	GetCreditLot(ctx context.Context, id int64) (dbq.CreditLot, error)
	ListUsableCreditLots(ctx context.Context, arg dbq.ListUsableCreditLotsParams) ([]dbq.CreditLot, error)
	ListCreditLotsByUser(ctx context.Context, userID int64) ([]dbq.CreditLot, error)
	DecrementCreditLot(ctx context.Context, id, amount int64) (dbq.CreditLot, error)
	IncrementCreditLot(ctx context.Context, id, amount int64) (dbq.CreditLot, error)
	ListExpiredCreditLots(ctx context.Context, now time.Time, limit int64) ([]dbq.CreditLot, error)
	ZeroCreditLot(ctx context.Context, id, expected int64) (int64, error)
	GetCreditBalance(ctx context.Context, userID int64, now time.Time) (dbq.CreditBalance, error)
	CreateCreditTransaction(ctx context.Context, arg dbq.CreateCreditTransactionParams) (dbq.CreditTransaction, error)
}

type CreditSummary struct {
	Available  int64           `json:"available"`
	NextExpiry *time.Time      `json:"nextExpiry,omitempty"`
	Lots       []dbq.CreditLot `json:"lots"`
}

// GetCreditSummary returns usable credits now plus every lot with credit left.
func GetCreditSummary(ctx context.Context, q CreditQueries, userID int64, now time.Time) (CreditSummary, error) {
	balance, err := q.GetCreditBalance(ctx, userID, now)
	if err != nil {
		return CreditSummary{}, fmt.Errorf("credit balance: %w", err)
	}
	lots, err := q.ListCreditLotsByUser(ctx, userID)
	if err != nil {
		return CreditSummary{}, fmt.Errorf("credit lots: %w", err)
	}
	active := make([]dbq.CreditLot, 0, len(lots))
	for _, lot := range lots {
		if lot.Remaining > 0 && lot.ExpiresAt.After(now) {
			active = append(active, lot)
		}
	}
	return CreditSummary{
		Available:  balance.Available,
		NextExpiry: balance.NextExpiry,
		Lots:       active,
	}, nil
}

type GrantCreditsParams struct {
	UserID     int64
	PurchaseID *int64
	LocationID *int64
	Credits    int64
	ValidDays  int64
	Kind       string
	Note       string
	CreatedBy  *int64
	Now        time.Time
}

// GrantCredits creates a lot and its ledger entry.
func GrantCredits(ctx context.Context, q CreditQueries, params GrantCreditsParams) (dbq.CreditLot, error) {
	if params.Credits <= 0 || params.ValidDays <= 0 {
		return dbq.CreditLot{}, ErrInvalidCreditAmount
	}
	kind := params.Kind
	if kind == "" {
		kind = dbq.CreditKindGrant
	}

	lot, err := q.CreateCreditLot(ctx, dbq.CreateCreditLotParams{
		UserID:     params.UserID,
		PurchaseID: params.PurchaseID,
		LocationID: params.LocationID,
		Total:      params.Credits,
		ExpiresAt:  params.Now.AddDate(0, 0, int(params.ValidDays)),
		CreatedAt:  params.Now,
	})
	if err != nil {
		return dbq.CreditLot{}, fmt.Errorf("create credit lot: %w", err)
	}
	if _, err := q.CreateCreditTransaction(ctx, dbq.CreateCreditTransactionParams{
		UserID:      params.UserID,
		CreditLotID: &lot.ID,
		Amount:      params.Credits,
		Kind:        kind,
		Note:        params.Note,
		CreatedBy:   params.CreatedBy,
		CreatedAt:   params.Now,
	}); err != nil {
		return dbq.CreditLot{}, fmt.Errorf("record credit grant: %w", err)
	}
	return lot, nil
}

type ConsumeCreditParams struct {
	UserID     int64
	LocationID int64
	// ValidAt is the class start; a lot must not expire before it.
	ValidAt time.Time
}

// ConsumeCredit takes one credit from the usable lot that expires first and
// returns that lot. The ledger entry is written by RecordConsumption once the
// booking exists.
func ConsumeCredit(ctx context.Context, q CreditQueries, params ConsumeCreditParams) (dbq.CreditLot, error) {
	locationID := params.LocationID
	lots, err := q.ListUsableCreditLots(ctx, dbq.ListUsableCreditLotsParams{
		UserID:     params.UserID,
		LocationID: &locationID,
		ValidAt:    params.ValidAt,
	})
	if err != nil {
		return dbq.CreditLot{}, fmt.Errorf("list credit lots: %w", err)
	}
	for _, lot := range lots {
		updated, err := q.DecrementCreditLot(ctx, lot.ID, 1)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return dbq.CreditLot{}, fmt.Errorf("consume credit: %w", err)
		}
		return updated, nil
	}
	return dbq.CreditLot{}, ErrInsufficientCredits
}

func RecordConsumption(ctx context.Context, q CreditQueries, booking dbq.Booking, now time.Time) error {
	_, err := q.CreateCreditTransaction(ctx, dbq.CreateCreditTransactionParams{
		UserID:      booking.UserID,
		CreditLotID: booking.CreditLotID,
		BookingID:   &booking.ID,
		Amount:      -1,
		Kind:        dbq.CreditKindConsume,
		Note:        "Booking " + booking.Reference,
		CreatedAt:   now,
	})
	if err != nil {
		return fmt.Errorf("record credit consumption: %w", err)
	}
	return nil
}

// RefundCredit returns the booking's credit to the lot it came from. The refund
// is recorded even when that lot has since expired.
func RefundCredit(ctx context.Context, q CreditQueries, booking dbq.Booking, note string, actorID *int64, now time.Time) error {
	if booking.CreditLotID == nil {
		return nil
	}
	if _, err := q.IncrementCreditLot(ctx, *booking.CreditLotID, 1); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("refund credit lot %d: lot is already full", *booking.CreditLotID)
		}
		return fmt.Errorf("refund credit: %w", err)
	}
	if _, err := q.CreateCreditTransaction(ctx, dbq.CreateCreditTransactionParams{
		UserID:      booking.UserID,
		CreditLotID: booking.CreditLotID,
		BookingID:   &booking.ID,
		Amount:      1,
		Kind:        dbq.CreditKindRefund,
		Note:        note,
		CreatedBy:   actorID,
		CreatedAt:   now,
	}); err != nil {
		return fmt.Errorf("record credit refund: %w", err)
	}
	return nil
}

type AdjustCreditsParams struct {
	UserID int64
	// Amount is signed; positive grants a new lot, negative deducts.
	Amount     int64
	ValidDays  int64
	LocationID *int64
	Note       string
	CreatedBy  int64
	Now        time.Time
}

// AdjustCredits applies an admin correction. Deductions drain lots in expiry
// order and fail with ErrInsufficientCredits when the balance is too small.
// Run inside a transaction so a failed deduction leaves no partial changes.
func AdjustCredits(ctx context.Context, q CreditQueries, params AdjustCreditsParams) error {
	if params.Amount == 0 {
		return ErrInvalidCreditAmount
	}
	createdBy := params.CreatedBy
	if params.Amount > 0 {
		_, err := GrantCredits(ctx, q, GrantCreditsParams{
			UserID:     params.UserID,
			LocationID: params.LocationID,
			Credits:    params.Amount,
			ValidDays:  params.ValidDays,
			Kind:       dbq.CreditKindAdjust,
			Note:       params.Note,
			CreatedBy:  &createdBy,
			Now:        params.Now,
		})
		return err
	}

	lots, err := q.ListUsableCreditLots(ctx, dbq.ListUsableCreditLotsParams{
		UserID:  params.UserID,
		ValidAt: params.Now,
	})
	if err != nil {
		return fmt.Errorf("list credit lots: %w", err)
	}
	needed := -params.Amount
	var available int64
	for _, lot := range lots {
		available += lot.Remaining
	}
	if available < needed {
		return ErrInsufficientCredits
	}

	for _, lot := range lots {
		if needed == 0 {
			break
		}
		take := min(lot.Remaining, needed)
		if _, err := q.DecrementCreditLot(ctx, lot.ID, take); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrInsufficientCredits
			}
			return fmt.Errorf("deduct credits: %w", err)
		}
		lotID := lot.ID
		if _, err := q.CreateCreditTransaction(ctx, dbq.CreateCreditTransactionParams{
			UserID:      params.UserID,
			CreditLotID: &lotID,
			Amount:      -take,
			Kind:        dbq.CreditKindAdjust,
			Note:        params.Note,
			CreatedBy:   &createdBy,
			CreatedAt:   params.Now,
		}); err != nil {
			return fmt.Errorf("record credit adjustment: %w", err)
		}
		needed -= take
	}
	return nil
}

type ExpiryResult struct {
	Lots    int64
	Credits int64
	// More is set when the batch was full and expired lots may remain.
	More bool
}

// ExpireCredits zeroes up to limit lots past their expiry and writes an
// expire entry for each. Lots touched concurrently are skipped and picked up
// by the next sweep.
func ExpireCredits(ctx context.Context, q CreditQueries, now time.Time, limit int64) (ExpiryResult, error) {
	var result ExpiryResult
	if limit <= 0 {
		limit = DefaultExpiryBatch
	}
	lots, err := q.ListExpiredCreditLots(ctx, now, limit)
	if err != nil {
		return result, fmt.Errorf("list expired credit lots: %w", err)
	}
	result.More = int64(len(lots)) == limit
	for _, lot := range lots {
		affected, err := q.ZeroCreditLot(ctx, lot.ID, lot.Remaining)
		if err != nil {
			return result, fmt.Errorf("expire credit lot %d: %w", lot.ID, err)
		}
		if affected == 0 {
			continue
		}
		lotID := lot.ID
		if _, err := q.CreateCreditTransaction(ctx, dbq.CreateCreditTransactionParams{
			UserID:      lot.UserID,
			CreditLotID: &lotID,
			Amount:      -lot.Remaining,
			Kind:        dbq.CreditKindExpire,
			Note:        "Credits expired",
			CreatedAt:   now,
		}); err != nil {
			return result, fmt.Errorf("record credit expiry: %w", err)
		}
		result.Lots++
		result.Credits += lot.Remaining
	}
	return result, nil
}
