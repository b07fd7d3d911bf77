// internal/models/purchases.go
package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbq "github.com/codr1/Fitclub/internal/db/queries"
	"github.com/codr1/Fitclub/internal/refcode"
)

var (
	ErrPackageUnavailable = errors.New("package unavailable")
	ErrPurchaseNotPending = errors.New("purchase is not pending")
)

type CreatePurchaseParams struct {
	UserID     int64
	PackageID  int64
	LocationID int64
}

// CreatePurchase snapshots the package terms and the member's effective price.
func CreatePurchase(ctx context.Context, q *dbq.Queries, params CreatePurchaseParams) (dbq.Purchase, error) {
	pkg, err := q.GetPackage(ctx, params.PackageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dbq.Purchase{}, ErrPackageUnavailable
		}
		return dbq.Purchase{}, err
	}
	if pkg.Status != dbq.StatusActive || !UsableAt(pkg, params.LocationID) {
		return dbq.Purchase{}, ErrPackageUnavailable
	}

	price, err := EffectivePrice(ctx, q, pkg, params.LocationID, params.UserID)
	if err != nil {
		return dbq.Purchase{}, err
	}
	reference, err := refcode.New()
	if err != nil {
		return dbq.Purchase{}, err
	}
	locationID := params.LocationID
	return q.CreatePurchase(ctx, dbq.CreatePurchaseParams{
		Reference:        reference,
		UserID:           params.UserID,
		PackageID:        pkg.ID,
		LocationID:       &locationID,
		PriceCents:       price,
		Credits:          pkg.Credits,
		ValidDays:        pkg.ValidDays,
		CreditLocationID: pkg.LocationID,
	})
}

type ApprovalResult struct {
	Purchase dbq.Purchase
	Package  dbq.Package
	Lot      dbq.CreditLot
}

// ApprovePurchase marks a pending purchase approved and grants its credits
// on the terms captured when the purchase was made. Call it with
// transaction-bound queries.
func ApprovePurchase(ctx context.Context, q *dbq.Queries, purchaseID, reviewerID int64, note string, now time.Time) (ApprovalResult, error) {
	purchase, err := q.ReviewPurchase(ctx, dbq.ReviewPurchaseParams{
		ID:         purchaseID,
		Status:     dbq.PurchaseStatusApproved,
		ReviewNote: note,
		ReviewedBy: reviewerID,
		ReviewedAt: now,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ApprovalResult{}, ErrPurchaseNotPending
		}
		return ApprovalResult{}, fmt.Errorf("approve purchase: %w", err)
	}

	pkg, err := q.GetPackage(ctx, purchase.PackageID)
	if err != nil {
		return ApprovalResult{}, fmt.Errorf("load package: %w", err)
	}

	purchaseRef := purchase.ID
	lot, err := GrantCredits(ctx, q, GrantCreditsParams{
		UserID:     purchase.UserID,
		PurchaseID: &purchaseRef,
		LocationID: purchase.CreditLocationID,
		Credits:    purchase.Credits,
		ValidDays:  purchase.ValidDays,
		Kind:       dbq.CreditKindGrant,
		Note:       "Purchase " + purchase.Reference,
		CreatedBy:  &reviewerID,
		Now:        now,
	})
	if err != nil {
		return ApprovalResult{}, err
	}
	return ApprovalResult{Purchase: purchase, Package: pkg, Lot: lot}, nil
}

func RejectPurchase(ctx context.Context, q *dbq.Queries, purchaseID, reviewerID int64, note string, now time.Time) (dbq.Purchase, error) {
	purchase, err := q.ReviewPurchase(ctx, dbq.ReviewPurchaseParams{
		ID:         purchaseID,
		Status:     dbq.PurchaseStatusRejected,
		ReviewNote: note,
		ReviewedBy: reviewerID,
		ReviewedAt: now,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return dbq.Purchase{}, ErrPurchaseNotPending
	}
	return purchase, err
}
