// internal/db/queries/purchases.go
package queries

import (
	"context"
	"time"
)

const purchaseColumns = `id, reference, user_id, package_id, location_id, price_cents, credits, valid_days, status,
    proof_url, proof_storage_id, proof_uploaded_at, review_note, reviewed_by, reviewed_at, created_at, credit_location_id`

func scanPurchase(row rowScanner) (Purchase, error) {
	var i Purchase
	err := row.Scan(
		&i.ID,
		&i.Reference,
		&i.UserID,
		&i.PackageID,
		&i.LocationID,
		&i.PriceCents,
		&i.Credits,
		&i.ValidDays,
		&i.Status,
		&i.ProofURL,
		&i.ProofStorageID,
		&i.ProofUploadedAt,
		&i.ReviewNote,
		&i.ReviewedBy,
		&i.ReviewedAt,
		&i.CreatedAt,
		&i.CreditLocationID,
	)
	return i, err
}

type CreatePurchaseParams struct {
	Reference  string
	UserID     int64
	PackageID  int64
	LocationID *int64
	PriceCents int64
	Credits    int64
	ValidDays  int64
	// CreditLocationID is the package's location restriction at purchase time.
	CreditLocationID *int64
}

const createPurchase = `
INSERT INTO purchases (reference, user_id, package_id, location_id, price_cents, credits, valid_days, credit_location_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + purchaseColumns

func (q *Queries) CreatePurchase(ctx context.Context, arg CreatePurchaseParams) (Purchase, error) {
	row := q.db.QueryRowContext(ctx, createPurchase,
		arg.Reference,
		arg.UserID,
		arg.PackageID,
		arg.LocationID,
		arg.PriceCents,
		arg.Credits,
		arg.ValidDays,
		arg.CreditLocationID,
	)
	return scanPurchase(row)
}

const getPurchase = `SELECT ` + purchaseColumns + ` FROM purchases WHERE id = ?`

func (q *Queries) GetPurchase(ctx context.Context, id int64) (Purchase, error) {
	return scanPurchase(q.db.QueryRowContext(ctx, getPurchase, id))
}

const listPurchasesByUser = `
SELECT ` + purchaseColumns + `
FROM purchases
WHERE user_id = ?
ORDER BY created_at DESC, id DESC`

func (q *Queries) ListPurchasesByUser(ctx context.Context, userID int64) ([]Purchase, error) {
	rows, err := q.db.QueryContext(ctx, listPurchasesByUser, userID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanPurchase)
}

type ListPurchasesParams struct {
	Status string
	Limit  int64
	Offset int64
}

const listPurchases = `
SELECT ` + purchaseColumns + `
FROM purchases
WHERE (? = '' OR status = ?)
ORDER BY created_at, id
LIMIT ? OFFSET ?`

func (q *Queries) ListPurchases(ctx context.Context, arg ListPurchasesParams) ([]Purchase, error) {
	rows, err := q.db.QueryContext(ctx, listPurchases, arg.Status, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanPurchase)
}

type AttachPurchaseProofParams struct {
	ID             int64
	UserID         int64
	ProofURL       string
	ProofStorageID string
	UploadedAt     time.Time
}

const attachPurchaseProof = `
UPDATE purchases
SET proof_url = ?, proof_storage_id = ?, proof_uploaded_at = ?, status = 'pending_review'
WHERE id = ? AND user_id = ? AND status IN ('pending_payment', 'pending_review')
RETURNING ` + purchaseColumns

// AttachPurchaseProof moves a pending purchase to pending_review. A re-upload while
// under review replaces the previous proof.
func (q *Queries) AttachPurchaseProof(ctx context.Context, arg AttachPurchaseProofParams) (Purchase, error) {
	row := q.db.QueryRowContext(ctx, attachPurchaseProof,
		arg.ProofURL,
		arg.ProofStorageID,
		ts(arg.UploadedAt),
		arg.ID,
		arg.UserID,
	)
	return scanPurchase(row)
}

type ReviewPurchaseParams struct {
	ID         int64
	Status     string
	ReviewNote string
	ReviewedBy int64
	ReviewedAt time.Time
}

const reviewPurchase = `
UPDATE purchases
SET status = ?, review_note = ?, reviewed_by = ?, reviewed_at = ?
WHERE id = ? AND status IN ('pending_payment', 'pending_review')
RETURNING ` + purchaseColumns

// ReviewPurchase returns sql.ErrNoRows when the purchase is no longer pending.
func (q *Queries) ReviewPurchase(ctx context.Context, arg ReviewPurchaseParams) (Purchase, error) {
	row := q.db.QueryRowContext(ctx, reviewPurchase,
		arg.Status,
		arg.ReviewNote,
		arg.ReviewedBy,
		ts(arg.ReviewedAt),
		arg.ID,
	)
	return scanPurchase(row)
}

const cancelPurchase = `
UPDATE purchases
SET status = 'cancelled'
WHERE id = ? AND user_id = ? AND status IN ('pending_payment', 'pending_review')
RETURNING ` + purchaseColumns

func (q *Queries) CancelPurchase(ctx context.Context, id, userID int64) (Purchase, error) {
	return scanPurchase(q.db.QueryRowContext(ctx, cancelPurchase, id, userID))
}

const countPurchasesByStatus = `SELECT COUNT(*) FROM purchases WHERE status = ?`

func (q *Queries) CountPurchasesByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countPurchasesByStatus, status).Scan(&count)
	return count, err
}
