// internal/db/queries/credits.go
package queries

import (
	"context"
	"time"
)

const creditLotColumns = `id, user_id, purchase_id, location_id, total, remaining, expires_at, created_at`

func scanCreditLot(row rowScanner) (CreditLot, error) {
	var i CreditLot
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.PurchaseID,
		&i.LocationID,
		&i.Total,
		&i.Remaining,
		&i.ExpiresAt,
		&i.CreatedAt,
	)
	return i, err
}

type CreateCreditLotParams struct {
	UserID     int64
	PurchaseID *int64
	LocationID *int64
	Total      int64
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

const createCreditLot = `
INSERT INTO credit_lots (user_id, purchase_id, location_id, total, remaining, expires_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING ` + creditLotColumns

func (q *Queries) CreateCreditLot(ctx context.Context, arg CreateCreditLotParams) (CreditLot, error) {
	row := q.db.QueryRowContext(ctx, createCreditLot,
		arg.UserID,
		arg.PurchaseID,
		arg.LocationID,
		arg.Total,
		arg.Total,
		ts(arg.ExpiresAt),
		ts(arg.CreatedAt),
	)
	return scanCreditLot(row)
}

const getCreditLot = `SELECT ` + creditLotColumns + ` FROM credit_lots WHERE id = ?`

func (q *Queries) GetCreditLot(ctx context.Context, id int64) (CreditLot, error) {
	return scanCreditLot(q.db.QueryRowContext(ctx, getCreditLot, id))
}

type ListUsableCreditLotsParams struct {
	UserID     int64
	LocationID *int64
	ValidAt    time.Time
}

const listUsableCreditLots = `
SELECT ` + creditLotColumns + `
FROM credit_lots
WHERE user_id = ?
  AND remaining > 0
  AND expires_at > ?
  AND (location_id IS NULL OR ? IS NULL OR location_id = ?)
ORDER BY expires_at, id`

// ListUsableCreditLots returns lots with credit left that are still valid at ValidAt,
// earliest expiry first. A nil LocationID skips the location restriction.
func (q *Queries) ListUsableCreditLots(ctx context.Context, arg ListUsableCreditLotsParams) ([]CreditLot, error) {
	rows, err := q.db.QueryContext(ctx, listUsableCreditLots,
		arg.UserID,
		ts(arg.ValidAt),
		arg.LocationID,
		arg.LocationID,
	)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanCreditLot)
}

const listCreditLotsByUser = `
SELECT ` + creditLotColumns + `
FROM credit_lots
WHERE user_id = ?
ORDER BY expires_at, id`

func (q *Queries) ListCreditLotsByUser(ctx context.Context, userID int64) ([]CreditLot, error) {
	rows, err := q.db.QueryContext(ctx, listCreditLotsByUser, userID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanCreditLot)
}

const decrementCreditLot = `
UPDATE credit_lots
SET remaining = remaining - ?
WHERE id = ? AND remaining >= ?
RETURNING ` + creditLotColumns

// DecrementCreditLot returns sql.ErrNoRows when the lot has fewer than amount credits left.
func (q *Queries) DecrementCreditLot(ctx context.Context, id, amount int64) (CreditLot, error) {
	return scanCreditLot(q.db.QueryRowContext(ctx, decrementCreditLot, amount, id, amount))
}

const incrementCreditLot = `
UPDATE credit_lots
SET remaining = remaining + ?
WHERE id = ? AND remaining + ? <= total
RETURNING ` + creditLotColumns

func (q *Queries) IncrementCreditLot(ctx context.Context, id, amount int64) (CreditLot, error) {
	return scanCreditLot(q.db.QueryRowContext(ctx, incrementCreditLot, amount, id, amount))
}

const listExpiredCreditLots = `
SELECT ` + creditLotColumns + `
FROM credit_lots
WHERE remaining > 0 AND expires_at <= ?
ORDER BY id
LIMIT ?`

func (q *Queries) ListExpiredCreditLots(ctx context.Context, now time.Time, limit int64) ([]CreditLot, error) {
	rows, err := q.db.QueryContext(ctx, listExpiredCreditLots, ts(now), limit)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanCreditLot)
}

const zeroCreditLot = `
UPDATE credit_lots SET remaining = 0 WHERE id = ? AND remaining = ?`

// ZeroCreditLot clears the lot only if remaining still equals expected.
func (q *Queries) ZeroCreditLot(ctx context.Context, id, expected int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, zeroCreditLot, id, expected)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getCreditBalance = `
SELECT IFNULL(SUM(remaining), 0), MIN(expires_at)
FROM credit_lots
WHERE user_id = ? AND remaining > 0 AND expires_at > ?`

type CreditBalance struct {
	Available  int64
	NextExpiry *time.Time
}

func (q *Queries) GetCreditBalance(ctx context.Context, userID int64, now time.Time) (CreditBalance, error) {
	var (
		i    CreditBalance
		next *string
	)
	if err := q.db.QueryRowContext(ctx, getCreditBalance, userID, ts(now)).Scan(&i.Available, &next); err != nil {
		return i, err
	}
	if next != nil {
		t, err := parseStoredTime(*next)
		if err != nil {
			return i, err
		}
		i.NextExpiry = &t
	}
	return i, nil
}

const creditTransactionColumns = `id, user_id, credit_lot_id, booking_id, amount, kind, note, created_by, created_at`

func scanCreditTransaction(row rowScanner) (CreditTransaction, error) {
	var i CreditTransaction
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.CreditLotID,
		&i.BookingID,
		&i.Amount,
		&i.Kind,
		&i.Note,
		&i.CreatedBy,
		&i.CreatedAt,
	)
	return i, err
}

type CreateCreditTransactionParams struct {
	UserID      int64
	CreditLotID *int64
	BookingID   *int64
	Amount      int64
	Kind        string
	Note        string
	CreatedBy   *int64
	CreatedAt   time.Time
}

const createCreditTransaction = `
INSERT INTO credit_transactions (user_id, credit_lot_id, booking_id, amount, kind, note, created_by, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + creditTransactionColumns

func (q *Queries) CreateCreditTransaction(ctx context.Context, arg CreateCreditTransactionParams) (CreditTransaction, error) {
	row := q.db.QueryRowContext(ctx, createCreditTransaction,
		arg.UserID,
		arg.CreditLotID,
		arg.BookingID,
		arg.Amount,
		arg.Kind,
		arg.Note,
		arg.CreatedBy,
		ts(arg.CreatedAt),
	)
	return scanCreditTransaction(row)
}

type ListCreditTransactionsParams struct {
	UserID int64
	Limit  int64
	Offset int64
}

const listCreditTransactions = `
SELECT ` + creditTransactionColumns + `
FROM credit_transactions
WHERE user_id = ?
ORDER BY id DESC
LIMIT ? OFFSET ?`

func (q *Queries) ListCreditTransactions(ctx context.Context, arg ListCreditTransactionsParams) ([]CreditTransaction, error) {
	rows, err := q.db.QueryContext(ctx, listCreditTransactions, arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanCreditTransaction)
}

const sumCreditsGrantedSince = `
SELECT IFNULL(SUM(amount), 0)
FROM credit_transactions
WHERE kind = 'grant' AND created_at >= ?`

func (q *Queries) SumCreditsGrantedSince(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := q.db.QueryRowContext(ctx, sumCreditsGrantedSince, ts(since)).Scan(&total)
	return total, err
}
