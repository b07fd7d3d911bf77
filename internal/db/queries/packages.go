// internal/db/queries/packages.go
package queries

import "context"

const packageColumns = `id, name, description, credits, valid_days, price_cents, location_id, status, created_at, updated_at`

func scanPackage(row rowScanner) (Package, error) {
	var i Package
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Description,
		&i.Credits,
		&i.ValidDays,
		&i.PriceCents,
		&i.LocationID,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

type CreatePackageParams struct {
	Name        string
	Description string
	Credits     int64
	ValidDays   int64
	PriceCents  int64
	LocationID  *int64
}

const createPackage = `
INSERT INTO packages (name, description, credits, valid_days, price_cents, location_id)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING ` + packageColumns

func (q *Queries) CreatePackage(ctx context.Context, arg CreatePackageParams) (Package, error) {
	row := q.db.QueryRowContext(ctx, createPackage,
		arg.Name,
		arg.Description,
		arg.Credits,
		arg.ValidDays,
		arg.PriceCents,
		arg.LocationID,
	)
	return scanPackage(row)
}

const getPackage = `SELECT ` + packageColumns + ` FROM packages WHERE id = ?`

func (q *Queries) GetPackage(ctx context.Context, id int64) (Package, error) {
	return scanPackage(q.db.QueryRowContext(ctx, getPackage, id))
}

const listPackages = `
SELECT ` + packageColumns + `
FROM packages
WHERE (? = 1 OR status = 'active')
ORDER BY name, id`

func (q *Queries) ListPackages(ctx context.Context, includeInactive bool) ([]Package, error) {
	rows, err := q.db.QueryContext(ctx, listPackages, includeInactive)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanPackage)
}

const listPackagesForLocation = `
SELECT ` + packageColumns + `
FROM packages
WHERE status = 'active'
  AND (location_id IS NULL OR location_id = ?)
ORDER BY price_cents, name, id`

// ListPackagesForLocation returns active packages whose credits are usable at the location.
func (q *Queries) ListPackagesForLocation(ctx context.Context, locationID int64) ([]Package, error) {
	rows, err := q.db.QueryContext(ctx, listPackagesForLocation, locationID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanPackage)
}

type UpdatePackageParams struct {
	ID          int64
	Name        string
	Description string
	Credits     int64
	ValidDays   int64
	PriceCents  int64
	LocationID  *int64
	Status      string
}

const updatePackage = `
UPDATE packages
SET name = ?, description = ?, credits = ?, valid_days = ?, price_cents = ?,
    location_id = ?, status = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
RETURNING ` + packageColumns

func (q *Queries) UpdatePackage(ctx context.Context, arg UpdatePackageParams) (Package, error) {
	row := q.db.QueryRowContext(ctx, updatePackage,
		arg.Name,
		arg.Description,
		arg.Credits,
		arg.ValidDays,
		arg.PriceCents,
		arg.LocationID,
		arg.Status,
		arg.ID,
	)
	return scanPackage(row)
}

const setPackageStatus = `
UPDATE packages SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
RETURNING ` + packageColumns

func (q *Queries) SetPackageStatus(ctx context.Context, id int64, status string) (Package, error) {
	return scanPackage(q.db.QueryRowContext(ctx, setPackageStatus, status, id))
}

const packagePriceColumns = `id, package_id, location_id, user_id, price_cents, created_at`

func scanPackagePrice(row rowScanner) (PackagePrice, error) {
	var i PackagePrice
	err := row.Scan(
		&i.ID,
		&i.PackageID,
		&i.LocationID,
		&i.UserID,
		&i.PriceCents,
		&i.CreatedAt,
	)
	return i, err
}

type UpsertPackagePriceParams struct {
	PackageID  int64
	LocationID *int64
	UserID     *int64
	PriceCents int64
}

const deletePackagePriceForScope = `
DELETE FROM package_prices
WHERE package_id = ?
  AND IFNULL(location_id, 0) = IFNULL(?, 0)
  AND IFNULL(user_id, 0) = IFNULL(?, 0)`

const insertPackagePrice = `
INSERT INTO package_prices (package_id, location_id, user_id, price_cents)
VALUES (?, ?, ?, ?)
RETURNING ` + packagePriceColumns

// UpsertPackagePrice replaces the override for the given scope. Run it inside a transaction.
func (q *Queries) UpsertPackagePrice(ctx context.Context, arg UpsertPackagePriceParams) (PackagePrice, error) {
	if _, err := q.db.ExecContext(ctx, deletePackagePriceForScope, arg.PackageID, arg.LocationID, arg.UserID); err != nil {
		return PackagePrice{}, err
	}
	row := q.db.QueryRowContext(ctx, insertPackagePrice, arg.PackageID, arg.LocationID, arg.UserID, arg.PriceCents)
	return scanPackagePrice(row)
}

const listPackagePrices = `
SELECT ` + packagePriceColumns + `
FROM package_prices
WHERE package_id = ?
ORDER BY location_id IS NULL, location_id, user_id`

func (q *Queries) ListPackagePrices(ctx context.Context, packageID int64) ([]PackagePrice, error) {
	rows, err := q.db.QueryContext(ctx, listPackagePrices, packageID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, scanPackagePrice)
}

const deletePackagePrice = `DELETE FROM package_prices WHERE id = ? AND package_id = ?`

func (q *Queries) DeletePackagePrice(ctx context.Context, id, packageID int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deletePackagePrice, id, packageID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type GetPackagePriceOverridesParams struct {
	PackageID  int64
	LocationID int64
	UserID     int64
}

// PackagePriceOverrides holds the member and location overrides that apply to one purchase.
type PackagePriceOverrides struct {
	MemberPriceCents   *int64
	LocationPriceCents *int64
}

const getPackagePriceOverrides = `
SELECT
    (SELECT price_cents FROM package_prices WHERE package_id = ? AND user_id = ?),
    (SELECT price_cents FROM package_prices WHERE package_id = ? AND location_id = ?)`

func (q *Queries) GetPackagePriceOverrides(ctx context.Context, arg GetPackagePriceOverridesParams) (PackagePriceOverrides, error) {
	var i PackagePriceOverrides
	err := q.db.QueryRowContext(ctx, getPackagePriceOverrides,
		arg.PackageID, arg.UserID,
		arg.PackageID, arg.LocationID,
	).Scan(&i.MemberPriceCents, &i.LocationPriceCents)
	return i, err
}
