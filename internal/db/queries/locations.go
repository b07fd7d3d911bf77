// internal/db/queries/locations.go
package queries

import (
	"context"
)

const locationColumns = `id, name, address, timezone, cancellation_cutoff_hours, status, created_at, updated_at`

func scanLocation(row rowScanner) (Location, error) {
	var i Location
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Address,
		&i.Timezone,
		&i.CancellationCutoffHours,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

type CreateLocationParams struct {
	Name                    string
	Address                 string
	Timezone                string
	CancellationCutoffHours int64
}

const createLocation = `
INSERT INTO locations (name, address, timezone, cancellation_cutoff_hours)
VALUES (?, ?, ?, ?)
RETURNING ` + locationColumns

func (q *Queries) CreateLocation(ctx context.Context, arg CreateLocationParams) (Location, error) {
	row := q.db.QueryRowContext(ctx, createLocation, arg.Name, arg.Address, arg.Timezone, arg.CancellationCutoffHours)
	return scanLocation(row)
}

const getLocation = `SELECT ` + locationColumns + ` FROM locations WHERE id = ?`

func (q *Queries) GetLocation(ctx context.Context, id int64) (Location, error) {
	return scanLocation(q.db.QueryRowContext(ctx, getLocation, id))
}

const listLocations = `
SELECT ` + locationColumns + `
FROM locations
WHERE (? = 1 OR status = 'active')
ORDER BY name, id`

func (q *Queries) ListLocations(ctx context.Context, includeInactive bool) ([]Location, error) {
	rows, err := q.db.QueryContext(ctx, listLocations, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Location{}
	for rows.Next() {
		i, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type UpdateLocationParams struct {
	ID                      int64
	Name                    string
	Address                 string
	Timezone                string
	CancellationCutoffHours int64
}

const updateLocation = `
UPDATE locations
SET name = ?, address = ?, timezone = ?, cancellation_cutoff_hours = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
RETURNING ` + locationColumns

func (q *Queries) UpdateLocation(ctx context.Context, arg UpdateLocationParams) (Location, error) {
	row := q.db.QueryRowContext(ctx, updateLocation, arg.Name, arg.Address, arg.Timezone, arg.CancellationCutoffHours, arg.ID)
	return scanLocation(row)
}

const setLocationStatus = `
UPDATE locations
SET status = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
RETURNING ` + locationColumns

func (q *Queries) SetLocationStatus(ctx context.Context, id int64, status string) (Location, error) {
	return scanLocation(q.db.QueryRowContext(ctx, setLocationStatus, status, id))
}
