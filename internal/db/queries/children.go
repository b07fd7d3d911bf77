// internal/db/queries/children.go
package queries

import (
	"context"
	"time"
)

const childColumns = `id, parent_user_id, first_name, last_name, birth_date, created_at, archived_at`

func scanChild(row rowScanner) (Child, error) {
	var i Child
	err := row.Scan(
		&i.ID,
		&i.ParentUserID,
		&i.FirstName,
		&i.LastName,
		&i.BirthDate,
		&i.CreatedAt,
		&i.ArchivedAt,
	)
	return i, err
}

type CreateChildParams struct {
	ParentUserID int64
	FirstName    string
	LastName     string
	BirthDate    *string
}

const createChild = `
INSERT INTO children (parent_user_id, first_name, last_name, birth_date)
VALUES (?, ?, ?, ?)
RETURNING ` + childColumns

func (q *Queries) CreateChild(ctx context.Context, arg CreateChildParams) (Child, error) {
	return scanChild(q.db.QueryRowContext(ctx, createChild, arg.ParentUserID, arg.FirstName, arg.LastName, arg.BirthDate))
}

const getChild = `SELECT ` + childColumns + ` FROM children WHERE id = ?`

func (q *Queries) GetChild(ctx context.Context, id int64) (Child, error) {
	return scanChild(q.db.QueryRowContext(ctx, getChild, id))
}

const listChildrenByParent = `
SELECT ` + childColumns + `
FROM children
WHERE parent_user_id = ? AND archived_at IS NULL
ORDER BY first_name, id`

func (q *Queries) ListChildrenByParent(ctx context.Context, parentUserID int64) ([]Child, error) {
	rows, err := q.db.QueryContext(ctx, listChildrenByParent, parentUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Child{}
	for rows.Next() {
		i, err := scanChild(rows)
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

type UpdateChildParams struct {
	ID           int64
	ParentUserID int64
	FirstName    string
	LastName     string
	BirthDate    *string
}

const updateChild = `
UPDATE children
SET first_name = ?, last_name = ?, birth_date = ?
WHERE id = ? AND parent_user_id = ? AND archived_at IS NULL
RETURNING ` + childColumns

func (q *Queries) UpdateChild(ctx context.Context, arg UpdateChildParams) (Child, error) {
	row := q.db.QueryRowContext(ctx, updateChild, arg.FirstName, arg.LastName, arg.BirthDate, arg.ID, arg.ParentUserID)
	return scanChild(row)
}

const archiveChild = `
UPDATE children
SET archived_at = ?
WHERE id = ? AND parent_user_id = ? AND archived_at IS NULL`

// ArchiveChild hides a child from the parent's profile. Bookings keep their
// child_id so history still names the child.
func (q *Queries) ArchiveChild(ctx context.Context, id, parentUserID int64, now time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, archiveChild, ts(now), id, parentUserID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const countUpcomingBookingsForChild = `
SELECT COUNT(*)
FROM bookings b
JOIN classes c ON c.id = b.class_id
WHERE b.child_id = ? AND b.status = 'booked' AND c.ends_at > ?`

func (q *Queries) CountUpcomingBookingsForChild(ctx context.Context, childID int64, now time.Time) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countUpcomingBookingsForChild, childID, ts(now)).Scan(&count)
	return count, err
}
