// internal/db/queries/class_types.go
package queries

import "context"

const classTypeColumns = `id, name, description, default_duration_minutes, color, status, created_at`

func scanClassType(row rowScanner) (ClassType, error) {
	var i ClassType
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Description,
		&i.DefaultDurationMinutes,
		&i.Color,
		&i.Status,
		&i.CreatedAt,
	)
	return i, err
}

type CreateClassTypeParams struct {
	Name                   string
	Description            string
	DefaultDurationMinutes int64
	Color                  string
}

const createClassType = `
INSERT INTO class_types (name, description, default_duration_minutes, color)
VALUES (?, ?, ?, ?)
RETURNING ` + classTypeColumns

func (q *Queries) CreateClassType(ctx context.Context, arg CreateClassTypeParams) (ClassType, error) {
	row := q.db.QueryRowContext(ctx, createClassType, arg.Name, arg.Description, arg.DefaultDurationMinutes, arg.Color)
	return scanClassType(row)
}

const getClassType = `SELECT ` + classTypeColumns + ` FROM class_types WHERE id = ?`

func (q *Queries) GetClassType(ctx context.Context, id int64) (ClassType, error) {
	return scanClassType(q.db.QueryRowContext(ctx, getClassType, id))
}

const listClassTypes = `
SELECT ` + classTypeColumns + `
FROM class_types
WHERE (? = 1 OR status = 'active')
ORDER BY name, id`

func (q *Queries) ListClassTypes(ctx context.Context, includeInactive bool) ([]ClassType, error) {
	rows, err := q.db.QueryContext(ctx, listClassTypes, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ClassType{}
	for rows.Next() {
		i, err := scanClassType(rows)
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

type UpdateClassTypeParams struct {
	ID                     int64
	Name                   string
	Description            string
	DefaultDurationMinutes int64
	Color                  string
}

const updateClassType = `
UPDATE class_types
SET name = ?, description = ?, default_duration_minutes = ?, color = ?
WHERE id = ?
RETURNING ` + classTypeColumns

func (q *Queries) UpdateClassType(ctx context.Context, arg UpdateClassTypeParams) (ClassType, error) {
	row := q.db.QueryRowContext(ctx, updateClassType, arg.Name, arg.Description, arg.DefaultDurationMinutes, arg.Color, arg.ID)
	return scanClassType(row)
}

const setClassTypeStatus = `
UPDATE class_types SET status = ? WHERE id = ?
RETURNING ` + classTypeColumns

func (q *Queries) SetClassTypeStatus(ctx context.Context, id int64, status string) (ClassType, error) {
	return scanClassType(q.db.QueryRowContext(ctx, setClassTypeStatus, status, id))
}
