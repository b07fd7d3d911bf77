// internal/db/queries/users.go
package queries

import "context"

const userColumns = `id, email, phone, first_name, last_name, role, password_hash, status, home_location_id, created_at, updated_at`

func scanUser(row rowScanner) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.Phone,
		&i.FirstName,
		&i.LastName,
		&i.Role,
		&i.PasswordHash,
		&i.Status,
		&i.HomeLocationID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

type CreateUserParams struct {
	Email          string
	Phone          *string
	FirstName      string
	LastName       string
	Role           string
	PasswordHash   string
	HomeLocationID *int64
}

const createUser = `
INSERT INTO users (email, phone, first_name, last_name, role, password_hash, home_location_id)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING ` + userColumns

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRowContext(ctx, createUser,
		arg.Email,
		arg.Phone,
		arg.FirstName,
		arg.LastName,
		arg.Role,
		arg.PasswordHash,
		arg.HomeLocationID,
	)
	return scanUser(row)
}

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = ?`

func (q *Queries) GetUserByID(ctx context.Context, id int64) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByID, id))
}

const getUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE email = lower(?)`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByEmail, email))
}

type ListUsersParams struct {
	Role       string
	SearchTerm string
	Limit      int64
	Offset     int64
}

const listUsers = `
SELECT ` + userColumns + `
FROM users
WHERE (? = '' OR role = ?)
  AND (? = '' OR first_name LIKE '%' || ? || '%' OR last_name LIKE '%' || ? || '%'
       OR email LIKE '%' || ? || '%' OR phone LIKE '%' || ? || '%')
ORDER BY last_name, first_name, id
LIMIT ? OFFSET ?`

func (q *Queries) ListUsers(ctx context.Context, arg ListUsersParams) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, listUsers,
		arg.Role, arg.Role,
		arg.SearchTerm, arg.SearchTerm, arg.SearchTerm, arg.SearchTerm, arg.SearchTerm,
		arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []User{}
	for rows.Next() {
		i, err := scanUser(rows)
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

type UpdateUserProfileParams struct {
	ID        int64
	FirstName string
	LastName  string
	Phone     *string
}

const updateUserProfile = `
UPDATE users
SET first_name = ?, last_name = ?, phone = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
RETURNING ` + userColumns

func (q *Queries) UpdateUserProfile(ctx context.Context, arg UpdateUserProfileParams) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, updateUserProfile, arg.FirstName, arg.LastName, arg.Phone, arg.ID))
}

type UpdateUserAdminParams struct {
	ID             int64
	Role           string
	Status         string
	HomeLocationID *int64
}

const updateUserAdmin = `
UPDATE users
SET role = ?, status = ?, home_location_id = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
RETURNING ` + userColumns

func (q *Queries) UpdateUserAdmin(ctx context.Context, arg UpdateUserAdminParams) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, updateUserAdmin, arg.Role, arg.Status, arg.HomeLocationID, arg.ID))
}

const updateUserPassword = `
UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

func (q *Queries) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	_, err := q.db.ExecContext(ctx, updateUserPassword, passwordHash, id)
	return err
}

const countActiveMembers = `SELECT COUNT(*) FROM users WHERE role = 'member' AND status = 'active'`

func (q *Queries) CountActiveMembers(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countActiveMembers).Scan(&count)
	return count, err
}
