// internal/api/authz/authz.go
package authz

import (
	"context"
	"errors"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

const (
	RoleMember = "member"
	RoleCoach  = "coach"
	RoleAdmin  = "admin"
)

type AuthUser struct {
	ID             int64
	Email          string
	Role           string
	SessionType    string
	HomeLocationID *int64
}

type userContextKey struct{}

func ContextWithUser(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext retrieves the AuthUser stored in ctx.
// It returns nil if ctx is nil, if no user is stored, or if the stored value has a different type.
func UserFromContext(ctx context.Context) *AuthUser {
	if ctx == nil {
		return nil
	}

	user, ok := ctx.Value(userContextKey{}).(*AuthUser)
	if !ok {
		return nil
	}

	return user
}

func IsAdmin(user *AuthUser) bool {
	return user != nil && user.Role == RoleAdmin
}

// IsStaff reports whether the user can run classes: coaches and admins.
func IsStaff(user *AuthUser) bool {
	return user != nil && (user.Role == RoleCoach || user.Role == RoleAdmin)
}

// RequireRole checks that the current user holds one of roles. Admins pass
// every role check.
func RequireRole(ctx context.Context, roles ...string) error {
	user := UserFromContext(ctx)
	if user == nil {
		return ErrUnauthenticated
	}
	if user.Role == RoleAdmin {
		return nil
	}
	for _, role := range roles {
		if user.Role == role {
			return nil
		}
	}
	return ErrForbidden
}

// CanManageClass reports whether user may see the roster of, and mark
// attendance for, a class taught by coachID.
func CanManageClass(user *AuthUser, coachID int64) bool {
	if IsAdmin(user) {
		return true
	}
	return user != nil && user.Role == RoleCoach && user.ID == coachID
}

// RequireSelfOrAdmin allows a user to act on their own records and admins on anyone's.
func RequireSelfOrAdmin(ctx context.Context, userID int64) error {
	user := UserFromContext(ctx)
	if user == nil {
		return ErrUnauthenticated
	}
	if user.ID == userID || user.Role == RoleAdmin {
		return nil
	}
	return ErrForbidden
}
