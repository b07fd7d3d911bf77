// internal/api/members/handlers.go
package members

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Fitclub/internal/api/apiutil"
	"github.com/codr1/Fitclub/internal/api/authz"
	appdb "github.com/codr1/Fitclub/internal/db"
	dbq "github.com/codr1/Fitclub/internal/db/queries"
	"github.com/codr1/Fitclub/internal/models"
)

const memberQueryTimeout = 5 * time.Second

var (
	queries     *dbq.Queries
	store       *appdb.DB
	queriesOnce sync.Once
)

type updateMemberRequest struct {
	Role           string `json:"role" validate:"required,oneof=member coach admin"`
	Status         string `json:"status" validate:"required,oneof=active inactive"`
	HomeLocationID *int64 `json:"home_location_id,omitempty" validate:"omitempty,gt=0"`
}

type memberDetail struct {
	Member   dbq.User             `json:"member"`
	Credits  models.CreditSummary `json:"credits"`
	Children []dbq.Child          `json:"children"`
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(database *appdb.DB) {
	if database == nil {
		return
	}
	queriesOnce.Do(func() {
		queries = database.Queries
		store = database
	})
}

func loadQueries() *dbq.Queries {
	return queries
}

func loadDB() *appdb.DB {
	return store
}

// GET /api/v1/admin/members?q=&role=&limit=&offset=
func HandleMembersList(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	if q == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if _, ok := apiutil.RequireRole(w, r, authz.RoleAdmin); !ok {
		return
	}

	limit, offset, err := apiutil.Pagination(r)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	role := strings.TrimSpace(r.URL.Query().Get("role"))
	switch role {
	case "", dbq.RoleMember, dbq.RoleCoach, dbq.RoleAdmin:
	default:
		apiutil.WriteError(w, http.StatusBadRequest, "role must be member, coach or admin")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), memberQueryTimeout)
	defer cancel()

	members, err := q.ListUsers(ctx, dbq.ListUsersParams{
		Role:       role,
		SearchTerm: strings.TrimSpace(r.URL.Query().Get("q")),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list members")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load members")
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{
		"members": members,
		"limit":   limit,
		"offset":  offset,
	}); err != nil {
		logger.Error().Err(err).Msg("Failed to write members response")
	}
}

// GET /api/v1/admin/members/{id}
func HandleMemberGet(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	if q == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if _, ok := apiutil.RequireRole(w, r, authz.RoleAdmin); !ok {
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), memberQueryTimeout)
	defer cancel()

	member, err := q.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, http.StatusNotFound, "Member not found")
			return
		}
		logger.Error().Err(err).Int64("user_id", id).Msg("Failed to load member")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load member")
		return
	}
	credits, err := models.GetCreditSummary(ctx, q, id, time.Now().UTC())
	if err != nil {
		logger.Error().Err(err).Int64("user_id", id).Msg("Failed to load credit summary")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load member")
		return
	}
	children, err := q.ListChildrenByParent(ctx, id)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", id).Msg("Failed to load children")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load member")
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, memberDetail{
		Member:   member,
		Credits:  credits,
		Children: children,
	}); err != nil {
		logger.Error().Err(err).Int64("user_id", id).Msg("Failed to write member response")
	}
}

// PUT /api/v1/admin/members/{id}
func HandleMemberUpdate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database := loadDB()
	if database == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	admin, ok := apiutil.RequireRole(w, r, authz.RoleAdmin)
	if !ok {
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req updateMemberRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if id == admin.ID && (req.Role != dbq.RoleAdmin || req.Status != dbq.StatusActive) {
		apiutil.WriteError(w, http.StatusConflict, "Admins cannot demote or deactivate themselves")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), memberQueryTimeout)
	defer cancel()

	var updated dbq.User
	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries

		if _, err := qtx.GetUserByID(ctx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apiutil.HandlerError{Status: http.StatusNotFound, Message: "Member not found", Err: err}
			}
			return err
		}
		if req.HomeLocationID != nil {
			location, err := qtx.GetLocation(ctx, *req.HomeLocationID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return apiutil.HandlerError{Status: http.StatusBadRequest, Message: "home_location_id does not exist", Err: err}
				}
				return err
			}
			if location.Status != dbq.StatusActive {
				return apiutil.HandlerError{Status: http.StatusBadRequest, Message: "home_location_id is inactive"}
			}
		}

		var err error
		updated, err = qtx.UpdateUserAdmin(ctx, dbq.UpdateUserAdminParams{
			ID:             id,
			Role:           req.Role,
			Status:         req.Status,
			HomeLocationID: req.HomeLocationID,
		})
		return err
	})
	if err != nil {
		apiutil.WriteHandlerError(w, r, apiutil.DomainError(err, "Failed to update member"), "Failed to update member")
		return
	}

	logger.Info().
		Int64("user_id", id).
		Str("role", updated.Role).
		Str("status", updated.Status).
		Int64("admin_id", admin.ID).
		Msg("Member updated")
	if err := apiutil.WriteJSON(w, http.StatusOK, updated); err != nil {
		logger.Error().Err(err).Int64("user_id", id).Msg("Failed to write member response")
	}
}

// GET /api/v1/admin/members/{id}/children
func HandleMemberChildren(w http.ResponseWriter, r *http.Request) {
	if _, ok := apiutil.RequireRole(w, r, authz.RoleAdmin); !ok {
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeChildren(w, r, id)
}
