// internal/api/classtypes/handlers.go
package classtypes

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Fitclub/internal/api/apiutil"
	"github.com/codr1/Fitclub/internal/api/authz"
	dbq "github.com/codr1/Fitclub/internal/db/queries"
	"github.com/codr1/Fitclub/internal/models"
)

const classTypeQueryTimeout = 5 * time.Second

var (
	queries     *dbq.Queries
	queriesOnce sync.Once
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(q *dbq.Queries) {
	if q == nil {
		return
	}
	queriesOnce.Do(func() {
		queries = q
	})
}

func loadQueries() *dbq.Queries {
	return queries
}

// GET /api/v1/class-types
func HandleClassTypesList(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	if q == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}
	includeInactive := authz.IsAdmin(user) && r.URL.Query().Get("include_inactive") == "true"

	ctx, cancel := context.WithTimeout(r.Context(), classTypeQueryTimeout)
	defer cancel()

	classTypes, err := q.ListClassTypes(ctx, includeInactive)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list class types")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load class types")
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{"classTypes": classTypes}); err != nil {
		logger.Error().Err(err).Msg("Failed to write class types response")
	}
}

// POST /api/v1/admin/class-types
func HandleClassTypeCreate(w http.ResponseWriter, r *http.Request) {
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

	input, err := decodeClassTypeInput(r)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), classTypeQueryTimeout)
	defer cancel()

	created, err := q.CreateClassType(ctx, dbq.CreateClassTypeParams{
		Name:                   input.Name,
		Description:            input.Description,
		DefaultDurationMinutes: input.DefaultDurationMinutes,
		Color:                  input.Color,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create class type")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to create class type")
		return
	}

	logger.Info().Int64("class_type_id", created.ID).Msg("Class type created")
	if err := apiutil.WriteJSON(w, http.StatusCreated, created); err != nil {
		logger.Error().Err(err).Int64("class_type_id", created.ID).Msg("Failed to write class type response")
	}
}

// PUT /api/v1/admin/class-types/{id}
func HandleClassTypeUpdate(w http.ResponseWriter, r *http.Request) {
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

	input, err := decodeClassTypeInput(r)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), classTypeQueryTimeout)
	defer cancel()

	updated, err := q.UpdateClassType(ctx, dbq.UpdateClassTypeParams{
		ID:                     id,
		Name:                   input.Name,
		Description:            input.Description,
		DefaultDurationMinutes: input.DefaultDurationMinutes,
		Color:                  input.Color,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, http.StatusNotFound, "Class type not found")
			return
		}
		logger.Error().Err(err).Int64("class_type_id", id).Msg("Failed to update class type")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to update class type")
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, updated); err != nil {
		logger.Error().Err(err).Int64("class_type_id", id).Msg("Failed to write class type response")
	}
}

// DELETE /api/v1/admin/class-types/{id}
func HandleClassTypeDeactivate(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), classTypeQueryTimeout)
	defer cancel()

	classType, err := q.SetClassTypeStatus(ctx, id, dbq.StatusInactive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, http.StatusNotFound, "Class type not found")
			return
		}
		logger.Error().Err(err).Int64("class_type_id", id).Msg("Failed to deactivate class type")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to deactivate class type")
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, classType); err != nil {
		logger.Error().Err(err).Int64("class_type_id", id).Msg("Failed to write class type response")
	}
}

func decodeClassTypeInput(r *http.Request) (models.ClassTypeInput, error) {
	var input models.ClassTypeInput
	if err := apiutil.DecodeJSON(r, &input); err != nil {
		return input, err
	}
	input.Normalize()
	if err := input.Validate(); err != nil {
		return input, err
	}
	return input, nil
}
