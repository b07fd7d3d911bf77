// internal/api/locations/handlers.go
package locations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Fitclub/internal/api/apiutil"
	"github.com/codr1/Fitclub/internal/api/authz"
	dbq "github.com/codr1/Fitclub/internal/db/queries"
)

const (
	locationQueryTimeout       = 5 * time.Second
	defaultCutoffHours   int64 = 12
	maxCutoffHours       int64 = 168
)

var (
	queries     *dbq.Queries
	queriesOnce sync.Once
)

type locationRequest struct {
	Name                    string `json:"name" validate:"required,max=100"`
	Address                 string `json:"address" validate:"max=300"`
	Timezone                string `json:"timezone" validate:"required"`
	CancellationCutoffHours *int64 `json:"cancellation_cutoff_hours,omitempty"`
}

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

// GET /api/v1/locations
func HandleLocationsList(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), locationQueryTimeout)
	defer cancel()

	locations, err := q.ListLocations(ctx, includeInactive)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list locations")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load locations")
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{"locations": locations}); err != nil {
		logger.Error().Err(err).Msg("Failed to write locations response")
	}
}

// GET /api/v1/locations/{id}
func HandleLocationGet(w http.ResponseWriter, r *http.Request) {
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
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), locationQueryTimeout)
	defer cancel()

	location, err := q.GetLocation(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, http.StatusNotFound, "Location not found")
			return
		}
		logger.Error().Err(err).Int64("location_id", id).Msg("Failed to load location")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load location")
		return
	}
	if location.Status != dbq.StatusActive && !authz.IsAdmin(user) {
		apiutil.WriteError(w, http.StatusNotFound, "Location not found")
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, location); err != nil {
		logger.Error().Err(err).Int64("location_id", id).Msg("Failed to write location response")
	}
}

// POST /api/v1/admin/locations
func HandleLocationCreate(w http.ResponseWriter, r *http.Request) {
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

	req, cutoff, err := decodeLocationRequest(r)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), locationQueryTimeout)
	defer cancel()

	created, err := q.CreateLocation(ctx, dbq.CreateLocationParams{
		Name:                    req.Name,
		Address:                 req.Address,
		Timezone:                req.Timezone,
		CancellationCutoffHours: cutoff,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create location")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to create location")
		return
	}

	logger.Info().Int64("location_id", created.ID).Msg("Location created")
	if err := apiutil.WriteJSON(w, http.StatusCreated, created); err != nil {
		logger.Error().Err(err).Int64("location_id", created.ID).Msg("Failed to write location response")
	}
}

// PUT /api/v1/admin/locations/{id}
func HandleLocationUpdate(w http.ResponseWriter, r *http.Request) {
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

	req, cutoff, err := decodeLocationRequest(r)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), locationQueryTimeout)
	defer cancel()

	updated, err := q.UpdateLocation(ctx, dbq.UpdateLocationParams{
		ID:                      id,
		Name:                    req.Name,
		Address:                 req.Address,
		Timezone:                req.Timezone,
		CancellationCutoffHours: cutoff,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, http.StatusNotFound, "Location not found")
			return
		}
		logger.Error().Err(err).Int64("location_id", id).Msg("Failed to update location")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to update location")
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, updated); err != nil {
		logger.Error().Err(err).Int64("location_id", id).Msg("Failed to write location response")
	}
}

// DELETE /api/v1/admin/locations/{id}
func HandleLocationDeactivate(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), locationQueryTimeout)
	defer cancel()

	location, err := q.SetLocationStatus(ctx, id, dbq.StatusInactive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, http.StatusNotFound, "Location not found")
			return
		}
		logger.Error().Err(err).Int64("location_id", id).Msg("Failed to deactivate location")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to deactivate location")
		return
	}

	logger.Info().Int64("location_id", id).Msg("Location deactivated")
	if err := apiutil.WriteJSON(w, http.StatusOK, location); err != nil {
		logger.Error().Err(err).Int64("location_id", id).Msg("Failed to write location response")
	}
}

func decodeLocationRequest(r *http.Request) (locationRequest, int64, error) {
	var req locationRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		return req, 0, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Address = strings.TrimSpace(req.Address)
	req.Timezone = strings.TrimSpace(req.Timezone)
	if req.Name == "" {
		return req, 0, fmt.Errorf("name is required")
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil || req.Timezone == "Local" {
		return req, 0, fmt.Errorf("timezone must be a valid IANA timezone")
	}
	cutoff := defaultCutoffHours
	if req.CancellationCutoffHours != nil {
		cutoff = *req.CancellationCutoffHours
	}
	if cutoff < 0 || cutoff > maxCutoffHours {
		return req, 0, fmt.Errorf("cancellation_cutoff_hours must be between 0 and %d", maxCutoffHours)
	}
	return req, cutoff, nil
}
