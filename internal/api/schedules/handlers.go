// internal/api/schedules/handlers.go
package schedules

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Fitclub/internal/api/apiutil"
	"github.com/codr1/Fitclub/internal/api/authz"
	"github.com/codr1/Fitclub/internal/api/notifications"
	appdb "github.com/codr1/Fitclub/internal/db"
	dbq "github.com/codr1/Fitclub/internal/db/queries"
	"github.com/codr1/Fitclub/internal/models"
	"github.com/codr1/Fitclub/internal/recurring"
)

const (
	scheduleQueryTimeout = 10 * time.Second
	maxImportEntries     = 200
)

var (
	queries     *dbq.Queries
	store       *appdb.DB
	notifier    *notifications.Notifier
	queriesOnce sync.Once
)

type createScheduleRequest struct {
	LocationID int64 `json:"location_id" validate:"required,gt=0"`
	models.ScheduleInput
}

type updateScheduleRequest struct {
	ApplyTo string `json:"apply_to" validate:"required,oneof=current future"`
	models.ScheduleChange
}

type generateRequest struct {
	LocationID int64  `json:"location_id" validate:"required,gt=0"`
	Month      string `json:"month" validate:"required"`
}

type importRequest struct {
	LocationID int64                  `json:"location_id" validate:"required,gt=0"`
	Entries    []models.ScheduleInput `json:"entries" validate:"required,min=1,dive"`
	DryRun     bool                   `json:"dry_run"`
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(database *appdb.DB, n *notifications.Notifier) {
	if database == nil {
		return
	}
	queriesOnce.Do(func() {
		queries = database.Queries
		store = database
		notifier = n
	})
}

func loadQueries() *dbq.Queries {
	return queries
}

func loadDB() *appdb.DB {
	return store
}

// GET /api/v1/admin/schedules?location_id=&month=
func HandleSchedulesList(w http.ResponseWriter, r *http.Request) {
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

	locationID, err := apiutil.OptionalInt64Query(r, "location_id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if locationID == 0 {
		apiutil.WriteError(w, http.StatusBadRequest, "location_id is required")
		return
	}
	month := r.URL.Query().Get("month")
	if month != "" {
		if _, err := recurring.ParseMonth(month); err != nil {
			apiutil.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), scheduleQueryTimeout)
	defer cancel()

	schedules, err := q.ListDefaultSchedules(ctx, dbq.ListDefaultSchedulesParams{
		LocationID: locationID,
		Month:      month,
	})
	if err != nil {
		logger.Error().Err(err).Int64("location_id", locationID).Msg("Failed to list schedules")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load schedules")
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{"schedules": schedules}); err != nil {
		logger.Error().Err(err).Msg("Failed to write schedules response")
	}
}

// POST /api/v1/admin/schedules
func HandleScheduleCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database := loadDB()
	if database == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if _, ok := apiutil.RequireRole(w, r, authz.RoleAdmin); !ok {
		return
	}

	var req createScheduleRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.ScheduleInput.Validate(); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), scheduleQueryTimeout)
	defer cancel()

	var created dbq.DefaultSchedule
	err := database.RunInTx(ctx, func(txdb *appdb.DB) error {
		var err error
		created, err = models.CreateSchedule(ctx, txdb.Queries, req.LocationID, req.ScheduleInput)
		return err
	})
	if err != nil {
		writeScheduleError(w, r, err, "Failed to create schedule")
		return
	}

	logger.Info().
		Int64("schedule_id", created.ID).
		Int64("location_id", created.LocationID).
		Msg("Default schedule created")
	if err := apiutil.WriteJSON(w, http.StatusCreated, created); err != nil {
		logger.Error().Err(err).Int64("schedule_id", created.ID).Msg("Failed to write schedule response")
	}
}

// PUT /api/v1/admin/schedules/{id}
func HandleScheduleUpdate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database := loadDB()
	if database == nil {
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

	var req updateScheduleRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.ScheduleChange.Validate(); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), scheduleQueryTimeout)
	defer cancel()

	var result models.UpdateScheduleResult
	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		var err error
		result, err = models.UpdateSchedule(ctx, txdb.Queries, models.UpdateScheduleParams{
			ID:      id,
			Change:  req.ScheduleChange,
			ApplyTo: req.ApplyTo,
			Now:     time.Now().UTC(),
		})
		return err
	})
	if err != nil {
		writeScheduleError(w, r, err, "Failed to update schedule")
		return
	}

	logger.Info().
		Int64("schedule_id", id).
		Int64("new_schedule_id", result.Schedule.ID).
		Str("apply_to", req.ApplyTo).
		Int("classes_updated", result.ClassesUpdated).
		Int("classes_removed", result.ClassesRemoved).
		Int64("classes_created", result.ClassesCreated).
		Msg("Default schedule updated")
	if err := apiutil.WriteJSON(w, http.StatusOK, result); err != nil {
		logger.Error().Err(err).Int64("schedule_id", id).Msg("Failed to write schedule response")
	}
}

// DELETE /api/v1/admin/schedules/{id}?apply_to=current|future
func HandleScheduleDelete(w http.ResponseWriter, r *http.Request) {
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
	applyTo := r.URL.Query().Get("apply_to")
	if applyTo == "" {
		applyTo = models.ApplyToFuture
	}

	ctx, cancel := context.WithTimeout(r.Context(), scheduleQueryTimeout)
	defer cancel()

	actorID := admin.ID
	var result models.DeleteScheduleResult
	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		var err error
		result, err = models.DeleteSchedule(ctx, txdb.Queries, id, applyTo, &actorID, time.Now().UTC())
		return err
	})
	if err != nil {
		writeScheduleError(w, r, err, "Failed to delete schedule")
		return
	}

	for _, cancelled := range result.CancelledClasses {
		notifier.ClassCancelled(r.Context(), cancelled.Bookings, cancelled.Class.CancelReason, logger)
	}

	logger.Info().
		Int64("schedule_id", id).
		Str("apply_to", applyTo).
		Int("classes_cancelled", result.ClassesCancelled).
		Int("bookings_refunded", result.BookingsRefunded).
		Msg("Default schedule ended")
	if err := apiutil.WriteJSON(w, http.StatusOK, result); err != nil {
		logger.Error().Err(err).Int64("schedule_id", id).Msg("Failed to write schedule response")
	}
}

// POST /api/v1/admin/schedules/generate
func HandleScheduleGenerate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database := loadDB()
	if database == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if _, ok := apiutil.RequireRole(w, r, authz.RoleAdmin); !ok {
		return
	}

	var req generateRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	month, err := recurring.ParseMonth(req.Month)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), scheduleQueryTimeout)
	defer cancel()

	var result models.GenerateResult
	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		var err error
		result, err = models.GenerateMonth(ctx, txdb.Queries, req.LocationID, month, time.Now().UTC())
		return err
	})
	if err != nil {
		writeScheduleError(w, r, err, "Failed to generate classes")
		return
	}

	logger.Info().
		Int64("location_id", result.LocationID).
		Str("month", result.Month).
		Int64("created", result.Created).
		Int64("skipped", result.Skipped).
		Msg("Generated classes")
	if err := apiutil.WriteJSON(w, http.StatusOK, result); err != nil {
		logger.Error().Err(err).Msg("Failed to write generate response")
	}
}

// POST /api/v1/admin/schedules/import
func HandleScheduleImport(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database := loadDB()
	if database == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if _, ok := apiutil.RequireRole(w, r, authz.RoleAdmin); !ok {
		return
	}

	var req importRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Entries) > maxImportEntries {
		apiutil.WriteError(w, http.StatusBadRequest, fmt.Sprintf("at most %d entries can be imported at once", maxImportEntries))
		return
	}
	for i, entry := range req.Entries {
		if err := entry.Validate(); err != nil {
			apiutil.WriteError(w, http.StatusBadRequest, fmt.Sprintf("entry %d: %s", i, err))
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), scheduleQueryTimeout)
	defer cancel()

	var result models.ImportResult
	err := database.RunInTx(ctx, func(txdb *appdb.DB) error {
		var err error
		result, err = models.ImportSchedules(ctx, txdb.Queries, req.LocationID, req.Entries, req.DryRun)
		return err
	})
	if err != nil {
		writeScheduleError(w, r, err, "Failed to import schedules")
		return
	}

	logger.Info().
		Int64("location_id", req.LocationID).
		Bool("dry_run", result.DryRun).
		Int("planned", result.Planned).
		Int("conflicts", len(result.Conflicts)).
		Int("created", len(result.Created)).
		Msg("Schedule import processed")
	if err := apiutil.WriteJSON(w, http.StatusOK, result); err != nil {
		logger.Error().Err(err).Msg("Failed to write import response")
	}
}

// writeScheduleError reports conflicts with their details and maps the rest
// through the shared domain errors.
func writeScheduleError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	logger := log.Ctx(r.Context())

	var conflictErr *models.ScheduleConflictError
	if errors.As(err, &conflictErr) {
		if writeErr := apiutil.WriteJSON(w, http.StatusConflict, map[string]any{
			"error":     "schedule conflicts with existing classes",
			"conflicts": conflictErr.Conflicts,
		}); writeErr != nil {
			logger.Error().Err(writeErr).Msg("Failed to write conflict response")
		}
		return
	}
	var capacityErr *models.CapacityConflictError
	if errors.As(err, &capacityErr) {
		if writeErr := apiutil.WriteJSON(w, http.StatusConflict, map[string]any{
			"error":    capacityErr.Error(),
			"capacity": capacityErr.Capacity,
			"classes":  capacityErr.Classes,
		}); writeErr != nil {
			logger.Error().Err(writeErr).Msg("Failed to write conflict response")
		}
		return
	}
	var rescheduleErr *models.RescheduleConflictError
	if errors.As(err, &rescheduleErr) {
		if writeErr := apiutil.WriteJSON(w, http.StatusConflict, map[string]any{
			"error":   rescheduleErr.Error(),
			"classes": rescheduleErr.Classes,
		}); writeErr != nil {
			logger.Error().Err(writeErr).Msg("Failed to write conflict response")
		}
		return
	}
	apiutil.WriteHandlerError(w, r, apiutil.DomainError(err, fallback), fallback)
}
