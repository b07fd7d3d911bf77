// internal/api/classes/handlers.go
package classes

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
	"github.com/codr1/Fitclub/internal/api/notifications"
	appdb "github.com/codr1/Fitclub/internal/db"
	dbq "github.com/codr1/Fitclub/internal/db/queries"
	"github.com/codr1/Fitclub/internal/models"
)

const (
	classQueryTimeout = 5 * time.Second
	defaultWindow     = 14 * 24 * time.Hour
	maxWindow         = 62 * 24 * time.Hour
)

var (
	queries     *dbq.Queries
	store       *appdb.DB
	notifier    *notifications.Notifier
	queriesOnce sync.Once
)

type classRequest struct {
	LocationID      int64  `json:"location_id" validate:"required,gt=0"`
	ClassTypeID     int64  `json:"class_type_id" validate:"required,gt=0"`
	CoachID         int64  `json:"coach_id" validate:"required,gt=0"`
	StartsAt        string `json:"starts_at" validate:"required"`
	EndsAt          string `json:"ends_at"`
	DurationMinutes int64  `json:"duration_minutes" validate:"omitempty,gt=0,lte=600"`
	Capacity        int64  `json:"capacity" validate:"required,gt=0"`
}

type updateClassRequest struct {
	ClassTypeID int64  `json:"class_type_id" validate:"required,gt=0"`
	CoachID     int64  `json:"coach_id" validate:"required,gt=0"`
	StartsAt    string `json:"starts_at" validate:"required"`
	EndsAt      string `json:"ends_at" validate:"required"`
	Capacity    int64  `json:"capacity" validate:"required,gt=0"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
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

// GET /api/v1/classes?location_id=&coach_id=&from=&to=&include_cancelled=
func HandleClassesList(w http.ResponseWriter, r *http.Request) {
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

	params, err := listParams(r)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	params.IncludeCancelled = authz.IsStaff(user) && r.URL.Query().Get("include_cancelled") == "true"

	writeClassList(w, r, q, params)
}

// GET /api/v1/coach/classes?from=&to=
func HandleCoachClasses(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	if q == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	user, ok := apiutil.RequireRole(w, r, authz.RoleCoach, authz.RoleAdmin)
	if !ok {
		return
	}

	params, err := listParams(r)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !authz.IsAdmin(user) || params.CoachID == 0 {
		params.CoachID = user.ID
	}
	params.IncludeCancelled = true

	writeClassList(w, r, q, params)
}

// GET /api/v1/classes/{id}
func HandleClassGet(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	if q == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if _, ok := apiutil.RequireUser(w, r); !ok {
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), classQueryTimeout)
	defer cancel()

	class, err := q.GetClassSummary(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, http.StatusNotFound, "Class not found")
			return
		}
		logger.Error().Err(err).Int64("class_id", id).Msg("Failed to load class")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load class")
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, class); err != nil {
		logger.Error().Err(err).Int64("class_id", id).Msg("Failed to write class response")
	}
}

// GET /api/v1/classes/{id}/roster
func HandleClassRoster(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	if q == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	user, ok := apiutil.RequireRole(w, r, authz.RoleCoach, authz.RoleAdmin)
	if !ok {
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), classQueryTimeout)
	defer cancel()

	class, err := q.GetClassSummary(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, http.StatusNotFound, "Class not found")
			return
		}
		logger.Error().Err(err).Int64("class_id", id).Msg("Failed to load class")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load class")
		return
	}
	if !authz.CanManageClass(user, class.CoachID) {
		apiutil.WriteError(w, http.StatusForbidden, "Forbidden")
		return
	}

	roster, err := q.ListClassRoster(ctx, id)
	if err != nil {
		logger.Error().Err(err).Int64("class_id", id).Msg("Failed to load roster")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load roster")
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{
		"class":    class,
		"bookings": roster,
	}); err != nil {
		logger.Error().Err(err).Int64("class_id", id).Msg("Failed to write roster response")
	}
}

// POST /api/v1/admin/classes
func HandleClassCreate(w http.ResponseWriter, r *http.Request) {
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

	var req classRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), classQueryTimeout)
	defer cancel()

	var created dbq.Class
	err := database.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries

		tz, err := locationZone(ctx, qtx, req.LocationID)
		if err != nil {
			return err
		}
		startsAt, err := apiutil.ParseTime(req.StartsAt, "starts_at", tz)
		if err != nil {
			return apiutil.HandlerError{Status: http.StatusBadRequest, Message: err.Error(), Err: err}
		}
		endsAt, err := classEnd(ctx, qtx, req, startsAt, tz)
		if err != nil {
			return err
		}

		created, err = models.CreateClass(ctx, qtx, models.CreateClassParams{
			LocationID:  req.LocationID,
			ClassTypeID: req.ClassTypeID,
			CoachID:     req.CoachID,
			StartsAt:    startsAt,
			EndsAt:      endsAt,
			Capacity:    req.Capacity,
		})
		return err
	})
	if err != nil {
		apiutil.WriteHandlerError(w, r, apiutil.DomainError(err, "Failed to create class"), "Failed to create class")
		return
	}

	logger.Info().
		Int64("class_id", created.ID).
		Int64("location_id", created.LocationID).
		Time("starts_at", created.StartsAt).
		Msg("Class created")
	if err := apiutil.WriteJSON(w, http.StatusCreated, created); err != nil {
		logger.Error().Err(err).Int64("class_id", created.ID).Msg("Failed to write class response")
	}
}

// PUT /api/v1/admin/classes/{id}
func HandleClassUpdate(w http.ResponseWriter, r *http.Request) {
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

	var req updateClassRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), classQueryTimeout)
	defer cancel()

	var updated dbq.Class
	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries

		existing, err := qtx.GetClass(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrClassNotFound
			}
			return err
		}
		tz, err := locationZone(ctx, qtx, existing.LocationID)
		if err != nil {
			return err
		}
		startsAt, err := apiutil.ParseTime(req.StartsAt, "starts_at", tz)
		if err != nil {
			return apiutil.HandlerError{Status: http.StatusBadRequest, Message: err.Error(), Err: err}
		}
		endsAt, err := apiutil.ParseTime(req.EndsAt, "ends_at", tz)
		if err != nil {
			return apiutil.HandlerError{Status: http.StatusBadRequest, Message: err.Error(), Err: err}
		}

		updated, err = models.UpdateClass(ctx, qtx, models.UpdateClassParams{
			ID:          id,
			ClassTypeID: req.ClassTypeID,
			CoachID:     req.CoachID,
			StartsAt:    startsAt,
			EndsAt:      endsAt,
			Capacity:    req.Capacity,
		})
		return err
	})
	if err != nil {
		apiutil.WriteHandlerError(w, r, apiutil.DomainError(err, "Failed to update class"), "Failed to update class")
		return
	}

	logger.Info().Int64("class_id", id).Msg("Class updated")
	if err := apiutil.WriteJSON(w, http.StatusOK, updated); err != nil {
		logger.Error().Err(err).Int64("class_id", id).Msg("Failed to write class response")
	}
}

// POST /api/v1/admin/classes/{id}/cancel
func HandleClassCancel(w http.ResponseWriter, r *http.Request) {
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

	var req cancelRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		apiutil.WriteError(w, http.StatusBadRequest, "reason is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), classQueryTimeout)
	defer cancel()

	actorID := admin.ID
	var result models.ClassCancellation
	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		var err error
		result, err = models.CancelClass(ctx, txdb.Queries, id, req.Reason, &actorID, time.Now().UTC())
		return err
	})
	if err != nil {
		apiutil.WriteHandlerError(w, r, apiutil.DomainError(err, "Failed to cancel class"), "Failed to cancel class")
		return
	}

	notifier.ClassCancelled(r.Context(), result.Bookings, req.Reason, logger)

	logger.Info().
		Int64("class_id", id).
		Int("bookings_refunded", len(result.Bookings)).
		Int64("admin_id", admin.ID).
		Msg("Class cancelled")
	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{
		"class":            result.Class,
		"bookingsRefunded": len(result.Bookings),
	}); err != nil {
		logger.Error().Err(err).Int64("class_id", id).Msg("Failed to write class response")
	}
}

func listParams(r *http.Request) (dbq.ListClassesParams, error) {
	locationID, err := apiutil.OptionalInt64Query(r, "location_id")
	if err != nil {
		return dbq.ListClassesParams{}, err
	}
	coachID, err := apiutil.OptionalInt64Query(r, "coach_id")
	if err != nil {
		return dbq.ListClassesParams{}, err
	}
	from, err := apiutil.OptionalTimeQuery(r, "from")
	if err != nil {
		return dbq.ListClassesParams{}, err
	}
	to, err := apiutil.OptionalTimeQuery(r, "to")
	if err != nil {
		return dbq.ListClassesParams{}, err
	}

	params := dbq.ListClassesParams{
		LocationID: locationID,
		CoachID:    coachID,
		From:       time.Now().UTC(),
	}
	if from != nil {
		params.From = *from
	}
	params.To = params.From.Add(defaultWindow)
	if to != nil {
		params.To = *to
	}
	if !params.To.After(params.From) {
		return dbq.ListClassesParams{}, errors.New("to must be after from")
	}
	if params.To.Sub(params.From) > maxWindow {
		return dbq.ListClassesParams{}, errors.New("date range may span at most 62 days")
	}
	return params, nil
}

func writeClassList(w http.ResponseWriter, r *http.Request, q *dbq.Queries, params dbq.ListClassesParams) {
	logger := log.Ctx(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), classQueryTimeout)
	defer cancel()

	classes, err := q.ListClasses(ctx, params)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list classes")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load classes")
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{
		"classes": classes,
		"from":    params.From,
		"to":      params.To,
	}); err != nil {
		logger.Error().Err(err).Msg("Failed to write classes response")
	}
}

func locationZone(ctx context.Context, q *dbq.Queries, locationID int64) (*time.Location, error) {
	location, err := q.GetLocation(ctx, locationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrLocationNotFound
		}
		return nil, err
	}
	tz, err := time.LoadLocation(location.Timezone)
	if err != nil {
		return nil, err
	}
	return tz, nil
}

// classEnd prefers an explicit end, then an explicit duration, then the class
// type's default duration.
func classEnd(ctx context.Context, q *dbq.Queries, req classRequest, startsAt time.Time, tz *time.Location) (time.Time, error) {
	if req.EndsAt != "" {
		endsAt, err := apiutil.ParseTime(req.EndsAt, "ends_at", tz)
		if err != nil {
			return time.Time{}, apiutil.HandlerError{Status: http.StatusBadRequest, Message: err.Error(), Err: err}
		}
		return endsAt, nil
	}
	if req.DurationMinutes > 0 {
		return startsAt.Add(time.Duration(req.DurationMinutes) * time.Minute), nil
	}
	classType, err := q.GetClassType(ctx, req.ClassTypeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, models.ErrInvalidClassType
		}
		return time.Time{}, err
	}
	return startsAt.Add(time.Duration(classType.DefaultDurationMinutes) * time.Minute), nil
}
