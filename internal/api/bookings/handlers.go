// internal/api/bookings/handlers.go
package bookings

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

const bookingQueryTimeout = 5 * time.Second

var (
	queries     *dbq.Queries
	store       *appdb.DB
	notifier    *notifications.Notifier
	queriesOnce sync.Once
)

type bookRequest struct {
	ClassID int64  `json:"class_id" validate:"required,gt=0"`
	ChildID *int64 `json:"child_id,omitempty" validate:"omitempty,gt=0"`
}

type adminBookRequest struct {
	ClassID int64  `json:"class_id" validate:"required,gt=0"`
	UserID  int64  `json:"user_id" validate:"required,gt=0"`
	ChildID *int64 `json:"child_id,omitempty" validate:"omitempty,gt=0"`
}

type attendanceRequest struct {
	Status string `json:"status" validate:"required,oneof=attended no_show"`
}

type bookingResponse struct {
	Booking dbq.BookingDetail `json:"booking"`
	Credits *int64            `json:"creditsRemaining,omitempty"`
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

// POST /api/v1/bookings
func HandleBookingCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	var req bookRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	book(w, r, user.ID, req.ClassID, req.ChildID)
}

// POST /api/v1/admin/bookings
func HandleAdminBookingCreate(w http.ResponseWriter, r *http.Request) {
	if _, ok := apiutil.RequireRole(w, r, authz.RoleAdmin); !ok {
		return
	}

	var req adminBookRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	book(w, r, req.UserID, req.ClassID, req.ChildID)
}

func book(w http.ResponseWriter, r *http.Request, userID, classID int64, childID *int64) {
	logger := log.Ctx(r.Context())

	database := loadDB()
	if database == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	now := time.Now().UTC()
	var (
		detail    dbq.BookingDetail
		remaining int64
	)
	err := database.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries

		member, err := qtx.GetUserByID(ctx, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apiutil.HandlerError{Status: http.StatusNotFound, Message: "Member not found", Err: err}
			}
			return err
		}
		if member.Status != dbq.StatusActive {
			return apiutil.HandlerError{Status: http.StatusConflict, Message: "Member is inactive"}
		}

		result, err := models.BookClass(ctx, qtx, models.BookClassParams{
			ClassID: classID,
			UserID:  userID,
			ChildID: childID,
			Now:     now,
		})
		if err != nil {
			return err
		}
		detail, err = qtx.GetBookingDetail(ctx, result.Booking.ID)
		if err != nil {
			return err
		}
		balance, err := qtx.GetCreditBalance(ctx, userID, now)
		if err != nil {
			return err
		}
		remaining = balance.Available
		return nil
	})
	if err != nil {
		apiutil.WriteHandlerError(w, r, apiutil.DomainError(err, "Failed to book class"), "Failed to book class")
		return
	}

	notifier.BookingConfirmed(r.Context(), detail.ID, logger)

	logger.Info().
		Int64("booking_id", detail.ID).
		Int64("class_id", classID).
		Int64("user_id", userID).
		Msg("Class booked")
	if err := apiutil.WriteJSON(w, http.StatusCreated, bookingResponse{Booking: detail, Credits: &remaining}); err != nil {
		logger.Error().Err(err).Int64("booking_id", detail.ID).Msg("Failed to write booking response")
	}
}

// GET /api/v1/bookings?upcoming=&status=
func HandleMyBookingsList(w http.ResponseWriter, r *http.Request) {
	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}
	params, err := listParams(r)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	params.UserID = user.ID
	if params.Upcoming == nil && params.From == nil && params.To == nil {
		upcoming := true
		params.Upcoming = &upcoming
	}
	writeBookingList(w, r, params)
}

// GET /api/v1/admin/bookings?user_id=&class_id=&status=&from=&to=
func HandleAdminBookingsList(w http.ResponseWriter, r *http.Request) {
	if _, ok := apiutil.RequireRole(w, r, authz.RoleAdmin); !ok {
		return
	}
	params, err := listParams(r)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if params.UserID, err = apiutil.OptionalInt64Query(r, "user_id"); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if params.ClassID, err = apiutil.OptionalInt64Query(r, "class_id"); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeBookingList(w, r, params)
}

// GET /api/v1/bookings/{id}
func HandleBookingGet(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	detail, err := q.GetBookingDetail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, http.StatusNotFound, "Booking not found")
			return
		}
		logger.Error().Err(err).Int64("booking_id", id).Msg("Failed to load booking")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load booking")
		return
	}
	if detail.UserID != user.ID && !authz.IsStaff(user) {
		apiutil.WriteError(w, http.StatusNotFound, "Booking not found")
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, detail); err != nil {
		logger.Error().Err(err).Int64("booking_id", id).Msg("Failed to write booking response")
	}
}

// POST /api/v1/bookings/{id}/cancel
func HandleBookingCancel(w http.ResponseWriter, r *http.Request) {
	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}
	cancelBooking(w, r, user, false)
}

// POST /api/v1/admin/bookings/{id}/cancel
func HandleAdminBookingCancel(w http.ResponseWriter, r *http.Request) {
	admin, ok := apiutil.RequireRole(w, r, authz.RoleAdmin)
	if !ok {
		return
	}
	cancelBooking(w, r, admin, true)
}

func cancelBooking(w http.ResponseWriter, r *http.Request, actor *authz.AuthUser, asAdmin bool) {
	logger := log.Ctx(r.Context())

	database := loadDB()
	if database == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	var result models.CancellationResult
	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries

		booking, err := qtx.GetBooking(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrBookingNotFound
			}
			return err
		}
		if !asAdmin && booking.UserID != actor.ID {
			return models.ErrBookingNotFound
		}

		result, err = models.CancelBooking(ctx, qtx, models.CancelBookingParams{
			BookingID:   id,
			ActorID:     actor.ID,
			ForceRefund: asAdmin,
			Now:         time.Now().UTC(),
		})
		return err
	})
	if err != nil {
		apiutil.WriteHandlerError(w, r, apiutil.DomainError(err, "Failed to cancel booking"), "Failed to cancel booking")
		return
	}

	notifier.BookingCancelled(r.Context(), id, result.Booking.Refunded, logger)

	logger.Info().
		Int64("booking_id", id).
		Int64("actor_id", actor.ID).
		Bool("refunded", result.Booking.Refunded).
		Msg("Booking cancelled")
	if err := apiutil.WriteJSON(w, http.StatusOK, result.Booking); err != nil {
		logger.Error().Err(err).Int64("booking_id", id).Msg("Failed to write booking response")
	}
}

// POST /api/v1/bookings/{id}/attendance
func HandleAttendance(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	database := loadDB()
	if database == nil {
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

	var req attendanceRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	var updated dbq.Booking
	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries

		booking, err := qtx.GetBooking(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrBookingNotFound
			}
			return err
		}
		class, err := qtx.GetClass(ctx, booking.ClassID)
		if err != nil {
			return err
		}
		if !authz.CanManageClass(user, class.CoachID) {
			return apiutil.HandlerError{Status: http.StatusForbidden, Message: "Forbidden"}
		}

		updated, err = models.MarkAttendance(ctx, qtx, id, req.Status, time.Now().UTC())
		return err
	})
	if err != nil {
		apiutil.WriteHandlerError(w, r, apiutil.DomainError(err, "Failed to record attendance"), "Failed to record attendance")
		return
	}

	logger.Info().
		Int64("booking_id", id).
		Str("status", updated.Status).
		Int64("staff_id", user.ID).
		Msg("Attendance recorded")
	if err := apiutil.WriteJSON(w, http.StatusOK, updated); err != nil {
		logger.Error().Err(err).Int64("booking_id", id).Msg("Failed to write booking response")
	}
}

func listParams(r *http.Request) (dbq.ListBookingsParams, error) {
	limit, offset, err := apiutil.Pagination(r)
	if err != nil {
		return dbq.ListBookingsParams{}, err
	}
	query := r.URL.Query()

	params := dbq.ListBookingsParams{
		Status: strings.TrimSpace(query.Get("status")),
		Now:    time.Now().UTC(),
		Limit:  limit,
		Offset: offset,
	}
	switch params.Status {
	case "", dbq.BookingStatusBooked, dbq.BookingStatusCancelled, dbq.BookingStatusAttended, dbq.BookingStatusNoShow:
	default:
		return dbq.ListBookingsParams{}, errors.New("status must be booked, cancelled, attended or no_show")
	}
	switch query.Get("upcoming") {
	case "":
	case "true":
		upcoming := true
		params.Upcoming = &upcoming
	case "false":
		upcoming := false
		params.Upcoming = &upcoming
	default:
		return dbq.ListBookingsParams{}, errors.New("upcoming must be true or false")
	}
	if params.From, err = apiutil.OptionalTimeQuery(r, "from"); err != nil {
		return dbq.ListBookingsParams{}, err
	}
	if params.To, err = apiutil.OptionalTimeQuery(r, "to"); err != nil {
		return dbq.ListBookingsParams{}, err
	}
	return params, nil
}

func writeBookingList(w http.ResponseWriter, r *http.Request, params dbq.ListBookingsParams) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	if q == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	bookings, err := q.ListBookings(ctx, params)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list bookings")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load bookings")
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{
		"bookings": bookings,
		"limit":    params.Limit,
		"offset":   params.Offset,
	}); err != nil {
		logger.Error().Err(err).Msg("Failed to write bookings response")
	}
}
