// internal/api/checkin/handlers.go
package checkin

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Fitclub/internal/api/apiutil"
	"github.com/codr1/Fitclub/internal/api/authz"
	appdb "github.com/codr1/Fitclub/internal/db"
	dbq "github.com/codr1/Fitclub/internal/db/queries"
	"github.com/codr1/Fitclub/internal/models"
	"github.com/codr1/Fitclub/internal/qrcheckin"
)

const checkinQueryTimeout = 5 * time.Second

var (
	queries      *dbq.Queries
	store        *appdb.DB
	signer       *qrcheckin.Signer
	windowBefore time.Duration
	queriesOnce  sync.Once
)

type scanRequest struct {
	Token      string `json:"token" validate:"required"`
	LocationID int64  `json:"location_id" validate:"required,gt=0"`
}

type manualRequest struct {
	BookingID  int64 `json:"booking_id" validate:"required,gt=0"`
	LocationID int64 `json:"location_id" validate:"omitempty,gt=0"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	Reference string    `json:"reference"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type checkinResponse struct {
	Checkin dbq.Checkin       `json:"checkin"`
	Booking dbq.BookingDetail `json:"booking"`
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(database *appdb.DB, tokenSigner *qrcheckin.Signer, window time.Duration) {
	if database == nil || tokenSigner == nil {
		return
	}
	queriesOnce.Do(func() {
		queries = database.Queries
		store = database
		signer = tokenSigner
		windowBefore = window
	})
}

func loadQueries() *dbq.Queries {
	return queries
}

func loadDB() *appdb.DB {
	return store
}

// GET /api/v1/bookings/{id}/qr-token
func HandleBookingQRToken(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	token, ok := issueToken(w, r)
	if !ok {
		return
	}
	if err := apiutil.WriteJSON(w, http.StatusOK, token); err != nil {
		logger.Error().Err(err).Msg("Failed to write check-in token response")
	}
}

// GET /api/v1/bookings/{id}/qr
func HandleBookingQR(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	token, ok := issueToken(w, r)
	if !ok {
		return
	}
	png, err := qrcheckin.PNG(token.Token, qrcheckin.DefaultImageSize)
	if err != nil {
		logger.Error().Err(err).Str("reference", token.Reference).Msg("Failed to render QR code")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to render QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		logger.Error().Err(err).Msg("Failed to write QR code response")
	}
}

// issueToken signs a token for a booking the caller owns. The booking must be
// active and its class must not have ended.
func issueToken(w http.ResponseWriter, r *http.Request) (tokenResponse, bool) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	if q == nil || signer == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return tokenResponse{}, false
	}
	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return tokenResponse{}, false
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return tokenResponse{}, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), checkinQueryTimeout)
	defer cancel()

	detail, err := q.GetBookingDetail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, http.StatusNotFound, "Booking not found")
			return tokenResponse{}, false
		}
		logger.Error().Err(err).Int64("booking_id", id).Msg("Failed to load booking")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load booking")
		return tokenResponse{}, false
	}
	if detail.UserID != user.ID {
		apiutil.WriteError(w, http.StatusNotFound, "Booking not found")
		return tokenResponse{}, false
	}

	now := time.Now().UTC()
	if detail.Status != dbq.BookingStatusBooked || detail.ClassStatus != dbq.ClassStatusScheduled {
		apiutil.WriteError(w, http.StatusConflict, models.ErrBookingNotActive.Error())
		return tokenResponse{}, false
	}
	if !now.Before(detail.ClassEndsAt) {
		apiutil.WriteError(w, http.StatusConflict, "class has already ended")
		return tokenResponse{}, false
	}

	token, err := signer.Issue(detail.ID, detail.UserID, detail.Reference, now, detail.ClassEndsAt)
	if err != nil {
		logger.Error().Err(err).Int64("booking_id", id).Msg("Failed to sign check-in token")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to issue check-in token")
		return tokenResponse{}, false
	}
	return tokenResponse{Token: token, Reference: detail.Reference, ExpiresAt: detail.ClassEndsAt}, true
}

// POST /api/v1/checkin/scan
func HandleCheckinScan(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if loadDB() == nil || signer == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	staff, ok := apiutil.RequireRole(w, r, authz.RoleCoach, authz.RoleAdmin)
	if !ok {
		return
	}

	var req scanRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	claims, err := signer.Verify(req.Token, now)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, qrcheckin.ErrTokenExpired) {
			status = http.StatusUnprocessableEntity
		}
		logger.Warn().Err(err).Int64("staff_id", staff.ID).Msg("Rejected check-in token")
		apiutil.WriteError(w, status, err.Error())
		return
	}

	checkIn(w, r, staff, models.CheckInParams{
		BookingID:  claims.BookingID,
		LocationID: req.LocationID,
		Method:     dbq.CheckinMethodQR,
		Now:        now,
	}, &claims)
}

// POST /api/v1/checkin/manual
func HandleCheckinManual(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if loadDB() == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	staff, ok := apiutil.RequireRole(w, r, authz.RoleCoach, authz.RoleAdmin)
	if !ok {
		return
	}

	var req manualRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	checkIn(w, r, staff, models.CheckInParams{
		BookingID:  req.BookingID,
		LocationID: req.LocationID,
		Method:     dbq.CheckinMethodManual,
		Now:        time.Now().UTC(),
	}, nil)
}

func checkIn(w http.ResponseWriter, r *http.Request, staff *authz.AuthUser, params models.CheckInParams, claims *qrcheckin.Claims) {
	logger := log.Ctx(r.Context())
	database := loadDB()

	ctx, cancel := context.WithTimeout(r.Context(), checkinQueryTimeout)
	defer cancel()

	staffID := staff.ID
	params.ScannedBy = &staffID
	params.WindowBefore = windowBefore

	var resp checkinResponse
	err := database.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries

		if claims != nil {
			booking, err := qtx.GetBooking(ctx, params.BookingID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return models.ErrBookingNotFound
				}
				return err
			}
			if booking.UserID != claims.UserID || booking.Reference != claims.Reference {
				return apiutil.HandlerError{Status: http.StatusBadRequest, Message: qrcheckin.ErrInvalidToken.Error()}
			}
		}

		result, err := models.CheckIn(ctx, qtx, params)
		if err != nil {
			return err
		}
		resp.Checkin = result.Checkin
		resp.Booking, err = qtx.GetBookingDetail(ctx, result.Booking.ID)
		return err
	})
	if err != nil {
		apiutil.WriteHandlerError(w, r, apiutil.DomainError(err, "Failed to check in"), "Failed to check in")
		return
	}

	logger.Info().
		Int64("booking_id", resp.Booking.ID).
		Int64("user_id", resp.Booking.UserID).
		Str("method", params.Method).
		Int64("staff_id", staff.ID).
		Msg("Member checked in")
	if err := apiutil.WriteJSON(w, http.StatusOK, resp); err != nil {
		logger.Error().Err(err).Int64("booking_id", resp.Booking.ID).Msg("Failed to write check-in response")
	}
}
