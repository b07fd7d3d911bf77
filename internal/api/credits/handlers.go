// internal/api/credits/handlers.go
package credits

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

const (
	creditQueryTimeout = 5 * time.Second
	defaultAdjustDays  = 30
)

var (
	queries     *dbq.Queries
	store       *appdb.DB
	queriesOnce sync.Once
)

type adjustRequest struct {
	Amount     int64  `json:"amount" validate:"required,min=-1000,max=1000"`
	ValidDays  int64  `json:"valid_days" validate:"omitempty,gt=0,lte=3650"`
	LocationID *int64 `json:"location_id,omitempty" validate:"omitempty,gt=0"`
	Note       string `json:"note" validate:"required,max=500"`
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

// GET /api/v1/credits
func HandleMyCredits(w http.ResponseWriter, r *http.Request) {
	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}
	writeCreditSummary(w, r, user.ID)
}

// GET /api/v1/credits/ledger
func HandleMyLedger(w http.ResponseWriter, r *http.Request) {
	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}
	writeLedger(w, r, user.ID)
}

// GET /api/v1/admin/members/{id}/credits
func HandleMemberCredits(w http.ResponseWriter, r *http.Request) {
	if _, ok := apiutil.RequireRole(w, r, authz.RoleAdmin); !ok {
		return
	}
	userID, ok := memberIDFromPath(w, r)
	if !ok {
		return
	}
	writeCreditSummary(w, r, userID)
}

// GET /api/v1/admin/members/{id}/credits/ledger
func HandleMemberLedger(w http.ResponseWriter, r *http.Request) {
	if _, ok := apiutil.RequireRole(w, r, authz.RoleAdmin); !ok {
		return
	}
	userID, ok := memberIDFromPath(w, r)
	if !ok {
		return
	}
	writeLedger(w, r, userID)
}

// POST /api/v1/admin/members/{id}/credits/adjust
func HandleCreditAdjust(w http.ResponseWriter, r *http.Request) {
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
	userID, ok := memberIDFromPath(w, r)
	if !ok {
		return
	}

	var req adjustRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Note = strings.TrimSpace(req.Note)
	if req.Note == "" {
		apiutil.WriteError(w, http.StatusBadRequest, "note is required")
		return
	}
	if req.Amount > 0 && req.ValidDays == 0 {
		req.ValidDays = defaultAdjustDays
	}

	ctx, cancel := context.WithTimeout(r.Context(), creditQueryTimeout)
	defer cancel()

	now := time.Now().UTC()
	var summary models.CreditSummary
	err := database.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries

		if _, err := qtx.GetUserByID(ctx, userID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apiutil.HandlerError{Status: http.StatusNotFound, Message: "Member not found", Err: err}
			}
			return err
		}
		if req.LocationID != nil {
			if _, err := qtx.GetLocation(ctx, *req.LocationID); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return apiutil.HandlerError{Status: http.StatusBadRequest, Message: "location_id does not exist", Err: err}
				}
				return err
			}
		}

		if err := models.AdjustCredits(ctx, qtx, models.AdjustCreditsParams{
			UserID:     userID,
			Amount:     req.Amount,
			ValidDays:  req.ValidDays,
			LocationID: req.LocationID,
			Note:       req.Note,
			CreatedBy:  admin.ID,
			Now:        now,
		}); err != nil {
			return err
		}

		var err error
		summary, err = models.GetCreditSummary(ctx, qtx, userID, now)
		return err
	})
	if err != nil {
		apiutil.WriteHandlerError(w, r, apiutil.DomainError(err, "Failed to adjust credits"), "Failed to adjust credits")
		return
	}

	logger.Info().
		Int64("user_id", userID).
		Int64("amount", req.Amount).
		Int64("admin_id", admin.ID).
		Msg("Credits adjusted")
	if err := apiutil.WriteJSON(w, http.StatusOK, summary); err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to write credit response")
	}
}

func memberIDFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return userID, true
}

func writeCreditSummary(w http.ResponseWriter, r *http.Request, userID int64) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	if q == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), creditQueryTimeout)
	defer cancel()

	if _, err := q.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, http.StatusNotFound, "Member not found")
			return
		}
		logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to load member")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load credits")
		return
	}

	summary, err := models.GetCreditSummary(ctx, q, userID, time.Now().UTC())
	if err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to load credit summary")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load credits")
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, summary); err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to write credit response")
	}
}

func writeLedger(w http.ResponseWriter, r *http.Request, userID int64) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	if q == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	limit, offset, err := apiutil.Pagination(r)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), creditQueryTimeout)
	defer cancel()

	entries, err := q.ListCreditTransactions(ctx, dbq.ListCreditTransactionsParams{
		UserID: userID,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to list credit transactions")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load credit history")
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{
		"transactions": entries,
		"limit":        limit,
		"offset":       offset,
	}); err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to write ledger response")
	}
}
