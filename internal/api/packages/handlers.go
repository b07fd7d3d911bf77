// internal/api/packages/handlers.go
package packages

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
	appdb "github.com/codr1/Fitclub/internal/db"
	dbq "github.com/codr1/Fitclub/internal/db/queries"
	"github.com/codr1/Fitclub/internal/models"
)

const (
	packageQueryTimeout = 5 * time.Second
	maxValidDays        = 3650
)

var (
	queries     *dbq.Queries
	store       *appdb.DB
	queriesOnce sync.Once
)

type packageRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=1000"`
	Credits     int64  `json:"credits" validate:"gt=0,lte=1000"`
	ValidDays   int64  `json:"valid_days" validate:"gt=0"`
	PriceCents  int64  `json:"price_cents" validate:"gte=0"`
	LocationID  *int64 `json:"location_id,omitempty" validate:"omitempty,gt=0"`
	Status      string `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
}

type priceOverrideRequest struct {
	LocationID *int64 `json:"location_id,omitempty" validate:"omitempty,gt=0"`
	UserID     *int64 `json:"user_id,omitempty" validate:"omitempty,gt=0"`
	PriceCents int64  `json:"price_cents" validate:"gte=0"`
}

// memberPackage is a package as offered to one member at one location.
type memberPackage struct {
	dbq.Package
	EffectivePriceCents int64  `json:"effectivePriceCents"`
	EffectivePrice      string `json:"effectivePrice"`
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

// GET /api/v1/packages?location_id=
func HandleMemberPackagesList(w http.ResponseWriter, r *http.Request) {
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

	locationID, err := apiutil.OptionalInt64Query(r, "location_id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if locationID == 0 && user.HomeLocationID != nil {
		locationID = *user.HomeLocationID
	}
	if locationID == 0 {
		apiutil.WriteError(w, http.StatusBadRequest, "location_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), packageQueryTimeout)
	defer cancel()

	location, err := q.GetLocation(ctx, locationID)
	if err != nil || location.Status != dbq.StatusActive {
		if err == nil || errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, http.StatusNotFound, "Location not found")
			return
		}
		logger.Error().Err(err).Int64("location_id", locationID).Msg("Failed to load location")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load packages")
		return
	}

	pkgs, err := q.ListPackagesForLocation(ctx, locationID)
	if err != nil {
		logger.Error().Err(err).Int64("location_id", locationID).Msg("Failed to list packages")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load packages")
		return
	}

	offered := make([]memberPackage, 0, len(pkgs))
	for _, pkg := range pkgs {
		price, err := models.EffectivePrice(ctx, q, pkg, locationID, user.ID)
		if err != nil {
			logger.Error().Err(err).Int64("package_id", pkg.ID).Msg("Failed to resolve package price")
			apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load packages")
			return
		}
		offered = append(offered, memberPackage{
			Package:             pkg,
			EffectivePriceCents: price,
			EffectivePrice:      apiutil.FormatPriceCents(price),
		})
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{
		"locationId": locationID,
		"packages":   offered,
	}); err != nil {
		logger.Error().Err(err).Msg("Failed to write packages response")
	}
}

// GET /api/v1/admin/packages
func HandlePackagesList(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), packageQueryTimeout)
	defer cancel()

	pkgs, err := q.ListPackages(ctx, true)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list packages")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load packages")
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{"packages": pkgs}); err != nil {
		logger.Error().Err(err).Msg("Failed to write packages response")
	}
}

// POST /api/v1/admin/packages
func HandlePackageCreate(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), packageQueryTimeout)
	defer cancel()

	req, err := decodePackageRequest(ctx, r, q)
	if err != nil {
		apiutil.WriteHandlerError(w, r, err, "Failed to create package")
		return
	}

	created, err := q.CreatePackage(ctx, dbq.CreatePackageParams{
		Name:        req.Name,
		Description: req.Description,
		Credits:     req.Credits,
		ValidDays:   req.ValidDays,
		PriceCents:  req.PriceCents,
		LocationID:  req.LocationID,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create package")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to create package")
		return
	}

	logger.Info().Int64("package_id", created.ID).Msg("Package created")
	if err := apiutil.WriteJSON(w, http.StatusCreated, created); err != nil {
		logger.Error().Err(err).Int64("package_id", created.ID).Msg("Failed to write package response")
	}
}

// PUT /api/v1/admin/packages/{id}
func HandlePackageUpdate(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), packageQueryTimeout)
	defer cancel()

	req, err := decodePackageRequest(ctx, r, q)
	if err != nil {
		apiutil.WriteHandlerError(w, r, err, "Failed to update package")
		return
	}
	status := req.Status
	if status == "" {
		status = dbq.StatusActive
	}

	updated, err := q.UpdatePackage(ctx, dbq.UpdatePackageParams{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Credits:     req.Credits,
		ValidDays:   req.ValidDays,
		PriceCents:  req.PriceCents,
		LocationID:  req.LocationID,
		Status:      status,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, http.StatusNotFound, "Package not found")
			return
		}
		logger.Error().Err(err).Int64("package_id", id).Msg("Failed to update package")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to update package")
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, updated); err != nil {
		logger.Error().Err(err).Int64("package_id", id).Msg("Failed to write package response")
	}
}

// DELETE /api/v1/admin/packages/{id}
func HandlePackageDeactivate(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), packageQueryTimeout)
	defer cancel()

	pkg, err := q.SetPackageStatus(ctx, id, dbq.StatusInactive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, http.StatusNotFound, "Package not found")
			return
		}
		logger.Error().Err(err).Int64("package_id", id).Msg("Failed to deactivate package")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to deactivate package")
		return
	}

	logger.Info().Int64("package_id", id).Msg("Package deactivated")
	if err := apiutil.WriteJSON(w, http.StatusOK, pkg); err != nil {
		logger.Error().Err(err).Int64("package_id", id).Msg("Failed to write package response")
	}
}

// GET /api/v1/admin/packages/{id}/prices
func HandlePackagePricesList(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), packageQueryTimeout)
	defer cancel()

	pkg, err := q.GetPackage(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, http.StatusNotFound, "Package not found")
			return
		}
		logger.Error().Err(err).Int64("package_id", id).Msg("Failed to load package")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load package prices")
		return
	}

	prices, err := q.ListPackagePrices(ctx, id)
	if err != nil {
		logger.Error().Err(err).Int64("package_id", id).Msg("Failed to list package prices")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load package prices")
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{
		"package": pkg,
		"prices":  prices,
	}); err != nil {
		logger.Error().Err(err).Int64("package_id", id).Msg("Failed to write package prices response")
	}
}

// PUT /api/v1/admin/packages/{id}/prices
func HandlePackagePriceUpsert(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	database := loadDB()
	if q == nil || database == nil {
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

	var req priceOverrideRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if (req.LocationID == nil) == (req.UserID == nil) {
		apiutil.WriteError(w, http.StatusBadRequest, "exactly one of location_id or user_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), packageQueryTimeout)
	defer cancel()

	var price dbq.PackagePrice
	err = database.RunInTx(ctx, func(txdb *appdb.DB) error {
		qtx := txdb.Queries

		if _, err := qtx.GetPackage(ctx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apiutil.HandlerError{Status: http.StatusNotFound, Message: "Package not found", Err: err}
			}
			return apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to load package", Err: err}
		}
		if req.LocationID != nil {
			if _, err := qtx.GetLocation(ctx, *req.LocationID); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return apiutil.HandlerError{Status: http.StatusBadRequest, Message: "location_id does not exist", Err: err}
				}
				return apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to load location", Err: err}
			}
		}
		if req.UserID != nil {
			if _, err := qtx.GetUserByID(ctx, *req.UserID); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return apiutil.HandlerError{Status: http.StatusBadRequest, Message: "user_id does not exist", Err: err}
				}
				return apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to load member", Err: err}
			}
		}

		var err error
		price, err = qtx.UpsertPackagePrice(ctx, dbq.UpsertPackagePriceParams{
			PackageID:  id,
			LocationID: req.LocationID,
			UserID:     req.UserID,
			PriceCents: req.PriceCents,
		})
		if err != nil {
			return apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to save price override", Err: err}
		}
		return nil
	})
	if err != nil {
		apiutil.WriteHandlerError(w, r, err, "Failed to save price override")
		return
	}

	logger.Info().Int64("package_id", id).Int64("package_price_id", price.ID).Msg("Package price override saved")
	if err := apiutil.WriteJSON(w, http.StatusOK, price); err != nil {
		logger.Error().Err(err).Int64("package_id", id).Msg("Failed to write package price response")
	}
}

// DELETE /api/v1/admin/packages/{id}/prices/{priceID}
func HandlePackagePriceDelete(w http.ResponseWriter, r *http.Request) {
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
	priceID, err := apiutil.PathID(r, "priceID")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), packageQueryTimeout)
	defer cancel()

	deleted, err := q.DeletePackagePrice(ctx, priceID, id)
	if err != nil {
		logger.Error().Err(err).Int64("package_id", id).Int64("package_price_id", priceID).Msg("Failed to delete price override")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to delete price override")
		return
	}
	if deleted == 0 {
		apiutil.WriteError(w, http.StatusNotFound, "Price override not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func decodePackageRequest(ctx context.Context, r *http.Request, q *dbq.Queries) (packageRequest, error) {
	var req packageRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		return req, apiutil.HandlerError{Status: http.StatusBadRequest, Message: err.Error(), Err: err}
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if req.Name == "" {
		return req, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "name is required"}
	}
	if req.ValidDays > maxValidDays {
		return req, apiutil.HandlerError{Status: http.StatusBadRequest, Message: fmt.Sprintf("valid_days must be %d or fewer", maxValidDays)}
	}
	if req.LocationID != nil {
		if _, err := q.GetLocation(ctx, *req.LocationID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return req, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "location_id does not exist", Err: err}
			}
			return req, apiutil.HandlerError{Status: http.StatusInternalServerError, Message: "Failed to load location", Err: err}
		}
	}
	return req, nil
}
