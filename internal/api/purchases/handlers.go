// internal/api/purchases/handlers.go
package purchases

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/Fitclub/internal/api/apiutil"
	"github.com/codr1/Fitclub/internal/api/authz"
	"github.com/codr1/Fitclub/internal/config"
	appdb "github.com/codr1/Fitclub/internal/db"
	dbq "github.com/codr1/Fitclub/internal/db/queries"
	"github.com/codr1/Fitclub/internal/email"
	"github.com/codr1/Fitclub/internal/models"
	"github.com/codr1/Fitclub/internal/storage"
)

const (
	purchaseQueryTimeout = 5 * time.Second
	proofUploadTimeout   = 30 * time.Second
	proofFormField       = "proof"
	sniffBytes           = 512
	// Multipart framing on top of the file itself.
	multipartOverhead = 64 << 10
)

var (
	queries     *dbq.Queries
	store       *appdb.DB
	appConfig   *config.Config
	proofs      storage.ProofStore
	emailClient email.EmailSender
	queriesOnce sync.Once
)

type createPurchaseRequest struct {
	PackageID  int64  `json:"package_id" validate:"required,gt=0"`
	LocationID *int64 `json:"location_id,omitempty" validate:"omitempty,gt=0"`
}

type reviewRequest struct {
	Note string `json:"note" validate:"max=500"`
}

// proofOpener is implemented by stores that serve proofs themselves.
type proofOpener interface {
	Open(id string) (*os.File, error)
}

// InitHandlers must be called during server startup before handling requests.
// A nil sender disables purchase emails.
func InitHandlers(database *appdb.DB, cfg *config.Config, proofStore storage.ProofStore, sender email.EmailSender) {
	if database == nil {
		return
	}
	queriesOnce.Do(func() {
		queries = database.Queries
		store = database
		appConfig = cfg
		proofs = proofStore
		emailClient = sender
	})
}

func loadQueries() *dbq.Queries {
	return queries
}

func loadDB() *appdb.DB {
	return store
}

func clubName() string {
	if appConfig == nil {
		return ""
	}
	return appConfig.App.Name
}

func maxProofBytes() int64 {
	if appConfig == nil || appConfig.Storage.MaxProofBytes <= 0 {
		return 5 << 20
	}
	return appConfig.Storage.MaxProofBytes
}

// POST /api/v1/purchases
func HandlePurchaseCreate(w http.ResponseWriter, r *http.Request) {
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

	var req createPurchaseRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var locationID int64
	switch {
	case req.LocationID != nil:
		locationID = *req.LocationID
	case user.HomeLocationID != nil:
		locationID = *user.HomeLocationID
	default:
		apiutil.WriteError(w, http.StatusBadRequest, "location_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), purchaseQueryTimeout)
	defer cancel()

	location, err := q.GetLocation(ctx, locationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, http.StatusNotFound, "Location not found")
			return
		}
		logger.Error().Err(err).Int64("location_id", locationID).Msg("Failed to load location")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to create purchase")
		return
	}
	if location.Status != dbq.StatusActive {
		apiutil.WriteError(w, http.StatusNotFound, "Location not found")
		return
	}

	purchase, err := models.CreatePurchase(ctx, q, models.CreatePurchaseParams{
		UserID:     user.ID,
		PackageID:  req.PackageID,
		LocationID: locationID,
	})
	if err != nil {
		apiutil.WriteHandlerError(w, r, apiutil.DomainError(err, "Failed to create purchase"), "Failed to create purchase")
		return
	}

	logger.Info().
		Int64("purchase_id", purchase.ID).
		Int64("user_id", user.ID).
		Int64("package_id", purchase.PackageID).
		Msg("Purchase created")
	if err := apiutil.WriteJSON(w, http.StatusCreated, purchase); err != nil {
		logger.Error().Err(err).Int64("purchase_id", purchase.ID).Msg("Failed to write purchase response")
	}
}

// GET /api/v1/purchases
func HandleMyPurchasesList(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), purchaseQueryTimeout)
	defer cancel()

	purchases, err := q.ListPurchasesByUser(ctx, user.ID)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to list purchases")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load purchases")
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{"purchases": purchases}); err != nil {
		logger.Error().Err(err).Msg("Failed to write purchases response")
	}
}

// POST /api/v1/purchases/{id}/proof
func HandlePurchaseProofUpload(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	if q == nil || proofs == nil {
		logger.Error().Msg("Purchase handlers not initialized")
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

	limit := maxProofBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(limit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apiutil.WriteError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("proof must be %d bytes or smaller", limit))
			return
		}
		apiutil.WriteError(w, http.StatusBadRequest, "proof must be sent as multipart/form-data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(proofFormField)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, "proof file is required")
		return
	}
	defer file.Close()
	if header.Size > limit {
		apiutil.WriteError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("proof must be %d bytes or smaller", limit))
		return
	}

	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		logger.Error().Err(err).Int64("purchase_id", id).Msg("Failed to read proof upload")
		apiutil.WriteError(w, http.StatusBadRequest, "Failed to read proof file")
		return
	}
	head = head[:n]
	contentType, _, err := storage.DetectContentType(head)
	if err != nil {
		apiutil.WriteError(w, http.StatusUnsupportedMediaType, "proof must be a JPEG, PNG, WebP image or a PDF")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), proofUploadTimeout)
	defer cancel()

	purchase, err := q.GetPurchase(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, http.StatusNotFound, "Purchase not found")
			return
		}
		logger.Error().Err(err).Int64("purchase_id", id).Msg("Failed to load purchase")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to upload proof")
		return
	}
	if purchase.UserID != user.ID {
		apiutil.WriteError(w, http.StatusNotFound, "Purchase not found")
		return
	}
	if !isPending(purchase.Status) {
		apiutil.WriteError(w, http.StatusConflict, models.ErrPurchaseNotPending.Error())
		return
	}

	now := time.Now().UTC()
	name := fmt.Sprintf("%s-%d", strings.ToLower(purchase.Reference), now.Unix())
	object, err := proofs.Save(ctx, name, contentType, io.MultiReader(bytes.NewReader(head), file))
	if err != nil {
		logger.Error().Err(err).Int64("purchase_id", id).Msg("Failed to store proof")
		apiutil.WriteError(w, http.StatusBadGateway, "Failed to store proof")
		return
	}

	updated, err := q.AttachPurchaseProof(ctx, dbq.AttachPurchaseProofParams{
		ID:             id,
		UserID:         user.ID,
		ProofURL:       object.URL,
		ProofStorageID: object.ID,
		UploadedAt:     now,
	})
	if err != nil {
		deleteProof(r.Context(), object.ID, logger)
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, http.StatusConflict, models.ErrPurchaseNotPending.Error())
			return
		}
		logger.Error().Err(err).Int64("purchase_id", id).Msg("Failed to attach proof")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to upload proof")
		return
	}
	if purchase.ProofStorageID != "" && purchase.ProofStorageID != object.ID {
		deleteProof(r.Context(), purchase.ProofStorageID, logger)
	}

	logger.Info().
		Int64("purchase_id", id).
		Str("content_type", contentType).
		Int64("size", header.Size).
		Msg("Payment proof uploaded")
	if err := apiutil.WriteJSON(w, http.StatusOK, updated); err != nil {
		logger.Error().Err(err).Int64("purchase_id", id).Msg("Failed to write purchase response")
	}
}

// POST /api/v1/purchases/{id}/cancel
func HandlePurchaseCancel(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), purchaseQueryTimeout)
	defer cancel()

	cancelled, err := q.CancelPurchase(ctx, id, user.ID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.Error().Err(err).Int64("purchase_id", id).Msg("Failed to cancel purchase")
			apiutil.WriteError(w, http.StatusInternalServerError, "Failed to cancel purchase")
			return
		}
		existing, getErr := q.GetPurchase(ctx, id)
		if getErr != nil || existing.UserID != user.ID {
			apiutil.WriteError(w, http.StatusNotFound, "Purchase not found")
			return
		}
		apiutil.WriteError(w, http.StatusConflict, models.ErrPurchaseNotPending.Error())
		return
	}

	logger.Info().Int64("purchase_id", id).Msg("Purchase cancelled")
	if err := apiutil.WriteJSON(w, http.StatusOK, cancelled); err != nil {
		logger.Error().Err(err).Int64("purchase_id", id).Msg("Failed to write purchase response")
	}
}

// GET /api/v1/admin/purchases?status=
func HandleAdminPurchasesList(w http.ResponseWriter, r *http.Request) {
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

	status := strings.TrimSpace(r.URL.Query().Get("status"))
	switch status {
	case "", dbq.PurchaseStatusPendingPayment, dbq.PurchaseStatusPendingReview,
		dbq.PurchaseStatusApproved, dbq.PurchaseStatusRejected, dbq.PurchaseStatusCancelled:
	default:
		apiutil.WriteError(w, http.StatusBadRequest, "status is not a purchase status")
		return
	}
	limit, offset, err := apiutil.Pagination(r)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), purchaseQueryTimeout)
	defer cancel()

	purchases, err := q.ListPurchases(ctx, dbq.ListPurchasesParams{
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		logger.Error().Err(err).Str("status", status).Msg("Failed to list purchases")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load purchases")
		return
	}

	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{
		"purchases": purchases,
		"limit":     limit,
		"offset":    offset,
	}); err != nil {
		logger.Error().Err(err).Msg("Failed to write purchases response")
	}
}

// POST /api/v1/admin/purchases/{id}/approve
func HandlePurchaseApprove(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	database := loadDB()
	if q == nil || database == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	reviewer, ok := apiutil.RequireRole(w, r, authz.RoleAdmin)
	if !ok {
		return
	}
	id, req, ok := decodeReview(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), purchaseQueryTimeout)
	defer cancel()

	var result models.ApprovalResult
	err := database.RunInTx(ctx, func(txdb *appdb.DB) error {
		if _, err := txdb.Queries.GetPurchase(ctx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apiutil.HandlerError{Status: http.StatusNotFound, Message: "Purchase not found", Err: err}
			}
			return err
		}
		var err error
		result, err = models.ApprovePurchase(ctx, txdb.Queries, id, reviewer.ID, req.Note, time.Now().UTC())
		return err
	})
	if err != nil {
		apiutil.WriteHandlerError(w, r, apiutil.DomainError(err, "Failed to approve purchase"), "Failed to approve purchase")
		return
	}

	logger.Info().
		Int64("purchase_id", id).
		Int64("credit_lot_id", result.Lot.ID).
		Int64("reviewer_id", reviewer.ID).
		Msg("Purchase approved")

	notifyPurchaseReview(ctx, q, result.Purchase, result.Package, &result.Lot, logger)

	if err := apiutil.WriteJSON(w, http.StatusOK, map[string]any{
		"purchase":  result.Purchase,
		"creditLot": result.Lot,
	}); err != nil {
		logger.Error().Err(err).Int64("purchase_id", id).Msg("Failed to write purchase response")
	}
}

// POST /api/v1/admin/purchases/{id}/reject
func HandlePurchaseReject(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	q := loadQueries()
	if q == nil {
		logger.Error().Msg("Database queries not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	reviewer, ok := apiutil.RequireRole(w, r, authz.RoleAdmin)
	if !ok {
		return
	}
	id, req, ok := decodeReview(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Note) == "" {
		apiutil.WriteError(w, http.StatusBadRequest, "note is required when rejecting a purchase")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), purchaseQueryTimeout)
	defer cancel()

	if _, err := q.GetPurchase(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apiutil.WriteError(w, http.StatusNotFound, "Purchase not found")
			return
		}
		logger.Error().Err(err).Int64("purchase_id", id).Msg("Failed to load purchase")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to reject purchase")
		return
	}

	purchase, err := models.RejectPurchase(ctx, q, id, reviewer.ID, strings.TrimSpace(req.Note), time.Now().UTC())
	if err != nil {
		apiutil.WriteHandlerError(w, r, apiutil.DomainError(err, "Failed to reject purchase"), "Failed to reject purchase")
		return
	}

	logger.Info().Int64("purchase_id", id).Int64("reviewer_id", reviewer.ID).Msg("Purchase rejected")

	pkg, err := q.GetPackage(ctx, purchase.PackageID)
	if err != nil {
		logger.Warn().Err(err).Int64("package_id", purchase.PackageID).Msg("Failed to load package for rejection email")
	}
	notifyPurchaseReview(ctx, q, purchase, pkg, nil, logger)

	if err := apiutil.WriteJSON(w, http.StatusOK, purchase); err != nil {
		logger.Error().Err(err).Int64("purchase_id", id).Msg("Failed to write purchase response")
	}
}

// GET /api/v1/admin/proofs/{id}
func HandleProofDownload(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if _, ok := apiutil.RequireRole(w, r, authz.RoleAdmin); !ok {
		return
	}
	opener, ok := proofs.(proofOpener)
	if !ok {
		apiutil.WriteError(w, http.StatusNotFound, "Proof not found")
		return
	}

	id := filepath.Base(r.PathValue("id"))
	if id == "" || id == "." || strings.HasPrefix(id, ".") {
		apiutil.WriteError(w, http.StatusBadRequest, "invalid proof id")
		return
	}

	f, err := opener.Open(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			apiutil.WriteError(w, http.StatusNotFound, "Proof not found")
			return
		}
		logger.Error().Err(err).Str("proof_id", id).Msg("Failed to open proof")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load proof")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		logger.Error().Err(err).Str("proof_id", id).Msg("Failed to stat proof")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load proof")
		return
	}
	if ct := mime.TypeByExtension(filepath.Ext(id)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "private, no-store")
	http.ServeContent(w, r, id, info.ModTime(), f)
}

func decodeReview(w http.ResponseWriter, r *http.Request) (int64, reviewRequest, bool) {
	var req reviewRequest
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return 0, req, false
	}
	if r.ContentLength != 0 {
		if err := apiutil.DecodeAndValidate(r, &req); err != nil {
			apiutil.WriteError(w, http.StatusBadRequest, err.Error())
			return 0, req, false
		}
	}
	return id, req, true
}

func notifyPurchaseReview(ctx context.Context, q *dbq.Queries, purchase dbq.Purchase, pkg dbq.Package, lot *dbq.CreditLot, logger *zerolog.Logger) {
	if emailClient == nil {
		return
	}
	member, err := q.GetUserByID(ctx, purchase.UserID)
	if err != nil {
		logger.Warn().Err(err).Int64("user_id", purchase.UserID).Msg("Failed to load member for purchase email")
		return
	}

	details := email.PurchaseDetails{
		ClubName:    clubName(),
		PackageName: pkg.Name,
		Reference:   purchase.Reference,
		Credits:     purchase.Credits,
		Note:        purchase.ReviewNote,
	}
	var message email.Message
	if lot != nil {
		loc := time.UTC
		if purchase.LocationID != nil {
			if location, err := q.GetLocation(ctx, *purchase.LocationID); err == nil {
				loc = email.LoadTimezone(location.Timezone)
			}
		}
		details.ExpiresOn = lot.ExpiresAt.In(loc).Format("Mon, Jan 2 2006")
		message = email.BuildPurchaseApproved(details)
	} else {
		message = email.BuildPurchaseRejected(details)
	}
	email.SendAsync(context.WithoutCancel(ctx), emailClient, member.Email, message, logger)
}

func deleteProof(ctx context.Context, id string, logger *zerolog.Logger) {
	if err := proofs.Delete(context.WithoutCancel(ctx), id); err != nil {
		logger.Warn().Err(err).Str("proof_id", id).Msg("Failed to delete stored proof")
	}
}

func isPending(status string) bool {
	return status == dbq.PurchaseStatusPendingPayment || status == dbq.PurchaseStatusPendingReview
}
