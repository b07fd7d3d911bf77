// cmd/server/server.go
package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/Fitclub/internal/api"
	"github.com/codr1/Fitclub/internal/api/auth"
	"github.com/codr1/Fitclub/internal/api/authz"
	"github.com/codr1/Fitclub/internal/api/bookings"
	"github.com/codr1/Fitclub/internal/api/checkin"
	"github.com/codr1/Fitclub/internal/api/classes"
	"github.com/codr1/Fitclub/internal/api/classtypes"
	"github.com/codr1/Fitclub/internal/api/credits"
	"github.com/codr1/Fitclub/internal/api/dashboard"
	"github.com/codr1/Fitclub/internal/api/locations"
	"github.com/codr1/Fitclub/internal/api/members"
	"github.com/codr1/Fitclub/internal/api/notifications"
	"github.com/codr1/Fitclub/internal/api/packages"
	"github.com/codr1/Fitclub/internal/api/purchases"
	"github.com/codr1/Fitclub/internal/api/schedules"
	"github.com/codr1/Fitclub/internal/cognito"
	"github.com/codr1/Fitclub/internal/config"
	appdb "github.com/codr1/Fitclub/internal/db"
	"github.com/codr1/Fitclub/internal/email"
	"github.com/codr1/Fitclub/internal/qrcheckin"
	"github.com/codr1/Fitclub/internal/storage"
)

// deps are the shared services built once at startup.
type deps struct {
	db      *appdb.DB
	mailer  email.EmailSender
	proofs  storage.ProofStore
	cognito *cognito.Client
	signer  *qrcheckin.Signer
}

func buildDeps(cfg *config.Config, database *appdb.DB) (*deps, error) {
	d := &deps{db: database}

	if cfg.Email.Enabled {
		client, err := email.NewSESClient(cfg.Email)
		if err != nil {
			return nil, fmt.Errorf("init email: %w", err)
		}
		d.mailer = client
	} else {
		log.Warn().Msg("Email disabled; notifications will be skipped")
	}

	proofs, err := storage.NewFromConfig(cfg.Storage, cfg.App.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("init proof storage: %w", err)
	}
	d.proofs = proofs

	if cfg.Cognito.Enabled() {
		client, err := cognito.NewClient(cfg.Cognito.PoolID, cfg.Cognito.ClientID)
		if err != nil {
			return nil, fmt.Errorf("init cognito: %w", err)
		}
		d.cognito = client
	} else {
		log.Warn().Msg("Cognito not configured; passwordless login only available in development")
	}

	signer, err := qrcheckin.NewSigner(cfg.App.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("init check-in signer: %w", err)
	}
	d.signer = signer

	return d, nil
}

func initHandlers(cfg *config.Config, d *deps) {
	notifier := notifications.New(d.db.Queries, d.mailer, cfg.App.Name)

	auth.InitHandlers(d.db.Queries, cfg, d.cognito)
	locations.InitHandlers(d.db.Queries)
	classtypes.InitHandlers(d.db.Queries)
	packages.InitHandlers(d.db)
	purchases.InitHandlers(d.db, cfg, d.proofs, d.mailer)
	credits.InitHandlers(d.db)
	members.InitHandlers(d.db)
	schedules.InitHandlers(d.db, notifier)
	classes.InitHandlers(d.db, notifier)
	bookings.InitHandlers(d.db, notifier)
	checkin.InitHandlers(d.db, d.signer, cfg.Checkin.WindowBefore())
	dashboard.InitHandlers(d.db)
}

func newServer(cfg *config.Config) *http.Server {
	router := http.NewServeMux()

	// Setup middleware chain
	handler := api.ChainMiddleware(
		router,
		api.WithAuth,
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
		api.WithContentType,
	)

	// Register routes
	registerRoutes(router)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Auth routes
	mux.HandleFunc("POST /api/v1/auth/register", auth.HandleRegister)
	mux.HandleFunc("POST /api/v1/auth/login", auth.HandleLogin)
	mux.HandleFunc("POST /api/v1/auth/logout", auth.HandleLogout)
	mux.HandleFunc("GET /api/v1/auth/me", auth.HandleMe)
	mux.HandleFunc("POST /api/v1/auth/password", auth.HandleChangePassword)
	mux.HandleFunc("POST /api/v1/auth/otp/send", auth.HandleSendCode)
	mux.HandleFunc("POST /api/v1/auth/otp/verify", auth.HandleVerifyCode)

	// Member profile routes
	mux.HandleFunc("PUT /api/v1/me/profile", members.HandleProfileUpdate)
	mux.HandleFunc("GET /api/v1/me/children", members.HandleMyChildren)
	mux.HandleFunc("POST /api/v1/me/children", members.HandleChildCreate)
	mux.HandleFunc("PUT /api/v1/me/children/{id}", members.HandleChildUpdate)
	mux.HandleFunc("DELETE /api/v1/me/children/{id}", members.HandleChildDelete)

	// Catalog routes
	mux.HandleFunc("GET /api/v1/locations", locations.HandleLocationsList)
	mux.HandleFunc("GET /api/v1/locations/{id}", locations.HandleLocationGet)
	mux.HandleFunc("GET /api/v1/class-types", classtypes.HandleClassTypesList)
	mux.HandleFunc("GET /api/v1/packages", packages.HandleMemberPackagesList)

	// Purchase and credit routes
	mux.HandleFunc("POST /api/v1/purchases", purchases.HandlePurchaseCreate)
	mux.HandleFunc("GET /api/v1/purchases", purchases.HandleMyPurchasesList)
	mux.HandleFunc("POST /api/v1/purchases/{id}/proof", purchases.HandlePurchaseProofUpload)
	mux.HandleFunc("POST /api/v1/purchases/{id}/cancel", purchases.HandlePurchaseCancel)
	mux.HandleFunc("GET /api/v1/credits", credits.HandleMyCredits)
	mux.HandleFunc("GET /api/v1/credits/ledger", credits.HandleMyLedger)

	// Class and booking routes
	mux.HandleFunc("GET /api/v1/classes", classes.HandleClassesList)
	mux.HandleFunc("GET /api/v1/classes/{id}", classes.HandleClassGet)
	mux.HandleFunc("GET /api/v1/classes/{id}/roster", classes.HandleClassRoster)
	mux.HandleFunc("GET /api/v1/coach/classes", classes.HandleCoachClasses)
	mux.HandleFunc("POST /api/v1/bookings", bookings.HandleBookingCreate)
	mux.HandleFunc("GET /api/v1/bookings", bookings.HandleMyBookingsList)
	mux.HandleFunc("GET /api/v1/bookings/{id}", bookings.HandleBookingGet)
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", bookings.HandleBookingCancel)
	mux.HandleFunc("POST /api/v1/bookings/{id}/attendance", bookings.HandleAttendance)

	// Check-in routes
	mux.HandleFunc("GET /api/v1/bookings/{id}/qr-token", checkin.HandleBookingQRToken)
	mux.HandleFunc("GET /api/v1/bookings/{id}/qr", checkin.HandleBookingQR)
	mux.HandleFunc("POST /api/v1/checkin/scan", checkin.HandleCheckinScan)
	mux.HandleFunc("POST /api/v1/checkin/manual", checkin.HandleCheckinManual)

	// Admin routes
	admin := http.NewServeMux()
	registerAdminRoutes(admin)
	mux.Handle("/api/v1/admin/", api.WithRole(authz.RoleAdmin)(admin))
}

func registerAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/admin/dashboard", dashboard.HandleDashboardMetrics)

	mux.HandleFunc("POST /api/v1/admin/locations", locations.HandleLocationCreate)
	mux.HandleFunc("PUT /api/v1/admin/locations/{id}", locations.HandleLocationUpdate)
	mux.HandleFunc("DELETE /api/v1/admin/locations/{id}", locations.HandleLocationDeactivate)

	mux.HandleFunc("POST /api/v1/admin/class-types", classtypes.HandleClassTypeCreate)
	mux.HandleFunc("PUT /api/v1/admin/class-types/{id}", classtypes.HandleClassTypeUpdate)
	mux.HandleFunc("DELETE /api/v1/admin/class-types/{id}", classtypes.HandleClassTypeDeactivate)

	mux.HandleFunc("GET /api/v1/admin/packages", packages.HandlePackagesList)
	mux.HandleFunc("POST /api/v1/admin/packages", packages.HandlePackageCreate)
	mux.HandleFunc("PUT /api/v1/admin/packages/{id}", packages.HandlePackageUpdate)
	mux.HandleFunc("DELETE /api/v1/admin/packages/{id}", packages.HandlePackageDeactivate)
	mux.HandleFunc("GET /api/v1/admin/packages/{id}/prices", packages.HandlePackagePricesList)
	mux.HandleFunc("PUT /api/v1/admin/packages/{id}/prices", packages.HandlePackagePriceUpsert)
	mux.HandleFunc("DELETE /api/v1/admin/packages/{id}/prices/{priceID}", packages.HandlePackagePriceDelete)

	mux.HandleFunc("GET /api/v1/admin/purchases", purchases.HandleAdminPurchasesList)
	mux.HandleFunc("POST /api/v1/admin/purchases/{id}/approve", purchases.HandlePurchaseApprove)
	mux.HandleFunc("POST /api/v1/admin/purchases/{id}/reject", purchases.HandlePurchaseReject)
	mux.HandleFunc("GET /api/v1/admin/proofs/{id}", purchases.HandleProofDownload)

	mux.HandleFunc("GET /api/v1/admin/members", members.HandleMembersList)
	mux.HandleFunc("GET /api/v1/admin/members/{id}", members.HandleMemberGet)
	mux.HandleFunc("PUT /api/v1/admin/members/{id}", members.HandleMemberUpdate)
	mux.HandleFunc("GET /api/v1/admin/members/{id}/children", members.HandleMemberChildren)
	mux.HandleFunc("GET /api/v1/admin/members/{id}/credits", credits.HandleMemberCredits)
	mux.HandleFunc("GET /api/v1/admin/members/{id}/credits/ledger", credits.HandleMemberLedger)
	mux.HandleFunc("POST /api/v1/admin/members/{id}/credits/adjust", credits.HandleCreditAdjust)

	mux.HandleFunc("GET /api/v1/admin/schedules", schedules.HandleSchedulesList)
	mux.HandleFunc("POST /api/v1/admin/schedules", schedules.HandleScheduleCreate)
	mux.HandleFunc("PUT /api/v1/admin/schedules/{id}", schedules.HandleScheduleUpdate)
	mux.HandleFunc("DELETE /api/v1/admin/schedules/{id}", schedules.HandleScheduleDelete)
	mux.HandleFunc("POST /api/v1/admin/schedules/generate", schedules.HandleScheduleGenerate)
	mux.HandleFunc("POST /api/v1/admin/schedules/import", schedules.HandleScheduleImport)

	mux.HandleFunc("POST /api/v1/admin/classes", classes.HandleClassCreate)
	mux.HandleFunc("PUT /api/v1/admin/classes/{id}", classes.HandleClassUpdate)
	mux.HandleFunc("POST /api/v1/admin/classes/{id}/cancel", classes.HandleClassCancel)

	mux.HandleFunc("GET /api/v1/admin/bookings", bookings.HandleAdminBookingsList)
	mux.HandleFunc("POST /api/v1/admin/bookings", bookings.HandleAdminBookingCreate)
	mux.HandleFunc("POST /api/v1/admin/bookings/{id}/cancel", bookings.HandleAdminBookingCancel)
}
