// internal/api/dashboard/handlers.go
package dashboard

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
	"golang.org/x/sync/errgroup"

	"github.com/codr1/Fitclub/internal/api/apiutil"
	"github.com/codr1/Fitclub/internal/api/authz"
	appdb "github.com/codr1/Fitclub/internal/db"
	dbq "github.com/codr1/Fitclub/internal/db/queries"
)

const (
	dashboardQueryTimeout = 5 * time.Second
	dashboardDateLayout   = "2006-01-02"
	creditsSoldWindow     = 30 * 24 * time.Hour
	maxCustomRangeDays    = 366
	dateRangeToday        = "today"
	dateRangeLast7Days    = "last_7_days"
	dateRangeLast30Days   = "last_30_days"
	dateRangeThisMonth    = "this_month"
	dateRangeCustom       = "custom"
)

var (
	queries     *dbq.Queries
	queriesOnce sync.Once
)

// Metrics covers one location, or every location when LocationID is zero.
// Classes, bookings and check-ins are counted within [From, To).
type Metrics struct {
	LocationID     int64     `json:"locationId,omitempty"`
	Range          string    `json:"range"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	ActiveMembers  int64     `json:"activeMembers"`
	PendingReviews int64     `json:"pendingReviews"`
	Classes        int64     `json:"classes"`
	Bookings       int64     `json:"bookings"`
	Checkins       int64     `json:"checkins"`
	CreditsSold30d int64     `json:"creditsSold30d"`
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(database *appdb.DB) {
	if database == nil {
		log.Warn().Msg("InitHandlers called with nil database; dashboard handlers will be unavailable")
		return
	}
	queriesOnce.Do(func() {
		queries = database.Queries
	})
}

func loadQueries() *dbq.Queries {
	return queries
}

// GET /api/v1/admin/dashboard?location_id=&range=&start_date=&end_date=
func HandleDashboardMetrics(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), dashboardQueryTimeout)
	defer cancel()

	loc := time.UTC
	if locationID != 0 {
		location, err := q.GetLocation(ctx, locationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				apiutil.WriteError(w, http.StatusNotFound, "Location not found")
				return
			}
			logger.Error().Err(err).Int64("location_id", locationID).Msg("Failed to load location")
			apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load dashboard")
			return
		}
		if tz, err := time.LoadLocation(location.Timezone); err == nil {
			loc = tz
		} else {
			logger.Warn().Err(err).Str("timezone", location.Timezone).Msg("Invalid location timezone, using UTC")
		}
	}

	now := time.Now()
	from, to, preset, err := parseDateRange(r, now, loc)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	metrics, err := buildMetrics(ctx, q, locationID, from, to, now)
	if err != nil {
		logger.Error().Err(err).Int64("location_id", locationID).Msg("Failed to load dashboard metrics")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load dashboard")
		return
	}
	metrics.Range = preset

	if err := apiutil.WriteJSON(w, http.StatusOK, metrics); err != nil {
		logger.Error().Err(err).Msg("Failed to write dashboard response")
	}
}

func buildMetrics(ctx context.Context, q *dbq.Queries, locationID int64, from, to, now time.Time) (Metrics, error) {
	metrics := Metrics{LocationID: locationID, From: from.UTC(), To: to.UTC()}
	window := dbq.CountBetweenParams{LocationID: locationID, From: from, To: to}

	g, gctx := errgroup.WithContext(ctx)
	count := func(name string, dst *int64, fn func(context.Context) (int64, error)) {
		g.Go(func() error {
			value, err := fn(gctx)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*dst = value
			return nil
		})
	}

	count("active members", &metrics.ActiveMembers, q.CountActiveMembers)
	count("pending reviews", &metrics.PendingReviews, func(ctx context.Context) (int64, error) {
		return q.CountPurchasesByStatus(ctx, dbq.PurchaseStatusPendingReview)
	})
	count("classes", &metrics.Classes, func(ctx context.Context) (int64, error) {
		return q.CountScheduledClasses(ctx, window)
	})
	count("bookings", &metrics.Bookings, func(ctx context.Context) (int64, error) {
		return q.CountBookingsForClassesBetween(ctx, window)
	})
	count("checkins", &metrics.Checkins, func(ctx context.Context) (int64, error) {
		return q.CountCheckinsBetween(ctx, window)
	})
	count("credits sold", &metrics.CreditsSold30d, func(ctx context.Context) (int64, error) {
		return q.SumCreditsGrantedSince(ctx, now.Add(-creditsSoldWindow))
	})

	if err := g.Wait(); err != nil {
		return Metrics{}, err
	}
	return metrics, nil
}

// parseDateRange resolves the range preset, or start_date/end_date for a
// custom range, into [from, to) in loc. The default is today.
func parseDateRange(r *http.Request, now time.Time, loc *time.Location) (time.Time, time.Time, string, error) {
	query := r.URL.Query()
	preset := strings.TrimSpace(query.Get("range"))
	if preset == "" {
		preset = dateRangeToday
	}

	if preset != dateRangeCustom {
		from, to, ok := presetDateRange(preset, now, loc)
		if !ok {
			return time.Time{}, time.Time{}, "", fmt.Errorf("unknown range %q", preset)
		}
		return from, to, preset, nil
	}

	startDate, err := time.ParseInLocation(dashboardDateLayout, strings.TrimSpace(query.Get("start_date")), loc)
	if err != nil {
		return time.Time{}, time.Time{}, "", errors.New("start_date must be YYYY-MM-DD")
	}
	endDate, err := time.ParseInLocation(dashboardDateLayout, strings.TrimSpace(query.Get("end_date")), loc)
	if err != nil {
		return time.Time{}, time.Time{}, "", errors.New("end_date must be YYYY-MM-DD")
	}
	if endDate.Before(startDate) {
		return time.Time{}, time.Time{}, "", errors.New("end_date must not be before start_date")
	}
	if endDate.Sub(startDate) > maxCustomRangeDays*24*time.Hour {
		return time.Time{}, time.Time{}, "", fmt.Errorf("custom range may span at most %d days", maxCustomRangeDays)
	}
	return startDate, endDate.AddDate(0, 0, 1), preset, nil
}

func presetDateRange(preset string, now time.Time, loc *time.Location) (time.Time, time.Time, bool) {
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	tomorrow := today.AddDate(0, 0, 1)
	switch preset {
	case dateRangeToday:
		return today, tomorrow, true
	case dateRangeLast7Days:
		return today.AddDate(0, 0, -6), tomorrow, true
	case dateRangeLast30Days:
		return today.AddDate(0, 0, -29), tomorrow, true
	case dateRangeThisMonth:
		start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 1, 0), true
	default:
		return time.Time{}, time.Time{}, false
	}
}
