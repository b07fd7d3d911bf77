// internal/scheduler/jobs.go
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/Fitclub/internal/config"
	"github.com/codr1/Fitclub/internal/db"
	"github.com/codr1/Fitclub/internal/email"
	"github.com/codr1/Fitclub/internal/models"
	"github.com/codr1/Fitclub/internal/recurring"
)

const (
	reminderJobWindow = 15 * time.Minute
	jobTimeout        = 2 * time.Minute
)

// Jobs holds what the background jobs need.
type Jobs struct {
	DB       *db.DB
	Mailer   email.EmailSender
	ClubName string
	Config   config.SchedulerConfig
	// ExpiryBatch caps the lots expired per transaction. Zero means
	// models.DefaultExpiryBatch.
	ExpiryBatch int64
	// Now is overridden in tests.
	Now func() time.Time
}

func (j *Jobs) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now().UTC()
}

// Register adds the generation, reminder and credit expiry jobs to the
// singleton scheduler.
func (j *Jobs) Register() error {
	if j == nil || j.DB == nil {
		return fmt.Errorf("scheduler jobs require database")
	}
	jobs := []struct {
		name string
		cron string
		run  func(context.Context) error
	}{
		{name: "monthly_generation", cron: j.Config.GenerationCron, run: j.GenerateNextMonth},
		{name: "class_reminders", cron: j.Config.ReminderCron, run: func(ctx context.Context) error {
			_, err := j.SendClassReminders(ctx)
			return err
		}},
		{name: "credit_expiry", cron: j.Config.CreditExpiryCron, run: func(ctx context.Context) error {
			_, err := j.ExpireCredits(ctx)
			return err
		}},
	}

	for _, job := range jobs {
		jobLogger := log.With().Str("component", "scheduler_job").Str("job_name", job.name).Logger()
		run := job.run
		_, err := AddJob(job.name, job.cron, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			ctx = jobLogger.WithContext(ctx)
			if err := run(ctx); err != nil {
				jobLogger.Error().Err(err).Msg("Scheduler job failed")
			}
		}, gocron.WithSingletonMode(gocron.LimitModeReschedule))
		if err != nil {
			return fmt.Errorf("add %s job: %w", job.name, err)
		}
	}
	return nil
}

// GenerateNextMonth generates next month's classes for every active location.
// A failing location is logged and does not stop the others.
func (j *Jobs) GenerateNextMonth(ctx context.Context) error {
	logger := log.Ctx(ctx)
	locations, err := j.DB.Queries.ListLocations(ctx, false)
	if err != nil {
		return fmt.Errorf("list locations: %w", err)
	}

	now := j.now()
	for _, location := range locations {
		month := recurring.MonthOf(now, email.LoadTimezone(location.Timezone)).Next()
		var result models.GenerateResult
		err := j.DB.RunInTx(ctx, func(txdb *db.DB) error {
			var err error
			result, err = models.GenerateMonth(ctx, txdb.Queries, location.ID, month, now)
			return err
		})
		if err != nil {
			logger.Error().Err(err).Int64("location_id", location.ID).Str("month", month.String()).Msg("Failed to generate classes")
			continue
		}
		logger.Info().
			Int64("location_id", location.ID).
			Str("month", result.Month).
			Int64("created", result.Created).
			Int64("skipped", result.Skipped).
			Msg("Generated classes")
	}
	return nil
}

// SendClassReminders emails members whose classes start within the reminder
// window and returns how many reminders were sent.
func (j *Jobs) SendClassReminders(ctx context.Context) (int, error) {
	logger := log.Ctx(ctx)
	if j.Mailer == nil {
		logger.Debug().Msg("Reminder job skipped: email not configured")
		return 0, nil
	}

	windowStart := j.now().Add(time.Duration(j.Config.ReminderHoursBefore) * time.Hour)
	bookings, err := j.DB.Queries.ListBookingsStartingBetween(ctx, windowStart, windowStart.Add(reminderJobWindow))
	if err != nil {
		return 0, fmt.Errorf("list bookings: %w", err)
	}

	zones := map[int64]*time.Location{}
	sent := 0
	for _, booking := range bookings {
		loc, ok := zones[booking.LocationID]
		if !ok {
			loc = j.locationZone(ctx, booking.LocationID, logger)
			zones[booking.LocationID] = loc
		}
		message := email.BuildClassReminder(email.BookingClassDetails(j.ClubName, booking, loc))
		if err := email.Send(ctx, j.Mailer, booking.MemberEmail, message); err != nil {
			logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("Failed to send class reminder")
			continue
		}
		sent++
	}
	if sent > 0 {
		logger.Info().Int("sent", sent).Msg("Sent class reminders")
	}
	return sent, nil
}

func (j *Jobs) locationZone(ctx context.Context, locationID int64, logger *zerolog.Logger) *time.Location {
	location, err := j.DB.Queries.GetLocation(ctx, locationID)
	if err != nil {
		logger.Error().Err(err).Int64("location_id", locationID).Msg("Failed to load location for reminders")
		return time.UTC
	}
	return email.LoadTimezone(location.Timezone)
}

// ExpireCredits zeroes expired credit lots, one batch per transaction, until
// a batch comes back short.
func (j *Jobs) ExpireCredits(ctx context.Context) (models.ExpiryResult, error) {
	var result models.ExpiryResult
	now := j.now()
	for {
		var batch models.ExpiryResult
		err := j.DB.RunInTx(ctx, func(txdb *db.DB) error {
			var err error
			batch, err = models.ExpireCredits(ctx, txdb.Queries, now, j.ExpiryBatch)
			return err
		})
		result.Lots += batch.Lots
		result.Credits += batch.Credits
		if err != nil {
			return result, err
		}
		// A full batch where every lot was skipped would loop forever.
		if !batch.More || batch.Lots == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
	}
	if result.Lots > 0 {
		log.Ctx(ctx).Info().Int64("lots", result.Lots).Int64("credits", result.Credits).Msg("Expired credits")
	}
	return result, nil
}
