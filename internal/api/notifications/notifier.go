// internal/api/notifications/notifier.go

// Package notifications emails members about changes to their bookings.
package notifications

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	dbq "github.com/codr1/Fitclub/internal/db/queries"
	"github.com/codr1/Fitclub/internal/email"
)

const lookupTimeout = 5 * time.Second

// Notifier is safe to use when nil or when no sender is configured; it then
// sends nothing.
type Notifier struct {
	queries  *dbq.Queries
	sender   email.EmailSender
	clubName string
}

func New(q *dbq.Queries, sender email.EmailSender, clubName string) *Notifier {
	return &Notifier{queries: q, sender: sender, clubName: clubName}
}

func (n *Notifier) enabled() bool {
	return n != nil && n.sender != nil && n.queries != nil
}

// BookingConfirmed emails the member a confirmation with the cancellation cutoff.
func (n *Notifier) BookingConfirmed(ctx context.Context, bookingID int64, logger *zerolog.Logger) {
	n.sendForBooking(ctx, bookingID, logger, func(d email.ClassDetails, location dbq.Location) email.Message {
		return email.BuildBookingConfirmation(d, location.CancellationCutoffHours)
	})
}

// BookingCancelled tells the member their booking was cancelled and whether the credit came back.
func (n *Notifier) BookingCancelled(ctx context.Context, bookingID int64, refunded bool, logger *zerolog.Logger) {
	n.sendForBooking(ctx, bookingID, logger, func(d email.ClassDetails, _ dbq.Location) email.Message {
		return email.BuildBookingCancellation(d, refunded)
	})
}

// ClassCancelled emails every member whose booking was cancelled with the class.
func (n *Notifier) ClassCancelled(ctx context.Context, bookings []dbq.Booking, reason string, logger *zerolog.Logger) {
	for _, booking := range bookings {
		n.sendForBooking(ctx, booking.ID, logger, func(d email.ClassDetails, _ dbq.Location) email.Message {
			return email.BuildClassCancelled(d, reason)
		})
	}
}

func (n *Notifier) sendForBooking(ctx context.Context, bookingID int64, logger *zerolog.Logger, build func(email.ClassDetails, dbq.Location) email.Message) {
	if !n.enabled() {
		return
	}
	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
	defer cancel()

	booking, err := n.queries.GetBookingDetail(lookupCtx, bookingID)
	if err != nil {
		logger.Warn().Err(err).Int64("booking_id", bookingID).Msg("Failed to load booking for email")
		return
	}
	location, err := n.queries.GetLocation(lookupCtx, booking.LocationID)
	if err != nil {
		logger.Warn().Err(err).Int64("location_id", booking.LocationID).Msg("Failed to load location for email")
		return
	}
	details := email.BookingClassDetails(n.clubName, booking, email.LoadTimezone(location.Timezone))
	email.SendAsync(ctx, n.sender, booking.MemberEmail, build(details, location), logger)
}
