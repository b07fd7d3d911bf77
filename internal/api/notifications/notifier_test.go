package notifications

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/codr1/Fitclub/internal/testutil"
)

type capturedEmail struct {
	recipient string
	subject   string
	body      string
}

type captureSender struct {
	sent chan capturedEmail
}

func (c *captureSender) Send(_ context.Context, recipient, subject, body string) error {
	c.sent <- capturedEmail{recipient: recipient, subject: subject, body: body}
	return nil
}

func TestNotifierNilIsNoop(t *testing.T) {
	var n *Notifier
	logger := zerolog.Nop()
	n.BookingConfirmed(context.Background(), 1, &logger)
	New(nil, nil, "Fitclub").BookingCancelled(context.Background(), 1, true, &logger)
}

func TestNotifierBookingConfirmed(t *testing.T) {
	database := testutil.NewTestDB(t)
	f := testutil.Seed(t, database)
	class := testutil.SeedClass(t, database, f, time.Now().Add(48*time.Hour), 10)
	booking := testutil.SeedBooking(t, database, class.ID, f.Member.ID, nil)

	sender := &captureSender{sent: make(chan capturedEmail, 1)}
	logger := zerolog.Nop()
	New(database.Queries, sender, "Fitclub").BookingConfirmed(context.Background(), booking.ID, &logger)

	select {
	case msg := <-sender.sent:
		if msg.recipient != f.Member.Email {
			t.Fatalf("expected email to member, got %q", msg.recipient)
		}
		if !strings.Contains(msg.body, booking.Reference) {
			t.Fatalf("expected booking reference in body, got %q", msg.body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for confirmation email")
	}
}
