package email

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeEmailSender struct {
	mu       sync.Mutex
	sent     []string
	sendDone chan error
}

func newFakeEmailSender() *fakeEmailSender {
	return &fakeEmailSender{sendDone: make(chan error, 1)}
}

func (f *fakeEmailSender) Send(ctx context.Context, recipient, subject, body string) error {
	f.mu.Lock()
	f.sent = append(f.sent, recipient+"|"+subject)
	f.mu.Unlock()

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	select {
	case f.sendDone <- err:
	default:
	}
	return err
}

func TestSendAsyncOutlivesRequestContext(t *testing.T) {
	sender := newFakeEmailSender()
	ctx, cancel := context.WithCancel(context.Background())

	SendAsync(ctx, sender, "member@example.com", Message{Subject: "Subject", Body: "Body"}, nil)
	cancel()

	select {
	case err := <-sender.sendDone:
		if err != nil {
			t.Fatalf("expected send to complete after request cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected send to run")
	}
}

func TestSendAsyncSkipsWithoutRecipientOrClient(t *testing.T) {
	sender := newFakeEmailSender()
	SendAsync(context.Background(), sender, "  ", Message{Subject: "Subject", Body: "Body"}, nil)
	SendAsync(context.Background(), nil, "member@example.com", Message{Subject: "Subject", Body: "Body"}, nil)
	SendAsync(context.Background(), sender, "member@example.com", Message{}, nil)

	select {
	case <-sender.sendDone:
		t.Fatal("expected no send")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSendIsSynchronous(t *testing.T) {
	sender := newFakeEmailSender()
	if err := Send(context.Background(), sender, "member@example.com", Message{Subject: "S", Body: "B"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "member@example.com|S" {
		t.Fatalf("sent: %v", sender.sent)
	}
}

func TestTemplates(t *testing.T) {
	loc := time.FixedZone("EET", 2*60*60)
	start := time.Date(2026, time.March, 2, 16, 30, 0, 0, time.UTC)
	date, timeRange := FormatClassTime(start, start.Add(45*time.Minute), loc)
	if date != "Monday, Mar 2, 2026" || timeRange != "6:30 PM - 7:15 PM EET" {
		t.Fatalf("format: %q %q", date, timeRange)
	}

	details := ClassDetails{
		ClubName:     "Fitclub",
		LocationName: "Central",
		ClassName:    "Reformer",
		Attendee:     "Anna Smith",
		Date:         date,
		TimeRange:    timeRange,
		Reference:    "BK23456789",
	}

	confirmation := BuildBookingConfirmation(details, 12)
	if confirmation.Subject != "Booking Confirmed - Fitclub" {
		t.Fatalf("subject: %q", confirmation.Subject)
	}
	for _, want := range []string{"Class: Reformer", "Attendee: Anna Smith", "Booking reference: BK23456789", "12 hours"} {
		if !strings.Contains(confirmation.Body, want) {
			t.Fatalf("confirmation body missing %q:\n%s", want, confirmation.Body)
		}
	}

	late := BuildBookingCancellation(details, false)
	if !strings.Contains(late.Body, "not returned") {
		t.Fatalf("late cancellation body: %s", late.Body)
	}
	cancelled := BuildClassCancelled(ClassDetails{}, "Coach unwell")
	if cancelled.Subject != "Class Cancelled" || !strings.Contains(cancelled.Body, "Location: TBD") || !strings.Contains(cancelled.Body, "Reason: Coach unwell") {
		t.Fatalf("class cancelled: %+v", cancelled)
	}

	rejected := BuildPurchaseRejected(PurchaseDetails{PackageName: "10 Classes", Reference: "PR1", Note: "Amount mismatch"})
	if !strings.Contains(rejected.Body, "Note from the club: Amount mismatch") {
		t.Fatalf("rejected body: %s", rejected.Body)
	}
	approved := BuildPurchaseApproved(PurchaseDetails{PackageName: "10 Classes", Reference: "PR1", Credits: 10, ExpiresOn: "Apr 1, 2026"})
	if !strings.Contains(approved.Body, "Credits added: 10") {
		t.Fatalf("approved body: %s", approved.Body)
	}
}
