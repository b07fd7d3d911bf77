// internal/email/templates.go
package email

import (
	"fmt"
	"strings"
	"time"
)

type Message struct {
	Subject string
	Body    string
}

// ClassDetails describes the class a notification is about.
type ClassDetails struct {
	ClubName     string
	LocationName string
	ClassName    string
	Attendee     string
	Date         string
	TimeRange    string
	Reference    string
}

type PurchaseDetails struct {
	ClubName    string
	PackageName string
	Reference   string
	Credits     int64
	ExpiresOn   string
	Note        string
}

// FormatClassTime renders a class slot in the location's timezone.
func FormatClassTime(start, end time.Time, loc *time.Location) (string, string) {
	if loc == nil {
		loc = time.UTC
	}
	start = start.In(loc)
	end = end.In(loc)
	date := start.Format("Monday, Jan 2, 2006")
	timeRange := fmt.Sprintf("%s - %s %s", start.Format("3:04 PM"), end.Format("3:04 PM"), start.Format("MST"))
	return date, timeRange
}

func orDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func classLines(d ClassDetails) []string {
	lines := []string{
		fmt.Sprintf("Class: %s", orDefault(d.ClassName, "Class")),
		fmt.Sprintf("Location: %s", orDefault(d.LocationName, "TBD")),
		fmt.Sprintf("Date: %s", orDefault(d.Date, "TBD")),
		fmt.Sprintf("Time: %s", orDefault(d.TimeRange, "TBD")),
	}
	if attendee := strings.TrimSpace(d.Attendee); attendee != "" {
		lines = append(lines, fmt.Sprintf("Attendee: %s", attendee))
	}
	if ref := strings.TrimSpace(d.Reference); ref != "" {
		lines = append(lines, fmt.Sprintf("Booking reference: %s", ref))
	}
	return lines
}

func subjectFor(prefix, club string) string {
	if club = strings.TrimSpace(club); club != "" {
		return fmt.Sprintf("%s - %s", prefix, club)
	}
	return prefix
}

func BuildBookingConfirmation(d ClassDetails, cutoffHours int64) Message {
	lines := append([]string{
		fmt.Sprintf("Your spot in %s is booked. One credit was used.", orDefault(d.ClassName, "class")),
		"",
	}, classLines(d)...)
	lines = append(lines, fmt.Sprintf("Cancel at least %d hours before the start to get your credit back.", cutoffHours))
	return Message{
		Subject: subjectFor("Booking Confirmed", d.ClubName),
		Body:    strings.Join(lines, "\n"),
	}
}

func BuildBookingCancellation(d ClassDetails, refunded bool) Message {
	lines := append([]string{"Your booking has been cancelled.", ""}, classLines(d)...)
	if refunded {
		lines = append(lines, "Your credit has been returned.")
	} else {
		lines = append(lines, "The cancellation was inside the cutoff window, so the credit was not returned.")
	}
	return Message{
		Subject: subjectFor("Booking Cancelled", d.ClubName),
		Body:    strings.Join(lines, "\n"),
	}
}

func BuildClassCancelled(d ClassDetails, reason string) Message {
	lines := append([]string{"Unfortunately this class has been cancelled.", ""}, classLines(d)...)
	if reason = strings.TrimSpace(reason); reason != "" {
		lines = append(lines, fmt.Sprintf("Reason: %s", reason))
	}
	lines = append(lines, "Your credit has been returned.")
	return Message{
		Subject: subjectFor("Class Cancelled", d.ClubName),
		Body:    strings.Join(lines, "\n"),
	}
}

func BuildClassReminder(d ClassDetails) Message {
	lines := append([]string{"Reminder: your class is coming up.", ""}, classLines(d)...)
	lines = append(lines, "Show the QR code from your booking at the front desk to check in.")
	return Message{
		Subject: subjectFor("Upcoming Class Reminder", d.ClubName),
		Body:    strings.Join(lines, "\n"),
	}
}

func BuildPurchaseApproved(d PurchaseDetails) Message {
	lines := []string{
		"Your payment has been confirmed.",
		"",
		fmt.Sprintf("Package: %s", orDefault(d.PackageName, "Package")),
		fmt.Sprintf("Reference: %s", d.Reference),
		fmt.Sprintf("Credits added: %d", d.Credits),
		fmt.Sprintf("Valid until: %s", orDefault(d.ExpiresOn, "TBD")),
	}
	return Message{
		Subject: subjectFor("Payment Approved", d.ClubName),
		Body:    strings.Join(lines, "\n"),
	}
}

func BuildPurchaseRejected(d PurchaseDetails) Message {
	lines := []string{
		"We could not confirm your payment.",
		"",
		fmt.Sprintf("Package: %s", orDefault(d.PackageName, "Package")),
		fmt.Sprintf("Reference: %s", d.Reference),
	}
	if note := strings.TrimSpace(d.Note); note != "" {
		lines = append(lines, fmt.Sprintf("Note from the club: %s", note))
	}
	lines = append(lines, "Reply to this email or contact the front desk if you think this is a mistake.")
	return Message{
		Subject: subjectFor("Payment Not Approved", d.ClubName),
		Body:    strings.Join(lines, "\n"),
	}
}
