// internal/contact/contact.go

// Package contact normalises the ways members can be reached.
package contact

import (
	"errors"
	"net/mail"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used for numbers entered without a country code.
const DefaultRegion = "US"

var ErrInvalidPhone = errors.New("invalid phone number")

var ErrInvalidEmail = errors.New("invalid email address")

// NormalizeEmail lower-cases and validates an address.
func NormalizeEmail(raw string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", ErrInvalidEmail
	}
	return trimmed, nil
}

// IsPhoneNumber reports whether input looks like a phone number rather than an
// email or free text.
func IsPhoneNumber(input string) bool {
	if strings.Contains(input, "@") {
		return false
	}
	for _, r := range input {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
			return false
		}
	}
	_, err := NormalizePhone(input, DefaultRegion)
	return err == nil
}

// NormalizePhone parses input and returns it in E.164 form.
func NormalizePhone(input, region string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrInvalidPhone
	}
	if region == "" {
		region = DefaultRegion
	}
	num, err := phonenumbers.Parse(input, region)
	if err != nil {
		return "", ErrInvalidPhone
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return "", ErrInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
