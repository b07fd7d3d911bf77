// internal/refcode/refcode.go

// Package refcode issues the short references members quote for purchases and bookings.
package refcode

import gonanoid "github.com/matoous/go-nanoid/v2"

// Unambiguous upper-case alphabet; no 0/O or 1/I.
const alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const Length = 10

func New() (string, error) {
	return gonanoid.Generate(alphabet, Length)
}
