// internal/qrcheckin/token.go

// Package qrcheckin issues and verifies the signed tokens encoded in booking QR codes.
package qrcheckin

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/skip2/go-qrcode"
)

const (
	issuer           = "fitclub-checkin"
	DefaultImageSize = 256
)

var (
	ErrInvalidToken = errors.New("invalid check-in token")
	ErrTokenExpired = errors.New("check-in token expired")
)

type Claims struct {
	BookingID int64  `json:"bid"`
	UserID    int64  `json:"uid"`
	Reference string `json:"ref"`
	jwt.RegisteredClaims
}

type Signer struct {
	secret []byte
}

func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("check-in signing secret is required")
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Issue signs a token for the booking that stops being valid when the class ends.
func (s *Signer) Issue(bookingID, userID int64, reference string, issuedAt, expiresAt time.Time) (string, error) {
	claims := Claims{
		BookingID: bookingID,
		UserID:    userID,
		Reference: reference,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(bookingID, 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign check-in token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and that the token has not expired at now.
func (s *Signer) Verify(tokenString string, now time.Time) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	token, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Issuer != issuer || claims.BookingID <= 0 {
		return Claims{}, ErrInvalidToken
	}
	if !claims.VerifyExpiresAt(now, true) {
		return Claims{}, ErrTokenExpired
	}
	return claims, nil
}

// PNG renders content as a QR code image of size x size pixels.
func PNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultImageSize
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return png, nil
}
