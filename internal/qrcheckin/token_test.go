package qrcheckin

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	signer, err := NewSigner("test-secret")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	now := time.Date(2026, time.May, 4, 9, 0, 0, 0, time.UTC)
	token, err := signer.Issue(42, 7, "ABCDEFGH23", now, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := signer.Verify(token, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.BookingID != 42 || claims.UserID != 7 || claims.Reference != "ABCDEFGH23" {
		t.Fatalf("claims: %+v", claims)
	}

	if _, err := signer.Verify(token, now.Add(3*time.Hour)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired token, got %v", err)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	now := time.Now()
	other, _ := NewSigner("other-secret")
	token, err := other.Issue(1, 1, "REF", now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	signer, _ := NewSigner("test-secret")
	if _, err := signer.Verify(token, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if _, err := signer.Verify(strings.Repeat("x", 20), now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for garbage, got %v", err)
	}
}

func TestNewSignerRequiresSecret(t *testing.T) {
	if _, err := NewSigner(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestPNG(t *testing.T) {
	png, err := PNG("hello", 0)
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatal("expected png header")
	}
}
