package apiutil

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/codr1/Fitclub/internal/models"
)

func TestDomainError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"wrapped sentinel", fmt.Errorf("book: %w", models.ErrClassFull), http.StatusConflict, models.ErrClassFull.Error()},
		{"not found", models.ErrBookingNotFound, http.StatusNotFound, models.ErrBookingNotFound.Error()},
		{"child still booked", models.ErrChildHasBookings, http.StatusConflict, models.ErrChildHasBookings.Error()},
		{"window", models.ErrOutsideCheckinWindow, http.StatusUnprocessableEntity, models.ErrOutsideCheckinWindow.Error()},
		{"handler error passes through", HandlerError{Status: http.StatusTeapot, Message: "short and stout"}, http.StatusTeapot, "short and stout"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "Failed to save"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			herr := DomainError(tt.err, "Failed to save")
			if herr.Status != tt.status || herr.Message != tt.message {
				t.Fatalf("got %d %q, want %d %q", herr.Status, herr.Message, tt.status, tt.message)
			}
		})
	}
}

func TestPagination(t *testing.T) {
	tests := []struct {
		query   string
		limit   int64
		offset  int64
		wantErr bool
	}{
		{"", DefaultPageSize, 0, false},
		{"?limit=10&offset=20", 10, 20, false},
		{"?limit=5000", MaxPageSize, 0, false},
		{"?limit=0", 0, 0, true},
		{"?offset=-1", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x"+tt.query, nil)
			limit, offset, err := Pagination(req)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("pagination: %v", err)
			}
			if limit != tt.limit || offset != tt.offset {
				t.Fatalf("got %d/%d, want %d/%d", limit, offset, tt.limit, tt.offset)
			}
		})
	}
}

func TestParseTime(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)

	got, err := ParseTime("2030-03-04T18:00", "starts_at", loc)
	if err != nil {
		t.Fatalf("parse local: %v", err)
	}
	if want := time.Date(2030, 3, 4, 23, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}

	got, err = ParseTime("2030-03-04T18:00:00Z", "starts_at", loc)
	if err != nil {
		t.Fatalf("parse rfc3339: %v", err)
	}
	if want := time.Date(2030, 3, 4, 18, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}

	if _, err := ParseTime("next tuesday", "starts_at", loc); err == nil {
		t.Fatal("expected invalid time rejected")
	}
}

func TestDecodeAndValidate(t *testing.T) {
	type body struct {
		Name  string `json:"name" validate:"required"`
		Count int64  `json:"count" validate:"gte=1"`
	}

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"name":"Reformer","count":2}`, false},
		{"unknown field", `{"name":"Reformer","count":2,"extra":true}`, true},
		{"trailing data", `{"name":"Reformer","count":2}{}`, true},
		{"failed validation", `{"name":"","count":0}`, true},
		{"empty", ``, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(tt.payload))
			var dst body
			err := DecodeAndValidate(req, &dst)
			if (err != nil) != tt.wantErr {
				t.Fatalf("wantErr %v, got %v", tt.wantErr, err)
			}
		})
	}
}
