package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name    string
		head    []byte
		want    string
		wantErr bool
	}{
		{"png", []byte("\x89PNG\r\n\x1a\n0000"), "image/png", false},
		{"pdf", []byte("%PDF-1.7\n"), "application/pdf", false},
		{"jpeg", []byte("\xff\xd8\xff\xe0"), "image/jpeg", false},
		{"text", []byte("hello world"), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := DetectContentType(tt.head)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedType) {
					t.Fatalf("expected unsupported type, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("got %q, %v", got, err)
			}
		})
	}
}

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://localhost:8080/api/v1/admin/proofs/")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	obj, err := store.Save(ctx, "purchase-ABC", "application/pdf", strings.NewReader("%PDF-1.7 body"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if obj.ID != "purchase-ABC.pdf" || obj.URL != "http://localhost:8080/api/v1/admin/proofs/purchase-ABC.pdf" {
		t.Fatalf("object: %+v", obj)
	}

	f, err := store.Open(obj.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(f)
	f.Close()
	if !bytes.Equal(data, []byte("%PDF-1.7 body")) {
		t.Fatalf("content: %q", data)
	}

	if err := store.Delete(ctx, obj.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Open(obj.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Delete(ctx, obj.ID); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	obj, err := store.Save(context.Background(), "../../etc/evil", "image/png", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if obj.ID != "evil.png" {
		t.Fatalf("id: %q", obj.ID)
	}
}
