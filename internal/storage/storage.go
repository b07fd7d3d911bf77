// internal/storage/storage.go

// Package storage keeps uploaded payment proofs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/codr1/Fitclub/internal/config"
)

var ErrUnsupportedType = errors.New("unsupported file type")

// Allowed proof content types, detected from the file bytes.
var allowedContentTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// Object identifies a stored file.
type Object struct {
	ID  string
	URL string
}

type ProofStore interface {
	Save(ctx context.Context, name string, contentType string, r io.Reader) (Object, error)
	Delete(ctx context.Context, id string) error
}

// DetectContentType sniffs the first bytes of a file and returns its content
// type and extension, or ErrUnsupportedType.
func DetectContentType(head []byte) (string, string, error) {
	contentType := http.DetectContentType(head)
	ext, ok := allowedContentTypes[contentType]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	return contentType, ext, nil
}

// NewFromConfig builds the configured proof store.
func NewFromConfig(cfg config.StorageConfig, baseURL string) (ProofStore, error) {
	switch cfg.Provider {
	case config.StorageProviderCloudinary:
		return NewCloudinaryStore(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.Folder)
	case config.StorageProviderLocal, "":
		return NewLocalStore(cfg.LocalDir, baseURL+"/api/v1/admin/proofs")
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Provider)
	}
}
