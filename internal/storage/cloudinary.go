// internal/storage/cloudinary.go
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

type CloudinaryStore struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryStore(cloudName, apiKey, apiSecret, folder string) (*CloudinaryStore, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("initialize cloudinary: %w", err)
	}
	return &CloudinaryStore{cld: cld, folder: folder}, nil
}

// Save uploads the proof as an authenticated asset under the configured folder.
func (s *CloudinaryStore) Save(ctx context.Context, name string, contentType string, r io.Reader) (Object, error) {
	result, err := s.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		Folder:         s.folder,
		PublicID:       name,
		ResourceType:   "auto",
		Type:           api.Authenticated,
		UniqueFilename: api.Bool(false),
		Overwrite:      api.Bool(true),
	})
	if err != nil {
		return Object{}, fmt.Errorf("upload proof: %w", err)
	}
	if result.Error.Message != "" {
		return Object{}, fmt.Errorf("upload proof: %s", result.Error.Message)
	}
	if result.PublicID == "" {
		return Object{}, fmt.Errorf("upload proof: no public id returned")
	}
	return Object{ID: result.PublicID, URL: result.SecureURL}, nil
}

func (s *CloudinaryStore) Delete(ctx context.Context, id string) error {
	if _, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID: id,
		Type:     string(api.Authenticated),
	}); err != nil {
		return fmt.Errorf("delete proof: %w", err)
	}
	return nil
}
