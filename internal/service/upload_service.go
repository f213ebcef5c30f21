package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/alexdfirestone/national-parks/internal/middleware"
	"github.com/alexdfirestone/national-parks/internal/models"
	"github.com/alexdfirestone/national-parks/internal/storage"
)

// UploadInput is a single file from the upload form.
type UploadInput struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadService stores standalone image uploads.
type UploadService struct {
	blobs    storage.Store
	maxBytes int64
	now      func() time.Time
	logger   *slog.Logger
}

const defaultMaxImageBytes = 5 << 20

func imageTooLarge(maxBytes int64) error {
	return models.NewValidationError(fmt.Sprintf("File size must be less than %dMB", maxBytes>>20))
}

// NewUploadService returns an UploadService that rejects files over maxBytes.
func NewUploadService(blobs storage.Store, maxBytes int64) *UploadService {
	return &UploadService{blobs: blobs, maxBytes: maxBytes, now: time.Now, logger: middleware.Logger}
}

// Upload validates the file and writes it to uploads/<unix ms>-<name>.
func (s *UploadService) Upload(ctx context.Context, in UploadInput) (storage.Object, error) {
	if in.Body == nil || in.Filename == "" {
		return storage.Object{}, models.NewValidationError("No file provided")
	}
	if !strings.HasPrefix(in.ContentType, "image/") {
		return storage.Object{}, models.NewValidationError("File must be an image")
	}
	if in.Size > s.maxBytes {
		return storage.Object{}, imageTooLarge(s.maxBytes)
	}

	objectPath := fmt.Sprintf("uploads/%d-%s", s.now().UnixMilli(), storage.SanitizeName(in.Filename))
	obj, err := s.blobs.Put(ctx, objectPath, io.LimitReader(in.Body, s.maxBytes+1), in.ContentType)
	if err != nil {
		s.logger.ErrorContext(ctx, "upload failed", slog.String("path", objectPath), slog.Any("error", err))
		return storage.Object{}, fmt.Errorf("store %s: %w", objectPath, err)
	}
	if obj.Size > s.maxBytes {
		return storage.Object{}, imageTooLarge(s.maxBytes)
	}
	return obj, nil
}
