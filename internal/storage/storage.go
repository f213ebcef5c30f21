// Package storage writes uploaded blobs to Google Cloud Storage or the local disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/alexdfirestone/national-parks/internal/config"
)

// Object describes a stored blob.
type Object struct {
	Path        string `json:"path"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// Store persists blobs under a slash-separated object path.
type Store interface {
	Put(ctx context.Context, objectPath string, r io.Reader, contentType string) (Object, error)
	Close() error
}

// ErrInvalidPath is returned for object paths that are empty or escape the store root.
var ErrInvalidPath = errors.New("invalid object path")

// New builds the store selected by BLOB_DRIVER.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.BlobDriver {
	case config.BlobDriverGCS:
		return NewGCSStore(ctx, GCSOptions{
			Bucket:          cfg.BlobBucket,
			CredentialsFile: cfg.BlobCredentialsFile,
			PublicBaseURL:   cfg.BlobPublicBaseURL,
		})
	case config.BlobDriverLocal, "":
		return NewLocalStore(cfg.BlobLocalDir, cfg.BlobPublicBaseURL)
	default:
		return nil, fmt.Errorf("unsupported blob driver %q", cfg.BlobDriver)
	}
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeName reduces a client-supplied filename to a safe single path segment.
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeNameChars.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-.")
	if name == "" {
		return "file"
	}
	if len(name) > 128 {
		name = name[len(name)-128:]
	}
	return name
}

func cleanObjectPath(objectPath string) (string, error) {
	cleaned := path.Clean("/" + strings.TrimSpace(objectPath))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}

func joinURL(base, objectPath string) string {
	return strings.TrimRight(base, "/") + "/" + objectPath
}
