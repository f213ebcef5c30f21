package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSOptions configures a GCSStore.
type GCSOptions struct {
	Bucket          string
	CredentialsFile string
	// PublicBaseURL defaults to https://storage.googleapis.com/<bucket>.
	PublicBaseURL string
}

// GCSStore writes objects to a Cloud Storage bucket.
type GCSStore struct {
	client     *storage.Client
	bucket     string
	publicBase string
}

// NewGCSStore creates a client. Without a credentials file the default
// application credentials are used.
func NewGCSStore(ctx context.Context, opts GCSOptions) (*GCSStore, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}

	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		if _, err := os.Stat(opts.CredentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", opts.CredentialsFile)
		}
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	base := opts.PublicBaseURL
	if base == "" {
		base = "https://storage.googleapis.com/" + opts.Bucket
	}
	return &GCSStore{client: client, bucket: opts.Bucket, publicBase: base}, nil
}

// Put streams r to the object at objectPath.
func (s *GCSStore) Put(ctx context.Context, objectPath string, r io.Reader, contentType string) (Object, error) {
	name, err := cleanObjectPath(objectPath)
	if err != nil {
		return Object{}, err
	}

	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = "public, max-age=31536000, immutable"

	n, err := io.Copy(writer, r)
	if err != nil {
		_ = writer.Close()
		return Object{}, fmt.Errorf("failed to write GCS object %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return Object{}, fmt.Errorf("failed to close GCS writer for %s: %w", name, err)
	}

	return Object{
		Path:        name,
		URL:         joinURL(s.publicBase, name),
		Size:        n,
		ContentType: contentType,
	}, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
