package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alexdfirestone/national-parks/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadService_Upload(t *testing.T) {
	t.Parallel()

	newSvc := func(blobs *testutil.BlobStore) *UploadService {
		svc := NewUploadService(blobs, 5<<20)
		svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
		return svc
	}

	t.Run("stores under uploads with a timestamp prefix", func(t *testing.T) {
		t.Parallel()
		blobs := testutil.NewBlobStore()
		img := testutil.TinyPNG(t, 2, 2)
		obj, err := newSvc(blobs).Upload(context.Background(), UploadInput{
			Filename: "bison.png", ContentType: "image/png", Size: int64(len(img)), Body: bytes.NewReader(img),
		})
		require.NoError(t, err)
		assert.Equal(t, "uploads/1700000000000-bison.png", obj.Path)
		assert.Equal(t, int64(len(img)), obj.Size)
		assert.Equal(t, "image/png", obj.ContentType)
		assert.Equal(t, img, blobs.Objects()["uploads/1700000000000-bison.png"])
	})

	tests := []struct {
		name    string
		in      UploadInput
		message string
	}{
		{"no file", UploadInput{}, "No file provided"},
		{"not an image", UploadInput{Filename: "a.pdf", ContentType: "application/pdf", Size: 1, Body: strings.NewReader("x")}, "File must be an image"},
		{"too large", UploadInput{Filename: "a.png", ContentType: "image/png", Size: 5<<20 + 1, Body: strings.NewReader("x")}, "File size must be less than 5MB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			blobs := testutil.NewBlobStore()
			_, err := newSvc(blobs).Upload(context.Background(), tt.in)
			assertValidationError(t, err)
			assert.Equal(t, tt.message, err.Error())
			assert.Empty(t, blobs.Objects())
		})
	}

	t.Run("storage failure is returned", func(t *testing.T) {
		t.Parallel()
		storeErr := errors.New("quota exceeded")
		_, err := newSvc(&testutil.BlobStore{Err: storeErr}).Upload(context.Background(), UploadInput{
			Filename: "a.png", ContentType: "image/png", Size: 1, Body: strings.NewReader("x"),
		})
		assert.ErrorIs(t, err, storeErr)
	})
}
