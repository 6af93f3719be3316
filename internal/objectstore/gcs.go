package objectstore

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore is the production Store realization backed by Google Cloud
// Storage.
type GCSStore struct {
	client   *storage.Client
	uploader *Uploader
}

// NewGCSStore wraps client, using DefaultChunkSize for uploads.
func NewGCSStore(client *storage.Client) *GCSStore {
	s := &GCSStore{client: client}
	s.uploader = NewUploader(s.writer, DefaultChunkSize)
	return s
}

func (s *GCSStore) writer(ctx context.Context, bucket, object, contentType string) (io.WriteCloser, error) {
	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	w.ChunkSize = DefaultChunkSize
	return w, nil
}

// Upload streams r into bucket/object, 5 MiB at a time.
func (s *GCSStore) Upload(ctx context.Context, bucket, object string, r io.Reader, contentType string, totalBytes int64, progress chan<- Progress) (UploadResult, error) {
	return s.uploader.Upload(ctx, bucket, object, r, contentType, totalBytes, progress)
}

// Download opens a reader for bucket/object.
func (s *GCSStore) Download(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("objectstore.Download: %w", err)
	}
	return r, nil
}

// Delete removes bucket/object.
func (s *GCSStore) Delete(ctx context.Context, bucket, object string) error {
	if err := s.client.Bucket(bucket).Object(object).Delete(ctx); err != nil {
		return fmt.Errorf("objectstore.Delete: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

var _ Store = (*GCSStore)(nil)
