// Package objectstore provides a streaming multipart uploader for document
// bytes, realized against Google Cloud Storage, with a progress channel
// suitable for driving a server-sent-events endpoint.
package objectstore

import (
	"context"
	"io"
)

// DefaultChunkSize is the size of each write passed to the underlying
// object writer, matching GCS's resumable-upload chunk granularity.
const DefaultChunkSize = 5 * 1024 * 1024 // 5 MiB

// Progress reports upload progress as bytes are streamed. TotalBytes is -1
// when the source size is not known ahead of time.
type Progress struct {
	BytesWritten int64
	TotalBytes   int64
}

// UploadResult is returned once an object has been fully written and
// closed.
type UploadResult struct {
	StorageURI   string
	MD5Checksum  string
	SHA256Sum    string
	SizeBytes    int64
}

// Store abstracts the object storage operations the ingestion pipeline
// needs: streaming upload, download for extraction, and deletion.
type Store interface {
	Upload(ctx context.Context, bucket, object string, r io.Reader, contentType string, totalBytes int64, progress chan<- Progress) (UploadResult, error)
	Download(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	Delete(ctx context.Context, bucket, object string) error
}
