package objectstore

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// WriterFactory opens a new writer for an object. The GCS realization
// returns a *storage.Writer; tests can return anything that implements
// io.WriteCloser.
type WriterFactory func(ctx context.Context, bucket, object, contentType string) (io.WriteCloser, error)

// Uploader streams a reader into an object writer in fixed-size chunks,
// accumulating a running MD5 (for GCS's native integrity check and the
// pipeline's dedupe key) and SHA-256 (for audit-grade content checksums)
// without buffering the whole payload in memory. A write error aborts the
// upload without calling Close, so the object never becomes visible at
// the destination.
type Uploader struct {
	newWriter WriterFactory
	chunkSize int
}

// NewUploader builds an Uploader. chunkSize<=0 uses DefaultChunkSize.
func NewUploader(newWriter WriterFactory, chunkSize int) *Uploader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Uploader{newWriter: newWriter, chunkSize: chunkSize}
}

// Upload streams r into bucket/object. totalBytes may be -1 if unknown;
// it is only used to populate Progress.TotalBytes. progress may be nil.
func (u *Uploader) Upload(ctx context.Context, bucket, object string, r io.Reader, contentType string, totalBytes int64, progress chan<- Progress) (UploadResult, error) {
	w, err := u.newWriter(ctx, bucket, object, contentType)
	if err != nil {
		return UploadResult{}, fmt.Errorf("objectstore.Upload: open writer: %w", err)
	}

	md5h := md5.New()
	sha256h := sha256.New()
	buf := make([]byte, u.chunkSize)
	var written int64

	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, werr := w.Write(chunk); werr != nil {
				return UploadResult{}, fmt.Errorf("objectstore.Upload: write chunk: %w", werr)
			}
			md5h.Write(chunk)
			sha256h.Write(chunk)
			written += int64(n)

			if progress != nil {
				select {
				case progress <- Progress{BytesWritten: written, TotalBytes: totalBytes}:
				case <-ctx.Done():
					return UploadResult{}, ctx.Err()
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return UploadResult{}, fmt.Errorf("objectstore.Upload: read source: %w", readErr)
		}
	}

	if err := w.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("objectstore.Upload: close writer: %w", err)
	}

	return UploadResult{
		StorageURI:  fmt.Sprintf("gs://%s/%s", bucket, object),
		MD5Checksum: hex.EncodeToString(md5h.Sum(nil)),
		SHA256Sum:   hex.EncodeToString(sha256h.Sum(nil)),
		SizeBytes:   written,
	}, nil
}
