package model

import (
	"encoding/json"
	"time"
)

// DocumentStatus is the lifecycle state of an ingested document.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
	StatusDeleted    DocumentStatus = "deleted"
)

// Document represents an uploaded file scoped to a tenant.
type Document struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenantId"`
	UploadedBy    string          `json:"uploadedBy"`
	Filename      string          `json:"filename"`
	MimeType      string          `json:"mimeType"`
	SizeBytes     int64           `json:"sizeBytes"`
	StorageURI    string          `json:"storageUri"`
	MD5Checksum   string          `json:"md5Checksum"`
	SHA256Sum     string          `json:"sha256Checksum"`
	ExtractedText *string         `json:"extractedText,omitempty"`
	Status        DocumentStatus  `json:"status"`
	FailureReason *string         `json:"failureReason,omitempty"`
	ChunkCount    int             `json:"chunkCount"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	DeletedAt     *time.Time      `json:"deletedAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// AllowedMimeTypes lists the mime types accepted for upload, keyed by the
// magic-byte-sniffed mime type (not the client-declared Content-Type).
var AllowedMimeTypes = map[string]bool{
	"application/pdf": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/msword": true,
	"text/plain": true,
	"text/csv":   true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"image/png":  true,
	"image/jpeg": true,
}

// MaxFileSizeBytes is the maximum allowed upload size (50 MiB).
const MaxFileSizeBytes = 50 * 1024 * 1024
