// Package objstore defines the object store capability the archive pipeline
// consumes, the error kinds store calls can fail with, and the retry policy
// applied around network call sites.
package objstore

import (
	"context"
	"io"
	"time"
)

const (
	// MaxParts is the S3 ceiling on parts per multipart upload.
	MaxParts = 10000
	// MinPartSize is the smallest non-final part S3 accepts.
	MinPartSize int64 = 5 * 1024 * 1024
	// MaxPartSize is the largest single part S3 accepts.
	MaxPartSize int64 = 5 * 1024 * 1024 * 1024
	// MaxObjectSize is the largest object S3 can assemble.
	MaxObjectSize int64 = 5 * 1024 * 1024 * 1024 * 1024
)

// ObjectInfo describes one listed source object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ListPage is one page of a listing. NextToken is empty on the last page.
type ListPage struct {
	Objects   []ObjectInfo
	NextToken string
}

// CompletedPart identifies one committed part of a multipart upload.
type CompletedPart struct {
	PartNumber int32
	ETag       string
	Size       int64
}

// UploadOptions carries the attributes set when a multipart upload is created.
type UploadOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Store is the subset of S3 operations the archiver needs. Implementations
// return *Error values so callers can branch on the failure kind.
type Store interface {
	// ListObjects returns one page of objects under prefix. An empty token
	// starts from the beginning.
	ListObjects(ctx context.Context, bucket, prefix, token string) (*ListPage, error)
	// GetObject opens key for reading starting at offset.
	GetObject(ctx context.Context, bucket, key string, offset int64) (io.ReadCloser, error)
	CreateMultipartUpload(ctx context.Context, bucket, key string, opts UploadOptions) (string, error)
	UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, body []byte) (CompletedPart, error)
	CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []CompletedPart) error
	AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error
}
