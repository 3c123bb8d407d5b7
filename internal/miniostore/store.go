// Package miniostore is an objstore.Store backed by the minio-go multipart core.
package miniostore

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"ObjArchiver/internal/objstore"
)

const defaultEndpoint = "s3.amazonaws.com"

type Options struct {
	Endpoint           string
	Region             string
	AccessKey          string
	SecretKey          string
	PathStyle          bool
	InsecureSkipVerify bool
}

// coreAPI is the part of minio.Core the store uses.
type coreAPI interface {
	ListObjectsV2(bucketName, objectPrefix, startAfter, continuationToken, delimiter string, maxkeys int) (minio.ListBucketV2Result, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, minio.ObjectInfo, http.Header, error)
	NewMultipartUpload(ctx context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error)
	PutObjectPart(ctx context.Context, bucket, object, uploadID string, partID int, data io.Reader, size int64, opts minio.PutObjectPartOptions) (minio.ObjectPart, error)
	CompleteMultipartUpload(ctx context.Context, bucket, object, uploadID string, parts []minio.CompletePart, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	AbortMultipartUpload(ctx context.Context, bucket, object, uploadID string) error
}

var _ coreAPI = (*minio.Core)(nil)

var _ objstore.Store = (*Store)(nil)

type Store struct {
	core coreAPI
}

func New(opts Options) (*Store, error) {
	host, secure, err := splitEndpoint(opts.Endpoint)
	if err != nil {
		return nil, err
	}

	mopts := &minio.Options{
		Region: opts.Region,
		Secure: secure,
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
	}
	if opts.PathStyle {
		mopts.BucketLookup = minio.BucketLookupPath
	}
	if opts.InsecureSkipVerify {
		mopts.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	core, err := minio.NewCore(host, mopts)
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Store{core: core}, nil
}

// splitEndpoint turns a URL or host into the host and TLS flag minio wants.
func splitEndpoint(raw string) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultEndpoint, true, nil
	}
	if !strings.Contains(raw, "://") {
		return strings.TrimRight(raw, "/"), true, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("minio endpoint: %w", err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("minio endpoint %q: missing host", raw)
	}
	switch u.Scheme {
	case "http":
		return u.Host, false, nil
	case "https":
		return u.Host, true, nil
	default:
		return "", false, fmt.Errorf("minio endpoint %q: unsupported scheme %q", raw, u.Scheme)
	}
}

func (s *Store) ListObjects(ctx context.Context, bucket, prefix, token string) (*objstore.ListPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := s.core.ListObjectsV2(bucket, prefix, "", token, "", 1000)
	if err != nil {
		return nil, wrapError("ListObjectsV2", bucket, "", err)
	}

	page := &objstore.ListPage{Objects: make([]objstore.ObjectInfo, 0, len(res.Contents))}
	for _, obj := range res.Contents {
		if obj.Err != nil {
			return nil, wrapError("ListObjectsV2", bucket, obj.Key, obj.Err)
		}
		page.Objects = append(page.Objects, objstore.ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified.UTC(),
		})
	}
	if res.IsTruncated {
		if res.NextContinuationToken == "" {
			return nil, objstore.NewError("ListObjectsV2", bucket, "", nil, errors.New("truncated page without continuation token"))
		}
		page.NextToken = res.NextContinuationToken
	}
	return page, nil
}

func (s *Store) GetObject(ctx context.Context, bucket, key string, offset int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if offset > 0 {
		if err := opts.SetRange(offset, 0); err != nil {
			return nil, objstore.NewError("GetObject", bucket, key, nil, err)
		}
	}
	body, _, _, err := s.core.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, wrapError("GetObject", bucket, key, err)
	}
	return &objectBody{body: body, bucket: bucket, key: key}, nil
}

func (s *Store) CreateMultipartUpload(ctx context.Context, bucket, key string, opts objstore.UploadOptions) (string, error) {
	id, err := s.core.NewMultipartUpload(ctx, bucket, key, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	})
	if err != nil {
		return "", wrapError("CreateMultipartUpload", bucket, key, err)
	}
	return id, nil
}

func (s *Store) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, body []byte) (objstore.CompletedPart, error) {
	part, err := s.core.PutObjectPart(ctx, bucket, key, uploadID, int(partNumber),
		bytes.NewReader(body), int64(len(body)), minio.PutObjectPartOptions{})
	if err != nil {
		return objstore.CompletedPart{}, wrapError(fmt.Sprintf("UploadPart %d", partNumber), bucket, key, err)
	}
	return objstore.CompletedPart{
		PartNumber: partNumber,
		ETag:       part.ETag,
		Size:       int64(len(body)),
	}, nil
}

func (s *Store) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []objstore.CompletedPart) error {
	completed := make([]minio.CompletePart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, minio.CompletePart{PartNumber: int(p.PartNumber), ETag: p.ETag})
	}
	if _, err := s.core.CompleteMultipartUpload(ctx, bucket, key, uploadID, completed, minio.PutObjectOptions{}); err != nil {
		return wrapError("CompleteMultipartUpload", bucket, key, err)
	}
	return nil
}

func (s *Store) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	if err := s.core.AbortMultipartUpload(ctx, bucket, key, uploadID); err != nil {
		return wrapError("AbortMultipartUpload", bucket, key, err)
	}
	return nil
}
