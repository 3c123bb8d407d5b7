package miniostore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ObjArchiver/internal/objstore"
)

type fakeCore struct {
	listResults []minio.ListBucketV2Result
	listTokens  []string
	getOpts     []minio.GetObjectOptions
	parts       map[int]string
	completed   []minio.CompletePart
	aborted     string
	createOpts  minio.PutObjectOptions
	err         error
}

func (f *fakeCore) ListObjectsV2(_, _, _, continuationToken, _ string, _ int) (minio.ListBucketV2Result, error) {
	f.listTokens = append(f.listTokens, continuationToken)
	if f.err != nil {
		return minio.ListBucketV2Result{}, f.err
	}
	res := f.listResults[0]
	f.listResults = f.listResults[1:]
	return res, nil
}

func (f *fakeCore) GetObject(_ context.Context, _, _ string, opts minio.GetObjectOptions) (io.ReadCloser, minio.ObjectInfo, http.Header, error) {
	f.getOpts = append(f.getOpts, opts)
	if f.err != nil {
		return nil, minio.ObjectInfo{}, nil, f.err
	}
	return io.NopCloser(strings.NewReader("payload")), minio.ObjectInfo{}, nil, nil
}

func (f *fakeCore) NewMultipartUpload(_ context.Context, _, _ string, opts minio.PutObjectOptions) (string, error) {
	f.createOpts = opts
	if f.err != nil {
		return "", f.err
	}
	return "mp-1", nil
}

func (f *fakeCore) PutObjectPart(_ context.Context, _, _, _ string, partID int, data io.Reader, size int64, _ minio.PutObjectPartOptions) (minio.ObjectPart, error) {
	if f.err != nil {
		return minio.ObjectPart{}, f.err
	}
	b, _ := io.ReadAll(data)
	if int64(len(b)) != size {
		return minio.ObjectPart{}, errors.New("size mismatch")
	}
	if f.parts == nil {
		f.parts = make(map[int]string)
	}
	f.parts[partID] = string(b)
	return minio.ObjectPart{PartNumber: partID, ETag: "e" + string(b), Size: size}, nil
}

func (f *fakeCore) CompleteMultipartUpload(_ context.Context, _, _, _ string, parts []minio.CompletePart, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.completed = parts
	return minio.UploadInfo{}, f.err
}

func (f *fakeCore) AbortMultipartUpload(_ context.Context, _, _, uploadID string) error {
	f.aborted = uploadID
	return f.err
}

func TestListObjects(t *testing.T) {
	modified := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	core := &fakeCore{listResults: []minio.ListBucketV2Result{
		{
			Contents:              []minio.ObjectInfo{{Key: "p/a", Size: 1, LastModified: modified}},
			IsTruncated:           true,
			NextContinuationToken: "next",
		},
		{Contents: []minio.ObjectInfo{{Key: "p/b", Size: 2}}},
	}}
	s := &Store{core: core}

	page, err := s.ListObjects(context.Background(), "src", "p/", "")
	require.NoError(t, err)
	assert.Equal(t, []objstore.ObjectInfo{{Key: "p/a", Size: 1, LastModified: modified}}, page.Objects)
	assert.Equal(t, "next", page.NextToken)

	page, err = s.ListObjects(context.Background(), "src", "p/", "next")
	require.NoError(t, err)
	assert.Empty(t, page.NextToken)
	assert.Equal(t, []string{"", "next"}, core.listTokens)
}

func TestGetObjectRange(t *testing.T) {
	core := &fakeCore{}
	s := &Store{core: core}

	rc, err := s.GetObject(context.Background(), "src", "k", 0)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "payload", string(data))
	assert.Empty(t, core.getOpts[0].Header().Get("Range"))

	_, err = s.GetObject(context.Background(), "src", "k", 10)
	require.NoError(t, err)
	assert.Equal(t, "bytes=10-", core.getOpts[1].Header().Get("Range"))
}

func TestMultipart(t *testing.T) {
	core := &fakeCore{}
	s := &Store{core: core}
	ctx := context.Background()

	id, err := s.CreateMultipartUpload(ctx, "dst", "a.tar.xz", objstore.UploadOptions{
		ContentType: "application/x-xz",
		Metadata:    map[string]string{"source": "s3://src/p"},
	})
	require.NoError(t, err)
	assert.Equal(t, "mp-1", id)
	assert.Equal(t, "application/x-xz", core.createOpts.ContentType)

	p1, err := s.UploadPart(ctx, "dst", "a.tar.xz", id, 1, []byte("one"))
	require.NoError(t, err)
	p2, err := s.UploadPart(ctx, "dst", "a.tar.xz", id, 2, []byte("two"))
	require.NoError(t, err)
	assert.Equal(t, objstore.CompletedPart{PartNumber: 2, ETag: "etwo", Size: 3}, p2)

	require.NoError(t, s.CompleteMultipartUpload(ctx, "dst", "a.tar.xz", id, []objstore.CompletedPart{p1, p2}))
	assert.Equal(t, []minio.CompletePart{{PartNumber: 1, ETag: "eone"}, {PartNumber: 2, ETag: "etwo"}}, core.completed)

	require.NoError(t, s.AbortMultipartUpload(ctx, "dst", "a.tar.xz", id))
	assert.Equal(t, "mp-1", core.aborted)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}, objstore.ErrObjectMissing},
		{minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}, objstore.ErrAccessDenied},
		{minio.ErrorResponse{Code: "SlowDown", StatusCode: 503}, objstore.ErrStoreUnavailable},
		{minio.ErrorResponse{StatusCode: 502}, objstore.ErrStoreUnavailable},
		{minio.ErrorResponse{Code: "NoSuchBucket", StatusCode: 404}, nil},
		{errors.New("odd"), nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classify(tt.err), tt.err.Error())
	}

	core := &fakeCore{err: minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}}
	_, err := (&Store{core: core}).GetObject(context.Background(), "src", "gone", 0)
	assert.ErrorIs(t, err, objstore.ErrObjectMissing)
}

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		raw    string
		host   string
		secure bool
	}{
		{"", defaultEndpoint, true},
		{"http://127.0.0.1:9000", "127.0.0.1:9000", false},
		{"https://minio.internal", "minio.internal", true},
		{"minio.internal:9000", "minio.internal:9000", true},
	}
	for _, tt := range tests {
		host, secure, err := splitEndpoint(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.host, host)
		assert.Equal(t, tt.secure, secure)
	}

	_, _, err := splitEndpoint("ftp://host")
	assert.Error(t, err)
}
