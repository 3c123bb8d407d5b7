package miniostore

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/minio/minio-go/v7"

	"ObjArchiver/internal/objstore"
)

func wrapError(op, bucket, key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return objstore.NewError(op, bucket, key, classify(err), err)
}

func classify(err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		return objstore.ErrObjectMissing
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "AllAccessDisabled", "ExpiredToken":
		return objstore.ErrAccessDenied
	case "SlowDown", "SlowDownRead", "SlowDownWrite", "InternalError", "ServiceUnavailable",
		"RequestTimeout", "XMinioServerNotInitialized":
		return objstore.ErrStoreUnavailable
	case "NoSuchBucket", "NoSuchUpload", "InvalidPart", "InvalidPartOrder", "EntityTooSmall", "InvalidRange":
		return nil
	}
	switch status := resp.StatusCode; {
	case status == http.StatusNotFound:
		return objstore.ErrObjectMissing
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		return objstore.ErrAccessDenied
	case status == http.StatusTooManyRequests || status >= 500:
		return objstore.ErrStoreUnavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return objstore.ErrStoreUnavailable
	}
	return nil
}

type objectBody struct {
	body   io.ReadCloser
	bucket string
	key    string
}

func (b *objectBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if err == nil || err == io.EOF {
		return n, err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return n, err
	}
	kind := classify(err)
	if kind == nil {
		kind = objstore.ErrStoreUnavailable
	}
	return n, objstore.NewError("GetObject.Read", b.bucket, b.key, kind, err)
}

func (b *objectBody) Close() error {
	return b.body.Close()
}
