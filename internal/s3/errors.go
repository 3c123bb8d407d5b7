package s3

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"ObjArchiver/internal/objstore"
)

func wrapError(op, bucket, key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return objstore.NewError(op, bucket, key, classify(err), err)
}

// classify maps an SDK error onto an objstore kind, or nil when the error
// should not be retried or skipped.
func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return objstore.ErrObjectMissing
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "AllAccessDisabled",
			"ExpiredToken", "InvalidToken", "AccountProblem":
			return objstore.ErrAccessDenied
		case "SlowDown", "InternalError", "ServiceUnavailable", "RequestTimeout", "Throttling",
			"ThrottlingException", "RequestLimitExceeded", "OperationAborted":
			return objstore.ErrStoreUnavailable
		case "NoSuchBucket", "NoSuchUpload", "InvalidPart", "InvalidPartOrder", "EntityTooSmall",
			"EntityTooLarge", "InvalidRange", "InvalidBucketName":
			return nil
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		switch {
		case status == http.StatusNotFound:
			return objstore.ErrObjectMissing
		case status == http.StatusForbidden || status == http.StatusUnauthorized:
			return objstore.ErrAccessDenied
		case status == http.StatusTooManyRequests || status >= 500:
			return objstore.ErrStoreUnavailable
		}
		return nil
	}

	if isTransportError(err) {
		return objstore.ErrStoreUnavailable
	}
	return nil
}

func isTransportError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE)
}

// objectBody reports mid-stream read failures as store errors.
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
		// Anything that breaks a body stream after a 200 is a transport fault.
		kind = objstore.ErrStoreUnavailable
	}
	return n, objstore.NewError("GetObject.Read", b.bucket, b.key, kind, err)
}

func (b *objectBody) Close() error {
	return b.body.Close()
}
