package objstore

import (
	"context"
	"errors"
	"fmt"
)

// Failure kinds. Match them with errors.Is.
var (
	// ErrStoreUnavailable is a transient network or service fault.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrAccessDenied means the credentials lack permission. Never retried.
	ErrAccessDenied = errors.New("access denied")
	// ErrObjectMissing means the object disappeared between listing and fetch.
	ErrObjectMissing = errors.New("object missing")
)

// Error wraps a store failure with the operation and object it concerns.
type Error struct {
	Op     string
	Bucket string
	Key    string
	// Kind is one of the sentinel errors above, or nil when unclassified.
	Kind error
	Err  error
}

func (e *Error) Error() string {
	kind := ""
	if e.Kind != nil {
		kind = " (" + e.Kind.Error() + ")"
	}
	switch {
	case e.Bucket != "" && e.Key != "":
		return fmt.Sprintf("%s %s/%s%s: %v", e.Op, e.Bucket, e.Key, kind, e.Err)
	case e.Bucket != "":
		return fmt.Sprintf("%s bucket %s%s: %v", e.Op, e.Bucket, kind, e.Err)
	default:
		return fmt.Sprintf("%s%s: %v", e.Op, kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// NewError builds an Error of the given kind.
func NewError(op, bucket, key string, kind, err error) *Error {
	return &Error{Op: op, Bucket: bucket, Key: key, Kind: kind, Err: err}
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrStoreUnavailable)
}

func IsObjectMissing(err error) bool {
	return errors.Is(err, ErrObjectMissing)
}

func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}
