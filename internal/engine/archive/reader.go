package archive

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"ObjArchiver/internal/objstore"
)

// ObjectReader opens source objects as streams of exactly their listed size.
type ObjectReader struct {
	store   objstore.Store
	retrier *objstore.Retrier
	log     *zap.SugaredLogger
	bucket  string
	// maxResumes bounds how often one object may be reopened after a
	// transient failure mid-stream.
	maxResumes int
}

func newObjectReader(store objstore.Store, retrier *objstore.Retrier, log *zap.SugaredLogger, bucket string) *ObjectReader {
	resumes := retrier.Policy().MaxAttempts - 1
	if resumes < 0 {
		resumes = 0
	}
	return &ObjectReader{store: store, retrier: retrier, log: log, bucket: bucket, maxResumes: resumes}
}

// Open fetches the entry. A missing object is reported with a kind that
// matches objstore.ErrObjectMissing so the caller can skip it.
func (r *ObjectReader) Open(ctx context.Context, e Entry) (*objectStream, error) {
	body, err := r.open(ctx, e.Key, 0)
	if err != nil {
		return nil, err
	}
	return &objectStream{ctx: ctx, reader: r, entry: e, body: body}, nil
}

func (r *ObjectReader) open(ctx context.Context, key string, offset int64) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := r.retrier.Do(ctx, "GetObject", func(ctx context.Context) error {
		var err error
		body, err = r.store.GetObject(ctx, r.bucket, key, offset)
		return err
	})
	return body, err
}

// objectStream reads one object and enforces its declared size. Transient
// read failures reopen the object at the current offset.
type objectStream struct {
	ctx     context.Context
	reader  *ObjectReader
	entry   Entry
	body    io.ReadCloser
	offset  int64
	resumes int
}

func (s *objectStream) Read(p []byte) (int, error) {
	remaining := s.entry.Size - s.offset
	if remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}

	for {
		n, err := s.body.Read(p)
		s.offset += int64(n)
		switch {
		case err == nil:
			return n, nil
		case errors.Is(err, io.EOF):
			if s.offset < s.entry.Size {
				return n, s.framingError(fmt.Errorf("object ended after %d of %d bytes", s.offset, s.entry.Size))
			}
			return n, nil
		case objstore.Retryable(err) && s.resumes < s.reader.maxResumes:
			s.resumes++
			s.reader.log.Warnw("resuming object read", "key", s.entry.Key, "offset", s.offset, "attempt", s.resumes, "error", err)
			_ = s.body.Close()
			body, openErr := s.reader.open(s.ctx, s.entry.Key, s.offset)
			if openErr != nil {
				s.body = io.NopCloser(eofReader{})
				return n, stageError(StageRead, s.entry.Key, openErr)
			}
			s.body = body
			if n > 0 {
				return n, nil
			}
		default:
			return n, stageError(StageRead, s.entry.Key, err)
		}
	}
}

// Finish checks that the object holds no bytes beyond its declared size.
func (s *objectStream) Finish() error {
	if s.offset != s.entry.Size {
		return s.framingError(fmt.Errorf("read %d of %d bytes", s.offset, s.entry.Size))
	}
	var probe [1]byte
	n, err := s.body.Read(probe[:])
	if n > 0 {
		return s.framingError(fmt.Errorf("object is larger than its listed size %d", s.entry.Size))
	}
	if err != nil && !errors.Is(err, io.EOF) {
		// All declared bytes arrived; a trailing transport error is harmless.
		s.reader.log.Debugw("ignoring error after object end", "key", s.entry.Key, "error", err)
	}
	return nil
}

func (s *objectStream) Close() error {
	return s.body.Close()
}

func (s *objectStream) framingError(err error) error {
	return &StageError{Stage: StageFrame, Key: s.entry.Key, Err: fmt.Errorf("%w: %v", ErrArchiveFraming, err)}
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) {
	return 0, io.EOF
}
