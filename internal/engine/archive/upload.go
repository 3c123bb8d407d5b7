package archive

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ObjArchiver/internal/objstore"
)

const (
	keyTimestampLayout = "20060102_150405"
	abortTimeout       = 30 * time.Second
)

// ArchiveKey names the archive below prefix. The suffix reflects the
// compression so consumers know how to decode it. The prefix is used as is,
// apart from trailing slashes.
func ArchiveKey(prefix string, at time.Time, c CompressionConfig) string {
	name := "archive_" + at.UTC().Format(keyTimestampLayout) + ".tar" + c.Extension()
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// UploadResult describes a completed multipart object.
type UploadResult struct {
	Bucket   string
	Key      string
	UploadID string
	Parts    int
	Size     int64
	// Digest is the BLAKE3 hex digest of the uploaded bytes.
	Digest string
}

// Uploader cuts a byte stream into fixed size parts and assembles them into
// one destination object.
type Uploader struct {
	store       objstore.Store
	retrier     *objstore.Retrier
	log         *zap.SugaredLogger
	metrics     *Metrics
	partSize    int64
	maxParts    int
	concurrency int
}

func newUploader(store objstore.Store, retrier *objstore.Retrier, log *zap.SugaredLogger, metrics *Metrics, partSize int64, maxParts, concurrency int) *Uploader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Uploader{
		store:       store,
		retrier:     retrier,
		log:         log,
		metrics:     metrics,
		partSize:    partSize,
		maxParts:    maxParts,
		concurrency: concurrency,
	}
}

// Upload streams src into bucket/key. Every part except the last is exactly
// partSize bytes. On any failure the multipart upload is aborted before
// returning, so the object is either complete or absent. Errors returned by
// src are passed through unchanged.
func (u *Uploader) Upload(ctx context.Context, bucket, key string, src io.Reader, opts objstore.UploadOptions) (*UploadResult, error) {
	var uploadID string
	err := u.retrier.Do(ctx, "CreateMultipartUpload", func(ctx context.Context) error {
		var err error
		uploadID, err = u.store.CreateMultipartUpload(ctx, bucket, key, opts)
		return err
	})
	if err != nil {
		return nil, uploadError(err)
	}
	log := u.log.With("bucket", bucket, "key", key, "upload_id", uploadID)
	log.Infow("multipart upload created", "part_size", humanize.IBytes(uint64(u.partSize)), "max_parts", u.maxParts)

	committed := false
	defer func() {
		if !committed {
			u.abort(ctx, log, bucket, key, uploadID)
		}
	}()

	parts, size, digest, err := u.uploadParts(ctx, log, bucket, key, uploadID, src)
	if err != nil {
		return nil, err
	}

	err = u.retrier.Do(ctx, "CompleteMultipartUpload", func(ctx context.Context) error {
		return u.store.CompleteMultipartUpload(ctx, bucket, key, uploadID, parts)
	})
	if err != nil {
		return nil, uploadError(err)
	}
	committed = true
	log.Infow("multipart upload completed", "parts", len(parts), "size", humanize.IBytes(uint64(size)))

	return &UploadResult{
		Bucket:   bucket,
		Key:      key,
		UploadID: uploadID,
		Parts:    len(parts),
		Size:     size,
		Digest:   digest,
	}, nil
}

func (u *Uploader) uploadParts(ctx context.Context, log *zap.SugaredLogger, bucket, key, uploadID string, src io.Reader) ([]objstore.CompletedPart, int64, string, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)

	// Part buffers are allocated on first use and recycled, so at most
	// concurrency buffers of partSize exist at once.
	buffers := make(chan []byte, u.concurrency)
	for i := 0; i < u.concurrency; i++ {
		buffers <- nil
	}

	var (
		mu      sync.Mutex
		parts   []objstore.CompletedPart
		hasher  = blake3.New()
		total   int64
		number  int32
		readErr error
	)

readLoop:
	for {
		var buf []byte
		select {
		case <-gctx.Done():
			break readLoop
		case buf = <-buffers:
		}
		if gctx.Err() != nil {
			break
		}
		if buf == nil {
			buf = make([]byte, u.partSize)
		}

		n, err := io.ReadFull(src, buf)
		eof := false
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			eof = true
		default:
			readErr = err
			break readLoop
		}
		if n == 0 && eof && number > 0 {
			break
		}

		number++
		if !eof && int(number) == u.maxParts {
			more, err := hasMore(src)
			if err != nil {
				readErr = err
				break
			}
			if more {
				readErr = &StageError{Stage: StageUpload, Err: fmt.Errorf("%w: more than %d parts of %s",
					ErrTooManyParts, u.maxParts, humanize.IBytes(uint64(u.partSize)))}
				break
			}
			eof = true
		}

		total += int64(n)
		if total > objstore.MaxObjectSize {
			readErr = &StageError{Stage: StageUpload, Err: fmt.Errorf("%w: more than %s",
				ErrObjectTooLarge, humanize.IBytes(uint64(objstore.MaxObjectSize)))}
			break
		}
		_, _ = hasher.Write(buf[:n])

		partNumber, data, owned := number, buf[:n], buf
		g.Go(func() error {
			defer func() { buffers <- owned }()
			start := time.Now()
			var part objstore.CompletedPart
			err := u.retrier.Do(gctx, "UploadPart", func(ctx context.Context) error {
				var err error
				part, err = u.store.UploadPart(ctx, bucket, key, uploadID, partNumber, data)
				return err
			})
			if err != nil {
				return fmt.Errorf("part %d: %w", partNumber, err)
			}
			u.metrics.partUploaded(int64(len(data)), time.Since(start))
			log.Debugw("part uploaded", "part", partNumber, "size", len(data))

			mu.Lock()
			parts = append(parts, part)
			mu.Unlock()
			return nil
		})

		if eof {
			break
		}
	}

	werr := g.Wait()
	if readErr != nil {
		return nil, 0, "", readErr
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, "", err
	}
	if werr != nil {
		return nil, 0, "", uploadError(werr)
	}

	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	return parts, total, hex.EncodeToString(hasher.Sum(nil)), nil
}

// abort releases the multipart upload. It runs even when ctx is already
// cancelled.
func (u *Uploader) abort(ctx context.Context, log *zap.SugaredLogger, bucket, key, uploadID string) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()

	u.metrics.uploadAborted()
	if err := u.store.AbortMultipartUpload(actx, bucket, key, uploadID); err != nil {
		log.Errorw("failed to abort multipart upload, it must be removed by a lifecycle rule", "error", err)
		return
	}
	log.Warnw("multipart upload aborted")
}

func hasMore(r io.Reader) (bool, error) {
	var probe [1]byte
	n, err := io.ReadFull(r, probe[:])
	if n > 0 {
		return true, nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return false, nil
}

func uploadError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &StageError{Stage: StageUpload, Err: fmt.Errorf("%w: %w", ErrUploadFailure, err)}
}
