// Package archive consolidates the objects below a source prefix into one
// TAR archive, optionally compressed, uploaded with a multipart upload.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ObjArchiver/internal/logger"
	"ObjArchiver/internal/objstore"
)

// Metadata stored with every archive.
const (
	MetaRunID  = "objarchiver-run-id"
	MetaSource = "objarchiver-source"
	MetaCutoff = "objarchiver-cutoff"
)

var ErrInvalidOptions = errors.New("invalid archive options")

type Options struct {
	SourceBucket string
	// SourcePrefix is listed as is and stripped from keys to name entries.
	SourcePrefix string
	DestBucket   string
	DestPrefix   string
	Cutoff       time.Time
	HasCutoff    bool
	PartSize     int64
	MaxParts     int
	Concurrency  int
	Compression  CompressionConfig
	Preflight    bool
	RunID        string
	StartedAt    time.Time
	// SourceLabel is shown in the summary and stored as metadata.
	SourceLabel string
}

// Archiver runs the list, frame, compress and upload pipeline.
type Archiver struct {
	store       objstore.Store
	retrier     *objstore.Retrier
	log         *zap.SugaredLogger
	metrics     *Metrics
	minPartSize int64
}

// New builds an Archiver. metrics may be nil.
func New(store objstore.Store, retrier *objstore.Retrier, log *zap.SugaredLogger, metrics *Metrics) *Archiver {
	return &Archiver{
		store:       store,
		retrier:     retrier,
		log:         log.With(logger.ComponentKey, "archiver"),
		metrics:     metrics,
		minPartSize: objstore.MinPartSize,
	}
}

func (a *Archiver) validate(opts *Options) error {
	if opts.SourceBucket == "" || opts.DestBucket == "" {
		return fmt.Errorf("%w: source and destination buckets are required", ErrInvalidOptions)
	}
	if opts.PartSize < a.minPartSize || opts.PartSize > objstore.MaxPartSize {
		return fmt.Errorf("%w: part size %s is outside [%s, %s]", ErrInvalidOptions,
			humanize.IBytes(uint64(opts.PartSize)), humanize.IBytes(uint64(a.minPartSize)),
			humanize.IBytes(uint64(objstore.MaxPartSize)))
	}
	if opts.MaxParts == 0 {
		opts.MaxParts = objstore.MaxParts
	}
	if opts.MaxParts < 1 || opts.MaxParts > objstore.MaxParts {
		return fmt.Errorf("%w: max parts %d is outside [1, %d]", ErrInvalidOptions, opts.MaxParts, objstore.MaxParts)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if err := opts.Compression.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}
	if opts.SourceLabel == "" {
		opts.SourceLabel = "s3://" + opts.SourceBucket + "/" + opts.SourcePrefix
	}
	return nil
}

// Key is the destination key the run will write.
func (o Options) Key() string {
	at := o.StartedAt
	if o.HasCutoff {
		at = o.Cutoff
	}
	return ArchiveKey(o.DestPrefix, at, o.Compression)
}

// Run archives the qualifying objects. On failure no destination object is
// left behind and the error carries the failing stage, see StageOf.
func (a *Archiver) Run(ctx context.Context, opts Options) (*Summary, error) {
	if err := a.validate(&opts); err != nil {
		return nil, err
	}
	log := a.log.With(logger.RunIDKey, opts.RunID)
	key := opts.Key()

	summary, err := a.run(ctx, log, opts, key)
	took := time.Since(opts.StartedAt)
	a.metrics.runFinished(took, err == nil)
	if err != nil {
		stage, _ := StageOf(err)
		log.Errorw("archive run failed", "stage", stage, "error", err)
		return nil, err
	}
	summary.Duration = took
	log.Infow("archive run finished",
		"key", key,
		"objects", summary.ObjectsArchived,
		"skipped", summary.ObjectsSkipped,
		"size", humanize.IBytes(uint64(summary.ArchiveBytes)),
		"took", took.Round(time.Millisecond))
	return summary, nil
}

func (a *Archiver) run(ctx context.Context, log *zap.SugaredLogger, opts Options, key string) (*Summary, error) {
	log.Infow("archive run started",
		"source", opts.SourceLabel,
		"destination", "s3://"+opts.DestBucket+"/"+key,
		"compression", opts.Compression.String(),
		"part_size", humanize.IBytes(uint64(opts.PartSize)),
		"concurrency", opts.Concurrency)
	if opts.Compression.Level == LevelBest {
		log.Warnw("best compression needs a lot of memory",
			"algorithm", opts.Compression.Algorithm,
			"estimate", humanize.IBytes(uint64(opts.Compression.MemoryEstimate())))
	}

	if opts.Preflight {
		lister := newLister(a.store, a.retrier, log, opts.SourceBucket, opts.SourcePrefix, opts.Cutoff, opts.HasCutoff)
		if _, err := preflight(ctx, lister, log, opts.PartSize, opts.MaxParts, opts.Compression); err != nil {
			return nil, err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	lister := newLister(a.store, a.retrier, log, opts.SourceBucket, opts.SourcePrefix, opts.Cutoff, opts.HasCutoff)
	reader := newObjectReader(a.store, a.retrier, log, opts.SourceBucket)
	framer := newFramer(lister, reader, log, a.metrics)

	tarStream := newStage(runCtx, nil, func(ctx context.Context, w io.Writer) error {
		return frame(ctx, framer, w)
	})
	stream, err := NewCompressReader(runCtx, tarStream, opts.Compression)
	if err != nil {
		_ = tarStream.Close()
		return nil, &StageError{Stage: StageCompress, Err: err}
	}

	uploader := newUploader(a.store, a.retrier, log, a.metrics, opts.PartSize, opts.MaxParts, opts.Concurrency)
	uploadOpts := objstore.UploadOptions{
		ContentType: opts.Compression.ContentType(),
		Metadata: map[string]string{
			MetaRunID:  opts.RunID,
			MetaSource: opts.SourceLabel,
		},
	}
	if opts.HasCutoff {
		uploadOpts.Metadata[MetaCutoff] = opts.Cutoff.UTC().Format(time.RFC3339)
	}

	result, err := uploader.Upload(runCtx, opts.DestBucket, key, stream, uploadOpts)
	// Stops the source stages before their counters are read.
	cancel()
	_ = stream.Close()
	a.metrics.objectsExcluded(lister.Filtered())
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		RunID:           opts.RunID,
		Source:          opts.SourceLabel,
		Bucket:          result.Bucket,
		Key:             result.Key,
		Compression:     opts.Compression.String(),
		ObjectsListed:   lister.Listed(),
		ObjectsArchived: framer.Archived(),
		ObjectsSkipped:  framer.Skipped(),
		ObjectsFiltered: lister.Filtered(),
		SourceBytes:     framer.SourceBytes(),
		ArchiveBytes:    result.Size,
		Parts:           result.Parts,
		Digest:          result.Digest,
		StartedAt:       opts.StartedAt.UTC(),
	}
	if opts.HasCutoff {
		cutoff := opts.Cutoff.UTC()
		summary.Cutoff = &cutoff
	}
	return summary, nil
}

// frame runs the framer and tags failures that did not come from a source
// stage as framing failures.
func frame(ctx context.Context, framer *Framer, w io.Writer) error {
	err := framer.WriteTo(ctx, w)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}
	return stageError(StageFrame, "", err)
}
