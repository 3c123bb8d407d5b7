package archive

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"ObjArchiver/internal/objstore"
)

// endOfArchiveBytes is the two zero blocks that terminate a TAR stream.
const endOfArchiveBytes = 2 * tarBlockSize

// PreflightReport is the outcome of the counting pass over the source.
type PreflightReport struct {
	Objects     int64
	SourceBytes int64
	// TarBytes is the exact size of the uncompressed archive.
	TarBytes int64
	// Capacity is partSize × maxParts.
	Capacity int64
}

// Fits reports whether the uncompressed archive fits the upload bounds.
func (r *PreflightReport) Fits() bool {
	return r.TarBytes <= r.Capacity && r.TarBytes <= objstore.MaxObjectSize
}

// preflight lists the source once and computes the archive size before any
// upload is created. Uncompressed archives that cannot fit fail here;
// compressed ones only warn since the output size is unknown.
func preflight(ctx context.Context, lister *Lister, log *zap.SugaredLogger, partSize int64, maxParts int, c CompressionConfig) (*PreflightReport, error) {
	report := &PreflightReport{TarBytes: endOfArchiveBytes, Capacity: partSize * int64(maxParts)}
	for {
		entry, err := lister.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		n, err := entryBytes(entry)
		if err != nil {
			return nil, &StageError{Stage: StagePreflight, Key: entry.Key, Err: err}
		}
		report.Objects++
		report.SourceBytes += entry.Size
		report.TarBytes += n
	}

	log.Infow("preflight finished",
		"objects", report.Objects,
		"source_size", humanize.IBytes(uint64(report.SourceBytes)),
		"tar_size", humanize.IBytes(uint64(report.TarBytes)),
		"capacity", humanize.IBytes(uint64(report.Capacity)))

	if report.Fits() {
		return report, nil
	}
	if c.Enabled() {
		log.Warnw("uncompressed archive exceeds the upload capacity, the run succeeds only if compression shrinks it enough",
			"tar_size", humanize.IBytes(uint64(report.TarBytes)),
			"capacity", humanize.IBytes(uint64(report.Capacity)))
		return report, nil
	}
	if report.TarBytes > objstore.MaxObjectSize {
		return report, &StageError{Stage: StagePreflight, Err: fmt.Errorf("%w: archive needs %s",
			ErrObjectTooLarge, humanize.IBytes(uint64(report.TarBytes)))}
	}
	return report, &StageError{Stage: StagePreflight, Err: fmt.Errorf("%w: archive needs %s but %d parts of %s hold %s, raise the buffer size",
		ErrTooManyParts, humanize.IBytes(uint64(report.TarBytes)), maxParts,
		humanize.IBytes(uint64(partSize)), humanize.IBytes(uint64(report.Capacity)))}
}
