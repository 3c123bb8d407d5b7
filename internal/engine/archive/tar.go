package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"ObjArchiver/internal/objstore"
)

const tarBlockSize = 512

// Framer writes the qualifying entries as one TAR stream.
type Framer struct {
	lister  *Lister
	reader  *ObjectReader
	log     *zap.SugaredLogger
	metrics *Metrics

	archived    int64
	skipped     int64
	sourceBytes int64
}

func newFramer(lister *Lister, reader *ObjectReader, log *zap.SugaredLogger, metrics *Metrics) *Framer {
	return &Framer{lister: lister, reader: reader, log: log, metrics: metrics}
}

// WriteTo frames every entry into w and finishes with the end-of-archive
// marker. Errors that originate in a source stage come back as *StageError;
// anything else is a failure to write downstream.
func (f *Framer) WriteTo(ctx context.Context, w io.Writer) error {
	tw := tar.NewWriter(w)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, err := f.lister.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := f.writeEntry(ctx, tw, entry); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("write end of archive: %w", err)
	}
	return nil
}

func (f *Framer) writeEntry(ctx context.Context, tw *tar.Writer, entry Entry) error {
	stream, err := f.reader.Open(ctx, entry)
	if err != nil {
		if objstore.IsObjectMissing(err) {
			f.skipped++
			f.metrics.objectSkipped()
			f.log.Warnw("object disappeared before it could be read, skipping", "key", entry.Key)
			return nil
		}
		return stageError(StageRead, entry.Key, err)
	}
	defer stream.Close()

	if err := tw.WriteHeader(entryHeader(entry)); err != nil {
		return fmt.Errorf("write header for %q: %w", entry.Key, err)
	}
	if entry.Size > 0 {
		if _, err := io.CopyN(tw, stream, entry.Size); err != nil {
			var se *StageError
			if errors.As(err, &se) {
				return err
			}
			if errors.Is(err, io.EOF) {
				return stream.framingError(fmt.Errorf("short read: %v", err))
			}
			return fmt.Errorf("write content for %q: %w", entry.Key, err)
		}
	}
	if err := stream.Finish(); err != nil {
		return err
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("pad entry %q: %w", entry.Key, err)
	}

	f.archived++
	f.sourceBytes += entry.Size
	f.metrics.objectArchived(entry.Size)
	f.log.Debugw("archived object", "key", entry.Key, "name", entry.Name, "size", entry.Size)
	return nil
}

// entryHeader renders e as a regular file. An empty object whose key ends
// in "/" is a folder marker and becomes a directory entry; a non-empty one
// loses the trailing slash, which tar only allows on directories.
func entryHeader(e Entry) *tar.Header {
	h := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     e.Name,
		Size:     e.Size,
		Mode:     0644,
		ModTime:  e.LastModified.UTC().Truncate(time.Second),
		Format:   tar.FormatPAX,
	}
	if strings.HasSuffix(e.Name, "/") {
		if e.Size == 0 {
			h.Typeflag = tar.TypeDir
			h.Mode = 0755
		} else {
			h.Name = strings.TrimRight(e.Name, "/")
		}
	}
	return h
}

// headerBytes is the space the header of e takes in the stream, including
// any PAX extended header. The header is rendered by the same writer the
// framer uses, so the result is exact.
func headerBytes(e Entry) (int64, error) {
	var cw countingWriter
	if err := tar.NewWriter(&cw).WriteHeader(entryHeader(e)); err != nil {
		return 0, err
	}
	return cw.n, nil
}

func roundBlock(n int64) int64 {
	return (n + tarBlockSize - 1) / tarBlockSize * tarBlockSize
}

// entryBytes is the space e takes in the TAR stream.
func entryBytes(e Entry) (int64, error) {
	h, err := headerBytes(e)
	if err != nil {
		return 0, err
	}
	return h + roundBlock(e.Size), nil
}

type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

// Archived is the number of entries written.
func (f *Framer) Archived() int64 {
	return f.archived
}

// Skipped is the number of entries skipped because the object was gone.
func (f *Framer) Skipped() int64 {
	return f.skipped
}

func (f *Framer) SourceBytes() int64 {
	return f.sourceBytes
}
