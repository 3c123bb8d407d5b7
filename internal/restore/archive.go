// Package restore reads archives written by the archiver back: it lists,
// verifies and extracts them.
package restore

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"go.uber.org/zap"

	"ObjArchiver/internal/objstore"
)

var ErrUnsafePath = errors.New("archive entry escapes the target directory")

type Options struct {
	// Prefix limits extraction to entries whose name starts with it.
	Prefix string
	DryRun bool
}

// Entry is one archive member.
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
	// Dir is set for folder markers, which are stored as directory entries.
	Dir bool
}

// Result counts what was read from an archive.
type Result struct {
	Entries int64
	Bytes   int64
}

// Walk opens bucket/key, decodes it by its suffix and calls fn for every
// entry in order. fn may read the entry content from r; unread content is
// skipped.
func Walk(ctx context.Context, store objstore.Store, bucket, key string, fn func(e Entry, r io.Reader) error) (*Result, error) {
	rc, err := store.GetObject(ctx, bucket, key, 0)
	if err != nil {
		return nil, fmt.Errorf("get archive %s: %w", key, err)
	}
	defer rc.Close()

	r, closeDecoder, err := decompressStream(rc, key)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", key, err)
	}
	defer closeDecoder()

	res := &Result{}
	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read tar %s: %w", key, err)
		}
		e := Entry{Name: hdr.Name, Size: hdr.Size, ModTime: hdr.ModTime, Dir: hdr.Typeflag == tar.TypeDir}
		if err := fn(e, tr); err != nil {
			return res, err
		}
		res.Entries++
		res.Bytes += hdr.Size
	}
	// Trailing data after the end marker is consumed so the decoder checks
	// its own footer.
	if _, err := io.Copy(io.Discard, r); err != nil {
		return res, fmt.Errorf("read trailer of %s: %w", key, err)
	}
	return res, nil
}

// Verify reads the whole archive and checks that it decodes.
func Verify(ctx context.Context, store objstore.Store, bucket, key string) (*Result, error) {
	return Walk(ctx, store, bucket, key, func(Entry, io.Reader) error { return nil })
}

// Extract writes the archive members below targetDir.
func Extract(ctx context.Context, store objstore.Store, log *zap.SugaredLogger, bucket, key, targetDir string, opts Options) (*Result, error) {
	return Walk(ctx, store, bucket, key, func(e Entry, r io.Reader) error {
		name := cleanTarName(e.Name)
		if name == "" {
			return fmt.Errorf("%w: %q", ErrUnsafePath, e.Name)
		}
		if opts.Prefix != "" && !strings.HasPrefix(name, opts.Prefix) {
			return nil
		}
		if opts.DryRun {
			log.Infow("would extract", "name", name, "size", e.Size)
			return nil
		}
		return writeEntry(targetDir, name, e, r)
	})
}

func writeEntry(targetDir, name string, e Entry, r io.Reader) error {
	dstPath := filepath.Join(targetDir, filepath.FromSlash(name))
	if e.Dir {
		return os.MkdirAll(dstPath, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if !e.ModTime.IsZero() {
		return os.Chtimes(dstPath, e.ModTime, e.ModTime)
	}
	return nil
}

func decompressStream(r io.Reader, key string) (io.Reader, func(), error) {
	noop := func() {}
	lower := strings.ToLower(key)
	switch {
	case strings.HasSuffix(lower, ".bz2"):
		br, err := bzip2.NewReader(r, nil)
		if err != nil {
			return nil, noop, err
		}
		return br, func() { _ = br.Close() }, nil
	case strings.HasSuffix(lower, ".xz"):
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, noop, err
		}
		return xr, noop, nil
	case strings.HasSuffix(lower, ".zst"):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, noop, err
		}
		return zr, zr.Close, nil
	case strings.HasSuffix(lower, ".gz"):
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, noop, err
		}
		return gr, func() { _ = gr.Close() }, nil
	default:
		return r, noop, nil
	}
}

func cleanTarName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = path.Clean("/" + name)
	name = strings.TrimLeft(name, "/")
	if name == "" || name == "." {
		return ""
	}
	return name
}
