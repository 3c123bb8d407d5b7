// Package doctor runs pre-run checks against the configured stores.
package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"ObjArchiver/internal/config"
	"ObjArchiver/internal/engine/archive"
	"ObjArchiver/internal/objstore"
)

const (
	checkTimeout = 10 * time.Second
	probeName    = ".objarchiver-doctor"
)

type CheckResult struct {
	Name   string
	OK     bool
	Detail string
}

// Run checks that the source can be listed, that the destination accepts
// multipart uploads and reports the archive capacity of the configuration.
func Run(ctx context.Context, store objstore.Store, cfg *config.Config, res *config.Resolved) []CheckResult {
	results := []CheckResult{{
		Name:   "config",
		OK:     res != nil,
		Detail: "configuration valid",
	}}
	if res == nil {
		results[0].Detail = "configuration invalid"
		return results
	}

	ok, detail := checkSource(ctx, store, res.Source)
	results = append(results, CheckResult{Name: "source", OK: ok, Detail: detail})

	ok, detail = checkDestination(ctx, store, res.Destination)
	results = append(results, CheckResult{Name: "destination", OK: ok, Detail: detail})

	results = append(results, CheckResult{
		Name: "capacity",
		OK:   true,
		Detail: fmt.Sprintf("up to %s per archive (%d parts of %s)",
			humanize.IBytes(uint64(res.MaxArchiveBytes(cfg.MaxParts))), cfg.MaxParts, humanize.IBytes(uint64(res.BufferBytes))),
	})

	compression, err := archive.ParseCompression(cfg.Compression, cfg.Algorithm)
	if err != nil {
		results = append(results, CheckResult{Name: "compression", OK: false, Detail: err.Error()})
		return results
	}
	memory := compression.MemoryEstimate() + int64(cfg.Concurrency)*res.BufferBytes
	results = append(results, CheckResult{
		Name:   "compression",
		OK:     true,
		Detail: fmt.Sprintf("%s, about %s of memory needed", compression, humanize.IBytes(uint64(memory))),
	})
	return results
}

// Failed reports whether any check failed.
func Failed(results []CheckResult) bool {
	for _, r := range results {
		if !r.OK {
			return true
		}
	}
	return false
}

func checkSource(ctx context.Context, store objstore.Store, loc config.Location) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	page, err := store.ListObjects(ctx, loc.Bucket, loc.ListPrefix(), "")
	if err != nil {
		return false, fmt.Sprintf("list %s failed: %v", loc, err)
	}
	more := ""
	if page.NextToken != "" {
		more = "+"
	}
	return true, fmt.Sprintf("%s listed (%d%s objects on the first page)", loc, len(page.Objects), more)
}

func checkDestination(ctx context.Context, store objstore.Store, loc config.Location) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	key := loc.Key(probeName)
	id, err := store.CreateMultipartUpload(ctx, loc.Bucket, key, objstore.UploadOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return false, fmt.Sprintf("create multipart upload in %s failed: %v", loc, err)
	}
	if err := store.AbortMultipartUpload(ctx, loc.Bucket, key, id); err != nil {
		return false, fmt.Sprintf("abort multipart upload %s failed, remove it manually: %v", id, err)
	}
	return true, fmt.Sprintf("%s accepts multipart uploads", loc)
}
