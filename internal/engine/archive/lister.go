package archive

import (
	"context"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"ObjArchiver/internal/objstore"
)

// Entry is one listed object that qualifies for the archive.
type Entry struct {
	objstore.ObjectInfo
	// Name is the path inside the archive: the key relative to the source
	// prefix, never starting with "/".
	Name string
}

// Lister pages through a bucket prefix and yields qualifying entries in
// listing order. Continuation tokens stay internal.
type Lister struct {
	store     objstore.Store
	retrier   *objstore.Retrier
	log       *zap.SugaredLogger
	bucket    string
	prefix    string
	cutoff    time.Time
	hasCutoff bool

	page    []objstore.ObjectInfo
	token   string
	started bool
	done    bool

	listed   int64
	filtered int64
}

func newLister(store objstore.Store, retrier *objstore.Retrier, log *zap.SugaredLogger, bucket, prefix string, cutoff time.Time, hasCutoff bool) *Lister {
	return &Lister{
		store:     store,
		retrier:   retrier,
		log:       log,
		bucket:    bucket,
		prefix:    prefix,
		cutoff:    cutoff,
		hasCutoff: hasCutoff,
	}
}

// Next returns the next qualifying entry, or io.EOF after the last one.
func (l *Lister) Next(ctx context.Context) (Entry, error) {
	for {
		for len(l.page) > 0 {
			obj := l.page[0]
			l.page = l.page[1:]
			l.listed++

			if l.hasCutoff && !obj.LastModified.Before(l.cutoff) {
				l.filtered++
				continue
			}
			name := entryName(obj.Key, l.prefix)
			if name == "" {
				l.log.Debugw("skipping prefix marker", "key", obj.Key)
				continue
			}
			if ambiguousName(obj.Key, l.prefix, name) {
				l.log.Warnw("key has repeated slashes, its archive name may collide with another key",
					"key", obj.Key, "name", name)
			}
			return Entry{ObjectInfo: obj, Name: name}, nil
		}

		if l.done {
			return Entry{}, io.EOF
		}
		if err := l.fetch(ctx); err != nil {
			return Entry{}, stageError(StageList, "", err)
		}
	}
}

func (l *Lister) fetch(ctx context.Context) error {
	if l.started && l.token == "" {
		l.done = true
		return nil
	}
	var page *objstore.ListPage
	err := l.retrier.Do(ctx, "ListObjects", func(ctx context.Context) error {
		var err error
		page, err = l.store.ListObjects(ctx, l.bucket, l.prefix, l.token)
		return err
	})
	if err != nil {
		return err
	}
	l.started = true
	l.page = page.Objects
	l.token = page.NextToken
	if l.token == "" {
		l.done = true
	}
	l.log.Debugw("listed page", "objects", len(page.Objects), "more", !l.done)
	return nil
}

// Listed is the number of objects seen so far, qualifying or not.
func (l *Lister) Listed() int64 {
	return l.listed
}

// Filtered is the number of objects excluded by the cutoff.
func (l *Lister) Filtered() int64 {
	return l.filtered
}

func entryName(key, prefix string) string {
	return strings.TrimLeft(strings.TrimPrefix(key, prefix), "/")
}

// ambiguousName reports whether name was derived from a key whose slashes
// were dropped or would be folded on extraction, so that another key can map
// to the same member, e.g. logs//a and logs/a.
func ambiguousName(key, prefix, name string) bool {
	return name != strings.TrimPrefix(key, prefix) || strings.Contains(name, "//")
}
