// Package memstore is an in-memory objstore.Store with fault injection,
// used to drive the archive pipeline in tests.
package memstore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ObjArchiver/internal/objstore"
)

type object struct {
	data         []byte
	lastModified time.Time
	contentType  string
	metadata     map[string]string
}

type upload struct {
	bucket string
	key    string
	opts   objstore.UploadOptions
	parts  map[int32][]byte
}

// Store keeps buckets in memory. The zero value is not usable; call New.
type Store struct {
	mu       sync.Mutex
	buckets  map[string]map[string]*object
	uploads  map[string]*upload
	pageSize int

	// Fault injection, consulted before each call.
	FailListPage      map[int]error
	FailGet           map[string]error
	FailGetTimes      map[string]int
	FailUploadPart    map[int32]error
	FailComplete      error
	FailCreate        error
	TruncateGet       map[string]int
	BreakGetAfter     map[string]int
	UploadPartLatency time.Duration

	listCalls  int
	getCalls   map[string]int
	partCalls  map[int32]int
	aborted    []string
	completed  []string
	maxPartNum int32
}

func New() *Store {
	return &Store{
		buckets:   make(map[string]map[string]*object),
		uploads:   make(map[string]*upload),
		pageSize:  1000,
		getCalls:  make(map[string]int),
		partCalls: make(map[int32]int),
	}
}

// SetPageSize caps the number of keys per ListObjects page.
func (s *Store) SetPageSize(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pageSize = n
}

func (s *Store) Put(bucket, key string, data []byte, modified time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucket]
	if !ok {
		b = make(map[string]*object)
		s.buckets[bucket] = b
	}
	b[key] = &object{data: append([]byte(nil), data...), lastModified: modified}
}

func (s *Store) Delete(bucket, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets[bucket], key)
}

// Object returns the stored bytes of a completed object.
func (s *Store) Object(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.buckets[bucket][key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// ObjectAttrs returns the content type and metadata stored with key.
func (s *Store) ObjectAttrs(bucket, key string) (string, map[string]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.buckets[bucket][key]
	if !ok {
		return "", nil, false
	}
	return obj.contentType, obj.metadata, true
}

func (s *Store) Keys(bucket string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.buckets[bucket]))
	for k := range s.buckets[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) PendingUploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

func (s *Store) Aborted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.aborted...)
}

func (s *Store) Completed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.completed...)
}

func (s *Store) ListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func (s *Store) GetCalls(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls[key]
}

func (s *Store) PartCalls(n int32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partCalls[n]
}

// HighestPartNumber is the largest part number ever sent to UploadPart.
func (s *Store) HighestPartNumber() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxPartNum
}

func (s *Store) ListObjects(ctx context.Context, bucket, prefix, token string) (*objstore.ListPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	page := s.listCalls
	s.listCalls++
	if err, ok := s.FailListPage[page]; ok {
		return nil, objstore.NewError("ListObjectsV2", bucket, "", kindOf(err), err)
	}

	b, ok := s.buckets[bucket]
	if !ok {
		return nil, objstore.NewError("ListObjectsV2", bucket, "", objstore.ErrObjectMissing, errors.New("NoSuchBucket"))
	}

	keys := make([]string, 0, len(b))
	for k := range b {
		if strings.HasPrefix(k, prefix) && k > token {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &objstore.ListPage{}
	for i, k := range keys {
		if i == s.pageSize {
			out.NextToken = keys[i-1]
			break
		}
		obj := b[k]
		out.Objects = append(out.Objects, objstore.ObjectInfo{
			Key:          k,
			Size:         int64(len(obj.data)),
			LastModified: obj.lastModified,
		})
	}
	return out, nil
}

func (s *Store) GetObject(ctx context.Context, bucket, key string, offset int64) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.getCalls[key]++
	if err, ok := s.FailGet[key]; ok {
		if n, limited := s.FailGetTimes[key]; !limited || n > 0 {
			if limited {
				s.FailGetTimes[key] = n - 1
			}
			return nil, objstore.NewError("GetObject", bucket, key, kindOf(err), err)
		}
	}

	obj, ok := s.buckets[bucket][key]
	if !ok {
		return nil, objstore.NewError("GetObject", bucket, key, objstore.ErrObjectMissing, errors.New("NoSuchKey"))
	}
	if offset > int64(len(obj.data)) {
		return nil, objstore.NewError("GetObject", bucket, key, nil, fmt.Errorf("range %d not satisfiable", offset))
	}

	data := obj.data[offset:]
	if n, ok := s.TruncateGet[key]; ok && n < len(data) {
		data = data[:n]
	}
	if n, ok := s.BreakGetAfter[key]; ok {
		delete(s.BreakGetAfter, key)
		if n < len(data) {
			return io.NopCloser(&brokenReader{r: bytes.NewReader(data[:n]), bucket: bucket, key: key}), nil
		}
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), data...))), nil
}

func (s *Store) CreateMultipartUpload(ctx context.Context, bucket, key string, opts objstore.UploadOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailCreate != nil {
		return "", objstore.NewError("CreateMultipartUpload", bucket, key, kindOf(s.FailCreate), s.FailCreate)
	}
	id := uuid.NewString()
	s.uploads[id] = &upload{bucket: bucket, key: key, opts: opts, parts: make(map[int32][]byte)}
	return id, nil
}

func (s *Store) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, body []byte) (objstore.CompletedPart, error) {
	if s.UploadPartLatency > 0 {
		select {
		case <-ctx.Done():
			return objstore.CompletedPart{}, ctx.Err()
		case <-time.After(s.UploadPartLatency):
		}
	}
	if err := ctx.Err(); err != nil {
		return objstore.CompletedPart{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.partCalls[partNumber]++
	if partNumber > s.maxPartNum {
		s.maxPartNum = partNumber
	}
	if err, ok := s.FailUploadPart[partNumber]; ok {
		return objstore.CompletedPart{}, objstore.NewError("UploadPart", bucket, key, kindOf(err), err)
	}
	u, ok := s.uploads[uploadID]
	if !ok {
		return objstore.CompletedPart{}, objstore.NewError("UploadPart", bucket, key, nil, errors.New("NoSuchUpload"))
	}
	u.parts[partNumber] = append([]byte(nil), body...)
	sum := md5.Sum(body)
	return objstore.CompletedPart{
		PartNumber: partNumber,
		ETag:       `"` + hex.EncodeToString(sum[:]) + `"`,
		Size:       int64(len(body)),
	}, nil
}

func (s *Store) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []objstore.CompletedPart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailComplete != nil {
		return objstore.NewError("CompleteMultipartUpload", bucket, key, kindOf(s.FailComplete), s.FailComplete)
	}
	u, ok := s.uploads[uploadID]
	if !ok {
		return objstore.NewError("CompleteMultipartUpload", bucket, key, nil, errors.New("NoSuchUpload"))
	}
	if len(parts) == 0 {
		return objstore.NewError("CompleteMultipartUpload", bucket, key, nil, errors.New("MalformedXML: no parts"))
	}

	var buf bytes.Buffer
	prev := int32(0)
	for _, p := range parts {
		if p.PartNumber <= prev {
			return objstore.NewError("CompleteMultipartUpload", bucket, key, nil, errors.New("InvalidPartOrder"))
		}
		prev = p.PartNumber
		data, ok := u.parts[p.PartNumber]
		if !ok {
			return objstore.NewError("CompleteMultipartUpload", bucket, key, nil, fmt.Errorf("InvalidPart: %d", p.PartNumber))
		}
		buf.Write(data)
	}

	bk, ok := s.buckets[bucket]
	if !ok {
		bk = make(map[string]*object)
		s.buckets[bucket] = bk
	}
	bk[key] = &object{
		data:         buf.Bytes(),
		lastModified: time.Now(),
		contentType:  u.opts.ContentType,
		metadata:     u.opts.Metadata,
	}
	delete(s.uploads, uploadID)
	s.completed = append(s.completed, uploadID)
	return nil
}

func (s *Store) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.uploads[uploadID]; !ok {
		return objstore.NewError("AbortMultipartUpload", bucket, key, nil, errors.New("NoSuchUpload"))
	}
	delete(s.uploads, uploadID)
	s.aborted = append(s.aborted, uploadID)
	return nil
}

// brokenReader yields its data then fails like a dropped connection.
type brokenReader struct {
	r      *bytes.Reader
	bucket string
	key    string
}

func (b *brokenReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err == io.EOF {
		return n, objstore.NewError("GetObject", b.bucket, b.key, objstore.ErrStoreUnavailable, io.ErrUnexpectedEOF)
	}
	return n, err
}

func kindOf(err error) error {
	for _, kind := range []error{objstore.ErrStoreUnavailable, objstore.ErrAccessDenied, objstore.ErrObjectMissing} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
