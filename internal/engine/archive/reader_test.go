package archive

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ObjArchiver/internal/logger"
	"ObjArchiver/internal/objstore"
	"ObjArchiver/internal/objstore/memstore"
)

func entryFor(key string, size int64) Entry {
	return Entry{ObjectInfo: objstore.ObjectInfo{Key: key, Size: size}, Name: key}
}

func TestObjectStream_ReadsDeclaredSize(t *testing.T) {
	store := memstore.New()
	store.Put("b", "k", []byte("hello"), time.Now())
	r := newObjectReader(store, testRetrier(), logger.NewNop(), "b")

	s, err := r.Open(context.Background(), entryFor("k", 5))
	require.NoError(t, err)
	defer s.Close()
	data, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.NoError(t, s.Finish())
}

func TestObjectStream_GrownObjectIsFramingError(t *testing.T) {
	store := memstore.New()
	store.Put("b", "k", []byte("hello world"), time.Now())
	r := newObjectReader(store, testRetrier(), logger.NewNop(), "b")

	s, err := r.Open(context.Background(), entryFor("k", 5))
	require.NoError(t, err)
	data, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	err = s.Finish()
	require.ErrorIs(t, err, ErrArchiveFraming)
	stage, _ := StageOf(err)
	assert.Equal(t, StageFrame, stage)
}

func TestObjectStream_ShrunkObjectIsFramingError(t *testing.T) {
	store := memstore.New()
	store.Put("b", "k", []byte("hi"), time.Now())
	r := newObjectReader(store, testRetrier(), logger.NewNop(), "b")

	s, err := r.Open(context.Background(), entryFor("k", 5))
	require.NoError(t, err)
	_, err = io.ReadAll(s)
	assert.ErrorIs(t, err, ErrArchiveFraming)
}

func TestObjectStream_ResumeBudget(t *testing.T) {
	store := memstore.New()
	store.Put("b", "k", []byte("0123456789"), time.Now())
	store.BreakGetAfter = map[string]int{"k": 4}
	r := newObjectReader(store, testRetrier(), logger.NewNop(), "b")
	r.maxResumes = 0

	s, err := r.Open(context.Background(), entryFor("k", 10))
	require.NoError(t, err)
	_, err = io.ReadAll(s)
	require.ErrorIs(t, err, objstore.ErrStoreUnavailable)
	stage, _ := StageOf(err)
	assert.Equal(t, StageRead, stage)
}

func TestObjectReader_MissingObject(t *testing.T) {
	r := newObjectReader(memstore.New(), testRetrier(), logger.NewNop(), "b")
	_, err := r.Open(context.Background(), entryFor("gone", 1))
	assert.True(t, objstore.IsObjectMissing(err))
}
