package archive

import (
	"errors"
	"fmt"
)

// Pipeline failure kinds, matched with errors.Is. Store kinds live in objstore.
var (
	// ErrArchiveFraming is an entry whose content did not match its header.
	ErrArchiveFraming = errors.New("archive framing")
	// ErrUploadFailure is a part upload or completion that could not be made.
	ErrUploadFailure = errors.New("upload failure")
	// ErrTooManyParts means the archive does not fit in buffer × max parts.
	ErrTooManyParts = errors.New("archive exceeds the multipart part limit")
	// ErrObjectTooLarge means the archive exceeds the store's object size limit.
	ErrObjectTooLarge = errors.New("archive exceeds the maximum object size")
)

type Stage string

const (
	StageList      Stage = "list"
	StageRead      Stage = "read"
	StageFrame     Stage = "frame"
	StageCompress  Stage = "compress"
	StageUpload    Stage = "upload"
	StagePreflight Stage = "preflight"
)

// StageError names the pipeline stage, and the source key when there is one,
// responsible for a fatal error.
type StageError struct {
	Stage Stage
	Key   string
	Err   error
}

func (e *StageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s stage failed on %q: %v", e.Stage, e.Key, e.Err)
	}
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, key string, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Key: key, Err: err}
}

// StageOf returns the stage recorded in err, if any.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
