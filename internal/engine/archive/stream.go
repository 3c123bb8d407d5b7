package archive

import (
	"context"
	"errors"
	"io"
)

var errStageClosed = errors.New("stream stage closed")

// stage runs a producer in its own goroutine and exposes its output as a
// reader. Writes block until the consumer reads, so a stage never runs ahead
// of its downstream. A stage owns its upstream and closes it on Close.
type stage struct {
	pr       *io.PipeReader
	upstream io.Closer
	done     chan struct{}
}

func newStage(ctx context.Context, upstream io.Closer, produce func(ctx context.Context, w io.Writer) error) *stage {
	pr, pw := io.Pipe()
	s := &stage{pr: pr, upstream: upstream, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		if err := produce(ctx, pw); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.Close()
	}()
	return s
}

func (s *stage) Read(p []byte) (int, error) {
	return s.pr.Read(p)
}

// Close stops the producer, closes the upstream and waits for the producer
// goroutine to exit.
func (s *stage) Close() error {
	_ = s.pr.CloseWithError(errStageClosed)
	var err error
	if s.upstream != nil {
		err = s.upstream.Close()
	}
	<-s.done
	return err
}
