// Package notifier announces finished archive runs to downstream consumers.
package notifier

import (
	"context"

	"ObjArchiver/internal/engine/archive"
)

type Notifier interface {
	NotifySuccess(ctx context.Context, s *archive.Summary) error
	NotifyFailure(ctx context.Context, runID, source string, err error) error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) NotifySuccess(context.Context, *archive.Summary) error { return nil }

func (Nop) NotifyFailure(context.Context, string, string, error) error { return nil }
