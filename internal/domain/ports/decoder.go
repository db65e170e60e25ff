// Package ports holds the capability interfaces the engine consumes from
// collaborators it does not own, mirroring the teacher's split between
// domain data types and the contracts collaborators must satisfy.
package ports

import (
	"context"
	"time"

	"videoengine/internal/domain"
)

// Decoder is the capability set the engine requires of an underlying
// codec/container library (spec §6). Any implementation satisfying this is
// acceptable; the engine only depends on this interface, never a concrete
// library.
type Decoder interface {
	// Open opens path and returns its MediaInfo, or a domain.FileUnsupported
	// error if the decoder refuses the file.
	Open(ctx context.Context, path string) (domain.MediaInfo, error)

	// PositionTo sets the next read to start at index. Safe to call with the
	// already-current index (may be a no-op). Returns the measured seek time.
	PositionTo(ctx context.Context, index int) (time.Duration, error)

	// ReadNext returns the frame at the current position and advances.
	// ok is false at end-of-stream or on an unreadable frame.
	ReadNext(ctx context.Context) (frame domain.Frame, ok bool, readTime time.Duration, err error)

	Close() error
}

// Clock abstracts wall-clock time so the Pacer and Supervisor are testable
// without real sleeps.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}
