// Package capture provides the frame sources that feed the compositor with
// desktop pixels.
//
// A Source runs its own producer goroutine and publishes into a Mailbox.
// The render goroutine pulls the newest frame with TryAcquireLatestFrame,
// which waits at most one frame interval.
package capture

import (
	"context"
	"errors"
	"image"
)

// Errors returned by TryAcquireLatestFrame.
var (
	// ErrNoNewFrame means nothing newer than the previous frame was
	// produced within the wait. The consumer keeps what it has.
	ErrNoNewFrame = errors.New("capture: no new frame")

	// ErrLostAccess means the capture session was invalidated, for example
	// by a display mode change or a dropped connection. The consumer calls
	// Stop and Start to reinitialize.
	ErrLostAccess = errors.New("capture: lost access")

	// ErrNotStarted is returned when acquiring from a source that is not running.
	ErrNotStarted = errors.New("capture: source not started")
)

// Source produces desktop frames.
type Source interface {
	// Start begins (or restarts) producing frames.
	Start() error

	// Stop halts production and drops any pending frame.
	Stop() error

	// TryAcquireLatestFrame returns the newest frame not returned before.
	// It waits at most one frame interval or until ctx is done, and
	// returns ErrNoNewFrame or ErrLostAccess otherwise. The caller owns
	// the returned frame and must Release it.
	TryAcquireLatestFrame(ctx context.Context) (*Frame, error)

	// DesktopSize returns the size of the captured area.
	DesktopSize() (width, height int)

	// Lost reports whether the session is invalidated.
	Lost() bool
}

// Bounded is implemented by sources whose captured area does not start at
// the desktop origin, such as a single monitor.
type Bounded interface {
	// Bounds returns the captured area in desktop coordinates.
	Bounds() image.Rectangle
}
