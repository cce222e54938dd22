package scrim

import (
	"errors"

	"github.com/gogpu/scrim/capture"
	"github.com/gogpu/scrim/effect"
	"github.com/gogpu/scrim/gpucore"
	"github.com/gogpu/scrim/internal/resource"
	"github.com/gogpu/scrim/surface"
)

var (
	// ErrFatal wraps errors that end the render loop: device loss and
	// presentation failures.
	ErrFatal = errors.New("scrim: fatal")

	// ErrUnknownEffect is returned by SelectEffect for a hotkey with no
	// effect bound to it.
	ErrUnknownEffect = errors.New("scrim: no effect bound to hotkey")

	// ErrClosed is returned by operations on a closed Compositor.
	ErrClosed = errors.New("scrim: compositor closed")
)

// ErrorClass groups errors by how the compositor handles them.
type ErrorClass int

const (
	// ClassNone is the class of a nil error.
	ClassNone ErrorClass = iota

	// ClassTransient errors are ignored; the previous staging is reused.
	ClassTransient

	// ClassRecoverableSession errors reinitialize the frame source.
	ClassRecoverableSession

	// ClassResource errors keep or retry the previous allocation.
	ClassResource

	// ClassConfiguration errors exclude an effect at registry build.
	ClassConfiguration

	// ClassFatal errors stop Run.
	ClassFatal
)

// String returns the class name.
func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassTransient:
		return "transient"
	case ClassRecoverableSession:
		return "recoverable-session"
	case ClassResource:
		return "resource"
	case ClassConfiguration:
		return "configuration"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify returns the class of err. Errors from outside the taxonomy are
// fatal.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrFatal), errors.Is(err, gpucore.ErrDeviceLost), errors.Is(err, surface.ErrSurface):
		return ClassFatal
	case errors.Is(err, resource.ErrResource), errors.Is(err, gpucore.ErrOutOfMemory):
		return ClassResource
	case errors.Is(err, capture.ErrLostAccess), errors.Is(err, capture.ErrNotStarted):
		return ClassRecoverableSession
	case errors.Is(err, effect.ErrConfiguration), errors.Is(err, ErrUnknownEffect):
		return ClassConfiguration
	case errors.Is(err, capture.ErrNoNewFrame):
		return ClassTransient
	default:
		return ClassFatal
	}
}
