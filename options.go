package scrim

import (
	"image"
	"time"

	"github.com/gogpu/scrim/surface"
)

// Defaults used when no option overrides them.
const (
	DefaultRefreshRate   = 60
	DefaultEffectHotkey  = 2
	maxRefreshRate       = 1000
	defaultSurfaceWidth  = 800
	defaultSurfaceHeight = 600
)

// PauseHook is notified on every pause transition. It runs on the render
// goroutine.
type PauseHook func(paused bool)

// Option configures a Compositor during creation.
//
// Example:
//
//	c, err := scrim.New(adapter, source, effect.Builtin(effect.TilesOptions{}),
//	    scrim.WithRefreshRate(30),
//	    scrim.WithDefaultEffect(1),
//	    scrim.WithSurface(ts),
//	)
type Option func(*options)

type options struct {
	refreshRate   int
	defaultEffect int
	surface       surface.Surface
	pauseHook     PauseHook
	reportHook    func(FrameReport)
	clock         func() time.Time
	region        *image.Rectangle
}

func defaultOptions() options {
	return options{
		refreshRate:   DefaultRefreshRate,
		defaultEffect: DefaultEffectHotkey,
		clock:         time.Now,
	}
}

func (o options) interval() time.Duration {
	return time.Second / time.Duration(o.refreshRate)
}

// WithRefreshRate sets how many frames per second Run renders. Values
// outside 1..1000 are ignored.
func WithRefreshRate(hz int) Option {
	return func(o *options) {
		if hz > 0 && hz <= maxRefreshRate {
			o.refreshRate = hz
		}
	}
}

// WithDefaultEffect sets the hotkey active at start. If no effect is bound
// to it the first effect is used.
func WithDefaultEffect(hotkey int) Option {
	return func(o *options) {
		o.defaultEffect = hotkey
	}
}

// WithSurface sets the presentation surface. Without it frames go to an
// in-memory image surface.
func WithSurface(s surface.Surface) Option {
	return func(o *options) {
		o.surface = s
	}
}

// WithPauseHook registers the collaborator notified on pause transitions.
func WithPauseHook(h PauseHook) Option {
	return func(o *options) {
		o.pauseHook = h
	}
}

// WithReportHook registers a function called with every FrameReport that
// Run produces.
func WithReportHook(h func(FrameReport)) Option {
	return func(o *options) {
		o.reportHook = h
	}
}

// WithClock replaces time.Now as the source of the effect time uniform.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

// WithRegion sets the initial capture region in desktop coordinates. Without
// it the region covers the source's desktop from the origin.
func WithRegion(r image.Rectangle) Option {
	return func(o *options) {
		r = r.Canon()
		o.region = &r
	}
}
