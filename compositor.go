package scrim

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/scrim/capture"
	"github.com/gogpu/scrim/effect"
	"github.com/gogpu/scrim/gpucore"
	"github.com/gogpu/scrim/internal/edgepad"
	"github.com/gogpu/scrim/internal/resource"
	"github.com/gogpu/scrim/surface"
)

// Compositor captures the desktop under a region, runs the active effect
// over it on the GPU and presents the result.
//
// RenderFrame and Run must be called from a single goroutine, the render
// goroutine, which owns every GPU resource. SelectEffect, TogglePause,
// WindowRegionChanged, LatestFrame and Status are safe from any goroutine.
type Compositor struct {
	adapter  gpucore.GPUAdapter
	source   capture.Source
	res      *resource.Manager
	registry *effect.Registry
	pad      *edgepad.Pass
	uniforms gpucore.BufferID
	surface  surface.Surface
	opts     options

	// Latches written by collaborators, read by the render goroutine.
	active         atomic.Int32
	pauseRequested atomic.Bool
	dimsChanged    atomic.Bool
	region         atomic.Pointer[image.Rectangle]

	// Render goroutine state.
	frames      uint64
	sourceUp    bool
	needsReinit bool
	paused      bool
	pausedAt    time.Time
	pausedTotal time.Duration
	start       time.Time
	current     image.Rectangle
	generation  uint64
	valid       image.Rectangle
	closed      bool

	// stagingFailed is the size whose allocation failure was last warned
	// about; zero after a successful EnsureCapacity.
	stagingFailed image.Point

	mu     sync.Mutex
	latest *image.RGBA
	status Status
}

// Status is a point-in-time summary for control surfaces.
type Status struct {
	Frames uint64
	Effect string
	Hotkey int
	Paused bool
	Region image.Rectangle
	Valid  image.Rectangle
}

// New builds a compositor over adapter and source. Effects that fail to
// initialize are excluded; New fails only if none survive or if the shared
// passes cannot be built.
func New(adapter gpucore.GPUAdapter, source capture.Source, effects []effect.Effect, opts ...Option) (*Compositor, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	res, err := resource.NewManager(adapter)
	if err != nil {
		return nil, fmt.Errorf("scrim: %w", err)
	}
	c := &Compositor{adapter: adapter, source: source, res: res, opts: o}

	if c.registry, err = effect.NewRegistry(adapter, res, effects...); err != nil {
		c.Close()
		return nil, fmt.Errorf("scrim: %w", err)
	}
	if c.pad, err = edgepad.New(adapter); err != nil {
		c.Close()
		return nil, fmt.Errorf("scrim: %w", err)
	}
	if c.uniforms, err = adapter.CreateBuffer("uniforms", effect.UniformSize, gpucore.BufferUsageUniform|gpucore.BufferUsageCopyDst); err != nil {
		c.Close()
		return nil, fmt.Errorf("scrim: uniforms: %w", err)
	}

	region := o.region
	if region == nil {
		w, h := source.DesktopSize()
		r := image.Rect(0, 0, w, h)
		if b, ok := source.(capture.Bounded); ok {
			r = b.Bounds()
		}
		region = &r
	}
	c.region.Store(region)
	c.dimsChanged.Store(true)

	c.surface = o.surface
	if c.surface == nil {
		w, h := max(region.Dx(), defaultSurfaceWidth), max(region.Dy(), defaultSurfaceHeight)
		if c.surface, err = surface.New(surface.KindImage, w, h); err != nil {
			c.Close()
			return nil, fmt.Errorf("scrim: %w", err)
		}
	}

	if err := c.SelectEffect(o.defaultEffect); err != nil {
		Logger().Warn("scrim: default effect unavailable, using the first", "hotkey", o.defaultEffect)
		c.active.Store(1)
	}
	for _, ex := range c.registry.Excluded() {
		Logger().Warn("scrim: effect excluded", "effect", ex.Name, "err", ex.Err)
	}
	c.start = o.clock()
	return c, nil
}

// Registry returns the effect registry.
func (c *Compositor) Registry() *effect.Registry { return c.registry }

// SelectEffect makes the effect bound to hotkey active from the next frame
// that reaches Effecting.
func (c *Compositor) SelectEffect(hotkey int) error {
	e, ok := c.registry.Lookup(hotkey)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownEffect, hotkey)
	}
	c.active.Store(int32(hotkey)) //nolint:gosec // hotkeys are 1..9
	Logger().Debug("scrim: effect selected", "hotkey", hotkey, "effect", e.Descriptor.Name)
	return nil
}

// TogglePause flips the pause latch and returns the requested state.
func (c *Compositor) TogglePause() bool {
	for {
		old := c.pauseRequested.Load()
		if c.pauseRequested.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// WindowRegionChanged records the desktop rectangle now covered by the
// overlay. The staging images follow it on the next frame.
func (c *Compositor) WindowRegionChanged(r image.Rectangle) {
	r = r.Canon()
	c.region.Store(&r)
	c.dimsChanged.Store(true)
}

// LatestFrame returns a copy of the last presented output, or nil before
// the first one.
func (c *Compositor) LatestFrame() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return nil
	}
	out := *c.latest
	out.Pix = append([]byte(nil), c.latest.Pix...)
	return &out
}

// Status returns a summary of the last rendered frame.
func (c *Compositor) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.status
	s.Paused = c.pauseRequested.Load()
	if e, ok := c.registry.Lookup(int(c.active.Load())); ok {
		s.Effect, s.Hotkey = e.Descriptor.Name, e.Hotkey()
	}
	return s
}

// Run renders frames at the configured refresh rate until ctx is done. It
// returns nil on cancellation and the error of the first fatal frame
// otherwise.
func (c *Compositor) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.interval())
	defer ticker.Stop()
	Logger().Info("scrim: render loop started", "refresh_hz", c.opts.refreshRate)
	for {
		rep := c.RenderFrame(ctx)
		if c.opts.reportHook != nil {
			c.opts.reportHook(rep)
		}
		if Classify(rep.Err) == ClassFatal {
			Logger().Error("scrim: render loop stopped", "err", rep.Err)
			return rep.Err
		}
		if ctx.Err() != nil {
			Logger().Info("scrim: render loop stopped")
			return nil
		}
		select {
		case <-ctx.Done():
			Logger().Info("scrim: render loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RenderFrame runs the state machine once.
func (c *Compositor) RenderFrame(ctx context.Context) FrameReport {
	c.frames++
	rep := FrameReport{Frame: c.frames}
	if c.closed {
		rep.Err = fmt.Errorf("%w: %w", ErrFatal, ErrClosed)
		return rep
	}

	if paused := c.pauseRequested.Load(); paused != c.paused {
		c.setPaused(paused)
	}
	if c.paused {
		rep.enter(StatePaused)
		rep.Paused = true
		return rep
	}

	rep.enter(StateCapturing)
	f := c.acquire(ctx, &rep)

	rep.enter(StateStaging)
	regionChanged := false
	if c.dimsChanged.Swap(false) {
		if r := *c.region.Load(); r != c.current {
			c.current = r
			regionChanged = true
		}
	}
	size := c.current.Size()
	st, err := c.res.EnsureCapacity(size.X, size.Y)
	if err == nil {
		c.stagingFailed = image.Point{}
	} else if c.failStaging(&rep, err, size) {
		f.Release()
		return rep
	}
	if f != nil {
		if err := c.res.UploadFrame(f); err != nil {
			if c.fail(&rep, err) {
				return rep
			}
		} else {
			rep.Fresh = true
		}
	}
	if !st.Valid() {
		// Nothing to render into. Make sure the device is still there so a
		// lost device does not pass for a resource shortage.
		if err := c.adapter.WaitIdle(); err != nil {
			c.fail(&rep, err)
		}
		return rep
	}

	enc := gpucore.NewEncoder(c.adapter)
	if rep.Fresh || regionChanged || st.Generation != c.generation {
		valid, err := c.res.CopyRegion(enc, c.current, st)
		if err != nil {
			enc.Discard()
			c.fail(&rep, err)
			return rep
		}
		c.valid, c.generation = valid, st.Generation
		if edgepad.NeedsPad(st.Input, valid) {
			rep.enter(StatePadding)
			if err := c.pad.Pad(enc, st.Input, valid); err != nil {
				enc.Discard()
				c.fail(&rep, err)
				return rep
			}
		}
	}
	rep.Valid = c.valid

	rep.enter(StateEffecting)
	// The only read of the active effect during a frame.
	hotkey := int(c.active.Load())
	entry, _ := c.registry.Lookup(hotkey)
	rep.Effect, rep.Hotkey = entry.Descriptor.Name, hotkey
	u := effect.Uniforms{
		Time:   float32(c.elapsed().Seconds()),
		Width:  uint32(st.Input.Width),  //nolint:gosec // image dimensions are positive
		Height: uint32(st.Input.Height), //nolint:gosec // image dimensions are positive
		Frame:  uint32(c.frames),        //nolint:gosec // frame counter wraps
	}
	if err := c.adapter.WriteBuffer(c.uniforms, 0, u.Bytes()); err != nil {
		enc.Discard()
		c.fail(&rep, err)
		return rep
	}
	if err := c.registry.Apply(hotkey, enc, st.Input, st.Output, c.uniforms); err != nil {
		enc.Discard()
		c.fail(&rep, err)
		return rep
	}
	if err := enc.Finish(); err != nil {
		c.fail(&rep, err)
		return rep
	}

	rep.enter(StatePresenting)
	out, err := c.res.ReadOutput()
	if err != nil {
		c.fail(&rep, err)
		return rep
	}
	c.publish(out, rep)
	if err := c.surface.Present(out); err != nil {
		c.fail(&rep, err)
		return rep
	}
	Logger().Debug("scrim: frame", "n", rep.Frame, "trace", rep.Trace(), "effect", rep.Effect, "fresh", rep.Fresh)
	return rep
}

// acquire polls the source, restarting it first if the session was lost.
func (c *Compositor) acquire(ctx context.Context, rep *FrameReport) *capture.Frame {
	if !c.sourceUp || c.needsReinit {
		if !c.reinit(rep) {
			return nil
		}
	}
	f, err := c.source.TryAcquireLatestFrame(ctx)
	switch {
	case err == nil:
		return f
	case errors.Is(err, capture.ErrNoNewFrame):
		return nil
	case !errors.Is(err, capture.ErrLostAccess) && !errors.Is(err, capture.ErrNotStarted):
		err = fmt.Errorf("%w: %w", capture.ErrLostAccess, err)
	}
	rep.Err = err
	Logger().Warn("scrim: capture session lost", "err", err)
	c.needsReinit = true
	c.reinit(rep)
	return nil
}

// reinit stops and restarts the source. A failure leaves needsReinit set so
// the next frame tries again.
func (c *Compositor) reinit(rep *FrameReport) bool {
	if c.sourceUp {
		if err := c.source.Stop(); err != nil {
			Logger().Warn("scrim: stop source", "err", err)
		}
	}
	if err := c.source.Start(); err != nil {
		c.sourceUp, c.needsReinit = false, true
		rep.Err = fmt.Errorf("%w: restart: %w", capture.ErrLostAccess, err)
		Logger().Warn("scrim: capture restart failed", "err", err)
		return false
	}
	if c.needsReinit {
		rep.Reinitialized = true
		Logger().Info("scrim: capture session restarted")
	} else {
		Logger().Info("scrim: capture started")
	}
	c.sourceUp, c.needsReinit = true, false
	return true
}

// fail records err on rep, wrapping it in ErrFatal when it ends the loop.
// It reports whether the frame must stop.
func (c *Compositor) fail(rep *FrameReport, err error) bool {
	switch Classify(err) {
	case ClassFatal:
		if !errors.Is(err, ErrFatal) {
			err = fmt.Errorf("%w: %w", ErrFatal, err)
		}
		rep.Err = err
		return true
	default:
		rep.Err = err
		Logger().Warn("scrim: frame", "n", rep.Frame, "err", err)
		return false
	}
}

// failStaging is fail for EnsureCapacity errors. A resource shortage is
// warned about once per requested size and logged at Debug while it lasts.
func (c *Compositor) failStaging(rep *FrameReport, err error, size image.Point) bool {
	if Classify(err) != ClassResource {
		return c.fail(rep, err)
	}
	rep.Err = err
	if size == c.stagingFailed {
		Logger().Debug("scrim: frame", "n", rep.Frame, "err", err)
		return false
	}
	c.stagingFailed = size
	Logger().Warn("scrim: frame", "n", rep.Frame, "err", err)
	return false
}

func (c *Compositor) setPaused(paused bool) {
	now := c.opts.clock()
	if paused {
		c.pausedAt = now
	} else {
		c.pausedTotal += now.Sub(c.pausedAt)
	}
	c.paused = paused
	Logger().Info("scrim: pause toggled", "paused", paused)
	if c.opts.pauseHook != nil {
		c.opts.pauseHook(paused)
	}
}

// elapsed is the running time excluding paused intervals.
func (c *Compositor) elapsed() time.Duration {
	return c.opts.clock().Sub(c.start) - c.pausedTotal
}

func (c *Compositor) publish(out *image.RGBA, rep FrameReport) {
	c.mu.Lock()
	c.latest = out
	c.status.Frames = rep.Frame
	c.status.Region = c.current
	c.status.Valid = rep.Valid
	c.mu.Unlock()
}

// Close stops the source and releases every GPU resource. The surface is
// left to its owner unless the compositor created it.
func (c *Compositor) Close() {
	if c.closed {
		return
	}
	c.closed = true
	if c.sourceUp {
		if err := c.source.Stop(); err != nil {
			Logger().Warn("scrim: stop source", "err", err)
		}
		c.sourceUp = false
	}
	if c.registry != nil {
		c.registry.Close()
	}
	if c.pad != nil {
		c.pad.Destroy()
	}
	if c.uniforms != 0 {
		c.adapter.DestroyBuffer(c.uniforms)
	}
	c.res.Close()
	if c.surface != nil && c.opts.surface == nil {
		c.surface.Close()
	}
}
