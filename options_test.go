package scrim

import (
	"image"
	"testing"
	"time"

	"github.com/gogpu/scrim/surface"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.refreshRate != DefaultRefreshRate {
		t.Errorf("refreshRate = %d, want %d", o.refreshRate, DefaultRefreshRate)
	}
	if o.defaultEffect != DefaultEffectHotkey {
		t.Errorf("defaultEffect = %d, want %d", o.defaultEffect, DefaultEffectHotkey)
	}
	if o.clock == nil {
		t.Error("clock is nil")
	}
	if o.region != nil {
		t.Errorf("region = %v, want nil", *o.region)
	}
	if got, want := o.interval(), time.Second/60; got != want {
		t.Errorf("interval = %v, want %v", got, want)
	}
}

func TestWithRefreshRate(t *testing.T) {
	tests := []struct {
		hz   int
		want int
	}{
		{30, 30},
		{1, 1},
		{1000, 1000},
		{0, DefaultRefreshRate},
		{-5, DefaultRefreshRate},
		{1001, DefaultRefreshRate},
	}
	for _, tt := range tests {
		o := defaultOptions()
		WithRefreshRate(tt.hz)(&o)
		if o.refreshRate != tt.want {
			t.Errorf("WithRefreshRate(%d): refreshRate = %d, want %d", tt.hz, o.refreshRate, tt.want)
		}
	}
}

func TestWithClockIgnoresNil(t *testing.T) {
	o := defaultOptions()
	WithClock(nil)(&o)
	if o.clock == nil {
		t.Fatal("WithClock(nil) cleared the clock")
	}
	fixed := time.Unix(100, 0)
	WithClock(func() time.Time { return fixed })(&o)
	if !o.clock().Equal(fixed) {
		t.Errorf("clock() = %v, want %v", o.clock(), fixed)
	}
}

func TestWithRegionCanonicalizes(t *testing.T) {
	o := defaultOptions()
	WithRegion(image.Rectangle{Min: image.Pt(50, 40), Max: image.Pt(10, 0)})(&o)
	if want := image.Rect(10, 0, 50, 40); *o.region != want {
		t.Errorf("region = %v, want %v", *o.region, want)
	}
}

func TestWithSurfaceAndHooks(t *testing.T) {
	s := surface.NewImageSurface(4, 4)
	var paused []bool
	var reports int
	o := defaultOptions()
	for _, opt := range []Option{
		WithSurface(s),
		WithDefaultEffect(5),
		WithPauseHook(func(p bool) { paused = append(paused, p) }),
		WithReportHook(func(FrameReport) { reports++ }),
	} {
		opt(&o)
	}
	if o.surface != s {
		t.Error("surface not set")
	}
	if o.defaultEffect != 5 {
		t.Errorf("defaultEffect = %d, want 5", o.defaultEffect)
	}
	o.pauseHook(true)
	o.reportHook(FrameReport{})
	if len(paused) != 1 || !paused[0] || reports != 1 {
		t.Errorf("hooks not wired: paused=%v reports=%d", paused, reports)
	}
}

func TestFrameReportTrace(t *testing.T) {
	var r FrameReport
	for _, s := range []State{StateCapturing, StateStaging, StatePadding, StateEffecting, StatePresenting} {
		r.enter(s)
	}
	if got, want := r.Trace(), "capturing->staging->padding->effecting->presenting"; got != want {
		t.Errorf("Trace = %q, want %q", got, want)
	}
	if !r.Visited(StatePadding) {
		t.Error("Visited(padding) = false")
	}
	if r.Visited(StatePaused) {
		t.Error("Visited(paused) = true")
	}
	if got := State(99).String(); got != "unknown" {
		t.Errorf("State(99).String() = %q, want unknown", got)
	}
}
