// Package scrim is a real-time screen-overlay compositor.
//
// # Overview
//
// A Compositor captures the part of the desktop covered by a region, runs
// a GPU compute effect over it and presents the result. Pointed at the
// rectangle of its own window, it makes the window look like a distorting
// pane of glass over whatever lies beneath.
//
// # Quick Start
//
//	adapter, err := backend.Open("auto")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer adapter.Close()
//
//	src := capture.NewSynthetic(capture.SyntheticOptions{Width: 640, Height: 480, Interval: time.Second / 60})
//	c, err := scrim.New(adapter, src, effect.Builtin(effect.TilesOptions{}))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	err = c.Run(ctx)
//
// # Frame State Machine
//
// Every frame walks Capturing, Staging, Padding, Effecting and Presenting,
// or stops in Paused. Capture problems never stop the loop: a frame without new
// pixels reuses the previous staging image, and a lost capture session is
// reinitialized while the stale image keeps being shown. Only device loss
// and surface failures end Run, classified by [Classify] as [ClassFatal].
//
// # Effects
//
// Effects are selected by hotkey, 1 to 9, in registration order. The
// built-in set is passthru, wobbly, lightning, sorty and tiles. Effects
// that fail to load are excluded and the rest keep their hotkeys.
//
// # Concurrency
//
// RenderFrame, Run and Close belong to one goroutine, which owns every GPU
// resource. SelectEffect, TogglePause, WindowRegionChanged, LatestFrame and
// Status may be called from any goroutine.
//
// # Backends
//
// backend/native runs the WGSL kernels through the wgpu HAL. backend/software
// runs their CPU reference kernels and records resource and ordering
// violations, which makes it the backend for tests.
package scrim

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
