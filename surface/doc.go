// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package surface provides the presentation targets the compositor writes
// its output to.
//
// A Surface receives one finished RGBA image per frame through Present. The
// package ships two implementations:
//
//   - ImageSurface keeps the last presented image in memory. It backs
//     headless runs and tests.
//   - TextureSurface uploads the last presented image into a gpucontext
//     texture and draws it from the window's frame callback.
//
// # Registry
//
// Surface kinds register a factory under a name and a priority:
//
//	surface.Register("image", 10, factory)
//
//	s, err := surface.New(surface.KindTexture, 800, 600)
//	// or the highest-priority kind that succeeds:
//	s, err := surface.NewBest(800, 600)
//
// # Threading
//
// Present is called from the render goroutine. TextureSurface.DrawTo runs on
// the window's draw thread and synchronizes with Present internally.
package surface
