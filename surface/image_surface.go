// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"image"
	"sync"
)

// ImageSurface keeps the last presented frame in an *image.RGBA.
//
// Example:
//
//	s := surface.NewImageSurface(800, 600)
//	defer s.Close()
//
//	comp, _ := scrim.New(adapter, source, effects, scrim.WithSurface(s))
//	comp.RenderFrame(ctx)
//	img := s.Snapshot()
type ImageSurface struct {
	mu       sync.Mutex
	img      *image.RGBA
	presents int
	closed   bool
}

// NewImageSurface creates a surface holding a blank image of the given size.
func NewImageSurface(width, height int) *ImageSurface {
	if width <= 0 {
		width = 1
	}
	if height <= 0 {
		height = 1
	}
	return &ImageSurface{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// Size returns the size of the held image.
func (s *ImageSurface) Size() image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img.Rect.Size()
}

// Present copies img. The held image follows the size of what is presented.
func (s *ImageSurface) Present(img *image.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	pix, size := packedRGBA(s.img.Pix, img)
	s.img = &image.RGBA{Pix: pix, Stride: size.X * 4, Rect: image.Rectangle{Max: size}}
	s.presents++
	return nil
}

// Presents returns how many frames have been presented.
func (s *ImageSurface) Presents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presents
}

// Snapshot returns a copy of the held image.
func (s *ImageSurface) Snapshot() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	pix, size := packedRGBA(nil, s.img)
	return &image.RGBA{Pix: pix, Stride: size.X * 4, Rect: image.Rectangle{Max: size}}
}

// Close marks the surface closed.
func (s *ImageSurface) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
