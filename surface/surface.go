// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package surface

import (
	"errors"
	"fmt"
	"image"
)

// Surface is a presentation target.
type Surface interface {
	// Size returns the size of the last presented image, or the initial size
	// before the first Present.
	Size() image.Point

	// Present hands a finished frame to the surface. The surface copies what
	// it needs; img may be reused by the caller after Present returns.
	Present(img *image.RGBA) error

	// Close releases all resources associated with the surface.
	// Close is idempotent.
	Close() error
}

var (
	// ErrSurface is the root of every presentation failure. The compositor
	// treats it as fatal.
	ErrSurface = errors.New("surface: presentation failed")

	// ErrClosed is returned by Present after Close.
	ErrClosed = fmt.Errorf("%w: surface closed", ErrSurface)
)

// packedRGBA returns the pixels of img as tightly packed rows and the image
// size. dst is reused when it is large enough.
func packedRGBA(dst []byte, img *image.RGBA) ([]byte, image.Point) {
	size := img.Rect.Size()
	row := size.X * 4
	n := row * size.Y
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	if img.Stride == row {
		copy(dst, img.Pix[:n])
		return dst, size
	}
	for y := range size.Y {
		off := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		copy(dst[y*row:(y+1)*row], img.Pix[off:off+row])
	}
	return dst, size
}
