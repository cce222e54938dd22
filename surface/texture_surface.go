// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package surface

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/gpucontext"
)

// ErrNoTextureCreator is returned by DrawTo when the draw context cannot
// create textures.
var ErrNoTextureCreator = errors.New("surface: draw context has no texture creator")

// textureDestroyer matches gogpu.Texture.Destroy.
type textureDestroyer interface {
	Destroy()
}

// TextureSurface presents frames through a window's texture drawer.
//
// Present stores the frame on the render goroutine. DrawTo uploads the most
// recent frame and draws it at the origin; it is meant to be called from the
// window's draw callback:
//
//	app.OnDraw(func(dc *gogpu.Context) {
//	    _ = ts.DrawTo(dc.AsTextureDrawer())
//	})
//
// The texture is created lazily on the first DrawTo and recreated when the
// frame size changes. A replaced texture is destroyed only after its
// successor was created, since texture creation waits for the GPU.
type TextureSurface struct {
	mu      sync.Mutex
	pending []byte
	size    image.Point
	dirty   bool
	texture gpucontext.Texture
	closed  bool
}

// NewTextureSurface creates a texture surface. width and height are the size
// reported before the first Present.
func NewTextureSurface(width, height int) *TextureSurface {
	return &TextureSurface{size: image.Pt(max(width, 1), max(height, 1))}
}

// Size returns the size of the last presented frame.
func (s *TextureSurface) Size() image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Present copies img into the pending upload buffer.
func (s *TextureSurface) Present(img *image.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.pending, s.size = packedRGBA(s.pending, img)
	s.dirty = true
	return nil
}

// DrawTo uploads the pending frame if there is one and draws the texture.
// Nothing is drawn before the first Present.
func (s *TextureSurface) DrawTo(dc gpucontext.TextureDrawer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.dirty {
		if err := s.upload(dc); err != nil {
			return fmt.Errorf("%w: %w", ErrSurface, err)
		}
		s.dirty = false
	}
	if s.texture == nil {
		return nil
	}
	if err := dc.DrawTexture(s.texture, 0, 0); err != nil {
		return fmt.Errorf("%w: draw texture: %w", ErrSurface, err)
	}
	return nil
}

func (s *TextureSurface) upload(dc gpucontext.TextureDrawer) error {
	if s.texture != nil && s.texture.Width() == s.size.X && s.texture.Height() == s.size.Y {
		if u, ok := s.texture.(gpucontext.TextureUpdater); ok {
			if err := u.UpdateData(s.pending); err != nil {
				return fmt.Errorf("update texture: %w", err)
			}
			return nil
		}
	}

	creator := dc.TextureCreator()
	if creator == nil {
		return ErrNoTextureCreator
	}
	tex, err := creator.NewTextureFromRGBA(s.size.X, s.size.Y, s.pending)
	if err != nil {
		return fmt.Errorf("create %dx%d texture: %w", s.size.X, s.size.Y, err)
	}
	if pt, ok := tex.(interface{ SetPremultiplied(bool) }); ok {
		pt.SetPremultiplied(true)
	}
	destroyTexture(s.texture)
	s.texture = tex
	return nil
}

// Close destroys the texture. Close is idempotent.
func (s *TextureSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	destroyTexture(s.texture)
	s.texture = nil
	s.pending = nil
	return nil
}

func destroyTexture(t gpucontext.Texture) {
	if d, ok := t.(textureDestroyer); ok {
		d.Destroy()
	}
}
