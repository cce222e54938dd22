// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package surface

import (
	"errors"
	"slices"
	"testing"
)

func imageFactory(w, h int) (Surface, error) {
	return NewImageSurface(w, h), nil
}

func TestRegistryOrder(t *testing.T) {
	var r Registry
	r.Register("low", 10, imageFactory)
	r.Register("high", 100, imageFactory)
	r.Register("mid", 50, imageFactory)

	if got, want := r.Kinds(), []string{"high", "mid", "low"}; !slices.Equal(got, want) {
		t.Errorf("Kinds() = %v, want %v", got, want)
	}

	// Re-registering moves a kind to its new priority.
	r.Register("low", 200, imageFactory)
	if got, want := r.Kinds(), []string{"low", "high", "mid"}; !slices.Equal(got, want) {
		t.Errorf("Kinds() after re-register = %v, want %v", got, want)
	}

	r.Unregister("mid")
	if _, err := r.New("mid", 1, 1); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("New(mid) error = %v, want ErrUnknownKind", err)
	}
}

func TestRegistryNewBestFallsBack(t *testing.T) {
	var r Registry
	boom := errors.New("no window")
	r.Register("texture", 50, func(int, int) (Surface, error) { return nil, boom })
	r.Register("image", 10, imageFactory)

	s, err := r.NewBest(32, 16)
	if err != nil {
		t.Fatalf("NewBest() error = %v", err)
	}
	defer s.Close()
	if _, ok := s.(*ImageSurface); !ok {
		t.Errorf("NewBest() = %T, want *ImageSurface", s)
	}
	if s.Size().X != 32 || s.Size().Y != 16 {
		t.Errorf("Size() = %v, want 32x16", s.Size())
	}

	r.Unregister("image")
	if _, err := r.NewBest(1, 1); !errors.Is(err, boom) {
		t.Errorf("NewBest() error = %v, want the factory error", err)
	}
	r.Unregister("texture")
	if _, err := r.NewBest(1, 1); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("NewBest() on empty registry error = %v, want ErrUnknownKind", err)
	}
}

func TestBuiltinKinds(t *testing.T) {
	if got, want := Kinds(), []string{KindTexture, KindImage}; !slices.Equal(got, want) {
		t.Errorf("Kinds() = %v, want %v", got, want)
	}
	img, err := New(KindImage, 8, 8)
	if err != nil {
		t.Fatalf("New(image) error = %v", err)
	}
	defer img.Close()
	if _, ok := img.(*ImageSurface); !ok {
		t.Errorf("New(image) = %T", img)
	}
	tex, err := New(KindTexture, 8, 8)
	if err != nil {
		t.Fatalf("New(texture) error = %v", err)
	}
	defer tex.Close()
	if _, ok := tex.(*TextureSurface); !ok {
		t.Errorf("New(texture) = %T", tex)
	}
}
