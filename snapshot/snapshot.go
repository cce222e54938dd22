// Package snapshot writes compositor output to lossless image files.
package snapshot

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Format is a snapshot file format.
type Format string

// Supported formats.
const (
	PNG  Format = "png"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
)

// timeLayout yields names such as scrim_20261019-142501.123.png.
const timeLayout = "20060102-150405.000"

var (
	// ErrFormat is returned for an unsupported format name.
	ErrFormat = errors.New("snapshot: unsupported format")

	// ErrNoFrame is returned when there is nothing to save yet.
	ErrNoFrame = errors.New("snapshot: no frame presented yet")
)

// ParseFormat accepts png, bmp and tiff. The empty string means png.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", PNG:
		return PNG, nil
	case BMP, TIFF:
		return Format(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrFormat, s)
}

// FileName returns the snapshot name for a capture taken at t.
func FileName(t time.Time, f Format) string {
	return "scrim_" + t.Format(timeLayout) + "." + string(f)
}

// Encode writes img to w in format f.
func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case PNG:
		return png.Encode(w, img)
	case BMP:
		return bmp.Encode(w, img)
	case TIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	}
	return fmt.Errorf("%w: %q", ErrFormat, f)
}

// FrameSource yields the image to save. scrim.Compositor.LatestFrame
// satisfies it.
type FrameSource func() *image.RGBA

// Saver writes snapshots of a frame source into a directory.
type Saver struct {
	Dir    string
	Format Format
	Frames FrameSource

	// Now defaults to time.Now.
	Now func() time.Time

	mu sync.Mutex
}

// Save writes the current frame and returns the file path. Two saves within
// the same millisecond get distinct names.
func (s *Saver) Save() (string, error) {
	img := s.Frames()
	if img == nil {
		return "", ErrNoFrame
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	format := s.Format
	if format == "" {
		format = PNG
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	t := now()
	path := filepath.Join(s.Dir, FileName(t, format))
	for n := 1; fileExists(path); n++ {
		path = filepath.Join(s.Dir, fmt.Sprintf("scrim_%s-%d.%s", t.Format(timeLayout), n, format))
	}
	if err := writeFile(path, img, format); err != nil {
		return "", err
	}
	return path, nil
}

func writeFile(path string, img image.Image, f Format) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640) //nolint:gosec // path is built from the configured dir
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := Encode(file, img, f); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return fmt.Errorf("snapshot: encode %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
