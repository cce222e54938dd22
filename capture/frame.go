package capture

import (
	"image"
	"sync"
	"sync/atomic"
	"time"
)

// Format is the byte order of a frame's pixels.
type Format uint8

const (
	// FormatBGRA is 8-bit B, G, R, A.
	FormatBGRA Format = iota + 1

	// FormatBGRX is 8-bit B, G, R with an undefined fourth byte. X11
	// ZPixmap images at depth 24 on little-endian servers use it.
	FormatBGRX

	// FormatRGBA is 8-bit R, G, B, A.
	FormatRGBA
)

func (f Format) String() string {
	switch f {
	case FormatBGRA:
		return "BGRA"
	case FormatBGRX:
		return "BGRX"
	case FormatRGBA:
		return "RGBA"
	default:
		return "unknown"
	}
}

// Frame is one captured desktop snapshot. A frame is immutable once
// published. Consumers call Release when they no longer need Pix.
type Frame struct {
	// Pix holds Height rows of Stride bytes, 4 bytes per pixel.
	Pix    []byte
	Width  int
	Height int
	Stride int
	Format Format

	// Origin is the desktop coordinate of the top-left pixel.
	Origin image.Point

	Timestamp time.Time
	Sequence  uint64

	pool     *Pool
	released atomic.Bool
}

// Bounds returns the rectangle the frame covers in desktop coordinates.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rectangle{Min: f.Origin, Max: f.Origin.Add(image.Pt(f.Width, f.Height))}
}

// Release returns the pixel buffer to the pool it came from. Further
// calls are no-ops. Pix must not be used afterwards.
func (f *Frame) Release() {
	if f == nil || !f.released.CompareAndSwap(false, true) {
		return
	}
	if f.pool != nil {
		f.pool.put(f.Pix)
	}
	f.Pix = nil
}

// Released reports whether Release has been called.
func (f *Frame) Released() bool {
	return f.released.Load()
}

// Pool recycles frame pixel buffers between a producer and the consumer.
type Pool struct {
	p           sync.Pool
	outstanding atomic.Int64
}

// NewFrame returns a frame with a pooled buffer of height*stride bytes.
// The buffer contents are undefined.
func (p *Pool) NewFrame(width, height, stride int, format Format) *Frame {
	size := height * stride
	var pix []byte
	if b, ok := p.p.Get().(*[]byte); ok && cap(*b) >= size {
		pix = (*b)[:size]
	} else {
		pix = make([]byte, size)
	}
	p.outstanding.Add(1)
	return &Frame{Pix: pix, Width: width, Height: height, Stride: stride, Format: format, pool: p}
}

// Outstanding returns the number of frames handed out and not released.
func (p *Pool) Outstanding() int64 {
	return p.outstanding.Load()
}

func (p *Pool) put(b []byte) {
	p.outstanding.Add(-1)
	if b != nil {
		p.p.Put(&b)
	}
}
