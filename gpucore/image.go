package gpucore

import (
	"encoding/binary"
	"fmt"
	"image"
)

// NewImage allocates a w x h pixel image.
func NewImage(a GPUAdapter, label string, w, h int) (Image, error) {
	if w <= 0 || h <= 0 {
		return Image{}, fmt.Errorf("%w: %s: %dx%d", ErrInvalidSize, label, w, h)
	}
	id, err := a.CreateBuffer(label, w*h*4, ImageUsage)
	if err != nil {
		return Image{}, err
	}
	return Image{Buffer: id, Width: w, Height: h}, nil
}

// DestroyImage releases the image's buffer.
func DestroyImage(a GPUAdapter, im Image) {
	if im.Buffer != InvalidID {
		a.DestroyBuffer(im.Buffer)
	}
}

// WriteTexels uploads packed texels to im.
func WriteTexels(a GPUAdapter, im Image, texels []uint32) error {
	if len(texels) != im.Width*im.Height {
		return fmt.Errorf("gpucore: %d texels for a %dx%d image", len(texels), im.Width, im.Height)
	}
	buf := make([]byte, len(texels)*4)
	for i, t := range texels {
		binary.LittleEndian.PutUint32(buf[i*4:], t)
	}
	return a.WriteBuffer(im.Buffer, 0, buf)
}

// ReadTexels waits for submitted work and returns the texels of im.
func ReadTexels(a GPUAdapter, im Image) ([]uint32, error) {
	buf, err := a.ReadBuffer(im.Buffer, 0, uint64(im.ByteSize())) //nolint:gosec // positive size
	if err != nil {
		return nil, err
	}
	out := make([]uint32, im.Width*im.Height)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return out, nil
}

// ReadRGBA waits for submitted work and returns im as an *image.RGBA.
// Packed texels are little-endian r, g, b, a, so the bytes copy straight
// into Pix.
func ReadRGBA(a GPUAdapter, im Image) (*image.RGBA, error) {
	buf, err := a.ReadBuffer(im.Buffer, 0, uint64(im.ByteSize())) //nolint:gosec // positive size
	if err != nil {
		return nil, err
	}
	return &image.RGBA{Pix: buf, Stride: im.Width * 4, Rect: im.Bounds()}, nil
}
