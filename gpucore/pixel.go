package gpucore

import (
	"encoding/binary"
	"math"
)

// PackRGBA packs 8-bit channels into one texel word.
func PackRGBA(r, g, b, a uint8) uint32 {
	return uint32(r) | uint32(g)<<8 | uint32(b)<<16 | uint32(a)<<24
}

// UnpackRGBA splits a texel word into 8-bit channels.
func UnpackRGBA(p uint32) (r, g, b, a uint8) {
	return uint8(p), uint8(p >> 8), uint8(p >> 16), uint8(p >> 24) //nolint:gosec // masking by truncation
}

// Color is a normalized RGBA color as the kernels see it.
type Color [4]float32

// Unpack converts a texel word to a normalized color, matching the WGSL
// helper unpack_rgba.
func Unpack(p uint32) Color {
	r, g, b, a := UnpackRGBA(p)
	return Color{float32(r) / 255, float32(g) / 255, float32(b) / 255, float32(a) / 255}
}

// Pack converts a normalized color to a texel word, clamping each channel
// and rounding to nearest, matching the WGSL helper pack_rgba.
func Pack(c Color) uint32 {
	var out uint32
	for i, v := range c {
		v = min(max(v, 0), 1)
		out |= uint32(v*255+0.5) << (8 * i)
	}
	return out
}

// Luminance returns the Rec.601 luma of a normalized color.
func Luminance(c Color) float32 {
	return 0.299*c[0] + 0.587*c[1] + 0.114*c[2]
}

// Mix linearly interpolates between two colors.
func Mix(a, b Color, t float32) Color {
	return Color{
		a[0] + (b[0]-a[0])*t,
		a[1] + (b[1]-a[1])*t,
		a[2] + (b[2]-a[2])*t,
		a[3] + (b[3]-a[3])*t,
	}
}

// Uniform builds a little-endian uniform block from 32-bit words. Values
// may be uint32, int32, int or float32; anything else panics. The block is
// padded to a multiple of 16 bytes.
func Uniform(words ...any) []byte {
	n := (len(words) + 3) / 4 * 4
	buf := make([]byte, n*4)
	for i, w := range words {
		var bits uint32
		switch v := w.(type) {
		case uint32:
			bits = v
		case int32:
			bits = uint32(v) //nolint:gosec // bit reinterpretation
		case int:
			bits = uint32(int32(v)) //nolint:gosec // uniform fields are 32-bit
		case float32:
			bits = math.Float32bits(v)
		default:
			panic("gpucore: unsupported uniform word type")
		}
		binary.LittleEndian.PutUint32(buf[i*4:], bits)
	}
	return buf
}
