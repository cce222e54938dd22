package gpucore

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// Kernel is the CPU rendition of a compute entry point. It is invoked once
// per Dispatch with every bound buffer visible through the Dispatch value
// and must cover all invocations itself, exactly as the WGSL entry point
// with @workgroup_size(8, 8, 1) would.
type Kernel func(d *Dispatch)

// Dispatch is the execution context handed to a Kernel.
type Dispatch struct {
	// Groups is the workgroup count passed to ComputePassEncoder.Dispatch.
	Groups [3]uint32

	// Bindings maps binding slots to the bytes of the bound buffer range.
	// Storage writes through these slices land directly in the buffer.
	Bindings map[uint32][]byte
}

// Bytes returns the raw bytes bound at slot.
func (d *Dispatch) Bytes(slot uint32) []byte {
	return d.Bindings[slot]
}

// U32 views the buffer bound at slot as little-endian u32 words.
func (d *Dispatch) U32(slot uint32) []uint32 {
	b := d.Bindings[slot]
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// F32 views the buffer bound at slot as f32 values.
func (d *Dispatch) F32(slot uint32) []float32 {
	b := d.Bindings[slot]
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// UniformU32 reads the u32 at word index i of the uniform bound at slot.
func (d *Dispatch) UniformU32(slot uint32, i int) uint32 {
	b := d.Bindings[slot]
	if len(b) < (i+1)*4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b[i*4:])
}

// UniformI32 reads the i32 at word index i of the uniform bound at slot.
func (d *Dispatch) UniformI32(slot uint32, i int) int32 {
	return int32(d.UniformU32(slot, i)) //nolint:gosec // bit reinterpretation
}

// UniformF32 reads the f32 at word index i of the uniform bound at slot.
func (d *Dispatch) UniformF32(slot uint32, i int) float32 {
	return math.Float32frombits(d.UniformU32(slot, i))
}

// Extent returns the global invocation extent in x and y.
func (d *Dispatch) Extent() (w, h int) {
	return int(d.Groups[0]) * WorkgroupSize, int(d.Groups[1]) * WorkgroupSize
}

// ForEach calls fn for every global invocation id (x, y) in the dispatch,
// row by row. Kernels bounds-check against their image size like the
// WGSL entry points do.
func (d *Dispatch) ForEach(fn func(x, y int)) {
	w, h := d.Extent()
	for y := range h {
		for x := range w {
			fn(x, y)
		}
	}
}
