package gpucore

import (
	"errors"
	"image"
)

// Resource handles. IDs are opaque, allocated by the adapter, and never
// reused after destruction.
type (
	// BufferID identifies a GPU buffer.
	BufferID uint64

	// ShaderModuleID identifies a compiled shader module.
	ShaderModuleID uint64

	// ComputePipelineID identifies a compute pipeline.
	ComputePipelineID uint64

	// BindGroupLayoutID identifies a bind group layout.
	BindGroupLayoutID uint64

	// BindGroupID identifies a bind group.
	BindGroupID uint64

	// PipelineLayoutID identifies a pipeline layout.
	PipelineLayoutID uint64
)

// InvalidID is the zero handle. No live resource ever has this ID.
const InvalidID = 0

// BufferUsage describes how a buffer will be used.
type BufferUsage uint32

const (
	// BufferUsageMapRead allows mapping the buffer for host reads.
	BufferUsageMapRead BufferUsage = 1 << 0

	// BufferUsageCopySrc allows the buffer to be a copy source.
	BufferUsageCopySrc BufferUsage = 1 << 2

	// BufferUsageCopyDst allows the buffer to be a copy or write destination.
	BufferUsageCopyDst BufferUsage = 1 << 3

	// BufferUsageUniform allows use as a uniform buffer.
	BufferUsageUniform BufferUsage = 1 << 6

	// BufferUsageStorage allows use as a storage buffer.
	BufferUsageStorage BufferUsage = 1 << 7
)

// ImageUsage is the usage every pixel image is created with.
const ImageUsage = BufferUsageStorage | BufferUsageCopySrc | BufferUsageCopyDst

// UniformUsage is the usage every uniform block is created with.
const UniformUsage = BufferUsageUniform | BufferUsageCopyDst

// BindingType is the kind of resource a binding slot expects.
type BindingType uint32

const (
	// BindingUniform is a uniform buffer.
	BindingUniform BindingType = iota + 1

	// BindingStorage is a read-write storage buffer.
	BindingStorage

	// BindingReadOnlyStorage is a read-only storage buffer.
	BindingReadOnlyStorage
)

func (t BindingType) String() string {
	switch t {
	case BindingUniform:
		return "uniform"
	case BindingStorage:
		return "storage"
	case BindingReadOnlyStorage:
		return "read-only-storage"
	default:
		return "unknown"
	}
}

// BindGroupLayoutEntry describes one binding slot.
type BindGroupLayoutEntry struct {
	Binding uint32
	Type    BindingType
}

// BindGroupLayoutDesc describes a bind group layout.
type BindGroupLayoutDesc struct {
	Label   string
	Entries []BindGroupLayoutEntry
}

// BindGroupEntry binds a buffer range to a slot.
// A zero Size binds the buffer from Offset to its end.
type BindGroupEntry struct {
	Binding uint32
	Buffer  BufferID
	Offset  uint64
	Size    uint64
}

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	Label        string
	Layout       PipelineLayoutID
	ShaderModule ShaderModuleID
	EntryPoint   string
}

// ShaderSource carries both renditions of a compute kernel. GPU backends
// compile WGSL; the software backend runs Kernel. Both must compute the
// same result.
type ShaderSource struct {
	Label  string
	WGSL   string
	Kernel Kernel
}

// WorkgroupSize is the edge of the square workgroup every image kernel
// declares with @workgroup_size(8, 8, 1).
const WorkgroupSize = 8

// Workgroups returns the dispatch size covering a w x h image.
func Workgroups(w, h int) (x, y uint32) {
	return uint32((w + WorkgroupSize - 1) / WorkgroupSize), //nolint:gosec // image dimensions are positive
		uint32((h + WorkgroupSize - 1) / WorkgroupSize) //nolint:gosec // image dimensions are positive
}

// Image is a GPU storage buffer holding Width*Height packed RGBA8 texels
// (r | g<<8 | b<<16 | a<<24), row-major with no padding.
type Image struct {
	Buffer BufferID
	Width  int
	Height int
}

// Valid reports whether the image refers to a live buffer with a positive area.
func (im Image) Valid() bool {
	return im.Buffer != InvalidID && im.Width > 0 && im.Height > 0
}

// ByteSize returns the buffer size backing the image.
func (im Image) ByteSize() int {
	return im.Width * im.Height * 4
}

// Bounds returns the image rectangle anchored at the origin.
func (im Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, im.Width, im.Height)
}

// AuxSpec declares one persistent auxiliary buffer an effect needs.
// Data is uploaded once when the buffer is allocated.
type AuxSpec struct {
	Name string
	Data []byte
}

// AuxSet maps auxiliary buffer names to their allocated buffers.
type AuxSet map[string]BufferID

// Errors shared by all adapters.
var (
	// ErrDeviceLost is returned when the GPU device is gone.
	ErrDeviceLost = errors.New("gpucore: device lost")

	// ErrOutOfMemory is returned when a buffer cannot be allocated.
	ErrOutOfMemory = errors.New("gpucore: out of memory")

	// ErrUnknownResource is returned for IDs that are not live.
	ErrUnknownResource = errors.New("gpucore: unknown resource")

	// ErrInvalidSize is returned for non-positive buffer sizes.
	ErrInvalidSize = errors.New("gpucore: invalid size")
)
