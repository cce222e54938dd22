package gpucore

// GPUAdapter abstracts over the backends that run the compositor's compute
// kernels: the wgpu HAL backend and the CPU software backend.
//
// Queue semantics follow WebGPU. WriteBuffer is ordered before any work
// submitted after it. ReadBuffer observes all previously submitted work.
// Work recorded with BeginComputePass runs only after Submit. WaitIdle
// returns once every submitted command has finished executing, after which
// resources referenced by that work may be destroyed.
//
// Destroying a resource that submitted, unfinished work still references is
// a use-after-free on real hardware. Callers must WaitIdle first.
type GPUAdapter interface {
	// Name returns a human-readable adapter name for diagnostics.
	Name() string

	// MaxBufferSize returns the largest buffer the adapter can allocate.
	MaxBufferSize() uint64

	CreateShaderModule(src ShaderSource) (ShaderModuleID, error)
	DestroyShaderModule(id ShaderModuleID)

	// CreateBuffer allocates a zero-initialized buffer of size bytes.
	CreateBuffer(label string, size int, usage BufferUsage) (BufferID, error)
	DestroyBuffer(id BufferID)

	// WriteBuffer schedules a host-to-buffer write.
	WriteBuffer(id BufferID, offset uint64, data []byte) error

	// ReadBuffer waits for submitted work and copies size bytes back to the host.
	ReadBuffer(id BufferID, offset, size uint64) ([]byte, error)

	CreateBindGroupLayout(desc *BindGroupLayoutDesc) (BindGroupLayoutID, error)
	DestroyBindGroupLayout(id BindGroupLayoutID)

	CreatePipelineLayout(layouts []BindGroupLayoutID) (PipelineLayoutID, error)
	DestroyPipelineLayout(id PipelineLayoutID)

	CreateComputePipeline(desc *ComputePipelineDesc) (ComputePipelineID, error)
	DestroyComputePipeline(id ComputePipelineID)

	CreateBindGroup(layout BindGroupLayoutID, entries []BindGroupEntry) (BindGroupID, error)
	DestroyBindGroup(id BindGroupID)

	// BeginComputePass starts recording a compute pass into the pending
	// command buffer.
	BeginComputePass() (ComputePassEncoder, error)

	// Submit hands the pending command buffer to the queue.
	Submit() error

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error

	// Close releases the device if the adapter owns it.
	Close()
}

// ComputePassEncoder records commands for one compute pass.
type ComputePassEncoder interface {
	SetPipeline(pipeline ComputePipelineID)
	SetBindGroup(index uint32, group BindGroupID)
	Dispatch(x, y, z uint32)
	End()
}
