// Package software implements gpucore.GPUAdapter on the CPU.
//
// Every compute pipeline runs the Go rendition (gpucore.ShaderSource.Kernel)
// of its shader. Submitted work is queued and only executed by WaitIdle or
// ReadBuffer, the way a real queue runs behind the host. That makes the
// adapter useful beyond a fallback: it records every resource destroyed
// while queued work still referenced it (see Violations), which is the
// use-after-free a GPU would silently commit.
package software

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/scrim/backend"
	"github.com/gogpu/scrim/gpucore"
)

// PoisonTexel fills storage buffers created by an adapter with
// Options.Poison set. It lets tests detect reads of texels no kernel wrote.
const PoisonTexel uint32 = 0xDEADBEEF

const defaultMaxBufferSize = 1 << 30

func init() {
	backend.Register(backend.BackendSoftware, func() (gpucore.GPUAdapter, error) {
		return New(Options{}), nil
	})
}

// Options configures an Adapter.
type Options struct {
	// MemoryLimit caps the total bytes of live buffers. Zero means unlimited.
	MemoryLimit int

	// Poison fills new storage buffers with PoisonTexel instead of zeros.
	Poison bool
}

// Stats is a snapshot of live resources and work counters.
type Stats struct {
	LiveBuffers    int
	LiveBindGroups int
	LivePipelines  int
	LiveModules    int
	BytesLive      int
	Submits        int
	Dispatches     int
}

type buffer struct {
	id    gpucore.BufferID
	label string
	usage gpucore.BufferUsage
	data  []byte
}

type bindGroup struct {
	id      gpucore.BindGroupID
	entries []gpucore.BindGroupEntry
	buffers []*buffer
}

type pipeline struct {
	label  string
	kernel gpucore.Kernel
	layout []gpucore.BindGroupLayoutEntry
}

type dispatch struct {
	pipeline *pipeline
	group    *bindGroup
	groups   [3]uint32
}

// op is one queue entry: either a buffer write or a submitted command buffer.
type op struct {
	write    *buffer
	offset   uint64
	data     []byte
	commands []dispatch
}

// Adapter is the CPU implementation of gpucore.GPUAdapter.
//
// Thread Safety: Adapter is safe for concurrent use. Kernels execute on the
// goroutine that calls WaitIdle or ReadBuffer.
type Adapter struct {
	mu   sync.Mutex
	opts Options

	nextID atomic.Uint64

	buffers         map[gpucore.BufferID]*buffer
	modules         map[gpucore.ShaderModuleID]gpucore.ShaderSource
	bindLayouts     map[gpucore.BindGroupLayoutID][]gpucore.BindGroupLayoutEntry
	pipelineLayouts map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID
	pipelines       map[gpucore.ComputePipelineID]*pipeline
	bindGroups      map[gpucore.BindGroupID]*bindGroup

	recording []dispatch
	queue     []op

	bytesLive  int
	submits    int
	dispatches int
	violations []string
	closed     bool
}

// New creates a software adapter.
func New(opts Options) *Adapter {
	a := &Adapter{
		opts:            opts,
		buffers:         make(map[gpucore.BufferID]*buffer),
		modules:         make(map[gpucore.ShaderModuleID]gpucore.ShaderSource),
		bindLayouts:     make(map[gpucore.BindGroupLayoutID][]gpucore.BindGroupLayoutEntry),
		pipelineLayouts: make(map[gpucore.PipelineLayoutID][]gpucore.BindGroupLayoutID),
		pipelines:       make(map[gpucore.ComputePipelineID]*pipeline),
		bindGroups:      make(map[gpucore.BindGroupID]*bindGroup),
	}
	// Start ID generation at 1 (0 is invalid)
	a.nextID.Store(1)
	return a
}

func (a *Adapter) newID() uint64 {
	return a.nextID.Add(1) - 1
}

// Name implements gpucore.GPUAdapter.
func (a *Adapter) Name() string { return "software" }

// MaxBufferSize implements gpucore.GPUAdapter.
func (a *Adapter) MaxBufferSize() uint64 { return defaultMaxBufferSize }

// CreateShaderModule records the kernel. A source without a CPU kernel is
// rejected, like a shader that fails to compile.
func (a *Adapter) CreateShaderModule(src gpucore.ShaderSource) (gpucore.ShaderModuleID, error) {
	if src.Kernel == nil {
		return gpucore.InvalidID, fmt.Errorf("software: shader %q has no CPU kernel", src.Label)
	}
	id := gpucore.ShaderModuleID(a.newID())
	a.mu.Lock()
	a.modules[id] = src
	a.mu.Unlock()
	return id, nil
}

// DestroyShaderModule implements gpucore.GPUAdapter.
func (a *Adapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	delete(a.modules, id)
	a.mu.Unlock()
}

// CreateBuffer implements gpucore.GPUAdapter.
func (a *Adapter) CreateBuffer(label string, size int, usage gpucore.BufferUsage) (gpucore.BufferID, error) {
	if size <= 0 || uint64(size) > defaultMaxBufferSize {
		return gpucore.InvalidID, fmt.Errorf("%w: %s: %d bytes", gpucore.ErrInvalidSize, label, size)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	}
	if a.opts.MemoryLimit > 0 && a.bytesLive+size > a.opts.MemoryLimit {
		return gpucore.InvalidID, fmt.Errorf("%w: %s: %d bytes (%d of %d in use)",
			gpucore.ErrOutOfMemory, label, size, a.bytesLive, a.opts.MemoryLimit)
	}

	// Round up so the u32 view always covers the whole buffer.
	data := make([]byte, (size+3)/4*4)[:size]
	if a.opts.Poison && usage&gpucore.BufferUsageStorage != 0 {
		for i := 0; i+4 <= len(data); i += 4 {
			binary.LittleEndian.PutUint32(data[i:], PoisonTexel)
		}
	}
	id := gpucore.BufferID(a.newID())
	a.buffers[id] = &buffer{id: id, label: label, usage: usage, data: data}
	a.bytesLive += size
	return id, nil
}

// DestroyBuffer releases a buffer. Destroying a buffer that queued work
// still references is recorded as a violation; the queued work keeps the
// memory alive so execution stays defined.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.buffers[id]
	if !ok {
		return
	}
	if a.bufferInFlight(b) {
		a.violations = append(a.violations,
			fmt.Sprintf("buffer %q (id %d) destroyed while queued work references it", b.label, id))
	}
	delete(a.buffers, id)
	a.bytesLive -= len(b.data)
}

func (a *Adapter) bufferInFlight(b *buffer) bool {
	for _, o := range a.queue {
		if o.write == b {
			return true
		}
		for _, c := range o.commands {
			for _, bb := range c.group.buffers {
				if bb == b {
					return true
				}
			}
		}
	}
	return false
}

// WriteBuffer implements gpucore.GPUAdapter. With nothing queued the write
// lands immediately; otherwise it is ordered behind the queued work.
func (a *Adapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return gpucore.ErrDeviceLost
	}
	b, ok := a.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, id)
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return fmt.Errorf("software: write of %d bytes at %d overflows %q (%d bytes)", len(data), offset, b.label, len(b.data))
	}
	if len(a.queue) == 0 {
		copy(b.data[offset:], data)
		return nil
	}
	a.queue = append(a.queue, op{write: b, offset: offset, data: append([]byte(nil), data...)})
	return nil
}

// ReadBuffer runs all queued work, then copies the requested range.
func (a *Adapter) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, gpucore.ErrDeviceLost
	}
	a.flushLocked()
	b, ok := a.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, id)
	}
	if offset+size > uint64(len(b.data)) {
		return nil, fmt.Errorf("software: read of %d bytes at %d overflows %q (%d bytes)", size, offset, b.label, len(b.data))
	}
	out := make([]byte, size)
	copy(out, b.data[offset:offset+size])
	return out, nil
}

// CreateBindGroupLayout implements gpucore.GPUAdapter.
func (a *Adapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("software: nil bind group layout descriptor")
	}
	for i, e := range desc.Entries {
		if e.Binding != uint32(i) { //nolint:gosec // small slot count
			return gpucore.InvalidID, fmt.Errorf("software: %s: bindings must be dense, slot %d has binding %d", desc.Label, i, e.Binding)
		}
	}
	id := gpucore.BindGroupLayoutID(a.newID())
	a.mu.Lock()
	a.bindLayouts[id] = append([]gpucore.BindGroupLayoutEntry(nil), desc.Entries...)
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroupLayout implements gpucore.GPUAdapter.
func (a *Adapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	delete(a.bindLayouts, id)
	a.mu.Unlock()
}

// CreatePipelineLayout implements gpucore.GPUAdapter.
func (a *Adapter) CreatePipelineLayout(layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	if len(layouts) != 1 {
		return gpucore.InvalidID, fmt.Errorf("software: exactly one bind group is supported, got %d", len(layouts))
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.bindLayouts[layouts[0]]; !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", gpucore.ErrUnknownResource, layouts[0])
	}
	id := gpucore.PipelineLayoutID(a.newID())
	a.pipelineLayouts[id] = append([]gpucore.BindGroupLayoutID(nil), layouts...)
	return id, nil
}

// DestroyPipelineLayout implements gpucore.GPUAdapter.
func (a *Adapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	delete(a.pipelineLayouts, id)
	a.mu.Unlock()
}

// CreateComputePipeline implements gpucore.GPUAdapter.
func (a *Adapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	src, ok := a.modules[desc.ShaderModule]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: shader module %d", gpucore.ErrUnknownResource, desc.ShaderModule)
	}
	pl, ok := a.pipelineLayouts[desc.Layout]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline layout %d", gpucore.ErrUnknownResource, desc.Layout)
	}
	id := gpucore.ComputePipelineID(a.newID())
	a.pipelines[id] = &pipeline{label: desc.Label, kernel: src.Kernel, layout: a.bindLayouts[pl[0]]}
	return id, nil
}

// DestroyComputePipeline implements gpucore.GPUAdapter.
func (a *Adapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	delete(a.pipelines, id)
	a.mu.Unlock()
}

// CreateBindGroup validates entries against the layout and buffer usages.
// A buffer bound twice where either binding is writable is rejected, as
// WebGPU validation does for writable aliasing.
func (a *Adapter) CreateBindGroup(layout gpucore.BindGroupLayoutID, entries []gpucore.BindGroupEntry) (gpucore.BindGroupID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	le, ok := a.bindLayouts[layout]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", gpucore.ErrUnknownResource, layout)
	}
	if len(entries) != len(le) {
		return gpucore.InvalidID, fmt.Errorf("software: bind group has %d entries, layout wants %d", len(entries), len(le))
	}

	bufs := make([]*buffer, len(entries))
	for i, e := range entries {
		b, ok := a.buffers[e.Buffer]
		if !ok {
			return gpucore.InvalidID, fmt.Errorf("%w: buffer %d at binding %d", gpucore.ErrUnknownResource, e.Buffer, e.Binding)
		}
		want := le[e.Binding].Type
		switch {
		case want == gpucore.BindingUniform && b.usage&gpucore.BufferUsageUniform == 0:
			return gpucore.InvalidID, fmt.Errorf("software: buffer %q bound as uniform without uniform usage", b.label)
		case want != gpucore.BindingUniform && b.usage&gpucore.BufferUsageStorage == 0:
			return gpucore.InvalidID, fmt.Errorf("software: buffer %q bound as storage without storage usage", b.label)
		}
		for j := range i {
			if bufs[j] == b && (want == gpucore.BindingStorage || le[entries[j].Binding].Type == gpucore.BindingStorage) {
				return gpucore.InvalidID, fmt.Errorf("software: buffer %q bound writable twice in one group", b.label)
			}
		}
		bufs[i] = b
	}

	id := gpucore.BindGroupID(a.newID())
	a.bindGroups[id] = &bindGroup{id: id, entries: append([]gpucore.BindGroupEntry(nil), entries...), buffers: bufs}
	return id, nil
}

// DestroyBindGroup implements gpucore.GPUAdapter.
func (a *Adapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.bindGroups[id]
	if !ok {
		return
	}
	for _, o := range a.queue {
		for _, c := range o.commands {
			if c.group == g {
				a.violations = append(a.violations,
					fmt.Sprintf("bind group %d destroyed while queued work references it", id))
				delete(a.bindGroups, id)
				return
			}
		}
	}
	delete(a.bindGroups, id)
}

// BeginComputePass implements gpucore.GPUAdapter.
func (a *Adapter) BeginComputePass() (gpucore.ComputePassEncoder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, gpucore.ErrDeviceLost
	}
	return &computePass{adapter: a}, nil
}

// Submit moves the recorded passes onto the queue.
func (a *Adapter) Submit() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return gpucore.ErrDeviceLost
	}
	if len(a.recording) == 0 {
		return nil
	}
	a.queue = append(a.queue, op{commands: a.recording})
	a.recording = nil
	a.submits++
	return nil
}

// WaitIdle executes every queued operation in order.
func (a *Adapter) WaitIdle() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return gpucore.ErrDeviceLost
	}
	a.flushLocked()
	return nil
}

func (a *Adapter) flushLocked() {
	queue := a.queue
	a.queue = nil
	for _, o := range queue {
		if o.write != nil {
			copy(o.write.data[o.offset:], o.data)
			continue
		}
		for _, c := range o.commands {
			run(c)
			a.dispatches++
		}
	}
}

func run(c dispatch) {
	d := &gpucore.Dispatch{
		Groups:   c.groups,
		Bindings: make(map[uint32][]byte, len(c.group.entries)),
	}
	for i, e := range c.group.entries {
		data := c.group.buffers[i].data
		end := uint64(len(data))
		if e.Size > 0 && e.Offset+e.Size < end {
			end = e.Offset + e.Size
		}
		d.Bindings[e.Binding] = data[e.Offset:end]
	}
	c.pipeline.kernel(d)
}

// Close releases every resource. Queued work is dropped.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.queue = nil
	a.recording = nil
	clear(a.buffers)
	clear(a.bindGroups)
	clear(a.pipelines)
	clear(a.modules)
	a.bytesLive = 0
}

// Violations returns the use-after-free violations recorded so far.
func (a *Adapter) Violations() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.violations...)
}

// Stats returns live resource counts and work counters.
func (a *Adapter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		LiveBuffers:    len(a.buffers),
		LiveBindGroups: len(a.bindGroups),
		LivePipelines:  len(a.pipelines),
		LiveModules:    len(a.modules),
		BytesLive:      a.bytesLive,
		Submits:        a.submits,
		Dispatches:     a.dispatches,
	}
}

// Pending reports whether submitted work has not executed yet.
func (a *Adapter) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue) > 0
}

// SetMemoryLimit changes the memory limit for subsequent allocations.
func (a *Adapter) SetMemoryLimit(n int) {
	a.mu.Lock()
	a.opts.MemoryLimit = n
	a.mu.Unlock()
}

// computePass implements gpucore.ComputePassEncoder.
type computePass struct {
	adapter  *Adapter
	pipeline *pipeline
	group    *bindGroup
}

func (p *computePass) SetPipeline(id gpucore.ComputePipelineID) {
	p.adapter.mu.Lock()
	p.pipeline = p.adapter.pipelines[id]
	p.adapter.mu.Unlock()
}

func (p *computePass) SetBindGroup(index uint32, id gpucore.BindGroupID) {
	if index != 0 {
		return
	}
	p.adapter.mu.Lock()
	p.group = p.adapter.bindGroups[id]
	p.adapter.mu.Unlock()
}

func (p *computePass) Dispatch(x, y, z uint32) {
	if p.pipeline == nil || p.group == nil {
		return
	}
	p.adapter.mu.Lock()
	p.adapter.recording = append(p.adapter.recording, dispatch{
		pipeline: p.pipeline,
		group:    p.group,
		groups:   [3]uint32{x, y, z},
	})
	p.adapter.mu.Unlock()
}

func (p *computePass) End() {}

var _ gpucore.GPUAdapter = (*Adapter)(nil)
