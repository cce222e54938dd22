//go:build !nogpu

// Package native implements gpucore.GPUAdapter on gogpu/wgpu's HAL layer.
//
// WGSL kernels are compiled to SPIR-V with naga. Work recorded through
// BeginComputePass goes into one pending command encoder that Submit
// closes and hands to the queue; WaitIdle waits for the device and frees
// every command buffer submitted since the last wait.
package native

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/scrim/gpucore"
	"github.com/gogpu/wgpu/hal"
)

// HALAdapter implements gpucore.GPUAdapter using gogpu/wgpu/hal directly.
//
// Thread Safety: HALAdapter is safe for concurrent use from multiple goroutines.
// Resource maps are protected by a mutex.
type HALAdapter struct {
	mu     sync.RWMutex
	name   string
	device hal.Device

	// deviceType is set by Open; NewHALAdapter leaves it DeviceTypeOther.
	deviceType gputypes.DeviceType

	queue  hal.Queue
	limits gputypes.Limits

	// release tears down what Open created beyond the device.
	release func()
	closed  bool

	// ID generation
	nextID atomic.Uint64

	// Resource tracking maps gpucore IDs to hal resources
	buffers          map[gpucore.BufferID]*buffer
	shaderModules    map[gpucore.ShaderModuleID]hal.ShaderModule
	computePipelines map[gpucore.ComputePipelineID]hal.ComputePipeline
	bindGroupLayouts map[gpucore.BindGroupLayoutID]hal.BindGroupLayout
	pipelineLayouts  map[gpucore.PipelineLayoutID]hal.PipelineLayout
	bindGroups       map[gpucore.BindGroupID]hal.BindGroup

	// Pending command encoder, opened by the first BeginComputePass after a Submit.
	encoder hal.CommandEncoder

	// Submitted command buffers not yet known to be complete.
	inflight []submission
}

type buffer struct {
	raw  hal.Buffer
	size uint64
}

type submission struct {
	encoder hal.CommandEncoder
	cmd     hal.CommandBuffer
}

// NewHALAdapter wraps an open device and queue. The adapter does not own
// the device; Close only releases the resources it created.
// If limits is nil, default limits are used.
func NewHALAdapter(name string, device hal.Device, queue hal.Queue, limits *gputypes.Limits) *HALAdapter {
	lim := gputypes.DefaultLimits()
	if limits != nil {
		lim = *limits
	}
	a := &HALAdapter{
		name:             name,
		device:           device,
		queue:            queue,
		limits:           lim,
		buffers:          make(map[gpucore.BufferID]*buffer),
		shaderModules:    make(map[gpucore.ShaderModuleID]hal.ShaderModule),
		computePipelines: make(map[gpucore.ComputePipelineID]hal.ComputePipeline),
		bindGroupLayouts: make(map[gpucore.BindGroupLayoutID]hal.BindGroupLayout),
		pipelineLayouts:  make(map[gpucore.PipelineLayoutID]hal.PipelineLayout),
		bindGroups:       make(map[gpucore.BindGroupID]hal.BindGroup),
	}
	// Start ID generation at 1 (0 is invalid)
	a.nextID.Store(1)
	return a
}

func (a *HALAdapter) newID() uint64 {
	return a.nextID.Add(1) - 1
}

// Name returns the adapter name reported by the driver.
func (a *HALAdapter) Name() string { return a.name }

// DeviceType reports the kind of device Open picked.
func (a *HALAdapter) DeviceType() gputypes.DeviceType { return a.deviceType }

// MaxBufferSize returns the largest buffer that can also be bound whole as
// a storage buffer.
func (a *HALAdapter) MaxBufferSize() uint64 {
	return min(a.limits.MaxBufferSize, a.limits.MaxStorageBufferBindingSize)
}

// === Shader Compilation ===

// CreateShaderModule compiles src.WGSL with naga and creates a module from
// the SPIR-V.
func (a *HALAdapter) CreateShaderModule(src gpucore.ShaderSource) (gpucore.ShaderModuleID, error) {
	if a.isClosed() {
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	}
	spirv, err := CompileShaderToSPIRV(src.WGSL)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: shader %s: %w", src.Label, err)
	}
	module, err := a.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  src.Label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return gpucore.InvalidID, wrapHALError("create shader module "+src.Label, err)
	}
	id := gpucore.ShaderModuleID(a.newID())
	a.mu.Lock()
	a.shaderModules[id] = module
	a.mu.Unlock()
	Logger().Debug("shader module created", "label", src.Label, "words", len(spirv))
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (a *HALAdapter) DestroyShaderModule(id gpucore.ShaderModuleID) {
	a.mu.Lock()
	module, ok := a.shaderModules[id]
	delete(a.shaderModules, id)
	a.mu.Unlock()
	if ok && !a.isClosed() {
		a.device.DestroyShaderModule(module)
	}
}

// === Buffers ===

// CreateBuffer allocates a buffer and clears it through the queue.
func (a *HALAdapter) CreateBuffer(label string, size int, usage gpucore.BufferUsage) (gpucore.BufferID, error) {
	if size <= 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: %d bytes", gpucore.ErrInvalidSize, size)
	}
	if a.isClosed() {
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	}
	sz := uint64(size)
	if sz > a.MaxBufferSize() {
		return gpucore.InvalidID, fmt.Errorf("%w: %s needs %d bytes, limit %d", gpucore.ErrOutOfMemory, label, sz, a.MaxBufferSize())
	}
	// Copies move whole words.
	alloc := (sz + 3) &^ 3
	raw, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  alloc,
		Usage: convertBufferUsage(usage),
	})
	if err != nil {
		return gpucore.InvalidID, wrapHALError("create buffer "+label, err)
	}
	if err := a.queue.WriteBuffer(raw, 0, make([]byte, alloc)); err != nil {
		a.device.DestroyBuffer(raw)
		return gpucore.InvalidID, wrapHALError("clear buffer "+label, err)
	}
	id := gpucore.BufferID(a.newID())
	a.mu.Lock()
	a.buffers[id] = &buffer{raw: raw, size: alloc}
	a.mu.Unlock()
	return id, nil
}

// DestroyBuffer releases a buffer.
func (a *HALAdapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	b, ok := a.buffers[id]
	delete(a.buffers, id)
	a.mu.Unlock()
	if ok && !a.isClosed() {
		a.device.DestroyBuffer(b.raw)
	}
}

// WriteBuffer schedules a queue write.
func (a *HALAdapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	a.mu.RLock()
	b, ok := a.buffers[id]
	closed := a.closed
	a.mu.RUnlock()
	if closed {
		return gpucore.ErrDeviceLost
	}
	if !ok {
		return fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, id)
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("%w: write of %d bytes at %d overruns %d", gpucore.ErrInvalidSize, len(data), offset, b.size)
	}
	if err := a.queue.WriteBuffer(b.raw, offset, data); err != nil {
		return wrapHALError("write buffer", err)
	}
	return nil
}

// ReadBuffer copies a range of id into a mappable staging buffer, waits for
// the device and copies the mapped bytes out.
func (a *HALAdapter) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	a.mu.RLock()
	b, ok := a.buffers[id]
	closed := a.closed
	a.mu.RUnlock()
	if closed {
		return nil, gpucore.ErrDeviceLost
	}
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, id)
	}
	if offset+size > b.size {
		return nil, fmt.Errorf("%w: read of %d bytes at %d overruns %d", gpucore.ErrInvalidSize, size, offset, b.size)
	}
	if size == 0 {
		return []byte{}, nil
	}

	// Copy whole words; the caller's range is sliced out afterwards.
	start := offset &^ 3
	end := min((offset+size+3)&^3, b.size)

	staging, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "readback",
		Size:  end - start,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, wrapHALError("create readback buffer", err)
	}
	defer a.device.DestroyBuffer(staging)

	enc, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "readback"})
	if err != nil {
		return nil, wrapHALError("create readback encoder", err)
	}
	defer enc.Destroy()
	if err := enc.BeginEncoding("readback"); err != nil {
		return nil, wrapHALError("begin readback", err)
	}
	enc.CopyBufferToBuffer(b.raw, staging, []hal.BufferCopy{{SrcOffset: start, DstOffset: 0, Size: end - start}})
	cmd, err := enc.EndEncoding()
	if err != nil {
		return nil, wrapHALError("end readback", err)
	}
	defer a.device.FreeCommandBuffer(cmd)
	if _, err := a.queue.Submit([]hal.CommandBuffer{cmd}); err != nil {
		return nil, wrapHALError("submit readback", err)
	}
	if err := a.WaitIdle(); err != nil {
		return nil, err
	}

	mapping, err := a.device.MapBuffer(staging, 0, end-start)
	if err != nil {
		return nil, wrapHALError("map readback", err)
	}
	mapped := unsafe.Slice((*byte)(mapping.Ptr), end-start)
	out := make([]byte, size)
	copy(out, mapped[offset-start:])
	if err := a.device.UnmapBuffer(staging); err != nil {
		return nil, wrapHALError("unmap readback", err)
	}
	return out, nil
}

// === Bindings and Pipelines ===

// CreateBindGroupLayout creates a layout of compute-visible buffer slots.
func (a *HALAdapter) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	if a.isClosed() {
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	}
	entries := make([]gputypes.BindGroupLayoutEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		entries[i] = convertBindGroupLayoutEntry(e)
	}
	layout, err := a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: entries,
	})
	if err != nil {
		return gpucore.InvalidID, wrapHALError("create bind group layout "+desc.Label, err)
	}
	id := gpucore.BindGroupLayoutID(a.newID())
	a.mu.Lock()
	a.bindGroupLayouts[id] = layout
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (a *HALAdapter) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	a.mu.Lock()
	layout, ok := a.bindGroupLayouts[id]
	delete(a.bindGroupLayouts, id)
	a.mu.Unlock()
	if ok && !a.isClosed() {
		a.device.DestroyBindGroupLayout(layout)
	}
}

// CreatePipelineLayout creates a pipeline layout from bind group layouts.
func (a *HALAdapter) CreatePipelineLayout(layouts []gpucore.BindGroupLayoutID) (gpucore.PipelineLayoutID, error) {
	a.mu.RLock()
	closed := a.closed
	halLayouts := make([]hal.BindGroupLayout, len(layouts))
	for i, id := range layouts {
		l, ok := a.bindGroupLayouts[id]
		if !ok {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", gpucore.ErrUnknownResource, id)
		}
		halLayouts[i] = l
	}
	a.mu.RUnlock()
	if closed {
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	}

	pl, err := a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{BindGroupLayouts: halLayouts})
	if err != nil {
		return gpucore.InvalidID, wrapHALError("create pipeline layout", err)
	}
	id := gpucore.PipelineLayoutID(a.newID())
	a.mu.Lock()
	a.pipelineLayouts[id] = pl
	a.mu.Unlock()
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (a *HALAdapter) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	a.mu.Lock()
	pl, ok := a.pipelineLayouts[id]
	delete(a.pipelineLayouts, id)
	a.mu.Unlock()
	if ok && !a.isClosed() {
		a.device.DestroyPipelineLayout(pl)
	}
}

// CreateComputePipeline creates a compute pipeline.
func (a *HALAdapter) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	a.mu.RLock()
	closed := a.closed
	layout, okLayout := a.pipelineLayouts[desc.Layout]
	module, okModule := a.shaderModules[desc.ShaderModule]
	a.mu.RUnlock()
	switch {
	case closed:
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	case !okLayout:
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline layout %d", gpucore.ErrUnknownResource, desc.Layout)
	case !okModule:
		return gpucore.InvalidID, fmt.Errorf("%w: shader module %d", gpucore.ErrUnknownResource, desc.ShaderModule)
	}

	pipeline, err := a.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return gpucore.InvalidID, wrapHALError("create compute pipeline "+desc.Label, err)
	}
	id := gpucore.ComputePipelineID(a.newID())
	a.mu.Lock()
	a.computePipelines[id] = pipeline
	a.mu.Unlock()
	Logger().Debug("compute pipeline created", "label", desc.Label, "entry", desc.EntryPoint)
	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (a *HALAdapter) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	p, ok := a.computePipelines[id]
	delete(a.computePipelines, id)
	a.mu.Unlock()
	if ok && !a.isClosed() {
		a.device.DestroyComputePipeline(p)
	}
}

// CreateBindGroup binds buffer ranges to the slots of layout.
func (a *HALAdapter) CreateBindGroup(layout gpucore.BindGroupLayoutID, entries []gpucore.BindGroupEntry) (gpucore.BindGroupID, error) {
	a.mu.RLock()
	closed := a.closed
	halLayout, ok := a.bindGroupLayouts[layout]
	if !ok {
		a.mu.RUnlock()
		return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", gpucore.ErrUnknownResource, layout)
	}
	halEntries := make([]gputypes.BindGroupEntry, len(entries))
	for i, e := range entries {
		b, ok := a.buffers[e.Buffer]
		if !ok {
			a.mu.RUnlock()
			return gpucore.InvalidID, fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, e.Buffer)
		}
		halEntries[i] = gputypes.BindGroupEntry{
			Binding: e.Binding,
			Resource: gputypes.BufferBinding{
				Buffer: b.raw.NativeHandle(),
				Offset: e.Offset,
				Size:   e.Size,
			},
		}
	}
	a.mu.RUnlock()
	if closed {
		return gpucore.InvalidID, gpucore.ErrDeviceLost
	}

	group, err := a.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Layout:  halLayout,
		Entries: halEntries,
	})
	if err != nil {
		return gpucore.InvalidID, wrapHALError("create bind group", err)
	}
	id := gpucore.BindGroupID(a.newID())
	a.mu.Lock()
	a.bindGroups[id] = group
	a.mu.Unlock()
	return id, nil
}

// DestroyBindGroup releases a bind group.
func (a *HALAdapter) DestroyBindGroup(id gpucore.BindGroupID) {
	a.mu.Lock()
	g, ok := a.bindGroups[id]
	delete(a.bindGroups, id)
	a.mu.Unlock()
	if ok && !a.isClosed() {
		a.device.DestroyBindGroup(g)
	}
}

// === Command Recording ===

// BeginComputePass starts a compute pass in the pending encoder, opening
// the encoder if no work is pending.
func (a *HALAdapter) BeginComputePass() (gpucore.ComputePassEncoder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, gpucore.ErrDeviceLost
	}
	if a.encoder == nil {
		enc, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "frame"})
		if err != nil {
			return nil, wrapHALError("create command encoder", err)
		}
		if err := enc.BeginEncoding("frame"); err != nil {
			enc.Destroy()
			return nil, wrapHALError("begin encoding", err)
		}
		a.encoder = enc
	}
	pass := a.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "effect"})
	return &halComputePassEncoder{adapter: a, pass: pass}, nil
}

// Submit closes the pending encoder and submits it. Without pending work
// it does nothing.
func (a *HALAdapter) Submit() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return gpucore.ErrDeviceLost
	}
	if a.encoder == nil {
		return nil
	}
	enc := a.encoder
	a.encoder = nil
	cmd, err := enc.EndEncoding()
	if err != nil {
		enc.Destroy()
		return wrapHALError("end encoding", err)
	}
	if _, err := a.queue.Submit([]hal.CommandBuffer{cmd}); err != nil {
		a.device.FreeCommandBuffer(cmd)
		enc.Destroy()
		return wrapHALError("submit", err)
	}
	a.inflight = append(a.inflight, submission{encoder: enc, cmd: cmd})
	return nil
}

// WaitIdle waits for the device and frees completed command buffers.
func (a *HALAdapter) WaitIdle() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return gpucore.ErrDeviceLost
	}
	if err := a.device.WaitIdle(); err != nil {
		return wrapHALError("wait idle", err)
	}
	for _, s := range a.inflight {
		a.device.FreeCommandBuffer(s.cmd)
		s.encoder.Destroy()
	}
	a.inflight = a.inflight[:0]
	return nil
}

// Close waits for the device, releases every tracked resource and, when
// the adapter came from Open, the device itself. Later calls fail with
// gpucore.ErrDeviceLost.
func (a *HALAdapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if err := a.device.WaitIdle(); err != nil {
		Logger().Warn("native: wait idle on close", "err", err)
	}
	if a.encoder != nil {
		a.encoder.DiscardEncoding()
		a.encoder.Destroy()
		a.encoder = nil
	}
	for _, s := range a.inflight {
		a.device.FreeCommandBuffer(s.cmd)
		s.encoder.Destroy()
	}
	a.inflight = nil

	for id, g := range a.bindGroups {
		a.device.DestroyBindGroup(g)
		delete(a.bindGroups, id)
	}
	for id, p := range a.computePipelines {
		a.device.DestroyComputePipeline(p)
		delete(a.computePipelines, id)
	}
	for id, pl := range a.pipelineLayouts {
		a.device.DestroyPipelineLayout(pl)
		delete(a.pipelineLayouts, id)
	}
	for id, l := range a.bindGroupLayouts {
		a.device.DestroyBindGroupLayout(l)
		delete(a.bindGroupLayouts, id)
	}
	for id, m := range a.shaderModules {
		a.device.DestroyShaderModule(m)
		delete(a.shaderModules, id)
	}
	for id, b := range a.buffers {
		a.device.DestroyBuffer(b.raw)
		delete(a.buffers, id)
	}
	a.closed = true
	if a.release != nil {
		a.release()
	}
	Logger().Info("native adapter closed", "name", a.name)
}

func (a *HALAdapter) isClosed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.closed
}

// === Compute Pass Encoder ===

// halComputePassEncoder implements gpucore.ComputePassEncoder.
type halComputePassEncoder struct {
	adapter *HALAdapter
	pass    hal.ComputePassEncoder
}

// SetPipeline sets the active compute pipeline.
func (e *halComputePassEncoder) SetPipeline(pipeline gpucore.ComputePipelineID) {
	e.adapter.mu.RLock()
	p, ok := e.adapter.computePipelines[pipeline]
	e.adapter.mu.RUnlock()
	if ok {
		e.pass.SetPipeline(p)
	}
}

// SetBindGroup sets a bind group at the specified index.
func (e *halComputePassEncoder) SetBindGroup(index uint32, group gpucore.BindGroupID) {
	e.adapter.mu.RLock()
	g, ok := e.adapter.bindGroups[group]
	e.adapter.mu.RUnlock()
	if ok {
		e.pass.SetBindGroup(index, g, nil)
	}
}

// Dispatch dispatches compute workgroups.
func (e *halComputePassEncoder) Dispatch(x, y, z uint32) {
	e.pass.Dispatch(x, y, z)
}

// End finishes the compute pass.
func (e *halComputePassEncoder) End() {
	e.pass.End()
}

// === Conversion helpers ===

func convertBufferUsage(u gpucore.BufferUsage) gputypes.BufferUsage {
	var out gputypes.BufferUsage
	if u&gpucore.BufferUsageMapRead != 0 {
		out |= gputypes.BufferUsageMapRead
	}
	if u&gpucore.BufferUsageCopySrc != 0 {
		out |= gputypes.BufferUsageCopySrc
	}
	if u&gpucore.BufferUsageCopyDst != 0 {
		out |= gputypes.BufferUsageCopyDst
	}
	if u&gpucore.BufferUsageUniform != 0 {
		out |= gputypes.BufferUsageUniform
	}
	if u&gpucore.BufferUsageStorage != 0 {
		out |= gputypes.BufferUsageStorage
	}
	// Queue writes need a copy destination.
	return out | gputypes.BufferUsageCopyDst
}

// convertBindGroupLayoutEntry converts a gpucore slot to a compute-visible
// buffer binding.
func convertBindGroupLayoutEntry(entry gpucore.BindGroupLayoutEntry) gputypes.BindGroupLayoutEntry {
	t := gputypes.BufferBindingTypeStorage
	switch entry.Type {
	case gpucore.BindingUniform:
		t = gputypes.BufferBindingTypeUniform
	case gpucore.BindingReadOnlyStorage:
		t = gputypes.BufferBindingTypeReadOnlyStorage
	}
	return gputypes.BindGroupLayoutEntry{
		Binding:    entry.Binding,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: t},
	}
}

// wrapHALError maps HAL sentinels onto gpucore's so callers can classify
// them.
func wrapHALError(op string, err error) error {
	switch {
	case errors.Is(err, hal.ErrDeviceLost):
		return fmt.Errorf("%w: %s: %w", gpucore.ErrDeviceLost, op, err)
	case errors.Is(err, hal.ErrDeviceOutOfMemory):
		return fmt.Errorf("%w: %s: %w", gpucore.ErrOutOfMemory, op, err)
	default:
		return fmt.Errorf("native: %s: %w", op, err)
	}
}
