package gpucore

import (
	"errors"
	"fmt"
)

// ProgramDesc configures a Program.
type ProgramDesc struct {
	// Label names the program in diagnostics and backend debug labels.
	Label string

	// Source holds the WGSL and CPU renditions of the kernel.
	Source ShaderSource

	// EntryPoint defaults to "main".
	EntryPoint string

	// Bindings lists the binding types of group 0, slot i at index i.
	Bindings []BindingType
}

// Program owns every pipeline object needed to dispatch one compute kernel.
type Program struct {
	adapter GPUAdapter
	label   string

	module         ShaderModuleID
	bindLayout     BindGroupLayoutID
	pipelineLayout PipelineLayoutID
	pipeline       ComputePipelineID
	bindings       []BindingType
}

// NewProgram compiles the kernel and builds its pipeline. On failure every
// object created so far is released.
func NewProgram(adapter GPUAdapter, desc ProgramDesc) (*Program, error) {
	if adapter == nil {
		return nil, errors.New("gpucore: adapter is required")
	}
	if len(desc.Bindings) == 0 {
		return nil, fmt.Errorf("gpucore: program %q declares no bindings", desc.Label)
	}
	entry := desc.EntryPoint
	if entry == "" {
		entry = "main"
	}
	src := desc.Source
	if src.Label == "" {
		src.Label = desc.Label
	}

	p := &Program{adapter: adapter, label: desc.Label, bindings: append([]BindingType(nil), desc.Bindings...)}

	var err error
	if p.module, err = adapter.CreateShaderModule(src); err != nil {
		return nil, fmt.Errorf("gpucore: %s: shader module: %w", desc.Label, err)
	}

	entries := make([]BindGroupLayoutEntry, len(desc.Bindings))
	for i, t := range desc.Bindings {
		entries[i] = BindGroupLayoutEntry{Binding: uint32(i), Type: t} //nolint:gosec // small slot count
	}
	if p.bindLayout, err = adapter.CreateBindGroupLayout(&BindGroupLayoutDesc{Label: desc.Label, Entries: entries}); err != nil {
		p.Destroy()
		return nil, fmt.Errorf("gpucore: %s: bind group layout: %w", desc.Label, err)
	}
	if p.pipelineLayout, err = adapter.CreatePipelineLayout([]BindGroupLayoutID{p.bindLayout}); err != nil {
		p.Destroy()
		return nil, fmt.Errorf("gpucore: %s: pipeline layout: %w", desc.Label, err)
	}
	p.pipeline, err = adapter.CreateComputePipeline(&ComputePipelineDesc{
		Label:        desc.Label,
		Layout:       p.pipelineLayout,
		ShaderModule: p.module,
		EntryPoint:   entry,
	})
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("gpucore: %s: compute pipeline: %w", desc.Label, err)
	}
	return p, nil
}

// Label returns the program label.
func (p *Program) Label() string { return p.label }

// Bindings returns the number of binding slots the program expects.
func (p *Program) Bindings() int { return len(p.bindings) }

// Destroy releases the pipeline objects. It is safe to call more than once.
func (p *Program) Destroy() {
	if p == nil || p.adapter == nil {
		return
	}
	if p.pipeline != InvalidID {
		p.adapter.DestroyComputePipeline(p.pipeline)
		p.pipeline = InvalidID
	}
	if p.pipelineLayout != InvalidID {
		p.adapter.DestroyPipelineLayout(p.pipelineLayout)
		p.pipelineLayout = InvalidID
	}
	if p.bindLayout != InvalidID {
		p.adapter.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = InvalidID
	}
	if p.module != InvalidID {
		p.adapter.DestroyShaderModule(p.module)
		p.module = InvalidID
	}
}
