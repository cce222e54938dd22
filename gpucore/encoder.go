package gpucore

import (
	"errors"
	"fmt"
)

// Encoder errors.
var (
	// ErrEncoderFinished is returned when recording into a finished encoder.
	ErrEncoderFinished = errors.New("gpucore: encoder already finished")

	// ErrBindingCount is returned when a dispatch binds the wrong number of buffers.
	ErrBindingCount = errors.New("gpucore: binding count mismatch")
)

// Encoder records the compute dispatches of one frame.
//
// Each Dispatch gets its own compute pass so that consecutive dispatches
// are separated by the implicit storage barrier between passes. Bind
// groups created for a dispatch live until Finish has waited for the
// frame's work to complete.
//
// Encoder is NOT safe for concurrent use.
type Encoder struct {
	adapter    GPUAdapter
	groups     []BindGroupID
	dispatches int
	finished   bool
}

// NewEncoder starts recording a frame on adapter.
func NewEncoder(adapter GPUAdapter) *Encoder {
	return &Encoder{adapter: adapter}
}

// Adapter returns the adapter the encoder records on.
func (e *Encoder) Adapter() GPUAdapter { return e.adapter }

// Dispatches returns the number of dispatches recorded so far.
func (e *Encoder) Dispatches() int { return e.dispatches }

// Dispatch records one run of p over x by y workgroups. Buffer i of
// buffers is bound whole at slot i.
func (e *Encoder) Dispatch(p *Program, buffers []BufferID, x, y uint32) error {
	if e.finished {
		return ErrEncoderFinished
	}
	if len(buffers) != p.Bindings() {
		return fmt.Errorf("%w: %s wants %d, got %d", ErrBindingCount, p.Label(), p.Bindings(), len(buffers))
	}
	if x == 0 || y == 0 {
		return nil
	}

	entries := make([]BindGroupEntry, len(buffers))
	for i, b := range buffers {
		entries[i] = BindGroupEntry{Binding: uint32(i), Buffer: b} //nolint:gosec // small slot count
	}
	group, err := e.adapter.CreateBindGroup(p.bindLayout, entries)
	if err != nil {
		return fmt.Errorf("gpucore: %s: bind group: %w", p.Label(), err)
	}
	e.groups = append(e.groups, group)

	pass, err := e.adapter.BeginComputePass()
	if err != nil {
		return fmt.Errorf("gpucore: %s: begin pass: %w", p.Label(), err)
	}
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, group)
	pass.Dispatch(x, y, 1)
	pass.End()
	e.dispatches++
	return nil
}

// DispatchImage records a dispatch covering every texel of a w x h image.
func (e *Encoder) DispatchImage(p *Program, buffers []BufferID, w, h int) error {
	x, y := Workgroups(w, h)
	return e.Dispatch(p, buffers, x, y)
}

// Finish submits the recorded work, waits for it to complete and releases
// the frame's bind groups. The encoder cannot be reused afterwards.
func (e *Encoder) Finish() error {
	if e.finished {
		return ErrEncoderFinished
	}
	e.finished = true

	var err error
	if e.dispatches > 0 {
		if err = e.adapter.Submit(); err == nil {
			err = e.adapter.WaitIdle()
		}
	}
	e.release()
	if err != nil {
		return fmt.Errorf("gpucore: finish frame: %w", err)
	}
	return nil
}

// Discard drops the encoder without submitting. Any pass already recorded
// on the adapter is submitted and waited for so the bind groups can go.
func (e *Encoder) Discard() {
	if e.finished {
		return
	}
	e.finished = true
	if e.dispatches > 0 {
		if err := e.adapter.Submit(); err != nil {
			Logger().Debug("gpucore: discard: submit failed", "err", err)
		} else if err := e.adapter.WaitIdle(); err != nil {
			Logger().Debug("gpucore: discard: wait failed", "err", err)
		}
	}
	e.release()
}

func (e *Encoder) release() {
	for _, g := range e.groups {
		e.adapter.DestroyBindGroup(g)
	}
	e.groups = nil
}
