package software

import (
	"bytes"
	"encoding/binary"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/gogpu/scrim/gpucore"
)

// doubleKernel writes 2*in[i] to out[i] for every word.
func doubleKernel(d *gpucore.Dispatch) {
	in, out := d.U32(0), d.U32(1)
	for i := range min(len(in), len(out)) {
		out[i] = in[i] * 2
	}
}

func newDoubleProgram(t *testing.T, a *Adapter) *gpucore.Program {
	t.Helper()
	p, err := gpucore.NewProgram(a, gpucore.ProgramDesc{
		Label:    "double",
		Source:   gpucore.ShaderSource{Kernel: doubleKernel},
		Bindings: []gpucore.BindingType{gpucore.BindingReadOnlyStorage, gpucore.BindingStorage},
	})
	if err != nil {
		t.Fatalf("NewProgram() error = %v", err)
	}
	t.Cleanup(p.Destroy)
	return p
}

func words(vals ...uint32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[i*4:], v)
	}
	return b
}

func mustBuffer(t *testing.T, a *Adapter, size int, usage gpucore.BufferUsage) gpucore.BufferID {
	t.Helper()
	id, err := a.CreateBuffer("test", size, usage)
	if err != nil {
		t.Fatalf("CreateBuffer(%d) error = %v", size, err)
	}
	return id
}

func TestDispatchRunsOnWaitIdle(t *testing.T) {
	a := New(Options{})
	p := newDoubleProgram(t, a)
	in := mustBuffer(t, a, 16, gpucore.ImageUsage)
	out := mustBuffer(t, a, 16, gpucore.ImageUsage)

	if err := a.WriteBuffer(in, 0, words(1, 2, 3, 4)); err != nil {
		t.Fatalf("WriteBuffer() error = %v", err)
	}

	enc := gpucore.NewEncoder(a)
	if err := enc.Dispatch(p, []gpucore.BufferID{in, out}, 1, 1); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if err := a.Submit(); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !a.Pending() {
		t.Fatal("Pending() = false after Submit, want queued work")
	}
	if err := enc.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if a.Pending() {
		t.Error("Pending() = true after Finish")
	}

	got, err := a.ReadBuffer(out, 0, 16)
	if err != nil {
		t.Fatalf("ReadBuffer() error = %v", err)
	}
	want := words(2, 4, 6, 8)
	if string(got) != string(want) {
		t.Errorf("output = %v, want %v", got, want)
	}
	if s := a.Stats(); s.Dispatches != 1 || s.LiveBindGroups != 0 {
		t.Errorf("Stats() = %+v, want 1 dispatch and no live bind groups", s)
	}
}

func TestWriteOrderedBehindQueuedWork(t *testing.T) {
	a := New(Options{})
	p := newDoubleProgram(t, a)
	in := mustBuffer(t, a, 4, gpucore.ImageUsage)
	out := mustBuffer(t, a, 4, gpucore.ImageUsage)
	_ = a.WriteBuffer(in, 0, words(5))

	enc := gpucore.NewEncoder(a)
	if err := enc.Dispatch(p, []gpucore.BufferID{in, out}, 1, 1); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	_ = a.Submit()
	// This write must not be visible to the dispatch submitted before it.
	_ = a.WriteBuffer(in, 0, words(100))

	got, _ := a.ReadBuffer(out, 0, 4)
	if v := binary.LittleEndian.Uint32(got); v != 10 {
		t.Errorf("out = %d, want 10", v)
	}
	got, _ = a.ReadBuffer(in, 0, 4)
	if v := binary.LittleEndian.Uint32(got); v != 100 {
		t.Errorf("in = %d, want 100", v)
	}
	enc.Discard()
}

func TestDestroyInFlightIsViolation(t *testing.T) {
	a := New(Options{})
	p := newDoubleProgram(t, a)
	in := mustBuffer(t, a, 4, gpucore.ImageUsage)
	out := mustBuffer(t, a, 4, gpucore.ImageUsage)

	enc := gpucore.NewEncoder(a)
	_ = enc.Dispatch(p, []gpucore.BufferID{in, out}, 1, 1)
	_ = a.Submit()
	a.DestroyBuffer(out)

	v := a.Violations()
	if len(v) != 1 || !strings.Contains(v[0], "destroyed while queued work") {
		t.Fatalf("Violations() = %q, want one in-flight destroy", v)
	}
	// Execution stays defined.
	if err := a.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}
	enc.Discard()
}

func TestDestroyAfterWaitIdleIsClean(t *testing.T) {
	a := New(Options{})
	p := newDoubleProgram(t, a)
	in := mustBuffer(t, a, 4, gpucore.ImageUsage)
	out := mustBuffer(t, a, 4, gpucore.ImageUsage)

	enc := gpucore.NewEncoder(a)
	_ = enc.Dispatch(p, []gpucore.BufferID{in, out}, 1, 1)
	if err := enc.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	a.DestroyBuffer(in)
	a.DestroyBuffer(out)
	if v := a.Violations(); len(v) != 0 {
		t.Errorf("Violations() = %q, want none", v)
	}
	if s := a.Stats(); s.LiveBuffers != 0 || s.BytesLive != 0 {
		t.Errorf("Stats() = %+v, want nothing live", s)
	}
}

func TestMemoryLimit(t *testing.T) {
	a := New(Options{MemoryLimit: 64})
	mustBuffer(t, a, 48, gpucore.ImageUsage)
	if _, err := a.CreateBuffer("big", 32, gpucore.ImageUsage); !errors.Is(err, gpucore.ErrOutOfMemory) {
		t.Fatalf("CreateBuffer over limit error = %v, want ErrOutOfMemory", err)
	}
	a.SetMemoryLimit(0)
	mustBuffer(t, a, 32, gpucore.ImageUsage)
}

func TestCreateBufferInvalidSize(t *testing.T) {
	a := New(Options{})
	for _, size := range []int{0, -4} {
		if _, err := a.CreateBuffer("bad", size, gpucore.ImageUsage); !errors.Is(err, gpucore.ErrInvalidSize) {
			t.Errorf("CreateBuffer(%d) error = %v, want ErrInvalidSize", size, err)
		}
	}
}

func TestPoison(t *testing.T) {
	a := New(Options{Poison: true})
	img := mustBuffer(t, a, 8, gpucore.ImageUsage)
	uni := mustBuffer(t, a, 16, gpucore.UniformUsage)

	got, _ := a.ReadBuffer(img, 0, 8)
	for i := 0; i < 8; i += 4 {
		if v := binary.LittleEndian.Uint32(got[i:]); v != PoisonTexel {
			t.Errorf("word %d = %#x, want poison", i/4, v)
		}
	}
	got, _ = a.ReadBuffer(uni, 0, 16)
	for _, b := range got {
		if b != 0 {
			t.Fatalf("uniform buffer poisoned: %v", got)
		}
	}

	// A size that is not a whole number of words poisons only whole words.
	odd := mustBuffer(t, a, 10, gpucore.ImageUsage)
	got, _ = a.ReadBuffer(odd, 0, 10)
	want := []byte{0xEF, 0xBE, 0xAD, 0xDE, 0xEF, 0xBE, 0xAD, 0xDE, 0, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("odd-sized buffer = %x, want %x", got, want)
	}
}

func TestBindGroupValidation(t *testing.T) {
	a := New(Options{})
	layout, err := a.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label: "pair",
		Entries: []gpucore.BindGroupLayoutEntry{
			{Binding: 0, Type: gpucore.BindingUniform},
			{Binding: 1, Type: gpucore.BindingStorage},
		},
	})
	if err != nil {
		t.Fatalf("CreateBindGroupLayout() error = %v", err)
	}
	uni := mustBuffer(t, a, 16, gpucore.UniformUsage)
	img := mustBuffer(t, a, 16, gpucore.ImageUsage)

	tests := []struct {
		name    string
		entries []gpucore.BindGroupEntry
		wantErr bool
	}{
		{"valid", []gpucore.BindGroupEntry{{Binding: 0, Buffer: uni}, {Binding: 1, Buffer: img}}, false},
		{"too few", []gpucore.BindGroupEntry{{Binding: 0, Buffer: uni}}, true},
		{"uniform without usage", []gpucore.BindGroupEntry{{Binding: 0, Buffer: img}, {Binding: 1, Buffer: img}}, true},
		{"storage without usage", []gpucore.BindGroupEntry{{Binding: 0, Buffer: uni}, {Binding: 1, Buffer: uni}}, true},
		{"unknown buffer", []gpucore.BindGroupEntry{{Binding: 0, Buffer: uni}, {Binding: 1, Buffer: 999}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := a.CreateBindGroup(layout, tt.entries)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CreateBindGroup() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				a.DestroyBindGroup(g)
			}
		})
	}
}

func TestWritableAliasRejected(t *testing.T) {
	a := New(Options{})
	p := newDoubleProgram(t, a)
	buf := mustBuffer(t, a, 16, gpucore.ImageUsage)

	enc := gpucore.NewEncoder(a)
	defer enc.Discard()
	if err := enc.Dispatch(p, []gpucore.BufferID{buf, buf}, 1, 1); err == nil {
		t.Fatal("Dispatch() with the same buffer in and out succeeded, want error")
	}
}

func TestShaderWithoutKernel(t *testing.T) {
	a := New(Options{})
	if _, err := a.CreateShaderModule(gpucore.ShaderSource{Label: "wgsl only", WGSL: "@compute fn main() {}"}); err == nil {
		t.Fatal("CreateShaderModule() without kernel succeeded")
	}
}

func TestCloseLosesDevice(t *testing.T) {
	a := New(Options{})
	mustBuffer(t, a, 4, gpucore.ImageUsage)
	a.Close()
	if _, err := a.CreateBuffer("after", 4, gpucore.ImageUsage); !errors.Is(err, gpucore.ErrDeviceLost) {
		t.Errorf("CreateBuffer after Close error = %v, want ErrDeviceLost", err)
	}
	if s := a.Stats(); s.LiveBuffers != 0 {
		t.Errorf("LiveBuffers = %d after Close", s.LiveBuffers)
	}
}

func TestDiscardLogsDeviceLoss(t *testing.T) {
	orig := gpucore.Logger()
	t.Cleanup(func() { gpucore.SetLogger(orig) })
	var buf bytes.Buffer
	gpucore.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	a := New(Options{})
	p := newDoubleProgram(t, a)
	in := mustBuffer(t, a, 4, gpucore.ImageUsage)
	out := mustBuffer(t, a, 4, gpucore.ImageUsage)
	enc := gpucore.NewEncoder(a)
	if err := enc.Dispatch(p, []gpucore.BufferID{in, out}, 1, 1); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	a.Close()
	enc.Discard()

	got := buf.String()
	if !strings.Contains(got, "level=DEBUG") || !strings.Contains(got, "discard: submit failed") {
		t.Errorf("log output = %q, want a debug record for the failed submit", got)
	}
	if !strings.Contains(got, gpucore.ErrDeviceLost.Error()) {
		t.Errorf("log output = %q, want the device-lost error", got)
	}
}
