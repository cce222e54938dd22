//go:build !nogpu

package native

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/scrim/gpucore"
	"github.com/gogpu/wgpu/hal"
)

const fillWGSL = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64, 1, 1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    if (id.x < arrayLength(&data)) {
        data[id.x] = id.x * 3u;
    }
}
`

// openOrSkip opens a hardware device or skips the test on machines
// without one.
func openOrSkip(t *testing.T) *HALAdapter {
	t.Helper()
	a, err := Open()
	if err != nil {
		t.Skipf("no HAL device: %v", err)
	}
	t.Cleanup(a.Close)
	if a.DeviceType() == gputypes.DeviceTypeCPU {
		t.Skipf("%s is a CPU adapter", a.Name())
	}
	return a
}

func TestOpenOrderHardwareOnly(t *testing.T) {
	if slices.Contains(openOrder, gputypes.BackendEmpty) {
		t.Errorf("openOrder = %v, must not include the HAL CPU backend", openOrder)
	}
	if len(openOrder) == 0 || openOrder[0] != gputypes.BackendVulkan {
		t.Errorf("openOrder = %v, want Vulkan first", openOrder)
	}
}

func TestPickAdapter(t *testing.T) {
	exposed := func(types ...gputypes.DeviceType) []hal.ExposedAdapter {
		out := make([]hal.ExposedAdapter, len(types))
		for i, dt := range types {
			out[i].Info = gputypes.AdapterInfo{Name: fmt.Sprintf("dev%d", i), DeviceType: dt}
		}
		return out
	}
	tests := []struct {
		name     string
		adapters []hal.ExposedAdapter
		want     string
		ok       bool
	}{
		{"empty", nil, "", false},
		{"cpu only", exposed(gputypes.DeviceTypeCPU), "", false},
		{"integrated after cpu", exposed(gputypes.DeviceTypeCPU, gputypes.DeviceTypeIntegratedGPU), "dev1", true},
		{"discrete preferred", exposed(gputypes.DeviceTypeIntegratedGPU, gputypes.DeviceTypeDiscreteGPU), "dev1", true},
		{"first non-cpu", exposed(gputypes.DeviceTypeVirtualGPU, gputypes.DeviceTypeIntegratedGPU), "dev0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickAdapter(tt.adapters)
			if ok != tt.ok || got.Info.Name != tt.want {
				t.Errorf("pickAdapter() = %q, %v; want %q, %v", got.Info.Name, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestCompileShaderToSPIRV(t *testing.T) {
	words, err := CompileShaderToSPIRV(fillWGSL)
	if err != nil {
		t.Fatalf("CompileShaderToSPIRV() error = %v", err)
	}
	if len(words) < 5 || words[0] != 0x07230203 {
		t.Errorf("SPIR-V header = %x, want magic 07230203", words[:min(len(words), 1)])
	}
	if _, err := CompileShaderToSPIRV("fn broken("); !errors.Is(err, ErrShaderCompile) {
		t.Errorf("invalid WGSL error = %v, want ErrShaderCompile", err)
	}
}

func TestSPIRVWordsLittleEndian(t *testing.T) {
	got := spirvWords([]byte{0x03, 0x02, 0x23, 0x07, 0x01, 0x00, 0x00, 0x00})
	if len(got) != 2 || got[0] != 0x07230203 || got[1] != 1 {
		t.Errorf("spirvWords() = %x", got)
	}
}

func TestConvertBufferUsage(t *testing.T) {
	tests := []struct {
		in   gpucore.BufferUsage
		want gputypes.BufferUsage
	}{
		{gpucore.ImageUsage, gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst},
		{gpucore.UniformUsage, gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst},
		{gpucore.BufferUsageStorage, gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst},
		{gpucore.BufferUsageMapRead, gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst},
	}
	for _, tt := range tests {
		if got := convertBufferUsage(tt.in); got != tt.want {
			t.Errorf("convertBufferUsage(%b) = %b, want %b", tt.in, got, tt.want)
		}
	}
}

func TestConvertBindGroupLayoutEntry(t *testing.T) {
	tests := []struct {
		in   gpucore.BindingType
		want gputypes.BufferBindingType
	}{
		{gpucore.BindingUniform, gputypes.BufferBindingTypeUniform},
		{gpucore.BindingStorage, gputypes.BufferBindingTypeStorage},
		{gpucore.BindingReadOnlyStorage, gputypes.BufferBindingTypeReadOnlyStorage},
	}
	for _, tt := range tests {
		e := convertBindGroupLayoutEntry(gpucore.BindGroupLayoutEntry{Binding: 3, Type: tt.in})
		if e.Binding != 3 || e.Visibility != gputypes.ShaderStageCompute || e.Buffer == nil || e.Buffer.Type != tt.want {
			t.Errorf("%v: entry = %+v", tt.in, e)
		}
	}
}

func TestWrapHALError(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{hal.ErrDeviceLost, gpucore.ErrDeviceLost},
		{fmt.Errorf("vk: %w", hal.ErrDeviceOutOfMemory), gpucore.ErrOutOfMemory},
	}
	for _, tt := range tests {
		if got := wrapHALError("op", tt.err); !errors.Is(got, tt.want) || !errors.Is(got, tt.err) {
			t.Errorf("wrapHALError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
	other := errors.New("driver said no")
	if got := wrapHALError("op", other); errors.Is(got, gpucore.ErrDeviceLost) || !errors.Is(got, other) {
		t.Errorf("wrapHALError(other) = %v", got)
	}
}

func TestBufferRoundTrip(t *testing.T) {
	a := openOrSkip(t)
	id, err := a.CreateBuffer("round-trip", 64, gpucore.ImageUsage)
	if err != nil {
		t.Fatal(err)
	}
	defer a.DestroyBuffer(id)

	zeros, err := a.ReadBuffer(id, 0, 64)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(zeros, make([]byte, 64)) {
		t.Errorf("new buffer not zeroed: %x", zeros)
	}

	data := []byte("scrim overlay test pattern bytes")
	if err := a.WriteBuffer(id, 16, data); err != nil {
		t.Fatal(err)
	}
	// An unaligned range still comes back exactly.
	got, err := a.ReadBuffer(id, 17, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data[1:11]) {
		t.Errorf("ReadBuffer(17, 10) = %q, want %q", got, data[1:11])
	}
}

func TestComputeDispatch(t *testing.T) {
	a := openOrSkip(t)
	const n = 256
	buf, err := a.CreateBuffer("fill", n*4, gpucore.ImageUsage)
	if err != nil {
		t.Fatal(err)
	}
	module, err := a.CreateShaderModule(gpucore.ShaderSource{Label: "fill", WGSL: fillWGSL})
	if err != nil {
		t.Fatal(err)
	}
	bgl, err := a.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label:   "fill",
		Entries: []gpucore.BindGroupLayoutEntry{{Binding: 0, Type: gpucore.BindingStorage}},
	})
	if err != nil {
		t.Fatal(err)
	}
	pl, err := a.CreatePipelineLayout([]gpucore.BindGroupLayoutID{bgl})
	if err != nil {
		t.Fatal(err)
	}
	pipeline, err := a.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label: "fill", Layout: pl, ShaderModule: module, EntryPoint: "main",
	})
	if err != nil {
		t.Fatal(err)
	}
	group, err := a.CreateBindGroup(bgl, []gpucore.BindGroupEntry{{Binding: 0, Buffer: buf}})
	if err != nil {
		t.Fatal(err)
	}

	pass, err := a.BeginComputePass()
	if err != nil {
		t.Fatal(err)
	}
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, group)
	pass.Dispatch(n/64, 1, 1)
	pass.End()
	if err := a.Submit(); err != nil {
		t.Fatal(err)
	}

	out, err := a.ReadBuffer(buf, 0, n*4)
	if err != nil {
		t.Fatal(err)
	}
	for i := range n {
		v := uint32(out[i*4]) | uint32(out[i*4+1])<<8 | uint32(out[i*4+2])<<16 | uint32(out[i*4+3])<<24
		if v != uint32(i*3) {
			t.Fatalf("data[%d] = %d, want %d", i, v, i*3)
		}
	}
}

func TestClosedAdapterReportsDeviceLost(t *testing.T) {
	a, err := Open()
	if err != nil {
		t.Skipf("no HAL device: %v", err)
	}
	id, err := a.CreateBuffer("gone", 16, gpucore.ImageUsage)
	if err != nil {
		t.Fatal(err)
	}
	a.Close()
	if err := a.WriteBuffer(id, 0, []byte{1}); !errors.Is(err, gpucore.ErrDeviceLost) {
		t.Errorf("WriteBuffer after Close = %v, want ErrDeviceLost", err)
	}
	if err := a.WaitIdle(); !errors.Is(err, gpucore.ErrDeviceLost) {
		t.Errorf("WaitIdle after Close = %v, want ErrDeviceLost", err)
	}
	a.Close()
}

func TestCreateBufferLimits(t *testing.T) {
	a := NewHALAdapter("limits", nil, nil, &gputypes.Limits{MaxBufferSize: 1024, MaxStorageBufferBindingSize: 512})
	if a.MaxBufferSize() != 512 {
		t.Errorf("MaxBufferSize() = %d, want 512", a.MaxBufferSize())
	}
	if _, err := a.CreateBuffer("big", 513, gpucore.ImageUsage); !errors.Is(err, gpucore.ErrOutOfMemory) {
		t.Errorf("CreateBuffer(513) error = %v, want ErrOutOfMemory", err)
	}
	if _, err := a.CreateBuffer("empty", 0, gpucore.ImageUsage); !errors.Is(err, gpucore.ErrInvalidSize) {
		t.Errorf("CreateBuffer(0) error = %v, want ErrInvalidSize", err)
	}
}
