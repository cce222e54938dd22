//go:build !nogpu

package native

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/scrim/backend"
	"github.com/gogpu/scrim/gpucore"
	"github.com/gogpu/wgpu/hal"

	// HAL backend tried by Open.
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

func init() {
	backend.Register(backend.BackendNative, func() (gpucore.GPUAdapter, error) {
		return Open()
	})
}

// openOrder lists the HAL backends Open tries. The HAL's CPU device is left
// out: its interpreter drops storage writes of the pad and wobbly kernels,
// and backend/software covers machines without a GPU.
var openOrder = []gputypes.Backend{gputypes.BackendVulkan}

// Open opens the best hardware device the HAL offers. CPU adapters are
// skipped. The returned adapter owns the device and releases it on Close.
func Open() (*HALAdapter, error) {
	var errs []error
	for _, variant := range openOrder {
		a, err := openBackend(variant)
		if err == nil {
			return a, nil
		}
		Logger().Debug("native: backend unavailable", "backend", variant.String(), "err", err)
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%w: %w", ErrNoGPU, errors.Join(errs...))
}

func openBackend(variant gputypes.Backend) (*HALAdapter, error) {
	b, ok := hal.GetBackend(variant)
	if !ok {
		return nil, fmt.Errorf("%s: %w", variant, hal.ErrBackendNotFound)
	}
	instance, err := b.CreateInstance(&hal.InstanceDescriptor{})
	if err != nil {
		return nil, fmt.Errorf("%s: create instance: %w", variant, err)
	}
	exposed := instance.EnumerateAdapters(nil)
	if len(exposed) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%s: no adapters", variant)
	}
	pick, ok := pickAdapter(exposed)
	if !ok {
		instance.Destroy()
		return nil, fmt.Errorf("%s: only CPU adapters", variant)
	}
	od, err := pick.Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("%s: open %s: %w", variant, pick.Info.Name, err)
	}

	limits := pick.Capabilities.Limits
	a := NewHALAdapter(pick.Info.Name, od.Device, od.Queue, &limits)
	a.deviceType = pick.Info.DeviceType
	a.release = func() {
		od.Device.Destroy()
		pick.Adapter.Destroy()
		instance.Destroy()
	}
	Logger().Info("native adapter opened", "backend", variant.String(), "name", pick.Info.Name)
	return a, nil
}

// pickAdapter prefers a discrete GPU, then any other non-CPU adapter in
// enumeration order.
func pickAdapter(exposed []hal.ExposedAdapter) (hal.ExposedAdapter, bool) {
	var pick hal.ExposedAdapter
	found := false
	for _, e := range exposed {
		switch e.Info.DeviceType {
		case gputypes.DeviceTypeCPU:
			continue
		case gputypes.DeviceTypeDiscreteGPU:
			return e, true
		}
		if !found {
			pick, found = e, true
		}
	}
	return pick, found
}
