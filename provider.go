package gcompute

import (
	"fmt"
	"sync"

	"github.com/gogpu/gcompute/device"
	"github.com/gogpu/gcompute/native"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// halProvider is implemented by device providers that expose their HAL
// device and queue. gogpu's application context and HostDevice both do.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// infoProvider is implemented by device providers that describe their device.
type infoProvider interface {
	DeviceInfo() device.Info
}

// toNative reinterprets a provider as the native context it is built on.
// The result is a view; it is recomputed on every call and never stored.
func toNative(provider gpucontext.DeviceProvider) (native.Context, error) {
	hp, ok := provider.(halProvider)
	if !ok {
		return native.Context{}, fmt.Errorf("%w: provider does not expose HAL types", ErrInvalidArgument)
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return native.Context{}, fmt.Errorf("%w: provider HalDevice is not hal.Device", ErrInvalidArgument)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return native.Context{}, fmt.Errorf("%w: provider HalQueue is not hal.Queue", ErrInvalidArgument)
	}
	return native.Context{Device: dev, Queue: queue}, nil
}

// Backend creates HAL instances. Every hal.Backend satisfies it.
type Backend interface {
	CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error)
}

var _ gpucontext.DeviceProvider = (*HostDevice)(nil)

// HostDevice is a gpucontext.DeviceProvider over a HAL device and queue.
// It lets gcompute run without a host framework: either on a device the
// caller already opened (FromNative) or on one HostDevice opens itself (Open).
type HostDevice struct {
	device hal.Device
	queue  hal.Queue
	info   device.Info

	// instance is set when HostDevice opened the device and owns it.
	instance hal.Instance

	mu     sync.Mutex
	closed bool
}

// FromNative wraps an existing HAL device and queue. The HostDevice does not
// own them; Close leaves both untouched.
func FromNative(dev hal.Device, queue hal.Queue, info device.Info) (*HostDevice, error) {
	if dev == nil || queue == nil {
		return nil, fmt.Errorf("%w: nil device or queue", ErrInvalidArgument)
	}
	return &HostDevice{device: dev, queue: queue, info: info}, nil
}

// Open creates an instance on backend and opens its preferred adapter:
// the first discrete or integrated GPU, otherwise the first adapter listed.
// The returned HostDevice owns the device and must be closed.
func Open(backend Backend) (*HostDevice, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: nil backend", ErrInvalidArgument)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitialization, nativeError("CreateInstance", err))
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: no adapters found", ErrInitialization)
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	limits := gputypes.DefaultLimits()
	openDev, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("%w: %w", ErrInitialization, nativeError("Open", err))
	}

	h := &HostDevice{
		device:   openDev.Device,
		queue:    openDev.Queue,
		info:     device.Query(selected.Info, limits),
		instance: instance,
	}
	slogger().Info("gcompute: device opened", "device", h.info.String())
	return h, nil
}

// Device returns the device handle of the host model.
func (h *HostDevice) Device() gpucontext.Device { return hostDeviceHandle{h} }

// Queue returns the queue handle of the host model.
func (h *HostDevice) Queue() gpucontext.Queue { return hostQueueHandle{h} }

// Adapter returns the adapter handle of the host model.
func (h *HostDevice) Adapter() gpucontext.Adapter { return hostAdapterHandle{h} }

// SurfaceFormat reports TextureFormatUndefined: a HostDevice has no surface.
func (h *HostDevice) SurfaceFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatUndefined
}

// HalDevice returns the HAL device as hal.Device.
func (h *HostDevice) HalDevice() any { return h.device }

// HalQueue returns the HAL queue as hal.Queue.
func (h *HostDevice) HalQueue() any { return h.queue }

// DeviceInfo returns the device description.
func (h *HostDevice) DeviceInfo() device.Info { return h.info }

// Owned reports whether Close destroys the device.
func (h *HostDevice) Owned() bool { return h.instance != nil }

// Close destroys the device and instance if HostDevice opened them.
// Close is idempotent.
func (h *HostDevice) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	if h.instance == nil {
		return // we don't own the device
	}
	h.device.Destroy()
	h.instance.Destroy()
}

// hostDeviceHandle is the gpucontext.Device view of a HostDevice.
type hostDeviceHandle struct{ h *HostDevice }

// Poll is a no-op: HAL submissions complete through fences.
func (d hostDeviceHandle) Poll(bool) {}

// Destroy closes the HostDevice.
func (d hostDeviceHandle) Destroy() { d.h.Close() }

// hostQueueHandle is the gpucontext.Queue view of a HostDevice.
type hostQueueHandle struct{ h *HostDevice }

// hostAdapterHandle is the gpucontext.Adapter view of a HostDevice.
type hostAdapterHandle struct{ h *HostDevice }
