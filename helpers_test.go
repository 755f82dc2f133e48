package gcompute

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/gcompute/device"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// createNoopDevice creates a noop device and queue for testing.
// Returns the device, queue, and a cleanup function.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

// testInfo describes the noop device as a GPU with a 1 MiB buffer limit.
func testInfo(kind device.Kind) device.Info {
	return device.Info{
		Name:          "noop",
		Kind:          kind,
		MaxBufferSize: 1 << 20,
	}
}

// fakeSPIRV is a compiler that skips naga and returns a bare SPIR-V header.
func fakeSPIRV(string) ([]uint32, error) {
	return []uint32{0x07230203, 0x00010300, 0, 1, 0}, nil
}

// countingCompiler wraps fakeSPIRV and counts compilations.
func countingCompiler(n *atomic.Int32) func(string) ([]uint32, error) {
	return func(src string) ([]uint32, error) {
		n.Add(1)
		return fakeSPIRV(src)
	}
}

// newTestHost wraps a fresh noop device in a HostDevice.
func newTestHost(t *testing.T, kind device.Kind) (*HostDevice, func()) {
	t.Helper()
	dev, queue, cleanup := createNoopDevice(t)
	h, err := FromNative(dev, queue, testInfo(kind))
	if err != nil {
		cleanup()
		t.Fatalf("FromNative failed: %v", err)
	}
	return h, cleanup
}

// newReadyEngine returns an initialized engine on a noop device using the
// built-in kernels and the fake compiler.
func newReadyEngine(t *testing.T, kind device.Kind, opts ...Option) (*Engine, *HostDevice) {
	t.Helper()
	h, cleanup := newTestHost(t, kind)
	t.Cleanup(cleanup)

	opts = append([]Option{WithCompiler(fakeSPIRV)}, opts...)
	e, err := NewEngine(kind, h, opts...)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if err := e.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(e.Close)
	return e, h
}

// mockDevice implements gpucontext.Device for testing.
type mockDevice struct{}

func (m *mockDevice) Poll(wait bool) {}
func (m *mockDevice) Destroy()       {}

// mockQueue implements gpucontext.Queue for testing.
type mockQueue struct{}

// mockAdapter implements gpucontext.Adapter for testing.
type mockAdapter struct{}

// mockProvider implements gpucontext.DeviceProvider without HAL access.
type mockProvider struct{}

func (m *mockProvider) Device() gpucontext.Device             { return &mockDevice{} }
func (m *mockProvider) Queue() gpucontext.Queue               { return &mockQueue{} }
func (m *mockProvider) Adapter() gpucontext.Adapter           { return &mockAdapter{} }
func (m *mockProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }

// wrongHALProvider exposes HAL accessors returning foreign types.
type wrongHALProvider struct{ mockProvider }

func (w *wrongHALProvider) HalDevice() any { return "not a device" }
func (w *wrongHALProvider) HalQueue() any  { return nil }

// newEngineOn returns an initialized GPU engine whose provider exposes dev.
func newEngineOn(t *testing.T, dev hal.Device, queue hal.Queue) *Engine {
	t.Helper()
	h, err := FromNative(dev, queue, testInfo(device.KindGPU))
	if err != nil {
		t.Fatalf("FromNative failed: %v", err)
	}
	e, err := NewEngine(device.KindGPU, h, WithCompiler(fakeSPIRV))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	if err := e.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

// stallDevice reports every fence wait as timed out and counts destroyed
// fences.
type stallDevice struct {
	hal.Device
	fencesDestroyed int
}

func (d *stallDevice) Wait(hal.Fence, uint64, time.Duration) (bool, error) { return false, nil }

func (d *stallDevice) DestroyFence(f hal.Fence) {
	d.fencesDestroyed++
	d.Device.DestroyFence(f)
}

// failEncodeDevice hands out command encoders whose EndEncoding fails.
type failEncodeDevice struct {
	hal.Device
	discarded int
}

func (d *failEncodeDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return &failEndEncoder{CommandEncoder: enc, device: d}, nil
}

type failEndEncoder struct {
	hal.CommandEncoder
	device *failEncodeDevice
}

func (e *failEndEncoder) EndEncoding() (hal.CommandBuffer, error) {
	return nil, errors.New("encoder lost")
}

func (e *failEndEncoder) DiscardEncoding() {
	e.device.discarded++
	e.CommandEncoder.DiscardEncoding()
}
