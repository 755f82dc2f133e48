package native

import (
	"errors"
	"sync"
	"testing"

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

var errInjected = errors.New("injected failure")

// trackingDevice wraps a hal.Device, counting kernel object lifetimes and
// optionally failing pipeline creation.
type trackingDevice struct {
	hal.Device

	mu                sync.Mutex
	modules           int
	pipelines         int
	destroyedModules  int
	destroyedPipes    int
	failPipelineAfter int // fail the n-th+1 pipeline creation; <0 never fails
}

func newTrackingDevice(dev hal.Device) *trackingDevice {
	return &trackingDevice{Device: dev, failPipelineAfter: -1}
}

func (d *trackingDevice) CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error) {
	m, err := d.Device.CreateShaderModule(desc)
	if err == nil {
		d.mu.Lock()
		d.modules++
		d.mu.Unlock()
	}
	return m, err
}

func (d *trackingDevice) DestroyShaderModule(m hal.ShaderModule) {
	d.mu.Lock()
	d.destroyedModules++
	d.mu.Unlock()
	d.Device.DestroyShaderModule(m)
}

func (d *trackingDevice) CreateComputePipeline(desc *hal.ComputePipelineDescriptor) (hal.ComputePipeline, error) {
	d.mu.Lock()
	if d.failPipelineAfter >= 0 && d.pipelines >= d.failPipelineAfter {
		d.mu.Unlock()
		return nil, errInjected
	}
	d.pipelines++
	d.mu.Unlock()
	return d.Device.CreateComputePipeline(desc)
}

func (d *trackingDevice) DestroyComputePipeline(p hal.ComputePipeline) {
	d.mu.Lock()
	d.destroyedPipes++
	d.mu.Unlock()
	d.Device.DestroyComputePipeline(p)
}

// live returns the number of pipelines and modules not yet destroyed.
func (d *trackingDevice) live() (pipelines, modules int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pipelines - d.destroyedPipes, d.modules - d.destroyedModules
}

// fakeSPIRV is a compiler that skips naga and returns a bare SPIR-V header.
func fakeSPIRV(string) ([]uint32, error) {
	return []uint32{0x07230203, 0x00010300, 0, 1, 0}, nil
}

func testRegistry(names ...string) *Registry {
	r := NewRegistry()
	for _, name := range names {
		_ = r.Register(Source{
			Name: name,
			WGSL: "@compute @workgroup_size(1) fn " + name + "() {}",
		})
	}
	return r
}

func newTestEngine(t *testing.T, dev hal.Device, queue hal.Queue, names ...string) *Engine {
	t.Helper()
	e, err := NewEngine(dev, Context{Device: dev, Queue: queue},
		WithRegistry(testRegistry(names...)), WithCompiler(fakeSPIRV))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e
}
