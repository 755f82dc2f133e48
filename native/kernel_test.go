package native

import (
	"errors"
	"sync"
	"testing"
)

func buildOne(t *testing.T, td *trackingDevice, e *Engine, name string) *Kernel {
	t.Helper()
	k, err := e.CreateKernel(name, nil)
	if err != nil {
		t.Fatalf("CreateKernel(%q) failed: %v", name, err)
	}
	return k
}

func TestKernelRetainRelease(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	td := newTrackingDevice(device)
	e := newTestEngine(t, td, queue, "add")
	k := buildOne(t, td, e, "add")

	const b = 5
	for i := 0; i < b; i++ {
		if err := k.Retain(); err != nil {
			t.Fatalf("Retain %d failed: %v", i, err)
		}
	}
	if got := k.RefCount(); got != 1+b {
		t.Fatalf("refcount = %d, want %d", got, 1+b)
	}
	for i := 0; i < b; i++ {
		k.Release()
	}
	if got := k.RefCount(); got != 1 {
		t.Errorf("net refcount delta after %d retain/release pairs = %d, want 0", b, got-1)
	}
	if pipes, _ := td.live(); pipes != 1 {
		t.Errorf("kernel destroyed while engine holds it: live pipelines = %d", pipes)
	}

	e.Close()
	if pipes, modules := td.live(); pipes != 0 || modules != 0 {
		t.Errorf("leaked HAL objects: %d pipelines, %d modules", pipes, modules)
	}
}

func TestKernelRetainAfterDestroy(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	td := newTrackingDevice(device)
	e := newTestEngine(t, td, queue, "add")
	k := buildOne(t, td, e, "add")
	e.Close()

	err := k.Retain()
	var nerr *NativeError
	if !errors.As(err, &nerr) || nerr.Call != "Retain" {
		t.Fatalf("Retain after destroy err = %v, want *NativeError{Call: Retain}", err)
	}
	if !errors.Is(err, ErrNativeRuntime) {
		t.Errorf("err = %v, want ErrNativeRuntime", err)
	}

	// Extra releases must not destroy twice or go negative.
	k.Release()
	if k.RefCount() != 0 {
		t.Errorf("refcount = %d, want 0", k.RefCount())
	}
	td.mu.Lock()
	destroyed := td.destroyedPipes
	td.mu.Unlock()
	if destroyed != 1 {
		t.Errorf("pipeline destroyed %d times, want 1", destroyed)
	}
}

func TestKernelConcurrentRetainRelease(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	td := newTrackingDevice(device)
	e := newTestEngine(t, td, queue, "add")
	defer e.Close()
	k := buildOne(t, td, e, "add")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if err := k.Retain(); err != nil {
					t.Error(err)
					return
				}
				k.Release()
			}
		}()
	}
	wg.Wait()
	if k.RefCount() != 1 {
		t.Errorf("refcount = %d, want 1", k.RefCount())
	}
}

func TestKernelAccessors(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	r := NewRegistry(Source{Name: "copy", EntryPoint: "copy_f32", WGSL: "fn copy_f32() {}"})
	e, err := NewEngine(device, Context{Device: device, Queue: queue}, WithRegistry(r), WithCompiler(fakeSPIRV))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer e.Close()

	k, err := e.CreateKernel("copy", nil)
	if err != nil {
		t.Fatalf("CreateKernel failed: %v", err)
	}
	if k.Name() != "copy" || k.EntryPoint() != "copy_f32" {
		t.Errorf("Name/EntryPoint = %q/%q", k.Name(), k.EntryPoint())
	}
	if k.Device() != device {
		t.Error("Device() does not return the build device")
	}
	if len(k.Bindings()) != 0 {
		t.Errorf("Bindings() = %v, want none", k.Bindings())
	}
}
