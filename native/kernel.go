package native

import (
	"errors"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// errKernelReleased is reported by Retain once the last reference is gone.
var errKernelReleased = errors.New("kernel already released")

// Kernel is a compiled compute kernel on a HAL device.
//
// A Kernel is reference counted. It is created holding one reference; each
// Retain adds one and each Release drops one. When the count reaches zero the
// pipeline, its layouts and the shader module are destroyed.
//
// Kernel is safe for concurrent use.
type Kernel struct {
	name       string
	entryPoint string
	bindings   []gputypes.BindGroupLayoutEntry

	device     hal.Device
	module     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

	refs atomic.Int32
}

// Name returns the kernel name the kernel was requested under.
func (k *Kernel) Name() string { return k.name }

// EntryPoint returns the compute entry point inside the shader module.
func (k *Kernel) EntryPoint() string { return k.entryPoint }

// Bindings returns the layout of bind group 0, in argument order.
func (k *Kernel) Bindings() []gputypes.BindGroupLayoutEntry {
	return append([]gputypes.BindGroupLayoutEntry(nil), k.bindings...)
}

// Device returns the HAL device the kernel was built on.
func (k *Kernel) Device() hal.Device { return k.device }

// Pipeline returns the HAL compute pipeline.
// The pipeline is only valid while the caller holds a reference.
func (k *Kernel) Pipeline() hal.ComputePipeline { return k.pipeline }

// BindGroupLayout returns the layout of bind group 0.
// The layout is only valid while the caller holds a reference.
func (k *Kernel) BindGroupLayout() hal.BindGroupLayout { return k.bindLayout }

// RefCount returns the current number of references.
func (k *Kernel) RefCount() int32 { return k.refs.Load() }

// Retain adds a reference. It fails once the kernel has been destroyed.
func (k *Kernel) Retain() error {
	for {
		n := k.refs.Load()
		if n <= 0 {
			return &NativeError{Call: "Retain", Err: errKernelReleased}
		}
		if k.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Release drops a reference and destroys the kernel when it was the last.
// Releasing a destroyed kernel is logged and otherwise ignored.
func (k *Kernel) Release() {
	for {
		n := k.refs.Load()
		if n <= 0 {
			slogger().Warn("native: release of destroyed kernel", "kernel", k.name)
			return
		}
		if k.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				k.destroy()
			}
			return
		}
	}
}

// destroy releases the HAL objects in reverse order of creation.
func (k *Kernel) destroy() {
	if k.device == nil {
		return
	}
	if k.pipeline != nil {
		k.device.DestroyComputePipeline(k.pipeline)
		k.pipeline = nil
	}
	if k.pipeLayout != nil {
		k.device.DestroyPipelineLayout(k.pipeLayout)
		k.pipeLayout = nil
	}
	if k.bindLayout != nil {
		k.device.DestroyBindGroupLayout(k.bindLayout)
		k.bindLayout = nil
	}
	if k.module != nil {
		k.device.DestroyShaderModule(k.module)
		k.module = nil
	}
	slogger().Debug("native: kernel destroyed", "kernel", k.name)
}
