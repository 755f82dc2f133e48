package gcompute

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gcompute/native"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Runtime identifies the runtime model an object is valid under.
type Runtime uint8

const (
	// RuntimeProvider is the host device model (gpucontext.DeviceProvider).
	RuntimeProvider Runtime = iota + 1

	// RuntimeNative is the HAL model of package native.
	RuntimeNative
)

// String returns a human-readable name for the runtime.
func (r Runtime) String() string {
	switch r {
	case RuntimeProvider:
		return "provider"
	case RuntimeNative:
		return "native"
	default:
		return fmt.Sprintf("Runtime(%d)", uint8(r))
	}
}

// Range is a dispatch size in workgroups. Zero Y and Z mean 1.
type Range struct {
	X, Y, Z uint32
}

// Linear returns the range covering n invocations with the given workgroup size.
func Linear(n, workgroupSize uint32) Range {
	if workgroupSize == 0 {
		workgroupSize = 1
	}
	return Range{X: (n + workgroupSize - 1) / workgroupSize}
}

func (r Range) dims() (x, y, z uint32) {
	y, z = r.Y, r.Z
	if y == 0 {
		y = 1
	}
	if z == 0 {
		z = 1
	}
	return r.X, y, z
}

// Kernel is an executable kernel valid under the engine's runtime model.
//
// A Kernel holds one reference on its native kernel. Release drops it; later
// calls to Release are no-ops.
type Kernel interface {
	// Name returns the name the kernel was requested under.
	Name() string

	// Runtime returns the runtime model the kernel belongs to.
	Runtime() Runtime

	// ParallelFor dispatches the kernel on s over r. args bind to the
	// kernel's storage bindings in order.
	ParallelFor(s *Stream, r Range, args ...*MemoryStorage) error

	// Release drops the kernel's reference on the native kernel.
	Release()
}

// NativeKernel is implemented by kernels backed by a native kernel.
// Use a type assertion on a Kernel to reach the HAL objects.
type NativeKernel interface {
	NativeKernel() *native.Kernel
}

var _ NativeKernel = (*bridgedKernel)(nil)

// bridgedKernel is a native kernel re-exposed under the provider runtime.
type bridgedKernel struct {
	engine   *Engine
	k        *native.Kernel
	once     sync.Once
	released atomic.Bool
}

// bridgeKernel wraps k, taking a reference of its own. A nil k yields a nil
// Kernel so sparse batches stay sparse.
func bridgeKernel(e *Engine, k *native.Kernel) (Kernel, error) {
	if k == nil {
		return nil, nil
	}
	if err := k.Retain(); err != nil {
		return nil, err
	}
	return &bridgedKernel{engine: e, k: k}, nil
}

func (b *bridgedKernel) Name() string                 { return b.k.Name() }
func (b *bridgedKernel) Runtime() Runtime             { return RuntimeProvider }
func (b *bridgedKernel) NativeKernel() *native.Kernel { return b.k }

func (b *bridgedKernel) Release() {
	b.once.Do(func() {
		b.released.Store(true)
		b.k.Release()
	})
}

func (b *bridgedKernel) ParallelFor(s *Stream, r Range, args ...*MemoryStorage) error {
	if b.released.Load() {
		return fmt.Errorf("%w: kernel %q released", ErrInvalidArgument, b.k.Name())
	}
	if s == nil || s.engine != b.engine {
		return fmt.Errorf("%w: stream does not belong to the kernel's engine", ErrInvalidArgument)
	}
	x, y, z := r.dims()
	if x == 0 {
		return fmt.Errorf("%w: empty dispatch range", ErrInvalidArgument)
	}
	bindings := b.k.Bindings()
	if len(args) != len(bindings) {
		return fmt.Errorf("%w: kernel %q takes %d arguments, got %d",
			ErrInvalidArgument, b.k.Name(), len(bindings), len(args))
	}
	entries := make([]gputypes.BindGroupEntry, len(args))
	for i, arg := range args {
		if arg == nil || arg.engine != b.engine || arg.isClosed() {
			return fmt.Errorf("%w: argument %d is not live storage of this engine", ErrInvalidArgument, i)
		}
		entries[i] = gputypes.BindGroupEntry{
			Binding: bindings[i].Binding,
			Resource: gputypes.BufferBinding{
				Buffer: arg.buffer.NativeHandle(),
				Offset: 0,
				Size:   0, // 0 = entire buffer
			},
		}
	}

	// The in-flight submission keeps its own reference.
	if err := b.k.Retain(); err != nil {
		return err
	}
	releases := []func(){b.k.Release}
	cleanup := func() {
		for _, fn := range releases {
			fn()
		}
	}

	dev := s.device
	var bg hal.BindGroup
	if len(entries) > 0 {
		var err error
		bg, err = dev.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   b.k.Name() + "_bg",
			Layout:  b.k.BindGroupLayout(),
			Entries: entries,
		})
		if err != nil {
			cleanup()
			return nativeError("CreateBindGroup", err)
		}
		releases = append(releases, func() { dev.DestroyBindGroup(bg) })
	}

	encoder, err := dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: b.k.Name()})
	if err != nil {
		cleanup()
		return nativeError("CreateCommandEncoder", err)
	}
	if err := encoder.BeginEncoding(b.k.Name()); err != nil {
		encoder.DiscardEncoding()
		cleanup()
		return nativeError("BeginEncoding", err)
	}

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: b.k.Name()})
	pass.SetPipeline(b.k.Pipeline())
	if bg != nil {
		pass.SetBindGroup(0, bg, nil)
	}
	pass.Dispatch(x, y, z)
	pass.End()

	cmd, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		cleanup()
		return nativeError("EndEncoding", err)
	}

	if err := s.submit([]hal.CommandBuffer{cmd}, releases...); err != nil {
		return err
	}
	slogger().Debug("gcompute: dispatched",
		"kernel", b.k.Name(), "stream", s.label, "workgroups", [3]uint32{x, y, z})
	return nil
}
