package gcompute

import (
	"fmt"
	"sync"

	"github.com/gogpu/gcompute/device"
	"github.com/gogpu/gcompute/native"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"
)

// engineState tracks the Init lifecycle.
type engineState uint8

const (
	stateCreated engineState = iota
	stateReady
	stateFailed
	stateClosed
)

// Engine owns a device/context pair of the host model and creates streams,
// memory and kernels bound to it.
//
// The device, context and service stream are fixed once Init returns and may
// be read concurrently. The engine does not own the provider.
type Engine struct {
	kind     device.Kind
	provider gpucontext.DeviceProvider
	info     device.Info
	opts     engineOptions
	modules  *native.ModuleCache // nil when caching is disabled

	mu      sync.Mutex
	state   engineState
	service *Stream
}

// NewEngine creates an engine of the given kind on provider. Call Init
// before using it.
//
// kind must be device.KindCPU or device.KindGPU. When the device info knows
// the device kind, it must agree with kind.
func NewEngine(kind device.Kind, provider gpucontext.DeviceProvider, opts ...Option) (*Engine, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: nil device provider", ErrInvalidArgument)
	}
	if kind != device.KindCPU && kind != device.KindGPU {
		return nil, fmt.Errorf("%w: unsupported device kind %s", ErrInvalidArgument, kind)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var info device.Info
	if o.info != nil {
		info = *o.info
	} else if ip, ok := provider.(infoProvider); ok {
		info = ip.DeviceInfo()
	}
	if info.Kind != device.KindUnknown && info.Kind != kind {
		return nil, fmt.Errorf("%w: %s engine on a %s device", ErrInvalidArgument, kind, info.Kind)
	}

	e := &Engine{kind: kind, provider: provider, info: info, opts: o}
	if o.cacheSize > 0 {
		e.modules = native.NewModuleCache(o.cacheSize)
	}
	return e, nil
}

// Init resolves the native handles and creates the service stream.
// It can be called once; a failed Init leaves the engine unusable.
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case stateReady:
		return fmt.Errorf("%w: engine already initialized", ErrInitialization)
	case stateFailed:
		return fmt.Errorf("%w: previous initialization failed", ErrInitialization)
	case stateClosed:
		return fmt.Errorf("%w: engine closed", ErrInitialization)
	}

	ctx, err := e.NativeContextHandle()
	if err != nil {
		e.state = stateFailed
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	svc, err := newStream(e, ctx.Device, ctx.Queue, e.opts.serviceFlags, e.opts.label+"_service")
	if err != nil {
		e.state = stateFailed
		return fmt.Errorf("%w: service stream: %w", ErrInitialization, err)
	}

	e.service = svc
	e.state = stateReady
	slogger().Info("gcompute: engine initialized",
		"engine", e.opts.label, "kind", e.kind.String(), "device", e.info.String())
	return nil
}

// checkReady reports why the engine cannot serve a factory call.
func (e *Engine) checkReady() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case stateReady:
		return nil
	case stateCreated:
		return fmt.Errorf("%w: engine not initialized", ErrInitialization)
	case stateFailed:
		return fmt.Errorf("%w: engine initialization failed", ErrInitialization)
	default:
		return fmt.Errorf("%w: engine closed", ErrInvalidArgument)
	}
}

// serviceStream returns the service stream of a ready engine.
func (e *Engine) serviceStream() (*Stream, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.service, nil
}

// Kind returns the device kind the engine was created for.
func (e *Engine) Kind() device.Kind { return e.kind }

// Runtime returns the runtime model the engine exposes.
func (e *Engine) Runtime() Runtime { return RuntimeProvider }

// DeviceInfo returns the device description captured at construction.
func (e *Engine) DeviceInfo() device.Info { return e.info }

// Device returns the device handle of the host model.
func (e *Engine) Device() gpucontext.Device { return e.provider.Device() }

// Context returns the provider binding the engine's device and queue.
func (e *Engine) Context() gpucontext.DeviceProvider { return e.provider }

// Label returns the engine label.
func (e *Engine) Label() string { return e.opts.label }

// ServiceStream returns the stream created by Init, or nil before Init.
func (e *Engine) ServiceStream() *Stream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.service
}

// NativeDeviceHandle returns the engine's device as a HAL device.
// It fails with ErrInvalidArgument unless the engine is a CPU or GPU engine
// on a provider that exposes HAL handles.
func (e *Engine) NativeDeviceHandle() (hal.Device, error) {
	ctx, err := e.NativeContextHandle()
	if err != nil {
		return nil, err
	}
	return ctx.Device, nil
}

// NativeContextHandle returns the engine's context as a native context.
// The result is a view of the provider's handles, valid while they are.
func (e *Engine) NativeContextHandle() (native.Context, error) {
	if e == nil || e.provider == nil {
		return native.Context{}, fmt.Errorf("%w: engine has no device", ErrInvalidArgument)
	}
	if e.kind != device.KindCPU && e.kind != device.KindGPU {
		return native.Context{}, fmt.Errorf("%w: no native handles for %s devices", ErrInvalidArgument, e.kind)
	}
	return toNative(e.provider)
}

// CreateStream creates a stream on the engine's queue.
func (e *Engine) CreateStream(flags StreamFlags) (*Stream, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}
	ctx, err := e.NativeContextHandle()
	if err != nil {
		return nil, err
	}
	return newStream(e, ctx.Device, ctx.Queue, flags, e.opts.label+"_stream")
}

// CreateStreamFromQueue creates a stream on an existing HAL queue of the
// engine's device. The stream submits to queue itself; no queue is created.
func (e *Engine) CreateStreamFromQueue(queue hal.Queue, flags StreamFlags) (*Stream, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}
	if queue == nil {
		return nil, fmt.Errorf("%w: nil queue", ErrInvalidArgument)
	}
	dev, err := e.NativeDeviceHandle()
	if err != nil {
		return nil, err
	}
	return newStream(e, dev, queue, flags, e.opts.label+"_stream")
}

// CreateMemoryStorage allocates size bytes of device memory (MemoryAlloc) or
// wraps handle (MemoryUseHandle). A wrapped buffer stays owned by the caller.
func (e *Engine) CreateMemoryStorage(flags MemoryFlags, size uint64, handle hal.Buffer) (*MemoryStorage, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}
	if flags == 0 || flags&^memoryFlagsMask != 0 || flags == memoryFlagsMask {
		return nil, fmt.Errorf("%w: memory flags %#x", ErrInvalidArgument, uint8(flags))
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: zero-sized storage", ErrInvalidArgument)
	}
	dev, err := e.NativeDeviceHandle()
	if err != nil {
		return nil, err
	}

	if flags == MemoryUseHandle {
		if handle == nil {
			return nil, fmt.Errorf("%w: MemoryUseHandle without a buffer", ErrInvalidArgument)
		}
		if limit := e.info.MaxBufferSize; limit > 0 && size > limit {
			return nil, fmt.Errorf("%w: wrapped buffer of %d bytes exceeds the device maximum of %d",
				ErrInvalidArgument, size, limit)
		}
		return &MemoryStorage{engine: e, device: dev, flags: flags, size: size, buffer: handle}, nil
	}

	if handle != nil {
		return nil, fmt.Errorf("%w: buffer handle given without MemoryUseHandle", ErrInvalidArgument)
	}
	if limit := e.info.MaxBufferSize; limit > 0 && size > limit {
		return nil, fmt.Errorf("%w: %d bytes exceeds the device maximum of %d", ErrAllocation, size, limit)
	}
	buf, err := dev.CreateBuffer(&hal.BufferDescriptor{
		Label: e.opts.label + "_storage",
		Size:  align4(size),
		Usage: storageUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAllocation, nativeError("CreateBuffer", err))
	}
	slogger().Debug("gcompute: storage allocated", "engine", e.opts.label, "bytes", size)
	return &MemoryStorage{engine: e, device: dev, flags: flags, size: size, buffer: buf, owned: true}, nil
}

// CreateKernels builds the named kernels with the build options of kctx and
// returns one entry per name, in order. Names that cannot be built leave a
// nil entry. Kernels can only be created by GPU engines; CPU engines get
// ErrInvalidArgument and nothing is compiled.
//
// Every returned Kernel holds its own reference and must be released.
func (e *Engine) CreateKernels(names []string, kctx *native.KernelContext) ([]Kernel, error) {
	if e.kind != device.KindGPU {
		return nil, fmt.Errorf("%w: kernel creation requires a GPU engine, have %s", ErrInvalidArgument, e.kind)
	}
	if err := e.checkReady(); err != nil {
		return nil, err
	}
	ctx, err := e.NativeContextHandle()
	if err != nil {
		return nil, err
	}

	adapter, err := native.NewEngine(ctx.Device, ctx,
		native.WithRegistry(e.opts.registry),
		native.WithCompiler(e.opts.compiler),
		native.WithModuleCache(e.modules))
	if err != nil {
		return nil, err
	}
	defer adapter.Close()

	built, err := adapter.CreateKernels(names, kctx)
	if err != nil {
		return nil, err
	}

	out := make([]Kernel, len(built))
	for i, nk := range built {
		k, err := bridgeKernel(e, nk)
		if err != nil {
			for _, prev := range out[:i] {
				if prev != nil {
					prev.Release()
				}
			}
			return nil, err
		}
		out[i] = k
	}
	slogger().Debug("gcompute: kernels created", "engine", e.opts.label, "requested", len(names))
	return out, nil
}

// Close destroys the service stream. The provider and its device are left
// to their owner. Close is idempotent.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.state == stateClosed {
		e.mu.Unlock()
		return
	}
	e.state = stateClosed
	svc := e.service
	e.service = nil
	e.mu.Unlock()

	if svc != nil {
		svc.Close()
	}
}
