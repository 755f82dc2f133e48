package native

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/gogpu/gcompute/internal/cache"
	"github.com/gogpu/gcompute/internal/shader"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/sync/errgroup"
)

// Compiler translates a complete WGSL module into SPIR-V words.
type Compiler func(wgsl string) ([]uint32, error)

// ModuleCache holds SPIR-V keyed by the complete WGSL module it was
// compiled from, prelude included.
type ModuleCache = cache.Cache[string, []uint32]

// NewModuleCache creates a cache of at most capacity modules.
func NewModuleCache(capacity int) *ModuleCache {
	return cache.New[string, []uint32](capacity)
}

// EngineOption configures an Engine during creation.
type EngineOption func(*engineConfig)

// engineConfig holds optional configuration for Engine creation.
type engineConfig struct {
	registry *Registry
	compiler Compiler
	modules  *ModuleCache
}

// defaultEngineConfig returns the default engine configuration.
func defaultEngineConfig() engineConfig {
	return engineConfig{
		registry: NewRegistry(),
		compiler: shader.Compile,
	}
}

// WithRegistry sets the registry kernel names are resolved against.
func WithRegistry(r *Registry) EngineOption {
	return func(c *engineConfig) {
		if r != nil {
			c.registry = r
		}
	}
}

// WithCompiler replaces the WGSL to SPIR-V compiler (naga by default).
func WithCompiler(fn Compiler) EngineOption {
	return func(c *engineConfig) {
		if fn != nil {
			c.compiler = fn
		}
	}
}

// WithModuleCache shares c between engines so a module is translated once.
// A nil cache disables caching, which is the default.
func WithModuleCache(c *ModuleCache) EngineOption {
	return func(cfg *engineConfig) {
		cfg.modules = c
	}
}

// Engine builds kernels on one HAL device.
//
// An Engine holds one reference on every kernel it created until Close.
// Engines are cheap; gcompute creates one per kernel request and closes it
// before returning. Engine is safe for concurrent use.
type Engine struct {
	device hal.Device
	ctx    Context
	cfg    engineConfig

	mu      sync.Mutex
	kernels []*Kernel
	closed  bool
}

// NewEngine creates an adapter engine for dev. ctx must bind the same device.
func NewEngine(dev hal.Device, ctx Context, opts ...EngineOption) (*Engine, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: nil device", ErrInvalidArgument)
	}
	if !ctx.valid() {
		return nil, fmt.Errorf("%w: incomplete context", ErrInvalidArgument)
	}
	if ctx.Device != dev {
		return nil, fmt.Errorf("%w: context is bound to a different device", ErrInvalidArgument)
	}

	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{device: dev, ctx: ctx, cfg: cfg}, nil
}

// Device returns the HAL device.
func (e *Engine) Device() hal.Device { return e.device }

// Context returns the native context.
func (e *Engine) Context() Context { return e.ctx }

// Registry returns the registry kernel names are resolved against.
func (e *Engine) Registry() *Registry { return e.cfg.registry }

// translation is the per-entry result of the SPIR-V stage.
type translation struct {
	src   Source
	spirv []uint32
	err   error
}

// CreateKernels builds the named kernels with the build options of kctx.
//
// The result has exactly len(names) entries, in request order. Entries whose
// name is unknown or whose source fails to compile are nil; the rest of the
// batch is unaffected. An error is returned only when the HAL device refuses
// to create an object; in that case no kernel of the batch survives.
func (e *Engine) CreateKernels(names []string, kctx *KernelContext) ([]*Kernel, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if kctx == nil {
		kctx = NewKernelContext()
	}
	if err := kctx.validate(); err != nil {
		return nil, err
	}

	results := e.translate(names, kctx)

	kernels := make([]*Kernel, len(names))
	for i, tr := range results {
		if tr.err != nil {
			slogger().Warn("native: kernel not built",
				"kernel", names[i], "options", kctx.Options(), "error", tr.err)
			continue
		}
		k, err := e.build(tr.src, tr.spirv)
		if err != nil {
			for _, built := range kernels[:i] {
				if built != nil {
					built.Release()
				}
			}
			return nil, err
		}
		kernels[i] = k
		slogger().Debug("native: kernel built", "kernel", k.name, "spirv_words", len(tr.spirv))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		// Close raced with the build; the caller gets nothing it would not own.
		for _, k := range kernels {
			if k != nil {
				k.Release()
			}
		}
		return nil, errEngineClosed
	}
	for _, k := range kernels {
		if k != nil {
			e.kernels = append(e.kernels, k)
		}
	}
	return kernels, nil
}

// CreateKernel builds a single kernel. Unlike CreateKernels it reports a
// failed build as an error wrapping ErrCompile.
func (e *Engine) CreateKernel(name string, kctx *KernelContext) (*Kernel, error) {
	ks, err := e.CreateKernels([]string{name}, kctx)
	if err != nil {
		return nil, err
	}
	if ks[0] == nil {
		if _, ok := e.cfg.registry.Lookup(name); !ok {
			return nil, fmt.Errorf("%w: %q: unknown kernel", ErrCompile, name)
		}
		return nil, fmt.Errorf("%w: %q", ErrCompile, name)
	}
	return ks[0], nil
}

// translate resolves and compiles every entry to SPIR-V. Compilation is pure
// CPU work and runs concurrently; result order follows names.
func (e *Engine) translate(names []string, kctx *KernelContext) []translation {
	results := make([]translation, len(names))
	prelude := kctx.Prelude()

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, name := range names {
		src, ok := e.cfg.registry.Lookup(name)
		if !ok {
			results[i].err = fmt.Errorf("%w: unknown kernel %q", ErrCompile, name)
			continue
		}
		results[i].src = src
		g.Go(func() error {
			words, err := e.compile(shader.WithPrelude(prelude, src.WGSL))
			if err != nil {
				results[i].err = fmt.Errorf("%w: %q: %w", ErrCompile, name, err)
				return nil
			}
			if len(words) == 0 {
				results[i].err = fmt.Errorf("%w: %q: empty SPIR-V", ErrCompile, name)
				return nil
			}
			results[i].spirv = words
			return nil
		})
	}
	_ = g.Wait() // entries record their own errors
	return results
}

// compile translates one module, going through the module cache when one
// is configured. Failed translations are not cached.
func (e *Engine) compile(wgsl string) ([]uint32, error) {
	if e.cfg.modules == nil {
		return e.cfg.compiler(wgsl)
	}
	if words, ok := e.cfg.modules.Get(wgsl); ok {
		return words, nil
	}
	words, err := e.cfg.compiler(wgsl)
	if err != nil || len(words) == 0 {
		return words, err
	}
	e.cfg.modules.Add(wgsl, words)
	return words, nil
}

// build creates the HAL objects of one kernel. On failure every object
// created so far is destroyed.
func (e *Engine) build(src Source, spirv []uint32) (*Kernel, error) {
	k := &Kernel{
		name:       src.Name,
		entryPoint: src.entryPoint(),
		bindings:   src.Bindings,
		device:     e.device,
	}

	module, err := e.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  src.Name,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, runtimeError("CreateShaderModule", err)
	}
	k.module = module

	bindLayout, err := e.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   src.Name + "_bind_layout",
		Entries: src.Bindings,
	})
	if err != nil {
		k.destroy()
		return nil, runtimeError("CreateBindGroupLayout", err)
	}
	k.bindLayout = bindLayout

	pipeLayout, err := e.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            src.Name + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		k.destroy()
		return nil, runtimeError("CreatePipelineLayout", err)
	}
	k.pipeLayout = pipeLayout

	pipeline, err := e.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   src.Name + "_pipeline",
		Layout:  pipeLayout,
		Compute: hal.ComputeState{Module: module, EntryPoint: k.entryPoint},
	})
	if err != nil {
		k.destroy()
		return nil, runtimeError("CreateComputePipeline", err)
	}
	k.pipeline = pipeline

	k.refs.Store(1)
	return k, nil
}

// errEngineClosed is returned by operations on a closed Engine.
var errEngineClosed = fmt.Errorf("%w: engine closed", ErrInvalidArgument)

func (e *Engine) checkOpen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errEngineClosed
	}
	return nil
}

// Close drops the Engine's reference on every kernel it created.
// Kernels retained by callers stay alive. Close is idempotent.
func (e *Engine) Close() {
	e.mu.Lock()
	kernels := e.kernels
	e.kernels = nil
	e.closed = true
	e.mu.Unlock()

	for _, k := range kernels {
		k.Release()
	}
}

// CompileKernels builds the named kernels without keeping an Engine around.
// Ownership of every returned kernel passes to the caller, who must Release
// each non-nil entry.
func CompileKernels(dev hal.Device, ctx Context, names []string, kctx *KernelContext, opts ...EngineOption) ([]*Kernel, error) {
	e, err := NewEngine(dev, ctx, opts...)
	if err != nil {
		return nil, err
	}
	kernels, err := e.CreateKernels(names, kctx)
	if err != nil {
		return nil, err
	}

	// Hand the engine's references over instead of retaining and closing.
	e.mu.Lock()
	e.kernels = nil
	e.closed = true
	e.mu.Unlock()
	return kernels, nil
}
