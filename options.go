package gcompute

import (
	"github.com/gogpu/gcompute/device"
	"github.com/gogpu/gcompute/kernels"
	"github.com/gogpu/gcompute/native"
)

// Option configures an Engine during creation.
//
// Example:
//
//	// Built-in kernels, default service stream
//	e, err := gcompute.NewEngine(device.KindGPU, host)
//
//	// Custom kernel sources and an out-of-order service stream
//	e, err := gcompute.NewEngine(device.KindGPU, host,
//	    gcompute.WithRegistry(myKernels),
//	    gcompute.WithServiceStreamFlags(gcompute.StreamOutOfOrder))
type Option func(*engineOptions)

// engineOptions holds optional configuration for Engine creation.
type engineOptions struct {
	info         *device.Info
	registry     *native.Registry
	compiler     native.Compiler
	serviceFlags StreamFlags
	label        string
	cacheSize    int
}

// defaultModuleCacheSize is the number of translated modules an Engine keeps.
const defaultModuleCacheSize = 64

// defaultOptions returns the default engine options.
func defaultOptions() engineOptions {
	return engineOptions{
		registry:     kernels.Default(),
		compiler:     nil, // native default (naga)
		serviceFlags: StreamDefaultFlags,
		label:        "gcompute",
		cacheSize:    defaultModuleCacheSize,
	}
}

// WithDeviceInfo overrides the device description taken from the provider.
// The info is copied; later changes to the caller's value have no effect.
func WithDeviceInfo(info device.Info) Option {
	return func(o *engineOptions) {
		o.info = &info
	}
}

// WithRegistry sets the kernel sources CreateKernels resolves names against.
// The default is the built-in registry of package kernels.
func WithRegistry(r *native.Registry) Option {
	return func(o *engineOptions) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithCompiler replaces the WGSL to SPIR-V compiler used for kernel builds.
func WithCompiler(fn native.Compiler) Option {
	return func(o *engineOptions) {
		o.compiler = fn
	}
}

// WithServiceStreamFlags sets the flags of the service stream Init creates.
func WithServiceStreamFlags(flags StreamFlags) Option {
	return func(o *engineOptions) {
		o.serviceFlags = flags
	}
}

// WithLabel sets the label used for HAL objects and log records.
func WithLabel(label string) Option {
	return func(o *engineOptions) {
		if label != "" {
			o.label = label
		}
	}
}

// WithModuleCacheSize sets how many translated kernel modules the engine
// keeps between CreateKernels calls. A size of 0 or less disables the cache.
func WithModuleCacheSize(n int) Option {
	return func(o *engineOptions) {
		o.cacheSize = max(n, 0)
	}
}
