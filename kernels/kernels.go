// Package kernels ships the built-in WGSL compute kernels of gcompute.
//
// These are small elementwise kernels usable with any engine; numeric
// libraries register their own sources in a native.Registry.
package kernels

import (
	_ "embed"

	"github.com/gogpu/gcompute/native"
	"github.com/gogpu/gputypes"
)

// Kernel names.
const (
	Add   = "add"
	Copy  = "copy"
	Scale = "scale"
)

//go:embed shaders/add.wgsl
var addShaderSource string

//go:embed shaders/copy.wgsl
var copyShaderSource string

// scale reads ALPHA, which must be defined by the kernel context.
//
//go:embed shaders/scale.wgsl
var scaleShaderSource string

func storage(binding int, readOnly bool) gputypes.BindGroupLayoutEntry {
	t := gputypes.BufferBindingTypeStorage
	if readOnly {
		t = gputypes.BufferBindingTypeReadOnlyStorage
	}
	return gputypes.BindGroupLayoutEntry{
		Binding:    uint32(binding),
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: t},
	}
}

// Sources returns the built-in kernel sources.
func Sources() []native.Source {
	return []native.Source{
		{
			Name:     Add,
			WGSL:     addShaderSource,
			Bindings: []gputypes.BindGroupLayoutEntry{storage(0, true), storage(1, true), storage(2, false)},
		},
		{
			Name:       Copy,
			EntryPoint: "copy_f32",
			WGSL:       copyShaderSource,
			Bindings:   []gputypes.BindGroupLayoutEntry{storage(0, true), storage(1, false)},
		},
		{
			Name:     Scale,
			WGSL:     scaleShaderSource,
			Bindings: []gputypes.BindGroupLayoutEntry{storage(0, false)},
		},
	}
}

// Default returns a new registry holding the built-in kernels.
func Default() *native.Registry {
	return native.NewRegistry(Sources()...)
}
