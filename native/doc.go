// Package native is the low-level runtime adapter of gcompute.
//
// It speaks directly to a gogpu/wgpu HAL device: it compiles named WGSL
// kernels into compute pipelines and hands them out as reference-counted
// [Kernel] objects. HAL objects carry no reference count of their own, so the
// count lives on [Kernel]; the HAL pipeline and its layouts are destroyed when
// the last reference is released.
//
// # Compilation
//
// [Engine.CreateKernels] takes an ordered list of kernel names and returns a
// list of the same length. Each name is looked up in a [Registry], rendered
// with the build options of a [KernelContext], translated to SPIR-V by naga
// and turned into a HAL compute pipeline:
//
//	Registry lookup -> WGSL prelude + source -> naga (SPIR-V) -> hal.ComputePipeline
//
// An unknown name or a shader that fails to translate leaves its slot nil;
// the rest of the batch is still built. A failure reported by the HAL device
// itself aborts the batch and is returned as a [*NativeError].
//
// # Ownership
//
// Every kernel starts with one reference, held by the Engine that created it.
// [Engine.Close] drops those references. Callers that need a kernel to outlive
// its Engine take their own reference with [Kernel.Retain] and give it back
// with [Kernel.Release]:
//
//	e, err := native.NewEngine(dev, native.Context{Device: dev, Queue: queue})
//	if err != nil {
//	    return err
//	}
//	ks, err := e.CreateKernels([]string{"add"}, native.NewKernelContext())
//	if err != nil {
//	    e.Close()
//	    return err
//	}
//	if ks[0] != nil {
//	    _ = ks[0].Retain() // keep "add" after the engine is gone
//	}
//	e.Close()
package native
