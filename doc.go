// Package gcompute is the device-agnostic compute layer of the GoGPU
// ecosystem.
//
// # Overview
//
// A numeric library written against gcompute sees an [Engine]: it creates
// streams, wraps or allocates device memory and requests kernels by name.
// Behind the engine sits a host device model (a [gpucontext.DeviceProvider],
// the object gogpu or any other host hands to libraries) and, one level
// down, the HAL device and queue of gogpu/wgpu. Kernels are built at that
// lower level by package native and bridged back to the engine.
//
// # Quick Start
//
//	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
//	if !ok {
//	    log.Fatal("vulkan backend not registered")
//	}
//	host, err := gcompute.Open(backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer host.Close()
//
//	e, err := gcompute.NewEngine(device.KindGPU, host)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Close()
//	if err := e.Init(); err != nil {
//	    log.Fatal(err)
//	}
//
//	ks, _ := e.CreateKernels([]string{kernels.Add}, nil)
//	if ks[0] != nil {
//	    defer ks[0].Release()
//	}
//
// # Sparse kernel lists
//
// [Engine.CreateKernels] always returns one entry per requested name. Names
// the device cannot build leave a nil entry; callers check each slot. An
// error is returned only when the device fails outright, and then no kernel
// of the request survives.
//
// # Handles
//
// The engine does not own the provider. Closing an engine destroys its
// service stream; the device, queue and provider remain the host's.
//
// # Logging
//
// gcompute is silent by default. [SetLogger] enables structured logging for
// this package and for package native.
package gcompute
