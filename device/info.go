// Package device captures identity and capability data of a compute device.
//
// An [Info] is a snapshot taken once, when an engine is constructed. It is a
// plain value: every holder owns its own copy, so nothing can mutate the
// snapshot an engine reports for the rest of its lifetime.
package device

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Kind classifies a device by the execution model it offers.
type Kind uint8

const (
	// KindUnknown is a device that is neither a CPU nor a GPU
	// (software rasterizers, unidentified adapters).
	KindUnknown Kind = iota

	// KindCPU is a host processor exposed through a device runtime.
	KindCPU

	// KindGPU is a discrete, integrated or virtual GPU.
	KindGPU
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindCPU:
		return "cpu"
	case KindGPU:
		return "gpu"
	default:
		return "unknown"
	}
}

// KindOf maps an adapter device type to a [Kind].
func KindOf(t gputypes.DeviceType) Kind {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU,
		gputypes.DeviceTypeIntegratedGPU,
		gputypes.DeviceTypeVirtualGPU:
		return KindGPU
	case gputypes.DeviceTypeCPU:
		return KindCPU
	default:
		return KindUnknown
	}
}

// Info is an immutable snapshot of a device's identity and capabilities.
type Info struct {
	// Name is the adapter name (e.g., "NVIDIA GeForce RTX 3080").
	Name string
	// Vendor is the adapter vendor.
	Vendor string
	// Driver is the driver version string, if reported.
	Driver string
	// Type is the adapter device type as reported by the runtime.
	Type gputypes.DeviceType
	// Backend is the graphics API behind the adapter (Vulkan, Metal, DX12...).
	Backend gputypes.Backend
	// Kind is the execution model derived from Type.
	Kind Kind

	// MaxBufferSize is the largest buffer the device accepts, in bytes.
	// Zero means the limit is unknown.
	MaxBufferSize uint64
	// MaxWorkgroupSize is the largest compute workgroup per dimension.
	MaxWorkgroupSize [3]uint32

	// Host describes the processor the runtime executes on.
	Host HostFeatures
}

// Query builds the snapshot for an adapter from its reported info and the
// limits the device was opened with.
func Query(info gputypes.AdapterInfo, limits gputypes.Limits) Info {
	return Info{
		Name:          info.Name,
		Vendor:        info.Vendor,
		Driver:        info.Driver,
		Type:          info.DeviceType,
		Backend:       info.Backend,
		Kind:          KindOf(info.DeviceType),
		MaxBufferSize: limits.MaxBufferSize,
		MaxWorkgroupSize: [3]uint32{
			limits.MaxComputeWorkgroupSizeX,
			limits.MaxComputeWorkgroupSizeY,
			limits.MaxComputeWorkgroupSizeZ,
		},
		Host: DetectHost(),
	}
}

// SupportsNative reports whether the device's handles may be reinterpreted
// as native runtime handles. Only CPU and GPU devices qualify.
func (i Info) SupportsNative() bool {
	return i.Kind == KindCPU || i.Kind == KindGPU
}

// String returns a human-readable description of the device.
func (i Info) String() string {
	name := i.Name
	if name == "" {
		name = "unnamed device"
	}
	return fmt.Sprintf("%s (%s, %s)", name, i.Kind, i.Backend)
}
