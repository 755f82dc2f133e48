package device

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// HostFeatures reports the instruction set extensions of the host processor.
// CPU-kind devices execute kernels on it; for GPU devices it describes the
// submitting side.
type HostFeatures struct {
	Arch string
	CPUs int

	HasSSE41  bool
	HasAVX    bool
	HasAVX2   bool
	HasAVX512 bool
	HasNEON   bool
}

// DetectHost reports the features of the current process's processor.
func DetectHost() HostFeatures {
	return HostFeatures{
		Arch:      runtime.GOARCH,
		CPUs:      runtime.NumCPU(),
		HasSSE41:  cpu.X86.HasSSE41,
		HasAVX:    cpu.X86.HasAVX,
		HasAVX2:   cpu.X86.HasAVX2,
		HasAVX512: cpu.X86.HasAVX512,
		HasNEON:   cpu.ARM64.HasASIMD,
	}
}
