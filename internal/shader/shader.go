// Package shader translates WGSL kernel sources into SPIR-V for HAL devices.
package shader

import (
	"fmt"
	"strings"

	"github.com/gogpu/naga"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// Compile translates WGSL source to SPIR-V words using naga.
func Compile(wgsl string) ([]uint32, error) {
	if strings.TrimSpace(wgsl) == "" {
		return nil, fmt.Errorf("empty shader source")
	}

	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}

	words := Words(spirvBytes)
	if len(words) == 0 || words[0] != spirvMagic {
		return nil, fmt.Errorf("compiler produced invalid SPIR-V (%d bytes)", len(spirvBytes))
	}
	return words, nil
}

// Words packs little-endian SPIR-V bytes into 32-bit words.
// Trailing bytes that do not fill a word are dropped.
func Words(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words
}

// WithPrelude prepends generated declarations to a kernel source.
func WithPrelude(prelude, src string) string {
	if prelude == "" {
		return src
	}
	if !strings.HasSuffix(prelude, "\n") {
		prelude += "\n"
	}
	return prelude + src
}
