package shader

import (
	"strings"
	"testing"
)

const addKernel = `
@group(0) @binding(0) var<storage, read> lhs: array<f32, 64>;
@group(0) @binding(1) var<storage, read> rhs: array<f32, 64>;
@group(0) @binding(2) var<storage, read_write> dst: array<f32, 64>;

@compute @workgroup_size(64)
fn add(@builtin(global_invocation_id) gid: vec3<u32>) {
    let i = gid.x;
    if (i < 64u) {
        dst[i] = lhs[i] + rhs[i];
    }
}
`

func TestCompile(t *testing.T) {
	words, err := Compile(addKernel)
	if err != nil {
		if strings.Contains(err.Error(), "not yet implemented") || strings.Contains(err.Error(), "not supported") {
			t.Skipf("Skipping: naga feature not yet implemented: %v", err)
		}
		t.Fatalf("Compile failed: %v", err)
	}
	if words[0] != spirvMagic {
		t.Errorf("invalid SPIR-V magic: 0x%08X, want 0x%08X", words[0], spirvMagic)
	}
}

func TestCompileEmpty(t *testing.T) {
	if _, err := Compile("   \n"); err == nil {
		t.Error("expected error for empty source")
	}
}

func TestCompileInvalid(t *testing.T) {
	if _, err := Compile("fn broken( {"); err == nil {
		t.Error("expected error for malformed WGSL")
	}
}

func TestWords(t *testing.T) {
	got := Words([]byte{0x03, 0x02, 0x23, 0x07, 0x01, 0x00, 0x00, 0x00, 0xff})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0] != spirvMagic {
		t.Errorf("word 0 = 0x%08X, want 0x%08X", got[0], spirvMagic)
	}
	if got[1] != 1 {
		t.Errorf("word 1 = %d, want 1", got[1])
	}
}

func TestWithPrelude(t *testing.T) {
	if got := WithPrelude("", "fn main() {}"); got != "fn main() {}" {
		t.Errorf("empty prelude changed source: %q", got)
	}
	got := WithPrelude("const N: u32 = 4u;", "fn main() {}")
	if got != "const N: u32 = 4u;\nfn main() {}" {
		t.Errorf("WithPrelude = %q", got)
	}
}
