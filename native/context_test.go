package native

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestKernelContextPrelude(t *testing.T) {
	kctx := NewKernelContext().
		DefineUint("SIMD", 16).
		DefineInt("OFFSET", -3).
		DefineFloat("ALPHA", 2).
		DefineFloat("BETA", 0.5).
		DefineBool("WITH_BIAS", true)

	want := "const ALPHA: f32 = 2.0;\n" +
		"const BETA: f32 = 0.5;\n" +
		"const OFFSET: i32 = -3i;\n" +
		"const SIMD: u32 = 16u;\n" +
		"const WITH_BIAS: bool = true;\n"
	if diff := cmp.Diff(want, kctx.Prelude()); diff != "" {
		t.Errorf("Prelude mismatch (-want +got):\n%s", diff)
	}

	wantOpts := "-DALPHA=2.0 -DBETA=0.5 -DOFFSET=-3i -DSIMD=16u -DWITH_BIAS=true"
	if got := kctx.Options(); got != wantOpts {
		t.Errorf("Options = %q, want %q", got, wantOpts)
	}
}

func TestKernelContextMinInt(t *testing.T) {
	kctx := NewKernelContext().DefineInt("LOW", math.MinInt32).DefineInt("HIGH", math.MaxInt32)
	want := "const HIGH: i32 = 2147483647i;\n" +
		"const LOW: i32 = i32(-2147483647 - 1);\n"
	if diff := cmp.Diff(want, kctx.Prelude()); diff != "" {
		t.Errorf("Prelude mismatch (-want +got):\n%s", diff)
	}
}

func TestKernelContextRedefine(t *testing.T) {
	kctx := NewKernelContext().DefineInt("N", 1).DefineUint("N", 2)
	defines := kctx.Defines()
	if len(defines) != 1 || defines[0].Value != "2u" {
		t.Errorf("Defines = %+v, want single N=2u", defines)
	}
}

func TestKernelContextNil(t *testing.T) {
	var kctx *KernelContext
	if kctx.Prelude() != "" || kctx.Options() != "" || kctx.Defines() != nil {
		t.Error("nil context should render no options")
	}

	var zero KernelContext
	zero.DefineBool("FLAG", false)
	if zero.Prelude() != "const FLAG: bool = false;\n" {
		t.Errorf("zero-value context Prelude = %q", zero.Prelude())
	}
}

func TestKernelContextValidate(t *testing.T) {
	for _, name := range []string{"", "_", "1X", "A-B", "ünï"} {
		if err := NewKernelContext().DefineInt(name, 0).validate(); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("validate(%q) = %v, want ErrInvalidArgument", name, err)
		}
	}
	for _, name := range []string{"A", "_x", "SIMD_16"} {
		if err := NewKernelContext().DefineInt(name, 0).validate(); err != nil {
			t.Errorf("validate(%q) = %v, want nil", name, err)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(Source{Name: "b", WGSL: "fn b() {}"}, Source{Name: "a", WGSL: "fn a() {}"})

	if diff := cmp.Diff([]string{"a", "b"}, r.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
	if src, ok := r.Lookup("a"); !ok || src.entryPoint() != "a" {
		t.Errorf("Lookup(a) = %+v, %v", src, ok)
	}
	if _, ok := r.Lookup("c"); ok {
		t.Error("Lookup(c) should fail")
	}

	for _, bad := range []Source{
		{Name: "", WGSL: "fn x() {}"},
		{Name: "empty", WGSL: "  "},
		{Name: "a", WGSL: "fn a() {}"},
	} {
		if err := r.Register(bad); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Register(%+v) = %v, want ErrInvalidArgument", bad, err)
		}
	}

	var nilReg *Registry
	if _, ok := nilReg.Lookup("a"); ok || nilReg.Names() != nil {
		t.Error("nil registry should be empty")
	}
}

func TestNewRegistryPanicsOnDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for duplicate source")
		}
	}()
	NewRegistry(Source{Name: "a", WGSL: "x"}, Source{Name: "a", WGSL: "y"})
}

func TestNativeErrorFormatting(t *testing.T) {
	err := runtimeError("CreateBuffer", errInjected)
	if err.Error() != "native: CreateBuffer: injected failure" {
		t.Errorf("Error() = %q", err.Error())
	}
	if runtimeError("CreateBuffer", nil) != nil {
		t.Error("nil cause should produce nil error")
	}
	if (&NativeError{Call: "Wait"}).Error() != "native: Wait failed" {
		t.Error("unexpected message for NativeError without cause")
	}
}
