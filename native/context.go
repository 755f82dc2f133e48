package native

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/gogpu/wgpu/hal"
)

// Context is the native execution context: a HAL device together with the
// queue that executes its work.
//
// A Context is a view. It does not own the device or the queue and must not
// be used after either is destroyed.
type Context struct {
	Device hal.Device
	Queue  hal.Queue
}

// valid reports whether both handles are present.
func (c Context) valid() bool {
	return c.Device != nil && c.Queue != nil
}

// defineKind is the WGSL type of a build-time define.
type defineKind uint8

const (
	defineInt defineKind = iota
	defineUint
	defineFloat
	defineBool
)

// Define is one build option of a [KernelContext].
type Define struct {
	Name  string
	Value string // WGSL literal
	kind  defineKind
}

// wgslType returns the WGSL scalar type of the define.
func (d Define) wgslType() string {
	switch d.kind {
	case defineUint:
		return "u32"
	case defineFloat:
		return "f32"
	case defineBool:
		return "bool"
	default:
		return "i32"
	}
}

// KernelContext carries the build options applied to every kernel of a
// [Engine.CreateKernels] call. Defines are rendered as module-scope WGSL
// constants in front of the kernel source.
//
// A KernelContext is not safe for concurrent mutation; build it first, then
// share it read-only.
type KernelContext struct {
	defines map[string]Define
}

// NewKernelContext returns an empty set of build options.
func NewKernelContext() *KernelContext {
	return &KernelContext{defines: make(map[string]Define)}
}

// DefineInt sets an i32 constant. A later define with the same name wins.
func (c *KernelContext) DefineInt(name string, v int32) *KernelContext {
	if v == math.MinInt32 {
		// 2147483648i is out of range, so the minimum has no negated literal.
		return c.define(name, "i32(-2147483647 - 1)", defineInt)
	}
	return c.define(name, strconv.FormatInt(int64(v), 10)+"i", defineInt)
}

// DefineUint sets a u32 constant.
func (c *KernelContext) DefineUint(name string, v uint32) *KernelContext {
	return c.define(name, strconv.FormatUint(uint64(v), 10)+"u", defineUint)
}

// DefineFloat sets an f32 constant. NaN and infinities have no WGSL literal
// and are stored as 0.0.
func (c *KernelContext) DefineFloat(name string, v float32) *KernelContext {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		f = 0
	}
	lit := strconv.FormatFloat(f, 'g', -1, 32)
	if !strings.ContainsAny(lit, ".eE") {
		lit += ".0"
	}
	return c.define(name, lit, defineFloat)
}

// DefineBool sets a bool constant.
func (c *KernelContext) DefineBool(name string, v bool) *KernelContext {
	return c.define(name, strconv.FormatBool(v), defineBool)
}

func (c *KernelContext) define(name, value string, kind defineKind) *KernelContext {
	if c.defines == nil {
		c.defines = make(map[string]Define)
	}
	c.defines[name] = Define{Name: name, Value: value, kind: kind}
	return c
}

// Defines returns the build options sorted by name.
func (c *KernelContext) Defines() []Define {
	if c == nil {
		return nil
	}
	out := make([]Define, 0, len(c.defines))
	for _, d := range c.defines {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Prelude renders the defines as WGSL constant declarations.
func (c *KernelContext) Prelude() string {
	var b strings.Builder
	for _, d := range c.Defines() {
		fmt.Fprintf(&b, "const %s: %s = %s;\n", d.Name, d.wgslType(), d.Value)
	}
	return b.String()
}

// Options renders the defines in compiler flag form, for logs.
func (c *KernelContext) Options() string {
	defines := c.Defines()
	parts := make([]string, len(defines))
	for i, d := range defines {
		parts[i] = "-D" + d.Name + "=" + d.Value
	}
	return strings.Join(parts, " ")
}

// validate rejects names that cannot be WGSL identifiers.
func (c *KernelContext) validate() error {
	for _, d := range c.Defines() {
		if !isIdent(d.Name) {
			return fmt.Errorf("%w: define %q is not a valid identifier", ErrInvalidArgument, d.Name)
		}
	}
	return nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return s != "_"
}
