package native

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gogpu/gputypes"
)

// Source is the WGSL source of one named kernel.
type Source struct {
	// Name is the lookup key used by CreateKernels.
	Name string
	// EntryPoint is the compute entry point. Defaults to Name.
	EntryPoint string
	// WGSL is the kernel source, without build option declarations.
	WGSL string
	// Bindings describe bind group 0; kernel arguments map onto them in order.
	Bindings []gputypes.BindGroupLayoutEntry
}

// entryPoint returns the entry point, defaulting to the kernel name.
func (s Source) entryPoint() string {
	if s.EntryPoint != "" {
		return s.EntryPoint
	}
	return s.Name
}

// Registry maps kernel names to their sources.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates a registry holding srcs.
// It panics if srcs contains an invalid or duplicate source; use Register for
// sources that are not known at build time.
func NewRegistry(srcs ...Source) *Registry {
	r := &Registry{sources: make(map[string]Source, len(srcs))}
	for _, s := range srcs {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a kernel source.
func (r *Registry) Register(s Source) error {
	if s.Name == "" {
		return fmt.Errorf("%w: kernel source without name", ErrInvalidArgument)
	}
	if strings.TrimSpace(s.WGSL) == "" {
		return fmt.Errorf("%w: kernel %q has empty source", ErrInvalidArgument, s.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sources == nil {
		r.sources = make(map[string]Source)
	}
	if _, ok := r.sources[s.Name]; ok {
		return fmt.Errorf("%w: kernel %q already registered", ErrInvalidArgument, s.Name)
	}
	s.Bindings = append([]gputypes.BindGroupLayoutEntry(nil), s.Bindings...)
	r.sources[s.Name] = s
	return nil
}

// Lookup returns the source registered under name.
func (r *Registry) Lookup(name string) (Source, bool) {
	if r == nil {
		return Source{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	return s, ok
}

// Names returns the registered kernel names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
