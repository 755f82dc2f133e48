// Command gcinfo opens a compute device, prints what gcompute knows about it
// and builds the built-in kernels.
package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"

	"github.com/gogpu/gcompute"
	"github.com/gogpu/gcompute/device"
	"github.com/gogpu/gcompute/kernels"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	_ "github.com/gogpu/wgpu/hal/vulkan"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		backendName string
		names       []string
		run         bool
		verbose     bool
	)
	cmd := &cobra.Command{
		Use:          "gcinfo",
		Short:        "Describe a compute device and build the built-in kernels",
		Args:         cobra.ExactArgs(0),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if verbose {
				gcompute.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
			}
			return inspect(cmd.OutOrStdout(), backendName, names, run)
		},
	}
	cmd.Flags().StringVar(&backendName, "backend", "vulkan", "HAL backend (vulkan or noop)")
	cmd.Flags().StringSliceVar(&names, "kernels", []string{kernels.Add, kernels.Copy, kernels.Scale}, "kernels to build")
	cmd.Flags().BoolVar(&run, "run", false, "dispatch the add kernel once and check the result")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func inspect(w io.Writer, backendName string, names []string, run bool) error {
	backend, err := openBackend(backendName)
	if err != nil {
		return err
	}

	host, err := gcompute.Open(backend)
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	defer host.Close()

	info := host.DeviceInfo()
	printInfo(w, info)

	kind := info.Kind
	if kind == device.KindUnknown {
		kind = device.KindGPU
	}
	e, err := gcompute.NewEngine(kind, host)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer e.Close()
	if err := e.Init(); err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}

	if kind != device.KindGPU {
		fmt.Fprintf(w, "kernels skipped on a %s device\n", kind)
		return nil
	}
	ks, err := e.CreateKernels(names, nil)
	if err != nil {
		return fmt.Errorf("create kernels: %w", err)
	}
	defer func() {
		for _, k := range ks {
			if k != nil {
				k.Release()
			}
		}
	}()
	printKernels(w, names, ks)

	if !run {
		return nil
	}
	for _, k := range ks {
		if k != nil && k.Name() == kernels.Add {
			if err := runAdd(e, k, 256); err != nil {
				return fmt.Errorf("dispatch add: %w", err)
			}
			fmt.Fprintln(w, "add: ok")
			return nil
		}
	}
	return fmt.Errorf("add kernel not built, nothing to run")
}

func openBackend(name string) (gcompute.Backend, error) {
	switch name {
	case "noop":
		return &noop.API{}, nil
	case "vulkan":
		backend, ok := hal.GetBackend(gputypes.BackendVulkan)
		if !ok {
			return nil, fmt.Errorf("vulkan backend not available")
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

func printInfo(w io.Writer, info device.Info) {
	table := newTable(w)
	table.AppendBulk([][]string{
		{"device", info.String()},
		{"vendor", info.Vendor},
		{"driver", info.Driver},
		{"native", strconv.FormatBool(info.SupportsNative())},
		{"max buffer", strconv.FormatUint(info.MaxBufferSize, 10)},
		{"max workgroup", fmt.Sprint(info.MaxWorkgroupSize)},
		{"host", fmt.Sprintf("%s, %d cpus", info.Host.Arch, info.Host.CPUs)},
	})
	table.Render()
	fmt.Fprintln(w)
}

func printKernels(w io.Writer, names []string, ks []gcompute.Kernel) {
	table := newTable(w)
	table.SetHeader([]string{"KERNEL", "STATUS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	for i, k := range ks {
		status := "ok"
		if k == nil {
			status = "unavailable"
		}
		table.Append([]string{names[i], status})
	}
	table.Render()
}

// runAdd computes c = a + b over n floats and compares against the host.
func runAdd(e *gcompute.Engine, add gcompute.Kernel, n int) error {
	size := uint64(n * 4)
	bufs := make([]*gcompute.MemoryStorage, 3)
	for i := range bufs {
		m, err := e.CreateMemoryStorage(gcompute.MemoryAlloc, size, nil)
		if err != nil {
			return err
		}
		defer m.Close()
		bufs[i] = m
	}

	a := make([]byte, size)
	b := make([]byte, size)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(a[i*4:], math.Float32bits(float32(i)))
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(float32(2*i)))
	}
	if err := bufs[0].Write(0, a); err != nil {
		return err
	}
	if err := bufs[1].Write(0, b); err != nil {
		return err
	}

	s := e.ServiceStream()
	if err := add.ParallelFor(s, gcompute.Linear(uint32(n), 64), bufs...); err != nil {
		return err
	}

	out := make([]byte, size)
	if err := bufs[2].Read(0, out); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		got := math.Float32frombits(binary.LittleEndian.Uint32(out[i*4:]))
		if want := float32(3 * i); got != want {
			return fmt.Errorf("c[%d] = %v, want %v", i, got, want)
		}
	}
	return nil
}
