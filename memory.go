package gcompute

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// MemoryFlags select how a MemoryStorage obtains its buffer.
type MemoryFlags uint8

const (
	// MemoryAlloc allocates a new device buffer owned by the storage.
	MemoryAlloc MemoryFlags = 1 << iota

	// MemoryUseHandle wraps a caller-provided buffer without taking ownership.
	MemoryUseHandle
)

const memoryFlagsMask = MemoryAlloc | MemoryUseHandle

// storageUsage is the usage of buffers allocated by CreateMemoryStorage.
const storageUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst

// align4 rounds n up to the copy alignment of HAL buffers.
func align4(n uint64) uint64 { return (n + 3) &^ 3 }

// MemoryStorage is device memory usable as a kernel argument.
//
// Reads and writes go through the engine's service stream. MemoryStorage is
// safe for concurrent use.
type MemoryStorage struct {
	engine *Engine
	device hal.Device
	flags  MemoryFlags
	size   uint64
	buffer hal.Buffer
	owned  bool

	mu     sync.Mutex
	closed bool
}

// Size returns the usable size in bytes.
func (m *MemoryStorage) Size() uint64 { return m.size }

// Flags returns the flags the storage was created with.
func (m *MemoryStorage) Flags() MemoryFlags { return m.flags }

// Buffer returns the HAL buffer.
func (m *MemoryStorage) Buffer() hal.Buffer { return m.buffer }

// Owned reports whether the storage destroys its buffer on Close.
func (m *MemoryStorage) Owned() bool { return m.owned }

func (m *MemoryStorage) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// checkRange validates [offset, offset+n) against the storage size.
func (m *MemoryStorage) checkRange(offset, n uint64) error {
	if m.isClosed() {
		return fmt.Errorf("%w: storage closed", ErrInvalidArgument)
	}
	if offset > m.size || n > m.size-offset {
		return fmt.Errorf("%w: range [%d, %d) exceeds storage of %d bytes",
			ErrInvalidArgument, offset, offset+n, m.size)
	}
	return nil
}

// Write uploads data at offset. Offset and length must be multiples of 4.
func (m *MemoryStorage) Write(offset uint64, data []byte) error {
	n := uint64(len(data))
	if err := m.checkRange(offset, n); err != nil {
		return err
	}
	if offset%4 != 0 || n%4 != 0 {
		return fmt.Errorf("%w: write of %d bytes at %d is not 4-byte aligned", ErrInvalidArgument, n, offset)
	}
	if n == 0 {
		return nil
	}
	svc, err := m.engine.serviceStream()
	if err != nil {
		return err
	}
	svc.queue.WriteBuffer(m.buffer, offset, data)
	return nil
}

// Read downloads len(dst) bytes starting at offset. The copy goes through a
// staging buffer on the service stream and waits for completion.
func (m *MemoryStorage) Read(offset uint64, dst []byte) error {
	n := uint64(len(dst))
	if err := m.checkRange(offset, n); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	svc, err := m.engine.serviceStream()
	if err != nil {
		return err
	}

	// Copies are 4-byte granular; widen the window and trim afterwards.
	start := offset &^ 3
	end := align4(offset + n)
	if end > m.bufferSize() {
		return fmt.Errorf("%w: unaligned read past the end of a wrapped buffer", ErrInvalidArgument)
	}
	window := end - start

	dev := svc.device
	staging, err := dev.CreateBuffer(&hal.BufferDescriptor{
		Label: m.engine.opts.label + "_staging",
		Size:  window,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAllocation, nativeError("CreateBuffer", err))
	}
	defer dev.DestroyBuffer(staging)

	encoder, err := dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "gcompute_read"})
	if err != nil {
		return nativeError("CreateCommandEncoder", err)
	}
	if err := encoder.BeginEncoding("gcompute_read"); err != nil {
		encoder.DiscardEncoding()
		return nativeError("BeginEncoding", err)
	}
	encoder.CopyBufferToBuffer(m.buffer, staging, []hal.BufferCopy{
		{SrcOffset: start, DstOffset: 0, Size: window},
	})
	cmd, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		return nativeError("EndEncoding", err)
	}

	if err := svc.submit([]hal.CommandBuffer{cmd}); err != nil {
		return err
	}
	if err := svc.Synchronize(defaultSyncTimeout); err != nil {
		return err
	}

	readback := make([]byte, window)
	if err := svc.queue.ReadBuffer(staging, 0, readback); err != nil {
		return nativeError("ReadBuffer", err)
	}
	copy(dst, readback[offset-start:])
	return nil
}

// bufferSize returns the size of the underlying HAL buffer.
func (m *MemoryStorage) bufferSize() uint64 {
	if m.owned {
		return align4(m.size)
	}
	return m.size
}

// Close destroys the buffer if the storage allocated it. Close is idempotent.
func (m *MemoryStorage) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if m.owned {
		m.device.DestroyBuffer(m.buffer)
	}
}
