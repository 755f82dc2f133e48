package gcompute

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/wgpu/hal"
)

// defaultSyncTimeout bounds the waits gcompute performs on its own behalf
// (storage reads, stream close).
const defaultSyncTimeout = 5 * time.Second

// StreamFlags select the ordering guarantees of a Stream.
type StreamFlags uint8

const (
	// StreamInOrder executes submissions in submission order.
	StreamInOrder StreamFlags = 1 << iota

	// StreamOutOfOrder lets the device overlap submissions. HAL queues still
	// retire them in order, so completion tracking is unaffected.
	StreamOutOfOrder

	// StreamDefaultFlags is the flag set used when none is given.
	StreamDefaultFlags = StreamInOrder
)

const streamFlagsMask = StreamInOrder | StreamOutOfOrder

// String returns a human-readable name for the flags.
func (f StreamFlags) String() string {
	switch f {
	case StreamInOrder:
		return "in-order"
	case StreamOutOfOrder:
		return "out-of-order"
	default:
		return fmt.Sprintf("StreamFlags(%d)", uint8(f))
	}
}

func (f StreamFlags) validate() error {
	if f&^streamFlagsMask != 0 {
		return fmt.Errorf("%w: unknown stream flags %#x", ErrInvalidArgument, uint8(f&^streamFlagsMask))
	}
	if f == streamFlagsMask {
		return fmt.Errorf("%w: stream cannot be both in-order and out-of-order", ErrInvalidArgument)
	}
	return nil
}

// normalize maps the zero flag set to StreamDefaultFlags.
func (f StreamFlags) normalize() StreamFlags {
	if f == 0 {
		return StreamDefaultFlags
	}
	return f
}

// errStreamTimeout is the cause reported when Synchronize times out.
var errStreamTimeout = errors.New("timeout")

// deferred is a resource release that waits for a submission to retire.
type deferred struct {
	value   uint64
	release func()
}

// Stream is an execution stream on a HAL queue.
//
// Each stream owns one fence and a monotonically increasing submission
// value. Submissions signal the fence with their value; Synchronize waits for
// the latest one. Resources tied to a submission are released once it has
// retired.
//
// Stream is safe for concurrent use.
type Stream struct {
	engine *Engine
	flags  StreamFlags
	device hal.Device
	queue  hal.Queue
	fence  hal.Fence
	label  string

	mu        sync.Mutex
	submitted uint64
	completed uint64
	pending   []deferred
	closed    bool
}

// newStream creates a stream on queue with its own fence.
func newStream(e *Engine, dev hal.Device, queue hal.Queue, flags StreamFlags, label string) (*Stream, error) {
	flags = flags.normalize()
	if err := flags.validate(); err != nil {
		return nil, err
	}
	if queue == nil {
		return nil, fmt.Errorf("%w: nil queue", ErrInvalidArgument)
	}
	fence, err := dev.CreateFence()
	if err != nil {
		return nil, nativeError("CreateFence", err)
	}
	slogger().Debug("gcompute: stream created", "stream", label, "flags", flags.String())
	return &Stream{
		engine: e,
		flags:  flags,
		device: dev,
		queue:  queue,
		fence:  fence,
		label:  label,
	}, nil
}

// Engine returns the engine the stream belongs to.
func (s *Stream) Engine() *Engine { return s.engine }

// Flags returns the stream's ordering flags.
func (s *Stream) Flags() StreamFlags { return s.flags }

// Queue returns the HAL queue the stream submits to.
func (s *Stream) Queue() hal.Queue { return s.queue }

// Label returns the stream label.
func (s *Stream) Label() string { return s.label }

// Submit submits command buffers. The stream takes ownership of cmds and
// frees them once the submission has retired.
func (s *Stream) Submit(cmds ...hal.CommandBuffer) error {
	return s.submit(cmds)
}

// submit submits cmds and ties release to the submission. When nothing is
// submitted, cmds are freed and release runs before submit returns.
func (s *Stream) submit(cmds []hal.CommandBuffer, release ...func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := func() {
		for _, cmd := range cmds {
			s.device.FreeCommandBuffer(cmd)
		}
		for _, fn := range release {
			fn()
		}
	}
	if s.closed {
		drop()
		return fmt.Errorf("%w: stream %q closed", ErrInvalidArgument, s.label)
	}
	if len(cmds) == 0 {
		drop()
		return nil
	}

	value := s.submitted + 1
	if err := s.queue.Submit(cmds, s.fence, value); err != nil {
		drop()
		return nativeError("Submit", err)
	}
	s.submitted = value

	for _, cmd := range cmds {
		s.pending = append(s.pending, deferred{value: value, release: func() { s.device.FreeCommandBuffer(cmd) }})
	}
	for _, fn := range release {
		s.pending = append(s.pending, deferred{value: value, release: fn})
	}
	slogger().Debug("gcompute: submitted", "stream", s.label, "value", value, "command_buffers", len(cmds))
	return nil
}

// Submitted returns the value of the latest submission.
func (s *Stream) Submitted() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted
}

// Synchronize waits until every submission made so far has retired, then
// releases the resources tied to them. A timeout is reported as a
// *NativeError for the Wait call.
func (s *Stream) Synchronize(timeout time.Duration) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("%w: stream %q closed", ErrInvalidArgument, s.label)
	}
	target := s.submitted
	if target == s.completed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	ok, err := s.device.Wait(s.fence, target, timeout)
	if err != nil {
		return nativeError("Wait", err)
	}
	if !ok {
		return nativeError("Wait", fmt.Errorf("%w after %v", errStreamTimeout, timeout))
	}

	s.mu.Lock()
	if target > s.completed {
		s.completed = target
	}
	retired := s.retireLocked(target)
	s.mu.Unlock()

	for _, fn := range retired {
		fn()
	}
	return nil
}

// retireLocked removes and returns the releases of submissions up to value.
func (s *Stream) retireLocked(value uint64) []func() {
	var out []func()
	keep := s.pending[:0]
	for _, d := range s.pending {
		if d.value <= value {
			out = append(out, d.release)
		} else {
			keep = append(keep, d)
		}
	}
	s.pending = keep
	return out
}

// Close waits for outstanding work, releases every deferred resource and
// destroys the fence. The queue is not owned by the stream. Close is
// idempotent.
//
// If the wait fails the device may still use the pending resources, so they
// and the fence are abandoned instead of destroyed.
func (s *Stream) Close() {
	err := s.Synchronize(defaultSyncTimeout)
	stalled := err != nil && !errors.Is(err, ErrInvalidArgument)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	if stalled {
		slogger().Warn("gcompute: stream closed with work in flight, leaking its resources",
			"stream", s.label, "pending", len(pending), "error", err)
		return
	}

	for _, d := range pending {
		d.release()
	}
	s.device.DestroyFence(s.fence)
}
