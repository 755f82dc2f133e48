package native

import (
	"errors"
	"fmt"
)

// Package errors for the native runtime adapter.
var (
	// ErrInvalidArgument is returned when an operation receives arguments it
	// cannot act on (nil devices, mismatched contexts, empty names).
	ErrInvalidArgument = errors.New("gcompute: invalid argument")

	// ErrCompile is returned when a named kernel cannot be built.
	// In batch creation it is recorded per entry and never aborts the batch.
	ErrCompile = errors.New("gcompute: kernel compilation failed")

	// ErrNativeRuntime is matched by every *NativeError.
	ErrNativeRuntime = errors.New("gcompute: native runtime call failed")
)

// NativeError reports a failed call into the HAL device runtime.
type NativeError struct {
	// Call names the runtime entry point that failed (e.g., "CreateComputePipeline").
	Call string
	// Err is the error reported by the runtime.
	Err error
}

// Error implements the error interface.
func (e *NativeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("native: %s failed", e.Call)
	}
	return fmt.Sprintf("native: %s: %v", e.Call, e.Err)
}

// Unwrap returns the runtime error.
func (e *NativeError) Unwrap() error { return e.Err }

// Is reports whether target is ErrNativeRuntime.
func (e *NativeError) Is(target error) bool { return target == ErrNativeRuntime }

// runtimeError wraps err as a *NativeError for call. A nil err stays nil.
func runtimeError(call string, err error) error {
	if err == nil {
		return nil
	}
	return &NativeError{Call: call, Err: err}
}
