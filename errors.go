package gcompute

import (
	"errors"

	"github.com/gogpu/gcompute/native"
)

// Error taxonomy. Errors returned by gcompute match one of these with
// errors.Is; the HAL cause, when there is one, is reachable with errors.As on
// a *NativeError.
var (
	// ErrInitialization is returned when engine or service stream setup fails,
	// and by every factory of an engine whose Init did not succeed.
	ErrInitialization = errors.New("gcompute: initialization failed")

	// ErrInvalidArgument is returned for unusable arguments: unsupported
	// device kinds, nil handles, bad flags, mismatched streams.
	ErrInvalidArgument = native.ErrInvalidArgument

	// ErrAllocation is returned when device memory cannot be provided.
	ErrAllocation = errors.New("gcompute: allocation failed")

	// ErrCompile is recorded per kernel; batch creation never returns it.
	ErrCompile = native.ErrCompile

	// ErrNativeRuntime is matched by every *NativeError.
	ErrNativeRuntime = native.ErrNativeRuntime
)

// NativeError reports a failed call into the HAL runtime.
type NativeError = native.NativeError

// nativeError wraps a HAL error as a *NativeError. A nil err stays nil.
func nativeError(call string, err error) error {
	if err == nil {
		return nil
	}
	return &NativeError{Call: call, Err: err}
}
