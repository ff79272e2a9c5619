package gpu

import "errors"

// Common errors returned by the GPU pipeline.
var (
	// ErrUnavailable is returned when no usable GPU device can be
	// created, including builds compiled with the nogpu tag.
	ErrUnavailable = errors.New("gpu: no usable device")

	// ErrFenceTimeout is returned when the GPU does not finish within
	// the bounded wait.
	ErrFenceTimeout = errors.New("gpu: fence wait timed out")

	// errNotInitialized is returned when work is requested before the
	// pipelines exist or after Close.
	errNotInitialized = errors.New("gpu: pipeline not initialized")
)
