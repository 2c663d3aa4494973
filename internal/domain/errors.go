package domain

import "errors"

var (
	// ErrCancelled is returned when a caller aborts an in-flight request.
	// It is not a failure and must be told apart from network errors.
	ErrCancelled = errors.New("request cancelled")

	// ErrServerUnavailable means the model server could not be reached.
	ErrServerUnavailable = errors.New("model server unavailable")

	// ErrServerStartup means the model server was spawned but never came up.
	ErrServerStartup = errors.New("model server failed to start")

	// ErrModelUnavailable means the requested model is neither present nor pullable.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrCorruptImage marks an image that could not be fully decoded.
	ErrCorruptImage = errors.New("corrupt image")

	// ErrNoUsableImages is returned when every image of a batch was corrupt.
	ErrNoUsableImages = errors.New("no usable images")

	// ErrUnsupportedPlatform is returned by probes that cannot run on this OS.
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
)
