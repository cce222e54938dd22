package native

import "errors"

// Package errors for the native backend.
var (
	// ErrNoGPU is returned when no HAL backend yields a usable device.
	ErrNoGPU = errors.New("native: no GPU adapter available")

	// ErrShaderCompile is returned when naga rejects a WGSL kernel.
	ErrShaderCompile = errors.New("native: shader compilation failed")
)
