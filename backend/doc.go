// Package backend selects the GPU adapter that executes the compositor's
// compute kernels.
//
// # Backend Registration
//
// Backends register a factory from their init() function and are selected
// at runtime:
//
//	import (
//	    _ "github.com/gogpu/scrim/backend/native"
//	    _ "github.com/gogpu/scrim/backend/software"
//	)
//
// # Backend Selection
//
// Use Default (or Open("auto")) to get the best backend that opens on
// this machine, or Open with a name to request a specific one:
//
//	a, err := backend.Open("software")
//
// The native backend is preferred; the software backend always opens and
// serves as the fallback.
package backend
