package scrim

import (
	"image"
	"slices"
	"strings"
)

// State is a step of the per-frame state machine.
type State uint8

const (
	StateCapturing State = iota
	StateStaging
	StatePadding
	StateEffecting
	StatePresenting
	StatePaused
)

var stateNames = [...]string{"capturing", "staging", "padding", "effecting", "presenting", "paused"}

// String returns the state name.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// FrameReport describes one traversal of the state machine.
type FrameReport struct {
	// Frame is the 1-based frame counter.
	Frame uint64

	// States lists the states visited, in order.
	States []State

	// Effect and Hotkey identify the effect that ran. Both are zero when
	// the frame did not reach Effecting.
	Effect string
	Hotkey int

	// Valid is the part of the staging image holding captured texels.
	Valid image.Rectangle

	// Fresh is set when a new frame was captured and uploaded.
	Fresh bool

	Paused        bool
	Reinitialized bool

	// Err is the last error met during the frame. Only errors classified
	// fatal abort the frame before Presenting.
	Err error
}

func (r *FrameReport) enter(s State) { r.States = append(r.States, s) }

// Visited reports whether the frame went through s.
func (r FrameReport) Visited(s State) bool {
	return slices.Contains(r.States, s)
}

// Trace returns the visited states joined by arrows.
func (r FrameReport) Trace() string {
	names := make([]string, len(r.States))
	for i, s := range r.States {
		names[i] = s.String()
	}
	return strings.Join(names, "->")
}
