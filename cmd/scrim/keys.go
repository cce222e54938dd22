package main

import "github.com/gogpu/gpucontext"

type keyCommand int

const (
	keyNone keyCommand = iota
	keySelect
	keyPause
	keySnapshot
	keyAbove
)

// mapKey translates a window key press. keySelect comes with the hotkey
// 1..9.
func mapKey(key gpucontext.Key, mods gpucontext.Modifiers) (keyCommand, int) {
	ctrl := mods&gpucontext.ModControl != 0
	switch {
	case ctrl && key == gpucontext.KeyS:
		return keySnapshot, 0
	case ctrl && key == gpucontext.KeyA:
		return keyAbove, 0
	case ctrl:
		return keyNone, 0
	case key >= gpucontext.Key1 && key <= gpucontext.Key9:
		return keySelect, int(key-gpucontext.Key1) + 1
	case key == gpucontext.KeySpace, key == gpucontext.KeyPause:
		return keyPause, 0
	}
	return keyNone, 0
}
