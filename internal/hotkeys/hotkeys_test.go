package hotkeys

import (
	"slices"
	"testing"
)

func TestBindings(t *testing.T) {
	var selected []int
	pauses, snaps := 0, 0
	b := Bindings(Actions{
		SelectEffect: func(k int) { selected = append(selected, k) },
		TogglePause:  func() { pauses++ },
		Snapshot:     func() { snaps++ },
	})
	if len(b) != 11 {
		t.Fatalf("len(Bindings) = %d, want 11", len(b))
	}
	keys := make(map[string]func())
	for _, x := range b {
		keys[x.Keys] = x.Run
	}
	keys["Control-Mod1-3"]()
	keys["Control-Mod1-9"]()
	keys["Control-Mod1-p"]()
	keys["Control-Mod1-s"]()
	if !slices.Equal(selected, []int{3, 9}) || pauses != 1 || snaps != 1 {
		t.Errorf("selected %v, pauses %d, snaps %d", selected, pauses, snaps)
	}
	if _, ok := keys["Control-Mod1-a"]; ok {
		t.Error("nil ToggleAbove was bound")
	}
}

func TestBindingsEmpty(t *testing.T) {
	if b := Bindings(Actions{}); len(b) != 0 {
		t.Errorf("Bindings(empty) = %d entries", len(b))
	}
}

func TestIgnoreMasks(t *testing.T) {
	tests := []struct {
		in   []uint16
		want []uint16
	}{
		{[]uint16{2, 0, 0}, []uint16{0, 2}},
		{[]uint16{2, 16, 0}, []uint16{0, 2, 16, 18}},
		{[]uint16{2, 16, 2}, []uint16{0, 2, 16, 18}},
		{[]uint16{2, 16, 128}, []uint16{0, 2, 16, 18, 128, 130, 144, 146}},
	}
	for _, tt := range tests {
		got := ignoreMasks(tt.in...)
		slices.Sort(got)
		if !slices.Equal(got, tt.want) {
			t.Errorf("ignoreMasks(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
