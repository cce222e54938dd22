// Package hotkeys grabs desktop-wide key combinations on X11 so the
// overlay can be driven while another window has focus.
package hotkeys

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/BurntSushi/xgbutil/xevent"
)

// Prefix is the modifier combination every global binding starts with.
const Prefix = "Control-Mod1-"

// Actions are the compositor operations reachable from global keys. Nil
// actions are not bound.
type Actions struct {
	// SelectEffect receives the digit 1..9.
	SelectEffect func(hotkey int)
	TogglePause  func()
	Snapshot     func()
	ToggleAbove  func()
}

// Binding is one key sequence in xgbutil keybind notation and its callback.
type Binding struct {
	Keys string
	Run  func()
}

// Bindings expands a into the list of global key sequences: Prefix plus
// 1..9 to select an effect, p to pause, s to save a snapshot and a to
// toggle always-on-top.
func Bindings(a Actions) []Binding {
	var out []Binding
	if a.SelectEffect != nil {
		for i := 1; i <= 9; i++ {
			out = append(out, Binding{Keys: Prefix + strconv.Itoa(i), Run: func() { a.SelectEffect(i) }})
		}
	}
	if a.TogglePause != nil {
		out = append(out, Binding{Keys: Prefix + "p", Run: a.TogglePause})
	}
	if a.Snapshot != nil {
		out = append(out, Binding{Keys: Prefix + "s", Run: a.Snapshot})
	}
	if a.ToggleAbove != nil {
		out = append(out, Binding{Keys: Prefix + "a", Run: a.ToggleAbove})
	}
	return out
}

// Handler owns an X connection with key grabs on the root window.
type Handler struct {
	xu   *xgbutil.XUtil
	root xproto.Window
	done chan struct{}
}

var ignoreModsOnce sync.Once

// New connects to display (empty for $DISPLAY) and prepares key grabs.
func New(display string) (*Handler, error) {
	xu, err := xgbutil.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("hotkeys: connect: %w", err)
	}
	// Initialize keybind module (required for global hotkeys)
	keybind.Initialize(xu)
	ignoreModsOnce.Do(func() {
		configureIgnoreMods(xu)
	})
	return &Handler{xu: xu, root: xu.RootWin(), done: make(chan struct{})}, nil
}

// RegisterFunc grabs keySequence on the root window and runs callback on
// every press.
func (h *Handler) RegisterFunc(keySequence string, callback func()) error {
	err := keybind.KeyPressFun(func(*xgbutil.XUtil, xevent.KeyPressEvent) {
		callback()
	}).Connect(h.xu, h.root, keySequence, true)
	if err != nil {
		return fmt.Errorf("hotkeys: grab %s: %w", keySequence, err)
	}
	return nil
}

// Register grabs every binding. It stops at the first sequence another
// client already holds.
func (h *Handler) Register(bindings []Binding) error {
	for _, b := range bindings {
		if err := h.RegisterFunc(b.Keys, b.Run); err != nil {
			return err
		}
	}
	return nil
}

// Run dispatches key events until Close.
func (h *Handler) Run() {
	defer close(h.done)
	xevent.Main(h.xu)
}

// Close releases the grabs, stops Run and closes the connection.
func (h *Handler) Close() {
	keybind.Detach(h.xu, h.root)
	xevent.Quit(h.xu)
	h.xu.Conn().Close()
}

// Done is closed when Run returns.
func (h *Handler) Done() <-chan struct{} { return h.done }

// configureIgnoreMods makes grabs fire regardless of CapsLock, NumLock
// and ScrollLock.
func configureIgnoreMods(xu *xgbutil.XUtil) {
	caps := uint16(xproto.ModMaskLock)
	numLock := modMaskForKeysym(xu, "Num_Lock")
	scrollLock := modMaskForKeysym(xu, "Scroll_Lock")
	xevent.IgnoreMods = ignoreMasks(caps, numLock, scrollLock)
}

// ignoreMasks returns every combination of the distinct non-zero masks,
// including the empty one.
func ignoreMasks(masks ...uint16) []uint16 {
	var base []uint16
	for _, m := range masks {
		if m == 0 {
			continue
		}
		dup := false
		for _, b := range base {
			dup = dup || b == m
		}
		if !dup {
			base = append(base, m)
		}
	}
	out := make([]uint16, 0, 1<<len(base))
	for subset := range 1 << len(base) {
		var mask uint16
		for bit := range base {
			if subset&(1<<bit) != 0 {
				mask |= base[bit]
			}
		}
		out = append(out, mask)
	}
	return out
}

func modMaskForKeysym(xu *xgbutil.XUtil, keysym string) uint16 {
	for _, keycode := range keybind.StrToKeycodes(xu, keysym) {
		if mask := keybind.ModGet(xu, keycode); mask != 0 {
			return mask
		}
	}
	return 0
}
