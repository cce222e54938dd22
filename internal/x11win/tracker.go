// Package x11win follows the overlay's own top-level window through EWMH:
// where it sits on the root window and whether it is kept above others.
package x11win

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
)

const stateAbove = "_NET_WM_STATE_ABOVE"

// DefaultInterval is the geometry polling period.
const DefaultInterval = 100 * time.Millisecond

// ErrNotFound is returned when no client window carries the title.
var ErrNotFound = errors.New("x11win: window not found")

// Tracker watches one top-level window.
type Tracker struct {
	xu  *xgbutil.XUtil
	win xproto.Window

	mu         sync.Mutex
	above      bool
	aboveSaved bool
}

// Find connects to display and locates the client window whose title is
// title, retrying until ctx ends. Windows appear on the client list some
// time after they are mapped.
func Find(ctx context.Context, display, title string) (*Tracker, error) {
	xu, err := xgbutil.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("x11win: connect: %w", err)
	}
	ticker := time.NewTicker(DefaultInterval)
	defer ticker.Stop()
	for {
		if win, ok := findByTitle(xu, title); ok {
			t := &Tracker{xu: xu, win: win}
			t.above = t.hasState(stateAbove)
			return t, nil
		}
		select {
		case <-ctx.Done():
			xu.Conn().Close()
			return nil, fmt.Errorf("%w: %q: %w", ErrNotFound, title, ctx.Err())
		case <-ticker.C:
		}
	}
}

func findByTitle(xu *xgbutil.XUtil, title string) (xproto.Window, bool) {
	clients, err := ewmh.ClientListGet(xu)
	if err != nil {
		return 0, false
	}
	for _, win := range clients {
		if windowTitle(xu, win) == title {
			return win, true
		}
	}
	return 0, false
}

func windowTitle(xu *xgbutil.XUtil, win xproto.Window) string {
	if title, err := ewmh.WmNameGet(xu, win); err == nil && strings.TrimSpace(title) != "" {
		return strings.TrimSpace(title)
	}
	if title, err := icccm.WmNameGet(xu, win); err == nil {
		return strings.TrimSpace(title)
	}
	return ""
}

// Window returns the tracked window id.
func (t *Tracker) Window() xproto.Window { return t.win }

// Geometry returns the window's client area in root coordinates.
func (t *Tracker) Geometry() (image.Rectangle, error) {
	conn := t.xu.Conn()
	geom, err := xproto.GetGeometry(conn, xproto.Drawable(t.win)).Reply()
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("x11win: geometry: %w", err)
	}
	tr, err := xproto.TranslateCoordinates(conn, t.win, t.xu.RootWin(), 0, 0).Reply()
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("x11win: translate: %w", err)
	}
	return image.Rect(int(tr.DstX), int(tr.DstY), int(tr.DstX)+int(geom.Width), int(tr.DstY)+int(geom.Height)), nil
}

// Watch polls the geometry every interval and calls onChange with each new
// rectangle, starting with the current one. It returns when ctx ends or
// the window is gone.
func (t *Tracker) Watch(ctx context.Context, interval time.Duration, onChange func(image.Rectangle)) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	var w watcher
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		r, err := t.Geometry()
		if err != nil {
			return err
		}
		if w.observe(r) {
			onChange(r)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// watcher reports a rectangle only when it differs from the last one.
type watcher struct {
	last image.Rectangle
	seen bool
}

func (w *watcher) observe(r image.Rectangle) bool {
	if w.seen && r == w.last {
		return false
	}
	w.last, w.seen = r, true
	return true
}

// ToggleAbove flips _NET_WM_STATE_ABOVE and returns the new state.
func (t *Tracker) ToggleAbove() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.setAbove(!t.above); err != nil {
		return t.above, err
	}
	return t.above, nil
}

// Above reports whether the window is kept above others.
func (t *Tracker) Above() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.above
}

// PauseChanged drops always-on-top while the overlay is paused and
// restores the previous state on resume. It fits scrim.PauseHook.
func (t *Tracker) PauseChanged(paused bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var err error
	if paused {
		t.aboveSaved = t.above
		if t.above {
			err = t.setAbove(false)
		}
	} else if t.aboveSaved && !t.above {
		err = t.setAbove(true)
	}
	if err != nil {
		Logger().Warn("x11win: always-on-top", "paused", paused, "err", err)
	}
}

// setAbove must be called with mu held.
func (t *Tracker) setAbove(on bool) error {
	action := ewmh.StateRemove
	if on {
		action = ewmh.StateAdd
	}
	if err := ewmh.WmStateReq(t.xu, t.win, action, stateAbove); err != nil {
		return fmt.Errorf("x11win: %s: %w", stateAbove, err)
	}
	t.above = on
	return nil
}

func (t *Tracker) hasState(state string) bool {
	states, err := ewmh.WmStateGet(t.xu, t.win)
	if err != nil {
		return false
	}
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}

// Close closes the X connection.
func (t *Tracker) Close() {
	t.xu.Conn().Close()
}
