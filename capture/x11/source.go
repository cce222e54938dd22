// Package x11 captures the X11 root window, or one RandR monitor of it,
// with core-protocol GetImage requests.
package x11

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/gogpu/scrim/capture"
)

// Errors returned while opening a session.
var (
	// ErrNoDisplay is returned when the X server cannot be reached.
	ErrNoDisplay = errors.New("x11: cannot connect to display")

	// ErrNoMonitor is returned for a monitor index that is not active.
	ErrNoMonitor = errors.New("x11: no such monitor")

	// ErrVisual is returned for root windows whose pixels are not 32-bit
	// little-endian ZPixmap.
	ErrVisual = errors.New("x11: unsupported root visual")
)

// DefaultInterval is the capture period when Options.Interval is zero.
const DefaultInterval = time.Second / 60

// geometryEvery is how many captures pass between geometry checks.
const geometryEvery = 30

// Options configures a Source.
type Options struct {
	// Display is the X display name. Empty uses $DISPLAY.
	Display string

	// Monitor is a RandR monitor index, or WholeRoot.
	Monitor int

	// Interval is the capture period.
	Interval time.Duration
}

// session is one X connection and what was measured on it.
type session struct {
	conn *xgb.Conn
	root xproto.Window
	area image.Rectangle
}

// Source is a capture.Source reading the X11 root window.
//
// Each Start opens a fresh connection. A failed request or a change of the
// captured area's geometry marks the session lost; the consumer recovers
// with Stop and Start.
//
// GetImage on the root window returns composited desktop contents, so an
// overlay window shown over the captured area is itself captured and its
// output feeds back into the next frame. Core X11 has no per-window capture
// exclusion; show the overlay on a monitor other than Options.Monitor or
// accept the feedback.
type Source struct {
	opts    Options
	mailbox *capture.Mailbox
	pool    capture.Pool

	mu      sync.Mutex
	sess    *session
	area    image.Rectangle
	running bool
	stop    chan struct{}
	done    chan struct{}

	seq  atomic.Uint64
	lost atomic.Bool
}

// NewSource probes the display once to learn the captured area and
// returns a stopped source.
func NewSource(opts Options) (*Source, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	s := &Source{opts: opts, mailbox: capture.NewMailbox()}
	sess, err := s.open()
	if err != nil {
		return nil, err
	}
	s.area = sess.area
	sess.conn.Close()
	return s, nil
}

func (s *Source) open() (*session, error) {
	conn, err := xgb.NewConnDisplay(s.opts.Display)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoDisplay, err)
	}
	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)
	if err := checkVisual(setup.ImageByteOrder, screen.RootDepth, setup.PixmapFormats); err != nil {
		conn.Close()
		return nil, err
	}
	area, err := s.measure(conn, screen.Root)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &session{conn: conn, root: screen.Root, area: area}, nil
}

// measure returns the current capture rectangle on conn.
func (s *Source) measure(conn *xgb.Conn, root xproto.Window) (image.Rectangle, error) {
	geom, err := xproto.GetGeometry(conn, xproto.Drawable(root)).Reply()
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("x11: root geometry: %w", err)
	}
	rootRect := image.Rect(0, 0, int(geom.Width), int(geom.Height))
	if s.opts.Monitor == WholeRoot {
		return rootRect, nil
	}
	mons, err := monitors(conn, root)
	if err != nil {
		return image.Rectangle{}, err
	}
	return pickArea(rootRect, mons, s.opts.Monitor)
}

// checkVisual accepts servers whose root depth stores 32 bits per pixel in
// LSB-first order, which GetImage returns as BGRX.
func checkVisual(byteOrder, depth byte, formats []xproto.Format) error {
	if byteOrder != xproto.ImageOrderLSBFirst {
		return fmt.Errorf("%w: MSB-first image byte order", ErrVisual)
	}
	for _, f := range formats {
		if f.Depth == depth {
			if f.BitsPerPixel != 32 {
				return fmt.Errorf("%w: depth %d stores %d bits per pixel", ErrVisual, depth, f.BitsPerPixel)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: no pixmap format for depth %d", ErrVisual, depth)
}

// Start implements capture.Source. It opens a new connection, which also
// clears a lost session.
func (s *Source) Start() error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		if !s.lost.Load() {
			return nil
		}
		if err := s.Stop(); err != nil {
			return err
		}
	}

	sess, err := s.open()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = sess
	s.area = sess.area
	s.running = true
	s.lost.Store(false)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.produce(sess, s.stop, s.done)
	capture.Logger().Info("capture: x11 source started", "area", sess.area, "monitor", s.opts.Monitor)
	return nil
}

// Stop implements capture.Source.
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stop, done, sess := s.stop, s.done, s.sess
	s.stop, s.done, s.sess = nil, nil, nil
	s.mu.Unlock()

	close(stop)
	<-done
	sess.conn.Close()
	s.mailbox.Clear()
	return nil
}

func (s *Source) produce(sess *session, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for n := 1; ; n++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if n%geometryEvery == 0 {
			area, err := s.measure(sess.conn, sess.root)
			if err != nil {
				s.markLost(err)
				return
			}
			if area != sess.area {
				s.markLost(fmt.Errorf("capture area changed from %v to %v", sess.area, area))
				return
			}
		}
		f, err := s.grab(sess)
		if err != nil {
			s.markLost(err)
			return
		}
		s.mailbox.Put(f)
	}
}

// grab reads the capture area into a pooled BGRX frame.
func (s *Source) grab(sess *session) (*capture.Frame, error) {
	a := sess.area
	reply, err := xproto.GetImage(sess.conn, xproto.ImageFormatZPixmap, xproto.Drawable(sess.root),
		int16(a.Min.X), int16(a.Min.Y), uint16(a.Dx()), uint16(a.Dy()), //nolint:gosec // X11 coordinates are 16-bit
		^uint32(0)).Reply()
	if err != nil {
		return nil, fmt.Errorf("x11: get image: %w", err)
	}
	f, err := s.frameFrom(reply.Data, a)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// frameFrom copies ZPixmap data covering area into a pooled frame.
func (s *Source) frameFrom(data []byte, area image.Rectangle) (*capture.Frame, error) {
	w, h := area.Dx(), area.Dy()
	if len(data) < w*h*4 {
		return nil, fmt.Errorf("x11: get image returned %d bytes for %dx%d", len(data), w, h)
	}
	f := s.pool.NewFrame(w, h, w*4, capture.FormatBGRX)
	copy(f.Pix, data[:w*h*4])
	f.Origin = area.Min
	f.Timestamp = time.Now()
	f.Sequence = s.seq.Add(1)
	return f, nil
}

func (s *Source) markLost(err error) {
	s.lost.Store(true)
	s.mailbox.Clear()
	s.mailbox.Interrupt()
	capture.Logger().Warn("capture: x11 session lost", "err", err)
}

// TryAcquireLatestFrame implements capture.Source.
func (s *Source) TryAcquireLatestFrame(ctx context.Context) (*capture.Frame, error) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return nil, capture.ErrNotStarted
	}
	if s.lost.Load() {
		return nil, capture.ErrLostAccess
	}
	f := s.mailbox.Wait(ctx, s.opts.Interval)
	if s.lost.Load() {
		f.Release()
		return nil, capture.ErrLostAccess
	}
	if f == nil {
		return nil, capture.ErrNoNewFrame
	}
	return f, nil
}

// DesktopSize implements capture.Source.
func (s *Source) DesktopSize() (width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.area.Dx(), s.area.Dy()
}

// Bounds returns the captured area in desktop coordinates.
func (s *Source) Bounds() image.Rectangle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.area
}

// Lost implements capture.Source.
func (s *Source) Lost() bool { return s.lost.Load() }

// Mailbox exposes the source's mailbox for drop statistics.
func (s *Source) Mailbox() *capture.Mailbox { return s.mailbox }

var (
	_ capture.Source  = (*Source)(nil)
	_ capture.Bounded = (*Source)(nil)
)
