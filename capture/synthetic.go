package capture

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"
)

// PatternFunc returns the color of desktop pixel (x, y) in frame seq.
type PatternFunc func(x, y int, seq uint64) (r, g, b uint8)

// DefaultPattern is a gradient that scrolls one pixel per frame.
func DefaultPattern(x, y int, seq uint64) (r, g, b uint8) {
	return uint8(x + int(seq)), uint8(y), uint8(x ^ y) //nolint:gosec // wrapping is the pattern
}

// SyntheticOptions configures a Synthetic source.
type SyntheticOptions struct {
	Width, Height int

	// Origin is the desktop position of the captured area.
	Origin image.Point

	// Interval is the production period. Zero disables the producer
	// goroutine; frames are then produced only by Step.
	Interval time.Duration

	// Format defaults to FormatBGRA.
	Format Format

	// Pattern defaults to DefaultPattern.
	Pattern PatternFunc
}

// Synthetic is a Source that renders a test pattern. It has hooks to pause
// production, resize the desktop and inject session loss, which makes it
// the source for pipeline tests and the fallback when no display is
// available.
type Synthetic struct {
	opts    SyntheticOptions
	mailbox *Mailbox
	pool    Pool

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
	width   int
	height  int

	seq        atomic.Uint64
	lost       atomic.Bool
	paused     atomic.Bool
	failStarts atomic.Int32
	starts     atomic.Int32
}

// NewSynthetic creates a stopped synthetic source.
func NewSynthetic(opts SyntheticOptions) *Synthetic {
	if opts.Width <= 0 {
		opts.Width = 800
	}
	if opts.Height <= 0 {
		opts.Height = 600
	}
	if opts.Format == 0 {
		opts.Format = FormatBGRA
	}
	if opts.Pattern == nil {
		opts.Pattern = DefaultPattern
	}
	return &Synthetic{
		opts:    opts,
		mailbox: NewMailbox(),
		width:   opts.Width,
		height:  opts.Height,
	}
}

// Start implements Source. A lost session is cleared.
func (s *Synthetic) Start() error {
	s.starts.Add(1)
	if s.failStarts.Load() > 0 {
		s.failStarts.Add(-1)
		return errors.New("capture: synthetic start failure")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.lost.Store(false)
		return nil
	}
	s.running = true
	s.lost.Store(false)
	if s.opts.Interval > 0 {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.produce(s.stop, s.done)
	}
	Logger().Info("capture: synthetic source started", "width", s.width, "height", s.height)
	return nil
}

// Stop implements Source.
func (s *Synthetic) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	s.mailbox.Clear()
	return nil
}

func (s *Synthetic) produce(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Step()
		}
	}
}

// Step renders and publishes one frame unless the source is stopped,
// paused or lost.
func (s *Synthetic) Step() {
	if s.paused.Load() || s.lost.Load() {
		return
	}
	s.mu.Lock()
	running, w, h := s.running, s.width, s.height
	s.mu.Unlock()
	if !running {
		return
	}

	seq := s.seq.Add(1)
	f := s.pool.NewFrame(w, h, w*4, s.opts.Format)
	f.Origin = s.opts.Origin
	f.Timestamp = time.Now()
	f.Sequence = seq
	for y := range h {
		row := f.Pix[y*f.Stride:]
		for x := range w {
			r, g, b := s.opts.Pattern(s.opts.Origin.X+x, s.opts.Origin.Y+y, seq)
			px := row[x*4 : x*4+4]
			switch s.opts.Format {
			case FormatRGBA:
				px[0], px[1], px[2], px[3] = r, g, b, 0xFF
			case FormatBGRX:
				// The fourth byte is undefined; leave garbage to prove
				// consumers ignore it.
				px[0], px[1], px[2], px[3] = b, g, r, 0x5A
			default:
				px[0], px[1], px[2], px[3] = b, g, r, 0xFF
			}
		}
	}
	s.mailbox.Put(f)
}

// TryAcquireLatestFrame implements Source.
func (s *Synthetic) TryAcquireLatestFrame(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return nil, ErrNotStarted
	}
	if s.lost.Load() {
		return nil, ErrLostAccess
	}

	var f *Frame
	if s.opts.Interval > 0 {
		f = s.mailbox.Wait(ctx, s.opts.Interval)
	} else {
		f = s.mailbox.Take()
	}
	if s.lost.Load() {
		f.Release()
		return nil, ErrLostAccess
	}
	if f == nil {
		return nil, ErrNoNewFrame
	}
	return f, nil
}

// DesktopSize implements Source.
func (s *Synthetic) DesktopSize() (width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// Bounds implements Bounded.
func (s *Synthetic) Bounds() image.Rectangle {
	w, h := s.DesktopSize()
	return image.Rectangle{Min: s.opts.Origin, Max: s.opts.Origin.Add(image.Pt(w, h))}
}

// Lost implements Source.
func (s *Synthetic) Lost() bool { return s.lost.Load() }

// InjectLoss invalidates the session as a display mode change would.
func (s *Synthetic) InjectLoss() {
	s.lost.Store(true)
	s.mailbox.Clear()
	s.mailbox.Interrupt()
	Logger().Warn("capture: synthetic session lost")
}

// FailStarts makes the next n calls to Start fail.
func (s *Synthetic) FailStarts(n int) {
	s.failStarts.Store(int32(n)) //nolint:gosec // test hook
}

// Starts returns how many times Start has been called.
func (s *Synthetic) Starts() int { return int(s.starts.Load()) }

// SetPaused stops or resumes frame production without stopping the source.
func (s *Synthetic) SetPaused(paused bool) { s.paused.Store(paused) }

// SetSize changes the desktop size. Like a real mode change it
// invalidates the session.
func (s *Synthetic) SetSize(width, height int) {
	s.mu.Lock()
	s.width, s.height = width, height
	s.mu.Unlock()
	s.InjectLoss()
}

// Mailbox exposes the source's mailbox for drop statistics.
func (s *Synthetic) Mailbox() *Mailbox { return s.mailbox }

// Outstanding returns how many produced frames are not yet released.
func (s *Synthetic) Outstanding() int64 { return s.pool.Outstanding() }

var (
	_ Source  = (*Synthetic)(nil)
	_ Bounded = (*Synthetic)(nil)
)
