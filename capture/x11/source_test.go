package x11

import (
	"context"
	"errors"
	"image"
	"os"
	"testing"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/gogpu/scrim/capture"
)

func TestPickArea(t *testing.T) {
	root := image.Rect(0, 0, 3840, 1080)
	mons := []Monitor{
		{Index: 0, Bounds: image.Rect(0, 0, 1920, 1080)},
		{Index: 1, Bounds: image.Rect(1920, 0, 3840, 1080)},
		{Index: 2, Bounds: image.Rect(3000, 500, 5000, 1500)},
		{Index: 3, Bounds: image.Rect(4000, 0, 5000, 100)},
	}
	tests := []struct {
		name    string
		index   int
		want    image.Rectangle
		wantErr bool
	}{
		{"whole root", WholeRoot, root, false},
		{"first", 0, mons[0].Bounds, false},
		{"second", 1, mons[1].Bounds, false},
		{"clipped", 2, image.Rect(3000, 500, 3840, 1080), false},
		{"outside root", 3, image.Rectangle{}, true},
		{"past end", 4, image.Rectangle{}, true},
		{"negative", -2, image.Rectangle{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pickArea(root, mons, tt.index)
			if tt.wantErr {
				if !errors.Is(err, ErrNoMonitor) {
					t.Errorf("pickArea(%d) error = %v, want ErrNoMonitor", tt.index, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("pickArea(%d) = %v, %v; want %v", tt.index, got, err, tt.want)
			}
		})
	}
}

func TestCheckVisual(t *testing.T) {
	formats := []xproto.Format{
		{Depth: 1, BitsPerPixel: 1},
		{Depth: 16, BitsPerPixel: 16},
		{Depth: 24, BitsPerPixel: 32},
		{Depth: 32, BitsPerPixel: 32},
	}
	tests := []struct {
		name  string
		order byte
		depth byte
		ok    bool
	}{
		{"depth 24", xproto.ImageOrderLSBFirst, 24, true},
		{"depth 32", xproto.ImageOrderLSBFirst, 32, true},
		{"depth 16", xproto.ImageOrderLSBFirst, 16, false},
		{"big endian", xproto.ImageOrderMSBFirst, 24, false},
		{"unknown depth", xproto.ImageOrderLSBFirst, 30, false},
	}
	for _, tt := range tests {
		err := checkVisual(tt.order, tt.depth, formats)
		if tt.ok != (err == nil) {
			t.Errorf("%s: checkVisual() = %v", tt.name, err)
		}
		if err != nil && !errors.Is(err, ErrVisual) {
			t.Errorf("%s: error %v is not ErrVisual", tt.name, err)
		}
	}
}

func TestFrameFrom(t *testing.T) {
	s := &Source{mailbox: capture.NewMailbox()}
	area := image.Rect(10, 20, 12, 21)
	data := []byte{1, 2, 3, 0, 4, 5, 6, 0, 99, 99}
	f, err := s.frameFrom(data, area)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Release()
	if f.Format != capture.FormatBGRX || f.Bounds() != area || f.Sequence != 1 {
		t.Errorf("frame = %v %v seq %d", f.Format, f.Bounds(), f.Sequence)
	}
	if string(f.Pix) != string(data[:8]) {
		t.Errorf("Pix = %v", f.Pix)
	}
	if _, err := s.frameFrom(data[:7], area); err == nil {
		t.Error("short reply accepted")
	}
}

func TestNewSourceWithoutDisplay(t *testing.T) {
	_, err := NewSource(Options{Display: ":9999", Monitor: WholeRoot})
	if !errors.Is(err, ErrNoDisplay) {
		t.Errorf("NewSource(:9999) error = %v, want ErrNoDisplay", err)
	}
}

func TestSourceCapturesRoot(t *testing.T) {
	if os.Getenv("DISPLAY") == "" {
		t.Skip("DISPLAY not set")
	}
	s, err := NewSource(Options{Monitor: WholeRoot, Interval: 10 * time.Millisecond})
	if err != nil {
		t.Skipf("no usable X server: %v", err)
	}
	w, h := s.DesktopSize()
	if w <= 0 || h <= 0 {
		t.Fatalf("DesktopSize() = %dx%d", w, h)
	}
	if _, err := s.TryAcquireLatestFrame(context.Background()); !errors.Is(err, capture.ErrNotStarted) {
		t.Errorf("acquire before Start = %v, want ErrNotStarted", err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for ctx.Err() == nil {
		f, err := s.TryAcquireLatestFrame(ctx)
		if errors.Is(err, capture.ErrNoNewFrame) {
			continue
		}
		if err != nil {
			t.Fatal(err)
		}
		if f.Width != w || f.Height != h || len(f.Pix) != w*h*4 {
			t.Errorf("frame %dx%d with %d bytes, want %dx%d", f.Width, f.Height, len(f.Pix), w, h)
		}
		f.Release()
		return
	}
	t.Fatal("no frame within 2s")
}
