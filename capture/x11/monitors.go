package x11

import (
	"fmt"
	"image"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
)

// WholeRoot selects the entire root window instead of one monitor.
const WholeRoot = -1

// Monitor is one active RandR CRTC.
type Monitor struct {
	Index  int
	Bounds image.Rectangle
}

// monitors lists the active CRTCs of root, in server order.
func monitors(conn *xgb.Conn, root xproto.Window) ([]Monitor, error) {
	if err := randr.Init(conn); err != nil {
		return nil, fmt.Errorf("randr init: %w", err)
	}
	res, err := randr.GetScreenResources(conn, root).Reply()
	if err != nil {
		return nil, fmt.Errorf("randr screen resources: %w", err)
	}
	var out []Monitor
	for _, crtc := range res.Crtcs {
		info, err := randr.GetCrtcInfo(conn, crtc, res.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}
		// Skip disabled CRTCs
		if info.Width == 0 || info.Height == 0 || len(info.Outputs) == 0 {
			continue
		}
		out = append(out, Monitor{
			Index:  len(out),
			Bounds: image.Rect(int(info.X), int(info.Y), int(info.X)+int(info.Width), int(info.Y)+int(info.Height)),
		})
	}
	return out, nil
}

// pickArea returns the capture rectangle for monitor index: the whole root
// for WholeRoot, else that monitor clipped to the root.
func pickArea(root image.Rectangle, mons []Monitor, index int) (image.Rectangle, error) {
	if index == WholeRoot {
		return root, nil
	}
	if index < 0 || index >= len(mons) {
		return image.Rectangle{}, fmt.Errorf("%w: monitor %d of %d", ErrNoMonitor, index, len(mons))
	}
	area := mons[index].Bounds.Intersect(root)
	if area.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: monitor %d lies outside the root window", ErrNoMonitor, index)
	}
	return area, nil
}

// Monitors connects to display and lists its active monitors.
func Monitors(display string) ([]Monitor, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoDisplay, err)
	}
	defer conn.Close()
	return monitors(conn, xproto.Setup(conn).DefaultScreen(conn).Root)
}
