package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gogpu/gogpu"
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/scrim"
	"github.com/gogpu/scrim/backend"
	_ "github.com/gogpu/scrim/backend/native"   // Register the wgpu HAL backend
	_ "github.com/gogpu/scrim/backend/software" // Register the CPU backend
	"github.com/gogpu/scrim/capture"
	"github.com/gogpu/scrim/capture/x11"
	"github.com/gogpu/scrim/config"
	"github.com/gogpu/scrim/effect"
	"github.com/gogpu/scrim/internal/control"
	"github.com/gogpu/scrim/internal/hotkeys"
	"github.com/gogpu/scrim/internal/x11win"
	"github.com/gogpu/scrim/snapshot"
	"github.com/gogpu/scrim/surface"
)

// findTimeout bounds the search for the overlay's own window.
const findTimeout = 5 * time.Second

// runFlags are the command-line overrides of the run command.
type runFlags struct {
	path          string
	display       string
	headless      bool
	source        string
	monitor       int
	backend       string
	refresh       int
	effect        int
	globalHotkeys bool
	mcp           bool
	logLevel      string
	snapshotDir   string
}

func (f *runFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.path, "config", "", "Config file path (default: ~/.config/scrim/config.yaml)")
	fs.StringVar(&f.display, "display", "", "X display (default: $DISPLAY)")
	fs.BoolVar(&f.headless, "headless", false, "Render without a window")
	fs.StringVar(&f.source, "source", "", "Capture source: x11 or synthetic")
	fs.IntVar(&f.monitor, "monitor", 0, "RandR monitor index, -1 for the whole root window")
	fs.StringVar(&f.backend, "backend", "", "GPU backend: auto, native or software")
	fs.IntVar(&f.refresh, "refresh", 0, "Frames per second")
	fs.IntVar(&f.effect, "effect", 0, "Hotkey of the effect selected at start")
	fs.BoolVar(&f.globalHotkeys, "global-hotkeys", false, "Grab Ctrl+Alt key combinations desktop-wide")
	fs.BoolVar(&f.mcp, "mcp", false, "Serve the MCP control tools on stdio")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	fs.StringVar(&f.snapshotDir, "snapshot-dir", "", "Directory for saved snapshots")
}

// apply copies the flags given on the command line over cfg and validates
// the result.
func (f *runFlags) apply(fs *flag.FlagSet, cfg *config.Config) error {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "source":
			cfg.Source = f.source
		case "monitor":
			cfg.Monitor = f.monitor
		case "backend":
			cfg.Backend = f.backend
		case "refresh":
			cfg.RefreshHz = f.refresh
		case "effect":
			cfg.DefaultEffect = f.effect
		case "global-hotkeys":
			cfg.Hotkeys.Global = f.globalHotkeys
		case "mcp":
			cfg.Control.MCP = f.mcp
		case "log-level":
			cfg.Log.Level = f.logLevel
		case "snapshot-dir":
			cfg.Snapshot.Dir = f.snapshotDir
		}
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	return nil
}

func runOverlay(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var f runFlags
	f.register(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := loadConfig(f.path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := f.apply(fs, cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	level, _ := cfg.LogLevel()
	logger := newLogger(level)
	setLoggers(logger)

	adapter, err := backend.Open(cfg.Backend)
	if err != nil {
		logger.Error("scrim: open backend", "backend", cfg.Backend, "err", err)
		return 1
	}
	defer adapter.Close()
	logger.Info("scrim: backend ready", "backend", adapter.Name())

	source, err := openSource(cfg, f.display)
	if err != nil {
		logger.Error("scrim: open capture source", "source", cfg.Source, "err", err)
		return 1
	}

	o := &overlay{cfg: cfg, display: f.display}
	opts := []scrim.Option{
		scrim.WithRefreshRate(cfg.RefreshHz),
		scrim.WithDefaultEffect(cfg.DefaultEffect),
		scrim.WithPauseHook(o.pauseChanged),
	}
	var tex *surface.TextureSurface
	if !f.headless {
		tex = surface.NewTextureSurface(cfg.Window.Width, cfg.Window.Height)
		defer tex.Close()
		opts = append(opts,
			scrim.WithSurface(tex),
			scrim.WithRegion(initialRegion(source, cfg.Window.Width, cfg.Window.Height)))
	}

	comp, err := scrim.New(adapter, source, effect.Builtin(tilesOptions(cfg.Tiles)), opts...)
	if err != nil {
		logger.Error("scrim: create compositor", "err", err)
		return 1
	}
	o.comp = comp
	o.saver = &snapshot.Saver{
		Dir:    cfg.Snapshot.Dir,
		Format: snapshot.Format(cfg.Snapshot.Format),
		Frames: comp.LatestFrame,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Hotkeys.Global {
		o.startHotkeys(ctx)
	}
	if cfg.Control.MCP {
		go o.serveControl(ctx)
	}

	done := make(chan error, 1)
	go func() {
		err := comp.Run(ctx)
		if err != nil {
			cancel()
		}
		done <- err
	}()

	if f.headless {
		err = <-done
	} else {
		err = o.runWindow(ctx, cancel, tex, done)
	}
	comp.Close()
	if err != nil {
		logger.Error("scrim: stopped", "err", err)
		return 1
	}
	return 0
}

// overlay wires the compositor to its collaborators.
type overlay struct {
	cfg     *config.Config
	display string
	comp    *scrim.Compositor
	saver   *snapshot.Saver
	tracker atomic.Pointer[x11win.Tracker]
}

// runWindow opens the overlay window and blocks until it closes. done
// carries the result of the render loop, which stops once ctx is
// cancelled.
func (o *overlay) runWindow(ctx context.Context, cancel context.CancelFunc, tex *surface.TextureSurface, done <-chan error) error {
	app := gogpu.NewApp(gogpu.DefaultConfig().
		WithTitle(o.cfg.Window.Title).
		WithSize(o.cfg.Window.Width, o.cfg.Window.Height).
		WithContinuousRender(false))

	var anim *gogpu.AnimationToken
	var drawFailed bool
	app.OnDraw(func(dc *gogpu.Context) {
		if anim == nil {
			anim = app.StartAnimation()
		}
		if err := tex.DrawTo(dc.AsTextureDrawer()); err != nil && !drawFailed {
			drawFailed = true
			scrim.Logger().Warn("scrim: draw overlay", "err", err)
		}
	})
	app.EventSource().OnKeyPress(func(key gpucontext.Key, mods gpucontext.Modifiers) {
		o.handleKey(key, mods)
	})
	app.OnClose(func() {
		if anim != nil {
			anim.Stop()
			anim = nil
		}
		cancel()
	})

	go o.trackWindow(ctx)

	if err := app.Run(); err != nil {
		cancel()
		<-done
		return fmt.Errorf("window: %w", err)
	}
	cancel()
	return <-done
}

func (o *overlay) handleKey(key gpucontext.Key, mods gpucontext.Modifiers) {
	cmd, hotkey := mapKey(key, mods)
	switch cmd {
	case keySelect:
		o.selectEffect(hotkey)
	case keyPause:
		o.togglePause()
	case keySnapshot:
		o.snapshot()
	case keyAbove:
		o.toggleAbove()
	case keyNone:
	}
}

func (o *overlay) actions() hotkeys.Actions {
	return hotkeys.Actions{
		SelectEffect: o.selectEffect,
		TogglePause:  o.togglePause,
		Snapshot:     o.snapshot,
		ToggleAbove:  o.toggleAbove,
	}
}

func (o *overlay) selectEffect(hotkey int) {
	if err := o.comp.SelectEffect(hotkey); err != nil {
		scrim.Logger().Debug("scrim: select effect", "hotkey", hotkey, "err", err)
	}
}

func (o *overlay) togglePause() {
	paused := o.comp.TogglePause()
	scrim.Logger().Info("scrim: pause requested", "paused", paused)
}

func (o *overlay) snapshot() {
	path, err := o.saver.Save()
	if err != nil {
		scrim.Logger().Warn("scrim: save snapshot", "err", err)
		return
	}
	scrim.Logger().Info("scrim: snapshot saved", "path", path)
}

func (o *overlay) toggleAbove() {
	t := o.tracker.Load()
	if t == nil {
		scrim.Logger().Warn("scrim: always-on-top unavailable, overlay window not tracked")
		return
	}
	above, err := t.ToggleAbove()
	if err != nil {
		scrim.Logger().Warn("scrim: toggle always-on-top", "err", err)
		return
	}
	scrim.Logger().Info("scrim: always-on-top", "above", above)
}

// pauseChanged runs on the render goroutine.
func (o *overlay) pauseChanged(paused bool) {
	if t := o.tracker.Load(); t != nil {
		t.PauseChanged(paused)
	}
}

// trackWindow finds the overlay window and feeds its desktop rectangle to
// the compositor until ctx ends.
func (o *overlay) trackWindow(ctx context.Context) {
	findCtx, cancel := context.WithTimeout(ctx, findTimeout)
	t, err := x11win.Find(findCtx, o.display, o.cfg.Window.Title)
	cancel()
	if err != nil {
		scrim.Logger().Warn("scrim: window tracking disabled", "err", err)
		return
	}
	defer t.Close()
	o.tracker.Store(t)
	defer o.tracker.Store(nil)

	if err := t.Watch(ctx, x11win.DefaultInterval, o.comp.WindowRegionChanged); err != nil {
		scrim.Logger().Warn("scrim: window tracking stopped", "err", err)
	}
}

func (o *overlay) startHotkeys(ctx context.Context) {
	h, err := hotkeys.New(o.display)
	if err != nil {
		scrim.Logger().Warn("scrim: global hotkeys disabled", "err", err)
		return
	}
	if err := h.Register(hotkeys.Bindings(o.actions())); err != nil {
		scrim.Logger().Warn("scrim: global hotkeys", "err", err)
	}
	go h.Run()
	go func() {
		<-ctx.Done()
		h.Close()
	}()
}

func (o *overlay) serveControl(ctx context.Context) {
	srv := control.NewServer(o.comp, o.saver)
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		scrim.Logger().Warn("scrim: control server stopped", "err", err)
	}
}

// openSource opens the configured capture source. An unreachable X display
// falls back to the synthetic pattern.
func openSource(cfg *config.Config, display string) (capture.Source, error) {
	interval := time.Second / time.Duration(cfg.RefreshHz)
	if cfg.Source == config.SourceX11 {
		src, err := x11.NewSource(x11.Options{Display: display, Monitor: cfg.Monitor, Interval: interval})
		if err == nil {
			return src, nil
		}
		if !errors.Is(err, x11.ErrNoDisplay) {
			return nil, err
		}
		scrim.Logger().Warn("scrim: no X display, using the synthetic source", "err", err)
	}
	return capture.NewSynthetic(capture.SyntheticOptions{
		Width:    cfg.Window.Width,
		Height:   cfg.Window.Height,
		Interval: interval,
	}), nil
}

// initialRegion is the window-sized rectangle at the top-left of the
// captured area, used until the window tracker reports the real one.
func initialRegion(src capture.Source, width, height int) image.Rectangle {
	var origin image.Point
	if b, ok := src.(capture.Bounded); ok {
		origin = b.Bounds().Min
	}
	return image.Rectangle{Min: origin, Max: origin.Add(image.Pt(width, height))}
}

func tilesOptions(c config.TilesConfig) effect.TilesOptions {
	return effect.TilesOptions{
		TileSize:  c.TileSize,
		Font:      c.Font,
		FontSize:  c.FontSize,
		Sheet:     c.Sheet,
		SheetCell: c.SheetCell,
	}
}
