package control

import (
	"context"
	"errors"
	"fmt"
	"image"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ErrNoSnapshots is returned by save_snapshot when no saver is configured.
var ErrNoSnapshots = errors.New("control: snapshots are not configured")

func (s *Server) handleListEffects(_ context.Context, _ *mcpsdk.CallToolRequest, _ ListEffectsInput) (*mcpsdk.CallToolResult, ListEffectsOutput, error) {
	reg := s.target.Registry()
	active := s.target.Status().Hotkey
	var out ListEffectsOutput
	for _, e := range reg.Entries() {
		out.Effects = append(out.Effects, EffectInfo{
			Hotkey:      e.Hotkey(),
			Name:        e.Descriptor.Name,
			Description: e.Descriptor.Description,
			Active:      e.Hotkey() == active,
		})
	}
	for _, x := range reg.Excluded() {
		out.Excluded = append(out.Excluded, ExcludedEffect{Name: x.Name, Error: x.Err.Error()})
	}
	return nil, out, nil
}

func (s *Server) handleSelectEffect(_ context.Context, _ *mcpsdk.CallToolRequest, args SelectEffectInput) (*mcpsdk.CallToolResult, SelectEffectOutput, error) {
	if err := s.target.SelectEffect(args.Hotkey); err != nil {
		return nil, SelectEffectOutput{}, err
	}
	e, _ := s.target.Registry().Lookup(args.Hotkey)
	Logger().Info("control: effect selected", "hotkey", args.Hotkey, "effect", e.Descriptor.Name)
	return nil, SelectEffectOutput{Hotkey: args.Hotkey, Name: e.Descriptor.Name}, nil
}

func (s *Server) handleTogglePause(_ context.Context, _ *mcpsdk.CallToolRequest, _ TogglePauseInput) (*mcpsdk.CallToolResult, TogglePauseOutput, error) {
	paused := s.target.TogglePause()
	Logger().Info("control: pause toggled", "paused", paused)
	return nil, TogglePauseOutput{Paused: paused}, nil
}

func (s *Server) handleSetRegion(_ context.Context, _ *mcpsdk.CallToolRequest, args SetRegionInput) (*mcpsdk.CallToolResult, SetRegionOutput, error) {
	if args.Width <= 0 || args.Height <= 0 {
		return nil, SetRegionOutput{}, fmt.Errorf("region must have a positive size, got %dx%d", args.Width, args.Height)
	}
	r := image.Rect(args.X, args.Y, args.X+args.Width, args.Y+args.Height)
	s.target.WindowRegionChanged(r)
	return nil, SetRegionOutput{Region: toRect(r)}, nil
}

func (s *Server) handleSaveSnapshot(_ context.Context, _ *mcpsdk.CallToolRequest, _ SaveSnapshotInput) (*mcpsdk.CallToolResult, SaveSnapshotOutput, error) {
	if s.snapshots == nil {
		return nil, SaveSnapshotOutput{}, ErrNoSnapshots
	}
	path, err := s.snapshots.Save()
	if err != nil {
		return nil, SaveSnapshotOutput{}, err
	}
	Logger().Info("control: snapshot saved", "path", path)
	return nil, SaveSnapshotOutput{Path: path}, nil
}

func (s *Server) handleStatus(_ context.Context, _ *mcpsdk.CallToolRequest, _ StatusInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	st := s.target.Status()
	return nil, StatusOutput{
		Frames: st.Frames,
		Effect: st.Effect,
		Hotkey: st.Hotkey,
		Paused: st.Paused,
		Region: toRect(st.Region),
		Valid:  toRect(st.Valid),
	}, nil
}

func toRect(r image.Rectangle) Rect {
	return Rect{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}
